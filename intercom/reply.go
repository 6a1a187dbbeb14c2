package intercom

import (
	"context"
	"errors"
	"sync"
)

var ErrAlreadyReplied = errors.New("reply already sent")

type result[T any] struct {
	value T
	err   error
}

// Reply is a one-shot answer channel handed along with a request.
type Reply[T any] struct {
	once sync.Once
	ch   chan result[T]
}

func NewReply[T any]() *Reply[T] {
	return &Reply[T]{ch: make(chan result[T], 1)}
}

func (r *Reply[T]) send(res result[T]) error {
	sent := false
	r.once.Do(func() {
		r.ch <- res
		sent = true
	})
	if !sent {
		return ErrAlreadyReplied
	}
	return nil
}

func (r *Reply[T]) ReplyOK(value T) error {
	return r.send(result[T]{value: value})
}

func (r *Reply[T]) ReplyError(err error) error {
	return r.send(result[T]{err: err})
}

// Wait blocks until the reply arrives or ctx is done.
func (r *Reply[T]) Wait(ctx context.Context) (T, error) {
	select {
	case res := <-r.ch:
		return res.value, res.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
