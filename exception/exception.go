package exception

import (
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/mezonai/mvnode/logx"
	"github.com/mezonai/mvnode/monitoring"
)

// SafeGo runs fn in its own goroutine. A panic is logged and counted
// instead of crashing the node.
func SafeGo(name string, fn func()) {
	go func() {
		defer recoverPanic(name)
		fn()
	}()
}

func recoverPanic(name string) {
	if r := recover(); r != nil {
		monitoring.IncreasePanicCount()
		logx.Error("PANIC", "Panic in: ", name, " ", r, "\n", string(debug.Stack()))
	}
}

// Group tracks goroutines started with Go so the caller can wait for them
// with a deadline. Panics are recovered and logged like SafeGo.
type Group struct {
	wg sync.WaitGroup
}

func (g *Group) Go(name string, fn func()) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer recoverPanic(name)
		fn()
	}()
}

// Wait blocks until every goroutine returned or timeout elapsed. A
// non-positive timeout waits forever.
func (g *Group) Wait(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	if timeout <= 0 {
		<-done
		return nil
	}
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("goroutines still running after %s", timeout)
	}
}
