package blockchain

import (
	"errors"
	"fmt"

	"github.com/mezonai/mvnode/block"
)

type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// persistence read or write failed
	KindStorage
	// the block contents do not apply on the parent state
	KindLedger
	// block0 or genesis settings are inconsistent
	KindBlock0
	KindMissingParentBlockFromStorage
	KindBlockHeaderVerificationFailed
	KindBlockNotFound
)

func (k ErrorKind) String() string {
	switch k {
	case KindStorage:
		return "storage"
	case KindLedger:
		return "ledger"
	case KindBlock0:
		return "block0"
	case KindMissingParentBlockFromStorage:
		return "missing parent block from storage"
	case KindBlockHeaderVerificationFailed:
		return "block header verification failed"
	case KindBlockNotFound:
		return "block not found"
	}
	return "unknown"
}

// Error is returned by every Blockchain operation that fails.
type Error struct {
	Kind   ErrorKind
	Header block.HeaderHash
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s (block %s)", e.Kind, e.Header)
	}
	return fmt.Sprintf("%s (block %s): %v", e.Kind, e.Header, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(kind ErrorKind, hash block.HeaderHash, err error) error {
	return &Error{Kind: kind, Header: hash, Err: err}
}

// KindOf returns KindUnknown when err does not come from the blockchain.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
