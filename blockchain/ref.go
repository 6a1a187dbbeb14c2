package blockchain

import (
	"time"

	"github.com/mezonai/mvnode/block"
	"github.com/mezonai/mvnode/ledger"
)

// Ref is the handle to a validated block and the ledger state resulting
// from it. Refs are created by the apply step only and never change.
type Ref struct {
	hash   block.HeaderHash
	header block.Header
	ledger *ledger.Ledger
	// when the ref was built, used for block time metrics
	created time.Time
}

func newRef(header *block.Header, state *ledger.Ledger) *Ref {
	return &Ref{
		hash:    header.Hash(),
		header:  *header,
		ledger:  state,
		created: time.Now(),
	}
}

func (r *Ref) Hash() block.HeaderHash {
	return r.hash
}

// Header returns a copy of the block header.
func (r *Ref) Header() block.Header {
	h := r.header
	h.Signature = append([]byte(nil), r.header.Signature...)
	return h
}

func (r *Ref) ParentHash() block.HeaderHash {
	return r.header.ParentHash
}

func (r *Ref) ChainLength() block.ChainLength {
	return r.header.ChainLength
}

func (r *Ref) Date() block.BlockDate {
	return r.header.Date
}

// Ledger is the state after applying the block. Ledgers are immutable.
func (r *Ref) Ledger() *ledger.Ledger {
	return r.ledger
}

func (r *Ref) Created() time.Time {
	return r.created
}
