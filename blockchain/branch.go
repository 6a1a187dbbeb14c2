package blockchain

import (
	"sync"

	"github.com/mezonai/mvnode/block"
)

// Branch is the tip pointer of one tracked chain. Reads are concurrent, and
// updates go through Advance which only ever moves the tip forward.
type Branch struct {
	mu  sync.RWMutex
	tip *Ref
}

func (b *Branch) Tip() *Ref {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.tip
}

func (b *Branch) TipHash() block.HeaderHash {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.tip.Hash()
}

// Advance swaps the tip for ref when ref extends the current tip, or when
// ref belongs to a strictly longer fork. Anything else is stale and leaves
// the tip untouched. It reports whether the tip changed.
func (b *Branch) Advance(ref *Ref) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case b.tip == nil:
	case ref.Hash() == b.tip.Hash():
		return false
	case ref.ParentHash() == b.tip.Hash():
	case ref.ChainLength() > b.tip.ChainLength():
	default:
		return false
	}
	b.tip = ref
	return true
}
