package explorer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/mezonai/mvnode/block"
	"github.com/mezonai/mvnode/blockchain"
	"github.com/mezonai/mvnode/monitoring"
	"github.com/mezonai/mvnode/multiverse"
)

var ErrBlockNotFound = errors.New("block not found")

// BlockSource re-reads indexed blocks from primary storage.
type BlockSource interface {
	GetBlock(ctx context.Context, hash block.HeaderHash) (*block.Block, error)
}

// DB is the read-side index of accepted blocks. Entries are written in two
// steps (chain length, then transactions) and a failure in the second step
// leaves the first in place; LastIndexedChainLength only covers lengths
// whose blocks all went through both.
type DB struct {
	blocks BlockSource
	// chain length and hash index; entries are never swept
	multiverse *multiverse.Multiverse[*blockchain.Ref]

	txMu         sync.RWMutex
	transactions map[block.FragmentID]*blockchain.Ref

	watermarkMu sync.RWMutex
	watermark   block.ChainLength
	indexed     map[block.HeaderHash]struct{}
}

func NewDB(blocks BlockSource) *DB {
	return &DB{
		blocks:       blocks,
		multiverse:   multiverse.New[*blockchain.Ref](),
		transactions: make(map[block.FragmentID]*blockchain.Ref),
		indexed:      make(map[block.HeaderHash]struct{}),
	}
}

// Index stores ref in both indexes.
func (db *DB) Index(ctx context.Context, ref *blockchain.Ref) error {
	db.storeRef(ref)
	if err := db.indexTransactions(ctx, ref); err != nil {
		return err
	}
	db.advanceWatermark(ref)
	return nil
}

func (db *DB) storeRef(ref *blockchain.Ref) {
	if _, ok := db.multiverse.Get(ref.Hash()); ok {
		return
	}
	db.multiverse.Insert(ref.ChainLength(), ref.Hash(), ref.ParentHash(), ref).Release()
}

func (db *DB) indexTransactions(ctx context.Context, ref *blockchain.Ref) error {
	blk, err := db.blocks.GetBlock(ctx, ref.Hash())
	if blockchain.KindOf(err) == blockchain.KindBlockNotFound {
		return fmt.Errorf("%w: %s", ErrBlockNotFound, ref.Hash())
	}
	if err != nil {
		return fmt.Errorf("reading block %s: %w", ref.Hash(), err)
	}
	if blk == nil {
		return fmt.Errorf("%w: %s", ErrBlockNotFound, ref.Hash())
	}

	db.txMu.Lock()
	defer db.txMu.Unlock()
	for _, f := range blk.Contents {
		db.transactions[f.ID()] = ref
	}
	return nil
}

// advanceWatermark marks ref as fully indexed and moves the watermark over
// every following length whose refs are all fully indexed. Indexing tasks
// finish out of order, so a gap holds the watermark back until it is
// filled.
func (db *DB) advanceWatermark(ref *blockchain.Ref) {
	db.watermarkMu.Lock()
	defer db.watermarkMu.Unlock()

	db.indexed[ref.Hash()] = struct{}{}
	moved := false
advance:
	for {
		refs := db.multiverse.AtLength(db.watermark + 1)
		if len(refs) == 0 {
			break
		}
		for _, r := range refs {
			if _, ok := db.indexed[r.Hash()]; !ok {
				break advance
			}
		}
		db.watermark++
		moved = true
	}
	if moved {
		monitoring.SetExplorerChainLength(uint32(db.watermark))
	}
}

// RefSource resolves stored hashes into refs.
type RefSource interface {
	GetRef(ctx context.Context, hash block.HeaderHash) (*blockchain.Ref, error)
}

// LengthIndex lists the stored blocks at a chain length.
type LengthIndex interface {
	HashesAtLength(length block.ChainLength) ([]block.HeaderHash, error)
}

// Rehydrate indexes every stored block from chain length 1 up to tip, so a
// restarted node answers for blocks accepted before the restart. It returns
// how many blocks were indexed.
func (db *DB) Rehydrate(ctx context.Context, refs RefSource, lengths LengthIndex, tip block.ChainLength) (int, error) {
	count := 0
	for length := block.ChainLength(1); length <= tip; length++ {
		hashes, err := lengths.HashesAtLength(length)
		if err != nil {
			return count, fmt.Errorf("listing chain length %d: %w", length, err)
		}
		for _, hash := range hashes {
			ref, err := refs.GetRef(ctx, hash)
			if err != nil {
				return count, fmt.Errorf("rebuilding %s: %w", hash, err)
			}
			if ref == nil {
				continue
			}
			if err := db.Index(ctx, ref); err != nil {
				return count, err
			}
			count++
		}
	}
	return count, nil
}

// FindBlocksByChainLength returns every indexed ref at length, ordered by
// hash.
func (db *DB) FindBlocksByChainLength(length block.ChainLength) []*blockchain.Ref {
	out := db.multiverse.AtLength(length)
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Hash(), out[j].Hash()
		return bytes.Compare(a[:], b[:]) < 0
	})
	return out
}

func (db *DB) FindBlockByTransaction(id block.FragmentID) (*blockchain.Ref, bool) {
	db.txMu.RLock()
	defer db.txMu.RUnlock()
	ref, ok := db.transactions[id]
	return ref, ok
}

func (db *DB) GetRef(hash block.HeaderHash) (*blockchain.Ref, bool) {
	return db.multiverse.Get(hash)
}

// LastIndexedChainLength is the highest chain length such that every block
// seen at it and below was fully indexed. Readers compare it to the tip to
// detect a lagging index.
func (db *DB) LastIndexedChainLength() block.ChainLength {
	db.watermarkMu.RLock()
	defer db.watermarkMu.RUnlock()
	return db.watermark
}
