package explorer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mezonai/mvnode/block"
	"github.com/mezonai/mvnode/blockchain"
	"github.com/mezonai/mvnode/chaintest"
	"github.com/mezonai/mvnode/intercom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenSource struct{}

func (brokenSource) GetBlock(context.Context, block.HeaderHash) (*block.Block, error) {
	return nil, errors.New("io error")
}

// hidingSource reports the hidden blocks as missing from storage.
type hidingSource struct {
	BlockSource
	hidden map[block.HeaderHash]bool
}

func (s *hidingSource) GetBlock(ctx context.Context, hash block.HeaderHash) (*block.Block, error) {
	if s.hidden[hash] {
		return nil, blockchain.NewError(blockchain.KindBlockNotFound, hash, errors.New("not stored"))
	}
	return s.BlockSource.GetBlock(ctx, hash)
}

func TestIndexBlockAndTransactions(t *testing.T) {
	g := chaintest.NewGenesis(t)
	node := chaintest.NewNode(t, g, blockchain.DefaultOptions())

	tx := g.Alice.Transfer(g.Leader.Address, 5, 1)
	ref := node.Apply(t, g.Next(&g.Block0.Header, 1, tx))

	db := NewDB(node.Blockchain)
	require.NoError(t, db.Index(context.Background(), ref))

	assert.Equal(t, []*blockchain.Ref{ref}, db.FindBlocksByChainLength(1))
	assert.Empty(t, db.FindBlocksByChainLength(2))

	found, ok := db.FindBlockByTransaction(tx.ID())
	require.True(t, ok)
	assert.Equal(t, ref.Hash(), found.Hash())

	got, ok := db.GetRef(ref.Hash())
	require.True(t, ok)
	assert.Same(t, ref, got)
	assert.Equal(t, block.ChainLength(1), db.LastIndexedChainLength())

	// indexing twice does not duplicate the entry
	require.NoError(t, db.Index(context.Background(), ref))
	assert.Len(t, db.FindBlocksByChainLength(1), 1)
}

func TestIndexForksAtSameLength(t *testing.T) {
	g := chaintest.NewGenesis(t)
	node := chaintest.NewNode(t, g, blockchain.DefaultOptions())

	a := node.Apply(t, g.Next(&g.Block0.Header, 1))
	b := node.Apply(t, g.Next(&g.Block0.Header, 2))

	db := NewDB(node.Blockchain)
	require.NoError(t, db.Index(context.Background(), a))
	require.NoError(t, db.Index(context.Background(), b))

	refs := db.FindBlocksByChainLength(1)
	require.Len(t, refs, 2)
	assert.ElementsMatch(t, []block.HeaderHash{a.Hash(), b.Hash()}, []block.HeaderHash{refs[0].Hash(), refs[1].Hash()})
}

func TestIndexMissingBlockKeepsChainLengthEntry(t *testing.T) {
	g := chaintest.NewGenesis(t)
	other := chaintest.NewNode(t, g, blockchain.DefaultOptions())
	empty := chaintest.NewNode(t, g, blockchain.DefaultOptions())

	tx := g.Alice.Transfer(g.Leader.Address, 5, 1)
	ref := other.Apply(t, g.Next(&g.Block0.Header, 1, tx))

	db := NewDB(empty.Blockchain)
	err := db.Index(context.Background(), ref)
	require.ErrorIs(t, err, ErrBlockNotFound)

	assert.Len(t, db.FindBlocksByChainLength(1), 1, "no rollback of the chain length entry")
	_, ok := db.FindBlockByTransaction(tx.ID())
	assert.False(t, ok)
	assert.Equal(t, block.ChainLength(0), db.LastIndexedChainLength())
}

func TestWatermarkWaitsForGaps(t *testing.T) {
	g := chaintest.NewGenesis(t)
	node := chaintest.NewNode(t, g, blockchain.DefaultOptions())
	ctx := context.Background()

	chain := g.Chain(&g.Block0.Header, 2)
	r1 := node.Apply(t, chain[0])
	r2 := node.Apply(t, chain[1])

	src := &hidingSource{BlockSource: node.Blockchain, hidden: map[block.HeaderHash]bool{r1.Hash(): true}}
	db := NewDB(src)

	require.ErrorIs(t, db.Index(ctx, r1), ErrBlockNotFound)
	require.NoError(t, db.Index(ctx, r2))
	assert.Equal(t, block.ChainLength(0), db.LastIndexedChainLength(), "length 1 is not indexed yet")

	delete(src.hidden, r1.Hash())
	require.NoError(t, db.Index(ctx, r1))
	assert.Equal(t, block.ChainLength(2), db.LastIndexedChainLength())
}

func TestWatermarkWaitsForEveryFork(t *testing.T) {
	g := chaintest.NewGenesis(t)
	node := chaintest.NewNode(t, g, blockchain.DefaultOptions())
	ctx := context.Background()

	a := node.Apply(t, g.Next(&g.Block0.Header, 1))
	b := node.Apply(t, g.Next(&g.Block0.Header, 2))

	src := &hidingSource{BlockSource: node.Blockchain, hidden: map[block.HeaderHash]bool{b.Hash(): true}}
	db := NewDB(src)

	require.NoError(t, db.Index(ctx, a))
	assert.Equal(t, block.ChainLength(1), db.LastIndexedChainLength())

	// b was never indexed, a late failure does not move the watermark back
	require.ErrorIs(t, db.Index(ctx, b), ErrBlockNotFound)
	assert.Equal(t, block.ChainLength(1), db.LastIndexedChainLength())

	parent := a.Header()
	c := node.Apply(t, g.Next(&parent, 3))
	require.NoError(t, db.Index(ctx, c))
	assert.Equal(t, block.ChainLength(1), db.LastIndexedChainLength(), "length 1 still has b pending")

	delete(src.hidden, b.Hash())
	require.NoError(t, db.Index(ctx, b))
	assert.Equal(t, block.ChainLength(2), db.LastIndexedChainLength())
}

func TestRehydrateFromStorage(t *testing.T) {
	g := chaintest.NewGenesis(t)
	node := chaintest.NewNode(t, g, blockchain.DefaultOptions())
	ctx := context.Background()

	var tip *blockchain.Ref
	for _, blk := range g.Chain(&g.Block0.Header, 3) {
		tip = node.Apply(t, blk)
	}
	tx := g.Alice.Transfer(g.Leader.Address, 5, 1)
	fork := node.Apply(t, g.Next(&g.Block0.Header, 40, tx))

	db := NewDB(node.Blockchain)
	count, err := db.Rehydrate(ctx, node.Blockchain, node.Store, tip.ChainLength())
	require.NoError(t, err)
	assert.Equal(t, 4, count)
	assert.Len(t, db.FindBlocksByChainLength(1), 2)
	assert.Equal(t, tip.ChainLength(), db.LastIndexedChainLength())

	found, ok := db.FindBlockByTransaction(tx.ID())
	require.True(t, ok)
	assert.Equal(t, fork.Hash(), found.Hash())
}

func TestIndexStorageError(t *testing.T) {
	g := chaintest.NewGenesis(t)
	node := chaintest.NewNode(t, g, blockchain.DefaultOptions())
	ref := node.Apply(t, g.Next(&g.Block0.Header, 1))

	db := NewDB(brokenSource{})
	err := db.Index(context.Background(), ref)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrBlockNotFound)
}

func TestProcessIndexesUntilClosed(t *testing.T) {
	g := chaintest.NewGenesis(t)
	node := chaintest.NewNode(t, g, blockchain.DefaultOptions())

	proc := NewProcess(NewDB(node.Blockchain), time.Second)
	input := make(chan intercom.ExplorerMsg, 8)

	var refs []*blockchain.Ref
	for _, blk := range g.Chain(&g.Block0.Header, 3) {
		ref := node.Apply(t, blk)
		refs = append(refs, ref)
		input <- intercom.ExplorerMsg{NewBlock: ref}
	}
	input <- intercom.ExplorerMsg{}
	close(input)

	require.NoError(t, proc.Run(context.Background(), input))
	for _, ref := range refs {
		_, ok := proc.DB().GetRef(ref.Hash())
		assert.True(t, ok)
	}
	assert.Equal(t, block.ChainLength(3), proc.DB().LastIndexedChainLength())
}

func TestProcessStopsOnCancel(t *testing.T) {
	proc := NewProcess(NewDB(brokenSource{}), time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, proc.Run(ctx, make(chan intercom.ExplorerMsg)))
}
