package store

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
	"github.com/mezonai/mvnode/block"
	"github.com/mezonai/mvnode/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemStore(t *testing.T) *GenericBlockStore {
	t.Helper()
	s, err := CreateStore(&StoreConfig{Type: MemoryStoreType})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s.(*GenericBlockStore)
}

func testBlocks() (*block.Block, *block.Block, *block.Block) {
	mint := block.NewFragment("", "recipient", uint256.NewInt(10), 0)
	b0 := block.Genesis(block.BlockDate{}, []*block.Fragment{mint})
	b1 := block.AssembleBlock(&b0.Header, block.BlockDate{Slot: 1}, "leader-a", nil)
	b1bis := block.AssembleBlock(&b0.Header, block.BlockDate{Slot: 2}, "leader-b", nil)
	return b0, b1, b1bis
}

func TestPutAndGetBlock(t *testing.T) {
	s := newMemStore(t)
	b0, b1, _ := testBlocks()

	ok, err := s.Has(b0.Hash())
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.GetBlock(b0.Hash())
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.PutBlock(b0))
	require.NoError(t, s.PutBlock(b1))
	require.NoError(t, s.PutBlock(b1), "storing twice is a no-op")

	got, err := s.GetBlock(b0.Hash())
	require.NoError(t, err)
	assert.Equal(t, b0.Hash(), got.Hash())
	require.Len(t, got.Contents, 1)
	assert.Equal(t, uint64(10), got.Contents[0].Amount.Uint64())

	hdr, err := s.GetHeader(b1.Hash())
	require.NoError(t, err)
	assert.Equal(t, b1.Header, *hdr)
}

func TestHashesAtLength(t *testing.T) {
	s := newMemStore(t)
	b0, b1, b1bis := testBlocks()
	for _, b := range []*block.Block{b0, b1, b1bis} {
		require.NoError(t, s.PutBlock(b))
	}

	hashes, err := s.HashesAtLength(1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []block.HeaderHash{b1.Hash(), b1bis.Hash()}, hashes)

	hashes, err = s.HashesAtLength(7)
	require.NoError(t, err)
	assert.Empty(t, hashes)
}

func TestMeta(t *testing.T) {
	s := newMemStore(t)
	b0, b1, _ := testBlocks()

	_, err := s.GetTip()
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, s.PutBlock0(b0.Hash()))
	require.NoError(t, s.PutTip(b1.Hash()))

	tip, err := s.GetTip()
	require.NoError(t, err)
	assert.Equal(t, b1.Hash(), tip)
	h0, err := s.GetBlock0()
	require.NoError(t, err)
	assert.Equal(t, b0.Hash(), h0)
}

type failingBatch struct{ db.DatabaseBatch }

func (failingBatch) Write() error { return errors.New("disk full") }

type failingProvider struct{ db.IterableProvider }

func (p failingProvider) Batch() db.DatabaseBatch {
	return failingBatch{p.IterableProvider.Batch()}
}

func TestPutBlockIsAllOrNothing(t *testing.T) {
	mem, err := db.NewMemLevelDBProvider()
	require.NoError(t, err)
	s, err := NewGenericBlockStore(failingProvider{mem})
	require.NoError(t, err)
	defer s.Close()

	b0, _, _ := testBlocks()
	require.Error(t, s.PutBlock(b0))

	ok, err := s.Has(b0.Hash())
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = s.GetHeader(b0.Hash())
	assert.ErrorIs(t, err, ErrNotFound)
	hashes, err := s.HashesAtLength(0)
	require.NoError(t, err)
	assert.Empty(t, hashes)
}

func TestStoreConfigValidate(t *testing.T) {
	assert.Error(t, (&StoreConfig{}).Validate())
	assert.Error(t, (&StoreConfig{Type: LevelDBStoreType}).Validate())
	assert.Error(t, (&StoreConfig{Type: "rocksdb", Directory: "x"}).Validate())
	assert.NoError(t, (&StoreConfig{Type: BoltStoreType, Directory: "x"}).Validate())
	assert.NoError(t, (&StoreConfig{Type: MemoryStoreType}).Validate())
}
