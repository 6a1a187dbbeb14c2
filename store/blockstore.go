package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/mezonai/mvnode/block"
	"github.com/mezonai/mvnode/db"
	"github.com/mezonai/mvnode/jsonx"
	"github.com/mezonai/mvnode/logx"
)

var ErrNotFound = errors.New("not found in storage")

// BlockStore is the durable side of the blockchain: blocks by hash plus the
// indexes needed to rebuild in-memory state after a restart.
type BlockStore interface {
	Has(hash block.HeaderHash) (bool, error)
	GetBlock(hash block.HeaderHash) (*block.Block, error)
	GetHeader(hash block.HeaderHash) (*block.Header, error)
	PutBlock(b *block.Block) error
	PutTip(hash block.HeaderHash) error
	GetTip() (block.HeaderHash, error)
	PutBlock0(hash block.HeaderHash) error
	GetBlock0() (block.HeaderHash, error)
	HashesAtLength(length block.ChainLength) ([]block.HeaderHash, error)
	Close() error
}

// GenericBlockStore is a database-agnostic implementation that uses DatabaseProvider
// This allows it to work with any database backend (LevelDB, bolt, Redis)
type GenericBlockStore struct {
	provider db.IterableProvider
	txm      *db.DBTxManager
	mu       sync.RWMutex
}

// NewGenericBlockStore creates a new generic block store with the given provider
func NewGenericBlockStore(provider db.IterableProvider) (*GenericBlockStore, error) {
	if provider == nil {
		return nil, fmt.Errorf("provider cannot be nil")
	}
	return &GenericBlockStore{
		provider: provider,
		txm:      db.NewDBTxManager(provider),
	}, nil
}

func hashKey(prefix string, hash block.HeaderHash) []byte {
	key := make([]byte, 0, len(prefix)+len(hash))
	key = append(key, prefix...)
	return append(key, hash[:]...)
}

func lengthPrefix(length block.ChainLength) []byte {
	key := make([]byte, 0, len(PrefixChainLength)+4)
	key = append(key, PrefixChainLength...)
	return binary.BigEndian.AppendUint32(key, uint32(length))
}

func lengthKey(length block.ChainLength, hash block.HeaderHash) []byte {
	return append(lengthPrefix(length), hash[:]...)
}

func metaKey(name string) []byte {
	return []byte(PrefixBlockMeta + name)
}

func (s *GenericBlockStore) Has(hash block.HeaderHash) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.provider.Has(hashKey(PrefixBlock, hash))
}

func (s *GenericBlockStore) GetBlock(hash block.HeaderHash) (*block.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, err := s.provider.Get(hashKey(PrefixBlock, hash))
	if err != nil {
		return nil, fmt.Errorf("failed to get block %s: %w", hash, err)
	}
	if value == nil {
		return nil, fmt.Errorf("block %s: %w", hash, ErrNotFound)
	}

	var blk block.Block
	if err := jsonx.Unmarshal(value, &blk); err != nil {
		return nil, fmt.Errorf("failed to unmarshal block %s: %w", hash, err)
	}
	return &blk, nil
}

// GetHeader avoids decoding the block contents.
func (s *GenericBlockStore) GetHeader(hash block.HeaderHash) (*block.Header, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, err := s.provider.Get(hashKey(PrefixHeader, hash))
	if err != nil {
		return nil, fmt.Errorf("failed to get header %s: %w", hash, err)
	}
	if value == nil {
		return nil, fmt.Errorf("header %s: %w", hash, ErrNotFound)
	}

	var hdr block.Header
	if err := jsonx.Unmarshal(value, &hdr); err != nil {
		return nil, fmt.Errorf("failed to unmarshal header %s: %w", hash, err)
	}
	return &hdr, nil
}

// PutBlock writes the block, its header and both indexes in one batch.
// Storing a block that is already present is a no-op.
func (s *GenericBlockStore) PutBlock(b *block.Block) error {
	if b == nil {
		return fmt.Errorf("block cannot be nil")
	}
	hash := b.Hash()

	blockValue, err := jsonx.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to marshal block: %w", err)
	}
	headerValue, err := jsonx.Marshal(&b.Header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.provider.Has(hashKey(PrefixBlock, hash))
	if err != nil {
		return fmt.Errorf("failed to check block existence: %w", err)
	}
	if exists {
		logx.Debug("BLOCKSTORE", "Block ", hash, " already stored")
		return nil
	}

	err = s.txm.WithBatch(func(batch db.DatabaseBatch) error {
		batch.Put(hashKey(PrefixBlock, hash), blockValue)
		batch.Put(hashKey(PrefixHeader, hash), headerValue)
		batch.Put(lengthKey(b.ChainLength(), hash), []byte{})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store block %s: %w", hash, err)
	}

	logx.Debug("BLOCKSTORE", fmt.Sprintf("Stored block %s at length %d with %d fragments", hash, b.ChainLength(), len(b.Contents)))
	return nil
}

func (s *GenericBlockStore) putMeta(name string, hash block.HeaderHash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.provider.Put(metaKey(name), hash[:]); err != nil {
		return fmt.Errorf("failed to store %s: %w", name, err)
	}
	return nil
}

func (s *GenericBlockStore) getMeta(name string) (block.HeaderHash, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, err := s.provider.Get(metaKey(name))
	if err != nil {
		return block.ZeroHash, fmt.Errorf("failed to get %s: %w", name, err)
	}
	if value == nil {
		return block.ZeroHash, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	if len(value) != len(block.HeaderHash{}) {
		return block.ZeroHash, fmt.Errorf("invalid %s value length: %d", name, len(value))
	}
	var hash block.HeaderHash
	copy(hash[:], value)
	return hash, nil
}

func (s *GenericBlockStore) PutTip(hash block.HeaderHash) error {
	return s.putMeta(BlockMetaKeyTip, hash)
}

func (s *GenericBlockStore) GetTip() (block.HeaderHash, error) {
	return s.getMeta(BlockMetaKeyTip)
}

func (s *GenericBlockStore) PutBlock0(hash block.HeaderHash) error {
	return s.putMeta(BlockMetaKeyBlock0, hash)
}

func (s *GenericBlockStore) GetBlock0() (block.HeaderHash, error) {
	return s.getMeta(BlockMetaKeyBlock0)
}

// HashesAtLength lists every stored block of the given chain length, sorted.
func (s *GenericBlockStore) HashesAtLength(length block.ChainLength) ([]block.HeaderHash, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefix := lengthPrefix(length)
	var hashes []block.HeaderHash
	err := s.provider.IteratePrefix(prefix, func(key, _ []byte) bool {
		var hash block.HeaderHash
		if len(key) != len(prefix)+len(hash) {
			return true
		}
		copy(hash[:], key[len(prefix):])
		hashes = append(hashes, hash)
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate length %d: %w", length, err)
	}
	// some providers do not iterate in key order
	sort.Slice(hashes, func(i, j int) bool {
		return string(hashes[i][:]) < string(hashes[j][:])
	})
	return hashes, nil
}

func (s *GenericBlockStore) Close() error {
	return s.provider.Close()
}
