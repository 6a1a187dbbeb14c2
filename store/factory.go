package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mezonai/mvnode/db"
)

// StoreType represents the type of store implementation
type StoreType string

const (
	// LevelDBStoreType uses the LevelDB implementation
	LevelDBStoreType StoreType = "leveldb"

	// BoltStoreType keeps everything in a single bbolt file
	BoltStoreType StoreType = "bolt"

	// RedisStoreType uses the Redis implementation
	RedisStoreType StoreType = "redis"

	// MemoryStoreType is LevelDB over in-memory storage, nothing survives a restart
	MemoryStoreType StoreType = "memory"
)

// StoreConfig holds configuration for creating store instances
type StoreConfig struct {
	// Type specifies which store implementation to use
	Type StoreType `json:"type" yaml:"type"`

	// Directory is the database directory path (for file-based databases)
	Directory string `json:"directory" yaml:"directory"`

	RedisAddr string `json:"redis_addr" yaml:"redis_addr"`
	RedisDB   int    `json:"redis_db" yaml:"redis_db"`
}

// Validate validates the store configuration
func (sc *StoreConfig) Validate() error {
	switch sc.Type {
	case LevelDBStoreType, BoltStoreType:
		if sc.Directory == "" {
			return fmt.Errorf("directory cannot be empty for %s store", sc.Type)
		}
	case RedisStoreType:
		if sc.RedisAddr == "" {
			return fmt.Errorf("redis address cannot be empty")
		}
	case MemoryStoreType:
	case "":
		return fmt.Errorf("store type cannot be empty")
	default:
		return fmt.Errorf("unsupported store type: %s", sc.Type)
	}
	return nil
}

// StoreFactory take responsibility to create store instances
type StoreFactory struct{}

// NewStoreFactory creates a new store factory
func NewStoreFactory() *StoreFactory {
	return &StoreFactory{}
}

// CreateBlockStore creates the block store on top of the configured provider
func (sf *StoreFactory) CreateBlockStore(config *StoreConfig) (BlockStore, error) {
	provider, err := sf.CreateProvider(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}

	blkStore, err := NewGenericBlockStore(provider)
	if err != nil {
		_ = provider.Close()
		return nil, fmt.Errorf("failed to create block store: %w", err)
	}
	return blkStore, nil
}

// CreateProvider creates a database provider based on the configuration
func (sf *StoreFactory) CreateProvider(config *StoreConfig) (db.IterableProvider, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	switch config.Type {
	case LevelDBStoreType:
		return db.NewLevelDBProvider(config.Directory)

	case BoltStoreType:
		if err := os.MkdirAll(config.Directory, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		return db.NewBoltProvider(filepath.Join(config.Directory, "blocks.db"))

	case RedisStoreType:
		return db.NewRedisProvider(config.RedisAddr, config.RedisDB)

	case MemoryStoreType:
		return db.NewMemLevelDBProvider()

	default:
		return nil, fmt.Errorf("unsupported store type: %s", config.Type)
	}
}

// Global factory instance
var globalFactory = NewStoreFactory()

// CreateStore creates a block store using the global factory
func CreateStore(config *StoreConfig) (BlockStore, error) {
	return globalFactory.CreateBlockStore(config)
}
