package db

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/mezonai/mvnode/logx"
	"github.com/redis/go-redis/v9"
)

// RedisProvider implements DatabaseProvider for Redis
type RedisProvider struct {
	client *redis.Client
	ctx    context.Context
}

// convertKeyToHumanReadable keeps the textual prefix of a key (up to and
// including the first ':') and hex encodes the binary rest, so keys stay
// readable in redis-cli and a byte prefix maps to a string prefix.
func convertKeyToHumanReadable(key []byte) string {
	keyStr := string(key)
	i := strings.IndexByte(keyStr, ':')
	if i < 0 {
		return hex.EncodeToString(key)
	}
	return keyStr[:i+1] + hex.EncodeToString(key[i+1:])
}

func convertKeyFromHumanReadable(redisKey string) ([]byte, error) {
	i := strings.IndexByte(redisKey, ':')
	rest, err := hex.DecodeString(redisKey[i+1:])
	if err != nil {
		return nil, err
	}
	return append([]byte(redisKey[:i+1]), rest...), nil
}

// NewRedisProvider creates a new Redis provider
func NewRedisProvider(address string, database int) (IterableProvider, error) {
	client := redis.NewClient(&redis.Options{
		Addr: address,
		DB:   database,
	})

	ctx := context.Background()

	// Test connection
	_, err := client.Ping(ctx).Result()
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisProvider{
		client: client,
		ctx:    ctx,
	}, nil
}

// Get retrieves a value by key
func (p *RedisProvider) Get(key []byte) ([]byte, error) {
	redisKey := convertKeyToHumanReadable(key)
	value, err := p.client.Get(p.ctx, redisKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // Return nil for not found, consistent with interface
		}
		return nil, err
	}
	return value, nil
}

// GetBatch uses MGET, absent keys are left out of the result
func (p *RedisProvider) GetBatch(keys [][]byte) (map[string][]byte, error) {
	result := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return result, nil
	}
	redisKeys := make([]string, len(keys))
	for i, k := range keys {
		redisKeys[i] = convertKeyToHumanReadable(k)
	}
	values, err := p.client.MGet(p.ctx, redisKeys...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range values {
		if s, ok := v.(string); ok {
			result[string(keys[i])] = []byte(s)
		}
	}
	return result, nil
}

// Put stores a key-value pair
func (p *RedisProvider) Put(key, value []byte) error {
	redisKey := convertKeyToHumanReadable(key)
	logx.Debug("REDIS", "Put key:", redisKey, " value length:", len(value))
	return p.client.Set(p.ctx, redisKey, value, 0).Err()
}

// Delete removes a key-value pair
func (p *RedisProvider) Delete(key []byte) error {
	redisKey := convertKeyToHumanReadable(key)
	return p.client.Del(p.ctx, redisKey).Err()
}

// Has checks if a key exists
func (p *RedisProvider) Has(key []byte) (bool, error) {
	redisKey := convertKeyToHumanReadable(key)
	count, err := p.client.Exists(p.ctx, redisKey).Result()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Close closes the database connection
func (p *RedisProvider) Close() error {
	return p.client.Close()
}

// Batch returns a MULTI/EXEC pipeline so the batch applies atomically
func (p *RedisProvider) Batch() DatabaseBatch {
	return &RedisBatch{
		client: p.client,
		ctx:    p.ctx,
		pipe:   p.client.TxPipeline(),
	}
}

// IteratePrefix implements IterableProvider for Redis using SCAN
func (p *RedisProvider) IteratePrefix(prefix []byte, fn func(key, value []byte) bool) error {
	pattern := convertKeyToHumanReadable(prefix) + "*"
	var cursor uint64
	for {
		keys, newCursor, err := p.client.Scan(p.ctx, cursor, pattern, 1000).Result()
		if err != nil {
			return err
		}
		cursor = newCursor
		for _, k := range keys {
			val, err := p.client.Get(p.ctx, k).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue
				}
				return err
			}
			raw, err := convertKeyFromHumanReadable(k)
			if err != nil {
				logx.Warn("REDIS", "Skipping foreign key ", k)
				continue
			}
			if !fn(raw, val) {
				return nil
			}
		}
		if cursor == 0 {
			break
		}
	}
	return nil
}

// RedisBatch implements DatabaseBatch for Redis
type RedisBatch struct {
	client *redis.Client
	ctx    context.Context
	pipe   redis.Pipeliner
}

// Put adds a key-value pair to the batch
func (b *RedisBatch) Put(key, value []byte) {
	redisKey := convertKeyToHumanReadable(key)
	b.pipe.Set(b.ctx, redisKey, value, 0)
}

// Delete adds a deletion to the batch
func (b *RedisBatch) Delete(key []byte) {
	redisKey := convertKeyToHumanReadable(key)
	b.pipe.Del(b.ctx, redisKey)
}

// Write commits all operations in the batch
func (b *RedisBatch) Write() error {
	_, err := b.pipe.Exec(b.ctx)
	return err
}

// Reset clears the batch
func (b *RedisBatch) Reset() {
	b.pipe.Discard()
	b.pipe = b.client.TxPipeline()
}

// Close releases batch resources
func (b *RedisBatch) Close() error {
	b.pipe.Discard()
	return nil
}
