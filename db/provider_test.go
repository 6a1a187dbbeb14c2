package db

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func providers(t *testing.T) map[string]IterableProvider {
	t.Helper()
	mem, err := NewMemLevelDBProvider()
	require.NoError(t, err)
	bolt, err := NewBoltProvider(filepath.Join(t.TempDir(), "node.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = mem.Close()
		_ = bolt.Close()
	})
	return map[string]IterableProvider{"leveldb": mem, "bolt": bolt}
}

func TestProviderBasics(t *testing.T) {
	for name, p := range providers(t) {
		t.Run(name, func(t *testing.T) {
			v, err := p.Get([]byte("missing"))
			require.NoError(t, err)
			assert.Nil(t, v)

			require.NoError(t, p.Put([]byte("a:1"), []byte("one")))
			ok, err := p.Has([]byte("a:1"))
			require.NoError(t, err)
			assert.True(t, ok)

			got, err := p.GetBatch([][]byte{[]byte("a:1"), []byte("a:2")})
			require.NoError(t, err)
			assert.Equal(t, map[string][]byte{"a:1": []byte("one")}, got)

			require.NoError(t, p.Delete([]byte("a:1")))
			ok, err = p.Has([]byte("a:1"))
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestProviderIteratePrefix(t *testing.T) {
	for name, p := range providers(t) {
		t.Run(name, func(t *testing.T) {
			for _, k := range []string{"x:1", "x:2", "x:3", "y:1"} {
				require.NoError(t, p.Put([]byte(k), []byte(k)))
			}
			var keys []string
			require.NoError(t, p.IteratePrefix([]byte("x:"), func(key, _ []byte) bool {
				keys = append(keys, string(key))
				return true
			}))
			assert.Equal(t, []string{"x:1", "x:2", "x:3"}, keys)

			var first []string
			require.NoError(t, p.IteratePrefix([]byte("x:"), func(key, _ []byte) bool {
				first = append(first, string(key))
				return false
			}))
			assert.Len(t, first, 1)
		})
	}
}

func TestWithBatchIsAtomic(t *testing.T) {
	for name, p := range providers(t) {
		t.Run(name, func(t *testing.T) {
			tm := NewDBTxManager(p)

			err := tm.WithBatch(func(b DatabaseBatch) error {
				b.Put([]byte("k:1"), []byte("v"))
				return errors.New("abort")
			})
			require.Error(t, err)
			ok, err := p.Has([]byte("k:1"))
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, tm.WithBatch(func(b DatabaseBatch) error {
				b.Put([]byte("k:1"), []byte("v1"))
				b.Put([]byte("k:2"), []byte("v2"))
				b.Delete([]byte("k:1"))
				return nil
			}))
			v, err := p.Get([]byte("k:2"))
			require.NoError(t, err)
			assert.Equal(t, []byte("v2"), v)
			v, err = p.Get([]byte("k:1"))
			require.NoError(t, err)
			assert.Nil(t, v)
		})
	}
}

func TestRedisKeyConversion(t *testing.T) {
	key := append([]byte("hdr:"), 0x00, ':', 0xff)
	human := convertKeyToHumanReadable(key)
	assert.Equal(t, "hdr:003aff", human)

	back, err := convertKeyFromHumanReadable(human)
	require.NoError(t, err)
	assert.Equal(t, key, back)

	prefix := append([]byte("len:"), 0x00)
	assert.True(t, strings.HasPrefix(convertKeyToHumanReadable(append(prefix, 0x01)), convertKeyToHumanReadable(prefix)))
}
