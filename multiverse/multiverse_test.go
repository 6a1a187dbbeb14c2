package multiverse

import (
	"testing"

	"github.com/mezonai/mvnode/block"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func h(b byte) block.HeaderHash {
	var hash block.HeaderHash
	hash[0] = b
	return hash
}

// chain inserts a linear lineage and returns the roots in order.
func chain(m *Multiverse[string], start block.ChainLength, parent block.HeaderHash, ids ...byte) []*GCRoot {
	roots := make([]*GCRoot, 0, len(ids))
	for i, id := range ids {
		roots = append(roots, m.Insert(start+block.ChainLength(i), h(id), parent, string(rune('a'+id))))
		parent = h(id)
	}
	return roots
}

func TestInsertAndLookup(t *testing.T) {
	m := New[string]()
	m.Insert(0, h(1), block.ZeroHash, "genesis")
	m.Insert(1, h(2), h(1), "left")
	m.Insert(1, h(3), h(1), "right")

	v, ok := m.Get(h(2))
	require.True(t, ok)
	assert.Equal(t, "left", v)

	_, ok = m.GetAt(0, h(2))
	assert.False(t, ok, "lookup at a wrong length is a plain miss")

	v, ok = m.GetAt(1, h(3))
	require.True(t, ok)
	assert.Equal(t, "right", v)

	assert.ElementsMatch(t, []string{"left", "right"}, m.AtLength(1))
	assert.Empty(t, m.AtLength(7))
	assert.Equal(t, 3, m.Len())
}

func TestDuplicateInsertKeepsFirstValue(t *testing.T) {
	m := New[string]()
	r1 := m.Insert(0, h(1), block.ZeroHash, "first")
	r2 := m.Insert(0, h(1), block.ZeroHash, "second")

	v, _ := m.Get(h(1))
	assert.Equal(t, "first", v)

	r1.Release()
	assert.Equal(t, 0, m.GC())
	r2.Release()
	assert.Equal(t, 1, m.GC())
}

func TestGCKeepsRootedLineage(t *testing.T) {
	m := New[string]()
	main := chain(m, 0, block.ZeroHash, 1, 2, 3, 4)
	fork := chain(m, 2, h(2), 10, 11)

	// release everything but the main tip: the whole main lineage is
	// reachable from it, the fork is not
	for _, r := range main[:3] {
		r.Release()
	}
	for _, r := range fork {
		r.Release()
	}

	evicted := m.GC()
	assert.Equal(t, 2, evicted)
	for _, id := range []byte{1, 2, 3, 4} {
		_, ok := m.Get(h(id))
		assert.True(t, ok, "main chain entry %d evicted", id)
	}
	_, ok := m.Get(h(10))
	assert.False(t, ok)
	assert.Len(t, m.AtLength(3), 1)
}

func TestGCKeepsTips(t *testing.T) {
	m := New[string]()
	roots := chain(m, 0, block.ZeroHash, 1, 2, 3)
	for _, r := range roots {
		r.Release()
		r.Release()
	}

	assert.Equal(t, 0, m.GC(h(3)))
	assert.Equal(t, 3, m.Len())

	assert.Equal(t, 1, m.GC(h(2)))
	_, ok := m.Get(h(3))
	assert.False(t, ok)
}

func TestGCRootSafetyAcrossSweeps(t *testing.T) {
	m := New[string]()
	held := chain(m, 0, block.ZeroHash, 1, 2, 3)
	for i := byte(0); i < 5; i++ {
		for _, r := range chain(m, 3, h(3), 20+i) {
			r.Release()
		}
		m.GC()
		for j, r := range held {
			v, ok := m.GetAt(block.ChainLength(j), r.Hash())
			require.True(t, ok)
			require.NotEmpty(t, v)
		}
	}
	assert.Equal(t, 3, m.Len())
}
