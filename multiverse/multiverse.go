package multiverse

import (
	"sync"

	"github.com/mezonai/mvnode/block"
)

// Multiverse indexes values (typically block refs) of every known branch by
// chain length and by header hash. Entries stay until a GC sweep finds them
// unreachable from every live GCRoot and every tip passed to the sweep.
type Multiverse[T any] struct {
	mu      sync.RWMutex
	lengths map[block.ChainLength]map[block.HeaderHash]*entry[T]
	entries map[block.HeaderHash]*entry[T]
}

type entry[T any] struct {
	hash   block.HeaderHash
	parent block.HeaderHash
	length block.ChainLength
	value  T
	roots  int
}

func New[T any]() *Multiverse[T] {
	return &Multiverse[T]{
		lengths: make(map[block.ChainLength]map[block.HeaderHash]*entry[T]),
		entries: make(map[block.HeaderHash]*entry[T]),
	}
}

// GCRoot keeps the lineage ending at one entry alive until released.
type GCRoot struct {
	hash    block.HeaderHash
	once    sync.Once
	release func()
}

func (r *GCRoot) Hash() block.HeaderHash {
	return r.hash
}

// Release drops the retention. Calling it more than once is a no-op.
func (r *GCRoot) Release() {
	r.once.Do(r.release)
}

// Insert records value under (length, hash) and returns a root for it.
// Inserting a hash that is already present keeps the stored value and only
// hands out one more root.
func (m *Multiverse[T]) Insert(length block.ChainLength, hash, parent block.HeaderHash, value T) *GCRoot {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, exists := m.entries[hash]
	if !exists {
		e = &entry[T]{hash: hash, parent: parent, length: length, value: value}
		m.entries[hash] = e
		atLength, ok := m.lengths[length]
		if !ok {
			atLength = make(map[block.HeaderHash]*entry[T])
			m.lengths[length] = atLength
		}
		atLength[hash] = e
	}
	e.roots++

	return &GCRoot{hash: hash, release: func() { m.unroot(hash) }}
}

func (m *Multiverse[T]) unroot(hash block.HeaderHash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[hash]; ok && e.roots > 0 {
		e.roots--
	}
}

func (m *Multiverse[T]) Get(hash block.HeaderHash) (T, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[hash]
	if !ok {
		var zero T
		return zero, false
	}
	return e.value, true
}

func (m *Multiverse[T]) GetAt(length block.ChainLength, hash block.HeaderHash) (T, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e, ok := m.lengths[length][hash]; ok {
		return e.value, true
	}
	var zero T
	return zero, false
}

// AtLength returns every value stored at the given chain length, one per
// branch.
func (m *Multiverse[T]) AtLength(length block.ChainLength) []T {
	m.mu.RLock()
	defer m.mu.RUnlock()
	atLength := m.lengths[length]
	out := make([]T, 0, len(atLength))
	for _, e := range atLength {
		out = append(out, e.value)
	}
	return out
}

func (m *Multiverse[T]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// GC sweeps entries that are neither held by a live root, nor listed in
// tips, nor an ancestor of one of those. It returns the number of evicted
// entries.
func (m *Multiverse[T]) GC(tips ...block.HeaderHash) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	marked := make(map[block.HeaderHash]struct{}, len(m.entries))
	mark := func(hash block.HeaderHash) {
		for {
			e, ok := m.entries[hash]
			if !ok {
				return
			}
			if _, seen := marked[hash]; seen {
				return
			}
			marked[hash] = struct{}{}
			hash = e.parent
		}
	}

	for hash, e := range m.entries {
		if e.roots > 0 {
			mark(hash)
		}
	}
	for _, tip := range tips {
		mark(tip)
	}

	evicted := 0
	for hash, e := range m.entries {
		if _, keep := marked[hash]; keep {
			continue
		}
		delete(m.entries, hash)
		if atLength, ok := m.lengths[e.length]; ok {
			delete(atLength, hash)
			if len(atLength) == 0 {
				delete(m.lengths, e.length)
			}
		}
		evicted++
	}
	return evicted
}
