package segmap

import (
	"iter"
)

// Map is a concurrent hash map split into a fixed, power-of-two number of
// segments. Each segment is a swiss table guarded by its own sync.RWMutex,
// and a key always lives in the segment selected by the high bits of its
// digest. Every operation locks exactly one segment, so operations on keys in
// different segments never wait on each other, while reads within a segment
// proceed in parallel and writes exclude everything else on that segment.
//
// The number of segments never changes after construction, the segment tables
// themselves grow as needed.
//
// Callbacks passed to InsertOrUpdate, View, Modify and Range run while a
// segment lock is held. They must not access the same map for a key routed to
// the same segment, or the calling goroutine deadlocks. Likewise a goroutine
// holding a guard must release it before touching that segment again.
type Map[K comparable, V any] struct {
	segments []*segment[K, V]
	shift    uint
	mask     uint64

	hashFunc HashFunc[K]
}

// New returns a map with DefaultCapacity and DefaultConcurrencyLevel unless
// overridden by opts.
func New[K comparable, V any](opts ...Option[K]) *Map[K, V] {
	cfg := defaultConfig[K]()
	cfg.apply(opts...)

	return newMap[K, V](cfg)
}

// NewWithOptions returns a map pre-sized for capacity entries, split into
// concurrencyLevel segments rounded up to a power of two. A nil hashFunc
// selects the default maphash-based one. Degenerate values are accepted and
// yield at least one segment.
func NewWithOptions[K comparable, V any](capacity int, hashFunc HashFunc[K], concurrencyLevel int) *Map[K, V] {
	return New[K, V](
		WithCapacity[K](capacity),
		WithHashFunc(hashFunc),
		WithConcurrencyLevel[K](concurrencyLevel),
	)
}

func newMap[K comparable, V any](cfg config[K]) *Map[K, V] {
	numSegments := NextPowerOf2(uint64(max(cfg.concurrencyLevel, 1)))
	segmentCapacity := int(NextPowerOf2(uint64(max(cfg.capacity, 0)) / numSegments))

	m := &Map[K, V]{
		segments: make([]*segment[K, V], numSegments),
		shift:    64 - log2(numSegments),
		mask:     numSegments - 1,
		hashFunc: cfg.hashFunc,
	}

	for i := range m.segments {
		m.segments[i] = newSegment[K, V](i, segmentCapacity, cfg.hashFunc, cfg.logger)
	}

	cfg.logger.Debug("segmap created",
		"segments", numSegments,
		"segment_capacity", m.segments[0].table.capacity,
	)

	return m
}

// segmentIndex routes a digest by its top log2(N) bits. With a single
// segment the shift is 64, which Go defines as 0.
func (m *Map[K, V]) segmentIndex(hash uint64) int {
	return int((hash >> m.shift) & m.mask)
}

func (m *Map[K, V]) segmentFor(key K) (*segment[K, V], uint64) {
	hash := m.hashFunc(key)
	return m.segments[m.segmentIndex(hash)], hash
}

// Insert stores value under key and returns the previous value, if any.
func (m *Map[K, V]) Insert(key K, value V) (V, bool) {
	s, hash := m.segmentFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.insertLocked(key, hash, value)
}

func (m *Map[K, V]) Contains(key K) bool {
	s, hash := m.segmentFor(key)

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.has(key, hash)
}

// Remove deletes key and returns the value it held, if any.
func (m *Map[K, V]) Remove(key K) (V, bool) {
	s, hash := m.segmentFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.remove(key, hash)
}

// Get returns a guard holding the segment's read lock and pointing at the
// value for key. The lock is held until the guard is released; on a miss no
// lock is retained.
func (m *Map[K, V]) Get(key K) (*ReadGuard[K, V], bool) {
	s, hash := m.segmentFor(key)

	s.mu.RLock()
	p := s.find(key, hash)
	if p == nil {
		s.mu.RUnlock()
		return nil, false
	}

	return &ReadGuard[K, V]{seg: s, key: key, value: p}, true
}

// GetMut is like Get but holds the segment's write lock, allowing the value
// to be modified in place through the guard.
func (m *Map[K, V]) GetMut(key K) (*WriteGuard[K, V], bool) {
	s, hash := m.segmentFor(key)

	s.mu.Lock()
	p := s.find(key, hash)
	if p == nil {
		s.mu.Unlock()
		return nil, false
	}

	return &WriteGuard[K, V]{seg: s, key: key, value: p}, true
}

// InsertOrUpdate stores makeValue() if key is absent, otherwise calls
// updateValue on the stored value in place. The presence check and the
// mutation happen under a single write lock, so concurrent calls for the same
// key never lose an update.
func (m *Map[K, V]) InsertOrUpdate(key K, makeValue func() V, updateValue func(*V)) {
	s, hash := m.segmentFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.upsertLocked(key, hash, makeValue, updateValue)
}

// View calls fn with the value for key under the segment's read lock.
// Reports whether the key was present.
func (m *Map[K, V]) View(key K, fn func(V)) bool {
	g, ok := m.Get(key)
	if !ok {
		return false
	}
	defer g.Release()

	fn(*g.value)

	return true
}

// Modify calls fn with a pointer to the value for key under the segment's
// write lock. The pointer must not be retained after fn returns.
// Reports whether the key was present.
func (m *Map[K, V]) Modify(key K, fn func(*V)) bool {
	g, ok := m.GetMut(key)
	if !ok {
		return false
	}
	defer g.Release()

	fn(g.value)

	return true
}

// Len sums the segment sizes. Segments are visited one at a time, so the
// result is approximate under concurrent writes.
func (m *Map[K, V]) Len() int {
	n := 0
	for _, s := range m.segments {
		s.mu.RLock()
		n += s.Len()
		s.mu.RUnlock()
	}

	return n
}

// Range calls fn for each entry, segment by segment, holding each segment's
// read lock while its entries are visited. It stops when fn returns false.
// Range does not observe a consistent snapshot across segments.
func (m *Map[K, V]) Range(fn func(K, V) bool) {
	for _, s := range m.segments {
		if !s.rangeLocked(fn) {
			return
		}
	}
}

// All is Range as an iterator.
func (m *Map[K, V]) All() iter.Seq2[K, V] {
	return m.Range
}

// Clear removes all entries, one segment at a time. Segment tables keep
// their current capacity.
func (m *Map[K, V]) Clear() {
	for _, s := range m.segments {
		s.mu.Lock()
		s.Reset()
		s.mu.Unlock()
	}
}

func (m *Map[K, V]) SegmentCount() int {
	return len(m.segments)
}

func (m *Map[K, V]) Stats() Stats {
	st := Stats{
		Segments: make([]SegmentStats, len(m.segments)),
	}

	for i, s := range m.segments {
		ss := s.snapshotStats()

		st.Segments[i] = ss
		st.Size += ss.Size
		st.Tombstones += ss.Tombstones
		st.Capacity += ss.Capacity
	}

	return st
}
