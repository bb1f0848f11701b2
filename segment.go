package segmap

import (
	"log/slog"
	"sync"
)

// segment is one independently locked partition of a map. Its table is only
// touched while mu is held.
type segment[K comparable, V any] struct {
	mu sync.RWMutex
	table[K, V]

	index           int
	initialCapacity int
	logger          *slog.Logger
}

func newSegment[K comparable, V any](index, capacity int, hashFunc HashFunc[K], logger *slog.Logger) *segment[K, V] {
	s := &segment[K, V]{
		index:           index,
		initialCapacity: capacity,
		logger:          logger,
	}
	s.init(capacity, hashFunc)

	return s
}

// insertLocked and upsertLocked may rehash the table; both must be called
// with mu held for writing.
func (s *segment[K, V]) insertLocked(key K, hash uint64, value V) (V, bool) {
	grows, compactions := s.grows, s.compactions
	old, ok := s.insert(key, hash, value)
	s.logRehash(grows, compactions)

	return old, ok
}

func (s *segment[K, V]) upsertLocked(key K, hash uint64, makeValue func() V, updateValue func(*V)) {
	grows, compactions := s.grows, s.compactions
	s.upsert(key, hash, makeValue, updateValue)
	s.logRehash(grows, compactions)
}

func (s *segment[K, V]) logRehash(grows, compactions uint64) {
	switch {
	case s.grows != grows:
		s.logger.Debug("segment grew",
			"segment", s.index,
			"capacity", s.table.capacity,
			"size", s.size,
			"tombstones", s.tombstones,
		)
	case s.compactions != compactions:
		s.logger.Debug("segment compacted",
			"segment", s.index,
			"capacity", s.table.capacity,
			"size", s.size,
			"tombstones", s.tombstones,
		)
	}
}

func (s *segment[K, V]) rangeLocked(fn func(K, V) bool) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.all(fn)
}

// detach swaps the segment's table for a fresh one of the initial capacity
// and returns the old one.
func (s *segment[K, V]) detach() *table[K, V] {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.table
	s.table = table[K, V]{}
	s.init(s.initialCapacity, old.hashFunc)

	return &old
}

func (s *segment[K, V]) snapshotStats() SegmentStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := s.stats()
	st.Index = s.index

	return st
}
