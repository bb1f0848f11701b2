package segmap

import (
	"iter"
)

// Set is a concurrent set of keys backed by a Map[K, struct{}]. It shares the
// map's segmenting and locking: each operation locks exactly one segment.
type Set[K comparable] struct {
	m *Map[K, struct{}]
}

func NewSet[K comparable](opts ...Option[K]) *Set[K] {
	return &Set[K]{m: New[K, struct{}](opts...)}
}

// NewSetWithOptions mirrors NewWithOptions.
func NewSetWithOptions[K comparable](capacity int, hashFunc HashFunc[K], concurrencyLevel int) *Set[K] {
	return &Set[K]{m: NewWithOptions[K, struct{}](capacity, hashFunc, concurrencyLevel)}
}

// Insert adds key and reports whether it was not already present.
func (s *Set[K]) Insert(key K) bool {
	_, existed := s.m.Insert(key, struct{}{})
	return !existed
}

func (s *Set[K]) Contains(key K) bool {
	return s.m.Contains(key)
}

// Remove deletes key and reports whether it was present.
func (s *Set[K]) Remove(key K) bool {
	_, ok := s.m.Remove(key)
	return ok
}

func (s *Set[K]) Len() int {
	return s.m.Len()
}

func (s *Set[K]) Clear() {
	s.m.Clear()
}

func (s *Set[K]) Range(fn func(K) bool) {
	s.m.Range(func(k K, _ struct{}) bool {
		return fn(k)
	})
}

func (s *Set[K]) All() iter.Seq[K] {
	return s.Range
}

func (s *Set[K]) Stats() Stats {
	return s.m.Stats()
}

// Drain takes every key out of the set, see Map.Drain.
func (s *Set[K]) Drain() *SetIterator[K] {
	return &SetIterator[K]{inner: s.m.Drain()}
}

// SetIterator is the key projection of Iterator.
type SetIterator[K comparable] struct {
	inner *Iterator[K, struct{}]
}

func (it *SetIterator[K]) Next() (K, bool) {
	k, _, ok := it.inner.Next()
	return k, ok
}

func (it *SetIterator[K]) All() iter.Seq[K] {
	return func(yield func(K) bool) {
		for {
			k, ok := it.Next()
			if !ok || !yield(k) {
				return
			}
		}
	}
}
