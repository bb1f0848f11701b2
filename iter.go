package segmap

import (
	"iter"
)

// Drain takes every entry out of the map and returns an iterator over them.
//
// Segments are detached in index order, each under its write lock for just
// long enough to swap in an empty table of the initial capacity. Draining is
// meant for a caller that owns the map exclusively: with no concurrent
// writers the iterator yields exactly the entries present at the call, each
// once. The map stays usable and empty afterwards.
func (m *Map[K, V]) Drain() *Iterator[K, V] {
	tables := make([]*table[K, V], len(m.segments))
	for i, s := range m.segments {
		tables[i] = s.detach()
	}

	return &Iterator[K, V]{tables: tables}
}

// Iterator walks drained segment tables in segment order and, within a
// segment, in table order. It is single pass and not safe for concurrent use.
type Iterator[K comparable, V any] struct {
	tables []*table[K, V]

	seg     int
	group   int
	pending bitset
	loaded  bool
}

// Next returns the next entry, or false once the iterator is exhausted.
func (it *Iterator[K, V]) Next() (K, V, bool) {
	for it.seg < len(it.tables) {
		t := it.tables[it.seg]

		for it.group < len(t.groups) {
			g := &t.groups[it.group]

			if !it.loaded {
				it.pending = matchFull(g.ctrlWord())
				it.loaded = true
			}

			if it.pending != 0 {
				idx := it.pending.first()
				it.pending = it.pending.removeFirst()

				return g.slots[idx], g.values[idx], true
			}

			it.group++
			it.loaded = false
		}

		// Let the drained table go.
		it.tables[it.seg] = nil
		it.seg++
		it.group = 0
	}

	var (
		k K
		v V
	)

	return k, v, false
}

// All adapts the remaining entries to a range-over-func iterator.
func (it *Iterator[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for {
			k, v, ok := it.Next()
			if !ok || !yield(k, v) {
				return
			}
		}
	}
}
