package segmap

import "errors"

// ErrGuardReleased is the panic value raised when a guard is used after
// Release.
var ErrGuardReleased = errors.New("segmap: guard already released")

// ReadGuard holds a segment's read lock and gives read access to one value.
// Other readers of the segment proceed, writers wait until Release.
//
// A guard must be released by the goroutine that obtained it, typically with
// defer right after Get. It must not be copied or kept past the scope that
// needs the value.
type ReadGuard[K comparable, V any] struct {
	seg      *segment[K, V]
	key      K
	value    *V
	released bool
}

func (g *ReadGuard[K, V]) Key() K {
	g.check()
	return g.key
}

// Value returns a copy of the guarded value.
func (g *ReadGuard[K, V]) Value() V {
	g.check()
	return *g.value
}

// Release unlocks the segment. Calling it more than once is a no-op.
func (g *ReadGuard[K, V]) Release() {
	if g.released {
		return
	}

	g.released = true
	g.value = nil
	g.seg.mu.RUnlock()
}

func (g *ReadGuard[K, V]) check() {
	if g.released {
		panic(ErrGuardReleased)
	}
}

// GuardEqual reports whether the guarded value equals v.
func GuardEqual[K comparable, V comparable](g *ReadGuard[K, V], v V) bool {
	return g.Value() == v
}

// WriteGuard holds a segment's write lock and gives read/write access to one
// value. Every other operation on the segment waits until Release, after
// which writes made through the guard are visible to them.
type WriteGuard[K comparable, V any] struct {
	seg      *segment[K, V]
	key      K
	value    *V
	released bool
}

func (g *WriteGuard[K, V]) Key() K {
	g.check()
	return g.key
}

func (g *WriteGuard[K, V]) Value() V {
	g.check()
	return *g.value
}

func (g *WriteGuard[K, V]) Set(v V) {
	g.check()
	*g.value = v
}

// Ptr returns a pointer to the stored value. It is only valid until Release,
// the table may move or reuse the slot afterwards.
func (g *WriteGuard[K, V]) Ptr() *V {
	g.check()
	return g.value
}

// Release unlocks the segment. Calling it more than once is a no-op.
func (g *WriteGuard[K, V]) Release() {
	if g.released {
		return
	}

	g.released = true
	g.value = nil
	g.seg.mu.Unlock()
}

func (g *WriteGuard[K, V]) check() {
	if g.released {
		panic(ErrGuardReleased)
	}
}
