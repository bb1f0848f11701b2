package segmap

import (
	"unsafe"
)

// table is a single-threaded swiss table. Every operation takes the digest
// already computed by the owning map, the stored hashFunc is only used to
// relocate entries when the table grows or compacts.
//
// Unlike a fixed-size swiss table, table never refuses an insert: once live
// entries plus tombstones reach 7/8 of the slots it either compacts in place
// (mostly tombstones) or doubles its capacity.
type table[K comparable, V any] struct {
	groups []group[K, V]

	capacity          uintptr
	numGroupsMask     uintptr
	capacityEffective uintptr
	size              uintptr
	tombstones        uintptr

	grows       uint64
	compactions uint64

	hashFunc HashFunc[K]
}

func (t *table[K, V]) init(capacity int, hashFunc HashFunc[K]) {
	t.hashFunc = hashFunc
	t.alloc(uintptr(NextPowerOf2(uint64(max(capacity, groupSize)))))
}

// alloc replaces the groups with an empty array of the given capacity.
// capacity must be a power of two of at least groupSize.
func (t *table[K, V]) alloc(capacity uintptr) {
	// Number of groups required
	numGroups := capacity / groupSize

	t.groups = make([]group[K, V], numGroups)
	t.capacity = capacity
	t.numGroupsMask = numGroups - 1
	t.capacityEffective = capacity * 7 / 8

	t.Reset()
}

func (t *table[K, V]) EffectiveCapacity() int {
	return int(t.capacityEffective)
}

func (t *table[K, V]) Len() int {
	return int(t.size)
}

// lookup returns the group and slot index holding key.
func (t *table[K, V]) lookup(key K, hash uint64) (*group[K, V], uintptr, bool) {
	h1, h2 := HashSplit(hash)
	mask := t.numGroupsMask
	start := (h1 / groupSize) & mask

	for p, offset := uintptr(0), start; p <= mask; p++ {
		g := &t.groups[offset]
		ctrl := g.ctrlWord()

		// SIMD-like match
		matches := matchH2(ctrl, h2)
		for matches != 0 {
			idx := matches.first()
			if g.slots[idx] == key {
				return g, idx, true
			}

			matches = matches.removeFirst()
		}

		// Termination
		if matchEmpty(ctrl) != 0 {
			return nil, 0, false
		}

		// Quadratic probe math
		offset = (start + (p+1)*(p+2)/2) & mask
	}

	return nil, 0, false
}

// find returns a pointer to the value stored for key, or nil.
// The pointer stays valid until the next insert into the table.
func (t *table[K, V]) find(key K, hash uint64) *V {
	g, idx, ok := t.lookup(key, hash)
	if !ok {
		return nil
	}

	return &g.values[idx]
}

func (t *table[K, V]) has(key K, hash uint64) bool {
	_, _, ok := t.lookup(key, hash)
	return ok
}

// insert stores value under key, returning the previous value if the key was
// already present.
func (t *table[K, V]) insert(key K, hash uint64, value V) (V, bool) {
	if g, idx, ok := t.lookup(key, hash); ok {
		old := g.values[idx]
		g.values[idx] = value

		return old, true
	}

	t.insertNew(key, hash, value)

	var zero V
	return zero, false
}

// upsert calls updateValue on the stored value if key is present, otherwise
// stores the result of makeValue. Each callback runs at most once.
func (t *table[K, V]) upsert(key K, hash uint64, makeValue func() V, updateValue func(*V)) {
	if g, idx, ok := t.lookup(key, hash); ok {
		updateValue(&g.values[idx])
		return
	}

	t.insertNew(key, hash, makeValue())
}

// insertNew stores a key known to be absent.
func (t *table[K, V]) insertNew(key K, hash uint64, value V) *V {
	// We reached the 87.5% of the capacity, table needs rehashing.
	if t.size+t.tombstones >= t.capacityEffective {
		t.rehash()
	}

	return t.place(key, hash, value)
}

// place puts key into the first empty or deleted slot along its probe
// sequence. The caller guarantees the key is absent and a free slot exists.
func (t *table[K, V]) place(key K, hash uint64, value V) *V {
	h1, h2 := HashSplit(hash)
	mask := t.numGroupsMask
	start := (h1 / groupSize) & mask

	for p, offset := uintptr(0), start; p <= mask; p++ {
		g := &t.groups[offset]

		if m := matchEmptyOrDeleted(g.ctrlWord()); m != 0 {
			idx := m.first()
			if g.ctrls[idx] == slotDeleted {
				t.tombstones--
			}

			g.ctrls[idx] = h2
			g.slots[idx] = key
			g.values[idx] = value
			t.size++

			return &g.values[idx]
		}

		offset = (start + (p+1)*(p+2)/2) & mask
	}

	panic("segmap: no free slot after rehash")
}

func (t *table[K, V]) remove(key K, hash uint64) (V, bool) {
	g, idx, ok := t.lookup(key, hash)
	if !ok {
		var zero V
		return zero, false
	}

	old := g.values[idx]

	// A group that still has an empty slot terminates every probe that
	// reaches it, so the slot can go straight back to empty.
	if matchEmpty(g.ctrlWord()) != 0 {
		g.ctrls[idx] = slotEmpty
	} else {
		// Mark as Deleted (0xFE) to preserve the probe chain
		g.ctrls[idx] = slotDeleted
		t.tombstones++
	}

	g.clearSlot(idx)
	t.size--

	return old, true
}

func (t *table[K, V]) rehash() {
	if t.size < t.capacityEffective/2 {
		t.Compact()
		return
	}

	t.resize(t.capacity * 2)
}

func (t *table[K, V]) resize(capacity uintptr) {
	old := t.groups
	t.alloc(capacity)

	for i := range old {
		g := &old[i]

		for full := matchFull(g.ctrlWord()); full != 0; full = full.removeFirst() {
			idx := full.first()
			key := g.slots[idx]

			t.place(key, t.hashFunc(key), g.values[idx])
		}
	}

	t.grows++
}

func (t *table[K, V]) Reset() {
	clear(t.groups)

	for i := range t.groups {
		t.groups[i].ctrls = emptyCtrls
	}

	t.size = 0
	t.tombstones = 0
}

// Compact drops all tombstones in place, without allocating.
func (t *table[K, V]) Compact() {
	// We want to drop all of the deletes in place. We first walk over the
	// control bytes and mark every DELETED slot as EMPTY and every FULL slot
	// as DELETED. Marking the DELETED slots as EMPTY has effectively dropped
	// the tombstones, but we fouled up the probe invariant. Marking the FULL
	// slots as DELETED gives us a marker to locate the previously FULL slots.
	for i := range t.groups {
		g := &t.groups[i]
		*(*uint64)(unsafe.Pointer(&g.ctrls)) = invertCtrls(g.ctrlWord())
	}

	for idx := range t.groups {
		g := &t.groups[idx]
		for j := uintptr(0); j < groupSize; j++ {
			// Only process slots we marked as Deleted (which were originally Full)
			if g.ctrls[j] != slotDeleted {
				continue
			}

			var (
				key    = g.slots[j]
				h1, h2 = HashSplit(t.hashFunc(key))
				start  = (h1 / groupSize) & t.numGroupsMask

				targetGroup *group[K, V]
				targetSlot  uintptr
			)

			for p, offset := uintptr(0), start; ; p++ {
				tg := &t.groups[offset]
				if m := matchEmptyOrDeleted(tg.ctrlWord()); m != 0 {
					targetGroup = tg
					targetSlot = m.first()
					break
				}

				offset = (start + (p+1)*(p+2)/2) & t.numGroupsMask
			}

			switch {
			case targetGroup == g && targetSlot == j:
				// Already in the first free position of its probe sequence.
				g.ctrls[j] = h2
			case targetGroup.ctrls[targetSlot] == slotEmpty:
				targetGroup.ctrls[targetSlot] = h2
				targetGroup.slots[targetSlot] = key
				targetGroup.values[targetSlot] = g.values[j]
				g.ctrls[j] = slotEmpty
				g.clearSlot(j)
			default:
				// SWAP: target slot is a not yet processed entry
				targetGroup.ctrls[targetSlot] = h2

				g.slots[j], targetGroup.slots[targetSlot] = targetGroup.slots[targetSlot], g.slots[j]
				g.values[j], targetGroup.values[targetSlot] = targetGroup.values[targetSlot], g.values[j]

				// Repeat for swapped key
				j--
			}
		}
	}

	t.tombstones = 0
	t.compactions++
}

// all yields every entry in group order, then slot order.
// Returns false if yield stopped the walk.
func (t *table[K, V]) all(yield func(K, V) bool) bool {
	for i := range t.groups {
		g := &t.groups[i]

		for full := matchFull(g.ctrlWord()); full != 0; full = full.removeFirst() {
			idx := full.first()
			if !yield(g.slots[idx], g.values[idx]) {
				return false
			}
		}
	}

	return true
}

func (t *table[K, V]) stats() SegmentStats {
	return SegmentStats{
		Size:              int(t.size),
		Tombstones:        int(t.tombstones),
		Capacity:          int(t.capacity),
		EffectiveCapacity: int(t.capacityEffective),
		Grows:             t.grows,
		Compactions:       t.compactions,
	}
}
