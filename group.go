package segmap

import "unsafe"

const (
	groupSize = 8

	slotEmpty   = 0x80
	slotDeleted = 0xFE
)

var emptyCtrls = [groupSize]uint8{
	slotEmpty,
	slotEmpty,
	slotEmpty,
	slotEmpty,

	slotEmpty,
	slotEmpty,
	slotEmpty,
	slotEmpty,
}

type group[K comparable, V any] struct {
	// 8 bytes of metadata (h2 or control states)
	// This fits perfectly in a single uint64 load
	ctrls [groupSize]uint8

	// 8 keys stored immediately after the metadata
	slots [groupSize]K

	// 8 values stored after the keys.
	// Guards hand out pointers into this array, so a group must never be
	// moved while a guard on its segment is alive.
	values [groupSize]V
}

// ctrlWord loads all 8 control bytes as a single word.
//
//go:inline
func (g *group[K, V]) ctrlWord() uint64 {
	return *(*uint64)(unsafe.Pointer(&g.ctrls))
}

// clearSlot zeroes the key and value so the table does not retain references
// to removed entries.
func (g *group[K, V]) clearSlot(idx uintptr) {
	var (
		k K
		v V
	)

	g.slots[idx] = k
	g.values[idx] = v
}
