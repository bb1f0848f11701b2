// Package segmap provides a segmented concurrent hash map and set.
//
// Keys are routed by the high bits of a 64-bit digest to one of a fixed,
// power-of-two number of segments. Each segment owns a swiss table (8-slot
// groups with one control byte per slot, probed with SWAR matching) behind
// its own sync.RWMutex, so unrelated keys rarely contend and no operation ever
// holds more than one segment lock.
//
// Lookups hand out scoped guards that keep the segment locked while the
// caller reads or mutates the value:
//
//	m := segmap.New[string, int]()
//	m.Insert("hits", 0)
//
//	if g, ok := m.GetMut("hits"); ok {
//	    *g.Ptr()++
//	    g.Release()
//	}
//
// Read-modify-write without a guard goes through InsertOrUpdate, which runs
// the presence check and the mutation under one write lock:
//
//	m.InsertOrUpdate("hits", func() int { return 1 }, func(v *int) { *v++ })
//
// Digests come from a HashFunc shared by all segments. The default uses
// hash/maphash, XXHashFunc, XXH3HashFunc and Murmur3HashFunc are provided for
// string keys.
package segmap
