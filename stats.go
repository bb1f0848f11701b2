package segmap

// SegmentStats describes a single segment table.
type SegmentStats struct {
	Index             int
	Size              int
	Tombstones        int
	Capacity          int
	EffectiveCapacity int

	// Number of times the table doubled or compacted in place.
	Grows       uint64
	Compactions uint64
}

// Stats aggregates SegmentStats across a map. Segments are read one at a
// time, so the totals are not a consistent snapshot under concurrent writes.
type Stats struct {
	Size       int
	Tombstones int
	Capacity   int
	Segments   []SegmentStats
}

func (s Stats) TombstonesCapacityRatio() float32 {
	if s.Capacity == 0 {
		return 0
	}

	return float32(s.Tombstones) / float32(s.Capacity)
}

func (s Stats) LoadFactor() float32 {
	if s.Capacity == 0 {
		return 0
	}

	return float32(s.Size) / float32(s.Capacity)
}
