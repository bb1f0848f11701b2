package segmap

import (
	"math/bits"
)

// Returns the next power of 2 for the given value `v`.
// Zero and one both round to 1.
func NextPowerOf2(v uint64) uint64 {
	if v <= 1 {
		return 1
	}

	return uint64(1) << min(bits.Len64(v-1), 63)
}

// log2 of a power of two.
func log2(v uint64) uint {
	return uint(bits.TrailingZeros64(v))
}
