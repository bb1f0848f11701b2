package segmap

import (
	"hash/maphash"
	"unsafe"

	"github.com/cespare/xxhash/v2"
	"github.com/spaolacci/murmur3"
	"github.com/zeebo/xxh3"
)

// HashFunc computes a 64-bit digest of a key. A map shares one HashFunc across
// all of its segments, so it must be safe for concurrent use and must not
// change its output for a given key during the lifetime of the map.
//
// Segment routing uses the high bits of the digest, while the segment tables
// use the low bits, so functions should spread entropy over all 64 bits.
type HashFunc[K comparable] func(K) uint64

// MakeDefaultHashFunc returns a maphash-based HashFunc for any comparable key.
func MakeDefaultHashFunc[K comparable](seed maphash.Seed) HashFunc[K] {
	return func(k K) uint64 {
		return maphash.Comparable(seed, k)
	}
}

// XXHashFunc hashes string keys with XXH64.
func XXHashFunc[K ~string]() HashFunc[K] {
	return func(k K) uint64 {
		return xxhash.Sum64String(string(k))
	}
}

// XXH3HashFunc hashes string keys with XXH3-64.
func XXH3HashFunc[K ~string]() HashFunc[K] {
	return func(k K) uint64 {
		return xxh3.HashString(string(k))
	}
}

// Murmur3HashFunc hashes string keys with the 64-bit half of MurmurHash3 x64_128.
func Murmur3HashFunc[K ~string](seed uint32) HashFunc[K] {
	return func(k K) uint64 {
		s := string(k)
		return murmur3.Sum64WithSeed(unsafe.Slice(unsafe.StringData(s), len(s)), seed)
	}
}

// HashSplit splits a digest into the group selector (h1) and the 7-bit
// control byte fingerprint (h2).
func HashSplit(hash uint64) (uintptr, uint8) {
	h1 := uintptr(hash >> 7)
	h2 := uint8(hash & 0x7F)

	return h1, h2
}
