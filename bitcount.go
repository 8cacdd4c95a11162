package pstore

import "math/bits"

// popcount64 returns the number of set bits in bitmap. The original
// implementation (support/bit_count.hpp) falls back to a lookup table on
// platforms without a hardware popcount instruction; math/bits.OnesCount64
// already uses the hardware instruction when available on every platform
// this module targets, so that table is not reproduced here.
func popcount64(bitmap uint64) int {
	return bits.OnesCount64(bitmap)
}

// popcountBelow returns the number of set bits in bitmap strictly below
// slot, i.e. popcount(bitmap & ((1<<slot)-1)). This is the child-array
// position function used throughout the HAMT (§3.3).
func popcountBelow(bitmap uint64, slot uint) int {
	if slot == 0 {
		return 0
	}
	mask := uint64(1)<<slot - 1
	return popcount64(bitmap & mask)
}
