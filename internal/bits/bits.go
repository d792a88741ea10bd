// Package bits provides helpers to measure the bit widths needed to
// represent integer values.
package bits

import "math/bits"

// ByteCount returns the number of bytes needed to hold bitCount bits.
func ByteCount(bitCount uint64) uint64 {
	return (bitCount + 7) / 8
}

// Len64 returns the minimum number of bits required to represent v, with a
// minimum of 1 so zero-valued data still occupies a bit per value.
func Len64(v uint64) int {
	if v == 0 {
		return 1
	}
	return bits.Len64(v)
}

// MaxLen64 returns the number of bits required to represent the largest
// value of the slice.
func MaxLen64(values []uint64) int {
	max := uint64(0)
	for _, v := range values {
		if v > max {
			max = v
		}
	}
	return Len64(max)
}
