// Package bitpack implements bit packing and unpacking routines for
// integers of any width between 1 and 64 bits.
package bitpack

import "fmt"

// ByteCount returns the number of bytes needed to hold count values packed
// at the given bit width.
func ByteCount(width uint, count int) int {
	return int((uint64(width)*uint64(count) + 7) / 8)
}

// Pack appends count values of src packed at the given bit width to dst and
// returns the extended slice. Bits are written LSB first within each byte.
func Pack(dst []byte, width uint, src []uint64) []byte {
	if width == 0 || width > 64 {
		panic(fmt.Sprintf("bitpack: invalid bit width %d", width))
	}
	base := len(dst)
	dst = append(dst, make([]byte, ByteCount(width, len(src)))...)
	bitOffset := uint64(0)
	mask := maskOf(width)

	for _, v := range src {
		v &= mask
		byteIndex := base + int(bitOffset>>3)
		shift := bitOffset & 7

		dst[byteIndex] |= byte(v << shift)
		remaining := int64(width) - int64(8-shift)
		v >>= 8 - shift
		for remaining > 0 {
			byteIndex++
			dst[byteIndex] |= byte(v)
			v >>= 8
			remaining -= 8
		}
		bitOffset += uint64(width)
	}
	return dst
}

// Unpack reads count values packed at the given bit width from src starting
// at the given value offset, appending them to dst.
func Unpack(dst []uint64, src []byte, width uint, offset, count int) ([]uint64, error) {
	if width == 0 || width > 64 {
		return dst, fmt.Errorf("bitpack: invalid bit width %d", width)
	}
	end := uint64(offset+count) * uint64(width)
	if ByteCount(width, offset+count) > len(src) {
		return dst, fmt.Errorf("bitpack: buffer of %d bytes is too short for %d values of %d bits",
			len(src), offset+count, width)
	}
	mask := maskOf(width)

	for bitOffset := uint64(offset) * uint64(width); bitOffset < end; bitOffset += uint64(width) {
		byteIndex := bitOffset >> 3
		shift := bitOffset & 7

		v := uint64(src[byteIndex]) >> shift
		read := 8 - shift
		for read < uint64(width) {
			byteIndex++
			v |= uint64(src[byteIndex]) << read
			read += 8
		}
		dst = append(dst, v&mask)
	}
	return dst, nil
}

func maskOf(width uint) uint64 {
	if width == 64 {
		return ^uint64(0)
	}
	return (uint64(1) << width) - 1
}

// ZigZag maps signed values to unsigned values so that small magnitudes of
// either sign pack into few bits.
func ZigZag(v int64) uint64 {
	return uint64((v << 1) ^ (v >> 63))
}

// UnZigZag is the inverse of ZigZag.
func UnZigZag(u uint64) int64 {
	return int64(u>>1) ^ -int64(u&1)
}
