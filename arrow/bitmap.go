package arrow

// Validity bitmaps follow the arrow convention: bit i of byte i/8, LSB
// first, set when the value at index i is valid.

// BitmapSize returns the number of bytes a bitmap of n bits occupies.
func BitmapSize(n int) int {
	return (n + 7) / 8
}

// BitIsSet reports whether bit i is set. A nil bitmap reads as all set.
func BitIsSet(bm []byte, i int) bool {
	return bm == nil || bm[i>>3]&(1<<(i&7)) != 0
}

// SetBit sets bit i.
func SetBit(bm []byte, i int) {
	bm[i>>3] |= 1 << (i & 7)
}

// MakeBitmap converts a boolean slice into a bitmap, returning nil when
// every bit would be set.
func MakeBitmap(valid []bool) []byte {
	all := true
	for _, v := range valid {
		if !v {
			all = false
			break
		}
	}
	if all {
		return nil
	}
	bm := make([]byte, BitmapSize(len(valid)))
	for i, v := range valid {
		if v {
			SetBit(bm, i)
		}
	}
	return bm
}

// CountSetBits returns the number of set bits among the first n bits.
func CountSetBits(bm []byte, n int) int {
	if bm == nil {
		return n
	}
	count := 0
	for i := 0; i < n; i++ {
		if BitIsSet(bm, i) {
			count++
		}
	}
	return count
}

// SliceBitmap copies bits [lo,hi) into a fresh bitmap rebased at zero,
// returning nil when the source is nil.
func SliceBitmap(bm []byte, lo, hi int) []byte {
	if bm == nil {
		return nil
	}
	out := make([]byte, BitmapSize(hi-lo))
	for i := lo; i < hi; i++ {
		if BitIsSet(bm, i) {
			SetBit(out, i-lo)
		}
	}
	return out
}
