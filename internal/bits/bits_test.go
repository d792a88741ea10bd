package bits

import (
	"math"
	"testing"
)

func TestByteCount(t *testing.T) {
	for bitCount, want := range map[uint64]uint64{
		0: 0, 1: 1, 7: 1, 8: 1, 9: 2, 64: 8, 65: 9,
	} {
		if got := ByteCount(bitCount); got != want {
			t.Fatalf("ByteCount(%d): want %d, got %d", bitCount, want, got)
		}
	}
}

func TestLen64(t *testing.T) {
	for v, want := range map[uint64]int{
		0: 1, 1: 1, 2: 2, 3: 2, 4: 3, 255: 8, 256: 9, math.MaxUint64: 64,
	} {
		if got := Len64(v); got != want {
			t.Fatalf("Len64(%d): want %d, got %d", v, want, got)
		}
	}
}

func TestMaxLen64(t *testing.T) {
	tests := []struct {
		values []uint64
		want   int
	}{
		{nil, 1},
		{[]uint64{0, 0, 0}, 1},
		{[]uint64{1, 200, 3}, 8},
		{[]uint64{math.MaxUint64}, 64},
	}
	for _, tt := range tests {
		if got := MaxLen64(tt.values); got != tt.want {
			t.Fatalf("MaxLen64(%v): want %d, got %d", tt.values, tt.want, got)
		}
	}
}
