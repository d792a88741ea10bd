package bitpack

import (
	"math"
	"math/rand"
	"testing"
)

func TestPackUnpack(t *testing.T) {
	prng := rand.New(rand.NewSource(7))
	for width := uint(1); width <= 64; width++ {
		mask := uint64(math.MaxUint64)
		if width < 64 {
			mask = (1 << width) - 1
		}
		src := make([]uint64, 100)
		for i := range src {
			src[i] = prng.Uint64() & mask
		}

		packed := Pack(nil, width, src)
		if len(packed) != ByteCount(width, len(src)) {
			t.Fatalf("width %d: want %d packed bytes, got %d", width, ByteCount(width, len(src)), len(packed))
		}
		out, err := Unpack(nil, packed, width, 0, len(src))
		if err != nil {
			t.Fatal(err)
		}
		for i := range src {
			if out[i] != src[i] {
				t.Fatalf("width %d: value %d: want %d, got %d", width, i, src[i], out[i])
			}
		}
	}
}

// Unpacking from a value offset must see the same values as unpacking from
// the start and discarding the prefix.
func TestUnpackOffset(t *testing.T) {
	src := []uint64{5, 0, 3, 7, 1, 6, 2, 4, 7, 7, 0, 1}
	packed := Pack(nil, 3, src)
	for offset := 0; offset < len(src); offset++ {
		out, err := Unpack(nil, packed, 3, offset, len(src)-offset)
		if err != nil {
			t.Fatal(err)
		}
		for i, v := range out {
			if v != src[offset+i] {
				t.Fatalf("offset %d: value %d: want %d, got %d", offset, i, src[offset+i], v)
			}
		}
	}
}

func TestPackAppends(t *testing.T) {
	dst := []byte{0xaa, 0xbb}
	packed := Pack(dst, 4, []uint64{1, 2})
	if len(packed) != 3 || packed[0] != 0xaa || packed[1] != 0xbb {
		t.Fatalf("Pack must append, got %x", packed)
	}
	out, err := Unpack(nil, packed[2:], 4, 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	if out[0] != 1 || out[1] != 2 {
		t.Fatalf("want [1 2], got %v", out)
	}
}

func TestUnpackShortBuffer(t *testing.T) {
	packed := Pack(nil, 5, []uint64{1, 2, 3})
	if _, err := Unpack(nil, packed, 5, 0, 10); err == nil {
		t.Fatal("want error for a buffer shorter than the requested values")
	}
	if _, err := Unpack(nil, packed, 0, 0, 1); err == nil {
		t.Fatal("want error for width 0")
	}
}

func TestZigZag(t *testing.T) {
	for _, v := range []int64{0, -1, 1, -2, 2, math.MinInt64, math.MaxInt64} {
		if got := UnZigZag(ZigZag(v)); got != v {
			t.Fatalf("want %d, got %d", v, got)
		}
	}
	// small magnitudes of either sign map to small codes
	if ZigZag(0) != 0 || ZigZag(-1) != 1 || ZigZag(1) != 2 || ZigZag(-2) != 3 {
		t.Fatal("zigzag ordering broken")
	}
}
