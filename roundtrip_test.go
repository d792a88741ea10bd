package lance

import (
	"fmt"
	"strings"
	"testing"

	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/hexops/gotextdiff/span"

	"github.com/slyrx/lance/arrow"
	"github.com/slyrx/lance/format"
)

func assertEqualArrays(t *testing.T, want, got arrow.Array) {
	t.Helper()
	if arrow.Equal(want, got) {
		return
	}
	w, g := arrow.Dump(want), arrow.Dump(got)
	edits := myers.ComputeEdits(span.URIFromPath("array"), w, g)
	t.Fatalf("arrays differ:\n%s", gotextdiff.ToUnified("want", "got", w, edits))
}

func repeatStrings(n int, values ...string) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = values[i%len(values)]
	}
	return out
}

func ramp64(n int, f func(i int) int64) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = f(i)
	}
	return out
}

func nullsEvery(n, k int) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = i%k != 0
	}
	return out
}

// testArrays is the shared catalog of logical arrays the round trip suites
// run over, covering every leaf chooser branch and nesting shape.
func testArrays() map[string]arrow.Array {
	longText := strings.Repeat("the quick brown fox jumps over the lazy dog ", 8)
	uniqueStrings := make([]string, 64)
	for i := range uniqueStrings {
		uniqueStrings[i] = fmt.Sprintf("%s-%04d", longText[:64], i*i)
	}
	fsb := make([][]byte, 32)
	for i := range fsb {
		v := make([]byte, 16)
		for j := range v {
			v[j] = byte(i*31 + j*7)
		}
		fsb[i] = v
	}

	intItems := arrow.NewInt64(ramp64(12, func(i int) int64 { return int64(i * 100) }), nil)
	innerLists := arrow.NewList([]int{2, 1, 0, 3, 2, 4}, intItems, []bool{true, true, false, true, true, true})

	structField := arrow.NewInt64(ramp64(10, func(i int) int64 { return int64(i) - 5 }), nullsEvery(10, 3))

	return map[string]arrow.Array{
		"int64-ramp":     arrow.NewInt64(ramp64(100, func(i int) int64 { return int64(i) }), nil),
		"int64-nulls":    arrow.NewInt64(ramp64(100, func(i int) int64 { return int64(i) * 3 }), nullsEvery(100, 5)),
		"int64-negative": arrow.NewInt64(ramp64(50, func(i int) int64 { return int64(25 - i) }), nil),
		"int64-wide":     arrow.NewInt64(ramp64(20, func(i int) int64 { return int64(i) << 55 }), nil),
		"int64-runs":     arrow.NewInt64(ramp64(64, func(i int) int64 { return int64(i / 8) }), nil),
		"int64-constant": arrow.NewInt64(ramp64(30, func(int) int64 { return 42 }), nil),
		"uint64-ramp":    arrow.NewUint64(ramp64u(80), nil),
		"int32-small":    arrow.NewInt32([]int32{3, 1, 4, 1, 5, 9, 2, 6}, nil),
		"bool":           arrow.NewBool([]bool{true, false, true, true, false, false, true, false, true}, nil),
		"bool-nulls":     arrow.NewBool(make([]bool, 20), nullsEvery(20, 4)),
		"float64":        arrow.NewFloat64([]float64{0, -1.5, 2.25, 3.5, -0.125, 1e300}, nil),
		"string-dict":    arrow.NewString(repeatStrings(40, "red", "green", "blue"), nil),
		"string-unique":  arrow.NewString(uniqueStrings, nil),
		"string-nulls":   arrow.NewString(repeatStrings(24, "alpha", "", "gamma"), nullsEvery(24, 6)),
		"binary": arrow.NewBinary([][]byte{
			{0x01}, {}, {0xff, 0xfe, 0xfd}, {0x00, 0x00}, {0xde, 0xad, 0xbe, 0xef},
		}, nil),
		"fixed-binary": arrow.NewFixedSizeBinary(16, fsb, nil),
		"all-null":     arrow.NewInt64(make([]int64, 10), make([]bool, 10)),
		"empty":        arrow.NewInt64(nil, nil),
		"empty-string": arrow.NewString(nil, nil),

		"list-int64": arrow.NewList([]int{3, 0, 2, 4, 1, 2},
			arrow.NewInt64(ramp64(12, func(i int) int64 { return int64(i) }), nil),
			nil),
		"list-nulls-empties": arrow.NewList([]int{2, 0, 0, 3, 1, 0},
			arrow.NewInt64(ramp64(6, func(i int) int64 { return int64(i * 7) }), nil),
			[]bool{true, false, true, true, true, false}),
		"list-of-list": arrow.NewList([]int{2, 0, 4, 0}, innerLists, []bool{true, true, true, false}),
		"list-strings": arrow.NewList([]int{1, 2, 0, 3},
			arrow.NewString([]string{"a", "bb", "ccc", "", "eeeee", "ffff"}, []bool{true, true, false, true, true, true}),
			nil),
		"fsl": arrow.NewFixedSizeList(3,
			arrow.NewInt32([]int32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, nil),
			nil),
		"fsl-nulls": arrow.NewFixedSizeList(2,
			arrow.NewFloat64([]float64{1, 2, 3, 4, 5, 6, 7, 8}, nullsEvery(8, 3)),
			[]bool{true, false, true, true}),
		"struct-single": arrow.NewStruct(
			[]arrow.Field{{Name: "score", Type: structField.Type}},
			[]arrow.Array{structField},
			nullsEvery(10, 4)),
		"struct-packed": arrow.NewStruct(
			[]arrow.Field{
				{Name: "x", Type: arrow.PrimitiveOf(arrow.Int32)},
				{Name: "y", Type: arrow.PrimitiveOf(arrow.Float64)},
			},
			[]arrow.Array{
				arrow.NewInt32([]int32{1, 2, 3, 4, 5}, nil),
				arrow.NewFloat64([]float64{0.5, 1.5, 2.5, 3.5, 4.5}, nil),
			},
			nil),
	}
}

func ramp64u(n int) []uint64 {
	out := make([]uint64, n)
	for i := range out {
		out[i] = uint64(i * i)
	}
	return out
}

func TestArrayRoundTrip(t *testing.T) {
	for name, a := range testArrays() {
		a := a
		t.Run(name, func(t *testing.T) {
			enc, buffers, err := EncodeArray(a, nil)
			if err != nil {
				t.Fatal(err)
			}
			got, err := DecodeArray(enc, a.Type, PageBuffers(buffers), Range{End: int64(a.Len)})
			if err != nil {
				t.Fatal(err)
			}
			assertEqualArrays(t, a, got)
		})
	}
}

func TestArrayRangeDecode(t *testing.T) {
	for name, a := range testArrays() {
		if a.Len < 3 {
			continue
		}
		a := a
		t.Run(name, func(t *testing.T) {
			enc, buffers, err := EncodeArray(a, nil)
			if err != nil {
				t.Fatal(err)
			}
			r := PageBuffers(buffers)
			for _, rng := range []Range{
				{Begin: 0, End: 1},
				{Begin: 1, End: int64(a.Len)},
				{Begin: int64(a.Len) / 3, End: 2 * int64(a.Len) / 3},
				{Begin: int64(a.Len) - 1, End: int64(a.Len)},
				{Begin: 2, End: 2},
			} {
				got, err := DecodeArray(enc, a.Type, r, rng)
				if err != nil {
					t.Fatalf("range [%d,%d): %v", rng.Begin, rng.End, err)
				}
				assertEqualArrays(t, a.Slice(int(rng.Begin), int(rng.End)), got)
			}
		})
	}
}

// Splitting a decode at any point and concatenating the halves must equal
// decoding the whole range.
func TestArrayRangeDecodeAssociativity(t *testing.T) {
	for _, name := range []string{"int64-nulls", "string-dict", "list-nulls-empties", "list-of-list", "fsl-nulls"} {
		a := testArrays()[name]
		t.Run(name, func(t *testing.T) {
			enc, buffers, err := EncodeArray(a, nil)
			if err != nil {
				t.Fatal(err)
			}
			r := PageBuffers(buffers)
			for k := 0; k <= a.Len; k++ {
				left, err := DecodeArray(enc, a.Type, r, Range{End: int64(k)})
				if err != nil {
					t.Fatal(err)
				}
				right, err := DecodeArray(enc, a.Type, r, Range{Begin: int64(k), End: int64(a.Len)})
				if err != nil {
					t.Fatal(err)
				}
				joined, err := arrow.Concat(left, right)
				if err != nil {
					t.Fatal(err)
				}
				assertEqualArrays(t, a, joined)
			}
		})
	}
}

func TestEncodeLeafSelection(t *testing.T) {
	tests := []struct {
		name  string
		check func(t *testing.T, enc *format.ArrayEncoding)
	}{
		{"int64-constant", func(t *testing.T, enc *format.ArrayEncoding) {
			if enc.Nullable.NoNull.Values.Constant == nil {
				t.Fatal("want constant encoding")
			}
		}},
		{"int64-runs", func(t *testing.T, enc *format.ArrayEncoding) {
			if enc.Nullable.NoNull.Values.Rle == nil {
				t.Fatal("want run length encoding")
			}
		}},
		{"int64-negative", func(t *testing.T, enc *format.ArrayEncoding) {
			v := enc.Nullable.NoNull.Values
			if v.Bitpacked == nil || !v.Bitpacked.SignedValues {
				t.Fatal("want signed bitpacked encoding")
			}
		}},
		{"int64-wide", func(t *testing.T, enc *format.ArrayEncoding) {
			if enc.Nullable.NoNull.Values.Flat == nil {
				t.Fatal("want flat encoding when packing saves too little")
			}
		}},
		{"uint64-ramp", func(t *testing.T, enc *format.ArrayEncoding) {
			if enc.Nullable.NoNull.Values.OutOfLineBitpacking == nil {
				t.Fatal("want out of line bitpacking for unsigned values")
			}
		}},
		{"binary", func(t *testing.T, enc *format.ArrayEncoding) {
			if enc.Nullable.NoNull.Values.Variable == nil {
				t.Fatal("want variable encoding for a handful of byte values")
			}
		}},
		{"string-dict", func(t *testing.T, enc *format.ArrayEncoding) {
			if enc.Nullable.NoNull.Values.Dictionary == nil {
				t.Fatal("want dictionary encoding")
			}
		}},
		{"string-unique", func(t *testing.T, enc *format.ArrayEncoding) {
			if enc.Nullable.NoNull.Values.Fsst == nil {
				t.Fatal("want fsst encoding")
			}
		}},
		{"bool", func(t *testing.T, enc *format.ArrayEncoding) {
			if enc.Nullable.NoNull.Values.Bitmap == nil {
				t.Fatal("want bitmap encoding")
			}
		}},
		{"struct-packed", func(t *testing.T, enc *format.ArrayEncoding) {
			if enc.Nullable.NoNull.Values.PackedStruct == nil {
				t.Fatal("want packed struct encoding")
			}
		}},
		{"all-null", func(t *testing.T, enc *format.ArrayEncoding) {
			if enc.Nullable.AllNull == nil {
				t.Fatal("want all null encoding")
			}
		}},
	}
	arrays := testArrays()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, _, err := EncodeArray(arrays[tt.name], nil)
			if err != nil {
				t.Fatal(err)
			}
			tt.check(t, enc)
		})
	}
}

func TestDictionaryItemsColumnScope(t *testing.T) {
	enc, buffers, err := EncodeArray(testArrays()["string-dict"], nil)
	if err != nil {
		t.Fatal(err)
	}
	column := 0
	for _, b := range buffers {
		if b.PreferredScope == format.ColumnBuffer {
			column++
		}
	}
	if column == 0 {
		t.Fatal("dictionary items should prefer column scope")
	}
	if enc.Nullable.NoNull.Values.Dictionary.Indices.BitpackedForNonNeg == nil {
		t.Fatal("dictionary indices should be non-negative bitpacked")
	}
}

func TestDecodeUnknownCompression(t *testing.T) {
	a := testArrays()["float64"]
	enc, buffers, err := EncodeArray(a, &EncodeHints{Compression: &format.Compression{Scheme: "zstd"}})
	if err != nil {
		t.Fatal(err)
	}
	enc.Nullable.NoNull.Values.Flat.Compression.Scheme = "quantum"
	_, err = DecodeArray(enc, a.Type, PageBuffers(buffers), Range{End: int64(a.Len)})
	if err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Fatalf("want unsupported scheme error, got %v", err)
	}
}

func TestEncodedCompressionRoundTrip(t *testing.T) {
	for _, scheme := range []string{"snappy", "gzip", "zstd", "lz4", "brotli"} {
		t.Run(scheme, func(t *testing.T) {
			hints := &EncodeHints{Compression: &format.Compression{Scheme: scheme}}
			for _, name := range []string{"float64", "string-unique", "fixed-binary"} {
				a := testArrays()[name]
				enc, buffers, err := EncodeArray(a, hints)
				if err != nil {
					t.Fatal(err)
				}
				got, err := DecodeArray(enc, a.Type, PageBuffers(buffers), Range{End: int64(a.Len)})
				if err != nil {
					t.Fatal(err)
				}
				assertEqualArrays(t, a, got)
			}
		})
	}
}
