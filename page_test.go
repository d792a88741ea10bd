package lance

import (
	"strings"
	"testing"

	"github.com/slyrx/lance/arrow"
	"github.com/slyrx/lance/format"
)

func pageRoundTrip(t *testing.T, a arrow.Array, hints *EncodeHints) {
	t.Helper()
	layout, buffers, err := EncodePage(a, hints)
	if err != nil {
		t.Fatal(err)
	}
	r := PageBuffers(buffers)
	got, err := DecodePage(layout, a.Type, r, Range{End: int64(a.Len)})
	if err != nil {
		t.Fatal(err)
	}
	assertEqualArrays(t, a, got)

	if a.Len < 3 {
		return
	}
	for _, rng := range []Range{
		{Begin: 0, End: 1},
		{Begin: 1, End: int64(a.Len)},
		{Begin: int64(a.Len) / 3, End: 2 * int64(a.Len) / 3},
		{Begin: int64(a.Len) - 1, End: int64(a.Len)},
		{Begin: 1, End: 1},
	} {
		got, err := DecodePage(layout, a.Type, r, rng)
		if err != nil {
			t.Fatalf("range [%d,%d): %v", rng.Begin, rng.End, err)
		}
		assertEqualArrays(t, a.Slice(int(rng.Begin), int(rng.End)), got)
	}
}

func TestPageRoundTrip(t *testing.T) {
	for name, a := range testArrays() {
		a := a
		t.Run(name, func(t *testing.T) {
			pageRoundTrip(t, a, nil)
		})
	}
}

// A small chunk budget forces multiple chunks per page; decoding must stitch
// rows back together across chunk boundaries.
func TestPageMultiChunk(t *testing.T) {
	hints := &EncodeHints{MiniBlockChunkItems: 8}
	for _, name := range []string{"int64-nulls", "string-dict", "list-int64", "list-nulls-empties", "fsl-nulls", "bool-nulls"} {
		a := testArrays()[name]
		t.Run(name, func(t *testing.T) {
			layout, _, err := EncodePage(a, hints)
			if err != nil {
				t.Fatal(err)
			}
			if layout.MiniBlock == nil {
				t.Fatal("want mini-block layout")
			}
			pageRoundTrip(t, a, hints)
		})
	}
}

func TestPageLayoutSelection(t *testing.T) {
	wide := make([][]byte, 12)
	for i := range wide {
		v := make([]byte, 256)
		for j := range v {
			v[j] = byte(i + j)
		}
		wide[i] = v
	}
	longStrings := repeatStrings(10, strings.Repeat("x", 300), strings.Repeat("y", 200))

	tests := []struct {
		name  string
		array arrow.Array
		check func(t *testing.T, pl *format.PageLayout)
	}{
		{"small values pick mini-block", testArrays()["int64-ramp"], func(t *testing.T, pl *format.PageLayout) {
			if pl.MiniBlock == nil {
				t.Fatalf("want mini-block, got %v", pl)
			}
		}},
		{"wide fixed values pick full-zip", arrow.NewFixedSizeBinary(256, wide, nil), func(t *testing.T, pl *format.PageLayout) {
			if pl.FullZip == nil {
				t.Fatalf("want full-zip, got %v", pl)
			}
		}},
		{"long strings pick full-zip", arrow.NewString(longStrings, nullsEvery(10, 4)), func(t *testing.T, pl *format.PageLayout) {
			if pl.FullZip == nil {
				t.Fatalf("want full-zip, got %v", pl)
			}
		}},
		{"all null picks all-null", testArrays()["all-null"], func(t *testing.T, pl *format.PageLayout) {
			if pl.AllNull == nil {
				t.Fatalf("want all-null, got %v", pl)
			}
		}},
		{"fixed width struct picks zipped mini-block", testArrays()["struct-packed"], func(t *testing.T, pl *format.PageLayout) {
			if pl.MiniBlock == nil || pl.MiniBlock.ValueEncoding.PackedStructFixedWidthMiniBlock == nil {
				t.Fatalf("want zipped mini-block, got %v", pl)
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			layout, _, err := EncodePage(tt.array, nil)
			if err != nil {
				t.Fatal(err)
			}
			tt.check(t, layout)
			pageRoundTrip(t, tt.array, nil)
		})
	}
}

func TestPageFullZipNested(t *testing.T) {
	long := func(s string, n int) string { return strings.Repeat(s, n) }
	items := arrow.NewString([]string{
		long("a", 200), long("b", 150), "", long("c", 300), long("d", 250), long("e", 180),
	}, []bool{true, true, false, true, true, true})
	a := arrow.NewList([]int{2, 0, 0, 3, 1}, items, []bool{true, false, true, true, true})

	layout, _, err := EncodePage(a, nil)
	if err != nil {
		t.Fatal(err)
	}
	if layout.FullZip == nil {
		t.Fatal("want full-zip layout")
	}
	if layout.FullZip.RowIndex == nil {
		t.Fatal("want a row index for repeated data")
	}
	pageRoundTrip(t, a, nil)
}

// A fixed size list above every variable length list reuses the row-opening
// repetition level for its 2nd and later slots, so row boundaries cannot be
// read off repetition zeroes; row accounting must walk the layer plan.
func TestPageFixedSizeListOfLists(t *testing.T) {
	inner := arrow.NewInt64([]int64{1, 2, 3, 4, 5, 6, 7}, nil)
	lists := arrow.NewList([]int{2, 0, 1, 3, 1, 0}, inner,
		[]bool{true, false, true, true, true, true})
	a := arrow.NewFixedSizeList(2, lists, []bool{true, true, false})

	layout, _, err := EncodePage(a, nil)
	if err != nil {
		t.Fatal(err)
	}
	if layout.MiniBlock == nil {
		t.Fatalf("want mini-block layout, got %v", layout)
	}
	if layout.MiniBlock.NumRows != 3 {
		t.Fatalf("want 3 rows, got %d", layout.MiniBlock.NumRows)
	}
	pageRoundTrip(t, a, nil)

	// tiny chunks must still split between rows, never inside a slot
	pageRoundTrip(t, a, &EncodeHints{MiniBlockChunkItems: 2})
}

func TestItemRowStartsFixedSizeListOfLists(t *testing.T) {
	inner := arrow.NewInt64([]int64{1, 2, 3}, nil)
	lists := arrow.NewList([]int{2, 1, 0, 0}, inner, nil)
	a := arrow.NewFixedSizeList(2, lists, nil)

	fa, err := flattenArray(&a)
	if err != nil {
		t.Fatal(err)
	}
	// rows {[1 2], [3]} and {[], []}: five items, both slot continuations
	// carry repetition level zero
	if want := []uint16{0, 1, 0, 0, 0}; len(fa.rep) != len(want) {
		t.Fatalf("want rep %v, got %v", want, fa.rep)
	} else {
		for i, r := range want {
			if fa.rep[i] != r {
				t.Fatalf("want rep %v, got %v", want, fa.rep)
			}
		}
	}
	starts := itemRowStarts(fa)
	if len(starts) != 3 || starts[0] != 0 || starts[1] != 3 || starts[2] != 5 {
		t.Fatalf("want row starts [0 3 5], got %v", starts)
	}
}

func TestPageAllNullNested(t *testing.T) {
	for name, a := range map[string]arrow.Array{
		"leaf": arrow.NewString(make([]string, 7), make([]bool, 7)),
		"list": arrow.NewList([]int{0, 0, 0}, arrow.NewInt64(nil, nil), make([]bool, 3)),
		"fsl": arrow.NewFixedSizeList(2,
			arrow.NewInt64(make([]int64, 8), make([]bool, 8)),
			make([]bool, 4)),
		"fsl-of-lists": arrow.NewFixedSizeList(2,
			arrow.NewList([]int{0, 0, 0, 0}, arrow.NewInt64(nil, nil), make([]bool, 4)),
			[]bool{true, false}),
		"struct": arrow.NewStruct(
			[]arrow.Field{{Name: "v", Type: arrow.PrimitiveOf(arrow.Int32)}},
			[]arrow.Array{arrow.NewInt32(make([]int32, 5), make([]bool, 5))},
			make([]bool, 5)),
	} {
		a := a
		t.Run(name, func(t *testing.T) {
			layout, _, err := EncodePage(a, nil)
			if err != nil {
				t.Fatal(err)
			}
			if layout.AllNull == nil {
				t.Fatalf("want all-null layout, got %v", layout)
			}
			pageRoundTrip(t, a, nil)
		})
	}
}

func TestPageCompression(t *testing.T) {
	for _, scheme := range []string{"snappy", "gzip", "zstd", "lz4", "brotli"} {
		t.Run(scheme, func(t *testing.T) {
			hints := &EncodeHints{
				Compression:         &format.Compression{Scheme: scheme},
				MiniBlockChunkItems: 16,
			}
			for _, name := range []string{"int64-nulls", "string-dict", "list-int64", "struct-packed"} {
				pageRoundTrip(t, testArrays()[name], hints)
			}

			// full-zip compresses the whole record buffer
			wide := make([][]byte, 9)
			for i := range wide {
				wide[i] = []byte(strings.Repeat(string(rune('a'+i)), 200))
			}
			pageRoundTrip(t, arrow.NewFixedSizeBinary(200, wide, nullsEvery(9, 3)), hints)
		})
	}
}

func TestPageMultiFieldStructWithNulls(t *testing.T) {
	a := arrow.NewStruct(
		[]arrow.Field{
			{Name: "x", Type: arrow.PrimitiveOf(arrow.Int32)},
			{Name: "y", Type: arrow.PrimitiveOf(arrow.Int32)},
		},
		[]arrow.Array{
			arrow.NewInt32([]int32{1, 2, 3}, nil),
			arrow.NewInt32([]int32{4, 5, 6}, nil),
		},
		[]bool{true, false, true})
	_, _, err := EncodePage(a, nil)
	if err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Fatalf("want unsupported error for nullable multi-field struct page, got %v", err)
	}
}

func TestPageDecodeRangeChecks(t *testing.T) {
	a := testArrays()["int64-ramp"]
	layout, buffers, err := EncodePage(a, nil)
	if err != nil {
		t.Fatal(err)
	}
	r := PageBuffers(buffers)
	for _, rng := range []Range{
		{Begin: -1, End: 1},
		{Begin: 5, End: 4},
		{Begin: 0, End: int64(a.Len) + 1},
	} {
		if _, err := DecodePage(layout, a.Type, r, rng); err == nil {
			t.Fatalf("range [%d,%d): want error", rng.Begin, rng.End)
		}
	}
}

func TestPageDecodeMissingBuffer(t *testing.T) {
	a := testArrays()["int64-ramp"]
	layout, buffers, err := EncodePage(a, nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = DecodePage(layout, a.Type, PageBuffers(buffers[:1]), Range{End: int64(a.Len)})
	if err == nil {
		t.Fatal("want error when a referenced buffer cannot be resolved")
	}
}
