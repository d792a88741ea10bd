package arrow

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
)

func TestSliceFlat(t *testing.T) {
	a := NewInt64([]int64{10, 20, 30, 40, 50}, []bool{true, false, true, true, false})
	s := a.Slice(1, 4)
	if s.Len != 3 {
		t.Fatalf("want 3 rows, got %d", s.Len)
	}
	if !s.IsNull(0) || s.IsNull(1) || s.IsNull(2) {
		t.Fatal("slice nullity mismatch")
	}
	if s.Int64Value(1) != 30 || s.Int64Value(2) != 40 {
		t.Fatal("slice values mismatch")
	}
}

func TestSliceRebasesOffsets(t *testing.T) {
	a := NewString([]string{"aa", "b", "", "cccc"}, nil)
	s := a.Slice(1, 4)
	if s.Offsets[0] != 0 {
		t.Fatalf("want offsets rebased to zero, got %v", s.Offsets)
	}
	if string(s.BytesValue(0)) != "b" || string(s.BytesValue(2)) != "cccc" {
		t.Fatal("slice values mismatch")
	}
}

func TestSliceList(t *testing.T) {
	a := NewList([]int{2, 0, 3, 1},
		NewInt64([]int64{1, 2, 3, 4, 5, 6}, nil),
		[]bool{true, false, true, true})
	s := a.Slice(2, 4)
	if s.Len != 2 || s.Children[0].Len != 4 {
		t.Fatalf("want 2 rows over 4 items, got %d over %d", s.Len, s.Children[0].Len)
	}
	lo, hi := s.ValueRange(0)
	if hi-lo != 3 || s.Children[0].Int64Value(lo) != 3 {
		t.Fatal("sliced list items mismatch")
	}
	if err := s.Check(); err != nil {
		t.Fatal(err)
	}
}

func TestEqualIgnoresPhysicalLayout(t *testing.T) {
	a := NewInt32([]int32{1, 2, 3}, nil)
	b := NewInt32([]int32{1, 2, 3}, []bool{true, true, true})
	if !Equal(a, b) {
		t.Fatal("nil validity and all-set bitmap should compare equal")
	}

	c := NewString([]string{"x", "yy"}, nil)
	d := c.Slice(0, 2)
	if !Equal(c, d) {
		t.Fatal("identity slice should compare equal")
	}
}

func TestEqualDetectsDifferences(t *testing.T) {
	base := NewInt64([]int64{1, 2, 3}, nil)
	for name, other := range map[string]Array{
		"value":  NewInt64([]int64{1, 2, 4}, nil),
		"null":   NewInt64([]int64{1, 2, 3}, []bool{true, true, false}),
		"length": NewInt64([]int64{1, 2}, nil),
		"type":   NewUint64([]uint64{1, 2, 3}, nil),
	} {
		if Equal(base, other) {
			t.Fatalf("%s difference not detected", name)
		}
	}
}

func TestConcatInverseOfSlice(t *testing.T) {
	arrays := map[string]Array{
		"flat":   NewInt64([]int64{1, 2, 3, 4, 5, 6}, []bool{true, false, true, true, false, true}),
		"string": NewString([]string{"a", "", "ccc", "dd", "e", "ffff"}, nil),
		"list": NewList([]int{1, 0, 2, 0, 3, 0},
			NewInt64([]int64{1, 2, 3, 4, 5, 6}, nil),
			[]bool{true, false, true, true, true, false}),
		"fsl": NewFixedSizeList(2, NewInt32([]int32{1, 2, 3, 4, 5, 6, 7, 8}, nil), nil),
		"struct": NewStruct(
			[]Field{{Name: "v", Type: PrimitiveOf(Int64)}},
			[]Array{NewInt64([]int64{9, 8, 7, 6}, nil)},
			[]bool{true, true, false, true}),
	}
	for name, a := range arrays {
		a := a
		t.Run(name, func(t *testing.T) {
			for k := 0; k <= a.Len; k++ {
				joined, err := Concat(a.Slice(0, k), a.Slice(k, a.Len))
				if err != nil {
					t.Fatal(err)
				}
				if !Equal(a, joined) {
					t.Fatalf("split at %d: concat differs:\n%s\nvs\n%s", k, Dump(a), Dump(joined))
				}
			}
		})
	}
}

func TestConcatRejectsMixedTypes(t *testing.T) {
	_, err := Concat(NewInt64([]int64{1}, nil), NewInt32([]int32{1}, nil))
	if err == nil {
		t.Fatal("want error for mixed types")
	}
}

func TestFixedSizeBinaryValues(t *testing.T) {
	ids := make([][]byte, 8)
	for i := range ids {
		id := uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("row-%d", i)))
		ids[i] = id[:]
	}
	a := NewFixedSizeBinary(16, ids, nullsAt(8, 5))
	if a.Type.FixedWidth() != 16 {
		t.Fatalf("want width 16, got %d", a.Type.FixedWidth())
	}
	for i := range ids {
		if i == 5 {
			if !a.IsNull(i) {
				t.Fatal("want row 5 null")
			}
			continue
		}
		if string(a.BytesValue(i)) != string(ids[i]) {
			t.Fatalf("row %d mismatch", i)
		}
	}

	s := a.Slice(4, 8)
	joined, err := Concat(a.Slice(0, 4), s)
	if err != nil {
		t.Fatal(err)
	}
	if !Equal(a, joined) {
		t.Fatal("fixed size binary concat mismatch")
	}
}

func nullsAt(n int, at ...int) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = true
	}
	for _, i := range at {
		out[i] = false
	}
	return out
}

func TestCheckRejectsInconsistentArrays(t *testing.T) {
	list := NewList([]int{2, 1}, NewInt64([]int64{1, 2, 3}, nil), nil)
	list.Offsets[2] = 5
	if err := list.Check(); err == nil {
		t.Fatal("want error for offsets past the child length")
	}

	st := NewStruct(
		[]Field{{Name: "a", Type: PrimitiveOf(Int64)}},
		[]Array{NewInt64([]int64{1, 2}, nil)},
		nil)
	st.Len = 3
	if err := st.Check(); err == nil {
		t.Fatal("want error for a struct child shorter than the array")
	}

	flat := NewInt64([]int64{1, 2}, nil)
	flat.Values = flat.Values[:10]
	if err := flat.Check(); err == nil {
		t.Fatal("want error for a short values buffer")
	}
}

func TestBitmapHelpers(t *testing.T) {
	valid := []bool{true, false, true, true, false, true, true, true, false, true}
	bm := MakeBitmap(valid)
	if bm == nil {
		t.Fatal("want a bitmap when some bits are clear")
	}
	for i, v := range valid {
		if BitIsSet(bm, i) != v {
			t.Fatalf("bit %d mismatch", i)
		}
	}
	if CountSetBits(bm, len(valid)) != 7 {
		t.Fatalf("want 7 set bits, got %d", CountSetBits(bm, len(valid)))
	}

	s := SliceBitmap(bm, 3, 9)
	for i := 0; i < 6; i++ {
		if BitIsSet(s, i) != valid[3+i] {
			t.Fatalf("sliced bit %d mismatch", i)
		}
	}

	if MakeBitmap([]bool{true, true}) != nil {
		t.Fatal("an all-valid bitmap should collapse to nil")
	}
	if MakeBitmap(nil) != nil {
		t.Fatal("an empty bitmap should collapse to nil")
	}
}
