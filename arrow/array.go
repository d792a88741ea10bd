package arrow

import (
	"encoding/binary"
	"fmt"
)

// Array is an immutable logical array. Fixed-width values live in Values
// (little endian), variable-length values in Values addressed by Offsets
// (Len+1 entries), and nested types in Children. A nil Validity bitmap means
// every value is valid.
type Array struct {
	Type     DataType
	Len      int
	Validity []byte
	Values   []byte
	Offsets  []int32
	Children []Array
}

// IsNull reports whether the value at index i is null.
func (a *Array) IsNull(i int) bool {
	return !BitIsSet(a.Validity, i)
}

// NullCount returns the number of null values.
func (a *Array) NullCount() int {
	return a.Len - CountSetBits(a.Validity, a.Len)
}

// Uint64Value returns the value at index i of any integer or boolean typed
// array widened to uint64, without sign extension.
func (a *Array) Uint64Value(i int) uint64 {
	w := a.Type.FixedWidth()
	off := i * w
	switch w {
	case 1:
		return uint64(a.Values[off])
	case 2:
		return uint64(binary.LittleEndian.Uint16(a.Values[off:]))
	case 4:
		return uint64(binary.LittleEndian.Uint32(a.Values[off:]))
	case 8:
		return binary.LittleEndian.Uint64(a.Values[off:])
	default:
		panic(fmt.Sprintf("arrow: Uint64Value on %s array", a.Type))
	}
}

// Int64Value returns the value at index i sign extended to int64.
func (a *Array) Int64Value(i int) int64 {
	v := a.Uint64Value(i)
	switch a.Type.FixedWidth() {
	case 1:
		return int64(int8(v))
	case 2:
		return int64(int16(v))
	case 4:
		return int64(int32(v))
	default:
		return int64(v)
	}
}

// BoolValue returns the boolean at index i.
func (a *Array) BoolValue(i int) bool {
	return a.Values[i] != 0
}

// BytesValue returns the byte slice at index i of a binary, string, or
// fixed-size binary array. The slice aliases the array's buffer.
func (a *Array) BytesValue(i int) []byte {
	if a.Type.Kind == FixedSizeBinary {
		w := a.Type.ByteWidth
		return a.Values[i*w : (i+1)*w]
	}
	return a.Values[a.Offsets[i]:a.Offsets[i+1]]
}

// ValueRange returns the child item range [start, end) of the list at
// index i.
func (a *Array) ValueRange(i int) (int, int) {
	if a.Type.Kind == FixedSizeList {
		return i * a.Type.Size, (i + 1) * a.Type.Size
	}
	return int(a.Offsets[i]), int(a.Offsets[i+1])
}

// Slice returns a copy of rows [lo, hi). Offsets of variable-length and
// list arrays are rebased to zero and child arrays are sliced to the
// referenced item range.
func (a *Array) Slice(lo, hi int) Array {
	if lo < 0 || hi > a.Len || lo > hi {
		panic(fmt.Sprintf("arrow: slice [%d,%d) out of range of %d rows", lo, hi, a.Len))
	}
	out := Array{
		Type:     a.Type,
		Len:      hi - lo,
		Validity: SliceBitmap(a.Validity, lo, hi),
	}
	switch a.Type.Kind {
	case Binary, String:
		out.Offsets = rebaseOffsets(a.Offsets[lo : hi+1])
		out.Values = append([]byte(nil), a.Values[a.Offsets[lo]:a.Offsets[hi]]...)

	case List:
		out.Offsets = rebaseOffsets(a.Offsets[lo : hi+1])
		child := a.Children[0].Slice(int(a.Offsets[lo]), int(a.Offsets[hi]))
		out.Children = []Array{child}

	case FixedSizeList:
		child := a.Children[0].Slice(lo*a.Type.Size, hi*a.Type.Size)
		out.Children = []Array{child}

	case Struct:
		out.Children = make([]Array, len(a.Children))
		for i := range a.Children {
			out.Children[i] = a.Children[i].Slice(lo, hi)
		}

	default:
		w := a.Type.FixedWidth()
		out.Values = append([]byte(nil), a.Values[lo*w:hi*w]...)
	}
	return out
}

func rebaseOffsets(offsets []int32) []int32 {
	out := make([]int32, len(offsets))
	base := offsets[0]
	for i, o := range offsets {
		out[i] = o - base
	}
	return out
}

// Check validates the structural invariants of the array: offset counts,
// child lengths, and buffer sizes.
func (a *Array) Check() error {
	switch a.Type.Kind {
	case Binary, String:
		if len(a.Offsets) != a.Len+1 {
			return fmt.Errorf("arrow: %s array of %d rows has %d offsets", a.Type, a.Len, len(a.Offsets))
		}
		if n := int(a.Offsets[a.Len]); n > len(a.Values) {
			return fmt.Errorf("arrow: %s array references %d bytes of a %d byte buffer", a.Type, n, len(a.Values))
		}

	case List:
		if len(a.Offsets) != a.Len+1 {
			return fmt.Errorf("arrow: list array of %d rows has %d offsets", a.Len, len(a.Offsets))
		}
		if len(a.Children) != 1 {
			return fmt.Errorf("arrow: list array has %d children", len(a.Children))
		}
		if n := int(a.Offsets[a.Len]); n != a.Children[0].Len {
			return fmt.Errorf("arrow: list array references %d items, child holds %d", n, a.Children[0].Len)
		}
		return a.Children[0].Check()

	case FixedSizeList:
		if len(a.Children) != 1 {
			return fmt.Errorf("arrow: fixed size list array has %d children", len(a.Children))
		}
		if n := a.Len * a.Type.Size; n != a.Children[0].Len {
			return fmt.Errorf("arrow: fixed size list of %d rows needs %d items, child holds %d",
				a.Len, n, a.Children[0].Len)
		}
		return a.Children[0].Check()

	case Struct:
		if len(a.Children) != len(a.Type.Fields) {
			return fmt.Errorf("arrow: struct array has %d children for %d fields",
				len(a.Children), len(a.Type.Fields))
		}
		for i := range a.Children {
			if a.Children[i].Len != a.Len {
				return fmt.Errorf("arrow: struct child %d holds %d rows, want %d",
					i, a.Children[i].Len, a.Len)
			}
			if err := a.Children[i].Check(); err != nil {
				return err
			}
		}

	default:
		if w := a.Type.FixedWidth(); len(a.Values) < a.Len*w {
			return fmt.Errorf("arrow: %s array of %d rows backed by %d bytes", a.Type, a.Len, len(a.Values))
		}
	}
	return nil
}
