package arrow

import (
	"encoding/binary"
	"math"
)

// Constructors used by the codec's decode paths and by tests. The valid
// slice may be nil to mean all valid.

func NewBool(values []bool, valid []bool) Array {
	buf := make([]byte, len(values))
	for i, v := range values {
		if v {
			buf[i] = 1
		}
	}
	return Array{Type: PrimitiveOf(Bool), Len: len(values), Validity: MakeBitmap(valid), Values: buf}
}

func NewInt32(values []int32, valid []bool) Array {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[4*i:], uint32(v))
	}
	return Array{Type: PrimitiveOf(Int32), Len: len(values), Validity: MakeBitmap(valid), Values: buf}
}

func NewInt64(values []int64, valid []bool) Array {
	buf := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[8*i:], uint64(v))
	}
	return Array{Type: PrimitiveOf(Int64), Len: len(values), Validity: MakeBitmap(valid), Values: buf}
}

func NewUint32(values []uint32, valid []bool) Array {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[4*i:], v)
	}
	return Array{Type: PrimitiveOf(Uint32), Len: len(values), Validity: MakeBitmap(valid), Values: buf}
}

func NewUint64(values []uint64, valid []bool) Array {
	buf := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[8*i:], v)
	}
	return Array{Type: PrimitiveOf(Uint64), Len: len(values), Validity: MakeBitmap(valid), Values: buf}
}

func NewFloat64(values []float64, valid []bool) Array {
	buf := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
	}
	return Array{Type: PrimitiveOf(Float64), Len: len(values), Validity: MakeBitmap(valid), Values: buf}
}

func NewString(values []string, valid []bool) Array {
	offsets := make([]int32, len(values)+1)
	size := 0
	for i, v := range values {
		size += len(v)
		offsets[i+1] = int32(size)
	}
	buf := make([]byte, 0, size)
	for _, v := range values {
		buf = append(buf, v...)
	}
	return Array{Type: PrimitiveOf(String), Len: len(values), Validity: MakeBitmap(valid), Values: buf, Offsets: offsets}
}

func NewBinary(values [][]byte, valid []bool) Array {
	offsets := make([]int32, len(values)+1)
	size := 0
	for i, v := range values {
		size += len(v)
		offsets[i+1] = int32(size)
	}
	buf := make([]byte, 0, size)
	for _, v := range values {
		buf = append(buf, v...)
	}
	return Array{Type: PrimitiveOf(Binary), Len: len(values), Validity: MakeBitmap(valid), Values: buf, Offsets: offsets}
}

func NewFixedSizeBinary(width int, values [][]byte, valid []bool) Array {
	buf := make([]byte, 0, width*len(values))
	for _, v := range values {
		buf = append(buf, v...)
	}
	return Array{Type: FixedSizeBinaryOf(width), Len: len(values), Validity: MakeBitmap(valid), Values: buf}
}

// NewList builds a list array from per-row lengths. Null rows must have
// length zero in lengths; their entries occupy no items.
func NewList(lengths []int, items Array, valid []bool) Array {
	offsets := make([]int32, len(lengths)+1)
	for i, n := range lengths {
		offsets[i+1] = offsets[i] + int32(n)
	}
	return Array{
		Type:     ListOf(items.Type),
		Len:      len(lengths),
		Validity: MakeBitmap(valid),
		Offsets:  offsets,
		Children: []Array{items},
	}
}

func NewFixedSizeList(size int, items Array, valid []bool) Array {
	return Array{
		Type:     FixedSizeListOf(size, items.Type),
		Len:      items.Len / size,
		Validity: MakeBitmap(valid),
		Children: []Array{items},
	}
}

func NewStruct(fields []Field, children []Array, valid []bool) Array {
	n := 0
	if len(children) > 0 {
		n = children[0].Len
	}
	return Array{
		Type:     StructOf(fields...),
		Len:      n,
		Validity: MakeBitmap(valid),
		Children: children,
	}
}
