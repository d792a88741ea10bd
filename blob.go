package lance

import (
	"encoding/binary"

	"github.com/slyrx/lance/arrow"
	"github.com/slyrx/lance/format"
)

// Blob columns keep large binary values out of line: the column itself
// stores one (position, size) pair of u64 per row and the bytes live in a
// file scope buffer. The descriptions page is a no-null fixed width struct,
// so it lands on the zipped mini-block path and stays cheap to range scan.
//
// The blob region starts with one pad byte, so position 0 never addresses
// real data and the pair (0, 0) can mark a null row without colliding with
// an empty blob at the start of the region.

var blobDescType = arrow.StructOf(
	arrow.Field{Name: "position", Type: arrow.PrimitiveOf(arrow.Uint64)},
	arrow.Field{Name: "size", Type: arrow.PrimitiveOf(arrow.Uint64)},
)

// EncodeBlobColumn stores the binary array's bytes in a file scope buffer
// and encodes a page of (position, size) descriptions.
func EncodeBlobColumn(a arrow.Array, hints *EncodeHints) (*format.ColumnEncoding, *format.PageLayout, []EncodedBuffer, error) {
	if err := a.Check(); err != nil {
		return nil, nil, nil, err
	}
	if a.Type.Kind != arrow.Binary && a.Type.Kind != arrow.String {
		return nil, nil, nil, errUnsupportedf("blob column of %s values", a.Type)
	}

	region := []byte{0}
	positions := make([]byte, 8*a.Len)
	sizes := make([]byte, 8*a.Len)
	for i := 0; i < a.Len; i++ {
		if a.IsNull(i) {
			continue
		}
		b := a.BytesValue(i)
		binary.LittleEndian.PutUint64(positions[8*i:], uint64(len(region)))
		binary.LittleEndian.PutUint64(sizes[8*i:], uint64(len(b)))
		region = append(region, b...)
	}

	desc := arrow.Array{
		Type: blobDescType,
		Len:  a.Len,
		Children: []arrow.Array{
			{Type: blobDescType.Fields[0].Type, Len: a.Len, Values: positions},
			{Type: blobDescType.Fields[1].Type, Len: a.Len, Values: sizes},
		},
	}
	layout, buffers, err := EncodePage(desc, hints)
	if err != nil {
		return nil, nil, nil, err
	}
	w := &bufferWriter{buffers: buffers}
	for _, b := range buffers {
		w.next[b.PreferredScope]++
	}
	w.add(region, format.FileBuffer)

	ce := &format.ColumnEncoding{Blob: &format.Blob{
		Inner: &format.ColumnEncoding{Values: &format.Values{}},
	}}
	return ce, layout, w.buffers, nil
}

// DecodeBlobColumn decodes rows [rng.Begin, rng.End) of a blob column,
// fetching each value's bytes from the blob region.
func DecodeBlobColumn(ce *format.ColumnEncoding, layout *format.PageLayout, typ arrow.DataType, r Resolver, rng Range) (arrow.Array, error) {
	if err := ce.Validate(); err != nil {
		return arrow.Array{}, err
	}
	if ce.Blob == nil {
		return arrow.Array{}, corruptedf("column encoding is not a blob wrapper")
	}
	desc, err := DecodePage(layout, blobDescType, r, rng)
	if err != nil {
		return arrow.Array{}, err
	}
	region, err := r.Resolve(format.Buffer{BufferIndex: 0, BufferType: format.FileBuffer})
	if err != nil {
		return arrow.Array{}, err
	}

	out := arrow.Array{
		Type:    typ,
		Len:     desc.Len,
		Offsets: make([]int32, 1, desc.Len+1),
	}
	valid := make([]bool, desc.Len)
	for i := 0; i < desc.Len; i++ {
		pos := desc.Children[0].Uint64Value(i)
		size := desc.Children[1].Uint64Value(i)
		if pos == 0 && size == 0 {
			out.Offsets = append(out.Offsets, int32(len(out.Values)))
			continue
		}
		valid[i] = true
		if pos+size > uint64(len(region)) {
			return arrow.Array{}, corruptedf("blob row %d spans [%d,%d) outside %d byte region",
				i, pos, pos+size, len(region))
		}
		out.Values = append(out.Values, region[pos:pos+size]...)
		out.Offsets = append(out.Offsets, int32(len(out.Values)))
	}
	out.Validity = arrow.MakeBitmap(valid)
	return out, nil
}
