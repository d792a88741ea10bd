package lance

import (
	"github.com/slyrx/lance/arrow"
	"github.com/slyrx/lance/format"
)

// DecodeArray materializes the logical rows [rng.Begin, rng.End) of an
// encoded array. The descriptor is validated before any buffer is resolved;
// only the buffers and buffer regions needed for the requested range are
// read.
func DecodeArray(enc *format.ArrayEncoding, typ arrow.DataType, r Resolver, rng Range) (arrow.Array, error) {
	if err := enc.Validate(); err != nil {
		return arrow.Array{}, err
	}
	if rng.Begin < 0 || rng.Begin > rng.End {
		return arrow.Array{}, corruptedf("invalid row range [%d,%d)", rng.Begin, rng.End)
	}
	return decodeNode(enc, typ, r, rng.Begin, rng.End)
}

func decodeNode(enc *format.ArrayEncoding, typ arrow.DataType, r Resolver, lo, hi int64) (arrow.Array, error) {
	switch {
	case enc.List != nil:
		return decodeListNode(enc.List, typ, r, lo, hi)

	case enc.Nullable != nil:
		n := enc.Nullable
		switch {
		case n.AllNull != nil:
			return allNullArray(typ, int(hi-lo)), nil

		case n.NoNull != nil:
			return decodeValues(n.NoNull.Values, typ, r, lo, hi)

		default:
			validity, err := decodeLeafDispatch(n.SomeNull.Validity, arrow.PrimitiveOf(arrow.Bool), r, lo, hi)
			if err != nil {
				return arrow.Array{}, err
			}
			out, err := decodeValues(n.SomeNull.Values, typ, r, lo, hi)
			if err != nil {
				return arrow.Array{}, err
			}
			bm := make([]byte, arrow.BitmapSize(validity.n))
			for i := 0; i < validity.n; i++ {
				if validity.data[i] != 0 {
					arrow.SetBit(bm, i)
				}
			}
			out.Validity = bm
			return out, nil
		}

	default:
		return decodeValues(enc, typ, r, lo, hi)
	}
}

func decodeValues(enc *format.ArrayEncoding, typ arrow.DataType, r Resolver, lo, hi int64) (arrow.Array, error) {
	switch {
	case enc.List != nil:
		return decodeListNode(enc.List, typ, r, lo, hi)

	case enc.FixedSizeList != nil:
		size := int64(enc.FixedSizeList.Dimension)
		child, err := decodeNode(enc.FixedSizeList.Items, *typ.Elem, r, lo*size, hi*size)
		if err != nil {
			return arrow.Array{}, err
		}
		return arrow.Array{
			Type:     typ,
			Len:      int(hi - lo),
			Children: []arrow.Array{child},
		}, nil

	case enc.Struct != nil:
		if len(enc.Struct.Children) != len(typ.Fields) {
			return arrow.Array{}, corruptedf("struct encoding has %d children for %d fields",
				len(enc.Struct.Children), len(typ.Fields))
		}
		children := make([]arrow.Array, len(typ.Fields))
		for i := range typ.Fields {
			child, err := decodeNode(&enc.Struct.Children[i], typ.Fields[i].Type, r, lo, hi)
			if err != nil {
				return arrow.Array{}, err
			}
			children[i] = child
		}
		return arrow.Array{Type: typ, Len: int(hi - lo), Children: children}, nil

	case enc.PackedStruct != nil:
		return decodePackedStruct(enc.PackedStruct, typ, r, lo, hi)

	case enc.Dictionary != nil:
		return decodeDictionary(enc.Dictionary, typ, r, lo, hi)

	default:
		v, err := decodeLeafDispatch(enc, typ, r, lo, hi)
		if err != nil {
			return arrow.Array{}, err
		}
		return leafToArray(v), nil
	}
}

func decodeListNode(l *format.List, typ arrow.DataType, r Resolver, lo, hi int64) (arrow.Array, error) {
	if l.Offsets.BitpackedForNonNeg == nil {
		return arrow.Array{}, corruptedf("list offsets use an unexpected encoding")
	}
	if hi == lo {
		return arrow.Array{
			Type:     typ,
			Offsets:  []int32{0},
			Children: []arrow.Array{emptyArray(*typ.Elem)},
		}, nil
	}

	// Rows [lo,hi) need offsets[lo-1] (when lo > 0) to anchor the item range
	// and offsets[lo..hi) for the row lengths: no intervening offsets are
	// touched.
	winLo := lo
	if winLo > 0 {
		winLo--
	}
	raw, err := decodeNonNegUints(l.Offsets.BitpackedForNonNeg, r, winLo, hi)
	if err != nil {
		return arrow.Array{}, err
	}
	offs := adjustedOffsets{
		adjustment: l.NullOffsetAdjustment,
		numItems:   l.NumItems,
	}
	if lo > 0 {
		offs.firstBase = int64(raw[0] % uint64(l.NullOffsetAdjustment))
		offs.offsets = raw[1:]
	} else {
		offs.offsets = raw
	}

	n := int(hi - lo)
	itemLo := offs.firstBase
	itemHi := offs.itemEnd(n - 1)
	child, err := decodeNode(l.Items, *typ.Elem, r, itemLo, itemHi)
	if err != nil {
		return arrow.Array{}, err
	}

	out := arrow.Array{
		Type:     typ,
		Len:      n,
		Offsets:  make([]int32, n+1),
		Children: []arrow.Array{child},
	}
	var bm []byte
	for i := 0; i < n; i++ {
		length, err := offs.length(i)
		if err != nil {
			return arrow.Array{}, err
		}
		out.Offsets[i+1] = out.Offsets[i] + int32(length)
		if offs.isNull(i) {
			if bm == nil {
				bm = make([]byte, arrow.BitmapSize(n))
				for j := 0; j < i; j++ {
					arrow.SetBit(bm, j)
				}
			}
		} else if bm != nil {
			arrow.SetBit(bm, i)
		}
	}
	out.Validity = bm
	if int(out.Offsets[n]) != child.Len {
		return arrow.Array{}, corruptedf("list rows reference %d items, decoded %d", out.Offsets[n], child.Len)
	}
	return out, nil
}

func decodePackedStruct(p *format.PackedStruct, typ arrow.DataType, r Resolver, lo, hi int64) (arrow.Array, error) {
	if len(p.Children) != len(typ.Fields) {
		return arrow.Array{}, corruptedf("packed struct encoding has %d children for %d fields",
			len(p.Children), len(typ.Fields))
	}
	raw, err := r.Resolve(p.Buffer)
	if err != nil {
		return arrow.Array{}, err
	}
	stride := 0
	widths := make([]int, len(p.Children))
	for i := range p.Children {
		widths[i] = int(p.Children[i].Flat.BitsPerValue / 8)
		stride += widths[i]
	}
	if want := hi * int64(stride); int64(len(raw)) < want {
		return arrow.Array{}, corruptedf("packed struct buffer holds %d bytes, need %d", len(raw), want)
	}

	n := int(hi - lo)
	out := arrow.Array{Type: typ, Len: n, Children: make([]arrow.Array, len(typ.Fields))}
	for i := range typ.Fields {
		out.Children[i] = arrow.Array{
			Type:   typ.Fields[i].Type,
			Len:    n,
			Values: make([]byte, n*widths[i]),
		}
	}
	for row := 0; row < n; row++ {
		pos := (int(lo) + row) * stride
		for i := range typ.Fields {
			copy(out.Children[i].Values[row*widths[i]:], raw[pos:pos+widths[i]])
			pos += widths[i]
		}
	}
	return out, nil
}

// decodeDictionary materializes rows by indexing into the dictionary items,
// which are decoded once per call and shared by every looked-up row.
func decodeDictionary(d *format.Dictionary, typ arrow.DataType, r Resolver, lo, hi int64) (arrow.Array, error) {
	if d.Indices.BitpackedForNonNeg == nil {
		return arrow.Array{}, corruptedf("dictionary indices use an unexpected encoding")
	}
	indices, err := decodeNonNegUints(d.Indices.BitpackedForNonNeg, r, lo, hi)
	if err != nil {
		return arrow.Array{}, err
	}
	items, err := decodeLeafDispatch(d.Items, typ, r, 0, int64(d.NumDictionaryItems))
	if err != nil {
		return arrow.Array{}, err
	}

	out := leafValues{typ: typ, n: len(indices)}
	if typ.Variable() {
		out.offsets = make([]int32, 1, len(indices)+1)
	}
	for _, id := range indices {
		if id >= uint64(d.NumDictionaryItems) {
			return arrow.Array{}, corruptedf("dictionary index %d outside %d items", id, d.NumDictionaryItems)
		}
		out.data = append(out.data, items.valueBytes(int(id))...)
		if out.offsets != nil {
			out.offsets = append(out.offsets, int32(len(out.data)))
		}
	}
	return leafToArray(out), nil
}

func decodeLeafDispatch(enc *format.ArrayEncoding, typ arrow.DataType, r Resolver, lo, hi int64) (leafValues, error) {
	switch {
	case enc.Flat != nil:
		return decodeFlat(enc.Flat, r, lo, hi, typ)
	case enc.Bitmap != nil:
		return decodeBitmapLeaf(enc.Bitmap, r, lo, hi, typ)
	case enc.Bitpacked != nil:
		return decodeBitpacked(enc.Bitpacked, r, lo, hi, typ)
	case enc.BitpackedForNonNeg != nil:
		return decodeNonNegBitpacked(enc.BitpackedForNonNeg, r, lo, hi, typ)
	case enc.OutOfLineBitpacking != nil:
		return decodeOutOfLineBitpacked(enc.OutOfLineBitpacking, r, lo, hi, typ)
	case enc.Rle != nil:
		return decodeRle(enc.Rle, r, lo, hi, typ)
	case enc.Binary != nil:
		return decodeBinaryLeaf(enc.Binary, r, lo, hi, typ)
	case enc.Fsst != nil:
		return decodeFsst(enc.Fsst, r, lo, hi, typ)
	case enc.Constant != nil:
		return decodeConstant(enc.Constant, lo, hi, typ)
	case enc.Block != nil:
		return decodeBlock(enc.Block, r, lo, hi, typ)
	case enc.Variable != nil:
		return decodeVariableLeaf(enc.Variable, r, lo, hi, typ)
	case enc.FixedSizeBinary != nil:
		return decodeFixedSizeBinaryLeaf(enc.FixedSizeBinary, r, lo, hi, typ)
	default:
		return leafValues{}, corruptedf("encoding variant cannot appear at a leaf position")
	}
}

// decodeVariableLeaf walks length prefixes from the head of the buffer;
// variable encodings rely on their enclosing layout for random access.
func decodeVariableLeaf(e *format.Variable, r Resolver, lo, hi int64, typ arrow.DataType) (leafValues, error) {
	raw, err := r.Resolve(e.Buffer)
	if err != nil {
		return leafValues{}, err
	}
	all, err := unpackVariable(raw, int(hi), e.BitsPerOffset, typ)
	if err != nil {
		return leafValues{}, err
	}
	out := leafValues{typ: typ, n: int(hi - lo), offsets: make([]int32, 1, hi-lo+1)}
	for i := lo; i < hi; i++ {
		out.data = append(out.data, all.valueBytes(int(i))...)
		out.offsets = append(out.offsets, int32(len(out.data)))
	}
	return out, nil
}

func decodeFixedSizeBinaryLeaf(e *format.FixedSizeBinary, r Resolver, lo, hi int64, typ arrow.DataType) (leafValues, error) {
	raw, err := r.Resolve(e.Buffer)
	if err != nil {
		return leafValues{}, err
	}
	width := int64(e.ByteWidth)
	if int64(len(raw)) < hi*width {
		return leafValues{}, corruptedf("fixed size binary buffer holds %d bytes, need %d", len(raw), hi*width)
	}
	return leafValues{typ: typ, n: int(hi - lo), data: raw[lo*width : hi*width]}, nil
}

func leafToArray(v leafValues) arrow.Array {
	return arrow.Array{Type: v.typ, Len: v.n, Values: v.data, Offsets: v.offsets}
}

// allNullArray builds an array of n null rows, recursively constructing the
// empty or null child shapes nested types require.
func allNullArray(typ arrow.DataType, n int) arrow.Array {
	out := arrow.Array{Type: typ, Len: n, Validity: make([]byte, arrow.BitmapSize(n))}
	switch typ.Kind {
	case arrow.List:
		out.Offsets = make([]int32, n+1)
		out.Children = []arrow.Array{emptyArray(*typ.Elem)}
	case arrow.FixedSizeList:
		out.Children = []arrow.Array{allNullArray(*typ.Elem, n*typ.Size)}
	case arrow.Struct:
		out.Children = make([]arrow.Array, len(typ.Fields))
		for i, f := range typ.Fields {
			out.Children[i] = allNullArray(f.Type, n)
		}
	case arrow.Binary, arrow.String:
		out.Offsets = make([]int32, n+1)
	default:
		out.Values = make([]byte, n*typ.FixedWidth())
	}
	return out
}

func emptyArray(typ arrow.DataType) arrow.Array {
	switch typ.Kind {
	case arrow.List:
		return arrow.Array{Type: typ, Offsets: []int32{0}, Children: []arrow.Array{emptyArray(*typ.Elem)}}
	case arrow.FixedSizeList:
		return arrow.Array{Type: typ, Children: []arrow.Array{emptyArray(*typ.Elem)}}
	case arrow.Struct:
		children := make([]arrow.Array, len(typ.Fields))
		for i, f := range typ.Fields {
			children[i] = emptyArray(f.Type)
		}
		return arrow.Array{Type: typ, Children: children}
	case arrow.Binary, arrow.String:
		return arrow.Array{Type: typ, Offsets: []int32{0}}
	default:
		return arrow.Array{Type: typ}
	}
}
