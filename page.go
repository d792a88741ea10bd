package lance

import (
	"github.com/slyrx/lance/arrow"
	"github.com/slyrx/lance/format"
	"github.com/slyrx/lance/internal/bitpack"
	"github.com/slyrx/lance/internal/bits"
)

// EncodePage flattens the array with repetition and definition levels and
// serializes it under one of three physical layouts:
//
//   - AllNull when no leaf value is defined, keeping only the levels needed
//     to reconstruct the shape of the nulls,
//   - MiniBlock for narrow values, chunked for locality,
//   - FullZip for wide values, one zipped record per item so a row's bytes
//     are contiguous.
//
// The returned buffers are indexed per scope in emission order, matching
// PageBuffers.
func EncodePage(a arrow.Array, hints *EncodeHints) (*format.PageLayout, []EncodedBuffer, error) {
	if err := a.Check(); err != nil {
		return nil, nil, err
	}
	w := new(bufferWriter)

	if a.Type.Kind == arrow.Struct && len(a.Type.Fields) > 1 && zippablePage(&a) {
		layout, err := encodeZippedStructPage(&a, hints, w)
		if err != nil {
			return nil, nil, err
		}
		return layout, w.buffers, nil
	}

	fa, err := flattenArray(&a)
	if err != nil {
		return nil, nil, err
	}

	var layout *format.PageLayout
	switch {
	case fa.leaf.Len == 0:
		layout, err = encodeAllNull(fa, w)
	case avgValueBytes(&fa.leaf) <= hints.miniBlockMaxValueBytes():
		layout, err = encodeMiniBlock(fa, hints, w)
	default:
		layout, err = encodeFullZip(fa, hints, w)
	}
	if err != nil {
		return nil, nil, err
	}
	if err := layout.Validate(); err != nil {
		return nil, nil, err
	}
	return layout, w.buffers, nil
}

// DecodePage materializes rows [rng.Begin, rng.End) of an encoded page.
func DecodePage(layout *format.PageLayout, typ arrow.DataType, r Resolver, rng Range) (arrow.Array, error) {
	if err := layout.Validate(); err != nil {
		return arrow.Array{}, err
	}
	if rng.Begin < 0 || rng.Begin > rng.End {
		return arrow.Array{}, corruptedf("invalid row range [%d,%d)", rng.Begin, rng.End)
	}
	if rng.Begin == rng.End {
		return emptyArray(typ), nil
	}
	switch {
	case layout.AllNull != nil:
		return decodeAllNull(layout.AllNull, typ, r, rng)
	case layout.MiniBlock != nil:
		return decodeMiniBlock(layout.MiniBlock, typ, r, rng)
	default:
		return decodeFullZip(layout.FullZip, typ, r, rng)
	}
}

func avgValueBytes(leaf *arrow.Array) int {
	if leaf.Len == 0 {
		return 0
	}
	if leaf.Type.Variable() {
		return int(leaf.Offsets[leaf.Len]) / leaf.Len
	}
	return leaf.Type.FixedWidth()
}

// ---- level streams ----

func repBitWidth(maxRep uint16) int32 {
	if maxRep == 0 {
		return 0
	}
	return int32(bits.Len64(uint64(maxRep)))
}

func defBitWidth(maxDef uint16) int32 {
	if maxDef == 0 {
		return 0
	}
	return int32(bits.Len64(uint64(maxDef)))
}

func packLevels(levels []uint16, width int32) []byte {
	us := make([]uint64, len(levels))
	for i, l := range levels {
		us[i] = uint64(l)
	}
	return bitpack.Pack(nil, uint(width), us)
}

func unpackLevels(raw []byte, width int32, offset, count int) ([]uint16, error) {
	us, err := bitpack.Unpack(nil, raw, uint(width), offset, count)
	if err != nil {
		return nil, corruptedf("level stream: %v", err)
	}
	out := make([]uint16, len(us))
	for i, u := range us {
		if u > 0xffff {
			return nil, corruptedf("level value %d does not fit 16 bits", u)
		}
		out[i] = uint16(u)
	}
	return out, nil
}

// ---- all null ----

func encodeAllNull(fa *flatArray, w *bufferWriter) (*format.PageLayout, error) {
	l := &format.AllNullLayout{
		Layers:   fa.plan.layers,
		BitsRep:  repBitWidth(fa.plan.maxRep),
		BitsDef:  defBitWidth(fa.plan.maxDef),
		NumItems: int64(fa.numItems()),
	}
	if l.BitsRep > 0 {
		buf := w.add(packLevels(fa.rep, l.BitsRep), format.PageBuffer)
		l.RepBuffer = &buf
	}
	if l.BitsDef > 0 {
		buf := w.add(packLevels(fa.def, l.BitsDef), format.PageBuffer)
		l.DefBuffer = &buf
	}
	return &format.PageLayout{AllNull: l}, nil
}

func decodeAllNull(l *format.AllNullLayout, typ arrow.DataType, r Resolver, rng Range) (arrow.Array, error) {
	plan, err := planFromLayers(typ, l.Layers)
	if err != nil {
		return arrow.Array{}, err
	}
	numItems := int(l.NumItems)

	var rep, def []uint16
	if l.RepBuffer != nil {
		raw, err := r.Resolve(*l.RepBuffer)
		if err != nil {
			return arrow.Array{}, err
		}
		if rep, err = unpackLevels(raw, l.BitsRep, 0, numItems); err != nil {
			return arrow.Array{}, err
		}
	}
	if l.DefBuffer != nil {
		raw, err := r.Resolve(*l.DefBuffer)
		if err != nil {
			return arrow.Array{}, err
		}
		if def, err = unpackLevels(raw, l.BitsDef, 0, numItems); err != nil {
			return arrow.Array{}, err
		}
	} else {
		def = make([]uint16, numItems)
	}

	numRows, err := countRows(plan, rep, def, numItems)
	if err != nil {
		return arrow.Array{}, err
	}
	if rng.End > int64(numRows) {
		return arrow.Array{}, corruptedf("row range [%d,%d) outside page of %d rows", rng.Begin, rng.End, numRows)
	}
	leaf := arrow.Array{Type: plan.leafType()}
	if leaf.Type.Variable() {
		leaf.Offsets = []int32{0}
	}
	out, err := unflattenArray(typ, l.Layers, rep, def, leaf, numRows)
	if err != nil {
		return arrow.Array{}, err
	}
	return out.Slice(int(rng.Begin), int(rng.End)), nil
}

// countRows derives the row count of an item stream by walking one row shape
// at a time from the plan. Repetition zeroes alone do not delimit rows: a
// fixed size list above every list layer repeats the enclosing level for its
// 2nd and later slots, so a zero can continue a row.
func countRows(plan *repDefPlan, rep, def []uint16, numItems int) (int, error) {
	if plan.maxRep > 0 && len(rep) != numItems {
		return 0, corruptedf("%d repetition levels for %d items", len(rep), numItems)
	}
	rows := 0
	pos := 0
	for pos < numItems {
		next, err := skipElement(plan, rep, def, pos, 0)
		if err != nil {
			return 0, err
		}
		pos = next
		rows++
	}
	return rows, nil
}

// skipElement advances past the items of one element at the given nesting
// level. List elements end at the first item whose repetition level drops
// below the list's depth; fixed size lists consume a fixed number of child
// elements without looking at repetition.
func skipElement(plan *repDefPlan, rep, def []uint16, pos, level int) (int, error) {
	if pos >= len(def) {
		return 0, corruptedf("item stream ends inside an element at level %d", level)
	}
	node := &plan.nodes[level]
	fail, err := plan.failLevel(def[pos])
	if err != nil {
		return 0, err
	}
	if fail >= 0 && fail <= level {
		return pos + 1, nil
	}
	switch node.kind {
	case planFSL:
		for j := 0; j < node.dim; j++ {
			if pos, err = skipElement(plan, rep, def, pos, level+1); err != nil {
				return 0, err
			}
		}
		return pos, nil
	case planStruct:
		return skipElement(plan, rep, def, pos, level+1)
	case planList:
		if pos, err = skipElement(plan, rep, def, pos, level+1); err != nil {
			return 0, err
		}
		for pos < len(def) && rep[pos] >= node.listLevel {
			if pos, err = skipElement(plan, rep, def, pos, level+1); err != nil {
				return 0, err
			}
		}
		return pos, nil
	default:
		return pos + 1, nil
	}
}

// ---- zipped struct pages ----

// zippablePage reports whether a multi-field struct can bypass level
// flattening entirely: fixed width fields and no nulls at any level.
func zippablePage(a *arrow.Array) bool {
	return a.NullCount() == 0 && packable(a)
}

func zipStruct(a *arrow.Array) (data []byte, widths []int32, stride int) {
	widths = make([]int32, len(a.Children))
	for i := range a.Children {
		widths[i] = int32(a.Children[i].Type.FixedWidth())
		stride += int(widths[i])
	}
	data = make([]byte, 0, stride*a.Len)
	for row := 0; row < a.Len; row++ {
		for i := range a.Children {
			cw := int(widths[i])
			data = append(data, a.Children[i].Values[row*cw:(row+1)*cw]...)
		}
	}
	return data, widths, stride
}

func unzipStruct(typ arrow.DataType, data []byte, stride int, n int) (arrow.Array, error) {
	if len(data) < n*stride {
		return arrow.Array{}, corruptedf("zipped struct buffer holds %d bytes for %d rows of %d", len(data), n, stride)
	}
	out := arrow.Array{Type: typ, Len: n, Children: make([]arrow.Array, len(typ.Fields))}
	for i, f := range typ.Fields {
		out.Children[i] = arrow.Array{
			Type:   f.Type,
			Len:    n,
			Values: make([]byte, 0, n*f.Type.FixedWidth()),
		}
	}
	for row := 0; row < n; row++ {
		pos := row * stride
		for i, f := range typ.Fields {
			cw := f.Type.FixedWidth()
			out.Children[i].Values = append(out.Children[i].Values, data[pos:pos+cw]...)
			pos += cw
		}
	}
	return out, nil
}
