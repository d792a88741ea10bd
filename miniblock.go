package lance

import (
	"encoding/binary"

	"github.com/slyrx/lance/arrow"
	"github.com/slyrx/lance/compress"
	"github.com/slyrx/lance/format"
	"github.com/slyrx/lance/internal/bitpack"
)

// The mini-block layout splits a page into chunks of at most a few thousand
// items, each chunk carrying its own value region so a range read touches
// only the chunks its rows land in. Rep and def streams are bitpacked over
// the whole page at a fixed width, so chunk boundaries need no level
// padding. Chunks are row aligned: an element never straddles two chunks,
// and the trailing partial-element counter of each chunk record is always
// zero.
//
// Each chunk meta record holds, little endian:
//
//	u32 item count
//	u32 row count
//	u32 value region length per value buffer
//	(depth+1) u64 repetition index counters, when a repetition index is kept

// encodeZippedStructPage serializes a no-null fixed-width struct by zipping
// its fields row-wise and chunking the zipped rows.
func encodeZippedStructPage(a *arrow.Array, hints *EncodeHints, w *bufferWriter) (*format.PageLayout, error) {
	data, widths, stride := zipStruct(a)

	rowStarts := make([]int, a.Len+1)
	for i := range rowStarts {
		rowStarts[i] = i
	}
	segments, counts, err := chunkSegments(rowStarts, hints, func(a, b int) ([]byte, error) {
		return data[a*stride : b*stride], nil
	})
	if err != nil {
		return nil, err
	}

	bitsPerValues := make([]int32, len(widths))
	for i, cw := range widths {
		bitsPerValues[i] = 8 * cw
	}
	m := &format.MiniBlockLayout{
		NumBuffers: 1,
		NumItems:   int64(a.Len),
		NumRows:    int64(a.Len),
	}
	m.ChunkMeta = w.add(buildChunkMeta(counts, segments, 0), format.PageBuffer)
	stream := w.add(concatSegments(segments), format.PageBuffer)
	m.ValueBuffers = []format.Buffer{stream}
	m.ValueEncoding = wrapChunkCompression(&format.ArrayEncoding{
		PackedStructFixedWidthMiniBlock: &format.PackedStructFixedWidthMiniBlock{
			Flat: &format.ArrayEncoding{Flat: &format.Flat{
				BitsPerValue: int64(8 * stride),
				Buffer:       stream,
			}},
			BitsPerValues: bitsPerValues,
			NumFields:     int32(len(widths)),
		},
	}, hints)
	if err := recompressSegments(m, hints, segments, counts, w); err != nil {
		return nil, err
	}
	return &format.PageLayout{MiniBlock: m}, nil
}

func encodeMiniBlock(fa *flatArray, hints *EncodeHints, w *bufferWriter) (*format.PageLayout, error) {
	plan := fa.plan
	leaf := leafFromArray(&fa.leaf)

	rowStarts := itemRowStarts(fa)
	definedBefore := make([]int, fa.numItems()+1)
	for i, d := range fa.def {
		definedBefore[i+1] = definedBefore[i]
		if plan.maxDef == 0 || d == plan.maxDef {
			definedBefore[i+1]++
		}
	}

	segments, counts, err := chunkSegments(rowStarts, hints, func(a, b int) ([]byte, error) {
		return encodeChunkValues(leaf.typ, sliceLeaf(leaf, definedBefore[a], definedBefore[b]))
	})
	if err != nil {
		return nil, err
	}

	m := &format.MiniBlockLayout{
		Layers:     plan.layers,
		NumBuffers: 1,
		NumItems:   int64(fa.numItems()),
		NumRows:    int64(fa.numRows),
		RepBits:    repBitWidth(plan.maxRep),
		DefBits:    defBitWidth(plan.maxDef),
	}
	depth := int32(0)
	if plan.maxRep > 0 {
		depth = 1
	}
	m.RepetitionIndexDepth = depth
	m.ChunkMeta = w.add(buildChunkMeta(counts, segments, depth), format.PageBuffer)
	if m.RepBits > 0 {
		buf := w.add(packLevels(fa.rep, m.RepBits), format.PageBuffer)
		m.RepBuffer = &buf
	}
	if m.DefBits > 0 {
		buf := w.add(packLevels(fa.def, m.DefBits), format.PageBuffer)
		m.DefBuffer = &buf
	}
	stream := w.add(concatSegments(segments), format.PageBuffer)
	m.ValueBuffers = []format.Buffer{stream}
	m.ValueEncoding = wrapChunkCompression(miniBlockValueDescriptor(leaf.typ, stream), hints)
	if err := recompressSegments(m, hints, segments, counts, w); err != nil {
		return nil, err
	}
	return &format.PageLayout{MiniBlock: m}, nil
}

// itemRowStarts returns the first item index of each row plus a trailing
// total, derived by walking one row shape at a time from the plan. The
// repetition stream cannot be scanned for zeroes instead: the 2nd and later
// slots of a fixed size list above every list layer also carry zero.
func itemRowStarts(fa *flatArray) []int {
	starts := make([]int, 0, fa.numRows+1)
	pos := 0
	for pos < fa.numItems() {
		starts = append(starts, pos)
		next, err := skipElement(fa.plan, fa.rep, fa.def, pos, 0)
		if err != nil {
			break
		}
		pos = next
	}
	return append(starts, fa.numItems())
}

type chunkCounts struct {
	items int
	rows  int
}

// chunkSegments assigns whole rows to chunks greedily up to the item budget
// and materializes each chunk's value region.
func chunkSegments(rowStarts []int, hints *EncodeHints, values func(a, b int) ([]byte, error)) ([][]byte, []chunkCounts, error) {
	budget := hints.miniBlockChunkItems()
	numRows := len(rowStarts) - 1

	var segments [][]byte
	var counts []chunkCounts
	for row := 0; row < numRows; {
		end := row + 1
		for end < numRows && rowStarts[end+1]-rowStarts[row] <= budget {
			end++
		}
		seg, err := values(rowStarts[row], rowStarts[end])
		if err != nil {
			return nil, nil, err
		}
		segments = append(segments, seg)
		counts = append(counts, chunkCounts{items: rowStarts[end] - rowStarts[row], rows: end - row})
		row = end
	}
	return segments, counts, nil
}

func concatSegments(segments [][]byte) []byte {
	var out []byte
	for _, s := range segments {
		out = append(out, s...)
	}
	return out
}

func buildChunkMeta(counts []chunkCounts, segments [][]byte, depth int32) []byte {
	var out []byte
	var u32 [4]byte
	var u64 [8]byte
	for i, c := range counts {
		binary.LittleEndian.PutUint32(u32[:], uint32(c.items))
		out = append(out, u32[:]...)
		binary.LittleEndian.PutUint32(u32[:], uint32(c.rows))
		out = append(out, u32[:]...)
		binary.LittleEndian.PutUint32(u32[:], uint32(len(segments[i])))
		out = append(out, u32[:]...)
		if depth > 0 {
			binary.LittleEndian.PutUint64(u64[:], uint64(c.rows))
			out = append(out, u64[:]...)
			binary.LittleEndian.PutUint64(u64[:], 0)
			out = append(out, u64[:]...)
		}
	}
	return out
}

// wrapChunkCompression wraps the value descriptor when the caller asked for
// chunk compression.
func wrapChunkCompression(inner *format.ArrayEncoding, hints *EncodeHints) *format.ArrayEncoding {
	c := hints.compression()
	if c == nil {
		return inner
	}
	return &format.ArrayEncoding{GeneralMiniBlock: &format.GeneralMiniBlock{
		Inner:       inner,
		Compression: *c,
	}}
}

// recompressSegments rewrites the value stream with per-chunk compressed
// regions and patches the chunk meta, leaving buffer indexes untouched.
func recompressSegments(m *format.MiniBlockLayout, hints *EncodeHints, segments [][]byte, counts []chunkCounts, w *bufferWriter) error {
	c := hints.compression()
	if c == nil {
		return nil
	}
	codec, err := LookupCompression(c)
	if err != nil {
		return err
	}
	compressed := make([][]byte, len(segments))
	for i, s := range segments {
		if compressed[i], err = codec.Encode(nil, s); err != nil {
			return err
		}
	}
	w.buffers[len(w.buffers)-1].Bytes = concatSegments(compressed)
	w.buffers[metaBufferIndex(w, m.ChunkMeta)].Bytes = buildChunkMeta(counts, compressed, m.RepetitionIndexDepth)
	return nil
}

func metaBufferIndex(w *bufferWriter, ref format.Buffer) int {
	seen := int32(0)
	for i := range w.buffers {
		if w.buffers[i].PreferredScope == ref.BufferType {
			if seen == ref.BufferIndex {
				return i
			}
			seen++
		}
	}
	return -1
}

func miniBlockValueDescriptor(typ arrow.DataType, stream format.Buffer) *format.ArrayEncoding {
	switch {
	case typ.Kind == arrow.Bool:
		return &format.ArrayEncoding{Bitmap: &format.Bitmap{Buffer: stream}}
	case typ.Variable():
		return &format.ArrayEncoding{Variable: &format.Variable{BitsPerOffset: 32, Buffer: stream}}
	case typ.Signed() || typ.Kind == arrow.Uint8 || typ.Kind == arrow.Uint16 ||
		typ.Kind == arrow.Uint32 || typ.Kind == arrow.Uint64:
		return &format.ArrayEncoding{InlineBitpacking: &format.InlineBitpacking{
			UncompressedBitsPerValue: int64(8 * typ.FixedWidth()),
		}}
	default:
		return &format.ArrayEncoding{Flat: &format.Flat{
			BitsPerValue: int64(8 * typ.FixedWidth()),
			Buffer:       stream,
		}}
	}
}

func encodeChunkValues(typ arrow.DataType, v leafValues) ([]byte, error) {
	switch {
	case typ.Kind == arrow.Bool:
		out := make([]byte, arrow.BitmapSize(v.n))
		for i := 0; i < v.n; i++ {
			if v.data[i] != 0 {
				arrow.SetBit(out, i)
			}
		}
		return out, nil
	case typ.Variable():
		return packVariable(v, 32), nil
	case typ.Signed():
		us := v.uints()
		width := typ.FixedWidth()
		for i, u := range us {
			us[i] = bitpack.ZigZag(signExtend(u, width))
		}
		return packInlineChunk(us), nil
	case typ.Kind == arrow.Uint8 || typ.Kind == arrow.Uint16 ||
		typ.Kind == arrow.Uint32 || typ.Kind == arrow.Uint64:
		return packInlineChunk(v.uints()), nil
	default:
		return v.data, nil
	}
}

func decodeChunkValues(inner *format.ArrayEncoding, typ arrow.DataType, raw []byte, count int) (leafValues, error) {
	switch {
	case inner.Bitmap != nil:
		out := make([]byte, count)
		if len(raw) < arrow.BitmapSize(count) {
			return leafValues{}, corruptedf("chunk bitmap holds %d bytes for %d values", len(raw), count)
		}
		for i := 0; i < count; i++ {
			if arrow.BitIsSet(raw, i) {
				out[i] = 1
			}
		}
		return leafValues{typ: typ, n: count, data: out}, nil

	case inner.Variable != nil:
		return unpackVariable(raw, count, inner.Variable.BitsPerOffset, typ)

	case inner.InlineBitpacking != nil:
		us, err := unpackInlineChunk(raw, count)
		if err != nil {
			return leafValues{}, err
		}
		width := int(inner.InlineBitpacking.UncompressedBitsPerValue / 8)
		out := make([]byte, count*width)
		for i, u := range us {
			if typ.Signed() {
				u = uint64(bitpack.UnZigZag(u))
			}
			putFixed(out[i*width:], width, u)
		}
		return leafValues{typ: typ, n: count, data: out}, nil

	case inner.Flat != nil:
		width := int(inner.Flat.BitsPerValue / 8)
		if len(raw) < count*width {
			return leafValues{}, corruptedf("chunk holds %d bytes for %d values of %d", len(raw), count, width)
		}
		return leafValues{typ: typ, n: count, data: raw[:count*width]}, nil

	case inner.PackedStructFixedWidthMiniBlock != nil:
		p := inner.PackedStructFixedWidthMiniBlock
		stride := int(p.Flat.Flat.BitsPerValue / 8)
		if len(raw) < count*stride {
			return leafValues{}, corruptedf("chunk holds %d bytes for %d zipped rows of %d", len(raw), count, stride)
		}
		return leafValues{typ: typ, n: count, data: raw[:count*stride]}, nil

	default:
		return leafValues{}, errUnsupportedf("mini block value encoding")
	}
}

func sliceLeaf(v leafValues, a, b int) leafValues {
	out := leafValues{typ: v.typ, n: b - a}
	if v.offsets != nil {
		out.offsets = rebase32(v.offsets[a : b+1])
		out.data = v.data[v.offsets[a]:v.offsets[b]]
		return out
	}
	w := v.typ.FixedWidth()
	out.data = v.data[a*w : b*w]
	return out
}

func decodeMiniBlock(m *format.MiniBlockLayout, typ arrow.DataType, r Resolver, rng Range) (arrow.Array, error) {
	if rng.End > m.NumRows {
		return arrow.Array{}, corruptedf("row range [%d,%d) outside page of %d rows", rng.Begin, rng.End, m.NumRows)
	}
	inner := m.ValueEncoding
	var codec compress.Codec
	if inner.GeneralMiniBlock != nil {
		var err error
		if codec, err = LookupCompression(&inner.GeneralMiniBlock.Compression); err != nil {
			return arrow.Array{}, err
		}
		inner = inner.GeneralMiniBlock.Inner
	}

	zipped := inner.PackedStructFixedWidthMiniBlock
	if zipped != nil && (typ.Kind != arrow.Struct || len(typ.Fields) != int(zipped.NumFields)) {
		return arrow.Array{}, corruptedf("zipped struct page of %d fields decoded as %s", zipped.NumFields, typ)
	}

	meta, err := r.Resolve(m.ChunkMeta)
	if err != nil {
		return arrow.Array{}, err
	}
	var repRaw, defRaw []byte
	if m.RepBuffer != nil {
		if repRaw, err = r.Resolve(*m.RepBuffer); err != nil {
			return arrow.Array{}, err
		}
	}
	if m.DefBuffer != nil {
		if defRaw, err = r.Resolve(*m.DefBuffer); err != nil {
			return arrow.Array{}, err
		}
	}
	stream, err := r.Resolve(m.ValueBuffers[0])
	if err != nil {
		return arrow.Array{}, err
	}

	leafType := typ
	if zipped == nil {
		plan, err := planFromLayers(typ, m.Layers)
		if err != nil {
			return arrow.Array{}, err
		}
		leafType = plan.leafType()
	}

	recordSize := 8 + 4*int(m.NumBuffers)
	if m.RepetitionIndexDepth > 0 {
		recordSize += 8 * int(m.RepetitionIndexDepth+1)
	}

	var rep, def []uint16
	values := leafValues{typ: leafType}
	if leafType.Variable() {
		values.offsets = make([]int32, 1)
	}
	firstRow := int64(-1)
	cumRows, cumItems, cumBytes := int64(0), 0, 0
	for pos := 0; cumRows < m.NumRows; pos += recordSize {
		if pos+recordSize > len(meta) {
			return arrow.Array{}, corruptedf("chunk meta exhausted after %d of %d rows", cumRows, m.NumRows)
		}
		items := int(binary.LittleEndian.Uint32(meta[pos:]))
		rows := int(binary.LittleEndian.Uint32(meta[pos+4:]))
		segLen := int(binary.LittleEndian.Uint32(meta[pos+8:]))
		if m.RepetitionIndexDepth > 0 {
			partial := binary.LittleEndian.Uint64(meta[pos+recordSize-8:])
			if partial != 0 {
				return arrow.Array{}, errUnsupportedf("chunk split mid element (%d partial items)", partial)
			}
		}
		if rows == 0 {
			return arrow.Array{}, corruptedf("chunk holds no rows")
		}

		chunkStart, chunkEnd := cumRows, cumRows+int64(rows)
		wanted := chunkEnd > rng.Begin && chunkStart < rng.End
		if wanted {
			if firstRow < 0 {
				firstRow = chunkStart
			}
			chunkRep, chunkDef, err := chunkLevels(m, repRaw, defRaw, cumItems, items)
			if err != nil {
				return arrow.Array{}, err
			}
			defined := items
			if m.DefBits > 0 {
				maxDef := uint16(0)
				for _, l := range m.Layers {
					maxDef += uint16(l.DefStates())
				}
				defined = 0
				for _, d := range chunkDef {
					if d == maxDef {
						defined++
					}
				}
			}
			if cumBytes+segLen > len(stream) {
				return arrow.Array{}, corruptedf("chunk value region [%d,%d) outside %d byte buffer",
					cumBytes, cumBytes+segLen, len(stream))
			}
			raw := stream[cumBytes : cumBytes+segLen]
			if codec != nil {
				if raw, err = codec.Decode(nil, raw); err != nil {
					return arrow.Array{}, err
				}
			}
			chunkValues, err := decodeChunkValues(inner, leafType, raw, defined)
			if err != nil {
				return arrow.Array{}, err
			}
			rep = append(rep, chunkRep...)
			def = append(def, chunkDef...)
			appendLeafValues(&values, chunkValues)
		}
		cumRows = chunkEnd
		cumItems += items
		cumBytes += segLen
		if chunkEnd >= rng.End {
			break
		}
	}
	if firstRow < 0 {
		firstRow = rng.Begin
	}
	decodedRows := int(cumRows - firstRow)
	if int64(decodedRows) < rng.End-firstRow {
		return arrow.Array{}, corruptedf("chunks cover %d rows, need %d", decodedRows, rng.End-firstRow)
	}

	var out arrow.Array
	if zipped != nil {
		stride := int(zipped.Flat.Flat.BitsPerValue / 8)
		if out, err = unzipStruct(typ, values.data, stride, values.n); err != nil {
			return arrow.Array{}, err
		}
	} else {
		leaf := leafToArray(values)
		if out, err = unflattenArray(typ, m.Layers, rep, def, leaf, decodedRows); err != nil {
			return arrow.Array{}, err
		}
	}
	return out.Slice(int(rng.Begin-firstRow), int(rng.End-firstRow)), nil
}

func chunkLevels(m *format.MiniBlockLayout, repRaw, defRaw []byte, offset, count int) (rep, def []uint16, err error) {
	if m.RepBits > 0 {
		if rep, err = unpackLevels(repRaw, m.RepBits, offset, count); err != nil {
			return nil, nil, err
		}
	}
	if m.DefBits > 0 {
		if def, err = unpackLevels(defRaw, m.DefBits, offset, count); err != nil {
			return nil, nil, err
		}
	} else {
		def = make([]uint16, count)
	}
	return rep, def, nil
}

func appendLeafValues(dst *leafValues, src leafValues) {
	if dst.offsets != nil {
		base := int32(len(dst.data))
		dst.data = append(dst.data, src.data...)
		for _, o := range src.offsets[1:] {
			dst.offsets = append(dst.offsets, base+o)
		}
	} else {
		dst.data = append(dst.data, src.data...)
	}
	dst.n += src.n
}
