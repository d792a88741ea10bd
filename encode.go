package lance

import (
	"bytes"
	"fmt"

	"github.com/slyrx/lance/arrow"
	"github.com/slyrx/lance/format"
)

// EncodeHints tunes encoding selection. The zero value picks reasonable
// defaults; hints never change what can be decoded, only what gets chosen.
type EncodeHints struct {
	// Compression, when set, is applied to the byte buffers of flat, binary,
	// and mini-block value data.
	Compression *format.Compression

	// MaxDictionarySize caps the number of distinct values a dictionary
	// encoding may hold. Defaults to 65536.
	MaxDictionarySize int

	// FsstMinBytes is the smallest total byte size of variable-width data
	// for which FSST is considered. Defaults to 4096.
	FsstMinBytes int

	// RleMinRunLength is the smallest average run length for which run
	// length encoding is chosen. Defaults to 4.
	RleMinRunLength int

	// MiniBlockMaxValueBytes is the largest average value size routed to the
	// mini-block layout; larger values use full-zip. Defaults to 128.
	MiniBlockMaxValueBytes int

	// MiniBlockChunkItems caps the number of items per mini-block chunk.
	// Defaults to 4096.
	MiniBlockChunkItems int
}

func (h *EncodeHints) maxDictionarySize() int {
	if h != nil && h.MaxDictionarySize > 0 {
		return h.MaxDictionarySize
	}
	return 1 << 16
}

func (h *EncodeHints) fsstMinBytes() int {
	if h != nil && h.FsstMinBytes > 0 {
		return h.FsstMinBytes
	}
	return 4096
}

func (h *EncodeHints) rleMinRunLength() int {
	if h != nil && h.RleMinRunLength > 0 {
		return h.RleMinRunLength
	}
	return 4
}

func (h *EncodeHints) miniBlockMaxValueBytes() int {
	if h != nil && h.MiniBlockMaxValueBytes > 0 {
		return h.MiniBlockMaxValueBytes
	}
	return 128
}

func (h *EncodeHints) miniBlockChunkItems() int {
	if h != nil && h.MiniBlockChunkItems > 0 {
		return h.MiniBlockChunkItems
	}
	return 4096
}

func (h *EncodeHints) compression() *format.Compression {
	if h != nil {
		return h.Compression
	}
	return nil
}

// EncodeArray serializes a logical array into an encoding tree plus the
// buffers backing it. The tree is built recursively: nullability wrapping is
// chosen first, structural combinators recurse into children, and leaf
// encodings are picked from per-leaf statistics.
func EncodeArray(a arrow.Array, hints *EncodeHints) (*format.ArrayEncoding, []EncodedBuffer, error) {
	if err := a.Check(); err != nil {
		return nil, nil, err
	}
	w := new(bufferWriter)
	enc, err := encodeNode(&a, hints, w)
	if err != nil {
		return nil, nil, err
	}
	if err := enc.Validate(); err != nil {
		return nil, nil, err
	}
	return enc, w.buffers, nil
}

func encodeNode(a *arrow.Array, hints *EncodeHints, w *bufferWriter) (*format.ArrayEncoding, error) {
	// List nullity rides on the adjusted offsets, so list nodes skip the
	// nullable wrapper entirely.
	if a.Type.Kind == arrow.List {
		return encodeList(a, hints, w)
	}

	nulls := a.NullCount()
	switch {
	case a.Len > 0 && nulls == a.Len:
		return &format.ArrayEncoding{Nullable: &format.Nullable{AllNull: &format.AllNull{}}}, nil

	case nulls > 0:
		validity := encodeValidity(a, w)
		values, err := encodeValues(sanitized(a), hints, w)
		if err != nil {
			return nil, err
		}
		return &format.ArrayEncoding{Nullable: &format.Nullable{SomeNull: &format.SomeNull{
			Validity: validity,
			Values:   values,
		}}}, nil

	default:
		values, err := encodeValues(a, hints, w)
		if err != nil {
			return nil, err
		}
		return &format.ArrayEncoding{Nullable: &format.Nullable{NoNull: &format.NoNull{
			Values: values,
		}}}, nil
	}
}

func encodeValidity(a *arrow.Array, w *bufferWriter) *format.ArrayEncoding {
	v := leafValues{typ: arrow.PrimitiveOf(arrow.Bool), n: a.Len, data: make([]byte, a.Len)}
	for i := 0; i < a.Len; i++ {
		if !a.IsNull(i) {
			v.data[i] = 1
		}
	}
	return encodeBitmapLeaf(v, w)
}

// encodeValues encodes the value part of a node, below any nullability
// wrapper. Values keep one slot per row regardless of nullity.
func encodeValues(a *arrow.Array, hints *EncodeHints, w *bufferWriter) (*format.ArrayEncoding, error) {
	switch a.Type.Kind {
	case arrow.List:
		return encodeList(a, hints, w)

	case arrow.FixedSizeList:
		items, err := encodeNode(&a.Children[0], hints, w)
		if err != nil {
			return nil, err
		}
		return &format.ArrayEncoding{FixedSizeList: &format.FixedSizeList{
			Items:     items,
			Dimension: int32(a.Type.Size),
		}}, nil

	case arrow.Struct:
		if packable(a) {
			return encodePackedStruct(a, w)
		}
		children := make([]format.ArrayEncoding, len(a.Children))
		for i := range a.Children {
			child, err := encodeNode(&a.Children[i], hints, w)
			if err != nil {
				return nil, fmt.Errorf("encoding struct field %q: %w", a.Type.Fields[i].Name, err)
			}
			children[i] = *child
		}
		return &format.ArrayEncoding{Struct: &format.Struct{Children: children}}, nil

	default:
		return encodeLeaf(leafFromArray(a), hints, w, true)
	}
}

func encodeList(a *arrow.Array, hints *EncodeHints, w *bufferWriter) (*format.ArrayEncoding, error) {
	offsets, numItems, adjustment := encodeAdjustedOffsets(a)
	offsetsEnc := nonNegBitpackedFromUints(offsets, 64, w)
	items, err := encodeNode(&a.Children[0], hints, w)
	if err != nil {
		return nil, err
	}
	return &format.ArrayEncoding{List: &format.List{
		Offsets:              offsetsEnc,
		Items:                items,
		NullOffsetAdjustment: adjustment,
		NumItems:             numItems,
	}}, nil
}

// packable reports whether a struct can be zipped row-wise: every field
// fixed width with no nulls of its own.
func packable(a *arrow.Array) bool {
	if len(a.Children) == 0 {
		return false
	}
	for i := range a.Children {
		c := &a.Children[i]
		if c.Type.FixedWidth() == 0 || c.NullCount() > 0 {
			return false
		}
	}
	return true
}

func encodePackedStruct(a *arrow.Array, w *bufferWriter) (*format.ArrayEncoding, error) {
	stride := 0
	for i := range a.Children {
		stride += a.Children[i].Type.FixedWidth()
	}
	zipped := make([]byte, 0, stride*a.Len)
	for row := 0; row < a.Len; row++ {
		for i := range a.Children {
			c := &a.Children[i]
			cw := c.Type.FixedWidth()
			zipped = append(zipped, c.Values[row*cw:(row+1)*cw]...)
		}
	}
	children := make([]format.ArrayEncoding, len(a.Children))
	for i := range a.Children {
		children[i] = format.ArrayEncoding{Flat: &format.Flat{
			BitsPerValue: int64(8 * a.Children[i].Type.FixedWidth()),
			Buffer:       format.Buffer{BufferIndex: 0, BufferType: format.PageBuffer},
		}}
	}
	enc := &format.ArrayEncoding{PackedStruct: &format.PackedStruct{
		Children: children,
		Buffer:   w.add(zipped, format.PageBuffer),
	}}
	for i := range enc.PackedStruct.Children {
		enc.PackedStruct.Children[i].Flat.Buffer = enc.PackedStruct.Buffer
	}
	return enc, nil
}

// sanitized returns a copy of the array whose null slots hold zero bytes,
// so that value statistics and round trips are deterministic.
func sanitized(a *arrow.Array) *arrow.Array {
	if a.NullCount() == 0 || a.Type.Nested() {
		return a
	}
	out := *a
	if a.Type.Variable() {
		out.Offsets = make([]int32, a.Len+1)
		var data []byte
		for i := 0; i < a.Len; i++ {
			if !a.IsNull(i) {
				data = append(data, a.BytesValue(i)...)
			}
			out.Offsets[i+1] = int32(len(data))
		}
		out.Values = data
	} else {
		w := a.Type.FixedWidth()
		out.Values = append([]byte(nil), a.Values[:a.Len*w]...)
		for i := 0; i < a.Len; i++ {
			if a.IsNull(i) {
				for j := i * w; j < (i+1)*w; j++ {
					out.Values[j] = 0
				}
			}
		}
	}
	return &out
}

// encodeLeaf picks a physical encoding for flat values from their
// statistics: cardinality, run structure, value width, and total size.
func encodeLeaf(v leafValues, hints *EncodeHints, w *bufferWriter, allowDict bool) (*format.ArrayEncoding, error) {
	if v.n == 0 {
		if v.typ.Variable() {
			return encodeBinaryLeaf(leafValues{typ: v.typ, offsets: []int32{0}}, nil, w)
		}
		return encodeFlat(v, nil, w)
	}
	if constantLeaf(&v) {
		return encodeConstant(v), nil
	}

	switch v.typ.Kind {
	case arrow.Bool:
		return encodeBitmapLeaf(v, w), nil

	case arrow.Binary, arrow.String:
		if allowDict {
			if distinct := distinctCount(&v, hints.maxDictionarySize()); distinct <= v.n/2 && v.n >= 8 {
				return encodeDictionary(v, distinct, hints, w)
			}
		}
		if len(v.data) >= hints.fsstMinBytes() {
			return encodeFsst(v, w)
		}
		if v.n < 8 && hints.compression() == nil {
			// Too few values for a separate offsets buffer to pay off.
			return encodeVariable(v, w), nil
		}
		return encodeBinaryLeaf(v, hints.compression(), w)

	case arrow.Float32, arrow.Float64:
		return encodeFlat(v, hints.compression(), w)

	case arrow.FixedSizeBinary:
		if c := hints.compression(); c != nil {
			return encodeBlock(v, *c, w)
		}
		return encodeFlat(v, nil, w)

	default:
		if avgRunLength(&v) >= hints.rleMinRunLength() {
			return encodeRle(v, w), nil
		}
		width := v.typ.FixedWidth()
		if v.typ.Signed() {
			enc := encodeBitpacked(v, w)
			if enc.Bitpacked.BitsPerValue*4 >= int64(8*width)*3 {
				// Packing saves too little to be worth the transform.
				return replaceLastBuffer(v, hints, w)
			}
			return enc, nil
		}
		enc := encodeOutOfLineBitpacked(v, w)
		if enc.OutOfLineBitpacking.BitsPerValue*4 >= int64(8*width)*3 {
			return replaceLastBuffer(v, hints, w)
		}
		return enc, nil
	}
}

// replaceLastBuffer swaps the just-written bitpacked page buffer for a flat
// one when packing turned out not to pay. The bitpacked buffer is the last
// one emitted, so its bytes can be rewritten in place and its per-scope
// index reused.
func replaceLastBuffer(v leafValues, hints *EncodeHints, w *bufferWriter) (*format.ArrayEncoding, error) {
	data := v.data
	c := hints.compression()
	if c != nil {
		codec, err := LookupCompression(c)
		if err != nil {
			return nil, err
		}
		compressed, err := codec.Encode(nil, data)
		if err != nil {
			return nil, err
		}
		data = compressed
	}
	w.buffers[len(w.buffers)-1].Bytes = data
	return &format.ArrayEncoding{Flat: &format.Flat{
		BitsPerValue: int64(8 * v.typ.FixedWidth()),
		Buffer: format.Buffer{
			BufferIndex: w.next[format.PageBuffer] - 1,
			BufferType:  format.PageBuffer,
		},
		Compression: c,
	}}, nil
}

func constantLeaf(v *leafValues) bool {
	first := v.valueBytes(0)
	for i := 1; i < v.n; i++ {
		if !bytes.Equal(v.valueBytes(i), first) {
			return false
		}
	}
	return true
}

func distinctCount(v *leafValues, limit int) int {
	seen := make(map[string]struct{}, limit)
	for i := 0; i < v.n; i++ {
		seen[string(v.valueBytes(i))] = struct{}{}
		if len(seen) > limit {
			break
		}
	}
	return len(seen)
}

func avgRunLength(v *leafValues) int {
	if v.n == 0 {
		return 0
	}
	runs := 1
	for i := 1; i < v.n; i++ {
		if !bytes.Equal(v.valueBytes(i), v.valueBytes(i-1)) {
			runs++
		}
	}
	return v.n / runs
}

// encodeDictionary deduplicates values, keeping the items at column scope
// so other pages of the column may share them.
func encodeDictionary(v leafValues, distinct int, hints *EncodeHints, w *bufferWriter) (*format.ArrayEncoding, error) {
	index := make(map[string]uint64, distinct)
	items := leafValues{typ: v.typ, offsets: []int32{0}}
	indices := make([]uint64, v.n)
	for i := 0; i < v.n; i++ {
		key := string(v.valueBytes(i))
		id, ok := index[key]
		if !ok {
			id = uint64(items.n)
			index[key] = id
			items.data = append(items.data, key...)
			items.offsets = append(items.offsets, int32(len(items.data)))
			items.n++
		}
		indices[i] = id
	}

	indicesEnc := nonNegBitpackedFromUints(indices, 32, w)

	itemsWriter := new(bufferWriter)
	itemsEnc, err := encodeLeaf(items, hints, itemsWriter, false)
	if err != nil {
		return nil, err
	}
	adoptBuffers(itemsEnc, w, itemsWriter, format.ColumnBuffer)

	return &format.ArrayEncoding{Dictionary: &format.Dictionary{
		Indices:            indicesEnc,
		Items:              itemsEnc,
		NumDictionaryItems: int32(items.n),
	}}, nil
}

// adoptBuffers moves the buffers of a subtree encoded with a scratch writer
// into w at the given scope, rewriting the subtree's buffer references to
// their new indexes.
func adoptBuffers(enc *format.ArrayEncoding, w, scratch *bufferWriter, scope format.BufferType) {
	mapping := make(map[format.Buffer]format.Buffer, len(scratch.buffers))
	var counts [3]int32
	for _, b := range scratch.buffers {
		old := format.Buffer{BufferIndex: counts[b.PreferredScope], BufferType: b.PreferredScope}
		counts[b.PreferredScope]++
		mapping[old] = w.add(b.Bytes, scope)
	}
	walkBuffers(enc, func(b *format.Buffer) { *b = mapping[*b] })
}

func walkBuffers(enc *format.ArrayEncoding, fix func(*format.Buffer)) {
	switch {
	case enc.Flat != nil:
		fix(&enc.Flat.Buffer)
	case enc.Variable != nil:
		fix(&enc.Variable.Buffer)
	case enc.Bitmap != nil:
		fix(&enc.Bitmap.Buffer)
	case enc.Rle != nil:
		fix(&enc.Rle.Buffer)
	case enc.Block != nil:
		fix(&enc.Block.Buffer)
	case enc.Bitpacked != nil:
		fix(&enc.Bitpacked.Buffer)
	case enc.BitpackedForNonNeg != nil:
		fix(&enc.BitpackedForNonNeg.Buffer)
	case enc.OutOfLineBitpacking != nil:
		fix(&enc.OutOfLineBitpacking.Buffer)
	case enc.FixedSizeBinary != nil:
		fix(&enc.FixedSizeBinary.Buffer)
	case enc.Binary != nil:
		walkBuffers(enc.Binary.Offsets, fix)
		fix(&enc.Binary.Bytes)
	case enc.Fsst != nil:
		walkBuffers(enc.Fsst.Binary, fix)
		fix(&enc.Fsst.SymbolTable)
	case enc.GeneralMiniBlock != nil:
		walkBuffers(enc.GeneralMiniBlock.Inner, fix)
	}
}
