package lance

import (
	"encoding/binary"
	"fmt"

	"github.com/slyrx/lance/arrow"
	"github.com/slyrx/lance/format"
	"github.com/slyrx/lance/internal/bitpack"
	"github.com/slyrx/lance/internal/bits"
)

// leafValues is the flat representation leaf codecs operate on: fixed-width
// values packed little endian in data, or variable-length values addressed
// by offsets. It carries no validity; nullability is handled by the
// combinators and rep/def machinery above the leaves.
type leafValues struct {
	typ     arrow.DataType
	n       int
	data    []byte
	offsets []int32
}

func (v *leafValues) valueBytes(i int) []byte {
	if v.offsets != nil {
		return v.data[v.offsets[i]:v.offsets[i+1]]
	}
	w := v.typ.FixedWidth()
	return v.data[i*w : (i+1)*w]
}

// uints widens fixed-width values to uint64 without sign extension.
func (v *leafValues) uints() []uint64 {
	w := v.typ.FixedWidth()
	out := make([]uint64, v.n)
	for i := 0; i < v.n; i++ {
		out[i] = readFixed(v.data[i*w:], w)
	}
	return out
}

func readFixed(b []byte, width int) uint64 {
	switch width {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(b))
	case 4:
		return uint64(binary.LittleEndian.Uint32(b))
	default:
		return binary.LittleEndian.Uint64(b)
	}
}

func putFixed(b []byte, width int, v uint64) {
	switch width {
	case 1:
		b[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(v))
	default:
		binary.LittleEndian.PutUint64(b, v)
	}
}

// signExtend interprets a widened value of the given byte width as signed.
func signExtend(u uint64, width int) int64 {
	shift := 64 - 8*width
	return int64(u<<shift) >> shift
}

// leafFromArray extracts the leaf representation of a non-nested array,
// keeping one entry per row. Callers that elide null slots filter rows
// first.
func leafFromArray(a *arrow.Array) leafValues {
	v := leafValues{typ: a.Type, n: a.Len}
	if a.Type.Variable() {
		v.offsets = rebase32(a.Offsets[:a.Len+1])
		v.data = a.Values[a.Offsets[0]:a.Offsets[a.Len]]
	} else {
		w := a.Type.FixedWidth()
		v.data = a.Values[:a.Len*w]
	}
	return v
}

func rebase32(offsets []int32) []int32 {
	if offsets[0] == 0 {
		return offsets
	}
	out := make([]int32, len(offsets))
	base := offsets[0]
	for i, o := range offsets {
		out[i] = o - base
	}
	return out
}

// ---- flat ----

func encodeFlat(v leafValues, c *format.Compression, w *bufferWriter) (*format.ArrayEncoding, error) {
	data := v.data
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
	return &format.ArrayEncoding{Flat: &format.Flat{
		BitsPerValue: int64(8 * v.typ.FixedWidth()),
		Buffer:       w.add(data, format.PageBuffer),
		Compression:  c,
	}}, nil
}

func decodeFlat(e *format.Flat, r Resolver, lo, hi int64, typ arrow.DataType) (leafValues, error) {
	raw, err := r.Resolve(e.Buffer)
	if err != nil {
		return leafValues{}, err
	}
	if e.Compression != nil {
		codec, err := LookupCompression(e.Compression)
		if err != nil {
			return leafValues{}, err
		}
		if raw, err = codec.Decode(nil, raw); err != nil {
			return leafValues{}, fmt.Errorf("decompressing flat buffer: %w", err)
		}
	}
	width := int(e.BitsPerValue / 8)
	if want := hi * int64(width); int64(len(raw)) < want {
		return leafValues{}, corruptedf("flat buffer holds %d bytes, need %d", len(raw), want)
	}
	return leafValues{typ: typ, n: int(hi - lo), data: raw[lo*int64(width) : hi*int64(width)]}, nil
}

// ---- bitmap (booleans) ----

func encodeBitmapLeaf(v leafValues, w *bufferWriter) *format.ArrayEncoding {
	packed := make([]byte, arrow.BitmapSize(v.n))
	for i := 0; i < v.n; i++ {
		if v.data[i] != 0 {
			arrow.SetBit(packed, i)
		}
	}
	return &format.ArrayEncoding{Bitmap: &format.Bitmap{Buffer: w.add(packed, format.PageBuffer)}}
}

func decodeBitmapLeaf(e *format.Bitmap, r Resolver, lo, hi int64, typ arrow.DataType) (leafValues, error) {
	raw, err := r.Resolve(e.Buffer)
	if err != nil {
		return leafValues{}, err
	}
	if int64(len(raw)) < int64(arrow.BitmapSize(int(hi))) {
		return leafValues{}, corruptedf("bitmap buffer holds %d bytes for %d values", len(raw), hi)
	}
	out := make([]byte, hi-lo)
	for i := lo; i < hi; i++ {
		if arrow.BitIsSet(raw, int(i)) {
			out[i-lo] = 1
		}
	}
	return leafValues{typ: typ, n: int(hi - lo), data: out}, nil
}

// ---- bitpacking family ----

func encodeBitpacked(v leafValues, w *bufferWriter) *format.ArrayEncoding {
	width := v.typ.FixedWidth()
	zz := make([]uint64, v.n)
	for i, u := range v.uints() {
		zz[i] = bitpack.ZigZag(signExtend(u, width))
	}
	packedWidth := bits.MaxLen64(zz)
	return &format.ArrayEncoding{Bitpacked: &format.Bitpacked{
		BitsPerValue:             int64(packedWidth),
		UncompressedBitsPerValue: int64(8 * width),
		SignedValues:             true,
		Buffer:                   w.add(bitpack.Pack(nil, uint(packedWidth), zz), format.PageBuffer),
	}}
}

func decodeBitpacked(e *format.Bitpacked, r Resolver, lo, hi int64, typ arrow.DataType) (leafValues, error) {
	raw, err := r.Resolve(e.Buffer)
	if err != nil {
		return leafValues{}, err
	}
	packed, err := bitpack.Unpack(nil, raw, uint(e.BitsPerValue), int(lo), int(hi-lo))
	if err != nil {
		return leafValues{}, corruptedf("bitpacked buffer: %v", err)
	}
	width := int(e.UncompressedBitsPerValue / 8)
	out := make([]byte, len(packed)*width)
	for i, u := range packed {
		if e.SignedValues {
			putFixed(out[i*width:], width, uint64(bitpack.UnZigZag(u)))
		} else {
			putFixed(out[i*width:], width, u)
		}
	}
	return leafValues{typ: typ, n: int(hi - lo), data: out}, nil
}

func nonNegBitpackedFromUints(us []uint64, uncompressedBits int, w *bufferWriter) *format.ArrayEncoding {
	packedWidth := bits.MaxLen64(us)
	return &format.ArrayEncoding{BitpackedForNonNeg: &format.BitpackedForNonNeg{
		BitsPerValue:             int64(packedWidth),
		UncompressedBitsPerValue: int64(uncompressedBits),
		Buffer:                   w.add(bitpack.Pack(nil, uint(packedWidth), us), format.PageBuffer),
	}}
}

func decodeNonNegUints(e *format.BitpackedForNonNeg, r Resolver, lo, hi int64) ([]uint64, error) {
	raw, err := r.Resolve(e.Buffer)
	if err != nil {
		return nil, err
	}
	us, err := bitpack.Unpack(nil, raw, uint(e.BitsPerValue), int(lo), int(hi-lo))
	if err != nil {
		return nil, corruptedf("non-negative bitpacked buffer: %v", err)
	}
	return us, nil
}

func decodeNonNegBitpacked(e *format.BitpackedForNonNeg, r Resolver, lo, hi int64, typ arrow.DataType) (leafValues, error) {
	us, err := decodeNonNegUints(e, r, lo, hi)
	if err != nil {
		return leafValues{}, err
	}
	width := int(e.UncompressedBitsPerValue / 8)
	out := make([]byte, len(us)*width)
	for i, u := range us {
		putFixed(out[i*width:], width, u)
	}
	return leafValues{typ: typ, n: int(hi - lo), data: out}, nil
}

func encodeOutOfLineBitpacked(v leafValues, w *bufferWriter) *format.ArrayEncoding {
	width := v.typ.FixedWidth()
	us := v.uints()
	packedWidth := bits.MaxLen64(us)
	return &format.ArrayEncoding{OutOfLineBitpacking: &format.OutOfLineBitpacking{
		BitsPerValue:             int64(packedWidth),
		UncompressedBitsPerValue: int64(8 * width),
		Buffer:                   w.add(bitpack.Pack(nil, uint(packedWidth), us), format.PageBuffer),
	}}
}

func decodeOutOfLineBitpacked(e *format.OutOfLineBitpacking, r Resolver, lo, hi int64, typ arrow.DataType) (leafValues, error) {
	raw, err := r.Resolve(e.Buffer)
	if err != nil {
		return leafValues{}, err
	}
	us, err := bitpack.Unpack(nil, raw, uint(e.BitsPerValue), int(lo), int(hi-lo))
	if err != nil {
		return leafValues{}, corruptedf("out of line bitpacked buffer: %v", err)
	}
	width := int(e.UncompressedBitsPerValue / 8)
	out := make([]byte, len(us)*width)
	for i, u := range us {
		putFixed(out[i*width:], width, u)
	}
	return leafValues{typ: typ, n: int(hi - lo), data: out}, nil
}

// Inline bitpacking records the packed width in the first byte of each
// chunk, so widths may differ between the chunks of one mini-block buffer.

func packInlineChunk(us []uint64) []byte {
	width := bits.MaxLen64(us)
	out := make([]byte, 1, 1+bitpack.ByteCount(uint(width), len(us)))
	out[0] = byte(width)
	return bitpack.Pack(out, uint(width), us)
}

func unpackInlineChunk(raw []byte, count int) ([]uint64, error) {
	if len(raw) == 0 {
		return nil, corruptedf("empty inline bitpacked chunk")
	}
	width := uint(raw[0])
	if width == 0 || width > 64 {
		return nil, corruptedf("inline bitpacked chunk declares width %d", width)
	}
	us, err := bitpack.Unpack(nil, raw[1:], width, 0, count)
	if err != nil {
		return nil, corruptedf("inline bitpacked chunk: %v", err)
	}
	return us, nil
}

// ---- run length ----

const rleRunHeader = 4 // u32 run length

func encodeRle(v leafValues, w *bufferWriter) *format.ArrayEncoding {
	width := v.typ.FixedWidth()
	var out []byte
	for i := 0; i < v.n; {
		j := i + 1
		for j < v.n && readFixed(v.data[j*width:], width) == readFixed(v.data[i*width:], width) {
			j++
		}
		var run [rleRunHeader]byte
		binary.LittleEndian.PutUint32(run[:], uint32(j-i))
		out = append(out, run[:]...)
		out = append(out, v.data[i*width:(i+1)*width]...)
		i = j
	}
	return &format.ArrayEncoding{Rle: &format.Rle{
		BitsPerValue: int64(8 * width),
		Buffer:       w.add(out, format.PageBuffer),
	}}
}

func decodeRle(e *format.Rle, r Resolver, lo, hi int64, typ arrow.DataType) (leafValues, error) {
	raw, err := r.Resolve(e.Buffer)
	if err != nil {
		return leafValues{}, err
	}
	width := int(e.BitsPerValue / 8)
	out := make([]byte, 0, int(hi-lo)*width)
	pos, row := 0, int64(0)
	for row < hi {
		if pos+rleRunHeader+width > len(raw) {
			return leafValues{}, corruptedf("rle buffer exhausted at row %d of %d", row, hi)
		}
		run := int64(binary.LittleEndian.Uint32(raw[pos:]))
		value := raw[pos+rleRunHeader : pos+rleRunHeader+width]
		pos += rleRunHeader + width

		take := run
		if row+take > hi {
			take = hi - row
		}
		skip := int64(0)
		if row < lo {
			skip = lo - row
			if skip > take {
				skip = take
			}
		}
		for k := skip; k < take; k++ {
			out = append(out, value...)
		}
		row += run
	}
	return leafValues{typ: typ, n: int(hi - lo), data: out}, nil
}

// ---- variable width ----

// Variable packs each value as a little endian length prefix (32 or 64
// bits) followed by its bytes.

func packVariable(v leafValues, bitsPerOffset int64) []byte {
	prefix := int(bitsPerOffset / 8)
	out := make([]byte, 0, len(v.data)+prefix*v.n)
	for i := 0; i < v.n; i++ {
		b := v.valueBytes(i)
		var hdr [8]byte
		putFixed(hdr[:], prefix, uint64(len(b)))
		out = append(out, hdr[:prefix]...)
		out = append(out, b...)
	}
	return out
}

func unpackVariable(raw []byte, count int, bitsPerOffset int64, typ arrow.DataType) (leafValues, error) {
	prefix := int(bitsPerOffset / 8)
	v := leafValues{typ: typ, n: count, offsets: make([]int32, 1, count+1)}
	pos := 0
	for i := 0; i < count; i++ {
		if pos+prefix > len(raw) {
			return leafValues{}, corruptedf("variable width buffer exhausted at value %d of %d", i, count)
		}
		n := int(readFixed(raw[pos:], prefix))
		pos += prefix
		if pos+n > len(raw) {
			return leafValues{}, corruptedf("variable width value %d of %d bytes overruns buffer", i, n)
		}
		v.data = append(v.data, raw[pos:pos+n]...)
		v.offsets = append(v.offsets, int32(len(v.data)))
		pos += n
	}
	return v, nil
}

func encodeVariable(v leafValues, w *bufferWriter) *format.ArrayEncoding {
	return &format.ArrayEncoding{Variable: &format.Variable{
		BitsPerOffset: 32,
		Buffer:        w.add(packVariable(v, 32), format.PageBuffer),
	}}
}

// ---- binary ----

func encodeBinaryLeaf(v leafValues, c *format.Compression, w *bufferWriter) (*format.ArrayEncoding, error) {
	offs := make([]uint64, v.n+1)
	for i, o := range v.offsets {
		offs[i] = uint64(o)
	}
	offsetsEnc := nonNegBitpackedFromUints(offs, 32, w)

	data := v.data
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
	return &format.ArrayEncoding{Binary: &format.Binary{
		Offsets:     offsetsEnc,
		Bytes:       w.add(data, format.PageBuffer),
		Compression: c,
	}}, nil
}

func decodeBinaryLeaf(e *format.Binary, r Resolver, lo, hi int64, typ arrow.DataType) (leafValues, error) {
	if e.Offsets.BitpackedForNonNeg == nil {
		return leafValues{}, corruptedf("binary offsets use an unexpected encoding")
	}
	offs, err := decodeNonNegUints(e.Offsets.BitpackedForNonNeg, r, lo, hi+1)
	if err != nil {
		return leafValues{}, err
	}
	raw, err := r.Resolve(e.Bytes)
	if err != nil {
		return leafValues{}, err
	}
	if e.Compression != nil {
		codec, err := LookupCompression(e.Compression)
		if err != nil {
			return leafValues{}, err
		}
		if raw, err = codec.Decode(nil, raw); err != nil {
			return leafValues{}, fmt.Errorf("decompressing binary buffer: %w", err)
		}
	}
	v := leafValues{typ: typ, n: int(hi - lo), offsets: make([]int32, hi-lo+1)}
	base := offs[0]
	for i, o := range offs {
		if o < base || o > uint64(len(raw)) {
			return leafValues{}, corruptedf("binary offset %d out of order or past %d bytes", o, len(raw))
		}
		v.offsets[i] = int32(o - base)
	}
	v.data = raw[base:offs[hi-lo]]
	return v, nil
}

// ---- constant ----

func encodeConstant(v leafValues) *format.ArrayEncoding {
	return &format.ArrayEncoding{Constant: &format.Constant{
		Value:     append([]byte(nil), v.valueBytes(0)...),
		NumValues: int64(v.n),
	}}
}

func decodeConstant(e *format.Constant, lo, hi int64, typ arrow.DataType) (leafValues, error) {
	if hi > e.NumValues {
		return leafValues{}, corruptedf("constant encoding holds %d values, need %d", e.NumValues, hi)
	}
	v := leafValues{typ: typ, n: int(hi - lo)}
	if typ.Variable() {
		v.offsets = make([]int32, 1, v.n+1)
		for i := 0; i < v.n; i++ {
			v.data = append(v.data, e.Value...)
			v.offsets = append(v.offsets, int32(len(v.data)))
		}
	} else {
		for i := 0; i < v.n; i++ {
			v.data = append(v.data, e.Value...)
		}
	}
	return v, nil
}

// ---- block ----

func encodeBlock(v leafValues, c format.Compression, w *bufferWriter) (*format.ArrayEncoding, error) {
	codec, err := LookupCompression(&c)
	if err != nil {
		return nil, err
	}
	compressed, err := codec.Encode(nil, v.data)
	if err != nil {
		return nil, err
	}
	return &format.ArrayEncoding{Block: &format.Block{
		Compression: c,
		Buffer:      w.add(compressed, format.PageBuffer),
	}}, nil
}

func decodeBlock(e *format.Block, r Resolver, lo, hi int64, typ arrow.DataType) (leafValues, error) {
	raw, err := r.Resolve(e.Buffer)
	if err != nil {
		return leafValues{}, err
	}
	codec, err := LookupCompression(&e.Compression)
	if err != nil {
		return leafValues{}, err
	}
	data, err := codec.Decode(nil, raw)
	if err != nil {
		return leafValues{}, fmt.Errorf("decompressing block buffer: %w", err)
	}
	width := typ.FixedWidth()
	if width == 0 {
		return leafValues{}, corruptedf("block encoding used for variable width type %s", typ)
	}
	if want := hi * int64(width); int64(len(data)) < want {
		return leafValues{}, corruptedf("block holds %d bytes, need %d", len(data), want)
	}
	return leafValues{typ: typ, n: int(hi - lo), data: data[lo*int64(width) : hi*int64(width)]}, nil
}
