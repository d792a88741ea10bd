package lance

import (
	"encoding/binary"

	"github.com/slyrx/lance/arrow"
	"github.com/slyrx/lance/format"
)

// The full-zip layout serializes one self-contained record per item: its
// repetition level, its definition level, and its value bytes, zipped
// together so that a row occupies one contiguous byte range. A row index of
// (byte offset, item index) pairs gives O(1) entry into the stream; it is
// omitted only when items are rows and records are fixed size, where
// multiplication does the same job.
//
// Items truncated at a list or fixed size list layer are invisible: their
// record carries levels only. Visible null items keep a value field, zeroed
// or zero length, so record sizes stay derivable from the levels.

const fullZipLevelBits = 16

func encodeFullZip(fa *flatArray, hints *EncodeHints, w *bufferWriter) (*format.PageLayout, error) {
	plan := fa.plan
	leaf := leafFromArray(&fa.leaf)
	variable := leaf.typ.Variable()
	width := 0
	if !variable {
		width = leaf.typ.FixedWidth()
	}

	f := &format.FullZipLayout{
		Layers:          plan.layers,
		NumItems:        int64(fa.numItems()),
		NumVisibleItems: int64(fa.numVisible()),
		NumRows:         int64(fa.numRows),
		Compression:     hints.compression(),
	}
	if plan.maxRep > 0 {
		f.BitsRep = fullZipLevelBits
	}
	if plan.maxDef > 0 {
		f.BitsDef = fullZipLevelBits
	}
	if variable {
		f.BitsPerOffset = 32
	} else {
		f.BitsPerValue = int64(8 * width)
	}

	starts := itemRowStarts(fa)
	var data, rowIndex []byte
	var u16 [2]byte
	var u32 [4]byte
	var u64 [8]byte
	definedIdx := 0
	rowCursor := 0
	for i := 0; i < fa.numItems(); i++ {
		if rowCursor < fa.numRows && starts[rowCursor] == i {
			binary.LittleEndian.PutUint64(u64[:], uint64(len(data)))
			rowIndex = append(rowIndex, u64[:]...)
			binary.LittleEndian.PutUint64(u64[:], uint64(i))
			rowIndex = append(rowIndex, u64[:]...)
			rowCursor++
		}
		if f.BitsRep > 0 {
			binary.LittleEndian.PutUint16(u16[:], fa.rep[i])
			data = append(data, u16[:]...)
		}
		if f.BitsDef > 0 {
			binary.LittleEndian.PutUint16(u16[:], fa.def[i])
			data = append(data, u16[:]...)
		}
		if !fa.visible(fa.def[i]) {
			continue
		}
		defined := plan.maxDef == 0 || fa.def[i] == plan.maxDef
		if variable {
			var b []byte
			if defined {
				b = leaf.valueBytes(definedIdx)
			}
			binary.LittleEndian.PutUint32(u32[:], uint32(len(b)))
			data = append(data, u32[:]...)
			data = append(data, b...)
		} else if defined {
			data = append(data, leaf.valueBytes(definedIdx)...)
		} else {
			data = append(data, make([]byte, width)...)
		}
		if defined {
			definedIdx++
		}
	}

	if f.Compression != nil {
		codec, err := LookupCompression(f.Compression)
		if err != nil {
			return nil, err
		}
		if data, err = codec.Encode(nil, data); err != nil {
			return nil, err
		}
	}
	f.Data = w.add(data, format.PageBuffer)
	if variable || plan.maxRep > 0 || f.NumItems != f.NumRows {
		buf := w.add(rowIndex, format.PageBuffer)
		f.RowIndex = &buf
	}
	return &format.PageLayout{FullZip: f}, nil
}

func decodeFullZip(f *format.FullZipLayout, typ arrow.DataType, r Resolver, rng Range) (arrow.Array, error) {
	if rng.End > f.NumRows {
		return arrow.Array{}, corruptedf("row range [%d,%d) outside page of %d rows", rng.Begin, rng.End, f.NumRows)
	}
	if (f.BitsRep != 0 && f.BitsRep != fullZipLevelBits) ||
		(f.BitsDef != 0 && f.BitsDef != fullZipLevelBits) {
		return arrow.Array{}, errUnsupportedf("full zip level width rep=%d def=%d", f.BitsRep, f.BitsDef)
	}
	plan, err := planFromLayers(typ, f.Layers)
	if err != nil {
		return arrow.Array{}, err
	}

	raw, err := r.Resolve(f.Data)
	if err != nil {
		return arrow.Array{}, err
	}
	if f.Compression != nil {
		codec, err := LookupCompression(f.Compression)
		if err != nil {
			return arrow.Array{}, err
		}
		if raw, err = codec.Decode(nil, raw); err != nil {
			return arrow.Array{}, err
		}
	}

	variable := f.BitsPerOffset != 0
	width := int(f.BitsPerValue / 8)

	var startOff, endOff, startItem, endItem int64
	if f.RowIndex != nil {
		idx, err := r.Resolve(*f.RowIndex)
		if err != nil {
			return arrow.Array{}, err
		}
		if int64(len(idx)) < 16*f.NumRows {
			return arrow.Array{}, corruptedf("row index holds %d bytes for %d rows", len(idx), f.NumRows)
		}
		startOff = int64(binary.LittleEndian.Uint64(idx[16*rng.Begin:]))
		startItem = int64(binary.LittleEndian.Uint64(idx[16*rng.Begin+8:]))
		if rng.End < f.NumRows {
			endOff = int64(binary.LittleEndian.Uint64(idx[16*rng.End:]))
			endItem = int64(binary.LittleEndian.Uint64(idx[16*rng.End+8:]))
		} else {
			endOff = int64(len(raw))
			endItem = f.NumItems
		}
	} else {
		if variable || f.NumItems != f.NumRows {
			return arrow.Array{}, corruptedf("full zip page without a row index needs fixed size records")
		}
		record := int64(width)
		if f.BitsDef > 0 {
			record += 2
		}
		startOff, endOff = rng.Begin*record, rng.End*record
		startItem, endItem = rng.Begin, rng.End
	}
	if startOff > endOff || endOff > int64(len(raw)) || startItem > endItem {
		return arrow.Array{}, corruptedf("row index window [%d,%d) outside %d byte buffer", startOff, endOff, len(raw))
	}

	numItems := int(endItem - startItem)
	rep := make([]uint16, 0, numItems)
	def := make([]uint16, 0, numItems)
	values := leafValues{typ: plan.leafType()}
	if variable {
		values.offsets = make([]int32, 1)
	}
	pos := startOff
	for i := 0; i < numItems; i++ {
		d := plan.maxDef
		if f.BitsRep > 0 {
			if pos+2 > endOff {
				return arrow.Array{}, corruptedf("record %d truncated in repetition level", i)
			}
			rep = append(rep, binary.LittleEndian.Uint16(raw[pos:]))
			pos += 2
		}
		if f.BitsDef > 0 {
			if pos+2 > endOff {
				return arrow.Array{}, corruptedf("record %d truncated in definition level", i)
			}
			d = binary.LittleEndian.Uint16(raw[pos:])
			pos += 2
		}
		def = append(def, d)

		fail, err := plan.failLevel(d)
		if err != nil {
			return arrow.Array{}, err
		}
		visible := fail < 0 || plan.nodes[fail].kind == planStruct || plan.nodes[fail].kind == planLeaf
		if !visible {
			continue
		}
		defined := fail < 0
		if variable {
			if pos+4 > endOff {
				return arrow.Array{}, corruptedf("record %d truncated in length prefix", i)
			}
			n := int64(binary.LittleEndian.Uint32(raw[pos:]))
			pos += 4
			if pos+n > endOff {
				return arrow.Array{}, corruptedf("record %d value of %d bytes overruns window", i, n)
			}
			if defined {
				values.data = append(values.data, raw[pos:pos+n]...)
				values.offsets = append(values.offsets, int32(len(values.data)))
				values.n++
			}
			pos += n
		} else {
			if pos+int64(width) > endOff {
				return arrow.Array{}, corruptedf("record %d truncated in value", i)
			}
			if defined {
				values.data = append(values.data, raw[pos:pos+int64(width)]...)
				values.n++
			}
			pos += int64(width)
		}
	}
	if pos != endOff {
		return arrow.Array{}, corruptedf("records of %d items span %d bytes, window holds %d",
			numItems, pos-startOff, endOff-startOff)
	}

	return unflattenArray(typ, f.Layers, rep, def, leafToArray(values), int(rng.End-rng.Begin))
}
