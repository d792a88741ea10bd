package lance

import (
	"bytes"
	"math"

	"github.com/slyrx/lance/arrow"
	"github.com/slyrx/lance/format"
)

// A zone index cuts a column into fixed size zones and keeps min, max, and
// null statistics per zone. Readers turn a predicate over those statistics
// into the list of row ranges that may match; a zone whose statistics cannot
// be read is never skipped.

// EncodeZonedColumn encodes the array as one page wrapped in a zone index.
// Zone statistics are kept for flat and nullable flat arrays; nested arrays
// get empty min and max bounds, which pruning treats as must scan.
func EncodeZonedColumn(a arrow.Array, hints *EncodeHints, rowsPerZone int32) (*format.ColumnEncoding, *format.PageLayout, []EncodedBuffer, error) {
	if rowsPerZone <= 0 {
		return nil, nil, nil, corruptedf("rows_per_zone=%d", rowsPerZone)
	}
	layout, buffers, err := EncodePage(a, hints)
	if err != nil {
		return nil, nil, nil, err
	}
	w := &bufferWriter{buffers: buffers}
	for _, b := range buffers {
		w.next[b.PreferredScope]++
	}

	zoneMap := buildZoneMap(&a, int(rowsPerZone))
	raw, err := format.Marshal(zoneMap)
	if err != nil {
		return nil, nil, nil, err
	}
	ce := &format.ColumnEncoding{ZoneIndex: &format.ZoneIndex{
		Inner:         &format.ColumnEncoding{Values: &format.Values{}},
		RowsPerZone:   rowsPerZone,
		ZoneMapBuffer: w.add(raw, format.ColumnBuffer),
	}}
	return ce, layout, w.buffers, nil
}

func buildZoneMap(a *arrow.Array, rowsPerZone int) *format.ZoneMap {
	zm := new(format.ZoneMap)
	for lo := 0; lo < a.Len; lo += rowsPerZone {
		hi := lo + rowsPerZone
		if hi > a.Len {
			hi = a.Len
		}
		zm.Zones = append(zm.Zones, zoneStats(a, lo, hi))
	}
	return zm
}

func zoneStats(a *arrow.Array, lo, hi int) format.ZoneStats {
	stats := format.ZoneStats{NumRows: int64(hi - lo)}
	for i := lo; i < hi; i++ {
		if a.IsNull(i) {
			stats.NullCount++
		}
	}
	if a.Type.Nested() {
		return stats
	}
	for i := lo; i < hi; i++ {
		if a.IsNull(i) {
			continue
		}
		v := valueBytesAt(a, i)
		if stats.Min == nil || compareValues(a.Type, v, stats.Min) < 0 {
			stats.Min = append([]byte(nil), v...)
		}
		if stats.Max == nil || compareValues(a.Type, v, stats.Max) > 0 {
			stats.Max = append([]byte(nil), v...)
		}
	}
	return stats
}

func valueBytesAt(a *arrow.Array, i int) []byte {
	if a.Type.Variable() || a.Type.Kind == arrow.FixedSizeBinary {
		return a.BytesValue(i)
	}
	w := a.Type.FixedWidth()
	return a.Values[i*w : (i+1)*w]
}

// compareValues orders two serialized values of the same type: numerically
// for integers and floats, bytewise for everything else.
func compareValues(typ arrow.DataType, a, b []byte) int {
	switch {
	case typ.Signed():
		av := signExtend(readFixed(a, len(a)), len(a))
		bv := signExtend(readFixed(b, len(b)), len(b))
		return compareInt64(av, bv)
	case typ.Kind == arrow.Uint8 || typ.Kind == arrow.Uint16 ||
		typ.Kind == arrow.Uint32 || typ.Kind == arrow.Uint64 || typ.Kind == arrow.Bool:
		return compareUint64(readFixed(a, len(a)), readFixed(b, len(b)))
	case typ.Kind == arrow.Float32:
		return compareFloat64(float64(math.Float32frombits(uint32(readFixed(a, 4)))),
			float64(math.Float32frombits(uint32(readFixed(b, 4)))))
	case typ.Kind == arrow.Float64:
		return compareFloat64(math.Float64frombits(readFixed(a, 8)),
			math.Float64frombits(readFixed(b, 8)))
	default:
		return bytes.Compare(a, b)
	}
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareUint64(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareFloat64(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// ZoneFilter decides, from one zone's statistics, whether the zone may hold
// matching rows.
type ZoneFilter func(stats *format.ZoneStats) bool

// PruneZones resolves the column's zone map and returns the row ranges a
// scan must visit. Zones whose statistics are missing or malformed are kept:
// pruning is an optimization, never a correctness decision. Adjacent
// surviving zones are merged into one range.
func PruneZones(ce *format.ColumnEncoding, numRows int64, r Resolver, keep ZoneFilter) ([]Range, error) {
	if err := ce.Validate(); err != nil {
		return nil, err
	}
	if ce.ZoneIndex == nil {
		return []Range{{Begin: 0, End: numRows}}, nil
	}
	zi := ce.ZoneIndex
	rowsPerZone := int64(zi.RowsPerZone)

	var zm format.ZoneMap
	raw, err := r.Resolve(zi.ZoneMapBuffer)
	if err != nil || format.Unmarshal(raw, &zm) != nil {
		return []Range{{Begin: 0, End: numRows}}, nil
	}

	var out []Range
	zone := 0
	for lo := int64(0); lo < numRows; lo += rowsPerZone {
		hi := lo + rowsPerZone
		if hi > numRows {
			hi = numRows
		}
		mustScan := zone >= len(zm.Zones) || zm.Zones[zone].NumRows != hi-lo
		if mustScan || keep == nil || keep(&zm.Zones[zone]) {
			if n := len(out); n > 0 && out[n-1].End == lo {
				out[n-1].End = hi
			} else {
				out = append(out, Range{Begin: lo, End: hi})
			}
		}
		zone++
	}
	return out, nil
}
