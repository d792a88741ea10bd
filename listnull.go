package lance

import "github.com/slyrx/lance/arrow"

// List lengths and nullity are folded into a single offsets stream using an
// adjusted-offset scheme. With base(i) = 0 for i == 0 and
// offsets[i-1] mod adjustment otherwise:
//
//	non-null row i: offsets[i] = base(i) + len(i)
//	null row i:     offsets[i] = base(i) + len(i) + adjustment
//
// The adjustment is strictly greater than the total item count, so a marked
// offset can never collide with an unmarked one, and base(i) always recovers
// the exact cumulative item count. Locating the items of rows [lo, hi)
// touches only offsets[lo-1] and offsets[hi-1].

// encodeAdjustedOffsets folds the list array's offsets and validity into
// one stream. Null rows occupy zero items. The adjustment returned is
// numItems+1.
func encodeAdjustedOffsets(a *arrow.Array) (offsets []uint64, numItems, adjustment int64) {
	numItems = int64(a.Offsets[a.Len])
	adjustment = numItems + 1
	offsets = make([]uint64, a.Len)
	base := int64(0)
	for i := 0; i < a.Len; i++ {
		length := int64(a.Offsets[i+1] - a.Offsets[i])
		v := base + length
		if a.IsNull(i) {
			v += adjustment
		}
		offsets[i] = uint64(v)
		base += length
	}
	return offsets, numItems, adjustment
}

// adjustedOffsets interprets an adjusted offset stream at decode time. The
// stream may be a partial window of the page's rows; firstBase carries the
// cumulative item count preceding the window (offsets[lo-1] mod adjustment,
// or 0 at the page start).
type adjustedOffsets struct {
	offsets    []uint64
	adjustment int64
	numItems   int64
	firstBase  int64
}

func (o *adjustedOffsets) base(i int) int64 {
	if i == 0 {
		return o.firstBase
	}
	return int64(o.offsets[i-1] % uint64(o.adjustment))
}

func (o *adjustedOffsets) isNull(i int) bool {
	return int64(o.offsets[i])-o.base(i) >= o.adjustment
}

// length returns the list length at row i after validating that the offset
// is consistent with the declared item count.
func (o *adjustedOffsets) length(i int) (int64, error) {
	v := int64(o.offsets[i]) - o.base(i)
	if v >= o.adjustment {
		v -= o.adjustment
	}
	if v < 0 || o.base(i)+v > o.numItems {
		return 0, corruptedf("list offset %d at row %d implies length %d incompatible with %d items",
			o.offsets[i], i, v, o.numItems)
	}
	return v, nil
}

// itemEnd returns the cumulative item count after row i.
func (o *adjustedOffsets) itemEnd(i int) int64 {
	return int64(o.offsets[i] % uint64(o.adjustment))
}
