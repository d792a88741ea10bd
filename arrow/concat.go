package arrow

import "fmt"

// Concat appends arrays of the same type row-wise. It exists so that range
// decodes of adjacent row ranges can be stitched back together and compared
// against a single full decode.
func Concat(arrays ...Array) (Array, error) {
	if len(arrays) == 0 {
		return Array{}, fmt.Errorf("arrow: concat of zero arrays")
	}
	out := arrays[0]
	for _, a := range arrays[1:] {
		var err error
		if out, err = concat2(out, a); err != nil {
			return Array{}, err
		}
	}
	return out, nil
}

func concat2(a, b Array) (Array, error) {
	if !EqualTypes(a.Type, b.Type) {
		return Array{}, fmt.Errorf("arrow: concat of %s and %s arrays", a.Type, b.Type)
	}
	out := Array{
		Type:     a.Type,
		Len:      a.Len + b.Len,
		Validity: concatValidity(a.Validity, a.Len, b.Validity, b.Len),
	}
	switch a.Type.Kind {
	case Binary, String:
		out.Values = append(append([]byte(nil), a.Values[:a.Offsets[a.Len]]...), b.Values[:b.Offsets[b.Len]]...)
		out.Offsets = concatOffsets(a.Offsets, b.Offsets)

	case List:
		child, err := concat2(a.Children[0], b.Children[0])
		if err != nil {
			return Array{}, err
		}
		out.Offsets = concatOffsets(a.Offsets, b.Offsets)
		out.Children = []Array{child}

	case FixedSizeList:
		child, err := concat2(a.Children[0], b.Children[0])
		if err != nil {
			return Array{}, err
		}
		out.Children = []Array{child}

	case Struct:
		out.Children = make([]Array, len(a.Children))
		for i := range a.Children {
			child, err := concat2(a.Children[i], b.Children[i])
			if err != nil {
				return Array{}, err
			}
			out.Children[i] = child
		}

	default:
		w := a.Type.FixedWidth()
		out.Values = append(append([]byte(nil), a.Values[:a.Len*w]...), b.Values[:b.Len*w]...)
	}
	return out, nil
}

func concatOffsets(a, b []int32) []int32 {
	out := make([]int32, 0, len(a)+len(b)-1)
	out = append(out, a...)
	base := a[len(a)-1] - b[0]
	for _, o := range b[1:] {
		out = append(out, base+o)
	}
	return out
}

func concatValidity(a []byte, alen int, b []byte, blen int) []byte {
	if a == nil && b == nil {
		return nil
	}
	out := make([]byte, BitmapSize(alen+blen))
	for i := 0; i < alen; i++ {
		if BitIsSet(a, i) {
			SetBit(out, i)
		}
	}
	for i := 0; i < blen; i++ {
		if BitIsSet(b, i) {
			SetBit(out, alen+i)
		}
	}
	return out
}
