package arrow

import (
	"bytes"
	"fmt"
	"strings"
)

// Equal compares two arrays value by value, including null positions.
// Physical details that do not change the logical content, like bitmap
// versus nil validity or offset bases, do not affect the result.
func Equal(a, b Array) bool {
	if !EqualTypes(a.Type, b.Type) || a.Len != b.Len {
		return false
	}
	for i := 0; i < a.Len; i++ {
		if a.IsNull(i) != b.IsNull(i) {
			return false
		}
		if a.IsNull(i) {
			continue
		}
		if !rowEqual(&a, &b, i) {
			return false
		}
	}
	return true
}

func rowEqual(a, b *Array, i int) bool {
	switch a.Type.Kind {
	case Binary, String, FixedSizeBinary:
		return bytes.Equal(a.BytesValue(i), b.BytesValue(i))

	case List, FixedSizeList:
		alo, ahi := a.ValueRange(i)
		blo, bhi := b.ValueRange(i)
		if ahi-alo != bhi-blo {
			return false
		}
		as := a.Children[0].Slice(alo, ahi)
		bs := b.Children[0].Slice(blo, bhi)
		return Equal(as, bs)

	case Struct:
		for c := range a.Children {
			ca, cb := &a.Children[c], &b.Children[c]
			if ca.IsNull(i) != cb.IsNull(i) {
				return false
			}
			if !ca.IsNull(i) && !rowEqual(ca, cb, i) {
				return false
			}
		}
		return true

	default:
		return a.Uint64Value(i) == b.Uint64Value(i)
	}
}

// Dump renders an array as one line per row, mostly for test failure
// output.
func Dump(a Array) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s len=%d nulls=%d\n", a.Type, a.Len, a.NullCount())
	for i := 0; i < a.Len; i++ {
		fmt.Fprintf(&sb, "[%d] %s\n", i, dumpRow(&a, i))
	}
	return sb.String()
}

func dumpRow(a *Array, i int) string {
	if a.IsNull(i) {
		return "null"
	}
	switch a.Type.Kind {
	case Bool:
		return fmt.Sprintf("%t", a.BoolValue(i))
	case Binary, FixedSizeBinary:
		return fmt.Sprintf("%x", a.BytesValue(i))
	case String:
		return fmt.Sprintf("%q", a.BytesValue(i))
	case List, FixedSizeList:
		lo, hi := a.ValueRange(i)
		parts := make([]string, 0, hi-lo)
		for j := lo; j < hi; j++ {
			parts = append(parts, dumpRow(&a.Children[0], j))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case Struct:
		parts := make([]string, len(a.Children))
		for c := range a.Children {
			parts[c] = a.Type.Fields[c].Name + ": " + dumpRow(&a.Children[c], i)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		if a.Type.Signed() {
			return fmt.Sprintf("%d", a.Int64Value(i))
		}
		return fmt.Sprintf("%d", a.Uint64Value(i))
	}
}
