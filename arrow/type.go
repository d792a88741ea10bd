// Package arrow provides the minimal logical array model consumed and
// produced by the codec: nullable, nested, variable-length arrays backed by
// validity bitmaps and flat byte buffers.
package arrow

import "fmt"

type Kind int

const (
	Bool Kind = iota
	Int8
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
	Float32
	Float64
	Binary
	String
	FixedSizeBinary
	List
	FixedSizeList
	Struct
)

func (k Kind) String() string {
	switch k {
	case Bool:
		return "bool"
	case Int8:
		return "int8"
	case Int16:
		return "int16"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Uint8:
		return "uint8"
	case Uint16:
		return "uint16"
	case Uint32:
		return "uint32"
	case Uint64:
		return "uint64"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Binary:
		return "binary"
	case String:
		return "string"
	case FixedSizeBinary:
		return "fixed_size_binary"
	case List:
		return "list"
	case FixedSizeList:
		return "fixed_size_list"
	case Struct:
		return "struct"
	default:
		return "invalid"
	}
}

// DataType describes the logical type of an array. Elem is set for List and
// FixedSizeList, Fields for Struct, ByteWidth for FixedSizeBinary, and Size
// for the FixedSizeList dimension.
type DataType struct {
	Kind      Kind
	ByteWidth int
	Size      int
	Elem      *DataType
	Fields    []Field
}

type Field struct {
	Name string
	Type DataType
}

func (t DataType) String() string {
	switch t.Kind {
	case List:
		return fmt.Sprintf("list<%s>", t.Elem)
	case FixedSizeList:
		return fmt.Sprintf("fixed_size_list<%s>[%d]", t.Elem, t.Size)
	case Struct:
		s := "struct<"
		for i, f := range t.Fields {
			if i > 0 {
				s += ", "
			}
			s += f.Name + ": " + f.Type.String()
		}
		return s + ">"
	case FixedSizeBinary:
		return fmt.Sprintf("fixed_size_binary[%d]", t.ByteWidth)
	default:
		return t.Kind.String()
	}
}

// FixedWidth returns the number of bytes one value of the type occupies in
// the values buffer, or 0 if the type is variable length or nested.
// Booleans occupy one byte in the logical model; encodings are free to pack
// them tighter on the wire.
func (t DataType) FixedWidth() int {
	switch t.Kind {
	case Bool, Int8, Uint8:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Int64, Uint64, Float64:
		return 8
	case FixedSizeBinary:
		return t.ByteWidth
	default:
		return 0
	}
}

// Signed reports whether the type holds signed integer values.
func (t DataType) Signed() bool {
	switch t.Kind {
	case Int8, Int16, Int32, Int64:
		return true
	default:
		return false
	}
}

// Nested reports whether the type has child arrays.
func (t DataType) Nested() bool {
	switch t.Kind {
	case List, FixedSizeList, Struct:
		return true
	default:
		return false
	}
}

// Variable reports whether values of the type are variable length byte
// sequences.
func (t DataType) Variable() bool {
	return t.Kind == Binary || t.Kind == String
}

// EqualTypes reports whether two data types are structurally identical.
func EqualTypes(a, b DataType) bool {
	if a.Kind != b.Kind || a.ByteWidth != b.ByteWidth || a.Size != b.Size {
		return false
	}
	if (a.Elem == nil) != (b.Elem == nil) {
		return false
	}
	if a.Elem != nil && !EqualTypes(*a.Elem, *b.Elem) {
		return false
	}
	if len(a.Fields) != len(b.Fields) {
		return false
	}
	for i := range a.Fields {
		if a.Fields[i].Name != b.Fields[i].Name || !EqualTypes(a.Fields[i].Type, b.Fields[i].Type) {
			return false
		}
	}
	return true
}

// Convenience constructors for the common types.

func PrimitiveOf(k Kind) DataType { return DataType{Kind: k} }

func ListOf(elem DataType) DataType { return DataType{Kind: List, Elem: &elem} }

func FixedSizeListOf(size int, elem DataType) DataType {
	return DataType{Kind: FixedSizeList, Size: size, Elem: &elem}
}

func StructOf(fields ...Field) DataType { return DataType{Kind: Struct, Fields: fields} }

func FixedSizeBinaryOf(width int) DataType {
	return DataType{Kind: FixedSizeBinary, ByteWidth: width}
}
