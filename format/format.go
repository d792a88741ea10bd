// Package format defines the wire descriptors of the lance page encoding
// format.
//
// Descriptors are serialized with the thrift compact protocol and accompany
// the raw buffer bytes placed at page, column, or file scope by the file
// layer. Descriptors are purely descriptive: they are constructed once at
// write time and never mutated by readers.
package format

import (
	"fmt"

	"github.com/segmentio/encoding/thrift"
)

// BufferType declares the scope a buffer reference is resolved against.
type BufferType int32

const (
	PageBuffer BufferType = iota
	ColumnBuffer
	FileBuffer
)

func (t BufferType) String() string {
	switch t {
	case PageBuffer:
		return "page"
	case ColumnBuffer:
		return "column"
	case FileBuffer:
		return "file"
	default:
		return "unknown"
	}
}

// Buffer is a logical reference to a byte buffer. The index is unique within
// its scope and resolved relative to the page, column, or file currently
// being decoded, never globally.
type Buffer struct {
	BufferIndex int32      `thrift:"1,required"`
	BufferType  BufferType `thrift:"2,required"`
}

func (b Buffer) String() string {
	return fmt.Sprintf("%s[%d]", b.BufferType, b.BufferIndex)
}

// Compression names a compression scheme and optional level. The scheme is
// an opaque string dispatched to the codec registry; the codec itself never
// interprets it beyond invocation.
type Compression struct {
	Scheme string `thrift:"1,required"`
	Level  int32  `thrift:"2,optional"`
}

// RepDefLayer describes the semantic meaning of one repetition/definition
// layer, top-to-bottom. Layers proven trivial at encode time are omitted
// from the serialized sequence.
type RepDefLayer int32

const (
	RepDefUnspecified RepDefLayer = iota

	// An item layer with no nulls. Serialized only when a sibling item
	// layer in the same run between list layers carries nulls; otherwise
	// trivial item layers are dropped.
	AllValidItem

	// A list layer with no nulls and no empty lists. The layer contributes
	// repetition levels but no definition state.
	AllValidList

	// An item layer with at least one null. One definition state.
	NullableItem

	// A list layer with null lists but no empty lists.
	NullableList

	// A list layer with empty lists but no null lists.
	EmptyableList

	// A list layer with both null and empty lists. Two definition states.
	NullAndEmptyList
)

func (l RepDefLayer) String() string {
	switch l {
	case AllValidItem:
		return "ALL_VALID_ITEM"
	case AllValidList:
		return "ALL_VALID_LIST"
	case NullableItem:
		return "NULLABLE_ITEM"
	case NullableList:
		return "NULLABLE_LIST"
	case EmptyableList:
		return "EMPTYABLE_LIST"
	case NullAndEmptyList:
		return "NULL_AND_EMPTY_LIST"
	default:
		return "UNSPECIFIED"
	}
}

// IsList reports whether the layer tracks a list nesting level.
func (l RepDefLayer) IsList() bool {
	switch l {
	case AllValidList, NullableList, EmptyableList, NullAndEmptyList:
		return true
	default:
		return false
	}
}

// DefStates returns the number of definition states the layer consumes.
func (l RepDefLayer) DefStates() int {
	switch l {
	case NullableItem, NullableList, EmptyableList:
		return 1
	case NullAndEmptyList:
		return 2
	default:
		return 0
	}
}

var protocol thrift.CompactProtocol

// Marshal serializes a descriptor with the thrift compact protocol.
func Marshal(v interface{}) ([]byte, error) {
	return thrift.Marshal(&protocol, v)
}

// Unmarshal deserializes a descriptor produced by Marshal.
func Unmarshal(b []byte, v interface{}) error {
	return thrift.Unmarshal(&protocol, b, v)
}
