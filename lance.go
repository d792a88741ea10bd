// Package lance implements the columnar array and page encoding codec of
// the lance storage format: it composes trees of encodings to represent
// nested, nullable, variable-length logical arrays, flattens arbitrary
// nesting into repetition and definition streams, packs values into one of
// three physical page layouts, and decodes arbitrary row ranges without
// scanning pages from the start.
//
// Encode and decode are stateless, pure transforms over immutable
// descriptors and read-only byte buffers, so independent pages and disjoint
// row ranges may be processed concurrently without coordination. Physical
// buffer placement and I/O belong to the file layer: encode returns
// descriptors plus (bytes, preferred scope) pairs, decode accepts a
// descriptor, a buffer resolver, and a row range.
package lance

import (
	"errors"
	"fmt"

	"github.com/slyrx/lance/format"
)

var (
	// ErrCorrupted is returned when buffer bytes or descriptors are
	// inconsistent with each other in a way that cannot be decoded.
	ErrCorrupted = errors.New("lance: corrupted page data")

	// ErrUnsupported is returned when a descriptor references a feature,
	// such as a compression scheme, that this codec cannot execute.
	ErrUnsupported = errors.New("lance: unsupported feature")
)

func corruptedf(msg string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrCorrupted, fmt.Sprintf(msg, args...))
}

func errUnsupportedf(msg string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrUnsupported, fmt.Sprintf(msg, args...))
}

// Range selects the logical rows [Begin, End) of a page or column.
type Range struct {
	Begin int64
	End   int64
}

func (r Range) Len() int64 { return r.End - r.Begin }

// EncodedBuffer is one output buffer of an encode operation. The codec only
// states the scope the buffer should be placed at; final physical placement
// is the file layer's responsibility.
type EncodedBuffer struct {
	Bytes          []byte
	PreferredScope format.BufferType
}

// A Resolver maps a logical buffer reference to the physical bytes it
// denotes. Resolution is a pure, read-only lookup; implementations must
// fail on indexes that are out of range for their declared scope rather
// than returning arbitrary bytes.
type Resolver interface {
	Resolve(format.Buffer) ([]byte, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(format.Buffer) ([]byte, error)

func (f ResolverFunc) Resolve(b format.Buffer) ([]byte, error) { return f(b) }

// BufferSet resolves buffer references against in-memory slices per scope.
// Page buffers travel with the page being decoded, column buffers are
// shared by every page of the column, and file buffers by the whole file.
type BufferSet struct {
	Page   [][]byte
	Column [][]byte
	File   [][]byte
}

func (s *BufferSet) Resolve(b format.Buffer) ([]byte, error) {
	var scope [][]byte
	switch b.BufferType {
	case format.PageBuffer:
		scope = s.Page
	case format.ColumnBuffer:
		scope = s.Column
	case format.FileBuffer:
		scope = s.File
	default:
		return nil, corruptedf("buffer reference with unknown scope %d", int32(b.BufferType))
	}
	if b.BufferIndex < 0 || int(b.BufferIndex) >= len(scope) {
		return nil, corruptedf("buffer %s out of range, scope holds %d buffers", b, len(scope))
	}
	return scope[b.BufferIndex], nil
}

// PageBuffers wraps the buffers returned by an encode call as a BufferSet
// keyed by their preferred scope, which is how a file layer that honors
// every placement preference would expose them back to decode.
func PageBuffers(buffers []EncodedBuffer) *BufferSet {
	s := new(BufferSet)
	for _, b := range buffers {
		switch b.PreferredScope {
		case format.ColumnBuffer:
			s.Column = append(s.Column, b.Bytes)
		case format.FileBuffer:
			s.File = append(s.File, b.Bytes)
		default:
			s.Page = append(s.Page, b.Bytes)
		}
	}
	return s
}

// bufferWriter assigns buffer indexes in emission order, one sequence per
// scope, mirroring how PageBuffers lays them back out.
type bufferWriter struct {
	buffers []EncodedBuffer
	next    [3]int32
}

func (w *bufferWriter) add(bytes []byte, scope format.BufferType) format.Buffer {
	index := w.next[scope]
	w.next[scope]++
	w.buffers = append(w.buffers, EncodedBuffer{Bytes: bytes, PreferredScope: scope})
	return format.Buffer{BufferIndex: index, BufferType: scope}
}
