package format

// ArrayEncoding is a recursive tree describing how a logical array was
// serialized. Exactly one variant field is set per node; parent variants own
// their child subtrees, leaf variants terminate in buffer references.
type ArrayEncoding struct {
	Flat                            *Flat                            `thrift:"1,optional"`
	Nullable                        *Nullable                        `thrift:"2,optional"`
	Constant                        *Constant                        `thrift:"3,optional"`
	Variable                        *Variable                        `thrift:"4,optional"`
	List                            *List                            `thrift:"5,optional"`
	FixedSizeList                   *FixedSizeList                   `thrift:"6,optional"`
	Struct                          *Struct                          `thrift:"7,optional"`
	PackedStruct                    *PackedStruct                    `thrift:"8,optional"`
	PackedStructFixedWidthMiniBlock *PackedStructFixedWidthMiniBlock `thrift:"9,optional"`
	Dictionary                      *Dictionary                      `thrift:"10,optional"`
	Binary                          *Binary                          `thrift:"11,optional"`
	FixedSizeBinary                 *FixedSizeBinary                 `thrift:"12,optional"`
	Fsst                            *Fsst                            `thrift:"13,optional"`
	Bitpacked                       *Bitpacked                       `thrift:"14,optional"`
	BitpackedForNonNeg              *BitpackedForNonNeg              `thrift:"15,optional"`
	InlineBitpacking                *InlineBitpacking                `thrift:"16,optional"`
	OutOfLineBitpacking             *OutOfLineBitpacking             `thrift:"17,optional"`
	Rle                             *Rle                             `thrift:"18,optional"`
	Bitmap                          *Bitmap                          `thrift:"19,optional"`
	Block                           *Block                           `thrift:"20,optional"`
	GeneralMiniBlock                *GeneralMiniBlock                `thrift:"21,optional"`
}

// Flat stores values contiguously at a fixed bit width, optionally
// compressed as a whole.
type Flat struct {
	BitsPerValue int64        `thrift:"1,required"`
	Buffer       Buffer       `thrift:"2,required"`
	Compression  *Compression `thrift:"3,optional"`
}

// Constant stores a single value repeated NumValues times; it references no
// buffer.
type Constant struct {
	Value     []byte `thrift:"1,required"`
	NumValues int64  `thrift:"2,required"`
}

// Variable stores variable-width values, each prefixed with its byte length
// at BitsPerOffset bits.
type Variable struct {
	BitsPerOffset int64  `thrift:"1,required"`
	Buffer        Buffer `thrift:"2,required"`
}

// Nullable wraps a values subtree with one of three nullability shapes.
// Exactly one of NoNull, SomeNull, AllNull is set.
type Nullable struct {
	NoNull   *NoNull   `thrift:"1,optional"`
	SomeNull *SomeNull `thrift:"2,optional"`
	AllNull  *AllNull  `thrift:"3,optional"`
}

type NoNull struct {
	Values *ArrayEncoding `thrift:"1,required"`
}

// SomeNull keeps a validity subtree (boolean valued) next to the values
// subtree. Values has one entry per row regardless of nullity; no slots are
// elided by this combinator.
type SomeNull struct {
	Validity *ArrayEncoding `thrift:"1,required"`
	Values   *ArrayEncoding `thrift:"2,required"`
}

type AllNull struct{}

// List stores list lengths and nullity in a single offsets subtree using the
// adjusted-offset scheme: a null list at row i is recorded as
// base(i) + len + NullOffsetAdjustment where base(i) is the previous offset
// reduced modulo the adjustment. NullOffsetAdjustment is strictly greater
// than NumItems so marked and unmarked offsets can never collide.
type List struct {
	Offsets              *ArrayEncoding `thrift:"1,required"`
	Items                *ArrayEncoding `thrift:"2,required"`
	NullOffsetAdjustment int64          `thrift:"3,required"`
	NumItems             int64          `thrift:"4,required"`
}

type FixedSizeList struct {
	Items     *ArrayEncoding `thrift:"1,required"`
	Dimension int32          `thrift:"2,required"`
}

// Struct encodes each child field as an independent subtree.
type Struct struct {
	Children []ArrayEncoding `thrift:"1,required"`
}

// PackedStruct zips fixed-width child fields row-wise into a single buffer.
// Children describe the per-field encodings; all must be fixed width.
type PackedStruct struct {
	Children []ArrayEncoding `thrift:"1,required"`
	Buffer   Buffer          `thrift:"2,required"`
}

// PackedStructFixedWidthMiniBlock is the mini-block form of PackedStruct:
// BitsPerValues carries the per-field widths and Flat constrains the zipped
// buffer interpretation.
type PackedStructFixedWidthMiniBlock struct {
	Flat          *ArrayEncoding `thrift:"1,required"`
	BitsPerValues []int32        `thrift:"2,required"`
	NumFields     int32          `thrift:"3,required"`
}

// Dictionary stores deduplicated values in Items and per-row indexes into
// them in Indices. Indices are integers in [0, NumDictionaryItems).
type Dictionary struct {
	Indices            *ArrayEncoding `thrift:"1,required"`
	Items              *ArrayEncoding `thrift:"2,required"`
	NumDictionaryItems int32          `thrift:"3,required"`
}

// Binary stores byte data as an offsets subtree (NumValues+1 entries) plus a
// flat bytes buffer.
type Binary struct {
	Offsets     *ArrayEncoding `thrift:"1,required"`
	Bytes       Buffer         `thrift:"2,required"`
	Compression *Compression   `thrift:"3,optional"`
}

type FixedSizeBinary struct {
	ByteWidth int32  `thrift:"1,required"`
	Buffer    Buffer `thrift:"2,required"`
}

// Fsst wraps a Binary subtree whose bytes buffer holds FSST codes; the
// symbol table needed to expand them lives in SymbolTable.
type Fsst struct {
	Binary      *ArrayEncoding `thrift:"1,required"`
	SymbolTable Buffer         `thrift:"2,required"`
}

// Bitpacked packs signed values at a reduced bit width using the zigzag
// transform. UncompressedBitsPerValue is the width of the original values.
type Bitpacked struct {
	BitsPerValue            int64  `thrift:"1,required"`
	UncompressedBitsPerValue int64 `thrift:"2,required"`
	SignedValues            bool   `thrift:"3,required"`
	Buffer                  Buffer `thrift:"4,required"`
}

// BitpackedForNonNeg packs values that are known to be non-negative; no sign
// bit is spent and negative input is rejected at encode time.
type BitpackedForNonNeg struct {
	BitsPerValue            int64  `thrift:"1,required"`
	UncompressedBitsPerValue int64 `thrift:"2,required"`
	Buffer                  Buffer `thrift:"3,required"`
}

// InlineBitpacking records the packed bit width inline at the head of each
// chunk, allowing heterogeneous widths within one buffer.
type InlineBitpacking struct {
	UncompressedBitsPerValue int64 `thrift:"1,required"`
}

// OutOfLineBitpacking declares a single bit width out of band for the whole
// buffer.
type OutOfLineBitpacking struct {
	BitsPerValue            int64  `thrift:"1,required"`
	UncompressedBitsPerValue int64 `thrift:"2,required"`
	Buffer                  Buffer `thrift:"3,required"`
}

// Rle stores (run length, value) pairs for low cardinality data.
type Rle struct {
	BitsPerValue int64  `thrift:"1,required"`
	Buffer       Buffer `thrift:"2,required"`
}

// Bitmap stores boolean values one bit per value, LSB first.
type Bitmap struct {
	Buffer Buffer `thrift:"1,required"`
}

// Block is an opaque compressed block decoded solely by its compression
// scheme.
type Block struct {
	Compression Compression `thrift:"1,required"`
	Buffer      Buffer      `thrift:"2,required"`
}

// GeneralMiniBlock wraps any mini-block compatible subtree with an extra
// compression pass: decode decompresses the chunk bytes first, then applies
// the inner encoding.
type GeneralMiniBlock struct {
	Inner       *ArrayEncoding `thrift:"1,required"`
	Compression Compression    `thrift:"2,required"`
}

// PageLayout selects exactly one physical strategy for a page and owns the
// encoding subtrees needed to interpret its buffers.
type PageLayout struct {
	MiniBlock *MiniBlockLayout `thrift:"1,optional"`
	AllNull   *AllNullLayout   `thrift:"2,optional"`
	FullZip   *FullZipLayout   `thrift:"3,optional"`
}

// MiniBlockLayout organizes values into sector sized chunks, each carrying
// its own rep, def, and value regions. Chunk framing lives in ChunkMeta;
// when RepetitionIndexDepth is d, each chunk record additionally carries
// d+1 u64 counters, the last one tracking items of an element left
// incomplete at the chunk boundary.
type MiniBlockLayout struct {
	ValueEncoding        *ArrayEncoding `thrift:"1,required"`
	Layers               []RepDefLayer  `thrift:"2,optional"`
	RepetitionIndexDepth int32          `thrift:"3,optional"`
	NumBuffers           int32          `thrift:"4,required"`
	NumItems             int64          `thrift:"5,required"`
	NumRows              int64          `thrift:"6,required"`
	ChunkMeta            Buffer         `thrift:"7,required"`
	RepBits              int32          `thrift:"8,optional"`
	DefBits              int32          `thrift:"9,optional"`
	RepBuffer            *Buffer        `thrift:"10,optional"`
	DefBuffer            *Buffer        `thrift:"11,optional"`
	ValueBuffers         []Buffer       `thrift:"12,required"`
}

// FullZipLayout zips rep, def, and value bytes together per item. Exactly
// one of BitsPerValue (fixed width) or BitsPerOffset (length prefixed
// variable width) is non-zero. NumItems counts every flattened item,
// NumVisibleItems excludes structural padding items introduced by null or
// empty lists.
type FullZipLayout struct {
	Layers          []RepDefLayer `thrift:"1,optional"`
	BitsRep         int32         `thrift:"2,optional"`
	BitsDef         int32         `thrift:"3,optional"`
	BitsPerValue    int64         `thrift:"4,optional"`
	BitsPerOffset   int64         `thrift:"5,optional"`
	NumItems        int64         `thrift:"6,required"`
	NumVisibleItems int64         `thrift:"7,required"`
	NumRows         int64         `thrift:"8,required"`
	Data            Buffer        `thrift:"9,required"`
	RowIndex        *Buffer       `thrift:"10,optional"`
	Compression     *Compression  `thrift:"11,optional"`
}

// AllNullLayout carries no value buffers. Rep and def buffers are present
// only when the layers require distinguishing kinds of nullness.
type AllNullLayout struct {
	Layers    []RepDefLayer `thrift:"1,optional"`
	BitsRep   int32         `thrift:"2,optional"`
	BitsDef   int32         `thrift:"3,optional"`
	NumItems  int64         `thrift:"4,required"`
	RepBuffer *Buffer       `thrift:"5,optional"`
	DefBuffer *Buffer       `thrift:"6,optional"`
}

// ColumnEncoding wraps a column's pages. Wrappers nest recursively before
// reaching Values, which marks that pages describe themselves.
type ColumnEncoding struct {
	Values    *Values    `thrift:"1,optional"`
	ZoneIndex *ZoneIndex `thrift:"2,optional"`
	Blob      *Blob      `thrift:"3,optional"`
}

type Values struct{}

// ZoneIndex divides the column into fixed size zones of RowsPerZone rows and
// keeps one statistics summary per zone in ZoneMapBuffer.
type ZoneIndex struct {
	Inner         *ColumnEncoding `thrift:"1,required"`
	RowsPerZone   int32           `thrift:"2,required"`
	ZoneMapBuffer Buffer          `thrift:"3,required"`
}

// Blob marks the column values as out-of-line large object references: the
// column stores packed (position, size) u64 pairs and the blob bytes are
// fetched externally.
type Blob struct {
	Inner *ColumnEncoding `thrift:"1,required"`
}
