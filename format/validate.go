package format

import (
	"errors"
	"fmt"
)

// ErrMalformed is the base error of every descriptor validation failure.
var ErrMalformed = errors.New("malformed encoding descriptor")

func malformed(msg string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(msg, args...))
}

// Validate checks the structural invariants of the encoding tree: exactly
// one variant per node, required children present, and positive bit widths
// on leaves. It is called before any buffer bytes are touched.
func (e *ArrayEncoding) Validate() error {
	if e == nil {
		return malformed("nil encoding node")
	}
	variants := 0
	for _, set := range []bool{
		e.Flat != nil,
		e.Nullable != nil,
		e.Constant != nil,
		e.Variable != nil,
		e.List != nil,
		e.FixedSizeList != nil,
		e.Struct != nil,
		e.PackedStruct != nil,
		e.PackedStructFixedWidthMiniBlock != nil,
		e.Dictionary != nil,
		e.Binary != nil,
		e.FixedSizeBinary != nil,
		e.Fsst != nil,
		e.Bitpacked != nil,
		e.BitpackedForNonNeg != nil,
		e.InlineBitpacking != nil,
		e.OutOfLineBitpacking != nil,
		e.Rle != nil,
		e.Bitmap != nil,
		e.Block != nil,
		e.GeneralMiniBlock != nil,
	} {
		if set {
			variants++
		}
	}
	if variants != 1 {
		return malformed("encoding node has %d variants set, want exactly 1", variants)
	}

	switch {
	case e.Flat != nil:
		if e.Flat.BitsPerValue <= 0 {
			return malformed("flat encoding has bits_per_value=%d", e.Flat.BitsPerValue)
		}

	case e.Constant != nil:
		if e.Constant.NumValues < 0 {
			return malformed("constant encoding has num_values=%d", e.Constant.NumValues)
		}

	case e.Variable != nil:
		if e.Variable.BitsPerOffset != 32 && e.Variable.BitsPerOffset != 64 {
			return malformed("variable encoding has bits_per_offset=%d, want 32 or 64", e.Variable.BitsPerOffset)
		}

	case e.Nullable != nil:
		n := e.Nullable
		set := 0
		if n.NoNull != nil {
			set++
		}
		if n.SomeNull != nil {
			set++
		}
		if n.AllNull != nil {
			set++
		}
		if set != 1 {
			return malformed("nullable encoding has %d nullability variants set", set)
		}
		if n.NoNull != nil {
			return n.NoNull.Values.Validate()
		}
		if n.SomeNull != nil {
			if err := n.SomeNull.Validity.Validate(); err != nil {
				return err
			}
			return n.SomeNull.Values.Validate()
		}

	case e.List != nil:
		l := e.List
		if l.NullOffsetAdjustment <= l.NumItems {
			return malformed("list null_offset_adjustment=%d must exceed num_items=%d",
				l.NullOffsetAdjustment, l.NumItems)
		}
		if err := l.Offsets.Validate(); err != nil {
			return err
		}
		return l.Items.Validate()

	case e.FixedSizeList != nil:
		if e.FixedSizeList.Dimension <= 0 {
			return malformed("fixed size list has dimension=%d", e.FixedSizeList.Dimension)
		}
		return e.FixedSizeList.Items.Validate()

	case e.Struct != nil:
		if len(e.Struct.Children) == 0 {
			return malformed("struct encoding has no children")
		}
		for i := range e.Struct.Children {
			if err := e.Struct.Children[i].Validate(); err != nil {
				return fmt.Errorf("struct child %d: %w", i, err)
			}
		}

	case e.PackedStruct != nil:
		if len(e.PackedStruct.Children) == 0 {
			return malformed("packed struct encoding has no children")
		}
		for i := range e.PackedStruct.Children {
			child := &e.PackedStruct.Children[i]
			if err := child.Validate(); err != nil {
				return fmt.Errorf("packed struct child %d: %w", i, err)
			}
			if child.Flat == nil {
				return malformed("packed struct child %d is not a flat encoding", i)
			}
		}

	case e.PackedStructFixedWidthMiniBlock != nil:
		p := e.PackedStructFixedWidthMiniBlock
		if p.NumFields <= 0 || int(p.NumFields) != len(p.BitsPerValues) {
			return malformed("packed struct mini block declares %d fields with %d widths",
				p.NumFields, len(p.BitsPerValues))
		}
		for i, bits := range p.BitsPerValues {
			if bits <= 0 {
				return malformed("packed struct mini block field %d has bits_per_value=%d", i, bits)
			}
		}
		if err := p.Flat.Validate(); err != nil {
			return err
		}
		if p.Flat.Flat == nil {
			return malformed("packed struct mini block inner encoding must be flat")
		}

	case e.Dictionary != nil:
		d := e.Dictionary
		if d.NumDictionaryItems < 0 {
			return malformed("dictionary has num_dictionary_items=%d", d.NumDictionaryItems)
		}
		if err := d.Indices.Validate(); err != nil {
			return err
		}
		return d.Items.Validate()

	case e.Binary != nil:
		return e.Binary.Offsets.Validate()

	case e.FixedSizeBinary != nil:
		if e.FixedSizeBinary.ByteWidth <= 0 {
			return malformed("fixed size binary has byte_width=%d", e.FixedSizeBinary.ByteWidth)
		}

	case e.Fsst != nil:
		if err := e.Fsst.Binary.Validate(); err != nil {
			return err
		}
		if e.Fsst.Binary.Binary == nil {
			return malformed("fsst inner encoding must be binary")
		}

	case e.Bitpacked != nil:
		b := e.Bitpacked
		if b.BitsPerValue <= 0 || b.BitsPerValue > 64 {
			return malformed("bitpacked encoding has bits_per_value=%d", b.BitsPerValue)
		}
		if b.UncompressedBitsPerValue <= 0 {
			return malformed("bitpacked encoding has uncompressed_bits_per_value=%d", b.UncompressedBitsPerValue)
		}

	case e.BitpackedForNonNeg != nil:
		b := e.BitpackedForNonNeg
		if b.BitsPerValue <= 0 || b.BitsPerValue > 64 {
			return malformed("bitpacked for non neg encoding has bits_per_value=%d", b.BitsPerValue)
		}
		if b.UncompressedBitsPerValue <= 0 {
			return malformed("bitpacked for non neg encoding has uncompressed_bits_per_value=%d", b.UncompressedBitsPerValue)
		}

	case e.InlineBitpacking != nil:
		if e.InlineBitpacking.UncompressedBitsPerValue <= 0 {
			return malformed("inline bitpacking has uncompressed_bits_per_value=%d",
				e.InlineBitpacking.UncompressedBitsPerValue)
		}

	case e.OutOfLineBitpacking != nil:
		b := e.OutOfLineBitpacking
		if b.BitsPerValue <= 0 || b.BitsPerValue > 64 {
			return malformed("out of line bitpacking has bits_per_value=%d", b.BitsPerValue)
		}
		if b.UncompressedBitsPerValue <= 0 {
			return malformed("out of line bitpacking has uncompressed_bits_per_value=%d", b.UncompressedBitsPerValue)
		}

	case e.Rle != nil:
		if e.Rle.BitsPerValue <= 0 {
			return malformed("rle encoding has bits_per_value=%d", e.Rle.BitsPerValue)
		}

	case e.Block != nil:
		if e.Block.Compression.Scheme == "" {
			return malformed("block encoding has empty compression scheme")
		}

	case e.GeneralMiniBlock != nil:
		if e.GeneralMiniBlock.Compression.Scheme == "" {
			return malformed("general mini block has empty compression scheme")
		}
		return e.GeneralMiniBlock.Inner.Validate()
	}
	return nil
}

// Validate checks that exactly one layout variant is set and that its fields
// are internally consistent.
func (l *PageLayout) Validate() error {
	if l == nil {
		return malformed("nil page layout")
	}
	variants := 0
	if l.MiniBlock != nil {
		variants++
	}
	if l.AllNull != nil {
		variants++
	}
	if l.FullZip != nil {
		variants++
	}
	if variants != 1 {
		return malformed("page layout has %d variants set, want exactly 1", variants)
	}

	switch {
	case l.MiniBlock != nil:
		m := l.MiniBlock
		if m.NumBuffers <= 0 || int(m.NumBuffers) != len(m.ValueBuffers) {
			return malformed("mini block layout declares %d buffers but references %d",
				m.NumBuffers, len(m.ValueBuffers))
		}
		if err := validateLayers(m.Layers); err != nil {
			return err
		}
		if d := int(m.RepetitionIndexDepth); d > listLayers(m.Layers) {
			return malformed("mini block repetition index depth %d exceeds %d list layers",
				d, listLayers(m.Layers))
		}
		return m.ValueEncoding.Validate()

	case l.FullZip != nil:
		f := l.FullZip
		if (f.BitsPerValue == 0) == (f.BitsPerOffset == 0) {
			return malformed("full zip layout must set exactly one of bits_per_value, bits_per_offset")
		}
		if f.NumVisibleItems > f.NumItems {
			return malformed("full zip layout has num_visible_items=%d > num_items=%d",
				f.NumVisibleItems, f.NumItems)
		}
		return validateLayers(f.Layers)

	case l.AllNull != nil:
		return validateLayers(l.AllNull.Layers)
	}
	return nil
}

func validateLayers(layers []RepDefLayer) error {
	for i, l := range layers {
		switch l {
		case AllValidItem, AllValidList, NullableItem, NullableList, EmptyableList, NullAndEmptyList:
		default:
			return malformed("layer %d has unknown kind %d", i, int32(l))
		}
	}
	return nil
}

func listLayers(layers []RepDefLayer) int {
	n := 0
	for _, l := range layers {
		if l.IsList() {
			n++
		}
	}
	return n
}

// Validate checks the column wrapper chain terminates in Values.
func (c *ColumnEncoding) Validate() error {
	if c == nil {
		return malformed("nil column encoding")
	}
	variants := 0
	if c.Values != nil {
		variants++
	}
	if c.ZoneIndex != nil {
		variants++
	}
	if c.Blob != nil {
		variants++
	}
	if variants != 1 {
		return malformed("column encoding has %d variants set, want exactly 1", variants)
	}
	switch {
	case c.ZoneIndex != nil:
		if c.ZoneIndex.RowsPerZone <= 0 {
			return malformed("zone index has rows_per_zone=%d", c.ZoneIndex.RowsPerZone)
		}
		return c.ZoneIndex.Inner.Validate()
	case c.Blob != nil:
		return c.Blob.Inner.Validate()
	}
	return nil
}
