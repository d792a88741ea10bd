// lance inspects serialized page encoding descriptors.
//
//	usage: lance describe [-layout] file.bin
//
// describe parses the thrift compact bytes of an array encoding descriptor
// (or, with -layout, a page layout descriptor) and prints the tree with the
// buffers it references.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/slyrx/lance/format"
)

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	switch os.Args[1] {
	case "describe":
		describe(os.Args[2:])
	default:
		usage()
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: lance describe [-layout] file.bin")
	os.Exit(2)
}

func describe(args []string) {
	flags := flag.NewFlagSet("describe", flag.ExitOnError)
	layout := flags.Bool("layout", false, "parse a page layout instead of an array encoding")
	flags.Parse(args)
	if flags.NArg() != 1 {
		usage()
	}

	raw, err := os.ReadFile(flags.Arg(0))
	if err != nil {
		fatal(err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Node", "Encoding", "Details", "Buffer"})
	table.SetAutoWrapText(false)

	if *layout {
		pl := new(format.PageLayout)
		if err := format.Unmarshal(raw, pl); err != nil {
			fatal(err)
		}
		if err := pl.Validate(); err != nil {
			fmt.Fprintln(os.Stderr, "warning:", err)
		}
		describeLayout(table, pl)
	} else {
		enc := new(format.ArrayEncoding)
		if err := format.Unmarshal(raw, enc); err != nil {
			fatal(err)
		}
		if err := enc.Validate(); err != nil {
			fmt.Fprintln(os.Stderr, "warning:", err)
		}
		describeEncoding(table, "", enc)
	}
	table.Render()
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "lance:", err)
	os.Exit(1)
}

func describeLayout(table *tablewriter.Table, pl *format.PageLayout) {
	switch {
	case pl.MiniBlock != nil:
		m := pl.MiniBlock
		table.Append([]string{"", "MINI_BLOCK", fmt.Sprintf("items=%d rows=%d layers=%s rep_bits=%d def_bits=%d",
			m.NumItems, m.NumRows, layerNames(m.Layers), m.RepBits, m.DefBits), bufferName(&m.ChunkMeta)})
		if m.RepBuffer != nil {
			table.Append([]string{".rep", "", "", bufferName(m.RepBuffer)})
		}
		if m.DefBuffer != nil {
			table.Append([]string{".def", "", "", bufferName(m.DefBuffer)})
		}
		describeEncoding(table, ".values", m.ValueEncoding)

	case pl.FullZip != nil:
		f := pl.FullZip
		details := fmt.Sprintf("items=%d visible=%d rows=%d layers=%s", f.NumItems, f.NumVisibleItems, f.NumRows, layerNames(f.Layers))
		if f.Compression != nil {
			details += " compression=" + f.Compression.Scheme
		}
		table.Append([]string{"", "FULL_ZIP", details, bufferName(&f.Data)})
		if f.RowIndex != nil {
			table.Append([]string{".row_index", "", "", bufferName(f.RowIndex)})
		}

	case pl.AllNull != nil:
		a := pl.AllNull
		table.Append([]string{"", "ALL_NULL", fmt.Sprintf("items=%d layers=%s", a.NumItems, layerNames(a.Layers)), ""})
	}
}

func describeEncoding(table *tablewriter.Table, path string, enc *format.ArrayEncoding) {
	row := func(name, details string, buf *format.Buffer) {
		b := ""
		if buf != nil {
			b = bufferName(buf)
		}
		table.Append([]string{path, name, details, b})
	}
	switch {
	case enc == nil:
		row("?", "missing node", nil)

	case enc.Flat != nil:
		details := fmt.Sprintf("bits=%d", enc.Flat.BitsPerValue)
		if enc.Flat.Compression != nil {
			details += " compression=" + enc.Flat.Compression.Scheme
		}
		row("FLAT", details, &enc.Flat.Buffer)

	case enc.Constant != nil:
		row("CONSTANT", fmt.Sprintf("n=%d value=%x", enc.Constant.NumValues, enc.Constant.Value), nil)

	case enc.Variable != nil:
		row("VARIABLE", fmt.Sprintf("offset_bits=%d", enc.Variable.BitsPerOffset), &enc.Variable.Buffer)

	case enc.Nullable != nil:
		switch {
		case enc.Nullable.AllNull != nil:
			row("ALL_NULL", "", nil)
		case enc.Nullable.NoNull != nil:
			row("NO_NULL", "", nil)
			describeEncoding(table, path+".values", enc.Nullable.NoNull.Values)
		case enc.Nullable.SomeNull != nil:
			row("SOME_NULL", "", nil)
			describeEncoding(table, path+".validity", enc.Nullable.SomeNull.Validity)
			describeEncoding(table, path+".values", enc.Nullable.SomeNull.Values)
		}

	case enc.List != nil:
		row("LIST", fmt.Sprintf("items=%d adjustment=%d", enc.List.NumItems, enc.List.NullOffsetAdjustment), nil)
		describeEncoding(table, path+".offsets", enc.List.Offsets)
		describeEncoding(table, path+".items", enc.List.Items)

	case enc.FixedSizeList != nil:
		row("FIXED_SIZE_LIST", fmt.Sprintf("dimension=%d", enc.FixedSizeList.Dimension), nil)
		describeEncoding(table, path+".items", enc.FixedSizeList.Items)

	case enc.Struct != nil:
		row("STRUCT", fmt.Sprintf("fields=%d", len(enc.Struct.Children)), nil)
		for i := range enc.Struct.Children {
			describeEncoding(table, path+"."+strconv.Itoa(i), &enc.Struct.Children[i])
		}

	case enc.PackedStruct != nil:
		row("PACKED_STRUCT", fmt.Sprintf("fields=%d", len(enc.PackedStruct.Children)), &enc.PackedStruct.Buffer)

	case enc.PackedStructFixedWidthMiniBlock != nil:
		p := enc.PackedStructFixedWidthMiniBlock
		row("PACKED_STRUCT_FIXED_WIDTH_MINI_BLOCK", fmt.Sprintf("fields=%d widths=%v", p.NumFields, p.BitsPerValues), nil)
		describeEncoding(table, path+".flat", p.Flat)

	case enc.Dictionary != nil:
		row("DICTIONARY", fmt.Sprintf("items=%d", enc.Dictionary.NumDictionaryItems), nil)
		describeEncoding(table, path+".indices", enc.Dictionary.Indices)
		describeEncoding(table, path+".items", enc.Dictionary.Items)

	case enc.Binary != nil:
		details := ""
		if enc.Binary.Compression != nil {
			details = "compression=" + enc.Binary.Compression.Scheme
		}
		row("BINARY", details, &enc.Binary.Bytes)
		describeEncoding(table, path+".offsets", enc.Binary.Offsets)

	case enc.FixedSizeBinary != nil:
		row("FIXED_SIZE_BINARY", fmt.Sprintf("width=%d", enc.FixedSizeBinary.ByteWidth), &enc.FixedSizeBinary.Buffer)

	case enc.Fsst != nil:
		row("FSST", "", &enc.Fsst.SymbolTable)
		describeEncoding(table, path+".binary", enc.Fsst.Binary)

	case enc.Bitpacked != nil:
		b := enc.Bitpacked
		row("BITPACKED", fmt.Sprintf("bits=%d/%d signed=%t", b.BitsPerValue, b.UncompressedBitsPerValue, b.SignedValues), &b.Buffer)

	case enc.BitpackedForNonNeg != nil:
		b := enc.BitpackedForNonNeg
		row("BITPACKED_FOR_NON_NEG", fmt.Sprintf("bits=%d/%d", b.BitsPerValue, b.UncompressedBitsPerValue), &b.Buffer)

	case enc.InlineBitpacking != nil:
		row("INLINE_BITPACKING", fmt.Sprintf("bits=%d", enc.InlineBitpacking.UncompressedBitsPerValue), nil)

	case enc.OutOfLineBitpacking != nil:
		b := enc.OutOfLineBitpacking
		row("OUT_OF_LINE_BITPACKING", fmt.Sprintf("bits=%d/%d", b.BitsPerValue, b.UncompressedBitsPerValue), &b.Buffer)

	case enc.Rle != nil:
		row("RLE", fmt.Sprintf("bits=%d", enc.Rle.BitsPerValue), &enc.Rle.Buffer)

	case enc.Bitmap != nil:
		row("BITMAP", "", &enc.Bitmap.Buffer)

	case enc.Block != nil:
		row("BLOCK", "compression="+enc.Block.Compression.Scheme, &enc.Block.Buffer)

	case enc.GeneralMiniBlock != nil:
		row("GENERAL_MINI_BLOCK", "compression="+enc.GeneralMiniBlock.Compression.Scheme, nil)
		describeEncoding(table, path+".inner", enc.GeneralMiniBlock.Inner)

	default:
		row("?", "no variant set", nil)
	}
}

func bufferName(b *format.Buffer) string {
	return b.String()
}

func layerNames(layers []format.RepDefLayer) string {
	if len(layers) == 0 {
		return "[]"
	}
	out := "["
	for i, l := range layers {
		if i > 0 {
			out += ","
		}
		out += l.String()
	}
	return out + "]"
}
