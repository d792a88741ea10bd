package format

import (
	"errors"
	"reflect"
	"testing"
)

func marshalRoundTrip(t *testing.T, in, out interface{}) {
	t.Helper()
	raw, err := Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	if err := Unmarshal(raw, out); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("round trip mismatch:\nwant %+v\ngot  %+v", in, out)
	}
}

func TestArrayEncodingMarshal(t *testing.T) {
	in := &ArrayEncoding{
		Nullable: &Nullable{SomeNull: &SomeNull{
			Validity: &ArrayEncoding{Bitmap: &Bitmap{
				Buffer: Buffer{BufferIndex: 0, BufferType: PageBuffer},
			}},
			Values: &ArrayEncoding{Dictionary: &Dictionary{
				Indices: &ArrayEncoding{BitpackedForNonNeg: &BitpackedForNonNeg{
					BitsPerValue:             3,
					UncompressedBitsPerValue: 32,
					Buffer:                   Buffer{BufferIndex: 1, BufferType: PageBuffer},
				}},
				Items: &ArrayEncoding{Binary: &Binary{
					Offsets: &ArrayEncoding{Flat: &Flat{
						BitsPerValue: 32,
						Buffer:       Buffer{BufferIndex: 0, BufferType: ColumnBuffer},
					}},
					Bytes:       Buffer{BufferIndex: 1, BufferType: ColumnBuffer},
					Compression: &Compression{Scheme: "zstd", Level: 3},
				}},
				NumDictionaryItems: 7,
			}},
		}},
	}
	out := new(ArrayEncoding)
	marshalRoundTrip(t, in, out)
	if err := out.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestPageLayoutMarshal(t *testing.T) {
	repBuf := Buffer{BufferIndex: 1, BufferType: PageBuffer}
	in := &PageLayout{
		MiniBlock: &MiniBlockLayout{
			ValueEncoding:        &ArrayEncoding{InlineBitpacking: &InlineBitpacking{UncompressedBitsPerValue: 64}},
			Layers:               []RepDefLayer{AllValidList, NullableItem},
			RepetitionIndexDepth: 1,
			NumBuffers:           1,
			NumItems:             100,
			NumRows:              40,
			ChunkMeta:            Buffer{BufferIndex: 0, BufferType: PageBuffer},
			RepBits:              1,
			DefBits:              1,
			RepBuffer:            &repBuf,
			DefBuffer:            &Buffer{BufferIndex: 2, BufferType: PageBuffer},
			ValueBuffers:         []Buffer{{BufferIndex: 3, BufferType: PageBuffer}},
		},
	}
	out := new(PageLayout)
	marshalRoundTrip(t, in, out)
	if err := out.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestColumnEncodingMarshal(t *testing.T) {
	in := &ColumnEncoding{ZoneIndex: &ZoneIndex{
		Inner:         &ColumnEncoding{Values: &Values{}},
		RowsPerZone:   4096,
		ZoneMapBuffer: Buffer{BufferIndex: 0, BufferType: ColumnBuffer},
	}}
	out := new(ColumnEncoding)
	marshalRoundTrip(t, in, out)
	if err := out.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestZoneMapMarshal(t *testing.T) {
	in := &ZoneMap{Zones: []ZoneStats{
		{Min: []byte{1, 0}, Max: []byte{9, 0}, NullCount: 3, NumRows: 100},
		{Min: []byte{}, Max: []byte{}, NullCount: 100, NumRows: 100},
	}}
	out := new(ZoneMap)
	raw, err := Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	if err := Unmarshal(raw, out); err != nil {
		t.Fatal(err)
	}
	if len(out.Zones) != 2 || out.Zones[0].NullCount != 3 || out.Zones[1].NumRows != 100 {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}

func TestValidateArrayEncoding(t *testing.T) {
	flat := func() *ArrayEncoding {
		return &ArrayEncoding{Flat: &Flat{BitsPerValue: 64}}
	}
	tests := []struct {
		name string
		enc  *ArrayEncoding
	}{
		{"no variant", &ArrayEncoding{}},
		{"two variants", &ArrayEncoding{Flat: &Flat{BitsPerValue: 8}, Bitmap: &Bitmap{}}},
		{"flat zero width", &ArrayEncoding{Flat: &Flat{}}},
		{"variable bad offset width", &ArrayEncoding{Variable: &Variable{BitsPerOffset: 16}}},
		{"nullable empty", &ArrayEncoding{Nullable: &Nullable{}}},
		{"nullable two shapes", &ArrayEncoding{Nullable: &Nullable{
			NoNull:  &NoNull{Values: flat()},
			AllNull: &AllNull{},
		}}},
		{"list adjustment too small", &ArrayEncoding{List: &List{
			Offsets:              flat(),
			Items:                flat(),
			NumItems:             10,
			NullOffsetAdjustment: 10,
		}}},
		{"fixed size list zero dimension", &ArrayEncoding{FixedSizeList: &FixedSizeList{Items: flat()}}},
		{"struct no children", &ArrayEncoding{Struct: &Struct{}}},
		{"packed struct non flat child", &ArrayEncoding{PackedStruct: &PackedStruct{
			Children: []ArrayEncoding{{Bitmap: &Bitmap{}}},
		}}},
		{"bitpacked width overflow", &ArrayEncoding{Bitpacked: &Bitpacked{
			BitsPerValue: 65, UncompressedBitsPerValue: 64,
		}}},
		{"rle zero width", &ArrayEncoding{Rle: &Rle{}}},
		{"block empty scheme", &ArrayEncoding{Block: &Block{}}},
		{"fsst non binary inner", &ArrayEncoding{Fsst: &Fsst{Binary: flat()}}},
		{"general mini block bad inner", &ArrayEncoding{GeneralMiniBlock: &GeneralMiniBlock{
			Inner:       &ArrayEncoding{},
			Compression: Compression{Scheme: "lz4"},
		}}},
		{"nil node", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.enc.Validate()
			if !errors.Is(err, ErrMalformed) {
				t.Fatalf("want ErrMalformed, got %v", err)
			}
		})
	}

	if err := flat().Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestValidatePageLayout(t *testing.T) {
	tests := []struct {
		name   string
		layout *PageLayout
	}{
		{"no variant", &PageLayout{}},
		{"two variants", &PageLayout{AllNull: &AllNullLayout{}, FullZip: &FullZipLayout{BitsPerValue: 8}}},
		{"mini block buffer count mismatch", &PageLayout{MiniBlock: &MiniBlockLayout{
			ValueEncoding: &ArrayEncoding{Bitmap: &Bitmap{}},
			NumBuffers:    2,
			ValueBuffers:  []Buffer{{}},
		}}},
		{"mini block index depth exceeds lists", &PageLayout{MiniBlock: &MiniBlockLayout{
			ValueEncoding:        &ArrayEncoding{Bitmap: &Bitmap{}},
			NumBuffers:           1,
			ValueBuffers:         []Buffer{{}},
			Layers:               []RepDefLayer{NullableItem},
			RepetitionIndexDepth: 1,
		}}},
		{"full zip neither width", &PageLayout{FullZip: &FullZipLayout{}}},
		{"full zip both widths", &PageLayout{FullZip: &FullZipLayout{BitsPerValue: 8, BitsPerOffset: 32}}},
		{"full zip visible exceeds items", &PageLayout{FullZip: &FullZipLayout{
			BitsPerValue: 8, NumItems: 3, NumVisibleItems: 4,
		}}},
		{"unknown layer kind", &PageLayout{AllNull: &AllNullLayout{
			Layers: []RepDefLayer{RepDefLayer(99)},
		}}},
		{"nil layout", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.layout.Validate()
			if !errors.Is(err, ErrMalformed) {
				t.Fatalf("want ErrMalformed, got %v", err)
			}
		})
	}
}

func TestValidateColumnEncoding(t *testing.T) {
	if err := (&ColumnEncoding{Values: &Values{}}).Validate(); err != nil {
		t.Fatal(err)
	}
	for name, ce := range map[string]*ColumnEncoding{
		"no variant": {},
		"two variants": {
			Values: &Values{},
			Blob:   &Blob{Inner: &ColumnEncoding{Values: &Values{}}},
		},
		"zone index zero rows": {ZoneIndex: &ZoneIndex{
			Inner: &ColumnEncoding{Values: &Values{}},
		}},
		"blob bad inner": {Blob: &Blob{Inner: &ColumnEncoding{}}},
	} {
		t.Run(name, func(t *testing.T) {
			if err := ce.Validate(); !errors.Is(err, ErrMalformed) {
				t.Fatalf("want ErrMalformed, got %v", err)
			}
		})
	}
}

func TestRepDefLayerProperties(t *testing.T) {
	tests := []struct {
		layer  RepDefLayer
		isList bool
		states int
	}{
		{AllValidItem, false, 0},
		{AllValidList, true, 0},
		{NullableItem, false, 1},
		{NullableList, true, 1},
		{EmptyableList, true, 1},
		{NullAndEmptyList, true, 2},
		{RepDefUnspecified, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.layer.String(), func(t *testing.T) {
			if tt.layer.IsList() != tt.isList {
				t.Fatalf("IsList: want %t", tt.isList)
			}
			if tt.layer.DefStates() != tt.states {
				t.Fatalf("DefStates: want %d", tt.states)
			}
		})
	}
}

func TestBufferString(t *testing.T) {
	for want, b := range map[string]Buffer{
		"page[3]":    {BufferIndex: 3, BufferType: PageBuffer},
		"column[0]":  {BufferIndex: 0, BufferType: ColumnBuffer},
		"file[1]":    {BufferIndex: 1, BufferType: FileBuffer},
		"unknown[2]": {BufferIndex: 2, BufferType: BufferType(9)},
	} {
		if got := b.String(); got != want {
			t.Fatalf("want %q, got %q", want, got)
		}
	}
}
