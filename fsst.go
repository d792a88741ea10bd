package lance

import (
	"sort"

	"github.com/slyrx/lance/arrow"
	"github.com/slyrx/lance/format"
)

// FSST substitutes frequent byte sequences with single-byte codes drawn
// from a per-page symbol table. Code 255 escapes a literal byte; the other
// codes index the table. The table is trained on the data being encoded and
// stored out of line, at column scope, so every page of the column can
// share it.

const (
	fsstEscape     = 255
	fsstMaxSymbols = 255
	fsstMaxSymbol  = 8
)

type fsstTable struct {
	symbols [][]byte
	// code of each leading byte pair, or -1
	pairs [65536]int16
}

func trainFsst(data []byte) *fsstTable {
	var freq [65536]int
	for i := 0; i+1 < len(data); i++ {
		freq[uint16(data[i])|uint16(data[i+1])<<8]++
	}
	type cand struct {
		pair uint16
		n    int
	}
	cands := make([]cand, 0, 256)
	for p, n := range freq {
		if n > 1 {
			cands = append(cands, cand{uint16(p), n})
		}
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].n > cands[j].n })
	if len(cands) > fsstMaxSymbols {
		cands = cands[:fsstMaxSymbols]
	}

	t := new(fsstTable)
	for i := range t.pairs {
		t.pairs[i] = -1
	}
	for _, c := range cands {
		t.pairs[c.pair] = int16(len(t.symbols))
		t.symbols = append(t.symbols, []byte{byte(c.pair), byte(c.pair >> 8)})
	}
	return t
}

func (t *fsstTable) compress(dst, src []byte) []byte {
	for i := 0; i < len(src); {
		if i+1 < len(src) {
			if code := t.pairs[uint16(src[i])|uint16(src[i+1])<<8]; code >= 0 {
				dst = append(dst, byte(code))
				i += 2
				continue
			}
		}
		dst = append(dst, fsstEscape, src[i])
		i++
	}
	return dst
}

func (t *fsstTable) decompress(dst, src []byte) ([]byte, error) {
	for i := 0; i < len(src); i++ {
		code := src[i]
		if code == fsstEscape {
			i++
			if i >= len(src) {
				return dst, corruptedf("fsst escape at end of code stream")
			}
			dst = append(dst, src[i])
			continue
		}
		if int(code) >= len(t.symbols) {
			return dst, corruptedf("fsst code %d outside table of %d symbols", code, len(t.symbols))
		}
		dst = append(dst, t.symbols[code]...)
	}
	return dst, nil
}

func (t *fsstTable) marshal() []byte {
	out := []byte{byte(len(t.symbols))}
	for _, s := range t.symbols {
		out = append(out, byte(len(s)))
		out = append(out, s...)
	}
	return out
}

func unmarshalFsstTable(raw []byte) (*fsstTable, error) {
	if len(raw) == 0 {
		return nil, corruptedf("empty fsst symbol table")
	}
	t := new(fsstTable)
	for i := range t.pairs {
		t.pairs[i] = -1
	}
	count := int(raw[0])
	pos := 1
	for s := 0; s < count; s++ {
		if pos >= len(raw) {
			return nil, corruptedf("fsst symbol table truncated at symbol %d of %d", s, count)
		}
		n := int(raw[pos])
		pos++
		if n == 0 || n > fsstMaxSymbol || pos+n > len(raw) {
			return nil, corruptedf("fsst symbol %d has invalid length %d", s, n)
		}
		t.symbols = append(t.symbols, raw[pos:pos+n])
		pos += n
	}
	return t, nil
}

// encodeFsst encodes variable-width values as per-value FSST code sequences
// behind a Binary subtree, plus the symbol table.
func encodeFsst(v leafValues, w *bufferWriter) (*format.ArrayEncoding, error) {
	table := trainFsst(v.data)

	coded := leafValues{typ: v.typ, n: v.n, offsets: make([]int32, 1, v.n+1)}
	for i := 0; i < v.n; i++ {
		coded.data = table.compress(coded.data, v.valueBytes(i))
		coded.offsets = append(coded.offsets, int32(len(coded.data)))
	}

	inner, err := encodeBinaryLeaf(coded, nil, w)
	if err != nil {
		return nil, err
	}
	return &format.ArrayEncoding{Fsst: &format.Fsst{
		Binary:      inner,
		SymbolTable: w.add(table.marshal(), format.ColumnBuffer),
	}}, nil
}

func decodeFsst(e *format.Fsst, r Resolver, lo, hi int64, typ arrow.DataType) (leafValues, error) {
	rawTable, err := r.Resolve(e.SymbolTable)
	if err != nil {
		return leafValues{}, err
	}
	table, err := unmarshalFsstTable(rawTable)
	if err != nil {
		return leafValues{}, err
	}
	coded, err := decodeBinaryLeaf(e.Binary.Binary, r, lo, hi, typ)
	if err != nil {
		return leafValues{}, err
	}
	out := leafValues{typ: typ, n: coded.n, offsets: make([]int32, 1, coded.n+1)}
	for i := 0; i < coded.n; i++ {
		if out.data, err = table.decompress(out.data, coded.valueBytes(i)); err != nil {
			return leafValues{}, err
		}
		out.offsets = append(out.offsets, int32(len(out.data)))
	}
	return out, nil
}
