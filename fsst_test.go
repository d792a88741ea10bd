package lance

import (
	"bytes"
	"strings"
	"testing"
)

func TestFsstCompressRoundTrip(t *testing.T) {
	inputs := map[string][]byte{
		"empty":      {},
		"single":     {0x41},
		"repetitive": []byte(strings.Repeat("ababab", 200)),
		"text":       []byte(strings.Repeat("the quick brown fox ", 50)),
		"escapes":    {fsstEscape, fsstEscape, 0x00, fsstEscape},
	}
	corpus := make([]byte, 0)
	for _, in := range inputs {
		corpus = append(corpus, in...)
	}
	table := trainFsst(corpus)

	for name, in := range inputs {
		coded := table.compress(nil, in)
		out, err := table.decompress(nil, coded)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if !bytes.Equal(in, out) {
			t.Fatalf("%s: round trip mismatch", name)
		}
	}
}

func TestFsstCompressionShrinksRepetitiveText(t *testing.T) {
	in := []byte(strings.Repeat("abcdabcd", 512))
	table := trainFsst(in)
	coded := table.compress(nil, in)
	if len(coded) >= len(in) {
		t.Fatalf("want fewer than %d coded bytes, got %d", len(in), len(coded))
	}
}

func TestFsstTableMarshalRoundTrip(t *testing.T) {
	table := trainFsst([]byte(strings.Repeat("hello world ", 100)))
	restored, err := unmarshalFsstTable(table.marshal())
	if err != nil {
		t.Fatal(err)
	}
	if len(restored.symbols) != len(table.symbols) {
		t.Fatalf("want %d symbols, got %d", len(table.symbols), len(restored.symbols))
	}
	for i := range table.symbols {
		if !bytes.Equal(table.symbols[i], restored.symbols[i]) {
			t.Fatalf("symbol %d differs", i)
		}
	}

	in := []byte("hello world hello world")
	out, err := restored.decompress(nil, table.compress(nil, in))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(in, out) {
		t.Fatal("restored table cannot decode what the original encoded")
	}
}

func TestFsstCorruptTable(t *testing.T) {
	tests := map[string][]byte{
		"empty":          {},
		"truncated":      {3, 2, 'a', 'b', 2, 'c'},
		"zero length":    {1, 0},
		"oversized":      {1, 9, 'a', 'b', 'c', 'd', 'e', 'f', 'g', 'h', 'i'},
		"length overrun": {1, 4, 'a'},
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := unmarshalFsstTable(raw); err == nil {
				t.Fatal("want error")
			}
		})
	}
}

func TestFsstCorruptCodeStream(t *testing.T) {
	table := trainFsst([]byte("aabbaabb"))
	t.Run("trailing escape", func(t *testing.T) {
		if _, err := table.decompress(nil, []byte{fsstEscape}); err == nil {
			t.Fatal("want error for escape at end of stream")
		}
	})
	t.Run("code outside table", func(t *testing.T) {
		if _, err := table.decompress(nil, []byte{200}); err == nil {
			t.Fatal("want error for a code past the table")
		}
	})
}
