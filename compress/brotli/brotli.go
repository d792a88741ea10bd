package brotli

import (
	"io"

	"github.com/andybalholm/brotli"
	"github.com/slyrx/lance/compress"
)

const (
	// DefaultQuality lets the library pick; range is 0 to 11, higher is
	// slower and denser.
	DefaultQuality = 0

	// DefaultLGWin enables automatic window sizing based on quality.
	DefaultLGWin = 0
)

type Codec struct {
	Quality int
	LGWin   int

	enc compress.Compressor
	dec compress.Decompressor
}

func (c *Codec) String() string {
	return "brotli"
}

func (c *Codec) Encode(dst, src []byte) ([]byte, error) {
	return c.enc.Encode(dst, src, func(w io.Writer) (compress.Writer, error) {
		return writer{brotli.NewWriterOptions(w, brotli.WriterOptions{
			Quality: c.Quality,
			LGWin:   c.LGWin,
		})}, nil
	})
}

func (c *Codec) Decode(dst, src []byte) ([]byte, error) {
	return c.dec.Decode(dst, src, func(r io.Reader) (compress.Reader, error) {
		return reader{brotli.NewReader(r)}, nil
	})
}

type reader struct{ *brotli.Reader }

func (r reader) Close() error { return nil }

func (r reader) Reset(rr io.Reader) error {
	if rr == nil {
		rr = devNull{}
	}
	return r.Reader.Reset(rr)
}

type writer struct{ *brotli.Writer }

type devNull struct{}

func (devNull) Read([]byte) (int, error) { return 0, io.EOF }
