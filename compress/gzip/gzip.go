package gzip

import (
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/slyrx/lance/compress"
)

const (
	DefaultLevel = gzip.DefaultCompression
)

type Codec struct {
	Level int

	enc compress.Compressor
	dec compress.Decompressor
}

func (c *Codec) String() string {
	return "gzip"
}

func (c *Codec) Encode(dst, src []byte) ([]byte, error) {
	return c.enc.Encode(dst, src, func(w io.Writer) (compress.Writer, error) {
		z, err := gzip.NewWriterLevel(w, c.level())
		if err != nil {
			return nil, err
		}
		return writer{z}, nil
	})
}

func (c *Codec) Decode(dst, src []byte) ([]byte, error) {
	return c.dec.Decode(dst, src, func(r io.Reader) (compress.Reader, error) {
		z, err := gzip.NewReader(r)
		if err != nil {
			return nil, err
		}
		return reader{z}, nil
	})
}

func (c *Codec) level() int {
	if c.Level != 0 {
		return c.Level
	}
	return DefaultLevel
}

type reader struct{ *gzip.Reader }

func (r reader) Reset(rr io.Reader) error {
	if rr == nil {
		// Pass it an empty reader, which is a zero-size value implementing the
		// flate.Reader interface to avoid the construction of a bufio.Reader in
		// the call to Reset.
		rr = devNull{}
	}
	return r.Reader.Reset(rr)
}

type writer struct{ *gzip.Writer }

type devNull struct{}

func (devNull) ReadByte() (byte, error)  { return 0, io.EOF }
func (devNull) Read([]byte) (int, error) { return 0, io.EOF }
