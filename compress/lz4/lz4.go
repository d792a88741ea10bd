package lz4

import (
	"io"

	"github.com/pierrec/lz4/v4"
	"github.com/slyrx/lance/compress"
)

type Level = lz4.CompressionLevel

const (
	Fast   = lz4.Fast
	Level1 = lz4.Level1
	Level5 = lz4.Level5
	Level9 = lz4.Level9

	DefaultLevel = Fast
)

type Codec struct {
	Level Level

	enc compress.Compressor
	dec compress.Decompressor
}

func (c *Codec) String() string {
	return "lz4"
}

func (c *Codec) Encode(dst, src []byte) ([]byte, error) {
	return c.enc.Encode(dst, src, func(w io.Writer) (compress.Writer, error) {
		z := lz4.NewWriter(w)
		if err := z.Apply(lz4.CompressionLevelOption(c.Level)); err != nil {
			return nil, err
		}
		return writer{z}, nil
	})
}

func (c *Codec) Decode(dst, src []byte) ([]byte, error) {
	return c.dec.Decode(dst, src, func(r io.Reader) (compress.Reader, error) {
		return reader{lz4.NewReader(r)}, nil
	})
}

type reader struct{ *lz4.Reader }

func (r reader) Close() error             { return nil }
func (r reader) Reset(rr io.Reader) error { r.Reader.Reset(rr); return nil }

type writer struct{ *lz4.Writer }
