package lance

import (
	"fmt"
	"sync"

	kzstd "github.com/klauspost/compress/zstd"
	"github.com/slyrx/lance/compress"
	"github.com/slyrx/lance/compress/brotli"
	"github.com/slyrx/lance/compress/gzip"
	"github.com/slyrx/lance/compress/lz4"
	"github.com/slyrx/lance/compress/snappy"
	"github.com/slyrx/lance/compress/uncompressed"
	"github.com/slyrx/lance/compress/zstd"
	"github.com/slyrx/lance/format"
)

var (
	// Uncompressed is the no-op codec, used when a descriptor carries no
	// compression.
	Uncompressed uncompressed.Codec

	// Snappy is the snappy compression codec.
	Snappy snappy.Codec

	// Gzip is the gzip compression codec.
	Gzip gzip.Codec

	// Brotli is the brotli compression codec.
	Brotli brotli.Codec

	// Zstd is the zstd compression codec.
	Zstd zstd.Codec

	// Lz4 is the lz4 compression codec.
	Lz4 lz4.Codec
)

// Compression scheme names are opaque strings on the wire; these are the
// schemes this registry can execute.
var codecs = map[string]compress.Codec{
	"":       &Uncompressed,
	"none":   &Uncompressed,
	"snappy": &Snappy,
	"gzip":   &Gzip,
	"brotli": &Brotli,
	"zstd":   &Zstd,
	"lz4":    &Lz4,
}

var leveled sync.Map // format.Compression -> compress.Codec

// LookupCompression returns the codec implementing the scheme named by the
// descriptor. Unknown schemes fail with ErrUnsupported: no fallback decoding
// is possible for bytes compressed by a scheme we cannot execute.
func LookupCompression(c *format.Compression) (compress.Codec, error) {
	if c == nil {
		return &Uncompressed, nil
	}
	if c.Level != 0 {
		if codec, ok := leveled.Load(*c); ok {
			return codec.(compress.Codec), nil
		}
		codec, err := newLeveledCodec(c)
		if err != nil {
			return nil, err
		}
		leveled.Store(*c, codec)
		return codec, nil
	}
	if codec, ok := codecs[c.Scheme]; ok {
		return codec, nil
	}
	return nil, fmt.Errorf("%w: compression scheme %q", ErrUnsupported, c.Scheme)
}

func newLeveledCodec(c *format.Compression) (compress.Codec, error) {
	switch c.Scheme {
	case "gzip":
		return &gzip.Codec{Level: int(c.Level)}, nil
	case "zstd":
		return &zstd.Codec{Level: kzstd.EncoderLevelFromZstd(int(c.Level))}, nil
	case "lz4":
		return &lz4.Codec{Level: lz4Level(int(c.Level))}, nil
	case "brotli":
		return &brotli.Codec{Quality: int(c.Level)}, nil
	case "", "none", "snappy":
		// Schemes without levels; the level is advisory and ignored.
		return codecs[c.Scheme], nil
	default:
		return nil, fmt.Errorf("%w: compression scheme %q", ErrUnsupported, c.Scheme)
	}
}

func lz4Level(level int) lz4.Level {
	switch {
	case level <= 0:
		return lz4.Fast
	case level >= 9:
		return lz4.Level9
	default:
		return lz4.Level(1 << (8 + level))
	}
}
