// Package uncompressed provides the no-op codec used when pages carry no
// Compression descriptor.
package uncompressed

type Codec struct {
}

func (c *Codec) String() string {
	return "none"
}

func (c *Codec) Encode(dst, src []byte) ([]byte, error) {
	return append(dst[:0], src...), nil
}

func (c *Codec) Decode(dst, src []byte) ([]byte, error) {
	return append(dst[:0], src...), nil
}
