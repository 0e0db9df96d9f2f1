package codec

import (
	"io"

	"github.com/pierrec/lz4/v4"
)

// LZ4 compresses with the LZ4 frame format.
type LZ4 struct{}

// NewLZ4 returns an LZ4 frame codec.
func NewLZ4() LZ4 { return LZ4{} }

// Name implements Codec.
func (LZ4) Name() string { return "lz4" }

// NewWriter implements Codec.
func (LZ4) NewWriter(w io.Writer) (io.WriteCloser, error) {
	zw := lz4.NewWriter(w)
	if err := zw.Apply(lz4.ChecksumOption(true)); err != nil {
		return nil, err
	}
	return zw, nil
}

// NewReader implements Codec.
func (LZ4) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(lz4.NewReader(r)), nil
}
