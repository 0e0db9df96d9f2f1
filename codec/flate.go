package codec

import (
	"io"

	"github.com/klauspost/compress/flate"
)

// Deflate compresses with raw DEFLATE, the method used by zip entries.
type Deflate struct {
	level int
}

// NewDeflate returns a DEFLATE codec at the given flate level.
func NewDeflate(level int) Deflate {
	if level < flate.HuffmanOnly || level > flate.BestCompression {
		level = flate.DefaultCompression
	}
	return Deflate{level: level}
}

// Name implements Codec.
func (Deflate) Name() string { return "deflate" }

// NewWriter implements Codec.
func (d Deflate) NewWriter(w io.Writer) (io.WriteCloser, error) {
	level := d.level
	if level == 0 {
		level = flate.DefaultCompression
	}
	return flate.NewWriter(w, level)
}

// NewReader implements Codec.
func (Deflate) NewReader(r io.Reader) (io.ReadCloser, error) {
	return flate.NewReader(r), nil
}
