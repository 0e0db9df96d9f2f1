package codec

import (
	"io"

	"github.com/dsnet/compress/bzip2"
)

// BZip2 compresses with the bzip2 block format.
type BZip2 struct {
	level int
}

// NewBZip2 returns a bzip2 codec. Levels outside 1..9 use the default.
func NewBZip2(level int) BZip2 {
	if level < bzip2.BestSpeed || level > bzip2.BestCompression {
		level = bzip2.DefaultCompression
	}
	return BZip2{level: level}
}

// Name implements Codec.
func (BZip2) Name() string { return "bzip2" }

// NewWriter implements Codec.
func (b BZip2) NewWriter(w io.Writer) (io.WriteCloser, error) {
	level := b.level
	if level == 0 {
		level = bzip2.DefaultCompression
	}
	return bzip2.NewWriter(w, &bzip2.WriterConfig{Level: level})
}

// NewReader implements Codec.
func (BZip2) NewReader(r io.Reader) (io.ReadCloser, error) {
	return bzip2.NewReader(r, nil)
}
