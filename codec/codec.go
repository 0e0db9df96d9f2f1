// Package codec defines the stream compressors used by archive providers and
// the helpers that move whole payloads through them.
package codec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/meigma/packfs/internal/sizing"
	"github.com/meigma/packfs/internal/staging"
)

// ErrCorrupt is returned when compressed data cannot be decoded or decodes to
// a different length than recorded.
var ErrCorrupt = errors.New("codec: corrupt data")

// Codec is a streaming compressor and decompressor.
type Codec interface {
	// Name returns a short lowercase identifier such as "bzip2".
	Name() string

	// NewWriter returns a writer that compresses into w. Close flushes the
	// stream but does not close w.
	NewWriter(w io.Writer) (io.WriteCloser, error)

	// NewReader returns a reader that decompresses from r.
	NewReader(r io.Reader) (io.ReadCloser, error)
}

const fallbackBlock = 32 << 10

// Compress runs raw through c and returns the compressed bytes.
//
// Input is fed to the encoder in chunks no larger than buf, and ctx is
// checked around each chunk. A nil buf uses a small private block.
func Compress(ctx context.Context, c Codec, raw []byte, buf []byte) ([]byte, error) {
	if len(buf) == 0 {
		buf = make([]byte, fallbackBlock)
	}
	var out bytes.Buffer
	enc, err := c.NewWriter(&out)
	if err != nil {
		return nil, fmt.Errorf("codec %s: create encoder: %w", c.Name(), err)
	}
	if _, err := staging.Writer(ctx, enc, buf).Write(raw); err != nil {
		enc.Close()
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("codec %s: finish: %w", c.Name(), err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// Decompress decodes stored with c, requiring exactly size bytes of output.
func Decompress(c Codec, stored []byte, size int64) ([]byte, error) {
	n, err := sizing.ToInt(size, fmt.Errorf("%w: invalid size %d", ErrCorrupt, size))
	if err != nil {
		return nil, err
	}
	rc, err := c.NewReader(bytes.NewReader(stored))
	if err != nil {
		return nil, corrupt(err)
	}
	defer rc.Close()

	out := make([]byte, n)
	if _, err := io.ReadFull(rc, out); err != nil {
		return nil, corrupt(err)
	}
	// Drain to the end so trailing checksums are verified.
	var one [1]byte
	m, err := io.ReadFull(rc, one[:])
	if m > 0 {
		return nil, fmt.Errorf("%w: decoded data exceeds %d bytes", ErrCorrupt, size)
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, corrupt(err)
	}
	return out, nil
}

// DecompressAll decodes stored with c when the decoded size is unknown,
// failing with ErrCorrupt if the output exceeds limit bytes.
func DecompressAll(c Codec, stored []byte, limit uint64) ([]byte, error) {
	rc, err := c.NewReader(bytes.NewReader(stored))
	if err != nil {
		return nil, corrupt(err)
	}
	defer rc.Close()
	out, err := sizing.ReadAllWithLimit(rc, limit, fmt.Errorf("%w: decoded data exceeds %d bytes", ErrCorrupt, limit))
	if err != nil {
		if errors.Is(err, ErrCorrupt) {
			return nil, err
		}
		return nil, corrupt(err)
	}
	return out, nil
}

func corrupt(err error) error {
	return fmt.Errorf("%w: %w", ErrCorrupt, err)
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
