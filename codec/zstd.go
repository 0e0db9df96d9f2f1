package codec

import (
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Zstd compresses with zstandard and reuses decoders through a pool.
type Zstd struct {
	level zstd.EncoderLevel
	pool  *sync.Pool
}

// NewZstd returns a zstd codec at the given encoder level.
func NewZstd(level zstd.EncoderLevel) *Zstd {
	if level < zstd.SpeedFastest || level > zstd.SpeedBestCompression {
		level = zstd.SpeedDefault
	}
	return &Zstd{
		level: level,
		pool: &sync.Pool{
			New: func() any {
				dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
				if err != nil {
					return nil
				}
				return dec
			},
		},
	}
}

// Name implements Codec.
func (*Zstd) Name() string { return "zstd" }

// NewWriter implements Codec.
func (z *Zstd) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return zstd.NewWriter(w,
		zstd.WithEncoderLevel(z.level),
		zstd.WithEncoderConcurrency(1),
		zstd.WithLowerEncoderMem(true),
	)
}

// NewReader implements Codec. Closing the reader returns its decoder to the
// pool.
func (z *Zstd) NewReader(r io.Reader) (io.ReadCloser, error) {
	dec, ok := z.pool.Get().(*zstd.Decoder)
	if !ok || dec == nil {
		fresh, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, err
		}
		return &pooledDecoder{dec: fresh}, nil
	}
	if err := dec.Reset(r); err != nil {
		dec.Close()
		return nil, err
	}
	return &pooledDecoder{dec: dec, pool: z.pool}, nil
}

type pooledDecoder struct {
	dec  *zstd.Decoder
	pool *sync.Pool
}

func (p *pooledDecoder) Read(b []byte) (int, error) {
	return p.dec.Read(b)
}

func (p *pooledDecoder) Close() error {
	if p.dec == nil {
		return nil
	}
	if p.pool == nil {
		p.dec.Close()
	} else {
		_ = p.dec.Reset(nil) //nolint:errcheck // clearing state before pool return
		p.pool.Put(p.dec)
	}
	p.dec = nil
	return nil
}
