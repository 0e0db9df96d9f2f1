// Package staging owns the process-wide save guard and the shared block used
// to shuttle payload bytes through encoders and archive writers.
//
// Only one encode or save runs at a time per process. Callers acquire the
// guard, use the returned block for the duration of the operation, and
// release it when done.
package staging

import (
	"context"
	"io"
	"sync"
)

// BlockSize is the size of the shared staging block.
const BlockSize = 1 << 20

var (
	mu    sync.Mutex
	block []byte
)

// Acquire locks the process-wide save guard and returns the shared staging
// block together with the function that releases the guard.
func Acquire() (buf []byte, release func()) {
	mu.Lock()
	if block == nil {
		block = make([]byte, BlockSize)
	}
	var once sync.Once
	return block, func() { once.Do(mu.Unlock) }
}

// Copy copies from src to dst through buf, checking ctx before each read and
// after each write.
func Copy(ctx context.Context, dst io.Writer, src io.Reader, buf []byte) (int64, error) {
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n, rerr := src.Read(buf)
		if n > 0 {
			m, werr := dst.Write(buf[:n])
			written += int64(m)
			if werr != nil {
				return written, werr
			}
			if m != n {
				return written, io.ErrShortWrite
			}
			if err := ctx.Err(); err != nil {
				return written, err
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}

// Writer returns a writer that forwards to w in chunks no larger than buf,
// checking ctx around every chunk.
func Writer(ctx context.Context, w io.Writer, buf []byte) io.Writer {
	return &chunkWriter{ctx: ctx, w: w, buf: buf}
}

type chunkWriter struct {
	ctx context.Context
	w   io.Writer
	buf []byte
}

func (c *chunkWriter) Write(p []byte) (int, error) {
	var done int
	for done < len(p) {
		if err := c.ctx.Err(); err != nil {
			return done, err
		}
		n := copy(c.buf, p[done:])
		m, err := c.w.Write(c.buf[:n])
		done += m
		if err != nil {
			return done, err
		}
		if m != n {
			return done, io.ErrShortWrite
		}
	}
	if err := c.ctx.Err(); err != nil {
		return done, err
	}
	return done, nil
}

// CountingWriter counts bytes written through it.
type CountingWriter struct {
	W io.Writer
	N int64
}

func (c *CountingWriter) Write(p []byte) (int, error) {
	n, err := c.W.Write(p)
	c.N += int64(n)
	return n, err
}
