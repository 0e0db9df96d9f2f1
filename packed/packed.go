// Package packed implements the packed archive format.
//
// A packed archive is laid out as:
//
//	header     length-prefixed string identifying the provider
//	fatLength  int32, little-endian, byte length of the compressed table
//	fat        the XML file allocation table, compressed with the codec
//	data       concatenated payloads, addressed relative to this point
//
// Providers differ only in header and codec. The header string doubles as
// the provider's magic number and is compared without regard to case.
package packed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/meigma/packfs"
	"github.com/meigma/packfs/codec"
	"github.com/meigma/packfs/internal/fat"
	"github.com/meigma/packfs/internal/wire"
)

// Provider headers.
const (
	IDBZip2 = "GORPACK1.SharpZip.BZ2"
	IDZstd  = "GORPACK1.Zstd"
	IDLZ4   = "GORPACK1.LZ4"
	IDRaw   = "GORPACK1.Raw"
)

// DefaultExtension is the file extension of packed archives.
const DefaultExtension = ".gorPack"

// DefaultMaxIndexSize bounds the decoded size of an archive's table.
const DefaultMaxIndexSize = 64 << 20

var _ packfs.Provider = (*Provider)(nil)

// Provider reads and writes packed archives with one codec.
type Provider struct {
	id           string
	name         string
	description  string
	codec        codec.Codec
	maxIndexSize uint64
}

// Option configures a Provider.
type Option func(*Provider)

// WithMaxIndexSize bounds the decoded size of the table. Archives with a
// larger table fail to mount.
func WithMaxIndexSize(n uint64) Option {
	return func(p *Provider) {
		if n > 0 {
			p.maxIndexSize = n
		}
	}
}

// New returns a provider with the given header, short name, and codec.
func New(id, name, description string, c codec.Codec, opts ...Option) *Provider {
	p := &Provider{
		id:           id,
		name:         name,
		description:  description,
		codec:        c,
		maxIndexSize: DefaultMaxIndexSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewBZip2 returns the bzip2 provider. Its header matches archives written
// by the SharpZipLib based packer.
func NewBZip2(opts ...Option) *Provider {
	return New(IDBZip2, "bzip2", "Packed file system (bzip2)", codec.NewBZip2(9), opts...)
}

// NewZstd returns the zstandard provider.
func NewZstd(opts ...Option) *Provider {
	return New(IDZstd, "zstd", "Packed file system (zstd)", codec.NewZstd(zstd.SpeedBetterCompression), opts...)
}

// NewLZ4 returns the LZ4 provider.
func NewLZ4(opts ...Option) *Provider {
	return New(IDLZ4, "lz4", "Packed file system (lz4)", codec.NewLZ4(), opts...)
}

// NewRaw returns the uncompressed provider.
func NewRaw(opts ...Option) *Provider {
	return New(IDRaw, "raw", "Packed file system (uncompressed)", codec.NewNone(), opts...)
}

// ID implements packfs.Provider.
func (p *Provider) ID() string { return p.id }

// Name implements packfs.Provider.
func (p *Provider) Name() string { return p.name }

// Description implements packfs.Provider.
func (p *Provider) Description() string { return p.description }

// Extension implements packfs.Provider.
func (p *Provider) Extension() string { return DefaultExtension }

// Codec implements packfs.Provider.
func (p *Provider) Codec() codec.Codec { return p.codec }

// Probe implements packfs.Provider. A header that cannot be decoded is
// reported as a mismatch; only read errors are returned.
func (p *Provider) Probe(r io.Reader) (bool, error) {
	hdr, err := wire.ReadString(r, wire.MaxHeaderLen)
	if err != nil {
		if errors.Is(err, wire.ErrShort) || errors.Is(err, wire.ErrTooLong) || errors.Is(err, wire.ErrMalformed) {
			return false, nil
		}
		return false, err
	}
	return strings.EqualFold(hdr, p.id), nil
}

// ReadIndex implements packfs.Provider.
func (p *Provider) ReadIndex(src io.ReaderAt, size int64) (*packfs.Index, error) {
	r := io.NewSectionReader(src, 0, size)
	hdr, err := wire.ReadString(r, wire.MaxHeaderLen)
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %w", packfs.ErrFormat, err)
	}
	if !strings.EqualFold(hdr, p.id) {
		return nil, &packfs.HeaderError{Expected: p.id, Found: hdr}
	}

	n, err := wire.ReadInt32(r)
	if err != nil {
		return nil, fmt.Errorf("%w: read table length: %w", packfs.ErrFormat, err)
	}
	tableStart, _ := r.Seek(0, io.SeekCurrent) //nolint:errcheck // SectionReader seeks cannot fail here
	if n < 0 || int64(n) > size-tableStart {
		return nil, fmt.Errorf("%w: table length %d exceeds archive", packfs.ErrReadTruncated, n)
	}

	stored := make([]byte, n)
	if _, err := io.ReadFull(r, stored); err != nil {
		return nil, fmt.Errorf("%w: read table: %w", packfs.ErrReadTruncated, err)
	}
	table, err := codec.DecompressAll(p.codec, stored, p.maxIndexSize)
	if err != nil {
		return nil, fmt.Errorf("%w: decode table: %w", packfs.ErrFormat, err)
	}
	tree, err := fat.Decode(table)
	if err != nil {
		return nil, err
	}
	return &packfs.Index{Tree: tree, DataOrigin: tableStart + int64(n)}, nil
}

// NewWriter implements packfs.Provider.
func (p *Provider) NewWriter(w io.Writer) (packfs.ArchiveWriter, error) {
	return &writer{p: p, w: w}, nil
}

type writer struct {
	p *Provider
	w io.Writer
}

func (w *writer) WriteIndex(ctx context.Context, t *packfs.Tree) error {
	table, err := fat.Encode(t)
	if err != nil {
		return err
	}
	stored, err := codec.Compress(ctx, w.p.codec, table, nil)
	if err != nil {
		return fmt.Errorf("compress table: %w", err)
	}
	if !wire.CheckInt32(len(stored)) {
		return fmt.Errorf("%w: table is %d bytes", packfs.ErrSizeOverflow, len(stored))
	}
	if err := wire.WriteString(w.w, w.p.id); err != nil {
		return err
	}
	if err := wire.WriteInt32(w.w, int32(len(stored))); err != nil { //nolint:gosec // checked above
		return err
	}
	_, err = w.w.Write(stored)
	return err
}

func (w *writer) WriteFile(_ context.Context, f *packfs.File) error {
	if int64(len(f.Data)) != f.StoredSize() {
		return fmt.Errorf("%s: payload is %d bytes, index records %d", f.FullPath(), len(f.Data), f.StoredSize())
	}
	_, err := w.w.Write(f.Data)
	return err
}

func (w *writer) Close() error { return nil }
