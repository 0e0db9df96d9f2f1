// Package zipfs implements a provider for standard ZIP archives.
//
// Entries stored with the Store or Deflate methods are supported. Payload
// offsets are absolute positions inside the archive, so the data region of
// a ZIP index starts at 0. New archives are written with raw deflate
// payloads taken directly from the file system, so entries are never
// recompressed on save.
package zipfs

import (
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"io/fs"
	"path"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"

	"github.com/meigma/packfs"
	"github.com/meigma/packfs/codec"
)

// Magic numbers recognized by Probe.
const (
	// ID is the local file header signature that starts a non-empty archive.
	ID = "PK\x03\x04"

	// emptyID is the end of central directory signature that starts an
	// archive without entries.
	emptyID = "PK\x05\x06"
)

// DefaultExtension is the file extension of ZIP archives.
const DefaultExtension = ".zip"

const flagEncrypted = 0x1

var _ packfs.Provider = (*Provider)(nil)

// Provider reads and writes ZIP archives.
type Provider struct {
	codec codec.Codec
}

// New returns a ZIP provider that deflates new payloads at the given
// level.
func New(level int) *Provider {
	return &Provider{codec: codec.NewDeflate(level)}
}

// NewDefault returns a ZIP provider using the default deflate level.
func NewDefault() *Provider {
	return New(flate.DefaultCompression)
}

// ID implements packfs.Provider.
func (p *Provider) ID() string { return ID }

// Name implements packfs.Provider.
func (p *Provider) Name() string { return "zip" }

// Description implements packfs.Provider.
func (p *Provider) Description() string { return "ZIP archive (deflate)" }

// Extension implements packfs.Provider.
func (p *Provider) Extension() string { return DefaultExtension }

// Codec implements packfs.Provider.
func (p *Provider) Codec() codec.Codec { return p.codec }

// Probe implements packfs.Provider.
func (p *Provider) Probe(r io.Reader) (bool, error) {
	var sig [4]byte
	if _, err := io.ReadFull(r, sig[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return false, nil
		}
		return false, err
	}
	s := string(sig[:])
	return s == ID || s == emptyID, nil
}

// ReadIndex implements packfs.Provider.
func (p *Provider) ReadIndex(src io.ReaderAt, size int64) (*packfs.Index, error) {
	zr, err := zip.NewReader(src, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", packfs.ErrFormat, err)
	}
	tree := packfs.NewTree()
	for _, zf := range zr.File {
		if strings.HasSuffix(zf.Name, "/") {
			if _, err := tree.CreatePath(zf.Name); err != nil {
				return nil, fmt.Errorf("%w: directory %q: %w", packfs.ErrFormat, zf.Name, err)
			}
			continue
		}
		f, dir, err := entryFile(zf)
		if err != nil {
			return nil, err
		}
		if err := tree.AddFile(dir, f); err != nil {
			return nil, fmt.Errorf("%w: %w", packfs.ErrFormat, err)
		}
	}
	return &packfs.Index{Tree: tree, DataOrigin: 0}, nil
}

func entryFile(zf *zip.File) (*packfs.File, string, error) {
	full, err := packfs.CleanFile(zf.Name)
	if err != nil {
		return nil, "", fmt.Errorf("%w: entry %q: %w", packfs.ErrFormat, zf.Name, err)
	}
	dir, name := path.Split(full)

	switch zf.Method {
	case zip.Store, zip.Deflate:
	default:
		return nil, "", fmt.Errorf("%w: entry %q uses unsupported method %d", packfs.ErrFormat, zf.Name, zf.Method)
	}
	off, err := zf.DataOffset()
	if err != nil {
		return nil, "", fmt.Errorf("%w: entry %q: %w", packfs.ErrFormat, zf.Name, err)
	}
	if zf.UncompressedSize64 > 1<<62 || zf.CompressedSize64 > 1<<62 {
		return nil, "", fmt.Errorf("%w: entry %q", packfs.ErrSizeOverflow, zf.Name)
	}

	f := &packfs.File{
		Name:      name,
		Size:      int64(zf.UncompressedSize64), //nolint:gosec // bounded above
		Offset:    off,
		ModTime:   zf.Modified,
		Checksum:  zf.CRC32,
		Encrypted: zf.Flags&flagEncrypted != 0,
		Comment:   zf.Comment,
	}
	if zf.Method == zip.Deflate {
		f.CompressedSize = int64(zf.CompressedSize64) //nolint:gosec // bounded above
	} else if zf.CompressedSize64 != zf.UncompressedSize64 {
		return nil, "", fmt.Errorf("%w: stored entry %q has mismatched sizes", packfs.ErrFormat, zf.Name)
	}
	return f, dir, nil
}

// NewWriter implements packfs.Provider.
func (p *Provider) NewWriter(w io.Writer) (packfs.ArchiveWriter, error) {
	return &writer{p: p, zw: zip.NewWriter(w)}, nil
}

type writer struct {
	p  *Provider
	zw *zip.Writer
}

// WriteIndex emits an entry for every directory so empty directories
// survive. The central directory itself is written by Close.
func (w *writer) WriteIndex(_ context.Context, t *packfs.Tree) error {
	for d := range t.Dirs() {
		if d.IsRoot() {
			continue
		}
		hdr := &zip.FileHeader{Name: strings.TrimPrefix(d.FullPath(), packfs.Separator)}
		hdr.SetMode(fs.ModeDir | 0o755)
		if _, err := w.zw.CreateHeader(hdr); err != nil {
			return err
		}
	}
	return nil
}

func (w *writer) WriteFile(_ context.Context, f *packfs.File) error {
	if f.Encrypted {
		return fmt.Errorf("%s: %w", f.FullPath(), packfs.ErrEncrypted)
	}
	if int64(len(f.Data)) != f.StoredSize() {
		return fmt.Errorf("%s: payload is %d bytes, index records %d", f.FullPath(), len(f.Data), f.StoredSize())
	}
	crc, err := w.checksum(f)
	if err != nil {
		return err
	}
	hdr := &zip.FileHeader{
		Name:               strings.TrimPrefix(f.FullPath(), packfs.Separator),
		Comment:            f.Comment,
		Method:             zip.Store,
		CRC32:              crc,
		CompressedSize64:   uint64(len(f.Data)),
		UncompressedSize64: uint64(f.Size), //nolint:gosec // sizes are validated non-negative
	}
	if f.IsCompressed() {
		hdr.Method = zip.Deflate
	}
	if !f.ModTime.IsZero() {
		hdr.Modified = f.ModTime
	}
	hdr.SetMode(0o644)
	fw, err := w.zw.CreateRaw(hdr)
	if err != nil {
		return err
	}
	_, err = fw.Write(f.Data)
	return err
}

// checksum returns the CRC-32 of f's decoded content, computing it when the
// index does not record one.
func (w *writer) checksum(f *packfs.File) (uint32, error) {
	if f.Checksum != 0 {
		return f.Checksum, nil
	}
	if !f.IsCompressed() {
		return crc32.ChecksumIEEE(f.Data), nil
	}
	raw, err := codec.Decompress(w.p.codec, f.Data, f.Size)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", f.FullPath(), err)
	}
	return crc32.ChecksumIEEE(raw), nil
}

func (w *writer) Close() error {
	return w.zw.Close()
}
