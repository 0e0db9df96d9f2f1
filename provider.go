package packfs

import (
	"context"
	"fmt"
	"io"

	"github.com/meigma/packfs/codec"
)

// Provider implements one archive format.
//
// A provider is identified by the magic header string written at the start
// of its archives. It reads an archive's index into a Tree, and it creates
// writers that emit a complete archive from a Tree whose payloads are
// loaded and whose offsets have been assigned.
type Provider interface {
	// ID returns the magic header that identifies the provider's archives.
	ID() string

	// Name returns a short identifier such as "bzip2" or "zip".
	Name() string

	// Description returns a human readable description.
	Description() string

	// Extension returns the default archive file extension, including the
	// leading dot.
	Extension() string

	// Codec returns the codec used for payloads.
	Codec() codec.Codec

	// Probe reports whether r starts with this provider's header. Probe
	// consumes bytes from r; callers restore the position.
	Probe(r io.Reader) (bool, error)

	// ReadIndex parses the index of the archive held in src, which spans
	// size bytes starting at offset 0.
	ReadIndex(src io.ReaderAt, size int64) (*Index, error)

	// NewWriter returns a writer that emits an archive into w.
	NewWriter(w io.Writer) (ArchiveWriter, error)
}

// Index is the parsed index of an archive.
type Index struct {
	// Tree holds the archive's directories and files. File offsets are
	// relative to DataOrigin.
	Tree *Tree

	// DataOrigin is the position of the data region relative to the start
	// of the archive.
	DataOrigin int64
}

// ArchiveWriter writes one archive. WriteIndex is called once, followed by
// WriteFile for every file in traversal order, and finally Close.
type ArchiveWriter interface {
	WriteIndex(ctx context.Context, t *Tree) error
	WriteFile(ctx context.Context, f *File) error
	Close() error
}

// IsValidForProvider reports whether the archive at the current position of
// rs belongs to p. The position of rs is restored before returning.
func IsValidForProvider(p Provider, rs io.ReadSeeker) (ok bool, err error) {
	pos, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrNotSeekable, err)
	}
	defer func() {
		if _, serr := rs.Seek(pos, io.SeekStart); serr != nil && err == nil {
			ok, err = false, fmt.Errorf("%w: restore position: %w", ErrNotSeekable, serr)
		}
	}()
	return p.Probe(rs)
}
