package packfs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"path/filepath"
	"sync"
)

// Source provides random access to archive bytes, such as a local file or
// an HTTP range source.
//
// SourceID must return a stable identifier for the underlying content, or
// "" if none is known. A non-empty identity enables payload caching.
type Source interface {
	io.ReaderAt
	Size() int64
	SourceID() string
}

// binding describes where the bound archive lives.
type binding struct {
	src    io.ReaderAt
	offset int64 // archive start within src
	size   int64 // archive length
	id     string
	file   *os.File      // owned handle, closed on unbind
	stream io.ReadSeeker // caller-owned host stream
	root   string        // archive path on disk
	exact  bool          // size is the written archive length, not the rest of the stream
}

// sameStream reports whether a and b are the same stream value.
func sameStream(a, b io.ReadSeeker) bool {
	if a == nil || b == nil {
		return false
	}
	ta := reflect.TypeOf(a)
	return ta == reflect.TypeOf(b) && ta.Comparable() && a == b
}

// readerAtFor returns random access over rs, using rs itself when it
// supports ReadAt.
func readerAtFor(rs io.ReadSeeker) io.ReaderAt {
	if ra, ok := rs.(io.ReaderAt); ok {
		return ra
	}
	return &seekReaderAt{rs: rs}
}

// seekReaderAt adapts a ReadSeeker to io.ReaderAt. Each read restores the
// stream position.
type seekReaderAt struct {
	mu sync.Mutex
	rs io.ReadSeeker
}

func (s *seekReaderAt) ReadAt(p []byte, off int64) (n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, err := s.rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	defer func() {
		if _, serr := s.rs.Seek(pos, io.SeekStart); serr != nil && err == nil {
			err = serr
		}
	}()
	if _, err := s.rs.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	n, err = io.ReadFull(s.rs, p)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}
	return n, err
}

// streamIdentity returns a stable identity for rs when one is available.
func streamIdentity(rs io.ReadSeeker, offset int64) string {
	switch s := rs.(type) {
	case interface{ SourceID() string }:
		if id := s.SourceID(); id != "" {
			return fmt.Sprintf("%s@%d", id, offset)
		}
	case *os.File:
		if info, err := s.Stat(); err == nil {
			return fmt.Sprintf("%s@%d", fileIdentity(s.Name(), info), offset)
		}
	}
	return ""
}

// fileIdentity identifies a file by path, size, and modification time.
func fileIdentity(path string, info os.FileInfo) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return fmt.Sprintf("file:%s:%d:%d", path, info.Size(), info.ModTime().UnixNano())
}

// withExtension appends ext when path has no extension.
func withExtension(path, ext string) string {
	if ext == "" || filepath.Ext(path) != "" {
		return path
	}
	return path + ext
}
