package packfs

import (
	"errors"
	"fmt"
	"io/fs"
)

// Sentinel errors returned by file system operations. Errors are wrapped
// with context; test for them with errors.Is.
var (
	// ErrNotFound is returned when a file, directory, or archive root does
	// not exist. It is fs.ErrNotExist so callers may use either.
	ErrNotFound = fs.ErrNotExist

	// ErrExist is returned when adding an entry whose name is already taken.
	ErrExist = fs.ErrExist

	// ErrInvalidPath is returned for empty or malformed paths and names.
	ErrInvalidPath = errors.New("packfs: invalid path")

	// ErrFormat is returned when an archive header, index, or entry is
	// malformed.
	ErrFormat = errors.New("packfs: invalid archive format")

	// ErrReadTruncated is returned when fewer payload bytes are available
	// than the index promises, or a payload fails to decode.
	ErrReadTruncated = errors.New("packfs: cannot read data")

	// ErrChecksum is returned when decoded content does not match the
	// checksum recorded in the index.
	ErrChecksum = errors.New("packfs: checksum mismatch")

	// ErrEncrypted is returned when reading a payload flagged as encrypted.
	ErrEncrypted = errors.New("packfs: encrypted payloads are not supported")

	// ErrWriteFailed is returned when a save fails for a reason other than
	// cancellation.
	ErrWriteFailed = errors.New("packfs: write failed")

	// ErrNotMounted is returned when an operation needs a bound archive.
	ErrNotMounted = errors.New("packfs: no archive mounted")

	// ErrStale is returned when reading a file entry that was mounted from
	// an earlier binding, such as one kept across a save or remount.
	ErrStale = errors.New("packfs: file entry is from a previous mount")

	// ErrNotSeekable is returned when a stream cannot report or restore its
	// position.
	ErrNotSeekable = errors.New("packfs: stream is not seekable")

	// ErrNoProvider is returned when no registered provider recognizes an
	// archive.
	ErrNoProvider = errors.New("packfs: no provider for archive")

	// ErrDuplicateProvider is returned when registering a provider whose ID
	// is already taken.
	ErrDuplicateProvider = errors.New("packfs: duplicate provider")

	// ErrSymlink is returned when importing encounters a symbolic link.
	ErrSymlink = errors.New("packfs: symlink")

	// ErrTooManyFiles is returned when an import exceeds the configured
	// file limit.
	ErrTooManyFiles = errors.New("packfs: too many files")

	// ErrSizeOverflow is returned when sizes or offsets exceed supported
	// limits.
	ErrSizeOverflow = errors.New("packfs: size overflow")
)

// HeaderError reports an archive whose magic header does not match the
// provider that is reading it.
type HeaderError struct {
	Expected string
	Found    string
}

func (e *HeaderError) Error() string {
	return fmt.Sprintf("packfs: header mismatch: expected %q, found %q", e.Expected, e.Found)
}

// Is reports HeaderError as a kind of ErrFormat.
func (e *HeaderError) Is(target error) bool {
	return target == ErrFormat
}

// truncated reports a short or undecodable payload for the named file.
func truncated(fullPath string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: cannot read the file system file %q", ErrReadTruncated, fullPath)
	}
	return fmt.Errorf("%w: cannot read the file system file %q: %w", ErrReadTruncated, fullPath, err)
}
