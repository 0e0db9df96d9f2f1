// Package platform opens loose files for import without following links.
package platform

import (
	"errors"
	"io/fs"
	"os"
)

var (
	// ErrSymlink is returned for a name that is a symbolic link.
	ErrSymlink = errors.New("platform: symbolic link")

	// ErrNotRegular is returned for a name that is not a regular file.
	ErrNotRegular = errors.New("platform: not a regular file")
)

// OpenRegular opens name below root for reading and returns it with its
// file info. A final symbolic link is never followed.
func OpenRegular(root *os.Root, name string) (*os.File, fs.FileInfo, error) {
	f, err := openNoFollow(root, name)
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, nil, &fs.PathError{Op: "open", Path: name, Err: ErrNotRegular}
	}
	return f, info, nil
}
