package packfs

import (
	"bytes"
	"io"
	"io/fs"
	"slices"
	"strings"
	"time"
)

// Interface compliance.
var (
	_ fs.FS         = (*ioFS)(nil)
	_ fs.StatFS     = (*ioFS)(nil)
	_ fs.ReadFileFS = (*ioFS)(nil)
	_ fs.ReadDirFS  = (*ioFS)(nil)
)

// FS returns a read-only view of the live tree that implements fs.FS,
// fs.StatFS, fs.ReadFileFS, and fs.ReadDirFS. Names follow fs.ValidPath
// rules; lookups are case-insensitive.
func (fsys *FileSystem) FS() fs.FS {
	return &ioFS{fsys: fsys}
}

type ioFS struct {
	fsys *FileSystem
}

// lookup resolves an fs.ValidPath name to a file or directory of the live
// tree.
func (v *ioFS) lookup(op, name string) (*File, *Dir, error) {
	if !fs.ValidPath(name) {
		return nil, nil, &fs.PathError{Op: op, Path: name, Err: fs.ErrInvalid}
	}
	if name == "." {
		return nil, v.fsys.tree.root, nil
	}
	full := Separator + name
	if f, err := v.fsys.tree.GetFile(full); err == nil {
		return f, nil, nil
	}
	if d, err := v.fsys.tree.GetPath(full); err == nil {
		return nil, d, nil
	}
	return nil, nil, &fs.PathError{Op: op, Path: name, Err: fs.ErrNotExist}
}

// Open implements fs.FS. File content is decoded when the file is opened.
func (v *ioFS) Open(name string) (fs.File, error) {
	v.fsys.mu.RLock()
	defer v.fsys.mu.RUnlock()

	f, d, err := v.lookup("open", name)
	if err != nil {
		return nil, err
	}
	if d != nil {
		return &openDir{info: dirInfo(d, name), entries: dirEntries(d)}, nil
	}
	data, err := v.fsys.decodeLocked(f)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	return &openFile{Reader: bytes.NewReader(data), info: newFileInfo(f)}, nil
}

// Stat implements fs.StatFS.
func (v *ioFS) Stat(name string) (fs.FileInfo, error) {
	v.fsys.mu.RLock()
	defer v.fsys.mu.RUnlock()

	f, d, err := v.lookup("stat", name)
	if err != nil {
		return nil, err
	}
	if d != nil {
		return dirInfo(d, name), nil
	}
	return newFileInfo(f), nil
}

// ReadFile implements fs.ReadFileFS.
func (v *ioFS) ReadFile(name string) ([]byte, error) {
	if !fs.ValidPath(name) || name == "." {
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: fs.ErrInvalid}
	}
	data, err := v.fsys.ReadFile(Separator + name)
	if err != nil {
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: unwrapPathError(err)}
	}
	return data, nil
}

// ReadDir implements fs.ReadDirFS. Entries are sorted by name.
func (v *ioFS) ReadDir(name string) ([]fs.DirEntry, error) {
	v.fsys.mu.RLock()
	defer v.fsys.mu.RUnlock()

	_, d, err := v.lookup("readdir", name)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrInvalid}
	}
	return dirEntries(d), nil
}

func unwrapPathError(err error) error {
	if pe, ok := err.(*fs.PathError); ok { //nolint:errorlint // only the outermost layer is replaced
		return pe.Err
	}
	return err
}

func dirEntries(d *Dir) []fs.DirEntry {
	entries := make([]fs.DirEntry, 0, len(d.dirs)+len(d.files))
	for _, c := range d.dirs {
		entries = append(entries, fs.FileInfoToDirEntry(dirInfo(c, c.name)))
	}
	for _, f := range d.files {
		entries = append(entries, fs.FileInfoToDirEntry(newFileInfo(f)))
	}
	slices.SortFunc(entries, func(a, b fs.DirEntry) int {
		return strings.Compare(a.Name(), b.Name())
	})
	return entries
}

// fileInfo implements fs.FileInfo for tree entries.
type fileInfo struct {
	name    string
	size    int64
	mode    fs.FileMode
	modTime time.Time
	sys     any
}

func newFileInfo(f *File) *fileInfo {
	return &fileInfo{name: f.Name, size: f.Size, mode: 0o444, modTime: f.ModTime, sys: f}
}

func dirInfo(d *Dir, name string) *fileInfo {
	if d.IsRoot() {
		name = "."
	} else if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return &fileInfo{name: name, mode: fs.ModeDir | 0o555, sys: d}
}

func (i *fileInfo) Name() string       { return i.name }
func (i *fileInfo) Size() int64        { return i.size }
func (i *fileInfo) Mode() fs.FileMode  { return i.mode }
func (i *fileInfo) ModTime() time.Time { return i.modTime }
func (i *fileInfo) IsDir() bool        { return i.mode.IsDir() }
func (i *fileInfo) Sys() any           { return i.sys }

// openFile is an opened file whose content was decoded up front.
type openFile struct {
	*bytes.Reader
	info *fileInfo
}

func (f *openFile) Stat() (fs.FileInfo, error) { return f.info, nil }
func (f *openFile) Close() error               { return nil }

// openDir is an opened directory.
type openDir struct {
	info    *fileInfo
	entries []fs.DirEntry
	offset  int
}

func (d *openDir) Stat() (fs.FileInfo, error) { return d.info, nil }
func (d *openDir) Close() error               { return nil }

func (d *openDir) Read([]byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.info.name, Err: fs.ErrInvalid}
}

// ReadDir implements fs.ReadDirFile.
func (d *openDir) ReadDir(n int) ([]fs.DirEntry, error) {
	rest := d.entries[d.offset:]
	if n <= 0 {
		d.offset = len(d.entries)
		return slices.Clone(rest), nil
	}
	if len(rest) == 0 {
		return nil, io.EOF
	}
	n = min(n, len(rest))
	d.offset += n
	return slices.Clone(rest[:n]), nil
}
