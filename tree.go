package packfs

import (
	"io/fs"
	"iter"
	"path"
	"slices"
	"strings"
	"time"
)

// File is a file entry in the tree.
//
// Name must not be changed once the file has been added to a directory.
type File struct {
	// Name is the file name including its extension.
	Name string

	// Size is the decoded length in bytes.
	Size int64

	// CompressedSize is the stored length when the payload is compressed,
	// or 0 when it is stored raw.
	CompressedSize int64

	// Offset is the payload position relative to the start of the archive's
	// data region.
	Offset int64

	ModTime time.Time

	// Checksum is the CRC-32 (IEEE) of the decoded content, or 0 when the
	// archive did not record one.
	Checksum uint32

	Encrypted bool
	Comment   string

	// Data holds the stored-form payload once loaded, or nil.
	Data []byte

	dir     *Dir
	mounted bool   // backed by the bound archive
	gen     uint64 // binding generation the entry was mounted from
}

// Dir returns the directory that holds f, or nil if f is detached.
func (f *File) Dir() *Dir { return f.dir }

// FullPath returns the canonical path of f, such as "/a/one.txt".
func (f *File) FullPath() string {
	if f.dir == nil {
		return Separator + f.Name
	}
	return f.dir.fullPath + f.Name
}

// Ext returns the file name extension, including the dot.
func (f *File) Ext() string { return path.Ext(f.Name) }

// IsCompressed reports whether the payload is stored compressed.
func (f *File) IsCompressed() bool { return f.CompressedSize > 0 }

// StoredSize returns the number of payload bytes in the archive.
func (f *File) StoredSize() int64 {
	if f.IsCompressed() {
		return f.CompressedSize
	}
	return f.Size
}

// Loaded reports whether the stored payload is held in memory.
func (f *File) Loaded() bool { return f.Data != nil }

// Dir is a directory in the tree. Name lookups are case-insensitive while
// the original spelling and insertion order are preserved.
type Dir struct {
	name     string
	fullPath string
	parent   *Dir
	dirs     []*Dir
	files    []*File
	dirIdx   map[string]*Dir
	fileIdx  map[string]*File
}

func newDir(name, fullPath string, parent *Dir) *Dir {
	return &Dir{
		name:     name,
		fullPath: fullPath,
		parent:   parent,
		dirIdx:   make(map[string]*Dir),
		fileIdx:  make(map[string]*File),
	}
}

func fold(name string) string { return strings.ToLower(name) }

// Name returns the directory name, or "/" for the root.
func (d *Dir) Name() string { return d.name }

// FullPath returns the canonical path, such as "/a/b/".
func (d *Dir) FullPath() string { return d.fullPath }

// Parent returns the parent directory, or nil for the root.
func (d *Dir) Parent() *Dir { return d.parent }

// IsRoot reports whether d is the root directory.
func (d *Dir) IsRoot() bool { return d.parent == nil }

// Dirs returns the child directories in insertion order.
func (d *Dir) Dirs() []*Dir { return slices.Clone(d.dirs) }

// Files returns the files in insertion order.
func (d *Dir) Files() []*File { return slices.Clone(d.files) }

// Dir returns the child directory with the given name.
func (d *Dir) Dir(name string) (*Dir, bool) {
	c, ok := d.dirIdx[fold(name)]
	return c, ok
}

// File returns the file with the given name.
func (d *Dir) File(name string) (*File, bool) {
	f, ok := d.fileIdx[fold(name)]
	return f, ok
}

// Mkdir returns the child directory with the given name, creating it if
// needed.
func (d *Dir) Mkdir(name string) (*Dir, error) {
	if !ValidName(name) {
		return nil, &fs.PathError{Op: "mkdir", Path: d.fullPath + name, Err: ErrInvalidPath}
	}
	key := fold(name)
	if c, ok := d.dirIdx[key]; ok {
		return c, nil
	}
	if _, ok := d.fileIdx[key]; ok {
		return nil, &fs.PathError{Op: "mkdir", Path: d.fullPath + name, Err: ErrExist}
	}
	c := newDir(name, d.fullPath+name+Separator, d)
	d.dirs = append(d.dirs, c)
	d.dirIdx[key] = c
	return c, nil
}

// AddFile attaches f to d. It fails with ErrExist if the name is taken.
func (d *Dir) AddFile(f *File) error {
	if !ValidName(f.Name) {
		return &fs.PathError{Op: "add", Path: d.fullPath + f.Name, Err: ErrInvalidPath}
	}
	key := fold(f.Name)
	if _, ok := d.fileIdx[key]; ok {
		return &fs.PathError{Op: "add", Path: d.fullPath + f.Name, Err: ErrExist}
	}
	if _, ok := d.dirIdx[key]; ok {
		return &fs.PathError{Op: "add", Path: d.fullPath + f.Name, Err: ErrExist}
	}
	f.dir = d
	d.files = append(d.files, f)
	d.fileIdx[key] = f
	return nil
}

// RemoveFile detaches the named file and reports whether it existed.
func (d *Dir) RemoveFile(name string) bool {
	key := fold(name)
	f, ok := d.fileIdx[key]
	if !ok {
		return false
	}
	delete(d.fileIdx, key)
	d.files = slices.DeleteFunc(d.files, func(x *File) bool { return x == f })
	f.dir = nil
	return true
}

// RemoveDir detaches the named child directory and everything below it.
func (d *Dir) RemoveDir(name string) bool {
	key := fold(name)
	c, ok := d.dirIdx[key]
	if !ok {
		return false
	}
	delete(d.dirIdx, key)
	d.dirs = slices.DeleteFunc(d.dirs, func(x *Dir) bool { return x == c })
	c.parent = nil
	return true
}

// clear removes every child directory and file.
func (d *Dir) clear() {
	d.dirs = nil
	d.files = nil
	d.dirIdx = make(map[string]*Dir)
	d.fileIdx = make(map[string]*File)
}

// AllFiles iterates the files at and below d: child directories first, in
// order, then d's own files.
func (d *Dir) AllFiles() iter.Seq[*File] {
	return func(yield func(*File) bool) {
		d.walkFiles(yield)
	}
}

func (d *Dir) walkFiles(yield func(*File) bool) bool {
	for _, c := range d.dirs {
		if !c.walkFiles(yield) {
			return false
		}
	}
	for _, f := range d.files {
		if !yield(f) {
			return false
		}
	}
	return true
}

// AllDirs iterates d and every directory below it, parents before children.
func (d *Dir) AllDirs() iter.Seq[*Dir] {
	return func(yield func(*Dir) bool) {
		d.walkDirs(yield)
	}
}

func (d *Dir) walkDirs(yield func(*Dir) bool) bool {
	if !yield(d) {
		return false
	}
	for _, c := range d.dirs {
		if !c.walkDirs(yield) {
			return false
		}
	}
	return true
}

// within reports whether d is root or a descendant of root.
func (d *Dir) within(root *Dir) bool {
	for x := d; x != nil; x = x.parent {
		if x == root {
			return true
		}
	}
	return false
}

// Tree is a rooted directory tree of files.
//
// A Tree is not safe for concurrent mutation.
type Tree struct {
	root *Dir
}

// NewTree returns a tree holding only the root directory.
func NewTree() *Tree {
	return &Tree{root: newDir(Separator, Separator, nil)}
}

// Root returns the root directory.
func (t *Tree) Root() *Dir { return t.root }

// CreatePath creates every missing directory along p and returns the last.
// Existing directories are reused.
func (t *Tree) CreatePath(p string) (*Dir, error) {
	parts, err := splitPath(p)
	if err != nil {
		return nil, &fs.PathError{Op: "createpath", Path: p, Err: err}
	}
	d := t.root
	for _, part := range parts {
		if d, err = d.Mkdir(part); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// GetPath returns the directory at p.
func (t *Tree) GetPath(p string) (*Dir, error) {
	parts, err := splitPath(p)
	if err != nil {
		return nil, &fs.PathError{Op: "getpath", Path: p, Err: err}
	}
	d := t.root
	for _, part := range parts {
		c, ok := d.Dir(part)
		if !ok {
			return nil, &fs.PathError{Op: "getpath", Path: p, Err: ErrNotFound}
		}
		d = c
	}
	return d, nil
}

// PathExists reports whether a directory exists at p.
func (t *Tree) PathExists(p string) bool {
	_, err := t.GetPath(p)
	return err == nil
}

// GetFile returns the file at p.
func (t *Tree) GetFile(p string) (*File, error) {
	clean, err := CleanFile(p)
	if err != nil {
		return nil, err
	}
	dirPath, name := splitFile(clean)
	d, err := t.GetPath(dirPath)
	if err != nil {
		return nil, &fs.PathError{Op: "getfile", Path: p, Err: ErrNotFound}
	}
	f, ok := d.File(name)
	if !ok {
		return nil, &fs.PathError{Op: "getfile", Path: p, Err: ErrNotFound}
	}
	return f, nil
}

// FileExists reports whether a file exists at p.
func (t *Tree) FileExists(p string) bool {
	_, err := t.GetFile(p)
	return err == nil
}

// AddFile creates dirPath as needed and attaches f to it.
func (t *Tree) AddFile(dirPath string, f *File) error {
	d, err := t.CreatePath(dirPath)
	if err != nil {
		return err
	}
	return d.AddFile(f)
}

// RemoveFile removes the file at p.
func (t *Tree) RemoveFile(p string) error {
	f, err := t.GetFile(p)
	if err != nil {
		return err
	}
	f.dir.RemoveFile(f.Name)
	return nil
}

// RemovePath removes the directory at p with all of its contents. Removing
// the root empties the tree.
func (t *Tree) RemovePath(p string) error {
	d, err := t.GetPath(p)
	if err != nil {
		return err
	}
	if d.IsRoot() {
		d.clear()
		return nil
	}
	d.parent.RemoveDir(d.name)
	return nil
}

// Files iterates every file in traversal order.
func (t *Tree) Files() iter.Seq[*File] { return t.root.AllFiles() }

// Dirs iterates every directory, parents before children.
func (t *Tree) Dirs() iter.Seq[*Dir] { return t.root.AllDirs() }

// FileCount returns the number of files in the tree.
func (t *Tree) FileCount() int {
	n := 0
	for range t.Files() {
		n++
	}
	return n
}

// Clone returns a structural copy of t. File entries are copied by value;
// their Data slices are shared and must be treated as immutable.
func (t *Tree) Clone() *Tree {
	out := NewTree()
	cloneInto(out.root, t.root)
	return out
}

func cloneInto(dst, src *Dir) {
	for _, c := range src.dirs {
		nd := newDir(c.name, c.fullPath, dst)
		dst.dirs = append(dst.dirs, nd)
		dst.dirIdx[fold(c.name)] = nd
		cloneInto(nd, c)
	}
	for _, f := range src.files {
		nf := *f
		nf.dir = dst
		dst.files = append(dst.files, &nf)
		dst.fileIdx[fold(nf.Name)] = &nf
	}
}
