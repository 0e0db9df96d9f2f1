package packfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/meigma/packfs/cache"
	"github.com/meigma/packfs/internal/sizing"
)

// FileSystem is a virtual file system bound to at most one archive.
//
// A FileSystem starts unbound. AssignRoot, AssignRootStream, or
// AssignRootSource reads an archive's index and mounts its whole tree.
// Files are decoded lazily; WriteFile and EncodeData stage new content in
// memory until Save or SaveStream writes a new archive and remounts it.
//
// Methods are safe for concurrent use. File and Dir values returned by the
// FileSystem must not be modified while other goroutines use it.
type FileSystem struct {
	mu       sync.RWMutex
	provider Provider
	tree     *Tree // live view
	index    *Tree // parsed index of the bound archive, nil when unbound
	origin   int64 // data region start relative to the archive start
	bound    binding
	view     *io.SectionReader // archive bytes, nil when unbound
	gen      uint64            // incremented on every bind

	minSavings  int
	maxFileSize int64
	cache       cache.Cache        // nil = no caching
	readGroup   singleflight.Group // zero value is valid
	progress    ProgressFunc
	logger      *slog.Logger
}

// log returns the logger, falling back to a discard logger if nil.
func (fsys *FileSystem) log() *slog.Logger {
	if fsys.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return fsys.logger
}

// New creates an unbound FileSystem that reads and writes archives with p.
func New(p Provider, opts ...Option) (*FileSystem, error) {
	if p == nil {
		return nil, errors.New("packfs: provider is nil")
	}
	fsys := &FileSystem{
		provider:    p,
		tree:        NewTree(),
		minSavings:  DefaultMinSavings,
		maxFileSize: DefaultMaxFileSize,
	}
	for _, opt := range opts {
		opt(fsys)
	}
	return fsys, nil
}

// Provider returns the provider bound to fsys.
func (fsys *FileSystem) Provider() Provider { return fsys.provider }

// ArchivePath returns the path of the bound archive file, or "" when the
// archive is not a local file.
func (fsys *FileSystem) ArchivePath() string {
	fsys.mu.RLock()
	defer fsys.mu.RUnlock()
	return fsys.bound.root
}

// IsRootInStream reports whether the archive is embedded in a caller-owned
// stream.
func (fsys *FileSystem) IsRootInStream() bool {
	fsys.mu.RLock()
	defer fsys.mu.RUnlock()
	return fsys.bound.stream != nil
}

// StreamOffset returns the position of the archive start inside its host
// stream, or 0 when the archive is not embedded.
func (fsys *FileSystem) StreamOffset() int64 {
	fsys.mu.RLock()
	defer fsys.mu.RUnlock()
	return fsys.bound.offset
}

// Mounted reports whether an archive is bound.
func (fsys *FileSystem) Mounted() bool {
	fsys.mu.RLock()
	defer fsys.mu.RUnlock()
	return fsys.index != nil
}

// AssignRoot binds fsys to the archive file at name and mounts its tree.
//
// When name has no extension, the provider's default extension is added.
// The file stays open until the FileSystem is closed or rebound. On failure
// fsys is left unbound with an empty tree.
func (fsys *FileSystem) AssignRoot(ctx context.Context, name string) error {
	if name == "" {
		return &fs.PathError{Op: "assignroot", Path: name, Err: ErrInvalidPath}
	}
	name = withExtension(name, fsys.provider.Extension())

	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	return fsys.bindFileLocked(ctx, name)
}

func (fsys *FileSystem) bindFileLocked(ctx context.Context, name string) error {
	info, err := os.Stat(name)
	if err != nil {
		fsys.resetLocked()
		if errors.Is(err, fs.ErrNotExist) {
			return &fs.PathError{Op: "assignroot", Path: name, Err: ErrNotFound}
		}
		return err
	}
	if info.IsDir() {
		fsys.resetLocked()
		return &fs.PathError{Op: "assignroot", Path: name, Err: ErrInvalidPath}
	}
	f, err := os.Open(name) //nolint:gosec // caller-selected archive path
	if err != nil {
		fsys.resetLocked()
		return err
	}
	return fsys.bindLocked(ctx, binding{
		src:  f,
		size: info.Size(),
		id:   fileIdentity(name, info),
		file: f,
		root: name,
	})
}

// AssignRootStream binds fsys to an archive embedded in rs, starting at the
// current position of rs, and mounts its tree.
//
// The stream remains owned by the caller and must stay open while fsys
// reads from it. Its position is left where it was found. On failure fsys
// is left unbound with an empty tree.
func (fsys *FileSystem) AssignRootStream(ctx context.Context, rs io.ReadSeeker) error {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	pos, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		fsys.resetLocked()
		return fmt.Errorf("%w: %w", ErrNotSeekable, err)
	}
	end, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		fsys.resetLocked()
		return fmt.Errorf("%w: %w", ErrNotSeekable, err)
	}
	if _, err := rs.Seek(pos, io.SeekStart); err != nil {
		fsys.resetLocked()
		return fmt.Errorf("%w: %w", ErrNotSeekable, err)
	}
	return fsys.bindLocked(ctx, binding{
		src:    readerAtFor(rs),
		offset: pos,
		size:   end - pos,
		id:     streamIdentity(rs, pos),
		stream: rs,
	})
}

// AssignRootSource binds fsys to an archive read through src, such as a
// remote HTTP source, and mounts its tree.
func (fsys *FileSystem) AssignRootSource(ctx context.Context, src Source) error {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	return fsys.bindLocked(ctx, binding{
		src:  src,
		size: src.Size(),
		id:   src.SourceID(),
	})
}

// bindLocked reads the index described by b and, on success, replaces the
// current binding and live tree.
func (fsys *FileSystem) bindLocked(ctx context.Context, b binding) error {
	view := io.NewSectionReader(b.src, b.offset, b.size)
	idx, err := fsys.readIndex(ctx, view, b)
	if err != nil {
		if b.file != nil {
			_ = b.file.Close() //nolint:errcheck // best-effort cleanup
		}
		fsys.resetLocked()
		return err
	}

	fsys.unbindLocked()
	fsys.bound = b
	fsys.view = view
	fsys.index = idx.Tree
	fsys.origin = idx.DataOrigin
	fsys.gen++
	fsys.tree = NewTree()
	fsys.log().Debug("archive bound",
		"provider", fsys.provider.Name(),
		"path", b.root,
		"stream", b.stream != nil,
		"offset", b.offset,
		"size", b.size,
		"files", idx.Tree.FileCount())
	return fsys.mountLocked(Separator, true)
}

func (fsys *FileSystem) readIndex(ctx context.Context, view *io.SectionReader, b binding) (*Index, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fsys.report(ProgressEvent{Stage: StageReadingIndex, Path: b.root, BytesTotal: uint64(max(b.size, 0))}) //nolint:gosec // clamped
	idx, err := fsys.provider.ReadIndex(view, b.size)
	if err != nil {
		return nil, err
	}
	if idx == nil || idx.Tree == nil {
		return nil, fmt.Errorf("%w: provider %s returned no index", ErrFormat, fsys.provider.Name())
	}
	if err := fsys.validateIndex(idx, b.size); err != nil {
		return nil, err
	}
	return idx, nil
}

// validateIndex rejects impossible entries. Payloads extending past the
// end of the archive are reported when read.
func (fsys *FileSystem) validateIndex(idx *Index, size int64) error {
	if idx.DataOrigin < 0 || idx.DataOrigin > size {
		return fmt.Errorf("%w: data region starts at %d in %d byte archive", ErrFormat, idx.DataOrigin, size)
	}
	for f := range idx.Tree.Files() {
		if f.Offset < 0 || f.Size < 0 || f.CompressedSize < 0 {
			return fmt.Errorf("%w: negative offset or size for %s", ErrFormat, f.FullPath())
		}
		if _, ok := sizing.AddInt64(idx.DataOrigin, f.Offset); !ok {
			return fmt.Errorf("%w: offset of %s", ErrSizeOverflow, f.FullPath())
		}
		if fsys.maxFileSize > 0 && (f.Size > fsys.maxFileSize || f.StoredSize() > fsys.maxFileSize) {
			return fmt.Errorf("%w: %s is %d bytes, limit %d", ErrSizeOverflow, f.FullPath(), f.Size, fsys.maxFileSize)
		}
	}
	return nil
}

// unbindLocked releases the current binding but keeps the live tree.
func (fsys *FileSystem) unbindLocked() {
	if fsys.bound.file != nil {
		if err := fsys.bound.file.Close(); err != nil {
			fsys.log().Debug("close archive", "path", fsys.bound.root, "error", err)
		}
	}
	fsys.bound = binding{}
	fsys.view = nil
	fsys.index = nil
	fsys.origin = 0
}

// resetLocked unbinds and clears the live tree.
func (fsys *FileSystem) resetLocked() {
	fsys.unbindLocked()
	fsys.tree = NewTree()
}

// Close releases the archive handle and resets fsys to an empty, unbound
// state. Caller-owned streams are not closed.
func (fsys *FileSystem) Close() error {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	var err error
	if fsys.bound.file != nil {
		err = fsys.bound.file.Close()
		fsys.bound.file = nil
	}
	fsys.resetLocked()
	return err
}

// Mount attaches the index entries at dir to the live tree, creating
// directories as needed. Mounted entries replace live files with the same
// name. With recurse, subdirectories are mounted too.
func (fsys *FileSystem) Mount(dir string, recurse bool) error {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	return fsys.mountLocked(dir, recurse)
}

func (fsys *FileSystem) mountLocked(dir string, recurse bool) error {
	if fsys.index == nil {
		return &fs.PathError{Op: "mount", Path: dir, Err: ErrNotMounted}
	}
	src, err := fsys.index.GetPath(dir)
	if err != nil {
		return &fs.PathError{Op: "mount", Path: dir, Err: ErrNotFound}
	}
	count, err := mountDir(fsys.tree, src, recurse, fsys.gen)
	if err != nil {
		return err
	}
	fsys.report(ProgressEvent{Stage: StageMounting, Path: src.FullPath(), FilesDone: count, FilesTotal: count})
	fsys.log().Debug("mounted", "path", src.FullPath(), "recurse", recurse, "files", count)
	return nil
}

func mountDir(dst *Tree, src *Dir, recurse bool, gen uint64) (int, error) {
	d, err := dst.CreatePath(src.FullPath())
	if err != nil {
		return 0, err
	}
	count := 0
	for _, f := range src.files {
		nf := *f
		nf.Data = nil
		nf.dir = nil
		nf.mounted = true
		nf.gen = gen
		d.RemoveFile(nf.Name)
		if err := d.AddFile(&nf); err != nil {
			return count, err
		}
		count++
	}
	if !recurse {
		return count, nil
	}
	for _, c := range src.dirs {
		n, err := mountDir(dst, c, true, gen)
		count += n
		if err != nil {
			return count, err
		}
	}
	return count, nil
}

// Unmount drops the loaded payloads of archive-backed files at dir, and
// below it with recurse. Staged files that exist only in memory are kept.
func (fsys *FileSystem) Unmount(dir string, recurse bool) error {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	d, err := fsys.tree.GetPath(dir)
	if err != nil {
		return &fs.PathError{Op: "unmount", Path: dir, Err: ErrNotFound}
	}
	evict := func(f *File) {
		if f.mounted {
			f.Data = nil
		}
	}
	if recurse {
		for f := range d.AllFiles() {
			evict(f)
		}
		return nil
	}
	for _, f := range d.files {
		evict(f)
	}
	return nil
}

// RebuildIndex replaces the live tree with a fresh mount of the bound
// archive's index. With preserveFiles, staged files and directories that
// exist only in memory are carried over and win over archive entries of the
// same path. An unbound FileSystem keeps only what preserveFiles carries.
func (fsys *FileSystem) RebuildIndex(preserveFiles bool) error {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	old := fsys.tree
	fsys.tree = NewTree()
	if fsys.index != nil {
		if err := fsys.mountLocked(Separator, true); err != nil {
			fsys.tree = old
			return err
		}
	}
	if !preserveFiles {
		return nil
	}
	for d := range old.Dirs() {
		if _, err := fsys.tree.CreatePath(d.fullPath); err != nil {
			fsys.tree = old
			return err
		}
	}
	var staged []*File
	for f := range old.Files() {
		if !f.mounted {
			staged = append(staged, f)
		}
	}
	for i, f := range staged {
		d, err := fsys.tree.GetPath(f.dir.fullPath)
		if err == nil {
			d.RemoveFile(f.Name)
			err = d.AddFile(f)
		}
		if err != nil {
			for _, moved := range staged[:i+1] {
				moved.dir, _ = old.GetPath(moved.dir.fullPath)
			}
			fsys.tree = old
			return err
		}
	}
	fsys.log().Debug("index rebuilt", "staged", len(staged))
	return nil
}

// Root returns the root directory of the live tree.
func (fsys *FileSystem) Root() *Dir {
	fsys.mu.RLock()
	defer fsys.mu.RUnlock()
	return fsys.tree.root
}

// CreatePath creates every missing directory along dir.
func (fsys *FileSystem) CreatePath(dir string) (*Dir, error) {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	return fsys.tree.CreatePath(dir)
}

// GetPath returns the directory at dir.
func (fsys *FileSystem) GetPath(dir string) (*Dir, error) {
	fsys.mu.RLock()
	defer fsys.mu.RUnlock()
	return fsys.tree.GetPath(dir)
}

// PathExists reports whether a directory exists at dir.
func (fsys *FileSystem) PathExists(dir string) bool {
	fsys.mu.RLock()
	defer fsys.mu.RUnlock()
	return fsys.tree.PathExists(dir)
}

// GetFile returns the file at name.
func (fsys *FileSystem) GetFile(name string) (*File, error) {
	fsys.mu.RLock()
	defer fsys.mu.RUnlock()
	return fsys.tree.GetFile(name)
}

// FileExists reports whether a file exists at name.
func (fsys *FileSystem) FileExists(name string) bool {
	fsys.mu.RLock()
	defer fsys.mu.RUnlock()
	return fsys.tree.FileExists(name)
}

// Delete removes the file at name from the live tree.
func (fsys *FileSystem) Delete(name string) error {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	return fsys.tree.RemoveFile(name)
}

// DeletePath removes the directory at dir and everything below it.
// Deleting "/" empties the tree.
func (fsys *FileSystem) DeletePath(dir string) error {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	return fsys.tree.RemovePath(dir)
}

// Files returns every file in traversal order.
func (fsys *FileSystem) Files() []*File {
	fsys.mu.RLock()
	defer fsys.mu.RUnlock()
	var out []*File
	for f := range fsys.tree.Files() {
		out = append(out, f)
	}
	return out
}

// FindFiles returns the files under dir whose names match pattern, using
// path.Match syntax without regard to case. With recurse, subdirectories
// are searched too.
func (fsys *FileSystem) FindFiles(dir, pattern string, recurse bool) ([]*File, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("%w: pattern %q: %w", ErrInvalidPath, pattern, err)
	}
	fsys.mu.RLock()
	defer fsys.mu.RUnlock()

	d, err := fsys.tree.GetPath(dir)
	if err != nil {
		return nil, err
	}
	pattern = strings.ToLower(pattern)
	match := func(f *File) bool {
		ok, _ := path.Match(pattern, strings.ToLower(f.Name)) //nolint:errcheck // pattern validated above
		return ok
	}

	var out []*File
	if recurse {
		for f := range d.AllFiles() {
			if match(f) {
				out = append(out, f)
			}
		}
		return out, nil
	}
	for _, f := range d.files {
		if match(f) {
			out = append(out, f)
		}
	}
	return out, nil
}

// Size returns the total stored size of all payloads: the compressed size
// for compressed files and the raw size otherwise.
func (fsys *FileSystem) Size() int64 {
	fsys.mu.RLock()
	defer fsys.mu.RUnlock()
	var total int64
	for f := range fsys.tree.Files() {
		total += f.StoredSize()
	}
	return total
}
