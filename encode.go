package packfs

import (
	"bytes"
	"context"
	"hash/crc32"
	"io/fs"
	"time"

	"github.com/meigma/packfs/codec"
	"github.com/meigma/packfs/internal/staging"
)

// EncodeData encodes raw with the provider's codec and attaches the result
// to dir as a new file. It fails with ErrExist if dir already holds a file
// with that name.
//
// The payload is kept compressed only when compression saves more than the
// configured minimum; otherwise it is stored raw. The returned file holds
// its stored payload in Data until the next save.
func (fsys *FileSystem) EncodeData(ctx context.Context, dir *Dir, name string, raw []byte) (*File, error) {
	buf, release := staging.Acquire()
	defer release()

	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	return fsys.encodeLocked(ctx, dir, name, raw, buf, false)
}

// WriteFile encodes raw and stores it at name, creating parent directories
// as needed and replacing any existing file.
func (fsys *FileSystem) WriteFile(ctx context.Context, name string, raw []byte) (*File, error) {
	clean, err := CleanFile(name)
	if err != nil {
		return nil, err
	}
	dirPath, base := splitFile(clean)

	buf, release := staging.Acquire()
	defer release()

	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	dir, err := fsys.tree.CreatePath(dirPath)
	if err != nil {
		return nil, err
	}
	return fsys.encodeLocked(ctx, dir, base, raw, buf, true)
}

func (fsys *FileSystem) encodeLocked(ctx context.Context, dir *Dir, name string, raw, buf []byte, replace bool) (*File, error) {
	if dir == nil || !dir.within(fsys.tree.root) {
		return nil, &fs.PathError{Op: "encode", Path: name, Err: ErrNotFound}
	}
	if !ValidName(name) {
		return nil, &fs.PathError{Op: "encode", Path: dir.fullPath + name, Err: ErrInvalidPath}
	}
	if _, ok := dir.File(name); ok && !replace {
		return nil, &fs.PathError{Op: "encode", Path: dir.fullPath + name, Err: ErrExist}
	}
	if _, ok := dir.Dir(name); ok {
		return nil, &fs.PathError{Op: "encode", Path: dir.fullPath + name, Err: ErrExist}
	}

	stored, compressedSize, err := fsys.encode(ctx, raw, buf)
	if err != nil {
		return nil, &fs.PathError{Op: "encode", Path: dir.fullPath + name, Err: err}
	}
	f := &File{
		Name:           name,
		Size:           int64(len(raw)),
		CompressedSize: compressedSize,
		ModTime:        time.Now(),
		Checksum:       crc32.ChecksumIEEE(raw),
		Data:           stored,
	}
	if replace {
		dir.RemoveFile(name)
	}
	if err := dir.AddFile(f); err != nil {
		return nil, err
	}
	fsys.log().Debug("file staged",
		"path", f.FullPath(),
		"size", f.Size,
		"stored", f.StoredSize(),
		"compressed", f.IsCompressed())
	return f, nil
}

// encode returns the stored form of raw and its compressed size, or 0 when
// stored raw.
func (fsys *FileSystem) encode(ctx context.Context, raw, buf []byte) ([]byte, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	if len(raw) <= fsys.minSavings {
		return bytes.Clone(nonNil(raw)), 0, nil
	}
	compressed, err := codec.Compress(ctx, fsys.provider.Codec(), raw, buf)
	if err != nil {
		return nil, 0, err
	}
	if len(raw)-len(compressed) > fsys.minSavings {
		return compressed, int64(len(compressed)), nil
	}
	return bytes.Clone(raw), 0, nil
}

// nonNil returns b, or an empty non-nil slice, so empty payloads still
// count as loaded.
func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
