package packfs

import (
	"bytes"
	"fmt"
	"hash/crc32"
	"io"
	"io/fs"

	"github.com/meigma/packfs/cache"
	"github.com/meigma/packfs/codec"
	"github.com/meigma/packfs/internal/sizing"
)

// DecodeData returns the decoded content of f.
//
// The stored payload comes from f.Data when loaded, otherwise from the bound
// archive at its recorded offset. DecodeData never modifies f.
func (fsys *FileSystem) DecodeData(f *File) ([]byte, error) {
	fsys.mu.RLock()
	defer fsys.mu.RUnlock()
	return fsys.decodeLocked(f)
}

func (fsys *FileSystem) decodeLocked(f *File) ([]byte, error) {
	if f.Encrypted {
		return nil, &fs.PathError{Op: "decode", Path: f.FullPath(), Err: ErrEncrypted}
	}
	stored := f.Data
	inMemory := stored != nil
	if !inMemory {
		var err error
		if stored, err = fsys.readStored(f); err != nil {
			return nil, err
		}
	}
	raw, err := fsys.decodeStored(f, stored)
	if err != nil {
		return nil, err
	}
	if inMemory && !f.IsCompressed() {
		raw = bytes.Clone(raw)
	}
	return raw, nil
}

// readStored reads the stored payload of f from the bound archive.
func (fsys *FileSystem) readStored(f *File) ([]byte, error) {
	if !f.mounted || fsys.view == nil {
		return nil, &fs.PathError{Op: "read", Path: f.FullPath(), Err: ErrNotMounted}
	}
	if f.gen != fsys.gen {
		return nil, &fs.PathError{Op: "read", Path: f.FullPath(), Err: ErrStale}
	}
	n, err := sizing.ToInt(f.StoredSize(), ErrSizeOverflow)
	if err != nil {
		return nil, &fs.PathError{Op: "read", Path: f.FullPath(), Err: err}
	}
	pos, ok := sizing.AddInt64(fsys.origin, f.Offset)
	if !ok {
		return nil, &fs.PathError{Op: "read", Path: f.FullPath(), Err: ErrSizeOverflow}
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(io.NewSectionReader(fsys.view, pos, int64(n)), buf); err != nil {
		fsys.log().Debug("short payload read", "path", f.FullPath(), "offset", pos, "want", n, "error", err)
		return nil, truncated(f.FullPath(), err)
	}
	return buf, nil
}

func (fsys *FileSystem) decodeStored(f *File, stored []byte) ([]byte, error) {
	var raw []byte
	if f.IsCompressed() {
		var err error
		raw, err = codec.Decompress(fsys.provider.Codec(), stored, f.Size)
		if err != nil {
			return nil, truncated(f.FullPath(), err)
		}
	} else {
		if int64(len(stored)) != f.Size {
			return nil, truncated(f.FullPath(), fmt.Errorf("stored %d bytes, want %d", len(stored), f.Size))
		}
		raw = stored
	}
	if f.Checksum != 0 && crc32.ChecksumIEEE(raw) != f.Checksum {
		return nil, &fs.PathError{Op: "decode", Path: f.FullPath(), Err: ErrChecksum}
	}
	return raw, nil
}

// Load reads the stored payload of f into f.Data. Loaded files are not read
// from the archive again until Unmount drops them.
func (fsys *FileSystem) Load(f *File) error {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	if f.Loaded() {
		return nil
	}
	data, err := fsys.readStored(f)
	if err != nil {
		return err
	}
	f.Data = data
	fsys.report(ProgressEvent{Stage: StageLoading, Path: f.FullPath(), BytesDone: uint64(len(data)), BytesTotal: uint64(len(data))})
	return nil
}

// ReadFile returns the decoded content of the file at name.
//
// When caching is enabled and the archive source has a stable identity,
// decoded content is served from the cache, and concurrent reads of the same
// entry are deduplicated.
func (fsys *FileSystem) ReadFile(name string) ([]byte, error) {
	fsys.mu.RLock()
	defer fsys.mu.RUnlock()

	f, err := fsys.tree.GetFile(name)
	if err != nil {
		return nil, err
	}
	if fsys.cache == nil || f.Loaded() || !f.mounted || fsys.bound.id == "" {
		return fsys.decodeLocked(f)
	}

	key := cache.Key(cache.Entry{
		SourceID: fsys.bound.id,
		Path:     f.FullPath(),
		Offset:   fsys.origin + f.Offset,
		Stored:   f.StoredSize(),
		Size:     f.Size,
		Checksum: f.Checksum,
	})
	if data, ok := fsys.cache.Get(key); ok {
		if fsys.cachedValid(f, data) {
			fsys.log().Debug("readfile cache hit", "path", f.FullPath())
			return data, nil
		}
		_ = fsys.cache.Delete(key) //nolint:errcheck // best-effort cleanup of a bad entry
	}

	fsys.log().Debug("readfile cache miss", "path", f.FullPath())
	result, err, _ := fsys.readGroup.Do(key.String(), func() (any, error) {
		data, err := fsys.decodeLocked(f)
		if err != nil {
			return nil, err
		}
		_ = fsys.cache.Put(key, data) //nolint:errcheck // caching is opportunistic
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return bytes.Clone(result.([]byte)), nil //nolint:errcheck // type assertion always succeeds when err is nil
}

func (fsys *FileSystem) cachedValid(f *File, data []byte) bool {
	if int64(len(data)) != f.Size {
		return false
	}
	return f.Checksum == 0 || crc32.ChecksumIEEE(data) == f.Checksum
}
