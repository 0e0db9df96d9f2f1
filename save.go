package packfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/meigma/packfs/internal/staging"
)

// Save writes the live tree as a complete archive at name and remounts it.
//
// When name has no extension, the provider's default extension is added.
// The archive is staged in a temporary file next to name and renamed into
// place only after every payload and the index were written, so a failed
// or canceled save leaves any existing file at name untouched. Parent
// directories are created as needed.
//
// Saves are serialized process-wide. A canceled save returns an error
// wrapping ctx.Err(); other failures wrap ErrWriteFailed.
func (fsys *FileSystem) Save(ctx context.Context, name string) error {
	if name == "" {
		return &fs.PathError{Op: "save", Path: name, Err: ErrInvalidPath}
	}
	name = withExtension(name, fsys.provider.Extension())

	buf, release := staging.Acquire()
	defer release()

	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	dir := filepath.Dir(name)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fsys.saveErr(name, fmt.Errorf("create directory: %w", err))
	}
	tmp, err := os.CreateTemp(dir, ".packfs-*")
	if err != nil {
		return fsys.saveErr(name, err)
	}
	tmpPath := tmp.Name()
	promoted := false
	defer func() {
		if !promoted {
			_ = tmp.Close()        //nolint:errcheck // best-effort cleanup
			_ = os.Remove(tmpPath) //nolint:errcheck // best-effort cleanup
		}
	}()

	n, err := fsys.writeArchive(ctx, tmp, buf)
	if err != nil {
		return fsys.saveErr(name, err)
	}
	if err := tmp.Sync(); err != nil {
		return fsys.saveErr(name, err)
	}
	if err := tmp.Close(); err != nil {
		return fsys.saveErr(name, err)
	}
	if err := ctx.Err(); err != nil {
		return fsys.saveErr(name, err)
	}

	fsys.report(ProgressEvent{Stage: StageFinalizing, Path: name, BytesDone: uint64(n), BytesTotal: uint64(n)}) //nolint:gosec // n is non-negative
	if err := os.Rename(tmpPath, name); err != nil {
		return fsys.saveErr(name, err)
	}
	promoted = true
	fsys.log().Debug("archive saved", "path", name, "size", n)

	return fsys.bindFileLocked(context.WithoutCancel(ctx), name)
}

// SaveStream writes the live tree as a complete archive into rws and
// remounts the archive from there.
//
// When rws is the stream fsys is bound to, the archive is rewritten in place
// at its embedded offset. Any other stream is written at its current
// position. If an archive written by an earlier SaveStream ended the stream
// and rws has a Truncate(int64) error method, the stream is cut to the new
// archive's end so a smaller archive leaves no stale bytes behind.
//
// The archive is staged in a temporary file first; rws is only written once
// staging succeeded, so a failed or canceled save leaves rws untouched. On
// success rws is positioned at the end of the written archive. The stream
// remains owned by the caller and is never closed.
func (fsys *FileSystem) SaveStream(ctx context.Context, rws io.ReadWriteSeeker) error {
	const label = "<stream>"

	buf, release := staging.Acquire()
	defer release()

	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	pos, err := rws.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotSeekable, err)
	}
	inPlace := sameStream(rws, fsys.bound.stream)
	oldEnd := int64(-1)
	if inPlace {
		pos = fsys.bound.offset
		if fsys.bound.exact {
			oldEnd = fsys.bound.offset + fsys.bound.size
		}
	}

	tmp, err := os.CreateTemp("", "packfs-*")
	if err != nil {
		return fsys.saveErr(label, err)
	}
	defer func() {
		_ = tmp.Close()           //nolint:errcheck // best-effort cleanup
		_ = os.Remove(tmp.Name()) //nolint:errcheck // best-effort cleanup
	}()

	n, err := fsys.writeArchive(ctx, tmp, buf)
	if err != nil {
		return fsys.saveErr(label, err)
	}
	if err := ctx.Err(); err != nil {
		return fsys.saveErr(label, err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return fsys.saveErr(label, err)
	}
	streamEnd, err := rws.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotSeekable, err)
	}
	if _, err := rws.Seek(pos, io.SeekStart); err != nil {
		return fmt.Errorf("%w: %w", ErrNotSeekable, err)
	}

	fsys.report(ProgressEvent{Stage: StageFinalizing, Path: label, BytesDone: uint64(n), BytesTotal: uint64(n)}) //nolint:gosec // n is non-negative
	finalize := context.WithoutCancel(ctx)
	if _, err := staging.Copy(finalize, rws, io.LimitReader(tmp, n), buf); err != nil {
		return fsys.saveErr(label, err)
	}
	end := pos + n
	if oldEnd == streamEnd && end < oldEnd {
		if t, ok := rws.(interface{ Truncate(int64) error }); ok {
			if err := t.Truncate(end); err != nil {
				return fsys.saveErr(label, fmt.Errorf("truncate: %w", err))
			}
		}
	}
	if _, err := rws.Seek(end, io.SeekStart); err != nil {
		return fmt.Errorf("%w: %w", ErrNotSeekable, err)
	}
	fsys.log().Debug("archive saved to stream", "offset", pos, "size", n, "in_place", inPlace)

	rs := io.ReadSeeker(rws)
	return fsys.bindLocked(finalize, binding{
		src:    readerAtFor(rs),
		offset: pos,
		size:   n,
		id:     streamIdentity(rs, pos),
		stream: rs,
		exact:  true,
	})
}

// writeArchive writes a snapshot of the live tree to w and returns the
// number of bytes written. The live tree is not modified.
func (fsys *FileSystem) writeArchive(ctx context.Context, w io.Writer, buf []byte) (int64, error) {
	snap := fsys.tree.Clone()
	var files []*File
	for f := range snap.Files() {
		files = append(files, f)
	}
	total := len(files)

	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if f.Data == nil {
			data, err := fsys.readStored(f)
			if err != nil {
				return 0, err
			}
			f.Data = data
		}
		fsys.report(ProgressEvent{Stage: StageLoading, Path: f.FullPath(), FilesDone: i + 1, FilesTotal: total})
	}

	var offset int64
	for _, f := range files {
		f.Offset = offset
		offset += int64(len(f.Data))
	}

	cw := &staging.CountingWriter{W: staging.Writer(ctx, w, buf)}
	aw, err := fsys.provider.NewWriter(cw)
	if err != nil {
		return 0, err
	}
	fsys.report(ProgressEvent{Stage: StageWritingIndex, FilesTotal: total})
	if err := aw.WriteIndex(ctx, snap); err != nil {
		return 0, fmt.Errorf("write index: %w", err)
	}
	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if err := aw.WriteFile(ctx, f); err != nil {
			return 0, fmt.Errorf("write %s: %w", f.FullPath(), err)
		}
		fsys.report(ProgressEvent{
			Stage:      StageWritingData,
			Path:       f.FullPath(),
			BytesDone:  uint64(cw.N), //nolint:gosec // byte counts are non-negative
			FilesDone:  i + 1,
			FilesTotal: total,
		})
	}
	if err := aw.Close(); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return cw.N, nil
}

// saveErr classifies a save failure: cancellation is reported as such,
// anything else as ErrWriteFailed.
func (fsys *FileSystem) saveErr(name string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		fsys.log().Debug("save canceled", "path", name)
		return fmt.Errorf("save %s: %w", name, err)
	}
	fsys.log().Debug("save failed", "path", name, "error", err)
	return fmt.Errorf("%w: save %s: %w", ErrWriteFailed, name, err)
}
