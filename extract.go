package packfs

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Extract decodes every file of the live tree into the directory destDir
// and returns the number of files written. Directories, including empty
// ones, are recreated.
//
// Each file is written to a temporary file in its destination directory
// and renamed into place, so partially written files are never visible.
// Existing files are skipped unless ExtractWithOverwrite is set.
func (fsys *FileSystem) Extract(ctx context.Context, destDir string, opts ...ExtractOption) (int, error) {
	var cfg extractConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := os.MkdirAll(destDir, 0o750); err != nil {
		return 0, fmt.Errorf("create destination %s: %w", destDir, err)
	}
	root, err := os.OpenRoot(destDir)
	if err != nil {
		return 0, fmt.Errorf("open destination root %s: %w", destDir, err)
	}
	defer root.Close()

	fsys.mu.RLock()
	defer fsys.mu.RUnlock()

	for d := range fsys.tree.Dirs() {
		if d.IsRoot() {
			continue
		}
		rel := filepath.FromSlash(strings.Trim(d.fullPath, Separator))
		if err := root.MkdirAll(rel, 0o750); err != nil {
			return 0, fmt.Errorf("create directory %s: %w", rel, err)
		}
	}

	var files []*File
	for f := range fsys.tree.Files() {
		files = append(files, f)
	}

	count := 0
	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		rel := filepath.FromSlash(strings.TrimPrefix(f.FullPath(), Separator))
		if !cfg.overwrite {
			if _, err := root.Lstat(rel); err == nil {
				fsys.log().Debug("skipped existing file", "path", rel)
				continue
			}
		}
		data, err := fsys.decodeLocked(f)
		if err != nil {
			return count, err
		}
		if err := writeExtracted(root, rel, data, f, cfg.preserveTimes); err != nil {
			return count, err
		}
		count++
		fsys.report(ProgressEvent{
			Stage:      StageExtracting,
			Path:       f.FullPath(),
			BytesDone:  uint64(len(data)),
			BytesTotal: uint64(f.Size), //nolint:gosec // validated non-negative at mount
			FilesDone:  i + 1,
			FilesTotal: len(files),
		})
	}
	return count, nil
}

// writeExtracted writes data to a temp file next to rel and renames it into
// place.
func writeExtracted(root *os.Root, rel string, data []byte, f *File, preserveTimes bool) error {
	tmp, tmpRel, err := createTempFile(root, filepath.Dir(rel), ".packfs-")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()         //nolint:errcheck // best-effort cleanup
		_ = root.Remove(tmpRel) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("write %s: %w", rel, err)
	}
	if err := tmp.Close(); err != nil {
		_ = root.Remove(tmpRel) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("close temp file: %w", err)
	}
	if preserveTimes && !f.ModTime.IsZero() {
		if err := root.Chtimes(tmpRel, f.ModTime, f.ModTime); err != nil {
			_ = root.Remove(tmpRel) //nolint:errcheck // best-effort cleanup
			return fmt.Errorf("chtimes: %w", err)
		}
	}
	if err := root.Rename(tmpRel, rel); err != nil {
		_ = root.Remove(tmpRel) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("rename to %s: %w", rel, err)
	}
	return nil
}

func createTempFile(root *os.Root, dir, prefix string) (*os.File, string, error) {
	const attempts = 10
	for range attempts {
		name, err := randomSuffix()
		if err != nil {
			return nil, "", err
		}
		relPath := filepath.Join(dir, prefix+name)
		f, err := root.OpenFile(relPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			return f, relPath, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", err
		}
	}
	return nil, "", errors.New("create temp file: exhausted retries")
}

func randomSuffix() (string, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
