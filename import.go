package packfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/meigma/packfs/internal/platform"
	"github.com/meigma/packfs/internal/sizing"
	"github.com/meigma/packfs/internal/staging"
)

// Import encodes every regular file below the directory srcDir into the
// live tree and returns the number of files imported. Existing files with
// the same path are replaced and empty directories are recreated.
// Symbolic links are skipped.
//
// Imported files keep their modification times. They are staged in memory
// until the next save.
func (fsys *FileSystem) Import(ctx context.Context, srcDir string, opts ...ImportOption) (int, error) {
	cfg := importConfig{prefix: Separator}
	for _, opt := range opts {
		opt(&cfg)
	}
	prefix, err := CleanDir(cfg.prefix)
	if err != nil {
		return 0, err
	}

	root, err := os.OpenRoot(srcDir)
	if err != nil {
		return 0, fmt.Errorf("open source %s: %w", srcDir, err)
	}
	defer root.Close()

	buf, release := staging.Acquire()
	defer release()

	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	if _, err := fsys.tree.CreatePath(prefix); err != nil {
		return 0, err
	}

	count := 0
	err = fs.WalkDir(root.FS(), ".", func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == "." {
			return nil
		}
		if cfg.skipHidden && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			_, err := fsys.tree.CreatePath(prefix + p)
			return err
		}
		if !d.Type().IsRegular() {
			fsys.log().Debug("skipped non-regular file", "path", p, "type", d.Type().String())
			return nil
		}
		if cfg.maxFiles > 0 && count >= cfg.maxFiles {
			return ErrTooManyFiles
		}

		data, info, err := fsys.readLoose(root, p)
		if errors.Is(err, platform.ErrSymlink) || errors.Is(err, platform.ErrNotRegular) {
			fsys.log().Debug("skipped", "path", p, "error", err)
			return nil
		}
		if err != nil {
			return fmt.Errorf("import %s: %w", p, err)
		}

		dirPath, name := splitFile(prefix + p)
		dir, err := fsys.tree.CreatePath(dirPath)
		if err != nil {
			return err
		}
		f, err := fsys.encodeLocked(ctx, dir, name, data, buf, true)
		if err != nil {
			return err
		}
		f.ModTime = info.ModTime()
		count++
		fsys.report(ProgressEvent{Stage: StageImporting, Path: f.FullPath(), BytesDone: uint64(len(data)), FilesDone: count})
		return nil
	})
	if err != nil {
		return count, err
	}
	fsys.log().Debug("import complete", "source", srcDir, "files", count)
	return count, nil
}

func (fsys *FileSystem) readLoose(root *os.Root, p string) ([]byte, fs.FileInfo, error) {
	f, info, err := platform.OpenRegular(root, filepath.FromSlash(p))
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	var data []byte
	if fsys.maxFileSize > 0 {
		data, err = sizing.ReadAllWithLimit(f, uint64(fsys.maxFileSize), ErrSizeOverflow)
	} else {
		data, err = io.ReadAll(f)
	}
	if err != nil {
		return nil, nil, err
	}
	return data, info, nil
}
