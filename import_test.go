package packfs_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/packfs"
	"github.com/meigma/packfs/packed"
)

// writeTree creates files below dir. Names ending in "/" are directories.
func writeTree(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if name[len(name)-1] == '/' {
			require.NoError(t, os.MkdirAll(p, 0o750))
			continue
		}
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	}
}

func TestImport(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"readme.md":         "# readme",
		"docs/guide.txt":    "guide",
		"docs/deep/a.txt":   "deep",
		"empty/":            "",
		".git/config":       "hidden",
		"docs/.secret.txt":  "hidden file",
		"assets/zeros.bin":  string(make([]byte, 5000)),
		"assets/small.json": "{}",
	})
	mod := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	require.NoError(t, os.Chtimes(filepath.Join(src, "readme.md"), mod, mod))
	if runtime.GOOS != "windows" {
		require.NoError(t, os.Symlink(filepath.Join(src, "readme.md"), filepath.Join(src, "link.md")))
	}

	fsys := newFS(t, packed.NewBZip2())
	n, err := fsys.Import(context.Background(), src, packfs.ImportWithSkipHidden(true))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	assert.True(t, fsys.PathExists("/empty/"))
	assert.False(t, fsys.PathExists("/.git/"))
	assert.False(t, fsys.FileExists("/docs/.secret.txt"))
	assert.False(t, fsys.FileExists("/link.md"))

	readme, err := fsys.GetFile("/readme.md")
	require.NoError(t, err)
	assert.True(t, readme.ModTime.Equal(mod))

	zeros, err := fsys.GetFile("/assets/zeros.bin")
	require.NoError(t, err)
	assert.True(t, zeros.IsCompressed())

	got, err := fsys.ReadFile("/docs/deep/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "deep", string(got))
}

func TestImportPrefixAndHidden(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"a.txt":       "a",
		".hidden.txt": "h",
	})

	fsys := newFS(t, packed.NewBZip2())
	n, err := fsys.Import(context.Background(), src, packfs.ImportWithPrefix("/vendor/lib"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, fsys.FileExists("/vendor/lib/a.txt"))
	assert.True(t, fsys.FileExists("/vendor/lib/.hidden.txt"))
}

func TestImportMaxFiles(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	writeTree(t, src, map[string]string{"1.txt": "1", "2.txt": "2", "3.txt": "3"})

	fsys := newFS(t, packed.NewBZip2())
	_, err := fsys.Import(context.Background(), src, packfs.ImportWithMaxFiles(2))
	assert.ErrorIs(t, err, packfs.ErrTooManyFiles)
}

func TestImportCanceled(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	writeTree(t, src, map[string]string{"1.txt": "1"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fsys := newFS(t, packed.NewBZip2())
	_, err := fsys.Import(ctx, src)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExtract(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fsys := newFS(t, packed.NewZstd())
	writeFiles(t, fsys, sample)
	_, err := fsys.CreatePath("/empty/")
	require.NoError(t, err)
	saveTemp(t, fsys)

	mod := time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC)
	f, err := fsys.GetFile("/a/one.txt")
	require.NoError(t, err)
	f.ModTime = mod

	dest := filepath.Join(t.TempDir(), "out")
	n, err := fsys.Extract(ctx, dest, packfs.ExtractWithPreserveTimes(true))
	require.NoError(t, err)
	assert.Equal(t, len(sample), n)

	for name, want := range sample {
		got, err := os.ReadFile(filepath.Join(dest, filepath.FromSlash(name)))
		require.NoError(t, err)
		assert.Equal(t, want, got, name)
	}
	assert.DirExists(t, filepath.Join(dest, "empty"))

	info, err := os.Stat(filepath.Join(dest, "a", "one.txt"))
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(mod))

	// Existing files are kept unless overwriting.
	require.NoError(t, os.WriteFile(filepath.Join(dest, "top-level.txt"), []byte("local edit"), 0o600))
	n, err = fsys.Extract(ctx, dest)
	require.NoError(t, err)
	assert.Zero(t, n)
	got, err := os.ReadFile(filepath.Join(dest, "top-level.txt"))
	require.NoError(t, err)
	assert.Equal(t, "local edit", string(got))

	n, err = fsys.Extract(ctx, dest, packfs.ExtractWithOverwrite(true))
	require.NoError(t, err)
	assert.Equal(t, len(sample), n)
	got, err = os.ReadFile(filepath.Join(dest, "top-level.txt"))
	require.NoError(t, err)
	assert.Equal(t, "at the root", string(got))
}

func TestImportExtractRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	src := t.TempDir()
	files := map[string]string{
		"x/y/z.txt": "nested",
		"top.txt":   "top",
	}
	writeTree(t, src, files)

	fsys := newFS(t, packed.NewLZ4())
	_, err := fsys.Import(ctx, src)
	require.NoError(t, err)
	path := saveTemp(t, fsys)

	other := newFS(t, packed.NewLZ4())
	require.NoError(t, other.AssignRoot(ctx, path))
	dest := t.TempDir()
	_, err = other.Extract(ctx, dest)
	require.NoError(t, err)

	for name, want := range files {
		got, err := os.ReadFile(filepath.Join(dest, filepath.FromSlash(name)))
		require.NoError(t, err)
		assert.Equal(t, want, string(got))
	}
}
