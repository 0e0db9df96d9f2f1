package platform

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openRoot(t *testing.T) (*os.Root, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "real.txt"), []byte("data"), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o750))
	root, err := os.OpenRoot(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = root.Close() })
	return root, dir
}

func TestOpenRegular(t *testing.T) {
	t.Parallel()

	root, _ := openRoot(t)
	f, info, err := OpenRegular(root, "real.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(4), info.Size())
	require.NoError(t, f.Close())

	_, _, err = OpenRegular(root, "missing.txt")
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, _, err = OpenRegular(root, "sub")
	assert.ErrorIs(t, err, ErrNotRegular)
}

func TestOpenRegularSymlink(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}

	root, dir := openRoot(t)
	require.NoError(t, os.Symlink("real.txt", filepath.Join(dir, "link.txt")))

	_, _, err := OpenRegular(root, "link.txt")
	assert.ErrorIs(t, err, ErrSymlink)
}
