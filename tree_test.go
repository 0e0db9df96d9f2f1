package packfs

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fullPaths(t *Tree) []string {
	var out []string
	for f := range t.Files() {
		out = append(out, f.FullPath())
	}
	return out
}

func TestTreeCreatePathIdempotent(t *testing.T) {
	t.Parallel()

	tree := NewTree()
	a, err := tree.CreatePath("/a/b/c")
	require.NoError(t, err)
	assert.Equal(t, "/a/b/c/", a.FullPath())
	assert.Equal(t, "c", a.Name())

	again, err := tree.CreatePath(`A\B\C\`)
	require.NoError(t, err)
	assert.Same(t, a, again)

	root, err := tree.CreatePath("/")
	require.NoError(t, err)
	assert.Same(t, tree.Root(), root)
	assert.True(t, root.IsRoot())
}

func TestTreeCaseInsensitiveLookup(t *testing.T) {
	t.Parallel()

	tree := NewTree()
	require.NoError(t, tree.AddFile("/Docs/", &File{Name: "ReadMe.TXT", Size: 3}))

	f, err := tree.GetFile("/docs/readme.txt")
	require.NoError(t, err)
	assert.Equal(t, "/Docs/ReadMe.TXT", f.FullPath())
	assert.Equal(t, ".TXT", f.Ext())

	assert.True(t, tree.PathExists("DOCS"))
	assert.True(t, tree.FileExists(`\DOCS\README.txt`))
	assert.False(t, tree.FileExists("/docs/other.txt"))
}

func TestTreeDuplicateNames(t *testing.T) {
	t.Parallel()

	tree := NewTree()
	require.NoError(t, tree.AddFile("/", &File{Name: "one.txt"}))
	err := tree.AddFile("/", &File{Name: "ONE.txt"})
	assert.ErrorIs(t, err, ErrExist)

	_, err = tree.CreatePath("/one.txt")
	assert.ErrorIs(t, err, ErrExist)

	_, err = tree.CreatePath("/dir")
	require.NoError(t, err)
	assert.ErrorIs(t, tree.AddFile("/", &File{Name: "dir"}), ErrExist)
}

func TestTreeGetMissing(t *testing.T) {
	t.Parallel()

	tree := NewTree()
	_, err := tree.GetPath("/nope/")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = tree.GetFile("/nope/file.txt")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = tree.GetFile("/nope/")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestTreeTraversalOrder(t *testing.T) {
	t.Parallel()

	tree := NewTree()
	require.NoError(t, tree.AddFile("/", &File{Name: "root.txt"}))
	require.NoError(t, tree.AddFile("/b/", &File{Name: "two.bin"}))
	require.NoError(t, tree.AddFile("/a/", &File{Name: "one.txt"}))
	require.NoError(t, tree.AddFile("/b/c/", &File{Name: "deep.txt"}))

	want := []string{"/b/c/deep.txt", "/b/two.bin", "/a/one.txt", "/root.txt"}
	assert.Equal(t, want, fullPaths(tree))
	assert.Equal(t, 4, tree.FileCount())

	var dirs []string
	for d := range tree.Dirs() {
		dirs = append(dirs, d.FullPath())
	}
	assert.Equal(t, []string{"/", "/b/", "/b/c/", "/a/"}, dirs)
}

func TestTreeRemove(t *testing.T) {
	t.Parallel()

	tree := NewTree()
	require.NoError(t, tree.AddFile("/a/", &File{Name: "one.txt"}))
	require.NoError(t, tree.AddFile("/a/b/", &File{Name: "two.txt"}))
	require.NoError(t, tree.AddFile("/", &File{Name: "three.txt"}))

	require.NoError(t, tree.RemoveFile("/A/ONE.TXT"))
	assert.False(t, tree.FileExists("/a/one.txt"))
	assert.ErrorIs(t, tree.RemoveFile("/a/one.txt"), ErrNotFound)

	require.NoError(t, tree.RemovePath("/a/"))
	assert.False(t, tree.PathExists("/a/b/"))
	assert.Equal(t, []string{"/three.txt"}, fullPaths(tree))

	require.NoError(t, tree.RemovePath("/"))
	assert.Zero(t, tree.FileCount())
	assert.Empty(t, tree.Root().Dirs())
}

func TestTreeClone(t *testing.T) {
	t.Parallel()

	tree := NewTree()
	data := []byte("payload")
	require.NoError(t, tree.AddFile("/a/", &File{Name: "one.txt", Size: 7, Data: data}))

	clone := tree.Clone()
	f, err := clone.GetFile("/a/one.txt")
	require.NoError(t, err)
	assert.Equal(t, "/a/one.txt", f.FullPath())
	f.Offset = 99

	orig, err := tree.GetFile("/a/one.txt")
	require.NoError(t, err)
	assert.Zero(t, orig.Offset)
	assert.NotSame(t, orig, f)
	assert.Equal(t, orig.Data, f.Data)
	assert.True(t, slices.Equal(fullPaths(tree), fullPaths(clone)))
}

func TestFileSizes(t *testing.T) {
	t.Parallel()

	raw := &File{Name: "raw", Size: 10}
	assert.False(t, raw.IsCompressed())
	assert.Equal(t, int64(10), raw.StoredSize())

	packed := &File{Name: "packed", Size: 10000, CompressedSize: 40}
	assert.True(t, packed.IsCompressed())
	assert.Equal(t, int64(40), packed.StoredSize())
	assert.Equal(t, "/packed", packed.FullPath())
	assert.False(t, packed.Loaded())
}
