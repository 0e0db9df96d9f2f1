package zipfs_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/packfs"
	"github.com/meigma/packfs/zipfs"
)

// foreignZip builds an archive with the zip package directly, the way an
// external tool would.
func foreignZip(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	w, err := zw.Create("docs/readme.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte(strings.Repeat("packed file systems ", 50)))
	require.NoError(t, err)

	w, err = zw.CreateHeader(&zip.FileHeader{Name: "raw.bin", Method: zip.Store})
	require.NoError(t, err)
	_, err = w.Write([]byte{1, 2, 3, 4})
	require.NoError(t, err)

	_, err = zw.Create("empty/")
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestReadForeignArchive(t *testing.T) {
	t.Parallel()

	data := foreignZip(t)
	p := zipfs.NewDefault()

	ok, err := p.Probe(bytes.NewReader(data))
	require.NoError(t, err)
	assert.True(t, ok)

	fsys, err := packfs.New(p)
	require.NoError(t, err)
	require.NoError(t, fsys.AssignRootSource(context.Background(), bytesSource(data)))

	readme, err := fsys.GetFile("/docs/readme.txt")
	require.NoError(t, err)
	assert.True(t, readme.IsCompressed())
	assert.NotZero(t, readme.Checksum)

	got, err := fsys.ReadFile("/docs/readme.txt")
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("packed file systems ", 50), string(got))

	raw, err := fsys.ReadFile("/raw.bin")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, raw)

	assert.True(t, fsys.PathExists("/empty/"))
}

func TestSaveRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fsys, err := packfs.New(zipfs.NewDefault())
	require.NoError(t, err)

	text := strings.Repeat("abcdefgh", 200)
	_, err = fsys.WriteFile(ctx, "/a/text.txt", []byte(text))
	require.NoError(t, err)
	_, err = fsys.WriteFile(ctx, "/b/tiny.txt", []byte("hi"))
	require.NoError(t, err)
	_, err = fsys.CreatePath("/c/d/")
	require.NoError(t, err)

	name := filepath.Join(t.TempDir(), "out")
	require.NoError(t, fsys.Save(ctx, name))
	assert.Equal(t, name+".zip", fsys.ArchivePath())

	// The result is an ordinary ZIP file.
	zr, err := zip.OpenReader(name + ".zip")
	require.NoError(t, err)
	defer zr.Close()
	names := make(map[string]uint16)
	for _, f := range zr.File {
		names[f.Name] = f.Method
	}
	assert.Equal(t, zip.Deflate, names["a/text.txt"])
	assert.Equal(t, zip.Store, names["b/tiny.txt"])
	assert.Contains(t, names, "c/d/")

	rc, err := zr.Open("a/text.txt")
	require.NoError(t, err)
	var out bytes.Buffer
	_, err = out.ReadFrom(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, text, out.String())

	// The remounted file system reads back the same content.
	got, err := fsys.ReadFile("/a/text.txt")
	require.NoError(t, err)
	assert.Equal(t, text, string(got))
	assert.True(t, fsys.PathExists("/c/d/"))
}

func TestProbeEmptyArchive(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, zip.NewWriter(&buf).Close())

	ok, err := zipfs.NewDefault().Probe(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.True(t, ok)

	idx, err := zipfs.NewDefault().ReadIndex(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	assert.Zero(t, idx.Tree.FileCount())
}

func TestProbeRejectsOtherData(t *testing.T) {
	t.Parallel()

	for _, data := range [][]byte{nil, []byte("PK"), []byte("GORPACK1")} {
		ok, err := zipfs.NewDefault().Probe(bytes.NewReader(data))
		require.NoError(t, err)
		assert.False(t, ok)
	}
}

func TestReadIndexNotZip(t *testing.T) {
	t.Parallel()

	data := []byte("this is not a zip archive at all")
	_, err := zipfs.NewDefault().ReadIndex(bytes.NewReader(data), int64(len(data)))
	assert.ErrorIs(t, err, packfs.ErrFormat)
}

func TestAssignRootFile(t *testing.T) {
	t.Parallel()

	name := filepath.Join(t.TempDir(), "foreign.zip")
	require.NoError(t, os.WriteFile(name, foreignZip(t), 0o600))

	fsys, err := packfs.New(zipfs.NewDefault())
	require.NoError(t, err)
	require.NoError(t, fsys.AssignRoot(context.Background(), name))
	t.Cleanup(func() { _ = fsys.Close() })

	files, err := fsys.FindFiles("/", "*.TXT", true)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "/docs/readme.txt", files[0].FullPath())
}

type byteSource []byte

func bytesSource(b []byte) byteSource { return byteSource(b) }

func (b byteSource) ReadAt(p []byte, off int64) (int, error) {
	return bytes.NewReader(b).ReadAt(p, off)
}

func (b byteSource) Size() int64      { return int64(len(b)) }
func (b byteSource) SourceID() string { return "" }
