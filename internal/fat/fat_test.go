package fat

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/packfs"
)

func sampleTree(t *testing.T) *packfs.Tree {
	t.Helper()
	tree := packfs.NewTree()
	mod := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, tree.AddFile("/a/", &packfs.File{
		Name: "one.txt", Size: 13, Offset: 0, ModTime: mod, Checksum: 0xec4ac3d0,
	}))
	require.NoError(t, tree.AddFile("/b/", &packfs.File{
		Name: "two.bin", Size: 10000, CompressedSize: 45, Offset: 13, ModTime: mod, Comment: "zeros",
	}))
	require.NoError(t, tree.AddFile("/", &packfs.File{Name: ".hidden", Size: 1, Offset: 58}))
	_, err := tree.CreatePath("/empty/")
	require.NoError(t, err)
	return tree
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	src := sampleTree(t)
	data, err := Encode(src)
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)

	assert.True(t, got.PathExists("/empty/"))
	var want, have []packfs.File
	for f := range src.Files() {
		want = append(want, fileFields(f))
	}
	for f := range got.Files() {
		have = append(have, fileFields(f))
	}
	assert.Equal(t, want, have)

	one, err := got.GetFile("/a/one.txt")
	require.NoError(t, err)
	assert.Equal(t, "/a/one.txt", one.FullPath())
	assert.True(t, one.ModTime.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))
}

// fileFields strips unexported state so files from different trees compare.
func fileFields(f *packfs.File) packfs.File {
	return packfs.File{
		Name:           f.Name,
		Size:           f.Size,
		CompressedSize: f.CompressedSize,
		Offset:         f.Offset,
		ModTime:        f.ModTime.UTC(),
		Checksum:       f.Checksum,
		Encrypted:      f.Encrypted,
		Comment:        f.Comment,
	}
}

func TestEncodeLayout(t *testing.T) {
	t.Parallel()

	data, err := Encode(sampleTree(t))
	require.NoError(t, err)
	doc := string(data)

	assert.Contains(t, doc, "<Header>GORFS1.0</Header>")
	assert.Contains(t, doc, "<Filename>one</Filename>")
	assert.Contains(t, doc, "<Extension>.txt</Extension>")
	assert.Contains(t, doc, "<Checksum>ec4ac3d0</Checksum>")
	assert.Contains(t, doc, `FullPath="/a/"`)

	// Child paths precede the files of their parent.
	assert.Less(t, strings.Index(doc, `FullPath="/b/"`), strings.Index(doc, "<Extension>.hidden</Extension>"))
}

func TestDecodeHeaderCaseInsensitive(t *testing.T) {
	t.Parallel()

	doc := `<FileSystem><Header>gorfs1.0</Header><Path Name="/" FullPath="/"></Path></FileSystem>`
	tree, err := Decode([]byte(doc))
	require.NoError(t, err)
	assert.Zero(t, tree.FileCount())
}

func TestDecodeHeaderMismatch(t *testing.T) {
	t.Parallel()

	doc := `<FileSystem><Header>OTHERFS</Header></FileSystem>`
	_, err := Decode([]byte(doc))
	require.Error(t, err)
	assert.ErrorIs(t, err, packfs.ErrFormat)

	var herr *packfs.HeaderError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, "OTHERFS", herr.Found)
	assert.Equal(t, Header, herr.Expected)
}

func TestDecodeLegacyTable(t *testing.T) {
	t.Parallel()

	doc := `<?xml version="1.0" encoding="utf-8"?>
<FileSystem>
  <Header>GORFS1.0</Header>
  <Path Name="\" FullPath="\">
    <Path Name="Images" FullPath="\Images\">
      <File>
        <Filename>logo</Filename>
        <Extension>.png</Extension>
        <Offset>0</Offset>
        <Size>2048</Size>
        <CompressedSize>1024</CompressedSize>
        <FileDate>03/04/2009 10:11:12</FileDate>
        <Encrypted>False</Encrypted>
        <Comment />
      </File>
    </Path>
  </Path>
</FileSystem>`
	tree, err := Decode([]byte(doc))
	require.NoError(t, err)

	f, err := tree.GetFile("/images/LOGO.png")
	require.NoError(t, err)
	assert.Equal(t, "/Images/logo.png", f.FullPath())
	assert.Equal(t, int64(2048), f.Size)
	assert.Equal(t, int64(1024), f.CompressedSize)
	assert.False(t, f.Encrypted)
	assert.Zero(t, f.Checksum)
	assert.Equal(t, 2009, f.ModTime.Year())
}

func TestDecodeFilenameWithExtension(t *testing.T) {
	t.Parallel()

	doc := `<FileSystem>
  <Header>GORFS1.0</Header>
  <Path Name="/" FullPath="/">
    <Path Name="sub" FullPath="/sub/">
      <File>
        <Filename>x.png</Filename>
        <Extension>.png</Extension>
        <Offset>1024</Offset>
        <Size>4096</Size>
        <CompressedSize>1800</CompressedSize>
        <FileDate>2026-01-02T03:04:05Z</FileDate>
        <Encrypted>false</Encrypted>
        <Comment>icon</Comment>
      </File>
      <File>
        <Filename>y.PNG</Filename>
        <Extension>.png</Extension>
        <Offset>0</Offset>
        <Size>10</Size>
        <CompressedSize>0</CompressedSize>
      </File>
    </Path>
  </Path>
</FileSystem>`
	tree, err := Decode([]byte(doc))
	require.NoError(t, err)

	f, err := tree.GetFile("/sub/x.png")
	require.NoError(t, err)
	assert.Equal(t, "x.png", f.Name)
	assert.Equal(t, int64(1024), f.Offset)
	assert.Equal(t, "icon", f.Comment)
	assert.True(t, tree.FileExists("/sub/y.png"))
	assert.False(t, tree.FileExists("/sub/x.png.png"))
}

func TestRoundTripRepeatedExtension(t *testing.T) {
	t.Parallel()

	tree := packfs.NewTree()
	for _, name := range []string{"a.txt.txt", "b.TXT.txt", "c.txt", "noext", ".txt"} {
		require.NoError(t, tree.AddFile("/", &packfs.File{Name: name, Size: 1}))
	}
	data, err := Encode(tree)
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)
	var names []string
	for f := range got.Files() {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"a.txt.txt", "b.TXT.txt", "c.txt", "noext", ".txt"}, names)
}

func TestDecodeMalformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  string
	}{
		{"not xml", "garbage"},
		{"bad offset", `<FileSystem><Header>GORFS1.0</Header><Path FullPath="/"><File><Filename>a</Filename><Offset>x</Offset></File></Path></FileSystem>`},
		{"empty filename", `<FileSystem><Header>GORFS1.0</Header><Path FullPath="/"><File><Size>1</Size></File></Path></FileSystem>`},
		{"bad checksum", `<FileSystem><Header>GORFS1.0</Header><Path FullPath="/"><File><Filename>a</Filename><Checksum>zz</Checksum></File></Path></FileSystem>`},
		{"invalid path", `<FileSystem><Header>GORFS1.0</Header><Path FullPath="/../"></Path></FileSystem>`},
		{"duplicate", `<FileSystem><Header>GORFS1.0</Header><Path FullPath="/"><File><Filename>a</Filename></File><File><Filename>A</Filename></File></Path></FileSystem>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Decode([]byte(tt.doc))
			assert.ErrorIs(t, err, packfs.ErrFormat)
		})
	}
}
