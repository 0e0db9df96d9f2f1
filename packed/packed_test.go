package packed

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/packfs"
	"github.com/meigma/packfs/codec"
	"github.com/meigma/packfs/internal/wire"
)

func providers() []*Provider {
	return []*Provider{NewBZip2(), NewZstd(), NewLZ4(), NewRaw()}
}

// buildArchive writes a two file archive: a raw text file and a compressed
// run of zeros.
func buildArchive(t *testing.T, p *Provider) []byte {
	t.Helper()
	ctx := context.Background()

	text := []byte("Hello, World!")
	zeros := make([]byte, 10000)
	stored, err := codec.Compress(ctx, p.Codec(), zeros, nil)
	require.NoError(t, err)

	tree := packfs.NewTree()
	one := &packfs.File{Name: "one.txt", Size: int64(len(text)), Data: text}
	two := &packfs.File{Name: "two.bin", Size: int64(len(zeros)), Data: stored}
	if p.Codec().Name() != "none" {
		two.CompressedSize = int64(len(stored))
	}
	require.NoError(t, tree.AddFile("/a/", one))
	require.NoError(t, tree.AddFile("/b/", two))
	one.Offset = 0
	two.Offset = int64(len(text))

	var buf bytes.Buffer
	w, err := p.NewWriter(&buf)
	require.NoError(t, err)
	require.NoError(t, w.WriteIndex(ctx, tree))
	for f := range tree.Files() {
		require.NoError(t, w.WriteFile(ctx, f))
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestReadIndexRoundTrip(t *testing.T) {
	t.Parallel()

	for _, p := range providers() {
		t.Run(p.Name(), func(t *testing.T) {
			t.Parallel()
			data := buildArchive(t, p)

			idx, err := p.ReadIndex(bytes.NewReader(data), int64(len(data)))
			require.NoError(t, err)
			assert.Equal(t, 2, idx.Tree.FileCount())

			one, err := idx.Tree.GetFile("/A/ONE.TXT")
			require.NoError(t, err)
			two, err := idx.Tree.GetFile("/b/two.bin")
			require.NoError(t, err)

			origin := idx.DataOrigin
			assert.Equal(t, "Hello, World!", string(data[origin+one.Offset:origin+one.Offset+one.Size]))

			stored := data[origin+two.Offset : origin+two.Offset+two.StoredSize()]
			assert.Equal(t, int64(len(data)), origin+two.Offset+two.StoredSize())
			raw, err := codec.Decompress(p.Codec(), stored, two.Size)
			require.NoError(t, err)
			assert.Equal(t, make([]byte, 10000), raw)
		})
	}
}

func TestHeaderLayout(t *testing.T) {
	t.Parallel()

	p := NewBZip2()
	data := buildArchive(t, p)
	r := bytes.NewReader(data)

	hdr, err := wire.ReadString(r, wire.MaxHeaderLen)
	require.NoError(t, err)
	assert.Equal(t, IDBZip2, hdr)

	n, err := wire.ReadInt32(r)
	require.NoError(t, err)
	assert.Positive(t, n)
	assert.Less(t, int(n), r.Len())
}

func TestProbe(t *testing.T) {
	t.Parallel()

	data := buildArchive(t, NewZstd())

	ok, err := NewZstd().Probe(bytes.NewReader(data))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = NewBZip2().Probe(bytes.NewReader(data))
	require.NoError(t, err)
	assert.False(t, ok)

	var lower bytes.Buffer
	require.NoError(t, wire.WriteString(&lower, "gorpack1.zstd"))
	ok, err = NewZstd().Probe(&lower)
	require.NoError(t, err)
	assert.True(t, ok, "header comparison ignores case")

	ok, err = NewZstd().Probe(bytes.NewReader(nil))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProbeRestoresPosition(t *testing.T) {
	t.Parallel()

	data := append([]byte("prefix"), buildArchive(t, NewRaw())...)
	r := bytes.NewReader(data)
	_, err := r.Seek(6, 0)
	require.NoError(t, err)

	ok, err := packfs.IsValidForProvider(NewRaw(), r)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(len(data)-6), int64(r.Len()))
}

func TestReadIndexHeaderMismatch(t *testing.T) {
	t.Parallel()

	data := buildArchive(t, NewLZ4())
	_, err := NewBZip2().ReadIndex(bytes.NewReader(data), int64(len(data)))
	require.ErrorIs(t, err, packfs.ErrFormat)

	var herr *packfs.HeaderError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, IDLZ4, herr.Found)
	assert.Equal(t, IDBZip2, herr.Expected)
}

func TestReadIndexTruncated(t *testing.T) {
	t.Parallel()

	p := NewRaw()
	data := buildArchive(t, p)
	hdrLen := wire.StringSize(IDRaw)

	t.Run("table cut short", func(t *testing.T) {
		t.Parallel()
		short := data[:hdrLen+4+10]
		_, err := p.ReadIndex(bytes.NewReader(short), int64(len(short)))
		assert.ErrorIs(t, err, packfs.ErrReadTruncated)
	})

	t.Run("negative length", func(t *testing.T) {
		t.Parallel()
		bad := bytes.Clone(data)
		binary.LittleEndian.PutUint32(bad[hdrLen:], 0xffffffff)
		_, err := p.ReadIndex(bytes.NewReader(bad), int64(len(bad)))
		assert.ErrorIs(t, err, packfs.ErrReadTruncated)
	})

	t.Run("no length", func(t *testing.T) {
		t.Parallel()
		short := data[:hdrLen+2]
		_, err := p.ReadIndex(bytes.NewReader(short), int64(len(short)))
		assert.ErrorIs(t, err, packfs.ErrFormat)
	})
}

func TestReadIndexMaxIndexSize(t *testing.T) {
	t.Parallel()

	data := buildArchive(t, NewZstd())
	_, err := NewZstd(WithMaxIndexSize(16)).ReadIndex(bytes.NewReader(data), int64(len(data)))
	assert.ErrorIs(t, err, packfs.ErrFormat)
}

func TestWriteFileSizeMismatch(t *testing.T) {
	t.Parallel()

	w, err := NewRaw().NewWriter(&bytes.Buffer{})
	require.NoError(t, err)
	f := &packfs.File{Name: "x", Size: 4, Data: []byte("ab")}
	assert.Error(t, w.WriteFile(context.Background(), f))
}
