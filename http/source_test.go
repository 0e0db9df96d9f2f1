package http_test

import (
	"bytes"
	"context"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/packfs"
	packhttp "github.com/meigma/packfs/http"
	"github.com/meigma/packfs/packed"
	"github.com/meigma/packfs/providers"
)

func serve(t *testing.T, data []byte, etag *atomic.Value) *httptest.Server {
	t.Helper()
	modTime := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if etag != nil {
			w.Header().Set("ETag", etag.Load().(string))
		}
		nethttp.ServeContent(w, r, "archive", modTime, bytes.NewReader(data))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestSourceReadAt(t *testing.T) {
	t.Parallel()

	data := []byte("hello world")
	server := serve(t, data, nil)

	src, err := packhttp.NewSource(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), src.Size())
	assert.Contains(t, src.SourceID(), server.URL)

	buf := make([]byte, 5)
	n, err := src.ReadAt(buf, 6)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "world", string(buf))

	edge := make([]byte, 10)
	n, err = src.ReadAt(edge, int64(len(data)-3))
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, "rld", string(edge[:n]))

	_, err = src.ReadAt(buf, int64(len(data)))
	assert.Equal(t, io.EOF, err)
}

func TestSourceRangeUnsupported(t *testing.T) {
	t.Parallel()

	data := []byte("range unsupported")
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method == nethttp.MethodHead {
			w.Header().Set("Content-Length", strconv.Itoa(len(data)))
			return
		}
		_, _ = w.Write(data)
	}))
	t.Cleanup(server.Close)

	_, err := packhttp.NewSource(context.Background(), server.URL)
	assert.ErrorIs(t, err, packhttp.ErrRangeUnsupported)
}

func TestSourceMountsArchive(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	local, err := packfs.New(packed.NewZstd())
	require.NoError(t, err)
	files := map[string]string{
		"/docs/readme.txt": "remote archive",
		"/data/zeros.bin":  string(make([]byte, 4096)),
	}
	for name, content := range files {
		_, err := local.WriteFile(ctx, name, []byte(content))
		require.NoError(t, err)
	}
	stream := &memFile{}
	require.NoError(t, local.SaveStream(ctx, stream))

	server := serve(t, stream.data, nil)
	src, err := packhttp.NewSource(ctx, server.URL, packhttp.WithHeader("X-Test", "1"))
	require.NoError(t, err)

	fsys, err := providers.Default().OpenSource(ctx, src)
	require.NoError(t, err)
	t.Cleanup(func() { _ = fsys.Close() })
	assert.Equal(t, "zstd", fsys.Provider().Name())

	for name, want := range files {
		got, err := fsys.ReadFile(name)
		require.NoError(t, err)
		assert.Equal(t, want, string(got))
	}
}

func TestSourceDetectsReplacedContent(t *testing.T) {
	t.Parallel()

	var etag atomic.Value
	etag.Store(`"v1"`)
	server := serve(t, []byte("version one content"), &etag)

	src, err := packhttp.NewSource(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "http:"+server.URL+`#"v1"`, src.SourceID())

	etag.Store(`"v2"`)
	_, err = src.ReadAt(make([]byte, 4), 0)
	assert.ErrorIs(t, err, packfs.ErrReadTruncated)
}

// memFile is a minimal io.ReadWriteSeeker for staging an archive.
type memFile struct {
	data []byte
	pos  int64
}

func (m *memFile) Read(p []byte) (int, error) {
	if m.pos >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[m.pos:])
	m.pos += int64(n)
	return n, nil
}

func (m *memFile) Write(p []byte) (int, error) {
	if end := m.pos + int64(len(p)); end > int64(len(m.data)) {
		m.data = append(m.data, make([]byte, end-int64(len(m.data)))...)
	}
	n := copy(m.data[m.pos:], p)
	m.pos += int64(n)
	return n, nil
}

func (m *memFile) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		m.pos = offset
	case io.SeekCurrent:
		m.pos += offset
	case io.SeekEnd:
		m.pos = int64(len(m.data)) + offset
	}
	return m.pos, nil
}
