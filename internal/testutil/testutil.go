// Package testutil provides in-memory streams, sources, and caches for
// tests.
package testutil

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/opencontainers/go-digest"
)

// MemStream is an in-memory io.ReadWriteSeeker. Unlike bytes.Reader it does
// not implement io.ReaderAt, so code under test must seek to read.
type MemStream struct {
	data []byte
	pos  int64
}

// NewMemStream returns a stream holding a copy of data, positioned at 0.
func NewMemStream(data []byte) *MemStream {
	return &MemStream{data: append([]byte(nil), data...)}
}

// Bytes returns the stream contents.
func (m *MemStream) Bytes() []byte { return m.data }

// Read implements io.Reader.
func (m *MemStream) Read(p []byte) (int, error) {
	if m.pos >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[m.pos:])
	m.pos += int64(n)
	return n, nil
}

// Write implements io.Writer, growing the stream as needed.
func (m *MemStream) Write(p []byte) (int, error) {
	end := m.pos + int64(len(p))
	if end > int64(len(m.data)) {
		grown := make([]byte, end)
		copy(grown, m.data)
		m.data = grown
	}
	copy(m.data[m.pos:], p)
	m.pos = end
	return len(p), nil
}

// Truncate cuts or zero-extends the stream to size bytes. The position is
// not changed.
func (m *MemStream) Truncate(size int64) error {
	if size < 0 {
		return errors.New("testutil: negative size")
	}
	if size <= int64(len(m.data)) {
		m.data = m.data[:size]
		return nil
	}
	m.data = append(m.data, make([]byte, size-int64(len(m.data)))...)
	return nil
}

// Seek implements io.Seeker.
func (m *MemStream) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = m.pos + offset
	case io.SeekEnd:
		abs = int64(len(m.data)) + offset
	default:
		return 0, errors.New("testutil: invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("testutil: negative position")
	}
	m.pos = abs
	return abs, nil
}

// MockSource is an in-memory archive source that counts reads.
type MockSource struct {
	data  []byte
	id    string
	reads atomic.Int64
}

// NewMockSource returns a source backed by data with the given identity.
func NewMockSource(data []byte, id string) *MockSource {
	return &MockSource{data: data, id: id}
}

// ReadAt implements io.ReaderAt semantics over the backing slice.
func (m *MockSource) ReadAt(p []byte, off int64) (int, error) {
	m.reads.Add(1)
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Size returns the total size of the backing data.
func (m *MockSource) Size() int64 { return int64(len(m.data)) }

// SourceID returns the configured identity.
func (m *MockSource) SourceID() string { return m.id }

// Reads returns the number of ReadAt calls so far.
func (m *MockSource) Reads() int64 { return m.reads.Load() }

// Bytes returns the backing slice for tests that need to mutate data.
func (m *MockSource) Bytes() []byte { return m.data }

// MockCache is a concurrency-safe in-memory cache.
type MockCache struct {
	mu   sync.RWMutex
	data map[digest.Digest][]byte
}

// NewMockCache constructs an empty in-memory cache.
func NewMockCache() *MockCache {
	return &MockCache{data: make(map[digest.Digest][]byte)}
}

// Get returns a copy of the cached content for key.
func (c *MockCache) Get(key digest.Digest) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.data[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), v...), true
}

// Put stores a copy of content under key.
func (c *MockCache) Put(key digest.Digest, content []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = append([]byte(nil), content...)
	return nil
}

// Delete removes key.
func (c *MockCache) Delete(key digest.Digest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

// Set overwrites the content for key, for tests that corrupt entries.
func (c *MockCache) Set(key digest.Digest, content []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = content
}

// Keys returns the cached keys.
func (c *MockCache) Keys() []digest.Digest {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]digest.Digest, 0, len(c.data))
	for k := range c.data {
		keys = append(keys, k)
	}
	return keys
}

// MaxBytes returns 0; the mock cache is unbounded.
func (c *MockCache) MaxBytes() int64 { return 0 }

// SizeBytes returns the total size of cached content.
func (c *MockCache) SizeBytes() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var n int64
	for _, v := range c.data {
		n += int64(len(v))
	}
	return n
}

// Prune drops every entry when the cache exceeds targetBytes.
func (c *MockCache) Prune(targetBytes int64) (int64, error) {
	size := c.SizeBytes()
	if size <= targetBytes {
		return 0, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.data)
	return size, nil
}
