// Package cache provides storage for decoded archive payloads.
//
// Entries are keyed by a digest of the payload's location: the identity of
// the archive source, the entry path, its absolute offset, and its recorded
// sizes and checksum. A rewritten archive therefore never hits entries
// cached for its previous contents.
package cache

import (
	"fmt"

	"github.com/opencontainers/go-digest"
)

// Cache stores decoded payloads.
//
// Implementations should handle their own size limits and eviction policies.
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get returns cached content for key.
	// Returns nil, false if the content is not cached.
	Get(key digest.Digest) ([]byte, bool)

	// Put stores content under key.
	Put(key digest.Digest, content []byte) error

	// Delete removes cached content for key.
	// Implementations should treat missing entries as a no-op.
	Delete(key digest.Digest) error

	// MaxBytes returns the configured cache size limit (0 = unlimited).
	MaxBytes() int64

	// SizeBytes returns the current cache size in bytes.
	SizeBytes() int64

	// Prune removes cached entries until the cache is at or below targetBytes.
	// Returns the number of bytes freed.
	Prune(targetBytes int64) (int64, error)
}

// Entry identifies one payload inside one archive source.
type Entry struct {
	SourceID string
	Path     string
	Offset   int64
	Stored   int64
	Size     int64
	Checksum uint32
}

// Key returns the cache key for e.
func Key(e Entry) digest.Digest {
	return digest.FromString(fmt.Sprintf("%s\x00%s\x00%d\x00%d\x00%d\x00%08x",
		e.SourceID, e.Path, e.Offset, e.Stored, e.Size, e.Checksum))
}
