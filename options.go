package packfs

import (
	"log/slog"

	"github.com/meigma/packfs/cache"
)

// Default limits.
const (
	// DefaultMinSavings is the number of bytes compression must save before
	// a payload is stored compressed.
	DefaultMinSavings = 64

	// DefaultMaxFileSize bounds the decoded size of a single file.
	DefaultMaxFileSize = 1 << 30
)

// Option configures a FileSystem.
type Option func(*FileSystem)

// WithLogger sets the logger for debug output. A nil logger discards output.
func WithLogger(logger *slog.Logger) Option {
	return func(fsys *FileSystem) {
		fsys.logger = logger
	}
}

// WithProgress sets a callback that receives progress updates.
func WithProgress(fn ProgressFunc) Option {
	return func(fsys *FileSystem) {
		fsys.progress = fn
	}
}

// WithMinSavings sets how many bytes compression must save before a payload
// is stored compressed. Negative values are treated as 0.
func WithMinSavings(n int) Option {
	return func(fsys *FileSystem) {
		if n < 0 {
			n = 0
		}
		fsys.minSavings = n
	}
}

// WithMaxFileSize limits the decoded size of a single file. Archives whose
// index records a larger file fail to mount. Set limit to 0 to disable the
// limit.
func WithMaxFileSize(limit int64) Option {
	return func(fsys *FileSystem) {
		fsys.maxFileSize = limit
	}
}

// WithCache enables caching of decoded payloads.
//
// Cached content is keyed by the archive source and entry location, so it
// is only consulted for archives whose source reports a stable identity.
func WithCache(c cache.Cache) Option {
	return func(fsys *FileSystem) {
		fsys.cache = c
	}
}

// ImportOption configures Import.
type ImportOption func(*importConfig)

type importConfig struct {
	prefix     string
	skipHidden bool
	maxFiles   int
}

// ImportWithPrefix imports files below the given directory of the tree
// instead of the root.
func ImportWithPrefix(dir string) ImportOption {
	return func(c *importConfig) {
		c.prefix = dir
	}
}

// ImportWithSkipHidden skips files and directories whose names begin with a
// dot.
func ImportWithSkipHidden(skip bool) ImportOption {
	return func(c *importConfig) {
		c.skipHidden = skip
	}
}

// ImportWithMaxFiles limits the number of files imported. Exceeding the
// limit fails with ErrTooManyFiles. Use 0 for no limit.
func ImportWithMaxFiles(n int) ImportOption {
	return func(c *importConfig) {
		c.maxFiles = n
	}
}

// ExtractOption configures Extract.
type ExtractOption func(*extractConfig)

type extractConfig struct {
	overwrite     bool
	preserveTimes bool
}

// ExtractWithOverwrite allows overwriting existing files.
// By default, existing files are skipped.
func ExtractWithOverwrite(overwrite bool) ExtractOption {
	return func(c *extractConfig) {
		c.overwrite = overwrite
	}
}

// ExtractWithPreserveTimes sets extracted file modification times from the
// archive. By default, files use the current time.
func ExtractWithPreserveTimes(preserve bool) ExtractOption {
	return func(c *extractConfig) {
		c.preserveTimes = preserve
	}
}
