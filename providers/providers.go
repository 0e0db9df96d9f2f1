// Package providers assembles the built-in archive providers.
package providers

import (
	"github.com/meigma/packfs"
	"github.com/meigma/packfs/packed"
	"github.com/meigma/packfs/zipfs"
)

// All returns a new instance of every built-in provider. The bzip2 packed
// provider comes first; it is the default format for new archives.
func All() []packfs.Provider {
	return []packfs.Provider{
		packed.NewBZip2(),
		packed.NewZstd(),
		packed.NewLZ4(),
		packed.NewRaw(),
		zipfs.NewDefault(),
	}
}

// Default returns a registry holding every built-in provider.
func Default() *packfs.Registry {
	r := packfs.NewRegistry()
	r.MustRegister(All()...)
	return r
}
