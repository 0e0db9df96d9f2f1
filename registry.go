package packfs

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// Registry holds the providers available for detecting and opening
// archives, keyed by their magic header. Lookups ignore case.
//
// A Registry is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	providers []Provider
	byKey     map[string]Provider
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byKey: make(map[string]Provider)}
}

// Register adds p. It fails with ErrDuplicateProvider if a provider with
// the same ID or name is already registered.
func (r *Registry) Register(p Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, name := strings.ToLower(p.ID()), strings.ToLower(p.Name())
	if _, ok := r.byKey[id]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateProvider, p.ID())
	}
	if _, ok := r.byKey[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateProvider, p.Name())
	}
	r.byKey[id] = p
	r.byKey[name] = p
	r.providers = append(r.providers, p)
	return nil
}

// MustRegister registers every provider and panics on error.
func (r *Registry) MustRegister(ps ...Provider) {
	for _, p := range ps {
		if err := r.Register(p); err != nil {
			panic(err)
		}
	}
}

// Lookup returns the provider whose ID or name matches key.
func (r *Registry) Lookup(key string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byKey[strings.ToLower(key)]
	return p, ok
}

// Providers returns the registered providers in registration order.
func (r *Registry) Providers() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Provider, len(r.providers))
	copy(out, r.providers)
	return out
}

// Detect returns the first provider that recognizes the archive at the
// current position of rs. The position of rs is restored.
func (r *Registry) Detect(rs io.ReadSeeker) (Provider, error) {
	for _, p := range r.Providers() {
		ok, err := IsValidForProvider(p, rs)
		if err != nil {
			return nil, err
		}
		if ok {
			return p, nil
		}
	}
	return nil, ErrNoProvider
}

// Open detects the provider of the archive file at name, then returns a
// FileSystem bound to it.
func (r *Registry) Open(ctx context.Context, name string, opts ...Option) (*FileSystem, error) {
	f, err := os.Open(name) //nolint:gosec // caller-selected archive path
	if err != nil {
		return nil, err
	}
	p, err := r.Detect(f)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	fsys, err := New(p, opts...)
	if err != nil {
		return nil, err
	}
	if err := fsys.AssignRoot(ctx, name); err != nil {
		return nil, err
	}
	return fsys, nil
}

// OpenStream detects the provider of the archive embedded in rs at its
// current position, then returns a FileSystem bound to it.
func (r *Registry) OpenStream(ctx context.Context, rs io.ReadSeeker, opts ...Option) (*FileSystem, error) {
	p, err := r.Detect(rs)
	if err != nil {
		return nil, err
	}
	fsys, err := New(p, opts...)
	if err != nil {
		return nil, err
	}
	if err := fsys.AssignRootStream(ctx, rs); err != nil {
		return nil, err
	}
	return fsys, nil
}

// OpenSource detects the provider of the archive read through src, then
// returns a FileSystem bound to it.
func (r *Registry) OpenSource(ctx context.Context, src Source, opts ...Option) (*FileSystem, error) {
	p, err := r.Detect(io.NewSectionReader(src, 0, src.Size()))
	if err != nil {
		return nil, err
	}
	fsys, err := New(p, opts...)
	if err != nil {
		return nil, err
	}
	if err := fsys.AssignRootSource(ctx, src); err != nil {
		return nil, err
	}
	return fsys, nil
}
