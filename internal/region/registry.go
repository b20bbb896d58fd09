package region

import (
	"fmt"
	"sync"
)

// Registry hands out one Region per key for the life of the process, the way
// a named shared segment is attached to by key.
type Registry struct {
	mu      sync.Mutex
	regions map[uint32]*Region
	opts    []Option
}

// NewRegistry returns an empty registry; opts apply to every region it creates.
func NewRegistry(opts ...Option) *Registry {
	return &Registry{
		regions: make(map[uint32]*Region),
		opts:    opts,
	}
}

// Attach returns the region for key, creating it zeroed on first use.
// Attaching with a different size than the existing region fails.
func (g *Registry) Attach(key uint32, size int) (*Region, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if r, ok := g.regions[key]; ok {
		if r.Size() != size {
			return nil, fmt.Errorf("%w: key %#08x has %d bytes, want %d", ErrSizeMismatch, key, r.Size(), size)
		}
		return r, nil
	}
	r, err := New(key, size, g.opts...)
	if err != nil {
		return nil, err
	}
	g.regions[key] = r
	return r, nil
}
