package platform

import (
	"fmt"

	"github.com/crosscast-io/crosscast/pkg/models"
)

// Registry maps each supported platform to its publisher. Built once at
// server startup and injected wherever publishing happens.
type Registry struct {
	publishers map[models.Platform]models.Publisher
}

// NewRegistry builds a registry from the given publishers. Duplicate
// platforms are a wiring bug and rejected.
func NewRegistry(publishers ...models.Publisher) (*Registry, error) {
	r := &Registry{publishers: make(map[models.Platform]models.Publisher, len(publishers))}
	for _, p := range publishers {
		if _, dup := r.publishers[p.Platform()]; dup {
			return nil, fmt.Errorf("duplicate publisher for platform %q", p.Platform())
		}
		r.publishers[p.Platform()] = p
	}
	return r, nil
}

// Get returns the publisher for a platform.
func (r *Registry) Get(p models.Platform) (models.Publisher, error) {
	pub, ok := r.publishers[p]
	if !ok {
		return nil, fmt.Errorf("no publisher registered for platform %q", p)
	}
	return pub, nil
}

// Platforms lists the registered platforms.
func (r *Registry) Platforms() []models.Platform {
	out := make([]models.Platform, 0, len(r.publishers))
	for _, p := range models.AllPlatforms {
		if _, ok := r.publishers[p]; ok {
			out = append(out, p)
		}
	}
	return out
}
