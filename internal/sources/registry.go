package sources

import (
	"sync"

	"github.com/helixir/scholarsearch/internal/domain"
)

// Registry manages source adapters. It provides thread-safe registration and
// lookup; concurrent fan-out is the aggregator's responsibility.
type Registry struct {
	mu      sync.RWMutex
	sources map[domain.SourceType]Source
}

// NewRegistry creates an empty source registry.
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[domain.SourceType]Source),
	}
}

// Register adds a source to the registry, replacing any existing source of
// the same type.
func (r *Registry) Register(source Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[source.SourceType()] = source
}

// Get returns a source by type, or nil if not registered.
func (r *Registry) Get(sourceType domain.SourceType) Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sources[sourceType]
}

// All returns a snapshot of all registered sources.
func (r *Registry) All() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sources := make([]Source, 0, len(r.sources))
	for _, source := range r.sources {
		sources = append(sources, source)
	}
	return sources
}

// Enabled returns a snapshot of sources whose Enabled() method reports true.
func (r *Registry) Enabled() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sources := make([]Source, 0, len(r.sources))
	for _, source := range r.sources {
		if source.Enabled() {
			sources = append(sources, source)
		}
	}
	return sources
}

// Resolve maps requested source types to registered, enabled sources. An
// empty request resolves to all enabled sources. Unknown or disabled types
// are skipped; the query validator has already rejected unknown names.
func (r *Registry) Resolve(requested []domain.SourceType) []Source {
	if len(requested) == 0 {
		return r.Enabled()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	sources := make([]Source, 0, len(requested))
	for _, st := range requested {
		if source, ok := r.sources[st]; ok && source.Enabled() {
			sources = append(sources, source)
		}
	}
	return sources
}
