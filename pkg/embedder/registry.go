package embedder

import (
	"context"
	"fmt"
	"sync"
)

// Registry caches Embedder instances per (tenant, embedder name). Get does
// not compare a cached instance against the config passed in; entries are
// dropped only by Invalidate or InvalidateOne.
type Registry struct {
	mu        sync.Mutex
	instances map[string]map[string]Embedder
}

func NewRegistry() *Registry {
	return &Registry{instances: make(map[string]map[string]Embedder)}
}

// Get returns the cached Embedder for (tenant, name), constructing and
// caching it if absent.
func (r *Registry) Get(ctx context.Context, tenant, name string, config Config) (Embedder, error) {
	r.mu.Lock()
	if byName, ok := r.instances[tenant]; ok {
		if e, ok := byName[name]; ok {
			r.mu.Unlock()
			return e, nil
		}
	}
	r.mu.Unlock()

	e, err := New(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("embedder: building %q for tenant %q: %w", name, tenant, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.instances[tenant] == nil {
		r.instances[tenant] = make(map[string]Embedder)
	}
	r.instances[tenant][name] = e
	return e, nil
}

// Invalidate drops every cached instance for tenant, forcing the next Get to
// rebuild.
func (r *Registry) Invalidate(tenant string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.instances, tenant)
}

// InvalidateOne drops the cached instance for a single (tenant, name) pair.
func (r *Registry) InvalidateOne(tenant, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if byName, ok := r.instances[tenant]; ok {
		delete(byName, name)
	}
}

// ActualDimensions reports the runtime Dimensions() of every cached embedder
// for tenant, keyed by embedder name, for fingerprint construction after
// auto-detecting dimensions (e.g. from a first OpenAI response).
func (r *Registry) ActualDimensions(tenant string) map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int)
	for name, e := range r.instances[tenant] {
		out[name] = e.Dimensions()
	}
	return out
}
