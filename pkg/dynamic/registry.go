// Package dynamic resolves the options of dynamic nodes at request time.
package dynamic

import (
	"context"
	"errors"
	"maps"
	"sort"
	"sync"

	"github.com/aretw0/leadflow/pkg/domain"
)

// ErrUnknownQuery is returned when a query name is not registered.
var ErrUnknownQuery = errors.New("unknown dynamic query")

// FetchFunc fetches the options of a query for the current conversation state.
type FetchFunc func(ctx context.Context, state domain.State) ([]domain.Option, error)

// Query is a named option source. Enrich, when set, maps option source keys
// (label, value or an attribute) to the state keys they populate after a selection.
type Query struct {
	Name   string
	Fetch  FetchFunc
	Enrich map[string]string
}

// Registry manages the available queries.
// It implements ports.OptionResolver and ports.Enricher.
type Registry struct {
	mu      sync.RWMutex
	queries map[string]Query
}

// NewRegistry creates a registry holding the given queries.
func NewRegistry(queries ...Query) *Registry {
	r := &Registry{queries: make(map[string]Query, len(queries))}
	for _, q := range queries {
		r.Register(q)
	}
	return r
}

// Register adds a query to the registry.
// If a query with the same name exists, it is overwritten.
func (r *Registry) Register(q Query) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries[q.Name] = q
}

// Resolve runs a query. It always issues a live fetch and never retries.
// Failures are returned as *domain.DynamicResolutionError.
func (r *Registry) Resolve(ctx context.Context, name string, state domain.State) ([]domain.Option, error) {
	r.mu.RLock()
	q, ok := r.queries[name]
	r.mu.RUnlock()

	if !ok || q.Fetch == nil {
		return nil, &domain.DynamicResolutionError{Query: name, Err: ErrUnknownQuery}
	}
	opts, err := q.Fetch(ctx, state)
	if err != nil {
		return nil, &domain.DynamicResolutionError{Query: name, Err: err}
	}
	return opts, nil
}

// Enrichment returns a copy of the query's enrichment mapping.
func (r *Registry) Enrichment(name string) (map[string]string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q, ok := r.queries[name]
	if !ok || len(q.Enrich) == 0 {
		return nil, false
	}
	return maps.Clone(q.Enrich), true
}

// Names returns the registered query names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.queries))
	for n := range r.queries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
