package search

import (
	"fmt"
	"sync"

	"github.com/helixir/research-report-service/internal/domain"
)

// QueryResult holds the result of running one query through a searcher.
type QueryResult struct {
	// Query is the query that was executed.
	Query string

	// Result contains the search results if the search succeeded.
	// Will be nil if Error is non-nil.
	Result *Result

	// Error contains the error if the search failed.
	// Will be nil if Result is non-nil.
	Error error
}

// Registry manages search providers.
// It provides thread-safe registration and retrieval of searchers.
// Concurrent query fan-out lives in the gateway, which wraps each lookup
// with its retry policy.
type Registry struct {
	mu        sync.RWMutex
	searchers map[domain.SearchProvider]Searcher
}

// NewRegistry creates a new provider registry with an empty searcher map.
func NewRegistry() *Registry {
	return &Registry{
		searchers: make(map[domain.SearchProvider]Searcher),
	}
}

// Register adds a searcher to the registry.
// If a searcher for the same provider already exists, it will be replaced.
// This method is thread-safe.
func (r *Registry) Register(s Searcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.searchers[s.ProviderType()] = s
}

// Get returns a searcher by provider, or an error if not registered.
// This method is thread-safe.
func (r *Registry) Get(provider domain.SearchProvider) (Searcher, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.searchers[provider]
	if !ok {
		return nil, fmt.Errorf("search provider %q not registered", provider)
	}
	return s, nil
}

// All returns all registered searchers.
// The returned slice is a snapshot and is safe to iterate even if
// searchers are added concurrently.
// This method is thread-safe.
func (r *Registry) All() []Searcher {
	r.mu.RLock()
	defer r.mu.RUnlock()

	searchers := make([]Searcher, 0, len(r.searchers))
	for _, s := range r.searchers {
		searchers = append(searchers, s)
	}
	return searchers
}
