package papersources

import (
	"context"
	"fmt"
	"sync"

	"github.com/scholium/harvest-service/internal/domain"
)

// Registry manages paper sources and coordinates concurrent searches.
// It provides thread-safe registration and retrieval of paper sources.
type Registry struct {
	mu      sync.RWMutex
	sources map[domain.SourceType]PaperSource
}

// NewRegistry creates a new source registry with an empty source map.
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[domain.SourceType]PaperSource),
	}
}

// Register adds a source to the registry, replacing any existing source of
// the same type.
func (r *Registry) Register(source PaperSource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[source.SourceType()] = source
}

// Get returns a source by type, or nil if not found.
func (r *Registry) Get(sourceType domain.SourceType) PaperSource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sources[sourceType]
}

// EnabledSources returns a snapshot of the sources whose IsEnabled() reports
// true.
func (r *Registry) EnabledSources() []PaperSource {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sources := make([]PaperSource, 0, len(r.sources))
	for _, source := range r.sources {
		if source.IsEnabled() {
			sources = append(sources, source)
		}
	}
	return sources
}

// SearchAll searches all enabled sources concurrently.
func (r *Registry) SearchAll(ctx context.Context, params SearchParams) []domain.HarvestResult {
	return r.SearchSources(ctx, params, nil)
}

// SearchSources searches the requested sources concurrently. If sourceTypes
// is empty, all enabled sources are searched; requested types that are not
// registered are skipped. Each source contributes exactly one result, and a
// failing or panicking source is reported via its result's Err field rather
// than aborting the others.
func (r *Registry) SearchSources(ctx context.Context, params SearchParams, sourceTypes []domain.SourceType) []domain.HarvestResult {
	var sources []PaperSource

	if len(sourceTypes) == 0 {
		sources = r.EnabledSources()
	} else {
		r.mu.RLock()
		sources = make([]PaperSource, 0, len(sourceTypes))
		for _, st := range sourceTypes {
			if source, ok := r.sources[st]; ok {
				sources = append(sources, source)
			}
		}
		r.mu.RUnlock()
	}

	if len(sources) == 0 {
		return nil
	}

	resultChan := make(chan domain.HarvestResult, len(sources))
	var wg sync.WaitGroup

	for _, source := range sources {
		wg.Add(1)
		go func(s PaperSource) {
			defer wg.Done()
			resultChan <- searchSafely(ctx, s, params)
		}(source)
	}

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	results := make([]domain.HarvestResult, 0, len(sources))
	for result := range resultChan {
		results = append(results, result)
	}

	return results
}

// CloseAll closes every registered source and clears the registry.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, source := range r.sources {
		source.Close()
	}
	r.sources = make(map[domain.SourceType]PaperSource)
}

// searchSafely invokes a source's Search, converting any panic into an
// errored result so one misbehaving adapter cannot take down a whole run.
func searchSafely(ctx context.Context, s PaperSource, params SearchParams) (result domain.HarvestResult) {
	defer func() {
		if rec := recover(); rec != nil {
			result = domain.HarvestResult{
				Source: s.SourceType(),
				Err:    fmt.Sprintf("source panicked: %v", rec),
			}
		}
	}()
	return s.Search(ctx, params)
}
