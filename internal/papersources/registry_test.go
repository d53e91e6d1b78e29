package papersources

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholium/harvest-service/internal/domain"
)

// mockPaperSource is a mock implementation of PaperSource for testing.
type mockPaperSource struct {
	sourceType domain.SourceType
	name       string
	enabled    bool

	// searchFunc allows customizing search behavior in tests
	searchFunc func(ctx context.Context, params SearchParams) domain.HarvestResult

	// Track calls for verification
	searchCalls atomic.Int32
	closeCalls  atomic.Int32
}

func newMockPaperSource(sourceType domain.SourceType, name string, enabled bool) *mockPaperSource {
	return &mockPaperSource{
		sourceType: sourceType,
		name:       name,
		enabled:    enabled,
	}
}

func (m *mockPaperSource) Search(ctx context.Context, params SearchParams) domain.HarvestResult {
	m.searchCalls.Add(1)
	if m.searchFunc != nil {
		return m.searchFunc(ctx, params)
	}
	return domain.HarvestResult{Source: m.sourceType}
}

func (m *mockPaperSource) SourceType() domain.SourceType { return m.sourceType }
func (m *mockPaperSource) Name() string                  { return m.name }
func (m *mockPaperSource) IsEnabled() bool               { return m.enabled }
func (m *mockPaperSource) Close()                        { m.closeCalls.Add(1) }

func (m *mockPaperSource) SearchCallCount() int {
	return int(m.searchCalls.Load())
}

func TestNewRegistry(t *testing.T) {
	registry := NewRegistry()

	require.NotNil(t, registry)
	assert.Nil(t, registry.Get(domain.SourceTypeSemanticScholar))
	assert.Empty(t, registry.EnabledSources())
}

func TestRegistry_Register(t *testing.T) {
	t.Run("registers and retrieves source", func(t *testing.T) {
		registry := NewRegistry()
		source := newMockPaperSource(domain.SourceTypeArXiv, "arXiv", true)

		registry.Register(source)

		assert.Equal(t, source, registry.Get(domain.SourceTypeArXiv))
	})

	t.Run("replaces source of same type", func(t *testing.T) {
		registry := NewRegistry()
		first := newMockPaperSource(domain.SourceTypeArXiv, "arXiv-1", true)
		second := newMockPaperSource(domain.SourceTypeArXiv, "arXiv-2", true)

		registry.Register(first)
		registry.Register(second)

		assert.Equal(t, second, registry.Get(domain.SourceTypeArXiv))
	})
}

func TestRegistry_EnabledSources(t *testing.T) {
	registry := NewRegistry()
	registry.Register(newMockPaperSource(domain.SourceTypeArXiv, "arXiv", true))
	registry.Register(newMockPaperSource(domain.SourceTypeSemanticScholar, "S2", false))
	registry.Register(newMockPaperSource(domain.SourceTypeOpenAlex, "OpenAlex", true))

	enabled := registry.EnabledSources()
	require.Len(t, enabled, 2)
	for _, s := range enabled {
		assert.True(t, s.IsEnabled())
	}
}

func TestRegistry_SearchSources(t *testing.T) {
	t.Run("searches all enabled sources concurrently", func(t *testing.T) {
		registry := NewRegistry()
		arxiv := newMockPaperSource(domain.SourceTypeArXiv, "arXiv", true)
		s2 := newMockPaperSource(domain.SourceTypeSemanticScholar, "S2", true)
		disabled := newMockPaperSource(domain.SourceTypeOpenAlex, "OpenAlex", false)
		registry.Register(arxiv)
		registry.Register(s2)
		registry.Register(disabled)

		results := registry.SearchAll(context.Background(), SearchParams{Query: "test"})

		require.Len(t, results, 2)
		assert.Equal(t, 1, arxiv.SearchCallCount())
		assert.Equal(t, 1, s2.SearchCallCount())
		assert.Equal(t, 0, disabled.SearchCallCount())
	})

	t.Run("searches only requested sources", func(t *testing.T) {
		registry := NewRegistry()
		arxiv := newMockPaperSource(domain.SourceTypeArXiv, "arXiv", true)
		s2 := newMockPaperSource(domain.SourceTypeSemanticScholar, "S2", true)
		registry.Register(arxiv)
		registry.Register(s2)

		results := registry.SearchSources(context.Background(), SearchParams{Query: "test"},
			[]domain.SourceType{domain.SourceTypeArXiv})

		require.Len(t, results, 1)
		assert.Equal(t, domain.SourceTypeArXiv, results[0].Source)
		assert.Equal(t, 0, s2.SearchCallCount())
	})

	t.Run("skips unregistered source types", func(t *testing.T) {
		registry := NewRegistry()
		registry.Register(newMockPaperSource(domain.SourceTypeArXiv, "arXiv", true))

		results := registry.SearchSources(context.Background(), SearchParams{Query: "test"},
			[]domain.SourceType{domain.SourceTypeArXiv, domain.SourceTypeOpenAlex})

		require.Len(t, results, 1)
		assert.Equal(t, domain.SourceTypeArXiv, results[0].Source)
	})

	t.Run("no sources returns nil", func(t *testing.T) {
		registry := NewRegistry()
		assert.Nil(t, registry.SearchAll(context.Background(), SearchParams{Query: "test"}))
	})

	t.Run("panicking source becomes errored result", func(t *testing.T) {
		registry := NewRegistry()
		healthy := newMockPaperSource(domain.SourceTypeArXiv, "arXiv", true)
		healthy.searchFunc = func(ctx context.Context, params SearchParams) domain.HarvestResult {
			return domain.HarvestResult{
				Source:     domain.SourceTypeArXiv,
				Papers:     []domain.HarvestedPaper{{Title: "Survivor"}},
				TotalFound: 1,
			}
		}
		panicking := newMockPaperSource(domain.SourceTypeSemanticScholar, "S2", true)
		panicking.searchFunc = func(ctx context.Context, params SearchParams) domain.HarvestResult {
			panic("boom")
		}
		registry.Register(healthy)
		registry.Register(panicking)

		results := registry.SearchAll(context.Background(), SearchParams{Query: "test"})

		require.Len(t, results, 2)
		bySource := make(map[domain.SourceType]domain.HarvestResult)
		for _, r := range results {
			bySource[r.Source] = r
		}

		assert.Empty(t, bySource[domain.SourceTypeArXiv].Err)
		assert.Len(t, bySource[domain.SourceTypeArXiv].Papers, 1)

		failed := bySource[domain.SourceTypeSemanticScholar]
		assert.Contains(t, failed.Err, "source panicked")
		assert.Contains(t, failed.Err, "boom")
		assert.Empty(t, failed.Papers)
	})

	t.Run("slow sources run in parallel", func(t *testing.T) {
		registry := NewRegistry()
		for _, st := range domain.AllSourceTypes() {
			src := newMockPaperSource(st, string(st), true)
			src.searchFunc = func(ctx context.Context, params SearchParams) domain.HarvestResult {
				time.Sleep(50 * time.Millisecond)
				return domain.HarvestResult{Source: st}
			}
			registry.Register(src)
		}

		start := time.Now()
		results := registry.SearchAll(context.Background(), SearchParams{Query: "test"})
		elapsed := time.Since(start)

		require.Len(t, results, 3)
		// Well under the 150ms a sequential run would take.
		assert.Less(t, elapsed, 140*time.Millisecond)
	})
}

func TestRegistry_CloseAll(t *testing.T) {
	registry := NewRegistry()
	arxiv := newMockPaperSource(domain.SourceTypeArXiv, "arXiv", true)
	s2 := newMockPaperSource(domain.SourceTypeSemanticScholar, "S2", true)
	registry.Register(arxiv)
	registry.Register(s2)

	registry.CloseAll()

	assert.Equal(t, int32(1), arxiv.closeCalls.Load())
	assert.Equal(t, int32(1), s2.closeCalls.Load())
	assert.Nil(t, registry.Get(domain.SourceTypeArXiv))
}

func TestFilterByVenues(t *testing.T) {
	papers := []domain.HarvestedPaper{
		{Title: "A", Venue: "Advances in Neural Information Processing Systems"},
		{Title: "B", Venue: "Nature"},
		{Title: "C", Venue: ""},
	}

	t.Run("no venues keeps everything", func(t *testing.T) {
		assert.Len(t, FilterByVenues(papers, nil), 3)
	})

	t.Run("case-insensitive substring match", func(t *testing.T) {
		filtered := FilterByVenues(papers, []string{"neural information"})
		require.Len(t, filtered, 1)
		assert.Equal(t, "A", filtered[0].Title)
	})

	t.Run("multiple venues union", func(t *testing.T) {
		filtered := FilterByVenues(papers, []string{"nature", "Neural"})
		assert.Len(t, filtered, 2)
	})

	t.Run("no match drops all", func(t *testing.T) {
		assert.Empty(t, FilterByVenues(papers, []string{"ICML"}))
	})
}
