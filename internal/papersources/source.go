// Package papersources provides clients for searching bibliographic APIs.
//
// Each external database (arXiv, Semantic Scholar, OpenAlex) implements the
// PaperSource interface, translating its native schema into the common
// domain.HarvestedPaper shape. Adapters never let transport or parse failures
// escape Search: failures come back inside the HarvestResult, so one broken
// source can never abort a harvest run.
package papersources

import (
	"context"
	"strings"

	"github.com/scholium/harvest-service/internal/domain"
)

// SearchParams defines the parameters for one source search.
type SearchParams struct {
	// Query is the search query string (required).
	Query string

	// MaxResults limits the number of papers fetched in this search.
	// A value of 0 uses the source's default limit.
	MaxResults int

	// YearFrom and YearTo bound publication years inclusively; zero means
	// unbounded on that side.
	YearFrom int
	YearTo   int

	// Venues restricts results to the named publication venues. Sources
	// without a native venue filter apply a substring post-filter over the
	// fetched page instead.
	Venues []string
}

// PaperSource is the adapter contract implemented per provider.
type PaperSource interface {
	// Search queries the source and returns its result. It must not panic
	// and must not fail out-of-band: any transport, HTTP, or decode failure
	// is reported via the result's Err field with an empty paper list.
	// Search honors the source's self-imposed rate limit before each request.
	Search(ctx context.Context, params SearchParams) domain.HarvestResult

	// SourceType returns the type identifier for this source.
	SourceType() domain.SourceType

	// Name returns a human-readable name for logging and error keys.
	Name() string

	// IsEnabled reports whether this source is available for searches.
	// A source may be disabled by configuration or a missing API key.
	IsEnabled() bool

	// Close releases the adapter's network resources.
	Close()
}

// FilterByVenues keeps only papers whose venue contains one of the wanted
// venue names, case-insensitively. It is the post-fetch fallback for sources
// without a native venue filter; with no venues it returns papers unchanged.
func FilterByVenues(papers []domain.HarvestedPaper, venues []string) []domain.HarvestedPaper {
	if len(venues) == 0 {
		return papers
	}
	filtered := make([]domain.HarvestedPaper, 0, len(papers))
	for _, p := range papers {
		venue := strings.ToLower(p.Venue)
		for _, want := range venues {
			if want == "" {
				continue
			}
			if strings.Contains(venue, strings.ToLower(want)) {
				filtered = append(filtered, p)
				break
			}
		}
	}
	return filtered
}
