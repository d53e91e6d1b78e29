package domain

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// DefaultMaxResultsPerSource is the per-source result cap applied when a
// harvest config does not set one.
const DefaultMaxResultsPerSource = 50

var validate = validator.New()

// HarvestConfig is the inbound configuration for one harvest run.
type HarvestConfig struct {
	// Keywords are the search terms; required, non-empty after trimming.
	Keywords []string `json:"keywords" validate:"required,min=1,dive,required"`

	// Venues restricts results to publication venues matching these names.
	Venues []string `json:"venues,omitempty"`

	// YearFrom and YearTo bound publication years inclusively; zero means unbounded.
	YearFrom int `json:"year_from,omitempty" validate:"omitempty,min=1000"`
	YearTo   int `json:"year_to,omitempty" validate:"omitempty,min=1000"`

	// Sources selects which adapters to harvest from; defaults to all three.
	Sources []SourceType `json:"sources,omitempty" validate:"omitempty,dive,oneof=arxiv semantic_scholar openalex"`

	// MaxResultsPerSource caps results fetched from each source (default 50).
	MaxResultsPerSource int `json:"max_results_per_source,omitempty" validate:"omitempty,min=1"`

	// ExpandKeywords enables the query-expansion collaborator before harvesting.
	ExpandKeywords bool `json:"expand_keywords,omitempty"`

	// RecommendVenues enables the venue-recommendation collaborator.
	RecommendVenues bool `json:"recommend_venues,omitempty"`
}

// ApplyDefaults fills unset fields: all sources, 50 results per source, and
// trims keyword/venue whitespace, dropping entries that trim to empty.
func (c *HarvestConfig) ApplyDefaults() {
	c.Keywords = trimNonEmpty(c.Keywords)
	c.Venues = trimNonEmpty(c.Venues)
	if len(c.Sources) == 0 {
		c.Sources = AllSourceTypes()
	}
	if c.MaxResultsPerSource == 0 {
		c.MaxResultsPerSource = DefaultMaxResultsPerSource
	}
}

// Validate checks the config after defaults have been applied.
func (c *HarvestConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return NewValidationError("harvest_config", err.Error())
	}
	if c.YearFrom != 0 && c.YearTo != 0 && c.YearTo < c.YearFrom {
		return NewValidationError("year_to", "must not precede year_from")
	}
	return nil
}

func trimNonEmpty(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if t := strings.TrimSpace(s); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// HarvestResult is the outcome of searching one source.
type HarvestResult struct {
	// Source identifies the adapter that produced this result.
	Source SourceType `json:"source"`

	// Papers are the normalized papers fetched from the source.
	Papers []HarvestedPaper `json:"papers"`

	// TotalFound is the total matches the upstream API reported; it may
	// exceed len(Papers) when more matches exist than were fetched.
	TotalFound int `json:"total_found"`

	// Err holds the failure message when the search failed; empty on success.
	Err string `json:"error,omitempty"`
}

// Success reports whether the source search completed without error.
func (r *HarvestResult) Success() bool {
	return r.Err == ""
}

// SourceOutcome summarizes one source's contribution in a final result.
type SourceOutcome struct {
	Papers int    `json:"papers"`
	Err    string `json:"error,omitempty"`
}

// HarvestFinalResult is the single terminal value emitted by every run.
type HarvestFinalResult struct {
	RunID              string                       `json:"run_id"`
	Status             RunStatus                    `json:"status"`
	PapersFound        int                          `json:"papers_found"`
	PapersNew          int                          `json:"papers_new"`
	PapersDeduplicated int                          `json:"papers_deduplicated"`
	SourceResults      map[SourceType]SourceOutcome `json:"source_results"`
	Errors             map[string]string            `json:"errors,omitempty"`
	DurationSeconds    float64                      `json:"duration_seconds"`
}

// HarvestRun is the durable run record tracked across the run's lifecycle.
type HarvestRun struct {
	ID                 int64             `json:"-"`
	RunID              string            `json:"run_id"`
	Status             RunStatus         `json:"status"`
	Keywords           []string          `json:"keywords"`
	Venues             []string          `json:"venues,omitempty"`
	Sources            []SourceType      `json:"sources"`
	MaxPerSource       int               `json:"max_per_source"`
	PapersFound        int               `json:"papers_found"`
	PapersNew          int               `json:"papers_new"`
	PapersDeduplicated int               `json:"papers_deduplicated"`
	Errors             map[string]string `json:"errors,omitempty"`
	StartedAt          time.Time         `json:"started_at"`
	CompletedAt        *time.Time        `json:"completed_at,omitempty"`
}

// RunUpdate carries the partial fields applied to a run record mid-flight or
// at completion. Nil fields are left untouched.
type RunUpdate struct {
	Status             *RunStatus
	PapersFound        *int
	PapersNew          *int
	PapersDeduplicated *int
	Errors             map[string]string
	CompletedAt        *time.Time
}
