package repository

import (
	"context"

	"github.com/scholium/harvest-service/internal/domain"
)

// PaperRepository manages the canonical paper registry.
//
// The registry holds one durable row per real-world paper. Upsert is the
// single write path: it resolves an incoming harvested paper against the
// existing rows, merges into a match or inserts a fresh row, and keeps the
// identifier index in sync. Repeating an upsert with the same input is a
// no-op beyond the updated_at timestamp.
type PaperRepository interface {
	// Upsert persists one harvested paper. It returns the canonical row the
	// paper landed in and whether that row was newly created. Callers should
	// run it inside a transaction so the advisory lock covers the whole
	// resolve-then-write sequence.
	Upsert(ctx context.Context, paper *domain.HarvestedPaper) (*domain.CanonicalPaper, bool, error)

	// UpsertBatch persists a batch of harvested papers with per-paper failure
	// isolation: one bad paper is recorded in the result's Errors map and the
	// rest still land. It returns an error only when the context is done.
	UpsertBatch(ctx context.Context, papers []domain.HarvestedPaper) (*BatchUpsertResult, error)

	// ResolvePaper finds the canonical row an incoming paper would merge into,
	// without writing anything. Returns domain.ErrNotFound when no row matches.
	ResolvePaper(ctx context.Context, paper *domain.HarvestedPaper) (*domain.CanonicalPaper, error)

	// Resolve maps a loose reference (numeric registry ID, arXiv ID, DOI,
	// known URL, or exact title) to a canonical paper ID. The identifier
	// index is consulted first; the field scan is the cold-start fallback.
	Resolve(ctx context.Context, ref string) (int64, error)

	// FindByIdentifier looks a paper up through the identifier index.
	FindByIdentifier(ctx context.Context, idType domain.IdentifierType, value string) (*domain.CanonicalPaper, error)

	// GetByID retrieves a canonical paper by its registry ID.
	GetByID(ctx context.Context, id int64) (*domain.CanonicalPaper, error)

	// UpsertIdentifier adds an identifier index entry for a paper, repointing
	// the entry when it already exists for another paper (identifier entries
	// follow merges).
	UpsertIdentifier(ctx context.Context, paperID int64, idType domain.IdentifierType, value string, sourceAPI domain.SourceType) error

	// AddSource records that a paper was reported by a source API.
	AddSource(ctx context.Context, paperID int64, sourceAPI domain.SourceType) error

	// List retrieves canonical papers matching the filter criteria along with
	// the total match count.
	List(ctx context.Context, filter PaperFilter) ([]*domain.CanonicalPaper, int64, error)
}

// BatchUpsertResult summarizes one UpsertBatch call.
type BatchUpsertResult struct {
	// New counts papers that created a fresh canonical row.
	New int

	// Updated counts papers that merged into an existing row.
	Updated int

	// Errors maps a failed paper's strongest identifier ("type:value") to the
	// failure message. Empty when every paper landed.
	Errors map[string]string
}

// Failed reports how many papers in the batch did not land.
func (r *BatchUpsertResult) Failed() int {
	return len(r.Errors)
}

// PaperFilter holds the filter criteria for listing canonical papers.
type PaperFilter struct {
	// Source restricts results to papers reported by this source API.
	Source *domain.SourceType

	// YearFrom and YearTo bound publication years inclusively; zero means unbounded.
	YearFrom int
	YearTo   int

	// Venue restricts results to papers whose venue contains this string,
	// case-insensitively.
	Venue string

	Limit  int
	Offset int
}

// Validate normalizes pagination and checks the filter's year bounds.
func (f *PaperFilter) Validate() error {
	applyPaginationDefaults(&f.Limit, &f.Offset)
	if f.YearFrom != 0 && f.YearTo != 0 && f.YearTo < f.YearFrom {
		return domain.NewValidationError("year_to", "must not precede year_from")
	}
	return nil
}
