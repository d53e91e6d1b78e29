package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/scholium/harvest-service/internal/domain"
)

// Compile-time interface verification.
var _ RunRepository = (*PgRunRepository)(nil)

// PgRunRepository is a PostgreSQL implementation of RunRepository.
type PgRunRepository struct {
	db DBTX
}

// NewPgRunRepository creates a new PostgreSQL run repository.
func NewPgRunRepository(db DBTX) *PgRunRepository {
	return &PgRunRepository{db: db}
}

// runColumns is the canonical column list shared by every SELECT; the order
// must match runScanDest.destinations.
const runColumns = `r.id, r.run_id, r.status, r.keywords, r.venues, r.sources,
	r.max_per_source, r.papers_found, r.papers_new, r.papers_deduplicated,
	r.errors, r.started_at, r.completed_at`

// CreateRun inserts a new run record and fills in the generated row ID.
func (r *PgRunRepository) CreateRun(ctx context.Context, run *domain.HarvestRun) error {
	if run == nil {
		return domain.NewValidationError("run", "run cannot be nil")
	}
	if run.RunID == "" {
		return domain.NewValidationError("run_id", "run ID is required")
	}

	js, err := marshalRunJSON(run)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO harvest_runs (
			run_id, status, keywords, venues, sources, max_per_source,
			papers_found, papers_new, papers_deduplicated, errors,
			started_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)
		RETURNING id`

	err = r.db.QueryRow(ctx, query,
		run.RunID,
		string(run.Status),
		js.keywords,
		js.venues,
		js.sources,
		run.MaxPerSource,
		run.PapersFound,
		run.PapersNew,
		run.PapersDeduplicated,
		js.errs,
		run.StartedAt,
	).Scan(&run.ID)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.NewAlreadyExistsError("harvest run", run.RunID)
		}
		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

// UpdateRun applies the non-nil fields of the update to an existing run.
func (r *PgRunRepository) UpdateRun(ctx context.Context, runID string, update domain.RunUpdate) error {
	if runID == "" {
		return domain.NewValidationError("run_id", "run ID is required")
	}

	// Build the SET clause from the fields the update actually carries.
	var sets []string
	var args []interface{}
	argIndex := 1

	addSet := func(column string, value interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, argIndex))
		args = append(args, value)
		argIndex++
	}

	if update.Status != nil {
		addSet("status", string(*update.Status))
	}
	if update.PapersFound != nil {
		addSet("papers_found", *update.PapersFound)
	}
	if update.PapersNew != nil {
		addSet("papers_new", *update.PapersNew)
	}
	if update.PapersDeduplicated != nil {
		addSet("papers_deduplicated", *update.PapersDeduplicated)
	}
	if update.Errors != nil {
		errsJSON, err := json.Marshal(update.Errors)
		if err != nil {
			return fmt.Errorf("failed to marshal errors: %w", err)
		}
		addSet("errors", errsJSON)
	}
	if update.CompletedAt != nil {
		addSet("completed_at", *update.CompletedAt)
	}

	if len(sets) == 0 {
		return domain.NewValidationError("update", "no fields to update")
	}

	query := fmt.Sprintf("UPDATE harvest_runs SET %s WHERE run_id = $%d",
		strings.Join(sets, ", "), argIndex)
	args = append(args, runID)

	result, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.NewNotFoundError("harvest run", runID)
	}

	return nil
}

// GetRun retrieves a run by its public run ID.
func (r *PgRunRepository) GetRun(ctx context.Context, runID string) (*domain.HarvestRun, error) {
	if runID == "" {
		return nil, domain.NewValidationError("run_id", "run ID is required")
	}

	query := fmt.Sprintf("SELECT %s FROM harvest_runs r WHERE r.run_id = $1", runColumns)

	run, err := scanRun(r.db.QueryRow(ctx, query, runID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("harvest run", runID)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return run, nil
}

// ListRuns retrieves runs newest-first.
func (r *PgRunRepository) ListRuns(ctx context.Context, limit, offset int) ([]*domain.HarvestRun, int64, error) {
	applyPaginationDefaults(&limit, &offset)

	var totalCount int64
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM harvest_runs").Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("failed to count runs: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM harvest_runs r
		ORDER BY r.started_at DESC
		LIMIT $1 OFFSET $2`, runColumns)

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*domain.HarvestRun, 0, limit)
	for rows.Next() {
		var dest runScanDest
		if err := rows.Scan(dest.destinations()...); err != nil {
			return nil, 0, fmt.Errorf("failed to scan run: %w", err)
		}
		run, err := dest.finalize()
		if err != nil {
			return nil, 0, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, totalCount, nil
}

// runJSON holds the JSONB column payloads for one run row.
type runJSON struct {
	keywords []byte
	venues   []byte
	sources  []byte
	errs     []byte
}

func marshalRunJSON(run *domain.HarvestRun) (runJSON, error) {
	var js runJSON
	var err error

	if js.keywords, err = json.Marshal(run.Keywords); err != nil {
		return js, fmt.Errorf("failed to marshal keywords: %w", err)
	}
	if js.venues, err = json.Marshal(run.Venues); err != nil {
		return js, fmt.Errorf("failed to marshal venues: %w", err)
	}
	if js.sources, err = json.Marshal(run.Sources); err != nil {
		return js, fmt.Errorf("failed to marshal sources: %w", err)
	}
	if js.errs, err = json.Marshal(run.Errors); err != nil {
		return js, fmt.Errorf("failed to marshal errors: %w", err)
	}

	return js, nil
}

// runScanDest holds the destination pointers for scanning a run row.
type runScanDest struct {
	run          domain.HarvestRun
	status       string
	keywordsJSON []byte
	venuesJSON   []byte
	sourcesJSON  []byte
	errorsJSON   []byte
	completedAt  *time.Time
}

// destinations returns the slice of pointers for Scan operations; the order
// must match runColumns.
func (d *runScanDest) destinations() []interface{} {
	return []interface{}{
		&d.run.ID, &d.run.RunID, &d.status, &d.keywordsJSON, &d.venuesJSON, &d.sourcesJSON,
		&d.run.MaxPerSource, &d.run.PapersFound, &d.run.PapersNew, &d.run.PapersDeduplicated,
		&d.errorsJSON, &d.run.StartedAt, &d.completedAt,
	}
}

// finalize performs post-scan processing: unmarshals JSON fields.
func (d *runScanDest) finalize() (*domain.HarvestRun, error) {
	if len(d.keywordsJSON) > 0 {
		if err := json.Unmarshal(d.keywordsJSON, &d.run.Keywords); err != nil {
			return nil, fmt.Errorf("failed to unmarshal keywords: %w", err)
		}
	}
	if len(d.venuesJSON) > 0 {
		if err := json.Unmarshal(d.venuesJSON, &d.run.Venues); err != nil {
			return nil, fmt.Errorf("failed to unmarshal venues: %w", err)
		}
	}
	if len(d.sourcesJSON) > 0 {
		if err := json.Unmarshal(d.sourcesJSON, &d.run.Sources); err != nil {
			return nil, fmt.Errorf("failed to unmarshal sources: %w", err)
		}
	}
	if len(d.errorsJSON) > 0 {
		if err := json.Unmarshal(d.errorsJSON, &d.run.Errors); err != nil {
			return nil, fmt.Errorf("failed to unmarshal errors: %w", err)
		}
	}
	d.run.Status = domain.RunStatus(d.status)
	d.run.CompletedAt = d.completedAt

	return &d.run, nil
}

// scanRun scans a single row into a HarvestRun.
func scanRun(row pgx.Row) (*domain.HarvestRun, error) {
	var dest runScanDest
	if err := row.Scan(dest.destinations()...); err != nil {
		return nil, err
	}
	return dest.finalize()
}
