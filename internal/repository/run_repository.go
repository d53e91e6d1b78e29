package repository

import (
	"context"

	"github.com/scholium/harvest-service/internal/domain"
)

// RunRepository manages harvest run lifecycle records.
//
// A run record is created when a harvest starts, updated as counts become
// known, and closed with a terminal status and completion timestamp. Records
// are never deleted.
type RunRepository interface {
	// CreateRun inserts a new run record. The record's RunID must be unique;
	// a duplicate returns domain.ErrAlreadyExists.
	CreateRun(ctx context.Context, run *domain.HarvestRun) error

	// UpdateRun applies the non-nil fields of the update to an existing run.
	// Returns domain.ErrNotFound when no run has the given run ID.
	UpdateRun(ctx context.Context, runID string, update domain.RunUpdate) error

	// GetRun retrieves a run by its public run ID.
	GetRun(ctx context.Context, runID string) (*domain.HarvestRun, error)

	// ListRuns retrieves runs newest-first along with the total run count.
	ListRuns(ctx context.Context, limit, offset int) ([]*domain.HarvestRun, int64, error)
}
