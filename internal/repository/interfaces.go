// Package repository defines data access for m3uclean run history.
// All database access goes through these interfaces so callers can be
// tested without a database.
package repository

import (
	"context"

	"github.com/jmylchreest/m3uclean/internal/models"
)

// RunRepository defines operations for run record persistence.
type RunRepository interface {
	// Create stores a new run record.
	Create(ctx context.Context, record *models.RunRecord) error
	// ListRecent returns up to limit records, newest first. An empty job
	// returns records of every job.
	ListRecent(ctx context.Context, job string, limit int) ([]*models.RunRecord, error)
	// ListRun returns the records of one run in job order.
	ListRun(ctx context.Context, runID models.ULID) ([]*models.RunRecord, error)
	// LastSuccess returns the newest successful record for job, or nil.
	LastSuccess(ctx context.Context, job string) (*models.RunRecord, error)
	// Prune keeps the newest keep records of every job and deletes the rest.
	// It returns the number of records deleted.
	Prune(ctx context.Context, keep int) (int64, error)
}
