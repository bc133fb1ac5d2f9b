package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmylchreest/m3uclean/internal/models"
	"gorm.io/gorm"
)

// runRepo implements RunRepository using GORM.
type runRepo struct {
	db *gorm.DB
}

// NewRunRepository creates a new RunRepository.
func NewRunRepository(db *gorm.DB) *runRepo {
	return &runRepo{db: db}
}

// Create stores a new run record.
func (r *runRepo) Create(ctx context.Context, record *models.RunRecord) error {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("creating run record: %w", err)
	}
	return nil
}

// ListRecent returns up to limit records, newest first.
func (r *runRepo) ListRecent(ctx context.Context, job string, limit int) ([]*models.RunRecord, error) {
	var records []*models.RunRecord
	query := r.db.WithContext(ctx).Order("id DESC")
	if job != "" {
		query = query.Where("job_name = ?", job)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("listing run records: %w", err)
	}
	return records, nil
}

// ListRun returns the records of one run in job order.
func (r *runRepo) ListRun(ctx context.Context, runID models.ULID) ([]*models.RunRecord, error) {
	var records []*models.RunRecord
	err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("job_name ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("listing records of run %s: %w", runID, err)
	}
	return records, nil
}

// LastSuccess returns the newest successful record for job, or nil.
func (r *runRepo) LastSuccess(ctx context.Context, job string) (*models.RunRecord, error) {
	var record models.RunRecord
	err := r.db.WithContext(ctx).
		Where("job_name = ? AND status = ?", job, models.RunStatusSuccess).
		Order("id DESC").
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting last successful run: %w", err)
	}
	return &record, nil
}

// Prune keeps the newest keep records of every job. A keep of zero or less
// deletes nothing.
func (r *runRepo) Prune(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}

	var jobs []string
	if err := r.db.WithContext(ctx).Model(&models.RunRecord{}).Distinct("job_name").Pluck("job_name", &jobs).Error; err != nil {
		return 0, fmt.Errorf("listing jobs for pruning: %w", err)
	}

	var deleted int64
	for _, job := range jobs {
		var ids []models.ULID
		err := r.db.WithContext(ctx).Model(&models.RunRecord{}).
			Where("job_name = ?", job).
			Order("id DESC").
			Pluck("id", &ids).Error
		if err != nil {
			return deleted, fmt.Errorf("selecting run records to prune for %s: %w", job, err)
		}
		if len(ids) <= keep {
			continue
		}

		result := r.db.WithContext(ctx).Where("id IN ?", ids[keep:]).Delete(&models.RunRecord{})
		if result.Error != nil {
			return deleted, fmt.Errorf("pruning run records for %s: %w", job, result.Error)
		}
		deleted += result.RowsAffected
	}
	return deleted, nil
}

var _ RunRepository = (*runRepo)(nil)
