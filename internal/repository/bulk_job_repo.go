package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/timmy/bulkgen/internal/domain"
	"gorm.io/gorm"
)

// BulkJobRepository persists bulk job rows. Every mutation after creation is
// a conditional update scoped to one row, so redelivered messages racing on
// the same job cannot double-count or resurrect a finished job.
type BulkJobRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewBulkJobRepository creates a new BulkJobRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *BulkJobRepository: repository instance bound to db.
func NewBulkJobRepository(db *gorm.DB) *BulkJobRepository {
	return &BulkJobRepository{db: db, now: time.Now}
}

// Create inserts a new job row.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - job: job record to persist; ID must be set.
// Returns:
//   - error: non-nil if the insert fails.
func (r *BulkJobRepository) Create(ctx context.Context, job *domain.BulkJob) error {
	if job.ID == "" {
		return errors.New("bulk job id is required")
	}
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("failed to create bulk job: %w", err)
	}
	return nil
}

// GetByID retrieves a job by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
// Returns:
//   - *domain.BulkJob: job record if found.
//   - error: domain.ErrJobNotFound if the id is unknown, other errors on lookup failure.
func (r *BulkJobRepository) GetByID(ctx context.Context, id string) (*domain.BulkJob, error) {
	var job domain.BulkJob
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get bulk job: %w", err)
	}
	return &job, nil
}

// MarkRunning moves a pending or running job to running.
// Returns false when the job is terminal or unknown.
func (r *BulkJobRepository) MarkRunning(ctx context.Context, id string) (bool, error) {
	return r.transition(ctx, id, map[string]interface{}{
		"status": domain.JobStatusRunning,
	})
}

// Advance commits one processed page: additive counter deltas, the new
// pagination position and the resulting status, in a single UPDATE.
// The update only applies while the job is active and still sits at from,
// the position the page was fetched with.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
//   - from: position the page started at.
//   - adv: deltas, next position and status to commit.
// Returns:
//   - bool: false if another delivery already committed this page or the job is no longer active.
//   - error: non-nil if the update fails.
func (r *BulkJobRepository) Advance(ctx context.Context, id string, from domain.Position, adv domain.JobAdvance) (bool, error) {
	query := r.db.WithContext(ctx).Model(&domain.BulkJob{}).
		Where("id = ? AND status IN ?", id, domain.ActiveStatuses).
		Where(map[string]interface{}{"offset": from.Offset})
	if from.Cursor == nil {
		query = query.Where("cursor IS NULL")
	} else {
		query = query.Where("cursor = ?", *from.Cursor)
	}

	res := query.Updates(map[string]interface{}{
		"processed_count": gorm.Expr("processed_count + ?", adv.DeltaProcessed),
		"failed_count":    gorm.Expr("failed_count + ?", adv.DeltaFailed),
		"cursor":          adv.Position.Cursor,
		"offset":          adv.Position.Offset,
		"status":          adv.Status,
		"updated_at":      r.now(),
	})
	if res.Error != nil {
		return false, fmt.Errorf("failed to advance bulk job: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Complete marks an active job completed.
func (r *BulkJobRepository) Complete(ctx context.Context, id string) (bool, error) {
	return r.transition(ctx, id, map[string]interface{}{
		"status": domain.JobStatusCompleted,
	})
}

// Fail marks an active job failed and records the error message.
func (r *BulkJobRepository) Fail(ctx context.Context, id string, message string) (bool, error) {
	return r.transition(ctx, id, map[string]interface{}{
		"status":     domain.JobStatusFailed,
		"last_error": message,
	})
}

// Cancel marks an active job cancelled.
func (r *BulkJobRepository) Cancel(ctx context.Context, id string) (bool, error) {
	return r.transition(ctx, id, map[string]interface{}{
		"status": domain.JobStatusCancelled,
	})
}

// transition applies fields to a job only while it is pending or running.
func (r *BulkJobRepository) transition(ctx context.Context, id string, fields map[string]interface{}) (bool, error) {
	fields["updated_at"] = r.now()
	res := r.db.WithContext(ctx).Model(&domain.BulkJob{}).
		Where("id = ? AND status IN ?", id, domain.ActiveStatuses).
		Updates(fields)
	if res.Error != nil {
		return false, fmt.Errorf("failed to update bulk job status: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// ListUnfinished returns pending and running jobs, oldest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - limit: maximum number of records to return.
// Returns:
//   - []domain.BulkJob: unfinished jobs.
//   - error: non-nil if the query fails.
func (r *BulkJobRepository) ListUnfinished(ctx context.Context, limit int) ([]domain.BulkJob, error) {
	var jobs []domain.BulkJob
	if err := r.db.WithContext(ctx).
		Where("status IN ?", domain.ActiveStatuses).
		Order("created_at ASC").
		Limit(limit).
		Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("failed to list unfinished bulk jobs: %w", err)
	}
	return jobs, nil
}

// ListByStore returns a store's jobs, newest first, and the store's total job count.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - storeID: owning store.
//   - limit: maximum number of records to return.
//   - offset: number of records to skip.
// Returns:
//   - []domain.BulkJob: page of jobs.
//   - int64: total jobs for the store.
//   - error: non-nil if the query fails.
func (r *BulkJobRepository) ListByStore(ctx context.Context, storeID string, limit, offset int) ([]domain.BulkJob, int64, error) {
	var total int64
	base := r.db.WithContext(ctx).Model(&domain.BulkJob{}).Where("store_id = ?", storeID)
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count bulk jobs: %w", err)
	}

	var jobs []domain.BulkJob
	if err := r.db.WithContext(ctx).
		Where("store_id = ?", storeID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&jobs).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list bulk jobs: %w", err)
	}
	return jobs, total, nil
}
