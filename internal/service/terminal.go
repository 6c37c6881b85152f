package service

import (
	"context"

	"github.com/timmy/bulkgen/internal/domain"
	"github.com/timmy/bulkgen/internal/logger"
	"github.com/timmy/bulkgen/internal/metrics"
)

// terminalRecorder runs the side effects of a job reaching a terminal status.
// Callers invoke it only after winning the conditional transition, so each
// job is recorded once.
type terminalRecorder struct {
	jobs     JobStore
	archiver Archiver // nil disables archiving
}

// record reloads the finished row, updates metrics and archives it.
// Failures are logged; they never change job state.
func (r *terminalRecorder) record(ctx context.Context, id string) *domain.BulkJob {
	job, err := r.jobs.GetByID(ctx, id)
	if err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Failed to reload finished job")
		return nil
	}

	metrics.IncJobFinished(string(job.Status))
	entry := logger.With(nil).
		WithProgress(job.ProcessedCount, job.FailedCount).
		WithStatus(string(job.Status)).
		WithDuration(job.UpdatedAt.Sub(job.CreatedAt))
	if job.Status == domain.JobStatusFailed {
		if job.LastError != nil {
			entry = entry.WithField("last_error", *job.LastError)
		}
		entry.Warn(ctx, "Bulk job finished")
	} else {
		entry.Info(ctx, "Bulk job finished")
	}

	if r.archiver != nil {
		if err := r.archiver.Archive(ctx, job); err != nil {
			logger.FromContext(ctx).WithError(err).Warn("Failed to archive finished job")
		}
	}
	return job
}
