package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/timmy/bulkgen/internal/domain"
)

// JobArchiver writes a snapshot of each finished job to object storage.
type JobArchiver struct {
	store  ObjectStorage
	prefix string
}

// jobSnapshot is the archived document; it never includes the access token.
type jobSnapshot struct {
	*domain.BulkJob
	ArchivedAt time.Time `json:"archivedAt"`
}

// NewJobArchiver creates an archiver that writes under prefix.
func NewJobArchiver(store ObjectStorage, prefix string) *JobArchiver {
	if prefix == "" {
		prefix = "bulk-jobs"
	}
	return &JobArchiver{store: store, prefix: prefix}
}

// Key returns the object key for a job: {prefix}/{storeId}/{jobId}.json.
func (a *JobArchiver) Key(job *domain.BulkJob) string {
	return path.Join(a.prefix, job.StoreID, job.ID+".json")
}

// Archive uploads job as JSON.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - job: terminal job row.
//
// Returns:
//   - error: non-nil if encoding or upload fails.
func (a *JobArchiver) Archive(ctx context.Context, job *domain.BulkJob) error {
	data, err := json.Marshal(jobSnapshot{BulkJob: job, ArchivedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to encode job snapshot: %w", err)
	}
	key := a.Key(job)
	if err := a.store.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), "application/json"); err != nil {
		return fmt.Errorf("failed to archive job %s: %w", job.ID, err)
	}
	return nil
}
