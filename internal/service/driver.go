package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/timmy/bulkgen/internal/catalog"
	"github.com/timmy/bulkgen/internal/domain"
	"github.com/timmy/bulkgen/internal/generation"
	"github.com/timmy/bulkgen/internal/logger"
	"github.com/timmy/bulkgen/internal/metrics"
	"github.com/timmy/bulkgen/internal/queue"
)

// Step results, used as the metrics label of one delivery.
const (
	stepSkipped   = "skipped"
	stepContinued = "continued"
	stepCompleted = "completed"
	stepFailed    = "failed"
	stepRetry     = "retry"
)

// BulkJobDriver advances a bulk job by exactly one catalog page per queue delivery.
//
// All progress lives on the job row. A delivery loads the row, fetches the
// page at the stored position, generates content for it and commits counters,
// position and status in one conditional update keyed on the position it
// started from. Redelivered or duplicated messages therefore either find the
// job terminal, or lose the commit race and stop without counting twice.
type BulkJobDriver struct {
	jobs     JobStore
	fetcher  PageFetcher
	invoker  GenerationInvoker
	queue    Enqueuer
	recorder *terminalRecorder
	logger   *logger.Logger
}

// NewBulkJobDriver creates a new job driver.
// Parameters:
//   - jobs: job record store.
//   - fetcher: catalog page fetcher.
//   - invoker: generation service client.
//   - q: queue used to schedule the next page.
//   - archiver: optional snapshot writer for finished jobs; may be nil.
//   - log: base logger.
//
// Returns:
//   - *BulkJobDriver: initialized driver.
func NewBulkJobDriver(
	jobs JobStore,
	fetcher PageFetcher,
	invoker GenerationInvoker,
	q Enqueuer,
	archiver Archiver,
	log *logger.Logger,
) *BulkJobDriver {
	if log == nil {
		log = logger.GetDefault()
	}
	return &BulkJobDriver{
		jobs:     jobs,
		fetcher:  fetcher,
		invoker:  invoker,
		queue:    q,
		recorder: &terminalRecorder{jobs: jobs, archiver: archiver},
		logger:   log.WithField(logger.FieldComponent, "job_driver"),
	}
}

// Handle processes one delivery of msg. It is a queue.Handler.
//
// Job-level failures are recorded on the row and acknowledged (nil return).
// An error is returned only when the outcome could not be persisted, or the
// consumer is shutting down, so the queue redelivers a message whose job is
// still active.
func (d *BulkJobDriver) Handle(ctx context.Context, msg queue.Message) (err error) {
	start := time.Now()
	result := stepSkipped
	ctx = d.logger.WithField(logger.FieldJobID, msg.JobID).WithContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			logger.FromContext(ctx).WithField("stack", string(debug.Stack())).Errorf("Panic in job step: %v", r)
			result, err = d.fail(ctx, msg.JobID, fmt.Errorf("panic: %v", r))
		}
		metrics.ObserveStep(result, time.Since(start))
	}()

	result, err = d.step(ctx, msg.JobID)
	return err
}

func (d *BulkJobDriver) step(ctx context.Context, id string) (string, error) {
	job, err := d.jobs.GetByID(ctx, id)
	if errors.Is(err, domain.ErrJobNotFound) {
		logger.CtxDebug(ctx, "Discarding message for unknown job")
		return stepSkipped, nil
	}
	if err != nil {
		return d.abort(ctx, id, fmt.Errorf("failed to load job: %w", err))
	}
	if job.Status.IsTerminal() {
		logger.CtxDebug(ctx, "Discarding message for %s job", job.Status)
		return stepSkipped, nil
	}

	ctx = logger.WithFields(ctx, logger.Fields{
		logger.FieldStoreID: job.StoreID,
		logger.FieldShop:    job.ShopDomain,
	})

	ok, err := d.jobs.MarkRunning(ctx, id)
	if err != nil {
		return d.abort(ctx, id, fmt.Errorf("failed to mark job running: %w", err))
	}
	if !ok {
		logger.CtxDebug(ctx, "Job became terminal before processing")
		return stepSkipped, nil
	}

	sel := job.Selection.Data()
	from := job.Position()
	page, err := d.fetcher.FetchPage(ctx, catalog.Credentials{
		ShopDomain:  job.ShopDomain,
		AccessToken: job.AccessToken,
	}, sel, from, sel.PageLimit())
	if err != nil {
		return d.abort(ctx, id, err)
	}

	if len(page.Items) == 0 {
		return d.handleEmptyPage(ctx, job, from, page)
	}

	genStart := time.Now()
	resp, err := d.invoker.Generate(ctx, generation.Request{
		StoreID:      job.StoreID,
		Products:     page.Items,
		Structure:    json.RawMessage(job.Structure),
		CustomPrompt: job.CustomPrompt,
	})
	if err != nil {
		return d.abort(ctx, id, err)
	}

	failed := resp.FailureCount()
	if failed > len(page.Items) {
		failed = len(page.Items)
	}
	succeeded := len(page.Items) - failed

	status := domain.JobStatusRunning
	if !page.HasNext {
		status = domain.JobStatusCompleted
	}

	committed, err := d.commit(ctx, id, from, domain.JobAdvance{
		DeltaProcessed: succeeded,
		DeltaFailed:    failed,
		Position:       page.Next,
		Status:         status,
	})
	if err != nil || !committed {
		return d.commitOutcome(ctx, id, err)
	}

	metrics.ObservePage(succeeded, failed)
	logger.With(logger.Fields{"has_next": page.HasNext}).
		WithPage(pageLabel(from)).
		WithProgress(succeeded, failed).
		WithCount(len(page.Items)).
		WithDuration(time.Since(genStart)).
		Info(ctx, "Committed page")

	return d.next(ctx, id, page.HasNext)
}

// handleEmptyPage finishes a job whose catalog is exhausted, or skips past a
// slice of ids that all resolved to nothing.
func (d *BulkJobDriver) handleEmptyPage(ctx context.Context, job *domain.BulkJob, from domain.Position, page *catalog.Page) (string, error) {
	if !page.HasNext {
		// The final slice may still move the offset past unresolvable ids.
		committed, err := d.commit(ctx, job.ID, from, domain.JobAdvance{
			Position: page.Next,
			Status:   domain.JobStatusCompleted,
		})
		if err != nil || !committed {
			return d.commitOutcome(ctx, job.ID, err)
		}
		d.recorder.record(ctx, job.ID)
		return stepCompleted, nil
	}

	if samePosition(from, page.Next) {
		return d.abort(ctx, job.ID, errors.New("catalog returned an empty page without advancing"))
	}

	committed, err := d.commit(ctx, job.ID, from, domain.JobAdvance{
		Position: page.Next,
		Status:   domain.JobStatusRunning,
	})
	if err != nil || !committed {
		return d.commitOutcome(ctx, job.ID, err)
	}
	logger.With(nil).WithPage(pageLabel(from)).Info(ctx, "Skipped page with no resolvable products")
	return d.next(ctx, job.ID, true)
}

func (d *BulkJobDriver) commit(ctx context.Context, id string, from domain.Position, adv domain.JobAdvance) (bool, error) {
	ok, err := d.jobs.Advance(ctx, id, from, adv)
	if err != nil {
		return false, fmt.Errorf("failed to commit page: %w", err)
	}
	return ok, nil
}

// commitOutcome handles an Advance that errored or was rejected.
func (d *BulkJobDriver) commitOutcome(ctx context.Context, id string, err error) (string, error) {
	if err != nil {
		return d.abort(ctx, id, err)
	}
	// Another delivery committed this page first, or the job was cancelled
	// mid-page. Either way this delivery must not schedule more work.
	logger.CtxWarn(ctx, "Page commit rejected; job moved on or is no longer active")
	return stepSkipped, nil
}

// next schedules the following page or records completion.
func (d *BulkJobDriver) next(ctx context.Context, id string, hasNext bool) (string, error) {
	if !hasNext {
		d.recorder.record(ctx, id)
		return stepCompleted, nil
	}
	if err := d.queue.Enqueue(ctx, queue.Message{JobID: id}); err != nil {
		return d.abort(ctx, id, fmt.Errorf("failed to enqueue next page: %w", err))
	}
	return stepContinued, nil
}

// abort fails the job unless the consumer is shutting down, in which case
// the message is handed back for redelivery with the row untouched.
func (d *BulkJobDriver) abort(ctx context.Context, id string, cause error) (string, error) {
	if ctx.Err() != nil {
		logger.FromContext(ctx).WithError(cause).Warn("Step interrupted by shutdown; job left active")
		return stepRetry, fmt.Errorf("step interrupted: %w", ctx.Err())
	}
	return d.fail(ctx, id, cause)
}

// fail records cause on the job. A store error here is returned so the queue
// redelivers; the row is still active so a retry is safe.
func (d *BulkJobDriver) fail(ctx context.Context, id string, cause error) (string, error) {
	logger.FromContext(ctx).WithError(cause).Error("Bulk job failed")

	ok, err := d.jobs.Fail(ctx, id, cause.Error())
	if err != nil {
		logger.FromContext(ctx).WithError(err).Error("Failed to record job failure")
		return stepRetry, fmt.Errorf("failed to record job failure: %w", err)
	}
	if ok {
		d.recorder.record(ctx, id)
	}
	return stepFailed, nil
}

func samePosition(a, b domain.Position) bool {
	if a.Offset != b.Offset {
		return false
	}
	if a.Cursor == nil || b.Cursor == nil {
		return a.Cursor == nil && b.Cursor == nil
	}
	return *a.Cursor == *b.Cursor
}

func pageLabel(p domain.Position) string {
	if p.Cursor != nil {
		return "cursor:" + *p.Cursor
	}
	return fmt.Sprintf("offset:%d", p.Offset)
}
