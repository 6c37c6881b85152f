package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/timmy/bulkgen/internal/access"
	"github.com/timmy/bulkgen/internal/catalog"
	"github.com/timmy/bulkgen/internal/domain"
	"github.com/timmy/bulkgen/internal/logger"
	"github.com/timmy/bulkgen/internal/metrics"
	"github.com/timmy/bulkgen/internal/queue"
	"gorm.io/datatypes"
)

// ErrValidation marks caller input errors. Wrapped errors carry the field detail.
var ErrValidation = errors.New("validation failed")

const (
	defaultListLimit = 20
	maxListLimit     = 100
	recoverBatch     = 500
)

// DispatchService is the boundary that creates, inspects and cancels bulk jobs.
type DispatchService struct {
	jobs     JobStore
	stores   StoreLookup
	queue    Enqueuer
	fetcher  PageFetcher
	invoker  GenerationInvoker
	recorder *terminalRecorder
	logger   *logger.Logger
}

// NewDispatchService creates a new dispatch service.
// Parameters:
//   - jobs: job record store.
//   - stores: tenant lookup used by store-scoped operations.
//   - q: queue the first message of every job is published to.
//   - fetcher: catalog fetcher for the synchronous single-page path.
//   - invoker: generation client for the synchronous single-page path.
//   - archiver: optional snapshot writer for cancelled jobs; may be nil.
//   - log: base logger.
//
// Returns:
//   - *DispatchService: initialized service.
func NewDispatchService(
	jobs JobStore,
	stores StoreLookup,
	q Enqueuer,
	fetcher PageFetcher,
	invoker GenerationInvoker,
	archiver Archiver,
	log *logger.Logger,
) *DispatchService {
	if log == nil {
		log = logger.GetDefault()
	}
	return &DispatchService{
		jobs:     jobs,
		stores:   stores,
		queue:    q,
		fetcher:  fetcher,
		invoker:  invoker,
		recorder: &terminalRecorder{jobs: jobs, archiver: archiver},
		logger:   log.WithField(logger.FieldComponent, "dispatch"),
	}
}

// CreateJobInput is a fully specified job, credentials included.
type CreateJobInput struct {
	StoreID      string           `json:"storeId"`
	ShopDomain   string           `json:"shopDomain"`
	AccessToken  string           `json:"accessToken"`
	Structure    json.RawMessage  `json:"structure"`
	CustomPrompt *string          `json:"customPrompt,omitempty"`
	Selection    domain.Selection `json:"selection"`
}

// CreateForStoreInput is a job request whose credentials come from the store record.
type CreateForStoreInput struct {
	StoreID      string           `json:"storeId"`
	Structure    json.RawMessage  `json:"structure"`
	CustomPrompt *string          `json:"customPrompt,omitempty"`
	Selection    domain.Selection `json:"selection"`
}

// CreateJob validates input, writes a pending job row and enqueues its first message.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - in: job definition.
//
// Returns:
//   - string: new job ID.
//   - error: wraps ErrValidation for bad input; other errors if the row or
//     message could not be written. A job whose message could not be
//     enqueued is marked failed.
func (s *DispatchService) CreateJob(ctx context.Context, in CreateJobInput) (string, error) {
	if err := validateCreate(in); err != nil {
		return "", err
	}

	job := &domain.BulkJob{
		ID:           uuid.NewString(),
		StoreID:      in.StoreID,
		ShopDomain:   catalog.NormalizeShopDomain(in.ShopDomain),
		AccessToken:  in.AccessToken,
		Status:       domain.JobStatusPending,
		Selection:    datatypes.NewJSONType(in.Selection),
		Structure:    datatypes.JSON(in.Structure),
		CustomPrompt: normalizePrompt(in.CustomPrompt),
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return "", err
	}

	ctx = logger.WithJob(ctx, job.ID, job.StoreID)
	if err := s.queue.Enqueue(ctx, queue.Message{JobID: job.ID}); err != nil {
		enqueueErr := fmt.Errorf("failed to enqueue job: %w", err)
		if ok, failErr := s.jobs.Fail(ctx, job.ID, enqueueErr.Error()); failErr != nil {
			logger.FromContext(ctx).WithError(failErr).Error("Failed to mark unqueued job failed")
		} else if ok {
			s.recorder.record(ctx, job.ID)
		}
		return "", enqueueErr
	}

	metrics.IncJobCreated(string(in.Selection.Mode))
	logger.With(logger.Fields{
		"mode":  in.Selection.Mode,
		"limit": in.Selection.PageLimit(),
	}).WithCount(len(in.Selection.IDs)).Info(ctx, "Bulk job created")
	return job.ID, nil
}

// CreateJobForStore creates a job for a store the caller is authorized for,
// using the store's own credentials.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - identity: verified caller; nil is unauthorized.
//   - in: job definition without credentials.
//
// Returns:
//   - string: new job ID.
//   - error: access.ErrUnauthorized, domain.ErrStoreNotFound,
//     domain.ErrStoreInactive, ErrValidation, or a creation error.
func (s *DispatchService) CreateJobForStore(ctx context.Context, identity *access.Identity, in CreateForStoreInput) (string, error) {
	store, err := s.authorizeStore(ctx, identity, in.StoreID)
	if err != nil {
		return "", err
	}
	if !store.IsActive() {
		return "", domain.ErrStoreInactive
	}

	return s.CreateJob(ctx, CreateJobInput{
		StoreID:      store.ID,
		ShopDomain:   store.Shop,
		AccessToken:  store.AccessToken,
		Structure:    in.Structure,
		CustomPrompt: in.CustomPrompt,
		Selection:    in.Selection,
	})
}

// authorizeStore resolves storeID and checks it belongs to identity's shop.
func (s *DispatchService) authorizeStore(ctx context.Context, identity *access.Identity, storeID string) (*domain.Store, error) {
	if identity == nil {
		return nil, access.ErrUnauthorized
	}
	if strings.TrimSpace(storeID) == "" {
		return nil, fmt.Errorf("%w: storeId is required", ErrValidation)
	}
	store, err := s.stores.GetByID(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if !identity.CanAccessShop(catalog.NormalizeShopDomain(store.Shop)) {
		return nil, fmt.Errorf("%w: store %s belongs to another shop", access.ErrUnauthorized, storeID)
	}
	return store, nil
}

// GetJob returns a job by ID.
func (s *DispatchService) GetJob(ctx context.Context, id string) (*domain.BulkJob, error) {
	return s.jobs.GetByID(ctx, id)
}

// ListJobs returns a store's jobs, newest first, and the total count.
func (s *DispatchService) ListJobs(ctx context.Context, storeID string, limit, offset int) ([]domain.BulkJob, int64, error) {
	if strings.TrimSpace(storeID) == "" {
		return nil, 0, fmt.Errorf("%w: storeId is required", ErrValidation)
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.jobs.ListByStore(ctx, storeID, limit, offset)
}

// ListJobsForStore is ListJobs for a caller that must own the store.
func (s *DispatchService) ListJobsForStore(ctx context.Context, identity *access.Identity, storeID string, limit, offset int) ([]domain.BulkJob, int64, error) {
	if _, err := s.authorizeStore(ctx, identity, storeID); err != nil {
		return nil, 0, err
	}
	return s.ListJobs(ctx, storeID, limit, offset)
}

// CancelJob moves an active job to cancelled. An in-flight page may still
// finish generating, but its commit is rejected and nothing more is scheduled.
// Returns:
//   - *domain.BulkJob: the cancelled job.
//   - error: domain.ErrJobNotFound, or domain.ErrJobTerminal if it already finished.
func (s *DispatchService) CancelJob(ctx context.Context, id string) (*domain.BulkJob, error) {
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status.IsTerminal() {
		return nil, domain.ErrJobTerminal
	}

	ctx = logger.WithJob(ctx, job.ID, job.StoreID)
	ok, err := s.jobs.Cancel(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrJobTerminal
	}

	logger.CtxInfo(ctx, "Bulk job cancelled")
	if finished := s.recorder.record(ctx, id); finished != nil {
		return finished, nil
	}
	job.Status = domain.JobStatusCancelled
	return job, nil
}

// Recover re-enqueues every pending or running job. Safe to run on every
// startup: duplicate messages for a job are absorbed by the driver.
// Returns:
//   - int: number of jobs re-enqueued.
//   - error: non-nil if listing fails.
func (s *DispatchService) Recover(ctx context.Context) (int, error) {
	jobs, err := s.jobs.ListUnfinished(ctx, recoverBatch)
	if err != nil {
		return 0, err
	}

	enqueued := 0
	for _, job := range jobs {
		if err := s.queue.Enqueue(ctx, queue.Message{JobID: job.ID}); err != nil {
			s.logger.WithError(err).WithField(logger.FieldJobID, job.ID).Warn("Failed to re-enqueue job")
			continue
		}
		enqueued++
	}

	if len(jobs) == recoverBatch {
		s.logger.Warnf("Recovery hit the batch limit of %d jobs; remaining jobs wait for the next start", recoverBatch)
	}
	s.logger.WithField(logger.FieldCount, enqueued).Info("Recovered unfinished jobs")
	return enqueued, nil
}

func validateCreate(in CreateJobInput) error {
	var missing []string
	if strings.TrimSpace(in.StoreID) == "" {
		missing = append(missing, "storeId")
	}
	if strings.TrimSpace(in.ShopDomain) == "" {
		missing = append(missing, "shopDomain")
	}
	if strings.TrimSpace(in.AccessToken) == "" {
		missing = append(missing, "accessToken")
	}
	if err := validateStructure(in.Structure); err != nil {
		missing = append(missing, "structure")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing or invalid %s", ErrValidation, strings.Join(missing, ", "))
	}
	if err := in.Selection.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

func validateStructure(raw json.RawMessage) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return errors.New("structure is required")
	}
	if !json.Valid(trimmed) {
		return errors.New("structure must be valid JSON")
	}
	return nil
}

func normalizePrompt(p *string) *string {
	if p == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*p)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
