package service

import (
	"context"

	"github.com/timmy/bulkgen/internal/catalog"
	"github.com/timmy/bulkgen/internal/domain"
	"github.com/timmy/bulkgen/internal/generation"
	"github.com/timmy/bulkgen/internal/queue"
)

// JobStore persists bulk job rows. Implemented by repository.BulkJobRepository.
type JobStore interface {
	Create(ctx context.Context, job *domain.BulkJob) error
	GetByID(ctx context.Context, id string) (*domain.BulkJob, error)
	MarkRunning(ctx context.Context, id string) (bool, error)
	Advance(ctx context.Context, id string, from domain.Position, adv domain.JobAdvance) (bool, error)
	Fail(ctx context.Context, id string, message string) (bool, error)
	Cancel(ctx context.Context, id string) (bool, error)
	ListUnfinished(ctx context.Context, limit int) ([]domain.BulkJob, error)
	ListByStore(ctx context.Context, storeID string, limit, offset int) ([]domain.BulkJob, int64, error)
}

// StoreLookup resolves a tenant and its credentials. Implemented by repository.StoreRepository.
type StoreLookup interface {
	GetByID(ctx context.Context, id string) (*domain.Store, error)
}

// PageFetcher reads one catalog page. Implemented by catalog.ShopifyFetcher.
type PageFetcher interface {
	FetchPage(ctx context.Context, creds catalog.Credentials, sel domain.Selection, pos domain.Position, limit int) (*catalog.Page, error)
}

// GenerationInvoker submits one page for generation. Implemented by generation.Invoker.
type GenerationInvoker interface {
	Generate(ctx context.Context, req generation.Request) (*generation.Response, error)
}

// Enqueuer publishes job messages. Implemented by the queue backends.
type Enqueuer interface {
	Enqueue(ctx context.Context, msg queue.Message) error
}

// Archiver stores a snapshot of a finished job. Implemented by storage.JobArchiver.
type Archiver interface {
	Archive(ctx context.Context, job *domain.BulkJob) error
}
