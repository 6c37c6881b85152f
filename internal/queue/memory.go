package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/timmy/bulkgen/internal/logger"
	"github.com/timmy/bulkgen/internal/metrics"
)

// MemoryQueue is an in-process queue backed by a buffered channel.
// Messages do not survive a restart; startup recovery re-enqueues unfinished jobs.
type MemoryQueue struct {
	jobs        chan Message
	concurrency int
	retryDelay  time.Duration
	logger      *logger.Logger
}

// MemoryConfig holds configuration for the in-process queue.
type MemoryConfig struct {
	Size        int
	Concurrency int
	RetryDelay  time.Duration // Delay before a failed delivery is retried
}

// NewMemoryQueue creates a new in-process queue.
func NewMemoryQueue(cfg MemoryConfig, log *logger.Logger) *MemoryQueue {
	if cfg.Size <= 0 {
		cfg.Size = 1000
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &MemoryQueue{
		jobs:        make(chan Message, cfg.Size),
		concurrency: cfg.Concurrency,
		retryDelay:  cfg.RetryDelay,
		logger:      log.WithField(logger.FieldQueue, BackendMemory),
	}
}

// Backend returns "memory".
func (q *MemoryQueue) Backend() string { return BackendMemory }

// Enqueue adds a message. Returns ErrQueueFull if the buffer is full.
func (q *MemoryQueue) Enqueue(ctx context.Context, msg Message) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case q.jobs <- msg:
		return nil
	default:
		metrics.IncEnqueueError(BackendMemory)
		return fmt.Errorf("%w: cannot enqueue job %s", ErrQueueFull, msg.JobID)
	}
}

// Len returns the number of buffered messages.
func (q *MemoryQueue) Len() int { return len(q.jobs) }

// RetryDelay returns how long a failed delivery waits before it is retried.
func (q *MemoryQueue) RetryDelay() time.Duration { return q.retryDelay }

// Consume launches the configured number of workers and blocks until ctx is
// cancelled and every in-flight delivery has returned.
func (q *MemoryQueue) Consume(ctx context.Context, handler Handler) error {
	var wg sync.WaitGroup
	for i := 0; i < q.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.runWorker(ctx, handler)
		}()
	}
	wg.Wait()
	return nil
}

func (q *MemoryQueue) runWorker(ctx context.Context, handler Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-q.jobs:
			q.deliver(ctx, handler, msg)
		}
	}
}

func (q *MemoryQueue) deliver(ctx context.Context, handler Handler, msg Message) {
	if err := handler(ctx, msg); err != nil {
		metrics.IncQueueDelivery(BackendMemory, "retried")
		q.logger.WithError(err).WithField(logger.FieldJobID, msg.JobID).
			Warnf("Delivery failed, retrying in %s", q.retryDelay)
		time.AfterFunc(q.retryDelay, func() {
			if ctx.Err() != nil {
				return
			}
			if err := q.Enqueue(context.Background(), msg); err != nil {
				q.logger.WithError(err).WithField(logger.FieldJobID, msg.JobID).
					Error("Dropped message after failed delivery")
			}
		})
		return
	}
	metrics.IncQueueDelivery(BackendMemory, "acked")
}
