package queue

import (
	"context"
	"errors"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// ErrQueueFull is returned by Enqueue when a bounded queue has no room.
var ErrQueueFull = errors.New("queue full")

// Message is the only payload a job message carries; all other state lives on the job row.
type Message struct {
	JobID string `json:"jobId"`
}

// Handler processes one delivery. A nil return acknowledges the message;
// an error leaves it for redelivery.
type Handler func(ctx context.Context, msg Message) error

// Queue is an at-least-once work queue.
type Queue interface {
	// Enqueue publishes msg.
	Enqueue(ctx context.Context, msg Message) error
	// Consume runs handler on deliveries until ctx is cancelled.
	Consume(ctx context.Context, handler Handler) error
	// Backend names the implementation for logs and metrics.
	Backend() string
}
