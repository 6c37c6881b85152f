package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/timmy/bulkgen/internal/logger"
	"github.com/timmy/bulkgen/internal/metrics"
)

// RedisQueue is a reliable list queue: deliveries move atomically from the
// pending list to a processing list and stay there until acknowledged.
// Deliveries left unacknowledged past the visibility timeout are reclaimed.
type RedisQueue struct {
	cli         *redis.Client
	pendingKey  string
	inflightKey string // list of delivered, unacknowledged payloads
	deadlineKey string // zset payload -> receive time in unix ms
	concurrency int
	visibility  time.Duration
	pollTimeout time.Duration
	logger      *logger.Logger
	now         func() time.Time
}

// RedisConfig holds configuration for the Redis queue.
type RedisConfig struct {
	Key               string
	Concurrency       int
	VisibilityTimeout time.Duration
	PollTimeout       time.Duration // BRPOPLPUSH block time; bounds shutdown latency
}

// reclaimScript moves expired payloads back to the pending list. In-flight
// payloads without a receive time (consumer died right after the pop) are
// stamped with now so the next pass can reclaim them.
// KEYS: pending, inflight, deadlines. ARGV: cutoff, now (unix ms).
var reclaimScript = redis.NewScript(`
for _, payload in ipairs(redis.call("LRANGE", KEYS[2], 0, -1)) do
	if not redis.call("ZSCORE", KEYS[3], payload) then
		redis.call("ZADD", KEYS[3], ARGV[2], payload)
	end
end
local expired = redis.call("ZRANGEBYSCORE", KEYS[3], "-inf", ARGV[1])
local moved = 0
for _, payload in ipairs(expired) do
	local removed = redis.call("LREM", KEYS[2], 1, payload)
	if removed > 0 then
		redis.call("RPUSH", KEYS[1], payload)
		moved = moved + 1
	end
	redis.call("ZREM", KEYS[3], payload)
end
return moved`)

// NewRedisQueue creates a queue on top of an existing client.
func NewRedisQueue(cli *redis.Client, cfg RedisConfig, log *logger.Logger) *RedisQueue {
	if cfg.Key == "" {
		cfg.Key = "bulkgen:jobs"
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.VisibilityTimeout <= 0 {
		cfg.VisibilityTimeout = 5 * time.Minute
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = time.Second
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &RedisQueue{
		cli:         cli,
		pendingKey:  cfg.Key,
		inflightKey: cfg.Key + ":processing",
		deadlineKey: cfg.Key + ":received",
		concurrency: cfg.Concurrency,
		visibility:  cfg.VisibilityTimeout,
		pollTimeout: cfg.PollTimeout,
		logger:      log.WithField(logger.FieldQueue, BackendRedis),
		now:         time.Now,
	}
}

// NewRedisClient connects to Redis and verifies the connection.
// Parameters:
//   - ctx: context for the initial ping.
//   - addr: host:port of the server.
//   - password: optional password.
//   - db: database index.
//
// Returns:
//   - *redis.Client: connected client.
//   - error: non-nil if the ping fails.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	c := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return c, nil
}

// Backend returns "redis".
func (q *RedisQueue) Backend() string { return BackendRedis }

// Enqueue pushes a message onto the pending list.
func (q *RedisQueue) Enqueue(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	if err := q.cli.LPush(ctx, q.pendingKey, payload).Err(); err != nil {
		metrics.IncEnqueueError(BackendRedis)
		return fmt.Errorf("failed to enqueue job %s: %w", msg.JobID, err)
	}
	return nil
}

// Consume runs workers plus a reclaimer until ctx is cancelled.
func (q *RedisQueue) Consume(ctx context.Context, handler Handler) error {
	var wg sync.WaitGroup
	for i := 0; i < q.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.runWorker(ctx, handler)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		q.runReclaimer(ctx)
	}()

	wg.Wait()
	return nil
}

func (q *RedisQueue) runWorker(ctx context.Context, handler Handler) {
	for ctx.Err() == nil {
		payload, err := q.receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			q.logger.WithError(err).Warn("Failed to receive message")
			sleep(ctx, q.pollTimeout)
			continue
		}
		if payload == "" {
			continue
		}
		q.deliver(ctx, handler, payload)
	}
}

// receive blocks up to pollTimeout for one payload. An empty payload means none arrived.
func (q *RedisQueue) receive(ctx context.Context) (string, error) {
	payload, err := q.cli.BRPopLPush(ctx, q.pendingKey, q.inflightKey, q.pollTimeout).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if err := q.cli.ZAdd(ctx, q.deadlineKey, &redis.Z{Score: float64(q.now().UnixMilli()), Member: payload}).Err(); err != nil {
		q.logger.WithError(err).Warn("Failed to record receive time")
	}
	return payload, nil
}

func (q *RedisQueue) deliver(ctx context.Context, handler Handler, payload string) {
	var msg Message
	if err := json.Unmarshal([]byte(payload), &msg); err != nil || msg.JobID == "" {
		q.logger.WithField("payload", payload).Warn("Dropping malformed message")
		metrics.IncQueueDelivery(BackendRedis, "dropped")
		q.ack(ctx, payload)
		return
	}

	if err := handler(ctx, msg); err != nil {
		// Left in the processing list; Reclaim redelivers it after the visibility timeout.
		metrics.IncQueueDelivery(BackendRedis, "retried")
		q.logger.WithError(err).WithField(logger.FieldJobID, msg.JobID).
			Warnf("Delivery failed, redelivering after %s", q.visibility)
		return
	}
	metrics.IncQueueDelivery(BackendRedis, "acked")
	q.ack(ctx, payload)
}

func (q *RedisQueue) ack(ctx context.Context, payload string) {
	// Ack must land even when shutdown cancelled the consumer context.
	ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	pipe := q.cli.TxPipeline()
	pipe.LRem(ackCtx, q.inflightKey, 1, payload)
	pipe.ZRem(ackCtx, q.deadlineKey, payload)
	if _, err := pipe.Exec(ackCtx); err != nil {
		q.logger.WithError(err).Warn("Failed to acknowledge message")
	}
}

// Reclaim moves deliveries older than the visibility timeout back to the pending list.
// Returns:
//   - int: number of messages moved.
//   - error: non-nil if the script fails.
func (q *RedisQueue) Reclaim(ctx context.Context) (int, error) {
	now := q.now()
	n, err := reclaimScript.Run(ctx, q.cli,
		[]string{q.pendingKey, q.inflightKey, q.deadlineKey},
		now.Add(-q.visibility).UnixMilli(), now.UnixMilli(),
	).Int()
	if err != nil {
		return 0, fmt.Errorf("failed to reclaim messages: %w", err)
	}
	if n > 0 {
		metrics.AddReclaimed(n)
	}
	return n, nil
}

func (q *RedisQueue) runReclaimer(ctx context.Context) {
	ticker := time.NewTicker(q.visibility / 2)
	defer ticker.Stop()

	for {
		if n, err := q.Reclaim(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			q.logger.WithError(err).Warn("Reclaim failed")
		} else if n > 0 {
			q.logger.WithField(logger.FieldCount, n).Info("Reclaimed unacknowledged messages")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Pending returns the number of messages waiting for delivery.
func (q *RedisQueue) Pending(ctx context.Context) (int64, error) {
	return q.cli.LLen(ctx, q.pendingKey).Result()
}

// InFlight returns the number of delivered, unacknowledged messages.
func (q *RedisQueue) InFlight(ctx context.Context) (int64, error) {
	return q.cli.LLen(ctx, q.inflightKey).Result()
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
