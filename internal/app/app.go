// Package app wires the runner's components from configuration. Both the
// API server and the standalone worker build on it.
package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/timmy/bulkgen/internal/access"
	"github.com/timmy/bulkgen/internal/catalog"
	"github.com/timmy/bulkgen/internal/config"
	"github.com/timmy/bulkgen/internal/generation"
	"github.com/timmy/bulkgen/internal/logger"
	"github.com/timmy/bulkgen/internal/queue"
	"github.com/timmy/bulkgen/internal/repository"
	"github.com/timmy/bulkgen/internal/service"
	"github.com/timmy/bulkgen/internal/storage"
	"gorm.io/gorm"
)

// App holds the wired components of one process.
type App struct {
	Config     *config.Config
	DB         *gorm.DB
	Supervisor *repository.Supervisor
	Jobs       *repository.BulkJobRepository
	Stores     *repository.StoreRepository
	Queue      queue.Queue
	Driver     *service.BulkJobDriver
	Dispatch   *service.DispatchService
	Sessions   *access.SessionVerifier

	logger  *logger.Logger
	redis   *redis.Client
	wg      sync.WaitGroup
	closeMu sync.Once
}

// New connects the database and queue and builds the services.
// Parameters:
//   - ctx: context bounding the startup connections.
//   - cfg: validated configuration.
//   - log: base logger; nil uses the default.
//
// Returns:
//   - *App: wired application; call Close when done.
//   - error: non-nil if a dependency cannot be reached.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	if log == nil {
		log = logger.GetDefault()
	}
	a := &App{Config: cfg, logger: log}

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a.DB = db

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB instance: %w", err)
	}
	a.Supervisor = repository.NewSupervisor(sqlDB, repository.SupervisorConfig{
		Interval: cfg.Database.PingInterval,
	}, log)

	a.Jobs = repository.NewBulkJobRepository(db)
	a.Stores = repository.NewStoreRepository(db)

	if err := a.initQueue(ctx); err != nil {
		a.Close()
		return nil, err
	}

	archiver, err := newArchiver(ctx, &cfg.Archive)
	if err != nil {
		a.Close()
		return nil, err
	}

	fetcher := catalog.NewShopifyFetcher(&catalog.FetcherConfig{
		APIVersion: cfg.Shopify.APIVersion,
		Timeout:    cfg.Shopify.Timeout,
		RateLimit:  cfg.Shopify.RateLimit,
		RateBurst:  cfg.Shopify.RateBurst,
	})
	invoker := generation.NewInvoker(&generation.InvokerConfig{
		BaseURL:      cfg.Generation.BaseURL,
		Timeout:      cfg.Generation.Timeout,
		WorkerSecret: cfg.Worker.Secret,
	})

	a.Driver = service.NewBulkJobDriver(a.Jobs, fetcher, invoker, a.Queue, archiver, log)
	a.Dispatch = service.NewDispatchService(a.Jobs, a.Stores, a.Queue, fetcher, invoker, archiver, log)
	a.Sessions = access.NewSessionVerifier(cfg.Shopify.APIKey, cfg.Shopify.APISecret)

	log.WithFields(logger.Fields{
		logger.FieldQueue: a.Queue.Backend(),
		"archive":         cfg.Archive.Enabled,
	}).Info("Application initialized")
	return a, nil
}

func (a *App) initQueue(ctx context.Context) error {
	qc := a.Config.Queue
	switch qc.Backend {
	case queue.BackendRedis:
		cli, err := queue.NewRedisClient(ctx, qc.RedisAddr, qc.RedisPassword, qc.RedisDB)
		if err != nil {
			return err
		}
		a.redis = cli
		a.Queue = queue.NewRedisQueue(cli, queue.RedisConfig{
			Key:               qc.RedisKey,
			Concurrency:       qc.Concurrency,
			VisibilityTimeout: qc.VisibilityTimeout,
		}, a.logger)
	default:
		a.Queue = queue.NewMemoryQueue(queue.MemoryConfig{
			Size:        qc.Size,
			Concurrency: qc.Concurrency,
			RetryDelay:  qc.RetryDelay,
		}, a.logger)
	}
	return nil
}

// newArchiver returns nil when archiving is disabled. The result is typed as
// the interface so a disabled archiver stays a nil interface.
func newArchiver(ctx context.Context, cfg *config.ArchiveConfig) (service.Archiver, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	store, err := storage.NewStorage(&storage.S3Config{
		Type:      storage.StorageType(cfg.Type),
		Endpoint:  cfg.Endpoint,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		UseSSL:    cfg.UseSSL,
		Bucket:    cfg.Bucket,
		Region:    cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize archive storage: %w", err)
	}
	if err := store.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure archive bucket: %w", err)
	}
	return storage.NewJobArchiver(store, cfg.Prefix), nil
}

// Start launches the database supervisor and the queue consumers. When
// recoverJobs is set, unfinished jobs are re-enqueued first.
// Background goroutines stop when ctx is cancelled; Wait blocks until they do.
func (a *App) Start(ctx context.Context, recoverJobs bool) {
	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		a.Supervisor.Run(ctx)
	}()
	go func() {
		defer a.wg.Done()
		if err := a.Queue.Consume(ctx, a.Driver.Handle); err != nil {
			a.logger.WithError(err).Error("Queue consumer stopped")
		}
	}()

	if recoverJobs {
		if _, err := a.Dispatch.Recover(ctx); err != nil {
			a.logger.WithError(err).Error("Failed to recover unfinished jobs")
		}
	}
}

// Wait blocks until the goroutines started by Start have returned.
func (a *App) Wait() {
	a.wg.Wait()
}

// Close releases the queue and database connections.
func (a *App) Close() {
	a.closeMu.Do(func() {
		if a.redis != nil {
			if err := a.redis.Close(); err != nil {
				a.logger.WithError(err).Warn("Failed to close redis client")
			}
		}
		if a.DB != nil {
			if sqlDB, err := a.DB.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
	})
}
