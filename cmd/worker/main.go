package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/timmy/bulkgen/internal/app"
	"github.com/timmy/bulkgen/internal/config"
	"github.com/timmy/bulkgen/internal/logger"
	"github.com/timmy/bulkgen/internal/metrics"
	"github.com/timmy/bulkgen/internal/queue"
)

func main() {
	appLogger := logger.NewFromEnv(logger.LoadFromEnv("bulkgen-worker"))
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Parse command line flags
	configPath := flag.String("config", "", "Path to config file")
	recoverJobs := flag.Bool("recover", false, "Re-enqueue unfinished jobs before consuming (overrides worker.recover when set)")
	jobID := flag.String("job", "", "Enqueue this job id once before consuming")
	metricsAddr := flag.String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	// A memory queue in a process without the API has no producer
	if cfg.Queue.Backend != queue.BackendRedis && *jobID == "" && !*recoverJobs && !cfg.Worker.Recover {
		appLogger.Warn("Memory queue without -job or recovery has nothing to consume")
	}

	recoverOnStart := cfg.Worker.Recover
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "recover" {
			recoverOnStart = *recoverJobs
		}
	})

	appLogger.WithFields(logger.Fields{
		logger.FieldQueue: cfg.Queue.Backend,
		"concurrency":     cfg.Queue.Concurrency,
		"recover":         recoverOnStart,
		logger.FieldJobID: *jobID,
	}).Info("Starting worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	application, err := app.New(ctx, cfg, appLogger)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize application")
	}
	defer application.Close()

	var metricsSrv *http.Server
	if *metricsAddr != "" {
		metrics.MustRegister()
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, promhttp.Handler())
		metricsSrv = &http.Server{Addr: *metricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				appLogger.WithError(err).Error("Metrics server stopped")
			}
		}()
	}

	if *jobID != "" {
		if err := application.Queue.Enqueue(ctx, queue.Message{JobID: *jobID}); err != nil {
			appLogger.WithError(err).WithField(logger.FieldJobID, *jobID).Fatal("Failed to enqueue job")
		}
	}

	application.Start(ctx, recoverOnStart)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	appLogger.Info("Received shutdown signal, draining consumers...")
	cancel()
	application.Wait()

	if metricsSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}

	appLogger.Info("Worker exited")
}

