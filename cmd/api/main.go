package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/timmy/bulkgen/internal/api"
	"github.com/timmy/bulkgen/internal/api/middleware"
	"github.com/timmy/bulkgen/internal/app"
	"github.com/timmy/bulkgen/internal/config"
	"github.com/timmy/bulkgen/internal/logger"
	"github.com/timmy/bulkgen/internal/metrics"
)

func main() {
	appLogger := logger.NewFromEnv(logger.LoadFromEnv("bulkgen-api"))
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Support CONFIG_PATH environment variable for production deployments
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}
	if err := cfg.RequireWorkerSecret(); err != nil {
		appLogger.WithError(err).Fatal("Invalid config")
	}

	if cfg.Metrics.Enabled {
		metrics.MustRegister()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	application, err := app.New(ctx, cfg, appLogger)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize application")
	}
	defer application.Close()

	// Consumers run in-process next to the HTTP server
	application.Start(ctx, cfg.Worker.Recover)

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	router := api.SetupRouter(api.RouterConfig{
		Mode:         cfg.Server.Mode,
		WorkerSecret: cfg.Worker.Secret,
		CORS: middleware.CORSConfig{
			AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
			AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
		},
		MetricsPath:  metricsPath,
		QueueBackend: application.Queue.Backend(),
		Logger:       appLogger,
	}, application.Dispatch, application.Sessions, application.Supervisor)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server forced to shutdown")
	}

	// Stop consumers; in-flight pages abort without failing their jobs
	cancel()
	application.Wait()

	appLogger.Info("Server exited")
}
