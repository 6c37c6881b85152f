package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/timmy/bulkgen/internal/api/handler"
	"github.com/timmy/bulkgen/internal/api/middleware"
	"github.com/timmy/bulkgen/internal/logger"
)

// RouterConfig holds everything the HTTP surface needs.
type RouterConfig struct {
	Mode         string // release, test or debug
	WorkerSecret string
	CORS         middleware.CORSConfig
	MetricsPath  string // empty disables /metrics
	QueueBackend string
	Logger       *logger.Logger
}

// SetupRouter configures the Gin router with all routes.
// Parameters:
//   - cfg: router settings.
//   - jobs: dispatch service behind the job endpoints.
//   - sessions: verifier for embedded-app session tokens.
//   - db: database health source for /health; may be nil.
//
// Returns:
//   - *gin.Engine: configured router.
func SetupRouter(
	cfg RouterConfig,
	jobs handler.JobService,
	sessions middleware.SessionVerifier,
	db handler.DatabaseStatus,
) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	log := cfg.Logger
	if log == nil {
		log = logger.GetDefault()
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORS(cfg.CORS))

	healthHandler := handler.NewHealthHandler(db, cfg.QueueBackend)
	jobHandler := handler.NewJobHandler(jobs)

	r.GET("/health", healthHandler.Health)
	if cfg.MetricsPath != "" {
		r.GET(cfg.MetricsPath, gin.WrapH(promhttp.Handler()))
	}

	// Trusted service-to-service endpoints
	worker := r.Group("/jobs", middleware.WorkerSecret(cfg.WorkerSecret))
	{
		worker.POST("/create", jobHandler.CreateJob)
		worker.GET("/:id", jobHandler.GetJob)
		worker.POST("/:id/cancel", jobHandler.CancelJob)
	}

	// Embedded admin app endpoints
	app := r.Group("/api", middleware.SessionAuth(sessions))
	{
		app.POST("/bulk-jobs", jobHandler.CreateStoreJob)
		app.GET("/bulk-jobs", jobHandler.ListStoreJobs)
		app.POST("/bulk-generate", jobHandler.BulkGenerate)
	}

	return r
}
