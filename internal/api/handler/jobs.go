package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/timmy/bulkgen/internal/access"
	"github.com/timmy/bulkgen/internal/api/middleware"
	"github.com/timmy/bulkgen/internal/domain"
	"github.com/timmy/bulkgen/internal/logger"
	"github.com/timmy/bulkgen/internal/service"
)

// JobService is the dispatch boundary the job endpoints call into.
type JobService interface {
	CreateJob(ctx context.Context, in service.CreateJobInput) (string, error)
	CreateJobForStore(ctx context.Context, identity *access.Identity, in service.CreateForStoreInput) (string, error)
	GetJob(ctx context.Context, id string) (*domain.BulkJob, error)
	ListJobsForStore(ctx context.Context, identity *access.Identity, storeID string, limit, offset int) ([]domain.BulkJob, int64, error)
	CancelJob(ctx context.Context, id string) (*domain.BulkJob, error)
	BulkGenerate(ctx context.Context, identity *access.Identity, in service.BulkGenerateInput) (*service.BulkGenerateResult, error)
}

// JobHandler handles bulk job endpoints.
type JobHandler struct {
	jobs JobService
}

// NewJobHandler creates a new job handler.
// Parameters:
//   - jobs: dispatch service.
//
// Returns:
//   - *JobHandler: initialized handler.
func NewJobHandler(jobs JobService) *JobHandler {
	return &JobHandler{jobs: jobs}
}

// CreateJobResponse is returned by both create endpoints.
type CreateJobResponse struct {
	JobID string `json:"jobId"`
}

// GetJobResponse wraps a single job.
type GetJobResponse struct {
	Job *domain.BulkJob `json:"job"`
}

// ListJobsResponse is a page of a store's jobs.
type ListJobsResponse struct {
	Jobs   []domain.BulkJob `json:"jobs"`
	Total  int64            `json:"total"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

// CreateJob handles POST /jobs/create (worker secret).
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req service.CreateJobInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	ctx := logger.SetStoreID(c.Request.Context(), req.StoreID)
	id, err := h.jobs.CreateJob(ctx, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, CreateJobResponse{JobID: id})
}

// GetJob handles GET /jobs/:id (worker secret).
func (h *JobHandler) GetJob(c *gin.Context) {
	job, err := h.jobs.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, GetJobResponse{Job: job})
}

// CancelJob handles POST /jobs/:id/cancel (worker secret).
func (h *JobHandler) CancelJob(c *gin.Context) {
	ctx := logger.SetJobID(c.Request.Context(), c.Param("id"))
	job, err := h.jobs.CancelJob(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// CreateStoreJob handles POST /api/bulk-jobs (session token).
func (h *JobHandler) CreateStoreJob(c *gin.Context) {
	var req service.CreateForStoreInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	ctx := logger.SetStoreID(c.Request.Context(), req.StoreID)
	id, err := h.jobs.CreateJobForStore(ctx, middleware.IdentityFrom(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, CreateJobResponse{JobID: id})
}

// ListStoreJobs handles GET /api/bulk-jobs?storeId=&limit=&offset= (session token).
func (h *JobHandler) ListStoreJobs(c *gin.Context) {
	storeID := c.Query("storeId")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	jobs, total, err := h.jobs.ListJobsForStore(c.Request.Context(), middleware.IdentityFrom(c), storeID, limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	if jobs == nil {
		jobs = []domain.BulkJob{}
	}
	c.JSON(http.StatusOK, ListJobsResponse{Jobs: jobs, Total: total, Limit: limit, Offset: offset})
}

// BulkGenerate handles POST /api/bulk-generate (session token).
func (h *JobHandler) BulkGenerate(c *gin.Context) {
	var req service.BulkGenerateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	ctx := logger.SetStoreID(c.Request.Context(), req.StoreID)
	result, err := h.jobs.BulkGenerate(ctx, middleware.IdentityFrom(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
