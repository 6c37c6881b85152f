package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/bulkgen/internal/repository"
)

// DatabaseStatus reports the database supervisor's latest view.
type DatabaseStatus interface {
	Status() repository.HealthStatus
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	db      DatabaseStatus
	backend string
}

// NewHealthHandler creates a new health handler.
// Parameters:
//   - db: database health source; nil reports the database as unchecked.
//   - queueBackend: name of the active queue backend.
//
// Returns:
//   - *HealthHandler: initialized handler.
func NewHealthHandler(db DatabaseStatus, queueBackend string) *HealthHandler {
	return &HealthHandler{db: db, backend: queueBackend}
}

// Health returns 200 while the database is reachable and 503 otherwise.
func (h *HealthHandler) Health(c *gin.Context) {
	body := gin.H{
		"status": "ok",
		"queue":  h.backend,
	}
	if h.db == nil {
		c.JSON(http.StatusOK, body)
		return
	}

	st := h.db.Status()
	body["database"] = st
	if !st.Healthy {
		body["status"] = "degraded"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	c.JSON(http.StatusOK, body)
}
