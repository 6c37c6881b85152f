package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/bulkgen/internal/access"
	"github.com/timmy/bulkgen/internal/api/middleware"
	"github.com/timmy/bulkgen/internal/catalog"
	"github.com/timmy/bulkgen/internal/domain"
	"github.com/timmy/bulkgen/internal/generation"
	"github.com/timmy/bulkgen/internal/service"
)

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	var fetchErr *catalog.FetchError
	var invokeErr *generation.InvokeError

	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrStoreInactive):
		return http.StatusBadRequest
	case errors.Is(err, access.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrJobNotFound), errors.Is(err, domain.ErrStoreNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrJobTerminal):
		return http.StatusConflict
	case errors.As(err, &fetchErr), errors.As(err, &invokeErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes {error} with the mapped status. Internal errors are
// logged in full and reported generically.
func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	switch status {
	case http.StatusInternalServerError:
		middleware.GetLogger(c).WithError(err).Error("Request failed")
		c.JSON(status, gin.H{"error": "Internal server error"})
	case http.StatusUnauthorized:
		c.JSON(status, gin.H{"error": "Unauthorized"})
	default:
		c.JSON(status, gin.H{"error": err.Error()})
	}
}
