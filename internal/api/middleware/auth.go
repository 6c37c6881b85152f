package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/bulkgen/internal/access"
	"github.com/timmy/bulkgen/internal/logger"
)

const (
	// WorkerSecretHeader authenticates trusted internal callers.
	WorkerSecretHeader = "x-worker-secret"

	identityKey = "identity"
)

// SessionVerifier validates embedded-app session tokens.
type SessionVerifier interface {
	Verify(token string) (*access.Identity, error)
}

// WorkerSecret rejects requests whose x-worker-secret header does not match secret.
// An empty secret rejects everything.
func WorkerSecret(secret string) gin.HandlerFunc {
	expected := []byte(secret)
	return func(c *gin.Context) {
		got := []byte(c.GetHeader(WorkerSecretHeader))
		if len(expected) == 0 || subtle.ConstantTimeCompare(got, expected) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}

// SessionAuth verifies the bearer session token and stores the caller identity.
func SessionAuth(verifier SessionVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := access.BearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		identity, err := verifier.Verify(token)
		if err != nil {
			GetLogger(c).WithError(err).Debug("Rejected session token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		c.Set(identityKey, identity)
		c.Request = c.Request.WithContext(logger.WithField(c.Request.Context(), logger.FieldShop, identity.Shop))
		c.Next()
	}
}

// IdentityFrom returns the identity stored by SessionAuth, or nil.
func IdentityFrom(c *gin.Context) *access.Identity {
	if v, ok := c.Get(identityKey); ok {
		if id, ok := v.(*access.Identity); ok {
			return id
		}
	}
	return nil
}
