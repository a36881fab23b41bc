package server

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// IngestAuthMiddleware enforces the shared report-submission token when one
// is configured. An empty token leaves the channel open, matching the trusted
// internal deployments this dashboard usually runs in.
func (s *Server) IngestAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		expected := s.config.Auth.IngestToken
		if expected == "" {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is required"})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header format must be Bearer {token}"})
			c.Abort()
			return
		}

		if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(expected)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid ingest token"})
			c.Abort()
			return
		}

		c.Next()
	}
}
