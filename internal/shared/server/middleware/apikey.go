package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"lumen-backend/internal/shared/server/respond"
)

// APIKey validates the X-API-Key header against the configured key.
// An empty configured key disables the check.
func APIKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			c.Next()
			return
		}
		provided := c.GetHeader("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "Invalid or missing API key", nil)
			return
		}
		c.Next()
	}
}
