package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imyashkale/previewserver/internal/logger"
	"github.com/imyashkale/previewserver/internal/services"
)

// APIKeyContextKey is where the authenticated key is stored in the gin context
const APIKeyContextKey = "api_key"

// APIKeyAuth returns a middleware that extracts the caller's platform API
// key and validates it against the deployment platform through the cached
// validator. The key travels with the request so downstream platform calls
// act on the caller's behalf.
func APIKeyAuth(auth *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := extractAPIKey(c)
		if apiKey == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "missing_api_key",
				"message": "Provide the platform API key via the x-api-key header or as the basic auth password",
			})
			c.Abort()
			return
		}

		if err := auth.Validate(c.Request.Context(), apiKey); err != nil {
			if errors.Is(err, services.ErrInvalidAPIKey) {
				c.JSON(http.StatusUnauthorized, gin.H{
					"error":   "invalid_api_key",
					"message": "The platform rejected the provided API key",
				})
				c.Abort()
				return
			}
			logger.WithField("error", err.Error()).Warn("API key validation unavailable")
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":   "validation_unavailable",
				"message": "Could not reach the deployment platform to validate the API key",
			})
			c.Abort()
			return
		}

		c.Set(APIKeyContextKey, apiKey)
		c.Next()
	}
}

// extractAPIKey reads the key from the x-api-key header, falling back to the
// basic auth password with any username
func extractAPIKey(c *gin.Context) string {
	if key := c.GetHeader("x-api-key"); key != "" {
		return key
	}
	if _, password, ok := c.Request.BasicAuth(); ok {
		return password
	}
	return ""
}

// APIKey returns the authenticated key stored by APIKeyAuth
func APIKey(c *gin.Context) string {
	key, _ := c.Get(APIKeyContextKey)
	s, _ := key.(string)
	return s
}
