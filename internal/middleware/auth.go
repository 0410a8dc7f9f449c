package middleware

import (
	"crypto/subtle"
	"net/http"
	"time"

	"rankshop-api/internal/config"
	"rankshop-api/internal/response"

	"github.com/gin-gonic/gin"
)

// AdminAuthMiddleware guards the admin diagnostic and reset endpoints
func AdminAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Get admin key
		apiKey := c.GetHeader("X-Admin-Key")

		// If not passed via header, try to get from query parameters
		if apiKey == "" {
			apiKey = c.Query("admin_key")
		}

		configured := config.AppConfig.AdminAPIKey
		if configured == "" {
			c.JSON(http.StatusUnauthorized, response.Error("Admin API not configured"))
			c.Abort()
			return
		}

		if apiKey == "" || subtle.ConstantTimeCompare([]byte(apiKey), []byte(configured)) != 1 {
			c.JSON(http.StatusUnauthorized, response.Error("Invalid admin key"))
			c.Abort()
			return
		}

		c.Set("request_time", time.Now())
		c.Next()
	}
}
