package middleware

import (
	"net/http"

	"github.com/getmentor/consultations-api/pkg/jwt"
	"github.com/getmentor/consultations-api/pkg/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// InternalTokenHeader carries the service-to-service API token
const InternalTokenHeader = "x-consultations-api-token"

// InternalAPIAuthMiddleware admits only callers presenting the service API token
func InternalAPIAuthMiddleware(validToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader(InternalTokenHeader)

		if token == "" {
			logger.Warn("Missing internal API token",
				zap.String("path", c.Request.URL.Path),
				zap.String("client_ip", c.ClientIP()),
			)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing authentication token"})
			c.Abort()
			return
		}

		if validToken == "" || !jwt.TimingSafeCompare(token, validToken) {
			logger.Warn("Invalid internal API token",
				zap.String("path", c.Request.URL.Path),
				zap.String("client_ip", c.ClientIP()),
			)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
			c.Abort()
			return
		}

		c.Next()
	}
}
