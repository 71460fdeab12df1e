package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/getmentor/consultations-api/internal/models"
	"github.com/getmentor/consultations-api/pkg/jwt"
	"github.com/gin-gonic/gin"
)

// ActorSessionContextKey is the key used to store the session in the gin context
const ActorSessionContextKey = "actor_session"

var (
	ErrSessionNotFound = errors.New("session not found in context")
	ErrInvalidSession  = errors.New("invalid session type")
)

// ActorSessionMiddleware validates the bearer token and adds the actor session to context
func ActorSessionMiddleware(tokenManager *jwt.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || strings.TrimSpace(token) == "" {
			_ = c.Error(fmt.Errorf("missing bearer token")) //nolint:errcheck
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			c.Abort()
			return
		}

		claims, err := tokenManager.ValidateToken(strings.TrimSpace(token))
		if err != nil {
			_ = c.Error(fmt.Errorf("invalid session token: %w", err)) //nolint:errcheck

			if errors.Is(err, jwt.ErrExpiredToken) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Session expired"})
			} else {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			}
			c.Abort()
			return
		}

		session := &models.ActorSession{
			ActorID:   claims.ActorID,
			Role:      models.ActorRole(claims.Role),
			Name:      claims.Name,
			ExpiresAt: claims.ExpiresAt.Unix(),
			IssuedAt:  claims.IssuedAt.Unix(),
		}

		c.Set(ActorSessionContextKey, session)
		c.Next()
	}
}

// GetActorSession extracts the session from context
func GetActorSession(c *gin.Context) (*models.ActorSession, error) {
	val, exists := c.Get(ActorSessionContextKey)
	if !exists {
		return nil, ErrSessionNotFound
	}

	session, ok := val.(*models.ActorSession)
	if !ok {
		return nil, ErrInvalidSession
	}

	return session, nil
}
