package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/getmentor/consultations-api/internal/models"
	"github.com/getmentor/consultations-api/pkg/jwt"
	"github.com/getmentor/consultations-api/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func init() {
	// Set Gin to test mode
	gin.SetMode(gin.TestMode)

	// Initialize logger for tests
	if err := logger.Initialize(logger.Config{Level: "error", Environment: "development"}); err != nil {
		panic(err)
	}
}

func TestInternalAPIAuthMiddleware(t *testing.T) {
	tests := []struct {
		name         string
		validToken   string
		header       string
		expectCalled bool
		expectStatus int
	}{
		{name: "valid token", validToken: "internal-secret", header: "internal-secret", expectCalled: true, expectStatus: http.StatusOK},
		{name: "wrong token", validToken: "internal-secret", header: "wrong", expectStatus: http.StatusUnauthorized},
		{name: "missing token", validToken: "internal-secret", header: "", expectStatus: http.StatusUnauthorized},
		{name: "nothing configured", validToken: "", header: "anything", expectStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			handlerCalled := false
			router.Use(InternalAPIAuthMiddleware(tt.validToken))
			router.POST("/test", func(c *gin.Context) {
				handlerCalled = true
				c.Status(http.StatusOK)
			})

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/test", nil)
			if tt.header != "" {
				req.Header.Set(InternalTokenHeader, tt.header)
			}
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectCalled, handlerCalled)
			assert.Equal(t, tt.expectStatus, w.Code)
		})
	}
}

func sessionRouter(tm *jwt.TokenManager, seen **models.ActorSession) *gin.Engine {
	router := gin.New()
	router.Use(ActorSessionMiddleware(tm))
	router.GET("/me", func(c *gin.Context) {
		session, err := GetActorSession(c)
		if err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		*seen = session
		c.Status(http.StatusOK)
	})
	return router
}

func TestActorSessionMiddleware_ValidToken(t *testing.T) {
	tm := jwt.NewTokenManager("secret", "consultations-api", 1)
	token, err := tm.GenerateToken("student-1", jwt.RoleStudent, "Alice")
	require.NoError(t, err)

	var seen *models.ActorSession
	router := sessionRouter(tm, &seen)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "student-1", seen.ActorID)
	assert.True(t, seen.IsStudent())
	assert.Equal(t, "Alice", seen.Name)
	assert.Greater(t, seen.ExpiresAt, seen.IssuedAt)
}

func TestActorSessionMiddleware_Rejects(t *testing.T) {
	tm := jwt.NewTokenManager("secret", "consultations-api", 1)
	foreign := jwt.NewTokenManager("other-secret", "consultations-api", 1)
	forged, err := foreign.GenerateToken("student-1", jwt.RoleStudent, "")
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{name: "no header", header: ""},
		{name: "not bearer", header: "Basic abc"},
		{name: "empty bearer", header: "Bearer  "},
		{name: "garbage", header: "Bearer not-a-jwt"},
		{name: "wrong signature", header: "Bearer " + forged},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen *models.ActorSession
			router := sessionRouter(tm, &seen)

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Nil(t, seen)
		})
	}
}

func TestGetActorSession_Missing(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	_, err := GetActorSession(c)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	c.Set(ActorSessionContextKey, "not a session")
	_, err = GetActorSession(c)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestRateLimiter_PerActor(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rl := NewRateLimiter(ctx, rate.Every(time.Hour), 2)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		if id := c.GetHeader("x-actor"); id != "" {
			c.Set(ActorSessionContextKey, &models.ActorSession{ActorID: id, Role: models.RoleStudent})
		}
		c.Next()
	})
	router.Use(rl.Middleware())
	router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	call := func(actor string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("x-actor", actor)
		router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, call("a"))
	assert.Equal(t, http.StatusOK, call("a"))
	assert.Equal(t, http.StatusTooManyRequests, call("a"))
	// Separate bucket
	assert.Equal(t, http.StatusOK, call("b"))
}

func TestBodySizeLimitMiddleware(t *testing.T) {
	router := gin.New()
	router.Use(BodySizeLimitMiddleware(16))
	router.POST("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(`{"a":1}`)))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(strings.Repeat("x", 64))))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	router := gin.New()
	router.Use(SecurityHeadersMiddleware())
	router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}
