package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/getmentor/consultations-api/internal/repository"
	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	store repository.Pinger
}

// NewHealthHandler creates a health handler. store may be nil for the in-memory backend.
func NewHealthHandler(store repository.Pinger) *HealthHandler {
	return &HealthHandler{
		store: store,
	}
}

func (h *HealthHandler) Healthcheck(c *gin.Context) {
	c.Header("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")

	if h.store != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := h.store.Ping(ctx); err != nil {
			attachError(c, err)
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unavailable",
				"reason": "database unreachable",
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}
