package handlers

import (
	"net/http"

	"github.com/getmentor/consultations-api/internal/middleware"
	"github.com/getmentor/consultations-api/internal/models"
	"github.com/gin-gonic/gin"
)

// actorSession returns the caller's session, writing a 401 when there is none
func actorSession(c *gin.Context) (*models.ActorSession, bool) {
	session, err := middleware.GetActorSession(c)
	if err != nil {
		respondError(c, http.StatusUnauthorized, "Unauthorized", err)
		return nil, false
	}
	return session, true
}
