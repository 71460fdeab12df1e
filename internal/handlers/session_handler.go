package handlers

import (
	"net/http"

	"github.com/getmentor/consultations-api/internal/models"
	"github.com/getmentor/consultations-api/internal/services"
	"github.com/gin-gonic/gin"
)

// SessionHandler mints actor sessions for the trusted platform in front of this API
type SessionHandler struct {
	service services.SessionServiceInterface
}

// NewSessionHandler creates a new SessionHandler
func NewSessionHandler(service services.SessionServiceInterface) *SessionHandler {
	return &SessionHandler{service: service}
}

// IssueSession handles POST /api/v1/internal/sessions
func (h *SessionHandler) IssueSession(c *gin.Context) {
	var payload models.IssueSessionPayload
	if !bindJSON(c, &payload) {
		return
	}

	response, err := h.service.IssueSession(&payload)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Failed to issue session", err)
		return
	}

	c.JSON(http.StatusCreated, response)
}
