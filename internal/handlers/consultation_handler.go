package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/getmentor/consultations-api/internal/models"
	"github.com/getmentor/consultations-api/internal/services"
	"github.com/gin-gonic/gin"
)

const maxListLimit = 200

// ConsultationHandler handles request and offer endpoints
type ConsultationHandler struct {
	service services.ConsultationServiceInterface
}

// NewConsultationHandler creates a new ConsultationHandler
func NewConsultationHandler(service services.ConsultationServiceInterface) *ConsultationHandler {
	return &ConsultationHandler{service: service}
}

// CreateRequest handles POST /api/v1/requests
func (h *ConsultationHandler) CreateRequest(c *gin.Context) {
	session, ok := actorSession(c)
	if !ok {
		return
	}

	var payload models.CreateRequestPayload
	if !bindJSON(c, &payload) {
		return
	}

	req, err := h.service.CreateRequest(c.Request.Context(), session, &payload)
	if err != nil {
		respondServiceError(c, err, "Failed to create request")
		return
	}

	c.JSON(http.StatusCreated, req)
}

// ListRequests handles GET /api/v1/requests?status=&studentId=&category=&limit=
func (h *ConsultationHandler) ListRequests(c *gin.Context) {
	filter := models.RequestFilter{
		Status:    models.RequestStatus(c.Query("status")),
		StudentID: c.Query("studentId"),
		Category:  c.Query("category"),
	}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxListLimit {
			respondError(c, http.StatusBadRequest, "limit must be between 1 and "+strconv.Itoa(maxListLimit), err)
			return
		}
		filter.Limit = limit
	}

	response, err := h.service.ListRequests(c.Request.Context(), filter)
	if err != nil {
		respondServiceError(c, err, "Failed to fetch requests")
		return
	}

	c.JSON(http.StatusOK, response)
}

// GetRequest handles GET /api/v1/requests/:id
func (h *ConsultationHandler) GetRequest(c *gin.Context) {
	response, err := h.service.GetRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, err, "Failed to fetch request")
		return
	}

	c.JSON(http.StatusOK, response)
}

// CancelRequest handles POST /api/v1/requests/:id/cancel
func (h *ConsultationHandler) CancelRequest(c *gin.Context) {
	h.requestTransition(c, h.service.CancelRequest, "Failed to cancel request")
}

// CloseRequest handles POST /api/v1/requests/:id/close
func (h *ConsultationHandler) CloseRequest(c *gin.Context) {
	h.requestTransition(c, h.service.CloseRequest, "Failed to close request")
}

func (h *ConsultationHandler) requestTransition(
	c *gin.Context,
	apply func(ctx context.Context, session *models.ActorSession, requestID string) (*models.ConsultationRequest, error),
	fallback string,
) {
	session, ok := actorSession(c)
	if !ok {
		return
	}

	req, err := apply(c.Request.Context(), session, c.Param("id"))
	if err != nil {
		respondServiceError(c, err, fallback)
		return
	}

	c.JSON(http.StatusOK, req)
}

// SubmitOffer handles POST /api/v1/requests/:id/offers
func (h *ConsultationHandler) SubmitOffer(c *gin.Context) {
	session, ok := actorSession(c)
	if !ok {
		return
	}

	var payload models.SubmitOfferPayload
	if !bindJSON(c, &payload) {
		return
	}

	offer, err := h.service.SubmitOffer(c.Request.Context(), session, c.Param("id"), &payload)
	if err != nil {
		respondServiceError(c, err, "Failed to submit offer")
		return
	}

	c.JSON(http.StatusCreated, offer)
}

// GetOffer handles GET /api/v1/offers/:id
func (h *ConsultationHandler) GetOffer(c *gin.Context) {
	offer, err := h.service.GetOffer(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, err, "Failed to fetch offer")
		return
	}

	c.JSON(http.StatusOK, offer)
}

// ListInstructorOffers handles GET /api/v1/instructor/offers
func (h *ConsultationHandler) ListInstructorOffers(c *gin.Context) {
	session, ok := actorSession(c)
	if !ok {
		return
	}

	response, err := h.service.ListInstructorOffers(c.Request.Context(), session)
	if err != nil {
		respondServiceError(c, err, "Failed to fetch offers")
		return
	}

	c.JSON(http.StatusOK, response)
}

// AcceptOffer handles POST /api/v1/offers/:id/accept
func (h *ConsultationHandler) AcceptOffer(c *gin.Context) {
	h.offerTransition(c, h.service.AcceptOffer, "Failed to accept offer")
}

// RejectOffer handles POST /api/v1/offers/:id/reject
func (h *ConsultationHandler) RejectOffer(c *gin.Context) {
	h.offerTransition(c, h.service.RejectOffer, "Failed to reject offer")
}

// WithdrawOffer handles POST /api/v1/offers/:id/withdraw
func (h *ConsultationHandler) WithdrawOffer(c *gin.Context) {
	h.offerTransition(c, h.service.WithdrawOffer, "Failed to withdraw offer")
}

func (h *ConsultationHandler) offerTransition(
	c *gin.Context,
	apply func(ctx context.Context, session *models.ActorSession, offerID string) (*models.ConsultationOffer, error),
	fallback string,
) {
	session, ok := actorSession(c)
	if !ok {
		return
	}

	offer, err := apply(c.Request.Context(), session, c.Param("id"))
	if err != nil {
		respondServiceError(c, err, fallback)
		return
	}

	c.JSON(http.StatusOK, offer)
}
