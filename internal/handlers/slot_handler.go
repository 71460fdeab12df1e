package handlers

import (
	"context"
	"net/http"

	"github.com/getmentor/consultations-api/internal/models"
	"github.com/getmentor/consultations-api/internal/services"
	"github.com/gin-gonic/gin"
)

// SlotHandler handles weekly slot and booking endpoints
type SlotHandler struct {
	service services.BookingServiceInterface
}

// NewSlotHandler creates a new SlotHandler
func NewSlotHandler(service services.BookingServiceInterface) *SlotHandler {
	return &SlotHandler{service: service}
}

// CreateSlot handles POST /api/v1/slots
func (h *SlotHandler) CreateSlot(c *gin.Context) {
	session, ok := actorSession(c)
	if !ok {
		return
	}

	var payload models.CreateSlotPayload
	if !bindJSON(c, &payload) {
		return
	}

	slot, err := h.service.CreateSlot(c.Request.Context(), session, &payload)
	if err != nil {
		respondServiceError(c, err, "Failed to create slot")
		return
	}

	c.JSON(http.StatusCreated, slot)
}

// GetSlot handles GET /api/v1/slots/:id
func (h *SlotHandler) GetSlot(c *gin.Context) {
	agg, err := h.service.GetSlot(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, err, "Failed to fetch slot")
		return
	}

	c.JSON(http.StatusOK, agg)
}

// ListInstructorSlots handles GET /api/v1/instructors/:id/slots
func (h *SlotHandler) ListInstructorSlots(c *gin.Context) {
	response, err := h.service.ListSlotsByInstructor(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, err, "Failed to fetch slots")
		return
	}

	c.JSON(http.StatusOK, response)
}

// ResolveAction handles GET /api/v1/slots/:id/action
func (h *SlotHandler) ResolveAction(c *gin.Context) {
	response, err := h.service.ResolveSlotAction(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, err, "Failed to resolve slot action")
		return
	}

	c.JSON(http.StatusOK, response)
}

// BookSlot handles POST /api/v1/slots/:id/bookings.
// A lost race that could not be joined answers 409 with a retry hint.
func (h *SlotHandler) BookSlot(c *gin.Context) {
	session, ok := actorSession(c)
	if !ok {
		return
	}

	var payload models.CommitBookingPayload
	if !bindJSON(c, &payload) {
		return
	}

	booking, err := h.service.BookSlot(c.Request.Context(), session, c.Param("id"), &payload)
	if err != nil {
		respondServiceError(c, err, "Failed to book slot")
		return
	}

	c.JSON(http.StatusCreated, booking)
}

// GetBooking handles GET /api/v1/bookings/:id
func (h *SlotHandler) GetBooking(c *gin.Context) {
	h.bookingAction(c, h.service.GetBooking, "Failed to fetch booking")
}

// ConfirmBooking handles POST /api/v1/bookings/:id/confirm
func (h *SlotHandler) ConfirmBooking(c *gin.Context) {
	h.bookingAction(c, h.service.ConfirmBooking, "Failed to confirm booking")
}

// CompleteBooking handles POST /api/v1/bookings/:id/complete
func (h *SlotHandler) CompleteBooking(c *gin.Context) {
	h.bookingAction(c, h.service.CompleteBooking, "Failed to complete booking")
}

// CancelBooking handles POST /api/v1/bookings/:id/cancel
func (h *SlotHandler) CancelBooking(c *gin.Context) {
	h.bookingAction(c, h.service.CancelBooking, "Failed to cancel booking")
}

func (h *SlotHandler) bookingAction(
	c *gin.Context,
	apply func(ctx context.Context, session *models.ActorSession, bookingID string) (*models.Booking, error),
	fallback string,
) {
	session, ok := actorSession(c)
	if !ok {
		return
	}

	booking, err := apply(c.Request.Context(), session, c.Param("id"))
	if err != nil {
		respondServiceError(c, err, fallback)
		return
	}

	c.JSON(http.StatusOK, booking)
}
