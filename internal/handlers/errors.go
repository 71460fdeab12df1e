package handlers

import (
	"net/http"

	apperrors "github.com/getmentor/consultations-api/pkg/errors"
	"github.com/gin-gonic/gin"
)

// attachError attaches err to the gin context so the observability middleware
// can include the reason in the request log. c.Error() returns *gin.Error (not
// the error interface), so we suppress errcheck here intentionally.
func attachError(c *gin.Context, err error) {
	if err != nil {
		_ = c.Error(err) //nolint:errcheck
	}
}

// respondError sends an error JSON response and attaches the error to the gin context
// so the observability middleware can include the reason in the request log.
func respondError(c *gin.Context, status int, message string, err error) {
	attachError(c, err)
	c.JSON(status, gin.H{"error": message})
}

// respondErrorWithDetails sends an error response with an additional details field.
func respondErrorWithDetails(c *gin.Context, status int, message string, details any, err error) {
	attachError(c, err)
	c.JSON(status, gin.H{"error": message, "details": details})
}

// respondServiceError maps a service error kind to its HTTP status.
// Unknown errors become a 500 with fallback as the message.
func respondServiceError(c *gin.Context, err error, fallback string) {
	var lost *apperrors.AlreadyBookedError
	switch {
	case apperrors.As(err, &lost):
		attachError(c, err)
		c.JSON(http.StatusConflict, gin.H{
			"error":         "Slot was booked by someone else",
			"retry":         true,
			"action":        lost.RetryAction(),
			"boundCourseId": lost.BoundCourseID,
		})
	case apperrors.Is(err, apperrors.ErrNotFound):
		respondError(c, http.StatusNotFound, "Not found", err)
	case apperrors.Is(err, apperrors.ErrInvalidInput):
		respondError(c, http.StatusBadRequest, err.Error(), err)
	case apperrors.Is(err, apperrors.ErrUnauthorized):
		respondError(c, http.StatusUnauthorized, "Unauthorized", err)
	case apperrors.Is(err, apperrors.ErrAccessDenied):
		respondError(c, http.StatusForbidden, "Access denied", err)
	case apperrors.Is(err, apperrors.ErrDuplicateOffer):
		respondError(c, http.StatusConflict, "You already have a pending offer on this request", err)
	case apperrors.Is(err, apperrors.ErrConflictingCourse):
		respondError(c, http.StatusConflict, "Slot is booked for a different course", err)
	case apperrors.Is(err, apperrors.ErrInvalidState):
		respondError(c, http.StatusConflict, "Operation not allowed in the current status", err)
	default:
		respondError(c, http.StatusInternalServerError, fallback, err)
	}
}
