package services

import (
	"fmt"

	"github.com/getmentor/consultations-api/internal/models"
	apperrors "github.com/getmentor/consultations-api/pkg/errors"
	"github.com/getmentor/consultations-api/pkg/logger"
	"github.com/getmentor/consultations-api/pkg/metrics"
	"github.com/getmentor/consultations-api/pkg/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// haltOnInvariantViolation panics when err reports a broken aggregate invariant.
// The transaction was already rolled back; gin's recovery turns the panic into a 500.
func haltOnInvariantViolation(aggregate, operation string, err error) {
	if !apperrors.Is(err, apperrors.ErrInvariantViolation) {
		return
	}
	metrics.InvariantViolations.WithLabelValues(aggregate).Inc()
	logger.Error("Aggregate invariant violated",
		zap.String("aggregate", aggregate),
		zap.String("operation", operation),
		zap.Error(err))
	panic(err)
}

// requireRole rejects a missing session or one of the wrong role
func requireRole(session *models.ActorSession, role models.ActorRole, operation string) error {
	if session == nil {
		return apperrors.ErrUnauthorized
	}
	if session.Role != role {
		return apperrors.AccessDeniedError(fmt.Sprintf("only %ss can %s", role, operation))
	}
	return nil
}

// spanAttrs tags a service span with the calling actor, when there is one
func spanAttrs(session *models.ActorSession, attrs ...attribute.KeyValue) []attribute.KeyValue {
	if session != nil {
		attrs = append(attrs, tracing.Actor(session.ActorID, string(session.Role))...)
	}
	return attrs
}
