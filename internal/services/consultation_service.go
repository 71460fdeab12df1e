package services

import (
	"context"

	"github.com/getmentor/consultations-api/config"
	"github.com/getmentor/consultations-api/internal/cache"
	"github.com/getmentor/consultations-api/internal/engine"
	"github.com/getmentor/consultations-api/internal/models"
	apperrors "github.com/getmentor/consultations-api/pkg/errors"
	"github.com/getmentor/consultations-api/pkg/logger"
	"github.com/getmentor/consultations-api/pkg/metrics"
	"github.com/getmentor/consultations-api/pkg/tracing"
	"github.com/getmentor/consultations-api/pkg/trigger"
	"go.uber.org/zap"
)

const requestAggregate = "request"

// ConsultationService exposes the matching engine to authenticated actors.
// It checks ownership, keeps the request cache coherent and emits events.
type ConsultationService struct {
	engine   *engine.MatchingEngine
	cache    *cache.RequestCache
	triggers EventDispatcher
	config   *config.Config
}

// NewConsultationService creates a new ConsultationService
func NewConsultationService(matching *engine.MatchingEngine, requestCache *cache.RequestCache, triggers EventDispatcher, cfg *config.Config) *ConsultationService {
	return &ConsultationService{
		engine:   matching,
		cache:    requestCache,
		triggers: triggers,
		config:   cfg,
	}
}

// CreateRequest opens a new consultation request owned by the calling student
func (s *ConsultationService) CreateRequest(ctx context.Context, session *models.ActorSession, payload *models.CreateRequestPayload) (req *models.ConsultationRequest, err error) {
	ctx, span := tracing.StartSpan(ctx, "ConsultationService.CreateRequest", spanAttrs(session)...)
	defer func() { tracing.EndSpan(span, err) }()

	if err := requireRole(session, models.RoleStudent, "create requests"); err != nil {
		return nil, err
	}

	req, err = s.engine.CreateRequest(ctx, session.ActorID, *payload)
	metrics.RequestsCreated.WithLabelValues(metrics.Outcome(err)).Inc()
	if err != nil {
		return nil, err
	}

	logger.Info("Consultation request created",
		zap.String("request_id", req.ID),
		zap.String("student_id", req.StudentID),
		zap.String("category", req.Category))
	return req, nil
}

// ListRequests returns requests matching filter, newest first
func (s *ConsultationService) ListRequests(ctx context.Context, filter models.RequestFilter) (*models.RequestsResponse, error) {
	requests, err := s.engine.ListRequests(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &models.RequestsResponse{Requests: requests, Total: len(requests)}, nil
}

// GetRequest returns a request with its offers, each marked actionable or not
func (s *ConsultationService) GetRequest(ctx context.Context, requestID string) (*models.RequestDetailsResponse, error) {
	agg, err := s.cache.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}

	offers := make([]models.OfferView, 0, len(agg.Offers))
	for _, offer := range agg.Offers {
		offers = append(offers, models.NewOfferView(offer, agg.Request))
	}
	return &models.RequestDetailsResponse{Request: agg.Request, Offers: offers}, nil
}

// CancelRequest cancels an open request. Only the owning student may cancel.
func (s *ConsultationService) CancelRequest(ctx context.Context, session *models.ActorSession, requestID string) (*models.ConsultationRequest, error) {
	return s.transitionRequest(ctx, session, requestID, "cancel", s.engine.CancelRequest)
}

// CloseRequest closes an in-progress request. Only the owning student may close.
func (s *ConsultationService) CloseRequest(ctx context.Context, session *models.ActorSession, requestID string) (*models.ConsultationRequest, error) {
	return s.transitionRequest(ctx, session, requestID, "close", s.engine.CloseRequest)
}

func (s *ConsultationService) transitionRequest(
	ctx context.Context,
	session *models.ActorSession,
	requestID string,
	operation string,
	apply func(context.Context, string) (*models.ConsultationRequest, error),
) (req *models.ConsultationRequest, err error) {
	ctx, span := tracing.StartSpan(ctx, "ConsultationService.transitionRequest",
		spanAttrs(session, tracing.OperationKey.String(operation), tracing.RequestIDKey.String(requestID))...)
	defer func() { tracing.EndSpan(span, err) }()

	if err := requireRole(session, models.RoleStudent, operation+" requests"); err != nil {
		return nil, err
	}

	// The owner never changes, so a cached snapshot is good enough for the check
	agg, err := s.cache.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if agg.Request.StudentID != session.ActorID {
		logger.Warn("Access denied to request",
			zap.String("request_id", requestID),
			zap.String("request_student", agg.Request.StudentID),
			zap.String("requesting_student", session.ActorID))
		return nil, apperrors.AccessDeniedError("request belongs to another student")
	}

	req, err = apply(ctx, requestID)
	metrics.RequestTransitions.WithLabelValues(operation, metrics.Outcome(err)).Inc()
	if err != nil {
		haltOnInvariantViolation(requestAggregate, operation, err)
		return nil, err
	}
	s.cache.Invalidate(requestID)

	logger.Info("Request status updated",
		zap.String("request_id", requestID),
		zap.String("operation", operation),
		zap.String("status", string(req.Status)))
	return req, nil
}

// SubmitOffer places the calling instructor's offer on an open request
func (s *ConsultationService) SubmitOffer(ctx context.Context, session *models.ActorSession, requestID string, payload *models.SubmitOfferPayload) (offer *models.ConsultationOffer, err error) {
	ctx, span := tracing.StartSpan(ctx, "ConsultationService.SubmitOffer",
		spanAttrs(session, tracing.RequestIDKey.String(requestID))...)
	defer func() { tracing.EndSpan(span, err) }()

	if err := requireRole(session, models.RoleInstructor, "submit offers"); err != nil {
		return nil, err
	}

	offer, err = s.engine.SubmitOffer(ctx, requestID, session.ActorID, *payload)
	metrics.OfferTransitions.WithLabelValues("submit", metrics.Outcome(err)).Inc()
	if err != nil {
		haltOnInvariantViolation(requestAggregate, "submit", err)
		return nil, err
	}
	s.cache.Invalidate(requestID)

	logger.Info("Offer submitted",
		zap.String("offer_id", offer.ID),
		zap.String("request_id", requestID),
		zap.String("instructor_id", offer.InstructorID))
	return offer, nil
}

// GetOffer returns an offer marked actionable or not
func (s *ConsultationService) GetOffer(ctx context.Context, offerID string) (*models.OfferView, error) {
	offer, req, err := s.engine.GetOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}
	view := models.NewOfferView(offer, req)
	return &view, nil
}

// ListInstructorOffers returns every offer the calling instructor has submitted
func (s *ConsultationService) ListInstructorOffers(ctx context.Context, session *models.ActorSession) (*models.OffersResponse, error) {
	if err := requireRole(session, models.RoleInstructor, "list their offers"); err != nil {
		return nil, err
	}

	offers, err := s.engine.ListOffersByInstructor(ctx, session.ActorID)
	if err != nil {
		return nil, err
	}
	return &models.OffersResponse{Offers: offers, Total: len(offers)}, nil
}

// AcceptOffer accepts an offer on the calling student's request and
// notifies the offer-accepted trigger.
func (s *ConsultationService) AcceptOffer(ctx context.Context, session *models.ActorSession, offerID string) (*models.ConsultationOffer, error) {
	offer, req, err := s.transitionOffer(ctx, session, offerID, "accept", s.engine.AcceptOffer)
	if err != nil {
		return nil, err
	}

	s.triggers.CallAsync(s.config.EventTriggers.OfferAcceptedTriggerURL, trigger.Event{
		Type:       models.EventOfferAccepted,
		ID:         offer.ID,
		OccurredAt: offer.UpdatedAt,
		Payload: models.OfferAcceptedPayload{
			RequestID:        req.ID,
			OfferID:          offer.ID,
			StudentID:        req.StudentID,
			InstructorID:     offer.InstructorID,
			OfferedPrice:     offer.OfferedPrice,
			OfferedDate:      offer.OfferedDate,
			OfferedStartTime: offer.OfferedStartTime,
			OfferedEndTime:   offer.OfferedEndTime,
		},
	})
	return offer, nil
}

// RejectOffer rejects an offer on the calling student's request
func (s *ConsultationService) RejectOffer(ctx context.Context, session *models.ActorSession, offerID string) (*models.ConsultationOffer, error) {
	offer, _, err := s.transitionOffer(ctx, session, offerID, "reject", s.engine.RejectOffer)
	return offer, err
}

// WithdrawOffer withdraws the calling instructor's own offer
func (s *ConsultationService) WithdrawOffer(ctx context.Context, session *models.ActorSession, offerID string) (*models.ConsultationOffer, error) {
	offer, _, err := s.transitionOffer(ctx, session, offerID, "withdraw", s.engine.WithdrawOffer)
	return offer, err
}

// transitionOffer authorizes the actor against the offer and applies the transition.
// Students act on offers made to their requests, instructors only withdraw their own.
func (s *ConsultationService) transitionOffer(
	ctx context.Context,
	session *models.ActorSession,
	offerID string,
	operation string,
	apply func(context.Context, string) (*models.ConsultationOffer, error),
) (offer *models.ConsultationOffer, req *models.ConsultationRequest, err error) {
	ctx, span := tracing.StartSpan(ctx, "ConsultationService.transitionOffer",
		spanAttrs(session, tracing.OperationKey.String(operation), tracing.OfferIDKey.String(offerID))...)
	defer func() { tracing.EndSpan(span, err) }()

	role := models.RoleStudent
	if operation == "withdraw" {
		role = models.RoleInstructor
	}
	if err := requireRole(session, role, operation+" offers"); err != nil {
		return nil, nil, err
	}

	current, req, err := s.engine.GetOffer(ctx, offerID)
	if err != nil {
		return nil, nil, err
	}

	owner := req.StudentID
	if role == models.RoleInstructor {
		owner = current.InstructorID
	}
	if owner != session.ActorID {
		logger.Warn("Access denied to offer",
			zap.String("offer_id", offerID),
			zap.String("operation", operation),
			zap.String("actor_id", session.ActorID))
		return nil, nil, apperrors.AccessDeniedError("offer belongs to another " + string(role))
	}

	offer, err = apply(ctx, offerID)
	metrics.OfferTransitions.WithLabelValues(operation, metrics.Outcome(err)).Inc()
	if err != nil {
		haltOnInvariantViolation(requestAggregate, operation, err)
		return nil, nil, err
	}
	s.cache.Invalidate(offer.RequestID)

	logger.Info("Offer status updated",
		zap.String("offer_id", offerID),
		zap.String("request_id", offer.RequestID),
		zap.String("status", string(offer.Status)))
	return offer, req, nil
}
