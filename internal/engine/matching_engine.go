package engine

import (
	"context"

	"github.com/getmentor/consultations-api/internal/models"
	"github.com/getmentor/consultations-api/internal/repository"
	"github.com/getmentor/consultations-api/pkg/clock"
	apperrors "github.com/getmentor/consultations-api/pkg/errors"
	"github.com/getmentor/consultations-api/pkg/idgen"
	"github.com/go-playground/validator/v10"
)

// MatchingEngine owns the request/offer lifecycle.
// Every mutation runs as one transaction on a single request aggregate.
type MatchingEngine struct {
	store    repository.ConsultationStore
	clock    clock.Clock
	ids      idgen.Generator
	validate *validator.Validate
}

// NewMatchingEngine creates a new matching engine
func NewMatchingEngine(store repository.ConsultationStore, clk clock.Clock, ids idgen.Generator) *MatchingEngine {
	return &MatchingEngine{
		store:    store,
		clock:    clk,
		ids:      ids,
		validate: newValidator(),
	}
}

// CreateRequest opens a new consultation request for a student
func (e *MatchingEngine) CreateRequest(ctx context.Context, studentID string, in models.CreateRequestPayload) (*models.ConsultationRequest, error) {
	if studentID == "" {
		return nil, apperrors.InvalidInputError("studentId", "is required")
	}
	dates, err := validateRequestPayload(e.validate, &in)
	if err != nil {
		return nil, err
	}

	now := e.clock.Now()
	req := &models.ConsultationRequest{
		ID:             e.ids.NewID(),
		StudentID:      studentID,
		Category:       in.Category,
		Title:          in.Title,
		Description:    in.Description,
		Level:          in.Level,
		BudgetMin:      in.BudgetMin,
		BudgetMax:      in.BudgetMax,
		PreferredDates: dates,
		PreferredTimes: append([]models.TimeRange(nil), in.PreferredTimes...),
		Status:         models.RequestStatusOpen,
		OffersCount:    0,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := e.store.CreateRequest(ctx, req); err != nil {
		return nil, err
	}
	return req.Clone(), nil
}

// SubmitOffer records an instructor's pending offer on an open request
func (e *MatchingEngine) SubmitOffer(ctx context.Context, requestID, instructorID string, in models.SubmitOfferPayload) (*models.ConsultationOffer, error) {
	if instructorID == "" {
		return nil, apperrors.InvalidInputError("instructorId", "is required")
	}
	offeredDate, err := validateOfferPayload(e.validate, &in)
	if err != nil {
		return nil, err
	}

	offerID := e.ids.NewID()
	agg, err := e.store.UpdateRequest(ctx, requestID, func(agg *models.RequestAggregate) error {
		req := agg.Request
		if req.Status != models.RequestStatusOpen {
			return apperrors.InvalidStateError("request", req.ID, string(req.Status), "submit offer on")
		}
		if existing := agg.PendingOfferBy(instructorID); existing != nil {
			return apperrors.DuplicateOfferError(req.ID, instructorID, existing.ID)
		}
		if !req.HasPreferredDate(offeredDate) {
			return apperrors.InvalidInputError("offeredDate", string(offeredDate)+" is not one of the request's preferred dates")
		}

		now := e.clock.Now()
		agg.Offers = append(agg.Offers, &models.ConsultationOffer{
			ID:               offerID,
			RequestID:        req.ID,
			InstructorID:     instructorID,
			Message:          in.Message,
			OfferedPrice:     in.OfferedPrice,
			OfferedDate:      offeredDate,
			OfferedStartTime: in.OfferedStartTime,
			OfferedEndTime:   in.OfferedEndTime,
			Status:           models.OfferStatusPending,
			CreatedAt:        now,
			UpdatedAt:        now,
		})
		req.OffersCount = len(agg.Offers)
		req.UpdatedAt = now

		return checkRequest(agg)
	})
	if err != nil {
		return nil, err
	}
	return agg.Offer(offerID), nil
}

// AcceptOffer accepts one pending offer. In the same transaction the request moves to
// in_progress and every other pending offer on it is rejected.
func (e *MatchingEngine) AcceptOffer(ctx context.Context, offerID string) (*models.ConsultationOffer, error) {
	agg, err := e.updateOffer(ctx, offerID, "accept", func(agg *models.RequestAggregate, offer *models.ConsultationOffer) error {
		req := agg.Request
		if req.Status != models.RequestStatusOpen {
			return apperrors.InvalidStateError("request", req.ID, string(req.Status), "accept offer on")
		}

		now := e.clock.Now()
		offer.Status = models.OfferStatusAccepted
		offer.UpdatedAt = now

		for _, other := range agg.Offers {
			if other.ID != offer.ID && other.Status == models.OfferStatusPending {
				other.Status = models.OfferStatusRejected
				other.UpdatedAt = now
			}
		}

		acceptedID := offer.ID
		req.Status = models.RequestStatusInProgress
		req.AcceptedOfferID = &acceptedID
		req.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return agg.Offer(offerID), nil
}

// RejectOffer rejects a pending offer. The request is left untouched.
func (e *MatchingEngine) RejectOffer(ctx context.Context, offerID string) (*models.ConsultationOffer, error) {
	return e.closeOffer(ctx, offerID, models.OfferStatusRejected, "reject")
}

// WithdrawOffer lets an instructor retract a pending offer. The request is left untouched.
func (e *MatchingEngine) WithdrawOffer(ctx context.Context, offerID string) (*models.ConsultationOffer, error) {
	return e.closeOffer(ctx, offerID, models.OfferStatusWithdrawn, "withdraw")
}

func (e *MatchingEngine) closeOffer(ctx context.Context, offerID string, next models.OfferStatus, operation string) (*models.ConsultationOffer, error) {
	agg, err := e.updateOffer(ctx, offerID, operation, func(agg *models.RequestAggregate, offer *models.ConsultationOffer) error {
		// Offers left pending on a closed or cancelled request are no longer actionable
		if agg.Request.Status != models.RequestStatusOpen {
			return apperrors.InvalidStateError("request", agg.Request.ID, string(agg.Request.Status), operation+" offer on")
		}
		offer.Status = next
		offer.UpdatedAt = e.clock.Now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return agg.Offer(offerID), nil
}

// updateOffer locates the offer's aggregate, checks the offer is pending and runs fn on it
func (e *MatchingEngine) updateOffer(
	ctx context.Context,
	offerID, operation string,
	fn func(agg *models.RequestAggregate, offer *models.ConsultationOffer) error,
) (*models.RequestAggregate, error) {
	requestID, err := e.store.RequestIDForOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}

	return e.store.UpdateRequest(ctx, requestID, func(agg *models.RequestAggregate) error {
		offer := agg.Offer(offerID)
		if offer == nil {
			return apperrors.NotFoundError("offer", offerID)
		}
		if offer.Status != models.OfferStatusPending {
			return apperrors.InvalidStateError("offer", offer.ID, string(offer.Status), operation)
		}
		if err := fn(agg, offer); err != nil {
			return err
		}
		return checkRequest(agg)
	})
}

// CancelRequest cancels an open request. Pending offers keep their status;
// IsActionable reports them as no longer actionable.
func (e *MatchingEngine) CancelRequest(ctx context.Context, requestID string) (*models.ConsultationRequest, error) {
	return e.transitionRequest(ctx, requestID, models.RequestStatusCancelled, "cancel")
}

// CloseRequest marks an in-progress request as completed
func (e *MatchingEngine) CloseRequest(ctx context.Context, requestID string) (*models.ConsultationRequest, error) {
	return e.transitionRequest(ctx, requestID, models.RequestStatusClosed, "close")
}

func (e *MatchingEngine) transitionRequest(ctx context.Context, requestID string, next models.RequestStatus, operation string) (*models.ConsultationRequest, error) {
	agg, err := e.store.UpdateRequest(ctx, requestID, func(agg *models.RequestAggregate) error {
		req := agg.Request
		if !req.Status.CanTransitionTo(next) {
			return apperrors.InvalidStateError("request", req.ID, string(req.Status), operation)
		}
		req.Status = next
		req.UpdatedAt = e.clock.Now()
		return checkRequest(agg)
	})
	if err != nil {
		return nil, err
	}
	return agg.Request, nil
}

// GetRequest returns a committed snapshot of a request and its offers
func (e *MatchingEngine) GetRequest(ctx context.Context, requestID string) (*models.RequestAggregate, error) {
	return e.store.GetRequest(ctx, requestID)
}

// GetOffer returns an offer together with its parent request
func (e *MatchingEngine) GetOffer(ctx context.Context, offerID string) (*models.ConsultationOffer, *models.ConsultationRequest, error) {
	requestID, err := e.store.RequestIDForOffer(ctx, offerID)
	if err != nil {
		return nil, nil, err
	}
	agg, err := e.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, nil, err
	}
	offer := agg.Offer(offerID)
	if offer == nil {
		return nil, nil, apperrors.NotFoundError("offer", offerID)
	}
	return offer, agg.Request, nil
}

// ListRequests returns requests matching filter
func (e *MatchingEngine) ListRequests(ctx context.Context, filter models.RequestFilter) ([]*models.ConsultationRequest, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, apperrors.InvalidInputError("status", "unknown request status "+string(filter.Status))
	}
	return e.store.ListRequests(ctx, filter)
}

// ListOffersByInstructor returns every offer an instructor has submitted
func (e *MatchingEngine) ListOffersByInstructor(ctx context.Context, instructorID string) ([]*models.ConsultationOffer, error) {
	return e.store.ListOffersByInstructor(ctx, instructorID)
}

// checkRequest runs the aggregate invariants as the last step of every transaction
func checkRequest(agg *models.RequestAggregate) error {
	if err := agg.Validate(); err != nil {
		return apperrors.InvariantViolationError("request", agg.Request.ID, err.Error())
	}
	return nil
}
