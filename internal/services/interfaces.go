package services

import (
	"context"

	"github.com/getmentor/consultations-api/internal/models"
	"github.com/getmentor/consultations-api/pkg/trigger"
)

// ConsultationServiceInterface defines the interface for request and offer operations
type ConsultationServiceInterface interface {
	CreateRequest(ctx context.Context, session *models.ActorSession, payload *models.CreateRequestPayload) (*models.ConsultationRequest, error)
	ListRequests(ctx context.Context, filter models.RequestFilter) (*models.RequestsResponse, error)
	GetRequest(ctx context.Context, requestID string) (*models.RequestDetailsResponse, error)
	CancelRequest(ctx context.Context, session *models.ActorSession, requestID string) (*models.ConsultationRequest, error)
	CloseRequest(ctx context.Context, session *models.ActorSession, requestID string) (*models.ConsultationRequest, error)
	SubmitOffer(ctx context.Context, session *models.ActorSession, requestID string, payload *models.SubmitOfferPayload) (*models.ConsultationOffer, error)
	GetOffer(ctx context.Context, offerID string) (*models.OfferView, error)
	ListInstructorOffers(ctx context.Context, session *models.ActorSession) (*models.OffersResponse, error)
	AcceptOffer(ctx context.Context, session *models.ActorSession, offerID string) (*models.ConsultationOffer, error)
	RejectOffer(ctx context.Context, session *models.ActorSession, offerID string) (*models.ConsultationOffer, error)
	WithdrawOffer(ctx context.Context, session *models.ActorSession, offerID string) (*models.ConsultationOffer, error)
}

// BookingServiceInterface defines the interface for slot and booking operations
type BookingServiceInterface interface {
	CreateSlot(ctx context.Context, session *models.ActorSession, payload *models.CreateSlotPayload) (*models.TimeSlot, error)
	GetSlot(ctx context.Context, slotID string) (*models.SlotAggregate, error)
	ListSlotsByInstructor(ctx context.Context, instructorID string) (*models.SlotsResponse, error)
	ResolveSlotAction(ctx context.Context, slotID string) (*models.SlotActionResponse, error)
	BookSlot(ctx context.Context, session *models.ActorSession, slotID string, payload *models.CommitBookingPayload) (*models.Booking, error)
	GetBooking(ctx context.Context, session *models.ActorSession, bookingID string) (*models.Booking, error)
	ConfirmBooking(ctx context.Context, session *models.ActorSession, bookingID string) (*models.Booking, error)
	CompleteBooking(ctx context.Context, session *models.ActorSession, bookingID string) (*models.Booking, error)
	CancelBooking(ctx context.Context, session *models.ActorSession, bookingID string) (*models.Booking, error)
}

// SessionServiceInterface mints actor session tokens for trusted callers
type SessionServiceInterface interface {
	IssueSession(payload *models.IssueSessionPayload) (*models.IssueSessionResponse, error)
}

// EventDispatcher delivers domain events to webhook URLs
type EventDispatcher interface {
	CallAsync(triggerURL string, event trigger.Event)
}

// Ensure services implement their interfaces
var _ ConsultationServiceInterface = (*ConsultationService)(nil)
var _ BookingServiceInterface = (*BookingService)(nil)
var _ SessionServiceInterface = (*SessionService)(nil)
var _ EventDispatcher = (*trigger.Dispatcher)(nil)
