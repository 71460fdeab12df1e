package handlers

import (
	"context"

	"github.com/getmentor/consultations-api/internal/models"
	"github.com/stretchr/testify/mock"
)

// MockConsultationService is a mock implementation of services.ConsultationServiceInterface
type MockConsultationService struct {
	mock.Mock
}

func (m *MockConsultationService) CreateRequest(ctx context.Context, session *models.ActorSession, payload *models.CreateRequestPayload) (*models.ConsultationRequest, error) {
	args := m.Called(ctx, session, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ConsultationRequest), args.Error(1)
}

func (m *MockConsultationService) ListRequests(ctx context.Context, filter models.RequestFilter) (*models.RequestsResponse, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RequestsResponse), args.Error(1)
}

func (m *MockConsultationService) GetRequest(ctx context.Context, requestID string) (*models.RequestDetailsResponse, error) {
	args := m.Called(ctx, requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RequestDetailsResponse), args.Error(1)
}

func (m *MockConsultationService) CancelRequest(ctx context.Context, session *models.ActorSession, requestID string) (*models.ConsultationRequest, error) {
	return m.requestResult(m.Called(ctx, session, requestID))
}

func (m *MockConsultationService) CloseRequest(ctx context.Context, session *models.ActorSession, requestID string) (*models.ConsultationRequest, error) {
	return m.requestResult(m.Called(ctx, session, requestID))
}

func (m *MockConsultationService) requestResult(args mock.Arguments) (*models.ConsultationRequest, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ConsultationRequest), args.Error(1)
}

func (m *MockConsultationService) SubmitOffer(ctx context.Context, session *models.ActorSession, requestID string, payload *models.SubmitOfferPayload) (*models.ConsultationOffer, error) {
	return m.offerResult(m.Called(ctx, session, requestID, payload))
}

func (m *MockConsultationService) GetOffer(ctx context.Context, offerID string) (*models.OfferView, error) {
	args := m.Called(ctx, offerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.OfferView), args.Error(1)
}

func (m *MockConsultationService) ListInstructorOffers(ctx context.Context, session *models.ActorSession) (*models.OffersResponse, error) {
	args := m.Called(ctx, session)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.OffersResponse), args.Error(1)
}

func (m *MockConsultationService) AcceptOffer(ctx context.Context, session *models.ActorSession, offerID string) (*models.ConsultationOffer, error) {
	return m.offerResult(m.Called(ctx, session, offerID))
}

func (m *MockConsultationService) RejectOffer(ctx context.Context, session *models.ActorSession, offerID string) (*models.ConsultationOffer, error) {
	return m.offerResult(m.Called(ctx, session, offerID))
}

func (m *MockConsultationService) WithdrawOffer(ctx context.Context, session *models.ActorSession, offerID string) (*models.ConsultationOffer, error) {
	return m.offerResult(m.Called(ctx, session, offerID))
}

func (m *MockConsultationService) offerResult(args mock.Arguments) (*models.ConsultationOffer, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ConsultationOffer), args.Error(1)
}

// MockBookingService is a mock implementation of services.BookingServiceInterface
type MockBookingService struct {
	mock.Mock
}

func (m *MockBookingService) CreateSlot(ctx context.Context, session *models.ActorSession, payload *models.CreateSlotPayload) (*models.TimeSlot, error) {
	args := m.Called(ctx, session, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TimeSlot), args.Error(1)
}

func (m *MockBookingService) GetSlot(ctx context.Context, slotID string) (*models.SlotAggregate, error) {
	args := m.Called(ctx, slotID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SlotAggregate), args.Error(1)
}

func (m *MockBookingService) ListSlotsByInstructor(ctx context.Context, instructorID string) (*models.SlotsResponse, error) {
	args := m.Called(ctx, instructorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SlotsResponse), args.Error(1)
}

func (m *MockBookingService) ResolveSlotAction(ctx context.Context, slotID string) (*models.SlotActionResponse, error) {
	args := m.Called(ctx, slotID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SlotActionResponse), args.Error(1)
}

func (m *MockBookingService) BookSlot(ctx context.Context, session *models.ActorSession, slotID string, payload *models.CommitBookingPayload) (*models.Booking, error) {
	return m.bookingResult(m.Called(ctx, session, slotID, payload))
}

func (m *MockBookingService) GetBooking(ctx context.Context, session *models.ActorSession, bookingID string) (*models.Booking, error) {
	return m.bookingResult(m.Called(ctx, session, bookingID))
}

func (m *MockBookingService) ConfirmBooking(ctx context.Context, session *models.ActorSession, bookingID string) (*models.Booking, error) {
	return m.bookingResult(m.Called(ctx, session, bookingID))
}

func (m *MockBookingService) CompleteBooking(ctx context.Context, session *models.ActorSession, bookingID string) (*models.Booking, error) {
	return m.bookingResult(m.Called(ctx, session, bookingID))
}

func (m *MockBookingService) CancelBooking(ctx context.Context, session *models.ActorSession, bookingID string) (*models.Booking, error) {
	return m.bookingResult(m.Called(ctx, session, bookingID))
}

func (m *MockBookingService) bookingResult(args mock.Arguments) (*models.Booking, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

// MockPinger is a mock implementation of repository.Pinger
type MockPinger struct {
	mock.Mock
}

func (m *MockPinger) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}
