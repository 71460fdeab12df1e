package repository

import (
	"context"

	"github.com/getmentor/consultations-api/internal/models"
)

// RequestMutation mutates a private copy of a request aggregate inside a transaction.
// Returning an error aborts the transaction and nothing is persisted.
type RequestMutation func(agg *models.RequestAggregate) error

// SlotMutation mutates a private copy of a slot aggregate inside a transaction.
// Returning an error aborts the transaction and nothing is persisted.
type SlotMutation func(agg *models.SlotAggregate) error

// SlotCheck inspects an instructor's existing slots before a new one is inserted
type SlotCheck func(existing []*models.TimeSlot) error

// ConsultationStore persists request aggregates (a request plus all of its offers).
// Implementations serialize UpdateRequest per request id and commit all-or-nothing.
type ConsultationStore interface {
	// CreateRequest inserts a new request with no offers
	CreateRequest(ctx context.Context, req *models.ConsultationRequest) error

	// GetRequest returns a committed snapshot of the aggregate
	GetRequest(ctx context.Context, requestID string) (*models.RequestAggregate, error)

	// RequestIDForOffer resolves the immutable parent of an offer
	RequestIDForOffer(ctx context.Context, offerID string) (string, error)

	// UpdateRequest runs fn under the aggregate's exclusive lock and commits its result
	UpdateRequest(ctx context.Context, requestID string, fn RequestMutation) (*models.RequestAggregate, error)

	// ListRequests returns requests matching the filter, newest first
	ListRequests(ctx context.Context, filter models.RequestFilter) ([]*models.ConsultationRequest, error)

	// ListOffersByInstructor returns all offers submitted by an instructor, newest first
	ListOffersByInstructor(ctx context.Context, instructorID string) ([]*models.ConsultationOffer, error)

	// CountRequestsByStatus returns the number of requests in each status
	CountRequestsByStatus(ctx context.Context) (map[models.RequestStatus]int, error)
}

// SlotStore persists slot aggregates (a weekly slot plus its bookings).
// Implementations serialize UpdateSlot per slot id and commit all-or-nothing.
type SlotStore interface {
	// CreateSlot inserts a slot after check accepted the instructor's existing slots.
	// Creation is serialized per instructor.
	CreateSlot(ctx context.Context, slot *models.TimeSlot, check SlotCheck) error

	// GetSlot returns a committed snapshot of the aggregate
	GetSlot(ctx context.Context, slotID string) (*models.SlotAggregate, error)

	// SlotIDForBooking resolves the immutable slot of a booking
	SlotIDForBooking(ctx context.Context, bookingID string) (string, error)

	// UpdateSlot runs fn under the aggregate's exclusive lock and commits its result
	UpdateSlot(ctx context.Context, slotID string, fn SlotMutation) (*models.SlotAggregate, error)

	// ListSlotsByInstructor returns an instructor's slots ordered by day and start time
	ListSlotsByInstructor(ctx context.Context, instructorID string) ([]*models.TimeSlot, error)

	// CountSlotsByStatus returns the number of slots in each booking status
	CountSlotsByStatus(ctx context.Context) (map[models.SlotStatus]int, error)
}

// Pinger is implemented by stores backed by an external database
type Pinger interface {
	Ping(ctx context.Context) error
}
