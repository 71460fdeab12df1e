package engine

import (
	"context"
	"strconv"
	"time"

	"github.com/getmentor/consultations-api/internal/models"
	"github.com/getmentor/consultations-api/internal/repository"
	"github.com/getmentor/consultations-api/pkg/clock"
	apperrors "github.com/getmentor/consultations-api/pkg/errors"
	"github.com/getmentor/consultations-api/pkg/idgen"
	"github.com/go-playground/validator/v10"
)

// CommitBookingInput describes one attempt to book a slot.
// Expected is the action the caller resolved beforehand; leave it empty to resolve inside the transaction.
type CommitBookingInput struct {
	SlotID     string
	StudentID  string
	CourseID   string
	CourseName string
	Expected   models.ActionKind
}

// BookingEngine owns weekly slots and the bookings made against them.
// Every mutation runs as one transaction on a single slot aggregate.
type BookingEngine struct {
	store    repository.SlotStore
	clock    clock.Clock
	ids      idgen.Generator
	location *time.Location
	validate *validator.Validate
}

// NewBookingEngine creates a new booking engine.
// loc is the calendar scheduled dates are computed in; nil means UTC.
func NewBookingEngine(store repository.SlotStore, clk clock.Clock, ids idgen.Generator, loc *time.Location) *BookingEngine {
	if loc == nil {
		loc = time.UTC
	}
	return &BookingEngine{
		store:    store,
		clock:    clk,
		ids:      ids,
		location: loc,
		validate: newValidator(),
	}
}

// ResolveAction tells whether booking slot would start a new session or join an existing one
func ResolveAction(slot *models.TimeSlot) models.ActionKind {
	if slot.BookingStatus == models.SlotStatusBooked {
		return models.ActionJoin
	}
	return models.ActionNew
}

// ResolveSlotAction reads the slot's committed state and resolves the action.
// The answer is advisory: the slot can change before CommitBooking runs.
func (e *BookingEngine) ResolveSlotAction(ctx context.Context, slotID string) (models.ActionKind, error) {
	agg, err := e.store.GetSlot(ctx, slotID)
	if err != nil {
		return "", err
	}
	return ResolveAction(agg.Slot), nil
}

// CreateSlot publishes a weekly slot for an instructor. Slots of one instructor on the
// same weekday must not overlap.
func (e *BookingEngine) CreateSlot(ctx context.Context, instructorID string, in models.CreateSlotPayload) (*models.TimeSlot, error) {
	if instructorID == "" {
		return nil, apperrors.InvalidInputError("instructorId", "is required")
	}
	if err := validatePayload(e.validate, &in); err != nil {
		return nil, err
	}
	window := models.TimeRange{Start: in.StartTime, End: in.EndTime}
	if err := window.Validate(); err != nil {
		return nil, apperrors.InvalidInputError("startTime", err.Error())
	}

	now := e.clock.Now()
	slot := &models.TimeSlot{
		ID:            e.ids.NewID(),
		InstructorID:  instructorID,
		DayOfWeek:     *in.DayOfWeek,
		StartTime:     in.StartTime,
		EndTime:       in.EndTime,
		BookingStatus: models.SlotStatusAvailable,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err := e.store.CreateSlot(ctx, slot, func(existing []*models.TimeSlot) error {
		for _, other := range existing {
			if other.DayOfWeek == slot.DayOfWeek && other.Range().Overlaps(window) {
				return apperrors.InvalidInputError("startTime",
					"overlaps slot "+other.ID+" ("+string(other.StartTime)+"-"+string(other.EndTime)+" on day "+strconv.Itoa(other.DayOfWeek)+")")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return slot.Clone(), nil
}

// CommitBooking books a slot for a student.
//
// Against an available slot it binds the slot to the course and creates a "new" booking.
// Against a booked slot it creates a "join" booking for the bound course.
// A caller expecting "new" that finds the slot booked gets *AlreadyBookedError and
// should retry as "join"; the failed attempt leaves no trace.
func (e *BookingEngine) CommitBooking(ctx context.Context, in CommitBookingInput) (*models.Booking, error) {
	if in.StudentID == "" {
		return nil, apperrors.InvalidInputError("studentId", "is required")
	}
	if in.CourseID == "" {
		return nil, apperrors.InvalidInputError("courseId", "is required")
	}
	if in.Expected != "" && !in.Expected.Valid() {
		return nil, apperrors.InvalidInputError("action", "must be new or join")
	}

	bookingID := e.ids.NewID()
	agg, err := e.store.UpdateSlot(ctx, in.SlotID, func(agg *models.SlotAggregate) error {
		slot := agg.Slot
		actual := ResolveAction(slot)

		switch {
		case in.Expected == models.ActionNew && actual == models.ActionJoin:
			return &apperrors.AlreadyBookedError{SlotID: slot.ID, BoundCourseID: *slot.BookedCourseID}
		case in.Expected == models.ActionJoin && actual == models.ActionNew:
			return apperrors.InvalidStateError("slot", slot.ID, string(slot.BookingStatus), "join")
		}

		for _, b := range agg.Bookings {
			if b.StudentID == in.StudentID && b.Status.IsActive() {
				return apperrors.InvalidStateError("slot", slot.ID, string(slot.BookingStatus), "book twice for student "+in.StudentID+" on")
			}
		}

		now := e.clock.Now()
		courseID := in.CourseID

		if actual == models.ActionNew {
			courseName := in.CourseName
			slot.BookingStatus = models.SlotStatusBooked
			slot.BookedCourseID = &courseID
			slot.BookedCourseName = &courseName
			slot.UpdatedAt = now
		} else if *slot.BookedCourseID != in.CourseID {
			return apperrors.ConflictingCourseError(slot.ID, *slot.BookedCourseID, in.CourseID)
		}

		agg.Bookings = append(agg.Bookings, &models.Booking{
			ID:            bookingID,
			StudentID:     in.StudentID,
			InstructorID:  slot.InstructorID,
			CourseID:      courseID,
			TimeSlotID:    slot.ID,
			ScheduledDate: models.NextOccurrence(slot.DayOfWeek, now.In(e.location)),
			Action:        actual,
			Status:        models.BookingStatusPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		})

		return checkSlot(agg)
	})
	if err != nil {
		return nil, err
	}
	return agg.Booking(bookingID), nil
}

// ConfirmBooking moves a pending booking to confirmed
func (e *BookingEngine) ConfirmBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	return e.transitionBooking(ctx, bookingID, models.BookingStatusConfirmed, "confirm")
}

// CompleteBooking marks a confirmed booking as held
func (e *BookingEngine) CompleteBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	return e.transitionBooking(ctx, bookingID, models.BookingStatusCompleted, "complete")
}

// CancelBooking cancels an active booking. When no active bookings remain the slot
// is released back to available and its course binding cleared.
func (e *BookingEngine) CancelBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	return e.transitionBooking(ctx, bookingID, models.BookingStatusCancelled, "cancel")
}

func (e *BookingEngine) transitionBooking(ctx context.Context, bookingID string, next models.BookingStatus, operation string) (*models.Booking, error) {
	slotID, err := e.store.SlotIDForBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	agg, err := e.store.UpdateSlot(ctx, slotID, func(agg *models.SlotAggregate) error {
		booking := agg.Booking(bookingID)
		if booking == nil {
			return apperrors.NotFoundError("booking", bookingID)
		}
		if !booking.Status.CanTransitionTo(next) {
			return apperrors.InvalidStateError("booking", booking.ID, string(booking.Status), operation)
		}

		now := e.clock.Now()
		booking.Status = next
		booking.UpdatedAt = now

		if next == models.BookingStatusCancelled && agg.ActiveBookings() == 0 {
			agg.Slot.BookingStatus = models.SlotStatusAvailable
			agg.Slot.BookedCourseID = nil
			agg.Slot.BookedCourseName = nil
			agg.Slot.UpdatedAt = now
		}

		return checkSlot(agg)
	})
	if err != nil {
		return nil, err
	}
	return agg.Booking(bookingID), nil
}

// GetSlot returns a committed snapshot of a slot and its bookings
func (e *BookingEngine) GetSlot(ctx context.Context, slotID string) (*models.SlotAggregate, error) {
	return e.store.GetSlot(ctx, slotID)
}

// GetBooking returns a booking together with its slot
func (e *BookingEngine) GetBooking(ctx context.Context, bookingID string) (*models.Booking, *models.TimeSlot, error) {
	slotID, err := e.store.SlotIDForBooking(ctx, bookingID)
	if err != nil {
		return nil, nil, err
	}
	agg, err := e.store.GetSlot(ctx, slotID)
	if err != nil {
		return nil, nil, err
	}
	booking := agg.Booking(bookingID)
	if booking == nil {
		return nil, nil, apperrors.NotFoundError("booking", bookingID)
	}
	return booking, agg.Slot, nil
}

// ListSlotsByInstructor returns an instructor's weekly slots
func (e *BookingEngine) ListSlotsByInstructor(ctx context.Context, instructorID string) ([]*models.TimeSlot, error) {
	return e.store.ListSlotsByInstructor(ctx, instructorID)
}

func checkSlot(agg *models.SlotAggregate) error {
	if err := agg.Validate(); err != nil {
		return apperrors.InvariantViolationError("slot", agg.Slot.ID, err.Error())
	}
	return nil
}
