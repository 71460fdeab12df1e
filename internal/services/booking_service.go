package services

import (
	"context"

	"github.com/getmentor/consultations-api/config"
	"github.com/getmentor/consultations-api/internal/engine"
	"github.com/getmentor/consultations-api/internal/models"
	apperrors "github.com/getmentor/consultations-api/pkg/errors"
	"github.com/getmentor/consultations-api/pkg/logger"
	"github.com/getmentor/consultations-api/pkg/metrics"
	"github.com/getmentor/consultations-api/pkg/profiling"
	"github.com/getmentor/consultations-api/pkg/retry"
	"github.com/getmentor/consultations-api/pkg/tracing"
	"github.com/getmentor/consultations-api/pkg/trigger"
	"go.uber.org/zap"
)

const slotAggregate = "slot"

// BookingService exposes the booking engine to authenticated actors
type BookingService struct {
	engine   *engine.BookingEngine
	triggers EventDispatcher
	config   *config.Config
}

// NewBookingService creates a new BookingService
func NewBookingService(booking *engine.BookingEngine, triggers EventDispatcher, cfg *config.Config) *BookingService {
	return &BookingService{
		engine:   booking,
		triggers: triggers,
		config:   cfg,
	}
}

// CreateSlot publishes a weekly slot for the calling instructor
func (s *BookingService) CreateSlot(ctx context.Context, session *models.ActorSession, payload *models.CreateSlotPayload) (slot *models.TimeSlot, err error) {
	ctx, span := tracing.StartSpan(ctx, "BookingService.CreateSlot", spanAttrs(session)...)
	defer func() { tracing.EndSpan(span, err) }()

	if err := requireRole(session, models.RoleInstructor, "publish slots"); err != nil {
		return nil, err
	}

	slot, err = s.engine.CreateSlot(ctx, session.ActorID, *payload)
	if err != nil {
		return nil, err
	}

	logger.Info("Slot created",
		zap.String("slot_id", slot.ID),
		zap.String("instructor_id", slot.InstructorID),
		zap.Int("day_of_week", slot.DayOfWeek),
		zap.String("start_time", string(slot.StartTime)))
	return slot, nil
}

// GetSlot returns a slot with its bookings
func (s *BookingService) GetSlot(ctx context.Context, slotID string) (*models.SlotAggregate, error) {
	return s.engine.GetSlot(ctx, slotID)
}

// ListSlotsByInstructor returns an instructor's weekly slots
func (s *BookingService) ListSlotsByInstructor(ctx context.Context, instructorID string) (*models.SlotsResponse, error) {
	slots, err := s.engine.ListSlotsByInstructor(ctx, instructorID)
	if err != nil {
		return nil, err
	}
	return &models.SlotsResponse{Slots: slots, Total: len(slots)}, nil
}

// ResolveSlotAction tells a caller whether booking the slot right now starts or joins a session
func (s *BookingService) ResolveSlotAction(ctx context.Context, slotID string) (*models.SlotActionResponse, error) {
	action, err := s.engine.ResolveSlotAction(ctx, slotID)
	if err != nil {
		return nil, err
	}
	return &models.SlotActionResponse{SlotID: slotID, Action: action}, nil
}

// BookSlot books a slot for the calling student.
//
// The expected action comes from the payload or is resolved up front. When a "new"
// booking loses the race for the slot, the action is re-resolved (normally "join") and
// the commit retried up to Booking.JoinRetries times. A join for a different course than
// the winner's fails with ErrConflictingCourse.
func (s *BookingService) BookSlot(ctx context.Context, session *models.ActorSession, slotID string, payload *models.CommitBookingPayload) (booking *models.Booking, err error) {
	ctx, span := tracing.StartSpan(ctx, "BookingService.BookSlot",
		spanAttrs(session, tracing.SlotIDKey.String(slotID), tracing.ActionKey.String(string(payload.Action)))...)
	defer func() { tracing.EndSpan(span, err) }()

	if err := requireRole(session, models.RoleStudent, "book slots"); err != nil {
		return nil, err
	}

	expected := payload.Action
	if expected == "" {
		expected, err = s.engine.ResolveSlotAction(ctx, slotID)
		if err != nil {
			return nil, err
		}
	}

	cfg := retry.BookingJoinConfig(s.config.Booking.JoinRetries, apperrors.IsAlreadyBooked)
	cfg.OnRetry = func(_ int, err error) {
		metrics.BookingJoinRetries.Inc()
		// The slot may have been released again since the race was lost
		if action, resolveErr := s.engine.ResolveSlotAction(ctx, slotID); resolveErr == nil {
			expected = action
			return
		}
		var lost *apperrors.AlreadyBookedError
		if apperrors.As(err, &lost) {
			expected = models.ActionKind(lost.RetryAction())
		}
	}

	profiling.Do(ctx, "book_slot", func(ctx context.Context) {
		booking, err = retry.DoWithResult(ctx, cfg, "book_slot", func() (*models.Booking, error) {
			return s.engine.CommitBooking(ctx, engine.CommitBookingInput{
				SlotID:     slotID,
				StudentID:  session.ActorID,
				CourseID:   payload.CourseID,
				CourseName: payload.CourseName,
				Expected:   expected,
			})
		})
	})
	metrics.BookingsCommitted.WithLabelValues(string(expected), metrics.Outcome(err)).Inc()
	if err != nil {
		haltOnInvariantViolation(slotAggregate, "book", err)
		return nil, err
	}

	s.triggers.CallAsync(s.config.EventTriggers.BookingCreatedTriggerURL, trigger.Event{
		Type:       models.EventBookingCreated,
		ID:         booking.ID,
		OccurredAt: booking.CreatedAt,
		Payload: models.BookingCreatedPayload{
			BookingID:     booking.ID,
			SlotID:        booking.TimeSlotID,
			StudentID:     booking.StudentID,
			InstructorID:  booking.InstructorID,
			CourseID:      booking.CourseID,
			ScheduledDate: booking.ScheduledDate,
			Action:        booking.Action,
		},
	})

	logger.Info("Booking committed",
		zap.String("booking_id", booking.ID),
		zap.String("slot_id", slotID),
		zap.String("student_id", booking.StudentID),
		zap.String("action", string(booking.Action)),
		zap.String("scheduled_date", booking.ScheduledDate.String()))
	return booking, nil
}

// GetBooking returns a booking visible to its student or the slot's instructor
func (s *BookingService) GetBooking(ctx context.Context, session *models.ActorSession, bookingID string) (*models.Booking, error) {
	if session == nil {
		return nil, apperrors.ErrUnauthorized
	}

	booking, _, err := s.engine.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.StudentID != session.ActorID && booking.InstructorID != session.ActorID {
		return nil, apperrors.AccessDeniedError("booking belongs to other actors")
	}
	return booking, nil
}

// ConfirmBooking confirms a pending booking. Only the slot's instructor may confirm.
func (s *BookingService) ConfirmBooking(ctx context.Context, session *models.ActorSession, bookingID string) (*models.Booking, error) {
	return s.transitionBooking(ctx, session, bookingID, "confirm", models.RoleInstructor, s.engine.ConfirmBooking)
}

// CompleteBooking marks a confirmed booking as held. Only the slot's instructor may complete.
func (s *BookingService) CompleteBooking(ctx context.Context, session *models.ActorSession, bookingID string) (*models.Booking, error) {
	return s.transitionBooking(ctx, session, bookingID, "complete", models.RoleInstructor, s.engine.CompleteBooking)
}

// CancelBooking cancels the calling student's booking
func (s *BookingService) CancelBooking(ctx context.Context, session *models.ActorSession, bookingID string) (*models.Booking, error) {
	return s.transitionBooking(ctx, session, bookingID, "cancel", models.RoleStudent, s.engine.CancelBooking)
}

func (s *BookingService) transitionBooking(
	ctx context.Context,
	session *models.ActorSession,
	bookingID string,
	operation string,
	role models.ActorRole,
	apply func(context.Context, string) (*models.Booking, error),
) (booking *models.Booking, err error) {
	ctx, span := tracing.StartSpan(ctx, "BookingService.transitionBooking",
		spanAttrs(session, tracing.OperationKey.String(operation), tracing.BookingIDKey.String(bookingID))...)
	defer func() { tracing.EndSpan(span, err) }()

	if err := requireRole(session, role, operation+" bookings"); err != nil {
		return nil, err
	}

	current, _, err := s.engine.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	owner := current.StudentID
	if role == models.RoleInstructor {
		owner = current.InstructorID
	}
	if owner != session.ActorID {
		logger.Warn("Access denied to booking",
			zap.String("booking_id", bookingID),
			zap.String("operation", operation),
			zap.String("actor_id", session.ActorID))
		return nil, apperrors.AccessDeniedError("booking belongs to another " + string(role))
	}

	booking, err = apply(ctx, bookingID)
	metrics.BookingTransitions.WithLabelValues(operation, metrics.Outcome(err)).Inc()
	if err != nil {
		haltOnInvariantViolation(slotAggregate, operation, err)
		return nil, err
	}

	logger.Info("Booking status updated",
		zap.String("booking_id", bookingID),
		zap.String("slot_id", booking.TimeSlotID),
		zap.String("status", string(booking.Status)))
	return booking, nil
}
