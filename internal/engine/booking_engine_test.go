package engine_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/getmentor/consultations-api/internal/engine"
	"github.com/getmentor/consultations-api/internal/models"
	"github.com/getmentor/consultations-api/internal/repository"
	"github.com/getmentor/consultations-api/pkg/clock"
	apperrors "github.com/getmentor/consultations-api/pkg/errors"
	"github.com/getmentor/consultations-api/pkg/idgen"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBookingEngine(t *testing.T, loc *time.Location) *engine.BookingEngine {
	t.Helper()
	return engine.NewBookingEngine(repository.NewMemoryStore(), clock.NewFixed(testNow), idgen.NewSequence("id"), loc)
}

func day(d int) *int { return &d }

func createSlot(t *testing.T, e *engine.BookingEngine, instructorID string, dayOfWeek int, start, end models.TimeOfDay) *models.TimeSlot {
	t.Helper()
	slot, err := e.CreateSlot(context.Background(), instructorID, models.CreateSlotPayload{
		DayOfWeek: day(dayOfWeek),
		StartTime: start,
		EndTime:   end,
	})
	require.NoError(t, err)
	return slot
}

func TestResolveAction(t *testing.T) {
	course := "course-1"
	assert.Equal(t, models.ActionNew, engine.ResolveAction(&models.TimeSlot{BookingStatus: models.SlotStatusAvailable}))
	assert.Equal(t, models.ActionJoin, engine.ResolveAction(&models.TimeSlot{BookingStatus: models.SlotStatusBooked, BookedCourseID: &course}))
}

func TestBookingEngine_CreateSlot(t *testing.T) {
	e := newBookingEngine(t, nil)
	ctx := context.Background()

	slot := createSlot(t, e, "instructor-1", 3, "10:00", "11:00")
	assert.Equal(t, models.SlotStatusAvailable, slot.BookingStatus)
	assert.Nil(t, slot.BookedCourseID)

	tests := []struct {
		name         string
		instructorID string
		payload      models.CreateSlotPayload
		wantErr      error
	}{
		{"overlapping window", "instructor-1", models.CreateSlotPayload{DayOfWeek: day(3), StartTime: "10:30", EndTime: "11:30"}, apperrors.ErrInvalidInput},
		{"missing day", "instructor-1", models.CreateSlotPayload{StartTime: "12:00", EndTime: "13:00"}, apperrors.ErrInvalidInput},
		{"day out of range", "instructor-1", models.CreateSlotPayload{DayOfWeek: day(7), StartTime: "12:00", EndTime: "13:00"}, apperrors.ErrInvalidInput},
		{"end before start", "instructor-1", models.CreateSlotPayload{DayOfWeek: day(1), StartTime: "13:00", EndTime: "12:00"}, apperrors.ErrInvalidInput},
		{"adjacent window", "instructor-1", models.CreateSlotPayload{DayOfWeek: day(3), StartTime: "11:00", EndTime: "12:00"}, nil},
		{"same window other day", "instructor-1", models.CreateSlotPayload{DayOfWeek: day(4), StartTime: "10:00", EndTime: "11:00"}, nil},
		{"same window other instructor", "instructor-2", models.CreateSlotPayload{DayOfWeek: day(3), StartTime: "10:00", EndTime: "11:00"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.CreateSlot(ctx, tt.instructorID, tt.payload)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	slots, err := e.ListSlotsByInstructor(ctx, "instructor-1")
	require.NoError(t, err)
	assert.Len(t, slots, 3)
}

func TestBookingEngine_CommitBooking_NewThenJoin(t *testing.T) {
	e := newBookingEngine(t, nil)
	ctx := context.Background()
	slot := createSlot(t, e, "instructor-1", 5, "17:00", "18:00")

	action, err := e.ResolveSlotAction(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ActionNew, action)

	first, err := e.CommitBooking(ctx, engine.CommitBookingInput{
		SlotID: slot.ID, StudentID: "student-1", CourseID: "course-1", CourseName: "Algebra", Expected: models.ActionNew,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ActionNew, first.Action)
	assert.Equal(t, models.BookingStatusPending, first.Status)
	assert.Equal(t, "instructor-1", first.InstructorID)
	assert.Equal(t, models.Date("2026-10-16"), first.ScheduledDate)

	action, err = e.ResolveSlotAction(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ActionJoin, action)

	second, err := e.CommitBooking(ctx, engine.CommitBookingInput{
		SlotID: slot.ID, StudentID: "student-2", CourseID: "course-1", Expected: models.ActionJoin,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ActionJoin, second.Action)
	assert.Equal(t, "course-1", second.CourseID)

	agg, err := e.GetSlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SlotStatusBooked, agg.Slot.BookingStatus)
	require.NotNil(t, agg.Slot.BookedCourseID)
	assert.Equal(t, "course-1", *agg.Slot.BookedCourseID)
	require.NotNil(t, agg.Slot.BookedCourseName)
	assert.Equal(t, "Algebra", *agg.Slot.BookedCourseName)
	assert.Len(t, agg.Bookings, 2)
	assert.NoError(t, agg.Validate())
}

func TestBookingEngine_CommitBooking_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown slot", func(t *testing.T) {
		e := newBookingEngine(t, nil)
		_, err := e.CommitBooking(ctx, engine.CommitBookingInput{SlotID: "missing", StudentID: "s", CourseID: "c"})
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("missing course", func(t *testing.T) {
		e := newBookingEngine(t, nil)
		slot := createSlot(t, e, "instructor-1", 1, "09:00", "10:00")
		_, err := e.CommitBooking(ctx, engine.CommitBookingInput{SlotID: slot.ID, StudentID: "s"})
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})

	t.Run("stale new gets already booked", func(t *testing.T) {
		e := newBookingEngine(t, nil)
		slot := createSlot(t, e, "instructor-1", 1, "09:00", "10:00")
		_, err := e.CommitBooking(ctx, engine.CommitBookingInput{SlotID: slot.ID, StudentID: "s1", CourseID: "course-1", Expected: models.ActionNew})
		require.NoError(t, err)

		_, err = e.CommitBooking(ctx, engine.CommitBookingInput{SlotID: slot.ID, StudentID: "s2", CourseID: "course-2", Expected: models.ActionNew})
		require.ErrorIs(t, err, apperrors.ErrAlreadyBooked)

		var booked *apperrors.AlreadyBookedError
		require.True(t, errors.As(err, &booked))
		assert.Equal(t, "course-1", booked.BoundCourseID)
		assert.Equal(t, apperrors.ActionJoin, booked.RetryAction())

		agg, _ := e.GetSlot(ctx, slot.ID)
		assert.Len(t, agg.Bookings, 1, "failed attempt must leave no trace")
		assert.Equal(t, "course-1", *agg.Slot.BookedCourseID)
	})

	t.Run("stale join on available slot", func(t *testing.T) {
		e := newBookingEngine(t, nil)
		slot := createSlot(t, e, "instructor-1", 1, "09:00", "10:00")
		_, err := e.CommitBooking(ctx, engine.CommitBookingInput{SlotID: slot.ID, StudentID: "s1", CourseID: "course-1", Expected: models.ActionJoin})
		assert.ErrorIs(t, err, apperrors.ErrInvalidState)
	})

	t.Run("join with different course", func(t *testing.T) {
		e := newBookingEngine(t, nil)
		slot := createSlot(t, e, "instructor-1", 1, "09:00", "10:00")
		_, err := e.CommitBooking(ctx, engine.CommitBookingInput{SlotID: slot.ID, StudentID: "s1", CourseID: "course-1"})
		require.NoError(t, err)

		_, err = e.CommitBooking(ctx, engine.CommitBookingInput{SlotID: slot.ID, StudentID: "s2", CourseID: "course-2", Expected: models.ActionJoin})
		assert.ErrorIs(t, err, apperrors.ErrConflictingCourse)
	})

	t.Run("same student twice", func(t *testing.T) {
		e := newBookingEngine(t, nil)
		slot := createSlot(t, e, "instructor-1", 1, "09:00", "10:00")
		_, err := e.CommitBooking(ctx, engine.CommitBookingInput{SlotID: slot.ID, StudentID: "s1", CourseID: "course-1"})
		require.NoError(t, err)

		_, err = e.CommitBooking(ctx, engine.CommitBookingInput{SlotID: slot.ID, StudentID: "s1", CourseID: "course-1"})
		assert.ErrorIs(t, err, apperrors.ErrInvalidState)
	})

	t.Run("unknown expected action", func(t *testing.T) {
		e := newBookingEngine(t, nil)
		slot := createSlot(t, e, "instructor-1", 1, "09:00", "10:00")
		_, err := e.CommitBooking(ctx, engine.CommitBookingInput{SlotID: slot.ID, StudentID: "s1", CourseID: "course-1", Expected: "steal"})
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})
}

func TestBookingEngine_ScheduledDate(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		loc       *time.Location
		dayOfWeek int
		want      models.Date
	}{
		{"today", nil, 3, "2026-10-14"},
		{"later this week", nil, 6, "2026-10-17"},
		{"wraps to next week", nil, 1, "2026-10-19"},
		{"sunday", nil, 0, "2026-10-18"},
		// 09:30 UTC is still Tuesday 23:30 ten hours west
		{"local calendar", time.FixedZone("UTC-10", -10*3600), 2, "2026-10-13"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newBookingEngine(t, tt.loc)
			slot := createSlot(t, e, "instructor-1", tt.dayOfWeek, "09:00", "10:00")

			booking, err := e.CommitBooking(ctx, engine.CommitBookingInput{SlotID: slot.ID, StudentID: "s1", CourseID: "course-1"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, booking.ScheduledDate)
		})
	}
}

func TestBookingEngine_CancelBooking_ReleasesSlot(t *testing.T) {
	e := newBookingEngine(t, nil)
	ctx := context.Background()
	slot := createSlot(t, e, "instructor-1", 2, "15:00", "16:00")

	first, err := e.CommitBooking(ctx, engine.CommitBookingInput{SlotID: slot.ID, StudentID: "s1", CourseID: "course-1", Expected: models.ActionNew})
	require.NoError(t, err)
	second, err := e.CommitBooking(ctx, engine.CommitBookingInput{SlotID: slot.ID, StudentID: "s2", CourseID: "course-1", Expected: models.ActionJoin})
	require.NoError(t, err)

	_, err = e.ConfirmBooking(ctx, first.ID)
	require.NoError(t, err)

	cancelled, err := e.CancelBooking(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCancelled, cancelled.Status)

	agg, _ := e.GetSlot(ctx, slot.ID)
	assert.Equal(t, models.SlotStatusBooked, agg.Slot.BookingStatus, "slot stays bound while a join is active")

	_, err = e.CancelBooking(ctx, second.ID)
	require.NoError(t, err)

	agg, _ = e.GetSlot(ctx, slot.ID)
	assert.Equal(t, models.SlotStatusAvailable, agg.Slot.BookingStatus)
	assert.Nil(t, agg.Slot.BookedCourseID)
	assert.Nil(t, agg.Slot.BookedCourseName)

	_, err = e.CancelBooking(ctx, second.ID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)

	// Released slot can be bound to another course
	third, err := e.CommitBooking(ctx, engine.CommitBookingInput{SlotID: slot.ID, StudentID: "s3", CourseID: "course-2", Expected: models.ActionNew})
	require.NoError(t, err)
	assert.Equal(t, models.ActionNew, third.Action)
}

func TestBookingEngine_BookingLifecycle(t *testing.T) {
	e := newBookingEngine(t, nil)
	ctx := context.Background()
	slot := createSlot(t, e, "instructor-1", 2, "15:00", "16:00")
	b, err := e.CommitBooking(ctx, engine.CommitBookingInput{SlotID: slot.ID, StudentID: "s1", CourseID: "course-1"})
	require.NoError(t, err)

	_, err = e.CompleteBooking(ctx, b.ID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidState, "pending bookings cannot complete")

	confirmed, err := e.ConfirmBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusConfirmed, confirmed.Status)

	completed, err := e.CompleteBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCompleted, completed.Status)

	got, gotSlot, err := e.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCompleted, got.Status)
	assert.Equal(t, slot.ID, gotSlot.ID)

	_, err = e.ConfirmBooking(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestBookingEngine_ConcurrentNewBookings_OneBindsOthersJoinOrFail(t *testing.T) {
	e := newBookingEngine(t, nil)
	ctx := context.Background()
	slot := createSlot(t, e, "instructor-1", 4, "19:00", "20:00")

	const students = 20
	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		newBookings int
		lostRace    int
	)
	for i := 0; i < students; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := e.CommitBooking(ctx, engine.CommitBookingInput{
				SlotID:    slot.ID,
				StudentID: fmt.Sprintf("student-%d", i),
				CourseID:  fmt.Sprintf("course-%d", i%2),
				Expected:  models.ActionNew,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				newBookings++
			case apperrors.IsAlreadyBooked(err):
				lostRace++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, newBookings)
	assert.Equal(t, students-1, lostRace)

	agg, err := e.GetSlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.Len(t, agg.Bookings, 1)
	assert.NoError(t, agg.Validate())
}

func TestBookingEngine_ConcurrentJoins_AllSameCourse(t *testing.T) {
	e := newBookingEngine(t, nil)
	ctx := context.Background()
	slot := createSlot(t, e, "instructor-1", 4, "19:00", "20:00")

	const students = 20
	var wg sync.WaitGroup
	for i := 0; i < students; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := e.CommitBooking(ctx, engine.CommitBookingInput{
				SlotID:    slot.ID,
				StudentID: fmt.Sprintf("student-%d", i),
				CourseID:  "course-1",
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	agg, err := e.GetSlot(ctx, slot.ID)
	require.NoError(t, err)
	require.Len(t, agg.Bookings, students)

	var news int
	for _, b := range agg.Bookings {
		assert.Equal(t, "course-1", b.CourseID)
		if b.Action == models.ActionNew {
			news++
		}
	}
	assert.Equal(t, 1, news)
}
