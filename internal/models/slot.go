package models

import (
	"fmt"
	"time"
)

// SlotStatus is the booking status of a weekly time slot
type SlotStatus string

const (
	SlotStatusAvailable SlotStatus = "available"
	SlotStatusBooked    SlotStatus = "booked"
)

// ActionKind tells a caller whether committing against a slot creates or joins a session
type ActionKind string

const (
	ActionNew  ActionKind = "new"
	ActionJoin ActionKind = "join"
)

// Valid reports whether a is new or join
func (a ActionKind) Valid() bool {
	return a == ActionNew || a == ActionJoin
}

// BookingStatus represents the status of a booking
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCompleted BookingStatus = "completed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// IsActive reports whether the booking still holds its slot
func (s BookingStatus) IsActive() bool {
	return s == BookingStatusPending || s == BookingStatusConfirmed
}

// CanTransitionTo checks if a status transition is valid
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	switch s {
	case BookingStatusPending:
		return next == BookingStatusConfirmed || next == BookingStatusCancelled
	case BookingStatusConfirmed:
		return next == BookingStatusCompleted || next == BookingStatusCancelled
	default:
		return false
	}
}

// TimeSlot is a recurring weekly window an instructor teaches in
type TimeSlot struct {
	ID               string     `json:"id"`
	InstructorID     string     `json:"instructorId"`
	DayOfWeek        int        `json:"dayOfWeek"`
	StartTime        TimeOfDay  `json:"startTime"`
	EndTime          TimeOfDay  `json:"endTime"`
	BookingStatus    SlotStatus `json:"bookingStatus"`
	BookedCourseID   *string    `json:"bookedCourseId"`
	BookedCourseName *string    `json:"bookedCourseName"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// Range returns the slot's time window
func (s *TimeSlot) Range() TimeRange {
	return TimeRange{Start: s.StartTime, End: s.EndTime}
}

// Clone returns a deep copy
func (s *TimeSlot) Clone() *TimeSlot {
	if s == nil {
		return nil
	}
	c := *s
	if s.BookedCourseID != nil {
		v := *s.BookedCourseID
		c.BookedCourseID = &v
	}
	if s.BookedCourseName != nil {
		v := *s.BookedCourseName
		c.BookedCourseName = &v
	}
	return &c
}

// Booking is a student's reservation of a slot occurrence for a course
type Booking struct {
	ID            string        `json:"id"`
	StudentID     string        `json:"studentId"`
	InstructorID  string        `json:"instructorId"`
	CourseID      string        `json:"courseId"`
	TimeSlotID    string        `json:"timeSlotId"`
	ScheduledDate Date          `json:"scheduledDate"`
	Action        ActionKind    `json:"action"`
	Status        BookingStatus `json:"status"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// Clone returns a copy
func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	c := *b
	return &c
}

// SlotAggregate is the transactional unit of the booking engine:
// a slot together with every booking made against it.
type SlotAggregate struct {
	Slot     *TimeSlot  `json:"slot"`
	Bookings []*Booking `json:"bookings"`
}

// Clone returns a deep copy so a transaction can work on private state
func (a *SlotAggregate) Clone() *SlotAggregate {
	if a == nil {
		return nil
	}
	c := &SlotAggregate{
		Slot:     a.Slot.Clone(),
		Bookings: make([]*Booking, 0, len(a.Bookings)),
	}
	for _, b := range a.Bookings {
		c.Bookings = append(c.Bookings, b.Clone())
	}
	return c
}

// Booking returns the booking with the given id, or nil
func (a *SlotAggregate) Booking(bookingID string) *Booking {
	for _, b := range a.Bookings {
		if b.ID == bookingID {
			return b
		}
	}
	return nil
}

// ActiveBookings counts bookings that still hold the slot
func (a *SlotAggregate) ActiveBookings() int {
	n := 0
	for _, b := range a.Bookings {
		if b.Status.IsActive() {
			n++
		}
	}
	return n
}

// Validate checks the slot invariants: course binding is set iff booked,
// and every active booking references the bound course.
func (a *SlotAggregate) Validate() error {
	if a.Slot == nil {
		return fmt.Errorf("aggregate has no slot")
	}
	slot := a.Slot

	switch slot.BookingStatus {
	case SlotStatusAvailable:
		if slot.BookedCourseID != nil || slot.BookedCourseName != nil {
			return fmt.Errorf("available slot has a bound course")
		}
		if n := a.ActiveBookings(); n > 0 {
			return fmt.Errorf("available slot has %d active bookings", n)
		}
	case SlotStatusBooked:
		if slot.BookedCourseID == nil {
			return fmt.Errorf("booked slot has no bound course")
		}
		for _, b := range a.Bookings {
			if b.Status.IsActive() && b.CourseID != *slot.BookedCourseID {
				return fmt.Errorf("booking %s references course %s, slot is bound to %s", b.ID, b.CourseID, *slot.BookedCourseID)
			}
		}
	default:
		return fmt.Errorf("unknown slot status %q", slot.BookingStatus)
	}

	for _, b := range a.Bookings {
		if b.TimeSlotID != slot.ID {
			return fmt.Errorf("booking %s belongs to slot %s", b.ID, b.TimeSlotID)
		}
	}
	return nil
}

// CreateSlotPayload is the payload for publishing a weekly slot
type CreateSlotPayload struct {
	DayOfWeek *int      `json:"dayOfWeek" binding:"required,min=0,max=6"`
	StartTime TimeOfDay `json:"startTime" binding:"required"`
	EndTime   TimeOfDay `json:"endTime" binding:"required"`
}

// CommitBookingPayload is the payload for booking a slot
type CommitBookingPayload struct {
	CourseID   string     `json:"courseId" binding:"required,max=100"`
	CourseName string     `json:"courseName" binding:"max=200"`
	Action     ActionKind `json:"action" binding:"omitempty,oneof=new join"`
}

// SlotActionResponse is the response for resolving the action against a slot
type SlotActionResponse struct {
	SlotID string     `json:"slotId"`
	Action ActionKind `json:"action"`
}

// SlotsResponse is the response for listing an instructor's slots
type SlotsResponse struct {
	Slots []*TimeSlot `json:"slots"`
	Total int         `json:"total"`
}
