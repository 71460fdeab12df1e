package models

// Event types posted to trigger URLs
const (
	EventOfferAccepted  = "offer.accepted"
	EventBookingCreated = "booking.created"
)

// OfferAcceptedPayload is sent when a student accepts an offer
type OfferAcceptedPayload struct {
	RequestID        string    `json:"requestId"`
	OfferID          string    `json:"offerId"`
	StudentID        string    `json:"studentId"`
	InstructorID     string    `json:"instructorId"`
	OfferedPrice     int64     `json:"offeredPrice"`
	OfferedDate      Date      `json:"offeredDate"`
	OfferedStartTime TimeOfDay `json:"offeredStartTime"`
	OfferedEndTime   TimeOfDay `json:"offeredEndTime"`
}

// BookingCreatedPayload is sent when a booking is committed against a slot
type BookingCreatedPayload struct {
	BookingID     string     `json:"bookingId"`
	SlotID        string     `json:"slotId"`
	StudentID     string     `json:"studentId"`
	InstructorID  string     `json:"instructorId"`
	CourseID      string     `json:"courseId"`
	ScheduledDate Date       `json:"scheduledDate"`
	Action        ActionKind `json:"action"`
}
