package errors

import (
	"errors"
	"fmt"
)

// Error kinds shared by the matching and booking engines

var (
	// ErrNotFound indicates a requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidState indicates the aggregate is not in a status compatible with the operation
	ErrInvalidState = errors.New("invalid state")

	// ErrDuplicateOffer indicates the instructor already holds a pending offer on the request
	ErrDuplicateOffer = errors.New("duplicate offer")

	// ErrConflictingCourse indicates a join booking referenced a course other than the one bound to the slot
	ErrConflictingCourse = errors.New("conflicting course")

	// ErrAlreadyBooked indicates a "new" booking lost the race for an available slot
	ErrAlreadyBooked = errors.New("already booked")

	// ErrInvariantViolation indicates a transaction would break an aggregate invariant.
	// Seeing it means there is a bug.
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrAccessDenied indicates the user doesn't have permission
	ErrAccessDenied = errors.New("access denied")

	// ErrInvalidInput indicates invalid input data
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates missing or invalid authentication
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInternal indicates an internal server error
	ErrInternal = errors.New("internal error")
)

// ActionJoin is the action a caller should re-resolve to after losing a slot race.
const ActionJoin = "join"

// AlreadyBookedError is returned when a "new" booking finds the slot already booked.
// It carries the course the slot is now bound to so callers can decide whether a join makes sense.
type AlreadyBookedError struct {
	SlotID        string
	BoundCourseID string
}

func (e *AlreadyBookedError) Error() string {
	return fmt.Sprintf("slot %s already booked for course %s", e.SlotID, e.BoundCourseID)
}

// Unwrap lets errors.Is match ErrAlreadyBooked
func (e *AlreadyBookedError) Unwrap() error {
	return ErrAlreadyBooked
}

// RetryAction is the action the caller should retry with
func (e *AlreadyBookedError) RetryAction() string {
	return ActionJoin
}

// NotFoundError creates a not found error with context
func NotFoundError(resource, id string) error {
	return fmt.Errorf("%s %s: %w", resource, id, ErrNotFound)
}

// InvalidStateError creates an invalid state error with context
func InvalidStateError(resource, id, status, operation string) error {
	return fmt.Errorf("cannot %s %s %s in status %q: %w", operation, resource, id, status, ErrInvalidState)
}

// DuplicateOfferError creates a duplicate offer error with context
func DuplicateOfferError(requestID, instructorID, offerID string) error {
	return fmt.Errorf("instructor %s already has pending offer %s on request %s: %w", instructorID, offerID, requestID, ErrDuplicateOffer)
}

// ConflictingCourseError creates a conflicting course error with context
func ConflictingCourseError(slotID, boundCourseID, requestedCourseID string) error {
	return fmt.Errorf("slot %s is bound to course %s, not %s: %w", slotID, boundCourseID, requestedCourseID, ErrConflictingCourse)
}

// InvariantViolationError creates an invariant violation error with context
func InvariantViolationError(aggregate, id, reason string) error {
	return fmt.Errorf("%s %s: %s: %w", aggregate, id, reason, ErrInvariantViolation)
}

// AccessDeniedError creates an access denied error with context
func AccessDeniedError(reason string) error {
	if reason != "" {
		return fmt.Errorf("%s: %w", reason, ErrAccessDenied)
	}
	return ErrAccessDenied
}

// InvalidInputError creates an invalid input error with context
func InvalidInputError(field, reason string) error {
	return fmt.Errorf("%s: %s: %w", field, reason, ErrInvalidInput)
}

// InternalError creates an internal error with context
func InternalError(msg string) error {
	return fmt.Errorf("%s: %w", msg, ErrInternal)
}

// Is checks if an error matches a target error (works with wrapped errors)
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target any) bool {
	return errors.As(err, target)
}

// IsAlreadyBooked reports whether err is a lost slot race
func IsAlreadyBooked(err error) bool {
	return errors.Is(err, ErrAlreadyBooked)
}
