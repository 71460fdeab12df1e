package models

import (
	"fmt"
	"time"
)

// Level is the student's self-assessed level for a consultation topic
type Level string

const (
	LevelBeginner     Level = "beginner"
	LevelIntermediate Level = "intermediate"
	LevelAdvanced     Level = "advanced"
)

// RequestStatus represents the status of a consultation request
type RequestStatus string

const (
	RequestStatusOpen       RequestStatus = "open"
	RequestStatusInProgress RequestStatus = "in_progress"
	RequestStatusClosed     RequestStatus = "closed"
	RequestStatusCancelled  RequestStatus = "cancelled"
)

// AllRequestStatuses lists every request status, in lifecycle order
var AllRequestStatuses = []RequestStatus{
	RequestStatusOpen, RequestStatusInProgress, RequestStatusClosed, RequestStatusCancelled,
}

// IsTerminal returns true if no further transitions are allowed
func (s RequestStatus) IsTerminal() bool {
	return s == RequestStatusClosed || s == RequestStatusCancelled
}

// Valid reports whether s is a known status
func (s RequestStatus) Valid() bool {
	for _, known := range AllRequestStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// CanTransitionTo checks if a status transition is valid
func (s RequestStatus) CanTransitionTo(next RequestStatus) bool {
	if s.IsTerminal() {
		return false
	}

	switch s {
	case RequestStatusOpen:
		return next == RequestStatusInProgress || next == RequestStatusCancelled
	case RequestStatusInProgress:
		return next == RequestStatusClosed
	default:
		return false
	}
}

// OfferStatus represents the status of an instructor's offer
type OfferStatus string

const (
	OfferStatusPending   OfferStatus = "pending"
	OfferStatusAccepted  OfferStatus = "accepted"
	OfferStatusRejected  OfferStatus = "rejected"
	OfferStatusWithdrawn OfferStatus = "withdrawn"
)

// IsTerminal returns true if no further transitions are allowed
func (s OfferStatus) IsTerminal() bool {
	return s != OfferStatusPending
}

// CanTransitionTo checks if a status transition is valid
func (s OfferStatus) CanTransitionTo(next OfferStatus) bool {
	if s != OfferStatusPending {
		return false
	}
	return next == OfferStatusAccepted || next == OfferStatusRejected || next == OfferStatusWithdrawn
}

// ConsultationRequest is a student's open call for tutoring help
type ConsultationRequest struct {
	ID              string        `json:"id"`
	StudentID       string        `json:"studentId"`
	Category        string        `json:"category"`
	Title           string        `json:"title"`
	Description     string        `json:"description"`
	Level           Level         `json:"level"`
	BudgetMin       int64         `json:"budgetMin"`
	BudgetMax       int64         `json:"budgetMax"`
	PreferredDates  []Date        `json:"preferredDates"`
	PreferredTimes  []TimeRange   `json:"preferredTimes"`
	Status          RequestStatus `json:"status"`
	OffersCount     int           `json:"offersCount"`
	AcceptedOfferID *string       `json:"acceptedOfferId"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

// HasPreferredDate reports whether d is one of the request's preferred dates
func (r *ConsultationRequest) HasPreferredDate(d Date) bool {
	for _, preferred := range r.PreferredDates {
		if preferred == d {
			return true
		}
	}
	return false
}

// Clone returns a deep copy
func (r *ConsultationRequest) Clone() *ConsultationRequest {
	if r == nil {
		return nil
	}
	c := *r
	c.PreferredDates = append([]Date(nil), r.PreferredDates...)
	c.PreferredTimes = append([]TimeRange(nil), r.PreferredTimes...)
	if r.AcceptedOfferID != nil {
		id := *r.AcceptedOfferID
		c.AcceptedOfferID = &id
	}
	return &c
}

// ConsultationOffer is an instructor's proposal to fulfil a request
type ConsultationOffer struct {
	ID               string      `json:"id"`
	RequestID        string      `json:"requestId"`
	InstructorID     string      `json:"instructorId"`
	Message          string      `json:"message"`
	OfferedPrice     int64       `json:"offeredPrice"`
	OfferedDate      Date        `json:"offeredDate"`
	OfferedStartTime TimeOfDay   `json:"offeredStartTime"`
	OfferedEndTime   TimeOfDay   `json:"offeredEndTime"`
	Status           OfferStatus `json:"status"`
	CreatedAt        time.Time   `json:"createdAt"`
	UpdatedAt        time.Time   `json:"updatedAt"`
}

// Clone returns a copy
func (o *ConsultationOffer) Clone() *ConsultationOffer {
	if o == nil {
		return nil
	}
	c := *o
	return &c
}

// RequestAggregate is the transactional unit of the matching engine:
// a request together with every offer ever submitted against it.
type RequestAggregate struct {
	Request *ConsultationRequest `json:"request"`
	Offers  []*ConsultationOffer `json:"offers"`
}

// Clone returns a deep copy so a transaction can work on private state
func (a *RequestAggregate) Clone() *RequestAggregate {
	if a == nil {
		return nil
	}
	c := &RequestAggregate{
		Request: a.Request.Clone(),
		Offers:  make([]*ConsultationOffer, 0, len(a.Offers)),
	}
	for _, o := range a.Offers {
		c.Offers = append(c.Offers, o.Clone())
	}
	return c
}

// Offer returns the offer with the given id, or nil
func (a *RequestAggregate) Offer(offerID string) *ConsultationOffer {
	for _, o := range a.Offers {
		if o.ID == offerID {
			return o
		}
	}
	return nil
}

// PendingOfferBy returns the instructor's pending offer, or nil
func (a *RequestAggregate) PendingOfferBy(instructorID string) *ConsultationOffer {
	for _, o := range a.Offers {
		if o.InstructorID == instructorID && o.Status == OfferStatusPending {
			return o
		}
	}
	return nil
}

// Validate checks the cross-entity invariants of the aggregate
func (a *RequestAggregate) Validate() error {
	if a.Request == nil {
		return fmt.Errorf("aggregate has no request")
	}
	req := a.Request

	if req.OffersCount != len(a.Offers) {
		return fmt.Errorf("offersCount %d does not match %d offers", req.OffersCount, len(a.Offers))
	}

	var accepted *ConsultationOffer
	pendingBy := make(map[string]bool, len(a.Offers))
	for _, o := range a.Offers {
		if o.RequestID != req.ID {
			return fmt.Errorf("offer %s belongs to request %s", o.ID, o.RequestID)
		}
		switch o.Status {
		case OfferStatusAccepted:
			if accepted != nil {
				return fmt.Errorf("offers %s and %s are both accepted", accepted.ID, o.ID)
			}
			accepted = o
		case OfferStatusPending:
			if pendingBy[o.InstructorID] {
				return fmt.Errorf("instructor %s has more than one pending offer", o.InstructorID)
			}
			pendingBy[o.InstructorID] = true
			if req.Status == RequestStatusInProgress {
				return fmt.Errorf("offer %s still pending while request is in progress", o.ID)
			}
		}
	}

	hasAcceptedStatus := req.Status == RequestStatusInProgress || req.Status == RequestStatusClosed
	switch {
	case req.AcceptedOfferID == nil:
		if accepted != nil || hasAcceptedStatus {
			return fmt.Errorf("acceptedOfferId is empty but request is %s with accepted offer present=%t", req.Status, accepted != nil)
		}
	default:
		if accepted == nil || !hasAcceptedStatus {
			return fmt.Errorf("acceptedOfferId %s set but request is %s with accepted offer present=%t", *req.AcceptedOfferID, req.Status, accepted != nil)
		}
		if accepted.ID != *req.AcceptedOfferID {
			return fmt.Errorf("acceptedOfferId %s does not match accepted offer %s", *req.AcceptedOfferID, accepted.ID)
		}
	}

	return nil
}

// IsActionable reports whether an offer can still be accepted, rejected or withdrawn.
// Offers left pending on a cancelled request keep their stored status but are not actionable.
func IsActionable(offer *ConsultationOffer, request *ConsultationRequest) bool {
	return offer.Status == OfferStatusPending && request.Status == RequestStatusOpen
}

// CreateRequestPayload is the payload for creating a consultation request
type CreateRequestPayload struct {
	Category       string      `json:"category" binding:"required,max=100"`
	Title          string      `json:"title" binding:"required,max=200"`
	Description    string      `json:"description" binding:"max=5000"`
	Level          Level       `json:"level" binding:"required,oneof=beginner intermediate advanced"`
	BudgetMin      int64       `json:"budgetMin" binding:"gte=0"`
	BudgetMax      int64       `json:"budgetMax" binding:"gtefield=BudgetMin"`
	PreferredDates []Date      `json:"preferredDates" binding:"required,min=1,dive,required"`
	PreferredTimes []TimeRange `json:"preferredTimes" binding:"required,min=1,dive"`
}

// SubmitOfferPayload is the payload for submitting an offer on a request
type SubmitOfferPayload struct {
	Message          string    `json:"message" binding:"max=2000"`
	OfferedPrice     int64     `json:"offeredPrice" binding:"required,gt=0"`
	OfferedDate      Date      `json:"offeredDate" binding:"required"`
	OfferedStartTime TimeOfDay `json:"offeredStartTime" binding:"required"`
	OfferedEndTime   TimeOfDay `json:"offeredEndTime" binding:"required"`
}

// RequestFilter narrows ListRequests results. Zero values match everything.
type RequestFilter struct {
	Status    RequestStatus
	StudentID string
	Category  string
	Limit     int
}

// Matches reports whether req passes the filter
func (f RequestFilter) Matches(req *ConsultationRequest) bool {
	if f.Status != "" && req.Status != f.Status {
		return false
	}
	if f.StudentID != "" && req.StudentID != f.StudentID {
		return false
	}
	if f.Category != "" && req.Category != f.Category {
		return false
	}
	return true
}

// OfferView is an offer decorated with whether it can still be acted on
type OfferView struct {
	*ConsultationOffer
	Actionable bool `json:"actionable"`
}

// RequestsResponse is the response for listing requests
type RequestsResponse struct {
	Requests []*ConsultationRequest `json:"requests"`
	Total    int                    `json:"total"`
}

// NewOfferView decorates offer with its actionability under request
func NewOfferView(offer *ConsultationOffer, request *ConsultationRequest) OfferView {
	return OfferView{ConsultationOffer: offer, Actionable: IsActionable(offer, request)}
}

// RequestDetailsResponse is a request together with its offers
type RequestDetailsResponse struct {
	Request *ConsultationRequest `json:"request"`
	Offers  []OfferView          `json:"offers"`
}

// OffersResponse is the response for listing an instructor's offers
type OffersResponse struct {
	Offers []*ConsultationOffer `json:"offers"`
	Total  int                  `json:"total"`
}
