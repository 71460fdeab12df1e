package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/getmentor/consultations-api/internal/models"
	apperrors "github.com/getmentor/consultations-api/pkg/errors"
)

// table holds committed aggregate snapshots keyed by id.
// Stored values are never mutated in place: writers swap in a fresh copy.
type table[T any] struct {
	mu    sync.RWMutex
	rows  map[string]T
	locks sync.Map // id -> *sync.Mutex
	clone func(T) T
}

func newTable[T any](clone func(T) T) *table[T] {
	return &table[T]{
		rows:  make(map[string]T),
		clone: clone,
	}
}

func (t *table[T]) lock(id string) func() {
	m, _ := t.locks.LoadOrStore(id, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (t *table[T]) get(id string) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.rows[id]
	if !ok {
		var zero T
		return zero, false
	}
	return t.clone(v), true
}

func (t *table[T]) insert(id string, v T) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.rows[id]; exists {
		return false
	}
	t.rows[id] = t.clone(v)
	return true
}

// update runs fn against a private copy under the row lock and swaps it in on success.
// committed, if set, runs after the swap while the row lock is still held.
func (t *table[T]) update(ctx context.Context, id string, fn func(T) error, committed func(T)) (T, bool, error) {
	var zero T

	unlock := t.lock(id)
	defer unlock()

	current, ok := t.get(id)
	if !ok {
		return zero, false, nil
	}

	if err := fn(current); err != nil {
		return zero, true, err
	}

	// Abandoned transactions must not commit
	if err := ctx.Err(); err != nil {
		return zero, true, err
	}

	t.mu.Lock()
	t.rows[id] = t.clone(current)
	t.mu.Unlock()

	if committed != nil {
		committed(current)
	}

	return current, true, nil
}

func (t *table[T]) all() []T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]T, 0, len(t.rows))
	for _, v := range t.rows {
		out = append(out, t.clone(v))
	}
	return out
}

// MemoryStore is an in-process implementation of ConsultationStore and SlotStore.
// It is used in development, in tests, and when STORAGE_BACKEND=memory.
type MemoryStore struct {
	requests *table[*models.RequestAggregate]
	slots    *table[*models.SlotAggregate]

	indexMu      sync.RWMutex
	offerIndex   map[string]string // offer id -> request id
	bookingIndex map[string]string // booking id -> slot id

	instructorLocks sync.Map // instructor id -> *sync.Mutex
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		requests:     newTable(func(a *models.RequestAggregate) *models.RequestAggregate { return a.Clone() }),
		slots:        newTable(func(a *models.SlotAggregate) *models.SlotAggregate { return a.Clone() }),
		offerIndex:   make(map[string]string),
		bookingIndex: make(map[string]string),
	}
}

var (
	_ ConsultationStore = (*MemoryStore)(nil)
	_ SlotStore         = (*MemoryStore)(nil)
)

// CreateRequest inserts a new request with no offers
func (s *MemoryStore) CreateRequest(ctx context.Context, req *models.ConsultationRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.requests.insert(req.ID, &models.RequestAggregate{Request: req, Offers: []*models.ConsultationOffer{}}) {
		return apperrors.InvalidInputError("id", "request "+req.ID+" already exists")
	}
	return nil
}

// GetRequest returns a committed snapshot of the aggregate
func (s *MemoryStore) GetRequest(ctx context.Context, requestID string) (*models.RequestAggregate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	agg, ok := s.requests.get(requestID)
	if !ok {
		return nil, apperrors.NotFoundError("request", requestID)
	}
	return agg, nil
}

// RequestIDForOffer resolves the immutable parent of an offer
func (s *MemoryStore) RequestIDForOffer(ctx context.Context, offerID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.indexMu.RLock()
	defer s.indexMu.RUnlock()
	requestID, ok := s.offerIndex[offerID]
	if !ok {
		return "", apperrors.NotFoundError("offer", offerID)
	}
	return requestID, nil
}

// UpdateRequest runs fn under the aggregate's exclusive lock and commits its result
func (s *MemoryStore) UpdateRequest(ctx context.Context, requestID string, fn RequestMutation) (*models.RequestAggregate, error) {
	agg, found, err := s.requests.update(ctx, requestID, func(agg *models.RequestAggregate) error {
		return fn(agg)
	}, func(agg *models.RequestAggregate) {
		s.indexMu.Lock()
		for _, o := range agg.Offers {
			s.offerIndex[o.ID] = requestID
		}
		s.indexMu.Unlock()
	})
	if !found {
		return nil, apperrors.NotFoundError("request", requestID)
	}
	if err != nil {
		return nil, err
	}
	return agg, nil
}

// ListRequests returns requests matching the filter, newest first
func (s *MemoryStore) ListRequests(ctx context.Context, filter models.RequestFilter) ([]*models.ConsultationRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := []*models.ConsultationRequest{}
	for _, agg := range s.requests.all() {
		if filter.Matches(agg.Request) {
			out = append(out, agg.Request)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// ListOffersByInstructor returns all offers submitted by an instructor, newest first
func (s *MemoryStore) ListOffersByInstructor(ctx context.Context, instructorID string) ([]*models.ConsultationOffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := []*models.ConsultationOffer{}
	for _, agg := range s.requests.all() {
		for _, o := range agg.Offers {
			if o.InstructorID == instructorID {
				out = append(out, o)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// CountRequestsByStatus returns the number of requests in each status
func (s *MemoryStore) CountRequestsByStatus(ctx context.Context) (map[models.RequestStatus]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	counts := make(map[models.RequestStatus]int, len(models.AllRequestStatuses))
	for _, agg := range s.requests.all() {
		counts[agg.Request.Status]++
	}
	return counts, nil
}

// CreateSlot inserts a slot after check accepted the instructor's existing slots
func (s *MemoryStore) CreateSlot(ctx context.Context, slot *models.TimeSlot, check SlotCheck) error {
	m, _ := s.instructorLocks.LoadOrStore(slot.InstructorID, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	existing, err := s.ListSlotsByInstructor(ctx, slot.InstructorID)
	if err != nil {
		return err
	}
	if check != nil {
		if err := check(existing); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.slots.insert(slot.ID, &models.SlotAggregate{Slot: slot, Bookings: []*models.Booking{}}) {
		return apperrors.InvalidInputError("id", "slot "+slot.ID+" already exists")
	}
	return nil
}

// GetSlot returns a committed snapshot of the aggregate
func (s *MemoryStore) GetSlot(ctx context.Context, slotID string) (*models.SlotAggregate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	agg, ok := s.slots.get(slotID)
	if !ok {
		return nil, apperrors.NotFoundError("slot", slotID)
	}
	return agg, nil
}

// SlotIDForBooking resolves the immutable slot of a booking
func (s *MemoryStore) SlotIDForBooking(ctx context.Context, bookingID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.indexMu.RLock()
	defer s.indexMu.RUnlock()
	slotID, ok := s.bookingIndex[bookingID]
	if !ok {
		return "", apperrors.NotFoundError("booking", bookingID)
	}
	return slotID, nil
}

// UpdateSlot runs fn under the aggregate's exclusive lock and commits its result
func (s *MemoryStore) UpdateSlot(ctx context.Context, slotID string, fn SlotMutation) (*models.SlotAggregate, error) {
	agg, found, err := s.slots.update(ctx, slotID, func(agg *models.SlotAggregate) error {
		return fn(agg)
	}, func(agg *models.SlotAggregate) {
		s.indexMu.Lock()
		for _, b := range agg.Bookings {
			s.bookingIndex[b.ID] = slotID
		}
		s.indexMu.Unlock()
	})
	if !found {
		return nil, apperrors.NotFoundError("slot", slotID)
	}
	if err != nil {
		return nil, err
	}
	return agg, nil
}

// ListSlotsByInstructor returns an instructor's slots ordered by day and start time
func (s *MemoryStore) ListSlotsByInstructor(ctx context.Context, instructorID string) ([]*models.TimeSlot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := []*models.TimeSlot{}
	for _, agg := range s.slots.all() {
		if agg.Slot.InstructorID == instructorID {
			out = append(out, agg.Slot)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DayOfWeek != out[j].DayOfWeek {
			return out[i].DayOfWeek < out[j].DayOfWeek
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out, nil
}

// CountSlotsByStatus returns the number of slots in each booking status
func (s *MemoryStore) CountSlotsByStatus(ctx context.Context) (map[models.SlotStatus]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	counts := make(map[models.SlotStatus]int, 2)
	for _, agg := range s.slots.all() {
		counts[agg.Slot.BookingStatus]++
	}
	return counts, nil
}
