package services_test

import (
	"context"
	"sync"

	"github.com/getmentor/consultations-api/internal/models"
	"github.com/getmentor/consultations-api/internal/repository"
	apperrors "github.com/getmentor/consultations-api/pkg/errors"
	"github.com/getmentor/consultations-api/pkg/trigger"
	"github.com/stretchr/testify/mock"
)

// MockDispatcher is a mock implementation of services.EventDispatcher
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) CallAsync(triggerURL string, event trigger.Event) {
	m.Called(triggerURL, event)
}

// corruptingStore reports every request update as breaking the aggregate invariant
type corruptingStore struct {
	*repository.MemoryStore
}

func (s corruptingStore) UpdateRequest(ctx context.Context, requestID string, fn repository.RequestMutation) (*models.RequestAggregate, error) {
	return nil, apperrors.InvariantViolationError("request", requestID, "offersCount drifted")
}

func (s corruptingStore) UpdateSlot(ctx context.Context, slotID string, fn repository.SlotMutation) (*models.SlotAggregate, error) {
	return nil, apperrors.InvariantViolationError("slot", slotID, "available slot has a bound course")
}

// releasingStore cancels every booking on a slot the first time a commit loses the race,
// as if the winner cancelled before the loser retried
type releasingStore struct {
	*repository.MemoryStore
	once sync.Once
}

func (s *releasingStore) UpdateSlot(ctx context.Context, slotID string, fn repository.SlotMutation) (*models.SlotAggregate, error) {
	agg, err := s.MemoryStore.UpdateSlot(ctx, slotID, fn)
	if apperrors.IsAlreadyBooked(err) {
		s.once.Do(func() {
			_, releaseErr := s.MemoryStore.UpdateSlot(ctx, slotID, func(agg *models.SlotAggregate) error {
				for _, b := range agg.Bookings {
					b.Status = models.BookingStatusCancelled
				}
				agg.Slot.BookingStatus = models.SlotStatusAvailable
				agg.Slot.BookedCourseID = nil
				agg.Slot.BookedCourseName = nil
				return nil
			})
			if releaseErr != nil {
				panic(releaseErr)
			}
		})
	}
	return agg, err
}
