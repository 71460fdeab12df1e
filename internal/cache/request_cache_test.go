package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/getmentor/consultations-api/internal/models"
	"github.com/getmentor/consultations-api/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	if err := logger.Initialize(logger.Config{Level: "error", Environment: "development"}); err != nil {
		panic(err)
	}
}

func aggregate(id string, status models.RequestStatus) *models.RequestAggregate {
	return &models.RequestAggregate{
		Request: &models.ConsultationRequest{ID: id, Status: status},
		Offers:  []*models.ConsultationOffer{},
	}
}

func TestRequestCache_ReadThrough(t *testing.T) {
	loads := 0
	rc := NewRequestCache(time.Minute, false, func(_ context.Context, id string) (*models.RequestAggregate, error) {
		loads++
		return aggregate(id, models.RequestStatusOpen), nil
	})
	ctx := context.Background()

	first, err := rc.Get(ctx, "req-1")
	require.NoError(t, err)
	second, err := rc.Get(ctx, "req-1")
	require.NoError(t, err)

	assert.Equal(t, 1, loads)
	assert.Equal(t, first.Request.ID, second.Request.ID)

	// Callers get private copies
	second.Request.Status = models.RequestStatusCancelled
	third, _ := rc.Get(ctx, "req-1")
	assert.Equal(t, models.RequestStatusOpen, third.Request.Status)
}

func TestRequestCache_Invalidate(t *testing.T) {
	status := models.RequestStatusOpen
	rc := NewRequestCache(time.Minute, false, func(_ context.Context, id string) (*models.RequestAggregate, error) {
		return aggregate(id, status), nil
	})
	ctx := context.Background()

	_, err := rc.Get(ctx, "req-1")
	require.NoError(t, err)

	status = models.RequestStatusInProgress
	rc.Invalidate("req-1")

	got, err := rc.Get(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusInProgress, got.Request.Status)
}

func TestRequestCache_LoadRacingInvalidationIsNotStored(t *testing.T) {
	var rc *RequestCache
	rc = NewRequestCache(time.Minute, false, func(_ context.Context, id string) (*models.RequestAggregate, error) {
		// A writer commits while this load is in flight
		rc.Invalidate(id)
		return aggregate(id, models.RequestStatusOpen), nil
	})

	_, err := rc.Get(context.Background(), "req-1")
	require.NoError(t, err)
	assert.Zero(t, rc.Len())
}

func TestRequestCache_StoreAfterInvalidationIsDropped(t *testing.T) {
	rc := NewRequestCache(time.Minute, false, func(_ context.Context, id string) (*models.RequestAggregate, error) {
		return aggregate(id, models.RequestStatusOpen), nil
	})

	// A reader finished loading, then a writer committed before the reader stored
	generation := rc.currentGeneration()
	rc.Invalidate("req-1")

	assert.False(t, rc.storeIfCurrent("req-1", generation, aggregate("req-1", models.RequestStatusOpen)))
	assert.Zero(t, rc.Len())

	assert.True(t, rc.storeIfCurrent("req-1", rc.currentGeneration(), aggregate("req-1", models.RequestStatusOpen)))
	assert.Equal(t, 1, rc.Len())
}

func TestRequestCache_ReadsNeverGoBackwardsAfterInvalidate(t *testing.T) {
	var committed, published atomic.Int64
	rc := NewRequestCache(time.Minute, false, func(_ context.Context, id string) (*models.RequestAggregate, error) {
		agg := aggregate(id, models.RequestStatusOpen)
		agg.Request.OffersCount = int(committed.Load())
		return agg, nil
	})
	ctx := context.Background()

	const rounds = 2000
	done := make(chan struct{})
	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				floor := published.Load()
				agg, err := rc.Get(ctx, "req-1")
				if !assert.NoError(t, err) {
					return
				}
				if !assert.GreaterOrEqual(t, int64(agg.Request.OffersCount), floor) {
					return
				}
			}
		}()
	}

	for i := 0; i < rounds; i++ {
		v := committed.Add(1)
		rc.Invalidate("req-1")
		published.Store(v)
	}
	close(done)
	wg.Wait()
}

func TestRequestCache_ErrorsAreNotCached(t *testing.T) {
	boom := errors.New("boom")
	rc := NewRequestCache(time.Minute, false, func(context.Context, string) (*models.RequestAggregate, error) {
		return nil, boom
	})

	_, err := rc.Get(context.Background(), "req-1")
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, rc.Len())
}

func TestRequestCache_Disabled(t *testing.T) {
	loads := 0
	rc := NewRequestCache(time.Minute, true, func(_ context.Context, id string) (*models.RequestAggregate, error) {
		loads++
		return aggregate(id, models.RequestStatusOpen), nil
	})

	_, _ = rc.Get(context.Background(), "req-1")
	_, _ = rc.Get(context.Background(), "req-1")
	assert.Equal(t, 2, loads)
}
