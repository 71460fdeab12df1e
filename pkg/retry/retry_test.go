package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/getmentor/consultations-api/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	if err := logger.Initialize(logger.Config{Level: "error", Environment: "development"}); err != nil {
		panic(err)
	}
}

var errBusy = errors.New("busy")

func fastConfig(maxRetries int) Config {
	cfg := DefaultConfig()
	cfg.MaxRetries = maxRetries
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = 2 * time.Millisecond
	return cfg
}

func TestDoWithResult_SucceedsAfterRetries(t *testing.T) {
	calls := 0
	var retried []int
	cfg := fastConfig(3)
	cfg.OnRetry = func(attempt int, err error) {
		retried = append(retried, attempt)
		assert.ErrorIs(t, err, errBusy)
	}

	got, err := DoWithResult(context.Background(), cfg, "test", func() (string, error) {
		calls++
		if calls < 3 {
			return "", errBusy
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDoWithResult_GivesUp(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(2), "test", func() error {
		calls++
		return errBusy
	})

	assert.ErrorIs(t, err, errBusy)
	assert.Equal(t, 3, calls)
}

func TestDoWithResult_NonRetryableStopsImmediately(t *testing.T) {
	errFatal := errors.New("fatal")
	cfg := fastConfig(5)
	cfg.RetryableErrors = func(err error) bool { return errors.Is(err, errBusy) }

	calls := 0
	err := Do(context.Background(), cfg, "test", func() error {
		calls++
		return errFatal
	})

	assert.Equal(t, errFatal, err)
	assert.Equal(t, 1, calls)
}

func TestDoWithResult_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Do(ctx, fastConfig(3), "test", func() error {
		calls++
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestCalculateDelay_CappedAtMax(t *testing.T) {
	cfg := Config{InitialDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond, Multiplier: 2}

	assert.Equal(t, 100*time.Millisecond, calculateDelay(0, cfg))
	assert.Equal(t, 200*time.Millisecond, calculateDelay(1, cfg))
	assert.Equal(t, 300*time.Millisecond, calculateDelay(5, cfg))
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(context.Canceled))
	assert.False(t, IsRetryable(context.DeadlineExceeded))
	assert.True(t, IsRetryable(errBusy))
}
