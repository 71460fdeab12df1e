package trigger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/getmentor/consultations-api/pkg/circuitbreaker"
	"github.com/getmentor/consultations-api/pkg/httpclient"
	"github.com/getmentor/consultations-api/pkg/logger"
	"github.com/getmentor/consultations-api/pkg/metrics"
	"github.com/getmentor/consultations-api/pkg/retry"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Event is the JSON body POSTed to a trigger URL
type Event struct {
	Type       string    `json:"type"`
	ID         string    `json:"id"`
	OccurredAt time.Time `json:"occurredAt"`
	Payload    any       `json:"payload"`
}

// Dispatcher delivers events to webhook URLs in the background.
// Failures are logged and counted but never surface to the caller.
type Dispatcher struct {
	client   httpclient.Client
	breaker  *gobreaker.CircuitBreaker
	retry    retry.Config
	timeout  time.Duration
	inflight sync.WaitGroup
}

// StatusError is a non-2xx response from a trigger URL
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("trigger returned status %d", e.Code)
}

// isPermanent reports a client error that resending the same event cannot fix.
// 408 and 429 are transient.
func isPermanent(err error) bool {
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	code := statusErr.Code
	return code >= 400 && code < 500 && code != http.StatusRequestTimeout && code != http.StatusTooManyRequests
}

// NewDispatcher creates a dispatcher sharing one circuit breaker across all trigger URLs.
// Rejections by a receiver do not count against the breaker.
func NewDispatcher(client httpclient.Client) *Dispatcher {
	breakerCfg := circuitbreaker.DefaultConfig("triggers")
	breakerCfg.IsSuccessful = func(err error) bool {
		return err == nil || isPermanent(err)
	}
	return &Dispatcher{
		client:  client,
		breaker: circuitbreaker.NewCircuitBreaker(breakerCfg),
		retry:   retry.TriggerConfig(),
		timeout: time.Minute,
	}
}

// CallAsync posts event to triggerURL in a goroutine. An empty URL disables the trigger.
func (d *Dispatcher) CallAsync(triggerURL string, event Event) {
	if triggerURL == "" {
		return
	}

	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.Call(ctx, triggerURL, event); err != nil {
			logger.Error("Failed to deliver trigger",
				zap.Error(err),
				zap.String("url", triggerURL),
				zap.String("event_type", event.Type),
				zap.String("event_id", event.ID))
		}
	}()
}

// Call posts event to triggerURL, retrying transient failures
func (d *Dispatcher) Call(ctx context.Context, triggerURL string, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode trigger event: %w", err)
	}

	cfg := d.retry
	cfg.RetryableErrors = func(err error) bool {
		return retry.IsRetryable(err) && !circuitbreaker.IsRejected(err) && !isPermanent(err)
	}

	start := time.Now()
	_, err = retry.DoWithResult(ctx, cfg, "trigger."+event.Type, func() (int, error) {
		return circuitbreaker.Execute(d.breaker, func() (int, error) {
			return d.post(ctx, triggerURL, body)
		})
	})

	status := metrics.Outcome(err)
	metrics.TriggerCallDuration.WithLabelValues(event.Type, status).Observe(metrics.MeasureDuration(start))
	metrics.TriggerCallTotal.WithLabelValues(event.Type, status).Inc()

	logger.LogAPICall("trigger", event.Type, status, metrics.MeasureDuration(start),
		zap.String("event_id", event.ID))
	return err
}

func (d *Dispatcher) post(ctx context.Context, triggerURL string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, triggerURL, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, &StatusError{Code: resp.StatusCode}
	}
	return resp.StatusCode, nil
}

// Wait blocks until every in-flight delivery has finished
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}
