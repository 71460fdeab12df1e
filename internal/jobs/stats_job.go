package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/getmentor/consultations-api/internal/models"
	"github.com/getmentor/consultations-api/pkg/logger"
	"github.com/getmentor/consultations-api/pkg/metrics"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// StatsSource counts aggregates by status
type StatsSource interface {
	CountRequestsByStatus(ctx context.Context) (map[models.RequestStatus]int, error)
	CountSlotsByStatus(ctx context.Context) (map[models.SlotStatus]int, error)
}

// StatsJob periodically publishes requests-by-status and slots-by-status gauges
type StatsJob struct {
	requests StatsSource
	slots    StatsSource
	cron     *cron.Cron
	timeout  time.Duration
}

// NewStatsJob creates a job reading requests and slots from their stores
func NewStatsJob(requests, slots StatsSource) *StatsJob {
	return &StatsJob{
		requests: requests,
		slots:    slots,
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		timeout:  30 * time.Second,
	}
}

// Start schedules the job with a robfig/cron spec (e.g. "@every 1m") and runs it once immediately
func (j *StatsJob) Start(spec string) error {
	if _, err := j.cron.AddFunc(spec, j.tick); err != nil {
		return fmt.Errorf("invalid stats cron spec %q: %w", spec, err)
	}
	j.tick()
	j.cron.Start()
	logger.Info("Stats job scheduled", zap.String("spec", spec))
	return nil
}

// Stop halts scheduling and waits for a running refresh to finish
func (j *StatsJob) Stop() {
	<-j.cron.Stop().Done()
}

func (j *StatsJob) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	if err := j.Run(ctx); err != nil {
		logger.Error("Stats job failed", zap.Error(err))
	}
}

// Run refreshes the gauges once
func (j *StatsJob) Run(ctx context.Context) error {
	requests, err := j.requests.CountRequestsByStatus(ctx)
	if err != nil {
		return fmt.Errorf("failed to count requests: %w", err)
	}
	for _, status := range models.AllRequestStatuses {
		metrics.RequestsByStatus.WithLabelValues(string(status)).Set(float64(requests[status]))
	}

	slots, err := j.slots.CountSlotsByStatus(ctx)
	if err != nil {
		return fmt.Errorf("failed to count slots: %w", err)
	}
	for _, status := range []models.SlotStatus{models.SlotStatusAvailable, models.SlotStatusBooked} {
		metrics.SlotsByStatus.WithLabelValues(string(status)).Set(float64(slots[status]))
	}

	logger.Debug("Stats refreshed",
		zap.Int("requests_open", requests[models.RequestStatusOpen]),
		zap.Int("slots_booked", slots[models.SlotStatusBooked]))
	return nil
}
