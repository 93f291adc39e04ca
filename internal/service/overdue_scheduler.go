package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"github.com/Kerhoff/rollcall/internal/models"
)

// OverdueCallback receives the passes that became overdue in one sweep.
type OverdueCallback func(passes []*models.HallPass)

// OverdueSweeper periodically reclassifies overdue hall passes.
type OverdueSweeper struct {
	tracker *HallPassTracker
	logger  *logrus.Logger

	runs    atomic.Int64
	flipped atomic.Int64
	errors  atomic.Int64
}

// NewOverdueSweeper creates a sweeper over tracker.
func NewOverdueSweeper(tracker *HallPassTracker, logger *logrus.Logger) *OverdueSweeper {
	return &OverdueSweeper{tracker: tracker, logger: logger}
}

// SweepStats is a snapshot of sweeper counters.
type SweepStats struct {
	Runs    int64 `json:"runs"`
	Flipped int64 `json:"flipped"`
	Errors  int64 `json:"errors"`
}

// Stats returns the counters accumulated since start.
func (s *OverdueSweeper) Stats() SweepStats {
	return SweepStats{
		Runs:    s.runs.Load(),
		Flipped: s.flipped.Load(),
		Errors:  s.errors.Load(),
	}
}

// Run sweeps every interval until ctx is cancelled. It blocks, so it should
// be launched in a separate goroutine. A nil callback is allowed.
func (s *OverdueSweeper) Run(ctx context.Context, interval time.Duration, callback OverdueCallback) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.WithField("interval", interval).Info("Overdue sweeper started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Overdue sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx, callback)
		}
	}
}

// Sweep runs one reclassification over all groups.
func (s *OverdueSweeper) Sweep(ctx context.Context, callback OverdueCallback) {
	s.runs.Inc()

	flipped, err := s.tracker.reclassify(ctx, "")
	if err != nil {
		s.errors.Inc()
		s.logger.Errorf("Failed to reclassify overdue hall passes: %v", err)
		return
	}
	if len(flipped) == 0 {
		return
	}

	s.flipped.Add(int64(len(flipped)))
	if callback != nil {
		callback(flipped)
	}
}
