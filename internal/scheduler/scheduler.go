package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/firesight-in/firesight/internal/domain/detection"
)

const refreshTimeout = 5 * time.Minute

// Scheduler periodically pulls fresh feed data so the store stays current
// without operator intervention.
type Scheduler struct {
	cron       *cron.Cron
	detections detection.Service
	dayRange   int
	logger     *slog.Logger
}

// New builds the scheduler with a standard 5-field cron spec.
func New(spec string, dayRange int, detections detection.Service, logger *slog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:       cron.New(),
		detections: detections,
		dayRange:   dayRange,
		logger:     logger.With("component", "scheduler"),
	}
	if _, err := s.cron.AddFunc(spec, s.refresh); err != nil {
		return nil, err
	}
	return s, nil
}

// Start launches the cron loop in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduled refresh enabled")
}

// Stop halts the loop and waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	end := time.Now().UTC()
	start := end.AddDate(0, 0, -(s.dayRange - 1))
	summary, err := s.detections.Refresh(ctx, detection.RefreshRequest{
		StartDate: start.Format("2006-01-02"),
		EndDate:   end.Format("2006-01-02"),
	})
	if err != nil {
		s.logger.Error("scheduled refresh failed", "error", err)
		return
	}
	s.logger.Info("scheduled refresh complete", "new_fires", summary.NewFires, "total_fires", summary.TotalFires)
}
