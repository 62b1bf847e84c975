package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// MarkerCleaner deletes one-time-use markers whose token has expired.
// Stores that expire markers on their own return 0.
type MarkerCleaner interface {
	Cleanup(ctx context.Context, now time.Time) (int64, error)
}

// Scheduler runs marker cleanup on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	cleaner MarkerCleaner
	timeout time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// NewScheduler validates spec (standard five-field cron) and prepares the job.
func NewScheduler(spec string, cleaner MarkerCleaner, logger *zap.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:    cron.New(),
		cleaner: cleaner,
		timeout: time.Minute,
		logger:  logger.With(zap.String("component", "maintenance")),
		now:     time.Now,
	}

	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse cleanup schedule %q: %w", spec, err)
	}

	s.cron.Schedule(schedule, cron.FuncJob(func() {
		_, _ = s.RunOnce(context.Background())
	}))

	return s, nil
}

// RunOnce performs a single cleanup pass.
func (s *Scheduler) RunOnce(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	removed, err := s.cleaner.Cleanup(ctx, s.now())
	if err != nil {
		s.logger.Error("marker cleanup failed", zap.Error(err))

		return 0, err
	}

	if removed > 0 {
		s.logger.Info("expired markers removed", zap.Int64("count", removed))
	}

	return removed, nil
}

// Start begins running the schedule in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Shutdown stops the schedule and waits for a running pass to finish.
func (s *Scheduler) Shutdown() error {
	<-s.cron.Stop().Done()

	return nil
}
