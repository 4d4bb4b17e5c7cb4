package scheduler

import (
	"errors"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

const refreshTag = "weather-refresh"

var errStopped = errors.New("scheduler stopped")

// Scheduler runs at most one periodic task at a time.
type Scheduler struct {
	cron   *gocron.Scheduler
	logger *zap.Logger

	mu      sync.Mutex
	stopped bool
}

// New creates a running scheduler with no task armed.
func New(logger *zap.Logger) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.StartAsync()
	return &Scheduler{
		cron:   s,
		logger: logger.Named("scheduler"),
	}
}

// Every cancels any armed task and arms task every interval. The first run
// happens one interval from now.
func (s *Scheduler) Every(interval time.Duration, task func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return errStopped
	}
	if interval <= 0 {
		return errors.New("interval must be positive")
	}

	s.cron.Clear()
	_, err := s.cron.Every(interval).
		WaitForSchedule().
		SingletonMode().
		Tag(refreshTag).
		Do(func() {
			s.logger.Debug("Running periodic task", zap.Duration("interval", interval))
			task()
		})
	if err != nil {
		return err
	}

	s.logger.Info("Periodic task armed", zap.Duration("interval", interval))
	return nil
}

// Cancel disarms the current task, if any.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron.Len() == 0 {
		return
	}
	s.cron.Clear()
	s.logger.Info("Periodic task cancelled")
}

// Armed reports whether a task is scheduled.
func (s *Scheduler) Armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cron.Len() > 0
}

// Stop cancels the current task and stops the underlying scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.stopped = true
	s.cron.Clear()
	s.cron.Stop()
}
