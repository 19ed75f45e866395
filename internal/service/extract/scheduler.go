package extract

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/robfig/cron/v3"

	"searchads-tap/internal/domain"
)

// StreamRunner runs a set of streams over a date range.
// Implemented by Service.
type StreamRunner interface {
	Run(ctx context.Context, streams []string, dr domain.DateRange) ([]Result, error)
}

// RunStatus describes the most recent scheduled run.
type RunStatus struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Range      string    `json:"range"`
	Results    []Result  `json:"results,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Scheduler triggers extraction runs on a cron schedule. Each trigger covers
// the lookback window ending yesterday (UTC).
type Scheduler struct {
	cron     *cron.Cron
	runner   StreamRunner
	streams  []string
	lookback int
	now      func() time.Time
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	last    *RunStatus
}

// NewScheduler creates a new extraction scheduler.
func NewScheduler(runner StreamRunner, streams []string, lookbackDays int, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(time.UTC)),
		runner:   runner,
		streams:  streams,
		lookback: lookbackDays,
		now:      time.Now,
		logger:   logger,
	}
}

// Start registers spec and starts the cron loop.
func (s *Scheduler) Start(spec string) error {
	if _, err := s.cron.AddFunc(spec, func() {
		_, _ = s.Trigger(context.Background())
	}); err != nil {
		return domain.ErrValidation("invalid cron schedule %q: %v", spec, err)
	}
	s.cron.Start()
	s.logger.Info("extraction scheduler started", "schedule", spec, "streams", s.streams)
	return nil
}

// Stop stops the cron loop and waits for a running trigger to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("extraction scheduler stopped")
}

// Trigger runs the configured streams once. Overlapping triggers are
// skipped with a ConflictError.
func (s *Scheduler) Trigger(ctx context.Context) ([]Result, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn("scheduled run skipped, previous run still active")
		return nil, domain.ErrConflict("extraction run already in progress")
	}
	s.running = true
	s.mu.Unlock()

	status := &RunStatus{StartedAt: s.now().UTC()}
	results, err := s.run(ctx, status)
	status.FinishedAt = s.now().UTC()
	status.Results = results
	if err != nil {
		status.Error = err.Error()
		s.logger.Warn("scheduled run failed", "range", status.Range, "error", err)
	} else {
		s.logger.Info("scheduled run finished", "range", status.Range, "results", results)
	}

	s.mu.Lock()
	s.running = false
	s.last = status
	s.mu.Unlock()
	return results, err
}

func (s *Scheduler) run(ctx context.Context, status *RunStatus) ([]Result, error) {
	dr, err := LookbackRange(s.now(), s.lookback)
	if err != nil {
		return nil, err
	}
	status.Range = dr.String()
	return s.runner.Run(ctx, s.streams, dr)
}

// LastRun returns the most recent run, or nil before the first one.
func (s *Scheduler) LastRun() *RunStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil
	}
	cp := *s.last
	return &cp
}

// LookbackRange returns the days-long range ending the day before now (UTC).
func LookbackRange(now time.Time, days int) (domain.DateRange, error) {
	if days < 1 {
		return domain.DateRange{}, domain.ErrValidation("lookback must be at least 1 day, got %d", days)
	}
	end := civil.DateOf(now.UTC()).AddDays(-1)
	return domain.NewDateRange(end.AddDays(-(days - 1)), end)
}
