package report

import (
	"context"
	"time"

	"searchads-tap/internal/domain"
)

// DefaultQueuedWait is the pause before polling a queued job.
const DefaultQueuedWait = 15 * time.Second

var (
	_ domain.WaitStrategy = FixedDelay{}
	_ domain.WaitStrategy = ExponentialBackoff{}
)

// FixedDelay waits the same duration before every poll.
type FixedDelay struct {
	Duration time.Duration
}

// Delay implements domain.WaitStrategy.
func (f FixedDelay) Delay(int) time.Duration {
	return f.Duration
}

// Wait implements domain.WaitStrategy.
func (f FixedDelay) Wait(ctx context.Context, attempt int) error {
	return sleep(ctx, f.Delay(attempt))
}

// ExponentialBackoff doubles the delay per attempt, starting at Initial and
// capped at Max. Initial is never undercut, so it keeps the fixed-wait
// baseline when set to DefaultQueuedWait.
type ExponentialBackoff struct {
	Initial time.Duration
	Max     time.Duration
}

// Delay implements domain.WaitStrategy.
func (b ExponentialBackoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := b.Initial
	for i := 1; i < attempt; i++ {
		d *= 2
		if b.Max > 0 && d >= b.Max {
			return b.Max
		}
	}
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}

// Wait implements domain.WaitStrategy.
func (b ExponentialBackoff) Wait(ctx context.Context, attempt int) error {
	return sleep(ctx, b.Delay(attempt))
}

// NewWaitStrategy builds a strategy by name ("fixed" or "backoff").
func NewWaitStrategy(name string, base time.Duration) (domain.WaitStrategy, error) {
	switch name {
	case "", "fixed":
		return FixedDelay{Duration: base}, nil
	case "backoff":
		return ExponentialBackoff{Initial: base, Max: 8 * base}, nil
	default:
		return nil, domain.ErrValidation("unknown wait strategy %q: use 'fixed' or 'backoff'", name)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
