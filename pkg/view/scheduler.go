package view

import (
	"context"
	"log/slog"
	"time"
)

// DefaultInterval is the refresh period of a visible view
const DefaultInterval = 30 * time.Second

// Scheduler re-polls a view on a fixed interval. Failed fetches do not
// change the interval; there is no backoff.
type Scheduler struct {
	Interval time.Duration
	Logger   *slog.Logger
}

// Run ticks until ctx is cancelled or the view is closed
func (s *Scheduler) Run(ctx context.Context, v *View) error {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-v.Done():
			return ErrClosed
		case <-ticker.C:
			if s.Tick(ctx, v) {
				logger.Debug("Scheduled refresh", "domain", v.Domain())
			}
		}
	}
}

// Tick refreshes v unless a fetch is already in flight or nobody is
// watching. It reports whether a refresh ran.
func (s *Scheduler) Tick(ctx context.Context, v *View) bool {
	if v.Loading() || !v.Visible() {
		return false
	}
	if err := v.Refresh(ctx); err != nil && s.Logger != nil {
		s.Logger.Debug("Scheduled refresh aborted", "domain", v.Domain(), "error", err)
	}
	return true
}
