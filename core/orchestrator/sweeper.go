package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"costplan/internal/logging"
)

// RetentionStore destroys expired terminal jobs.
type RetentionStore interface {
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Sweeper is the retention sweep: terminal jobs older than the
// retention window are destroyed, nothing else ever deletes them.
type Sweeper struct {
	jobs     RetentionStore
	ttl      time.Duration
	interval time.Duration
	logger   *zap.Logger
}

// NewSweeper creates a sweeper destroying terminal jobs older than ttl,
// checking every interval.
func NewSweeper(jobs RetentionStore, ttl, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{
		jobs:     jobs,
		ttl:      ttl,
		interval: interval,
		logger:   logging.Logger.With(zap.String("component", "retention_sweeper")),
	}
}

// Run sweeps immediately and then on every tick until ctx ends.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.sweep(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.ttl)
	removed, err := s.jobs.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		s.logger.Warn("retention sweep failed", zap.Error(err))
		return
	}
	if removed > 0 {
		s.logger.Info("expired jobs destroyed",
			zap.Int64("jobs", removed),
			zap.Time("cutoff", cutoff))
	}
}
