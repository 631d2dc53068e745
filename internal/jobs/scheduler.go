package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"duet/internal/domain"
)

// DefaultInterval is how often the scheduler drains the active user's queue.
const DefaultInterval = 5 * time.Second

// ActiveUser reports the user whose jobs should be drained.
type ActiveUser interface {
	ActiveUser() (domain.Telephone, bool)
}

// Scheduler periodically resolves the queue for the active user.
type Scheduler struct {
	queue    *Queue
	exec     Executor
	active   ActiveUser
	interval time.Duration
	log      *zap.Logger
}

// NewScheduler returns a scheduler ticking every interval (DefaultInterval
// when zero).
func NewScheduler(q *Queue, exec Executor, active ActiveUser, interval time.Duration, log *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{queue: q, exec: exec, active: active, interval: interval, log: log}
}

// Run ticks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			s.Tick(ctx)
		}
	}
}

// Tick performs a single resolve pass.
func (s *Scheduler) Tick(ctx context.Context) {
	user, ok := s.active.ActiveUser()
	if !ok {
		return
	}
	if err := s.queue.Resolve(ctx, s.exec, user, All()); err != nil {
		s.log.Warn("resolve failed", zap.String("user", user.String()), zap.Error(err))
	}
}
