// Package sweeper periodically marks abandoned STARTED reservations as
// expired.  It never deletes rows, never changes a status and never touches
// the capacity row: STARTED reservations hold no capacity, so the sweep is
// housekeeping only.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/iliyamo/course-enrollment/internal/config"
)

// Expirer marks STARTED reservations created before cutoff.
// *repository.ReservationRepo implements it.
type Expirer interface {
	ExpireStarted(ctx context.Context, cutoff, now time.Time) (int64, error)
}

type Sweeper struct {
	store    Expirer
	ttl      time.Duration
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time
	sched    gocron.Scheduler
}

// New builds a sweeper from cfg.  The scheduler is created but not started.
func New(store Expirer, cfg config.SweepConfig) (*Sweeper, error) {
	sched, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return &Sweeper{
		store:    store,
		ttl:      cfg.StartedTTL,
		interval: cfg.Interval,
		timeout:  time.Minute,
		now:      func() time.Time { return time.Now().UTC() },
		sched:    sched,
	}, nil
}

// RunOnce performs a single sweep and returns the number of reservations
// marked.
func (s *Sweeper) RunOnce(ctx context.Context) (int64, error) {
	now := s.now()
	n, err := s.store.ExpireStarted(ctx, now.Add(-s.ttl), now)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.Info("stale reservations expired", "count", n, "started_ttl", s.ttl)
	}
	return n, nil
}

// Start schedules the sweep every interval, beginning immediately.  A run
// that is still going when the next one is due is skipped.
func (s *Sweeper) Start() error {
	_, err := s.sched.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
			defer cancel()
			if _, err := s.RunOnce(ctx); err != nil {
				slog.Error("stale reservation sweep failed", "err", err)
			}
		}),
		gocron.WithName("expire-stale-started"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	s.sched.Start()
	slog.Info("stale reservation sweep scheduled", "interval", s.interval, "started_ttl", s.ttl)
	return nil
}

// Stop waits for a running sweep and shuts the scheduler down.
func (s *Sweeper) Stop() error {
	return s.sched.Shutdown()
}
