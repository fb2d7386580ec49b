package manager

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// task is one periodic background job with its own error boundary and
// overlap guard: a cycle that outruns its interval causes the next tick to
// be skipped, never queued.
type task struct {
	name     string
	interval time.Duration
	run      func(ctx context.Context)

	running atomic.Bool
}

// Scheduler drives the manager's background work: GC sweeps, replication
// re-evaluation, backup verification, DR drills, and counter resets. Each
// task runs on its own ticker goroutine so one failing task class cannot
// starve the others.
type Scheduler struct {
	tasks []*task
	log   *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler builds the task set from the manager's configuration.
func NewScheduler(m *Manager, log *slog.Logger) *Scheduler {
	return &Scheduler{
		log: log,
		tasks: []*task{
			{name: "gc_sweep", interval: m.cfg.GCInterval, run: func(ctx context.Context) {
				m.SweepGarbage(ctx)
			}},
			{name: "replication_reevaluation", interval: m.cfg.ReevaluateInterval, run: func(ctx context.Context) {
				m.ReevaluateReplication(ctx)
			}},
			{name: "backup_verification", interval: m.cfg.VerifyInterval, run: func(ctx context.Context) {
				m.VerifyBackups(ctx)
			}},
			{name: "dr_drill", interval: m.cfg.DrillInterval, run: func(ctx context.Context) {
				m.RunDisasterRecoveryTest(ctx)
			}},
			{name: "daily_counter_reset", interval: m.cfg.DailyResetInterval, run: func(ctx context.Context) {
				m.ResetDailyCounters()
			}},
			{name: "weekly_counter_reset", interval: m.cfg.WeeklyResetInterval, run: func(ctx context.Context) {
				m.ResetWeeklyCounters()
			}},
			{name: "quota_alert_period_reset", interval: m.cfg.AlertPeriodInterval, run: func(ctx context.Context) {
				m.ResetAlertPeriod()
			}},
		},
	}
}

// Start launches all task goroutines. Tasks run until Stop is called.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	for _, t := range s.tasks {
		s.wg.Add(1)
		go s.runTask(ctx, t)
	}

	s.log.Info("Background scheduler started", slog.Int("tasks", len(s.tasks)))
}

func (s *Scheduler) runTask(ctx context.Context, t *task) {
	defer s.wg.Done()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !t.running.CompareAndSwap(false, true) {
				s.log.Warn("Skipping overlapping task cycle", slog.String("task", t.name))
				continue
			}

			// The cycle runs off the ticker goroutine so a slow cycle hits
			// the guard above instead of delaying tick consumption.
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				defer t.running.Store(false)

				// Bound each cycle to its interval so a stuck collaborator
				// cannot hold the task slot indefinitely.
				cycleCtx, cancel := context.WithTimeout(ctx, t.interval)
				defer cancel()

				start := time.Now()
				t.run(cycleCtx)
				s.log.Debug("Task cycle complete",
					slog.String("task", t.name),
					slog.Duration("duration", time.Since(start)))
			}()
		}
	}
}

// Stop cancels all tasks and waits for in-flight cycles to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.log.Info("Background scheduler stopped")
}
