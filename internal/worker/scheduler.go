package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	apidomain "github.com/cuongbtq/jobflow/internal/api/domain"
	"github.com/cuongbtq/jobflow/internal/notify"
	"github.com/robfig/cron/v3"
)

const defaultSweepBatch = 500

// SchedulerConfig configures the overdue sweep
type SchedulerConfig struct {
	Enabled    bool
	Schedule   string // six-field cron spec, seconds first
	RunOnStart bool
	BatchSize  int
}

// Scheduler runs the overdue sweep on a cron schedule
type Scheduler struct {
	cron       *cron.Cron
	store      Store
	logger     *slog.Logger
	schedule   string
	runOnStart bool
	batchSize  int
	now        func() time.Time

	mu      sync.Mutex
	ctx     context.Context
	entryID cron.EntryID
}

// NewScheduler creates a scheduler. now defaults to time.Now.
func NewScheduler(store Store, logger *slog.Logger, cfg SchedulerConfig, now func() time.Time) *Scheduler {
	if now == nil {
		now = time.Now
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultSweepBatch
	}
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cronLogger{logger}),
			cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger})),
		),
		store:      store,
		logger:     logger,
		schedule:   cfg.Schedule,
		runOnStart: cfg.RunOnStart,
		batchSize:  batch,
		now:        now,
		ctx:        context.Background(),
	}
}

// Start registers the sweep and starts the cron loop. Sweeps use ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	var err error
	s.entryID, err = s.cron.AddFunc(s.schedule, s.runSweep)
	if err != nil {
		return fmt.Errorf("error scheduling overdue sweep: %w", err)
	}

	s.cron.Start()
	s.logger.Info("Overdue sweep scheduled",
		slog.String("schedule", s.schedule),
		slog.Time("next_run", s.cron.Entry(s.entryID).Next),
	)

	if s.runOnStart {
		go s.runSweep()
	}
	return nil
}

// Stop stops the cron loop and waits for a running sweep
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("Overdue sweep scheduler stopped")
}

func (s *Scheduler) runSweep() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	if _, err := s.Sweep(ctx); err != nil {
		s.logger.Error("Overdue sweep failed", slog.String("error", err.Error()))
	}
}

// Sweep stores an overdue reminder for every open job past its date_to,
// paging through the overdue jobs batchSize at a time. Reminders are
// deduplicated per job and day. It returns how many were new.
func (s *Scheduler) Sweep(ctx context.Context) (int, error) {
	now := s.now()

	var (
		after    *apidomain.DeadlineCursor
		overdue  int
		inserted int
	)
	for {
		jobs, err := s.store.ListOverdueJobs(ctx, now, after, s.batchSize)
		if err != nil {
			return inserted, fmt.Errorf("failed to list overdue jobs: %w", err)
		}
		if len(jobs) == 0 {
			break
		}

		var reminders []notify.Notification
		for _, job := range jobs {
			reminders = append(reminders, notify.Overdue(job, now)...)
		}

		n, err := s.store.InsertNotifications(ctx, reminders)
		if err != nil {
			return inserted, fmt.Errorf("failed to store overdue reminders: %w", err)
		}
		overdue += len(jobs)
		inserted += n

		if len(jobs) < s.batchSize {
			break
		}
		after = apidomain.DeadlineCursorOf(jobs[len(jobs)-1])
	}

	s.logger.Info("Overdue sweep finished",
		slog.Int("overdue_jobs", overdue),
		slog.Int("reminders", inserted),
	)
	return inserted, nil
}

// cronLogger adapts slog to cron.Logger
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
