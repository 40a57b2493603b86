package calsync

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/robfig/cron/v3"
)

const DefaultSchedule = "@hourly"

// Scheduler runs SyncAll on a cron schedule.
type Scheduler struct {
	cron       *cron.Cron
	reconciler *Reconciler
	logger     log.Logger
	timeout    time.Duration
}

// NewScheduler parses expr, a standard five-field cron line or a descriptor
// such as @hourly, in loc. Each run gets timeout as its deadline.
func NewScheduler(reconciler *Reconciler, expr string, loc *time.Location, timeout time.Duration, logger log.Logger) (*Scheduler, error) {
	if expr == "" {
		expr = DefaultSchedule
	}
	if loc == nil {
		loc = time.UTC
	}
	logger = log.With(logger, "component", "sync-scheduler")
	cl := cronLogger{logger}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		reconciler: reconciler,
		logger:     logger,
		timeout:    timeout,
	}
	if _, err := s.cron.AddFunc(expr, s.runOnce); err != nil {
		return nil, fmt.Errorf("sync schedule %q: %w", expr, err)
	}
	return s, nil
}

func (s *Scheduler) runOnce() {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if _, err := s.reconciler.SyncAll(ctx); err != nil {
		level.Error(s.logger).Log("msg", "scheduled sync failed", "err", err)
	}
}

// Run starts the schedule and blocks until ctx is done, then waits for a
// running sync to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	level.Info(s.logger).Log("msg", "sync scheduler started", "next", s.Next())
	<-ctx.Done()
	<-s.cron.Stop().Done()
	return ctx.Err()
}

// Next returns the time of the next scheduled run, zero if not started.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// ValidateSchedule reports whether expr is an accepted cron expression.
func ValidateSchedule(expr string) error {
	_, err := cron.ParseStandard(expr)
	return err
}

// cronLogger adapts go-kit logger to cron.Logger.
type cronLogger struct {
	l log.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	_ = level.Debug(c.l).Log(append([]interface{}{"msg", msg}, keysAndValues...)...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	_ = level.Error(c.l).Log(append([]interface{}{"msg", msg, "err", err}, keysAndValues...)...)
}
