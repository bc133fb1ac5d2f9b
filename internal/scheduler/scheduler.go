// Package scheduler runs a function on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// parser accepts standard 5-field expressions and descriptors such as
// "@every 6h" or "@daily".
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ErrAlreadyStarted is returned when Start is called on a running scheduler.
var ErrAlreadyStarted = errors.New("scheduler already started")

// RunFunc is invoked on every tick.
type RunFunc func(ctx context.Context) error

// Options configures a Scheduler.
type Options struct {
	// RunOnStart runs once immediately before waiting for the first tick.
	RunOnStart bool
	Logger     *slog.Logger
}

// Scheduler invokes a RunFunc on a cron schedule. A tick that fires while
// the previous run is still going is skipped.
type Scheduler struct {
	expr       string
	schedule   cron.Schedule
	run        RunFunc
	runOnStart bool
	logger     *slog.Logger

	mu      sync.Mutex
	running bool
	runs    atomic.Int64
}

// ValidateSchedule reports whether expr is a valid schedule.
func ValidateSchedule(expr string) error {
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	return nil
}

// New creates a Scheduler for expr.
func New(expr string, run RunFunc, opts Options) (*Scheduler, error) {
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	if run == nil {
		return nil, errors.New("scheduler requires a run function")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Scheduler{
		expr:       expr,
		schedule:   schedule,
		run:        run,
		runOnStart: opts.RunOnStart,
		logger:     opts.Logger.With(slog.String("component", "scheduler")),
	}, nil
}

// Next returns the first activation time after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t)
}

// Start runs the schedule and blocks until ctx is cancelled. It waits for
// an in-flight run to finish before returning.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	cronLogger := &slogCronLogger{logger: s.logger}
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	c.Schedule(s.schedule, cron.FuncJob(func() {
		s.runOnce(ctx, "schedule")
	}))

	s.logger.InfoContext(ctx, "scheduler started",
		slog.String("schedule", s.expr),
		slog.Time("next_run", s.schedule.Next(time.Now())),
	)

	if s.runOnStart {
		s.runOnce(ctx, "start")
	}

	c.Start()
	<-ctx.Done()

	stopped := c.Stop()
	<-stopped.Done()

	s.logger.Info("scheduler stopped", slog.Int64("runs", s.runs.Load()))
	return nil
}

func (s *Scheduler) runOnce(ctx context.Context, trigger string) {
	if ctx.Err() != nil {
		return
	}

	start := time.Now()
	err := s.run(ctx)
	s.runs.Add(1)

	attrs := []any{
		slog.String("trigger", trigger),
		slog.Duration("duration", time.Since(start)),
		slog.Time("next_run", s.schedule.Next(time.Now())),
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "scheduled run failed", append(attrs, slog.String("error", err.Error()))...)
		return
	}
	s.logger.InfoContext(ctx, "scheduled run completed", attrs...)
}

// slogCronLogger adapts slog to cron.Logger.
type slogCronLogger struct {
	logger *slog.Logger
}

// Info logs cron's routine messages at debug level.
func (l *slogCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l *slogCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, slog.String("error", err.Error()))...)
}
