// Package scheduler runs the periodic reminder and rollover triggers.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ltzehan/thermobot/core/logger"
)

// Job is one periodic trigger. Run receives the firing time in the
// scheduler's location.
type Job struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Run     func(ctx context.Context, now time.Time) error
}

// Scheduler wraps a cron instance bound to a fixed location.
type Scheduler struct {
	mu     sync.Mutex
	parser cron.Parser
	loc    *time.Location
	c      *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// New creates a stopped scheduler firing in loc.
func New(loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		parser: parser,
		loc:    loc,
		c: cron.New(
			cron.WithParser(parser),
			cron.WithLocation(loc),
			cron.WithChain(cron.Recover(cronLogger{}), cron.SkipIfStillRunning(cronLogger{})),
		),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Validate reports whether spec is a five-field expression or descriptor.
func Validate(spec string) error {
	if _, err := parser.Parse(strings.TrimSpace(spec)); err != nil {
		return fmt.Errorf("scheduler: invalid spec %q: %w", spec, err)
	}
	return nil
}

// Next returns the first firing of spec strictly after from, in loc.
func Next(spec string, from time.Time, loc *time.Location) (time.Time, error) {
	sched, err := parser.Parse(strings.TrimSpace(spec))
	if err != nil {
		return time.Time{}, fmt.Errorf("scheduler: invalid spec %q: %w", spec, err)
	}
	if loc != nil {
		from = from.In(loc)
	}
	return sched.Next(from), nil
}

// Add registers job. Overlapping firings of the same job are skipped.
func (s *Scheduler) Add(job Job) error {
	if job.Run == nil {
		return fmt.Errorf("scheduler: job %s has no run function", job.Name)
	}
	spec := strings.TrimSpace(job.Spec)
	if err := Validate(spec); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.c.AddFunc(spec, func() { s.fire(job) })
	if err != nil {
		return fmt.Errorf("scheduler: add %s: %w", job.Name, err)
	}
	logger.Info(s.ctx, logger.CompScheduler, "job.registered",
		slog.String("job", job.Name),
		slog.String("spec", spec),
		slog.String("tz", s.loc.String()),
	)
	return nil
}

func (s *Scheduler) fire(job Job) {
	ctx := s.ctx
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}
	start := time.Now()
	err := job.Run(ctx, start.In(s.loc))
	attrs := []slog.Attr{
		slog.String("job", job.Name),
		slog.String("status", logger.Status(err)),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	}
	if err != nil {
		attrs = append(attrs, logger.Err(err))
		logger.Error(ctx, logger.CompScheduler, "job.run", attrs...)
		return
	}
	logger.Info(ctx, logger.CompScheduler, "job.run", attrs...)
}

// Start begins firing jobs in the background.
func (s *Scheduler) Start() {
	s.c.Start()
}

// Stop halts the cron loop, cancels running jobs and waits for them up to
// ctx's deadline.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.c.Stop().Done()
	s.cancel()
	select {
	case <-done:
	case <-ctx.Done():
		logger.Warn(ctx, logger.CompScheduler, "stop.timeout")
	}
}

// cronLogger routes cron's own diagnostics into the component logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	logger.SVCScheduler.Debug(msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	logger.SVCScheduler.Error(msg, append(keysAndValues, "err", err)...)
}
