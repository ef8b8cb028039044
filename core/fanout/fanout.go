// Package fanout delivers one message per session to many sessions at once
// and reports aggregate delivery statistics.
package fanout

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/ltzehan/thermobot/core/logger"
	"github.com/ltzehan/thermobot/core/session"
	"github.com/ltzehan/thermobot/core/telegram"
)

const (
	DefaultWorkers     = 100
	DefaultSendTimeout = 10 * time.Second
)

// BlockMarker persists that a chat blocked the bot.
type BlockMarker interface {
	MarkBlocked(ctx context.Context, id int64) error
}

// Builder renders the message for one target.
type Builder func(s *session.Session) telegram.Outgoing

// Options configures an Engine.
type Options struct {
	Gateway telegram.Sender
	Blocks  BlockMarker
	Workers int
	// Limiter is shared by all workers; nil disables limiting.
	Limiter     *rate.Limiter
	SendTimeout time.Duration
	// OnDelivered runs after a successful send; errors are logged only.
	OnDelivered func(ctx context.Context, s *session.Session) error
}

// Engine runs fan-outs. It is safe for concurrent use.
type Engine struct {
	opts Options
}

// New fills defaults for zero options.
func New(opts Options) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = DefaultSendTimeout
	}
	return &Engine{opts: opts}
}

// NewLimiter returns a limiter allowing perSec sends per second, or nil when
// perSec is not positive.
func NewLimiter(perSec int) *rate.Limiter {
	if perSec <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(perSec), perSec)
}

// Outcome classifies one unit of a run.
type Outcome int

const (
	Failed Outcome = iota
	Delivered
	Blocked
	// PersistFailed means the recipient blocked the bot but the flag could not be stored.
	PersistFailed
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case Blocked:
		return "blocked"
	case PersistFailed:
		return "persist_failed"
	}
	return "failed"
}

type result struct {
	chatID  int64
	outcome Outcome
}

// Stats summarizes a run. Delivered+Failed+Blocked+PersistFailed == Total.
type Stats struct {
	RunID         string
	Total         int
	Delivered     int
	Failed        int
	Blocked       int
	PersistFailed int
	Elapsed       time.Duration
}

// Rate is targets per second over the whole run.
func (s Stats) Rate() float64 {
	secs := s.Elapsed.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(s.Total) / secs
}

func (s Stats) String() string {
	return fmt.Sprintf("sent to %d clients in %.4fs (%.2f/s). Successes: %d, blocked: %d, failures: %d",
		s.Total, s.Elapsed.Seconds(), s.Rate(), s.Delivered, s.Blocked, s.Failed+s.PersistFailed)
}

func (s *Stats) add(o Outcome) {
	switch o {
	case Delivered:
		s.Delivered++
	case Blocked:
		s.Blocked++
	case PersistFailed:
		s.PersistFailed++
	default:
		s.Failed++
	}
}

// Run sends build(target) to every target and waits for all units. Every
// target is accounted for exactly once, including after ctx is cancelled.
func (e *Engine) Run(ctx context.Context, targets []*session.Session, build Builder) Stats {
	start := time.Now()
	stats := Stats{RunID: uuid.NewString(), Total: len(targets)}
	ctx = logger.WithRunID(ctx, stats.RunID)

	logger.Info(ctx, logger.CompFanout, "fanout.start",
		slog.Int("total", stats.Total),
		slog.Int("workers", e.opts.Workers),
	)
	if len(targets) == 0 {
		stats.Elapsed = time.Since(start)
		return stats
	}

	workers := e.opts.Workers
	if workers > len(targets) {
		workers = len(targets)
	}
	jobs := make(chan *session.Session)
	results := make(chan result, workers)

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for s := range jobs {
				results <- result{chatID: s.ID, outcome: e.deliver(ctx, s, build)}
			}
		}()
	}
	go func() {
		for _, s := range targets {
			jobs <- s
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	for r := range results {
		stats.add(r.outcome)
	}
	stats.Elapsed = time.Since(start)

	logger.Info(ctx, logger.CompFanout, "fanout.done",
		slog.Int("total", stats.Total),
		slog.Int("delivered", stats.Delivered),
		slog.Int("blocked", stats.Blocked),
		slog.Int("failed", stats.Failed),
		slog.Int("persist_failed", stats.PersistFailed),
		slog.Duration("elapsed", stats.Elapsed),
	)
	return stats
}

func (e *Engine) deliver(ctx context.Context, s *session.Session, build Builder) Outcome {
	if e.opts.Limiter != nil {
		if err := e.opts.Limiter.Wait(ctx); err != nil {
			e.logFailure(ctx, s.ID, "fanout.limit", err)
			return Failed
		}
	}
	out := build(s)
	out.ChatID = s.ID

	sendCtx, cancel := context.WithTimeout(ctx, e.opts.SendTimeout)
	delivery, err := e.opts.Gateway.Send(sendCtx, out)
	cancel()

	switch delivery {
	case telegram.Delivered:
		if e.opts.OnDelivered != nil {
			if err := e.opts.OnDelivered(ctx, s); err != nil {
				e.logFailure(ctx, s.ID, "fanout.after_send", err)
			}
		}
		return Delivered
	case telegram.Blocked:
		if e.opts.Blocks != nil {
			if err := e.opts.Blocks.MarkBlocked(ctx, s.ID); err != nil {
				e.logFailure(ctx, s.ID, "fanout.mark_blocked", err)
				return PersistFailed
			}
		}
		s.Blocked = true
		logger.Debug(ctx, logger.CompFanout, "fanout.blocked", slog.Int64("chat_id", s.ID))
		return Blocked
	}
	if err == nil {
		err = fmt.Errorf("fanout: send failed")
	}
	e.logFailure(ctx, s.ID, "fanout.send", err)
	return Failed
}

func (e *Engine) logFailure(ctx context.Context, chatID int64, event string, err error) {
	logger.Warn(ctx, logger.CompFanout, event,
		slog.Int64("chat_id", chatID),
		logger.Err(err),
	)
}
