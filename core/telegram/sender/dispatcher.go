// Package sender runs outbound Bot API calls off the request path. Replies to
// webhook updates are queued here so the webhook can answer Telegram at once.
package sender

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ltzehan/thermobot/core/logger"
	"github.com/ltzehan/thermobot/core/telegram/netutil"

	tele "gopkg.in/telebot.v4"
)

var (
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	ErrQueueFull   = errors.New("telegram sender: queue full")
)

// Options tunes the dispatcher. Zero values pick the defaults in NewDispatcher.
type Options struct {
	QueueSize    int
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration caps one job including retries and flood waits.
	MaxDuration time.Duration
}

// Job is one outbound call. Run is retried, so it must be safe to repeat.
type Job struct {
	Action   string
	Endpoint string
	ChatID   int64
	Run      func() error
}

type queued struct {
	ctx context.Context
	Job
}

type Dispatcher struct {
	opts Options
	jobs chan queued
	wg   sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	accepted atomic.Uint64
	failed   atomic.Uint64
}

func NewDispatcher(opts Options) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	opts.MaxRetries = max(opts.MaxRetries, 0)
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 2 * time.Second
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = 12 * time.Second
	}
	d := &Dispatcher{opts: opts, jobs: make(chan queued, opts.QueueSize)}
	for range opts.Workers {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for j := range d.jobs {
				d.run(j)
			}
		}()
	}
	return d
}

// Enqueue hands j to a worker. It never blocks: a full queue is an error.
func (d *Dispatcher) Enqueue(ctx context.Context, j Job) error {
	if j.Run == nil {
		return errors.New("telegram sender: nil run function")
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrQueueClosed
	}
	select {
	case d.jobs <- queued{ctx: context.WithoutCancel(ctx), Job: j}:
		d.accepted.Add(1)
		return nil
	default:
		return ErrQueueFull
	}
}

// Do enqueues j, running it inline when the queue is full or closed. A nil
// dispatcher always runs inline.
func (d *Dispatcher) Do(ctx context.Context, j Job) error {
	if d == nil {
		return j.Run()
	}
	err := d.Enqueue(ctx, j)
	if errors.Is(err, ErrQueueFull) || errors.Is(err, ErrQueueClosed) {
		logger.Warn(ctx, logger.CompSender, "queue.fallback",
			slog.String("action", j.Action),
			slog.String("endpoint", j.Endpoint),
			logger.Err(err),
		)
		return j.Run()
	}
	return err
}

func (d *Dispatcher) Queued() uint64     { return d.accepted.Load() }
func (d *Dispatcher) ErrorCount() uint64 { return d.failed.Load() }

// Close stops accepting jobs and waits for the queue to drain.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) run(j queued) {
	ctx, cancel := context.WithTimeout(j.ctx, d.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	attrs := jobAttrs(j)
	logger.Debug(ctx, logger.CompSender, "send.start", attrs...)

	var err error
	attempt := 0
	for {
		attempt++
		if err = j.Run(); err == nil {
			logger.Debug(ctx, logger.CompSender, "send.ok", append(attrs,
				slog.Int("attempts", attempt),
				slog.Duration("elapsed", time.Since(start)),
			)...)
			return
		}
		if attempt > d.opts.MaxRetries {
			break
		}
		delay, ok := retryDelay(err, attempt, d.opts.RetryBackoff)
		if !ok || !fits(ctx, delay) {
			break
		}
		logger.Debug(ctx, logger.CompSender, "send.retry", append(attrs,
			slog.Int("attempts", attempt),
			slog.Duration("backoff", delay),
			logger.Err(err),
		)...)
		if !sleep(ctx, delay) {
			err = ctx.Err()
			break
		}
	}

	d.failed.Add(1)
	logger.Error(ctx, logger.CompSender, "send.fail", append(attrs,
		logger.Err(err),
		slog.String("error_kind", classifyError(err)),
		slog.Int("attempts", attempt),
		slog.Duration("elapsed", time.Since(start)),
	)...)
}

func jobAttrs(j queued) []slog.Attr {
	attrs := []slog.Attr{slog.String("action", j.Action)}
	if j.Endpoint != "" {
		attrs = append(attrs, slog.String("endpoint", j.Endpoint))
	}
	if j.ChatID != 0 {
		attrs = append(attrs, slog.Int64("chat_id", j.ChatID))
	}
	return attrs
}

// retryDelay honours Telegram's flood wait and otherwise backs off linearly
// for transient network errors. Anything else is final.
func retryDelay(err error, attempt int, backoff time.Duration) (time.Duration, bool) {
	var flood tele.FloodError
	if errors.As(err, &flood) && flood.RetryAfter > 0 {
		return time.Duration(flood.RetryAfter) * time.Second, true
	}
	if netutil.ShouldRetry(err) {
		return backoff * time.Duration(attempt), true
	}
	return 0, false
}

func fits(ctx context.Context, delay time.Duration) bool {
	dl, ok := ctx.Deadline()
	return !ok || time.Until(dl) > delay
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// classifyError buckets a send failure for the error_kind field.
func classifyError(err error) string {
	var (
		apiErr *tele.Error
		flood  tele.FloodError
		dnsErr *net.DNSError
		opErr  *net.OpError
		netErr net.Error
		alert  tls.AlertError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &flood):
		return "flood"
	case errors.As(err, &apiErr):
		return httpClass(apiErr.Code)
	case errors.As(err, &dnsErr):
		if dnsErr.IsTimeout {
			return "timeout"
		}
		return "dns"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	case errors.As(err, &opErr) && opErr.Op == "dial":
		return "dial"
	case errors.As(err, &alert):
		return "tls"
	}
	return "unknown"
}

func httpClass(code int) string {
	switch {
	case code == http.StatusTooManyRequests:
		return "flood"
	case code >= 500:
		return "http_5xx"
	case code >= 400:
		return "http_4xx"
	}
	return "unknown"
}
