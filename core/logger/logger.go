// Package logger is the bot's structured logging layer: one slog handler
// writing flat key=value or JSON lines through an async writer, plus
// context helpers that stamp every line with the update or run it belongs to.
package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"

	"github.com/ltzehan/thermobot/core/buildinfo"
	coreconfig "github.com/ltzehan/thermobot/core/config"
)

// Component names. Each line carries exactly one as "component".
const (
	CompApp          = "app"
	CompDB           = "db"
	CompMigrate      = "db.migrate"
	CompTG           = "tg"
	CompSender       = "tg.sender"
	CompHTTP         = "http"
	CompSessions     = "service.sessions"
	CompConversation = "service.conversation"
	CompDirectory    = "service.directory"
	CompFanout       = "service.fanout"
	CompScheduler    = "service.scheduler"
)

var (
	// L is the root logger. Before InitLogger it is slog.Default().
	L *slog.Logger

	DB           *slog.Logger
	TG           *slog.Logger
	MIG          *slog.Logger
	SVCSessions  *slog.Logger
	SVCScheduler *slog.Logger
)

var (
	state struct {
		once    sync.Once
		mu      sync.Mutex
		writer  *asyncWriter
		files   []io.Closer
		stopped bool
	}
	levelVar      slog.LevelVar
	debugSampler  = newSampler(1, 50)
	traceOverride bool
)

func init() {
	setRoot(slog.Default())
}

func setRoot(root *slog.Logger) {
	L = root
	DB = root.With("component", CompDB)
	TG = root.With("component", CompTG)
	MIG = root.With("component", CompMigrate)
	SVCSessions = root.With("component", CompSessions)
	SVCScheduler = root.With("component", CompScheduler)
}

// InitLogger installs the structured handler as the process default. Only
// the first call has any effect.
func InitLogger(cfg *coreconfig.Config) error {
	var err error
	state.once.Do(func() {
		var lc coreconfig.LoggingConfig
		if cfg != nil {
			lc = cfg.Logging
		}
		levelVar.Set(parseLevel(lc.Level))
		debugSampler.Set(parseDebugSample(lc.DebugSample))
		traceOverride = envFlag("TRACE") || envFlag("LOG_TRACE")

		sinks := []io.Writer{os.Stdout}
		if f, ferr := openLogFile(lc.Dir, lc.BotFile); ferr != nil {
			err = ferr
			return
		} else if f != nil {
			sinks = append(sinks, f)
			state.files = append(state.files, f)
		}
		state.writer = newAsyncWriter(sinks, 64*1024)

		root := slog.New(newStructuredHandler(handlerConfig{
			level:    &levelVar,
			writer:   state.writer,
			format:   pickFormat(lc),
			keyOrder: parseKeyOrder(lc.KeysOrder),
		}))
		slog.SetDefault(root)
		setRoot(root)
		logStartup(cfg, profileOf(lc))
	})
	return err
}

func logStartup(cfg *coreconfig.Config, profile string) {
	attrs := []slog.Attr{
		slog.String("event", "startup"),
		slog.String("go_version", runtime.Version()),
		slog.String("build", buildinfo.Summary()),
		slog.String("cfg_profile", profile),
	}
	if cfg != nil {
		attrs = append(attrs,
			slog.String("mode", cfg.Telegram.RunMode),
			slog.String("db", cfg.Database.Driver),
			slog.Bool("debug", cfg.Telegram.Debug),
		)
	}
	Component(CompApp).LogAttrs(context.Background(), slog.LevelInfo, "startup", attrs...)
}

// Shutdown drains queued lines and closes the log file. Safe to call twice.
func Shutdown() error {
	state.mu.Lock()
	defer state.mu.Unlock()
	if state.stopped {
		return nil
	}
	state.stopped = true

	var errs []error
	if state.writer != nil {
		errs = append(errs, state.writer.Close())
	}
	for _, c := range state.files {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// openLogFile opens dir/name for appending. A blank dir or name means no file.
func openLogFile(dir, name string) (*os.File, error) {
	dir, name = strings.TrimSpace(dir), strings.TrimSpace(name)
	if dir == "" || name == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("logger: create %s: %w", dir, err)
	}
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logger: open log file: %w", err)
	}
	return f, nil
}

func profileOf(lc coreconfig.LoggingConfig) string {
	if p := strings.ToLower(strings.TrimSpace(lc.Profile)); p != "" {
		return p
	}
	return "prod"
}

// pickFormat honours an explicit format and otherwise prints key=value for
// debug/dev profiles and JSON everywhere else.
func pickFormat(lc coreconfig.LoggingConfig) logFormat {
	switch strings.ToLower(strings.TrimSpace(lc.Format)) {
	case "kv", "text", "pretty":
		return formatKV
	case "json":
		return formatJSON
	}
	switch profileOf(lc) {
	case "debug", "dev":
		return formatKV
	}
	return formatJSON
}

func parseKeyOrder(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "default" {
		return slices.Clone(defaultKeyOrder)
	}
	var order []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			order = append(order, k)
		}
	}
	if len(order) == 0 {
		return slices.Clone(defaultKeyOrder)
	}
	return order
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// parseDebugSample defaults to 1/50. "0" or garbage turns sampling off.
func parseDebugSample(spec string) (int, int) {
	if strings.TrimSpace(spec) == "" {
		return 1, 50
	}
	num, den := parseSampleSpec(spec)
	switch {
	case num == 0 && den == 0:
		return 0, 0
	case num <= 0 || den <= 0:
		return 1, 50
	}
	return num, den
}

func envFlag(name string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// ShouldSampleDebug gates per-update debug lines. TRACE=1 disables sampling.
func ShouldSampleDebug() bool {
	return traceOverride || debugSampler.Allow()
}

// Background is context.Background, kept so call sites read uniformly.
func Background() context.Context {
	return context.Background()
}

// Component returns L scoped to name.
func Component(name string) *slog.Logger {
	if name = strings.TrimSpace(name); name == "" {
		return L
	}
	return L.With("component", name)
}

// LogEvent logs event through logg, or the logger stored in ctx when logg is nil.
func LogEvent(ctx context.Context, logg *slog.Logger, level slog.Level, event string, attrs ...slog.Attr) {
	if logg == nil {
		logg = FromContext(ctx)
	}
	if event != "" {
		attrs = append([]slog.Attr{slog.String("event", event)}, attrs...)
	}
	logg.LogAttrs(ctx, level, "", attrs...)
}

func Event(ctx context.Context, component string, level slog.Level, event string, attrs ...slog.Attr) {
	LogEvent(ctx, Component(component), level, event, attrs...)
}

func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelDebug, event, attrs...)
}

func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelInfo, event, attrs...)
}

func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelWarn, event, attrs...)
}

func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelError, event, attrs...)
}
