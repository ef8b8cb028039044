package logger

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode"
)

type ctxKey int

const (
	keyLogger ctxKey = iota
	keyRID
	keyUpdate
	keyHandler
	keyRunID
)

// updateMeta identifies the Telegram update a log line belongs to.
type updateMeta struct {
	updateID int
	userID   int64
	chatID   int64
}

func value[T any](ctx context.Context, key ctxKey) T {
	var zero T
	if ctx == nil {
		return zero
	}
	if v, ok := ctx.Value(key).(T); ok {
		return v
	}
	return zero
}

func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func with(ctx context.Context, key ctxKey, v any) context.Context {
	return context.WithValue(orBackground(ctx), key, v)
}

// WithLogger stores log in ctx. A nil logger leaves ctx as is.
func WithLogger(ctx context.Context, log *slog.Logger) context.Context {
	if log == nil {
		return orBackground(ctx)
	}
	return with(ctx, keyLogger, log)
}

// FromContext returns the logger stored in ctx, or L.
func FromContext(ctx context.Context) *slog.Logger {
	if l := value[*slog.Logger](ctx, keyLogger); l != nil {
		return l
	}
	return L
}

// WithRID sets the correlation id used by every line logged under ctx.
func WithRID(ctx context.Context, rid string) context.Context {
	return with(ctx, keyRID, rid)
}

func RIDFrom(ctx context.Context) string { return value[string](ctx, keyRID) }

// WithUpdateMeta records which update, sender and chat ctx is serving.
func WithUpdateMeta(ctx context.Context, updateID int, userID, chatID int64) context.Context {
	return with(ctx, keyUpdate, updateMeta{updateID: updateID, userID: userID, chatID: chatID})
}

func UpdateIDFrom(ctx context.Context) int { return value[updateMeta](ctx, keyUpdate).updateID }
func UserIDFrom(ctx context.Context) int64 { return value[updateMeta](ctx, keyUpdate).userID }
func ChatIDFrom(ctx context.Context) int64 { return value[updateMeta](ctx, keyUpdate).chatID }

// WithHandler names the route handling the update. Empty names are ignored.
func WithHandler(ctx context.Context, handler string) context.Context {
	if handler == "" {
		return orBackground(ctx)
	}
	return with(ctx, keyHandler, handler)
}

func HandlerFrom(ctx context.Context) string { return value[string](ctx, keyHandler) }

// WithRunID tags a reminder or broadcast run; every per-chat line carries it.
func WithRunID(ctx context.Context, runID string) context.Context {
	if runID == "" {
		return orBackground(ctx)
	}
	return with(ctx, keyRunID, runID)
}

func RunIDFrom(ctx context.Context) string { return value[string](ctx, keyRunID) }

// Sanitize drops control and format runes other than tab and newline, so
// user-typed text cannot break a log line.
func Sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case unicode.IsControl(r), unicode.Is(unicode.Cf, r):
			return -1
		}
		return r
	}, s)
}

// SanitizeLimit sanitizes s and keeps at most max runes.
func SanitizeLimit(s string, max int) string {
	if max <= 0 {
		return ""
	}
	s = Sanitize(s)
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}

// BuildRID formats updateID:chatID:userID.
func BuildRID(updateID int, chatID, userID int64) string {
	return fmt.Sprintf("%d:%d:%d", updateID, chatID, userID)
}

// CompactRID rewrites a BuildRID value as dot-separated base36. Anything else
// comes back unchanged.
func CompactRID(rid string) string {
	rid = strings.TrimSpace(rid)
	parts := strings.Split(rid, ":")
	if len(parts) != 3 {
		return rid
	}
	for i, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return rid
		}
		parts[i] = strconv.FormatInt(n, 36)
	}
	return strings.Join(parts, ".")
}
