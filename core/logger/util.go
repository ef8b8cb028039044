package logger

import (
	"log/slog"
	"regexp"
	"strings"
	"time"
)

// tokenPattern matches Telegram bot tokens, with or without the "bot" prefix
// the Bot API puts in front of them in request URLs.
var tokenPattern = regexp.MustCompile(`(bot)?[0-9]{3,}:[A-Za-z0-9_-]{20,}`)

// Status maps err to the status value used by *.done and job.run events.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RoundMS trims d to whole milliseconds. Negative durations become zero.
func RoundMS(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d.Round(time.Millisecond)
}

// Err is the "err" attribute with any bot token masked out. Transport errors
// from the Bot API embed the request URL, token included.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("err", "")
	}
	return slog.String("err", RedactTokens(err.Error()))
}

// RedactTokens replaces every bot token in s.
func RedactTokens(s string) string {
	return tokenPattern.ReplaceAllString(s, "<token>")
}

// SummarizeStrings joins at most limit values and reports whether any were left out.
func SummarizeStrings(values []string, limit int) (string, bool) {
	if limit <= 0 {
		return "", len(values) > 0
	}
	if len(values) > limit {
		return strings.Join(values[:limit], ", "), true
	}
	return strings.Join(values, ", "), false
}
