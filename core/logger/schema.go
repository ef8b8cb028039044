package logger

import "strings"

// Level names as printed in the "level" field.
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
	LevelFatal = "FATAL"
)

var levelNames = map[string]string{
	"debug":   LevelDebug,
	"info":    LevelInfo,
	"warn":    LevelWarn,
	"warning": LevelWarn,
	"error":   LevelError,
	"fatal":   LevelFatal,
}

// statusValues is the closed set for "status". Other values pass through
// lowercased.
var statusValues = set("ok", "fail", "skip", "retry", "rate_limited", "cancelled")

// outcomeValues covers handler results, directory submissions and fan-out
// delivery classes. Outcomes outside it are dropped from the line.
var outcomeValues = map[string]string{
	"error": "fail",
}

func init() {
	for _, o := range []string{
		"ok", "fail", "skip", "cancelled", "rate_limited",
		"delivered", "blocked", "failed", "persist_failed",
		"wrong_pin", "rejected",
	} {
		outcomeValues[o] = o
	}
}

func set(values ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(values))
	for _, v := range values {
		m[v] = struct{}{}
	}
	return m
}

func normalizeLevel(level string) string {
	if level == "" {
		return LevelInfo
	}
	if name, ok := levelNames[strings.ToLower(level)]; ok {
		return name
	}
	return strings.ToUpper(level)
}

func normalizeStatus(status string) (string, bool) {
	status = strings.ToLower(strings.TrimSpace(status))
	_, known := statusValues[status]
	return status, known
}

func normalizeOutcome(outcome string) (string, bool) {
	v, ok := outcomeValues[strings.ToLower(strings.TrimSpace(outcome))]
	return v, ok
}

// defaultKeyOrder puts correlation fields first, then conversation,
// directory and fan-out fields, then errors.
var defaultKeyOrder = []string{
	"ts", "level", "component", "event", "status",
	"rid", "rid_full", "run_id", "ts_unix_nano",
	"update_id", "user_id", "chat_id", "handler",
	"state", "next_state", "command", "outcome",
	"duration_ms", "elapsed_ms", "payload", "username",
	"mode", "listen", "public_url", "http_code", "method", "path",
	"db", "host", "port",
	"group_id", "member_id", "half", "hour", "window",
	"total", "delivered", "blocked", "failed", "persist_failed", "rate", "workers", "count",
	"err", "err_code", "error_kind", "cause", "retryable", "attempts", "backoff_ms", "rate_limited",
}
