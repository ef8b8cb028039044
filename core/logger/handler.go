package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

type logFormat string

const (
	formatJSON logFormat = "json"
	formatKV   logFormat = "kv"

	tsLayout = "2006-01-02T15:04:05.000Z07:00"
)

type handlerConfig struct {
	level    slog.Leveler
	writer   *asyncWriter
	format   logFormat
	keyOrder []string
}

// structuredHandler renders each record as one flat line, either key=value
// pairs or a JSON object. Keys listed in keyOrder come first, the rest sorted.
type structuredHandler struct {
	cfg    handlerConfig
	attrs  []slog.Attr
	prefix string
}

func newStructuredHandler(cfg handlerConfig) *structuredHandler {
	if cfg.level == nil {
		cfg.level = slog.LevelInfo
	}
	if cfg.keyOrder == nil {
		cfg.keyOrder = slices.Clone(defaultKeyOrder)
	}
	return &structuredHandler{cfg: cfg}
}

func (h *structuredHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.cfg.level.Level()
}

func (h *structuredHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.cfg.writer == nil {
		return errors.New("logger: writer not initialized")
	}
	asJSON := h.cfg.format == formatJSON

	f := fieldSet{}
	ts := r.Time.UTC()
	f["ts"] = ts.Truncate(time.Millisecond).Format(tsLayout)
	f["level"] = normalizeLevel(r.Level.String())
	if asJSON {
		f["ts_unix_nano"] = ts.UnixNano()
	}
	for _, a := range h.attrs {
		f.add(h.prefix, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		f.add(h.prefix, a)
		return true
	})
	f.fromContext(ctx)

	if ev, _ := f.str("event"); ev == "" {
		f["event"] = orDefault(r.Message, "unknown")
	}
	if comp, _ := f.str("component"); comp == "" {
		f["component"] = CompApp
	}
	if rid, _ := f.str("rid"); rid != "" {
		if short := CompactRID(rid); short != rid {
			if asJSON {
				f.setDefault("rid_full", rid)
			}
			f["rid"] = short
		}
	}
	f.normalize()

	var line []byte
	if asJSON {
		var err error
		if line, err = f.json(h.cfg.keyOrder); err != nil {
			return err
		}
	} else {
		line = f.kv(h.cfg.keyOrder)
	}
	return h.cfg.writer.Write(append(line, '\n'))
}

func (h *structuredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(slices.Clip(h.attrs), attrs...)
	return &clone
}

func (h *structuredHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = joinKey(h.prefix, name)
	return &clone
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func joinKey(prefix, key string) string {
	switch {
	case prefix == "":
		return key
	case key == "":
		return prefix
	}
	return prefix + "." + key
}

// fieldSet is the flattened view of one record.
type fieldSet map[string]any

// add flattens groups into dotted keys.
func (f fieldSet) add(prefix string, a slog.Attr) {
	key := joinKey(prefix, a.Key)
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		for _, child := range v.Group() {
			f.add(key, child)
		}
		return
	}
	if key == "" {
		return
	}
	if k, val, ok := normalizeAttr(key, v); ok {
		f[k] = val
	}
}

func (f fieldSet) setDefault(key string, v any) {
	if _, ok := f[key]; !ok {
		f[key] = v
	}
}

func (f fieldSet) str(key string) (string, bool) {
	v, ok := f[key]
	if !ok {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	return fmt.Sprint(v), true
}

// fromContext fills correlation fields the record did not set itself.
func (f fieldSet) fromContext(ctx context.Context) {
	if ctx == nil {
		return
	}
	for key, v := range map[string]string{
		"rid":     RIDFrom(ctx),
		"run_id":  RunIDFrom(ctx),
		"handler": HandlerFrom(ctx),
	} {
		if v != "" {
			f.setDefault(key, v)
		}
	}
	meta := value[updateMeta](ctx, keyUpdate)
	if meta.updateID != 0 {
		f.setDefault("update_id", int64(meta.updateID))
	}
	if meta.userID != 0 {
		f.setDefault("user_id", meta.userID)
	}
	if meta.chatID != 0 {
		f.setDefault("chat_id", meta.chatID)
	}
}

// normalize maps level, status and outcome onto the shared vocabulary, drops
// outcomes outside it and removes empty values.
func (f fieldSet) normalize() {
	if lvl, ok := f.str("level"); ok {
		f["level"] = normalizeLevel(lvl)
	}
	if s, _ := f.str("status"); s != "" {
		norm, _ := normalizeStatus(s)
		f["status"] = norm
	}
	if o, _ := f.str("outcome"); o != "" {
		if norm, ok := normalizeOutcome(o); ok {
			f["outcome"] = norm
		} else {
			delete(f, "outcome")
		}
	}
	for k, v := range f {
		if v == nil || v == "" {
			delete(f, k)
		}
	}
}

func (f fieldSet) keys(order []string) []string {
	out := make([]string, 0, len(f))
	for _, k := range order {
		if _, ok := f[k]; ok {
			out = append(out, k)
		}
	}
	head := len(out)
	for k := range f {
		if !slices.Contains(out[:head], k) {
			out = append(out, k)
		}
	}
	slices.Sort(out[head:])
	return out
}

func (f fieldSet) json(order []string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range f.keys(order) {
		data, err := json.Marshal(f[k])
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", k, err)
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Quote(k))
		buf.WriteByte(':')
		buf.Write(data)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (f fieldSet) kv(order []string) []byte {
	var buf bytes.Buffer
	for i, k := range f.keys(order) {
		if i > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(k)
		buf.WriteByte('=')
		buf.WriteString(kvValue(f[k]))
	}
	return buf.Bytes()
}

func kvValue(v any) string {
	s, ok := v.(string)
	if !ok {
		s = fmt.Sprint(v)
	}
	if strings.ContainsFunc(s, func(r rune) bool { return r <= ' ' || r == '=' || r == '"' }) {
		return strconv.Quote(s)
	}
	return s
}

// normalizeAttr converts v to a JSON-friendly value. Durations are emitted as
// whole milliseconds under a key ending in _ms.
func normalizeAttr(key string, v slog.Value) (string, any, bool) {
	switch v.Kind() {
	case slog.KindString:
		return key, strings.TrimSpace(v.String()), true
	case slog.KindBool:
		return key, v.Bool(), true
	case slog.KindInt64:
		return key, v.Int64(), true
	case slog.KindUint64:
		if u := v.Uint64(); u <= math.MaxInt64 {
			return key, int64(u), true
		}
		return key, v.Uint64(), true
	case slog.KindFloat64:
		return key, v.Float64(), true
	case slog.KindDuration:
		return durationKey(key), RoundMS(v.Duration()).Milliseconds(), true
	case slog.KindTime:
		return key, v.Time().UTC().Format(time.RFC3339Nano), true
	}
	switch x := v.Any().(type) {
	case nil:
		return key, nil, false
	case error:
		return key, RedactTokens(x.Error()), true
	case string:
		return key, strings.TrimSpace(x), true
	case time.Duration:
		return durationKey(key), RoundMS(x).Milliseconds(), true
	case fmt.Stringer:
		return key, x.String(), true
	default:
		return key, fmt.Sprint(x), true
	}
}

func durationKey(key string) string {
	if strings.HasSuffix(key, "_ms") {
		return key
	}
	return key + "_ms"
}
