// Package webhook serves Telegram updates and the admin triggers over HTTP.
// Every route lives under the bot token so the URL doubles as a secret.
package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ltzehan/thermobot/core/fanout"
	"github.com/ltzehan/thermobot/core/logger"
	"github.com/ltzehan/thermobot/core/telegram"
)

const maxBodyBytes = 1 << 20

// Service is the application surface reachable over HTTP.
type Service interface {
	HandleUpdate(ctx context.Context, u telegram.Update) (telegram.Outgoing, error)
	Remind(ctx context.Context, now time.Time) (fanout.Stats, error)
	Broadcast(ctx context.Context, text string) (fanout.Stats, error)
	Rollover(ctx context.Context, now time.Time) (int64, error)
	Now() time.Time
}

// BotAdmin manages the bot registration with Telegram.
type BotAdmin interface {
	SetWebhook(url string) error
	Me() ([]byte, error)
}

// Options configures the router.
type Options struct {
	Token string
	// PublicURL is the externally reachable base, without the token.
	PublicURL string
	// Debug echoes replies and diagnostics instead of a bare OK.
	Debug bool
}

type handler struct {
	svc   Service
	admin BotAdmin
	opts  Options
}

// NewRouter builds the HTTP surface.
func NewRouter(svc Service, admin BotAdmin, opts Options) http.Handler {
	h := &handler{svc: svc, admin: admin, opts: opts}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))

	r.Route("/{token}", func(r chi.Router) {
		r.Use(h.requireToken)
		r.Post("/webhook", h.webhook)
		r.Get("/remind", h.remind)
		r.Post("/remind", h.remind)
		r.Post("/broadcast", h.broadcast)
		r.Post("/rollover", h.rollover)
		r.Get("/setWebhook", h.setWebhook)
		r.Get("/pingBot", h.pingBot)
	})
	return r
}

// WebhookURL is the update endpoint registered with Telegram.
func WebhookURL(publicURL, token string) string {
	return strings.TrimRight(publicURL, "/") + "/" + token + "/webhook"
}

func (h *handler) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := chi.URLParam(r, "token")
		if h.opts.Token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.opts.Token)) != 1 {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *handler) webhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		logger.Warn(ctx, logger.CompHTTP, "webhook.read", logger.Err(err))
		h.ok(w, err.Error())
		return
	}

	u, err := telegram.DecodeUpdate(body)
	if err != nil {
		logger.Warn(ctx, logger.CompHTTP, "webhook.decode",
			logger.Err(err),
			slog.String("body", logger.SanitizeLimit(string(body), 256)),
		)
		h.ok(w, err.Error())
		return
	}

	out, err := h.svc.HandleUpdate(ctx, u)
	if err != nil {
		logger.Error(ctx, logger.CompHTTP, "webhook.handle",
			slog.Int("update_id", u.ID),
			logger.Err(err),
		)
		h.ok(w, err.Error())
		return
	}
	if !h.opts.Debug {
		respondText(w, http.StatusOK, "OK")
		return
	}
	respondJSON(w, http.StatusOK, out.Payload())
}

// ok answers Telegram with 200 so the update is not redelivered.
func (h *handler) ok(w http.ResponseWriter, diagnostic string) {
	if h.opts.Debug {
		respondText(w, http.StatusOK, diagnostic)
		return
	}
	respondText(w, http.StatusOK, "OK")
}

func (h *handler) remind(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())
	stats, err := h.svc.Remind(ctx, h.svc.Now())
	if err != nil {
		logger.Error(ctx, logger.CompHTTP, "remind.fail", logger.Err(err))
		respondText(w, http.StatusInternalServerError, "remind failed")
		return
	}
	respondText(w, http.StatusOK, stats.String())
}

type broadcastRequest struct {
	Msg string `json:"msg"`
}

func (h *handler) broadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		respondText(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Msg) == "" {
		respondText(w, http.StatusBadRequest, "msg is required")
		return
	}

	ctx := context.WithoutCancel(r.Context())
	stats, err := h.svc.Broadcast(ctx, req.Msg)
	if err != nil {
		logger.Error(ctx, logger.CompHTTP, "broadcast.fail", logger.Err(err))
		respondText(w, http.StatusInternalServerError, "broadcast failed")
		return
	}
	respondText(w, http.StatusOK, stats.String())
}

func (h *handler) rollover(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())
	n, err := h.svc.Rollover(ctx, h.svc.Now())
	if err != nil {
		logger.Error(ctx, logger.CompHTTP, "rollover.fail", logger.Err(err))
		respondText(w, http.StatusInternalServerError, "rollover failed")
		return
	}
	respondText(w, http.StatusOK, fmt.Sprintf("cleared %d readings", n))
}

func (h *handler) setWebhook(w http.ResponseWriter, r *http.Request) {
	if h.opts.PublicURL == "" {
		respondText(w, http.StatusInternalServerError, "public url not configured")
		return
	}
	url := WebhookURL(h.opts.PublicURL, h.opts.Token)
	if err := h.admin.SetWebhook(url); err != nil {
		logger.Error(r.Context(), logger.CompHTTP, "set_webhook.fail", slog.String("err", redact(err, h.opts.Token)))
		respondText(w, http.StatusBadGateway, "Webhook setup failed")
		return
	}
	logger.Info(r.Context(), logger.CompHTTP, "set_webhook.ok")
	respondText(w, http.StatusOK, "Webhook setup ok")
}

func (h *handler) pingBot(w http.ResponseWriter, r *http.Request) {
	me, err := h.admin.Me()
	if err != nil {
		logger.Error(r.Context(), logger.CompHTTP, "ping.fail", slog.String("err", redact(err, h.opts.Token)))
		respondText(w, http.StatusBadGateway, "getMe failed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(me)
}

func redact(err error, token string) string {
	msg := err.Error()
	if token == "" {
		return msg
	}
	return strings.ReplaceAll(msg, token, "<redacted>")
}

// requestLogger logs each request with the chi request id as rid. The path
// is logged without the token segment.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := r.Context()
		if rid := chiMiddleware.GetReqID(ctx); rid != "" {
			ctx = logger.WithRID(ctx, rid)
			r = r.WithContext(ctx)
		}
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			logger.Debug(ctx, logger.CompHTTP, "http.request",
				slog.String("method", r.Method),
				slog.String("route", routeName(r.URL.Path)),
				slog.Int("status", status),
				slog.Duration("duration", logger.RoundMS(time.Since(start))),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}

func routeName(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 {
		return "/" + strings.Join(parts, "/")
	}
	return "/{token}/" + strings.Join(parts[1:], "/")
}

func respondText(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, text)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn(context.Background(), logger.CompHTTP, "http.encode", logger.Err(err))
	}
}
