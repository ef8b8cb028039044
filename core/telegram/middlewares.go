package telegram

import (
	"strings"
	"time"

	coreconfig "github.com/ltzehan/thermobot/core/config"
	"github.com/ltzehan/thermobot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// DefaultMiddlewares is the global long-poll chain: panic recovery always,
// then a per-chat rate limit when rate_limit.interval_ms is set.
func DefaultMiddlewares(cfg *coreconfig.Config, onLimited tele.HandlerFunc) []Middleware {
	chain := []Middleware{{Name: "recover", Use: middleware.RecoverMiddleware}}
	if cfg == nil || cfg.RateLimit.IntervalMS <= 0 {
		return chain
	}
	exclude := make(map[string]struct{}, len(cfg.RateLimit.ExcludeUpdates))
	for _, kind := range cfg.RateLimit.ExcludeUpdates {
		exclude[strings.ToLower(kind)] = struct{}{}
	}
	return append(chain, Middleware{
		Name: "rate_limit",
		Use: middleware.RateLimitMiddleware(middleware.RateLimitOptions{
			Interval:  time.Duration(cfg.RateLimit.IntervalMS) * time.Millisecond,
			Exclude:   exclude,
			OnLimited: onLimited,
		}),
	})
}
