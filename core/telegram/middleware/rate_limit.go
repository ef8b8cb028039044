package middleware

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ltzehan/thermobot/core/logger"
	tghelpers "github.com/ltzehan/thermobot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// maxTrackedChats triggers a sweep of idle limiters.
const maxTrackedChats = 4096

// RateLimitOptions configures RateLimitMiddleware.
type RateLimitOptions struct {
	// Interval is the minimum spacing between updates from one chat.
	Interval time.Duration
	// Exclude lists update kinds (see UpdateKind) that bypass the limit.
	Exclude   map[string]struct{}
	OnLimited tele.HandlerFunc
}

// UpdateKind names the update for rate limit exclusions.
func UpdateKind(upd tele.Update) string {
	switch {
	case upd.Message != nil:
		return "message"
	case upd.EditedMessage != nil:
		return "edited_message"
	}
	return "other"
}

type chatLimiter struct {
	lim  *rate.Limiter
	seen time.Time
}

// RateLimitMiddleware drops updates arriving faster than one per Interval
// from the same chat. Dropped updates never reach the conversation.
func RateLimitMiddleware(opts RateLimitOptions) tele.MiddlewareFunc {
	var (
		mu    sync.Mutex
		chats = make(map[int64]*chatLimiter)
	)
	allow := func(chatID int64, now time.Time) bool {
		mu.Lock()
		defer mu.Unlock()
		cl, ok := chats[chatID]
		if !ok {
			if len(chats) >= maxTrackedChats {
				for id, c := range chats {
					if now.Sub(c.seen) >= opts.Interval {
						delete(chats, id)
					}
				}
			}
			cl = &chatLimiter{lim: rate.NewLimiter(rate.Every(opts.Interval), 1)}
			chats[chatID] = cl
		}
		cl.seen = now
		return cl.lim.AllowN(now, 1)
	}

	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			chat := c.Chat()
			if chat == nil || opts.Interval <= 0 {
				return next(c)
			}
			if _, skip := opts.Exclude[UpdateKind(c.Update())]; skip {
				return next(c)
			}
			if allow(chat.ID, time.Now()) {
				return next(c)
			}
			logger.Warn(tghelpers.BuildContext(c), logger.CompTG, "tg.rate_limit",
				slog.Int64("chat_id", chat.ID),
				slog.Duration("interval", opts.Interval),
			)
			if opts.OnLimited != nil {
				return opts.OnLimited(c)
			}
			return nil
		}
	}
}
