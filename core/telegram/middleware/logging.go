// Package middleware holds the telebot middleware used in long-poll mode.
package middleware

import (
	"log/slog"
	"sync"

	"github.com/ltzehan/thermobot/core/logger"
	tghelpers "github.com/ltzehan/thermobot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// seenUpdates remembers the last few update ids so an update routed through
// several endpoints is logged once.
type seenUpdates struct {
	mu   sync.Mutex
	ids  [64]int
	next int
}

func (s *seenUpdates) firstTime(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.ids {
		if v == id {
			return false
		}
	}
	s.ids[s.next] = id
	s.next = (s.next + 1) % len(s.ids)
	return true
}

var received seenUpdates

// LoggerMiddleware stamps the update's rid and logs one update.received line
// per update, subject to debug sampling.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := tghelpers.BuildContext(c)
		rid := logger.RIDFrom(ctx)
		c.Set("rid", rid)

		upd := c.Update()
		if logger.ShouldSampleDebug() && received.firstTime(upd.ID) {
			attrs := []slog.Attr{
				slog.String("status", "ok"),
				slog.String("kind", UpdateKind(upd)),
			}
			if u := c.Sender(); u != nil && u.Username != "" {
				attrs = append(attrs, slog.String("username", logger.SanitizeLimit(u.Username, 64)))
			}
			if t := c.Text(); t != "" {
				attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(t, 256)))
			}
			logger.Debug(ctx, logger.CompTG, "update.received", attrs...)
		}
		return next(c)
	}
}
