package router

import (
	"log/slog"
	"time"

	"github.com/ltzehan/thermobot/core/logger"
	tghelpers "github.com/ltzehan/thermobot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// summary logs one handler.handled line per routed update.
type summary struct {
	c     tele.Context
	name  string
	start time.Time
}

func begin(c tele.Context, name string) summary {
	tghelpers.WithHandler(c, name)
	return summary{c: c, name: name, start: time.Now()}
}

// skip records an update the router ignored.
func (s summary) skip(reason string) {
	s.log(slog.String("status", "skip"), slog.String("outcome", "skip"), slog.String("cause", reason))
}

// done records the handler result and passes err through.
func (s summary) done(err error) error {
	s.log(
		slog.String("status", logger.Status(err)),
		slog.String("outcome", logger.Status(err)),
		logger.Err(err),
	)
	return err
}

func (s summary) log(attrs ...slog.Attr) {
	ctx := tghelpers.WithHandler(s.c, s.name)
	attrs = append(attrs, slog.Duration("duration", time.Since(s.start)))
	logger.Info(ctx, logger.CompTG, "handler.handled", attrs...)
}
