package telegram

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ltzehan/thermobot/core/logger"
	"github.com/ltzehan/thermobot/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

// Middleware is a named global middleware installed with bot.Use.
type Middleware struct {
	Name string
	Use  tele.MiddlewareFunc
}

// Route binds a telebot endpoint (tele.OnText and friends) to a handler.
type Route struct {
	Endpoint any
	Handler  tele.HandlerFunc
}

// PollOptions wires a long-polling bot.
type PollOptions struct {
	Middlewares []Middleware
	Routes      []Route
	Commands    []commands.Command
	// KeepWebhook skips deleteWebhook. getUpdates fails while one is set.
	KeepWebhook bool
	// Ready runs once handlers are registered, right before polling starts.
	Ready func()
}

// RunPolling serves updates from bot's long poller until ctx is done.
func RunPolling(ctx context.Context, bot *tele.Bot, opts PollOptions) error {
	if bot == nil {
		return errors.New("telegram: nil bot provided")
	}
	attrs := []slog.Attr{slog.String("mode", "longpoll")}
	if lp, ok := bot.Poller.(*tele.LongPoller); ok {
		attrs = append(attrs, slog.Duration("timeout", lp.Timeout))
	}
	logger.Info(ctx, logger.CompTG, "mode", attrs...)

	if !opts.KeepWebhook {
		err := bot.RemoveWebhook(false)
		logger.Info(ctx, logger.CompTG, "delete_webhook",
			slog.String("status", logger.Status(err)),
			logger.Err(err),
		)
	}

	for _, mw := range opts.Middlewares {
		if mw.Use != nil {
			bot.Use(mw.Use)
		}
	}
	for _, r := range opts.Routes {
		if r.Endpoint != nil && r.Handler != nil {
			bot.Handle(r.Endpoint, r.Handler)
		}
	}
	if len(opts.Commands) > 0 {
		commands.Publish(ctx, bot, opts.Commands)
	}
	if opts.Ready != nil {
		opts.Ready()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		bot.Start()
	}()

	select {
	case <-ctx.Done():
		bot.Stop()
		<-done
	case <-done:
	}
	logger.Info(context.WithoutCancel(ctx), logger.CompTG, "polling.stopped")
	return nil
}
