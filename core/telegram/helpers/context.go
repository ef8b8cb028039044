// Package helpers keeps the per-update logging context on tele.Context so
// middleware and the message router log with the same rid.
package helpers

import (
	"context"

	"github.com/ltzehan/thermobot/core/logger"

	tele "gopkg.in/telebot.v4"
)

const (
	ctxKey = "thermobot.ctx"
	ridKey = "rid"
)

// StoreContext remembers ctx for the rest of the update's handler chain.
func StoreContext(c tele.Context, ctx context.Context) {
	if c != nil && ctx != nil {
		c.Set(ctxKey, ctx)
	}
}

// ContextFrom returns what StoreContext saved, if anything.
func ContextFrom(c tele.Context) (context.Context, bool) {
	if c == nil {
		return nil, false
	}
	ctx, ok := c.Get(ctxKey).(context.Context)
	return ctx, ok && ctx != nil
}

// BuildContext returns the stored context or derives one from the update:
// rid, update id and the chat it came from. The chat id doubles as the
// session key, so it is taken from the message first.
func BuildContext(c tele.Context) context.Context {
	if ctx, ok := ContextFrom(c); ok {
		return ctx
	}
	updateID, chatID, userID := updateMeta(c)

	rid, _ := c.Get(ridKey).(string)
	if rid == "" {
		rid = logger.BuildRID(updateID, chatID, userID)
	}
	ctx := logger.WithUpdateMeta(logger.WithRID(context.Background(), rid), updateID, userID, chatID)
	ctx = logger.WithLogger(ctx, logger.Component(logger.CompTG))
	StoreContext(c, ctx)
	return ctx
}

// WithHandler tags the stored context with the route that handled the update.
func WithHandler(c tele.Context, handler string) context.Context {
	ctx := BuildContext(c)
	if handler != "" {
		ctx = logger.WithHandler(ctx, handler)
		StoreContext(c, ctx)
	}
	return ctx
}

func updateMeta(c tele.Context) (updateID int, chatID, userID int64) {
	upd := c.Update()
	updateID = upd.ID
	if msg := upd.Message; msg != nil {
		if msg.Chat != nil {
			chatID = msg.Chat.ID
		}
		if msg.Sender != nil {
			userID = msg.Sender.ID
		}
		return updateID, chatID, userID
	}
	if chat := c.Chat(); chat != nil {
		chatID = chat.ID
	}
	if user := c.Sender(); user != nil {
		userID = user.ID
	}
	return updateID, chatID, userID
}
