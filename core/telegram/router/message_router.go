// Package router binds telebot endpoints to the application update handler
// when running in long-poll mode.
package router

import (
	"context"

	tg "github.com/ltzehan/thermobot/core/telegram"
	tghelpers "github.com/ltzehan/thermobot/core/telegram/helpers"
	"github.com/ltzehan/thermobot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// UpdateHandler processes one inbound update.
type UpdateHandler func(ctx context.Context, u tg.Update) error

// messageEndpoints covers everything a private chat can send. Media and
// stickers carry no text and are forwarded so the conversation can ask for it.
var messageEndpoints = []string{tele.OnText, tele.OnEdited, tele.OnMedia, tele.OnSticker}

// MessageRoutes routes every message endpoint into handle.
func MessageRoutes(handle UpdateHandler) []tg.Route {
	h := middleware.RecoverMiddleware(middleware.LoggerMiddleware(func(c tele.Context) error {
		upd := c.Update()
		u, err := tg.FromTele(&upd)
		if err != nil {
			begin(c, "unsupported").skip(err.Error())
			return nil
		}
		name := "message"
		if u.Edited {
			name = "edited_message"
		}
		s := begin(c, name)
		return s.done(handle(tghelpers.BuildContext(c), u))
	}))

	routes := make([]tg.Route, len(messageEndpoints))
	for i, ep := range messageEndpoints {
		routes[i] = tg.Route{Endpoint: ep, Handler: h}
	}
	return routes
}
