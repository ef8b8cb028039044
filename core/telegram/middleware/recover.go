package middleware

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/ltzehan/thermobot/core/logger"
	tghelpers "github.com/ltzehan/thermobot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// RecoverMiddleware turns a handler panic into an error log so the poller
// keeps serving other chats.
func RecoverMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) (err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			logger.Error(tghelpers.BuildContext(c), logger.CompTG, "tg.panic",
				logger.Err(fmt.Errorf("panic: %v", r)),
				slog.String("stack", string(debug.Stack())),
			)
			err = nil
		}()
		return next(c)
	}
}
