package telegram

import (
	"time"

	tele "gopkg.in/telebot.v4"
)

const defaultLongPollTimeout = 10 * time.Second

// BuildPoller returns the long poller used in longpoll mode. Webhook mode
// serves updates through the HTTP router and runs the bot offline.
func BuildPoller(timeoutSeconds int) tele.Poller {
	timeout := defaultLongPollTimeout
	if timeoutSeconds > 0 {
		timeout = time.Duration(timeoutSeconds) * time.Second
	}
	return &tele.LongPoller{
		Timeout:        timeout,
		AllowedUpdates: []string{"message", "edited_message"},
	}
}
