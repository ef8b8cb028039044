package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/ltzehan/thermobot/core/logger"
	"github.com/ltzehan/thermobot/core/markup"
)

// Delivery is the outcome of one send.
type Delivery int

const (
	Failed Delivery = iota
	Delivered
	// Blocked means the recipient blocked the bot or can no longer be reached.
	Blocked
)

func (d Delivery) String() string {
	switch d {
	case Delivered:
		return "delivered"
	case Blocked:
		return "blocked"
	}
	return "failed"
}

// Sender delivers outgoing messages.
type Sender interface {
	Send(ctx context.Context, out Outgoing) (Delivery, error)
}

// NewBot creates the telebot client. Offline bots skip getMe at startup and
// are used when updates arrive over the webhook instead of a poller.
func NewBot(token string, poller tele.Poller, client *http.Client, offline bool) (*tele.Bot, error) {
	if client == nil {
		client = BuildHTTPClient()
	}
	bot, err := tele.NewBot(tele.Settings{
		Token:   token,
		Poller:  poller,
		Client:  client,
		Offline: offline,
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: bot initialization failed: %w", err)
	}
	return bot, nil
}

// Gateway sends messages through the Bot API.
type Gateway struct {
	bot *tele.Bot
}

// NewGateway wraps an initialized bot.
func NewGateway(bot *tele.Bot) *Gateway {
	return &Gateway{bot: bot}
}

// Send delivers out and classifies the result. Telebot calls do not take a
// context, so cancellation abandons the call rather than aborting it.
func (g *Gateway) Send(ctx context.Context, out Outgoing) (Delivery, error) {
	if err := ctx.Err(); err != nil {
		return Failed, err
	}
	opts := &tele.SendOptions{
		ParseMode:   tele.ParseMode(out.ParseMode),
		ReplyMarkup: ToReplyMarkup(out.Keyboard),
	}
	if out.ReplyTo != 0 {
		opts.ReplyTo = &tele.Message{ID: out.ReplyTo}
	}

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		_, err := g.bot.Send(tele.ChatID(out.ChatID), out.Text, opts)
		done <- err
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	d := Classify(err)
	logger.Debug(ctx, logger.CompTG, "tg.send",
		slog.Int64("chat_id", out.ChatID),
		slog.String("outcome", d.String()),
		slog.Int64("duration_ms", logger.RoundMS(time.Since(start)).Milliseconds()),
	)
	return d, err
}

// SetWebhook registers url as the update endpoint.
func (g *Gateway) SetWebhook(url string) error {
	return g.bot.SetWebhook(&tele.Webhook{Endpoint: &tele.WebhookEndpoint{PublicURL: url}})
}

// Me returns the raw getMe response.
func (g *Gateway) Me() ([]byte, error) {
	return g.bot.Raw("getMe", nil)
}

// Classify maps a send error onto a delivery outcome.
func Classify(err error) Delivery {
	if err == nil {
		return Delivered
	}
	if errors.Is(err, tele.ErrBlockedByUser) {
		return Blocked
	}
	var apiErr *tele.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusForbidden {
		return Blocked
	}
	if strings.Contains(strings.ToLower(err.Error()), "bot was blocked") {
		return Blocked
	}
	return Failed
}

// ToReplyMarkup converts a keyboard at the transport edge. Nil stays nil.
// Reply keyboards are always resized to fit their labels.
func ToReplyMarkup(k *markup.Keyboard) *tele.ReplyMarkup {
	if k == nil {
		return nil
	}
	if k.Remove {
		return &tele.ReplyMarkup{RemoveKeyboard: true}
	}
	rm := &tele.ReplyMarkup{
		ResizeKeyboard:  true,
		OneTimeKeyboard: k.OneTime,
		ReplyKeyboard:   make([][]tele.ReplyButton, 0, len(k.Rows)),
	}
	for _, row := range k.Rows {
		btns := make([]tele.ReplyButton, len(row))
		for i, label := range row {
			btns[i] = tele.ReplyButton{Text: label}
		}
		rm.ReplyKeyboard = append(rm.ReplyKeyboard, btns)
	}
	return rm
}
