package telegram

import (
	"encoding/json"
	"errors"

	tele "gopkg.in/telebot.v4"
)

// Decoding failures of inbound updates. The messages double as the debug
// responses of the webhook.
var (
	ErrMalformedUpdate = errors.New("Received malformed update")
	ErrNoMessage       = errors.New("Received update with no message component")
	ErrInvalidMessage  = errors.New("Invalid update object")
)

// Update is the transport-neutral inbound message handed to the application.
type Update struct {
	ID      int
	Edited  bool
	Message Message
}

// Message carries what the conversation needs from a Telegram message.
type Message struct {
	ID       int
	Date     int64
	ChatID   int64
	UserID   int64
	Username string
	// HasText is false for stickers, photos and other non-text messages.
	HasText bool
	Text    string
}

type wireUpdate struct {
	UpdateID      int          `json:"update_id"`
	Message       *wireMessage `json:"message"`
	EditedMessage *wireMessage `json:"edited_message"`
}

type wireMessage struct {
	MessageID *int   `json:"message_id"`
	Date      *int64 `json:"date"`
	From      *struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
	} `json:"from"`
	Chat *struct {
		ID *int64 `json:"id"`
	} `json:"chat"`
	Text *string `json:"text"`
}

// DecodeUpdate parses a webhook body. Missing required fields are reported
// as ErrInvalidMessage rather than decoded as zero values.
func DecodeUpdate(body []byte) (Update, error) {
	var w wireUpdate
	if err := json.Unmarshal(body, &w); err != nil {
		return Update{}, ErrMalformedUpdate
	}

	raw, edited := w.Message, false
	if raw == nil {
		raw, edited = w.EditedMessage, true
	}
	if raw == nil {
		return Update{}, ErrNoMessage
	}
	if raw.MessageID == nil || raw.Date == nil || raw.From == nil || raw.Chat == nil || raw.Chat.ID == nil {
		return Update{}, ErrInvalidMessage
	}

	msg := Message{
		ID:       *raw.MessageID,
		Date:     *raw.Date,
		ChatID:   *raw.Chat.ID,
		UserID:   raw.From.ID,
		Username: raw.From.Username,
	}
	if raw.Text != nil {
		msg.HasText = true
		msg.Text = *raw.Text
	}
	return Update{ID: w.UpdateID, Edited: edited, Message: msg}, nil
}

// FromTele converts an update received by the long poller.
func FromTele(u *tele.Update) (Update, error) {
	if u == nil {
		return Update{}, ErrNoMessage
	}
	raw, edited := u.Message, false
	if raw == nil {
		raw, edited = u.EditedMessage, true
	}
	if raw == nil {
		return Update{}, ErrNoMessage
	}
	if raw.Chat == nil || raw.Sender == nil {
		return Update{}, ErrInvalidMessage
	}
	msg := Message{
		ID:       raw.ID,
		Date:     raw.Unixtime,
		ChatID:   raw.Chat.ID,
		UserID:   raw.Sender.ID,
		Username: raw.Sender.Username,
		HasText:  raw.Text != "",
		Text:     raw.Text,
	}
	return Update{ID: u.ID, Edited: edited, Message: msg}, nil
}
