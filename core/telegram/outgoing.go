package telegram

import (
	"strconv"

	"github.com/ltzehan/thermobot/core/markup"
)

// ParseModeHTML is the only parse mode used for conversation replies.
const ParseModeHTML = "HTML"

// Outgoing is a reply or broadcast message before it reaches the Bot API.
type Outgoing struct {
	ChatID    int64
	Text      string
	ParseMode string
	Keyboard  *markup.Keyboard
	// ReplyTo threads the message under an inbound message when non-zero.
	ReplyTo int
}

// Text builds an HTML message for chatID.
func Text(chatID int64, text string) Outgoing {
	return Outgoing{ChatID: chatID, Text: text, ParseMode: ParseModeHTML}
}

// Empty reports whether there is nothing to send.
func (o Outgoing) Empty() bool {
	return o.Text == ""
}

// Payload renders the sendMessage request body. Identifiers are strings,
// matching what the webhook has always echoed in debug mode.
func (o Outgoing) Payload() map[string]any {
	p := map[string]any{
		"chat_id": strconv.FormatInt(o.ChatID, 10),
		"text":    o.Text,
	}
	if o.ParseMode != "" {
		p["parse_mode"] = o.ParseMode
	}
	if o.Keyboard != nil {
		p["reply_markup"] = o.Keyboard
	}
	if o.ReplyTo != 0 {
		p["reply_to_message_id"] = strconv.Itoa(o.ReplyTo)
	}
	return p
}
