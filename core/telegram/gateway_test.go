package telegram

import (
	"errors"
	"fmt"
	"testing"

	tele "gopkg.in/telebot.v4"

	"github.com/ltzehan/thermobot/core/markup"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Delivery
	}{
		{"ok", nil, Delivered},
		{"blocked sentinel", tele.ErrBlockedByUser, Blocked},
		{"wrapped blocked", fmt.Errorf("send: %w", tele.ErrBlockedByUser), Blocked},
		{"forbidden", &tele.Error{Code: 403, Description: "Forbidden: user is deactivated"}, Blocked},
		{"blocked text", errors.New("telegram: Forbidden: bot was blocked by the user (403)"), Blocked},
		{"bad request", &tele.Error{Code: 400, Description: "Bad Request: chat not found"}, Failed},
		{"transport", errors.New("dial tcp: timeout"), Failed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Fatalf("Classify = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestToReplyMarkup(t *testing.T) {
	if ToReplyMarkup(nil) != nil {
		t.Fatal("nil keyboard must stay nil")
	}
	if m := ToReplyMarkup(&markup.Keyboard{Remove: true}); !m.RemoveKeyboard {
		t.Fatal("expected remove markup")
	}
	m := ToReplyMarkup(&markup.Keyboard{Rows: [][]string{{"35.0", "35.1"}}, OneTime: true})
	if !m.OneTimeKeyboard || !m.ResizeKeyboard || len(m.ReplyKeyboard) != 1 || len(m.ReplyKeyboard[0]) != 2 {
		t.Fatalf("unexpected markup %+v", m)
	}
	if got := m.ReplyKeyboard[0][1].Text; got != "35.1" {
		t.Fatalf("unexpected label %q", got)
	}
	if m := ToReplyMarkup(&markup.Keyboard{Rows: [][]string{{"Yes"}, {"No"}}}); m.OneTimeKeyboard || len(m.ReplyKeyboard) != 2 {
		t.Fatalf("persistent keyboard expected, got %+v", m)
	}
}

func TestOutgoingPayload(t *testing.T) {
	out := Text(42, "<b>hi</b>")
	out.ReplyTo = 7
	out.Keyboard = &markup.Keyboard{Rows: [][]string{{"Yes"}}}

	p := out.Payload()
	if p["chat_id"] != "42" || p["reply_to_message_id"] != "7" || p["parse_mode"] != "HTML" {
		t.Fatalf("unexpected payload %v", p)
	}
	if _, ok := p["reply_markup"]; !ok {
		t.Fatal("missing reply_markup")
	}

	plain := Text(1, "x").Payload()
	if _, ok := plain["reply_to_message_id"]; ok {
		t.Fatal("unthreaded message must not carry reply_to_message_id")
	}
}
