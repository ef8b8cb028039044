// Package conversation implements the per-chat onboarding and reporting
// dialogue. The engine is pure with respect to storage: callers load the
// session, call Process and persist the returned copy.
package conversation

import (
	"context"
	"html"
	"log/slog"
	"strings"

	"github.com/ltzehan/thermobot/core/directory"
	"github.com/ltzehan/thermobot/core/i18n"
	"github.com/ltzehan/thermobot/core/logger"
	"github.com/ltzehan/thermobot/core/markup"
	"github.com/ltzehan/thermobot/core/session"
	"github.com/ltzehan/thermobot/core/telegram"
	"github.com/ltzehan/thermobot/core/timefmt"
)

// Commands understood by the engine.
const (
	CommandStart       = "/start"
	CommandForceSubmit = "/forcesubmit"
	CommandRemind      = "/remind"
)

// Directory resolves group links and rosters.
type Directory interface {
	Fetch(ctx context.Context, ref string) (*directory.Group, error)
	GroupRef(groupID string) string
}

// Submitter records a reading for a member.
type Submitter interface {
	Submit(ctx context.Context, sub directory.Submission) (directory.SubmitResult, error)
}

// Inbound is one text message addressed to the bot.
type Inbound struct {
	ChatID    int64
	MessageID int
	Text      string
}

// Options wires the engine's collaborators.
type Options struct {
	Directory Directory
	Submitter Submitter
	Strings   *i18n.Strings
	Clock     *timefmt.Clock
}

// Engine is safe for concurrent use; it holds no per-chat state.
type Engine struct {
	dir     Directory
	submit  Submitter
	strings *i18n.Strings
	keys    *markup.Catalog
	clock   *timefmt.Clock
}

// New builds an engine. Missing strings default to the embedded catalog and
// a missing clock to UTC+8.
func New(opts Options) *Engine {
	strs := opts.Strings
	if strs == nil {
		strs = i18n.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = timefmt.NewClock(timefmt.DefaultOffsetHours)
	}
	return &Engine{
		dir:     opts.Directory,
		submit:  opts.Submitter,
		strings: strs,
		keys:    markup.NewCatalog(strs),
		clock:   clock,
	}
}

// Markup exposes the keyboard catalog used by the engine.
func (e *Engine) Markup() *markup.Catalog {
	return e.keys
}

// Strings exposes the message catalog used by the engine.
func (e *Engine) Strings() *i18n.Strings {
	return e.strings
}

// turn carries one Process call.
type turn struct {
	ctx  context.Context
	sess *session.Session
	in   Inbound
	text string
}

// Process advances sess by one inbound message and returns the updated copy
// with the reply to send. sess itself is never modified.
func (e *Engine) Process(ctx context.Context, sess *session.Session, in Inbound) (*session.Session, telegram.Outgoing) {
	s := sess.Clone()
	if s == nil {
		s = session.New(in.ChatID)
	}
	t := &turn{ctx: ctx, sess: s, in: in, text: strings.TrimSpace(in.Text)}
	from := s.State

	var (
		out     telegram.Outgoing
		command string
	)
	if strings.HasPrefix(t.text, "/") {
		command = commandName(t.text)
		out = e.command(t, command)
	} else if s.Blocked {
		out = e.retry(t, "restart_required", nil)
	} else {
		out = e.step(t)
	}
	out.ChatID = in.ChatID

	attrs := []slog.Attr{
		slog.Int64("chat_id", in.ChatID),
		slog.String("state", from.String()),
		slog.String("next_state", s.State.String()),
	}
	if command != "" {
		attrs = append(attrs, slog.String("command", command))
	}
	logger.Debug(ctx, logger.CompConversation, "conversation.step", attrs...)
	return s, out
}

// commandName extracts "/cmd" from "/cmd@botname args".
func commandName(text string) string {
	name := strings.Fields(text)[0]
	if at := strings.IndexByte(name, '@'); at > 0 {
		name = name[:at]
	}
	return strings.ToLower(name)
}

func (e *Engine) command(t *turn, name string) telegram.Outgoing {
	if name == CommandStart {
		return e.greet(t)
	}
	s := t.sess
	if s.Blocked {
		return e.retry(t, "restart_required", nil)
	}
	if !s.State.PostOnboarding() {
		return e.retry(t, "invalid_input", nil)
	}

	switch name {
	case CommandForceSubmit:
		return e.openWindow(t, timefmt.Format(e.clock.Now()))
	case CommandRemind:
		s.State = session.ConfigureReminderAM
		text := e.strings.Text("remind_am")
		if s.RemindersSet() {
			text = e.strings.Text("reminder_existing_config",
				e.keys.HourToken(s.RemindAM), e.keys.HourToken(s.RemindPM)) + "\n\n" + text
		}
		return e.say(text, e.keys.ReminderAM())
	}
	return e.retry(t, "invalid_input", nil)
}

// reply answers with a new prompt: the conversation moved on, so the
// message is not threaded under the user's input.
func (e *Engine) reply(key string, kb *markup.Keyboard, args ...any) telegram.Outgoing {
	return e.say(e.strings.Text(key, args...), kb)
}

func (e *Engine) say(text string, kb *markup.Keyboard) telegram.Outgoing {
	return telegram.Outgoing{
		Text:      text,
		ParseMode: telegram.ParseModeHTML,
		Keyboard:  kb,
	}
}

// retry answers a rejected input of the current step, threaded under it.
func (e *Engine) retry(t *turn, key string, kb *markup.Keyboard, args ...any) telegram.Outgoing {
	out := e.reply(key, kb, args...)
	out.ReplyTo = t.in.MessageID
	return out
}

func escape(s string) string {
	return html.EscapeString(s)
}
