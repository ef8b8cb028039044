package conversation

import (
	"errors"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ltzehan/thermobot/core/directory"
	"github.com/ltzehan/thermobot/core/logger"
	"github.com/ltzehan/thermobot/core/markup"
	"github.com/ltzehan/thermobot/core/session"
	"github.com/ltzehan/thermobot/core/telegram"
	"github.com/ltzehan/thermobot/core/timefmt"
)

const (
	// Telegram rejects keyboards this large and messages this long.
	maxKeyboardMembers = 300
	maxMessageRunes    = 4096

	minReading = 35.0
	maxReading = 40.0
)

var (
	pinPattern     = regexp.MustCompile(`^\d{4}$`)
	readingPattern = regexp.MustCompile(`^\d{2}\.\d$`)
)

func (e *Engine) step(t *turn) telegram.Outgoing {
	switch t.sess.State {
	case session.AwaitingGroupRef:
		return e.awaitGroupRef(t)
	case session.ConfirmGroupRef:
		return e.confirmGroupRef(t)
	case session.SelectMember:
		return e.selectMember(t)
	case session.ConfirmMember:
		return e.confirmMember(t)
	case session.ConfirmPinAgain:
		return e.confirmPinAgain(t)
	case session.EnterPin:
		return e.enterPin(t)
	case session.ConfirmPin:
		return e.confirmPin(t)
	case session.SetupSummary:
		return e.setupSummary(t)
	case session.ConfigureReminderAM:
		return e.configureReminder(t, timefmt.AM)
	case session.ConfigureReminderPM:
		return e.configureReminder(t, timefmt.PM)
	case session.Idle:
		return e.idle(t)
	case session.AwaitingReading:
		return e.awaitReading(t)
	case session.WrongPin:
		return e.wrongPin(t)
	}
	// Unset or anything unrecognized starts onboarding.
	return e.greet(t)
}

func (e *Engine) greet(t *turn) telegram.Outgoing {
	t.sess.Reset()
	return e.reply("greeting", markup.Remove())
}

func (e *Engine) awaitGroupRef(t *turn) telegram.Outgoing {
	ref, ok := directory.Validate(t.text)
	if !ok {
		return e.retry(t, "invalid_url", nil)
	}
	group, err := e.dir.Fetch(t.ctx, ref)
	switch {
	case errors.Is(err, directory.ErrInvalidGroup):
		return e.retry(t, "invalid_url", nil)
	case err != nil:
		logger.Warn(t.ctx, logger.CompConversation, "directory.fetch",
			slog.String("state", t.sess.State.String()),
			logger.Err(err),
		)
		return e.retry(t, "site_unreachable", nil)
	}
	if len(group.Members) == 0 {
		return e.retry(t, "empty_group", nil, escape(group.Name))
	}

	s := t.sess
	s.GroupID = group.ID
	s.GroupName = group.Name
	s.Members = members(group.Members)
	s.State = session.ConfirmGroupRef
	return e.reply("confirm_group", e.keys.Confirm(markup.StepGroup), escape(group.Name))
}

func (e *Engine) confirmGroupRef(t *turn) telegram.Outgoing {
	switch t.text {
	case e.keys.Yes(markup.StepGroup):
		t.sess.State = session.SelectMember
		return e.memberList(t.sess, e.strings.Text("member_list"))
	case e.keys.No(markup.StepGroup):
		return e.greet(t)
	}
	return e.retry(t, "use_keyboard", e.keys.Confirm(markup.StepGroup))
}

// memberList shows head followed by every member name, falling back to
// manual entry when the roster is too large for Telegram.
func (e *Engine) memberList(s *session.Session, head string) telegram.Outgoing {
	if len(s.Members) > maxKeyboardMembers {
		return e.reply("member_list_manual", markup.Remove())
	}
	var b strings.Builder
	b.WriteString(head)
	b.WriteString("\n")
	for _, m := range s.Members {
		b.WriteString("\n")
		b.WriteString(escape(m.Name))
	}
	text := b.String()
	if utf8.RuneCountInString(text) > maxMessageRunes {
		return e.reply("member_list_manual", markup.Remove())
	}
	return e.say(text, markup.Members(s.Members))
}

func (e *Engine) selectMember(t *turn) telegram.Outgoing {
	s := t.sess
	m, ok := s.FindMember(t.text)
	if !ok {
		out := e.memberList(s, e.strings.Text("member_not_found", escape(s.GroupName)))
		out.ReplyTo = t.in.MessageID
		return out
	}
	s.MemberID = m.ID
	s.MemberName = m.Name
	s.PinPhase = session.PinMissing
	if m.HasPin {
		s.PinPhase = session.PinUnconfirmed
	}
	s.State = session.ConfirmMember
	return e.reply("confirm_member", e.keys.Confirm(markup.StepMember), escape(m.Name))
}

func (e *Engine) confirmMember(t *turn) telegram.Outgoing {
	s := t.sess
	switch t.text {
	case e.keys.No(markup.StepMember):
		s.MemberID, s.MemberName, s.PinPhase = "", "", session.PinUnset
		s.State = session.SelectMember
		return e.memberList(s, e.strings.Text("member_list"))
	case e.keys.Yes(markup.StepMember):
		member, out, ok := e.refreshMember(t)
		if !ok {
			return out
		}
		if member.HasPin {
			return e.askPin(s)
		}
		s.PinPhase = session.PinMissing
		s.State = session.ConfirmPinAgain
		return e.reply("pin_setup_required", e.keys.PinSetupDone(), e.dir.GroupRef(s.GroupID))
	}
	return e.retry(t, "use_keyboard", e.keys.Confirm(markup.StepMember))
}

func (e *Engine) confirmPinAgain(t *turn) telegram.Outgoing {
	s := t.sess
	if t.text != e.keys.DoneLabel() {
		return e.retry(t, "use_keyboard", e.keys.PinSetupDone())
	}
	member, out, ok := e.refreshMember(t)
	if !ok {
		return out
	}
	if !member.HasPin {
		return e.retry(t, "pin_setup_pending", e.keys.PinSetupDone(), e.dir.GroupRef(s.GroupID))
	}
	return e.askPin(s)
}

// refreshMember re-reads the roster to see the member's current PIN status.
// When ok is false the returned reply must be sent as is.
func (e *Engine) refreshMember(t *turn) (directory.Member, telegram.Outgoing, bool) {
	s := t.sess
	group, err := e.dir.Fetch(t.ctx, e.dir.GroupRef(s.GroupID))
	if err != nil && !errors.Is(err, directory.ErrInvalidGroup) {
		logger.Warn(t.ctx, logger.CompConversation, "directory.fetch",
			slog.String("state", s.State.String()),
			slog.String("group_id", s.GroupID),
			logger.Err(err),
		)
		return directory.Member{}, e.retry(t, "site_unreachable", nil), false
	}
	var (
		member directory.Member
		found  bool
	)
	if err == nil {
		member, found = group.FindID(s.MemberID)
	}
	if !found {
		logger.Warn(t.ctx, logger.CompConversation, "member.vanished",
			slog.String("group_id", s.GroupID),
			slog.String("member_id", s.MemberID),
		)
		name := s.MemberName
		s.Reset()
		return directory.Member{}, e.reply("fatal_reset", markup.Remove(), escape(name)), false
	}
	return member, telegram.Outgoing{}, true
}

func (e *Engine) askPin(s *session.Session) telegram.Outgoing {
	s.PinPhase = session.PinUnconfirmed
	s.Pin = ""
	s.State = session.EnterPin
	return e.reply("enter_pin", markup.Remove())
}

func (e *Engine) enterPin(t *turn) telegram.Outgoing {
	if !pinPattern.MatchString(t.text) {
		return e.retry(t, "invalid_pin", nil)
	}
	t.sess.Pin = t.text
	t.sess.State = session.ConfirmPin
	return e.reply("confirm_pin", e.keys.Confirm(markup.StepPin), t.text)
}

func (e *Engine) confirmPin(t *turn) telegram.Outgoing {
	s := t.sess
	switch t.text {
	case e.keys.Yes(markup.StepPin):
		s.PinPhase = session.PinConfirmed
		s.Members = nil
		s.State = session.SetupSummary
		return e.reply("setup_summary", e.keys.Confirm(markup.StepSummary),
			escape(s.GroupName), escape(s.MemberName), s.Pin)
	case e.keys.No(markup.StepPin):
		return e.askPin(s)
	}
	return e.retry(t, "use_keyboard", e.keys.Confirm(markup.StepPin))
}

func (e *Engine) setupSummary(t *turn) telegram.Outgoing {
	switch t.text {
	case e.keys.Yes(markup.StepSummary):
		if t.sess.RemindersSet() {
			// Re-entering a PIN keeps the existing reminder hours.
			t.sess.State = session.Idle
			if t.sess.LastReading == session.ReadingInit {
				t.sess.LastReading = session.ReadingNone
			}
			return e.idle(t)
		}
		t.sess.State = session.ConfigureReminderAM
		return e.reply("remind_am", e.keys.ReminderAM())
	case e.keys.No(markup.StepSummary):
		return e.greet(t)
	}
	return e.retry(t, "use_keyboard", e.keys.Confirm(markup.StepSummary))
}

func (e *Engine) configureReminder(t *turn, half timefmt.Half) telegram.Outgoing {
	s := t.sess
	hour, ok := e.keys.ParseHourToken(t.text, half)
	if half == timefmt.AM {
		if !ok {
			return e.retry(t, "remind_invalid", e.keys.ReminderAM())
		}
		s.RemindAM = hour
		s.State = session.ConfigureReminderPM
		return e.reply("remind_pm", e.keys.ReminderPM())
	}
	if !ok {
		return e.retry(t, "remind_invalid", e.keys.ReminderPM())
	}
	s.RemindPM = hour
	s.State = session.Idle
	if s.LastReading == session.ReadingInit {
		// First reminder goes out without waiting for a rollover.
		s.LastReading = session.ReadingNone
	}
	return e.reply("reminder_confirm", markup.Remove(),
		e.keys.HourToken(s.RemindAM), e.keys.HourToken(s.RemindPM))
}

func (e *Engine) idle(t *turn) telegram.Outgoing {
	now := timefmt.Format(e.clock.Now())
	if t.sess.HasReadingFor(now.Window()) {
		return e.reply("reading_exists", nil, t.sess.LastReading, now.Window())
	}
	return e.openWindow(t, now)
}

// openWindow asks for the reading of the current half-day.
func (e *Engine) openWindow(t *turn, now timefmt.Stamp) telegram.Outgoing {
	t.sess.LastReading = session.ReadingNone
	t.sess.State = session.AwaitingReading
	return e.WindowPrompt(now)
}

// WindowPrompt is the reading request sent on entry to AwaitingReading,
// shared with the reminder run.
func (e *Engine) WindowPrompt(now timefmt.Stamp) telegram.Outgoing {
	return e.reply("window_open", e.keys.Temperature(),
		now.ClockEmoji, now.Time, now.DayOfWeek, now.Date, now.Meridiem)
}

func (e *Engine) awaitReading(t *turn) telegram.Outgoing {
	s := t.sess
	if !readingPattern.MatchString(t.text) {
		return e.retry(t, "invalid_reading", e.keys.Temperature())
	}
	value, err := strconv.ParseFloat(t.text, 64)
	if err != nil || value <= minReading || value >= maxReading {
		return e.retry(t, "out_of_range", e.keys.Temperature(), t.text)
	}

	now := timefmt.Format(e.clock.Now())
	res, err := e.submit.Submit(t.ctx, directory.Submission{
		GroupID:  s.GroupID,
		MemberID: s.MemberID,
		Pin:      s.Pin,
		Date:     now.Date,
		Meridiem: now.Meridiem,
		Value:    t.text,
	})
	if err != nil {
		logger.Warn(t.ctx, logger.CompConversation, "directory.submit",
			slog.String("group_id", s.GroupID),
			slog.String("member_id", s.MemberID),
			logger.Err(err),
		)
		return e.retry(t, "service_unavailable", e.keys.Temperature())
	}

	switch res {
	case directory.SubmitOK:
		s.LastReading = t.text
		s.ReadingWindow = now.Window()
		s.State = session.Idle
		return e.reply("submit_ok", markup.Remove(), now.ClockEmoji, t.text, now.Date, now.Meridiem)
	case directory.SubmitWrongPin:
		s.LastReading = session.ReadingError
		s.State = session.WrongPin
		return e.reply("wrong_pin", markup.Remove())
	}
	return e.retry(t, "service_unavailable", e.keys.Temperature())
}

func (e *Engine) wrongPin(t *turn) telegram.Outgoing {
	s := t.sess
	s.Pin = ""
	s.PinPhase = session.PinUnconfirmed
	s.State = session.EnterPin
	return e.reply("reenter_pin", markup.Remove())
}

func members(in []directory.Member) []session.Member {
	out := make([]session.Member, len(in))
	for i, m := range in {
		out[i] = session.Member{ID: m.ID, Name: m.Name, HasPin: m.HasPin}
	}
	return out
}
