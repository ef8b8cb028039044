// Package app runs the bot pipeline: load the session, advance the
// conversation, persist it and deliver the reply. It also owns the
// reminder, broadcast and rollover triggers.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ltzehan/thermobot/core/conversation"
	"github.com/ltzehan/thermobot/core/fanout"
	"github.com/ltzehan/thermobot/core/logger"
	"github.com/ltzehan/thermobot/core/session"
	"github.com/ltzehan/thermobot/core/telegram"
	tgsender "github.com/ltzehan/thermobot/core/telegram/sender"
	"github.com/ltzehan/thermobot/core/timefmt"
)

const lockStripes = 64

// Options wires a Service.
type Options struct {
	Store   session.Store
	Engine  *conversation.Engine
	Gateway telegram.Sender
	// Dispatcher delivers conversation replies; nil sends inline.
	Dispatcher *tgsender.Dispatcher
	// Fanout is the base configuration of reminder and broadcast runs.
	// Gateway and Blocks are filled in by the service.
	Fanout fanout.Options
	Clock  *timefmt.Clock
	// Debug skips delivery so the webhook can echo replies instead.
	Debug bool
}

// Service is safe for concurrent use. Updates of one chat are serialized;
// different chats proceed in parallel.
type Service struct {
	store      session.Store
	engine     *conversation.Engine
	gateway    telegram.Sender
	dispatcher *tgsender.Dispatcher
	fanout     fanout.Options
	clock      *timefmt.Clock
	debug      bool

	locks [lockStripes]sync.Mutex
}

// New validates opts and builds the service.
func New(opts Options) (*Service, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("app: nil session store")
	}
	if opts.Engine == nil {
		return nil, fmt.Errorf("app: nil conversation engine")
	}
	if opts.Gateway == nil {
		return nil, fmt.Errorf("app: nil gateway")
	}
	clock := opts.Clock
	if clock == nil {
		clock = timefmt.NewClock(timefmt.DefaultOffsetHours)
	}
	fo := opts.Fanout
	fo.Gateway = opts.Gateway
	fo.Blocks = opts.Store
	return &Service{
		store:      opts.Store,
		engine:     opts.Engine,
		gateway:    opts.Gateway,
		dispatcher: opts.Dispatcher,
		fanout:     fo,
		clock:      clock,
		debug:      opts.Debug,
	}, nil
}

func (s *Service) lock(chatID int64) *sync.Mutex {
	idx := chatID % lockStripes
	if idx < 0 {
		idx = -idx
	}
	return &s.locks[idx]
}

// HandleUpdate runs one inbound message through the conversation and returns
// the reply. Outside debug mode the reply is also delivered.
func (s *Service) HandleUpdate(ctx context.Context, u telegram.Update) (telegram.Outgoing, error) {
	msg := u.Message
	ctx = logger.WithUpdateMeta(ctx, u.ID, msg.UserID, msg.ChatID)
	if logger.RIDFrom(ctx) == "" {
		ctx = logger.WithRID(ctx, logger.BuildRID(u.ID, msg.ChatID, msg.UserID))
	}

	if !msg.HasText {
		out := telegram.Text(msg.ChatID, s.engine.Strings().Text("no_text_error"))
		out.ReplyTo = msg.ID
		s.deliver(ctx, out)
		return out, nil
	}

	mu := s.lock(msg.ChatID)
	mu.Lock()
	sess, err := s.store.GetOrCreate(ctx, msg.ChatID)
	if err != nil {
		mu.Unlock()
		return telegram.Outgoing{}, fmt.Errorf("app: load session %d: %w", msg.ChatID, err)
	}
	next, out := s.engine.Process(ctx, sess, conversation.Inbound{
		ChatID:    msg.ChatID,
		MessageID: msg.ID,
		Text:      msg.Text,
	})
	err = s.store.Save(ctx, next)
	mu.Unlock()
	if err != nil {
		return telegram.Outgoing{}, fmt.Errorf("app: save session %d: %w", msg.ChatID, err)
	}

	if next.State != sess.State {
		logger.Info(ctx, logger.CompApp, "session.transition",
			slog.Int64("chat_id", msg.ChatID),
			slog.String("state", sess.State.String()),
			slog.String("next_state", next.State.String()),
		)
	}
	s.deliver(ctx, out)
	return out, nil
}

// Handle adapts HandleUpdate to the long-poll router.
func (s *Service) Handle(ctx context.Context, u telegram.Update) error {
	_, err := s.HandleUpdate(ctx, u)
	return err
}

func (s *Service) deliver(ctx context.Context, out telegram.Outgoing) {
	if s.debug || out.Empty() {
		return
	}
	bg := context.WithoutCancel(ctx)
	err := s.dispatcher.Do(ctx, tgsender.Job{
		Action:   "reply",
		Endpoint: "sendMessage",
		ChatID:   out.ChatID,
		Run: func() error {
			d, err := s.gateway.Send(bg, out)
			if d == telegram.Blocked {
				s.markBlocked(bg, out.ChatID)
				return nil
			}
			return err
		},
	})
	if err != nil {
		logger.Warn(ctx, logger.CompApp, "reply.fail",
			slog.Int64("chat_id", out.ChatID),
			logger.Err(err),
		)
	}
}

func (s *Service) markBlocked(ctx context.Context, chatID int64) {
	if err := s.store.MarkBlocked(ctx, chatID); err != nil {
		logger.Warn(ctx, logger.CompApp, "session.mark_blocked",
			slog.Int64("chat_id", chatID),
			logger.Err(err),
		)
		return
	}
	logger.Info(ctx, logger.CompApp, "session.blocked", slog.Int64("chat_id", chatID))
}

// Remind prompts every session whose reminder for the current half-day is
// due at now's hour. Reminded sessions move to AwaitingReading.
func (s *Service) Remind(ctx context.Context, now time.Time) (fanout.Stats, error) {
	stamp := timefmt.Format(now.In(s.clock.Location()))
	targets, err := s.store.ListDueReminders(ctx, stamp.Half, stamp.Hour)
	if err != nil {
		return fanout.Stats{}, fmt.Errorf("app: list due reminders: %w", err)
	}
	prompt := s.engine.WindowPrompt(stamp)

	opts := s.fanout
	opts.OnDelivered = s.awaitReading
	stats := fanout.New(opts).Run(ctx, targets, func(*session.Session) telegram.Outgoing {
		return prompt
	})
	logger.Info(ctx, logger.CompApp, "remind.done",
		slog.String("window", stamp.Window()),
		slog.Int("hour", stamp.Hour),
		slog.String("summary", stats.String()),
	)
	return stats, nil
}

// awaitReading re-reads the session so a reply that raced the reminder is
// not overwritten.
func (s *Service) awaitReading(ctx context.Context, target *session.Session) error {
	mu := s.lock(target.ID)
	mu.Lock()
	defer mu.Unlock()

	cur, err := s.store.Get(ctx, target.ID)
	if err != nil {
		return err
	}
	if cur.Blocked || (cur.State != session.Idle && cur.State != session.AwaitingReading) {
		return nil
	}
	cur.State = session.AwaitingReading
	cur.LastReading = session.ReadingNone
	return s.store.Save(ctx, cur)
}

// Broadcast sends text to every unblocked session.
func (s *Service) Broadcast(ctx context.Context, text string) (fanout.Stats, error) {
	targets, err := s.store.ListUnblocked(ctx)
	if err != nil {
		return fanout.Stats{}, fmt.Errorf("app: list sessions: %w", err)
	}
	stats := fanout.New(s.fanout).Run(ctx, targets, func(t *session.Session) telegram.Outgoing {
		return telegram.Text(t.ID, text)
	})
	logger.Info(ctx, logger.CompApp, "broadcast.done", slog.String("summary", stats.String()))
	return stats, nil
}

// Rollover clears readings from windows other than the one containing now.
func (s *Service) Rollover(ctx context.Context, now time.Time) (int64, error) {
	window := timefmt.Format(now.In(s.clock.Location())).Window()
	n, err := s.store.RolloverReadings(ctx, window)
	if err != nil {
		return 0, fmt.Errorf("app: rollover: %w", err)
	}
	logger.Info(ctx, logger.CompApp, "rollover.done",
		slog.String("window", window),
		slog.Int64("cleared", n),
	)
	return n, nil
}

// Now reports the current time on the service clock.
func (s *Service) Now() time.Time {
	return s.clock.Now()
}
