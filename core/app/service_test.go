package app

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ltzehan/thermobot/core/conversation"
	"github.com/ltzehan/thermobot/core/directory"
	"github.com/ltzehan/thermobot/core/fanout"
	"github.com/ltzehan/thermobot/core/session"
	"github.com/ltzehan/thermobot/core/telegram"
	"github.com/ltzehan/thermobot/core/timefmt"
)

type stubGateway struct {
	mu      sync.Mutex
	sent    []telegram.Outgoing
	blocked map[int64]bool
}

func (g *stubGateway) Send(_ context.Context, out telegram.Outgoing) (telegram.Delivery, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, out)
	if g.blocked[out.ChatID] {
		return telegram.Blocked, nil
	}
	return telegram.Delivered, nil
}

func (g *stubGateway) messages() []telegram.Outgoing {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]telegram.Outgoing(nil), g.sent...)
}

type okSubmitter struct{}

func (okSubmitter) Submit(context.Context, directory.Submission) (directory.SubmitResult, error) {
	return directory.SubmitOK, nil
}

type noDirectory struct{}

func (noDirectory) Fetch(context.Context, string) (*directory.Group, error) {
	return nil, directory.ErrUnreachable
}

func (noDirectory) GroupRef(id string) string { return id }

// 05/06/2020 07:01 in UTC+8.
var sevenAM = time.Date(2020, 6, 5, 7, 1, 0, 0, timefmt.Zone(8))

func newService(t *testing.T, gw *stubGateway, debug bool) (*Service, *session.MemoryStore) {
	t.Helper()
	clock := timefmt.FixedClock(sevenAM, 8)
	store := session.NewMemoryStore()
	engine := conversation.New(conversation.Options{
		Directory: noDirectory{},
		Submitter: okSubmitter{},
		Clock:     clock,
	})
	svc, err := New(Options{
		Store:   store,
		Engine:  engine,
		Gateway: gw,
		Fanout:  fanout.Options{Workers: 4},
		Clock:   clock,
		Debug:   debug,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return svc, store
}

func seed(t *testing.T, store *session.MemoryStore, id int64, mutate func(*session.Session)) {
	t.Helper()
	s := session.New(id)
	s.State = session.Idle
	s.GroupID = "G"
	s.MemberID = "m"
	s.PinPhase = session.PinConfirmed
	s.Pin = "1234"
	s.RemindAM = 7
	s.RemindPM = 19
	s.LastReading = session.ReadingNone
	if mutate != nil {
		mutate(s)
	}
	if err := store.Save(context.Background(), s); err != nil {
		t.Fatalf("Save: %v", err)
	}
}

func textUpdate(chatID int64, msgID int, text string) telegram.Update {
	return telegram.Update{ID: msgID, Message: telegram.Message{
		ID: msgID, ChatID: chatID, UserID: chatID, HasText: true, Text: text,
	}}
}

func TestHandleUpdatePersistsAndSends(t *testing.T) {
	gw := &stubGateway{}
	svc, store := newService(t, gw, false)
	ctx := context.Background()

	out, err := svc.HandleUpdate(ctx, textUpdate(10, 1, "hi"))
	if err != nil {
		t.Fatalf("HandleUpdate: %v", err)
	}
	if out.ChatID != 10 || out.Text == "" {
		t.Fatalf("reply = %+v", out)
	}
	s, err := store.Get(ctx, 10)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if s.State != session.AwaitingGroupRef {
		t.Fatalf("state = %s", s.State)
	}
	if sent := gw.messages(); len(sent) != 1 || sent[0].Text != out.Text {
		t.Fatalf("sent = %+v", sent)
	}
}

func TestHandleUpdateSubmitsReading(t *testing.T) {
	gw := &stubGateway{}
	svc, store := newService(t, gw, false)
	ctx := context.Background()
	seed(t, store, 20, func(s *session.Session) { s.State = session.AwaitingReading })

	out, err := svc.HandleUpdate(ctx, textUpdate(20, 3, "36.0"))
	if err != nil {
		t.Fatalf("HandleUpdate: %v", err)
	}
	if !strings.Contains(out.Text, "36.0") {
		t.Fatalf("reply = %q", out.Text)
	}
	s, _ := store.Get(ctx, 20)
	if s.State != session.Idle || s.LastReading != "36.0" {
		t.Fatalf("session = %+v", s)
	}
}

func TestHandleUpdateWithoutText(t *testing.T) {
	gw := &stubGateway{}
	svc, store := newService(t, gw, false)
	u := telegram.Update{ID: 1, Message: telegram.Message{ID: 5, ChatID: 30}}

	out, err := svc.HandleUpdate(context.Background(), u)
	if err != nil {
		t.Fatalf("HandleUpdate: %v", err)
	}
	if out.Text != svc.engine.Strings().Text("no_text_error") || out.ReplyTo != 5 {
		t.Fatalf("reply = %+v", out)
	}
	if _, err := store.Get(context.Background(), 30); err != session.ErrNotFound {
		t.Fatalf("session created for non-text message: %v", err)
	}
}

func TestHandleUpdateDebugDoesNotSend(t *testing.T) {
	gw := &stubGateway{}
	svc, _ := newService(t, gw, true)
	out, err := svc.HandleUpdate(context.Background(), textUpdate(11, 1, "/start"))
	if err != nil || out.Empty() {
		t.Fatalf("out = %+v err = %v", out, err)
	}
	if len(gw.messages()) != 0 {
		t.Fatal("debug mode delivered a message")
	}
}

func TestHandleUpdateBlockedReply(t *testing.T) {
	gw := &stubGateway{blocked: map[int64]bool{12: true}}
	svc, store := newService(t, gw, false)
	if _, err := svc.HandleUpdate(context.Background(), textUpdate(12, 1, "hi")); err != nil {
		t.Fatalf("HandleUpdate: %v", err)
	}
	s, _ := store.Get(context.Background(), 12)
	if !s.Blocked {
		t.Fatal("session not marked blocked")
	}
}

func TestHandleUpdateSerializesPerChat(t *testing.T) {
	gw := &stubGateway{}
	svc, store := newService(t, gw, true)
	ctx := context.Background()
	seed(t, store, 40, func(s *session.Session) { s.State = session.AwaitingReading })

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := svc.HandleUpdate(ctx, textUpdate(40, i+1, "abc")); err != nil {
				t.Errorf("HandleUpdate: %v", err)
			}
		}(i)
	}
	wg.Wait()
	s, _ := store.Get(ctx, 40)
	if s.State != session.AwaitingReading {
		t.Fatalf("state = %s", s.State)
	}
}

func TestRemind(t *testing.T) {
	gw := &stubGateway{blocked: map[int64]bool{3: true}}
	svc, store := newService(t, gw, false)
	ctx := context.Background()
	seed(t, store, 1, nil)
	seed(t, store, 2, func(s *session.Session) { s.RemindAM = 8 })
	seed(t, store, 3, nil)
	seed(t, store, 4, func(s *session.Session) { s.LastReading = "36.5" })

	stats, err := svc.Remind(ctx, sevenAM)
	if err != nil {
		t.Fatalf("Remind: %v", err)
	}
	if stats.Total != 2 || stats.Delivered != 1 || stats.Blocked != 1 {
		t.Fatalf("stats = %+v", stats)
	}

	s1, _ := store.Get(ctx, 1)
	if s1.State != session.AwaitingReading {
		t.Fatalf("reminded session state = %s", s1.State)
	}
	s3, _ := store.Get(ctx, 3)
	if !s3.Blocked {
		t.Fatal("blocked recipient not persisted")
	}
	s2, _ := store.Get(ctx, 2)
	if s2.State != session.Idle {
		t.Fatalf("session not due was touched: %s", s2.State)
	}

	sent := gw.messages()
	if len(sent) != 2 {
		t.Fatalf("sent %d messages", len(sent))
	}
	if !strings.Contains(sent[0].Text, "07:01") || len(sent[0].Keyboard.Buttons()) != 26 {
		t.Fatalf("reminder = %+v", sent[0])
	}
}

func TestBroadcastSkipsBlocked(t *testing.T) {
	gw := &stubGateway{}
	svc, store := newService(t, gw, false)
	ctx := context.Background()
	seed(t, store, 1, nil)
	seed(t, store, 2, func(s *session.Session) { s.Blocked = true })
	seed(t, store, 3, func(s *session.Session) { s.State = session.EnterPin })

	stats, err := svc.Broadcast(ctx, "maintenance tonight")
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if stats.Total != 2 || stats.Delivered != 2 {
		t.Fatalf("stats = %+v", stats)
	}
	for _, out := range gw.messages() {
		if out.Text != "maintenance tonight" || out.ChatID == 2 {
			t.Fatalf("unexpected broadcast %+v", out)
		}
	}
}

func TestRollover(t *testing.T) {
	gw := &stubGateway{}
	svc, store := newService(t, gw, false)
	ctx := context.Background()
	seed(t, store, 1, func(s *session.Session) {
		s.LastReading = "36.5"
		s.ReadingWindow = "04/06/2020 PM"
	})
	seed(t, store, 2, func(s *session.Session) {
		s.LastReading = "36.6"
		s.ReadingWindow = "05/06/2020 AM"
	})

	n, err := svc.Rollover(ctx, sevenAM)
	if err != nil || n != 1 {
		t.Fatalf("Rollover = %d, %v", n, err)
	}
	s1, _ := store.Get(ctx, 1)
	s2, _ := store.Get(ctx, 2)
	if s1.LastReading != session.ReadingNone || s2.LastReading != "36.6" {
		t.Fatalf("readings = %q, %q", s1.LastReading, s2.LastReading)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("expected error for empty options")
	}
}
