package session

import (
	"context"
	"errors"
	"testing"

	"github.com/ltzehan/thermobot/core/timefmt"
)

func TestSessionReset(t *testing.T) {
	s := New(1)
	s.State = Idle
	s.GroupID = "ABC"
	s.Members = []Member{{ID: "1", Name: "Alice"}}
	s.PinPhase = PinConfirmed
	s.Pin = "1234"
	s.LastReading = "36.5"
	s.RemindAM = 7
	s.Blocked = true

	s.Reset()
	if s.State != AwaitingGroupRef || s.GroupID != "" || s.Members != nil || s.Pin != "" {
		t.Fatalf("reset left onboarding data: %+v", s)
	}
	if s.LastReading != ReadingInit || s.RemindAM != NoReminder || s.Blocked {
		t.Fatalf("reset left reading data: %+v", s)
	}
}

func TestCloneIsDeep(t *testing.T) {
	s := New(1)
	s.Members = []Member{{ID: "1", Name: "Alice"}}
	cp := s.Clone()
	cp.Members[0].Name = "Bob"
	cp.State = Idle
	if s.Members[0].Name != "Alice" || s.State != Unset {
		t.Fatal("clone shares state with original")
	}
}

func TestHasReadingFor(t *testing.T) {
	tests := []struct {
		reading, window string
		want            bool
	}{
		{"36.5", "01/02/2024 AM", true},
		{"36.5", "01/02/2024 PM", false},
		{ReadingNone, "01/02/2024 AM", false},
		{ReadingError, "01/02/2024 AM", false},
		{ReadingInit, "01/02/2024 AM", false},
	}
	for _, tt := range tests {
		s := New(1)
		s.LastReading = tt.reading
		s.ReadingWindow = "01/02/2024 AM"
		if got := s.HasReadingFor(tt.window); got != tt.want {
			t.Fatalf("HasReadingFor(%q) with %q = %v, want %v", tt.window, tt.reading, got, tt.want)
		}
	}
}

func TestRemindersSet(t *testing.T) {
	s := New(1)
	if s.RemindersSet() {
		t.Fatal("fresh session reports reminders")
	}
	s.RemindAM, s.RemindPM = 7, 19
	if !s.RemindersSet() {
		t.Fatal("expected reminders set")
	}
}

func TestMemoryStoreGetOrCreate(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	if _, err := st.Get(ctx, 7); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	s, err := st.GetOrCreate(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	if s.State != Unset || s.LastReading != ReadingInit || s.CreatedAt.IsZero() {
		t.Fatalf("unexpected fresh session %+v", s)
	}

	s.State = Idle
	// mutating the returned copy must not leak into the store
	again, _ := st.Get(ctx, 7)
	if again.State != Unset {
		t.Fatal("store returned shared pointer")
	}

	if err := st.Save(ctx, s); err != nil {
		t.Fatal(err)
	}
	again, _ = st.GetOrCreate(ctx, 7)
	if again.State != Idle {
		t.Fatalf("save not persisted: %s", again.State)
	}
}

func TestMemoryStoreMarkBlocked(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	if err := st.MarkBlocked(ctx, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	for _, id := range []int64{3, 1, 2} {
		if _, err := st.GetOrCreate(ctx, id); err != nil {
			t.Fatal(err)
		}
	}
	if err := st.MarkBlocked(ctx, 2); err != nil {
		t.Fatal(err)
	}
	list, _ := st.ListUnblocked(ctx)
	if len(list) != 2 || list[0].ID != 1 || list[1].ID != 3 {
		t.Fatalf("unexpected unblocked list %v", ids(list))
	}
}

func TestMemoryStoreDueReminders(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	seed := []*Session{
		{ID: 1, State: Idle, LastReading: ReadingNone, RemindAM: 7, RemindPM: 19},
		{ID: 2, State: Idle, LastReading: "36.4", RemindAM: 7, RemindPM: 19},
		{ID: 3, State: Idle, LastReading: ReadingNone, RemindAM: 7, RemindPM: 19, Blocked: true},
		{ID: 4, State: Idle, LastReading: ReadingNone, RemindAM: 8, RemindPM: 19},
		{ID: 5, State: Idle, LastReading: ReadingNone, RemindAM: 7, RemindPM: 20},
	}
	for _, s := range seed {
		if err := st.Save(ctx, s); err != nil {
			t.Fatal(err)
		}
	}
	am, _ := st.ListDueReminders(ctx, timefmt.AM, 7)
	if got := ids(am); len(got) != 2 || got[0] != 1 || got[1] != 5 {
		t.Fatalf("AM due = %v", got)
	}
	pm, _ := st.ListDueReminders(ctx, timefmt.PM, 19)
	if got := ids(pm); len(got) != 2 || got[0] != 1 || got[1] != 4 {
		t.Fatalf("PM due = %v", got)
	}
}

func TestMemoryStoreRollover(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	seed := []*Session{
		{ID: 1, PinPhase: PinConfirmed, LastReading: "36.5", ReadingWindow: "01/02/2024 AM"},
		{ID: 2, PinPhase: PinConfirmed, LastReading: "36.5", ReadingWindow: "01/02/2024 PM"},
		{ID: 3, PinPhase: PinConfirmed, LastReading: ReadingInit},
		{ID: 4, PinPhase: PinUnconfirmed, LastReading: ReadingInit},
		{ID: 5, PinPhase: PinConfirmed, LastReading: ReadingNone},
	}
	for _, s := range seed {
		if err := st.Save(ctx, s); err != nil {
			t.Fatal(err)
		}
	}
	n, err := st.RolloverReadings(ctx, "01/02/2024 PM")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("rolled over %d, want 2", n)
	}
	for id, want := range map[int64]string{1: ReadingNone, 2: "36.5", 3: ReadingNone, 4: ReadingInit} {
		s, _ := st.Get(ctx, id)
		if s.LastReading != want {
			t.Fatalf("session %d reading = %q, want %q", id, s.LastReading, want)
		}
	}
}

func ids(list []*Session) []int64 {
	out := make([]int64, len(list))
	for i, s := range list {
		out[i] = s.ID
	}
	return out
}
