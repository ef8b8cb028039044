package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ltzehan/thermobot/core/timefmt"
)

// MemoryStore keeps sessions in process memory. Used for development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
	now      func() time.Time
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[int64]*Session),
		now:      time.Now,
	}
}

// GetOrCreate returns a copy of the stored session, inserting a fresh one if absent.
func (m *MemoryStore) GetOrCreate(_ context.Context, id int64) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id]; ok {
		return s.Clone(), nil
	}
	s := New(id)
	s.CreatedAt = m.now()
	s.UpdatedAt = s.CreatedAt
	m.sessions[id] = s
	return s.Clone(), nil
}

// Get returns a copy of the stored session or ErrNotFound.
func (m *MemoryStore) Get(_ context.Context, id int64) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if s, ok := m.sessions[id]; ok {
		return s.Clone(), nil
	}
	return nil, ErrNotFound
}

// Save stores a copy of s.
func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := s.Clone()
	cp.UpdatedAt = m.now()
	if prev, ok := m.sessions[s.ID]; ok {
		cp.CreatedAt = prev.CreatedAt
	} else if cp.CreatedAt.IsZero() {
		cp.CreatedAt = cp.UpdatedAt
	}
	m.sessions[s.ID] = cp
	return nil
}

// MarkBlocked flags a session so fan-out skips it.
func (m *MemoryStore) MarkBlocked(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.Blocked = true
	s.UpdatedAt = m.now()
	return nil
}

// ListUnblocked returns all sessions that have not blocked the bot, ordered by id.
func (m *MemoryStore) ListUnblocked(_ context.Context) ([]*Session, error) {
	return m.filter(func(s *Session) bool { return !s.Blocked }), nil
}

// ListDueReminders returns sessions to remind for half at hour, ordered by id.
func (m *MemoryStore) ListDueReminders(_ context.Context, half timefmt.Half, hour int) ([]*Session, error) {
	return m.filter(func(s *Session) bool { return dueReminder(s, half, hour) }), nil
}

// RolloverReadings resets stale readings to ReadingNone.
func (m *MemoryStore) RolloverReadings(_ context.Context, window string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, s := range m.sessions {
		if needsRollover(s, window) {
			s.LastReading = ReadingNone
			s.UpdatedAt = m.now()
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) filter(keep func(*Session) bool) []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		if keep(s) {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
