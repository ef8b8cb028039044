package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ltzehan/thermobot/core/logger"
	"github.com/ltzehan/thermobot/core/timefmt"
)

const sessionColumns = `chat_id, status, group_id, group_name, group_members, member_id, member_name,
	pin_phase, pin, temp, temp_window, remind_am, remind_pm, blocked, created_at, updated_at`

// row mirrors the sessions table; enums are stored as their legacy tokens.
type row struct {
	ChatID       int64     `db:"chat_id"`
	Status       string    `db:"status"`
	GroupID      string    `db:"group_id"`
	GroupName    string    `db:"group_name"`
	GroupMembers string    `db:"group_members"`
	MemberID     string    `db:"member_id"`
	MemberName   string    `db:"member_name"`
	PinPhase     string    `db:"pin_phase"`
	Pin          string    `db:"pin"`
	Temp         string    `db:"temp"`
	TempWindow   string    `db:"temp_window"`
	RemindAM     int       `db:"remind_am"`
	RemindPM     int       `db:"remind_pm"`
	Blocked      bool      `db:"blocked"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func toRow(s *Session) (row, error) {
	status, err := EncodeState(s.State)
	if err != nil {
		return row{}, err
	}
	members := ""
	if len(s.Members) > 0 {
		data, err := json.Marshal(s.Members)
		if err != nil {
			return row{}, fmt.Errorf("encode members: %w", err)
		}
		members = string(data)
	}
	return row{
		ChatID:       s.ID,
		Status:       status,
		GroupID:      s.GroupID,
		GroupName:    s.GroupName,
		GroupMembers: members,
		MemberID:     s.MemberID,
		MemberName:   s.MemberName,
		PinPhase:     EncodePinPhase(s.PinPhase),
		Pin:          s.Pin,
		Temp:         s.LastReading,
		TempWindow:   s.ReadingWindow,
		RemindAM:     s.RemindAM,
		RemindPM:     s.RemindPM,
		Blocked:      s.Blocked,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}, nil
}

func (r row) session() (*Session, error) {
	st, err := DecodeState(r.Status)
	if err != nil {
		return nil, err
	}
	phase, err := DecodePinPhase(r.PinPhase)
	if err != nil {
		return nil, err
	}
	var members []Member
	if r.GroupMembers != "" {
		if err := json.Unmarshal([]byte(r.GroupMembers), &members); err != nil {
			return nil, fmt.Errorf("decode members: %w", err)
		}
	}
	return &Session{
		ID:            r.ChatID,
		State:         st,
		GroupID:       r.GroupID,
		GroupName:     r.GroupName,
		Members:       members,
		MemberID:      r.MemberID,
		MemberName:    r.MemberName,
		PinPhase:      phase,
		Pin:           r.Pin,
		LastReading:   r.Temp,
		ReadingWindow: r.TempWindow,
		RemindAM:      r.RemindAM,
		RemindPM:      r.RemindPM,
		Blocked:       r.Blocked,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}, nil
}

// SQLStore persists sessions through sqlx. It works with the postgres and
// sqlite drivers; queries are written with '?' and rebound per driver.
type SQLStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewSQLStore wraps an open, migrated database handle.
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// GetOrCreate inserts a fresh session if none exists, then loads it.
func (s *SQLStore) GetOrCreate(ctx context.Context, id int64) (*Session, error) {
	fresh, err := toRow(New(id))
	if err != nil {
		return nil, err
	}
	now := s.now()
	fresh.CreatedAt, fresh.UpdatedAt = now, now

	q := s.db.Rebind(`INSERT INTO sessions (` + sessionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (chat_id) DO NOTHING`)
	if _, err := s.db.ExecContext(ctx, q, rowArgs(fresh)...); err != nil {
		return nil, fmt.Errorf("insert session %d: %w", id, err)
	}
	return s.Get(ctx, id)
}

// Get loads a session or returns ErrNotFound.
func (s *SQLStore) Get(ctx context.Context, id int64) (*Session, error) {
	var r row
	q := s.db.Rebind(`SELECT ` + sessionColumns + ` FROM sessions WHERE chat_id = ?`)
	if err := s.db.GetContext(ctx, &r, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load session %d: %w", id, err)
	}
	return r.session()
}

// Save upserts the whole record.
func (s *SQLStore) Save(ctx context.Context, sess *Session) error {
	r, err := toRow(sess)
	if err != nil {
		return err
	}
	r.UpdatedAt = s.now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = r.UpdatedAt
	}
	_, err = s.db.NamedExecContext(ctx, `INSERT INTO sessions (`+sessionColumns+`)
		VALUES (:chat_id, :status, :group_id, :group_name, :group_members, :member_id, :member_name,
			:pin_phase, :pin, :temp, :temp_window, :remind_am, :remind_pm, :blocked, :created_at, :updated_at)
		ON CONFLICT (chat_id) DO UPDATE SET
			status = excluded.status,
			group_id = excluded.group_id,
			group_name = excluded.group_name,
			group_members = excluded.group_members,
			member_id = excluded.member_id,
			member_name = excluded.member_name,
			pin_phase = excluded.pin_phase,
			pin = excluded.pin,
			temp = excluded.temp,
			temp_window = excluded.temp_window,
			remind_am = excluded.remind_am,
			remind_pm = excluded.remind_pm,
			blocked = excluded.blocked,
			updated_at = excluded.updated_at`, r)
	if err != nil {
		return fmt.Errorf("save session %d: %w", sess.ID, err)
	}
	return nil
}

// MarkBlocked flags a session so fan-out skips it.
func (s *SQLStore) MarkBlocked(ctx context.Context, id int64) error {
	q := s.db.Rebind(`UPDATE sessions SET blocked = ?, updated_at = ? WHERE chat_id = ?`)
	res, err := s.db.ExecContext(ctx, q, true, s.now(), id)
	if err != nil {
		return fmt.Errorf("mark blocked %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListUnblocked returns broadcast targets ordered by chat id.
func (s *SQLStore) ListUnblocked(ctx context.Context) ([]*Session, error) {
	q := s.db.Rebind(`SELECT ` + sessionColumns + ` FROM sessions WHERE blocked = ? ORDER BY chat_id`)
	return s.list(ctx, q, false)
}

// ListDueReminders returns reminder targets for half at hour.
func (s *SQLStore) ListDueReminders(ctx context.Context, half timefmt.Half, hour int) ([]*Session, error) {
	column := "remind_am"
	if half == timefmt.PM {
		column = "remind_pm"
	}
	q := s.db.Rebind(`SELECT ` + sessionColumns + ` FROM sessions
		WHERE blocked = ? AND temp = ? AND ` + column + ` = ? ORDER BY chat_id`)
	return s.list(ctx, q, false, ReadingNone, hour)
}

// RolloverReadings resets readings submitted for any window other than window.
func (s *SQLStore) RolloverReadings(ctx context.Context, window string) (int64, error) {
	q := s.db.Rebind(`UPDATE sessions SET temp = ?, updated_at = ?
		WHERE blocked = ? AND pin_phase = ? AND temp <> ? AND temp_window <> ?`)
	res, err := s.db.ExecContext(ctx, q,
		ReadingNone, s.now(), false, EncodePinPhase(PinConfirmed), ReadingNone, window)
	if err != nil {
		return 0, fmt.Errorf("rollover readings: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLStore) list(ctx context.Context, q string, args ...any) ([]*Session, error) {
	var rows []row
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	out := make([]*Session, 0, len(rows))
	for _, r := range rows {
		sess, err := r.session()
		if err != nil {
			logger.SVCSessions.Warn("skipping undecodable session",
				slog.String("event", "session.decode"),
				slog.Int64("chat_id", r.ChatID),
				logger.Err(err),
			)
			continue
		}
		out = append(out, sess)
	}
	return out, nil
}

func rowArgs(r row) []any {
	return []any{
		r.ChatID, r.Status, r.GroupID, r.GroupName, r.GroupMembers, r.MemberID, r.MemberName,
		r.PinPhase, r.Pin, r.Temp, r.TempWindow, r.RemindAM, r.RemindPM, r.Blocked, r.CreatedAt, r.UpdatedAt,
	}
}
