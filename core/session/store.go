package session

import (
	"context"
	"errors"

	"github.com/ltzehan/thermobot/core/timefmt"
)

// ErrNotFound is returned by Get for unknown chat ids.
var ErrNotFound = errors.New("session: not found")

// Store persists sessions keyed by chat id. Save is last-write-wins.
type Store interface {
	GetOrCreate(ctx context.Context, id int64) (*Session, error)
	Get(ctx context.Context, id int64) (*Session, error)
	Save(ctx context.Context, s *Session) error
	MarkBlocked(ctx context.Context, id int64) error

	// ListUnblocked returns broadcast targets.
	ListUnblocked(ctx context.Context) ([]*Session, error)
	// ListDueReminders returns unblocked sessions whose reminder for half is
	// set to hour and that have not submitted a reading yet.
	ListDueReminders(ctx context.Context, half timefmt.Half, hour int) ([]*Session, error)
	// RolloverReadings clears readings that do not belong to window so the
	// next reminder selects the session again.
	RolloverReadings(ctx context.Context, window string) (int64, error)
}

func dueReminder(s *Session, half timefmt.Half, hour int) bool {
	if s.Blocked || s.LastReading != ReadingNone {
		return false
	}
	if half == timefmt.PM {
		return s.RemindPM == hour
	}
	return s.RemindAM == hour
}

// needsRollover selects onboarded sessions holding a reading from another window.
func needsRollover(s *Session, window string) bool {
	if s.Blocked || s.PinPhase != PinConfirmed {
		return false
	}
	if s.LastReading == ReadingNone {
		return false
	}
	return s.ReadingWindow != window
}
