// Package session models the per-chat conversation record and its storage.
package session

import (
	"time"
)

// State is a step of the conversation state machine.
type State int

const (
	Unset State = iota
	AwaitingGroupRef
	ConfirmGroupRef
	SelectMember
	ConfirmMember
	EnterPin
	ConfirmPin
	ConfirmPinAgain
	SetupSummary
	ConfigureReminderAM
	ConfigureReminderPM
	Idle
	AwaitingReading
	WrongPin
)

var stateNames = [...]string{
	Unset:               "unset",
	AwaitingGroupRef:    "awaiting_group_ref",
	ConfirmGroupRef:     "confirm_group_ref",
	SelectMember:        "select_member",
	ConfirmMember:       "confirm_member",
	EnterPin:            "enter_pin",
	ConfirmPin:          "confirm_pin",
	ConfirmPinAgain:     "confirm_pin_again",
	SetupSummary:        "setup_summary",
	ConfigureReminderAM: "configure_reminder_am",
	ConfigureReminderPM: "configure_reminder_pm",
	Idle:                "idle",
	AwaitingReading:     "awaiting_reading",
	WrongPin:            "wrong_pin",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "invalid"
	}
	return stateNames[s]
}

// Valid reports whether s is one of the defined states.
func (s State) Valid() bool {
	return s >= Unset && s <= WrongPin
}

// PostOnboarding reports whether commands other than /start are accepted.
func (s State) PostOnboarding() bool {
	switch s {
	case Idle, AwaitingReading, ConfigureReminderAM, ConfigureReminderPM:
		return true
	}
	return false
}

// SelectingMember reports whether the members snapshot must be present.
func (s State) SelectingMember() bool {
	switch s {
	case SelectMember, ConfirmMember:
		return true
	}
	return false
}

// PinPhase tracks PIN setup separately from the PIN value.
type PinPhase int

const (
	PinUnset PinPhase = iota
	// PinMissing means the member has no PIN on the directory yet.
	PinMissing
	// PinUnconfirmed means a PIN exists on the directory but the user has not confirmed theirs.
	PinUnconfirmed
	PinConfirmed
)

func (p PinPhase) String() string {
	switch p {
	case PinMissing:
		return "missing"
	case PinUnconfirmed:
		return "unconfirmed"
	case PinConfirmed:
		return "confirmed"
	}
	return "unset"
}

// Reading sentinels stored in LastReading.
const (
	ReadingNone  = "none"
	ReadingError = "error"
	ReadingInit  = "init"
)

// NoReminder marks an unset reminder hour.
const NoReminder = -1

// Member is one entry of a directory roster.
type Member struct {
	ID     string `json:"id"`
	Name   string `json:"identifier"`
	HasPin bool   `json:"hasPin"`
}

// DisplayName is the identifier shown on keyboards.
func (m Member) DisplayName() string { return m.Name }

// Session is the persisted conversation record of one chat.
type Session struct {
	ID    int64
	State State

	GroupID   string
	GroupName string
	// Members is populated only while the user picks their name.
	Members []Member

	MemberID   string
	MemberName string
	PinPhase   PinPhase
	Pin        string

	LastReading string
	// ReadingWindow is the half-day window LastReading was submitted for.
	ReadingWindow string

	RemindAM int
	RemindPM int

	Blocked bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// New returns the record for a chat seen for the first time.
func New(id int64) *Session {
	return &Session{
		ID:          id,
		State:       Unset,
		LastReading: ReadingInit,
		RemindAM:    NoReminder,
		RemindPM:    NoReminder,
	}
}

// Reset clears onboarding and reading data and restarts onboarding.
func (s *Session) Reset() {
	s.State = AwaitingGroupRef
	s.GroupID = ""
	s.GroupName = ""
	s.Members = nil
	s.MemberID = ""
	s.MemberName = ""
	s.PinPhase = PinUnset
	s.Pin = ""
	s.LastReading = ReadingInit
	s.ReadingWindow = ""
	s.RemindAM = NoReminder
	s.RemindPM = NoReminder
	s.Blocked = false
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	if s.Members != nil {
		cp.Members = append([]Member(nil), s.Members...)
	}
	return &cp
}

// FindMember looks up a member of the snapshot by exact identifier.
func (s *Session) FindMember(name string) (Member, bool) {
	for _, m := range s.Members {
		if m.Name == name {
			return m, true
		}
	}
	return Member{}, false
}

// HasReadingFor reports whether a real reading was stored for window.
func (s *Session) HasReadingFor(window string) bool {
	switch s.LastReading {
	case "", ReadingNone, ReadingError, ReadingInit:
		return false
	}
	return s.ReadingWindow == window
}

// RemindersSet reports whether both reminder hours are configured.
func (s *Session) RemindersSet() bool {
	return s.RemindAM >= 0 && s.RemindAM < 12 && s.RemindPM >= 12 && s.RemindPM < 24
}
