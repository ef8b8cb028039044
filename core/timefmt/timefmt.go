// Package timefmt renders timestamps the way the bot shows them to users: a
// fixed UTC offset, independent of the host time zone.
package timefmt

import (
	"fmt"
	"math"
	"time"
)

// DefaultOffsetHours is the offset the directory operates in (UTC+8).
const DefaultOffsetHours = 8

var clocks = [...]string{
	"🕛", "🕧", "🕐", "🕜", "🕑", "🕝", "🕒", "🕞", "🕓", "🕟", "🕔", "🕠",
	"🕕", "🕡", "🕖", "🕢", "🕗", "🕣", "🕘", "🕤", "🕙", "🕥", "🕚", "🕦", "🕛",
}

// Half partitions a day into the two reporting windows.
type Half int

const (
	AM Half = iota
	PM
)

func (h Half) String() string {
	if h == PM {
		return "PM"
	}
	return "AM"
}

// HalfOf returns the window an hour of day belongs to.
func HalfOf(hour int) Half {
	if hour >= 12 {
		return PM
	}
	return AM
}

// Clock yields the current time in the configured fixed zone.
type Clock struct {
	loc *time.Location
	now func() time.Time
}

// NewClock returns a clock for UTC+offsetHours.
func NewClock(offsetHours int) *Clock {
	return &Clock{
		loc: Zone(offsetHours),
		now: time.Now,
	}
}

// FixedClock always reports t; used by tests and replays.
func FixedClock(t time.Time, offsetHours int) *Clock {
	return &Clock{
		loc: Zone(offsetHours),
		now: func() time.Time { return t },
	}
}

// Zone builds the fixed location for an hour offset.
func Zone(offsetHours int) *time.Location {
	return time.FixedZone(fmt.Sprintf("UTC%+d", offsetHours), offsetHours*3600)
}

// Now reports the current instant in the clock's zone.
func (c *Clock) Now() time.Time {
	if c == nil {
		return time.Now().In(Zone(DefaultOffsetHours))
	}
	return c.now().In(c.loc)
}

// Location exposes the clock zone for schedulers.
func (c *Clock) Location() *time.Location {
	if c == nil {
		return Zone(DefaultOffsetHours)
	}
	return c.loc
}

// Stamp is a pre-rendered view of one instant.
type Stamp struct {
	Meridiem   string
	ShortDate  string
	Date       string
	Time       string
	DayOfWeek  string
	ClockEmoji string
	Hour       int
	Half       Half
	At         time.Time
}

// Format renders t; callers pass times already in the display zone.
func Format(t time.Time) Stamp {
	half := HalfOf(t.Hour())
	return Stamp{
		Meridiem:   half.String(),
		ShortDate:  t.Format("02/01/06"),
		Date:       t.Format("02/01/2006"),
		Time:       t.Format("15:04"),
		DayOfWeek:  t.Weekday().String(),
		ClockEmoji: ClockEmoji(t),
		Hour:       t.Hour(),
		Half:       half,
		At:         t,
	}
}

// Window identifies the half-day reporting window, e.g. "05/06/2020 AM".
func (s Stamp) Window() string {
	return s.Date + " " + s.Meridiem
}

// ClockEmoji picks the clock face nearest to t in half-hour steps.
func ClockEmoji(t time.Time) string {
	hours := float64(t.Hour()) + float64(t.Minute())/60
	idx := int(math.RoundToEven(math.Mod(2*hours, 24)))
	return clocks[idx]
}
