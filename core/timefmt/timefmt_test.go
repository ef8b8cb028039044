package timefmt

import (
	"testing"
	"time"
)

func TestFormatUsesFixedOffset(t *testing.T) {
	// 2020-06-05 03:30 UTC is 11:30 in UTC+8.
	clock := FixedClock(time.Date(2020, 6, 5, 3, 30, 0, 0, time.UTC), DefaultOffsetHours)
	s := Format(clock.Now())

	if s.Meridiem != "AM" || s.Half != AM {
		t.Fatalf("meridiem = %s/%v, want AM", s.Meridiem, s.Half)
	}
	if s.Date != "05/06/2020" || s.ShortDate != "05/06/20" {
		t.Fatalf("date = %s short = %s", s.Date, s.ShortDate)
	}
	if s.Time != "11:30" || s.DayOfWeek != "Friday" {
		t.Fatalf("time = %s day = %s", s.Time, s.DayOfWeek)
	}
	if s.Window() != "05/06/2020 AM" {
		t.Fatalf("window = %s", s.Window())
	}
}

func TestFormatCrossesIntoPM(t *testing.T) {
	clock := FixedClock(time.Date(2020, 6, 5, 4, 0, 0, 0, time.UTC), DefaultOffsetHours)
	s := Format(clock.Now())
	if s.Half != PM || s.Hour != 12 {
		t.Fatalf("got half %v hour %d, want PM 12", s.Half, s.Hour)
	}
}

func TestClockEmoji(t *testing.T) {
	loc := Zone(DefaultOffsetHours)
	cases := []struct {
		h, m int
		want string
	}{
		{0, 0, "🕛"},
		{0, 30, "🕧"},
		{1, 0, "🕐"},
		{12, 0, "🕛"},
		{13, 30, "🕜"},
		{23, 50, "🕛"},
	}
	for _, tc := range cases {
		got := ClockEmoji(time.Date(2020, 1, 1, tc.h, tc.m, 0, 0, loc))
		if got != tc.want {
			t.Errorf("%02d:%02d -> %s, want %s", tc.h, tc.m, got, tc.want)
		}
	}
}

func TestHalfOf(t *testing.T) {
	for h := 0; h < 24; h++ {
		want := AM
		if h >= 12 {
			want = PM
		}
		if got := HalfOf(h); got != want {
			t.Fatalf("HalfOf(%d) = %v", h, got)
		}
	}
}
