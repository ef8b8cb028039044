package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ltzehan/thermobot/core/timefmt"
)

func TestValidate(t *testing.T) {
	cases := []struct {
		spec string
		ok   bool
	}{
		{"1 * * * *", true},
		{"0 0,12 * * *", true},
		{"@hourly", true},
		{" 30 7 * * 1-5 ", true},
		{"", false},
		{"* * * *", false},
		{"0 0 * * * *", false},
		{"61 * * * *", false},
	}
	for _, tc := range cases {
		err := Validate(tc.spec)
		if (err == nil) != tc.ok {
			t.Errorf("Validate(%q) = %v, want ok=%v", tc.spec, err, tc.ok)
		}
	}
}

func TestNextUsesLocation(t *testing.T) {
	loc := timefmt.Zone(8)
	// 23:30 UTC is 07:30 the next day in UTC+8.
	from := time.Date(2020, 6, 4, 23, 30, 0, 0, time.UTC)

	next, err := Next("1 * * * *", from, loc)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	want := time.Date(2020, 6, 5, 8, 1, 0, 0, loc)
	if !next.Equal(want) {
		t.Fatalf("next = %v, want %v", next, want)
	}

	next, err = Next("0 0,12 * * *", from, loc)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if want := time.Date(2020, 6, 5, 12, 0, 0, 0, loc); !next.Equal(want) {
		t.Fatalf("rollover next = %v, want %v", next, want)
	}
}

func TestAddRejectsBadJobs(t *testing.T) {
	s := New(timefmt.Zone(8))
	defer s.Stop(context.Background())

	if err := s.Add(Job{Name: "nil", Spec: "@hourly"}); err == nil {
		t.Fatal("expected error for nil run")
	}
	run := func(context.Context, time.Time) error { return nil }
	if err := s.Add(Job{Name: "bad", Spec: "every hour", Run: run}); err == nil {
		t.Fatal("expected error for bad spec")
	}
	if err := s.Add(Job{Name: "ok", Spec: "1 * * * *", Run: run}); err != nil {
		t.Fatalf("Add: %v", err)
	}
}

func TestFireReportsLocalTime(t *testing.T) {
	loc := timefmt.Zone(8)
	s := New(loc)
	defer s.Stop(context.Background())

	var got time.Time
	s.fire(Job{Name: "probe", Timeout: time.Second, Run: func(ctx context.Context, now time.Time) error {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("timeout not applied")
		}
		got = now
		return errors.New("logged only")
	}})
	if got.Location() != loc {
		t.Fatalf("location = %v", got.Location())
	}
}
