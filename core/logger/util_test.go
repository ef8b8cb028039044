package logger

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestRedactTokens(t *testing.T) {
	const token = "123456:AAEhBP0av28hsF3zyxWz0Hj-9Y_wZ1LKj2E"
	cases := []struct {
		in, want string
	}{
		{"Post https://api.telegram.org/bot" + token + "/sendMessage: EOF", "Post https://api.telegram.org/<token>/sendMessage: EOF"},
		{"bad path /" + token + "/webhook", "bad path /<token>/webhook"},
		{"window closed at 09:30:00", "window closed at 09:30:00"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := RedactTokens(tc.in); got != tc.want {
			t.Errorf("RedactTokens(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}

	attr := Err(fmt.Errorf("send: %s", token))
	if attr.Key != "err" || attr.Value.String() != "send: <token>" {
		t.Fatalf("unexpected attr %v", attr)
	}
	if Err(nil).Value.String() != "" {
		t.Fatal("nil error should render empty")
	}
}

func TestStatusAndRoundMS(t *testing.T) {
	if Status(nil) != "ok" || Status(errors.New("x")) != "error" {
		t.Fatal("unexpected status mapping")
	}
	if RoundMS(-time.Second) != 0 {
		t.Fatal("negative duration should clamp to zero")
	}
	if got := RoundMS(1500600 * time.Microsecond); got != 1501*time.Millisecond {
		t.Fatalf("RoundMS = %v", got)
	}
}

func TestSummarizeStrings(t *testing.T) {
	files := []string{"0001_sessions.up.sql", "0002_reminders.up.sql", "0003_blocked.up.sql"}
	if got, cut := SummarizeStrings(files, 2); got != "0001_sessions.up.sql, 0002_reminders.up.sql" || !cut {
		t.Fatalf("got %q %v", got, cut)
	}
	if got, cut := SummarizeStrings(files, 5); cut || strings.Count(got, ",") != 2 {
		t.Fatalf("got %q %v", got, cut)
	}
	if _, cut := SummarizeStrings(files, 0); !cut {
		t.Fatal("zero limit with values should report truncation")
	}
}

func TestSampler(t *testing.T) {
	s := newSampler(1, 3)
	var got []bool
	for i := 0; i < 6; i++ {
		got = append(got, s.Allow())
	}
	want := []bool{true, false, false, true, false, false}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Allow sequence = %v, want %v", got, want)
		}
	}

	s.Set(0, 0)
	for i := 0; i < 5; i++ {
		if !s.Allow() {
			t.Fatal("disabled sampler must pass everything")
		}
	}
	s.Set(5, 2)
	for i := 0; i < 5; i++ {
		if !s.Allow() {
			t.Fatal("ratio above one must pass everything")
		}
	}
}

func TestParseSampleSpec(t *testing.T) {
	cases := []struct {
		spec     string
		num, den int
	}{
		{"", 0, 0},
		{"1/10", 1, 10},
		{" 2 / 5 ", 2, 5},
		{"20", 1, 20},
		{"0", 0, 0},
		{"x", 0, 0},
		{"a/5", 0, 0},
	}
	for _, tc := range cases {
		num, den := parseSampleSpec(tc.spec)
		if num != tc.num || den != tc.den {
			t.Errorf("parseSampleSpec(%q) = %d/%d, want %d/%d", tc.spec, num, den, tc.num, tc.den)
		}
	}
}

func TestAsyncWriterDrainsOnClose(t *testing.T) {
	var a, b bytes.Buffer
	aw := newAsyncWriter([]io.Writer{&a, nil, &b}, 64)

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				if err := aw.Write([]byte(fmt.Sprintf("g%d line %d\n", g, i))); err != nil {
					t.Errorf("write: %v", err)
					return
				}
			}
		}(g)
	}
	wg.Wait()
	if err := aw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if n := strings.Count(a.String(), "\n"); n != 2000 {
		t.Fatalf("first sink got %d lines", n)
	}
	if a.String() != b.String() {
		t.Fatal("sinks diverged")
	}
	if err := aw.Write([]byte("late\n")); !errors.Is(err, errWriterClosed) {
		t.Fatalf("write after close = %v", err)
	}
	if err := aw.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

type brokenSink struct{}

func (brokenSink) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestAsyncWriterReportsSinkError(t *testing.T) {
	aw := newAsyncWriter([]io.Writer{brokenSink{}}, 1024)
	if err := aw.Write([]byte("x\n")); err != nil {
		t.Fatalf("first write should queue: %v", err)
	}
	if err := aw.Flush(); err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("flush = %v", err)
	}
	if err := aw.Write([]byte("y\n")); err == nil {
		t.Fatal("write after sink failure should fail")
	}
	if err := aw.Close(); err == nil {
		t.Fatal("close should report the sink failure")
	}
}
