package directory

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
)

const groupPage = `<html><body><script>
window.onload = function() { loadContents({"groupName":"Platoon 1","groupCode":"ABC123",
"members":[{"id":"m2","identifier":"Bob","hasPin":false},{"id":"m1","identifier":"Alice","hasPin":true}]}); };
function other() { return {}; }
</script></body></html>`

func TestValidate(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"https://temptaking.ado.sg/group/test", "https://temptaking.ado.sg/group/test", true},
		{"http://temptaking.ado.sg/group/test", "https://temptaking.ado.sg/group/test", true},
		{"temptaking.ado.sg/group/test", "https://temptaking.ado.sg/group/test", true},
		{"here it is: temptaking.ado.sg/group/abc thanks", "https://temptaking.ado.sg/group/abc", true},
		{"temptaking.ado.sg/group", "", false},
		{"temptaking.ado.sg/group/", "", false},
		{"https://example.com/group/test", "", false},
	}
	for _, tt := range tests {
		got, ok := Validate(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Fatalf("Validate(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestFetchParsesGroupPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/group/ABC123" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, groupPage)
	}))
	defer srv.Close()

	c := New(srv.Client(), srv.URL)
	g, err := c.Fetch(context.Background(), "https://temptaking.ado.sg/group/ABC123")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if g.ID != "ABC123" || g.Name != "Platoon 1" {
		t.Fatalf("unexpected group %+v", g)
	}
	if len(g.Members) != 2 || g.Members[0].Name != "Alice" || !g.Members[0].HasPin {
		t.Fatalf("members not sorted by name: %+v", g.Members)
	}
	if m, ok := g.Find("Bob"); !ok || m.ID != "m2" {
		t.Fatalf("Find(Bob) = %+v, %v", m, ok)
	}
	if _, ok := g.Find("bob"); ok {
		t.Fatal("Find must be case-sensitive")
	}
}

func TestFetchErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    error
	}{
		{"invalid code", func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, "<p>Invalid code</p>")
		}, ErrInvalidGroup},
		{"no data", func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, "<p>maintenance</p>")
		}, ErrMalformedPage},
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}, ErrUnreachable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()
			_, err := New(srv.Client(), srv.URL).Fetch(context.Background(), "https://temptaking.ado.sg/group/x")
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestFetchUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	_, err := New(nil, base).Fetch(context.Background(), "https://temptaking.ado.sg/group/x")
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}
}

func TestSubmit(t *testing.T) {
	var (
		mu    sync.Mutex
		got   url.Values
		reply = "OK"
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/group/MemberSubmitTemperature" {
			http.NotFound(w, r)
			return
		}
		_ = r.ParseForm()
		mu.Lock()
		defer mu.Unlock()
		got = r.PostForm
		_, _ = io.WriteString(w, reply)
	}))
	defer srv.Close()

	c := New(srv.Client(), srv.URL)
	sub := Submission{GroupID: "ABC123", MemberID: "m1", Pin: "1234", Date: "01/02/2024", Meridiem: "AM", Value: "36.5"}

	tests := []struct {
		reply string
		want  SubmitResult
	}{
		{"OK", SubmitOK},
		{"Wrong pin", SubmitWrongPin},
		{"Something else", SubmitRejected},
	}
	for _, tt := range tests {
		mu.Lock()
		reply = tt.reply
		mu.Unlock()
		res, err := c.Submit(context.Background(), sub)
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		if res != tt.want {
			t.Fatalf("reply %q classified %s, want %s", tt.reply, res, tt.want)
		}
	}
	mu.Lock()
	defer mu.Unlock()
	for key, want := range map[string]string{
		"groupCode": "ABC123", "date": "01/02/2024", "meridies": "AM",
		"memberId": "m1", "temperature": "36.5", "pin": "1234",
	} {
		if got.Get(key) != want {
			t.Fatalf("form %s = %q, want %q", key, got.Get(key), want)
		}
	}
}

func TestGroupRef(t *testing.T) {
	c := New(nil, "")
	if got := c.GroupRef("ABC123"); got != "https://temptaking.ado.sg/group/ABC123" {
		t.Fatalf("GroupRef = %q", got)
	}
}
