package telegram

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type flakyTransport struct {
	calls atomic.Int32
	fail  int32
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func (f *flakyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if f.calls.Add(1) <= f.fail {
		return nil, timeoutErr{}
	}
	return http.DefaultTransport.RoundTrip(req)
}

func TestRetryTransportRetriesTimeouts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	base := &flakyTransport{fail: 2}
	client := &http.Client{Transport: &retryTransport{base: base, maxRetries: 3, backoff: time.Millisecond}}
	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("expected success after retries: %v", err)
	}
	resp.Body.Close()
	if got := base.calls.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestRetryTransportGivesUp(t *testing.T) {
	base := &flakyTransport{fail: 10}
	client := &http.Client{Transport: &retryTransport{base: base, maxRetries: 1, backoff: time.Millisecond}}
	_, err := client.Get("http://example.invalid/")
	var te timeoutErr
	if !errors.As(err, &te) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if got := base.calls.Load(); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}
}

func TestBuildHTTPClientOptions(t *testing.T) {
	c := BuildHTTPClient(WithTimeout(3*time.Second), WithRetries(0, 0))
	if c.Timeout != 3*time.Second {
		t.Fatalf("timeout = %s", c.Timeout)
	}
	rt, ok := c.Transport.(*retryTransport)
	if !ok || rt.maxRetries != 0 {
		t.Fatalf("unexpected transport %#v", c.Transport)
	}
	if ht := rt.base.(*http.Transport); ht.ResponseHeaderTimeout != 3*time.Second {
		t.Fatalf("response header timeout = %s", ht.ResponseHeaderTimeout)
	}
}

func TestRetryTransportRetriesGatewayErrorsOnGet(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		body, _ := io.ReadAll(r.Body)
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	client := &http.Client{Transport: &retryTransport{base: http.DefaultTransport, maxRetries: 2, backoff: time.Millisecond}}
	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || hits.Load() != 2 {
		t.Fatalf("status=%d hits=%d", resp.StatusCode, hits.Load())
	}

	hits.Store(0)
	resp, err = client.Post(srv.URL, "text/plain", strings.NewReader("1234"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable || hits.Load() != 1 {
		t.Fatalf("POST must not be retried on 503: status=%d hits=%d", resp.StatusCode, hits.Load())
	}
}
