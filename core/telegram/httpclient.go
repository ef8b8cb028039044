package telegram

import (
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/ltzehan/thermobot/core/telegram/netutil"
)

var errNoReplay = errors.New("telegram: request body cannot be replayed")

// ClientOption adjusts BuildHTTPClient.
type ClientOption func(*clientConfig)

type clientConfig struct {
	timeout        time.Duration
	responseHeader time.Duration
	retries        int
	backoff        time.Duration
}

// WithTimeout bounds a whole request, retries included. The per-attempt
// header timeout is lowered to match when it is longer.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *clientConfig) {
		if d > 0 {
			c.timeout = d
			c.responseHeader = min(c.responseHeader, d)
		}
	}
}

// WithRetries sets how many extra attempts a transient failure gets.
func WithRetries(n int, backoff time.Duration) ClientOption {
	return func(c *clientConfig) {
		c.retries = max(n, 0)
		c.backoff = backoff
	}
}

// BuildHTTPClient returns the client shared by the Bot API and the
// temperature directory. Network failures are retried for every request;
// 502/503/504 only for GET and HEAD.
func BuildHTTPClient(opts ...ClientOption) *http.Client {
	cfg := clientConfig{
		timeout:        30 * time.Second,
		responseHeader: 10 * time.Second,
		retries:        3,
		backoff:        2 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	base := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: cfg.responseHeader,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{
		Timeout:   cfg.timeout,
		Transport: &retryTransport{base: base, maxRetries: cfg.retries, backoff: cfg.backoff},
	}
}

type retryTransport struct {
	base       http.RoundTripper
	maxRetries int
	backoff    time.Duration
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	attempt := req
	for n := 1; ; n++ {
		resp, err := base.RoundTrip(attempt)
		if n > t.maxRetries || !shouldRetry(req, resp, err) {
			return resp, err
		}
		next, rerr := rewind(req)
		if rerr != nil {
			return resp, err
		}
		if resp != nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
		if delay := t.backoff * time.Duration(n); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-req.Context().Done():
				timer.Stop()
				return nil, req.Context().Err()
			case <-timer.C:
			}
		}
		attempt = next
	}
}

func shouldRetry(req *http.Request, resp *http.Response, err error) bool {
	if err != nil {
		return netutil.ShouldRetry(err)
	}
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return false
	}
	switch resp.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// rewind clones req with a fresh body. Requests whose body cannot be
// replayed are not retried.
func rewind(req *http.Request) (*http.Request, error) {
	next := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return next, nil
	}
	if req.GetBody == nil {
		return nil, errNoReplay
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	next.Body = body
	return next, nil
}
