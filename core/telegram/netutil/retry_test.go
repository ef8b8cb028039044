package netutil

import (
	"context"
	"errors"
	"net"
	"net/url"
	"syscall"
	"testing"
)

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("boom"), false},
		{"dial", &net.OpError{Op: "dial", Err: errors.New("refused")}, true},
		{"reset", &net.OpError{Op: "read", Err: syscall.ECONNRESET}, true},
		{"dns timeout", &net.DNSError{IsTimeout: true}, true},
		{"url wrapping dial", &url.Error{Op: "Get", URL: "x", Err: &net.OpError{Op: "dial", Err: errors.New("x")}}, true},
		{"canceled", &url.Error{Op: "Get", URL: "x", Err: context.Canceled}, false},
		{"deadline", &url.Error{Op: "Post", URL: "x", Err: context.DeadlineExceeded}, true},
		{"refused", &net.OpError{Op: "write", Err: syscall.ECONNREFUSED}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldRetry(tt.err); got != tt.want {
				t.Fatalf("ShouldRetry(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
