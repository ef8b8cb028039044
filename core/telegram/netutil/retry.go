// Package netutil classifies network errors shared by the Bot API client
// and the directory client.
package netutil

import (
	"context"
	"errors"
	"net"
	"syscall"
)

// ShouldRetry reports whether err is transient: a timeout, a failed dial or
// a connection the peer reset or refused. Cancellation never is.
func ShouldRetry(err error) bool {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.ECONNREFUSED):
		return true
	}

	// url.Error and net.OpError both unwrap, so errors.As reaches the
	// innermost match.
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
