package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorKind classifies a failed completion call.
type ErrorKind int

const (
	KindOther ErrorKind = iota
	KindRateLimited
	KindTimeout
	KindConnectionFailed
	KindAuthFailed
)

func (k ErrorKind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindTimeout:
		return "timeout"
	case KindConnectionFailed:
		return "connection_failed"
	case KindAuthFailed:
		return "auth_failed"
	default:
		return "other"
	}
}

// Transient reports whether another attempt may succeed.
func (k ErrorKind) Transient() bool {
	return k == KindRateLimited || k == KindTimeout || k == KindConnectionFailed
}

// Placeholder is the text shown to the user in place of a reply that could
// not be produced.
func (k ErrorKind) Placeholder() string {
	switch k {
	case KindRateLimited:
		return "I'm receiving a lot of requests right now. Please wait a moment and send your message again."
	case KindTimeout:
		return "The response took too long to arrive. Please send your message again."
	case KindConnectionFailed:
		return "I'm having trouble reaching the assistant service. Please check your connection and try again shortly."
	case KindAuthFailed:
		return "The assistant is not configured correctly right now. Please contact support."
	default:
		return "Something went wrong while preparing a response. Please try again."
	}
}

// ErrEmptyResponse is returned by providers when the API answered without text.
var ErrEmptyResponse = errors.New("completion response contained no text")

// RemoteError is a classified completion failure.
type RemoteError struct {
	Kind     ErrorKind
	Attempts int
	Err      error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("completion failed (%s) after %d attempt(s): %v", e.Kind, e.Attempts, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// classify maps err to an ErrorKind. Providers may pre-classify by returning a
// *RemoteError; otherwise generic context and network errors are recognised.
func classify(err error) ErrorKind {
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindConnectionFailed
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindConnectionFailed
	}
	return KindOther
}

// kindForStatus maps an HTTP status code returned by a completion API.
func kindForStatus(code int) (ErrorKind, bool) {
	switch code {
	case http.StatusTooManyRequests:
		return KindRateLimited, true
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindAuthFailed, true
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return KindTimeout, true
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		return KindConnectionFailed, true
	}
	return KindOther, false
}
