package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorKind classifies a failed API call for retry decisions.
type ErrorKind int

const (
	Unknown ErrorKind = iota
	Timeout
	Unauthorized
	Conflict
	TooManyRequests
	NoConnectivity
	PayloadTooLarge
	ServerError
	Serialization
)

func (k ErrorKind) String() string {
	switch k {
	case Timeout:
		return "request timeout"
	case Unauthorized:
		return "unauthorized"
	case Conflict:
		return "conflict"
	case TooManyRequests:
		return "too many requests"
	case NoConnectivity:
		return "no connectivity"
	case PayloadTooLarge:
		return "payload too large"
	case ServerError:
		return "server error"
	case Serialization:
		return "serialization"
	default:
		return "unknown"
	}
}

// Error is a failed call against the run backend.
type Error struct {
	Kind   ErrorKind
	Status int // HTTP status when the server answered, 0 otherwise
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("remote: %s (HTTP %d)", e.Kind, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("remote: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("remote: %s", e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether retrying the same call can succeed later.
// Unauthorized counts as retryable because the token source may refresh the
// session before the next attempt.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case Timeout, Unauthorized, Conflict, TooManyRequests, NoConnectivity, ServerError:
		return true
	}
	return false
}

// errFromStatus maps a non-2xx HTTP status to the error taxonomy.
func errFromStatus(status int) *Error {
	kind := Unknown
	switch {
	case status == http.StatusRequestTimeout:
		kind = Timeout
	case status == http.StatusUnauthorized:
		kind = Unauthorized
	case status == http.StatusConflict:
		kind = Conflict
	case status == http.StatusRequestEntityTooLarge:
		kind = PayloadTooLarge
	case status == http.StatusTooManyRequests:
		kind = TooManyRequests
	case status >= 500:
		kind = ServerError
	}
	return &Error{Kind: kind, Status: status}
}

// errFromTransport maps a failed round trip (no HTTP response at all) to the
// error taxonomy.
func errFromTransport(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: Timeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: Timeout, Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return &Error{Kind: NoConnectivity, Err: err}
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &Error{Kind: NoConnectivity, Err: err}
	}
	return &Error{Kind: Unknown, Err: err}
}
