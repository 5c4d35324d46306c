package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
)

// Failure classes. Every error returned by Client wraps exactly one of them.
var (
	// ErrOffline means the remote could not be reached at all.
	ErrOffline = errors.New("offline")
	// ErrTransient means a single call failed (timeout, 5xx, throttling) and may be retried.
	ErrTransient = errors.New("transient")
	// ErrRejected means the remote refused the request as invalid.
	ErrRejected = errors.New("rejected")
	// ErrFatal means the credentials were refused; nothing else should be attempted.
	ErrFatal = errors.New("fatal")
)

// Kind is the failure class of an error.
type Kind int

const (
	KindNone Kind = iota
	KindOffline
	KindTransient
	KindRejected
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindOffline:
		return "offline"
	case KindTransient:
		return "transient"
	case KindRejected:
		return "rejected"
	case KindFatal:
		return "fatal"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Classify maps err onto a failure class. Unknown errors count as transient.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrFatal):
		return KindFatal
	case errors.Is(err, ErrRejected):
		return KindRejected
	case errors.Is(err, ErrOffline):
		return KindOffline
	default:
		return KindTransient
	}
}

// StatusError is a non-2xx answer from the remote.
type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s: http %d: %s", e.Op, e.Code, e.Body)
	}
	return fmt.Sprintf("%s: http %d", e.Op, e.Code)
}

// Unwrap exposes the failure class implied by the status code.
func (e *StatusError) Unwrap() error {
	return statusClass(e.Code)
}

func statusClass(code int) error {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrFatal
	case code == http.StatusRequestTimeout || code == http.StatusTooEarly || code == http.StatusTooManyRequests:
		return ErrTransient
	case code >= 500:
		return ErrTransient
	case code >= 400:
		return ErrRejected
	default:
		return ErrTransient
	}
}

// transportError wraps a failure that happened before any HTTP status arrived.
func transportError(op string, err error) error {
	class := ErrTransient
	var dnsErr *net.DNSError
	var opErr *net.OpError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
	case errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ENETUNREACH),
		errors.Is(err, syscall.EHOSTUNREACH),
		errors.As(err, &dnsErr):
		class = ErrOffline
	case errors.As(err, &opErr) && opErr.Op == "dial":
		class = ErrOffline
	}
	return fmt.Errorf("%s: %w: %w", op, class, err)
}
