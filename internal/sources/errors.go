package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/googleapi"

	"fieldsprout/internal/db"
)

// Kind classifies why an adapter could not produce records.
type Kind string

const (
	KindNotConnected Kind = "not_connected"
	KindAuthExpired  Kind = "auth_expired"
	KindRateLimited  Kind = "rate_limited"
	KindTransient    Kind = "transient"
	KindUnsupported  Kind = "unsupported"
)

// Error is the only failure adapters and credential providers return.
type Error struct {
	Source db.SourceType
	Kind   Kind
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = string(e.Kind)
	}
	return fmt.Sprintf("%s: %s: %s", e.Source, e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// RetryLater reports whether the same call may succeed without operator
// action.
func (e *Error) RetryLater() bool {
	return e.Kind == KindRateLimited || e.Kind == KindTransient
}

func NewError(source db.SourceType, kind Kind, msg string) *Error {
	return &Error{Source: source, Kind: kind, Msg: msg}
}

func wrapErr(source db.SourceType, kind Kind, err error) *Error {
	return &Error{Source: source, Kind: kind, Err: err}
}

// KindOf extracts the Kind of err. Errors that did not come from an
// adapter are treated as transient.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindTransient
}

// AsError coerces any adapter failure into *Error tagged with source.
func AsError(source db.SourceType, err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return wrapErr(source, kindForStatus(gerr.Code), err)
	}
	return wrapErr(source, KindTransient, err)
}

// kindForStatus maps an HTTP status from a platform API to a Kind.
func kindForStatus(code int) Kind {
	switch {
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return KindAuthExpired
	case code == http.StatusTooManyRequests:
		return KindRateLimited
	default:
		return KindTransient
	}
}

func statusErr(source db.SourceType, code int, body string) *Error {
	if len(body) > 512 {
		body = body[:512]
	}
	return NewError(source, kindForStatus(code), fmt.Sprintf("http %d: %s", code, body))
}

// requestErr classifies a transport failure. A cancelled caller context
// is still transient: the window was not fetched.
func requestErr(source db.SourceType, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(source, KindTransient, "request timed out")
	}
	return wrapErr(source, KindTransient, err)
}
