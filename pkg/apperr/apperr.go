// Package apperr classifies bridge failures into a closed set of kinds and
// defines which of them are worth retrying.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// Kind is a failure category.
type Kind string

const (
	KindChannelPrivate  Kind = "CHANNEL_PRIVATE"
	KindChannelNotFound Kind = "CHANNEL_NOT_FOUND"
	KindAccessDenied    Kind = "ACCESS_DENIED"
	KindNetwork         Kind = "NETWORK_ERROR"
	KindUnauthorized    Kind = "UNAUTHORIZED"
	KindUnknown         Kind = "UNKNOWN_ERROR"
)

// Kinds lists every kind.
var Kinds = []Kind{
	KindChannelPrivate,
	KindChannelNotFound,
	KindAccessDenied,
	KindNetwork,
	KindUnauthorized,
	KindUnknown,
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// IsRecoverable reports whether a failure of this kind may succeed on retry.
func IsRecoverable(k Kind) bool {
	return k == KindNetwork || k == KindUnknown
}

// Error is a classified failure.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// New returns a classified error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap classifies err under kind.
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Classify maps an arbitrary error to a kind. Classified errors keep their
// kind; deadlines and network failures become NETWORK_ERROR; anything else
// is UNKNOWN_ERROR.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}

	var ae *Error
	if errors.As(err, &ae) && ae.Kind.Valid() {
		return ae.Kind
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindNetwork
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindNetwork
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindNetwork
	}

	return KindUnknown
}

// FromStatus maps a Telegram Bot API error code to a kind.
func FromStatus(code int) Kind {
	switch code {
	case 400, 404:
		return KindChannelNotFound
	case 401:
		return KindUnauthorized
	case 403:
		return KindChannelPrivate
	default:
		return KindUnknown
	}
}

// RetryPolicy bounds retries of recoverable failures with a linear backoff.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// DefaultRetryPolicy retries three times after 2s, 4s and 6s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, BaseDelay: 2 * time.Second}
}

// ShouldRetry reports whether a failure of kind after retryCount retries
// warrants another attempt.
func (p RetryPolicy) ShouldRetry(kind Kind, retryCount int) bool {
	return IsRecoverable(kind) && retryCount < p.MaxRetries
}

// Delay returns the wait before retry number retryCount+1.
func (p RetryPolicy) Delay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	return p.BaseDelay * time.Duration(retryCount+1)
}
