package export

import (
	"errors"
	"fmt"
)

// ErrorKind classifies export failures.
type ErrorKind string

const (
	// KindUpstreamTimeout means the page fetch exceeded the configured timeout.
	KindUpstreamTimeout ErrorKind = "upstream_timeout"

	// KindUpstreamError means the service answered with a non-2xx status or
	// the request failed at the transport level.
	KindUpstreamError ErrorKind = "upstream_error"

	// KindMalformedResponse means the body was not valid JSON or lacked the
	// rows field.
	KindMalformedResponse ErrorKind = "malformed_response"

	// KindPartialResponse means the service flagged the data as incomplete.
	// The data must not be consumed as final; retrying later is the
	// caller's call.
	KindPartialResponse ErrorKind = "partial_response"
)

// Error is an export failure with its classification.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("export %s (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("export %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("export %s: %s", e.Kind, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err is an upstream timeout.
func IsTimeout(err error) bool {
	return kindOf(err) == KindUpstreamTimeout
}

// IsUpstream reports whether err is a non-2xx or transport failure.
func IsUpstream(err error) bool {
	return kindOf(err) == KindUpstreamError
}

// IsMalformed reports whether err is a malformed response.
func IsMalformed(err error) bool {
	return kindOf(err) == KindMalformedResponse
}

// IsPartial reports whether err signals incomplete data.
func IsPartial(err error) bool {
	return kindOf(err) == KindPartialResponse
}

// Retryable reports whether retrying the same call can plausibly succeed.
// Partial responses are not retryable here: re-requesting later is the
// caller's decision, typically after a delay. Malformed responses and
// upstream 4xx are deterministic failures.
func Retryable(err error) bool {
	var ee *Error
	if !errors.As(err, &ee) {
		return false
	}
	switch ee.Kind {
	case KindUpstreamTimeout:
		return true
	case KindUpstreamError:
		// 4xx will fail again; 5xx and transport errors may recover.
		return ee.StatusCode == 0 || ee.StatusCode >= 500
	default:
		return false
	}
}

func kindOf(err error) ErrorKind {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return ""
}
