package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// TransportError wraps a network-level or server-side failure of the
// upstream call. Timeouts, rate limits and 5xx responses are retryable;
// 4xx client errors are not.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s failed with status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Retryable reports whether retrying the same request can succeed.
func (e *TransportError) Retryable() bool {
	if e.StatusCode == 429 || e.StatusCode >= 500 {
		return true
	}
	if e.StatusCode > 0 {
		return false
	}
	// No status: a network-level failure or timeout.
	return true
}

// AuthenticationError is a credential failure. Never retryable.
type AuthenticationError struct {
	Op  string
	Err error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("%s authentication failed: %v", e.Op, e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// ResponseFormatError means the reply could not be turned into any
// valid action. The request failed but the conversation continues.
type ResponseFormatError struct {
	Reason string
}

func (e *ResponseFormatError) Error() string {
	return fmt.Sprintf("response could not be parsed: %s", e.Reason)
}

// ComplexityLimitError means the request would exceed the advisory
// complexity ceiling without an explicit user override. It is surfaced
// as guidance, not as a failure.
type ComplexityLimitError struct {
	Message string
}

func (e *ComplexityLimitError) Error() string { return e.Message }

// ClassifyTransportError converts a raw provider error into the
// taxonomy above. statusCode is 0 when the failure never reached the
// server.
func ClassifyTransportError(op string, statusCode int, err error) error {
	if statusCode == 401 || statusCode == 403 {
		return &AuthenticationError{Op: op, Err: err}
	}
	return &TransportError{Op: op, StatusCode: statusCode, Err: err}
}

// IsRetryable reports whether err may succeed on retry: network
// failures, timeouts, rate limiting and server errors qualify;
// authentication and malformed-request failures never do.
func IsRetryable(err error) bool {
	var authErr *AuthenticationError
	if errors.As(err, &authErr) {
		return false
	}
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return transportErr.Retryable()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return false
}
