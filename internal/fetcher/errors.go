package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	ErrEmptyIdentifier  = errors.New("empty product identifier")
	ErrMalformedPayload = errors.New("malformed product payload")
	ErrEmptyValue       = errors.New("product payload has no value")
)

// StatusError reports a non-200 response from the detail API.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d", e.Code)
}

// TimeoutError indicates the request did not complete within its timeout.
type TimeoutError struct {
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Errorf("timeout: %w", e.Err).Error()
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// ConnectionError indicates a network failure before a response arrived.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Errorf("connection: %w", e.Err).Error()
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether a failed fetch is worth another attempt.
// Timeouts, connection failures, throttling and server errors are transient;
// a malformed payload or a 404 will not change on retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var timeout *TimeoutError
	if errors.As(err, &timeout) {
		return true
	}
	var conn *ConnectionError
	if errors.As(err, &conn) {
		return true
	}
	var status *StatusError
	if errors.As(err, &status) {
		return status.Code == http.StatusTooManyRequests || status.Code >= 500
	}
	return false
}

// ErrorLabel maps a fetch error to a metric label.
func ErrorLabel(err error) string {
	if err == nil {
		return "success"
	}
	var timeout *TimeoutError
	if errors.As(err, &timeout) {
		return "timeout"
	}
	var conn *ConnectionError
	if errors.As(err, &conn) {
		return "connection"
	}
	var status *StatusError
	if errors.As(err, &status) {
		switch {
		case status.Code == http.StatusNotFound:
			return "not_found"
		case status.Code == http.StatusForbidden:
			return "forbidden"
		case status.Code == http.StatusTooManyRequests:
			return "rate_limited"
		case status.Code >= 500:
			return "server_error"
		default:
			return "bad_status"
		}
	}
	switch {
	case errors.Is(err, ErrMalformedPayload):
		return "malformed"
	case errors.Is(err, ErrEmptyValue):
		return "empty_value"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}
	return "other"
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TimeoutError{Err: err}
	}
	return &ConnectionError{Err: err}
}
