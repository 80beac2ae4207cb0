package transport

import (
	"errors"
	"fmt"
)

// APIResponseError is the normalized form of THE SERVICE's JSON error
// envelope: every transport caller sees this type (or a ConnectionError)
// rather than raw HTTP status codes or ad hoc strings.
type APIResponseError struct {
	Code      string
	Reason    string
	Retryable bool
}

func (e *APIResponseError) Error() string {
	if e.Code == "" {
		return e.Reason
	}

	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

// ConnectionError wraps a transport-level failure (DNS, TLS, timeout,
// connection reset) that never reached the point of receiving a response.
// These are always retryable.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string { return fmt.Sprintf("connection error: %s", e.Err) }
func (e *ConnectionError) Unwrap() error { return e.Err }

func asConnectionError(err error, target **ConnectionError) bool {
	return errors.As(err, target)
}

func asAPIResponseError(err error, target **APIResponseError) bool {
	return errors.As(err, target)
}

func asRetryableAPIError(err error, target **retryableAPIError) bool {
	return errors.As(err, target)
}

// ErrMaxRetriesExceeded is returned when Do exhausts its retry budget
// without a terminal success or non-retryable error.
var ErrMaxRetriesExceeded = errors.New("transport: max retries exceeded")
