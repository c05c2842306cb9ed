package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// APIError represents an application-level API error with HTTP status code.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
}

// ErrEmptyChoices is returned when a completion response carries no choices.
var ErrEmptyChoices = errors.New("completion response contained no choices")

// IsRateLimited reports whether err is an API error with a rate-limit status.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests
}

// IsRequestTimeout reports whether err is an API error with a timeout status.
func IsRequestTimeout(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusRequestTimeout || apiErr.StatusCode == http.StatusGatewayTimeout
	}
	return false
}

// IsTransient reports whether err is a transient network-class failure
// worth retrying, such as connection resets or failed name resolution.
// Application-level errors (any HTTP status) never qualify; those are
// classified by status instead of retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// String fallback for untyped errors from lower layers
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection refused",
		"connection reset",
		"no such host",
		"tls handshake",
		"eof",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
