package pipeline

import (
	"context"
	"errors"
	"fmt"

	"appforge/internal/broker"
	"appforge/internal/client"
)

// FailureKind buckets a run failure into a user-facing category.
type FailureKind string

const (
	FailureNetwork           FailureKind = "network"
	FailureRateLimited       FailureKind = "rate_limited"
	FailureTimeout           FailureKind = "timeout"
	FailureCredentialMissing FailureKind = "credential_missing"
	FailureQuotaExceeded     FailureKind = "quota_exceeded"
	FailureCrypto            FailureKind = "crypto"
	FailureParse             FailureKind = "parse"
	FailureMaterialization   FailureKind = "materialization"
	FailureCanceled          FailureKind = "canceled"
	FailureUnknown           FailureKind = "unknown"
)

// Error is a classified run failure. Message is safe to show directly;
// the wrapped cause keeps the detail for logs.
type Error struct {
	Kind    FailureKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func failure(kind FailureKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// classifyCallError maps a completion failure that survived the retry
// loop into a user-facing category.
func classifyCallError(err error) *Error {
	switch {
	case errors.Is(err, context.Canceled):
		return failure(FailureCanceled, "generation canceled", err)
	case errors.Is(err, context.DeadlineExceeded):
		return failure(FailureTimeout, "the request timed out; try again in a moment", err)
	case client.IsRateLimited(err):
		return failure(FailureRateLimited, "the API is rate limiting requests; wait a minute and retry", err)
	case client.IsRequestTimeout(err):
		return failure(FailureTimeout, "the request timed out; try again in a moment", err)
	case client.IsTransient(err):
		return failure(FailureNetwork, "could not reach the API; check your connection", err)
	}
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return failure(FailureUnknown, fmt.Sprintf("the API rejected the request (status %d)", apiErr.StatusCode), err)
	}
	return failure(FailureUnknown, "generation failed", err)
}

// classifyCredentialError maps a demo-key acquisition failure.
func classifyCredentialError(err error) *Error {
	switch {
	case errors.Is(err, broker.ErrEnvelope):
		return failure(FailureCrypto, "the demo credential could not be decoded; try again later", err)
	case errors.Is(err, context.Canceled):
		return failure(FailureCanceled, "generation canceled", err)
	case client.IsTransient(err):
		return failure(FailureNetwork, "could not reach the provisioning service; check your connection", err)
	}
	return failure(FailureCredentialMissing, "no API key available; set one or try the demo again later", err)
}
