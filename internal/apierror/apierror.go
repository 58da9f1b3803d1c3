// Package apierror defines the typed error taxonomy for gateway calls and
// the classifier that maps transport responses onto it. Classification
// happens exactly once, at the transport boundary; every other layer only
// inspects the resulting *Error.
package apierror

import (
	"errors"
	"fmt"
)

// Code identifies the error class
type Code string

const (
	// Authentication, recoverable by credential refresh
	CodeSessionExpired    Code = "session_expired"
	CodeCredentialExpired Code = "credential_expired"
	CodeTokenExpired      Code = "token_expired"

	// Authentication, unrecoverable security failures
	CodeDeviceMismatch   Code = "device_mismatch"
	CodeInvalidSignature Code = "invalid_signature"

	// Rate limiting and quota
	CodePlanQuotaExceeded Code = "plan_quota_exceeded"
	CodeDeviceRateLimited Code = "device_rate_limited"

	// Availability
	CodeServiceUnavailable Code = "service_unavailable"

	// Everything else
	CodeHTTPError            Code = "http_error"
	CodeInvalidConfiguration Code = "invalid_configuration"
	CodeInvalidResponse      Code = "invalid_response"
	CodeDecodingError        Code = "decoding_error"
	CodeNetworkError         Code = "network_error"
)

// Usage carries quota counters attached to rate-limit errors
type Usage struct {
	Used   int64  `json:"used"`
	Limit  int64  `json:"limit"`
	Period string `json:"period,omitempty"`
	Tier   string `json:"tier,omitempty"`
}

// Error is a classified gateway error. Recoverable means a credential and
// session refresh may fix it; Retryable means the caller may reasonably try
// again. Rate-limit and availability errors carry RetryAfter in seconds.
type Error struct {
	Code        Code
	Status      int
	Message     string
	Reason      string
	Recoverable bool
	Retryable   bool
	RetryAfter  int64
	Usage       *Usage
	Err         error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s (HTTP %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any
func (e *Error) Unwrap() error {
	return e.Err
}

// IsUnrecoverable reports whether this is a security failure that refresh
// can never fix. These must not be retried in any state.
func (e *Error) IsUnrecoverable() bool {
	return e.Code == CodeDeviceMismatch || e.Code == CodeInvalidSignature
}

// As extracts a classified error from an error chain
func As(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// NewNetworkError wraps a transport failure. Never retried by the
// orchestrator.
func NewNetworkError(err error) *Error {
	return &Error{
		Code:    CodeNetworkError,
		Message: err.Error(),
		Err:     err,
	}
}

// NewDecodingError wraps a malformed payload or response
func NewDecodingError(msg string, err error) *Error {
	return &Error{
		Code:    CodeDecodingError,
		Message: msg,
		Err:     err,
	}
}

// NewInvalidConfiguration marks a fatal caller-side configuration error
func NewInvalidConfiguration(msg string, err error) *Error {
	return &Error{
		Code:    CodeInvalidConfiguration,
		Message: msg,
		Err:     err,
	}
}

// NewInvalidResponse marks a response that parsed but is semantically unusable
func NewInvalidResponse(msg string) *Error {
	return &Error{
		Code:    CodeInvalidResponse,
		Message: msg,
	}
}
