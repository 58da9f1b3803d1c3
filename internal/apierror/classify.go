package apierror

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// errorEnvelope is the structured error body the gateway returns
type errorEnvelope struct {
	Error struct {
		Code       string `json:"code"`
		Message    string `json:"message"`
		Reason     string `json:"reason,omitempty"`
		RetryAfter int64  `json:"retryAfter,omitempty"`
		Usage      *Usage `json:"usage,omitempty"`
	} `json:"error"`
}

// Classify maps an HTTP status and structured error body to the taxonomy.
// Only called for status >= 400.
func Classify(status int, body []byte, header http.Header) *Error {
	var env errorEnvelope
	// A missing or malformed body degrades to code-less classification
	_ = json.Unmarshal(body, &env)

	code := Code(env.Error.Code)
	message := env.Error.Message
	if message == "" {
		message = http.StatusText(status)
	}
	retryAfter := env.Error.RetryAfter
	if retryAfter == 0 {
		retryAfter = parseRetryAfterHeader(header)
	}

	switch status {
	case http.StatusUnauthorized:
		switch code {
		case CodeSessionExpired, CodeCredentialExpired, CodeTokenExpired:
			return &Error{
				Code:        code,
				Status:      status,
				Message:     message,
				Recoverable: true,
			}
		case CodeDeviceMismatch, CodeInvalidSignature:
			return &Error{
				Code:    code,
				Status:  status,
				Message: message,
			}
		}

	case http.StatusTooManyRequests:
		if code == CodeDeviceRateLimited {
			return &Error{
				Code:       code,
				Status:     status,
				Message:    message,
				RetryAfter: retryAfter,
				Usage:      env.Error.Usage,
			}
		}
		// Account and plan quota codes collapse into one class
		return &Error{
			Code:       CodePlanQuotaExceeded,
			Status:     status,
			Message:    message,
			RetryAfter: retryAfter,
			Usage:      env.Error.Usage,
		}

	case http.StatusServiceUnavailable:
		return &Error{
			Code:       CodeServiceUnavailable,
			Status:     status,
			Message:    message,
			Reason:     env.Error.Reason,
			RetryAfter: retryAfter,
		}
	}

	// Generic HTTP error; server-side failures are caller-retryable
	return &Error{
		Code:      CodeHTTPError,
		Status:    status,
		Message:   message,
		Retryable: status >= 500,
	}
}

// parseRetryAfterHeader reads a seconds-valued Retry-After header
func parseRetryAfterHeader(header http.Header) int64 {
	if header == nil {
		return 0
	}
	v := header.Get("Retry-After")
	if v == "" {
		return 0
	}
	seconds, err := strconv.ParseInt(v, 10, 64)
	if err != nil || seconds < 0 {
		return 0
	}
	return seconds
}
