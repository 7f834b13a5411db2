package llm

import (
	"errors"
	"fmt"
	"net/http"
)

// ConfigurationError means no usable credential or backend was configured
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "inference not configured: " + e.Reason
}

// AuthError means the upstream rejected the credential (401/403)
type AuthError struct {
	Status int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("upstream rejected credential (status %d)", e.Status)
}

// QuotaReason distinguishes an exhausted balance from rate limiting
type QuotaReason string

const (
	QuotaBalance QuotaReason = "balance"
	QuotaRate    QuotaReason = "rate"
)

// QuotaError means the account is out of balance (402) or rate limited (429)
type QuotaError struct {
	Reason QuotaReason
}

func (e *QuotaError) Error() string {
	if e.Reason == QuotaBalance {
		return "upstream account balance exhausted"
	}
	return "upstream rate limit exceeded"
}

// TransportError means the request never produced an HTTP response
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "failed to reach inference service: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// UpstreamError is any other non-2xx answer, carrying the upstream message verbatim
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error (status %d): %s", e.Status, e.Message)
}

// classifyStatus maps a non-2xx status onto the error taxonomy
func classifyStatus(status int, message string) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &AuthError{Status: status}
	case http.StatusPaymentRequired:
		return &QuotaError{Reason: QuotaBalance}
	case http.StatusTooManyRequests:
		return &QuotaError{Reason: QuotaRate}
	}
	return &UpstreamError{Status: status, Message: message}
}

// Kind names an error for metrics labels
func Kind(err error) string {
	var (
		cfgErr       *ConfigurationError
		authErr      *AuthError
		quotaErr     *QuotaError
		transportErr *TransportError
		upstreamErr  *UpstreamError
	)
	switch {
	case err == nil:
		return "none"
	case errors.As(err, &cfgErr):
		return "configuration"
	case errors.As(err, &authErr):
		return "auth"
	case errors.As(err, &quotaErr):
		return "quota_" + string(quotaErr.Reason)
	case errors.As(err, &transportErr):
		return "transport"
	case errors.As(err, &upstreamErr):
		return "upstream"
	}
	return "other"
}
