package gemini

import (
	"errors"
	"fmt"
)

// FailureKind classifies a failed model invocation. The governor's
// retry-vs-fallback decisions key off this and nothing else.
type FailureKind string

const (
	FailureRateLimited    FailureKind = "RATE_LIMITED"
	FailureQuotaExhausted FailureKind = "QUOTA_EXHAUSTED"
	FailureTransient      FailureKind = "TRANSIENT"
	FailureUnauthorized   FailureKind = "UNAUTHORIZED"
)

// APIError is a typed failure from the remote model capability.
type APIError struct {
	Kind       FailureKind
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gemini %s (status %d): %s", e.Kind, e.StatusCode, truncate(e.Message, 200))
}

// KindOf extracts the failure kind from err, or "" if err is not an APIError.
func KindOf(err error) FailureKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
