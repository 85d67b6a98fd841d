package classify

import (
	"fmt"
	"time"
)

// StatusError is a failure that carries an upstream HTTP-style status code.
// API handlers wrap transport failures in a StatusError so classification
// can use the code instead of guessing from message text.
type StatusError struct {
	Code int
	Err  error
}

// NewStatusError wraps err with an upstream status code.
func NewStatusError(code int, err error) *StatusError {
	return &StatusError{Code: code, Err: err}
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream status %d: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("upstream status %d", e.Code)
}

// Unwrap returns the wrapped failure.
func (e *StatusError) Unwrap() error {
	return e.Err
}

// CategorizeStatus classifies a bare status code. Code 0 is treated as a
// transport-level network failure.
func CategorizeStatus(code int, err error, ctx Context) CategorizedError {
	return categorizeStatus(code, err, ctx, time.Now())
}

func categorizeStatus(code int, err error, ctx Context, now time.Time) CategorizedError {
	ce := CategorizedError{
		Err:       err,
		Context:   ctx,
		Timestamp: now,
	}

	switch {
	case code == 0:
		ce.Category = CategoryNetwork
		ce.Severity = SeverityMedium
		ce.Retryable = true
		ce.SuggestedAction = "check connectivity and retry"
	case code == 401:
		ce.Category = CategoryAuthentication
		ce.Severity = SeverityCritical
		ce.SuggestedAction = "refresh or reconfigure credentials"
	case code == 403:
		ce.Category = CategoryPermission
		ce.Severity = SeverityHigh
		ce.SuggestedAction = "verify the caller has access to this resource"
	case code == 404:
		ce.Category = CategoryUnknownResource
		ce.Severity = SeverityMedium
		ce.SuggestedAction = "check that the resource identifier is correct"
	case code == 408:
		ce.Category = CategoryTimeout
		ce.Severity = SeverityMedium
		ce.Retryable = true
		ce.SuggestedAction = "retry with backoff or raise the timeout"
	case code == 429:
		ce.Category = CategoryRateLimit
		ce.Severity = SeverityMedium
		ce.Retryable = true
		ce.SuggestedAction = "reduce request rate or wait before retrying"
	case code >= 400 && code < 500:
		ce.Category = CategoryClientError
		ce.Severity = SeverityMedium
		ce.SuggestedAction = "fix the request before retrying"
	case code >= 500 && code < 600:
		ce.Category = CategoryServerError
		ce.Severity = SeverityHigh
		ce.Retryable = true
		ce.SuggestedAction = "retry; escalate if the upstream stays unhealthy"
	default:
		ce.Category = CategorySystem
		ce.Severity = SeverityMedium
		ce.SuggestedAction = "inspect the error and report if it persists"
	}
	return ce
}
