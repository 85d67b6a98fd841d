package classify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Context carries structured metadata about where a failure occurred.
// The fixed fields cover the common cases; Extra holds anything else.
type Context struct {
	Operation string
	Attempt   int
	RequestID string
	Endpoint  string
	Extra     map[string]string
}

// WithExtra returns a copy of the context with an extra key set.
func (c Context) WithExtra(key, value string) Context {
	extra := make(map[string]string, len(c.Extra)+1)
	for k, v := range c.Extra {
		extra[k] = v
	}
	extra[key] = value
	c.Extra = extra
	return c
}

// CategorizedError is a failure annotated with classification metadata.
// It is immutable once produced by Categorize.
type CategorizedError struct {
	Err             error
	Category        Category
	Severity        Severity
	Retryable       bool
	SuggestedAction string
	Context         Context
	Timestamp       time.Time
}

// Error implements the error interface.
func (e CategorizedError) Error() string {
	return fmt.Sprintf("%s: %v", e.Category, e.Err)
}

// Unwrap returns the original failure.
func (e CategorizedError) Unwrap() error {
	return e.Err
}

// rule is one entry in the priority-ordered classification table.
type rule struct {
	substrings      []string
	category        Category
	severity        Severity
	retryable       bool
	suggestedAction string
}

func (r rule) matches(msg string) bool {
	for _, s := range r.substrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// rules is evaluated top to bottom; the first match wins. Specific upstream
// phrases come before the generic substring matches.
var rules = []rule{
	{[]string{"permission denied"}, CategoryPermission, SeverityHigh, false,
		"verify the caller has access to this resource"},
	{[]string{"unknown resource", "not found"}, CategoryUnknownResource, SeverityMedium, false,
		"check that the resource identifier is correct"},
	{[]string{"rate limit", "too many requests"}, CategoryRateLimit, SeverityMedium, true,
		"reduce request rate or wait before retrying"},
	{[]string{"unauthorized", "authentication"}, CategoryAuthentication, SeverityCritical, false,
		"refresh or reconfigure credentials"},
	{[]string{"forbidden"}, CategoryPermission, SeverityHigh, false,
		"verify the caller has access to this resource"},
	{[]string{"network", "connection"}, CategoryNetwork, SeverityMedium, true,
		"check connectivity and retry"},
	{[]string{"server error", "internal error"}, CategoryServerError, SeverityHigh, true,
		"retry; escalate if the upstream stays unhealthy"},
	{[]string{"invalid", "validation"}, CategoryValidation, SeverityMedium, false,
		"fix the request payload before retrying"},
	{[]string{"timeout", "timed out", "deadline"}, CategoryTimeout, SeverityMedium, true,
		"retry with backoff or raise the timeout"},
}

// Categorize maps a raw failure to a CategorizedError. It never panics and
// never returns an error itself; unrecognized failures get the system
// default classification.
func Categorize(err error, ctx Context) CategorizedError {
	ce := CategorizedError{
		Err:             err,
		Category:        CategorySystem,
		Severity:        SeverityMedium,
		Retryable:       false,
		SuggestedAction: "inspect the error and report if it persists",
		Context:         ctx,
		Timestamp:       time.Now(),
	}
	if err == nil {
		return ce
	}

	// Deadline expirations are timeouts regardless of message text.
	if errors.Is(err, context.DeadlineExceeded) {
		ce.Category = CategoryTimeout
		ce.Severity = SeverityMedium
		ce.Retryable = true
		ce.SuggestedAction = "retry with backoff or raise the timeout"
		return ce
	}

	// Status-carrying errors classify by code before message text.
	var se *StatusError
	if errors.As(err, &se) {
		return categorizeStatus(se.Code, err, ctx, ce.Timestamp)
	}

	msg := strings.ToLower(err.Error())
	for _, r := range rules {
		if r.matches(msg) {
			ce.Category = r.category
			ce.Severity = r.severity
			ce.Retryable = r.retryable
			ce.SuggestedAction = r.suggestedAction
			return ce
		}
	}
	return ce
}
