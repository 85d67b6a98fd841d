package classify

// Category identifies the kind of failure observed from the upstream API.
type Category int

const (
	// CategorySystem is the default catch-all for unrecognized failures.
	CategorySystem Category = iota
	// CategoryNetwork covers connection-level failures.
	CategoryNetwork
	// CategoryAuthentication covers missing or invalid credentials.
	CategoryAuthentication
	// CategoryPermission covers authorization failures.
	CategoryPermission
	// CategoryRateLimit covers upstream throttling.
	CategoryRateLimit
	// CategoryValidation covers rejected request payloads.
	CategoryValidation
	// CategoryUnknownResource covers references to missing resources.
	CategoryUnknownResource
	// CategoryServerError covers upstream 5xx-class failures.
	CategoryServerError
	// CategoryClientError covers other 4xx-class failures.
	CategoryClientError
	// CategoryTimeout covers deadline expirations.
	CategoryTimeout
)

// String returns the string representation of the category.
func (c Category) String() string {
	switch c {
	case CategorySystem:
		return "system"
	case CategoryNetwork:
		return "network"
	case CategoryAuthentication:
		return "authentication"
	case CategoryPermission:
		return "permission"
	case CategoryRateLimit:
		return "rate_limit"
	case CategoryValidation:
		return "validation"
	case CategoryUnknownResource:
		return "unknown_resource"
	case CategoryServerError:
		return "server_error"
	case CategoryClientError:
		return "client_error"
	case CategoryTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Severity ranks how serious a classified failure is.
type Severity int

const (
	// SeverityLow indicates a routine, expected failure.
	SeverityLow Severity = iota
	// SeverityMedium indicates a failure worth monitoring.
	SeverityMedium
	// SeverityHigh indicates a failure that likely needs attention.
	SeverityHigh
	// SeverityCritical indicates a failure that blocks all progress.
	SeverityCritical
)

// String returns the string representation of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}
