package history

import (
	"time"
)

// Stats summarizes the recorded errors at a point in time.
type Stats struct {
	// Total is the number of entries currently recorded.
	Total int

	// Recent is the number of entries newer than the monitoring window.
	Recent int

	// ByCategory counts entries per classification category.
	ByCategory map[string]int

	// BySeverity counts entries per severity.
	BySeverity map[string]int

	// Retryable and NonRetryable split entries by retry verdict.
	Retryable    int
	NonRetryable int
}

// Stats computes statistics over the current entries. Entries with a
// timestamp after now minus window count as recent.
func (r *Recorder) Stats(now time.Time, window time.Duration) Stats {
	entries := r.Recent(-1)

	s := Stats{
		Total:      len(entries),
		ByCategory: make(map[string]int),
		BySeverity: make(map[string]int),
	}

	cutoff := now.Add(-window)
	for _, ce := range entries {
		s.ByCategory[ce.Category.String()]++
		s.BySeverity[ce.Severity.String()]++
		if ce.Retryable {
			s.Retryable++
		} else {
			s.NonRetryable++
		}
		if window > 0 && ce.Timestamp.After(cutoff) {
			s.Recent++
		}
	}
	return s
}
