package history

import (
	"sync"
	"time"

	"github.com/jonwraymond/apiguard/classify"
)

// DefaultCapacity bounds the recorder when no capacity is configured.
const DefaultCapacity = 100

// Recorder is a capacity-bounded record of classified errors. Appends are
// O(1); the oldest entry is evicted first on overflow. Safe for concurrent
// use.
type Recorder struct {
	mu   sync.Mutex
	buf  []classify.CategorizedError
	next int
	size int
}

// NewRecorder creates a recorder holding at most capacity entries.
func NewRecorder(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Recorder{
		buf: make([]classify.CategorizedError, capacity),
	}
}

// Append records a classified error, evicting the oldest entry if full.
func (r *Recorder) Append(ce classify.CategorizedError) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf[r.next] = ce
	r.next = (r.next + 1) % len(r.buf)
	if r.size < len(r.buf) {
		r.size++
	}
}

// Len returns the number of recorded entries.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Capacity returns the maximum number of entries the recorder holds.
func (r *Recorder) Capacity() int {
	return len(r.buf)
}

// Recent returns up to n entries, most recent first. A negative n returns
// every entry.
func (r *Recorder) Recent(n int) []classify.CategorizedError {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n < 0 || n > r.size {
		n = r.size
	}

	out := make([]classify.CategorizedError, n)
	for i := 0; i < n; i++ {
		idx := (r.next - 1 - i + len(r.buf)) % len(r.buf)
		out[i] = r.buf[idx]
	}
	return out
}

// Since returns every entry recorded after t, most recent first.
func (r *Recorder) Since(t time.Time) []classify.CategorizedError {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]classify.CategorizedError, 0, r.size)
	for i := 0; i < r.size; i++ {
		idx := (r.next - 1 - i + len(r.buf)) % len(r.buf)
		if !r.buf[idx].Timestamp.After(t) {
			break
		}
		out = append(out, r.buf[idx])
	}
	return out
}

// Clear discards every recorded entry.
func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.next = 0
	r.size = 0
	for i := range r.buf {
		r.buf[i] = classify.CategorizedError{}
	}
}
