package breaker

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed means the circuit is operating normally.
	StateClosed State = iota
	// StateOpen means the circuit is fast-failing all requests.
	StateOpen
	// StateHalfOpen means the circuit is letting trial requests through.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config configures a circuit breaker.
type Config struct {
	// FailureThreshold is the number of recorded failures that opens the
	// circuit. Default: 5
	FailureThreshold int

	// SuccessThreshold is the number of half-open successes that closes the
	// circuit. Default: 2
	SuccessThreshold int

	// Timeout is the per-call deadline applied by the guard.
	// Default: 30 seconds
	Timeout time.Duration

	// ResetTimeout is how long an open circuit waits before moving to
	// half-open. Default: 30 seconds
	ResetTimeout time.Duration

	// MonitoringWindow bounds what counts as "recent" in statistics.
	// Default: 60 seconds
	MonitoringWindow time.Duration

	// OnStateChange is called on every state transition. It runs with the
	// breaker lock held and must not call back into the breaker.
	OnStateChange func(from, to State)

	// Clock schedules the reset timer. Default: the real clock.
	Clock clockwork.Clock
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 2
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	if c.MonitoringWindow <= 0 {
		c.MonitoringWindow = 60 * time.Second
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	return c
}

// Metrics contains the counters a breaker accumulates between transitions.
type Metrics struct {
	Failures    int
	Successes   int
	Requests    int
	LastFailure time.Time
	LastSuccess time.Time
}

// Breaker is a three-state circuit breaker for one operation key.
type Breaker struct {
	config Config

	mu         sync.Mutex
	state      State
	metrics    Metrics
	resetTimer clockwork.Timer
	generation int
}

// New creates a breaker in the closed state with zeroed metrics.
func New(config Config) *Breaker {
	return &Breaker{
		config: config.withDefaults(),
		state:  StateClosed,
	}
}

// Allow reports whether a call may proceed. Open circuits fast-fail;
// half-open circuits admit trial calls.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state != StateOpen
}

// RecordSuccess records a successful call outcome.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.metrics.Requests++
	b.metrics.Successes++
	b.metrics.LastSuccess = b.config.Clock.Now()

	if b.state == StateHalfOpen && b.metrics.Successes >= b.config.SuccessThreshold {
		b.close()
	}
}

// RecordFailure records a failed call outcome.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.metrics.Requests++
	b.metrics.Failures++
	b.metrics.LastFailure = b.config.Clock.Now()

	switch b.state {
	case StateClosed:
		if b.metrics.Failures >= b.config.FailureThreshold {
			b.open()
		}
	case StateHalfOpen:
		// Any failure during a trial reopens immediately.
		b.open()
	}
}

// State returns the current circuit state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Metrics returns a snapshot of the current counters.
func (b *Breaker) Metrics() Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.metrics
}

// Config returns the breaker configuration.
func (b *Breaker) Config() Config {
	return b.config
}

// Reset forces the breaker to closed, clears metrics, and cancels any
// pending reset timer. Administrative override; safe in any state.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	from := b.state
	b.stopTimer()
	b.state = StateClosed
	b.metrics = Metrics{}

	if from != StateClosed && b.config.OnStateChange != nil {
		b.config.OnStateChange(from, StateClosed)
	}
}

// Stop cancels any pending reset timer without changing state. Used during
// registry shutdown so no deferred transition fires afterwards.
func (b *Breaker) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopTimer()
}

// open transitions to open and arms the reset timer. Re-arms on every entry,
// including half-open reopens. Caller holds b.mu.
func (b *Breaker) open() {
	from := b.state
	b.state = StateOpen
	b.stopTimer()

	gen := b.generation
	b.resetTimer = b.config.Clock.AfterFunc(b.config.ResetTimeout, func() {
		b.halfOpen(gen)
	})

	if from != StateOpen && b.config.OnStateChange != nil {
		b.config.OnStateChange(from, StateOpen)
	}
}

// close transitions to closed and clears both counters. Caller holds b.mu.
func (b *Breaker) close() {
	from := b.state
	b.stopTimer()
	b.state = StateClosed
	b.metrics.Failures = 0
	b.metrics.Successes = 0

	if from != StateClosed && b.config.OnStateChange != nil {
		b.config.OnStateChange(from, StateClosed)
	}
}

// halfOpen is the reset-timer callback. The generation check discards stale
// timers from a superseded open period.
func (b *Breaker) halfOpen(gen int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if gen != b.generation || b.state != StateOpen {
		return
	}

	b.generation++
	b.resetTimer = nil
	b.state = StateHalfOpen
	b.metrics.Successes = 0

	if b.config.OnStateChange != nil {
		b.config.OnStateChange(StateOpen, StateHalfOpen)
	}
}

// stopTimer cancels the pending reset timer, if any. Caller holds b.mu.
func (b *Breaker) stopTimer() {
	if b.resetTimer != nil {
		b.resetTimer.Stop()
		b.resetTimer = nil
	}
	b.generation++
}
