package guard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/jonwraymond/apiguard/breaker"
	"github.com/jonwraymond/apiguard/classify"
	"github.com/jonwraymond/apiguard/history"
	"github.com/jonwraymond/apiguard/observe"
)

// Operation is a protected unit of work. The guard may invoke it more than
// once, so it must be idempotent or retry-safe by contract.
type Operation func(ctx context.Context) (any, error)

// Fallback provides a substitute result when the operation cannot.
type Fallback func(ctx context.Context) (any, error)

// Service is the orchestrator guarding calls to an unreliable upstream API.
// It owns the breaker registry, the error history, and the fallback map;
// construct it with New and release its timers with Shutdown.
type Service struct {
	config   Config
	clock    clockwork.Clock
	notifier observe.Notifier
	logger   observe.Logger
	breakers *breaker.Registry
	history  *history.Recorder

	mu        sync.Mutex
	fallbacks map[string]Fallback
	alerts    map[string]AlertRule
	alertKeys []string

	shutdownOnce sync.Once
	down         bool
	downMu       sync.RWMutex
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier sets the notifier receiving the service's notifications.
func WithNotifier(n observe.Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithLogger sets the logger used for fallback failures and shutdown.
func WithLogger(l observe.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock injects the clock driving timeouts, backoff sleeps, and breaker
// reset timers. Tests pass a fake clock to advance virtual time.
func WithClock(c clockwork.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// New creates a Service from cfg.
func New(cfg Config, opts ...Option) *Service {
	s := &Service{
		config:    cfg.withDefaults(),
		clock:     clockwork.NewRealClock(),
		notifier:  observe.Base{},
		logger:    observe.NopLogger{},
		fallbacks: make(map[string]Fallback),
		alerts:    make(map[string]AlertRule),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.history = history.NewRecorder(s.config.MaxErrorsToTrack)
	s.breakers = breaker.NewRegistry(breaker.RegistryConfig{
		Breaker: s.config.Breaker,
		Clock:   s.clock,
		OnStateChange: func(key string, from, to breaker.State) {
			s.notifier.OnCircuitStateChange(context.Background(), key, from, to)
		},
	})
	return s
}

// ExecOption configures a single Execute call.
type ExecOption func(*execSettings)

type execSettings struct {
	fallback Fallback
	context  classify.Context
}

// WithFallback supplies a fallback for this call only, overriding any
// registered one.
func WithFallback(fb Fallback) ExecOption {
	return func(e *execSettings) {
		e.fallback = fb
	}
}

// WithContext attaches classification context to this call's errors.
func WithContext(c classify.Context) ExecOption {
	return func(e *execSettings) {
		e.context = c
	}
}

// Execute runs op under the operation key with timeout, classification,
// circuit breaking, retry, and graceful degradation.
//
// Only two outcomes leave this method: the operation's (or fallback's)
// result, or the last observed failure unchanged — except the circuit-open
// fast-fail path, which returns ErrCircuitOpen.
func (s *Service) Execute(ctx context.Context, key string, op Operation, opts ...ExecOption) (any, error) {
	if s.isDown() {
		return nil, ErrShutdown
	}

	settings := execSettings{}
	for _, opt := range opts {
		opt(&settings)
	}
	if settings.context.Operation == "" {
		settings.context.Operation = key
	}

	var br *breaker.Breaker
	if s.config.EnableCircuitBreaker {
		br = s.breakers.Get(key)
	}

	// Fast-fail path: the protected operation is never invoked while the
	// circuit is open.
	if br != nil && !br.Allow() {
		if fb := s.fallbackFor(key, settings.fallback); fb != nil {
			if v, err := fb(ctx); err == nil {
				return v, nil
			} else {
				s.logger.WithOperation(key).Warn(ctx, "fallback failed",
					observe.Field{Key: "error", Value: err.Error()})
			}
		}
		return nil, ErrCircuitOpen
	}

	budget := 1
	if s.config.EnableRetry {
		budget = s.config.Retry.MaxAttempts
	}

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= budget; attempt++ {
		attempts = attempt

		result, err := s.runWithTimeout(ctx, op)
		if err == nil {
			if br != nil {
				br.RecordSuccess()
			}
			return result, nil
		}
		lastErr = err

		ectx := settings.context
		ectx.Attempt = attempt
		ce := classify.Categorize(err, ectx)

		if br != nil {
			br.RecordFailure()
		}
		s.history.Append(ce)
		s.notifier.OnErrorClassified(ctx, key, ce)

		if attempt >= budget || !ce.Retryable {
			break
		}
		if !s.sleep(ctx, s.config.Retry.Delay(attempt)) {
			break
		}
	}

	// Attempt budget exhausted (or the failure was terminal): consult the
	// fallback, then propagate the original error if it did not answer.
	var fbResult any
	fbOK := false
	if fb := s.fallbackFor(key, settings.fallback); fb != nil {
		if v, err := fb(ctx); err == nil {
			fbResult, fbOK = v, true
		} else {
			s.logger.WithOperation(key).Warn(ctx, "fallback failed",
				observe.Field{Key: "error", Value: err.Error()})
		}
	}

	s.notifier.OnOperationFailed(ctx, observe.Failure{
		Key:      key,
		Err:      lastErr,
		Attempts: attempts,
		Context:  settings.context,
	})

	if fbOK {
		return fbResult, nil
	}
	return nil, lastErr
}

// Do runs a typed operation through svc. Methods cannot be generic, so the
// typed entry point is a function.
func Do[T any](ctx context.Context, svc *Service, key string, op func(ctx context.Context) (T, error), opts ...ExecOption) (T, error) {
	var zero T

	v, err := svc.Execute(ctx, key, func(ctx context.Context) (any, error) {
		return op(ctx)
	}, opts...)
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}

	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("guard: unexpected result type %T", v)
	}
	return t, nil
}

// RegisterFallback registers a fallback for the operation key, replacing
// any previous one. At most one fallback exists per key.
func (s *Service) RegisterFallback(key string, fb Fallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fb == nil {
		delete(s.fallbacks, key)
		return
	}
	s.fallbacks[key] = fb
}

// RemoveFallback removes the fallback registered for the operation key.
func (s *Service) RemoveFallback(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.fallbacks, key)
}

// fallbackFor returns the effective fallback for a call, or nil when
// graceful degradation is disabled.
func (s *Service) fallbackFor(key string, override Fallback) Fallback {
	if !s.config.EnableGracefulDegradation {
		return nil
	}
	if override != nil {
		return override
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fallbacks[key]
}

// ResetCircuitBreaker forces the breaker for the operation key to closed.
func (s *Service) ResetCircuitBreaker(key string) {
	s.breakers.Reset(key)
}

// ClearErrorHistory discards every recorded error.
func (s *Service) ClearErrorHistory() {
	s.history.Clear()
}

// Statistics is a point-in-time snapshot of the error history and every
// breaker, computed on demand.
type Statistics struct {
	Errors   history.Stats
	Breakers map[string]breaker.Snapshot
}

// Statistics computes the current snapshot.
func (s *Service) Statistics() Statistics {
	return Statistics{
		Errors:   s.history.Stats(s.clock.Now(), s.config.Breaker.MonitoringWindow),
		Breakers: s.breakers.Snapshot(),
	}
}

// Config returns the service configuration after defaulting.
func (s *Service) Config() Config {
	return s.config
}

// Shutdown cancels every pending breaker timer and clears the registry,
// history, fallbacks, and alerts. Idempotent; Execute afterwards returns
// ErrShutdown.
func (s *Service) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.downMu.Lock()
		s.down = true
		s.downMu.Unlock()

		s.breakers.Shutdown()
		s.history.Clear()

		s.mu.Lock()
		s.fallbacks = make(map[string]Fallback)
		s.alerts = make(map[string]AlertRule)
		s.alertKeys = nil
		s.mu.Unlock()
	})
}

func (s *Service) isDown() bool {
	s.downMu.RLock()
	defer s.downMu.RUnlock()
	return s.down
}

// sleep waits for d on the service clock, returning false if ctx was done
// first. A cancelled backoff stops the retry loop; the last observed error
// is still the one propagated.
func (s *Service) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := s.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
