package guard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonwraymond/apiguard/breaker"
	"github.com/jonwraymond/apiguard/classify"
	"github.com/jonwraymond/apiguard/observe"
)

// captureNotifier records every notification it receives.
type captureNotifier struct {
	mu          sync.Mutex
	classified  []classify.CategorizedError
	transitions []struct {
		key      string
		from, to breaker.State
	}
	failures []observe.Failure
}

func (c *captureNotifier) OnErrorClassified(_ context.Context, key string, ce classify.CategorizedError) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.classified = append(c.classified, ce)
}

func (c *captureNotifier) OnCircuitStateChange(_ context.Context, key string, from, to breaker.State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transitions = append(c.transitions, struct {
		key      string
		from, to breaker.State
	}{key, from, to})
}

func (c *captureNotifier) OnOperationFailed(_ context.Context, f observe.Failure) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = append(c.failures, f)
}

func (c *captureNotifier) failureCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.failures)
}

// testConfig keeps retries fast enough for real-clock tests.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Retry.BaseDelay = time.Millisecond
	cfg.Retry.MaxDelay = 5 * time.Millisecond
	cfg.Retry.Jitter = 0
	return cfg
}

func TestExecute_Success(t *testing.T) {
	svc := New(testConfig())
	defer svc.Shutdown()

	v, err := svc.Execute(context.Background(), "fetch", func(ctx context.Context) (any, error) {
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if v != "ok" {
		t.Errorf("Execute() = %v, want ok", v)
	}
}

func TestExecute_RetriesThenSucceeds(t *testing.T) {
	svc := New(testConfig())
	defer svc.Shutdown()

	calls := 0
	v, err := svc.Execute(context.Background(), "fetch", func(ctx context.Context) (any, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("network unreachable")
		}
		return "recovered", nil
	})

	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if v != "recovered" {
		t.Errorf("Execute() = %v, want recovered", v)
	}
	if calls != 3 {
		t.Errorf("Operation called %d times, want 3", calls)
	}

	snap := svc.Statistics().Breakers["fetch"]
	if snap.Metrics.Failures != 2 {
		t.Errorf("Breaker failures = %d, want 2", snap.Metrics.Failures)
	}
	if snap.Metrics.Successes != 1 {
		t.Errorf("Breaker successes = %d, want 1", snap.Metrics.Successes)
	}
}

func TestExecute_NonRetryableStopsImmediately(t *testing.T) {
	svc := New(testConfig())
	defer svc.Shutdown()

	validationErr := errors.New("validation failed: missing field")
	calls := 0
	_, err := svc.Execute(context.Background(), "create", func(ctx context.Context) (any, error) {
		calls++
		return nil, validationErr
	})

	if !errors.Is(err, validationErr) {
		t.Errorf("Execute() error = %v, want the validation failure", err)
	}
	if calls != 1 {
		t.Errorf("Operation called %d times, want 1 (no retry on non-retryable)", calls)
	}
}

func TestExecute_PropagatesLastErrorUnchanged(t *testing.T) {
	svc := New(testConfig())
	defer svc.Shutdown()

	lastErr := errors.New("network down for good")
	_, err := svc.Execute(context.Background(), "fetch", func(ctx context.Context) (any, error) {
		return nil, lastErr
	})

	if err != lastErr {
		t.Errorf("Execute() error = %v, want the exact last error", err)
	}
}

func TestExecute_OperationFailedEmittedOnce(t *testing.T) {
	capture := &captureNotifier{}
	svc := New(testConfig(), WithNotifier(capture))
	defer svc.Shutdown()

	_, err := svc.Execute(context.Background(), "fetch", func(ctx context.Context) (any, error) {
		return nil, errors.New("network down")
	})
	if err == nil {
		t.Fatal("Execute() error = nil, want failure")
	}

	if got := capture.failureCount(); got != 1 {
		t.Errorf("operation-failed emitted %d times, want exactly 1", got)
	}

	capture.mu.Lock()
	f := capture.failures[0]
	capture.mu.Unlock()
	if f.Key != "fetch" {
		t.Errorf("Failure.Key = %q, want fetch", f.Key)
	}
	if f.Attempts != 3 {
		t.Errorf("Failure.Attempts = %d, want 3", f.Attempts)
	}
}

func TestExecute_ErrorsClassifiedAndRecorded(t *testing.T) {
	capture := &captureNotifier{}
	svc := New(testConfig(), WithNotifier(capture))
	defer svc.Shutdown()

	_, _ = svc.Execute(context.Background(), "fetch", func(ctx context.Context) (any, error) {
		return nil, errors.New("connection refused")
	})

	capture.mu.Lock()
	classified := len(capture.classified)
	category := capture.classified[0].Category
	capture.mu.Unlock()

	if classified != 3 {
		t.Errorf("error-classified emitted %d times, want 3", classified)
	}
	if category != classify.CategoryNetwork {
		t.Errorf("Category = %v, want network", category)
	}

	stats := svc.Statistics()
	if stats.Errors.Total != 3 {
		t.Errorf("History total = %d, want 3", stats.Errors.Total)
	}
	if stats.Errors.ByCategory["network"] != 3 {
		t.Errorf("ByCategory[network] = %d, want 3", stats.Errors.ByCategory["network"])
	}
}

func TestExecute_CircuitOpenFastFails(t *testing.T) {
	cfg := testConfig()
	cfg.EnableRetry = false
	cfg.Breaker.FailureThreshold = 1
	cfg.Breaker.ResetTimeout = time.Hour
	svc := New(cfg)
	defer svc.Shutdown()

	_, _ = svc.Execute(context.Background(), "fetch", func(ctx context.Context) (any, error) {
		return nil, errors.New("server error")
	})

	_, err := svc.Execute(context.Background(), "fetch", func(ctx context.Context) (any, error) {
		t.Error("operation must not run while the circuit is open")
		return nil, nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Execute() error = %v, want ErrCircuitOpen", err)
	}
}

func TestExecute_CircuitOpenUsesFallback(t *testing.T) {
	cfg := testConfig()
	cfg.EnableRetry = false
	cfg.Breaker.FailureThreshold = 1
	cfg.Breaker.ResetTimeout = time.Hour
	svc := New(cfg)
	defer svc.Shutdown()

	svc.RegisterFallback("fetch", func(ctx context.Context) (any, error) {
		return "cached", nil
	})

	_, _ = svc.Execute(context.Background(), "fetch", func(ctx context.Context) (any, error) {
		return nil, errors.New("server error")
	})

	v, err := svc.Execute(context.Background(), "fetch", func(ctx context.Context) (any, error) {
		t.Error("operation must not run while the circuit is open")
		return nil, nil
	})
	if err != nil {
		t.Fatalf("Execute() error = %v, want fallback result", err)
	}
	if v != "cached" {
		t.Errorf("Execute() = %v, want cached", v)
	}
}

func TestExecute_FallbackAfterExhaustion(t *testing.T) {
	svc := New(testConfig())
	defer svc.Shutdown()

	svc.RegisterFallback("fetch", func(ctx context.Context) (any, error) {
		return "degraded", nil
	})

	v, err := svc.Execute(context.Background(), "fetch", func(ctx context.Context) (any, error) {
		return nil, errors.New("network down")
	})
	if err != nil {
		t.Fatalf("Execute() error = %v, want degraded result", err)
	}
	if v != "degraded" {
		t.Errorf("Execute() = %v, want degraded", v)
	}
}

func TestExecute_FallbackFailurePropagatesOriginal(t *testing.T) {
	svc := New(testConfig())
	defer svc.Shutdown()

	original := errors.New("network down")
	svc.RegisterFallback("fetch", func(ctx context.Context) (any, error) {
		return nil, errors.New("fallback also broken")
	})

	_, err := svc.Execute(context.Background(), "fetch", func(ctx context.Context) (any, error) {
		return nil, original
	})
	if err != original {
		t.Errorf("Execute() error = %v, want the original operation error", err)
	}
}

func TestExecute_PerCallFallbackOverridesRegistered(t *testing.T) {
	svc := New(testConfig())
	defer svc.Shutdown()

	svc.RegisterFallback("fetch", func(ctx context.Context) (any, error) {
		return "registered", nil
	})

	v, err := svc.Execute(context.Background(), "fetch",
		func(ctx context.Context) (any, error) {
			return nil, errors.New("network down")
		},
		WithFallback(func(ctx context.Context) (any, error) {
			return "override", nil
		}),
	)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if v != "override" {
		t.Errorf("Execute() = %v, want override", v)
	}
}

func TestExecute_RetryDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.EnableRetry = false
	svc := New(cfg)
	defer svc.Shutdown()

	calls := 0
	_, _ = svc.Execute(context.Background(), "fetch", func(ctx context.Context) (any, error) {
		calls++
		return nil, errors.New("network down")
	})

	if calls != 1 {
		t.Errorf("Operation called %d times, want 1 with retry disabled", calls)
	}
}

func TestExecute_CircuitBreakerDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.EnableCircuitBreaker = false
	cfg.Breaker.FailureThreshold = 1
	svc := New(cfg)
	defer svc.Shutdown()

	for i := 0; i < 5; i++ {
		_, _ = svc.Execute(context.Background(), "fetch", func(ctx context.Context) (any, error) {
			return nil, errors.New("server error")
		})
	}

	// No breaker was consulted or created.
	if n := len(svc.Statistics().Breakers); n != 0 {
		t.Errorf("Breaker snapshot has %d entries, want 0 when disabled", n)
	}
}

func TestExecute_DegradationDisabledIgnoresFallback(t *testing.T) {
	cfg := testConfig()
	cfg.EnableGracefulDegradation = false
	svc := New(cfg)
	defer svc.Shutdown()

	svc.RegisterFallback("fetch", func(ctx context.Context) (any, error) {
		t.Error("fallback must not run with graceful degradation disabled")
		return "degraded", nil
	})

	original := errors.New("network down")
	_, err := svc.Execute(context.Background(), "fetch", func(ctx context.Context) (any, error) {
		return nil, original
	})
	if err != original {
		t.Errorf("Execute() error = %v, want the original error", err)
	}
}

func TestExecute_TimeoutClassified(t *testing.T) {
	cfg := testConfig()
	cfg.EnableRetry = false
	cfg.Breaker.Timeout = 10 * time.Millisecond
	svc := New(cfg)
	defer svc.Shutdown()

	block := make(chan struct{})
	defer close(block)

	_, err := svc.Execute(context.Background(), "slow", func(ctx context.Context) (any, error) {
		<-block
		return nil, nil
	})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Execute() error = %v, want ErrTimeout", err)
	}

	stats := svc.Statistics()
	if stats.Errors.ByCategory["timeout"] != 1 {
		t.Errorf("ByCategory[timeout] = %d, want 1", stats.Errors.ByCategory["timeout"])
	}
}

func TestExecute_BreakerRecoversThroughHalfOpen(t *testing.T) {
	cfg := testConfig()
	cfg.EnableRetry = false
	cfg.Breaker.FailureThreshold = 1
	cfg.Breaker.SuccessThreshold = 1
	cfg.Breaker.ResetTimeout = 10 * time.Millisecond
	capture := &captureNotifier{}
	svc := New(cfg, WithNotifier(capture))
	defer svc.Shutdown()

	_, _ = svc.Execute(context.Background(), "fetch", func(ctx context.Context) (any, error) {
		return nil, errors.New("server error")
	})

	time.Sleep(20 * time.Millisecond)

	v, err := svc.Execute(context.Background(), "fetch", func(ctx context.Context) (any, error) {
		return "back", nil
	})
	if err != nil {
		t.Fatalf("Execute() after reset timeout error = %v", err)
	}
	if v != "back" {
		t.Errorf("Execute() = %v, want back", v)
	}

	capture.mu.Lock()
	defer capture.mu.Unlock()
	want := []struct{ from, to breaker.State }{
		{breaker.StateClosed, breaker.StateOpen},
		{breaker.StateOpen, breaker.StateHalfOpen},
		{breaker.StateHalfOpen, breaker.StateClosed},
	}
	if len(capture.transitions) != len(want) {
		t.Fatalf("Got %d transitions, want %d: %v", len(capture.transitions), len(want), capture.transitions)
	}
	for i, tr := range want {
		if capture.transitions[i].from != tr.from || capture.transitions[i].to != tr.to {
			t.Errorf("Transition %d = %v -> %v, want %v -> %v",
				i, capture.transitions[i].from, capture.transitions[i].to, tr.from, tr.to)
		}
	}
}

func TestService_ResetCircuitBreaker(t *testing.T) {
	cfg := testConfig()
	cfg.EnableRetry = false
	cfg.Breaker.FailureThreshold = 1
	cfg.Breaker.ResetTimeout = time.Hour
	svc := New(cfg)
	defer svc.Shutdown()

	_, _ = svc.Execute(context.Background(), "fetch", func(ctx context.Context) (any, error) {
		return nil, errors.New("server error")
	})

	svc.ResetCircuitBreaker("fetch")

	v, err := svc.Execute(context.Background(), "fetch", func(ctx context.Context) (any, error) {
		return "ok", nil
	})
	if err != nil || v != "ok" {
		t.Errorf("Execute() after reset = %v, %v, want ok, nil", v, err)
	}
}

func TestService_ClearErrorHistory(t *testing.T) {
	svc := New(testConfig())
	defer svc.Shutdown()

	_, _ = svc.Execute(context.Background(), "fetch", func(ctx context.Context) (any, error) {
		return nil, errors.New("validation failed")
	})

	svc.ClearErrorHistory()

	if total := svc.Statistics().Errors.Total; total != 0 {
		t.Errorf("History total after clear = %d, want 0", total)
	}
}

func TestService_Shutdown(t *testing.T) {
	svc := New(testConfig())

	svc.RegisterFallback("fetch", func(ctx context.Context) (any, error) { return nil, nil })
	svc.Shutdown()
	svc.Shutdown() // idempotent

	_, err := svc.Execute(context.Background(), "fetch", func(ctx context.Context) (any, error) {
		return "ok", nil
	})
	if !errors.Is(err, ErrShutdown) {
		t.Errorf("Execute() after shutdown = %v, want ErrShutdown", err)
	}
}

func TestExecute_ContextAttachedToClassification(t *testing.T) {
	capture := &captureNotifier{}
	cfg := testConfig()
	cfg.EnableRetry = false
	svc := New(cfg, WithNotifier(capture))
	defer svc.Shutdown()

	_, _ = svc.Execute(context.Background(), "fetch",
		func(ctx context.Context) (any, error) {
			return nil, errors.New("network down")
		},
		WithContext(classify.Context{RequestID: "req-42"}),
	)

	capture.mu.Lock()
	defer capture.mu.Unlock()
	got := capture.classified[0].Context
	if got.RequestID != "req-42" {
		t.Errorf("Context.RequestID = %q, want req-42", got.RequestID)
	}
	if got.Operation != "fetch" {
		t.Errorf("Context.Operation = %q, want fetch (defaulted from key)", got.Operation)
	}
	if got.Attempt != 1 {
		t.Errorf("Context.Attempt = %d, want 1", got.Attempt)
	}
}

func TestDo_Typed(t *testing.T) {
	svc := New(testConfig())
	defer svc.Shutdown()

	n, err := Do(context.Background(), svc, "count", func(ctx context.Context) (int, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if n != 42 {
		t.Errorf("Do() = %d, want 42", n)
	}
}

func TestDo_TypedError(t *testing.T) {
	svc := New(testConfig())
	defer svc.Shutdown()

	boom := errors.New("validation failed")
	n, err := Do(context.Background(), svc, "count", func(ctx context.Context) (int, error) {
		return 0, boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("Do() error = %v, want the original failure", err)
	}
	if n != 0 {
		t.Errorf("Do() = %d, want zero value", n)
	}
}

func TestRetryConfig_DelayBounds(t *testing.T) {
	cfg := RetryConfig{
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   time.Second,
		Multiplier: 2.0,
		Jitter:     50 * time.Millisecond,
	}

	for attempt := 1; attempt <= 6; attempt++ {
		base := time.Duration(float64(cfg.BaseDelay) * pow(cfg.Multiplier, attempt-1))
		if base > cfg.MaxDelay {
			base = cfg.MaxDelay
		}
		for i := 0; i < 50; i++ {
			d := cfg.Delay(attempt)
			if d < base {
				t.Fatalf("Delay(%d) = %v, below base %v", attempt, d, base)
			}
			if d >= base+cfg.Jitter {
				t.Fatalf("Delay(%d) = %v, at or above base+jitter %v", attempt, d, base+cfg.Jitter)
			}
		}
	}
}

func TestRetryConfig_DelayNoJitter(t *testing.T) {
	cfg := RetryConfig{
		BaseDelay:  10 * time.Millisecond,
		MaxDelay:   time.Second,
		Multiplier: 2.0,
	}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 10 * time.Millisecond},
		{2, 20 * time.Millisecond},
		{3, 40 * time.Millisecond},
		{8, time.Second}, // capped at MaxDelay
	}
	for _, tt := range tests {
		if got := cfg.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func pow(base float64, exp int) float64 {
	out := 1.0
	for i := 0; i < exp; i++ {
		out *= base
	}
	return out
}
