package guard

import (
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/jonwraymond/apiguard/breaker"
	"github.com/jonwraymond/apiguard/history"
)

// RetryConfig configures retry behavior.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including initial).
	// Default: 3
	MaxAttempts int

	// BaseDelay is the delay before the first retry.
	// Default: 100ms
	BaseDelay time.Duration

	// MaxDelay caps the exponential delay between retries, before jitter.
	// Default: 30s
	MaxDelay time.Duration

	// Multiplier is the exponential backoff base.
	// Default: 2.0
	Multiplier float64

	// Jitter is the upper bound of the uniform random addition to each
	// delay. Default: 100ms
	Jitter time.Duration
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	if c.Jitter < 0 {
		c.Jitter = 0
	}
	return c
}

// Delay computes the backoff before the retry following the given attempt,
// numbered from 1: min(BaseDelay*Multiplier^(attempt-1), MaxDelay) plus a
// uniform random jitter in [0, Jitter).
func (c RetryConfig) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := time.Duration(float64(c.BaseDelay) * math.Pow(c.Multiplier, float64(attempt-1)))
	if d > c.MaxDelay || d <= 0 {
		d = c.MaxDelay
	}

	if c.Jitter > 0 {
		// #nosec G404 -- jitter is non-cryptographic timing variance.
		d += time.Duration(rand.Int64N(int64(c.Jitter)))
	}
	return d
}

// Config configures a guard Service. The zero value disables every
// subsystem; start from DefaultConfig for the usual behavior.
type Config struct {
	// EnableRetry turns the retry loop on. Disabled, the attempt budget is 1.
	EnableRetry bool

	// EnableCircuitBreaker turns per-operation circuit breaking on.
	// Disabled, no breaker is consulted or recorded.
	EnableCircuitBreaker bool

	// EnableGracefulDegradation turns fallback invocation on. Disabled,
	// registered fallbacks are ignored.
	EnableGracefulDegradation bool

	// Retry configures the retry loop.
	Retry RetryConfig

	// Breaker configures every circuit breaker, including the per-call
	// timeout and the monitoring window used by statistics.
	Breaker breaker.Config

	// MaxErrorsToTrack bounds the error history. Default: 100
	MaxErrorsToTrack int
}

// DefaultConfig returns a Config with every subsystem enabled and default
// thresholds.
func DefaultConfig() Config {
	return Config{
		EnableRetry:               true,
		EnableCircuitBreaker:      true,
		EnableGracefulDegradation: true,
		Retry:                     RetryConfig{}.withDefaults(),
		MaxErrorsToTrack:          history.DefaultCapacity,
	}
}

func (c Config) withDefaults() Config {
	c.Retry = c.Retry.withDefaults()
	if c.Breaker.Timeout <= 0 {
		c.Breaker.Timeout = 30 * time.Second
	}
	if c.Breaker.MonitoringWindow <= 0 {
		c.Breaker.MonitoringWindow = 60 * time.Second
	}
	if c.MaxErrorsToTrack <= 0 {
		c.MaxErrorsToTrack = history.DefaultCapacity
	}
	return c
}

// fileConfig is the YAML shape of Config. Durations are millisecond
// integers; booleans are pointers so absent keys keep their defaults.
type fileConfig struct {
	EnableRetry               *bool `yaml:"enable_retry"`
	EnableCircuitBreaker      *bool `yaml:"enable_circuit_breaker"`
	EnableGracefulDegradation *bool `yaml:"enable_graceful_degradation"`
	MaxErrorsToTrack          int   `yaml:"max_errors_to_track"`

	Retry struct {
		MaxAttempts int     `yaml:"max_attempts"`
		BaseDelayMs int     `yaml:"base_delay_ms"`
		MaxDelayMs  int     `yaml:"max_delay_ms"`
		Multiplier  float64 `yaml:"multiplier"`
		JitterMs    int     `yaml:"jitter_ms"`
	} `yaml:"retry"`

	CircuitBreaker struct {
		FailureThreshold   int `yaml:"failure_threshold"`
		SuccessThreshold   int `yaml:"success_threshold"`
		TimeoutMs          int `yaml:"timeout_ms"`
		ResetTimeoutMs     int `yaml:"reset_timeout_ms"`
		MonitoringWindowMs int `yaml:"monitoring_window_ms"`
	} `yaml:"circuit_breaker"`
}

// ConfigPathEnv names the environment variable LoadConfigFromEnv consults
// for the config file path.
const ConfigPathEnv = "APIGUARD_CONFIG"

// LoadConfigFromEnv loads the file named by the APIGUARD_CONFIG environment
// variable, or returns DefaultConfig when it is unset.
func LoadConfigFromEnv() (Config, error) {
	path := os.Getenv(ConfigPathEnv)
	if path == "" {
		return DefaultConfig(), nil
	}
	return LoadConfig(path)
}

// LoadConfig reads a YAML config file on top of DefaultConfig. Keys absent
// from the file keep their defaults; unknown keys are an error.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var fc fileConfig
	if err := yaml.UnmarshalStrict(data, &fc); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if fc.EnableRetry != nil {
		cfg.EnableRetry = *fc.EnableRetry
	}
	if fc.EnableCircuitBreaker != nil {
		cfg.EnableCircuitBreaker = *fc.EnableCircuitBreaker
	}
	if fc.EnableGracefulDegradation != nil {
		cfg.EnableGracefulDegradation = *fc.EnableGracefulDegradation
	}
	if fc.MaxErrorsToTrack > 0 {
		cfg.MaxErrorsToTrack = fc.MaxErrorsToTrack
	}

	if fc.Retry.MaxAttempts > 0 {
		cfg.Retry.MaxAttempts = fc.Retry.MaxAttempts
	}
	if fc.Retry.BaseDelayMs > 0 {
		cfg.Retry.BaseDelay = time.Duration(fc.Retry.BaseDelayMs) * time.Millisecond
	}
	if fc.Retry.MaxDelayMs > 0 {
		cfg.Retry.MaxDelay = time.Duration(fc.Retry.MaxDelayMs) * time.Millisecond
	}
	if fc.Retry.Multiplier > 0 {
		cfg.Retry.Multiplier = fc.Retry.Multiplier
	}
	if fc.Retry.JitterMs > 0 {
		cfg.Retry.Jitter = time.Duration(fc.Retry.JitterMs) * time.Millisecond
	}

	if fc.CircuitBreaker.FailureThreshold > 0 {
		cfg.Breaker.FailureThreshold = fc.CircuitBreaker.FailureThreshold
	}
	if fc.CircuitBreaker.SuccessThreshold > 0 {
		cfg.Breaker.SuccessThreshold = fc.CircuitBreaker.SuccessThreshold
	}
	if fc.CircuitBreaker.TimeoutMs > 0 {
		cfg.Breaker.Timeout = time.Duration(fc.CircuitBreaker.TimeoutMs) * time.Millisecond
	}
	if fc.CircuitBreaker.ResetTimeoutMs > 0 {
		cfg.Breaker.ResetTimeout = time.Duration(fc.CircuitBreaker.ResetTimeoutMs) * time.Millisecond
	}
	if fc.CircuitBreaker.MonitoringWindowMs > 0 {
		cfg.Breaker.MonitoringWindow = time.Duration(fc.CircuitBreaker.MonitoringWindowMs) * time.Millisecond
	}

	return cfg, nil
}
