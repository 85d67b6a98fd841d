package breaker

import (
	"sync"

	"github.com/jonboulle/clockwork"
)

// RegistryConfig configures a breaker registry.
type RegistryConfig struct {
	// Breaker is the configuration applied to every breaker the registry
	// creates.
	Breaker Config

	// OnStateChange is called with the operation key on every transition of
	// any breaker owned by the registry.
	OnStateChange func(key string, from, to State)

	// Clock is propagated to every breaker. Default: the real clock.
	Clock clockwork.Clock
}

// Registry owns one circuit breaker per operation key, created on first
// reference and living until Shutdown.
type Registry struct {
	config RegistryConfig

	mu       sync.RWMutex
	breakers map[string]*Breaker
	down     bool
}

// Snapshot is a point-in-time view of one breaker.
type Snapshot struct {
	State   State
	Metrics Metrics
}

// NewRegistry creates an empty registry.
func NewRegistry(config RegistryConfig) *Registry {
	if config.Clock == nil {
		config.Clock = clockwork.NewRealClock()
	}
	return &Registry{
		config:   config,
		breakers: make(map[string]*Breaker),
	}
}

// Get returns the breaker for key, creating it on first reference.
// Returns nil after Shutdown.
func (r *Registry) Get(key string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[key]
	down := r.down
	r.mu.RUnlock()

	if ok || down {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double check
	if b, ok := r.breakers[key]; ok {
		return b
	}
	if r.down {
		return nil
	}

	cfg := r.config.Breaker
	cfg.Clock = r.config.Clock
	if r.config.OnStateChange != nil {
		onChange := r.config.OnStateChange
		cfg.OnStateChange = func(from, to State) {
			onChange(key, from, to)
		}
	}

	b = New(cfg)
	r.breakers[key] = b
	return b
}

// Lookup returns the breaker for key without creating one.
func (r *Registry) Lookup(key string) (*Breaker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.breakers[key]
	return b, ok
}

// Reset forces the breaker for key to closed. No-op for unknown keys.
func (r *Registry) Reset(key string) {
	if b, ok := r.Lookup(key); ok {
		b.Reset()
	}
}

// ResetAll forces every breaker to closed.
func (r *Registry) ResetAll() {
	r.mu.RLock()
	breakers := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		breakers = append(breakers, b)
	}
	r.mu.RUnlock()

	for _, b := range breakers {
		b.Reset()
	}
}

// Snapshot returns the current state and metrics of every breaker.
func (r *Registry) Snapshot() map[string]Snapshot {
	r.mu.RLock()
	breakers := make(map[string]*Breaker, len(r.breakers))
	for k, b := range r.breakers {
		breakers[k] = b
	}
	r.mu.RUnlock()

	snap := make(map[string]Snapshot, len(breakers))
	for k, b := range breakers {
		snap[k] = Snapshot{State: b.State(), Metrics: b.Metrics()}
	}
	return snap
}

// Shutdown stops every pending reset timer and clears the registry.
// Idempotent; subsequent Get calls return nil.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.down {
		return
	}
	r.down = true

	for _, b := range r.breakers {
		b.Stop()
	}
	r.breakers = make(map[string]*Breaker)
}
