package observe

import (
	"context"

	"github.com/jonwraymond/apiguard/breaker"
	"github.com/jonwraymond/apiguard/classify"
)

// Failure describes an operation that exhausted its attempt budget.
type Failure struct {
	// Key is the operation key the failure was recorded under.
	Key string

	// Err is the last error observed, as propagated to the caller.
	Err error

	// Attempts is how many times the operation was invoked.
	Attempts int

	// Context is the classification context attached to the attempts.
	Context classify.Context
}

// Notifier receives the guard's notifications.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: notification delivery is best-effort and must not panic.
// - Callbacks must not call back into the emitting guard service.
type Notifier interface {
	// OnErrorClassified is called each time a failure is categorized.
	OnErrorClassified(ctx context.Context, key string, ce classify.CategorizedError)

	// OnCircuitStateChange is called on every breaker transition.
	OnCircuitStateChange(ctx context.Context, key string, from, to breaker.State)

	// OnOperationFailed is called exactly once when an operation gives up.
	OnOperationFailed(ctx context.Context, f Failure)
}

// Base implements Notifier with no-op methods.
//
// Users can embed Base to implement only the callbacks they need.
type Base struct{}

func (Base) OnErrorClassified(context.Context, string, classify.CategorizedError)      {}
func (Base) OnCircuitStateChange(context.Context, string, breaker.State, breaker.State) {}
func (Base) OnOperationFailed(context.Context, Failure)                                 {}

// Multi fans out notifications to multiple notifiers.
type Multi struct {
	Notifiers []Notifier
}

func (m Multi) OnErrorClassified(ctx context.Context, key string, ce classify.CategorizedError) {
	for _, n := range m.Notifiers {
		if n != nil {
			n.OnErrorClassified(ctx, key, ce)
		}
	}
}

func (m Multi) OnCircuitStateChange(ctx context.Context, key string, from, to breaker.State) {
	for _, n := range m.Notifiers {
		if n != nil {
			n.OnCircuitStateChange(ctx, key, from, to)
		}
	}
}

func (m Multi) OnOperationFailed(ctx context.Context, f Failure) {
	for _, n := range m.Notifiers {
		if n != nil {
			n.OnOperationFailed(ctx, f)
		}
	}
}
