package guard

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for guarded execution.
var (
	// ErrCircuitOpen is returned when the circuit breaker fast-fails a call.
	ErrCircuitOpen = errors.New("guard: circuit breaker is open")

	// ErrTimeout is returned when an operation exceeds its per-call deadline.
	// It matches errors.Is against context.DeadlineExceeded so classification
	// treats it as a timeout.
	ErrTimeout = fmt.Errorf("guard: operation timed out: %w", context.DeadlineExceeded)

	// ErrShutdown is returned when the service has been shut down.
	ErrShutdown = errors.New("guard: service is shut down")
)
