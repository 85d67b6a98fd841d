package guard

import (
	"context"
)

// runWithTimeout races op against the per-call deadline on the service
// clock. If the deadline fires first the call fails with ErrTimeout and the
// operation is abandoned: it keeps the (cancelled) child context as its only
// abort signal, is never awaited further, and its eventual result is
// discarded.
func (s *Service) runWithTimeout(ctx context.Context, op Operation) (any, error) {
	timeout := s.config.Breaker.Timeout
	if timeout <= 0 {
		return op(ctx)
	}

	opCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		value any
		err   error
	}
	done := make(chan outcome, 1)

	go func() {
		v, err := op(opCtx)
		done <- outcome{value: v, err: err}
	}()

	timer := s.clock.NewTimer(timeout)
	defer timer.Stop()

	select {
	case out := <-done:
		return out.value, out.err
	case <-timer.Chan():
		return nil, ErrTimeout
	}
}
