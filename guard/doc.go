// Package guard is the entry point of the resilience layer protecting calls
// to an unreliable upstream API.
//
// A Service composes the other packages into one execution path: each call
// runs under a per-call timeout, failures are classified, recorded against
// the operation's circuit breaker and the error history, retried with
// exponential backoff while retryable, and finally answered by a registered
// fallback when graceful degradation is enabled.
//
//	svc := guard.New(guard.DefaultConfig())
//	defer svc.Shutdown()
//
//	result, err := guard.Do(ctx, svc, "billing.fetch-invoice", func(ctx context.Context) (*Invoice, error) {
//	    return client.FetchInvoice(ctx, id)
//	})
//
// Operations must be idempotent or otherwise retry-safe: the guard may
// invoke them more than once, and a timed-out invocation is abandoned, not
// awaited, so its side effects can still land afterwards.
package guard
