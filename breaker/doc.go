// Package breaker implements per-operation circuit breaking for calls to an
// unreliable upstream API.
//
// Each operation key owns one Breaker, created lazily by the Registry and
// living until the registry is shut down. A breaker cycles between closed,
// open, and half-open: failures past a threshold open it, a one-shot reset
// timer moves it to half-open, and enough trial successes close it again.
//
// The open-to-half-open transition is driven by a timer on an injectable
// clockwork.Clock, so tests advance virtual time instead of sleeping.
package breaker
