// Package classify maps raw failures from an unreliable upstream API to a
// category, severity, and retryability verdict that the rest of the guard
// uses for policy decisions.
//
// Classification is deterministic and side-effect-free: the same error
// message and status code always produce the same CategorizedError. Rules
// are evaluated in priority order and the first match wins; anything
// unrecognized falls through to the system default.
package classify
