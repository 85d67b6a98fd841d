// Package history keeps a bounded, time-ordered record of classified errors
// and computes statistics over it on demand.
//
// The record is capacity-bounded: once full, the oldest entry is evicted for
// each new one. Nothing is cached incrementally; statistics are always
// computed from the entries present at query time.
package history
