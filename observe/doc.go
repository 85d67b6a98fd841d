// Package observe carries the guard's notifications out to telemetry and
// health collaborators.
//
// The core emits five notifications: error-classified, circuit-opened,
// circuit-half-opened, circuit-closed, and operation-failed. Collaborators
// receive them through the Notifier interface; Multi fans one stream out to
// several notifiers. Built-in notifiers log through the structured Logger,
// record OpenTelemetry metrics, and attach span events to the caller's
// trace.
package observe
