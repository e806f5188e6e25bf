// Package observability provides an extension that counts job lifecycle
// events with OpenTelemetry instruments.
//
// Per-execution spans and durations live in the middleware package
// (middleware.Tracing and middleware.Metrics).
package observability
