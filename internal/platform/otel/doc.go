// Package otel provides opt-in OpenTelemetry distributed tracing for the
// narrative engine's turn pipeline.
//
// Tracing is controlled by two environment variables:
//
//   - NARRATIVE_OTEL_ENDPOINT — OTLP HTTP endpoint (e.g. http://jaeger:4318).
//     When empty, tracing is disabled and Setup returns a no-op.
//   - NARRATIVE_OTEL_ENABLED — set to "false" to explicitly disable
//     tracing even when an endpoint is configured.
//
// Call [Setup] once at process start and defer the returned shutdown to
// flush pending spans on exit.
package otel
