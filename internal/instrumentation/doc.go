// Package instrumentation provides OpenTelemetry instrumentation for the
// mailpilot server.
//
// It covers three concerns:
//   - Metrics: counters and histograms for HTTP traffic, client sessions,
//     Gmail gateway calls (including retries), tool invocations, summary
//     digests, and webhook deliveries. Metrics export via Prometheus
//     (default), OTLP, or stdout.
//   - Tracing: spans for tool invocations (tool.<name>) and Gmail gateway
//     operations (gmail.<operation>), exported via OTLP or stdout with
//     parent-based ratio sampling.
//   - Audit: a structured audit trail of every tool invocation, with
//     anonymized mailbox-owner identity by default and opt-in PII for
//     compliance setups.
//
// Configuration comes from environment variables (OTEL_SERVICE_NAME,
// METRICS_EXPORTER, TRACING_EXPORTER, OTEL_EXPORTER_OTLP_ENDPOINT, ...);
// see DefaultConfig. Instrumentation can be disabled entirely with
// INSTRUMENTATION_ENABLED=false, in which case all recorders become no-ops.
package instrumentation
