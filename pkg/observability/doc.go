// Package observability provides structured logging, Prometheus metrics,
// health probes, optional OpenTelemetry tracing, and graceful shutdown
// coordination for the rollcall service.
//
// The logger emits JSON via logrus and supports field chaining:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("email", email).Info("whitelist entry created")
//
// Metrics are registered against a dedicated prometheus.Registry and served
// on the health port alongside /healthz and /readyz.
package observability
