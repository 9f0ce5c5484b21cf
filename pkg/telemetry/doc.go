// Package telemetry provides observability instrumentation for the Reef
// runtime.
//
// The package integrates structured logging (zerolog), distributed
// tracing (OpenTelemetry), and metrics (Prometheus) into a unified
// system for monitoring component lifecycle operations.
//
// # Usage
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceName = "reef"
//	cfg.ServiceVersion = "1.0.0"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	// Start metrics server
//	if err := tel.StartMetricsServer(); err != nil {
//	    log.Fatal(err)
//	}
//
// Add telemetry to context:
//
//	ctx = tel.WithContext(ctx)
//
// # Structured Logging
//
// The logger provides subsystem-scoped logging with automatic context
// propagation:
//
//	logger := tel.Logger.NewComponentLogger("lifecycle")
//	logger = logger.WithMoniker(moniker).WithAction(model.ActionResolve)
//	logger.Info("resolving component")
//	logger.WithError(err).Error("resolution failed")
//
// Log levels: trace, debug, info, warn, error, fatal
//
// # Distributed Tracing
//
// Tracing provides visibility into lifecycle action flow:
//
//	ctx, span := tel.Tracer.StartActionSpan(ctx, moniker.String(), "resolve")
//	defer span.End()
//
// Exporters: otlp (gRPC), stdout (debugging), none.
//
// # Metrics
//
// Prometheus metrics cover lifecycle actions (count and duration by
// kind), dispatched events, hook vetoes, capability routes, program
// starts by reason, component counts by state, and errors by class and
// code. The MetricsHook subscribes to the lifecycle event stream and
// records event-derived metrics automatically:
//
//	hook := telemetry.NewMetricsHook(tel.Metrics)
//	hook.Attach(hooks)
package telemetry
