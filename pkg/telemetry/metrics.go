package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the Reef runtime.
type Metrics struct {
	config MetricsConfig

	// Action metrics
	actionsExecuted *prometheus.CounterVec
	actionDuration  *prometheus.HistogramVec

	// Event metrics
	eventsDispatched *prometheus.CounterVec
	hookVetoes       *prometheus.CounterVec

	// Routing metrics
	routesResolved *prometheus.CounterVec

	// Program metrics
	programStarts   *prometheus.CounterVec
	programsRunning prometheus.Gauge

	// Component metrics
	componentsByState *prometheus.GaugeVec

	// Error metrics
	errorsByClass *prometheus.CounterVec
	errorsByCode  *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	// Create a new registry
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		// Action metrics
		actionsExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actions_executed_total",
				Help:      "Total number of lifecycle actions executed",
			},
			[]string{"kind", "status"},
		),
		actionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "action_duration_seconds",
				Help:      "Duration of lifecycle action execution in seconds",
				Buckets:   buckets,
			},
			[]string{"kind"},
		),

		// Event metrics
		eventsDispatched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_dispatched_total",
				Help:      "Total number of lifecycle events dispatched to hooks",
			},
			[]string{"type"},
		),
		hookVetoes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "hook_vetoes_total",
				Help:      "Total number of lifecycle transitions aborted by a hook",
			},
			[]string{"type"},
		),

		// Routing metrics
		routesResolved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "routes_resolved_total",
				Help:      "Total number of capability routing walks",
			},
			[]string{"status"},
		),

		// Program metrics
		programStarts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "program_starts_total",
				Help:      "Total number of component program starts",
			},
			[]string{"reason"},
		),
		programsRunning: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "programs_running",
				Help:      "Current number of running component programs",
			},
		),

		// Component metrics
		componentsByState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "components",
				Help:      "Current number of component instances by lifecycle state",
			},
			[]string{"state"},
		),

		// Error metrics
		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_code_total",
				Help:      "Total number of errors by error code",
			},
			[]string{"code"},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.actionsExecuted,
		m.actionDuration,
		m.eventsDispatched,
		m.hookVetoes,
		m.routesResolved,
		m.programStarts,
		m.programsRunning,
		m.componentsByState,
		m.errorsByClass,
		m.errorsByCode,
	)

	return m, nil
}

// Action Metrics

// RecordAction records the execution of a lifecycle action.
func (m *Metrics) RecordAction(kind, status string, duration time.Duration) {
	if m.actionsExecuted == nil {
		return
	}
	m.actionsExecuted.WithLabelValues(kind, status).Inc()
	m.actionDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// Event Metrics

// RecordEvent increments the counter for dispatched events.
func (m *Metrics) RecordEvent(eventType string) {
	if m.eventsDispatched == nil {
		return
	}
	m.eventsDispatched.WithLabelValues(eventType).Inc()
}

// RecordHookVeto records a transition aborted by a hook.
func (m *Metrics) RecordHookVeto(eventType string) {
	if m.hookVetoes == nil {
		return
	}
	m.hookVetoes.WithLabelValues(eventType).Inc()
}

// Routing Metrics

// RecordRoute records the outcome of a capability routing walk.
func (m *Metrics) RecordRoute(status string) {
	if m.routesResolved == nil {
		return
	}
	m.routesResolved.WithLabelValues(status).Inc()
}

// Program Metrics

// RecordProgramStarted increments start counters for the given reason.
func (m *Metrics) RecordProgramStarted(reason string) {
	if m.programStarts == nil {
		return
	}
	m.programStarts.WithLabelValues(reason).Inc()
	m.programsRunning.Inc()
}

// RecordProgramStopped decrements the running-programs gauge.
func (m *Metrics) RecordProgramStopped() {
	if m.programsRunning == nil {
		return
	}
	m.programsRunning.Dec()
}

// Component Metrics

// SetComponentCount sets the current count of instances in a state.
func (m *Metrics) SetComponentCount(state string, count float64) {
	if m.componentsByState == nil {
		return
	}
	m.componentsByState.WithLabelValues(state).Set(count)
}

// Error Metrics

// RecordError records an error by class and optionally by code.
func (m *Metrics) RecordError(errorClass, errorCode string) {
	if m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
	if errorCode != "" && m.errorsByCode != nil {
		m.errorsByCode.WithLabelValues(errorCode).Inc()
	}
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration is a helper to time an operation and record it.
func (t *Timer) ObserveDuration(observer prometheus.Observer) {
	observer.Observe(t.Duration().Seconds())
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// Log error but don't fail the application
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
