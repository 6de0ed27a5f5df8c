package telemetry

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics provides Prometheus metrics for workflow runs. It implements the
// processor pipeline observer.
type Metrics struct {
	config MetricsConfig

	// Run metrics
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	phaseDuration *prometheus.HistogramVec

	// Loader metrics
	loaderCalls    *prometheus.CounterVec
	loaderDuration *prometheus.HistogramVec

	// Processor metrics
	processorsApplied *prometheus.CounterVec
	processorsSkipped *prometheus.CounterVec
	processorDuration *prometheus.HistogramVec

	// Error metrics
	errorsByClass *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		runsStarted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_started_total",
				Help:      "Total number of workflow runs started",
			},
		),
		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Total number of workflow runs by final phase",
			},
			[]string{"phase"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of workflow runs in seconds",
				Buckets:   buckets,
			},
			[]string{"phase"},
		),
		phaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "phase_duration_seconds",
				Help:      "Duration of engine phases in seconds",
				Buckets:   buckets,
			},
			[]string{"phase"},
		),
		loaderCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "loader_calls_total",
				Help:      "Total number of loader invocations",
			},
			[]string{"loader", "status"},
		),
		loaderDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "loader_duration_seconds",
				Help:      "Duration of loader invocations in seconds",
				Buckets:   buckets,
			},
			[]string{"loader"},
		),
		processorsApplied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "processors_applied_total",
				Help:      "Total number of processor applications",
			},
			[]string{"processor"},
		),
		processorsSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "processors_skipped_total",
				Help:      "Total number of processors skipped outside their context",
			},
			[]string{"processor"},
		),
		processorDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "processor_duration_seconds",
				Help:      "Duration of processor applications in seconds",
				Buckets:   buckets,
			},
			[]string{"processor"},
		),
		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of run errors by error class",
			},
			[]string{"class"},
		),
	}

	registry.MustRegister(
		m.runsStarted,
		m.runsCompleted,
		m.runDuration,
		m.phaseDuration,
		m.loaderCalls,
		m.loaderDuration,
		m.processorsApplied,
		m.processorsSkipped,
		m.processorDuration,
		m.errorsByClass,
	)
	return m, nil
}

// RecordRunStarted increments the counter for started runs.
func (m *Metrics) RecordRunStarted() {
	if m.registry == nil {
		return
	}
	m.runsStarted.Inc()
}

// RecordRunCompleted records the phase a run ended in and its duration.
func (m *Metrics) RecordRunCompleted(phase string, duration time.Duration) {
	if m.registry == nil {
		return
	}
	m.runsCompleted.WithLabelValues(phase).Inc()
	m.runDuration.WithLabelValues(phase).Observe(duration.Seconds())
}

// RecordPhase records how long a phase took.
func (m *Metrics) RecordPhase(phase string, duration time.Duration) {
	if m.registry == nil {
		return
	}
	m.phaseDuration.WithLabelValues(phase).Observe(duration.Seconds())
}

// RecordLoaderCall records a loader invocation.
func (m *Metrics) RecordLoaderCall(loader string, duration time.Duration, err error) {
	if m.registry == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.loaderCalls.WithLabelValues(loader, status).Inc()
	m.loaderDuration.WithLabelValues(loader).Observe(duration.Seconds())
}

// ProcessorApplied records an applied pipeline step.
func (m *Metrics) ProcessorApplied(_, processor string, elapsed time.Duration) {
	if m.registry == nil {
		return
	}
	m.processorsApplied.WithLabelValues(processor).Inc()
	m.processorDuration.WithLabelValues(processor).Observe(elapsed.Seconds())
}

// ProcessorSkipped records a step skipped outside its context.
func (m *Metrics) ProcessorSkipped(_, processor string) {
	if m.registry == nil {
		return
	}
	m.processorsSkipped.WithLabelValues(processor).Inc()
}

// RecordError records a run error by class.
func (m *Metrics) RecordError(class string) {
	if m.registry == nil {
		return
	}
	m.errorsByClass.WithLabelValues(class).Inc()
}

// Gatherer exposes the private registry, nil when metrics are disabled.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m.registry == nil {
		return nil
	}
	return m.registry
}

// WriteTextfile writes the current metrics to the configured textfile. It
// is a no-op when metrics are disabled or no textfile is configured.
func (m *Metrics) WriteTextfile() error {
	if m.registry == nil || m.config.Textfile == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(m.config.Textfile, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
