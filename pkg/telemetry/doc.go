// Package telemetry provides observability for workflow runs.
//
// It integrates structured logging (zerolog), tracing (OpenTelemetry),
// metrics (Prometheus) and event publishing behind a single Telemetry
// value the engine receives at construction.
//
// # Usage
//
//	cfg := telemetry.DefaultConfig()
//	cfg.Tracing.Enabled = true
//	cfg.Tracing.Exporter = "stdout"
//	cfg.Metrics.Textfile = "/var/lib/node_exporter/topoviz.prom"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//	tel.Logger.SetGlobal()
//
// # Spans
//
// A run produces one run.execute span with a phase.<name> child per engine
// phase. Loader invocations (loader.<id>), map pipelines (map.build) and
// processor applications (processor.<name>) nest below their phase.
//
// # Metrics
//
// Metrics live in a private registry: runs started and completed by final
// phase, phase durations, loader calls, processor applications and skips,
// and errors by class. The CLI is short-lived, so instead of serving them
// the registry is written to a node exporter textfile on Shutdown.
//
// # Events
//
// The event publisher emits run.started, phase.completed, policy.violation,
// run.completed and run.failed. Subscribers receive events in publish
// order, inline by default or from one background goroutine in async mode.
package telemetry
