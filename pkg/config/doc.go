// Package config loads the topoviz tool configuration with viper.
//
// # Sources
//
// Settings are merged from, lowest precedence first:
//
//   - built-in defaults (see Default)
//   - a YAML file: the --config path, ./topoviz.yaml, or
//     ~/.config/topoviz/config.yaml
//   - TOPOVIZ_ environment variables, with dots and dashes replaced by
//     underscores (TOPOVIZ_LOG_LEVEL, TOPOVIZ_RENDER_OUT_DIR, ...)
//   - command line flags bound through Load
//
// # Example
//
//	log:
//	  level: debug
//	  format: json
//	data_dir: /var/cache/topoviz
//	tracing:
//	  enabled: true
//	  exporter: otlp
//	  endpoint: localhost:4317
//	metrics:
//	  textfile: /var/lib/node_exporter/topoviz.prom
//	render:
//	  renderer: png,manifest
//	  out_dir: figures
//	policy:
//	  paths: [policies/naming.rego]
//
// Telemetry converts the logging, tracing and metrics sections for the
// telemetry package, and LoaderOptions points the sample DEM cache of the
// built-in loaders at data_dir.
package config
