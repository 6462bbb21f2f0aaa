// Package metrics defines the sinks that record optimisation and simulation
// outcomes. Implementations such as the Prometheus and InfluxDB sinks live in
// infra/metrics and register themselves with RegisterMetricsSink. Several
// configured sinks are combined into a MultiSink.
package metrics
