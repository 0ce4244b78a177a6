// Package telemetry wires OpenTelemetry providers and a Prometheus registry
// for the CLI, and exposes query.Database statistics as a Prometheus
// collector.
//
// Providers are returned to the caller instead of being installed globally,
// so several runs in one process (and tests) do not share exporter state.
package telemetry
