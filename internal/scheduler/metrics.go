package scheduler

import (
	"go.opentelemetry.io/otel/metric"
)

// schedulerMetrics holds the instruments of one Runtime.
type schedulerMetrics struct {
	passes     metric.Int64Counter
	units      metric.Int64Counter
	overlaps   metric.Int64Counter
	unitTime   metric.Float64Histogram
	passTime   metric.Float64Histogram
	waveLength metric.Int64Histogram
}

func newSchedulerMetrics(meter metric.Meter) (*schedulerMetrics, error) {
	var m schedulerMetrics
	var err error

	if m.passes, err = meter.Int64Counter(
		"layoutdb_scheduler_passes_total",
		metric.WithDescription("Total number of scheduler passes run"),
	); err != nil {
		return nil, err
	}
	if m.units, err = meter.Int64Counter(
		"layoutdb_scheduler_units_total",
		metric.WithDescription("Total number of work units executed"),
	); err != nil {
		return nil, err
	}
	if m.overlaps, err = meter.Int64Counter(
		"layoutdb_scheduler_overlap_violations_total",
		metric.WithDescription("Total number of overlap violations detected"),
	); err != nil {
		return nil, err
	}
	if m.unitTime, err = meter.Float64Histogram(
		"layoutdb_scheduler_unit_duration_seconds",
		metric.WithDescription("Duration of a single work unit"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if m.passTime, err = meter.Float64Histogram(
		"layoutdb_scheduler_pass_duration_seconds",
		metric.WithDescription("Duration of a full scheduler pass"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if m.waveLength, err = meter.Int64Histogram(
		"layoutdb_scheduler_wave_units",
		metric.WithDescription("Number of units dispatched per wave"),
	); err != nil {
		return nil, err
	}
	return &m, nil
}
