package telemetry

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/layoutdb/internal/query"
)

type fixedStats query.Stats

func (f fixedStats) Stats() query.Stats { return query.Stats(f) }

// ============================================================================
// StatsCollector
// ============================================================================

func TestStatsCollector_Collect(t *testing.T) {
	c := NewStatsCollector(fixedStats{
		Revision: 7, Entries: 12, Patterns: 4, Inputs: 9,
		Hits: 30, Misses: 12, Recomputes: 12, Cycles: 1,
	}, prometheus.Labels{"db": "test"})

	assert.Equal(t, 8, testutil.CollectAndCount(c))

	expected := `
# HELP layoutdb_query_hits_total Evaluations answered from a valid entry.
# TYPE layoutdb_query_hits_total counter
layoutdb_query_hits_total{db="test"} 30
# HELP layoutdb_query_cache_entries Live memoized cache entries.
# TYPE layoutdb_query_cache_entries gauge
layoutdb_query_cache_entries{db="test"} 12
`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"layoutdb_query_hits_total", "layoutdb_query_cache_entries")
	assert.NoError(t, err)
}

func TestStatsCollector_LiveDatabase(t *testing.T) {
	db := query.NewDatabase(query.MustRegistry())
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(NewStatsCollector(db, nil)))

	count, err := testutil.GatherAndCount(reg, "layoutdb_query_revision")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, reg))
	assert.Contains(t, buf.String(), "layoutdb_query_revision 0")
	assert.Contains(t, buf.String(), "# TYPE layoutdb_query_misses_total counter")
}

// ============================================================================
// Init
// ============================================================================

func TestInit_Disabled(t *testing.T) {
	p, err := Init(context.Background(), DefaultConfig())
	require.NoError(t, err)
	assert.NotNil(t, p.Tracer)
	assert.NotNil(t, p.Meter)
	assert.NotNil(t, p.Registry)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInit_PrometheusMetrics(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MetricExporter = "prometheus"
	p, err := Init(context.Background(), cfg)
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	counter, err := p.Meter.Meter("test").Int64Counter("layoutdb_test_events")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, p.Registry))
	assert.Contains(t, buf.String(), "layoutdb_test_events")
}

func TestInit_StdoutTraces(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.TraceExporter = "stdout"
	cfg.TraceWriter = &buf

	p, err := Init(context.Background(), cfg)
	require.NoError(t, err)

	_, span := p.Tracer.Tracer("test").Start(context.Background(), "unit-span")
	span.End()
	require.NoError(t, p.Shutdown(context.Background()))

	assert.Contains(t, buf.String(), "unit-span")
}

func TestInit_UnknownExporter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "carrier-pigeon"
	_, err := Init(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrUnknownExporter)

	cfg = DefaultConfig()
	cfg.MetricExporter = "fax"
	_, err = Init(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrUnknownExporter)
}
