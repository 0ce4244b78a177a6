package scheduler

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/roach88/layoutdb/internal/query"
	"github.com/roach88/layoutdb/internal/value"
)

// ============================================================================
// Partition
// ============================================================================

func TestPartition_ContextRoots(t *testing.T) {
	db := newFixture(t, nil)
	units, err := Partition(context.Background(), db, n(1), LayoutFC, isContext)
	require.NoError(t, err)
	require.Len(t, units, 4)

	byRoot := map[value.NodeID]WorkUnit{}
	for _, u := range units {
		byRoot[u.Root] = u
	}

	assert.Equal(t, []value.NodeID{n(1), n(3), n(6)}, byRoot[n(1)].Nodes)
	assert.Equal(t, []value.NodeID{n(2), n(4)}, byRoot[n(2)].Nodes)
	assert.Equal(t, []value.NodeID{n(5), n(8)}, byRoot[n(5)].Nodes)
	assert.Equal(t, []value.NodeID{n(7)}, byRoot[n(7)].Nodes)

	assert.Equal(t, 0, byRoot[n(1)].Depth)
	assert.Equal(t, 1, byRoot[n(2)].Depth)
	assert.Equal(t, 2, byRoot[n(5)].Depth)
	assert.Equal(t, 1, byRoot[n(7)].Depth)

	assert.Equal(t, Critical, byRoot[n(1)].Priority)
	assert.Equal(t, High, byRoot[n(2)].Priority)
	assert.Equal(t, "layout-fc/n2", byRoot[n(2)].ID)
}

func TestPartition_EveryNodeOwnedOnce(t *testing.T) {
	db := newFixture(t, nil)
	units, err := Partition(context.Background(), db, n(1), StyleSubtree, isContext)
	require.NoError(t, err)

	seen := map[value.NodeID]string{}
	for _, u := range units {
		for _, node := range u.Nodes {
			prev, dup := seen[node]
			assert.False(t, dup, "%s owned by %s and %s", node, prev, u.ID)
			seen[node] = u.ID
		}
	}
	assert.Len(t, seen, 8)
}

func TestPartition_BoundaryError(t *testing.T) {
	db := newFixture(t, nil)
	broken := errors.New("predicate failed")
	_, err := Partition(context.Background(), db, n(1), LayoutFC,
		func(context.Context, *query.Database, value.NodeID) (bool, error) { return false, broken })
	assert.ErrorIs(t, err, broken)
}

func TestGroupWaves_Order(t *testing.T) {
	units := []WorkUnit{
		{ID: "b", Depth: 1, Priority: Low},
		{ID: "root", Depth: 0, Priority: Critical},
		{ID: "a", Depth: 1, Priority: High},
		{ID: "c", Depth: 2, Priority: High},
	}

	top := groupWaves(units, TopDown)
	require.Len(t, top, 3)
	assert.Equal(t, "root", top[0][0].ID)
	assert.Equal(t, []string{"a", "b"}, []string{top[1][0].ID, top[1][1].ID})
	assert.Equal(t, "c", top[2][0].ID)

	bottom := groupWaves(units, BottomUp)
	assert.Equal(t, "c", bottom[0][0].ID)
	assert.Equal(t, "root", bottom[2][0].ID)
}

// ============================================================================
// Run
// ============================================================================

func evalNodes(kind query.Kind) UnitFunc {
	return func(ctx context.Context, u WorkUnit, rd *Reader) error {
		for _, node := range u.Nodes {
			if _, err := rd.Evaluate(ctx, kind, node); err != nil {
				return err
			}
		}
		return nil
	}
}

func snapshot(t *testing.T, db *query.Database, kind query.Kind) map[value.NodeID]value.Value {
	t.Helper()
	out := map[value.NodeID]value.Value{}
	for i := uint32(1); i <= 8; i++ {
		entry, ok := db.Entry(kind, n(i))
		require.True(t, ok, "no entry for %s", n(i))
		out[n(i)] = entry.Value
	}
	return out
}

func TestRuntime_RunBottomUp(t *testing.T) {
	db := newFixture(t, nil)
	ctx := context.Background()
	rt, err := New(WithWorkers(4), WithOverlapCheck(true), WithLogger(discardLogger()), WithIDGenerator(fixedIDs{"pass-1"}))
	require.NoError(t, err)

	units, err := Partition(ctx, db, n(1), LayoutFC, isContext)
	require.NoError(t, err)

	res, err := rt.Run(ctx, db, units, BottomUp, evalNodes(kindTotal))
	require.NoError(t, err)
	assert.Equal(t, "pass-1", res.ID)
	assert.Equal(t, 4, res.Units)
	assert.Equal(t, 3, res.Waves)
	assert.Positive(t, res.Computed)

	total, err := db.Evaluate(ctx, kindTotal, n(1))
	require.NoError(t, err)
	assert.Equal(t, value.Int(8), total)
}

func TestRuntime_ParallelConsistency(t *testing.T) {
	ctx := context.Background()

	reference := newFixture(t, nil)
	seq, err := New(WithWorkers(1), WithLogger(discardLogger()))
	require.NoError(t, err)
	units, err := Partition(ctx, reference, n(1), StyleSubtree, isContext)
	require.NoError(t, err)
	_, err = seq.Run(ctx, reference, units, TopDown, evalNodes(kindAvail))
	require.NoError(t, err)
	want := snapshot(t, reference, kindAvail)

	// Parallel, with overlap checking.
	par, err := New(WithWorkers(8), WithOverlapCheck(true), WithLogger(discardLogger()))
	require.NoError(t, err)
	db := newFixture(t, nil)
	units, err = Partition(ctx, db, n(1), StyleSubtree, isContext)
	require.NoError(t, err)
	_, err = par.Run(ctx, db, units, TopDown, evalNodes(kindAvail))
	require.NoError(t, err)
	assert.Equal(t, want, snapshot(t, db, kindAvail))

	// Sequential, in shuffled unit orders.
	rng := rand.New(rand.NewPCG(3, 5))
	for range 5 {
		db := newFixture(t, nil)
		units, err := Partition(ctx, db, n(1), StyleSubtree, isContext)
		require.NoError(t, err)
		rng.Shuffle(len(units), func(i, j int) { units[i], units[j] = units[j], units[i] })
		_, err = seq.Run(ctx, db, units, TopDown, evalNodes(kindAvail))
		require.NoError(t, err)
		assert.Equal(t, want, snapshot(t, db, kindAvail))
	}
}

func TestRuntime_OverlapViolation(t *testing.T) {
	// Both units of wave 1 compute Shared(n1) concurrently: each body waits
	// until the other has entered, so neither can hit the other's entry.
	var arrived sync.WaitGroup
	arrived.Add(2)
	db := newFixture(t, func() {
		arrived.Done()
		arrived.Wait()
	})
	ctx := context.Background()

	rt, err := New(WithWorkers(2), WithOverlapCheck(true), WithLogger(discardLogger()))
	require.NoError(t, err)

	units := []WorkUnit{
		{ID: "left", Root: n(2), Depth: 1, Nodes: []value.NodeID{n(2)}},
		{ID: "right", Root: n(7), Depth: 1, Nodes: []value.NodeID{n(7)}},
	}
	_, err = rt.Run(ctx, db, units, TopDown, func(ctx context.Context, u WorkUnit, rd *Reader) error {
		_, err := rd.Evaluate(ctx, kindShared, n(1))
		return err
	})
	require.Error(t, err)
	assert.True(t, IsOverlapError(err))

	var oErr *OverlapError
	require.ErrorAs(t, err, &oErr)
	assert.Equal(t, "Shared(n1)", oErr.Slot)
	assert.ElementsMatch(t, []string{"left", "right"}, []string{oErr.First, oErr.Second})
}

func TestRuntime_OverlapCheckDisabled(t *testing.T) {
	var arrived sync.WaitGroup
	arrived.Add(2)
	db := newFixture(t, func() {
		arrived.Done()
		arrived.Wait()
	})

	rt, err := New(WithWorkers(2), WithOverlapCheck(false), WithLogger(discardLogger()))
	require.NoError(t, err)

	units := []WorkUnit{
		{ID: "left", Root: n(2), Depth: 1, Nodes: []value.NodeID{n(2)}},
		{ID: "right", Root: n(7), Depth: 1, Nodes: []value.NodeID{n(7)}},
	}
	res, err := rt.Run(context.Background(), db, units, TopDown, func(ctx context.Context, u WorkUnit, rd *Reader) error {
		_, err := rd.Evaluate(ctx, kindShared, n(1))
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Computed)
}

func TestRuntime_UnitError(t *testing.T) {
	db := newFixture(t, nil)
	ctx := context.Background()
	rt, err := New(WithWorkers(2), WithLogger(discardLogger()))
	require.NoError(t, err)

	units, err := Partition(ctx, db, n(1), LayoutFC, isContext)
	require.NoError(t, err)

	failed := errors.New("layout failed")
	_, err = rt.Run(ctx, db, units, BottomUp, func(ctx context.Context, u WorkUnit, rd *Reader) error {
		if u.Root == n(5) {
			return failed
		}
		return nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, failed)
	assert.Contains(t, err.Error(), "layout-fc/n5")
}

func TestRuntime_Cancelled(t *testing.T) {
	db := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rt, err := New(WithLogger(discardLogger()))
	require.NoError(t, err)
	units := []WorkUnit{{ID: "root", Root: n(1), Nodes: []value.NodeID{n(1)}}}

	ran := false
	_, err = rt.Run(ctx, db, units, TopDown, func(context.Context, WorkUnit, *Reader) error {
		ran = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ran)
}

// ============================================================================
// Telemetry
// ============================================================================

func TestRuntime_Spans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())

	db := newFixture(t, nil)
	ctx := context.Background()
	rt, err := New(WithTracerProvider(tp), WithLogger(discardLogger()))
	require.NoError(t, err)

	units, err := Partition(ctx, db, n(1), LayoutFC, isContext)
	require.NoError(t, err)
	_, err = rt.Run(ctx, db, units, BottomUp, evalNodes(kindTotal))
	require.NoError(t, err)

	counts := map[string]int{}
	for _, s := range recorder.Ended() {
		counts[s.Name()]++
	}
	assert.Equal(t, 1, counts["scheduler.Run"])
	assert.Equal(t, 3, counts["scheduler.wave"])
	assert.Equal(t, 4, counts["scheduler.unit"])
}

func TestRuntime_Metrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	db := newFixture(t, nil)
	ctx := context.Background()
	rt, err := New(WithMeterProvider(mp), WithLogger(discardLogger()))
	require.NoError(t, err)

	units, err := Partition(ctx, db, n(1), LayoutFC, isContext)
	require.NoError(t, err)
	_, err = rt.Run(ctx, db, units, BottomUp, evalNodes(kindTotal))
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	var unitsTotal int64
	found := false
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "layoutdb_scheduler_units_total" {
				continue
			}
			found = true
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				unitsTotal += dp.Value
			}
		}
	}
	require.True(t, found)
	assert.Equal(t, int64(4), unitsTotal)
}
