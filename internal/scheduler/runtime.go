package scheduler

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/layoutdb/internal/query"
	"github.com/roach88/layoutdb/internal/value"
)

const instrumentationName = "github.com/roach88/layoutdb/internal/scheduler"

// Order selects how waves are sequenced by nesting depth.
type Order int

const (
	// TopDown runs outer units first, for passes where descendants read
	// ancestors (style, available width).
	TopDown Order = iota
	// BottomUp runs nested units first, for passes where ancestors read
	// descendants (intrinsic sizes, content height).
	BottomUp
)

// Runtime dispatches WorkUnits to a fixed worker pool.
type Runtime struct {
	workers      int
	overlapCheck bool
	logger       *slog.Logger
	tracer       trace.Tracer
	meter        metric.Meter
	ids          IDGenerator
	metrics      *schedulerMetrics
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithWorkers sets the pool size. Defaults to GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(r *Runtime) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithOverlapCheck enables or disables the per-wave overlap check.
func WithOverlapCheck(enabled bool) Option {
	return func(r *Runtime) {
		r.overlapCheck = enabled
	}
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Runtime) {
		r.logger = l
	}
}

// WithTracerProvider sets the tracer provider. Defaults to the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(r *Runtime) {
		r.tracer = tp.Tracer(instrumentationName)
	}
}

// WithMeterProvider sets the meter provider. Defaults to the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(r *Runtime) {
		r.meter = mp.Meter(instrumentationName)
	}
}

// WithIDGenerator sets the pass ID generator. Defaults to UUIDv7.
func WithIDGenerator(g IDGenerator) Option {
	return func(r *Runtime) {
		r.ids = g
	}
}

// New creates a Runtime.
func New(opts ...Option) (*Runtime, error) {
	r := &Runtime{
		workers:      runtime.GOMAXPROCS(0),
		overlapCheck: defaultOverlapCheck,
		logger:       slog.Default(),
		tracer:       otel.Tracer(instrumentationName),
		meter:        otel.Meter(instrumentationName),
		ids:          UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(r)
	}

	m, err := newSchedulerMetrics(r.meter)
	if err != nil {
		return nil, fmt.Errorf("init scheduler metrics: %w", err)
	}
	r.metrics = m
	return r, nil
}

// Workers returns the pool size.
func (r *Runtime) Workers() int {
	return r.workers
}

// Reader is the read handle a unit evaluates through. It attributes every
// computed slot to the unit.
type Reader struct {
	db  *query.Database
	rec *unitRecorder
}

// Evaluate reads (kind, node) on behalf of the unit.
func (rd *Reader) Evaluate(ctx context.Context, kind query.Kind, node value.NodeID) (value.Value, error) {
	return rd.db.EvaluateWith(ctx, kind, node, rd.rec)
}

// DB returns the underlying database.
func (rd *Reader) DB() *query.Database {
	return rd.db
}

// UnitFunc performs the work of one unit. It must only read through rd.
type UnitFunc func(ctx context.Context, u WorkUnit, rd *Reader) error

// PassResult summarizes one Run.
type PassResult struct {
	ID       string
	Units    int
	Waves    int
	Computed int64 // slots computed across all units
	Elapsed  time.Duration
}

// Run executes units wave by wave. Each wave is dispatched to the pool and
// joined before the next starts. The first unit error cancels the rest of
// its wave and fails the pass; a cancelled ctx stops dispatch.
func (r *Runtime) Run(ctx context.Context, db *query.Database, units []WorkUnit, order Order, fn UnitFunc) (*PassResult, error) {
	start := time.Now()
	passID := r.ids.Generate()

	ctx, span := r.tracer.Start(ctx, "scheduler.Run", trace.WithAttributes(
		attribute.String("pass.id", passID),
		attribute.Int("pass.units", len(units)),
		attribute.Int("pass.workers", r.workers),
	))
	defer span.End()

	waves := groupWaves(units, order)
	result := &PassResult{ID: passID, Units: len(units), Waves: len(waves)}

	for i, wave := range waves {
		computed, err := r.runWave(ctx, db, i, wave, fn)
		result.Computed += computed
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			r.logger.Debug("pass failed", "pass", passID, "wave", i, "error", err)
			return nil, err
		}
	}

	result.Elapsed = time.Since(start)
	r.metrics.passes.Add(ctx, 1)
	r.metrics.passTime.Record(ctx, result.Elapsed.Seconds())
	span.SetAttributes(attribute.Int64("pass.computed", result.Computed))
	span.SetStatus(codes.Ok, "")

	r.logger.Debug("pass complete",
		"pass", passID,
		"units", result.Units,
		"waves", result.Waves,
		"computed", result.Computed,
		"elapsed", result.Elapsed)
	return result, nil
}

func (r *Runtime) runWave(ctx context.Context, db *query.Database, index int, wave []WorkUnit, fn UnitFunc) (int64, error) {
	ctx, span := r.tracer.Start(ctx, "scheduler.wave", trace.WithAttributes(
		attribute.Int("wave.index", index),
		attribute.Int("wave.units", len(wave)),
	))
	defer span.End()
	r.metrics.waveLength.Record(ctx, int64(len(wave)))

	recs := make([]*unitRecorder, len(wave))
	for i := range recs {
		recs[i] = &unitRecorder{track: r.overlapCheck}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, u := range wave {
		if gctx.Err() != nil {
			break
		}
		rd := &Reader{db: db, rec: recs[i]}
		g.Go(func() error {
			return r.runUnit(gctx, u, rd, fn)
		})
	}
	err := g.Wait()

	var computed int64
	for _, rec := range recs {
		computed += rec.computed.Load()
	}

	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return computed, err
	}

	if r.overlapCheck {
		if err := checkOverlap(db.Registry(), index, wave, recs); err != nil {
			r.metrics.overlaps.Add(ctx, 1)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			r.logger.Error("overlap violation", "error", err)
			return computed, err
		}
	}
	return computed, nil
}

func (r *Runtime) runUnit(ctx context.Context, u WorkUnit, rd *Reader, fn UnitFunc) error {
	ctx, span := r.tracer.Start(ctx, "scheduler.unit", trace.WithAttributes(
		attribute.String("unit.id", u.ID),
		attribute.String("unit.kind", u.Kind.String()),
		attribute.String("unit.priority", u.Priority.String()),
		attribute.Int("unit.depth", u.Depth),
		attribute.Int("unit.nodes", len(u.Nodes)),
	))
	defer span.End()

	start := time.Now()
	err := fn(ctx, u, rd)
	r.metrics.units.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", u.Kind.String())))
	r.metrics.unitTime.Record(ctx, time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("unit %s: %w", u.ID, err)
	}
	span.SetAttributes(attribute.Int64("unit.computed", rd.rec.computed.Load()))
	return nil
}

// groupWaves buckets units by depth, orders the buckets, and sorts each
// bucket by priority then ID so dispatch order is deterministic.
func groupWaves(units []WorkUnit, order Order) [][]WorkUnit {
	byDepth := make(map[int][]WorkUnit)
	for _, u := range units {
		byDepth[u.Depth] = append(byDepth[u.Depth], u)
	}

	depths := make([]int, 0, len(byDepth))
	for d := range byDepth {
		depths = append(depths, d)
	}
	slices.Sort(depths)
	if order == BottomUp {
		slices.Reverse(depths)
	}

	waves := make([][]WorkUnit, 0, len(depths))
	for _, d := range depths {
		wave := byDepth[d]
		slices.SortStableFunc(wave, func(a, b WorkUnit) int {
			if c := cmp.Compare(a.Priority, b.Priority); c != 0 {
				return c
			}
			return cmp.Compare(a.ID, b.ID)
		})
		waves = append(waves, wave)
	}
	return waves
}
