package cli

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/layoutdb/internal/layout"
	"github.com/roach88/layoutdb/internal/query"
	"github.com/roach88/layoutdb/internal/scheduler"
	"github.com/roach88/layoutdb/internal/store"
	"github.com/roach88/layoutdb/internal/telemetry"
	"github.com/roach88/layoutdb/internal/topology"
	"github.com/roach88/layoutdb/internal/value"
)

// BenchOptions holds flags for the bench command.
type BenchOptions struct {
	*RootOptions
	Params      store.Params
	DBPath      string // history database; defaults to the configured history_db
	Save        string // record the run under this name
	MetricsFile string // write Prometheus text metrics here

	// IDs generates run tokens and pass IDs. Defaults to UUIDv7.
	IDs scheduler.IDGenerator
}

// BenchResult is the outcome of one benchmark.
type BenchResult struct {
	Token   string           `json:"token"`
	Params  store.Params     `json:"params"`
	Metrics map[string]int64 `json:"metrics"`
	Saved   *store.Run       `json:"saved,omitempty"`
}

// WriteText renders the result for humans.
func (r BenchResult) WriteText(w io.Writer) error {
	fmt.Fprintf(w, "nodes=%d fanout=%d mutations=%d workers=%d\n",
		r.Params.Nodes, r.Params.Fanout, r.Params.Mutations, r.Params.Workers)
	for _, name := range slices.Sorted(maps.Keys(r.Metrics)) {
		fmt.Fprintf(w, "  %-22s %d\n", name, r.Metrics[name])
	}
	if r.Saved != nil {
		fmt.Fprintf(w, "saved %s #%d (%s)\n", r.Saved.Name, r.Saved.Seq, r.Saved.ID)
	}
	return nil
}

// NewBenchCommand creates the bench command.
func NewBenchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BenchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark full and incremental layout passes",
		Long: `Build a synthetic document, run a full parallel layout pass, then
apply single-input mutations each followed by an incremental pass.

Timings are in microseconds; counters come from the query database.
With --save the run is recorded in the history database so later runs can
be compared with "layoutdb history compare".

Examples:
  layoutdb bench --nodes 5000 --fanout 8
  layoutdb bench --workers 4 --save nightly --db history.db
  layoutdb bench --metrics-file metrics.prom`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Params.Workers == 0 {
				opts.Params.Workers = opts.Config.Workers
			}
			if opts.DBPath == "" {
				opts.DBPath = opts.Config.HistoryDB
			}
			return runBench(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.Params.Nodes, "nodes", 1000, "number of nodes in the document")
	cmd.Flags().IntVar(&opts.Params.Fanout, "fanout", 4, "children per node")
	cmd.Flags().IntVar(&opts.Params.Mutations, "mutations", 100, "incremental mutations after the full pass")
	cmd.Flags().IntVar(&opts.Params.Workers, "workers", 0, "worker pool size (default from config)")
	cmd.Flags().StringVar(&opts.DBPath, "db", "", "history database path")
	cmd.Flags().StringVar(&opts.Save, "save", "", "save the run under this name")
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "write Prometheus metrics to this file")

	return cmd
}

func runBench(ctx context.Context, cmd *cobra.Command, opts *BenchOptions) error {
	p := opts.Params
	if p.Nodes < 1 || p.Fanout < 1 || p.Mutations < 0 || p.Workers < 0 {
		return NewExitError(ExitCommandError, "nodes and fanout must be positive, mutations and workers non-negative")
	}
	if opts.Save != "" && opts.DBPath == "" {
		return NewExitError(ExitCommandError, "--save requires --db or history_db in the config")
	}
	ids := opts.IDs
	if ids == nil {
		ids = scheduler.UUIDv7Generator{}
	}
	logger := opts.logger()
	cfg := opts.Config

	providers, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    "layoutdb",
		ServiceVersion: "dev",
		TraceExporter:  cfg.TraceExporter,
		MetricExporter: cfg.MetricExporter,
		TraceWriter:    cmd.ErrOrStderr(),
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to init telemetry", err)
	}
	defer providers.Shutdown(context.WithoutCancel(ctx))

	db := query.NewDatabase(layout.MustRegistry(),
		query.WithShards(cfg.Shards),
		query.WithMaxDepth(cfg.MaxDepth),
		query.WithLogger(logger))
	if err := providers.Registry.Register(telemetry.NewStatsCollector(db, prometheus.Labels{"db": "bench"})); err != nil {
		return fmt.Errorf("register stats collector: %w", err)
	}

	rtOpts := []scheduler.Option{
		scheduler.WithOverlapCheck(cfg.OverlapCheck),
		scheduler.WithLogger(logger),
		scheduler.WithTracerProvider(providers.Tracer),
		scheduler.WithMeterProvider(providers.Meter),
		scheduler.WithIDGenerator(ids),
	}
	if p.Workers > 0 {
		rtOpts = append(rtOpts, scheduler.WithWorkers(p.Workers))
	}
	rt, err := scheduler.New(rtOpts...)
	if err != nil {
		return err
	}
	p.Workers = rt.Workers()

	tree, nodes, err := buildWorkload(db, p.Nodes, p.Fanout)
	if err != nil {
		return fmt.Errorf("build workload: %w", err)
	}

	metrics, err := measure(ctx, rt, db, tree.Root(), nodes, p.Mutations)
	if err != nil {
		return WrapExitError(ExitFailure, "layout pass failed", err)
	}
	logger.Info("bench complete", "nodes", p.Nodes, "mutations", p.Mutations, "workers", p.Workers)

	result := BenchResult{Token: ids.Generate(), Params: p, Metrics: metrics}

	if opts.MetricsFile != "" {
		if err := writeMetricsFile(opts.MetricsFile, providers.Registry); err != nil {
			return WrapExitError(ExitCommandError, "failed to write metrics", err)
		}
	}

	if opts.Save != "" {
		saved, err := saveRun(ctx, opts.DBPath, store.Run{
			Token:   result.Token,
			Name:    opts.Save,
			Params:  p,
			Metrics: metrics,
		})
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to save run", err)
		}
		result.Saved = &saved
	}

	return opts.formatter(cmd).Success(result)
}

// buildWorkload creates a breadth-first tree of n nodes. Every seventh
// node is a flow-root and every eleventh is relatively positioned, so the
// passes have several formatting and stacking contexts to spread over.
func buildWorkload(db *query.Database, n, fanout int) (*topology.Tree, []value.NodeID, error) {
	tree := topology.New(db)
	nodes := make([]value.NodeID, 0, n)
	nodes = append(nodes, tree.Root())

	if err := db.SetInput(layout.KindViewportWidth, tree.Root(), value.Int(1024)); err != nil {
		return nil, nil, err
	}
	for i := 1; i < n; i++ {
		id := tree.CreateNode()
		if err := tree.AppendChild(nodes[(i-1)/fanout], id); err != nil {
			return nil, nil, err
		}
		nodes = append(nodes, id)
	}

	_, err := db.Mutate(func(b *query.Batch) error {
		for i, id := range nodes {
			if i%7 == 3 {
				if err := b.SetInput(layout.KindDisplay, id, value.Str("flow-root")); err != nil {
					return err
				}
			}
			if i%11 == 5 {
				if err := b.SetInput(layout.KindPosition, id, value.Str("relative")); err != nil {
					return err
				}
			}
			if i*fanout+1 >= n {
				if err := b.SetInput(layout.KindHeight, id, value.Int(int64(10+i%20))); err != nil {
					return err
				}
			}
			if err := b.SetInput(layout.KindMinContent, id, value.Int(int64(i%50))); err != nil {
				return err
			}
		}
		return nil
	})
	return tree, nodes, err
}

// measure runs a full pass, then one single-input mutation plus an
// incremental pass per mutation.
func measure(ctx context.Context, rt *scheduler.Runtime, db *query.Database, root value.NodeID, nodes []value.NodeID, mutations int) (map[string]int64, error) {
	full, err := layout.Pass(ctx, rt, db, root)
	if err != nil {
		return nil, err
	}
	afterFull := db.Stats()

	var incremental time.Duration
	var computed int64
	for m := range mutations {
		id := nodes[(m*7919)%len(nodes)]
		if err := db.SetInput(layout.KindHeight, id, value.Int(int64(5+m%30))); err != nil {
			return nil, err
		}
		report, err := layout.Pass(ctx, rt, db, root)
		if err != nil {
			return nil, err
		}
		incremental += report.Elapsed
		computed += report.Computed
	}

	st := db.Stats()
	return map[string]int64{
		"full_pass_us":         full.Elapsed.Microseconds(),
		"full_computed":        full.Computed,
		"full_misses":          afterFull.Misses,
		"incremental_pass_us":  incremental.Microseconds(),
		"incremental_computed": computed,
		"hits":                 st.Hits,
		"misses":               st.Misses,
		"entries":              int64(st.Entries),
		"patterns":             int64(st.Patterns),
		"units":                int64(full.Units),
	}, nil
}

func writeMetricsFile(path string, g prometheus.Gatherer) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := telemetry.WriteText(f, g); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func saveRun(ctx context.Context, path string, r store.Run) (store.Run, error) {
	s, err := store.Open(path)
	if err != nil {
		return store.Run{}, err
	}
	defer s.Close()
	return s.SaveRun(ctx, r)
}
