package cli

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/layoutdb/internal/store"
)

// HistoryOptions holds flags shared by the history subcommands.
type HistoryOptions struct {
	*RootOptions
	DBPath string
}

// NewHistoryCommand creates the history command group.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded benchmark runs",
	}
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "", "history database path (default from config)")

	cmd.AddCommand(newHistoryListCommand(opts))
	cmd.AddCommand(newHistoryCompareCommand(opts))
	return cmd
}

func (o *HistoryOptions) open() (*store.Store, error) {
	path := o.DBPath
	if path == "" {
		path = o.Config.HistoryDB
	}
	if path == "" {
		return nil, NewExitError(ExitCommandError, "no history database: pass --db or set history_db")
	}
	s, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open history", err)
	}
	return s, nil
}

// RunList is the output of history list.
type RunList struct {
	Runs []store.Run `json:"runs"`
}

// WriteText renders the runs as a table.
func (l RunList) WriteText(w io.Writer) error {
	if len(l.Runs) == 0 {
		_, err := fmt.Fprintln(w, "No runs recorded.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tNAME\tNODES\tWORKERS\tFULL_US\tINCR_US\tID")
	for _, r := range l.Runs {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\t%d\t%s\n",
			r.Seq, r.Name, r.Params.Nodes, r.Params.Workers,
			r.Metrics["full_pass_us"], r.Metrics["incremental_pass_us"], shortID(r.ID))
	}
	return tw.Flush()
}

func newHistoryListCommand(opts *HistoryOptions) *cobra.Command {
	var name string
	var limit int

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List recorded runs in the order they were saved",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open()
			if err != nil {
				return err
			}
			defer s.Close()

			runs, err := s.ListRuns(cmd.Context(), name, limit)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to list runs", err)
			}
			return opts.formatter(cmd).Success(RunList{Runs: runs})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "only runs with this name")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs")
	return cmd
}

// Comparison is the output of history compare.
type Comparison struct {
	Baseline    store.Run     `json:"baseline"`
	Current     store.Run     `json:"current"`
	Threshold   float64       `json:"threshold"`
	Deltas      []store.Delta `json:"deltas"`
	Regressions int           `json:"regressions"`
}

// WriteText renders the deltas as a table.
func (c Comparison) WriteText(w io.Writer) error {
	fmt.Fprintf(w, "baseline #%d %s\ncurrent  #%d %s\n\n",
		c.Baseline.Seq, shortID(c.Baseline.ID), c.Current.Seq, shortID(c.Current.ID))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "METRIC\tBASELINE\tCURRENT\tCHANGE\t")
	for _, d := range c.Deltas {
		flag := ""
		switch {
		case d.Missing:
			flag = "missing"
		case d.Regression:
			flag = "REGRESSION"
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%+.1f%%\t%s\n", d.Metric, d.Baseline, d.Current, d.Change*100, flag)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d regressions above %.0f%%\n", c.Regressions, c.Threshold*100)
	return err
}

func newHistoryCompareCommand(opts *HistoryOptions) *cobra.Command {
	var baselineID, currentID string
	var threshold float64

	cmd := &cobra.Command{
		Use:   "compare <name>",
		Short: "Compare the latest run of a name with the one before it",
		Long: `Compare two runs metric by metric. By default the latest run of <name>
is compared with the run recorded just before it; --baseline and
--current select runs by ID instead. Every metric is lower-is-better.

Exits with code 1 when any metric regressed by more than --threshold.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open()
			if err != nil {
				return err
			}
			defer s.Close()
			ctx := cmd.Context()

			runs, err := s.ListRuns(ctx, args[0], 0)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to list runs", err)
			}
			var base, cur store.Run
			if n := len(runs); n > 0 {
				cur = runs[n-1]
				if n > 1 {
					base = runs[n-2]
				}
			}
			if currentID != "" {
				if cur, err = s.GetRun(ctx, currentID); err != nil {
					return lookupError(currentID, err)
				}
			}
			if baselineID != "" {
				if base, err = s.GetRun(ctx, baselineID); err != nil {
					return lookupError(baselineID, err)
				}
			}
			if cur.ID == "" || base.ID == "" {
				return NewExitError(ExitCommandError, fmt.Sprintf("need two runs of %q to compare", args[0]))
			}

			deltas := store.Compare(base, cur, threshold)
			c := Comparison{
				Baseline:    base,
				Current:     cur,
				Threshold:   threshold,
				Deltas:      deltas,
				Regressions: len(store.Regressions(deltas)),
			}
			if err := opts.formatter(cmd).Success(c); err != nil {
				return err
			}
			if c.Regressions > 0 {
				return NewExitError(ExitFailure, fmt.Sprintf("%d metrics regressed", c.Regressions))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&baselineID, "baseline", "", "baseline run ID")
	cmd.Flags().StringVar(&currentID, "current", "", "current run ID")
	cmd.Flags().Float64Var(&threshold, "threshold", 0.1, "regression threshold as a fraction")
	return cmd
}

func lookupError(id string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return NewExitError(ExitCommandError, fmt.Sprintf("run %s not found", id))
	}
	return WrapExitError(ExitCommandError, "failed to load run", err)
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
