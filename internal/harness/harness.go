package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/layoutdb/internal/layout"
	"github.com/roach88/layoutdb/internal/query"
	"github.com/roach88/layoutdb/internal/scheduler"
	"github.com/roach88/layoutdb/internal/topology"
	"github.com/roach88/layoutdb/internal/value"
)

// Harness executes one scenario against its own database.
type Harness struct {
	db     *query.Database
	reg    *query.Registry
	tree   *topology.Tree
	names  map[string]value.NodeID
	ids    map[value.NodeID]string
	logger *slog.Logger
}

// Option configures Run.
type Option func(*Harness)

// WithLogger sets the logger for the database and scheduler. Logs are
// discarded by default.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = l
	}
}

// Run executes a scenario on a fresh database with the layout registry.
// Setup problems (unknown nodes or kinds, rejected edits) are returned as
// errors; failed expectations are collected in the Result.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	h := &Harness{
		reg:    layout.MustRegistry(),
		names:  make(map[string]value.NodeID),
		ids:    make(map[value.NodeID]string),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.db = query.NewDatabase(h.reg, query.WithLogger(h.logger))
	h.tree = topology.New(h.db)

	if err := h.build(scenario.Tree); err != nil {
		return nil, fmt.Errorf("failed to build tree: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.execute(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("steps[%d] (%s): %w", i, step.Op(), err)
		}
	}
	return result, nil
}

func (h *Harness) build(root TreeNode) error {
	h.bind(root.ID, h.tree.Root())
	if err := h.setProps(h.tree.Root(), root.Props); err != nil {
		return err
	}
	return h.buildChildren(root)
}

func (h *Harness) buildChildren(n TreeNode) error {
	parent := h.names[n.ID]
	for _, c := range n.Children {
		id := h.tree.CreateNode()
		h.bind(c.ID, id)
		if err := h.tree.AppendChild(parent, id); err != nil {
			return err
		}
		if err := h.setProps(id, c.Props); err != nil {
			return err
		}
		if err := h.buildChildren(c); err != nil {
			return err
		}
	}
	return nil
}

func (h *Harness) bind(name string, id value.NodeID) {
	h.names[name] = id
	h.ids[id] = name
}

func (h *Harness) node(name string) (value.NodeID, error) {
	id, ok := h.names[name]
	if !ok {
		return value.NodeID{}, fmt.Errorf("unknown node %q", name)
	}
	return id, nil
}

func (h *Harness) kind(name string) (query.Kind, error) {
	k, ok := h.reg.ByName(name)
	if !ok {
		return query.KindInvalid, fmt.Errorf("unknown kind %q", name)
	}
	return k, nil
}

func (h *Harness) setProps(id value.NodeID, props map[string]any) error {
	if len(props) == 0 {
		return nil
	}
	writes := make([]Write, 0, len(props))
	for k, v := range props {
		writes = append(writes, Write{Node: h.ids[id], Kind: k, Value: v})
	}
	return h.write(writes)
}

// write applies writes as one batch.
func (h *Harness) write(writes []Write) error {
	type staged struct {
		kind query.Kind
		node value.NodeID
		v    value.Value
	}
	all := make([]staged, 0, len(writes))
	for _, w := range writes {
		id, err := h.node(w.Node)
		if err != nil {
			return err
		}
		k, err := h.kind(w.Kind)
		if err != nil {
			return err
		}
		v, err := value.FromAny(w.Value)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", w.Node, w.Kind, err)
		}
		all = append(all, staged{kind: k, node: id, v: v})
	}

	_, err := h.db.Mutate(func(b *query.Batch) error {
		for _, s := range all {
			if err := b.SetInput(s.kind, s.node, s.v); err != nil {
				return err
			}
		}
		return nil
	})
	return err
}

func (h *Harness) execute(ctx context.Context, i int, step Step, result *Result) error {
	ev := TraceEvent{Step: i, Op: step.Op()}

	switch ev.Op {
	case "set":
		ev.Node, ev.Kind = step.Set.Node, step.Set.Kind
		if err := h.write([]Write{*step.Set}); err != nil {
			return err
		}
		v, _ := value.FromAny(step.Set.Value)
		ev.Value = v

	case "batch":
		if err := h.write(step.Batch); err != nil {
			return err
		}
		ev.Counts = map[string]int64{"writes": int64(len(step.Batch))}

	case "append":
		a := step.Append
		ev.Node, ev.Parent = a.Node, a.Parent
		if err := h.append(a); err != nil {
			return err
		}

	case "remove":
		ev.Node = step.Remove
		id, err := h.node(step.Remove)
		if err != nil {
			return err
		}
		if err := h.tree.Remove(id); err != nil {
			return err
		}

	case "reparent":
		ev.Node, ev.Parent = step.Reparent.Node, step.Reparent.Parent
		id, err := h.node(step.Reparent.Node)
		if err != nil {
			return err
		}
		parent, err := h.node(step.Reparent.Parent)
		if err != nil {
			return err
		}
		if err := h.tree.Reparent(id, parent); err != nil {
			return err
		}

	case "eval":
		if err := h.eval(ctx, i, step.Eval, &ev, result); err != nil {
			return err
		}

	case "pass":
		if err := h.pass(ctx, i, step.Pass, &ev, result); err != nil {
			return err
		}

	case "stats":
		h.stats(i, step.Stats, &ev, result)
	}

	result.add(ev)
	return nil
}

func (h *Harness) append(a *AppendStep) error {
	if _, exists := h.names[a.Node]; exists {
		return fmt.Errorf("node %q already exists", a.Node)
	}
	parent, err := h.node(a.Parent)
	if err != nil {
		return err
	}

	id := h.tree.CreateNode()
	h.bind(a.Node, id)
	if a.Before != "" {
		ref, err := h.node(a.Before)
		if err != nil {
			return err
		}
		err = h.tree.InsertBefore(parent, id, ref)
		if err != nil {
			return err
		}
	} else if err := h.tree.AppendChild(parent, id); err != nil {
		return err
	}
	return h.setProps(id, a.Props)
}

func (h *Harness) eval(ctx context.Context, i int, e *EvalStep, ev *TraceEvent, result *Result) error {
	ev.Node, ev.Kind = e.Node, e.Kind
	id, err := h.node(e.Node)
	if err != nil {
		return err
	}
	k, err := h.kind(e.Kind)
	if err != nil {
		return err
	}

	before := h.db.Stats()
	v, evalErr := h.db.Evaluate(ctx, k, id)
	after := h.db.Stats()

	if evalErr != nil {
		ev.Error = errorCode(evalErr)
	} else {
		ev.Value = h.display(v)
	}

	hits, misses := after.Hits-before.Hits, after.Misses-before.Misses
	if e.Hits != nil || e.Misses != nil {
		ev.Counts = map[string]int64{}
	}
	if e.Hits != nil {
		ev.Counts["hits"] = hits
	}
	if e.Misses != nil {
		ev.Counts["misses"] = misses
	}

	for _, msg := range checkEval(i, e, ev, evalErr, hits, misses) {
		result.AddError(msg)
	}
	return nil
}

func (h *Harness) pass(ctx context.Context, i int, p *PassStep, ev *TraceEvent, result *Result) error {
	workers := p.Workers
	if workers == 0 {
		workers = 2
	}
	rt, err := scheduler.New(
		scheduler.WithWorkers(workers),
		scheduler.WithOverlapCheck(true),
		scheduler.WithLogger(h.logger),
		scheduler.WithIDGenerator(stepIDs{step: i}),
	)
	if err != nil {
		return err
	}

	report, err := layout.Pass(ctx, rt, h.db, h.tree.Root())
	if err != nil {
		return err
	}
	ev.Counts = map[string]int64{"units": int64(report.Units)}
	if p.Units != nil && *p.Units != report.Units {
		result.AddError(fmt.Sprintf("steps[%d]: pass units = %d, want %d", i, report.Units, *p.Units))
	}
	return nil
}

func (h *Harness) stats(i int, s *StatsStep, ev *TraceEvent, result *Result) {
	st := h.db.Stats()
	ev.Counts = map[string]int64{}
	if s.Entries != nil {
		ev.Counts["entries"] = int64(st.Entries)
	}
	if s.Patterns != nil {
		ev.Counts["patterns"] = int64(st.Patterns)
	}
	if s.Revision != nil {
		ev.Counts["revision"] = int64(st.Revision)
	}
	for _, msg := range checkStats(i, s, st) {
		result.AddError(msg)
	}
}

// display replaces node references with "@name" strings.
func (h *Harness) display(v value.Value) value.Value {
	switch val := v.(type) {
	case value.Node:
		id := value.NodeID(val)
		if id.IsZero() {
			return value.Null{}
		}
		return value.Str("@" + h.nameOf(id))
	case value.Nodes:
		out := make(value.List, len(val))
		for i, id := range val {
			out[i] = value.Str("@" + h.nameOf(id))
		}
		return out
	}
	return v
}

func (h *Harness) nameOf(id value.NodeID) string {
	if name, ok := h.ids[id]; ok {
		return name
	}
	return id.String()
}

// stepIDs names scheduler passes after the step that ran them.
type stepIDs struct{ step int }

func (s stepIDs) Generate() string {
	return fmt.Sprintf("pass-%d", s.step)
}
