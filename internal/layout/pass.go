package layout

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/layoutdb/internal/query"
	"github.com/roach88/layoutdb/internal/scheduler"
	"github.com/roach88/layoutdb/internal/value"
)

// ContextBoundary starts a unit at every formatting-context root.
func ContextBoundary(ctx context.Context, db *query.Database, node value.NodeID) (bool, error) {
	v, err := db.Evaluate(ctx, KindIsContextRoot, node)
	return value.AsBool(v), err
}

// StackingBoundary starts a unit at every positioned node.
func StackingBoundary(ctx context.Context, db *query.Database, node value.NodeID) (bool, error) {
	v, err := db.Evaluate(ctx, KindPosition, node)
	position, _ := value.AsStr(v)
	return position != "" && position != "static", err
}

type phase struct {
	unit     scheduler.UnitKind
	boundary scheduler.Boundary
	order    scheduler.Order
	kinds    []query.Kind
}

// Widths flow down, heights flow up, and offsets read the heights of
// siblings that may belong to other units, so they wait for every height.
var phases = []phase{
	{scheduler.StyleSubtree, ContextBoundary, scheduler.TopDown, []query.Kind{KindFormattingContext, KindResolvedWidth}},
	{scheduler.LayoutFC, ContextBoundary, scheduler.BottomUp, []query.Kind{KindIntrinsicWidth, KindResolvedHeight}},
	{scheduler.PaintStackingContext, StackingBoundary, scheduler.TopDown, []query.Kind{KindResolvedOffset}},
}

// PassReport summarizes one layout pass.
type PassReport struct {
	Phases   []*scheduler.PassResult
	Units    int
	Computed int64
	Elapsed  time.Duration
}

// Pass lays out the subtree under root on rt's worker pool.
func Pass(ctx context.Context, rt *scheduler.Runtime, db *query.Database, root value.NodeID) (*PassReport, error) {
	start := time.Now()
	report := &PassReport{}

	for _, p := range phases {
		units, err := scheduler.Partition(ctx, db, root, p.unit, p.boundary)
		if err != nil {
			return nil, fmt.Errorf("partition %s: %w", p.unit, err)
		}
		res, err := rt.Run(ctx, db, units, p.order, evalEach(p.kinds))
		if err != nil {
			return nil, fmt.Errorf("%s phase: %w", p.unit, err)
		}
		report.Phases = append(report.Phases, res)
		report.Units += res.Units
		report.Computed += res.Computed
	}

	report.Elapsed = time.Since(start)
	return report, nil
}

func evalEach(kinds []query.Kind) scheduler.UnitFunc {
	return func(ctx context.Context, u scheduler.WorkUnit, rd *scheduler.Reader) error {
		for _, node := range u.Nodes {
			for _, k := range kinds {
				if _, err := rd.Evaluate(ctx, k, node); err != nil {
					return err
				}
			}
		}
		return nil
	}
}

// Box is the resolved geometry of one node.
type Box struct {
	Node   value.NodeID
	Offset int64
	Width  int64
	Height int64
}

// Boxes reads the geometry of every node under root in pre-order. Nodes
// with display none are skipped along with their subtrees.
func Boxes(ctx context.Context, db *query.Database, root value.NodeID) ([]Box, error) {
	var out []Box
	stack := []value.NodeID{root}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		fc, err := db.Evaluate(ctx, KindFormattingContext, node)
		if err != nil {
			return nil, err
		}
		if s, _ := value.AsStr(fc); s == ContextNone {
			continue
		}

		box := Box{Node: node}
		for _, f := range []struct {
			kind query.Kind
			dst  *int64
		}{
			{KindResolvedOffset, &box.Offset},
			{KindResolvedWidth, &box.Width},
			{KindResolvedHeight, &box.Height},
		} {
			v, err := db.Evaluate(ctx, f.kind, node)
			if err != nil {
				return nil, err
			}
			*f.dst, _ = value.AsInt(v)
		}
		out = append(out, box)

		children, err := db.Evaluate(ctx, query.KindChildren, node)
		if err != nil {
			return nil, err
		}
		kids := value.AsNodes(children)
		for i := len(kids) - 1; i >= 0; i-- {
			stack = append(stack, kids[i])
		}
	}
	return out, nil
}
