package scheduler

import (
	"context"
	"fmt"

	"github.com/roach88/layoutdb/internal/query"
	"github.com/roach88/layoutdb/internal/value"
)

// UnitKind names the pass a WorkUnit belongs to.
type UnitKind int

const (
	StyleSubtree UnitKind = iota
	LayoutFC
	PaintStackingContext
)

func (k UnitKind) String() string {
	switch k {
	case StyleSubtree:
		return "style-subtree"
	case LayoutFC:
		return "layout-fc"
	case PaintStackingContext:
		return "paint-stacking-context"
	default:
		return fmt.Sprintf("unit-kind(%d)", int(k))
	}
}

// Priority orders units within a wave. Lower values dispatch first.
type Priority int

const (
	Critical Priority = iota
	High
	Low
)

func (p Priority) String() string {
	switch p {
	case Critical:
		return "critical"
	case High:
		return "high"
	case Low:
		return "low"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// WorkUnit is an independently schedulable subtree of work.
type WorkUnit struct {
	ID       string
	Kind     UnitKind
	Root     value.NodeID
	Depth    int            // number of enclosing units
	Nodes    []value.NodeID // Root first, then owned descendants in pre-order
	Priority Priority
}

// Boundary reports whether node roots its own unit. It is evaluated by the
// coordinator before any unit runs.
type Boundary func(ctx context.Context, db *query.Database, node value.NodeID) (bool, error)

// Partition walks the subtree under root and splits it into units. root
// always starts a unit; every other node starts one when isBoundary holds
// and otherwise joins the unit of its nearest enclosing boundary.
func Partition(ctx context.Context, db *query.Database, root value.NodeID, kind UnitKind, isBoundary Boundary) ([]WorkUnit, error) {
	units := []WorkUnit{newUnit(kind, root, 0)}

	type frame struct {
		node value.NodeID
		unit int
	}
	stack := []frame{{node: root, unit: 0}}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		v, err := db.Evaluate(ctx, query.KindChildren, top.node)
		if err != nil {
			return nil, fmt.Errorf("partition children of %s: %w", top.node, err)
		}
		children := value.AsNodes(v)

		// Push in reverse so children are visited in document order.
		for i := len(children) - 1; i >= 0; i-- {
			child := children[i]
			boundary, err := isBoundary(ctx, db, child)
			if err != nil {
				return nil, fmt.Errorf("partition boundary of %s: %w", child, err)
			}
			owner := top.unit
			if boundary {
				units = append(units, newUnit(kind, child, units[top.unit].Depth+1))
				owner = len(units) - 1
			}
			stack = append(stack, frame{node: child, unit: owner})
		}
		if top.node != units[top.unit].Root {
			units[top.unit].Nodes = append(units[top.unit].Nodes, top.node)
		}
	}

	return units, nil
}

func newUnit(kind UnitKind, root value.NodeID, depth int) WorkUnit {
	p := High
	switch {
	case depth == 0:
		p = Critical
	case kind == PaintStackingContext:
		p = Low
	}
	return WorkUnit{
		ID:       fmt.Sprintf("%s/%s", kind, root),
		Kind:     kind,
		Root:     root,
		Depth:    depth,
		Nodes:    []value.NodeID{root},
		Priority: p,
	}
}
