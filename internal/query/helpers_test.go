package query

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/roach88/layoutdb/internal/value"
)

// Test kinds. Inputs first, then derived kinds.
const (
	kindWidth Kind = FirstUserKind + iota
	kindHeight
	kindColor

	kindResolvedWidth // Width or 0
	kindArea          // Width * Height
	kindAreaCopy      // same reads as Area
	kindAreaReversed  // reads Height before Width
	kindChildSum      // sum of children's ResolvedWidth
	kindCycleA        // reads CycleB
	kindCycleB        // reads CycleA
	kindSelf          // reads itself
	kindFallA         // FallB + 1, fallback 7
	kindFallB         // FallA * 2
	kindChain         // Chain(index-1) + 1
)

// callCounter counts body executions per kind.
type callCounter struct {
	mu sync.Mutex
	n  map[Kind]int
}

func (c *callCounter) inc(k Kind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.n == nil {
		c.n = make(map[Kind]int)
	}
	c.n[k]++
}

func (c *callCounter) get(k Kind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n[k]
}

func intOr0(c *Ctx, k Kind, key value.NodeID) (int64, error) {
	n, _, err := c.GetInt(k, key)
	return n, err
}

func testDescriptors(calls *callCounter) []Descriptor {
	counted := func(k Kind, body Body) Body {
		return func(c *Ctx, key value.NodeID) (value.Value, error) {
			calls.inc(k)
			return body(c, key)
		}
	}
	area := func(first, second Kind) Body {
		return func(c *Ctx, key value.NodeID) (value.Value, error) {
			a, err := intOr0(c, first, key)
			if err != nil {
				return nil, err
			}
			b, err := intOr0(c, second, key)
			if err != nil {
				return nil, err
			}
			return value.Int(a * b), nil
		}
	}

	return []Descriptor{
		{Kind: kindWidth, Name: "Width", Class: ClassInput},
		{Kind: kindHeight, Name: "Height", Class: ClassInput},
		{Kind: kindColor, Name: "Color", Class: ClassInput, Default: value.Str("black")},
		{Kind: kindResolvedWidth, Name: "ResolvedWidth", Class: ClassDerived,
			Compute: counted(kindResolvedWidth, func(c *Ctx, key value.NodeID) (value.Value, error) {
				w, err := intOr0(c, kindWidth, key)
				return value.Int(w), err
			})},
		{Kind: kindArea, Name: "Area", Class: ClassDerived, Compute: counted(kindArea, area(kindWidth, kindHeight))},
		{Kind: kindAreaCopy, Name: "AreaCopy", Class: ClassDerived, Compute: counted(kindAreaCopy, area(kindWidth, kindHeight))},
		{Kind: kindAreaReversed, Name: "AreaReversed", Class: ClassDerived, Compute: counted(kindAreaReversed, area(kindHeight, kindWidth))},
		{Kind: kindChildSum, Name: "ChildSum", Class: ClassDerived,
			Compute: counted(kindChildSum, func(c *Ctx, key value.NodeID) (value.Value, error) {
				widths, err := c.Self().ChildValues(kindResolvedWidth)
				if err != nil {
					return nil, err
				}
				var sum int64
				for _, w := range widths {
					n, _ := value.AsInt(w)
					sum += n
				}
				return value.Int(sum), nil
			})},
		{Kind: kindCycleA, Name: "CycleA", Class: ClassDerived,
			Compute: func(c *Ctx, key value.NodeID) (value.Value, error) {
				return c.Get(kindCycleB, key)
			}},
		{Kind: kindCycleB, Name: "CycleB", Class: ClassDerived,
			Compute: func(c *Ctx, key value.NodeID) (value.Value, error) {
				return c.Get(kindCycleA, key)
			}},
		{Kind: kindSelf, Name: "Self", Class: ClassDerived,
			Compute: func(c *Ctx, key value.NodeID) (value.Value, error) {
				return c.Get(kindSelf, key)
			}},
		{Kind: kindFallA, Name: "FallA", Class: ClassDerived,
			Compute: counted(kindFallA, func(c *Ctx, key value.NodeID) (value.Value, error) {
				b, err := intOr0(c, kindFallB, key)
				return value.Int(b + 1), err
			}),
			Fallback: func(value.NodeID) value.Value { return value.Int(7) }},
		{Kind: kindFallB, Name: "FallB", Class: ClassDerived,
			Compute: counted(kindFallB, func(c *Ctx, key value.NodeID) (value.Value, error) {
				a, err := intOr0(c, kindFallA, key)
				return value.Int(a * 2), err
			})},
		{Kind: kindChain, Name: "Chain", Class: ClassDerived,
			Compute: func(c *Ctx, key value.NodeID) (value.Value, error) {
				if key.Index <= 1 {
					return value.Int(1), nil
				}
				prev, err := intOr0(c, kindChain, value.NodeID{Index: key.Index - 1})
				return value.Int(prev + 1), err
			}},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDB(t *testing.T, opts ...Option) (*Database, *callCounter) {
	t.Helper()
	calls := &callCounter{}
	reg, err := NewRegistry(testDescriptors(calls)...)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	opts = append([]Option{WithLogger(discardLogger())}, opts...)
	return NewDatabase(reg, opts...), calls
}

// link writes a parent/children relationship in one batch.
func link(t *testing.T, db *Database, parent value.NodeID, children ...value.NodeID) {
	t.Helper()
	_, err := db.Mutate(func(b *Batch) error {
		if err := b.SetInput(KindChildrenInput, parent, value.Nodes(children)); err != nil {
			return err
		}
		for _, child := range children {
			if err := b.SetInput(KindParentInput, child, value.Node(parent)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("link: %v", err)
	}
}

func n(i uint32) value.NodeID {
	return value.NodeID{Index: i}
}
