package scheduler

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/layoutdb/internal/query"
	"github.com/roach88/layoutdb/internal/value"
)

const (
	kindIsContext query.Kind = query.FirstUserKind + iota // input: starts a unit
	kindSize                                              // input: own size
	kindWidth                                             // input: explicit width
	kindTotal                                             // derived: size + children's totals
	kindAvail                                             // derived: width or parent's avail
	kindShared                                            // derived: blocks until released
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRegistry(t *testing.T, shared func()) *query.Registry {
	t.Helper()
	reg, err := query.NewRegistry(
		query.Descriptor{Kind: kindIsContext, Name: "IsContext", Class: query.ClassInput, Default: value.Bool(false)},
		query.Descriptor{Kind: kindSize, Name: "Size", Class: query.ClassInput, Default: value.Int(1)},
		query.Descriptor{Kind: kindWidth, Name: "Width", Class: query.ClassInput},
		query.Descriptor{Kind: kindTotal, Name: "Total", Class: query.ClassDerived,
			Compute: func(c *query.Ctx, key value.NodeID) (value.Value, error) {
				s := c.Self()
				own, _, err := s.Int(kindSize)
				if err != nil {
					return nil, err
				}
				totals, err := s.ChildValues(kindTotal)
				if err != nil {
					return nil, err
				}
				for _, v := range totals {
					n, _ := value.AsInt(v)
					own += n
				}
				return value.Int(own), nil
			}},
		query.Descriptor{Kind: kindAvail, Name: "Avail", Class: query.ClassDerived,
			Compute: func(c *query.Ctx, key value.NodeID) (value.Value, error) {
				s := c.Self()
				if w, ok, err := s.Int(kindWidth); err != nil || ok {
					return value.Int(w), err
				}
				v, ok, err := s.ParentValue(kindAvail)
				if err != nil || !ok {
					return value.Int(1000), err
				}
				n, _ := value.AsInt(v)
				return value.Int(n - 10), nil
			}},
		query.Descriptor{Kind: kindShared, Name: "Shared", Class: query.ClassDerived,
			Compute: func(c *query.Ctx, key value.NodeID) (value.Value, error) {
				if shared != nil {
					shared()
				}
				return value.Int(1), nil
			}},
	)
	require.NoError(t, err)
	return reg
}

// buildTree creates a tree from a parent -> children adjacency map and
// marks the given nodes as context roots.
func buildTree(t *testing.T, db *query.Database, edges map[value.NodeID][]value.NodeID, contexts ...value.NodeID) {
	t.Helper()
	_, err := db.Mutate(func(b *query.Batch) error {
		for parent, children := range edges {
			if err := b.SetInput(query.KindChildrenInput, parent, value.Nodes(children)); err != nil {
				return err
			}
			for _, child := range children {
				if err := b.SetInput(query.KindParentInput, child, value.Node(parent)); err != nil {
					return err
				}
			}
		}
		for _, c := range contexts {
			if err := b.SetInput(kindIsContext, c, value.Bool(true)); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func isContext(ctx context.Context, db *query.Database, node value.NodeID) (bool, error) {
	v, err := db.Evaluate(ctx, kindIsContext, node)
	return value.AsBool(v), err
}

func n(i uint32) value.NodeID {
	return value.NodeID{Index: i}
}

type fixedIDs struct{ id string }

func (f fixedIDs) Generate() string { return f.id }

// fixture:
//
//	1
//	├── 2 (context)
//	│   ├── 4
//	│   └── 5 (context)
//	│       └── 8
//	├── 3
//	│   └── 6
//	└── 7 (context)
func newFixture(t *testing.T, shared func()) *query.Database {
	t.Helper()
	db := query.NewDatabase(testRegistry(t, shared), query.WithLogger(discardLogger()))
	buildTree(t, db, map[value.NodeID][]value.NodeID{
		n(1): {n(2), n(3), n(7)},
		n(2): {n(4), n(5)},
		n(3): {n(6)},
		n(5): {n(8)},
	}, n(2), n(5), n(7))
	return db
}
