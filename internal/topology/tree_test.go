package topology

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/layoutdb/internal/query"
	"github.com/roach88/layoutdb/internal/value"
)

func newTree(t *testing.T) *Tree {
	t.Helper()
	db := query.NewDatabase(query.MustRegistry(),
		query.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	return New(db)
}

func evalNodes(t *testing.T, tr *Tree, kind query.Kind, id value.NodeID) []value.NodeID {
	t.Helper()
	v, err := tr.DB().Evaluate(context.Background(), kind, id)
	require.NoError(t, err)
	return value.AsNodes(v)
}

// ============================================================================
// Attach
// ============================================================================

func TestTree_AppendChild(t *testing.T) {
	tr := newTree(t)
	root := tr.Root()
	a, b := tr.CreateNode(), tr.CreateNode()

	rev := tr.DB().Revision()
	require.NoError(t, tr.AppendChild(root, a))
	require.NoError(t, tr.AppendChild(root, b))
	assert.Equal(t, rev+2, tr.DB().Revision(), "one revision per edit")

	assert.Equal(t, []value.NodeID{a, b}, tr.Children(root))
	assert.Equal(t, []value.NodeID{a, b}, evalNodes(t, tr, query.KindChildren, root))

	p, ok := tr.Parent(b)
	require.True(t, ok)
	assert.Equal(t, root, p)

	v, err := tr.DB().Evaluate(context.Background(), query.KindParent, b)
	require.NoError(t, err)
	got, ok := value.AsNode(v)
	require.True(t, ok)
	assert.Equal(t, root, got)
}

func TestTree_InsertBefore(t *testing.T) {
	tr := newTree(t)
	root := tr.Root()
	a, b, c := tr.CreateNode(), tr.CreateNode(), tr.CreateNode()
	require.NoError(t, tr.AppendChild(root, a))
	require.NoError(t, tr.AppendChild(root, c))

	require.NoError(t, tr.InsertBefore(root, b, c))
	assert.Equal(t, []value.NodeID{a, b, c}, evalNodes(t, tr, query.KindChildren, root))
	assert.Equal(t, []value.NodeID{a}, evalNodes(t, tr, query.KindPrevSiblings, b))
	assert.Equal(t, []value.NodeID{c}, evalNodes(t, tr, query.KindNextSiblings, b))

	err := tr.InsertBefore(root, tr.CreateNode(), tr.CreateNode())
	assert.ErrorIs(t, err, ErrNotChild)
}

func TestTree_AttachErrors(t *testing.T) {
	tr := newTree(t)
	root := tr.Root()
	a, b := tr.CreateNode(), tr.CreateNode()
	require.NoError(t, tr.AppendChild(root, a))
	require.NoError(t, tr.AppendChild(a, b))

	rev := tr.DB().Revision()
	assert.ErrorIs(t, tr.AppendChild(root, a), ErrAttached)
	assert.ErrorIs(t, tr.AppendChild(b, root), ErrRoot)
	assert.ErrorIs(t, tr.AppendChild(root, value.NodeID{Index: 99}), ErrUnknownNode)
	assert.ErrorIs(t, tr.AppendChild(value.NodeID{Index: 99}, tr.CreateNode()), ErrUnknownNode)
	assert.Equal(t, rev, tr.DB().Revision(), "rejected edits do not advance")
}

// ============================================================================
// Remove
// ============================================================================

func TestTree_RemoveRetiresSubtree(t *testing.T) {
	tr := newTree(t)
	ctx := context.Background()
	root := tr.Root()
	a, b, c := tr.CreateNode(), tr.CreateNode(), tr.CreateNode()
	require.NoError(t, tr.AppendChild(root, a))
	require.NoError(t, tr.AppendChild(a, b))
	require.NoError(t, tr.AppendChild(root, c))

	assert.Equal(t, []value.NodeID{a, b, c}, evalNodes(t, tr, query.KindDescendants, root))

	require.NoError(t, tr.Remove(a))
	assert.Equal(t, []value.NodeID{c}, evalNodes(t, tr, query.KindChildren, root))
	assert.Equal(t, []value.NodeID{c}, evalNodes(t, tr, query.KindDescendants, root))
	assert.False(t, tr.DB().Live(a))
	assert.False(t, tr.DB().Live(b))
	assert.Equal(t, 2, tr.Len())

	_, err := tr.DB().Evaluate(ctx, query.KindDepth, b)
	assert.True(t, query.IsRetiredNodeError(err))

	assert.ErrorIs(t, tr.Remove(a), ErrUnknownNode)
	assert.ErrorIs(t, tr.Remove(root), ErrRoot)
}

func TestTree_RemoveReusesIndex(t *testing.T) {
	tr := newTree(t)
	a := tr.CreateNode()
	require.NoError(t, tr.AppendChild(tr.Root(), a))
	require.NoError(t, tr.Remove(a))

	again := tr.CreateNode()
	assert.Equal(t, a.Index, again.Index)
	assert.NotEqual(t, a.Gen, again.Gen)

	v, err := tr.DB().Evaluate(context.Background(), query.KindParent, again)
	require.NoError(t, err)
	_, attached := value.AsNode(v)
	assert.False(t, attached, "new generation starts detached")
}

// ============================================================================
// Reparent
// ============================================================================

func TestTree_Reparent(t *testing.T) {
	tr := newTree(t)
	ctx := context.Background()
	root := tr.Root()
	a, b, c := tr.CreateNode(), tr.CreateNode(), tr.CreateNode()
	require.NoError(t, tr.AppendChild(root, a))
	require.NoError(t, tr.AppendChild(root, b))
	require.NoError(t, tr.AppendChild(a, c))

	depth, err := tr.DB().Evaluate(ctx, query.KindDepth, c)
	require.NoError(t, err)
	assert.Equal(t, value.Int(2), depth)

	require.NoError(t, tr.Reparent(a, b))
	assert.Equal(t, []value.NodeID{b}, evalNodes(t, tr, query.KindChildren, root))
	assert.Equal(t, []value.NodeID{a}, evalNodes(t, tr, query.KindChildren, b))
	assert.Equal(t, []value.NodeID{a, b, root}, evalNodes(t, tr, query.KindAncestors, c))

	depth, err = tr.DB().Evaluate(ctx, query.KindDepth, c)
	require.NoError(t, err)
	assert.Equal(t, value.Int(3), depth)
}

func TestTree_ReparentSameParentMovesLast(t *testing.T) {
	tr := newTree(t)
	root := tr.Root()
	a, b := tr.CreateNode(), tr.CreateNode()
	require.NoError(t, tr.AppendChild(root, a))
	require.NoError(t, tr.AppendChild(root, b))

	require.NoError(t, tr.Reparent(a, root))
	assert.Equal(t, []value.NodeID{b, a}, evalNodes(t, tr, query.KindChildren, root))
}

func TestTree_ReparentCycle(t *testing.T) {
	tr := newTree(t)
	root := tr.Root()
	a, b := tr.CreateNode(), tr.CreateNode()
	require.NoError(t, tr.AppendChild(root, a))
	require.NoError(t, tr.AppendChild(a, b))

	assert.ErrorIs(t, tr.Reparent(a, b), ErrCycle)
	assert.ErrorIs(t, tr.Reparent(a, a), ErrCycle)
	assert.ErrorIs(t, tr.Reparent(root, a), ErrRoot)
	assert.Equal(t, []value.NodeID{a, b}, tr.Subtree(a), "unchanged")
}
