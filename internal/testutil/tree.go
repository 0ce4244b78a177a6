package testutil

import (
	"testing"

	"github.com/roach88/layoutdb/internal/query"
	"github.com/roach88/layoutdb/internal/topology"
	"github.com/roach88/layoutdb/internal/value"
)

// Node declares one node of a test document.
type Node struct {
	Name     string
	Props    map[query.Kind]value.Value
	Children []Node
}

// N is shorthand for a node with children and no props.
func N(name string, children ...Node) Node {
	return Node{Name: name, Children: children}
}

// With returns a copy of n with kind set to v.
func (n Node) With(kind query.Kind, v value.Value) Node {
	props := make(map[query.Kind]value.Value, len(n.Props)+1)
	for k, pv := range n.Props {
		props[k] = pv
	}
	props[kind] = v
	n.Props = props
	return n
}

// BuildTree attaches shape under the root of tr. shape itself describes the
// root: its props are written to tr.Root() and its children appended in
// order. Every input write happens in a single batch after the structure
// is built. The returned map resolves node names to identities.
func BuildTree(t testing.TB, tr *topology.Tree, shape Node) map[string]value.NodeID {
	t.Helper()

	ids := map[string]value.NodeID{shape.Name: tr.Root()}
	type pending struct {
		id    value.NodeID
		props map[query.Kind]value.Value
	}
	writes := []pending{{tr.Root(), shape.Props}}

	var attach func(parent value.NodeID, children []Node)
	attach = func(parent value.NodeID, children []Node) {
		for _, c := range children {
			if _, dup := ids[c.Name]; dup {
				t.Fatalf("BuildTree: duplicate node name %q", c.Name)
			}
			id := tr.CreateNode()
			if err := tr.AppendChild(parent, id); err != nil {
				t.Fatalf("BuildTree: append %s: %v", c.Name, err)
			}
			ids[c.Name] = id
			writes = append(writes, pending{id, c.Props})
			attach(id, c.Children)
		}
	}
	attach(tr.Root(), shape.Children)

	_, err := tr.DB().Mutate(func(b *query.Batch) error {
		for _, w := range writes {
			for k, v := range w.props {
				if err := b.SetInput(k, w.id, v); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("BuildTree: write props: %v", err)
	}
	return ids
}
