package query

import (
	"github.com/roach88/layoutdb/internal/value"
)

// Built-in topology kinds. The two inputs are written by the topology layer;
// the derived kinds answer relationship lookups with precise dependencies.
const (
	// KindParentInput holds a node's parent as value.Node (zero when detached or root).
	KindParentInput Kind = iota + 1
	// KindChildrenInput holds a node's children in document order as value.Nodes.
	KindChildrenInput

	KindParent       // value.Node, zero at the root
	KindChildren     // value.Nodes
	KindPrevSiblings // value.Nodes in document order
	KindNextSiblings // value.Nodes in document order
	KindAncestors    // value.Nodes, nearest first
	KindDescendants  // value.Nodes, pre-order
	KindDepth        // value.Int, 0 at the root

	builtinEnd
)

const builtinCount = int(builtinEnd) - 1

func builtinDescriptors() []Descriptor {
	return []Descriptor{
		{Kind: KindParentInput, Name: "ParentInput", Class: ClassInput, Default: value.Node{}},
		{Kind: KindChildrenInput, Name: "ChildrenInput", Class: ClassInput, Default: value.Nodes(nil)},
		{Kind: KindParent, Name: "Parent", Class: ClassDerived, Compute: computeParent},
		{Kind: KindChildren, Name: "Children", Class: ClassDerived, Compute: computeChildren},
		{Kind: KindPrevSiblings, Name: "PrevSiblings", Class: ClassDerived, Compute: computePrevSiblings},
		{Kind: KindNextSiblings, Name: "NextSiblings", Class: ClassDerived, Compute: computeNextSiblings},
		{Kind: KindAncestors, Name: "Ancestors", Class: ClassDerived, Compute: computeAncestors},
		{Kind: KindDescendants, Name: "Descendants", Class: ClassDerived, Compute: computeDescendants},
		{Kind: KindDepth, Name: "Depth", Class: ClassDerived, Compute: computeDepth},
	}
}

func computeParent(c *Ctx, key value.NodeID) (value.Value, error) {
	v, err := c.Get(KindParentInput, key)
	if err != nil {
		return nil, err
	}
	parent, _ := value.AsNode(v)
	return value.Node(parent), nil
}

func computeChildren(c *Ctx, key value.NodeID) (value.Value, error) {
	v, err := c.Get(KindChildrenInput, key)
	if err != nil {
		return nil, err
	}
	return value.Nodes(cloneNodes(value.AsNodes(v))), nil
}

// siblingsOf returns the children of key's parent and key's index among them.
func siblingsOf(c *Ctx, key value.NodeID) ([]value.NodeID, int, error) {
	parent, ok, err := c.Self().Parent()
	if err != nil || !ok {
		return nil, -1, err
	}
	siblings, err := c.Scope(parent).Children()
	if err != nil {
		return nil, -1, err
	}
	for i, id := range siblings {
		if id == key {
			return siblings, i, nil
		}
	}
	return siblings, -1, nil
}

func computePrevSiblings(c *Ctx, key value.NodeID) (value.Value, error) {
	siblings, idx, err := siblingsOf(c, key)
	if err != nil || idx <= 0 {
		return value.Nodes{}, err
	}
	return value.Nodes(cloneNodes(siblings[:idx])), nil
}

func computeNextSiblings(c *Ctx, key value.NodeID) (value.Value, error) {
	siblings, idx, err := siblingsOf(c, key)
	if err != nil || idx < 0 {
		return value.Nodes{}, err
	}
	return value.Nodes(cloneNodes(siblings[idx+1:])), nil
}

func computeAncestors(c *Ctx, key value.NodeID) (value.Value, error) {
	parent, ok, err := c.Self().Parent()
	if err != nil || !ok {
		return value.Nodes{}, err
	}
	rest, err := c.Scope(parent).Ancestors()
	if err != nil {
		return nil, err
	}
	return value.Nodes(append([]value.NodeID{parent}, rest...)), nil
}

func computeDescendants(c *Ctx, key value.NodeID) (value.Value, error) {
	children, err := c.Self().Children()
	if err != nil {
		return nil, err
	}
	out := make([]value.NodeID, 0, len(children))
	for _, child := range children {
		below, err := c.Scope(child).Descendants()
		if err != nil {
			return nil, err
		}
		out = append(out, child)
		out = append(out, below...)
	}
	return value.Nodes(out), nil
}

func computeDepth(c *Ctx, key value.NodeID) (value.Value, error) {
	parent, ok, err := c.Self().Parent()
	if err != nil || !ok {
		return value.Int(0), err
	}
	d, _, err := c.GetInt(KindDepth, parent)
	if err != nil {
		return nil, err
	}
	return value.Int(d + 1), nil
}

func cloneNodes(ids []value.NodeID) []value.NodeID {
	out := make([]value.NodeID, len(ids))
	copy(out, ids)
	return out
}
