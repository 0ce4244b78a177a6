package query

import "github.com/roach88/layoutdb/internal/value"

// Scope is a read-only façade bound to one node. Every lookup is a
// dependency-tracked read through the owning Ctx, so structural edits
// invalidate consumers exactly like property edits.
type Scope struct {
	c    *Ctx
	node value.NodeID
}

// Node returns the node the scope is bound to.
func (s Scope) Node() value.NodeID {
	return s.node
}

// At rebinds the scope to another node.
func (s Scope) At(node value.NodeID) Scope {
	return Scope{c: s.c, node: node}
}

// Get reads a property of the current node.
func (s Scope) Get(kind Kind) (value.Value, error) {
	return s.c.Get(kind, s.node)
}

// Int reads an integer property of the current node.
func (s Scope) Int(kind Kind) (int64, bool, error) {
	return s.c.GetInt(kind, s.node)
}

// Parent returns the parent of the current node, if any.
func (s Scope) Parent() (value.NodeID, bool, error) {
	v, err := s.c.Get(KindParent, s.node)
	if err != nil {
		return value.NodeID{}, false, err
	}
	parent, ok := value.AsNode(v)
	return parent, ok, nil
}

// ParentValue reads kind at the parent of the current node. ok is false
// at the root.
func (s Scope) ParentValue(kind Kind) (v value.Value, ok bool, err error) {
	parent, ok, err := s.Parent()
	if err != nil || !ok {
		return nil, false, err
	}
	v, err = s.c.Get(kind, parent)
	return v, err == nil, err
}

func (s Scope) nodes(kind Kind) ([]value.NodeID, error) {
	v, err := s.c.Get(kind, s.node)
	if err != nil {
		return nil, err
	}
	return value.AsNodes(v), nil
}

// Children returns the children of the current node in document order.
// The slice is shared with the cache and must not be modified.
func (s Scope) Children() ([]value.NodeID, error) {
	return s.nodes(KindChildren)
}

// ChildCount returns the number of children.
func (s Scope) ChildCount() (int, error) {
	children, err := s.Children()
	return len(children), err
}

// FirstChild returns the first child, if any.
func (s Scope) FirstChild() (value.NodeID, bool, error) {
	children, err := s.Children()
	if err != nil || len(children) == 0 {
		return value.NodeID{}, false, err
	}
	return children[0], true, nil
}

// LastChild returns the last child, if any.
func (s Scope) LastChild() (value.NodeID, bool, error) {
	children, err := s.Children()
	if err != nil || len(children) == 0 {
		return value.NodeID{}, false, err
	}
	return children[len(children)-1], true, nil
}

// PrevSiblings returns the siblings before the current node in document order.
func (s Scope) PrevSiblings() ([]value.NodeID, error) {
	return s.nodes(KindPrevSiblings)
}

// NextSiblings returns the siblings after the current node in document order.
func (s Scope) NextSiblings() ([]value.NodeID, error) {
	return s.nodes(KindNextSiblings)
}

// PrevSibling returns the immediately preceding sibling, if any.
func (s Scope) PrevSibling() (value.NodeID, bool, error) {
	prev, err := s.PrevSiblings()
	if err != nil || len(prev) == 0 {
		return value.NodeID{}, false, err
	}
	return prev[len(prev)-1], true, nil
}

// NextSibling returns the immediately following sibling, if any.
func (s Scope) NextSibling() (value.NodeID, bool, error) {
	next, err := s.NextSiblings()
	if err != nil || len(next) == 0 {
		return value.NodeID{}, false, err
	}
	return next[0], true, nil
}

// Siblings returns every other child of the parent, in document order.
func (s Scope) Siblings() ([]value.NodeID, error) {
	prev, err := s.PrevSiblings()
	if err != nil {
		return nil, err
	}
	next, err := s.NextSiblings()
	if err != nil {
		return nil, err
	}
	out := make([]value.NodeID, 0, len(prev)+len(next))
	return append(append(out, prev...), next...), nil
}

// Ancestors returns the ancestors of the current node, nearest first.
func (s Scope) Ancestors() ([]value.NodeID, error) {
	return s.nodes(KindAncestors)
}

// Descendants returns the descendants of the current node in pre-order.
func (s Scope) Descendants() ([]value.NodeID, error) {
	return s.nodes(KindDescendants)
}

// Depth returns the number of ancestors.
func (s Scope) Depth() (int64, error) {
	d, _, err := s.c.GetInt(KindDepth, s.node)
	return d, err
}

// ChildValues reads kind for every child, in document order.
func (s Scope) ChildValues(kind Kind) ([]value.Value, error) {
	children, err := s.Children()
	if err != nil {
		return nil, err
	}
	out := make([]value.Value, len(children))
	for i, child := range children {
		v, err := s.c.Get(kind, child)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
