package topology

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/layoutdb/internal/query"
	"github.com/roach88/layoutdb/internal/value"
)

var (
	// ErrUnknownNode is returned for nodes that are not live in the tree.
	ErrUnknownNode = errors.New("unknown node")
	// ErrCycle is returned when an edit would make a node its own ancestor.
	ErrCycle = errors.New("edit would create a cycle")
	// ErrAttached is returned when attaching a node that already has a parent.
	ErrAttached = errors.New("node already attached")
	// ErrNotChild is returned when a reference node is not a child of the
	// given parent.
	ErrNotChild = errors.New("reference is not a child of parent")
	// ErrRoot is returned when an edit targets the document root.
	ErrRoot = errors.New("cannot detach the root")
)

// Tree owns the structure of one document.
type Tree struct {
	db *query.Database

	mu       sync.Mutex
	root     value.NodeID
	parent   map[value.NodeID]value.NodeID
	children map[value.NodeID][]value.NodeID
}

// New creates a tree with a fresh root node.
func New(db *query.Database) *Tree {
	t := &Tree{
		db:       db,
		parent:   make(map[value.NodeID]value.NodeID),
		children: make(map[value.NodeID][]value.NodeID),
	}
	t.root = db.CreateNode()
	t.children[t.root] = nil
	return t
}

// DB returns the database the tree writes to.
func (t *Tree) DB() *query.Database {
	return t.db
}

// Root returns the document root.
func (t *Tree) Root() value.NodeID {
	return t.root
}

// CreateNode allocates a detached node.
func (t *Tree) CreateNode() value.NodeID {
	id := t.db.CreateNode()
	t.mu.Lock()
	t.children[id] = nil
	t.mu.Unlock()
	return id
}

// Len returns the number of live nodes, attached or not.
func (t *Tree) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.children)
}

// Parent returns the parent of id from the mirror.
func (t *Tree) Parent(id value.NodeID) (value.NodeID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.parent[id]
	return p, ok
}

// Children returns a copy of the children of id from the mirror.
func (t *Tree) Children(id value.NodeID) []value.NodeID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.children[id])
}

// AppendChild attaches a detached child as the last child of parent.
func (t *Tree) AppendChild(parent, child value.NodeID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.checkAttach(parent, child); err != nil {
		return err
	}
	next := append(slices.Clone(t.children[parent]), child)
	return t.commit(func(b *query.Batch) error {
		return t.stageAttach(b, parent, child, next)
	}, func() {
		t.children[parent] = next
		t.parent[child] = parent
	})
}

// InsertBefore attaches a detached child immediately before ref, which must
// be a child of parent.
func (t *Tree) InsertBefore(parent, child, ref value.NodeID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.checkAttach(parent, child); err != nil {
		return err
	}
	at := slices.Index(t.children[parent], ref)
	if at < 0 {
		return fmt.Errorf("insert %s before %s: %w", child, ref, ErrNotChild)
	}
	next := slices.Insert(slices.Clone(t.children[parent]), at, child)
	return t.commit(func(b *query.Batch) error {
		return t.stageAttach(b, parent, child, next)
	}, func() {
		t.children[parent] = next
		t.parent[child] = parent
	})
}

// Remove detaches id and retires it together with its whole subtree.
func (t *Tree) Remove(id value.NodeID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.children[id]; !ok {
		return fmt.Errorf("remove %s: %w", id, ErrUnknownNode)
	}
	if id == t.root {
		return fmt.Errorf("remove %s: %w", id, ErrRoot)
	}

	subtree := t.subtreeLocked(id)
	parent, attached := t.parent[id]
	var siblings []value.NodeID
	if attached {
		siblings = slices.DeleteFunc(slices.Clone(t.children[parent]), func(c value.NodeID) bool { return c == id })
	}

	return t.commit(func(b *query.Batch) error {
		if attached {
			if err := b.SetInput(query.KindChildrenInput, parent, value.Nodes(siblings)); err != nil {
				return err
			}
		}
		for _, n := range subtree {
			if err := b.RetireNode(n); err != nil {
				return err
			}
		}
		return nil
	}, func() {
		if attached {
			t.children[parent] = siblings
		}
		for _, n := range subtree {
			delete(t.children, n)
			delete(t.parent, n)
		}
	})
}

// Reparent moves an attached node and its subtree to the end of newParent's
// children.
func (t *Tree) Reparent(id, newParent value.NodeID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.children[id]; !ok {
		return fmt.Errorf("reparent %s: %w", id, ErrUnknownNode)
	}
	if _, ok := t.children[newParent]; !ok {
		return fmt.Errorf("reparent %s under %s: %w", id, newParent, ErrUnknownNode)
	}
	if id == t.root {
		return fmt.Errorf("reparent %s: %w", id, ErrRoot)
	}
	if t.isAncestorLocked(id, newParent) {
		return fmt.Errorf("reparent %s under %s: %w", id, newParent, ErrCycle)
	}

	oldParent, attached := t.parent[id]
	var oldSiblings []value.NodeID
	if attached {
		oldSiblings = slices.DeleteFunc(slices.Clone(t.children[oldParent]), func(c value.NodeID) bool { return c == id })
	}
	base := t.children[newParent]
	if attached && oldParent == newParent {
		base = oldSiblings
	}
	next := append(slices.Clone(base), id)

	return t.commit(func(b *query.Batch) error {
		if attached && oldParent != newParent {
			if err := b.SetInput(query.KindChildrenInput, oldParent, value.Nodes(oldSiblings)); err != nil {
				return err
			}
		}
		return t.stageAttach(b, newParent, id, next)
	}, func() {
		if attached {
			t.children[oldParent] = oldSiblings
		}
		t.children[newParent] = next
		t.parent[id] = newParent
	})
}

// Subtree returns id followed by its descendants in pre-order.
func (t *Tree) Subtree(id value.NodeID) []value.NodeID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.subtreeLocked(id)
}

func (t *Tree) checkAttach(parent, child value.NodeID) error {
	if _, ok := t.children[parent]; !ok {
		return fmt.Errorf("attach to %s: %w", parent, ErrUnknownNode)
	}
	if _, ok := t.children[child]; !ok {
		return fmt.Errorf("attach %s: %w", child, ErrUnknownNode)
	}
	if child == t.root {
		return fmt.Errorf("attach %s: %w", child, ErrRoot)
	}
	if p, ok := t.parent[child]; ok {
		return fmt.Errorf("attach %s (parent %s): %w", child, p, ErrAttached)
	}
	if t.isAncestorLocked(child, parent) {
		return fmt.Errorf("attach %s under %s: %w", child, parent, ErrCycle)
	}
	return nil
}

func (t *Tree) stageAttach(b *query.Batch, parent, child value.NodeID, siblings []value.NodeID) error {
	if err := b.SetInput(query.KindChildrenInput, parent, value.Nodes(siblings)); err != nil {
		return err
	}
	return b.SetInput(query.KindParentInput, child, value.Node(parent))
}

// isAncestorLocked reports whether a is n or an ancestor of n.
func (t *Tree) isAncestorLocked(a, n value.NodeID) bool {
	for {
		if n == a {
			return true
		}
		p, ok := t.parent[n]
		if !ok {
			return false
		}
		n = p
	}
}

func (t *Tree) subtreeLocked(id value.NodeID) []value.NodeID {
	var out []value.NodeID
	stack := []value.NodeID{id}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, n)
		kids := t.children[n]
		for i := len(kids) - 1; i >= 0; i-- {
			stack = append(stack, kids[i])
		}
	}
	return out
}

// commit stages and applies one batch, then updates the mirror.
func (t *Tree) commit(stage func(b *query.Batch) error, apply func()) error {
	if _, err := t.db.Mutate(stage); err != nil {
		return err
	}
	apply()
	return nil
}
