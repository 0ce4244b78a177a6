package query

import (
	"fmt"

	"github.com/roach88/layoutdb/internal/value"
)

// Kind identifies one input or derived property. The set of kinds is fixed
// when the Registry is built.
type Kind uint16

// KindInvalid is the zero Kind and is never registered.
const KindInvalid Kind = 0

// FirstUserKind is the lowest Kind available to registering layers.
// Kinds below it are reserved for the built-in topology queries.
const FirstUserKind Kind = 32

// Class distinguishes externally written inputs from computed properties.
type Class uint8

const (
	// ClassInput slots are written by SetInput and read with a kind default.
	ClassInput Class = iota + 1
	// ClassDerived slots are computed by a Body and memoized.
	ClassDerived
)

func (c Class) String() string {
	switch c {
	case ClassInput:
		return "input"
	case ClassDerived:
		return "derived"
	default:
		return fmt.Sprintf("class(%d)", uint8(c))
	}
}

// Body computes a derived property for key. Every read must go through c.
type Body func(c *Ctx, key value.NodeID) (value.Value, error)

// Descriptor is one row of the dispatch table.
type Descriptor struct {
	Kind  Kind
	Name  string
	Class Class

	// Default is returned for input slots that were never written.
	// A nil Default reads as value.Null.
	Default value.Value

	// Compute is the body of a derived kind.
	Compute Body

	// Fallback, when set on a derived kind, is the value a re-entrant read
	// yields while the same slot is already being computed. Kinds without a
	// Fallback fail such reads with CYCLE_DETECTED.
	Fallback func(key value.NodeID) value.Value
}

func (d *Descriptor) defaultValue() value.Value {
	if d.Default == nil {
		return value.Null{}
	}
	return d.Default
}

// Slot identifies one (kind, key) cell of the database.
type Slot struct {
	Kind Kind
	Key  value.NodeID
}

func (s Slot) String() string {
	return fmt.Sprintf("kind%d(%s)", s.Kind, s.Key)
}

// Registry is the closed set of kinds a Database dispatches over.
// It is immutable once built and may be shared by many databases.
type Registry struct {
	table  []Descriptor // indexed by Kind; Kind 0 unused
	byName map[string]Kind
	kinds  []Kind
}

// NewRegistry builds a registry from the built-in topology kinds plus descs.
func NewRegistry(descs ...Descriptor) (*Registry, error) {
	all := append(builtinDescriptors(), descs...)

	maxKind := Kind(0)
	for _, d := range all {
		if d.Kind > maxKind {
			maxKind = d.Kind
		}
	}

	r := &Registry{
		table:  make([]Descriptor, int(maxKind)+1),
		byName: make(map[string]Kind, len(all)),
		kinds:  make([]Kind, 0, len(all)),
	}

	for i, d := range all {
		builtin := i < builtinCount
		if err := validateDescriptor(d, builtin); err != nil {
			return nil, err
		}
		if r.table[d.Kind].Kind != KindInvalid {
			return nil, fmt.Errorf("kind %d registered twice (%s, %s)", d.Kind, r.table[d.Kind].Name, d.Name)
		}
		if _, dup := r.byName[d.Name]; dup {
			return nil, fmt.Errorf("kind name %q registered twice", d.Name)
		}
		r.table[d.Kind] = d
		r.byName[d.Name] = d.Kind
		r.kinds = append(r.kinds, d.Kind)
	}

	return r, nil
}

// MustRegistry is like NewRegistry but panics on error.
// Use only in tests or for registries built from static tables.
func MustRegistry(descs ...Descriptor) *Registry {
	r, err := NewRegistry(descs...)
	if err != nil {
		panic(err)
	}
	return r
}

func validateDescriptor(d Descriptor, builtin bool) error {
	if d.Kind == KindInvalid {
		return fmt.Errorf("descriptor %q: kind 0 is reserved", d.Name)
	}
	if !builtin && d.Kind < FirstUserKind {
		return fmt.Errorf("descriptor %q: kind %d is below FirstUserKind (%d)", d.Name, d.Kind, FirstUserKind)
	}
	if d.Name == "" {
		return fmt.Errorf("descriptor for kind %d has no name", d.Kind)
	}
	switch d.Class {
	case ClassInput:
		if d.Compute != nil || d.Fallback != nil {
			return fmt.Errorf("input kind %q must not declare Compute or Fallback", d.Name)
		}
	case ClassDerived:
		if d.Compute == nil {
			return fmt.Errorf("derived kind %q has no Compute body", d.Name)
		}
		if d.Default != nil {
			return fmt.Errorf("derived kind %q must not declare Default", d.Name)
		}
	default:
		return fmt.Errorf("kind %q has invalid class %d", d.Name, d.Class)
	}
	return nil
}

// Lookup returns the descriptor of kind.
func (r *Registry) Lookup(kind Kind) (*Descriptor, bool) {
	if int(kind) >= len(r.table) || r.table[kind].Kind == KindInvalid {
		return nil, false
	}
	return &r.table[kind], true
}

// ByName resolves a kind from its registered name.
func (r *Registry) ByName(name string) (Kind, bool) {
	k, ok := r.byName[name]
	return k, ok
}

// Name returns the registered name of kind, or "kind<N>" when unknown.
func (r *Registry) Name(kind Kind) string {
	if d, ok := r.Lookup(kind); ok {
		return d.Name
	}
	return fmt.Sprintf("kind%d", kind)
}

// Kinds returns every registered kind in registration order.
func (r *Registry) Kinds() []Kind {
	out := make([]Kind, len(r.kinds))
	copy(out, r.kinds)
	return out
}

// SlotName renders slot with its registered kind name, e.g. "ResolvedWidth(n42)".
func (r *Registry) SlotName(s Slot) string {
	return fmt.Sprintf("%s(%s)", r.Name(s.Kind), s.Key)
}
