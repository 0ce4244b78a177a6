package value

import (
	"fmt"
	"slices"
	"strings"
	"unicode/utf16"
)

// Value is a sealed interface over the values a query may produce or an
// input may hold. Only Null, Int, Str, Bool, List, Record, Node and Nodes
// implement it.
type Value interface {
	value() // Sealed
}

// Null is the absent value. It is the default of most input kinds.
type Null struct{}

func (Null) value() {}

// Int is an integer value. Lengths are integer layout units.
type Int int64

func (Int) value() {}

// Str is a string value, typically a keyword such as "block" or "absolute".
type Str string

func (Str) value() {}

// Bool is a boolean value.
type Bool bool

func (Bool) value() {}

// List is an ordered sequence of values.
type List []Value

func (List) value() {}

// Record maps field names to values. Use SortedKeys for deterministic iteration.
type Record map[string]Value

func (Record) value() {}

// Node wraps a single node identity.
type Node NodeID

func (Node) value() {}

// Nodes is an ordered sequence of node identities.
type Nodes []NodeID

func (Nodes) value() {}

// SortedKeys returns keys in canonical order (UTF-16 code units).
func (r Record) SortedKeys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysUTF16)
	return keys
}

// compareKeysUTF16 orders strings by UTF-16 code units, which differs from
// Go's byte-wise UTF-8 ordering for supplementary-plane characters.
func compareKeysUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	return slices.Compare(a16, b16)
}

// Equal reports whether two values are structurally identical.
// A nil Value equals only nil or Null.
func Equal(a, b Value) bool {
	if a == nil {
		a = Null{}
	}
	if b == nil {
		b = Null{}
	}
	switch av := a.(type) {
	case Null:
		_, ok := b.(Null)
		return ok
	case Int:
		bv, ok := b.(Int)
		return ok && av == bv
	case Str:
		bv, ok := b.(Str)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Node:
		bv, ok := b.(Node)
		return ok && av == bv
	case Nodes:
		bv, ok := b.(Nodes)
		return ok && slices.Equal(av, bv)
	case List:
		bv, ok := b.(List)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Record:
		bv, ok := b.(Record)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			other, exists := bv[k]
			if !exists || !Equal(v, other) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// AsInt returns the integer held by v. Null reads as (0, false).
func AsInt(v Value) (int64, bool) {
	n, ok := v.(Int)
	return int64(n), ok
}

// AsStr returns the string held by v.
func AsStr(v Value) (string, bool) {
	s, ok := v.(Str)
	return string(s), ok
}

// AsBool returns the boolean held by v. Anything but Bool(true) is false.
func AsBool(v Value) bool {
	b, ok := v.(Bool)
	return ok && bool(b)
}

// AsNode returns the node held by v. Null and the zero NodeID read as absent.
func AsNode(v Value) (NodeID, bool) {
	n, ok := v.(Node)
	if !ok || NodeID(n).IsZero() {
		return NodeID{}, false
	}
	return NodeID(n), true
}

// AsNodes returns the node list held by v. Null reads as an empty list.
func AsNodes(v Value) []NodeID {
	ns, ok := v.(Nodes)
	if !ok {
		return nil
	}
	return ns
}

// Format renders v for logs, traces and error messages.
func Format(v Value) string {
	switch val := v.(type) {
	case nil, Null:
		return "null"
	case Int:
		return fmt.Sprintf("%d", int64(val))
	case Str:
		return fmt.Sprintf("%q", string(val))
	case Bool:
		return fmt.Sprintf("%t", bool(val))
	case Node:
		return NodeID(val).String()
	case Nodes:
		parts := make([]string, len(val))
		for i, n := range val {
			parts[i] = n.String()
		}
		return "[" + strings.Join(parts, " ") + "]"
	case List:
		parts := make([]string, len(val))
		for i, elem := range val {
			parts[i] = Format(elem)
		}
		return "[" + strings.Join(parts, " ") + "]"
	case Record:
		keys := val.SortedKeys()
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ":" + Format(val[k])
		}
		return "{" + strings.Join(parts, " ") + "}"
	default:
		return fmt.Sprintf("<%T>", v)
	}
}
