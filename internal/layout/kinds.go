package layout

import (
	"github.com/roach88/layoutdb/internal/query"
	"github.com/roach88/layoutdb/internal/value"
)

// Input kinds, written by the style layer.
const (
	KindDisplay       query.Kind = query.FirstUserKind + iota // Str: block|inline|flex|grid|flow-root|none
	KindPosition                                              // Str: static|relative|absolute|fixed
	KindFloat                                                 // Str: none|left|right
	KindOverflow                                              // Str: visible|hidden|scroll|auto
	KindWidth                                                 // Int, or Null for auto
	KindHeight                                                // Int, Str "N%", or Null for auto
	KindViewportWidth                                         // Int, read at the root
	KindMinContent                                            // Int
)

// Derived kinds.
const (
	KindFormattingContext query.Kind = KindMinContent + 1 + iota
	KindIsContextRoot
	KindResolvedWidth
	KindContentHeight
	KindResolvedHeight
	KindResolvedOffset
	KindIntrinsicWidth
)

// Formatting context names produced by KindFormattingContext.
const (
	ContextBlock  = "block"
	ContextInline = "inline"
	ContextFlex   = "flex"
	ContextGrid   = "grid"
	ContextNone   = "none"
)

// Descriptors returns the layout kinds. Callers embedding them in a larger
// registry append their own descriptors after these.
func Descriptors() []query.Descriptor {
	return []query.Descriptor{
		{Kind: KindDisplay, Name: "Display", Class: query.ClassInput, Default: value.Str("block")},
		{Kind: KindPosition, Name: "Position", Class: query.ClassInput, Default: value.Str("static")},
		{Kind: KindFloat, Name: "Float", Class: query.ClassInput, Default: value.Str("none")},
		{Kind: KindOverflow, Name: "Overflow", Class: query.ClassInput, Default: value.Str("visible")},
		{Kind: KindWidth, Name: "Width", Class: query.ClassInput},
		{Kind: KindHeight, Name: "Height", Class: query.ClassInput},
		{Kind: KindViewportWidth, Name: "ViewportWidth", Class: query.ClassInput, Default: value.Int(0)},
		{Kind: KindMinContent, Name: "MinContent", Class: query.ClassInput, Default: value.Int(0)},

		{Kind: KindFormattingContext, Name: "FormattingContext", Class: query.ClassDerived, Compute: computeFormattingContext},
		{Kind: KindIsContextRoot, Name: "IsContextRoot", Class: query.ClassDerived, Compute: computeIsContextRoot},
		{Kind: KindResolvedWidth, Name: "ResolvedWidth", Class: query.ClassDerived, Compute: computeResolvedWidth},
		{Kind: KindContentHeight, Name: "ContentHeight", Class: query.ClassDerived, Compute: computeContentHeight},
		{Kind: KindResolvedHeight, Name: "ResolvedHeight", Class: query.ClassDerived, Compute: computeResolvedHeight,
			Fallback: func(value.NodeID) value.Value { return value.Int(0) }},
		{Kind: KindResolvedOffset, Name: "ResolvedOffset", Class: query.ClassDerived, Compute: computeResolvedOffset},
		{Kind: KindIntrinsicWidth, Name: "IntrinsicWidth", Class: query.ClassDerived, Compute: computeIntrinsicWidth},
	}
}

// Registry builds the closed registry of the built-in topology kinds plus
// the layout kinds.
func Registry() (*query.Registry, error) {
	return query.NewRegistry(Descriptors()...)
}

// MustRegistry is Registry that panics on error.
func MustRegistry() *query.Registry {
	return query.MustRegistry(Descriptors()...)
}
