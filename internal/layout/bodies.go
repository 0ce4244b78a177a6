package layout

import (
	"strconv"
	"strings"

	"github.com/roach88/layoutdb/internal/query"
	"github.com/roach88/layoutdb/internal/value"
)

func str(s query.Scope, kind query.Kind) (string, error) {
	v, err := s.Get(kind)
	if err != nil {
		return "", err
	}
	out, _ := value.AsStr(v)
	return out, nil
}

func outOfFlowPosition(position string) bool {
	return position == "absolute" || position == "fixed"
}

// computeFormattingContext maps display, blockifying floated and absolutely
// positioned inline boxes.
func computeFormattingContext(c *query.Ctx, key value.NodeID) (value.Value, error) {
	s := c.Self()
	display, err := str(s, KindDisplay)
	if err != nil {
		return nil, err
	}

	switch display {
	case "none":
		return value.Str(ContextNone), nil
	case "flex":
		return value.Str(ContextFlex), nil
	case "grid":
		return value.Str(ContextGrid), nil
	case "inline":
		float, err := str(s, KindFloat)
		if err != nil {
			return nil, err
		}
		position, err := str(s, KindPosition)
		if err != nil {
			return nil, err
		}
		if float != "none" || outOfFlowPosition(position) {
			return value.Str(ContextBlock), nil
		}
		return value.Str(ContextInline), nil
	default:
		return value.Str(ContextBlock), nil
	}
}

// computeIsContextRoot reports whether the node establishes a new
// formatting context. The document root always does; hidden nodes never do.
func computeIsContextRoot(c *query.Ctx, key value.NodeID) (value.Value, error) {
	s := c.Self()
	fc, err := str(s, KindFormattingContext)
	if err != nil {
		return nil, err
	}
	if fc == ContextNone {
		return value.Bool(false), nil
	}
	if _, hasParent, err := s.Parent(); err != nil || !hasParent {
		return value.Bool(true), err
	}
	if fc == ContextFlex || fc == ContextGrid {
		return value.Bool(true), nil
	}

	checks := []struct {
		kind  query.Kind
		roots func(string) bool
	}{
		{KindDisplay, func(v string) bool { return v == "flow-root" }},
		{KindFloat, func(v string) bool { return v != "none" }},
		{KindPosition, outOfFlowPosition},
		{KindOverflow, func(v string) bool { return v != "visible" }},
	}
	for _, check := range checks {
		v, err := str(s, check.kind)
		if err != nil {
			return nil, err
		}
		if check.roots(v) {
			return value.Bool(true), nil
		}
	}
	return value.Bool(false), nil
}

// computeResolvedWidth uses the explicit width, else the parent's resolved
// width, else the viewport at the root.
func computeResolvedWidth(c *query.Ctx, key value.NodeID) (value.Value, error) {
	s := c.Self()
	if w, ok, err := s.Int(KindWidth); err != nil || ok {
		return value.Int(w), err
	}

	pw, ok, err := s.ParentValue(KindResolvedWidth)
	if err != nil {
		return nil, err
	}
	if ok {
		return pw, nil
	}
	vw, _, err := s.Int(KindViewportWidth)
	return value.Int(vw), err
}

// inFlow reports whether the node takes part in its parent's block flow.
func inFlow(s query.Scope) (bool, error) {
	fc, err := str(s, KindFormattingContext)
	if err != nil || fc == ContextNone {
		return false, err
	}
	position, err := str(s, KindPosition)
	if err != nil || outOfFlowPosition(position) {
		return false, err
	}
	float, err := str(s, KindFloat)
	return float == "none", err
}

// computeContentHeight sums the resolved heights of in-flow children.
func computeContentHeight(c *query.Ctx, key value.NodeID) (value.Value, error) {
	s := c.Self()
	children, err := s.Children()
	if err != nil {
		return nil, err
	}
	var total int64
	for _, child := range children {
		cs := s.At(child)
		flow, err := inFlow(cs)
		if err != nil {
			return nil, err
		}
		if !flow {
			continue
		}
		h, _, err := cs.Int(KindResolvedHeight)
		if err != nil {
			return nil, err
		}
		total += h
	}
	return value.Int(total), nil
}

func parsePercent(s string) (int64, bool) {
	digits, ok := strings.CutSuffix(s, "%")
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	return n, err == nil && n >= 0
}

// percentBase resolves the definite height a percentage of s's height is
// taken against: the parent's explicit height, resolved recursively when it
// is itself a percentage. A percentage against an auto-height parent has no
// base and behaves as auto.
func percentBase(s query.Scope) (int64, bool, error) {
	parent, ok, err := s.Parent()
	if err != nil || !ok {
		return 0, false, err
	}
	ps := s.At(parent)
	v, err := ps.Get(KindHeight)
	if err != nil {
		return 0, false, err
	}
	switch h := v.(type) {
	case value.Int:
		return int64(h), true, nil
	case value.Str:
		pct, ok := parsePercent(string(h))
		if !ok {
			return 0, false, nil
		}
		base, ok, err := percentBase(ps)
		if err != nil || !ok {
			return 0, false, err
		}
		return base * pct / 100, true, nil
	}
	return 0, false, nil
}

// computeResolvedHeight uses the explicit height (absolute or percentage of
// a definite parent height), else the content height. Hidden nodes are 0.
func computeResolvedHeight(c *query.Ctx, key value.NodeID) (value.Value, error) {
	s := c.Self()
	fc, err := str(s, KindFormattingContext)
	if err != nil {
		return nil, err
	}
	if fc == ContextNone {
		return value.Int(0), nil
	}

	v, err := s.Get(KindHeight)
	if err != nil {
		return nil, err
	}
	switch h := v.(type) {
	case value.Int:
		return h, nil
	case value.Str:
		if pct, ok := parsePercent(string(h)); ok {
			base, definite, err := percentBase(s)
			if err != nil {
				return nil, err
			}
			if definite {
				return value.Int(base * pct / 100), nil
			}
		}
	}
	return s.Get(KindContentHeight)
}

// computeResolvedOffset is the block offset within the parent: the summed
// heights of the in-flow siblings before the node.
func computeResolvedOffset(c *query.Ctx, key value.NodeID) (value.Value, error) {
	s := c.Self()
	prev, err := s.PrevSiblings()
	if err != nil {
		return nil, err
	}
	var offset int64
	for _, sib := range prev {
		ss := s.At(sib)
		flow, err := inFlow(ss)
		if err != nil {
			return nil, err
		}
		if !flow {
			continue
		}
		h, _, err := ss.Int(KindResolvedHeight)
		if err != nil {
			return nil, err
		}
		offset += h
	}
	return value.Int(offset), nil
}

// computeIntrinsicWidth is the explicit width, else the widest of the
// node's own min-content and its in-flow children's intrinsic widths.
func computeIntrinsicWidth(c *query.Ctx, key value.NodeID) (value.Value, error) {
	s := c.Self()
	if w, ok, err := s.Int(KindWidth); err != nil || ok {
		return value.Int(w), err
	}
	widest, _, err := s.Int(KindMinContent)
	if err != nil {
		return nil, err
	}
	children, err := s.Children()
	if err != nil {
		return nil, err
	}
	for _, child := range children {
		cs := s.At(child)
		flow, err := inFlow(cs)
		if err != nil {
			return nil, err
		}
		if !flow {
			continue
		}
		w, _, err := cs.Int(KindIntrinsicWidth)
		if err != nil {
			return nil, err
		}
		widest = max(widest, w)
	}
	return value.Int(widest), nil
}
