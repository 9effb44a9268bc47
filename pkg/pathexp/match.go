package pathexp

import (
	"errors"
	"strconv"

	"github.com/ohler55/ojg/jp"
)

// ErrNotFound is returned by Get when a concrete path does not resolve.
var ErrNotFound = errors.New("path not found")

// Specificity scores how closely a pattern matched a concrete path.
// Literals counts segments matched by name or index (the root included);
// Depth is the number of segments in the pattern.
type Specificity struct {
	Literals int
	Depth    int
}

// Compare orders specificities: literal matches first, then depth.
// It returns -1, 0 or 1.
func (s Specificity) Compare(o Specificity) int {
	switch {
	case s.Literals != o.Literals:
		if s.Literals < o.Literals {
			return -1
		}
		return 1
	case s.Depth != o.Depth:
		if s.Depth < o.Depth {
			return -1
		}
		return 1
	}
	return 0
}

// Match reports whether pattern applies to the concrete path. A pattern
// applies when it aligns with a prefix of concrete, so patterns declared on a
// node also apply to its descendants.
func Match(pattern, concrete Path) (Specificity, bool) {
	if len(pattern) == 0 || len(pattern) > len(concrete) {
		return Specificity{}, false
	}
	spec := Specificity{Depth: len(pattern)}
	for i, pt := range pattern {
		literal, ok := matchToken(pt, concrete[i])
		if !ok {
			return Specificity{}, false
		}
		if literal {
			spec.Literals++
		}
	}
	return spec, true
}

// MatchExact is Match restricted to patterns of the same length as concrete.
func MatchExact(pattern, concrete Path) (Specificity, bool) {
	if len(pattern) != len(concrete) {
		return Specificity{}, false
	}
	return Match(pattern, concrete)
}

func matchToken(pt, ct Token) (literal, ok bool) {
	switch pt.Kind {
	case TokenRoot:
		return true, ct.Kind == TokenRoot
	case TokenField:
		switch ct.Kind {
		case TokenField:
			return true, pt.Name == ct.Name
		case TokenIndex:
			// "$.items.0" addresses the same element as "$.items[0]".
			return true, pt.Name == strconv.Itoa(ct.Index)
		}
	case TokenIndex:
		return true, ct.Kind == TokenIndex && pt.Index == ct.Index
	case TokenWildcard:
		return false, ct.Kind == TokenField || ct.Kind == TokenIndex
	case TokenIndexWildcard:
		return false, ct.Kind == TokenIndex
	}
	return false, false
}

// Get resolves a concrete path against a decoded JSON-like value
// (map[string]any, []any and scalars). It returns ErrNotFound when any
// segment is absent; a present null resolves to nil with no error.
func Get(value any, p Path) (any, error) {
	if !p.IsConcrete() {
		return nil, errors.New("pathexp: Get requires a concrete path, use Select for patterns")
	}
	cur := value
	for _, t := range p {
		switch t.Kind {
		case TokenRoot:
			continue
		case TokenField:
			m, ok := cur.(map[string]any)
			if !ok {
				return nil, ErrNotFound
			}
			v, has := m[t.Name]
			if !has {
				return nil, ErrNotFound
			}
			cur = v
		case TokenIndex:
			list, ok := cur.([]any)
			if !ok || t.Index >= len(list) {
				return nil, ErrNotFound
			}
			cur = list[t.Index]
		}
	}
	return cur, nil
}

// Select returns every value addressed by a pattern, in document order for
// lists. Missing locations contribute nothing.
func Select(value any, pattern Path) []any {
	return pattern.Expr().Get(value)
}

// Expr converts the path into an equivalent JSONPath expression.
func (p Path) Expr() jp.Expr {
	x := jp.R()
	for _, t := range p {
		switch t.Kind {
		case TokenField:
			x = x.C(t.Name)
		case TokenIndex:
			x = x.N(t.Index)
		case TokenWildcard, TokenIndexWildcard:
			x = x.W()
		}
	}
	return x
}
