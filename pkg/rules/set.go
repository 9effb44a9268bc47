package rules

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/getmockd/contractd/pkg/pathexp"
)

// Logic decides how several rules at one path combine.
type Logic string

// Rule combination logic.
const (
	And Logic = "AND"
	Or  Logic = "OR"
)

// RuleList is the set of rules that applies at a path.
type RuleList struct {
	Rules []Rule
	Logic Logic
	// Cascaded is set when the list was declared on an ancestor of the
	// path it was resolved for.
	Cascaded bool
}

// IsEmpty reports whether the list holds no rules.
func (l RuleList) IsEmpty() bool { return len(l.Rules) == 0 }

// Has reports whether the list contains a rule of kind k.
func (l RuleList) Has(k Kind) bool {
	return slices.ContainsFunc(l.Rules, func(r Rule) bool { return r.Kind == k })
}

type entry struct {
	pattern pathexp.Path
	expr    string
	list    RuleList
}

// RuleSet holds the rules of one category, keyed by path pattern, in
// declaration order.
type RuleSet struct {
	entries []entry
}

// NewRuleSet returns an empty rule set.
func NewRuleSet() *RuleSet {
	return &RuleSet{}
}

// Add registers rules under a path pattern. Every rule is validated here, so
// an invalid regex or bound fails at registration rather than at match time.
// Adding to a pattern that already exists appends to its rules, and fails if
// the combine logic differs from the one registered first.
func (s *RuleSet) Add(pattern string, logic Logic, rules ...Rule) error {
	p, err := pathexp.Parse(pattern)
	if err != nil {
		return err
	}
	return s.AddPath(p, logic, rules...)
}

// AddPath is Add with a parsed pattern.
func (s *RuleSet) AddPath(pattern pathexp.Path, logic Logic, rules ...Rule) error {
	if logic == "" {
		logic = And
	}
	if logic != And && logic != Or {
		return &EvaluationError{Path: pattern.String(), Err: fmt.Errorf("unknown combine logic %q", logic)}
	}

	compiled := make([]Rule, len(rules))
	for i, r := range rules {
		if err := r.Compile(); err != nil {
			var ee *EvaluationError
			if errors.As(err, &ee) && ee.Path == "" {
				ee.Path = pattern.String()
			}
			return err
		}
		compiled[i] = r
	}

	expr := pattern.String()
	for i := range s.entries {
		if s.entries[i].expr == expr {
			if have := s.entries[i].list.Logic; have != logic {
				return &EvaluationError{Path: expr, Err: fmt.Errorf("combine logic %s conflicts with %s already registered", logic, have)}
			}
			s.entries[i].list.Rules = append(s.entries[i].list.Rules, compiled...)
			return nil
		}
	}
	s.entries = append(s.entries, entry{
		pattern: pattern,
		expr:    expr,
		list:    RuleList{Rules: compiled, Logic: logic},
	})
	return nil
}

// Len returns the number of patterns in the set.
func (s *RuleSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Patterns returns the declared patterns in declaration order.
func (s *RuleSet) Patterns() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.expr
	}
	return out
}

// Get returns the rules declared for exactly this pattern.
func (s *RuleSet) Get(pattern string) (RuleList, bool) {
	if s == nil {
		return RuleList{}, false
	}
	for _, e := range s.entries {
		if e.expr == pattern {
			return e.list, true
		}
	}
	return RuleList{}, false
}

// RulesFor resolves the rules applying at a concrete path. The pattern with
// the most literal segments wins, then the deepest, then the first declared.
// The returned list is empty when no pattern applies.
func (s *RuleSet) RulesFor(path pathexp.Path) RuleList {
	if s == nil {
		return RuleList{}
	}
	best := -1
	var bestSpec pathexp.Specificity
	for i, e := range s.entries {
		spec, ok := pathexp.Match(e.pattern, path)
		if !ok {
			continue
		}
		if best < 0 || spec.Compare(bestSpec) > 0 {
			best, bestSpec = i, spec
		}
	}
	if best < 0 {
		return RuleList{}
	}
	list := s.entries[best].list
	list.Cascaded = len(s.entries[best].pattern) < len(path)
	return list
}

// IsDefined reports whether any pattern applies to path.
func (s *RuleSet) IsDefined(path pathexp.Path) bool {
	return !s.RulesFor(path).IsEmpty()
}

// Category names a part of an HTTP message that rules can target.
type Category string

// Rule categories.
const (
	CategoryMethod Category = "method"
	CategoryPath   Category = "path"
	CategoryQuery  Category = "query"
	CategoryHeader Category = "header"
	CategoryBody   Category = "body"
	CategoryStatus Category = "status"
)

// Categories lists every category in a stable order.
func Categories() []Category {
	return []Category{CategoryMethod, CategoryPath, CategoryQuery, CategoryHeader, CategoryBody, CategoryStatus}
}

// MatchingRules groups rule sets by category.
type MatchingRules struct {
	sets map[Category]*RuleSet
}

// New returns an empty set of matching rules.
func New() *MatchingRules {
	return &MatchingRules{sets: make(map[Category]*RuleSet)}
}

// KeyPath converts a rule key into a pattern for category. Keys starting
// with "$" are path expressions. Any other key names a single field, such
// as a header or query parameter; header names are case-insensitive and are
// stored lower-cased.
func KeyPath(category Category, key string) (pathexp.Path, error) {
	if key == "" {
		return pathexp.Root(), nil
	}
	if strings.HasPrefix(key, "$") {
		p, err := pathexp.Parse(key)
		if err != nil {
			return nil, err
		}
		if category == CategoryHeader && len(p) > 1 && p[1].Kind == pathexp.TokenField {
			p[1].Name = strings.ToLower(p[1].Name)
		}
		return p, nil
	}
	if category == CategoryHeader {
		key = strings.ToLower(key)
	}
	return pathexp.Field(key), nil
}

// Add registers rules in a category. See KeyPath for how keys are read.
func (m *MatchingRules) Add(category Category, key string, logic Logic, rules ...Rule) error {
	p, err := KeyPath(category, key)
	if err != nil {
		return err
	}
	if m.sets == nil {
		m.sets = make(map[Category]*RuleSet)
	}
	set, ok := m.sets[category]
	if !ok {
		set = NewRuleSet()
		m.sets[category] = set
	}
	return set.AddPath(p, logic, rules...)
}

// MustAdd is Add that panics on error, for fixtures and literals.
func (m *MatchingRules) MustAdd(category Category, key string, rules ...Rule) *MatchingRules {
	if err := m.Add(category, key, And, rules...); err != nil {
		panic(err)
	}
	return m
}

// Category returns the rule set of a category. The result is never nil: a
// category without rules yields an empty set.
func (m *MatchingRules) Category(category Category) *RuleSet {
	if m == nil || m.sets == nil {
		return NewRuleSet()
	}
	if set, ok := m.sets[category]; ok {
		return set
	}
	return NewRuleSet()
}

// Lookup resolves the rules applying at path within category.
func (m *MatchingRules) Lookup(category Category, path pathexp.Path) RuleList {
	return m.Category(category).RulesFor(path)
}

// IsEmpty reports whether no category holds any rule.
func (m *MatchingRules) IsEmpty() bool {
	if m == nil {
		return true
	}
	for _, s := range m.sets {
		if s.Len() > 0 {
			return false
		}
	}
	return true
}
