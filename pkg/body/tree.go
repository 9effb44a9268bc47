package body

import (
	"maps"
	"slices"

	"github.com/getmockd/contractd/pkg/mismatch"
	"github.com/getmockd/contractd/pkg/pathexp"
	"github.com/getmockd/contractd/pkg/rules"
)

// tree compares decoded values (maps, lists and scalars) location by
// location. A rule resolved at a location governs the comparison there;
// without one, values must be equal.
type tree struct {
	set     *rules.RuleSet
	opts    Options
	textual bool
}

func newTree(set *rules.RuleSet, opts Options, textual bool) *tree {
	return &tree{set: orEmpty(set), opts: opts, textual: textual}
}

func (t *tree) ruleContext() rules.Context {
	return rules.Context{
		Textual: t.textual,
		Compare: func(path pathexp.Path, expected, actual any, set *rules.RuleSet) []mismatch.Mismatch {
			if set == nil {
				return t.compare(path, expected, actual)
			}
			return newTree(set, t.opts, t.textual).compare(path, expected, actual)
		},
	}
}

func (t *tree) compare(path pathexp.Path, expected, actual any) []mismatch.Mismatch {
	list := t.set.RulesFor(path)
	switch ev := expected.(type) {
	case map[string]any:
		am, ok := actual.(map[string]any)
		if !ok {
			return t.containerMismatch(path, expected, actual, list)
		}
		return t.compareMaps(path, ev, am, list)
	case []any:
		al, ok := actual.([]any)
		if !ok {
			return t.containerMismatch(path, expected, actual, list)
		}
		return t.compareLists(path, ev, al, list)
	default:
		return t.compareLeaf(path, expected, actual, list)
	}
}

// containerMismatch handles an expected map or list whose actual value is
// of another shape. Rules still get a say, so an Or list allowing null can
// pass.
func (t *tree) containerMismatch(path pathexp.Path, expected, actual any, list rules.RuleList) []mismatch.Mismatch {
	if !list.IsEmpty() && list.Logic == rules.Or {
		return rules.EvaluateList(t.ruleContext(), list, path, expected, actual)
	}
	return []mismatch.Mismatch{mismatch.New(mismatch.KindType, path.String(), expected, actual,
		"Type mismatch: Expected %s %s but received %s %s",
		rules.TypeName(expected), mismatch.Render(expected), rules.TypeName(actual), mismatch.Render(actual))}
}

func (t *tree) compareLeaf(path pathexp.Path, expected, actual any, list rules.RuleList) []mismatch.Mismatch {
	if !inert(list) {
		return rules.EvaluateList(t.ruleContext(), list, path, expected, actual)
	}
	if rules.Equal(expected, actual) {
		return nil
	}
	return []mismatch.Mismatch{mismatch.New(mismatch.KindValue, path.String(), expected, actual,
		"Expected %s (%s) but received %s (%s)",
		mismatch.Render(expected), rules.TypeName(expected), mismatch.Render(actual), rules.TypeName(actual))}
}

// inert reports whether a list has nothing to apply at this location:
// container rules inherited from an ancestor do not constrain a leaf.
func inert(list rules.RuleList) bool {
	if list.IsEmpty() {
		return true
	}
	if !list.Cascaded {
		return false
	}
	for _, r := range list.Rules {
		if !r.IsContainerRule() {
			return false
		}
	}
	return true
}

// ownRules reports whether a list declared at this very level contains a
// rule of one of the given kinds.
func ownRules(list rules.RuleList, kinds ...rules.Kind) bool {
	if list.Cascaded {
		return false
	}
	return slices.ContainsFunc(kinds, list.Has)
}

func (t *tree) compareMaps(path pathexp.Path, expected, actual map[string]any, list rules.RuleList) []mismatch.Mismatch {
	var out []mismatch.Mismatch
	if !list.IsEmpty() {
		out = append(out, rules.EvaluateList(t.ruleContext(), list, path, expected, actual)...)
	}

	// eachValue and values compare the children themselves.
	if ownRules(list, rules.KindEachValue, rules.KindValues) {
		return out
	}
	dynamicKeys := ownRules(list, rules.KindEachKey)

	if t.opts.NoUnexpectedKeys && !ownRules(list, rules.KindNoUnexpectedKeys) {
		for _, k := range slices.Sorted(maps.Keys(actual)) {
			if _, ok := expected[k]; !ok {
				out = append(out, mismatch.New(mismatch.KindUnexpectedKey, path.Child(k).String(),
					mismatch.Absent, actual[k], "Unexpected key %q", k))
			}
		}
	}

	for _, k := range slices.Sorted(maps.Keys(expected)) {
		av, ok := actual[k]
		if !ok {
			if dynamicKeys {
				continue
			}
			out = append(out, mismatch.New(mismatch.KindMissingKey, path.Child(k).String(),
				expected[k], mismatch.Absent, "Actual map is missing the expected key %q", k))
			continue
		}
		out = append(out, t.compare(path.Child(k), expected[k], av)...)
	}
	return out
}

type descent int

const (
	descentPositional descent = iota
	descentTemplate
	descentNone
)

// descentFor decides how list elements are visited once the rules at the
// list itself have been applied: type rules compare every actual element
// with the first expected one, container rules visit elements themselves,
// and any other rule governs the list as a whole.
func descentFor(list rules.RuleList) descent {
	if list.IsEmpty() {
		return descentPositional
	}
	if ownRules(list, rules.KindArrayContains, rules.KindEachValue, rules.KindValues) {
		return descentNone
	}
	active := false
	for _, r := range list.Rules {
		if r.IsTypeRule() {
			return descentTemplate
		}
		if !list.Cascaded || !r.IsContainerRule() {
			active = true
		}
	}
	if active {
		return descentNone
	}
	return descentPositional
}

func (t *tree) compareLists(path pathexp.Path, expected, actual []any, list rules.RuleList) []mismatch.Mismatch {
	var out []mismatch.Mismatch
	if !list.IsEmpty() {
		out = append(out, rules.EvaluateList(t.ruleContext(), list, path, expected, actual)...)
	}

	switch descentFor(list) {
	case descentNone:
		return out
	case descentTemplate:
		if len(expected) == 0 {
			return out
		}
		for i, av := range actual {
			out = append(out, t.compare(path.Index(i), expected[0], av)...)
		}
		return out
	}

	switch {
	case len(expected) == 0 && len(actual) > 0:
		out = append(out, mismatch.New(mismatch.KindValue, path.String(), expected, actual,
			"Expected an empty list but received %s", mismatch.Render(actual)))
		return out
	case len(expected) != len(actual):
		out = append(out, mismatch.New(mismatch.KindValue, path.String(), expected, actual,
			"Expected a list of %d elements but received %d elements", len(expected), len(actual)))
	}
	for i := range min(len(expected), len(actual)) {
		out = append(out, t.compare(path.Index(i), expected[i], actual[i])...)
	}
	return out
}
