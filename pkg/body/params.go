package body

import (
	"maps"
	"net/url"
	"slices"

	"github.com/getmockd/contractd/pkg/contract"
	"github.com/getmockd/contractd/pkg/mismatch"
	"github.com/getmockd/contractd/pkg/pathexp"
	"github.com/getmockd/contractd/pkg/rules"
)

// ParamOptions controls CompareParams.
type ParamOptions struct {
	// RejectUnexpected reports parameters present only in actual, unless a
	// rule applies to them.
	RejectUnexpected bool
}

// CompareParams compares multi-valued parameters such as query strings and
// form fields. Parameter name maps to the path $.name and its values to
// $.name[i]; a rule on $.name applies to every value, and type rules on it
// bound the number of values instead of requiring an exact count.
func CompareParams(root pathexp.Path, expected, actual map[string][]string, set *rules.RuleSet, opts ParamOptions) []mismatch.Mismatch {
	t := newTree(set, Options{}, true)
	var out []mismatch.Mismatch

	for _, name := range slices.Sorted(maps.Keys(expected)) {
		path := root.Child(name)
		ev := expected[name]
		av, ok := actual[name]
		if !ok {
			out = append(out, mismatch.New(mismatch.KindMissingKey, path.String(), ev, mismatch.Absent,
				"Expected %q but it was missing", name))
			continue
		}
		out = append(out, t.compareValues(path, ev, av)...)
	}

	if opts.RejectUnexpected {
		for _, name := range slices.Sorted(maps.Keys(actual)) {
			if _, ok := expected[name]; ok {
				continue
			}
			if t.set.IsDefined(root.Child(name)) {
				continue
			}
			out = append(out, mismatch.New(mismatch.KindUnexpectedKey, root.Child(name).String(),
				mismatch.Absent, actual[name], "Unexpected %q with value(s) %v", name, actual[name]))
		}
	}
	return out
}

func (t *tree) compareValues(path pathexp.Path, expected, actual []string) []mismatch.Mismatch {
	var out []mismatch.Mismatch

	// Type rules on the parameter bound its value count.
	list := t.set.RulesFor(path)
	counted := false
	if !list.Cascaded {
		for _, r := range list.Rules {
			if r.IsTypeRule() {
				counted = true
				out = append(out, rules.Evaluate(t.ruleContext(), r, path, toAny(expected), toAny(actual), false)...)
			}
		}
	}
	if !counted && len(expected) != len(actual) {
		out = append(out, mismatch.New(mismatch.KindValue, path.String(), expected, actual,
			"Expected %d value(s) %v but received %d value(s) %v", len(expected), expected, len(actual), actual))
	}

	// Each value resolves its own rules; a rule on the parameter cascades
	// to every value.
	for i, av := range actual {
		var ev string
		switch {
		case i < len(expected):
			ev = expected[i]
		case counted && len(expected) > 0:
			ev = expected[0]
		default:
			return out
		}
		vpath := path.Index(i)
		out = append(out, t.compareLeaf(vpath, ev, av, t.set.RulesFor(vpath))...)
	}
	return out
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// FormMatcher compares application/x-www-form-urlencoded bodies field by
// field. Fields present only in the actual body are ignored unless
// unexpected keys are rejected.
type FormMatcher struct{}

// Compare implements Matcher.
func (FormMatcher) Compare(ctx *Context, root pathexp.Path, expected, actual contract.Body) []mismatch.Mismatch {
	ev, err := url.ParseQuery(string(expected.Content))
	if err != nil {
		return []mismatch.Mismatch{(&DecodeError{ContentType: expected.ContentType, Side: "expected", Err: err}).mismatch(root)}
	}
	av, err := url.ParseQuery(string(actual.Content))
	if err != nil {
		return []mismatch.Mismatch{(&DecodeError{ContentType: actual.ContentType, Side: "actual", Err: err}).mismatch(root)}
	}
	return CompareParams(root, ev, av, ctx.Rules, ParamOptions{RejectUnexpected: ctx.Options.NoUnexpectedKeys})
}
