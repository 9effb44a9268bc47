package rules

import (
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/Masterminds/semver/v3"
	"github.com/gabriel-vasile/mimetype"

	"github.com/getmockd/contractd/pkg/mismatch"
	"github.com/getmockd/contractd/pkg/pathexp"
)

// CompareFunc structurally compares two values at path. A nil set means the
// rule set the caller is already comparing with.
type CompareFunc func(path pathexp.Path, expected, actual any, set *RuleSet) []mismatch.Mismatch

// Context carries what rule evaluation needs from the surrounding matcher.
type Context struct {
	// Textual marks values that come from a text channel (path, query,
	// header, form field, XML text, plain text). Predicates such as integer
	// then parse the string instead of requiring a typed value.
	Textual bool

	// Compare descends into nested structures for rules that contain other
	// values (arrayContains, eachValue, values).
	Compare CompareFunc
}

// EvaluateList applies every rule in the list. With And logic all mismatches
// are returned; with Or logic the list passes as soon as one rule does.
func EvaluateList(ctx Context, list RuleList, path pathexp.Path, expected, actual any) []mismatch.Mismatch {
	var all []mismatch.Mismatch
	for _, r := range list.Rules {
		ms := Evaluate(ctx, r, path, expected, actual, list.Cascaded)
		if list.Logic == Or && len(ms) == 0 {
			return nil
		}
		all = append(all, ms...)
	}
	return all
}

// Evaluate checks actual against a single rule. Cascaded is true when the
// rule was declared on an ancestor of path; container rules then do nothing
// and size bounds are not checked.
func Evaluate(ctx Context, r Rule, path pathexp.Path, expected, actual any, cascaded bool) []mismatch.Mismatch {
	where := path.String()
	fail := func(kind mismatch.Kind, format string, args ...any) []mismatch.Mismatch {
		return []mismatch.Mismatch{mismatch.New(kind, where, expected, actual, format, args...)}
	}
	typeFail := func(what string) []mismatch.Mismatch {
		return fail(mismatch.KindType, "Expected %s (%s) to be %s", mismatch.Render(actual), TypeName(actual), what)
	}

	switch r.Kind {
	case KindEquality:
		if Equal(expected, actual) {
			return nil
		}
		return fail(mismatch.KindValue, "Expected %s to be equal to %s", mismatch.Render(actual), mismatch.Render(expected))

	case KindRegex:
		re := r.re
		if re == nil {
			var err error
			if re, err = regexp.Compile(`^(?:` + r.Regex + `)$`); err != nil {
				return fail(mismatch.KindValue, "Invalid regular expression %q: %v", r.Regex, err)
			}
		}
		s, ok := AsString(actual)
		if !ok || actual == nil {
			return fail(mismatch.KindType, "Expected %s to be a value matching %q", TypeName(actual), r.Regex)
		}
		if !re.MatchString(s) {
			return fail(mismatch.KindValue, "Expected %q to match %q", s, r.Regex)
		}
		return nil

	case KindType:
		return checkType(expected, actual, where)

	case KindMinType, KindMaxType, KindMinMaxType:
		if ms := checkType(expected, actual, where); ms != nil {
			return ms
		}
		if cascaded {
			return nil
		}
		var size int
		switch av := actual.(type) {
		case []any:
			size = len(av)
		case string:
			size = utf8.RuneCountInString(av)
		default:
			return nil
		}
		if r.Kind != KindMaxType && size < r.Min {
			return fail(mismatch.KindValue, "Expected %s to have a minimum size of %d", mismatch.Render(actual), r.Min)
		}
		if r.Kind != KindMinType && size > r.Max {
			return fail(mismatch.KindValue, "Expected %s to have a maximum size of %d", mismatch.Render(actual), r.Max)
		}
		return nil

	case KindInclude:
		if includes(actual, r.Value) {
			return nil
		}
		return fail(mismatch.KindValue, "Expected %s to include %s", mismatch.Render(actual), mismatch.Render(r.Value))

	case KindInteger:
		if isIntegerValue(actual) || (ctx.Textual && parses(actual, func(s string) bool {
			_, err := strconv.ParseInt(s, 10, 64)
			return err == nil
		})) {
			return nil
		}
		return typeFail("an integer")

	case KindDecimal:
		if isDecimalValue(actual) || (ctx.Textual && parses(actual, func(s string) bool {
			_, err := strconv.ParseFloat(s, 64)
			return err == nil && strings.Contains(s, ".")
		})) {
			return nil
		}
		return typeFail("a decimal number")

	case KindNumber:
		if _, ok := toFloat(actual); ok || (ctx.Textual && parses(actual, func(s string) bool {
			_, err := strconv.ParseFloat(s, 64)
			return err == nil
		})) {
			return nil
		}
		return typeFail("a number")

	case KindBoolean:
		if _, ok := actual.(bool); ok || (ctx.Textual && parses(actual, func(s string) bool {
			return s == "true" || s == "false"
		})) {
			return nil
		}
		return typeFail("a boolean")

	case KindNull:
		if actual == nil {
			return nil
		}
		return typeFail("null")

	case KindSemver:
		s, ok := actual.(string)
		if !ok {
			return typeFail("a semantic version string")
		}
		v, err := semver.StrictNewVersion(s)
		if err != nil {
			return fail(mismatch.KindValue, "Expected %q to be a semantic version: %v", s, err)
		}
		constraint := r.constraint
		if constraint == nil && r.Range != "" {
			if constraint, err = semver.NewConstraint(r.Range); err != nil {
				return fail(mismatch.KindValue, "Invalid version range %q: %v", r.Range, err)
			}
		}
		if constraint != nil && !constraint.Check(v) {
			return fail(mismatch.KindValue, "Expected version %s to satisfy %s", s, r.Range)
		}
		return nil

	case KindDate, KindTime, KindTimestamp:
		s, ok := actual.(string)
		if !ok {
			return typeFail(fmt.Sprintf("a %s string", r.Kind))
		}
		layout := r.layout
		if layout == "" {
			var err error
			if layout, err = layoutFor(r.Kind, r.Format); err != nil {
				return fail(mismatch.KindValue, "Invalid %s format %q: %v", r.Kind, r.Format, err)
			}
		}
		if err := parseTimeValue(layout, s); err != nil {
			format := r.Format
			if format == "" {
				format = "ISO 8601"
			}
			return fail(mismatch.KindValue, "Expected %q to match the %s format %s", s, r.Kind, format)
		}
		return nil

	case KindNotEmpty:
		if ms := checkType(expected, actual, where); ms != nil {
			return ms
		}
		if isEmptyValue(actual) {
			return fail(mismatch.KindValue, "Expected %s to not be empty", mismatch.Render(actual))
		}
		return nil

	case KindArrayContains:
		if cascaded {
			return nil
		}
		return arrayContains(ctx, r, path, expected, actual)

	case KindEachKey:
		if cascaded {
			return nil
		}
		m, ok := actual.(map[string]any)
		if !ok {
			return typeFail("a map")
		}
		keyCtx := Context{Textual: true, Compare: ctx.Compare}
		var out []mismatch.Mismatch
		for _, k := range slices.Sorted(maps.Keys(m)) {
			for _, nested := range r.Nested {
				out = append(out, Evaluate(keyCtx, nested, path.Child(k), k, k, false)...)
			}
		}
		return out

	case KindEachValue:
		if cascaded {
			return nil
		}
		return eachValue(ctx, r.Nested, path, expected, actual)

	case KindValues:
		if cascaded {
			return nil
		}
		return eachValue(ctx, nil, path, expected, actual)

	case KindNoUnexpectedKeys:
		if cascaded {
			return nil
		}
		am, ok := actual.(map[string]any)
		if !ok {
			return nil
		}
		em, _ := expected.(map[string]any)
		var out []mismatch.Mismatch
		for _, k := range slices.Sorted(maps.Keys(am)) {
			if _, has := em[k]; !has {
				out = append(out, mismatch.New(mismatch.KindUnexpectedKey, path.Child(k).String(),
					mismatch.Absent, am[k], "Unexpected key %q", k))
			}
		}
		return out

	case KindStatusCode:
		code, ok := toInt64(actual)
		if !ok && ctx.Textual {
			if s, isStr := actual.(string); isStr {
				n, err := strconv.ParseInt(s, 10, 64)
				code, ok = n, err == nil
			}
		}
		if !ok {
			return typeFail("an HTTP status code")
		}
		if statusInClass(r, int(code)) {
			return nil
		}
		return fail(mismatch.KindStatus, "Expected status %d to be %s", code, r)

	case KindContentType:
		var data []byte
		switch tv := actual.(type) {
		case []byte:
			data = tv
		case string:
			data = []byte(tv)
		default:
			return typeFail("binary content")
		}
		want := baseMediaType(r.ContentType)
		detected := mimetype.Detect(data)
		for m := detected; m != nil; m = m.Parent() {
			if m.Is(want) {
				return nil
			}
		}
		return fail(mismatch.KindValue, "Expected content of type %s but detected %s", want, detected.String())

	default:
		return fail(mismatch.KindValue, "Unknown matching rule kind %q", r.Kind)
	}
}

func checkType(expected, actual any, where string) []mismatch.Mismatch {
	et, at := TypeName(expected), TypeName(actual)
	if et == at {
		return nil
	}
	return []mismatch.Mismatch{mismatch.New(mismatch.KindType, where, expected, actual,
		"Expected %s (%s) to be the same type as %s (%s)", mismatch.Render(actual), at, mismatch.Render(expected), et)}
}

func parses(actual any, ok func(string) bool) bool {
	s, isStr := actual.(string)
	return isStr && ok(strings.TrimSpace(s))
}

func includes(actual, want any) bool {
	switch av := actual.(type) {
	case []any:
		for _, v := range av {
			if Equal(v, want) {
				return true
			}
		}
		return false
	case map[string]any:
		k, ok := want.(string)
		if !ok {
			return false
		}
		_, has := av[k]
		return has
	}
	s, ok := AsString(actual)
	if !ok || actual == nil {
		return false
	}
	w, ok := AsString(want)
	return ok && strings.Contains(s, w)
}

func arrayContains(ctx Context, r Rule, path pathexp.Path, expected, actual any) []mismatch.Mismatch {
	where := path.String()
	actualList, ok := actual.([]any)
	if !ok {
		return checkType([]any{}, actual, where)
	}
	expectedList, _ := expected.([]any)

	var out []mismatch.Mismatch
	for i, v := range r.Variants {
		if v.Index >= len(expectedList) {
			out = append(out, mismatch.New(mismatch.KindValue, where, expected, actual,
				"Variant %d refers to expected element %d, which does not exist", i, v.Index))
			continue
		}
		want := expectedList[v.Index]
		set := v.Rules
		if set == nil {
			set = NewRuleSet()
		}
		found := slices.ContainsFunc(actualList, func(a any) bool {
			if ctx.Compare == nil {
				return Equal(want, a)
			}
			return len(ctx.Compare(pathexp.Root(), want, a, set)) == 0
		})
		if !found {
			out = append(out, mismatch.New(mismatch.KindValue, where, want, actual,
				"Variant at index %d (%s) was not found in the actual list", v.Index, mismatch.Render(want)))
		}
	}
	return out
}

// eachValue compares every child of a map or list against the matching
// expected child, or the first expected child when there is none. Nested
// rules, when given, replace the type check on each child.
func eachValue(ctx Context, nested []Rule, path pathexp.Path, expected, actual any) []mismatch.Mismatch {
	type child struct {
		path     pathexp.Path
		value    any
		template any
		hasTmpl  bool
	}

	var children []child
	switch av := actual.(type) {
	case map[string]any:
		em, _ := expected.(map[string]any)
		var first any
		hasFirst := false
		if len(em) > 0 {
			first, hasFirst = em[slices.Sorted(maps.Keys(em))[0]], true
		}
		for _, k := range slices.Sorted(maps.Keys(av)) {
			c := child{path: path.Child(k), value: av[k], template: first, hasTmpl: hasFirst}
			if t, ok := em[k]; ok {
				c.template = t
			}
			children = append(children, c)
		}
	case []any:
		el, _ := expected.([]any)
		for i, v := range av {
			c := child{path: path.Index(i), value: v}
			if len(el) > 0 {
				c.template, c.hasTmpl = el[0], true
			}
			children = append(children, c)
		}
	default:
		return checkType(map[string]any{}, actual, path.String())
	}

	var out []mismatch.Mismatch
	for _, c := range children {
		if len(nested) > 0 {
			tmpl := c.template
			if !c.hasTmpl {
				tmpl = c.value
			}
			out = append(out, EvaluateList(ctx, RuleList{Rules: nested, Logic: And}, c.path, tmpl, c.value)...)
		} else if c.hasTmpl {
			out = append(out, checkType(c.template, c.value, c.path.String())...)
		}
		if !c.hasTmpl || ctx.Compare == nil {
			continue
		}
		switch c.template.(type) {
		case map[string]any, []any:
			out = append(out, ctx.Compare(c.path, c.template, c.value, nil)...)
		}
	}
	return out
}

func statusInClass(r Rule, code int) bool {
	switch r.Status {
	case StatusInformation:
		return code >= 100 && code <= 199
	case StatusSuccess:
		return code >= 200 && code <= 299
	case StatusRedirect:
		return code >= 300 && code <= 399
	case StatusClientError:
		return code >= 400 && code <= 499
	case StatusServerError:
		return code >= 500 && code <= 599
	case StatusNonError:
		return code < 400
	case StatusError:
		return code >= 400
	case StatusCodeList:
		return slices.Contains(r.Codes, code)
	}
	return false
}
