package matching

import (
	"maps"
	"mime"
	"slices"
	"strings"

	"github.com/getmockd/contractd/pkg/body"
	"github.com/getmockd/contractd/pkg/contract"
	"github.com/getmockd/contractd/pkg/mismatch"
	"github.com/getmockd/contractd/pkg/pathexp"
	"github.com/getmockd/contractd/pkg/rules"
)

var requestParts = []mismatch.Part{
	mismatch.PartMethod, mismatch.PartPath, mismatch.PartQuery, mismatch.PartHeader, mismatch.PartBody,
}

// MatchRequest compares an actual request with the expected one. Mismatches
// are reported in the order method, path, query, headers, body.
func MatchRequest(expected, actual contract.Request, opts ...Option) Result {
	o := buildOptions(opts)
	mr := expected.Rules

	var ms []mismatch.Mismatch
	ms = append(ms, MatchMethod(expected.Method, actual.Method)...)
	ms = append(ms, MatchPath(expected.Path, actual.Path, mr.Category(rules.CategoryPath))...)
	ms = append(ms, mismatch.InPart(body.CompareParams(pathexp.Root(), expected.Query, actual.Query,
		mr.Category(rules.CategoryQuery), body.ParamOptions{RejectUnexpected: !o.allowUnexpectedQuery}),
		mismatch.PartQuery, "")...)
	ms = append(ms, MatchHeaders(expected.Headers, actual.Headers, mr.Category(rules.CategoryHeader))...)
	ms = append(ms, matchBody(o, expected.Body, expected.ContentType(), actual.Body, actual.ContentType(),
		mr.Category(rules.CategoryBody))...)

	return newResult(requestParts, ms)
}

// MatchMethod compares HTTP methods case-insensitively.
func MatchMethod(expected, actual string) []mismatch.Mismatch {
	if strings.EqualFold(expected, actual) {
		return nil
	}
	m := mismatch.New(mismatch.KindMethod, mismatch.RootPath, strings.ToUpper(expected), strings.ToUpper(actual),
		"Expected method %s but received %s", strings.ToUpper(expected), strings.ToUpper(actual))
	m.Part = mismatch.PartMethod
	return []mismatch.Mismatch{m}
}

// MatchPath compares a request path with the expected one. A rule at $
// governs the whole path. Otherwise a path containing {name} segments is a
// template: literal segments must be equal and each parameter is checked by
// the rules at $.name, accepting any value when there are none.
func MatchPath(expected, actual string, set *rules.RuleSet) []mismatch.Mismatch {
	root := pathexp.Root()
	ctx := rules.Context{Textual: true}

	if list := set.RulesFor(root); !list.IsEmpty() {
		return mismatch.InPart(rules.EvaluateList(ctx, list, root, expected, actual), mismatch.PartPath, "")
	}

	if !strings.Contains(expected, "{") {
		if expected == actual {
			return nil
		}
		return mismatch.InPart([]mismatch.Mismatch{mismatch.New(mismatch.KindValue, root.String(), expected, actual,
			"Expected path %s but received %s", expected, actual)}, mismatch.PartPath, "")
	}

	esegs := strings.Split(expected, "/")
	asegs := strings.Split(actual, "/")
	if len(esegs) != len(asegs) {
		return mismatch.InPart([]mismatch.Mismatch{mismatch.New(mismatch.KindValue, root.String(), expected, actual,
			"Expected path %s but received %s", expected, actual)}, mismatch.PartPath, "")
	}

	var out []mismatch.Mismatch
	for i, seg := range esegs {
		name, isParam := templateParam(seg)
		if !isParam {
			if seg != asegs[i] {
				out = append(out, mismatch.New(mismatch.KindValue, root.String(), expected, actual,
					"Expected path %s but received %s", expected, actual))
				return mismatch.InPart(out, mismatch.PartPath, "")
			}
			continue
		}
		if asegs[i] == "" {
			out = append(out, mismatch.New(mismatch.KindMissingKey, root.Child(name).String(), seg, mismatch.Absent,
				"Expected a value for path parameter %q", name))
			continue
		}
		ppath := root.Child(name)
		if list := set.RulesFor(ppath); !list.IsEmpty() {
			out = append(out, rules.EvaluateList(ctx, list, ppath, seg, asegs[i])...)
		}
	}
	return mismatch.InPart(out, mismatch.PartPath, "")
}

func templateParam(seg string) (string, bool) {
	if len(seg) > 2 && strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
		return seg[1 : len(seg)-1], true
	}
	return "", false
}

// MatchHeaders compares the headers the expectation lists. Header names are
// case-insensitive and rules are looked up by the lower-cased name.
func MatchHeaders(expected, actual contract.Headers, set *rules.RuleSet) []mismatch.Mismatch {
	var out []mismatch.Mismatch
	root := pathexp.Root()
	ctx := rules.Context{Textual: true}

	for _, name := range slices.Sorted(maps.Keys(expected)) {
		key := strings.ToLower(name)
		path := root.Child(key)
		want := strings.Join(expected[name], ", ")

		values := actual.Get(name)
		if len(values) == 0 {
			out = append(out, mismatch.InPart([]mismatch.Mismatch{mismatch.New(mismatch.KindMissingKey, path.String(),
				want, mismatch.Absent, "Expected header %q but it was missing", name)}, mismatch.PartHeader, name)...)
			continue
		}
		got := strings.Join(values, ", ")

		var ms []mismatch.Mismatch
		switch {
		case set.IsDefined(path):
			ms = rules.EvaluateList(ctx, set.RulesFor(path), path, want, got)
		case key == "content-type":
			ms = matchContentType(path, want, got)
		default:
			if !slices.Equal(splitHeader(want), splitHeader(got)) {
				ms = []mismatch.Mismatch{mismatch.New(mismatch.KindValue, path.String(), want, got,
					"Expected header %q to have value %q but received %q", name, want, got)}
			}
		}
		out = append(out, mismatch.InPart(ms, mismatch.PartHeader, name)...)
	}
	return out
}

func splitHeader(v string) []string {
	parts := strings.Split(v, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// matchContentType requires the same media type and every expected
// parameter to be present with the same value. Extra parameters in the
// actual header are accepted.
func matchContentType(path pathexp.Path, expected, actual string) []mismatch.Mismatch {
	fail := []mismatch.Mismatch{mismatch.New(mismatch.KindValue, path.String(), expected, actual,
		"Expected header 'Content-Type' to have value %q but received %q", expected, actual)}

	emt, eparams, err := mime.ParseMediaType(expected)
	if err != nil {
		if strings.EqualFold(strings.TrimSpace(expected), strings.TrimSpace(actual)) {
			return nil
		}
		return fail
	}
	amt, aparams, err := mime.ParseMediaType(actual)
	if err != nil || emt != amt {
		return fail
	}
	for k, v := range eparams {
		av, ok := aparams[k]
		if !ok || !strings.EqualFold(v, av) {
			return fail
		}
	}
	return nil
}

func matchBody(o options, expected contract.Body, expectedType string, actual contract.Body, actualType string, set *rules.RuleSet) []mismatch.Mismatch {
	expected.ContentType = expectedType
	actual.ContentType = actualType
	return mismatch.InPart(o.registry.Compare(expected, actual, set, o.body), mismatch.PartBody, "")
}
