package matching

import (
	"github.com/getmockd/contractd/pkg/contract"
	"github.com/getmockd/contractd/pkg/mismatch"
	"github.com/getmockd/contractd/pkg/pathexp"
	"github.com/getmockd/contractd/pkg/rules"
)

var responseParts = []mismatch.Part{mismatch.PartStatus, mismatch.PartHeader, mismatch.PartBody}

// MatchResponse compares an actual response with the expected one, in the
// order status, headers, body. Providers use it to check what they return
// against a contract.
func MatchResponse(expected, actual contract.Response, opts ...Option) Result {
	o := buildOptions(opts)
	mr := expected.Rules

	var ms []mismatch.Mismatch
	ms = append(ms, MatchStatus(expected.Status, actual.Status, mr.Category(rules.CategoryStatus))...)
	ms = append(ms, MatchHeaders(expected.Headers, actual.Headers, mr.Category(rules.CategoryHeader))...)
	ms = append(ms, matchBody(o, expected.Body, expected.ContentType(), actual.Body, actual.ContentType(),
		mr.Category(rules.CategoryBody))...)

	return newResult(responseParts, ms)
}

// MatchStatus compares status codes. A statusCode rule at $ replaces
// equality with a class or list check.
func MatchStatus(expected, actual int, set *rules.RuleSet) []mismatch.Mismatch {
	root := pathexp.Root()
	if list := set.RulesFor(root); !list.IsEmpty() {
		return mismatch.InPart(rules.EvaluateList(rules.Context{}, list, root, int64(expected), int64(actual)),
			mismatch.PartStatus, "")
	}
	if expected == actual {
		return nil
	}
	m := mismatch.New(mismatch.KindStatus, root.String(), expected, actual,
		"Expected status %d but received %d", expected, actual)
	m.Part = mismatch.PartStatus
	return []mismatch.Mismatch{m}
}
