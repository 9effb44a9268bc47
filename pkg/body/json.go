package body

import (
	"github.com/ohler55/ojg/oj"

	"github.com/getmockd/contractd/pkg/contract"
	"github.com/getmockd/contractd/pkg/mismatch"
	"github.com/getmockd/contractd/pkg/pathexp"
)

// JSONMatcher compares JSON documents. Integers and decimals stay distinct
// after decoding, so 100 and 100.0 are different values.
type JSONMatcher struct{}

// Compare implements Matcher.
func (JSONMatcher) Compare(ctx *Context, root pathexp.Path, expected, actual contract.Body) []mismatch.Mismatch {
	ev, err := DecodeJSON(expected.Content)
	if err != nil {
		return []mismatch.Mismatch{(&DecodeError{ContentType: expected.ContentType, Side: "expected", Err: err}).mismatch(root)}
	}
	av, err := DecodeJSON(actual.Content)
	if err != nil {
		return []mismatch.Mismatch{(&DecodeError{ContentType: actual.ContentType, Side: "actual", Err: err}).mismatch(root)}
	}
	return newTree(ctx.Rules, ctx.Options, false).compare(root, ev, av)
}

// DecodeJSON parses a JSON document into maps, lists, int64, float64,
// strings, bools and nil.
func DecodeJSON(data []byte) (any, error) {
	return oj.Parse(data)
}
