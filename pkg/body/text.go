package body

import (
	"github.com/getmockd/contractd/pkg/contract"
	"github.com/getmockd/contractd/pkg/mismatch"
	"github.com/getmockd/contractd/pkg/pathexp"
)

// TextMatcher compares text bodies as a single string value.
type TextMatcher struct{}

// Compare implements Matcher.
func (TextMatcher) Compare(ctx *Context, root pathexp.Path, expected, actual contract.Body) []mismatch.Mismatch {
	t := newTree(ctx.Rules, ctx.Options, true)
	return t.compareLeaf(root, string(expected.Content), string(actual.Content), t.set.RulesFor(root))
}

// BinaryMatcher compares opaque payloads byte for byte, unless a rule such
// as contentType governs the body.
type BinaryMatcher struct{}

// Compare implements Matcher.
func (BinaryMatcher) Compare(ctx *Context, root pathexp.Path, expected, actual contract.Body) []mismatch.Mismatch {
	t := newTree(ctx.Rules, ctx.Options, false)
	list := t.set.RulesFor(root)
	if !list.IsEmpty() {
		return t.compareLeaf(root, expected.Content, actual.Content, list)
	}
	if string(expected.Content) == string(actual.Content) {
		return nil
	}
	return []mismatch.Mismatch{mismatch.New(mismatch.KindValue, root.String(), mismatch.Absent, mismatch.Absent,
		"Expected a binary body of %d bytes but received %d different bytes", len(expected.Content), len(actual.Content))}
}
