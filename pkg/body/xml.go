package body

import (
	"errors"
	"strings"

	"github.com/beevik/etree"

	"github.com/getmockd/contractd/pkg/contract"
	"github.com/getmockd/contractd/pkg/mismatch"
	"github.com/getmockd/contractd/pkg/pathexp"
	"github.com/getmockd/contractd/pkg/rules"
)

// XMLMatcher compares XML documents element by element.
//
// Paths address the root element as $.root, repeated children as
// $.root.item (the group) and $.root.item[0] (one element), attributes as
// $.root['@id'] and element text as $.root['#text'].
type XMLMatcher struct{}

// Compare implements Matcher.
func (XMLMatcher) Compare(ctx *Context, root pathexp.Path, expected, actual contract.Body) []mismatch.Mismatch {
	er, err := parseXML(expected.Content)
	if err != nil {
		return []mismatch.Mismatch{(&DecodeError{ContentType: expected.ContentType, Side: "expected", Err: err}).mismatch(root)}
	}
	ar, err := parseXML(actual.Content)
	if err != nil {
		return []mismatch.Mismatch{(&DecodeError{ContentType: actual.ContentType, Side: "actual", Err: err}).mismatch(root)}
	}

	x := &xmlComparer{tree: newTree(ctx.Rules, ctx.Options, true)}
	path := root.Child(er.FullTag())
	if er.FullTag() != ar.FullTag() {
		return []mismatch.Mismatch{mismatch.New(mismatch.KindValue, path.String(), er.FullTag(), ar.FullTag(),
			"Expected element <%s> but received <%s>", er.FullTag(), ar.FullTag())}
	}
	return x.compareElement(path, er, ar)
}

func parseXML(data []byte) (*etree.Element, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, err
	}
	root := doc.Root()
	if root == nil {
		return nil, errors.New("document has no root element")
	}
	return root, nil
}

type xmlComparer struct {
	*tree
}

func isNamespaceDecl(a etree.Attr) bool {
	return a.Space == "xmlns" || (a.Space == "" && a.Key == "xmlns")
}

func (x *xmlComparer) compareElement(path pathexp.Path, expected, actual *etree.Element) []mismatch.Mismatch {
	var out []mismatch.Mismatch
	list := x.set.RulesFor(path)
	strict := x.opts.NoUnexpectedKeys || (!list.Cascaded && list.Has(rules.KindNoUnexpectedKeys))

	for _, ea := range expected.Attr {
		if isNamespaceDecl(ea) {
			continue
		}
		apath := path.Child("@" + ea.FullKey())
		aa := actual.SelectAttr(ea.FullKey())
		if aa == nil {
			out = append(out, mismatch.New(mismatch.KindMissingKey, apath.String(), ea.Value, mismatch.Absent,
				"Expected attribute %q but it was missing", ea.FullKey()))
			continue
		}
		out = append(out, x.compareLeaf(apath, ea.Value, aa.Value, x.set.RulesFor(apath))...)
	}
	if strict {
		for _, aa := range actual.Attr {
			if isNamespaceDecl(aa) || expected.SelectAttr(aa.FullKey()) != nil {
				continue
			}
			out = append(out, mismatch.New(mismatch.KindUnexpectedKey, path.Child("@"+aa.FullKey()).String(),
				mismatch.Absent, aa.Value, "Unexpected attribute %q", aa.FullKey()))
		}
	}

	tpath := path.Child("#text")
	et, at := strings.TrimSpace(expected.Text()), strings.TrimSpace(actual.Text())
	if tlist := x.set.RulesFor(tpath); et != "" || !tlist.IsEmpty() && !tlist.Cascaded {
		out = append(out, x.compareLeaf(tpath, et, at, tlist)...)
	}

	eg, eorder := groupChildren(expected)
	ag, aorder := groupChildren(actual)
	for _, name := range eorder {
		out = append(out, x.compareGroup(path.Child(name), name, eg[name], ag[name])...)
	}
	if strict {
		for _, name := range aorder {
			if _, ok := eg[name]; !ok {
				out = append(out, mismatch.New(mismatch.KindUnexpectedKey, path.Child(name).String(),
					mismatch.Absent, mismatch.Absent, "Unexpected child element <%s>", name))
			}
		}
	}
	return out
}

// compareGroup compares the children of one name. Type rules on the group
// bound its size and compare each actual element with the first expected
// one; otherwise elements are compared in order.
func (x *xmlComparer) compareGroup(path pathexp.Path, name string, expected, actual []*etree.Element) []mismatch.Mismatch {
	var out []mismatch.Mismatch
	list := x.set.RulesFor(path)

	templated := false
	if !list.IsEmpty() {
		for _, r := range list.Rules {
			if r.IsTypeRule() {
				templated = true
			}
		}
		if templated {
			out = append(out, rules.EvaluateList(x.ruleContext(), list, path, elementTexts(expected), elementTexts(actual))...)
		}
	}

	if templated {
		if len(expected) == 0 {
			return out
		}
		for i, ae := range actual {
			out = append(out, x.compareElement(path.Index(i), expected[0], ae)...)
		}
		return out
	}

	if len(actual) == 0 {
		return append(out, mismatch.New(mismatch.KindMissingKey, path.String(), mismatch.Absent, mismatch.Absent,
			"Expected child element <%s> but it was missing", name))
	}
	if len(expected) != len(actual) {
		out = append(out, mismatch.New(mismatch.KindValue, path.String(), len(expected), len(actual),
			"Expected %d <%s> element(s) but received %d", len(expected), name, len(actual)))
	}
	for i := range min(len(expected), len(actual)) {
		out = append(out, x.compareElement(path.Index(i), expected[i], actual[i])...)
	}
	return out
}

func groupChildren(e *etree.Element) (map[string][]*etree.Element, []string) {
	groups := make(map[string][]*etree.Element)
	var order []string
	for _, c := range e.ChildElements() {
		name := c.FullTag()
		if _, seen := groups[name]; !seen {
			order = append(order, name)
		}
		groups[name] = append(groups[name], c)
	}
	return groups, order
}

func elementTexts(els []*etree.Element) []any {
	out := make([]any, len(els))
	for i, e := range els {
		out[i] = strings.TrimSpace(e.Text())
	}
	return out
}
