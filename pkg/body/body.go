// Package body compares message payloads. Each supported content type
// family has a Matcher that walks expected and actual bodies in parallel,
// resolving matching rules for every location it visits.
package body

import (
	"fmt"
	"mime"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gabriel-vasile/mimetype"

	"github.com/getmockd/contractd/pkg/contract"
	"github.com/getmockd/contractd/pkg/mismatch"
	"github.com/getmockd/contractd/pkg/pathexp"
	"github.com/getmockd/contractd/pkg/rules"
)

// Options tune structural comparison.
type Options struct {
	// NoUnexpectedKeys reports keys present only in the actual body. By
	// default they are ignored.
	NoUnexpectedKeys bool
}

// Context is what a Matcher needs while comparing.
type Context struct {
	Rules    *rules.RuleSet
	Options  Options
	Registry *Registry
}

// Matcher compares two bodies of one content type family. Mismatch paths
// are rooted at root.
type Matcher interface {
	Compare(ctx *Context, root pathexp.Path, expected, actual contract.Body) []mismatch.Mismatch
}

// MatcherFunc adapts a function to Matcher.
type MatcherFunc func(ctx *Context, root pathexp.Path, expected, actual contract.Body) []mismatch.Mismatch

// Compare implements Matcher.
func (f MatcherFunc) Compare(ctx *Context, root pathexp.Path, expected, actual contract.Body) []mismatch.Mismatch {
	return f(ctx, root, expected, actual)
}

// Family groups content types handled by the same Matcher.
type Family string

// Content type families.
const (
	FamilyJSON      Family = "json"
	FamilyXML       Family = "xml"
	FamilyForm      Family = "form"
	FamilyMultipart Family = "multipart"
	FamilyText      Family = "text"
	FamilyBinary    Family = "binary"
)

// structured families are compatible across media types of the family, so
// application/json and application/hal+json compare as JSON.
func (f Family) structured() bool {
	switch f {
	case FamilyJSON, FamilyXML, FamilyForm, FamilyMultipart:
		return true
	}
	return false
}

// DecodeError reports a body that cannot be parsed under its content type.
// It never escapes Compare; it is reported as a body-type mismatch.
type DecodeError struct {
	ContentType string
	Side        string
	Err         error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to parse the %s body as %s: %v", e.Side, e.ContentType, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) mismatch(root pathexp.Path) mismatch.Mismatch {
	return mismatch.New(mismatch.KindBodyType, root.String(), mismatch.Absent, mismatch.Absent, "%s", e.Error())
}

type registration struct {
	pattern string
	family  Family
	matcher Matcher
}

// Registry maps content type patterns to matchers. Patterns use glob
// syntax against the base media type (application/*+json); the first
// registered match wins and unmatched types fall back to binary.
type Registry struct {
	mu      sync.RWMutex
	entries []registration
}

// NewRegistry returns a registry with the built-in matchers.
func NewRegistry() *Registry {
	return &Registry{entries: []registration{
		{"application/json", FamilyJSON, JSONMatcher{}},
		{"application/*+json", FamilyJSON, JSONMatcher{}},
		{"application/json-*", FamilyJSON, JSONMatcher{}},
		{"*/json", FamilyJSON, JSONMatcher{}},
		{"application/xml", FamilyXML, XMLMatcher{}},
		{"text/xml", FamilyXML, XMLMatcher{}},
		{"application/*+xml", FamilyXML, XMLMatcher{}},
		{"application/x-www-form-urlencoded", FamilyForm, FormMatcher{}},
		{"multipart/*", FamilyMultipart, MultipartMatcher{}},
		{"text/*", FamilyText, TextMatcher{}},
	}}
}

// Default is the registry used by the package-level Compare.
var Default = NewRegistry()

// Register adds a matcher for a content type pattern. It takes precedence
// over every earlier registration, built-ins included.
func (r *Registry) Register(pattern string, family Family, m Matcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append([]registration{{pattern: strings.ToLower(pattern), family: family, matcher: m}}, r.entries...)
}

// Lookup returns the family and matcher for a content type.
func (r *Registry) Lookup(contentType string) (Family, Matcher) {
	base := BaseType(contentType)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if ok, _ := doublestar.Match(e.pattern, base); ok {
			return e.family, e.matcher
		}
	}
	return FamilyBinary, BinaryMatcher{}
}

// BaseType returns the lower-cased media type without parameters.
func BaseType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		if i := strings.IndexByte(contentType, ';'); i >= 0 {
			contentType = contentType[:i]
		}
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}

// DetectContentType sniffs the content type of a payload.
func DetectContentType(content []byte) string {
	return mimetype.Detect(content).String()
}

// Compare compares bodies with the default registry.
func Compare(expected, actual contract.Body, set *rules.RuleSet, opts Options) []mismatch.Mismatch {
	return Default.Compare(expected, actual, set, opts)
}

// Compare checks presence, then content type compatibility, then hands
// both bodies to the matcher for their family. A content type mismatch
// stops the comparison.
func (r *Registry) Compare(expected, actual contract.Body, set *rules.RuleSet, opts Options) []mismatch.Mismatch {
	root := pathexp.Root()

	switch expected.State {
	case contract.BodyMissing:
		return nil
	case contract.BodyEmpty, contract.BodyNull:
		if actual.IsPresent() && !(expected.State == contract.BodyNull && strings.TrimSpace(string(actual.Content)) == "null") {
			return []mismatch.Mismatch{mismatch.New(mismatch.KindValue, root.String(), mismatch.Absent, actual.Content,
				"Expected an empty body but received %d bytes", len(actual.Content))}
		}
		return nil
	}
	if !actual.IsPresent() {
		return []mismatch.Mismatch{mismatch.New(mismatch.KindValue, root.String(), expected.Content, mismatch.Absent,
			"Expected a body but received %s body", actual.State)}
	}

	expectedType := expected.ContentType
	if expectedType == "" {
		expectedType = DetectContentType(expected.Content)
	}
	actualType := actual.ContentType
	if actualType == "" {
		actualType = DetectContentType(actual.Content)
	}

	ef, matcher := r.Lookup(expectedType)
	af, _ := r.Lookup(actualType)
	if ef != af || (!ef.structured() && BaseType(expectedType) != BaseType(actualType)) {
		return []mismatch.Mismatch{mismatch.New(mismatch.KindBodyType, root.String(),
			BaseType(expectedType), BaseType(actualType),
			"Expected a body of type %s but received %s", BaseType(expectedType), BaseType(actualType))}
	}

	expected.ContentType = expectedType
	actual.ContentType = actualType
	ctx := &Context{Rules: orEmpty(set), Options: opts, Registry: r}
	return matcher.Compare(ctx, root, expected, actual)
}

func orEmpty(set *rules.RuleSet) *rules.RuleSet {
	if set == nil {
		return rules.NewRuleSet()
	}
	return set
}
