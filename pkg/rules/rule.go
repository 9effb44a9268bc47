package rules

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/Masterminds/semver/v3"
	"github.com/gabriel-vasile/mimetype"
)

// Kind identifies the variant of a Rule.
type Kind string

// Rule kinds.
const (
	KindEquality         Kind = "equality"
	KindRegex            Kind = "regex"
	KindType             Kind = "type"
	KindMinType          Kind = "minType"
	KindMaxType          Kind = "maxType"
	KindMinMaxType       Kind = "minMaxType"
	KindInclude          Kind = "include"
	KindInteger          Kind = "integer"
	KindDecimal          Kind = "decimal"
	KindNumber           Kind = "number"
	KindBoolean          Kind = "boolean"
	KindNull             Kind = "null"
	KindSemver           Kind = "semver"
	KindDate             Kind = "date"
	KindTime             Kind = "time"
	KindTimestamp        Kind = "timestamp"
	KindNotEmpty         Kind = "notEmpty"
	KindArrayContains    Kind = "arrayContains"
	KindEachKey          Kind = "eachKey"
	KindEachValue        Kind = "eachValue"
	KindValues           Kind = "values"
	KindNoUnexpectedKeys Kind = "noUnexpectedKeys"
	KindStatusCode       Kind = "statusCode"
	KindContentType      Kind = "contentType"
)

// AllKinds lists every rule kind Evaluate understands.
func AllKinds() []Kind {
	return []Kind{
		KindEquality, KindRegex, KindType, KindMinType, KindMaxType, KindMinMaxType,
		KindInclude, KindInteger, KindDecimal, KindNumber, KindBoolean, KindNull,
		KindSemver, KindDate, KindTime, KindTimestamp, KindNotEmpty,
		KindArrayContains, KindEachKey, KindEachValue, KindValues, KindNoUnexpectedKeys,
		KindStatusCode, KindContentType,
	}
}

// StatusClass groups HTTP status codes for the statusCode rule.
type StatusClass string

// Status classes.
const (
	StatusInformation StatusClass = "information"
	StatusSuccess     StatusClass = "success"
	StatusRedirect    StatusClass = "redirect"
	StatusClientError StatusClass = "clientError"
	StatusServerError StatusClass = "serverError"
	StatusNonError    StatusClass = "nonError"
	StatusError       StatusClass = "error"
	StatusCodeList    StatusClass = "statusCodes"
)

// Variant is one element an arrayContains rule requires. Index points at the
// element of the expected list that serves as the example; Rules are scoped
// to that element, with "$" addressing the element itself.
type Variant struct {
	Index int
	Rules *RuleSet
}

// Rule is a single matching rule. Only the fields relevant to Kind are set.
type Rule struct {
	Kind Kind

	Regex       string      // regex
	Min         int         // minType, minMaxType
	Max         int         // maxType, minMaxType
	Value       any         // include
	Format      string      // date, time, timestamp
	Range       string      // semver (optional constraint)
	ContentType string      // contentType
	Status      StatusClass // statusCode
	Codes       []int       // statusCode with StatusCodeList
	Variants    []Variant   // arrayContains
	Nested      []Rule      // eachKey, eachValue

	re         *regexp.Regexp
	constraint *semver.Constraints
	layout     string
}

// Equality requires the actual value to equal the expected one.
func Equality() Rule { return Rule{Kind: KindEquality} }

// Regex requires the actual value, as a string, to fully match pattern.
func Regex(pattern string) Rule { return Rule{Kind: KindRegex, Regex: pattern} }

// Type requires the actual value to have the expected value's type.
func Type() Rule { return Rule{Kind: KindType} }

// MinType is Type plus a minimum list length.
func MinType(min int) Rule { return Rule{Kind: KindMinType, Min: min} }

// MaxType is Type plus a maximum list length.
func MaxType(max int) Rule { return Rule{Kind: KindMaxType, Max: max} }

// MinMaxType is Type plus inclusive list length bounds.
func MinMaxType(min, max int) Rule { return Rule{Kind: KindMinMaxType, Min: min, Max: max} }

// Include requires the actual value to contain v.
func Include(v any) Rule { return Rule{Kind: KindInclude, Value: v} }

func Integer() Rule { return Rule{Kind: KindInteger} }
func Decimal() Rule { return Rule{Kind: KindDecimal} }
func Number() Rule  { return Rule{Kind: KindNumber} }
func Boolean() Rule { return Rule{Kind: KindBoolean} }
func Null() Rule    { return Rule{Kind: KindNull} }

// Semver requires a valid semantic version.
func Semver() Rule { return Rule{Kind: KindSemver} }

// SemverRange requires a semantic version satisfying constraint, e.g. ">=1.2, <2".
func SemverRange(constraint string) Rule { return Rule{Kind: KindSemver, Range: constraint} }

// Date, Time and Timestamp accept formats written with the usual pattern
// letters (yyyy-MM-dd, HH:mm:ss, ...). An empty format selects ISO 8601.
func Date(format string) Rule      { return Rule{Kind: KindDate, Format: format} }
func Time(format string) Rule      { return Rule{Kind: KindTime, Format: format} }
func Timestamp(format string) Rule { return Rule{Kind: KindTimestamp, Format: format} }

// NotEmpty is Type plus a non-empty requirement.
func NotEmpty() Rule { return Rule{Kind: KindNotEmpty} }

// ArrayContains requires each variant to be matched by some element of the
// actual list, in any order.
func ArrayContains(variants ...Variant) Rule {
	return Rule{Kind: KindArrayContains, Variants: variants}
}

// EachKey applies nested rules to every key of the actual map.
func EachKey(nested ...Rule) Rule { return Rule{Kind: KindEachKey, Nested: nested} }

// EachValue applies nested rules to every value of the actual map or list.
func EachValue(nested ...Rule) Rule { return Rule{Kind: KindEachValue, Nested: nested} }

// Values compares every actual map value against the expected template,
// ignoring keys.
func Values() Rule { return Rule{Kind: KindValues} }

// NoUnexpectedKeys rejects keys of the actual map that the expected map lacks.
func NoUnexpectedKeys() Rule { return Rule{Kind: KindNoUnexpectedKeys} }

// StatusCode requires an HTTP status in class.
func StatusCode(class StatusClass) Rule { return Rule{Kind: KindStatusCode, Status: class} }

// StatusCodes requires one of the listed HTTP statuses.
func StatusCodes(codes ...int) Rule {
	return Rule{Kind: KindStatusCode, Status: StatusCodeList, Codes: codes}
}

// ContentType requires the actual bytes to be detected as contentType.
func ContentType(contentType string) Rule {
	return Rule{Kind: KindContentType, ContentType: contentType}
}

// IsContainerRule reports whether the rule only applies at the level it was
// declared on and is skipped when cascaded to descendants.
func (r Rule) IsContainerRule() bool {
	switch r.Kind {
	case KindArrayContains, KindEachKey, KindEachValue, KindValues, KindNoUnexpectedKeys:
		return true
	}
	return false
}

// IsTypeRule reports whether the rule is one of the type-family rules that
// treat the first expected list element as a template for every actual one.
func (r Rule) IsTypeRule() bool {
	switch r.Kind {
	case KindType, KindMinType, KindMaxType, KindMinMaxType, KindNotEmpty:
		return true
	}
	return false
}

func (r Rule) String() string {
	switch r.Kind {
	case KindRegex:
		return fmt.Sprintf("regex(%s)", r.Regex)
	case KindMinType:
		return fmt.Sprintf("minType(%d)", r.Min)
	case KindMaxType:
		return fmt.Sprintf("maxType(%d)", r.Max)
	case KindMinMaxType:
		return fmt.Sprintf("minMaxType(%d, %d)", r.Min, r.Max)
	case KindSemver:
		if r.Range != "" {
			return fmt.Sprintf("semver(%s)", r.Range)
		}
	case KindDate, KindTime, KindTimestamp:
		if r.Format != "" {
			return fmt.Sprintf("%s(%s)", r.Kind, r.Format)
		}
	case KindStatusCode:
		if r.Status == StatusCodeList {
			return fmt.Sprintf("statusCode(%v)", r.Codes)
		}
		return fmt.Sprintf("statusCode(%s)", r.Status)
	case KindContentType:
		return fmt.Sprintf("contentType(%s)", r.ContentType)
	}
	return string(r.Kind)
}

// EvaluationError reports a rule that cannot be evaluated, such as an invalid
// regular expression. It is raised when rules are registered.
type EvaluationError struct {
	Kind Kind
	Path string
	Err  error
}

func (e *EvaluationError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("invalid rules at %s: %v", e.Path, e.Err)
	}
	if e.Path != "" {
		return fmt.Sprintf("invalid %s rule at %s: %v", e.Kind, e.Path, e.Err)
	}
	return fmt.Sprintf("invalid %s rule: %v", e.Kind, e.Err)
}

func (e *EvaluationError) Unwrap() error { return e.Err }

// Compile validates the rule's parameters and prepares it for evaluation.
func (r *Rule) Compile() error {
	fail := func(err error) error { return &EvaluationError{Kind: r.Kind, Err: err} }

	switch r.Kind {
	case KindRegex:
		re, err := regexp.Compile(`^(?:` + r.Regex + `)$`)
		if err != nil {
			return fail(err)
		}
		r.re = re
	case KindMinType:
		if r.Min < 0 {
			return fail(fmt.Errorf("min must not be negative, got %d", r.Min))
		}
	case KindMaxType:
		if r.Max < 0 {
			return fail(fmt.Errorf("max must not be negative, got %d", r.Max))
		}
	case KindMinMaxType:
		if r.Min < 0 || r.Max < r.Min {
			return fail(fmt.Errorf("invalid bounds min=%d max=%d", r.Min, r.Max))
		}
	case KindInclude:
		if r.Value == nil {
			return fail(errors.New("include requires a value"))
		}
	case KindSemver:
		if r.Range != "" {
			c, err := semver.NewConstraint(r.Range)
			if err != nil {
				return fail(err)
			}
			r.constraint = c
		}
	case KindDate, KindTime, KindTimestamp:
		layout, err := layoutFor(r.Kind, r.Format)
		if err != nil {
			return fail(err)
		}
		r.layout = layout
	case KindArrayContains:
		if len(r.Variants) == 0 {
			return fail(errors.New("arrayContains requires at least one variant"))
		}
		for i, v := range r.Variants {
			if v.Index < 0 {
				return fail(fmt.Errorf("variant %d has negative index", i))
			}
		}
	case KindEachKey, KindEachValue:
		for i := range r.Nested {
			if err := r.Nested[i].Compile(); err != nil {
				return fail(err)
			}
		}
	case KindStatusCode:
		switch r.Status {
		case StatusInformation, StatusSuccess, StatusRedirect, StatusClientError,
			StatusServerError, StatusNonError, StatusError:
		case StatusCodeList:
			if len(r.Codes) == 0 {
				return fail(errors.New("status code list is empty"))
			}
		default:
			return fail(fmt.Errorf("unknown status class %q", r.Status))
		}
	case KindContentType:
		if r.ContentType == "" {
			return fail(errors.New("content type is empty"))
		}
		if mimetype.Lookup(baseMediaType(r.ContentType)) == nil {
			return fail(fmt.Errorf("unsupported content type %q", r.ContentType))
		}
	case KindEquality, KindType, KindInteger, KindDecimal, KindNumber, KindBoolean,
		KindNull, KindNotEmpty, KindValues, KindNoUnexpectedKeys:
	default:
		return fail(fmt.Errorf("unknown rule kind %q", r.Kind))
	}
	return nil
}
