// Package mismatch defines the diagnostic records produced when an actual
// request or response diverges from its expectation.
package mismatch

import (
	"fmt"
	"strings"

	"github.com/ohler55/ojg"
	"github.com/ohler55/ojg/oj"
)

// RootPath is the path used by mismatches that concern a whole message part,
// such as the method, the status or the body type.
const RootPath = "$"

// Kind classifies a mismatch.
type Kind string

// Mismatch kinds.
const (
	KindValue         Kind = "value"
	KindType          Kind = "type"
	KindMissingKey    Kind = "missing-key"
	KindUnexpectedKey Kind = "extra-key-violation"
	KindBodyType      Kind = "body-type-mismatch"
	KindStatus        Kind = "status-mismatch"
	KindMethod        Kind = "method-mismatch"
)

// Part names the section of an HTTP message a mismatch belongs to.
type Part string

// Message parts.
const (
	PartMethod Part = "method"
	PartPath   Part = "path"
	PartQuery  Part = "query"
	PartHeader Part = "header"
	PartBody   Part = "body"
	PartStatus Part = "status"
)

// Mismatch is one difference between an expected and an actual value.
type Mismatch struct {
	Kind        Kind   `json:"kind"`
	Part        Part   `json:"part,omitempty"`
	Path        string `json:"path"`
	Key         string `json:"key,omitempty"`
	Expected    string `json:"expected,omitempty"`
	Actual      string `json:"actual,omitempty"`
	Description string `json:"description"`
}

func (m Mismatch) String() string {
	var b strings.Builder
	if m.Part != "" {
		b.WriteString(string(m.Part))
		b.WriteByte(' ')
	}
	b.WriteString(m.Path)
	if m.Key != "" {
		fmt.Fprintf(&b, " (%s)", m.Key)
	}
	b.WriteString(": ")
	b.WriteString(m.Description)
	return b.String()
}

// New builds a mismatch, rendering expected and actual for display.
func New(kind Kind, path string, expected, actual any, format string, args ...any) Mismatch {
	if path == "" {
		path = RootPath
	}
	return Mismatch{
		Kind:        kind,
		Path:        path,
		Expected:    Render(expected),
		Actual:      Render(actual),
		Description: fmt.Sprintf(format, args...),
	}
}

// InPart stamps a part (and optional key) onto every mismatch in ms that does
// not already carry one. The slice is modified in place and returned.
func InPart(ms []Mismatch, part Part, key string) []Mismatch {
	for i := range ms {
		if ms[i].Part == "" {
			ms[i].Part = part
		}
		if ms[i].Key == "" && key != "" {
			ms[i].Key = key
		}
	}
	return ms
}

type absent struct{}

// Absent marks an expected or actual value that does not exist, as opposed
// to a present null.
var Absent = absent{}

var renderOptions = &ojg.Options{Sort: true}

// Render formats a value for a diagnostic. Strings render as themselves,
// byte slices as text, and everything else as compact JSON with sorted keys.
func Render(v any) string {
	switch tv := v.(type) {
	case absent:
		return ""
	case nil:
		return "null"
	case string:
		return tv
	case []byte:
		return string(tv)
	case fmt.Stringer:
		return tv.String()
	default:
		return oj.JSON(v, renderOptions)
	}
}
