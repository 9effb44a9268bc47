package matching

import (
	"fmt"
	"strings"

	"github.com/getmockd/contractd/pkg/body"
	"github.com/getmockd/contractd/pkg/mismatch"
)

// Status is the outcome of matching.
type Status int

// Match outcomes.
const (
	Matched Status = iota
	Mismatched
	NoMatchingInteraction
)

func (s Status) String() string {
	switch s {
	case Matched:
		return "matched"
	case Mismatched:
		return "mismatched"
	case NoMatchingInteraction:
		return "no-matching-interaction"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Result is the outcome of matching one expectation against one observed
// message.
type Result struct {
	Status     Status              `json:"status"`
	Mismatches []mismatch.Mismatch `json:"mismatches,omitempty"`

	// Parts lists the message parts that were compared, in order.
	Parts []mismatch.Part `json:"-"`
}

// Matched reports whether there were no mismatches.
func (r Result) Matched() bool {
	return r.Status == Matched
}

func newResult(parts []mismatch.Part, ms []mismatch.Mismatch) Result {
	if len(ms) == 0 {
		return Result{Status: Matched, Parts: parts}
	}
	return Result{Status: Mismatched, Mismatches: ms, Parts: parts}
}

// Option configures matching.
type Option func(*options)

type options struct {
	allowUnexpectedQuery bool
	body                 body.Options
	registry             *body.Registry
}

func buildOptions(opts []Option) options {
	o := options{registry: body.Default}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithAllowUnexpectedQuery accepts query parameters the expectation does not
// list.
func WithAllowUnexpectedQuery() Option {
	return func(o *options) {
		o.allowUnexpectedQuery = true
	}
}

// WithNoUnexpectedKeys reports body keys that appear only in the actual
// message.
func WithNoUnexpectedKeys() Option {
	return func(o *options) {
		o.body.NoUnexpectedKeys = true
	}
}

// WithRegistry sets the format matcher registry used for bodies.
func WithRegistry(r *body.Registry) Option {
	return func(o *options) {
		if r != nil {
			o.registry = r
		}
	}
}

// PartResult summarizes the mismatches of one message part.
type PartResult struct {
	Part       mismatch.Part       `json:"part"`
	Matched    bool                `json:"matched"`
	Mismatches []mismatch.Mismatch `json:"mismatches,omitempty"`
}

// Breakdown groups the mismatches of a result by message part, in the order
// the parts were compared. Every compared part is listed, matched or not.
func Breakdown(r Result) []PartResult {
	out := make([]PartResult, 0, len(r.Parts))
	index := make(map[mismatch.Part]int, len(r.Parts))
	for _, p := range r.Parts {
		index[p] = len(out)
		out = append(out, PartResult{Part: p, Matched: true})
	}
	for _, m := range r.Mismatches {
		i, ok := index[m.Part]
		if !ok {
			i = len(out)
			index[m.Part] = i
			out = append(out, PartResult{Part: m.Part, Matched: true})
		}
		out[i].Matched = false
		out[i].Mismatches = append(out[i].Mismatches, m)
	}
	return out
}

// Reason explains a result in one line, for example
// "method, path matched, but body $.id: Expected 1 (number) but received 2 (number)".
func Reason(r Result) string {
	if r.Matched() {
		return "all parts matched"
	}
	var matched []string
	var first *mismatch.Mismatch
	for _, p := range Breakdown(r) {
		if p.Matched {
			matched = append(matched, string(p.Part))
			continue
		}
		if first == nil {
			first = &p.Mismatches[0]
		}
	}
	if first == nil {
		return "no parts to compare"
	}
	if len(matched) == 0 {
		return first.String()
	}
	return strings.Join(matched, ", ") + " matched, but " + first.String()
}
