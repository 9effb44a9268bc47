// Package contract defines expected interactions between a consumer and a
// provider, and loads them from contract documents.
package contract

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/textproto"
	"regexp"
	"strings"

	"github.com/getmockd/contractd/pkg/rules"
)

// BodyState distinguishes an absent body from an empty or null one.
type BodyState int

// Body states.
const (
	BodyMissing BodyState = iota
	BodyEmpty
	BodyNull
	BodyPresent
)

func (s BodyState) String() string {
	switch s {
	case BodyMissing:
		return "missing"
	case BodyEmpty:
		return "empty"
	case BodyNull:
		return "null"
	case BodyPresent:
		return "present"
	}
	return "unknown"
}

// Body is a message payload with its declared content type.
type Body struct {
	State       BodyState
	Content     []byte
	ContentType string
}

// NewBody returns a present body, or an empty one when content is empty.
func NewBody(content []byte, contentType string) Body {
	if len(content) == 0 {
		return Body{State: BodyEmpty, ContentType: contentType}
	}
	return Body{State: BodyPresent, Content: content, ContentType: contentType}
}

// JSONBody encodes v as a JSON body.
func JSONBody(v any) (Body, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Body{}, fmt.Errorf("encode body: %w", err)
	}
	return NewBody(data, "application/json"), nil
}

// TextBody returns a text/plain body.
func TextBody(s string) Body {
	return NewBody([]byte(s), "text/plain; charset=utf-8")
}

// IsPresent reports whether the body has content.
func (b Body) IsPresent() bool { return b.State == BodyPresent }

// Headers is a case-insensitive multi-valued header map. Keys are stored in
// canonical MIME form.
type Headers map[string][]string

// Get returns the values of a header.
func (h Headers) Get(name string) []string {
	if h == nil {
		return nil
	}
	if v, ok := h[textproto.CanonicalMIMEHeaderKey(name)]; ok {
		return v
	}
	for k, v := range h {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return nil
}

// Add appends a value to a header.
func (h Headers) Add(name, value string) {
	key := textproto.CanonicalMIMEHeaderKey(name)
	h[key] = append(h[key], value)
}

// HTTP converts the headers to an http.Header.
func (h Headers) HTTP() http.Header {
	out := make(http.Header, len(h))
	for k, vs := range h {
		for _, v := range vs {
			out.Add(k, v)
		}
	}
	return out
}

// HeadersFromHTTP copies an http.Header.
func HeadersFromHTTP(h http.Header) Headers {
	out := make(Headers, len(h))
	for k, vs := range h {
		out[textproto.CanonicalMIMEHeaderKey(k)] = append([]string(nil), vs...)
	}
	return out
}

// Request is the request half of an interaction, or a request received by
// the mock server.
type Request struct {
	Method  string
	Path    string
	Query   map[string][]string
	Headers Headers
	Body    Body
	Rules   *rules.MatchingRules
}

// ContentType returns the request's effective content type: the
// Content-Type header, else the body's declared type.
func (r Request) ContentType() string {
	return effectiveContentType(r.Headers, r.Body)
}

// Response is the response half of an interaction.
type Response struct {
	Status  int
	Headers Headers
	Body    Body
	Rules   *rules.MatchingRules
}

// ContentType returns the response's effective content type.
func (r Response) ContentType() string {
	return effectiveContentType(r.Headers, r.Body)
}

func effectiveContentType(h Headers, b Body) string {
	if v := h.Get("Content-Type"); len(v) > 0 && v[0] != "" {
		return v[0]
	}
	return b.ContentType
}

// ProviderState names a precondition of an interaction. States are opaque
// to matching.
type ProviderState struct {
	Name   string         `json:"name" yaml:"name"`
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

// Interaction is one expected request and the response to serve for it.
type Interaction struct {
	Description    string
	ProviderStates []ProviderState
	Request        Request
	Response       Response
}

var pathParamRe = regexp.MustCompile(`^\{[A-Za-z_][A-Za-z0-9_]*\}$`)

// Validate checks an interaction before it is registered. Rule parameters
// are validated when the rules are added, so only structural problems are
// reported here.
func (i Interaction) Validate() error {
	var errs []error
	if strings.TrimSpace(i.Request.Method) == "" {
		errs = append(errs, errors.New("request method is required"))
	}
	if !strings.HasPrefix(i.Request.Path, "/") {
		errs = append(errs, fmt.Errorf("request path %q must start with '/'", i.Request.Path))
	}
	for _, seg := range strings.Split(i.Request.Path, "/") {
		if strings.ContainsAny(seg, "{}") && !pathParamRe.MatchString(seg) {
			errs = append(errs, fmt.Errorf("malformed path parameter %q", seg))
		}
	}
	if i.Response.Status < 100 || i.Response.Status > 599 {
		errs = append(errs, fmt.Errorf("response status %d is out of range", i.Response.Status))
	}
	for _, ct := range []string{i.Request.ContentType(), i.Response.ContentType()} {
		if ct == "" {
			continue
		}
		if _, _, err := mime.ParseMediaType(ct); err != nil {
			errs = append(errs, fmt.Errorf("invalid content type %q: %w", ct, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("interaction %q: %w", i.Description, err)
	}
	return nil
}

// Contract is a set of interactions between one consumer and one provider.
type Contract struct {
	Consumer     string
	Provider     string
	Interactions []Interaction
	Metadata     map[string]any
}

// Validate validates every interaction.
func (c *Contract) Validate() error {
	var errs []error
	for _, i := range c.Interactions {
		if err := i.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
