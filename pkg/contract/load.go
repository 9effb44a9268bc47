package contract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/getmockd/contractd/pkg/rules"
)

// Common errors for contract loading.
var (
	ErrFileNotFound     = errors.New("contract file not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidJSON      = errors.New("invalid JSON syntax")
	ErrInvalidYAML      = errors.New("invalid YAML syntax")
	ErrEmptyFile        = errors.New("contract file is empty")
)

// Format is a contract document encoding.
type Format string

// Document formats.
const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks the format from a file extension (.yaml and .yml are
// YAML, anything else JSON).
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

// Load reads a contract from a JSON or YAML file.
func Load(path string) (*Contract, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		if os.IsPermission(err) {
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, path)
		}
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory, not a file: %s", path)
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsPermission(err) {
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, path)
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyFile, path)
	}

	c, err := Parse(data, FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes a contract document.
func Parse(data []byte, format Format) (*Contract, error) {
	if format == FormatYAML {
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
		}
		converted, err := json.Marshal(normalizeYAML(doc))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
		}
		data = converted
	} else if !json.Valid(data) {
		return nil, ErrInvalidJSON
	}

	var doc contractDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode contract: %w", err)
	}
	return doc.toContract()
}

// normalizeYAML turns map[any]any nodes, which JSON cannot encode, into
// map[string]any.
func normalizeYAML(v any) any {
	switch tv := v.(type) {
	case map[string]any:
		for k, child := range tv {
			tv[k] = normalizeYAML(child)
		}
		return tv
	case map[any]any:
		out := make(map[string]any, len(tv))
		for k, child := range tv {
			out[fmt.Sprint(k)] = normalizeYAML(child)
		}
		return out
	case []any:
		for i, child := range tv {
			tv[i] = normalizeYAML(child)
		}
		return tv
	}
	return v
}

type participantDoc struct {
	Name string `json:"name"`
}

type contractDoc struct {
	Consumer     participantDoc   `json:"consumer"`
	Provider     participantDoc   `json:"provider"`
	Interactions []interactionDoc `json:"interactions"`
	Metadata     map[string]any   `json:"metadata,omitempty"`
}

type interactionDoc struct {
	Description    string          `json:"description"`
	ProviderState  string          `json:"providerState,omitempty"`
	ProviderStates []ProviderState `json:"providerStates,omitempty"`
	Request        requestDoc      `json:"request"`
	Response       responseDoc     `json:"response"`
}

type requestDoc struct {
	Method        string               `json:"method"`
	Path          string               `json:"path"`
	Query         json.RawMessage      `json:"query,omitempty"`
	Headers       map[string]stringish `json:"headers,omitempty"`
	Body          json.RawMessage      `json:"body,omitempty"`
	MatchingRules *rules.MatchingRules `json:"matchingRules,omitempty"`
}

type responseDoc struct {
	Status        int                  `json:"status"`
	Headers       map[string]stringish `json:"headers,omitempty"`
	Body          json.RawMessage      `json:"body,omitempty"`
	MatchingRules *rules.MatchingRules `json:"matchingRules,omitempty"`
}

// stringish accepts a string or a list of strings.
type stringish []string

func (s *stringish) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*s = []string{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("expected a string or a list of strings: %w", err)
	}
	*s = many
	return nil
}

func (d contractDoc) toContract() (*Contract, error) {
	c := &Contract{
		Consumer: d.Consumer.Name,
		Provider: d.Provider.Name,
		Metadata: d.Metadata,
	}
	for idx, id := range d.Interactions {
		i, err := id.toInteraction()
		if err != nil {
			return nil, fmt.Errorf("interaction %d (%q): %w", idx, id.Description, err)
		}
		c.Interactions = append(c.Interactions, i)
	}
	return c, nil
}

func (d interactionDoc) toInteraction() (Interaction, error) {
	i := Interaction{
		Description:    d.Description,
		ProviderStates: d.ProviderStates,
	}
	if d.ProviderState != "" && len(i.ProviderStates) == 0 {
		i.ProviderStates = []ProviderState{{Name: d.ProviderState}}
	}

	query, err := decodeQuery(d.Request.Query)
	if err != nil {
		return Interaction{}, fmt.Errorf("request query: %w", err)
	}
	reqHeaders := toHeaders(d.Request.Headers)
	i.Request = Request{
		Method:  strings.ToUpper(d.Request.Method),
		Path:    d.Request.Path,
		Query:   query,
		Headers: reqHeaders,
		Body:    decodeBody(d.Request.Body, reqHeaders),
		Rules:   orEmpty(d.Request.MatchingRules),
	}

	respHeaders := toHeaders(d.Response.Headers)
	status := d.Response.Status
	if status == 0 {
		status = 200
	}
	i.Response = Response{
		Status:  status,
		Headers: respHeaders,
		Body:    decodeBody(d.Response.Body, respHeaders),
		Rules:   orEmpty(d.Response.MatchingRules),
	}

	if err := i.Validate(); err != nil {
		return Interaction{}, err
	}
	return i, nil
}

func orEmpty(m *rules.MatchingRules) *rules.MatchingRules {
	if m == nil {
		return rules.New()
	}
	return m
}

func toHeaders(in map[string]stringish) Headers {
	out := make(Headers, len(in))
	for k, vs := range in {
		for _, v := range vs {
			out.Add(k, v)
		}
	}
	return out
}

// decodeQuery accepts either a query string or a map of parameter lists.
func decodeQuery(raw json.RawMessage) (map[string][]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var qs string
	if err := json.Unmarshal(raw, &qs); err == nil {
		values, err := url.ParseQuery(qs)
		if err != nil {
			return nil, err
		}
		return values, nil
	}
	var m map[string]stringish
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	out := make(map[string][]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out, nil
}

// decodeBody turns a document body into bytes. JSON values are kept as JSON
// unless they are strings for a non-JSON content type, which are taken as
// the literal payload.
func decodeBody(raw json.RawMessage, headers Headers) Body {
	ct := ""
	if v := headers.Get("Content-Type"); len(v) > 0 {
		ct = v[0]
	}
	trimmed := bytes.TrimSpace(raw)
	switch {
	case len(trimmed) == 0:
		return Body{State: BodyMissing, ContentType: ct}
	case string(trimmed) == "null":
		return Body{State: BodyNull, ContentType: ct}
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil && !isJSONType(ct) {
			if ct == "" {
				ct = "text/plain; charset=utf-8"
			}
			return NewBody([]byte(s), ct)
		}
	}
	if ct == "" {
		ct = "application/json"
	}
	return NewBody(append([]byte(nil), trimmed...), ct)
}

func isJSONType(ct string) bool {
	ct = strings.ToLower(ct)
	return strings.Contains(ct, "json")
}
