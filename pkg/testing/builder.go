package testing

import (
	"github.com/getmockd/contractd/pkg/contract"
	"github.com/getmockd/contractd/pkg/rules"
)

// InteractionBuilder declares one interaction. Methods return the builder
// for chaining; the first error is kept and reported by Run.
type InteractionBuilder struct {
	in  contract.Interaction
	err error
}

// Given adds a provider state.
func (ib *InteractionBuilder) Given(state string, params ...map[string]any) *InteractionBuilder {
	ps := contract.ProviderState{Name: state}
	if len(params) > 0 {
		ps.Params = params[0]
	}
	ib.in.ProviderStates = append(ib.in.ProviderStates, ps)
	return ib
}

// UponReceiving replaces the description.
func (ib *InteractionBuilder) UponReceiving(description string) *InteractionBuilder {
	ib.in.Description = description
	return ib
}

// WithRequest sets the request method and path. The path may contain
// {name} segments.
func (ib *InteractionBuilder) WithRequest(method, path string) *InteractionBuilder {
	ib.in.Request.Method = method
	ib.in.Request.Path = path
	return ib
}

// WithQuery adds values of a query parameter.
func (ib *InteractionBuilder) WithQuery(name string, values ...string) *InteractionBuilder {
	if ib.in.Request.Query == nil {
		ib.in.Request.Query = make(map[string][]string)
	}
	ib.in.Request.Query[name] = append(ib.in.Request.Query[name], values...)
	return ib
}

// WithHeader adds a request header.
func (ib *InteractionBuilder) WithHeader(name, value string) *InteractionBuilder {
	if ib.in.Request.Headers == nil {
		ib.in.Request.Headers = contract.Headers{}
	}
	ib.in.Request.Headers.Add(name, value)
	return ib
}

// WithBody sets the request body.
func (ib *InteractionBuilder) WithBody(contentType string, data []byte) *InteractionBuilder {
	ib.in.Request.Body = contract.NewBody(data, contentType)
	return ib
}

// WithJSONBody sets the request body to v encoded as JSON.
func (ib *InteractionBuilder) WithJSONBody(v any) *InteractionBuilder {
	b, err := contract.JSONBody(v)
	ib.keep(err)
	ib.in.Request.Body = b
	return ib
}

// WithRule adds request matching rules. See rules.KeyPath for how key is
// read in each category.
func (ib *InteractionBuilder) WithRule(category rules.Category, key string, rs ...rules.Rule) *InteractionBuilder {
	ib.keep(ib.in.Request.Rules.Add(category, key, rules.And, rs...))
	return ib
}

// WillRespondWith sets the response status.
func (ib *InteractionBuilder) WillRespondWith(status int) *InteractionBuilder {
	ib.in.Response.Status = status
	return ib
}

// WithResponseHeader adds a response header.
func (ib *InteractionBuilder) WithResponseHeader(name, value string) *InteractionBuilder {
	if ib.in.Response.Headers == nil {
		ib.in.Response.Headers = contract.Headers{}
	}
	ib.in.Response.Headers.Add(name, value)
	return ib
}

// WithResponseBody sets the response body.
func (ib *InteractionBuilder) WithResponseBody(contentType string, data []byte) *InteractionBuilder {
	ib.in.Response.Body = contract.NewBody(data, contentType)
	return ib
}

// WithResponseJSONBody sets the response body to v encoded as JSON.
func (ib *InteractionBuilder) WithResponseJSONBody(v any) *InteractionBuilder {
	b, err := contract.JSONBody(v)
	ib.keep(err)
	ib.in.Response.Body = b
	return ib
}

// WithResponseRule adds response matching rules, used when the contract is
// replayed against a provider.
func (ib *InteractionBuilder) WithResponseRule(category rules.Category, key string, rs ...rules.Rule) *InteractionBuilder {
	ib.keep(ib.in.Response.Rules.Add(category, key, rules.And, rs...))
	return ib
}

// Build returns the interaction or the first error recorded while
// declaring it.
func (ib *InteractionBuilder) Build() (contract.Interaction, error) {
	return ib.in, ib.err
}

func (ib *InteractionBuilder) keep(err error) {
	if ib.err == nil {
		ib.err = err
	}
}
