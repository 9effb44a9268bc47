package matching

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/contractd/pkg/contract"
	"github.com/getmockd/contractd/pkg/mismatch"
	"github.com/getmockd/contractd/pkg/rules"
)

func ordersRequest() contract.Request {
	return contract.Request{
		Method: "GET",
		Path:   "/orders/{id}",
		Rules:  rules.New().MustAdd(rules.CategoryPath, "id", rules.Integer()),
	}
}

func parts(ms []mismatch.Mismatch) []mismatch.Part {
	out := make([]mismatch.Part, len(ms))
	for i, m := range ms {
		out[i] = m.Part
	}
	return out
}

// ============================================================================
// Method and path
// ============================================================================

func TestMatchMethod(t *testing.T) {
	t.Parallel()

	assert.Empty(t, MatchMethod("GET", "get"))

	ms := MatchMethod("POST", "GET")
	require.Len(t, ms, 1)
	assert.Equal(t, mismatch.KindMethod, ms[0].Kind)
	assert.Equal(t, mismatch.PartMethod, ms[0].Part)
}

func TestMatchPath(t *testing.T) {
	t.Parallel()

	idRules := rules.NewRuleSet()
	require.NoError(t, idRules.Add("$.id", rules.And, rules.Integer()))
	rootRule := rules.NewRuleSet()
	require.NoError(t, rootRule.Add("$", rules.And, rules.Regex(`/users/[0-9]+/avatar`)))

	tests := []struct {
		name     string
		expected string
		actual   string
		set      *rules.RuleSet
		want     int
	}{
		{"literal", "/orders", "/orders", nil, 0},
		{"literal differs", "/orders", "/order", nil, 1},
		{"trailing slash is significant", "/orders", "/orders/", nil, 1},
		{"template without rules accepts any value", "/orders/{id}", "/orders/abc", nil, 0},
		{"template with rule", "/orders/{id}", "/orders/42", idRules, 0},
		{"template rule fails", "/orders/{id}", "/orders/abc", idRules, 1},
		{"template segment count", "/orders/{id}", "/orders/1/items", idRules, 1},
		{"template literal segment", "/orders/{id}", "/invoices/1", idRules, 1},
		{"template empty parameter", "/orders/{id}", "/orders/", idRules, 1},
		{"rule at root", "/users/1/avatar", "/users/77/avatar", rootRule, 0},
		{"rule at root fails", "/users/1/avatar", "/users/me/avatar", rootRule, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			set := tt.set
			if set == nil {
				set = rules.NewRuleSet()
			}
			ms := MatchPath(tt.expected, tt.actual, set)
			assert.Len(t, ms, tt.want, "%v", ms)
			for _, m := range ms {
				assert.Equal(t, mismatch.PartPath, m.Part)
			}
		})
	}
}

// ============================================================================
// Headers
// ============================================================================

func TestMatchHeaders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		expected contract.Headers
		actual   contract.Headers
		want     int
	}{
		{"unlisted headers ignored", contract.Headers{"Accept": {"application/json"}},
			contract.Headers{"Accept": {"application/json"}, "X-Trace": {"1"}}, 0},
		{"names are case-insensitive", contract.Headers{"X-Api-Key": {"k"}}, contract.Headers{"x-api-key": {"k"}}, 0},
		{"missing header", contract.Headers{"Authorization": {"Bearer x"}}, contract.Headers{}, 1},
		{"value differs", contract.Headers{"Accept": {"text/plain"}}, contract.Headers{"Accept": {"text/html"}}, 1},
		{"comma separated values ignore spacing", contract.Headers{"Accept": {"a,b"}}, contract.Headers{"Accept": {"a, b"}}, 0},
		{"repeated header joins values", contract.Headers{"Accept": {"a, b"}}, contract.Headers{"Accept": {"a", "b"}}, 0},
		{"content type extra parameter", contract.Headers{"Content-Type": {"application/json"}},
			contract.Headers{"Content-Type": {"application/json; charset=UTF-8"}}, 0},
		{"content type parameter case", contract.Headers{"Content-Type": {"text/plain; charset=utf-8"}},
			contract.Headers{"Content-Type": {"text/plain;charset=UTF-8"}}, 0},
		{"content type missing parameter", contract.Headers{"Content-Type": {"text/plain; charset=utf-8"}},
			contract.Headers{"Content-Type": {"text/plain"}}, 1},
		{"content type differs", contract.Headers{"Content-Type": {"application/json"}},
			contract.Headers{"Content-Type": {"application/xml"}}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ms := MatchHeaders(tt.expected, tt.actual, rules.NewRuleSet())
			assert.Len(t, ms, tt.want, "%v", ms)
			for _, m := range ms {
				assert.Equal(t, mismatch.PartHeader, m.Part)
				assert.NotEmpty(t, m.Key)
			}
		})
	}
}

func TestMatchHeaders_Rules(t *testing.T) {
	t.Parallel()

	mr := rules.New().MustAdd(rules.CategoryHeader, "X-Request-Id", rules.Regex(`[0-9a-f-]{36}`))
	set := mr.Category(rules.CategoryHeader)
	expected := contract.Headers{"X-Request-Id": {"6f1c1a8e-0000-4000-8000-000000000000"}}

	assert.Empty(t, MatchHeaders(expected, contract.Headers{"X-Request-Id": {"0b9e7f2c-1111-4111-8111-111111111111"}}, set))
	assert.Len(t, MatchHeaders(expected, contract.Headers{"X-Request-Id": {"nope"}}, set), 1)
}

// ============================================================================
// Requests
// ============================================================================

func TestMatchRequest_OrdersScenario(t *testing.T) {
	t.Parallel()

	expected := ordersRequest()

	res := MatchRequest(expected, contract.Request{Method: "GET", Path: "/orders/42"})
	assert.True(t, res.Matched(), "%v", res.Mismatches)

	res = MatchRequest(expected, contract.Request{Method: "GET", Path: "/orders/abc"})
	assert.Equal(t, Mismatched, res.Status)
	require.Len(t, res.Mismatches, 1)
	assert.Equal(t, mismatch.PartPath, res.Mismatches[0].Part)
	assert.Equal(t, "$.id", res.Mismatches[0].Path)
}

func TestMatchRequest_MismatchOrder(t *testing.T) {
	t.Parallel()

	expected := contract.Request{
		Method:  "POST",
		Path:    "/orders",
		Query:   map[string][]string{"dry": {"true"}},
		Headers: contract.Headers{"X-Tenant": {"acme"}},
		Body:    contract.NewBody([]byte(`{"sku":"A1","qty":1}`), "application/json"),
	}
	actual := contract.Request{
		Method:  "PUT",
		Path:    "/order",
		Query:   map[string][]string{"dry": {"false"}},
		Headers: contract.Headers{"X-Tenant": {"other"}},
		Body:    contract.NewBody([]byte(`{"sku":"B2","qty":1}`), "application/json"),
	}

	res := MatchRequest(expected, actual)
	assert.Equal(t, []mismatch.Part{
		mismatch.PartMethod, mismatch.PartPath, mismatch.PartQuery, mismatch.PartHeader, mismatch.PartBody,
	}, parts(res.Mismatches))
}

func TestMatchRequest_Query(t *testing.T) {
	t.Parallel()

	expected := contract.Request{
		Method: "GET",
		Path:   "/search",
		Query:  map[string][]string{"q": {"shoes"}, "page": {"1"}},
		Rules:  rules.New().MustAdd(rules.CategoryQuery, "page", rules.Integer()),
	}
	req := func(query string) contract.Request {
		r := httptest.NewRequest(http.MethodGet, "/search?"+query, nil)
		return RequestFromHTTP(r, nil)
	}

	assert.True(t, MatchRequest(expected, req("q=shoes&page=7")).Matched())
	assert.False(t, MatchRequest(expected, req("q=shoes&page=seven")).Matched())
	assert.False(t, MatchRequest(expected, req("q=shoes")).Matched())

	extra := req("q=shoes&page=2&debug=1")
	assert.False(t, MatchRequest(expected, extra).Matched())
	assert.True(t, MatchRequest(expected, extra, WithAllowUnexpectedQuery()).Matched())
}

func TestMatchRequest_Body(t *testing.T) {
	t.Parallel()

	expected := contract.Request{
		Method:  "POST",
		Path:    "/items",
		Headers: contract.Headers{"Content-Type": {"application/json"}},
		Body:    contract.NewBody([]byte(`{"items":["a","b"]}`), ""),
		Rules: rules.New().MustAdd(rules.CategoryBody, "$.items",
			rules.ArrayContains(rules.Variant{Index: 0})),
	}
	actual := contract.Request{
		Method:  "POST",
		Path:    "/items",
		Headers: contract.Headers{"Content-Type": {"application/json; charset=utf-8"}},
		Body:    contract.NewBody([]byte(`{"items":["b","a","c"]}`), ""),
	}

	res := MatchRequest(expected, actual)
	assert.True(t, res.Matched(), "%v", res.Mismatches)

	actual.Body = contract.NewBody([]byte(`{"items":["b","c"]}`), "")
	res = MatchRequest(expected, actual)
	require.Len(t, res.Mismatches, 1)
	assert.Equal(t, mismatch.PartBody, res.Mismatches[0].Part)
}

func TestMatchRequest_NoUnexpectedKeys(t *testing.T) {
	t.Parallel()

	expected := contract.Request{Method: "POST", Path: "/", Body: contract.NewBody([]byte(`{"a":1}`), "application/json")}
	actual := contract.Request{Method: "POST", Path: "/", Body: contract.NewBody([]byte(`{"a":1,"b":2}`), "application/json")}

	assert.True(t, MatchRequest(expected, actual).Matched())
	assert.False(t, MatchRequest(expected, actual, WithNoUnexpectedKeys()).Matched())
}

// ============================================================================
// Responses
// ============================================================================

func TestMatchResponse(t *testing.T) {
	t.Parallel()

	expected := contract.Response{
		Status:  200,
		Headers: contract.Headers{"Content-Type": {"application/json"}},
		Body:    contract.NewBody([]byte(`{"status":"open"}`), ""),
	}

	ok := contract.Response{
		Status:  200,
		Headers: contract.Headers{"Content-Type": {"application/json"}},
		Body:    contract.NewBody([]byte(`{"status":"open","id":1}`), ""),
	}
	assert.True(t, MatchResponse(expected, ok).Matched())

	bad := ok
	bad.Status = 404
	bad.Body = contract.NewBody([]byte(`{"status":"closed"}`), "")
	res := MatchResponse(expected, bad)
	assert.Equal(t, []mismatch.Part{mismatch.PartStatus, mismatch.PartBody}, parts(res.Mismatches))
	assert.Equal(t, mismatch.KindStatus, res.Mismatches[0].Kind)
}

func TestMatchStatus_Rules(t *testing.T) {
	t.Parallel()

	set := rules.NewRuleSet()
	require.NoError(t, set.Add("$", rules.And, rules.StatusCode(rules.StatusSuccess)))

	assert.Empty(t, MatchStatus(200, 204, set))
	ms := MatchStatus(200, 500, set)
	require.Len(t, ms, 1)
	assert.Equal(t, mismatch.PartStatus, ms[0].Part)
	assert.Equal(t, mismatch.KindStatus, ms[0].Kind)
}

// ============================================================================
// Breakdown and scoring
// ============================================================================

func TestBreakdown(t *testing.T) {
	t.Parallel()

	res := MatchRequest(ordersRequest(), contract.Request{Method: "GET", Path: "/orders/abc"})
	b := Breakdown(res)
	require.Len(t, b, 5)
	assert.Equal(t, mismatch.PartMethod, b[0].Part)
	assert.True(t, b[0].Matched)
	assert.Equal(t, mismatch.PartPath, b[1].Part)
	assert.False(t, b[1].Matched)
	assert.Len(t, b[1].Mismatches, 1)

	reason := Reason(res)
	assert.True(t, strings.HasPrefix(reason, "method, query, header, body matched, but path $.id"), reason)
	assert.Equal(t, "all parts matched", Reason(MatchRequest(ordersRequest(), contract.Request{Method: "GET", Path: "/orders/1"})))
}

func TestSpecificity(t *testing.T) {
	t.Parallel()

	literal := contract.Request{Method: "GET", Path: "/orders/1"}
	template := contract.Request{Method: "GET", Path: "/orders/{id}"}
	withHeader := contract.Request{Method: "GET", Path: "/orders/{id}", Headers: contract.Headers{"Accept": {"application/json"}}}

	assert.Greater(t, Specificity(literal), Specificity(template))
	assert.Greater(t, Specificity(withHeader), Specificity(template))
}

func TestRequestFromHTTP(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodPost, "/orders?tag=a&tag=b", strings.NewReader(`{"a":1}`))
	r.Header.Set("Content-Type", "application/json")

	req := RequestFromHTTP(r, []byte(`{"a":1}`))
	assert.Equal(t, "POST", req.Method)
	assert.Equal(t, "/orders", req.Path)
	assert.Equal(t, []string{"a", "b"}, req.Query["tag"])
	assert.Equal(t, contract.BodyPresent, req.Body.State)
	assert.Equal(t, "application/json", req.ContentType())

	empty := RequestFromHTTP(httptest.NewRequest(http.MethodGet, "/", nil), nil)
	assert.Equal(t, contract.BodyMissing, empty.Body.State)
}
