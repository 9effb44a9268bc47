package testing

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	stdtesting "testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/contractd/pkg/pathexp"
	"github.com/getmockd/contractd/pkg/rules"
)

// recorder captures failures instead of failing the enclosing test.
type recorder struct {
	stdtesting.TB
	errors []string
	fatal  bool
}

func (r *recorder) Helper() {}

func (r *recorder) Errorf(format string, args ...any) {
	r.errors = append(r.errors, fmt.Sprintf(format, args...))
}

func (r *recorder) Fatalf(format string, args ...any) {
	r.fatal = true
	r.Errorf(format, args...)
}

func getOrder(url string, id string) (string, error) {
	resp, err := http.Get(url + "/orders/" + id)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}
	return string(data), nil
}

func orders(tb stdtesting.TB) *Builder {
	ct := New(tb)
	ct.Interaction("get an open order").
		Given("order 42 exists", map[string]any{"id": 42}).
		WithRequest("GET", "/orders/{id}").
		WithRule(rules.CategoryPath, "id", rules.Integer()).
		WillRespondWith(200).
		WithResponseJSONBody(map[string]any{"status": "open"})
	return ct
}

func TestRun_Passes(t *stdtesting.T) {
	t.Parallel()

	var body string
	res := orders(t).Run(func(url string) error {
		var err error
		body, err = getOrder(url, "42")
		return err
	})
	assert.True(t, res.Passed)
	assert.JSONEq(t, `{"status":"open"}`, body)
	assert.Equal(t, "all interactions matched", Describe(res))
}

func TestRun_ReportsMismatch(t *stdtesting.T) {
	t.Parallel()

	rec := &recorder{TB: t}
	res := orders(rec).Run(func(url string) error {
		_, err := getOrder(url, "abc")
		return err
	})
	assert.False(t, res.Passed)
	require.Len(t, rec.errors, 2, "callback error and verification failure")
	assert.Contains(t, rec.errors[1], "contract verification failed")
	assert.Contains(t, rec.errors[1], `missing: "get an open order"`)
	assert.Contains(t, rec.errors[1], "unexpected: GET /orders/abc")
}

func TestRun_MissingInteraction(t *stdtesting.T) {
	t.Parallel()

	rec := &recorder{TB: t}
	res := orders(rec).Run(func(string) error { return nil })
	assert.False(t, res.Passed)
	require.Len(t, res.Missing, 1)
	assert.False(t, rec.fatal)
	assert.NotEmpty(t, rec.errors)
}

func TestRun_InvalidRule(t *stdtesting.T) {
	t.Parallel()

	rec := &recorder{TB: t}
	ct := New(rec)
	ct.Interaction("bad").WithRequest("GET", "/x").WithRule(rules.CategoryBody, "$.a", rules.Regex("("))

	called := false
	ct.Run(func(string) error {
		called = true
		return nil
	})
	assert.True(t, rec.fatal)
	assert.False(t, called)
	require.Len(t, rec.errors, 1)
	assert.True(t, strings.HasPrefix(rec.errors[0], "contract test: interaction \"bad\""))
}

func TestInteractionBuilder(t *stdtesting.T) {
	t.Parallel()

	ct := New(t)
	in, err := ct.Interaction("create").
		UponReceiving("create an order").
		WithRequest("POST", "/orders").
		WithQuery("dryRun", "true").
		WithHeader("content-type", "application/json").
		WithJSONBody(map[string]any{"sku": "A1"}).
		WillRespondWith(201).
		WithResponseHeader("Location", "/orders/1").
		WithResponseRule(rules.CategoryHeader, "Location", rules.Regex(`^/orders/\d+$`)).
		Build()
	require.NoError(t, err)

	assert.Equal(t, "create an order", in.Description)
	assert.Equal(t, "POST", in.Request.Method)
	assert.Equal(t, []string{"true"}, in.Request.Query["dryRun"])
	assert.Equal(t, []string{"application/json"}, in.Request.Headers.Get("Content-Type"))
	assert.JSONEq(t, `{"sku":"A1"}`, string(in.Request.Body.Content))
	assert.Equal(t, 201, in.Response.Status)
	assert.False(t, in.Response.Rules.Lookup(rules.CategoryHeader, pathexp.Field("location")).IsEmpty())
}
