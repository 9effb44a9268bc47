package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ordersContract = `{
  "consumer": {"name": "web"},
  "provider": {"name": "orders"},
  "interactions": [
    {
      "description": "get an open order",
      "request": {
        "method": "GET",
        "path": "/orders/{id}",
        "matchingRules": {"path": {"$.id": {"matchers": [{"match": "integer"}]}}}
      },
      "response": {"status": 200, "body": {"status": "open"}}
    }
  ]
}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

// ============================================================================
// validate
// ============================================================================

func TestValidate(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	good := writeFile(t, dir, "orders.json", ordersContract)
	bad := writeFile(t, dir, "bad.json", `{"interactions":[{"description":"x","request":{"method":"GET","path":"a"},
		"response":{"status":200}}]}`)
	badRule := writeFile(t, dir, "regex.json", `{"interactions":[{"description":"x",
		"request":{"method":"GET","path":"/a","matchingRules":{"body":{"$.a":{"matchers":[{"match":"regex","regex":"("}]}}}},
		"response":{"status":200}}]}`)

	out, err := execute(t, context.Background(), "validate", "-f", good)
	require.NoError(t, err)
	assert.Contains(t, out, "OK")
	assert.Contains(t, out, "web -> orders, 1 interaction(s)")

	out, err = execute(t, context.Background(), "validate", good, badRule)
	require.ErrorIs(t, err, ErrVerificationFailed)
	assert.Contains(t, out, "FAIL  "+badRule)

	out, err = execute(t, context.Background(), "--json", "validate", good, bad)
	require.ErrorIs(t, err, ErrVerificationFailed)
	var results []ValidateOutput
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 2)
	assert.True(t, results[0].Valid)
	assert.False(t, results[1].Valid)
	assert.Contains(t, results[1].Error, "must start with '/'")

	_, err = execute(t, context.Background(), "validate")
	require.Error(t, err)
}

// ============================================================================
// compare
// ============================================================================

func TestCompare(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	want := writeFile(t, dir, "want.json", `{"id":1,"tags":["a"]}`)
	same := writeFile(t, dir, "same.json", `{"tags":["a"],"id":1,"extra":true}`)
	diff := writeFile(t, dir, "diff.json", `{"id":"1","tags":["a","b","c"]}`)
	ruleFile := writeFile(t, dir, "rules.json", `{"$.tags":{"matchers":[{"match":"type","min":1}]}}`)

	out, err := execute(t, context.Background(), "compare", "--expected", want, "--actual", same)
	require.NoError(t, err)
	assert.Contains(t, out, "Bodies match")

	_, err = execute(t, context.Background(), "compare", "--expected", want, "--actual", same, "--no-unexpected-keys")
	require.ErrorIs(t, err, ErrVerificationFailed)

	out, err = execute(t, context.Background(), "--json", "compare", "--expected", want, "--actual", diff, "--rules", ruleFile)
	require.ErrorIs(t, err, ErrVerificationFailed)
	var res CompareOutput
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.False(t, res.Matched)
	require.Len(t, res.Mismatches, 1, "the type rule accepts the longer list")
	assert.Equal(t, "$.id", res.Mismatches[0].Path)

	_, err = execute(t, context.Background(), "compare", "--expected", want)
	require.Error(t, err)
}

func TestCompare_UnusedRules(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	want := writeFile(t, dir, "want.json", `{"id":1,"tags":["a"]}`)
	ruleFile := writeFile(t, dir, "rules.json",
		`{"$.tags[*]":{"matchers":[{"match":"type"}]},"$.owner.name":{"matchers":[{"match":"type"}]}}`)

	out, err := execute(t, context.Background(), "--json", "compare", "--expected", want, "--actual", want, "--rules", ruleFile)
	require.NoError(t, err)
	var res CompareOutput
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Matched)
	assert.Equal(t, []string{"$.owner.name"}, res.UnusedRules)

	out, err = execute(t, context.Background(), "compare", "--expected", want, "--actual", want, "--rules", ruleFile)
	require.NoError(t, err)
	assert.Contains(t, out, "Warning: rule pattern $.owner.name selects nothing in the expected body")
	assert.Contains(t, out, "Bodies match")
}

// ============================================================================
// mock
// ============================================================================

func TestMock_StopsAndReportsMissingInteractions(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := writeFile(t, dir, "orders.json", ordersContract)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := execute(t, ctx, "mock", "-f", file, "--bind", "127.0.0.1:0")
	require.ErrorIs(t, err, ErrVerificationFailed)
	assert.Contains(t, out, "listening on http://127.0.0.1:")
	assert.Contains(t, out, `Missing interaction 0 "get an open order": GET /orders/{id}`)
}

func TestMock_InvalidConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := writeFile(t, dir, "orders.json", ordersContract)

	_, err := execute(t, context.Background(), "mock", "-f", file, "--tie-break", "random")
	require.Error(t, err)

	_, err = execute(t, context.Background(), "mock")
	require.Error(t, err)
}

// ============================================================================
// version
// ============================================================================

func TestVersion(t *testing.T) {
	t.Parallel()

	out, err := execute(t, context.Background(), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "contractd ")

	out, err = execute(t, context.Background(), "--json", "version")
	require.NoError(t, err)
	var v VersionOutput
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.NotEmpty(t, v.Go)
}
