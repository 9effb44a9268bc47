package mockserver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/getmockd/contractd/pkg/contract"
	"github.com/getmockd/contractd/pkg/matching"
	"github.com/getmockd/contractd/pkg/mismatch"
	"github.com/getmockd/contractd/pkg/rules"
)

// ============================================================================
// Helpers
// ============================================================================

func ordersInteraction() contract.Interaction {
	return contract.Interaction{
		Description: "get an open order",
		Request: contract.Request{
			Method: "GET",
			Path:   "/orders/{id}",
			Rules:  rules.New().MustAdd(rules.CategoryPath, "id", rules.Integer()),
		},
		Response: contract.Response{
			Status: 200,
			Body:   contract.NewBody([]byte(`{"status":"open"}`), "application/json"),
		},
	}
}

func pathInteraction(path string) contract.Interaction {
	return contract.Interaction{
		Description: "get " + path,
		Request:     contract.Request{Method: "GET", Path: path},
		Response:    contract.Response{Status: 200, Body: contract.TextBody(path)},
	}
}

func startServer(t *testing.T, interactions []contract.Interaction, cfg Config, opts ...Option) *Server {
	t.Helper()
	srv, err := Start(context.Background(), interactions, cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Stop(context.Background()) })
	return srv
}

func send(t *testing.T, srv *Server, method, path string, body io.Reader, headers ...string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL()+path, body)
	require.NoError(t, err)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

// ============================================================================
// Lifecycle
// ============================================================================

func TestServer_Lifecycle(t *testing.T) {
	t.Parallel()

	srv, err := New([]contract.Interaction{ordersInteraction()}, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, StateCreated, srv.State())
	assert.Nil(t, srv.Addr())
	assert.Empty(t, srv.URL())
	assert.NotEmpty(t, srv.ID())

	require.NoError(t, srv.Start(context.Background()))
	assert.Equal(t, StateRunning, srv.State())
	assert.NotZero(t, srv.Port())
	assert.True(t, strings.HasPrefix(srv.URL(), "http://127.0.0.1:"))
	assert.ErrorIs(t, srv.Start(context.Background()), ErrAlreadyStarted)

	require.NoError(t, srv.Stop(context.Background()))
	assert.Equal(t, StateStopped, srv.State())
	require.NoError(t, srv.Stop(context.Background()), "stop is idempotent")
	assert.Equal(t, StateStopped, srv.State())
}

func TestServer_StopBeforeStart(t *testing.T) {
	t.Parallel()

	srv, err := New(nil, DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, srv.Stop(context.Background()))
	assert.Equal(t, StateStopped, srv.State())
	assert.ErrorIs(t, srv.Start(context.Background()), ErrAlreadyStarted)
}

func TestServer_ConcurrentStopWaitsForInFlight(t *testing.T) {
	t.Parallel()

	in := pathInteraction("/upload")
	in.Request.Method = "POST"
	srv := startServer(t, []contract.Interaction{in}, DefaultConfig())

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	payload := "0123456789"
	_, err = fmt.Fprintf(conn, "POST /upload HTTP/1.1\r\nHost: test\r\nContent-Type: text/plain\r\nContent-Length: %d\r\n\r\n%s",
		len(payload), payload[:5])
	require.NoError(t, err)
	// Let the server pick up the request headers before stopping.
	time.Sleep(50 * time.Millisecond)

	first := make(chan error, 1)
	go func() { first <- srv.Stop(context.Background()) }()
	require.Eventually(t, func() bool { return srv.State() == StateStopping }, time.Second, 5*time.Millisecond)

	second := make(chan error, 1)
	go func() { second <- srv.Stop(context.Background()) }()

	select {
	case <-second:
		t.Fatal("second Stop returned while a request was still in flight")
	case <-time.After(100 * time.Millisecond):
	}
	_, err = srv.Verify()
	assert.ErrorIs(t, err, ErrVerificationNotReady)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, srv.Stop(ctx), context.Canceled)

	_, err = io.WriteString(conn, payload[5:])
	require.NoError(t, err)
	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, <-first)
	require.NoError(t, <-second)
	assert.Equal(t, StateStopped, srv.State())

	res, err := srv.Verify()
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Equal(t, 1, res.Matched)
	assert.Empty(t, res.Unexpected)
}

func TestServer_BindFailure(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := DefaultConfig()
	cfg.Addr = ln.Addr().String()
	srv, err := New(nil, cfg)
	require.NoError(t, err)

	err = srv.Start(context.Background())
	var startErr *StartError
	require.ErrorAs(t, err, &startErr)
	assert.Equal(t, "bind", startErr.Op)
	assert.Equal(t, StateFailed, srv.State())
	assert.Equal(t, err, srv.Err())
	assert.Equal(t, "error", srv.Report().Status)
}

func TestServer_TLSFailure(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.TLS = &TLSConfig{CertFile: "/nonexistent/cert.pem", KeyFile: "/nonexistent/key.pem"}
	srv, err := New(nil, cfg)
	require.NoError(t, err)

	var startErr *StartError
	require.ErrorAs(t, srv.Start(context.Background()), &startErr)
	assert.Equal(t, "tls", startErr.Op)
	assert.Equal(t, StateFailed, srv.State())
}

func TestNew_RejectsInvalidInteraction(t *testing.T) {
	t.Parallel()

	bad := pathInteraction("orders")
	_, err := New([]contract.Interaction{pathInteraction("/ok"), bad}, DefaultConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "interaction 1")

	cfg := DefaultConfig()
	cfg.TieBreak = "random"
	_, err = New(nil, cfg)
	require.Error(t, err)
}

// ============================================================================
// Orders scenario
// ============================================================================

func TestServer_OrdersMatched(t *testing.T) {
	t.Parallel()

	srv := startServer(t, []contract.Interaction{ordersInteraction()}, DefaultConfig())

	resp, data := send(t, srv, "GET", "/orders/42", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"status":"open"}`, string(data))

	require.NoError(t, srv.Stop(context.Background()))
	res, err := srv.Verify()
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Equal(t, 1, res.Matched)
	assert.Empty(t, res.Missing)
	assert.Empty(t, res.Unexpected)
}

func TestServer_OrdersNoMatch(t *testing.T) {
	t.Parallel()

	srv := startServer(t, []contract.Interaction{ordersInteraction()}, DefaultConfig())

	resp, data := send(t, srv, "GET", "/orders/abc", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var d Diagnostic
	require.NoError(t, json.Unmarshal(data, &d))
	assert.Equal(t, "no_matching_interaction", d.Error)
	assert.Equal(t, "/orders/abc", d.Request.Path)
	require.NotNil(t, d.Closest)
	assert.Equal(t, 0, d.Closest.Interaction)
	assert.False(t, d.Closest.AlreadyMatched)
	require.Len(t, d.Closest.Mismatches, 1)
	assert.Equal(t, mismatch.PartPath, d.Closest.Mismatches[0].Part)
	assert.Equal(t, "$.id", d.Closest.Mismatches[0].Path)

	res, err := srv.Verify()
	require.NoError(t, err)
	assert.False(t, res.Passed)
	require.Len(t, res.Unexpected, 1)
	assert.Equal(t, matching.NoMatchingInteraction, res.Unexpected[0].Status)
	require.Len(t, res.Missing, 1)
	assert.Len(t, res.Missing[0].Mismatches, 1)
}

func TestServer_ArrayContainsBody(t *testing.T) {
	t.Parallel()

	in := contract.Interaction{
		Description: "create with items",
		Request: contract.Request{
			Method:  "POST",
			Path:    "/items",
			Headers: contract.Headers{"Content-Type": {"application/json"}},
			Body:    contract.NewBody([]byte(`{"items":["a","b"]}`), "application/json"),
			Rules: rules.New().MustAdd(rules.CategoryBody, "$.items",
				rules.ArrayContains(rules.Variant{Index: 0})),
		},
		Response: contract.Response{Status: 201},
	}
	srv := startServer(t, []contract.Interaction{in}, DefaultConfig())

	resp, _ := send(t, srv, "POST", "/items", strings.NewReader(`{"items":["b","a","c"]}`),
		"Content-Type", "application/json")
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

// ============================================================================
// Claims
// ============================================================================

func TestServer_SecondRequestIsUnexpected(t *testing.T) {
	t.Parallel()

	srv := startServer(t, []contract.Interaction{ordersInteraction()}, DefaultConfig())

	resp, _ := send(t, srv, "GET", "/orders/1", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, data := send(t, srv, "GET", "/orders/1", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var d Diagnostic
	require.NoError(t, json.Unmarshal(data, &d))
	require.NotNil(t, d.Closest)
	assert.True(t, d.Closest.AlreadyMatched)
	assert.Empty(t, d.Closest.Mismatches)
	assert.Contains(t, d.Message, "already matched")

	res, err := srv.Verify()
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Empty(t, res.Missing)
	assert.Len(t, res.Unexpected, 1)
}

func TestServer_DuplicateInteractionsClaimedInOrder(t *testing.T) {
	t.Parallel()

	first := pathInteraction("/ping")
	first.Response.Body = contract.TextBody("first")
	second := pathInteraction("/ping")
	second.Response.Body = contract.TextBody("second")
	srv := startServer(t, []contract.Interaction{first, second}, DefaultConfig())

	_, data := send(t, srv, "GET", "/ping", nil)
	assert.Equal(t, "first", string(data))
	_, data = send(t, srv, "GET", "/ping", nil)
	assert.Equal(t, "second", string(data))

	res, err := srv.Verify()
	require.NoError(t, err)
	assert.True(t, res.Passed)
}

func TestServer_TieBreak(t *testing.T) {
	t.Parallel()

	loose := contract.Interaction{
		Description: "any order",
		Request:     contract.Request{Method: "GET", Path: "/orders/{id}"},
		Response:    contract.Response{Status: 200, Body: contract.TextBody("loose")},
	}
	exact := contract.Interaction{
		Description: "order 7",
		Request:     contract.Request{Method: "GET", Path: "/orders/7"},
		Response:    contract.Response{Status: 200, Body: contract.TextBody("exact")},
	}

	tests := []struct {
		name   string
		policy TieBreak
		want   string
	}{
		{"declaration order", TieBreakDeclarationOrder, "loose"},
		{"best fit", TieBreakBestFit, "exact"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			cfg.TieBreak = tt.policy
			srv := startServer(t, []contract.Interaction{loose, exact}, cfg)

			_, data := send(t, srv, "GET", "/orders/7", nil)
			assert.Equal(t, tt.want, string(data))
		})
	}
}

func TestServer_ConcurrentDistinctClaims(t *testing.T) {
	t.Parallel()

	const n = 100
	interactions := make([]contract.Interaction, n)
	for i := range interactions {
		interactions[i] = pathInteraction(fmt.Sprintf("/items/%d", i))
	}
	srv := startServer(t, interactions, DefaultConfig())
	client := srv.Client()

	var g errgroup.Group
	for i := range n {
		g.Go(func() error {
			resp, err := client.Get(fmt.Sprintf("%s/items/%d", srv.URL(), i))
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("item %d: status %d", i, resp.StatusCode)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.NoError(t, srv.Stop(context.Background()))

	res, err := srv.Verify()
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Equal(t, n, res.Matched)

	outcomes := srv.Outcomes()
	require.Len(t, outcomes, n)
	seen := make(map[int]bool, n)
	for _, o := range outcomes {
		assert.Equal(t, matching.Matched, o.Status)
		assert.False(t, seen[o.Interaction], "interaction %d claimed twice", o.Interaction)
		seen[o.Interaction] = true
	}
}

func TestServer_RacingClaims(t *testing.T) {
	t.Parallel()

	const n = 20
	srv := startServer(t, []contract.Interaction{pathInteraction("/once")}, DefaultConfig())
	client := srv.Client()

	statuses := make([]int, n)
	var g errgroup.Group
	for i := range n {
		g.Go(func() error {
			resp, err := client.Get(srv.URL() + "/once")
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			_, _ = io.Copy(io.Discard, resp.Body)
			statuses[i] = resp.StatusCode
			return nil
		})
	}
	require.NoError(t, g.Wait())

	var ok, failed int
	for _, s := range statuses {
		switch s {
		case http.StatusOK:
			ok++
		case http.StatusInternalServerError:
			failed++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, failed)

	m := srv.Metrics()
	assert.Equal(t, int64(n), m.Requests)
	assert.Equal(t, int64(1), m.Matched)
	assert.Equal(t, int64(n-1), m.Unmatched)
}

// ============================================================================
// Responses
// ============================================================================

func TestServer_ResponseHeaders(t *testing.T) {
	t.Parallel()

	in := pathInteraction("/doc")
	in.Response.Headers = contract.Headers{
		"Content-Type": {"application/vnd.api+json"},
		"X-Trace":      {"a", "b"},
	}
	in.Response.Body = contract.NewBody([]byte(`{}`), "application/json")
	srv := startServer(t, []contract.Interaction{in}, DefaultConfig())

	resp, data := send(t, srv, "GET", "/doc", nil)
	assert.Equal(t, "application/vnd.api+json", resp.Header.Get("Content-Type"))
	assert.Equal(t, []string{"a", "b"}, resp.Header.Values("X-Trace"))
	assert.Equal(t, "{}", string(data))
}

func TestServer_NoInteractions(t *testing.T) {
	t.Parallel()

	srv := startServer(t, nil, DefaultConfig())
	resp, data := send(t, srv, "GET", "/anything", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var d Diagnostic
	require.NoError(t, json.Unmarshal(data, &d))
	assert.Nil(t, d.Closest)
	assert.Contains(t, d.Message, "No interaction is registered")
}

func TestServer_BodyTooLarge(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.MaxBodySize = 8
	in := pathInteraction("/upload")
	in.Request.Method = "POST"
	srv := startServer(t, []contract.Interaction{in}, cfg)

	resp, data := send(t, srv, "POST", "/upload", bytes.NewReader(bytes.Repeat([]byte("x"), 64)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	assert.Equal(t, StateRunning, srv.State())

	var errBody struct {
		Error   string         `json:"error"`
		Details RequestSummary `json:"details"`
	}
	require.NoError(t, json.Unmarshal(data, &errBody))
	assert.Equal(t, "read_error", errBody.Error)
	assert.Equal(t, "POST", errBody.Details.Method)
	assert.Equal(t, "/upload", errBody.Details.Path)
	assert.NotEmpty(t, errBody.Details.ID)

	m := srv.Metrics()
	assert.Equal(t, int64(1), m.IOErrors)
	assert.Zero(t, m.Requests)

	resp, _ = send(t, srv, "POST", "/upload", strings.NewReader("ok"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// ============================================================================
// CORS and TLS
// ============================================================================

func TestServer_CORSPreflight(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.CORSPreflight = true
	srv := startServer(t, []contract.Interaction{ordersInteraction()}, cfg)

	resp, _ := send(t, srv, "OPTIONS", "/orders/1", nil,
		"Origin", "http://app.test",
		"Access-Control-Request-Method", "GET",
		"Access-Control-Request-Headers", "X-Api-Key")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://app.test", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "X-Api-Key", resp.Header.Get("Access-Control-Allow-Headers"))

	resp, _ = send(t, srv, "GET", "/orders/1", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	res, err := srv.Verify()
	require.NoError(t, err)
	assert.True(t, res.Passed, "preflight is not an unexpected request")
	assert.Equal(t, int64(1), srv.Metrics().Preflight)
}

func TestServer_PreflightWithoutCORS(t *testing.T) {
	t.Parallel()

	srv := startServer(t, nil, DefaultConfig())
	resp, _ := send(t, srv, "OPTIONS", "/x", nil, "Access-Control-Request-Method", "GET")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestServer_TLS(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.TLS = &TLSConfig{}
	srv := startServer(t, []contract.Interaction{ordersInteraction()}, cfg)

	assert.Equal(t, "https", srv.Scheme())
	assert.True(t, strings.HasPrefix(srv.URL(), "https://127.0.0.1:"))
	require.NotNil(t, srv.CertPool())

	resp, data := send(t, srv, "GET", "/orders/9", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"open"}`, string(data))
}

// ============================================================================
// Verification
// ============================================================================

func TestServer_VerifyNotReady(t *testing.T) {
	t.Parallel()

	srv := startServer(t, []contract.Interaction{ordersInteraction()}, DefaultConfig())
	_, err := srv.Verify()
	require.ErrorIs(t, err, ErrVerificationNotReady)

	require.NoError(t, srv.Stop(context.Background()))
	res, err := srv.Verify()
	require.NoError(t, err)
	assert.False(t, res.Passed)
	require.Len(t, res.Missing, 1)
	assert.Equal(t, "get an open order", res.Missing[0].Description)
	assert.Equal(t, "/orders/{id}", res.Missing[0].Path)
}

func TestServer_VerifyWhileRunning(t *testing.T) {
	t.Parallel()

	srv := startServer(t, []contract.Interaction{pathInteraction("/a"), pathInteraction("/b")}, DefaultConfig())
	send(t, srv, "GET", "/a", nil)

	res, err := srv.Verify()
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Equal(t, 1, res.Matched)
	require.Len(t, res.Missing, 1)
	assert.Equal(t, 1, res.Missing[0].Interaction)

	send(t, srv, "GET", "/b", nil)
	res, err = srv.Verify()
	require.NoError(t, err)
	assert.True(t, res.Passed)
}

func TestServer_Report(t *testing.T) {
	t.Parallel()

	srv := startServer(t, []contract.Interaction{ordersInteraction()}, DefaultConfig())

	r := srv.Report()
	assert.Equal(t, "ok", r.Status)
	assert.Nil(t, r.Verification)
	assert.Equal(t, 1, r.Interactions)

	send(t, srv, "GET", "/orders/x", nil)
	r = srv.Report()
	assert.Equal(t, "error", r.Status)
	require.NotNil(t, r.Verification)

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"state":"running"`)
	assert.Contains(t, string(data), `"status":"no-matching-interaction"`)
}
