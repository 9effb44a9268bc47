package matching

import (
	"net/http"

	"github.com/getmockd/contractd/pkg/contract"
)

// RequestFromHTTP converts a received request and its already-read body.
// An empty body is recorded as missing.
func RequestFromHTTP(r *http.Request, data []byte) contract.Request {
	req := contract.Request{
		Method:  r.Method,
		Path:    r.URL.Path,
		Query:   r.URL.Query(),
		Headers: contract.HeadersFromHTTP(r.Header),
	}
	if req.Path == "" {
		req.Path = "/"
	}
	if len(data) > 0 {
		req.Body = contract.NewBody(data, r.Header.Get("Content-Type"))
	}
	return req
}

// ResponseFromHTTP converts a received response and its already-read body.
func ResponseFromHTTP(resp *http.Response, data []byte) contract.Response {
	out := contract.Response{
		Status:  resp.StatusCode,
		Headers: contract.HeadersFromHTTP(resp.Header),
	}
	if len(data) > 0 {
		out.Body = contract.NewBody(data, resp.Header.Get("Content-Type"))
	}
	return out
}
