package mockserver

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrAlreadyStarted is returned by Start when the server has left the
	// Created state.
	ErrAlreadyStarted = errors.New("mock server already started")
	// ErrVerificationNotReady is returned by Verify before the server has
	// received a request or been stopped, and while a stop is in progress.
	ErrVerificationNotReady = errors.New("verification not ready: no requests received and server not stopped")
	// ErrNotFound is returned by Manager lookups for an unknown server ID.
	ErrNotFound = errors.New("mock server not found")
)

// StartError reports why a server could not start. The server is left in
// the Failed state.
type StartError struct {
	// Op is "bind" or "tls".
	Op   string
	Addr string
	Err  error
}

func (e *StartError) Error() string {
	if e.Addr != "" {
		return fmt.Sprintf("mock server %s %s: %v", e.Op, e.Addr, e.Err)
	}
	return fmt.Sprintf("mock server %s: %v", e.Op, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// IOError is a failure to read a request or write a response. It affects
// only that request.
type IOError struct {
	Method string
	Path   string
	Op     string
	Err    error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s %s: %v", e.Op, e.Method, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
