package mockserver

import (
	"fmt"
	"time"
)

// TieBreak decides which interaction claims a request that several unclaimed
// interactions match.
type TieBreak string

// Tie-break policies.
const (
	// TieBreakDeclarationOrder picks the first matching interaction in the
	// order they were registered.
	TieBreakDeclarationOrder TieBreak = "declaration-order"
	// TieBreakBestFit picks the matching interaction with the most specific
	// request, then the first registered.
	TieBreakBestFit TieBreak = "best-fit"
)

// ParseTieBreak parses a policy name. The empty string selects declaration
// order.
func ParseTieBreak(s string) (TieBreak, error) {
	switch TieBreak(s) {
	case "", TieBreakDeclarationOrder:
		return TieBreakDeclarationOrder, nil
	case TieBreakBestFit:
		return TieBreakBestFit, nil
	}
	return "", fmt.Errorf("unknown tie-break policy %q", s)
}

// TLSConfig enables HTTPS. When no key pair is configured a self-signed
// certificate is generated at start.
type TLSConfig struct {
	CertFile string
	KeyFile  string
}

// Config configures a mock server.
type Config struct {
	// Addr is the listen address. Port 0 picks a free port.
	Addr string
	// TLS enables HTTPS when set.
	TLS *TLSConfig
	// CORSPreflight answers OPTIONS preflight requests that match no
	// interaction instead of reporting them as unexpected.
	CORSPreflight bool
	TieBreak      TieBreak
	// MaxConnections limits simultaneous connections. Zero is unlimited.
	MaxConnections int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	// MaxBodySize limits request bodies in bytes. Zero is unlimited.
	MaxBodySize int64
	// AllowUnexpectedQuery accepts query parameters no interaction lists.
	AllowUnexpectedQuery bool
	// NoUnexpectedKeys reports body keys that appear only in the request.
	NoUnexpectedKeys bool
}

// DefaultConfig returns a plain HTTP configuration on a free loopback port.
func DefaultConfig() Config {
	return Config{
		Addr:         "127.0.0.1:0",
		TieBreak:     TieBreakDeclarationOrder,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		MaxBodySize:  10 << 20,
	}
}
