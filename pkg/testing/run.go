package testing

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/getmockd/contractd/pkg/contract"
	"github.com/getmockd/contractd/pkg/mockserver"
	"github.com/getmockd/contractd/pkg/rules"
)

// Builder collects interactions for one mock server session.
type Builder struct {
	tb           testing.TB
	cfg          mockserver.Config
	opts         []mockserver.Option
	interactions []*InteractionBuilder
}

// Option configures a Builder.
type Option func(*Builder)

// WithConfig replaces the mock server configuration.
func WithConfig(cfg mockserver.Config) Option {
	return func(b *Builder) {
		b.cfg = cfg
	}
}

// WithServerOptions passes options to the mock server.
func WithServerOptions(opts ...mockserver.Option) Option {
	return func(b *Builder) {
		b.opts = append(b.opts, opts...)
	}
}

// New returns a builder that reports to tb.
func New(tb testing.TB, opts ...Option) *Builder {
	b := &Builder{tb: tb, cfg: mockserver.DefaultConfig()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Interaction starts declaring an interaction.
func (b *Builder) Interaction(description string) *InteractionBuilder {
	ib := &InteractionBuilder{
		in: contract.Interaction{
			Description: description,
			Request:     contract.Request{Method: "GET", Path: "/", Rules: rules.New()},
			Response:    contract.Response{Status: 200, Rules: rules.New()},
		},
	}
	b.interactions = append(b.interactions, ib)
	return ib
}

// Interactions returns the declared interactions.
func (b *Builder) Interactions() ([]contract.Interaction, error) {
	out := make([]contract.Interaction, 0, len(b.interactions))
	for _, ib := range b.interactions {
		if ib.err != nil {
			return nil, fmt.Errorf("interaction %q: %w", ib.in.Description, ib.err)
		}
		out = append(out, ib.in)
	}
	return out, nil
}

// Run starts a mock server for the declared interactions, calls fn with its
// base URL, stops it and fails the test unless fn succeeded and every
// interaction was matched exactly once.
func (b *Builder) Run(fn func(url string) error) mockserver.VerificationResult {
	b.tb.Helper()

	interactions, err := b.Interactions()
	if err != nil {
		b.tb.Fatalf("contract test: %v", err)
		return mockserver.VerificationResult{}
	}
	ctx := context.Background()
	srv, err := mockserver.Start(ctx, interactions, b.cfg, b.opts...)
	if err != nil {
		b.tb.Fatalf("contract test: start mock server: %v", err)
		return mockserver.VerificationResult{}
	}

	fnErr := fn(srv.URL())
	if err := srv.Stop(ctx); err != nil {
		b.tb.Errorf("contract test: stop mock server: %v", err)
	}
	assert.NoError(b.tb, fnErr, "test callback failed")

	res, err := srv.Verify()
	if err != nil {
		b.tb.Errorf("contract test: verify: %v", err)
		return res
	}
	assert.True(b.tb, res.Passed, "contract verification failed:\n%s", Describe(res))
	return res
}

// Describe renders a verification result for test output.
func Describe(res mockserver.VerificationResult) string {
	if res.Passed {
		return "all interactions matched"
	}
	var sb strings.Builder
	for _, m := range res.Missing {
		fmt.Fprintf(&sb, "missing: %q (%s %s)\n", m.Description, m.Method, m.Path)
		for _, mm := range m.Mismatches {
			fmt.Fprintf(&sb, "    %s\n", mm)
		}
	}
	for _, o := range res.Unexpected {
		fmt.Fprintf(&sb, "unexpected: %s %s", o.Request.Method, o.Request.Path)
		if o.Closest != nil {
			fmt.Fprintf(&sb, " (closest %q: %s)", o.Closest.Description, o.Closest.Reason)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
