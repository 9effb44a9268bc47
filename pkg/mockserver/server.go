package mockserver

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/net/netutil"

	"github.com/getmockd/contractd/internal/id"
	"github.com/getmockd/contractd/pkg/body"
	"github.com/getmockd/contractd/pkg/contract"
	"github.com/getmockd/contractd/pkg/logging"
	"github.com/getmockd/contractd/pkg/matching"
	tlsutil "github.com/getmockd/contractd/pkg/tls"
)

const shutdownTimeout = 5 * time.Second

// Server is a mock server for one fixed set of expected interactions.
type Server struct {
	id       string
	cfg      Config
	log      *slog.Logger
	registry *body.Registry
	arena    *arena
	matchOps []matching.Option
	metrics  metrics

	mu         sync.RWMutex
	state      State
	failure    error
	listener   net.Listener
	httpServer *http.Server
	scheme     string
	certPool   *x509.CertPool
	startTime  time.Time
	served     chan struct{}
	stopped    chan struct{}
	stopErr    error
	inflight   sync.WaitGroup
}

// Option is a functional option for configuring a Server.
type Option func(*Server)

// WithLogger sets the operational logger for the server.
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithRegistry sets the format matcher registry used for request bodies.
func WithRegistry(r *body.Registry) Option {
	return func(s *Server) {
		if r != nil {
			s.registry = r
		}
	}
}

// WithID sets the server ID instead of generating one.
func WithID(serverID string) Option {
	return func(s *Server) {
		if serverID != "" {
			s.id = serverID
		}
	}
}

// New validates the interactions and returns a server in the Created state.
// The interaction set cannot change afterwards.
func New(interactions []contract.Interaction, cfg Config, opts ...Option) (*Server, error) {
	var errs []error
	for i, in := range interactions {
		if err := in.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("interaction %d: %w", i, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	policy, err := ParseTieBreak(string(cfg.TieBreak))
	if err != nil {
		return nil, err
	}
	cfg.TieBreak = policy

	s := &Server{
		id:       id.Server(),
		cfg:      cfg,
		log:      logging.Nop(),
		registry: body.Default,
		arena:    newArena(interactions, policy),
		state:    StateCreated,
		scheme:   "http",
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("server", s.id)

	s.matchOps = append(s.matchOps, matching.WithRegistry(s.registry))
	if cfg.AllowUnexpectedQuery {
		s.matchOps = append(s.matchOps, matching.WithAllowUnexpectedQuery())
	}
	if cfg.NoUnexpectedKeys {
		s.matchOps = append(s.matchOps, matching.WithNoUnexpectedKeys())
	}
	if cfg.TLS != nil {
		s.scheme = "https"
	}
	return s, nil
}

// Start creates a server and starts it.
func Start(ctx context.Context, interactions []contract.Interaction, cfg Config, opts ...Option) (*Server, error) {
	s, err := New(interactions, cfg, opts...)
	if err != nil {
		return nil, err
	}
	if err := s.Start(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Start binds the listener and begins serving. A bind or TLS failure leaves
// the server Failed and is returned as a *StartError.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateCreated {
		return ErrAlreadyStarted
	}
	s.state = StateStarting

	var tlsConfig *tls.Config
	if s.cfg.TLS != nil {
		cfg, pool, err := buildTLSConfig(s.cfg.TLS)
		if err != nil {
			return s.fail(&StartError{Op: "tls", Err: err})
		}
		tlsConfig, s.certPool = cfg, pool
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return s.fail(&StartError{Op: "bind", Addr: s.cfg.Addr, Err: err})
	}
	if s.cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxConnections)
	}
	if tlsConfig != nil {
		ln = tls.NewListener(ln, tlsConfig)
	}

	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		ErrorLog:          slog.NewLogLogger(s.log.Handler(), slog.LevelWarn),
	}
	s.served = make(chan struct{})
	s.startTime = time.Now()
	s.state = StateRunning

	go s.serve(s.httpServer, ln, s.served)

	s.log.Info("mock server started",
		"addr", ln.Addr().String(),
		"scheme", s.scheme,
		"interactions", len(s.arena.slots))
	return nil
}

func (s *Server) serve(srv *http.Server, ln net.Listener, done chan struct{}) {
	defer close(done)
	err := srv.Serve(ln)
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return
	}
	s.log.Error("mock server stopped serving", "error", err)
	s.mu.Lock()
	if s.state == StateRunning {
		s.state = StateFailed
		s.failure = err
	}
	s.mu.Unlock()
}

// fail records a start failure. The caller holds s.mu.
func (s *Server) fail(err error) error {
	s.state = StateFailed
	s.failure = err
	s.log.Error("mock server failed to start", "error", err)
	return err
}

// Stop stops accepting connections and waits for in-flight requests to
// record their outcomes. A concurrent Stop waits for the first one to finish
// and returns its result. Stopping a stopped, failed or never-started server
// is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateRunning:
	case StateStopping:
		s.mu.Unlock()
		select {
		case <-s.stopped:
			return s.stopErr
		case <-ctx.Done():
			return ctx.Err()
		}
	case StateCreated:
		s.state = StateStopped
		close(s.stopped)
		s.mu.Unlock()
		return nil
	default:
		s.mu.Unlock()
		return nil
	}
	s.state = StateStopping
	srv, done := s.httpServer, s.served
	s.mu.Unlock()

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	var errs []error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown: %w", err))
		if err := srv.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close: %w", err))
		}
	}
	<-done
	s.inflight.Wait()

	s.mu.Lock()
	s.state = StateStopped
	s.stopErr = errors.Join(errs...)
	close(s.stopped)
	s.mu.Unlock()

	m := s.metrics.snapshot()
	s.log.Info("mock server stopped",
		"requests", m.Requests,
		"matched", m.Matched,
		"unmatched", m.Unmatched)
	return s.stopErr
}

// ID returns the server ID.
func (s *Server) ID() string { return s.id }

// State returns the lifecycle state.
func (s *Server) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Err returns the failure that moved the server to Failed, if any.
func (s *Server) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.failure
}

// Scheme returns "http" or "https".
func (s *Server) Scheme() string { return s.scheme }

// Addr returns the bound address, or nil before start.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Port returns the bound port, or 0 before start.
func (s *Server) Port() int {
	if tcp, ok := s.Addr().(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}

// URL returns the base URL clients should use. Unspecified bind addresses
// are rendered as the loopback address.
func (s *Server) URL() string {
	tcp, ok := s.Addr().(*net.TCPAddr)
	if !ok {
		return ""
	}
	host := "127.0.0.1"
	if tcp.IP != nil && !tcp.IP.IsUnspecified() {
		host = tcp.IP.String()
	}
	return s.scheme + "://" + net.JoinHostPort(host, strconv.Itoa(tcp.Port))
}

// CertPool returns a pool trusting the generated certificate of an HTTPS
// server, or nil.
func (s *Server) CertPool() *x509.CertPool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.certPool
}

// Client returns an HTTP client that trusts the server's certificate.
func (s *Server) Client() *http.Client {
	pool := s.CertPool()
	if pool == nil {
		return &http.Client{Timeout: 30 * time.Second}
	}
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12},
		},
	}
}

// Interactions returns the registered interactions.
func (s *Server) Interactions() []contract.Interaction {
	out := make([]contract.Interaction, len(s.arena.slots))
	for i, sl := range s.arena.slots {
		out[i] = sl.interaction
	}
	return out
}

// Outcomes returns a copy of the outcome log in arrival order.
func (s *Server) Outcomes() []Outcome {
	outcomes, _ := s.arena.snapshot()
	return outcomes
}

// Metrics returns the request counters.
func (s *Server) Metrics() Metrics {
	return s.metrics.snapshot()
}

func buildTLSConfig(cfg *TLSConfig) (*tls.Config, *x509.CertPool, error) {
	if cfg.CertFile != "" || cfg.KeyFile != "" {
		cert, err := tlsutil.Load(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, nil, err
		}
		return tlsutil.ServerConfig(cert), nil, nil
	}
	pair, err := tlsutil.SelfSigned(tlsutil.DefaultOptions())
	if err != nil {
		return nil, nil, fmt.Errorf("generate certificate: %w", err)
	}
	cert, err := pair.Certificate()
	if err != nil {
		return nil, nil, err
	}
	return tlsutil.ServerConfig(cert), pair.Pool(), nil
}
