package mockserver

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/getmockd/contractd/pkg/contract"
	"github.com/getmockd/contractd/pkg/logging"
)

// Manager tracks running mock servers by ID.
type Manager struct {
	log *slog.Logger

	mu      sync.RWMutex
	servers map[string]*Server
}

// NewManager returns an empty manager. Servers it starts log through log.
func NewManager(log *slog.Logger) *Manager {
	if log == nil {
		log = logging.Nop()
	}
	return &Manager{log: log, servers: make(map[string]*Server)}
}

// Start starts a server and registers it.
func (m *Manager) Start(ctx context.Context, interactions []contract.Interaction, cfg Config, opts ...Option) (*Server, error) {
	opts = append([]Option{WithLogger(m.log)}, opts...)
	s, err := Start(ctx, interactions, cfg, opts...)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.servers[s.ID()] = s
	m.mu.Unlock()
	return s, nil
}

// Get returns a registered server.
func (m *Manager) Get(serverID string) (*Server, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.servers[serverID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, serverID)
	}
	return s, nil
}

// IDs returns the registered server IDs, sorted.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.servers))
	for k := range m.servers {
		ids = append(ids, k)
	}
	slices.Sort(ids)
	return ids
}

// Verify verifies a registered server.
func (m *Manager) Verify(serverID string) (VerificationResult, error) {
	s, err := m.Get(serverID)
	if err != nil {
		return VerificationResult{}, err
	}
	return s.Verify()
}

// Stop stops a server and removes it from the manager.
func (m *Manager) Stop(ctx context.Context, serverID string) error {
	m.mu.Lock()
	s, ok := m.servers[serverID]
	delete(m.servers, serverID)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, serverID)
	}
	return s.Stop(ctx)
}

// StopAll stops every registered server concurrently.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	servers := make([]*Server, 0, len(m.servers))
	for _, s := range m.servers {
		servers = append(servers, s)
	}
	clear(m.servers)
	m.mu.Unlock()

	var g errgroup.Group
	for _, s := range servers {
		g.Go(func() error {
			if err := s.Stop(ctx); err != nil {
				return fmt.Errorf("stop %s: %w", s.ID(), err)
			}
			return nil
		})
	}
	return g.Wait()
}
