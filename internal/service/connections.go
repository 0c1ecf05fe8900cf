package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/go-kit/log"

	"datapipe/internal/dbclient"
	"datapipe/internal/domain"
)

// ErrUnknownConnection is returned for a connection name that is not configured.
var ErrUnknownConnection = errors.New("unknown connection")

// ConnectionRegistry resolves configured connections by name. Connectors
// keep a single open cursor, so every Open returns a new one.
type ConnectionRegistry struct {
	mu     sync.RWMutex
	conns  map[string]domain.DatabaseConnection
	logger log.Logger

	// newConnector is replaced in tests.
	newConnector func(*domain.DatabaseConnection, log.Logger) (dbclient.Connector, error)
}

// NewConnectionRegistry validates conns and indexes them by name.
func NewConnectionRegistry(conns []domain.DatabaseConnection, logger log.Logger) (*ConnectionRegistry, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	r := &ConnectionRegistry{
		conns:        make(map[string]domain.DatabaseConnection, len(conns)),
		logger:       logger,
		newConnector: dbclient.NewConnector,
	}
	for _, c := range conns {
		if err := r.Add(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Add registers a connection. Names must be unique.
func (r *ConnectionRegistry) Add(c domain.DatabaseConnection) error {
	if err := c.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[c.Name]; ok {
		return fmt.Errorf("connection %q is declared twice", c.Name)
	}
	r.conns[c.Name] = c
	return nil
}

// Get returns the connection named name.
func (r *ConnectionRegistry) Get(name string) (domain.DatabaseConnection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[name]
	if !ok {
		return domain.DatabaseConnection{}, fmt.Errorf("%w: %q", ErrUnknownConnection, name)
	}
	return c, nil
}

// Names returns the configured connection names, sorted.
func (r *ConnectionRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.conns))
	for name := range r.conns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open returns a new connector for the connection named name. The caller
// must close it.
func (r *ConnectionRegistry) Open(ctx context.Context, name string) (dbclient.Connector, error) {
	c, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	conn, err := r.newConnector(&c, r.logger)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", name, err)
	}
	return conn, nil
}

// Test opens the connection named name and checks it is reachable.
func (r *ConnectionRegistry) Test(ctx context.Context, name string) error {
	conn, err := r.Open(ctx, name)
	if err != nil {
		return err
	}
	defer conn.Close()
	return conn.TestConnection(ctx)
}
