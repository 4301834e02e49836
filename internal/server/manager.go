package server

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/autopeer-io/campustrack/pkg/log"
)

// Server is anything that runs until its context ends.
type Server interface {
	Start(ctx context.Context) error
}

// Func adapts a function to Server.
type Func func(ctx context.Context) error

func (f Func) Start(ctx context.Context) error { return f(ctx) }

// Manager runs a set of servers together. The first one to fail cancels the
// rest.
type Manager struct {
	servers []Server
}

func NewManager(servers ...Server) *Manager {
	return &Manager{servers: servers}
}

// Add appends a server. It must be called before Start.
func (m *Manager) Add(s Server) {
	m.servers = append(m.servers, s)
}

// Start launches all servers in parallel and waits for termination.
func (m *Manager) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, srv := range m.servers {
		g.Go(func() error {
			return srv.Start(ctx)
		})
	}

	log.Info("All servers starting...", "count", len(m.servers))
	return g.Wait()
}
