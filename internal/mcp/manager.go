// Package mcp lets the Tool Registry (spec.md §4.5) mount tools exposed by
// an external MCP server alongside TARS's first-party tools: the agent that
// uses the bound Registry sees them as ordinary tools, with no
// special-casing anywhere else in the Agent Loop.
//
// Adapted from the teacher's internal/mcp, which ran two modes (a static
// standalone config map and a per-user/per-agent managed mode backed by a
// Postgres-resident MCPServerStore). TARS has a single owner and no
// multi-tenant server store, so only the standalone shape survives here;
// the health-checked connection state, exponential-backoff reconnect, and
// tool-name-collision guard are kept and generalized.
package mcp

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mark3labs/mcp-go/client"

	"github.com/ntars/tars/internal/tools"
)

const (
	healthCheckInterval  = 30 * time.Second
	initialBackoff       = 2 * time.Second
	maxBackoff           = 60 * time.Second
	maxReconnectAttempts = 10
)

// ServerConfig names one external MCP server to launch over stdio.
type ServerConfig struct {
	Name    string
	Command string
	Args    []string
	Env     []string

	// AllowTools/DenyTools restrict which of the server's advertised tools
	// get registered, grounded on the teacher's per-agent LoadForAgent
	// grant filtering; empty AllowTools means "allow everything not denied".
	AllowTools []string
	DenyTools  []string
}

// ServerStatus reports the connection status of one MCP server.
type ServerStatus struct {
	Name      string
	Connected bool
	ToolCount int
	Error     string
}

// serverState tracks one live MCP server connection and its health.
type serverState struct {
	name      string
	client    *client.Client
	connected atomic.Bool
	toolNames []string
	cancel    context.CancelFunc

	mu             sync.Mutex
	reconnAttempts int
	lastErr        string
}

// Manager owns a set of live MCP client connections, the bridged tools they
// expose, and a background health/reconnect loop per server.
type Manager struct {
	mu       sync.RWMutex
	servers  map[string]*serverState
	registry *tools.Registry
}

// NewManager creates an empty Manager bound to reg; tools registered by a
// later Start live in reg until Stop.
func NewManager(reg *tools.Registry) *Manager {
	return &Manager{servers: make(map[string]*serverState), registry: reg}
}

// Start connects to every server in cfgs, registering its tools into the
// bound Registry. A server that cannot be reached only logs a warning —
// one unreachable MCP server should not prevent the rest of the engine
// from starting.
func (m *Manager) Start(ctx context.Context, cfgs []ServerConfig) {
	for _, cfg := range cfgs {
		if err := m.connectServer(ctx, cfg); err != nil {
			slog.Warn("mcp: server unavailable", "server", cfg.Name, "error", err)
		}
	}
}

// Stop cancels every health loop, closes every client, and unregisters
// every bridged tool.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, ss := range m.servers {
		if ss.cancel != nil {
			ss.cancel()
		}
		if ss.client != nil {
			if err := ss.client.Close(); err != nil {
				slog.Debug("mcp: close error", "server", name, "error", err)
			}
		}
		for _, toolName := range ss.toolNames {
			m.registry.Unregister(toolName)
		}
	}
	m.servers = make(map[string]*serverState)
}

// ServerStatus reports the current status of every server Start connected
// (or attempted to).
func (m *Manager) ServerStatus() []ServerStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ServerStatus, 0, len(m.servers))
	for _, ss := range m.servers {
		ss.mu.Lock()
		lastErr := ss.lastErr
		ss.mu.Unlock()
		out = append(out, ServerStatus{
			Name:      ss.name,
			Connected: ss.connected.Load(),
			ToolCount: len(ss.toolNames),
			Error:     lastErr,
		})
	}
	return out
}

// ToolNames returns every tool name currently registered across all
// connected servers.
func (m *Manager) ToolNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var names []string
	for _, ss := range m.servers {
		names = append(names, ss.toolNames...)
	}
	return names
}
