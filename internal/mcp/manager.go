package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/majordomo-ai/majordomo/internal/config"
	"github.com/majordomo-ai/majordomo/internal/tools"
)

// Manager owns the connections to configured MCP servers and the bridge
// tools built from them.
type Manager struct {
	mu      sync.Mutex
	servers []*serverConn
}

type serverConn struct {
	name      string
	client    *mcpclient.Client
	connected *atomic.Bool
}

func NewManager() *Manager {
	return &Manager{}
}

// Connect launches each configured server over stdio, performs the MCP
// handshake, and registers every advertised tool. A server that fails to
// start is logged and skipped so one broken entry cannot take the daemon
// down.
func (m *Manager) Connect(ctx context.Context, configs []config.MCPServerConfig, registry *tools.Registry) {
	for _, sc := range configs {
		if err := m.connectOne(ctx, sc, registry); err != nil {
			slog.Warn("mcp server unavailable", "server", sc.Name, "error", err)
		}
	}
}

func (m *Manager) connectOne(ctx context.Context, sc config.MCPServerConfig, registry *tools.Registry) error {
	if sc.Command == "" {
		return fmt.Errorf("no command configured")
	}

	client, err := mcpclient.NewStdioMCPClient(sc.Command, sc.Env, sc.Args...)
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}

	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	initReq := mcpgo.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcpgo.Implementation{Name: "majordomo", Version: "0.1.0"}
	if _, err := client.Initialize(initCtx, initReq); err != nil {
		client.Close()
		return fmt.Errorf("initialize: %w", err)
	}

	listed, err := client.ListTools(initCtx, mcpgo.ListToolsRequest{})
	if err != nil {
		client.Close()
		return fmt.Errorf("list tools: %w", err)
	}

	connected := &atomic.Bool{}
	connected.Store(true)

	timeout := time.Duration(sc.TimeoutSec) * time.Second
	registered := 0
	for _, mcpTool := range listed.Tools {
		bridge := NewBridgeTool(sc.Name, mcpTool, client, sc.Prefix, timeout, sc.Sensitive, connected)
		if err := registry.Register(bridge); err != nil {
			slog.Warn("mcp tool not registered", "server", sc.Name, "tool", bridge.Name(), "error", err)
			continue
		}
		registered++
	}

	m.mu.Lock()
	m.servers = append(m.servers, &serverConn{name: sc.Name, client: client, connected: connected})
	m.mu.Unlock()

	slog.Info("mcp server connected", "server", sc.Name, "tools", registered)
	return nil
}

// Close shuts down all server connections. Bridge tools report themselves
// disconnected afterwards instead of hanging on a dead pipe.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.servers {
		s.connected.Store(false)
		if err := s.client.Close(); err != nil {
			slog.Debug("mcp server close failed", "server", s.name, "error", err)
		}
	}
	m.servers = nil
}
