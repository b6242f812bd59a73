// Package mcp exposes the debugging engine as Model Context Protocol tools.
//
// The tool surface is wait-oriented: instead of separate launch, breakpoint,
// and continue primitives, one call starts (or reuses) a session, arms
// breakpoints, and blocks until something interesting happens:
//
// Control (full mode only):
//   - debug_start_wait: start or reuse a session, arm breakpoints, wait for a stop
//   - debug_trigger_wait: arm breakpoints on an existing session, optionally fire an action, wait
//   - debug_resume: resume a paused session without waiting
//   - debug_stop: terminate a session
//
// Inspection (always available):
//   - debug_list_sessions: nested and flattened session views with next-action hints
//   - debug_get_variables: scope variables of the paused frame
//   - debug_evaluate: evaluate an expression in the paused frame
//   - debug_http_request: out-of-band HTTP request against the debuggee
package mcp

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/dkattan/breakpoint-mcp/internal/adapters"
	"github.com/dkattan/breakpoint-mcp/internal/config"
	"github.com/dkattan/breakpoint-mcp/internal/engine"
	"github.com/dkattan/breakpoint-mcp/internal/session"
	"github.com/dkattan/breakpoint-mcp/internal/version"
)

// Server wraps the MCP server with the debugging engine
type Server struct {
	mcpServer *server.MCPServer
	engine    *engine.Engine
	registry  *session.Registry
	config    *config.Config
}

// NewServer creates a breakpoint-mcp server with the full tool surface for
// the configured mode.
func NewServer(cfg *config.Config) *Server {
	mcpServer := server.NewMCPServer(
		"breakpoint-mcp",
		version.Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	registry := session.NewRegistry(cfg.MaxSessions, cfg.SessionTimeout)
	adapterReg := adapters.NewRegistry(cfg)
	eng := engine.New(cfg, registry, adapterReg, nil)

	s := &Server{
		mcpServer: mcpServer,
		engine:    eng,
		registry:  registry,
		config:    cfg,
	}

	s.registerTools()

	return s
}

// ServeStdio starts the server using stdio transport
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// Close terminates all sessions and shuts down the registry
func (s *Server) Close() {
	s.registry.Close()
}

// Engine returns the debugging engine
func (s *Server) Engine() *engine.Engine {
	return s.engine
}

// Registry returns the session registry
func (s *Server) Registry() *session.Registry {
	return s.registry
}

// Config returns the server configuration
func (s *Server) Config() *config.Config {
	return s.config
}
