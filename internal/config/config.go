// Package config provides configuration management for the breakpoint-mcp server.
//
// Configuration controls:
//   - Capability mode (readonly vs full): determines which tools are available
//   - Permission flags: control spawn, attach, evaluate, and side-action operations
//   - Language-specific adapter settings: paths and flags for each debugger
//   - Orchestration defaults: stop-wait timeout, value truncation, multi-session policy
//   - Safety limits: maximum sessions and session timeout
//
// Configuration can be loaded from a JSON file or use sensible defaults.
// The readonly mode exposes only inspection tools, while full mode enables
// all debugging capabilities including execution control.
package config

import (
	"encoding/json"
	"os"
	"time"
)

// CapabilityMode defines the level of debugging capabilities exposed
type CapabilityMode string

const (
	ModeReadOnly CapabilityMode = "readonly" // Only session listing and inspection
	ModeFull     CapabilityMode = "full"     // All tools enabled
)

// Config holds the server configuration
type Config struct {
	// Capability levels
	Mode          CapabilityMode `json:"mode"`
	AllowSpawn    bool           `json:"allowSpawn"`
	AllowAttach   bool           `json:"allowAttach"`
	AllowEvaluate bool           `json:"allowEvaluate"`
	AllowActions  bool           `json:"allowActions"`

	// Language-specific adapter configs
	Adapters AdapterConfigs `json:"adapters"`

	// Stop-wait defaults
	DefaultStopWaitSeconds int `json:"defaultStopWaitSeconds"`

	// MaxValueLength bounds rendered variable values. Longer values are
	// truncated with an ellipsis and their original length; the untruncated
	// string is still carried for programmatic use.
	MaxValueLength int `json:"maxValueLength"`

	// ServerReadyGraceMs is how long to wait after firing a background
	// server-ready action before resuming the session.
	ServerReadyGraceMs int `json:"serverReadyGraceMs"`

	// SupportsMultipleSessions must be set for the ignoreAndCreateNew
	// existing-session behavior to be accepted.
	SupportsMultipleSessions bool `json:"supportsMultipleSessions"`

	// Limits for safety
	MaxSessions    int           `json:"maxSessions"`
	SessionTimeout time.Duration `json:"sessionTimeout"`

	// LogLevel sets the logrus level (debug, info, warn, error)
	LogLevel string `json:"logLevel"`
}

// AdapterConfigs holds configuration for each language adapter
type AdapterConfigs struct {
	Go      DelveConfig   `json:"go"`
	Python  DebugpyConfig `json:"python"`
	Node    NodeConfig    `json:"node"`
	Command CommandConfig `json:"command"`
}

// DelveConfig holds Delve-specific configuration
type DelveConfig struct {
	Path       string `json:"path"`
	BuildFlags string `json:"buildFlags"`
}

// DebugpyConfig holds debugpy-specific configuration
type DebugpyConfig struct {
	PythonPath string `json:"pythonPath"`
}

// NodeConfig holds Node.js-specific configuration
type NodeConfig struct {
	NodePath               string            `json:"nodePath"`
	JsDebugPath            string            `json:"jsDebugPath"` // Path to vscode-js-debug's dapDebugServer.js
	SourceMapPathOverrides map[string]string `json:"sourceMapPathOverrides"`
}

// CommandConfig configures the generic stdio adapter: any DAP adapter binary
// that speaks the protocol over stdin/stdout can be routed to it.
type CommandConfig struct {
	Command string   `json:"command"`
	Args    []string `json:"args"`
	// Languages lists the language tags served by this adapter,
	// e.g. ["rust", "c", "cpp"] for lldb-dap.
	Languages []string `json:"languages"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Mode:                   ModeFull,
		AllowSpawn:             true,
		AllowAttach:            true,
		AllowEvaluate:          true,
		AllowActions:           true,
		DefaultStopWaitSeconds: 30,
		MaxValueLength:         1024,
		ServerReadyGraceMs:     500,
		MaxSessions:            10,
		SessionTimeout:         30 * time.Minute,
		LogLevel:               "info",
		Adapters: AdapterConfigs{
			Go: DelveConfig{
				Path: "dlv",
			},
			Python: DebugpyConfig{
				PythonPath: "python3",
			},
			Node: NodeConfig{
				NodePath: "node",
			},
		},
	}
}

// LoadConfig loads configuration from a JSON file
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// CanUseControlTools returns true if control tools are enabled
func (c *Config) CanUseControlTools() bool {
	return c.Mode == ModeFull
}

// CanSpawn returns true if spawning debug adapters is allowed
func (c *Config) CanSpawn() bool {
	return c.Mode == ModeFull && c.AllowSpawn
}

// CanAttach returns true if attaching to debug adapters is allowed
func (c *Config) CanAttach() bool {
	return c.Mode == ModeFull && c.AllowAttach
}

// CanEvaluate returns true if expression evaluation is allowed
func (c *Config) CanEvaluate() bool {
	return c.AllowEvaluate
}

// CanRunActions returns true if server-ready side actions may execute
func (c *Config) CanRunActions() bool {
	return c.Mode == ModeFull && c.AllowActions
}

// StopWaitDefault returns the default stop-wait timeout as a duration
func (c *Config) StopWaitDefault() time.Duration {
	secs := c.DefaultStopWaitSeconds
	if secs <= 0 {
		secs = 30
	}
	return time.Duration(secs) * time.Second
}

// ServerReadyGrace returns the post-action grace period as a duration
func (c *Config) ServerReadyGrace() time.Duration {
	ms := c.ServerReadyGraceMs
	if ms <= 0 {
		ms = 500
	}
	return time.Duration(ms) * time.Millisecond
}
