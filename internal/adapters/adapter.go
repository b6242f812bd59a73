// Package adapters provides language-specific debug adapter implementations.
//
// This package defines the Adapter interface that all language-specific debuggers
// must implement, and provides concrete implementations for:
//   - Go (via Delve)
//   - Python (via debugpy)
//   - JavaScript/TypeScript (via vscode-js-debug)
//   - anything else that speaks DAP over stdio (via the command adapter)
//
// The Registry type manages the collection of available adapters and provides
// lookup by language. Adapters handle spawning debug adapter processes and
// building the appropriate launch/attach arguments for each debugger.
package adapters

import (
	"context"
	"net"
	"os/exec"
	"sort"
	"time"

	"github.com/dkattan/breakpoint-mcp/internal/config"
	"github.com/dkattan/breakpoint-mcp/internal/dap"
	debugerrors "github.com/dkattan/breakpoint-mcp/internal/errors"
	"github.com/dkattan/breakpoint-mcp/pkg/types"
)

// Adapter defines the interface for language-specific debug adapters
type Adapter interface {
	// Language returns the language this adapter supports
	Language() types.Language

	// Spawn starts a debug adapter process and returns the address to
	// connect to. Stdio-based adapters (IsStdio() == true) return an
	// empty address.
	Spawn(ctx context.Context, program string, args map[string]interface{}) (address string, cmd *exec.Cmd, err error)

	// BuildLaunchArgs builds the launch arguments for the debug adapter
	BuildLaunchArgs(program string, args map[string]interface{}) map[string]interface{}

	// BuildAttachArgs builds the attach arguments for the debug adapter
	BuildAttachArgs(args map[string]interface{}) map[string]interface{}
}

// StdioAdapter extends Adapter for adapters that communicate via
// stdin/stdout instead of TCP sockets
type StdioAdapter interface {
	Adapter

	// IsStdio returns true if this adapter uses stdio transport
	IsStdio() bool

	// SpawnStdio starts a debug adapter process and returns a DAP client
	// connected via the process's stdin/stdout pipes
	SpawnStdio(ctx context.Context, program string, args map[string]interface{}) (client *dap.Client, cmd *exec.Cmd, err error)
}

// Registry holds all registered adapters
type Registry struct {
	adapters map[types.Language]Adapter
}

// NewRegistry creates a new adapter registry with all supported adapters
func NewRegistry(cfg *config.Config) *Registry {
	r := &Registry{
		adapters: make(map[types.Language]Adapter),
	}

	r.adapters[types.LanguageGo] = NewDelveAdapter(cfg.Adapters.Go)
	r.adapters[types.LanguagePython] = NewDebugpyAdapter(cfg.Adapters.Python)

	jsAdapter := NewJsDebugAdapter(cfg.Adapters.Node)
	r.adapters[types.LanguageJavaScript] = jsAdapter
	r.adapters[types.LanguageTypeScript] = jsAdapter

	// The command adapter covers any extra languages the operator routes
	// to a stdio DAP binary (lldb-dap for rust/c/cpp, for example).
	if cfg.Adapters.Command.Command != "" {
		cmdAdapter := NewCommandAdapter(cfg.Adapters.Command)
		for _, lang := range cfg.Adapters.Command.Languages {
			r.adapters[types.Language(lang)] = cmdAdapter
		}
	}

	return r
}

// Get returns the adapter for a language
func (r *Registry) Get(lang types.Language) (Adapter, error) {
	adapter, ok := r.adapters[lang]
	if !ok {
		return nil, debugerrors.AdapterNotSupported(string(lang), r.Supported())
	}
	return adapter, nil
}

// Register registers an adapter for a language, overriding any existing adapter
func (r *Registry) Register(lang types.Language, adapter Adapter) {
	r.adapters[lang] = adapter
}

// Supported lists the registered language tags in stable order
func (r *Registry) Supported() []string {
	langs := make([]string, 0, len(r.adapters))
	for lang := range r.adapters {
		langs = append(langs, string(lang))
	}
	sort.Strings(langs)
	return langs
}

// Connect creates a DAP client connected to the given address via TCP
func Connect(address string, maxRetries int) (*dap.Client, error) {
	var transport *dap.Transport
	var err error

	for i := 0; i < maxRetries; i++ {
		transport, err = dap.NewTCPTransport(address)
		if err == nil {
			break
		}
		time.Sleep(200 * time.Millisecond)
	}

	if err != nil {
		return nil, debugerrors.AdapterConnectFailed(address, err)
	}

	client := dap.NewClient(transport)
	return client, nil
}

// SpawnAndConnect spawns an adapter and returns a connected client.
// For stdio-based adapters, it connects via stdin/stdout pipes.
// For TCP-based adapters, it connects via the returned address.
func SpawnAndConnect(ctx context.Context, adapter Adapter, program string, args map[string]interface{}) (*dap.Client, *exec.Cmd, error) {
	if stdioAdapter, ok := adapter.(StdioAdapter); ok && stdioAdapter.IsStdio() {
		return stdioAdapter.SpawnStdio(ctx, program, args)
	}

	address, cmd, err := adapter.Spawn(ctx, program, args)
	if err != nil {
		return nil, nil, err
	}

	// 20 retries * 200ms = 4 seconds max wait
	client, err := Connect(address, 20)
	if err != nil {
		if cmd != nil && cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		return nil, nil, err
	}

	return client, cmd, nil
}

// findAvailablePort finds an available TCP port
func findAvailablePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer listener.Close()

	addr := listener.Addr().(*net.TCPAddr)
	return addr.Port, nil
}
