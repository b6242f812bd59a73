package adapters

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/dkattan/breakpoint-mcp/internal/config"
	"github.com/dkattan/breakpoint-mcp/internal/dap"
	"github.com/dkattan/breakpoint-mcp/pkg/types"
)

// CommandAdapter implements the StdioAdapter interface for any DAP adapter
// binary spoken to over stdin/stdout: lldb-dap, gdb --interpreter=dap,
// codelldb, and the like. The binary and its arguments come from
// configuration; launch attributes pass through untouched because only the
// operator knows the adapter's dialect.
type CommandAdapter struct {
	command string
	args    []string
}

// NewCommandAdapter creates an adapter around a configured stdio DAP binary
func NewCommandAdapter(cfg config.CommandConfig) *CommandAdapter {
	return &CommandAdapter{
		command: cfg.Command,
		args:    cfg.Args,
	}
}

// Language returns a representative language tag. The registry registers
// this adapter under every language listed in its configuration.
func (c *CommandAdapter) Language() types.Language {
	return types.LanguageRust
}

// IsStdio returns true because the command adapter uses stdio transport
func (c *CommandAdapter) IsStdio() bool {
	return true
}

// Spawn is implemented for interface compatibility but should not be called
// directly. Use SpawnStdio instead for stdio-based adapters.
func (c *CommandAdapter) Spawn(ctx context.Context, program string, args map[string]interface{}) (string, *exec.Cmd, error) {
	return "", nil, fmt.Errorf("command adapter uses stdio transport, use SpawnStdio instead")
}

// SpawnStdio starts the configured binary and returns a DAP client
// connected via its stdin/stdout pipes.
func (c *CommandAdapter) SpawnStdio(ctx context.Context, program string, args map[string]interface{}) (*dap.Client, *exec.Cmd, error) {
	if c.command == "" {
		return nil, nil, fmt.Errorf("command adapter has no binary configured")
	}

	cmd := exec.CommandContext(ctx, c.command, c.args...)
	cmd.Env = os.Environ()

	// Platform-specific process attributes (procattr_unix.go / procattr_windows.go)
	setProcAttr(cmd)

	if cwd, ok := args["cwd"].(string); ok && cwd != "" {
		cmd.Dir = cwd
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return nil, nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}

	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		return nil, nil, fmt.Errorf("failed to start %s: %w", c.command, err)
	}

	transport := dap.NewStdioTransport(stdin, stdout)
	client := dap.NewClient(transport)

	return client, cmd, nil
}

// BuildLaunchArgs passes the caller's launch attributes through verbatim
// and overlays the program path. Adapter-specific keys (initCommands,
// sourceMap, ...) survive untouched.
func (c *CommandAdapter) BuildLaunchArgs(program string, args map[string]interface{}) map[string]interface{} {
	launchArgs := make(map[string]interface{}, len(args)+1)
	for k, v := range args {
		launchArgs[k] = v
	}
	if program != "" {
		launchArgs["program"] = program
	}
	return launchArgs
}

// BuildAttachArgs passes the caller's attach attributes through verbatim,
// normalizing the pid key shared by lldb-dap and gdb.
func (c *CommandAdapter) BuildAttachArgs(args map[string]interface{}) map[string]interface{} {
	attachArgs := make(map[string]interface{}, len(args))
	for k, v := range args {
		attachArgs[k] = v
	}
	if pid, ok := args["pid"].(float64); ok {
		attachArgs["pid"] = int(pid)
	}
	return attachArgs
}
