package adapters

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/dkattan/breakpoint-mcp/internal/config"
	"github.com/dkattan/breakpoint-mcp/pkg/types"
)

// JsDebugAdapter implements the Adapter interface for JavaScript/TypeScript
// via vscode-js-debug.
//
// js-debug runs the debuggee in a child DAP session: after launch the parent
// session sends a startDebugging reverse request, and breakpoints bind in
// the child. The session registry's parent/child tracking exists largely for
// this adapter.
type JsDebugAdapter struct {
	nodePath               string
	jsDebugPath            string
	sourceMapPathOverrides map[string]string
}

// NewJsDebugAdapter creates a new vscode-js-debug adapter
func NewJsDebugAdapter(cfg config.NodeConfig) *JsDebugAdapter {
	nodePath := cfg.NodePath
	if nodePath == "" {
		nodePath = "node"
	}

	return &JsDebugAdapter{
		nodePath:               nodePath,
		jsDebugPath:            cfg.JsDebugPath,
		sourceMapPathOverrides: cfg.SourceMapPathOverrides,
	}
}

// Language returns the language this adapter supports
func (n *JsDebugAdapter) Language() types.Language {
	return types.LanguageJavaScript
}

// Spawn starts the vscode-js-debug DAP server.
// Usage: node dapDebugServer.js <port> [host]
func (n *JsDebugAdapter) Spawn(ctx context.Context, program string, args map[string]interface{}) (string, *exec.Cmd, error) {
	if n.jsDebugPath == "" {
		return "", nil, fmt.Errorf("jsDebugPath not configured: vscode-js-debug is required for JavaScript/TypeScript debugging. " +
			"Install from https://github.com/microsoft/vscode-js-debug/releases and set jsDebugPath in config")
	}

	port, err := findAvailablePort()
	if err != nil {
		return "", nil, fmt.Errorf("failed to find available port: %w", err)
	}

	address := fmt.Sprintf("127.0.0.1:%d", port)

	cmd := exec.CommandContext(ctx, n.nodePath, n.jsDebugPath, fmt.Sprintf("%d", port), "127.0.0.1")
	cmd.Env = os.Environ()
	// Explicitly disconnect stdin to prevent TTY issues when run as MCP server.
	cmd.Stdin = nil
	// Platform-specific process attributes (procattr_unix.go / procattr_windows.go)
	setProcAttr(cmd)

	if cwd, ok := args["cwd"].(string); ok && cwd != "" {
		cmd.Dir = cwd
	}

	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return "", nil, fmt.Errorf("failed to start vscode-js-debug: %w", err)
	}

	// Wait for the DAP server to start listening
	time.Sleep(500 * time.Millisecond)

	return address, cmd, nil
}

// BuildLaunchArgs builds the launch arguments for Node.js debugging
func (n *JsDebugAdapter) BuildLaunchArgs(program string, args map[string]interface{}) map[string]interface{} {
	launchArgs := map[string]interface{}{
		"type":    "pwa-node",
		"request": "launch",
		"program": program,
		"console": "internalConsole",
	}

	if programArgs, ok := args["args"].([]interface{}); ok {
		strArgs := make([]string, len(programArgs))
		for i, a := range programArgs {
			strArgs[i] = fmt.Sprint(a)
		}
		launchArgs["args"] = strArgs
	}

	if cwd, ok := args["cwd"].(string); ok {
		launchArgs["cwd"] = cwd
	}

	if env, ok := args["env"].(map[string]interface{}); ok {
		envMap := make(map[string]string)
		for k, v := range env {
			envMap[k] = fmt.Sprint(v)
		}
		launchArgs["env"] = envMap
	}

	if stopOnEntry, ok := args["stopOnEntry"].(bool); ok {
		launchArgs["stopOnEntry"] = stopOnEntry
	}

	if runtimeExecutable, ok := args["runtimeExecutable"].(string); ok {
		launchArgs["runtimeExecutable"] = runtimeExecutable
	}

	if runtimeArgs, ok := args["runtimeArgs"].([]interface{}); ok {
		strArgs := make([]string, len(runtimeArgs))
		for i, a := range runtimeArgs {
			strArgs[i] = fmt.Sprint(a)
		}
		launchArgs["runtimeArgs"] = strArgs
	}

	// TypeScript support via compiled output
	if outFiles, ok := args["outFiles"].([]interface{}); ok {
		strFiles := make([]string, len(outFiles))
		for i, f := range outFiles {
			strFiles[i] = fmt.Sprint(f)
		}
		launchArgs["outFiles"] = strFiles
	}

	if sourceMaps, ok := args["sourceMaps"].(bool); ok {
		launchArgs["sourceMaps"] = sourceMaps
	} else {
		launchArgs["sourceMaps"] = true
	}

	if len(n.sourceMapPathOverrides) > 0 {
		launchArgs["sourceMapPathOverrides"] = n.resolveOverrides(args)
	}

	return launchArgs
}

// resolveOverrides expands ${workspaceFolder} in configured source map
// overrides against the launch cwd.
func (n *JsDebugAdapter) resolveOverrides(args map[string]interface{}) map[string]string {
	root, _ := args["cwd"].(string)
	overrides := make(map[string]string, len(n.sourceMapPathOverrides))
	for pattern, replacement := range n.sourceMapPathOverrides {
		if root != "" {
			replacement = strings.ReplaceAll(replacement, "${workspaceFolder}", root)
		}
		overrides[pattern] = replacement
	}
	return overrides
}

// BuildAttachArgs builds the attach arguments for Node.js debugging
func (n *JsDebugAdapter) BuildAttachArgs(args map[string]interface{}) map[string]interface{} {
	attachArgs := map[string]interface{}{
		"type":    "pwa-node",
		"request": "attach",
	}

	if host, ok := args["host"].(string); ok {
		attachArgs["address"] = host
	} else {
		attachArgs["address"] = "127.0.0.1"
	}

	if port, ok := args["port"].(float64); ok {
		attachArgs["port"] = int(port)
	} else {
		attachArgs["port"] = 9229 // Default Node.js inspector port
	}

	if pid, ok := args["pid"].(float64); ok {
		attachArgs["processId"] = int(pid)
	}

	return attachArgs
}
