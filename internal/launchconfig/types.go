// Package launchconfig provides support for VS Code launch.json debug configurations.
package launchconfig

import (
	"encoding/json"
)

// LaunchJSON represents a VS Code launch.json file structure.
type LaunchJSON struct {
	Version        string               `json:"version"`
	Configurations []DebugConfiguration `json:"configurations"`
	Inputs         []InputConfig        `json:"inputs,omitempty"`
}

// DebugConfiguration represents a single debug configuration in launch.json.
// Adapter-specific attributes without a named field here (initCommands,
// sourceMap, django, ...) are preserved in Extra and passed through.
type DebugConfiguration struct {
	// Required fields
	Type    string `json:"type"`    // e.g., "python", "go", "node"
	Request string `json:"request"` // "launch" or "attach"
	Name    string `json:"name"`    // Human-readable name

	// Common optional fields
	Program     string            `json:"program,omitempty"`
	Args        []string          `json:"args,omitempty"`
	Cwd         string            `json:"cwd,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
	StopOnEntry bool              `json:"stopOnEntry,omitempty"`
	Console     string            `json:"console,omitempty"`

	// Attach-specific fields
	Port      int    `json:"port,omitempty"`
	Host      string `json:"host,omitempty"`
	ProcessID int    `json:"processId,omitempty"`

	// Node.js specific
	RuntimeExecutable string   `json:"runtimeExecutable,omitempty"`
	RuntimeArgs       []string `json:"runtimeArgs,omitempty"`
	OutFiles          []string `json:"outFiles,omitempty"`

	// Go/Delve specific
	Mode       string `json:"mode,omitempty"`
	BuildFlags string `json:"buildFlags,omitempty"`

	// Python/debugpy specific
	Python     string `json:"python,omitempty"`     // VS Code style (preferred)
	PythonPath string `json:"pythonPath,omitempty"` // debugpy style (legacy)
	Module     string `json:"module,omitempty"`
	JustMyCode *bool  `json:"justMyCode,omitempty"`

	// Source map configuration
	SourceMaps             *bool             `json:"sourceMaps,omitempty"`
	SourceMapPathOverrides map[string]string `json:"sourceMapPathOverrides,omitempty"`

	// All other properties not explicitly defined (language-specific extras)
	Extra map[string]interface{} `json:"-"`
}

// InputConfig represents a user input variable definition.
type InputConfig struct {
	ID          string      `json:"id"`
	Type        string      `json:"type"` // "promptString", "pickString", "command"
	Description string      `json:"description,omitempty"`
	Default     string      `json:"default,omitempty"`
	Options     []string    `json:"options,omitempty"` // For pickString
	Command     string      `json:"command,omitempty"` // For command type
	Args        interface{} `json:"args,omitempty"`    // For command type
}

// ResolutionContext provides context for variable resolution.
type ResolutionContext struct {
	WorkspaceFolder string            // Root folder of the workspace
	InputValues     map[string]string // Pre-provided values for ${input:} variables
	EnvOverrides    map[string]string // Override environment variables
}

// UnmarshalJSON implements custom unmarshaling to capture unknown fields.
func (c *DebugConfiguration) UnmarshalJSON(data []byte) error {
	// First unmarshal into a map to capture all fields
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	// Alias sheds the custom UnmarshalJSON so known fields decode normally
	type Alias DebugConfiguration
	var alias Alias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}

	*c = DebugConfiguration(alias)

	knownFields := map[string]bool{
		"type": true, "request": true, "name": true,
		"program": true, "args": true, "cwd": true, "env": true,
		"stopOnEntry": true, "console": true,
		"port": true, "host": true, "processId": true,
		"runtimeExecutable": true, "runtimeArgs": true, "outFiles": true,
		"mode": true, "buildFlags": true,
		"python": true, "pythonPath": true, "module": true, "justMyCode": true,
		"sourceMaps": true, "sourceMapPathOverrides": true,
	}

	// Capture unknown fields into Extra
	c.Extra = make(map[string]interface{})
	for key, value := range raw {
		if !knownFields[key] {
			var v interface{}
			if err := json.Unmarshal(value, &v); err != nil {
				return err
			}
			c.Extra[key] = v
		}
	}

	return nil
}

// MarshalJSON implements custom marshaling to include Extra fields.
func (c DebugConfiguration) MarshalJSON() ([]byte, error) {
	type Alias DebugConfiguration
	alias := Alias(c)

	data, err := json.Marshal(alias)
	if err != nil {
		return nil, err
	}

	if len(c.Extra) == 0 {
		return data, nil
	}

	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}

	for k, v := range c.Extra {
		m[k] = v
	}

	return json.Marshal(m)
}

// TypeToLanguage maps VS Code debug types to adapter language identifiers.
var TypeToLanguage = map[string]string{
	// Python
	"python":  "python",
	"debugpy": "python",

	// Go
	"go": "go",

	// JavaScript/TypeScript/Node.js
	"node":     "javascript",
	"pwa-node": "javascript",

	// Native languages routed to the command adapter
	"lldb":     "rust",
	"lldb-dap": "rust",
	"codelldb": "rust",
	"c":        "c",
	"cpp":      "cpp",
	"rust":     "rust",
}

// IsLaunchRequest returns true if this is a launch configuration (not attach).
func (c *DebugConfiguration) IsLaunchRequest() bool {
	return c.Request == "launch"
}

// IsAttachRequest returns true if this is an attach configuration.
func (c *DebugConfiguration) IsAttachRequest() bool {
	return c.Request == "attach"
}

// GetLanguage returns the adapter language identifier for this configuration.
func (c *DebugConfiguration) GetLanguage() string {
	if lang, ok := TypeToLanguage[c.Type]; ok {
		return lang
	}
	// Default to the type itself if not mapped
	return c.Type
}
