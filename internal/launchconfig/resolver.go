package launchconfig

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dkattan/breakpoint-mcp/pkg/types"
)

// ResolvedConfiguration is a DebugConfiguration with all variables resolved
// and the adapter language determined.
type ResolvedConfiguration struct {
	*DebugConfiguration

	// Language is the adapter language identifier (go, python, javascript, ...)
	Language types.Language

	// WorkspaceFolder is the workspace root the configuration was resolved
	// against. Relative paths in the configuration are interpreted from here.
	WorkspaceFolder string
}

// MissingInputsError indicates that a configuration requires ${input:}
// values that were not provided.
type MissingInputsError struct {
	ConfigName string
	Inputs     []string
}

func (e *MissingInputsError) Error() string {
	return fmt.Sprintf("configuration %q requires input values for: %s",
		e.ConfigName, strings.Join(e.Inputs, ", "))
}

// IsMissingInputsError reports whether err is a MissingInputsError.
func IsMissingInputsError(err error) (*MissingInputsError, bool) {
	if e, ok := err.(*MissingInputsError); ok {
		return e, true
	}
	return nil, false
}

// ResolveConfiguration resolves all ${...} variables in a configuration.
// The original configuration is not modified.
func ResolveConfiguration(cfg *DebugConfiguration, ctx *ResolutionContext) (*ResolvedConfiguration, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is nil")
	}
	if ctx == nil {
		ctx = &ResolutionContext{}
	}

	// Validate inputs before doing any work so the caller gets the full
	// list of missing values in one error.
	if missing := ValidateInputsProvided(cfg, ctx.InputValues); len(missing) > 0 {
		return nil, &MissingInputsError{ConfigName: cfg.Name, Inputs: missing}
	}

	resolved, err := cfg.Clone()
	if err != nil {
		return nil, fmt.Errorf("failed to clone configuration: %w", err)
	}

	if resolved.Program, err = ResolveStringField(resolved.Program, ctx); err != nil {
		return nil, fmt.Errorf("failed to resolve program: %w", err)
	}
	if resolved.Cwd, err = ResolveStringField(resolved.Cwd, ctx); err != nil {
		return nil, fmt.Errorf("failed to resolve cwd: %w", err)
	}
	if resolved.Console, err = ResolveStringField(resolved.Console, ctx); err != nil {
		return nil, fmt.Errorf("failed to resolve console: %w", err)
	}
	if resolved.Module, err = ResolveStringField(resolved.Module, ctx); err != nil {
		return nil, fmt.Errorf("failed to resolve module: %w", err)
	}
	if resolved.Python, err = ResolveStringField(resolved.Python, ctx); err != nil {
		return nil, fmt.Errorf("failed to resolve python: %w", err)
	}
	if resolved.PythonPath, err = ResolveStringField(resolved.PythonPath, ctx); err != nil {
		return nil, fmt.Errorf("failed to resolve pythonPath: %w", err)
	}
	if resolved.Mode, err = ResolveStringField(resolved.Mode, ctx); err != nil {
		return nil, fmt.Errorf("failed to resolve mode: %w", err)
	}
	if resolved.BuildFlags, err = ResolveStringField(resolved.BuildFlags, ctx); err != nil {
		return nil, fmt.Errorf("failed to resolve buildFlags: %w", err)
	}
	if resolved.RuntimeExecutable, err = ResolveStringField(resolved.RuntimeExecutable, ctx); err != nil {
		return nil, fmt.Errorf("failed to resolve runtimeExecutable: %w", err)
	}
	if resolved.Host, err = ResolveStringField(resolved.Host, ctx); err != nil {
		return nil, fmt.Errorf("failed to resolve host: %w", err)
	}

	if resolved.Args, err = ResolveStringSlice(resolved.Args, ctx); err != nil {
		return nil, fmt.Errorf("failed to resolve args: %w", err)
	}
	if resolved.RuntimeArgs, err = ResolveStringSlice(resolved.RuntimeArgs, ctx); err != nil {
		return nil, fmt.Errorf("failed to resolve runtimeArgs: %w", err)
	}
	if resolved.OutFiles, err = ResolveStringSlice(resolved.OutFiles, ctx); err != nil {
		return nil, fmt.Errorf("failed to resolve outFiles: %w", err)
	}

	if resolved.Env, err = ResolveStringMap(resolved.Env, ctx); err != nil {
		return nil, fmt.Errorf("failed to resolve env: %w", err)
	}
	if resolved.SourceMapPathOverrides, err = ResolveStringMap(resolved.SourceMapPathOverrides, ctx); err != nil {
		return nil, fmt.Errorf("failed to resolve sourceMapPathOverrides: %w", err)
	}

	if err = resolveExtraFields(resolved, ctx); err != nil {
		return nil, err
	}

	// Make program and cwd absolute relative to the workspace folder so
	// downstream source path matching works on adapter-reported paths.
	if ctx.WorkspaceFolder != "" {
		if resolved.Program != "" && !filepath.IsAbs(resolved.Program) {
			resolved.Program = filepath.Join(ctx.WorkspaceFolder, resolved.Program)
		}
		if resolved.Cwd != "" && !filepath.IsAbs(resolved.Cwd) {
			resolved.Cwd = filepath.Join(ctx.WorkspaceFolder, resolved.Cwd)
		}
	}

	return &ResolvedConfiguration{
		DebugConfiguration: resolved,
		Language:           types.Language(resolved.GetLanguage()),
		WorkspaceFolder:    ctx.WorkspaceFolder,
	}, nil
}

// resolveExtraFields resolves variables in all Extra field values.
func resolveExtraFields(cfg *DebugConfiguration, ctx *ResolutionContext) error {
	for key, value := range cfg.Extra {
		resolved, err := resolveValue(value, ctx)
		if err != nil {
			return fmt.Errorf("failed to resolve extra field %q: %w", key, err)
		}
		cfg.Extra[key] = resolved
	}
	return nil
}

// resolveValue recursively resolves variables in JSON-shaped values.
func resolveValue(value interface{}, ctx *ResolutionContext) (interface{}, error) {
	switch v := value.(type) {
	case string:
		return ResolveVariables(v, ctx)
	case []interface{}:
		result := make([]interface{}, len(v))
		for i, item := range v {
			resolved, err := resolveValue(item, ctx)
			if err != nil {
				return nil, err
			}
			result[i] = resolved
		}
		return result, nil
	case map[string]interface{}:
		result := make(map[string]interface{}, len(v))
		for k, item := range v {
			resolved, err := resolveValue(item, ctx)
			if err != nil {
				return nil, err
			}
			result[k] = resolved
		}
		return result, nil
	default:
		return value, nil
	}
}

// Clone returns a deep copy of the configuration via a JSON round trip.
// Extra fields survive because of the custom marshalers.
func (c *DebugConfiguration) Clone() (*DebugConfiguration, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	var clone DebugConfiguration
	if err := json.Unmarshal(data, &clone); err != nil {
		return nil, err
	}
	return &clone, nil
}

// MergeOverrides applies caller-supplied overrides on top of a configuration.
// Override keys that match known fields replace them; unknown keys land in
// Extra and flow through to the adapter verbatim.
func MergeOverrides(cfg *DebugConfiguration, overrides map[string]interface{}) (*DebugConfiguration, error) {
	if len(overrides) == 0 {
		return cfg.Clone()
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	for key, value := range overrides {
		raw[key] = value
	}

	merged, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var result DebugConfiguration
	if err := json.Unmarshal(merged, &result); err != nil {
		return nil, fmt.Errorf("invalid override value: %w", err)
	}
	return &result, nil
}

// ToLaunchArgs converts the resolved configuration to the generic argument
// map consumed by adapter BuildLaunchArgs implementations.
//
// Slice and map values use JSON-decoded shapes ([]interface{} and
// map[string]interface{}) because that is what the adapters type-assert:
// a launch request built here must look like one that arrived over the wire.
func (r *ResolvedConfiguration) ToLaunchArgs() map[string]interface{} {
	args := map[string]interface{}{
		"name":    r.Name,
		"type":    r.Type,
		"request": "launch",
	}

	if r.Program != "" {
		args["program"] = r.Program
	}
	if len(r.Args) > 0 {
		args["args"] = toInterfaceSlice(r.Args)
	}
	if r.Cwd != "" {
		args["cwd"] = r.Cwd
	}
	if len(r.Env) > 0 {
		args["env"] = toInterfaceMap(r.Env)
	}
	if r.StopOnEntry {
		args["stopOnEntry"] = true
	}
	if r.Console != "" {
		args["console"] = r.Console
	}

	// Go (delve)
	if r.Mode != "" {
		args["mode"] = r.Mode
	}
	if r.BuildFlags != "" {
		args["buildFlags"] = r.BuildFlags
	}

	// Python (debugpy)
	if r.Python != "" {
		args["python"] = r.Python
	}
	if r.PythonPath != "" {
		args["pythonPath"] = r.PythonPath
	}
	if r.Module != "" {
		args["module"] = r.Module
	}
	if r.JustMyCode != nil {
		args["justMyCode"] = *r.JustMyCode
	}

	// Node (js-debug)
	if r.RuntimeExecutable != "" {
		args["runtimeExecutable"] = r.RuntimeExecutable
	}
	if len(r.RuntimeArgs) > 0 {
		args["runtimeArgs"] = toInterfaceSlice(r.RuntimeArgs)
	}
	if len(r.OutFiles) > 0 {
		args["outFiles"] = toInterfaceSlice(r.OutFiles)
	}
	if r.SourceMaps != nil {
		args["sourceMaps"] = *r.SourceMaps
	}
	if len(r.SourceMapPathOverrides) > 0 {
		args["sourceMapPathOverrides"] = toInterfaceMap(r.SourceMapPathOverrides)
	}

	for key, value := range r.Extra {
		args[key] = value
	}

	return args
}

// ToAttachArgs converts the resolved configuration to the generic argument
// map consumed by adapter BuildAttachArgs implementations.
func (r *ResolvedConfiguration) ToAttachArgs() map[string]interface{} {
	args := map[string]interface{}{
		"name":    r.Name,
		"type":    r.Type,
		"request": "attach",
	}

	if r.Host != "" {
		args["host"] = r.Host
	}
	if r.Port != 0 {
		args["port"] = r.Port
	}
	if r.ProcessID != 0 {
		args["processId"] = r.ProcessID
	}
	if r.Program != "" {
		args["program"] = r.Program
	}
	if r.Cwd != "" {
		args["cwd"] = r.Cwd
	}
	if r.Mode != "" {
		args["mode"] = r.Mode
	}
	if r.JustMyCode != nil {
		args["justMyCode"] = *r.JustMyCode
	}
	if len(r.SourceMapPathOverrides) > 0 {
		args["sourceMapPathOverrides"] = toInterfaceMap(r.SourceMapPathOverrides)
	}

	for key, value := range r.Extra {
		args[key] = value
	}

	return args
}

func toInterfaceSlice(values []string) []interface{} {
	result := make([]interface{}, len(values))
	for i, v := range values {
		result[i] = v
	}
	return result
}

func toInterfaceMap(values map[string]string) map[string]interface{} {
	result := make(map[string]interface{}, len(values))
	for k, v := range values {
		result[k] = v
	}
	return result
}
