// Package errors provides structured error types for the breakpoint-mcp server.
// These errors include helpful hints and suggestions that guide the LLM
// to correct course when something goes wrong.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents a category of error for programmatic handling
type ErrorCode string

const (
	// Orchestration error taxonomy. These five categories cover every
	// user-visible failure of a stop-wait.
	CodeConfiguration     ErrorCode = "CONFIGURATION_ERROR"
	CodeResolution        ErrorCode = "RESOLUTION_ERROR"
	CodeStopWaitTimeout   ErrorCode = "STOP_WAIT_TIMEOUT"
	CodeSessionTerminated ErrorCode = "SESSION_TERMINATED"
	CodeAdapterProtocol   ErrorCode = "ADAPTER_PROTOCOL"

	// Session errors
	CodeSessionNotFound     ErrorCode = "SESSION_NOT_FOUND"
	CodeSessionLimitReached ErrorCode = "SESSION_LIMIT_REACHED"
	CodeSessionNoClient     ErrorCode = "SESSION_NO_CLIENT"
	CodeSessionNotPaused    ErrorCode = "SESSION_NOT_PAUSED"

	// Adapter errors
	CodeAdapterNotSupported  ErrorCode = "ADAPTER_NOT_SUPPORTED"
	CodeAdapterSpawnFailed   ErrorCode = "ADAPTER_SPAWN_FAILED"
	CodeAdapterConnectFailed ErrorCode = "ADAPTER_CONNECT_FAILED"

	// Parameter errors
	CodeMissingParameter ErrorCode = "MISSING_PARAMETER"
	CodeInvalidParameter ErrorCode = "INVALID_PARAMETER"
	CodeInvalidJSON      ErrorCode = "INVALID_JSON"

	// Permission errors
	CodePermissionDenied ErrorCode = "PERMISSION_DENIED"

	// launch.json errors
	CodeConfigNotFound ErrorCode = "CONFIG_NOT_FOUND"
	CodeConfigInvalid  ErrorCode = "CONFIG_INVALID"
	CodeMissingInputs  ErrorCode = "MISSING_INPUTS"
)

// DebugError is a structured error type that includes helpful information
// for the LLM to understand what went wrong and how to fix it.
type DebugError struct {
	// Code is a machine-readable error category
	Code ErrorCode `json:"code"`

	// Message is a human/LLM-readable description of what went wrong
	Message string `json:"message"`

	// Hint provides actionable guidance on how to fix the error
	Hint string `json:"hint,omitempty"`

	// Details contains additional context (e.g., the invalid value, expected format)
	Details map[string]interface{} `json:"details,omitempty"`

	// Cause is the underlying error, if any
	Cause error `json:"-"`
}

// Error implements the error interface
func (e *DebugError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)

	if e.Hint != "" {
		sb.WriteString(" | Hint: ")
		sb.WriteString(e.Hint)
	}

	return sb.String()
}

// Unwrap returns the underlying error for error chaining
func (e *DebugError) Unwrap() error {
	return e.Cause
}

// WithDetails adds details to the error
func (e *DebugError) WithDetails(key string, value interface{}) *DebugError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying cause
func (e *DebugError) WithCause(err error) *DebugError {
	e.Cause = err
	return e
}

// HasCode reports whether err is (or wraps) a DebugError with the given code
func HasCode(err error, code ErrorCode) bool {
	var de *DebugError
	if stderrors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// --- Configuration Errors ---

// AmbiguousSession is returned when existingSessionBehavior=useExisting needs
// a target but more than one session is active and no explicit id was given.
func AmbiguousSession(count int) *DebugError {
	return &DebugError{
		Code:    CodeConfiguration,
		Message: fmt.Sprintf("multiple active debug sessions found (%d)", count),
		Hint:    "Pass an explicit sessionId, or use debug_list_sessions to pick one.",
		Details: map[string]interface{}{
			"activeSessions": count,
		},
	}
}

// NoActiveSession is returned when an operation needs an existing session and
// none is tracked.
func NoActiveSession() *DebugError {
	return &DebugError{
		Code:    CodeConfiguration,
		Message: "no active debug session",
		Hint:    "Start one with debug_start_wait first.",
	}
}

// MultiSessionNotAllowed is returned when ignoreAndCreateNew is requested but
// the configuration does not declare multi-session support.
func MultiSessionNotAllowed() *DebugError {
	return &DebugError{
		Code:    CodeConfiguration,
		Message: "existingSessionBehavior 'ignoreAndCreateNew' conflicts with supportsMultipleSessions=false",
		Hint:    "Enable supportsMultipleSessions in the server configuration, or use 'useExisting'.",
	}
}

// InvalidOnHit is returned for an unknown onHit directive.
func InvalidOnHit(value string) *DebugError {
	return &DebugError{
		Code:    CodeConfiguration,
		Message: fmt.Sprintf("unknown onHit directive '%s'", value),
		Hint:    "Valid directives are 'break', 'captureAndContinue', and 'captureAndStopDebugging'.",
		Details: map[string]interface{}{
			"onHit": value,
		},
	}
}

// --- Resolution Errors ---

// SnippetNotFound is returned when a code-snippet breakpoint matches no line.
// The message carries the literal snippet so the caller can see exactly what
// was searched for.
func SnippetNotFound(snippet, path string) *DebugError {
	return &DebugError{
		Code:    CodeResolution,
		Message: fmt.Sprintf("code snippet %q not found in %s", snippet, path),
		Hint:    "The snippet is matched as a literal substring per line. Check for typos and whitespace differences.",
		Details: map[string]interface{}{
			"snippet": snippet,
			"path":    path,
		},
	}
}

// MissingBreakpointAddress is returned when a spec supplies neither a line
// nor a code snippet.
func MissingBreakpointAddress(path string) *DebugError {
	return &DebugError{
		Code:    CodeResolution,
		Message: fmt.Sprintf("breakpoint for %s is missing required 'code' snippet (or a 'line' number)", path),
		Hint:    "Each breakpoint needs exactly one of 'line', 'code', or 'functionName'.",
		Details: map[string]interface{}{
			"path": path,
		},
	}
}

// FunctionBreakpointsUnsupported is returned before any breakpoint request
// when the adapter does not advertise function breakpoint support.
func FunctionBreakpointsUnsupported(functionName string) *DebugError {
	return &DebugError{
		Code:    CodeResolution,
		Message: fmt.Sprintf("function breakpoint '%s' requires adapter capability supportsFunctionBreakpoints=true", functionName),
		Hint:    "This adapter cannot address breakpoints by function name. Use a line or code snippet breakpoint instead.",
		Details: map[string]interface{}{
			"functionName": functionName,
		},
	}
}

// SourceUnreadable is returned when the source text for a snippet spec cannot
// be read.
func SourceUnreadable(path string, err error) *DebugError {
	return &DebugError{
		Code:    CodeResolution,
		Message: fmt.Sprintf("cannot read source file %s: %v", path, err),
		Hint:    "Snippet breakpoints need a readable source file. Check the path and permissions.",
		Cause:   err,
		Details: map[string]interface{}{
			"path": path,
		},
	}
}

// --- Stop-Wait Errors ---

// StopWaitTimeout is returned when the wait expires before a matching stop.
// The session is left running for inspection.
func StopWaitTimeout(elapsed time.Duration, configName string) *DebugError {
	name := configName
	if name == "" {
		name = "(inline configuration)"
	}
	return &DebugError{
		Code:    CodeStopWaitTimeout,
		Message: fmt.Sprintf("timed out after %s waiting for a stop in configuration %q", elapsed.Round(time.Millisecond), name),
		Hint:    "The session is still running. Inspect it with debug_list_sessions, retry with a longer timeoutSeconds, or check that the breakpoints are on reachable lines.",
		Details: map[string]interface{}{
			"elapsedMs":  elapsed.Milliseconds(),
			"configName": configName,
		},
	}
}

// TerminatedBeforeStop is returned when the debuggee exits before any
// matching stop. Distinct from a timeout: waiting longer would not help.
func TerminatedBeforeStop(sessionID string, exitCode *int) *DebugError {
	msg := "debug session terminated before reaching a breakpoint"
	details := map[string]interface{}{
		"sessionId": sessionID,
	}
	if exitCode != nil {
		msg = fmt.Sprintf("%s (exit code %d)", msg, *exitCode)
		details["exitCode"] = *exitCode
	}
	return &DebugError{
		Code:    CodeSessionTerminated,
		Message: msg,
		Hint:    "The program ran to completion or crashed. Check that the breakpoints are on code the program actually executes.",
		Details: details,
	}
}

// AdapterProtocol is returned when the adapter rejects a request. The
// adapter's own message is carried verbatim.
func AdapterProtocol(operation string, err error) *DebugError {
	return &DebugError{
		Code:    CodeAdapterProtocol,
		Message: fmt.Sprintf("debug adapter rejected %s: %v", operation, err),
		Hint:    "The adapter reported the failure above. It may not support this request for the current session state.",
		Cause:   err,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// --- Session Errors ---

// SessionNotFound creates an error for when a session ID doesn't exist
func SessionNotFound(sessionID string) *DebugError {
	return &DebugError{
		Code:    CodeSessionNotFound,
		Message: fmt.Sprintf("session '%s' not found", sessionID),
		Hint:    "Use debug_list_sessions to see active sessions, or debug_start_wait to create a new one. A vanished id usually means the session terminated.",
		Details: map[string]interface{}{
			"sessionId": sessionID,
		},
	}
}

// SessionLimitReached creates an error when max sessions is reached
func SessionLimitReached(maxSessions int) *DebugError {
	return &DebugError{
		Code:    CodeSessionLimitReached,
		Message: fmt.Sprintf("maximum number of sessions (%d) reached", maxSessions),
		Hint:    "Use debug_stop to terminate an existing session before creating a new one.",
		Details: map[string]interface{}{
			"maxSessions": maxSessions,
		},
	}
}

// SessionNoClient creates an error when a session has no active client
func SessionNoClient(sessionID string) *DebugError {
	return &DebugError{
		Code:    CodeSessionNoClient,
		Message: fmt.Sprintf("session '%s' has no active debug client", sessionID),
		Hint:    "The session may have been terminated or failed to initialize. Use debug_stop to clean up and debug_start_wait to create a new session.",
		Details: map[string]interface{}{
			"sessionId": sessionID,
		},
	}
}

// SessionNotPaused creates an error when a paused-only operation targets a
// session in another state
func SessionNotPaused(sessionID string, status string) *DebugError {
	return &DebugError{
		Code:    CodeSessionNotPaused,
		Message: fmt.Sprintf("session '%s' is %s, not paused", sessionID, status),
		Hint:    "State inspection needs a paused session. Wait for a stop with debug_start_wait or debug_trigger_wait, or check status with debug_list_sessions.",
		Details: map[string]interface{}{
			"sessionId": sessionID,
			"status":    status,
		},
	}
}

// --- Adapter Errors ---

// AdapterNotSupported creates an error for unsupported languages
func AdapterNotSupported(language string, supported []string) *DebugError {
	return &DebugError{
		Code:    CodeAdapterNotSupported,
		Message: fmt.Sprintf("no debug adapter available for language: %s", language),
		Hint:    fmt.Sprintf("Supported languages are: %s. Check that the language parameter is correct.", strings.Join(supported, ", ")),
		Details: map[string]interface{}{
			"requestedLanguage":  language,
			"supportedLanguages": supported,
		},
	}
}

// AdapterSpawnFailed creates an error when adapter spawn fails
func AdapterSpawnFailed(language string, err error) *DebugError {
	return &DebugError{
		Code:    CodeAdapterSpawnFailed,
		Message: fmt.Sprintf("failed to spawn debug adapter for %s: %v", language, err),
		Hint:    "Ensure the debug adapter is installed. For Go: install Delve (go install github.com/go-delve/delve/cmd/dlv@latest). For Python: install debugpy (pip install debugpy). For JavaScript: install vscode-js-debug and set jsDebugPath.",
		Cause:   err,
		Details: map[string]interface{}{
			"language": language,
		},
	}
}

// AdapterConnectFailed creates an error when connecting to adapter fails
func AdapterConnectFailed(address string, err error) *DebugError {
	return &DebugError{
		Code:    CodeAdapterConnectFailed,
		Message: fmt.Sprintf("failed to connect to debug adapter at %s: %v", address, err),
		Hint:    "The debug adapter may have failed to start or crashed. Check that the program path is correct and the file exists.",
		Cause:   err,
		Details: map[string]interface{}{
			"address": address,
		},
	}
}

// --- Parameter Errors ---

// MissingParameter creates an error for missing required parameters
func MissingParameter(paramName, description string) *DebugError {
	return &DebugError{
		Code:    CodeMissingParameter,
		Message: fmt.Sprintf("required parameter '%s' is missing", paramName),
		Hint:    description,
		Details: map[string]interface{}{
			"parameter": paramName,
		},
	}
}

// InvalidParameter creates an error for invalid parameter values
func InvalidParameter(paramName string, value interface{}, expected string) *DebugError {
	return &DebugError{
		Code:    CodeInvalidParameter,
		Message: fmt.Sprintf("invalid value for parameter '%s': %v", paramName, value),
		Hint:    fmt.Sprintf("Expected: %s", expected),
		Details: map[string]interface{}{
			"parameter": paramName,
			"value":     value,
			"expected":  expected,
		},
	}
}

// InvalidJSON creates an error for JSON parsing failures
func InvalidJSON(paramName string, err error, example string) *DebugError {
	return &DebugError{
		Code:    CodeInvalidJSON,
		Message: fmt.Sprintf("invalid JSON in parameter '%s': %v", paramName, err),
		Hint:    fmt.Sprintf("Provide valid JSON. Example: %s", example),
		Cause:   err,
		Details: map[string]interface{}{
			"parameter": paramName,
			"example":   example,
		},
	}
}

// --- Permission Errors ---

// PermissionDenied creates an error for permission denied
func PermissionDenied(operation, mode string) *DebugError {
	var hint string
	switch operation {
	case "start":
		hint = "The server is configured to disallow starting debug sessions. Ask the administrator to enable 'allowStart' in the configuration."
	case "attach":
		hint = "The server is configured to disallow attaching to processes. Ask the administrator to enable 'allowAttach' in the configuration."
	case "evaluate":
		hint = "Expression evaluation is disabled in the current server mode. This may be intentional for security reasons."
	case "action":
		hint = "Side actions (shell commands, HTTP requests) are disabled in the current server mode."
	default:
		hint = fmt.Sprintf("This operation is not allowed in '%s' mode.", mode)
	}

	return &DebugError{
		Code:    CodePermissionDenied,
		Message: fmt.Sprintf("%s is not allowed in current server mode", operation),
		Hint:    hint,
		Details: map[string]interface{}{
			"operation": operation,
			"mode":      mode,
		},
	}
}

// --- launch.json Errors ---

// ConfigNotFound creates an error for missing launch.json configurations
func ConfigNotFound(configName string, availableConfigs []string) *DebugError {
	var hint string
	if len(availableConfigs) > 0 {
		hint = fmt.Sprintf("Available configurations: %s", strings.Join(availableConfigs, ", "))
	} else {
		hint = "No configurations found in launch.json. Create a launch configuration first, or pass an inline configuration."
	}

	return &DebugError{
		Code:    CodeConfigNotFound,
		Message: fmt.Sprintf("configuration '%s' not found in launch.json", configName),
		Hint:    hint,
		Details: map[string]interface{}{
			"configName":       configName,
			"availableConfigs": availableConfigs,
		},
	}
}

// ConfigInvalid creates an error for invalid configuration
func ConfigInvalid(configName, reason string) *DebugError {
	return &DebugError{
		Code:    CodeConfigInvalid,
		Message: fmt.Sprintf("configuration '%s' is invalid: %s", configName, reason),
		Hint:    "Check the launch.json file for syntax errors and ensure all required fields are present.",
		Details: map[string]interface{}{
			"configName": configName,
			"reason":     reason,
		},
	}
}

// MissingInputs creates an error for missing input values
func MissingInputs(inputs []string) *DebugError {
	return &DebugError{
		Code:    CodeMissingInputs,
		Message: fmt.Sprintf("missing required input values: %s", strings.Join(inputs, ", ")),
		Hint:    "Provide the missing values via the inputValues parameter as a JSON object, e.g., {\"inputName\": \"value\"}",
		Details: map[string]interface{}{
			"missingInputs": inputs,
		},
	}
}

// --- Helper for wrapping generic errors ---

// Wrap wraps a generic error with context
func Wrap(code ErrorCode, message string, hint string, err error) *DebugError {
	return &DebugError{
		Code:    code,
		Message: message,
		Hint:    hint,
		Cause:   err,
	}
}

// FromError creates a DebugError from a generic error, attempting to preserve any existing structure
func FromError(err error) *DebugError {
	var de *DebugError
	if stderrors.As(err, &de) {
		return de
	}
	return &DebugError{
		Code:    "UNKNOWN_ERROR",
		Message: err.Error(),
		Hint:    "An unexpected error occurred. Please check the error message for details.",
		Cause:   err,
	}
}
