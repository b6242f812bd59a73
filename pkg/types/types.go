// Package types defines shared data types used across the breakpoint-mcp server.
//
// This package provides type definitions for:
//   - Language: supported adapter languages (Go, Python, JavaScript, TypeScript, ...)
//   - SessionStatus: debug session states (running, paused, terminated) and the
//     allowed-next-action hints derived from them
//   - BreakpointSpec / ResolvedBreakpoint: declarative breakpoint intents and
//     their adapter-addressable resolutions
//   - ServerReadyConfig: the one-shot detect-then-act-then-resume trigger
//   - StopContext: the outcome of a successful stop-wait, with captured
//     frame, scopes, variables, log messages, and step-over snapshots
//
// These types are used throughout the codebase to maintain type safety
// and provide clear contracts between components.
package types

// Language represents a supported programming language
type Language string

const (
	LanguageGo         Language = "go"
	LanguagePython     Language = "python"
	LanguageJavaScript Language = "javascript"
	LanguageTypeScript Language = "typescript"
	LanguageRust       Language = "rust"
	LanguageC          Language = "c"
	LanguageCpp        Language = "cpp"
)

// SessionStatus represents the status of a debug session
type SessionStatus string

const (
	SessionStatusRunning    SessionStatus = "running"
	SessionStatusPaused     SessionStatus = "paused"
	SessionStatusTerminated SessionStatus = "terminated"
)

// AllowedNextActions derives the action hints for a session status.
// Paused sessions allow state inspection; running sessions only allow
// out-of-band actions. The derivation is a pure function of status so the
// session registry and the wait machinery cannot drift apart.
func AllowedNextActions(status SessionStatus) []string {
	switch status {
	case SessionStatusPaused:
		return []string{
			"getVariables",
			"evaluate",
			"resumeDebugSessionWithoutWaiting",
			"triggerBreakpointAndWaitForStop",
			"stopDebugSession",
		}
	case SessionStatusRunning:
		return []string{
			"externalHttpRequest",
			"listDebugSessions",
			"stopDebugSession",
		}
	default:
		return []string{}
	}
}

// OnHit directs what the wait machinery does when a breakpoint is hit
type OnHit string

const (
	// OnHitBreak stops the wait at the breakpoint (the default).
	OnHitBreak OnHit = "break"
	// OnHitCaptureAndContinue captures variables, resumes, and keeps waiting.
	OnHitCaptureAndContinue OnHit = "captureAndContinue"
	// OnHitCaptureAndStopDebugging captures variables, then terminates the session.
	OnHitCaptureAndStopDebugging OnHit = "captureAndStopDebugging"
)

// Valid reports whether the directive is one of the known modes.
func (o OnHit) Valid() bool {
	switch o {
	case "", OnHitBreak, OnHitCaptureAndContinue, OnHitCaptureAndStopDebugging:
		return true
	}
	return false
}

// BreakpointSpec is a caller-declared breakpoint intent. The location is
// addressed by exactly one of Line, Code (source snippet), or FunctionName.
type BreakpointSpec struct {
	Path         string `json:"path,omitempty"`
	Line         int    `json:"line,omitempty"`
	Code         string `json:"code,omitempty"`
	FunctionName string `json:"functionName,omitempty"`

	OnHit        OnHit  `json:"onHit,omitempty"`
	Condition    string `json:"condition,omitempty"`
	HitCondition string `json:"hitCondition,omitempty"`
	LogMessage   string `json:"logMessage,omitempty"`

	// VariableFilter is a list of regex fragments combined as a
	// case-insensitive alternation. nil means "nearest scope only";
	// an empty list or a lone "*" means "capture everything".
	VariableFilter []string `json:"variableFilter,omitempty"`

	AutoStepOver bool `json:"autoStepOver,omitempty"`
}

// EffectiveOnHit returns the directive with the default applied.
func (b *BreakpointSpec) EffectiveOnHit() OnHit {
	if b.OnHit == "" {
		return OnHitBreak
	}
	return b.OnHit
}

// IsLogPoint reports whether this spec is a log-point: it carries a log
// message and no explicit onHit directive. Log-points auto-resume at the
// adapter and never terminate a wait.
func (b *BreakpointSpec) IsLogPoint() bool {
	return b.LogMessage != "" && b.OnHit == ""
}

// CapturesEverything reports whether the filter asks for all scopes:
// an explicitly empty list, or a lone "*" or "." wildcard.
func (b *BreakpointSpec) CapturesEverything() bool {
	if b.VariableFilter == nil {
		return false
	}
	if len(b.VariableFilter) == 0 {
		return true
	}
	return len(b.VariableFilter) == 1 &&
		(b.VariableFilter[0] == "*" || b.VariableFilter[0] == ".")
}

// BreakpointKind identifies how a resolved breakpoint is addressed
type BreakpointKind string

const (
	BreakpointKindLine        BreakpointKind = "line"
	BreakpointKindFunction    BreakpointKind = "function"
	BreakpointKindServerReady BreakpointKind = "serverReady"
)

// ResolvedBreakpoint is a spec translated into an adapter-addressable
// breakpoint. A snippet spec may resolve to several of these, one per
// matching line.
type ResolvedBreakpoint struct {
	Kind         BreakpointKind `json:"kind"`
	Path         string         `json:"path,omitempty"`
	Line         int            `json:"line,omitempty"`
	FunctionName string         `json:"functionName,omitempty"`

	// ID and Verified are filled from the adapter's breakpoint response.
	ID       int  `json:"id,omitempty"`
	Verified bool `json:"verified,omitempty"`

	// Internal marks breakpoints the engine added on its own behalf (the
	// server-ready trigger); they are excluded from hit attribution unless
	// they caused the final stop.
	Internal bool `json:"internal,omitempty"`

	// Spec points back at the originating caller spec, nil for internal
	// breakpoints.
	Spec *BreakpointSpec `json:"-"`
}

// ServerReadyTrigger selects the detection mode: a breakpoint location or a
// pattern matched against adapter-forwarded output. Exactly one of the two
// forms may be set.
type ServerReadyTrigger struct {
	Path    string `json:"path,omitempty"`
	Line    int    `json:"line,omitempty"`
	Pattern string `json:"pattern,omitempty"`
}

// IsPattern reports whether the trigger is output-pattern based.
func (t *ServerReadyTrigger) IsPattern() bool {
	return t.Pattern != ""
}

// ActionKind discriminates the server-ready action union
type ActionKind string

const (
	ActionShellCommand  ActionKind = "shellCommand"
	ActionHTTPRequest   ActionKind = "httpRequest"
	ActionVSCodeCommand ActionKind = "vscodeCommand"
)

// ServerReadyAction is the side-action fired when the trigger detects
// readiness. Kind selects which of the parameter groups applies.
type ServerReadyAction struct {
	Kind ActionKind `json:"kind"`

	// shellCommand
	Command string   `json:"command,omitempty"`
	Args    []string `json:"args,omitempty"`
	Cwd     string   `json:"cwd,omitempty"`
	// Background spawns the command without awaiting exit; the engine
	// resumes after a short grace delay instead.
	Background bool `json:"background,omitempty"`

	// httpRequest
	URL     string            `json:"url,omitempty"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`

	// vscodeCommand
	CommandID   string        `json:"commandId,omitempty"`
	CommandArgs []interface{} `json:"commandArgs,omitempty"`
}

// ServerReadyConfig drives at most one trigger-and-resume cycle per session
// start.
type ServerReadyConfig struct {
	Trigger ServerReadyTrigger `json:"trigger"`
	Action  ServerReadyAction  `json:"action"`
}

// Trigger phase markers recorded in ServerReadyInfo.Phases
const (
	PhaseImmediate = "immediate"
	PhaseEntry     = "entry"
	PhaseLate      = "late"
)

// ServerReadyInfo records how the trigger fired during a wait
type ServerReadyInfo struct {
	Mode           string   `json:"mode"` // "breakpoint" or "pattern"
	Phases         []string `json:"phases"`
	TriggerSummary string   `json:"triggerSummary"`
}

// SourceInfo represents source file information
type SourceInfo struct {
	Name            string `json:"name,omitempty"`
	Path            string `json:"path,omitempty"`
	SourceReference int    `json:"sourceReference,omitempty"`
}

// Frame represents the stack frame a session stopped in
type Frame struct {
	ID     int         `json:"id"`
	Name   string      `json:"name"`
	Source *SourceInfo `json:"source,omitempty"`
	Line   int         `json:"line"`
	Column int         `json:"column,omitempty"`
}

// ThreadInfo represents information about a thread
type ThreadInfo struct {
	ID   int    `json:"id"`
	Name string `json:"name,omitempty"`
}

// ScopeInfo represents a variable scope with its opaque lookup handle
type ScopeInfo struct {
	Name               string `json:"name"`
	PresentationHint   string `json:"presentationHint,omitempty"`
	VariablesReference int    `json:"variablesReference"`
	Expensive          bool   `json:"expensive,omitempty"`
}

// Variable is one captured variable. Value is the display rendering,
// truncated past the configured limit; RawValue holds the untruncated
// string only when truncation shortened it.
type Variable struct {
	Name               string `json:"name"`
	Value              string `json:"value"`
	RawValue           string `json:"rawValue,omitempty"`
	Type               string `json:"type,omitempty"`
	Scope              string `json:"scope,omitempty"`
	VariablesReference int    `json:"variablesReference,omitempty"`
}

// Raw returns the untruncated value for programmatic assertions.
func (v *Variable) Raw() string {
	if v.RawValue != "" {
		return v.RawValue
	}
	return v.Value
}

// StepOverCapture holds the before/after snapshots taken around an
// auto-step-over.
type StepOverCapture struct {
	FromLine int        `json:"fromLine"`
	ToLine   int        `json:"toLine"`
	Before   []Variable `json:"before"`
	After    []Variable `json:"after"`
}

// ProbeCapture is one captureAndContinue observation: the wait resumed
// afterwards, so these accumulate until the terminal stop.
type ProbeCapture struct {
	Breakpoint ResolvedBreakpoint `json:"breakpoint"`
	FromLine   int                `json:"fromLine,omitempty"`
	Line       int                `json:"line"`
	Variables  []Variable         `json:"variables"`
}

// StopContext is the outcome of a successful wait. Constructed once,
// immutable after return.
type StopContext struct {
	SessionID   string `json:"sessionId"`
	SessionName string `json:"sessionName,omitempty"`
	Reason      string `json:"reason,omitempty"`

	Frame  Frame       `json:"frame"`
	Thread ThreadInfo  `json:"thread"`
	Scopes []ScopeInfo `json:"scopes,omitempty"`

	// HitBreakpoint is the breakpoint or trigger that caused the stop, nil
	// when the session stopped for another reason (exception, entry, pause).
	HitBreakpoint *ResolvedBreakpoint `json:"hitBreakpoint,omitempty"`

	Variables           []Variable       `json:"variables,omitempty"`
	StepOverCapture     *StepOverCapture `json:"stepOverCapture,omitempty"`
	ServerReady         *ServerReadyInfo `json:"serverReadyInfo,omitempty"`
	CapturedLogMessages []string         `json:"capturedLogMessages,omitempty"`
	ProbeCaptures       []ProbeCapture   `json:"probeCaptures,omitempty"`

	// SessionTerminated is set when a captureAndStopDebugging breakpoint
	// ended the session as part of the stop.
	SessionTerminated bool `json:"sessionTerminated,omitempty"`
}

// ProtocolHints carries the derived action hints for a session listing entry
type ProtocolHints struct {
	AllowedNextActions []string `json:"allowedNextActions"`
}

// SessionInfo is one entry of the flattened session listing
type SessionInfo struct {
	SessionID       string        `json:"sessionId"`
	Name            string        `json:"name"`
	Language        Language      `json:"language,omitempty"`
	Status          SessionStatus `json:"status"`
	ParentSessionID string        `json:"parentSessionId,omitempty"`
	Protocol        ProtocolHints `json:"protocol"`
}

// SessionNode is one node of the nested session view
type SessionNode struct {
	SessionInfo
	Children []*SessionNode `json:"children,omitempty"`
}

// SessionListing is the full two-view session report
type SessionListing struct {
	Sessions  []*SessionNode `json:"sessions"`
	Flattened []SessionInfo  `json:"flattened"`
}
