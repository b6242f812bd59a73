package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// registerTools registers the wait-oriented debug API. Inspection tools are
// always available; control tools only in full mode.
func (s *Server) registerTools() {
	// Inspection (both modes)
	s.registerDebugListSessions()
	s.registerDebugGetVariables()
	s.registerDebugEvaluate()
	s.registerDebugHTTPRequest()

	// Control (full mode only)
	if s.config.CanUseControlTools() {
		s.registerDebugStartWait()
		s.registerDebugTriggerWait()
		s.registerDebugResume()
		s.registerDebugStop()
	}
}

// Control Tools

func (s *Server) registerDebugStartWait() {
	tool := mcp.NewTool("debug_start_wait",
		mcp.WithDescription("Start a debug session (or reuse an existing one), arm breakpoints, and BLOCK until a breakpoint is hit, the timeout expires, or the program exits. Returns a StopContext with the stopped frame, scopes, and captured variables. This is the primary tool: one call replaces launch + set breakpoints + continue + inspect."),
		mcp.WithString("workspaceFolder",
			mcp.Description("Workspace root for launch.json discovery and ${workspaceFolder} resolution. Defaults to the current directory."),
		),
		mcp.WithString("configurationName",
			mcp.Description("Name of a .vscode/launch.json configuration to start. Provide this OR an inline 'configuration'."),
		),
		mcp.WithString("configuration",
			mcp.Description("Inline debug configuration as a JSON object, e.g. {\"type\": \"go\", \"program\": \"./cmd/server\"}. Provide this OR 'configurationName'."),
		),
		mcp.WithString("configurationOverrides",
			mcp.Description("JSON object merged over the selected configuration before variable resolution, e.g. {\"args\": [\"--port\", \"8080\"]}."),
		),
		mcp.WithString("inputs",
			mcp.Description("JSON object with values for ${input:} variables in launch.json, e.g. {\"testFile\": \"main_test.go\"}."),
		),
		mcp.WithString("breakpoints",
			mcp.Description("JSON array of breakpoint specs. Each spec addresses a location by 'line', a 'code' snippet (all matching lines break), or 'functionName'; optional 'condition', 'hitCondition', 'logMessage', 'onHit' (break | captureAndContinue | captureAndStopDebugging), 'variableFilter' (regex fragments; [] or [\"*\"] captures everything; omitted captures the nearest scope), and 'autoStepOver'. Example: [{\"path\": \"main.go\", \"code\": \"Loop iteration\", \"onHit\": \"break\"}]."),
		),
		mcp.WithString("serverReady",
			mcp.Description("JSON server-ready config: {\"trigger\": {\"path\", \"line\"} or {\"pattern\"}, \"action\": {\"kind\": shellCommand|httpRequest|vscodeCommand, ...}}. When the trigger detects readiness the action runs once and the session resumes."),
		),
		mcp.WithString("sessionName",
			mcp.Description("Display name for the new session. Defaults to the configuration name."),
		),
		mcp.WithString("sessionId",
			mcp.Description("Explicit session to reuse when existingSessionBehavior is 'useExisting'."),
		),
		mcp.WithString("existingSessionBehavior",
			mcp.Description("'useExisting' (default) reuses the single active session or fails on ambiguity; 'ignoreAndCreateNew' starts another session (requires supportsMultipleSessions in the server config)."),
		),
		mcp.WithNumber("timeoutSeconds",
			mcp.Description("How long to wait for a stop before failing with STOP_WAIT_TIMEOUT. The session keeps running on timeout. Defaults to the server's configured wait."),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugStartWait)
}

func (s *Server) registerDebugTriggerWait() {
	tool := mcp.NewTool("debug_trigger_wait",
		mcp.WithDescription("Arm a new breakpoint set on an EXISTING session and block until one is hit. Optionally fire a one-shot action (HTTP request or shell command) after arming to drive the program toward the breakpoints. A paused session is resumed automatically once the breakpoints are in place."),
		mcp.WithString("sessionId",
			mcp.Description("Target session. Defaults to the single active session."),
		),
		mcp.WithString("breakpoints",
			mcp.Description("JSON array of breakpoint specs, same shape as debug_start_wait."),
		),
		mcp.WithString("serverReady",
			mcp.Description("Optional JSON server-ready config, same shape as debug_start_wait."),
		),
		mcp.WithString("action",
			mcp.Description("Optional one-shot action fired after arming, e.g. {\"kind\": \"httpRequest\", \"url\": \"http://127.0.0.1:8080/orders\"}. Failures are logged and the wait continues."),
		),
		mcp.WithNumber("timeoutSeconds",
			mcp.Description("How long to wait for a stop. Defaults to the server's configured wait."),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugTriggerWait)
}

func (s *Server) registerDebugResume() {
	tool := mcp.NewTool("debug_resume",
		mcp.WithDescription("Resume a paused session WITHOUT waiting for the next stop. Returns as soon as the adapter acknowledges the continue. Use debug_trigger_wait instead if you want to stop at new breakpoints."),
		mcp.WithString("sessionId",
			mcp.Description("Target session. Defaults to the single active session."),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugResume)
}

func (s *Server) registerDebugStop() {
	tool := mcp.NewTool("debug_stop",
		mcp.WithDescription("Terminate a debug session and remove it from the registry."),
		mcp.WithString("sessionId",
			mcp.Required(),
			mcp.Description("The session ID to stop"),
		),
		mcp.WithBoolean("terminateDebuggee",
			mcp.Description("Also terminate the debugged process (default: true)"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugStop)
}

// Inspection Tools

func (s *Server) registerDebugListSessions() {
	tool := mcp.NewTool("debug_list_sessions",
		mcp.WithDescription("List all active debug sessions: a nested parent/child tree plus a flattened view, each entry carrying status (running | paused | terminated) and protocol.allowedNextActions hints."),
	)
	s.mcpServer.AddTool(tool, s.handleDebugListSessions)
}

func (s *Server) registerDebugGetVariables() {
	tool := mcp.NewTool("debug_get_variables",
		mcp.WithDescription("Fetch variables from the paused frame of a session. The session must be paused (see allowedNextActions in debug_list_sessions)."),
		mcp.WithString("sessionId",
			mcp.Description("Target session. Defaults to the single active session."),
		),
		mcp.WithString("variableFilter",
			mcp.Description("JSON array of regex fragments matched case-insensitively against variable names, e.g. [\"^user\", \"count$\"]. [] or [\"*\"] captures every scope; omitted captures the nearest scope only."),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugGetVariables)
}

func (s *Server) registerDebugEvaluate() {
	tool := mcp.NewTool("debug_evaluate",
		mcp.WithDescription("Evaluate an expression in the context of the paused frame, e.g. 'len(orders)' or 'user.Email'."),
		mcp.WithString("sessionId",
			mcp.Description("Target session. Defaults to the single active session."),
		),
		mcp.WithString("expression",
			mcp.Required(),
			mcp.Description("The expression to evaluate"),
		),
		mcp.WithString("context",
			mcp.Description("Evaluation context: 'repl' (default), 'watch', or 'hover'"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugEvaluate)
}

func (s *Server) registerDebugHTTPRequest() {
	tool := mcp.NewTool("debug_http_request",
		mcp.WithDescription("Issue an HTTP request, typically against the server being debugged while it is RUNNING (the externalHttpRequest next-action). Returns status and a bounded body. Non-2xx responses are results, not errors. Combine with debug_trigger_wait to stop inside the handler instead."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL to request"),
		),
		mcp.WithString("method",
			mcp.Description("HTTP method (default: GET)"),
		),
		mcp.WithString("headers",
			mcp.Description("JSON object of request headers, e.g. {\"Content-Type\": \"application/json\"}"),
		),
		mcp.WithString("body",
			mcp.Description("Request body"),
		),
		mcp.WithNumber("timeoutSeconds",
			mcp.Description("Request timeout (default: 30)"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugHTTPRequest)
}
