package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dkattan/breakpoint-mcp/internal/engine"
	debugerrors "github.com/dkattan/breakpoint-mcp/internal/errors"
)

// Control Handlers

func (s *Server) handleDebugStartWait(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p engine.StartParams
	p.WorkspaceFolder, _ = request.RequireString("workspaceFolder")
	p.ConfigurationName, _ = request.RequireString("configurationName")
	p.SessionName, _ = request.RequireString("sessionName")
	p.SessionID, _ = request.RequireString("sessionId")
	p.ExistingSessionBehavior, _ = request.RequireString("existingSessionBehavior")
	if v, err := request.RequireFloat("timeoutSeconds"); err == nil {
		p.TimeoutSeconds = int(v)
	}

	if err := parseJSONParam(request, "configuration",
		`{"type": "go", "program": "./main.go"}`, &p.Configuration); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := parseJSONParam(request, "configurationOverrides",
		`{"args": ["--verbose"]}`, &p.ConfigurationOverrides); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := parseJSONParam(request, "inputs",
		`{"testFile": "main_test.go"}`, &p.Inputs); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := parseJSONParam(request, "breakpoints",
		`[{"path": "main.go", "line": 10}]`, &p.Breakpoints); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := parseJSONParam(request, "serverReady",
		`{"trigger": {"pattern": "listening on"}, "action": {"kind": "httpRequest", "url": "http://127.0.0.1:8080/"}}`,
		&p.ServerReady); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	sc, err := s.engine.StartDebuggingAndWaitForStop(ctx, p)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(sc)
}

func (s *Server) handleDebugTriggerWait(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p engine.TriggerParams
	p.SessionID, _ = request.RequireString("sessionId")
	if v, err := request.RequireFloat("timeoutSeconds"); err == nil {
		p.TimeoutSeconds = int(v)
	}

	if err := parseJSONParam(request, "breakpoints",
		`[{"path": "handler.go", "code": "parseOrder", "onHit": "break"}]`, &p.Breakpoints); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := parseJSONParam(request, "serverReady",
		`{"trigger": {"path": "server.go", "line": 42}, "action": {"kind": "shellCommand", "command": "./seed.sh"}}`,
		&p.ServerReady); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := parseJSONParam(request, "action",
		`{"kind": "httpRequest", "url": "http://127.0.0.1:8080/orders"}`, &p.Action); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	sc, err := s.engine.TriggerBreakpointAndWaitForStop(ctx, p)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(sc)
}

func (s *Server) handleDebugResume(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, _ := request.RequireString("sessionId")

	result, err := s.engine.ResumeDebugSessionWithoutWaiting(sessionID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(result)
}

func (s *Server) handleDebugStop(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("sessionId")
	if err != nil {
		return mcp.NewToolResultError(debugerrors.MissingParameter("sessionId",
			"The session ID to stop. List sessions with debug_list_sessions.").Error()), nil
	}
	terminate := request.GetBool("terminateDebuggee", true)

	if err := s.engine.StopSession(sessionID, terminate); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]interface{}{
		"sessionId": sessionID,
		"status":    "terminated",
	})
}

// Inspection Handlers

func (s *Server) handleDebugListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.engine.ListDebugSessionsForTool())
}

func (s *Server) handleDebugGetVariables(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, _ := request.RequireString("sessionId")

	var filter []string
	if err := parseJSONParam(request, "variableFilter", `["^user", "count$"]`, &filter); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	vars, err := s.engine.GetVariables(sessionID, filter)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]interface{}{
		"variables": vars,
		"count":     len(vars),
	})
}

func (s *Server) handleDebugEvaluate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	expression, err := request.RequireString("expression")
	if err != nil {
		return mcp.NewToolResultError(debugerrors.MissingParameter("expression",
			"The expression to evaluate, e.g. 'len(orders)'.").Error()), nil
	}
	sessionID, _ := request.RequireString("sessionId")
	evalContext, _ := request.RequireString("context")

	v, err := s.engine.Evaluate(sessionID, expression, evalContext)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(v)
}

func (s *Server) handleDebugHTTPRequest(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	url, err := request.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(debugerrors.MissingParameter("url", "The URL to request.").Error()), nil
	}

	p := engine.HTTPRequestParams{URL: url}
	p.Method, _ = request.RequireString("method")
	p.Body, _ = request.RequireString("body")
	if v, err := request.RequireFloat("timeoutSeconds"); err == nil {
		p.TimeoutSeconds = int(v)
	}
	if err := parseJSONParam(request, "headers",
		`{"Content-Type": "application/json"}`, &p.Headers); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.engine.HTTPRequest(ctx, p)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(result)
}

// Helpers

// parseJSONParam decodes an optional JSON-string parameter into out. Absent
// or empty parameters leave out untouched.
func parseJSONParam(request mcp.CallToolRequest, name, example string, out interface{}) error {
	raw, err := request.RequireString(name)
	if err != nil || raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return debugerrors.InvalidJSON(name, err, example)
	}
	return nil
}

func jsonResult(data interface{}) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}
