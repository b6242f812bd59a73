// Package engine orchestrates debug sessions end to end. It resolves launch
// configurations, spawns adapters, arms breakpoints, runs the stop-wait
// state machine with its optional server-ready trigger, snapshots variables,
// and exposes the operations the tool layer maps one-to-one onto MCP tools.
package engine

import (
	"context"
	"runtime/debug"

	"github.com/sirupsen/logrus"

	"github.com/dkattan/breakpoint-mcp/internal/adapters"
	"github.com/dkattan/breakpoint-mcp/internal/breakpoint"
	"github.com/dkattan/breakpoint-mcp/internal/config"
	debugerrors "github.com/dkattan/breakpoint-mcp/internal/errors"
	"github.com/dkattan/breakpoint-mcp/internal/session"
	"github.com/dkattan/breakpoint-mcp/pkg/types"
)

// CommandInvoker dispatches vscodeCommand side-actions to a host IDE. The
// standalone binary registers none; an embedding editor extension can.
type CommandInvoker interface {
	InvokeCommand(ctx context.Context, commandID string, args []interface{}) error
}

// Engine wires the orchestration collaborators together. One engine serves
// all sessions; per-wait state lives in the waiter.
type Engine struct {
	cfg      *config.Config
	registry *session.Registry
	adapters *adapters.Registry
	resolver *breakpoint.Resolver
	invoker  CommandInvoker
}

// New creates an engine. A nil reader resolves snippets from the local
// filesystem. The engine installs itself as the registry's child-session
// handler so adapter-initiated child sessions (js-debug) get registered.
func New(cfg *config.Config, registry *session.Registry, adapterRegistry *adapters.Registry, reader breakpoint.SourceReader) *Engine {
	e := &Engine{
		cfg:      cfg,
		registry: registry,
		adapters: adapterRegistry,
		resolver: breakpoint.NewResolver(reader),
	}
	registry.SetChildHandler(e.handleChildSession)
	return e
}

// SetCommandInvoker installs the vscodeCommand dispatcher.
func (e *Engine) SetCommandInvoker(invoker CommandInvoker) {
	e.invoker = invoker
}

// ListDebugSessionsForTool returns the nested and flattened session views
// with status and allowed-next-action hints.
func (e *Engine) ListDebugSessionsForTool() types.SessionListing {
	return e.registry.Listing()
}

// ResumeResult identifies the session a fire-and-forget resume touched.
type ResumeResult struct {
	SessionID   string `json:"sessionId"`
	SessionName string `json:"sessionName"`
}

// ResumeDebugSessionWithoutWaiting resumes a paused session and returns as
// soon as the continue request is acknowledged, never waiting for the next
// stop. Resuming an already-running session is a no-op success.
func (e *Engine) ResumeDebugSessionWithoutWaiting(sessionID string) (*ResumeResult, error) {
	s, err := e.registry.Resolve(sessionID)
	if err != nil {
		return nil, err
	}
	if s.Client == nil {
		return nil, debugerrors.SessionNoClient(s.ID)
	}

	if s.Status() == types.SessionStatusPaused {
		if _, err := s.Client.Continue(s.StoppedThread()); err != nil {
			return nil, debugerrors.AdapterProtocol("continue", err)
		}
		s.MarkRunning()
	}

	return &ResumeResult{SessionID: s.ID, SessionName: s.Name}, nil
}

// StopSession terminates a session: the adapter is disconnected with
// terminateDebuggee and the session is evicted from the registry.
func (e *Engine) StopSession(sessionID string, terminateDebuggee bool) error {
	s, err := e.registry.Resolve(sessionID)
	if err != nil {
		return err
	}
	return e.registry.Terminate(s.ID, terminateDebuggee)
}

// GetVariables snapshots the variables of a paused session's top frame,
// applying the same filter semantics as breakpoint captures.
func (e *Engine) GetVariables(sessionID string, filter []string) ([]types.Variable, error) {
	s, err := e.registry.Resolve(sessionID)
	if err != nil {
		return nil, err
	}
	if s.Client == nil {
		return nil, debugerrors.SessionNoClient(s.ID)
	}
	if s.Status() != types.SessionStatusPaused {
		return nil, debugerrors.SessionNotPaused(s.ID, string(s.Status()))
	}

	frames, err := s.Client.StackTrace(s.StoppedThread(), 0, 1)
	if err != nil {
		return nil, debugerrors.AdapterProtocol("stackTrace", err)
	}
	if len(frames) == 0 {
		return nil, debugerrors.AdapterProtocol("stackTrace", errNoFrames)
	}

	snap := newSnapshotter(s.Client, e.cfg.MaxValueLength)
	_, vars, err := snap.capture(frames[0].Id, filter)
	return vars, err
}

// Evaluate evaluates an expression in the context of a paused session's top
// frame. Gated by the allowEvaluate config flag.
func (e *Engine) Evaluate(sessionID, expression, evalContext string) (*types.Variable, error) {
	if !e.cfg.CanEvaluate() {
		return nil, debugerrors.PermissionDenied("evaluate", string(e.cfg.Mode))
	}

	s, err := e.registry.Resolve(sessionID)
	if err != nil {
		return nil, err
	}
	if s.Client == nil {
		return nil, debugerrors.SessionNoClient(s.ID)
	}
	if s.Status() != types.SessionStatusPaused {
		return nil, debugerrors.SessionNotPaused(s.ID, string(s.Status()))
	}

	frames, err := s.Client.StackTrace(s.StoppedThread(), 0, 1)
	if err != nil {
		return nil, debugerrors.AdapterProtocol("stackTrace", err)
	}
	frameID := 0
	if len(frames) > 0 {
		frameID = frames[0].Id
	}

	if evalContext == "" {
		evalContext = "repl"
	}
	body, err := s.Client.Evaluate(expression, frameID, evalContext)
	if err != nil {
		return nil, debugerrors.AdapterProtocol("evaluate", err)
	}

	v := types.Variable{
		Name:               expression,
		Value:              body.Result,
		Type:               body.Type,
		VariablesReference: body.VariablesReference,
	}
	truncateVariable(&v, e.cfg.MaxValueLength)
	return &v, nil
}

// goSafe runs fn on a new goroutine and turns panics into error logs, so a
// misbehaving side action cannot crash the server.
func goSafe(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logrus.Errorf("%s: panic recovered: %v\n%s", name, r, debug.Stack())
			}
		}()
		fn()
	}()
}
