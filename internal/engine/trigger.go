package engine

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/dkattan/breakpoint-mcp/internal/breakpoint"
	debugerrors "github.com/dkattan/breakpoint-mcp/internal/errors"
	"github.com/dkattan/breakpoint-mcp/internal/session"
	"github.com/dkattan/breakpoint-mcp/pkg/types"
)

// TriggerParams arms a new breakpoint set on an existing session and waits
// for a stop. Action optionally drives the debuggee toward the breakpoints
// (an HTTP request against a paused-at-the-ready server, for example).
type TriggerParams struct {
	SessionID      string                   `json:"sessionId,omitempty"`
	Breakpoints    []types.BreakpointSpec   `json:"breakpoints,omitempty"`
	ServerReady    *types.ServerReadyConfig `json:"serverReady,omitempty"`
	Action         *types.ServerReadyAction `json:"action,omitempty"`
	TimeoutSeconds int                      `json:"timeoutSeconds,omitempty"`
}

// TriggerBreakpointAndWaitForStop runs the stop-wait state machine against a
// session that is already being debugged. The session is resumed if paused
// once the new breakpoints are armed.
func (e *Engine) TriggerBreakpointAndWaitForStop(ctx context.Context, p TriggerParams) (*types.StopContext, error) {
	if !e.cfg.CanUseControlTools() {
		return nil, debugerrors.PermissionDenied("trigger", string(e.cfg.Mode))
	}
	sess, err := e.registry.Resolve(p.SessionID)
	if err != nil {
		return nil, err
	}
	return e.armAndWait(ctx, sess, p.Breakpoints, p.ServerReady, p.Action, p.TimeoutSeconds)
}

// armAndWait is the shared wait path for sessions that already exist: the
// reuse branch of a start and the whole of a trigger. Unlike a fresh launch,
// a failed wait here never tears the session down.
func (e *Engine) armAndWait(ctx context.Context, sess *session.Session, specs []types.BreakpointSpec, srCfg *types.ServerReadyConfig, action *types.ServerReadyAction, timeoutSeconds int) (*types.StopContext, error) {
	if sess.Client == nil {
		return nil, debugerrors.SessionNoClient(sess.ID)
	}
	if len(specs) == 0 && srCfg == nil {
		return nil, debugerrors.MissingParameter("breakpoints",
			"at least one breakpoint spec, or a serverReady trigger")
	}
	if action != nil && !e.cfg.CanRunActions() {
		return nil, debugerrors.PermissionDenied("action", string(e.cfg.Mode))
	}

	resolved, err := e.resolver.Resolve(specs)
	if err != nil {
		return nil, err
	}
	if err := breakpoint.RequireFunctionSupport(resolved, sess.Client.SupportsFunctionBreakpoints()); err != nil {
		return nil, err
	}
	ready, err := newServerReady(e, srCfg)
	if err != nil {
		return nil, err
	}

	w := newWaiter(e, sess, ready, e.stopTimeout(timeoutSeconds), sess.Name)
	defer w.close()

	all := withTrigger(resolved, ready)
	if err := armBreakpoints(sess.Client, all); err != nil {
		return nil, err
	}
	w.armed(all, specs)

	// A paused session cannot make progress toward the new breakpoints.
	if sess.Status() == types.SessionStatusPaused {
		if _, err := sess.Client.Continue(sess.StoppedThread()); err != nil {
			return nil, debugerrors.AdapterProtocol("continue", err)
		}
		sess.MarkRunning()
	}

	if action != nil {
		if err := e.runAction(ctx, action); err != nil {
			logrus.Warnf("Trigger action failed, continuing to wait: %v", err)
		}
	}

	return w.wait(ctx)
}
