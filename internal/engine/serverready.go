package engine

import (
	"context"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/dkattan/breakpoint-mcp/internal/breakpoint"
	debugerrors "github.com/dkattan/breakpoint-mcp/internal/errors"
	"github.com/dkattan/breakpoint-mcp/pkg/types"
)

// serverReady tracks one trigger-and-act cycle for a session wait. The
// trigger is either an internal breakpoint (resolved up front and armed with
// the caller's breakpoints) or an output pattern matched against the
// debuggee's output stream. The action runs at most once.
type serverReady struct {
	engine  *Engine
	trigger types.ServerReadyTrigger
	action  types.ServerReadyAction

	// breakpoint mode
	bp *types.ResolvedBreakpoint

	// pattern mode: re when the pattern compiles, literal substring
	// fallback when it does not
	re      *regexp.Regexp
	literal string

	fired   bool
	phases  []string
	summary string
}

// newServerReady validates the config and prepares the trigger. Returns
// (nil, nil) when no server-ready behavior was requested.
func newServerReady(e *Engine, cfg *types.ServerReadyConfig) (*serverReady, error) {
	if cfg == nil {
		return nil, nil
	}
	if !e.cfg.CanRunActions() {
		return nil, debugerrors.PermissionDenied("action", string(e.cfg.Mode))
	}

	switch cfg.Action.Kind {
	case types.ActionShellCommand, types.ActionHTTPRequest, types.ActionVSCodeCommand:
	default:
		return nil, debugerrors.InvalidParameter("serverReady.action.kind",
			string(cfg.Action.Kind), "one of shellCommand, httpRequest, vscodeCommand")
	}

	sr := &serverReady{engine: e, trigger: cfg.Trigger, action: cfg.Action}

	hasLocation := cfg.Trigger.Path != "" || cfg.Trigger.Line != 0
	switch {
	case cfg.Trigger.IsPattern() && hasLocation:
		return nil, debugerrors.InvalidParameter("serverReady.trigger", cfg.Trigger,
			"either a pattern or a path and line, not both")
	case cfg.Trigger.IsPattern():
		re, err := regexp.Compile(cfg.Trigger.Pattern)
		if err != nil {
			logrus.Debugf("Server-ready pattern %q is not a valid regexp, matching as literal: %v",
				cfg.Trigger.Pattern, err)
			sr.literal = cfg.Trigger.Pattern
		} else {
			sr.re = re
		}
	case cfg.Trigger.Path != "" && cfg.Trigger.Line > 0:
		sr.bp = breakpoint.TriggerBreakpoint(cfg.Trigger.Path, cfg.Trigger.Line)
	default:
		return nil, debugerrors.InvalidParameter("serverReady.trigger", cfg.Trigger,
			"a pattern, or a path with a positive 1-based line")
	}

	return sr, nil
}

func (sr *serverReady) isPattern() bool {
	return sr.bp == nil
}

func (sr *serverReady) mode() string {
	if sr.isPattern() {
		return "pattern"
	}
	return "breakpoint"
}

// matches tests an output line against the pattern trigger.
func (sr *serverReady) matches(line string) bool {
	if sr.re != nil {
		return sr.re.MatchString(line)
	}
	return sr.literal != "" && strings.Contains(line, sr.literal)
}

// fire runs the action once. A failed action is recorded in the summary and
// logged; it never aborts the surrounding wait.
func (sr *serverReady) fire(ctx context.Context, phase, summary string) {
	if sr.fired {
		return
	}
	sr.fired = true
	sr.phases = append(sr.phases, phase)
	sr.summary = summary
	logrus.Infof("Server-ready trigger fired (%s, %s): %s", sr.mode(), phase, summary)

	if err := sr.engine.runAction(ctx, &sr.action); err != nil {
		logrus.Warnf("Server-ready action failed: %v", err)
		sr.summary += "; action failed: " + err.Error()
	}
}

// info reports the trigger outcome for the final stop context, nil if the
// trigger never fired.
func (sr *serverReady) info() *types.ServerReadyInfo {
	if sr == nil || !sr.fired {
		return nil
	}
	return &types.ServerReadyInfo{
		Mode:           sr.mode(),
		Phases:         sr.phases,
		TriggerSummary: sr.summary,
	}
}
