package engine

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/emirpasic/gods/sets/hashset"
	"github.com/google/go-dap"
	"github.com/sirupsen/logrus"

	"github.com/dkattan/breakpoint-mcp/internal/breakpoint"
	internaldap "github.com/dkattan/breakpoint-mcp/internal/dap"
	debugerrors "github.com/dkattan/breakpoint-mcp/internal/errors"
	"github.com/dkattan/breakpoint-mcp/internal/session"
	"github.com/dkattan/breakpoint-mcp/pkg/types"
)

// stepTimeout bounds how long a single step-over may take before the wait
// gives up on the adapter.
const stepTimeout = 10 * time.Second

// waiter consumes adapter events for one session until a terminal stop, a
// timeout, or debuggee exit. It owns the breakpoint hit dispatch: log-point
// collection, server-ready triggering, capture-and-continue probes, and
// auto-step-over captures all happen here.
//
// The subscription must be opened before the launch or attach verb is sent so
// no event can slip past; events buffered before arming finished are the
// "entry" phase for the server-ready trigger.
type waiter struct {
	engine     *Engine
	sess       *session.Session
	sub        *internaldap.Subscription
	snap       *snapshotter
	ready      *serverReady
	timeout    time.Duration
	configName string
	started    time.Time

	resolved        []*types.ResolvedBreakpoint
	preArmedBacklog int
	internalIDs     *hashset.Set

	logMatchers []*regexp.Regexp
	logMessages []string
	probes      []types.ProbeCapture
}

func newWaiter(e *Engine, sess *session.Session, ready *serverReady, timeout time.Duration, configName string) *waiter {
	return &waiter{
		engine:      e,
		sess:        sess,
		sub:         sess.Client.Subscribe(1024),
		snap:        newSnapshotter(sess.Client, e.cfg.MaxValueLength),
		ready:       ready,
		timeout:     timeout,
		configName:  configName,
		started:     time.Now(),
		internalIDs: hashset.New(),
	}
}

func (w *waiter) close() {
	w.sub.Close()
}

// armed records the adapter-confirmed breakpoints and snapshots how many
// events arrived while arming was still in progress. A trigger breakpoint
// hit consumed from that backlog fired before the caller's breakpoints were
// fully in place.
func (w *waiter) armed(resolved []*types.ResolvedBreakpoint, specs []types.BreakpointSpec) {
	w.resolved = resolved
	for _, bp := range resolved {
		if bp.Internal && bp.ID != 0 {
			w.internalIDs.Add(bp.ID)
		}
	}
	for i := range specs {
		if specs[i].IsLogPoint() {
			w.logMatchers = append(w.logMatchers, logMessageRegexp(specs[i].LogMessage))
		}
	}
	w.preArmedBacklog = len(w.sub.C)
}

// wait blocks until the session reaches a terminal stop.
func (w *waiter) wait(ctx context.Context) (*types.StopContext, error) {
	timer := time.NewTimer(w.timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, debugerrors.StopWaitTimeout(time.Since(w.started), w.configName)
		case msg, ok := <-w.sub.C:
			if !ok {
				return nil, debugerrors.TerminatedBeforeStop(w.sess.ID, w.sess.ExitCode())
			}
			fromBacklog := w.preArmedBacklog > 0
			if fromBacklog {
				w.preArmedBacklog--
			}
			sc, err := w.handle(ctx, msg, fromBacklog)
			if err != nil {
				return nil, err
			}
			if sc != nil {
				return sc, nil
			}
		}
	}
}

func (w *waiter) handle(ctx context.Context, msg dap.Message, fromBacklog bool) (*types.StopContext, error) {
	switch m := msg.(type) {
	case *dap.OutputEvent:
		w.handleOutput(ctx, m)
		return nil, nil
	case *dap.StoppedEvent:
		return w.handleStopped(ctx, m, fromBacklog)
	case *dap.ExitedEvent:
		code := m.Body.ExitCode
		return nil, debugerrors.TerminatedBeforeStop(w.sess.ID, &code)
	case *dap.TerminatedEvent:
		return nil, debugerrors.TerminatedBeforeStop(w.sess.ID, w.sess.ExitCode())
	}
	return nil, nil
}

// handleOutput scans debuggee output for the server-ready pattern and for
// log-point emissions.
func (w *waiter) handleOutput(ctx context.Context, ev *dap.OutputEvent) {
	switch ev.Body.Category {
	case "stdout", "stderr", "console", "":
	default:
		return
	}
	for _, line := range splitOutputLines(ev.Body.Output) {
		if w.ready != nil && w.ready.isPattern() && !w.ready.fired && w.ready.matches(line) {
			w.ready.fire(ctx, types.PhaseImmediate, "matched debug output: "+line)
			w.resumeIfPaused()
		}
		w.collectLogMessage(line)
	}
}

// resumeIfPaused continues the session after a pattern-triggered action. A
// session that is already running needs nothing.
func (w *waiter) resumeIfPaused() {
	if w.sess.Status() != types.SessionStatusPaused {
		return
	}
	if _, err := w.sess.Client.Continue(w.sess.StoppedThread()); err != nil {
		logrus.Warnf("Failed to resume session %s after server-ready action: %v", w.sess.ID, err)
		return
	}
	w.sess.MarkRunning()
}

func (w *waiter) collectLogMessage(line string) {
	for _, re := range w.logMatchers {
		if re.MatchString(line) {
			w.logMessages = append(w.logMessages, line)
			return
		}
	}
}

func (w *waiter) handleStopped(ctx context.Context, ev *dap.StoppedEvent, fromBacklog bool) (*types.StopContext, error) {
	threadID := ev.Body.ThreadId
	w.sess.MarkStopped(threadID, ev.Body.Reason)

	frames, err := w.sess.Client.StackTrace(threadID, 0, 1)
	if err != nil {
		return nil, debugerrors.AdapterProtocol("stackTrace", err)
	}
	if len(frames) == 0 {
		return nil, debugerrors.AdapterProtocol("stackTrace", errNoFrames)
	}
	top := frames[0]

	bp := breakpoint.MatchStop(w.resolved, framePath(top), top.Line, ev.Body.HitBreakpointIds)

	// Server-ready trigger hit: fire the action, drop the trigger
	// breakpoint, resume, and keep waiting for the caller's stop.
	if bp != nil && bp.Internal {
		phase := types.PhaseLate
		if fromBacklog {
			phase = types.PhaseEntry
		}
		w.ready.fire(ctx, phase, fmt.Sprintf("breakpoint hit at %s:%d", bp.Path, bp.Line))
		w.removeTriggerBreakpoint(bp)
		if _, err := w.sess.Client.Continue(threadID); err != nil {
			return nil, debugerrors.AdapterProtocol("continue", err)
		}
		w.sess.MarkRunning()
		return nil, nil
	}

	// A removed trigger breakpoint can still cause one in-flight stop.
	// Surface it as the terminal stop rather than resuming blind.
	if bp == nil && w.triggerCaused(ev.Body.HitBreakpointIds) {
		bp = w.ready.bp
	}

	var spec *types.BreakpointSpec
	if bp != nil {
		spec = bp.Spec
	}

	// Stopping breakpoints may still carry a log message; the adapter only
	// interpolates for pure log-points, so expand the template here.
	if spec != nil && spec.LogMessage != "" && !spec.IsLogPoint() {
		w.logMessages = append(w.logMessages, w.interpolate(spec.LogMessage, top.Id))
	}

	onHit := types.OnHitBreak
	if spec != nil {
		onHit = spec.EffectiveOnHit()
	}
	var filter []string
	if spec != nil {
		filter = spec.VariableFilter
	}

	switch onHit {
	case types.OnHitCaptureAndContinue:
		after, err := w.stepOver(ctx, threadID)
		if err != nil {
			return nil, err
		}
		_, vars, err := w.snap.capture(after.Id, filter)
		if err != nil {
			return nil, err
		}
		w.probes = append(w.probes, types.ProbeCapture{
			Breakpoint: *bp,
			FromLine:   top.Line,
			Line:       after.Line,
			Variables:  vars,
		})
		if _, err := w.sess.Client.Continue(threadID); err != nil {
			return nil, debugerrors.AdapterProtocol("continue", err)
		}
		w.sess.MarkRunning()
		return nil, nil

	case types.OnHitCaptureAndStopDebugging:
		after, err := w.stepOver(ctx, threadID)
		if err != nil {
			return nil, err
		}
		scopes, vars, err := w.snap.capture(after.Id, filter)
		if err != nil {
			return nil, err
		}
		sc := w.buildStopContext(bp, after, threadID, ev.Body.Reason, scopes, vars)
		sc.SessionTerminated = true
		if err := w.engine.registry.Terminate(w.sess.ID, true); err != nil {
			logrus.Warnf("Failed to terminate session %s after capture: %v", w.sess.ID, err)
		}
		return sc, nil
	}

	// break: the terminal stop, optionally stepping over once first
	if spec != nil && spec.AutoStepOver {
		_, before, err := w.snap.capture(top.Id, filter)
		if err != nil {
			return nil, err
		}
		after, err := w.stepOver(ctx, threadID)
		if err != nil {
			return nil, err
		}
		scopes, afterVars, err := w.snap.capture(after.Id, filter)
		if err != nil {
			return nil, err
		}
		sc := w.buildStopContext(bp, after, threadID, ev.Body.Reason, scopes, afterVars)
		sc.StepOverCapture = &types.StepOverCapture{
			FromLine: top.Line,
			ToLine:   after.Line,
			Before:   before,
			After:    afterVars,
		}
		return sc, nil
	}

	scopes, vars, err := w.snap.capture(top.Id, filter)
	if err != nil {
		return nil, err
	}
	return w.buildStopContext(bp, top, threadID, ev.Body.Reason, scopes, vars), nil
}

// stepOver issues a next request and returns the frame the session stopped
// in afterwards. Output events arriving mid-step still feed the pattern and
// log-point matchers.
func (w *waiter) stepOver(ctx context.Context, threadID int) (dap.StackFrame, error) {
	if err := w.sess.Client.Next(threadID); err != nil {
		return dap.StackFrame{}, debugerrors.AdapterProtocol("next", err)
	}
	ev, err := w.awaitStopped(ctx)
	if err != nil {
		return dap.StackFrame{}, err
	}
	frames, err := w.sess.Client.StackTrace(ev.Body.ThreadId, 0, 1)
	if err != nil {
		return dap.StackFrame{}, debugerrors.AdapterProtocol("stackTrace", err)
	}
	if len(frames) == 0 {
		return dap.StackFrame{}, debugerrors.AdapterProtocol("stackTrace", errNoFrames)
	}
	return frames[0], nil
}

func (w *waiter) awaitStopped(ctx context.Context) (*dap.StoppedEvent, error) {
	timer := time.NewTimer(stepTimeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, debugerrors.AdapterProtocol("next",
				fmt.Errorf("no stop event within %s after step", stepTimeout))
		case msg, ok := <-w.sub.C:
			if !ok {
				return nil, debugerrors.TerminatedBeforeStop(w.sess.ID, w.sess.ExitCode())
			}
			if w.preArmedBacklog > 0 {
				w.preArmedBacklog--
			}
			switch m := msg.(type) {
			case *dap.OutputEvent:
				w.handleOutput(ctx, m)
			case *dap.StoppedEvent:
				w.sess.MarkStopped(m.Body.ThreadId, m.Body.Reason)
				return m, nil
			case *dap.ExitedEvent:
				code := m.Body.ExitCode
				return nil, debugerrors.TerminatedBeforeStop(w.sess.ID, &code)
			case *dap.TerminatedEvent:
				return nil, debugerrors.TerminatedBeforeStop(w.sess.ID, w.sess.ExitCode())
			}
		}
	}
}

// removeTriggerBreakpoint re-sends the file's breakpoints without the fired
// trigger. Best effort: a failure leaves the breakpoint armed, and the next
// hit surfaces as a terminal stop instead of looping.
func (w *waiter) removeTriggerBreakpoint(bp *types.ResolvedBreakpoint) {
	kept := make([]*types.ResolvedBreakpoint, 0, len(w.resolved))
	for _, rb := range w.resolved {
		if rb != bp {
			kept = append(kept, rb)
		}
	}
	w.resolved = kept

	for _, group := range breakpoint.GroupByFile(kept) {
		if group.Path != bp.Path {
			continue
		}
		result, err := w.sess.Client.SetBreakpoints(group.Path, breakpoint.SourceBreakpoints(group.Breakpoints))
		if err != nil {
			logrus.Warnf("Failed to remove server-ready trigger breakpoint from %s: %v", bp.Path, err)
			return
		}
		breakpoint.ApplyAdapterResult(group.Breakpoints, result)
		return
	}
	if _, err := w.sess.Client.SetBreakpoints(bp.Path, nil); err != nil {
		logrus.Warnf("Failed to clear server-ready trigger breakpoint from %s: %v", bp.Path, err)
	}
}

func (w *waiter) triggerCaused(hitIDs []int) bool {
	if w.internalIDs.Empty() {
		return false
	}
	for _, id := range hitIDs {
		if w.internalIDs.Contains(id) {
			return true
		}
	}
	return false
}

// interpolate expands {expression} holes in a log message template by
// evaluating each against the stopped frame. Holes that fail to evaluate
// stay verbatim.
func (w *waiter) interpolate(template string, frameID int) string {
	return logTemplateHole.ReplaceAllStringFunc(template, func(hole string) string {
		expr := hole[1 : len(hole)-1]
		body, err := w.sess.Client.Evaluate(expr, frameID, "watch")
		if err != nil {
			logrus.Debugf("Log message expression %q failed: %v", expr, err)
			return hole
		}
		return body.Result
	})
}

func (w *waiter) buildStopContext(bp *types.ResolvedBreakpoint, frame dap.StackFrame, threadID int, reason string, scopes []types.ScopeInfo, vars []types.Variable) *types.StopContext {
	thread := types.ThreadInfo{ID: threadID}
	if threads, err := w.sess.Client.Threads(); err == nil {
		for _, t := range threads {
			if t.Id == threadID {
				thread.Name = t.Name
				break
			}
		}
	}
	return &types.StopContext{
		SessionID:           w.sess.ID,
		SessionName:         w.sess.Name,
		Reason:              reason,
		Frame:               frameInfo(frame),
		Thread:              thread,
		Scopes:              scopes,
		HitBreakpoint:       bp,
		Variables:           vars,
		ServerReady:         w.ready.info(),
		CapturedLogMessages: w.logMessages,
		ProbeCaptures:       w.probes,
	}
}

var logTemplateHole = regexp.MustCompile(`\{[^{}]*\}`)

// logMessageRegexp turns a log-point template into a matcher for the
// adapter-interpolated output lines it produces: literal segments are
// quoted, {expression} holes match anything.
func logMessageRegexp(template string) *regexp.Regexp {
	parts := logTemplateHole.Split(template, -1)
	var b strings.Builder
	b.WriteString("^")
	for i, part := range parts {
		if i > 0 {
			b.WriteString("(.*)")
		}
		b.WriteString(regexp.QuoteMeta(part))
	}
	b.WriteString("$")
	return regexp.MustCompile(b.String())
}

func splitOutputLines(output string) []string {
	var lines []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func framePath(f dap.StackFrame) string {
	if f.Source != nil {
		return f.Source.Path
	}
	return ""
}

func frameInfo(f dap.StackFrame) types.Frame {
	fr := types.Frame{ID: f.Id, Name: f.Name, Line: f.Line, Column: f.Column}
	if f.Source != nil {
		fr.Source = &types.SourceInfo{
			Name:            f.Source.Name,
			Path:            f.Source.Path,
			SourceReference: f.Source.SourceReference,
		}
	}
	return fr
}
