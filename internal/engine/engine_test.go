package engine

import (
	"bufio"
	"context"
	"net"
	"sync"
	"testing"
	"time"

	godap "github.com/google/go-dap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkattan/breakpoint-mcp/internal/adapters"
	"github.com/dkattan/breakpoint-mcp/internal/config"
	internaldap "github.com/dkattan/breakpoint-mcp/internal/dap"
	debugerrors "github.com/dkattan/breakpoint-mcp/internal/errors"
	"github.com/dkattan/breakpoint-mcp/internal/session"
	"github.com/dkattan/breakpoint-mcp/pkg/types"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := config.DefaultConfig()
	registry := session.NewRegistry(cfg.MaxSessions, cfg.SessionTimeout)
	t.Cleanup(registry.Close)
	return New(cfg, registry, adapters.NewRegistry(cfg), nil)
}

// fakeDebuggee plays the adapter side of a session over an in-memory pipe.
// Its serve goroutine answers protocol requests from mutable state; the
// onNext and onContinue hooks let a test script what "the program" does when
// the engine steps or resumes it.
type fakeDebuggee struct {
	t    *testing.T
	conn net.Conn
	rd   *bufio.Reader

	mu         sync.Mutex
	seq        int
	frame      godap.StackFrame
	scopes     []godap.Scope
	variables  map[int][]godap.Variable
	evals      map[string]string
	onNext     func()
	onContinue func()
}

func newFakeDebuggee(t *testing.T, e *Engine) (*fakeDebuggee, *session.Session) {
	t.Helper()
	clientConn, serverConn := net.Pipe()

	fd := &fakeDebuggee{
		t:         t,
		conn:      serverConn,
		rd:        bufio.NewReader(serverConn),
		variables: map[int][]godap.Variable{},
		evals:     map[string]string{},
	}
	go fd.serve()

	sess, err := e.registry.Create("test session", types.LanguageGo, "./cmd/app", "")
	require.NoError(t, err)
	sess.Client = internaldap.NewClient(internaldap.NewPipeTransport(clientConn))
	return fd, sess
}

func (fd *fakeDebuggee) serve() {
	for {
		msg, err := godap.ReadProtocolMessage(fd.rd)
		if err != nil {
			return
		}
		req, ok := msg.(godap.RequestMessage)
		if !ok {
			continue
		}
		fd.dispatch(req)
	}
}

func (fd *fakeDebuggee) dispatch(req godap.RequestMessage) {
	switch r := req.(type) {
	case *godap.StackTraceRequest:
		fd.mu.Lock()
		frame := fd.frame
		fd.mu.Unlock()
		fd.send(&godap.StackTraceResponse{
			Response: fd.response(req),
			Body:     godap.StackTraceResponseBody{StackFrames: []godap.StackFrame{frame}, TotalFrames: 1},
		})
	case *godap.ScopesRequest:
		fd.mu.Lock()
		scopes := fd.scopes
		fd.mu.Unlock()
		fd.send(&godap.ScopesResponse{
			Response: fd.response(req),
			Body:     godap.ScopesResponseBody{Scopes: scopes},
		})
	case *godap.VariablesRequest:
		fd.mu.Lock()
		vars := fd.variables[r.Arguments.VariablesReference]
		fd.mu.Unlock()
		fd.send(&godap.VariablesResponse{
			Response: fd.response(req),
			Body:     godap.VariablesResponseBody{Variables: vars},
		})
	case *godap.ThreadsRequest:
		fd.send(&godap.ThreadsResponse{
			Response: fd.response(req),
			Body:     godap.ThreadsResponseBody{Threads: []godap.Thread{{Id: 1, Name: "main"}}},
		})
	case *godap.EvaluateRequest:
		fd.mu.Lock()
		result, ok := fd.evals[r.Arguments.Expression]
		fd.mu.Unlock()
		resp := fd.response(req)
		resp.Success = ok
		fd.send(&godap.EvaluateResponse{
			Response: resp,
			Body:     godap.EvaluateResponseBody{Result: result},
		})
	case *godap.NextRequest:
		fd.send(&godap.NextResponse{Response: fd.response(req)})
		fd.runHook(&fd.onNext)
	case *godap.ContinueRequest:
		fd.send(&godap.ContinueResponse{Response: fd.response(req)})
		fd.runHook(&fd.onContinue)
	case *godap.SetBreakpointsRequest:
		result := make([]godap.Breakpoint, len(r.Arguments.Breakpoints))
		for i, bp := range r.Arguments.Breakpoints {
			result[i] = godap.Breakpoint{Id: 100 + i, Verified: true, Line: bp.Line}
		}
		fd.send(&godap.SetBreakpointsResponse{
			Response: fd.response(req),
			Body:     godap.SetBreakpointsResponseBody{Breakpoints: result},
		})
	case *godap.DisconnectRequest:
		fd.send(&godap.DisconnectResponse{Response: fd.response(req)})
	default:
		fd.send(&godap.Response{
			ProtocolMessage: godap.ProtocolMessage{Seq: fd.nextSeq(), Type: "response"},
			Command:         req.GetRequest().Command,
			RequestSeq:      req.GetRequest().Seq,
			Success:         true,
		})
	}
}

func (fd *fakeDebuggee) runHook(slot *func()) {
	fd.mu.Lock()
	hook := *slot
	*slot = nil
	fd.mu.Unlock()
	if hook != nil {
		hook()
	}
}

func (fd *fakeDebuggee) nextSeq() int {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	fd.seq++
	return fd.seq
}

func (fd *fakeDebuggee) response(req godap.RequestMessage) godap.Response {
	return godap.Response{
		ProtocolMessage: godap.ProtocolMessage{Seq: fd.nextSeq(), Type: "response"},
		Command:         req.GetRequest().Command,
		RequestSeq:      req.GetRequest().Seq,
		Success:         true,
	}
}

func (fd *fakeDebuggee) send(msg godap.Message) {
	if err := godap.WriteProtocolMessage(fd.conn, msg); err != nil {
		fd.t.Logf("fake debuggee write: %v", err)
	}
}

func (fd *fakeDebuggee) setFrame(id int, path string, line int) {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	fd.frame = godap.StackFrame{
		Id:     id,
		Name:   "main.main",
		Line:   line,
		Source: &godap.Source{Name: "main.go", Path: path},
	}
}

func (fd *fakeDebuggee) stop(reason string, hitIDs ...int) {
	fd.send(&godap.StoppedEvent{
		Event: fd.event("stopped"),
		Body: godap.StoppedEventBody{
			Reason:           reason,
			ThreadId:         1,
			HitBreakpointIds: hitIDs,
		},
	})
}

func (fd *fakeDebuggee) output(category, text string) {
	fd.send(&godap.OutputEvent{
		Event: fd.event("output"),
		Body:  godap.OutputEventBody{Category: category, Output: text},
	})
}

func (fd *fakeDebuggee) terminated() {
	fd.send(&godap.TerminatedEvent{Event: fd.event("terminated")})
}

func (fd *fakeDebuggee) exited(code int) {
	fd.send(&godap.ExitedEvent{
		Event: fd.event("exited"),
		Body:  godap.ExitedEventBody{ExitCode: code},
	})
}

func (fd *fakeDebuggee) event(name string) godap.Event {
	return godap.Event{
		ProtocolMessage: godap.ProtocolMessage{Seq: fd.nextSeq(), Type: "event"},
		Event:           name,
	}
}

// pauseWithLocals puts the fake debuggee at main.go:7 with a locals and a
// globals scope, the arrangement most waiter tests start from.
func (fd *fakeDebuggee) pauseWithLocals() {
	fd.setFrame(700, "/src/main.go", 7)
	fd.mu.Lock()
	defer fd.mu.Unlock()
	fd.scopes = []godap.Scope{
		{Name: "Locals", PresentationHint: "locals", VariablesReference: 100},
		{Name: "Globals", VariablesReference: 200},
	}
	fd.variables[100] = []godap.Variable{
		{Name: "i", Value: "3", Type: "int"},
		{Name: "greeting", Value: `"hello"`, Type: "string"},
	}
	fd.variables[200] = []godap.Variable{
		{Name: "startedAt", Value: "time.Time{...}", Type: "time.Time"},
	}
}

func lineBreakpoint(id int, path string, line int, spec *types.BreakpointSpec) *types.ResolvedBreakpoint {
	return &types.ResolvedBreakpoint{
		Kind:     types.BreakpointKindLine,
		Path:     path,
		Line:     line,
		ID:       id,
		Verified: true,
		Spec:     spec,
	}
}

func TestWaitStopsAtBreakpoint(t *testing.T) {
	e := newTestEngine(t)
	fd, sess := newFakeDebuggee(t, e)
	fd.pauseWithLocals()

	spec := types.BreakpointSpec{Path: "/src/main.go", Line: 7}
	w := newWaiter(e, sess, nil, 5*time.Second, "test")
	defer w.close()
	w.armed([]*types.ResolvedBreakpoint{lineBreakpoint(1, "/src/main.go", 7, &spec)},
		[]types.BreakpointSpec{spec})

	fd.stop("breakpoint", 1)

	sc, err := w.wait(context.Background())
	require.NoError(t, err)

	assert.Equal(t, sess.ID, sc.SessionID)
	assert.Equal(t, "breakpoint", sc.Reason)
	assert.Equal(t, 7, sc.Frame.Line)
	require.NotNil(t, sc.HitBreakpoint)
	assert.Equal(t, 1, sc.HitBreakpoint.ID)
	assert.Equal(t, "main", sc.Thread.Name)
	assert.Equal(t, types.SessionStatusPaused, sess.Status())

	// The scope chain is always reported in full
	require.Len(t, sc.Scopes, 2)

	// Default filter: nearest scope only
	require.Len(t, sc.Variables, 2)
	for _, v := range sc.Variables {
		assert.Equal(t, "Locals", v.Scope)
	}
}

func TestWaitVariableFilter(t *testing.T) {
	run := func(t *testing.T, filter []string) *types.StopContext {
		e := newTestEngine(t)
		fd, sess := newFakeDebuggee(t, e)
		fd.pauseWithLocals()

		spec := types.BreakpointSpec{Path: "/src/main.go", Line: 7, VariableFilter: filter}
		w := newWaiter(e, sess, nil, 5*time.Second, "test")
		defer w.close()
		w.armed([]*types.ResolvedBreakpoint{lineBreakpoint(1, "/src/main.go", 7, &spec)},
			[]types.BreakpointSpec{spec})

		fd.stop("breakpoint", 1)
		sc, err := w.wait(context.Background())
		require.NoError(t, err)
		return sc
	}

	t.Run("fragments select by name", func(t *testing.T) {
		sc := run(t, []string{"^i$"})
		require.Len(t, sc.Variables, 1)
		assert.Equal(t, "i", sc.Variables[0].Name)
	})

	t.Run("wildcard captures every scope", func(t *testing.T) {
		sc := run(t, []string{"*"})
		names := make([]string, len(sc.Variables))
		for i, v := range sc.Variables {
			names[i] = v.Name
		}
		assert.ElementsMatch(t, []string{"i", "greeting", "startedAt"}, names)
	})
}

func TestWaitTimeout(t *testing.T) {
	e := newTestEngine(t)
	_, sess := newFakeDebuggee(t, e)

	w := newWaiter(e, sess, nil, 50*time.Millisecond, "Launch server")
	defer w.close()
	w.armed(nil, nil)

	_, err := w.wait(context.Background())
	require.Error(t, err)
	assert.True(t, debugerrors.HasCode(err, debugerrors.CodeStopWaitTimeout))
	assert.Contains(t, err.Error(), "Launch server")
}

func TestWaitTerminated(t *testing.T) {
	t.Run("terminated event", func(t *testing.T) {
		e := newTestEngine(t)
		fd, sess := newFakeDebuggee(t, e)

		w := newWaiter(e, sess, nil, 5*time.Second, "test")
		defer w.close()
		w.armed(nil, nil)

		fd.terminated()

		_, err := w.wait(context.Background())
		require.Error(t, err)
		assert.True(t, debugerrors.HasCode(err, debugerrors.CodeSessionTerminated))
	})

	t.Run("exited event carries the exit code", func(t *testing.T) {
		e := newTestEngine(t)
		fd, sess := newFakeDebuggee(t, e)

		w := newWaiter(e, sess, nil, 5*time.Second, "test")
		defer w.close()
		w.armed(nil, nil)

		fd.exited(3)

		_, err := w.wait(context.Background())
		require.Error(t, err)
		assert.True(t, debugerrors.HasCode(err, debugerrors.CodeSessionTerminated))
		assert.Contains(t, err.Error(), "exit code 3")
	})
}

func TestWaitUnattributedStop(t *testing.T) {
	e := newTestEngine(t)
	fd, sess := newFakeDebuggee(t, e)
	fd.pauseWithLocals()

	w := newWaiter(e, sess, nil, 5*time.Second, "test")
	defer w.close()
	w.armed(nil, nil)

	fd.stop("exception")

	sc, err := w.wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "exception", sc.Reason)
	assert.Nil(t, sc.HitBreakpoint, "a stop no breakpoint caused is still surfaced")
	assert.NotEmpty(t, sc.Variables)
}

func TestWaitCollectsLogMessages(t *testing.T) {
	e := newTestEngine(t)
	fd, sess := newFakeDebuggee(t, e)
	fd.pauseWithLocals()
	fd.setFrame(900, "/src/main.go", 9)

	logPoint := types.BreakpointSpec{Path: "/src/main.go", Line: 5, LogMessage: "i={i}"}
	stopping := types.BreakpointSpec{Path: "/src/main.go", Line: 9}

	w := newWaiter(e, sess, nil, 5*time.Second, "test")
	defer w.close()
	w.armed([]*types.ResolvedBreakpoint{
		lineBreakpoint(1, "/src/main.go", 5, &logPoint),
		lineBreakpoint(2, "/src/main.go", 9, &stopping),
	}, []types.BreakpointSpec{logPoint, stopping})

	// The adapter interpolates pure log-points itself and forwards them as
	// output without stopping.
	fd.output("stdout", "i=0\n")
	fd.output("stdout", "unrelated noise\n")
	fd.output("stdout", "i=1\n")
	fd.stop("breakpoint", 2)

	sc, err := w.wait(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"i=0", "i=1"}, sc.CapturedLogMessages)
	require.NotNil(t, sc.HitBreakpoint)
	assert.Equal(t, 2, sc.HitBreakpoint.ID)
}

func TestWaitCaptureAndContinue(t *testing.T) {
	e := newTestEngine(t)
	fd, sess := newFakeDebuggee(t, e)
	fd.pauseWithLocals()

	probe := types.BreakpointSpec{Path: "/src/main.go", Line: 7, OnHit: types.OnHitCaptureAndContinue}
	final := types.BreakpointSpec{Path: "/src/main.go", Line: 9}

	fd.onNext = func() {
		fd.setFrame(800, "/src/main.go", 8)
		fd.stop("step")
	}
	fd.onContinue = func() {
		fd.setFrame(900, "/src/main.go", 9)
		fd.stop("breakpoint", 2)
	}

	w := newWaiter(e, sess, nil, 5*time.Second, "test")
	defer w.close()
	w.armed([]*types.ResolvedBreakpoint{
		lineBreakpoint(1, "/src/main.go", 7, &probe),
		lineBreakpoint(2, "/src/main.go", 9, &final),
	}, []types.BreakpointSpec{probe, final})

	fd.stop("breakpoint", 1)

	sc, err := w.wait(context.Background())
	require.NoError(t, err)

	// The wait ends at the breaking breakpoint, not the probe
	require.NotNil(t, sc.HitBreakpoint)
	assert.Equal(t, 2, sc.HitBreakpoint.ID)
	assert.Equal(t, 9, sc.Frame.Line)

	// The probe stepped over its line before capturing
	require.Len(t, sc.ProbeCaptures, 1)
	pc := sc.ProbeCaptures[0]
	assert.Equal(t, 1, pc.Breakpoint.ID)
	assert.Equal(t, 7, pc.FromLine)
	assert.Equal(t, 8, pc.Line)
	assert.NotEmpty(t, pc.Variables)
}

func TestWaitAutoStepOver(t *testing.T) {
	e := newTestEngine(t)
	fd, sess := newFakeDebuggee(t, e)
	fd.pauseWithLocals()

	spec := types.BreakpointSpec{Path: "/src/main.go", Line: 7, AutoStepOver: true,
		VariableFilter: []string{"^i$"}}

	fd.onNext = func() {
		fd.mu.Lock()
		fd.variables[100] = []godap.Variable{{Name: "i", Value: "4", Type: "int"}}
		fd.mu.Unlock()
		fd.setFrame(800, "/src/main.go", 8)
		fd.stop("step")
	}

	w := newWaiter(e, sess, nil, 5*time.Second, "test")
	defer w.close()
	w.armed([]*types.ResolvedBreakpoint{lineBreakpoint(1, "/src/main.go", 7, &spec)},
		[]types.BreakpointSpec{spec})

	fd.stop("breakpoint", 1)

	sc, err := w.wait(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 8, sc.Frame.Line, "the terminal frame is the post-step one")
	require.NotNil(t, sc.StepOverCapture)
	assert.Equal(t, 7, sc.StepOverCapture.FromLine)
	assert.Equal(t, 8, sc.StepOverCapture.ToLine)
	require.Len(t, sc.StepOverCapture.Before, 1)
	assert.Equal(t, "3", sc.StepOverCapture.Before[0].Value)
	require.Len(t, sc.StepOverCapture.After, 1)
	assert.Equal(t, "4", sc.StepOverCapture.After[0].Value)
}

func TestWaitCaptureAndStopDebugging(t *testing.T) {
	e := newTestEngine(t)
	fd, sess := newFakeDebuggee(t, e)
	fd.pauseWithLocals()

	spec := types.BreakpointSpec{Path: "/src/main.go", Line: 7,
		OnHit: types.OnHitCaptureAndStopDebugging}

	fd.onNext = func() {
		fd.setFrame(800, "/src/main.go", 8)
		fd.stop("step")
	}

	w := newWaiter(e, sess, nil, 5*time.Second, "test")
	defer w.close()
	w.armed([]*types.ResolvedBreakpoint{lineBreakpoint(1, "/src/main.go", 7, &spec)},
		[]types.BreakpointSpec{spec})

	fd.stop("breakpoint", 1)

	sc, err := w.wait(context.Background())
	require.NoError(t, err)

	assert.True(t, sc.SessionTerminated)
	assert.Equal(t, 8, sc.Frame.Line)
	assert.NotEmpty(t, sc.Variables)
	assert.Equal(t, 0, e.registry.Count(), "the session is gone after the capture")
}

func TestGetVariables(t *testing.T) {
	e := newTestEngine(t)
	fd, sess := newFakeDebuggee(t, e)
	fd.pauseWithLocals()

	_, err := e.GetVariables(sess.ID, nil)
	require.Error(t, err, "the session has not stopped yet")
	assert.True(t, debugerrors.HasCode(err, debugerrors.CodeSessionNotPaused))

	sess.MarkStopped(1, "pause")

	vars, err := e.GetVariables(sess.ID, nil)
	require.NoError(t, err)
	require.Len(t, vars, 2)
	assert.Equal(t, "Locals", vars[0].Scope)
}

func TestEvaluate(t *testing.T) {
	e := newTestEngine(t)
	fd, sess := newFakeDebuggee(t, e)
	fd.pauseWithLocals()
	fd.mu.Lock()
	fd.evals["i + 1"] = "4"
	fd.mu.Unlock()
	sess.MarkStopped(1, "breakpoint")

	v, err := e.Evaluate(sess.ID, "i + 1", "")
	require.NoError(t, err)
	assert.Equal(t, "i + 1", v.Name)
	assert.Equal(t, "4", v.Value)

	_, err = e.Evaluate(sess.ID, "no.such", "")
	require.Error(t, err)
	assert.True(t, debugerrors.HasCode(err, debugerrors.CodeAdapterProtocol))
}

func TestEvaluateGate(t *testing.T) {
	e := newTestEngine(t)
	e.cfg.AllowEvaluate = false

	_, err := e.Evaluate("", "1+1", "")
	require.Error(t, err)
	assert.True(t, debugerrors.HasCode(err, debugerrors.CodePermissionDenied))
}

func TestResumeWithoutWaiting(t *testing.T) {
	e := newTestEngine(t)
	_, sess := newFakeDebuggee(t, e)
	sess.MarkStopped(1, "breakpoint")

	res, err := e.ResumeDebugSessionWithoutWaiting(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, res.SessionID)
	assert.Equal(t, "test session", res.SessionName)
	assert.Equal(t, types.SessionStatusRunning, sess.Status())

	// Resuming a running session is a no-op success
	_, err = e.ResumeDebugSessionWithoutWaiting(sess.ID)
	require.NoError(t, err)
}

func TestStopSession(t *testing.T) {
	e := newTestEngine(t)
	_, sess := newFakeDebuggee(t, e)

	require.NoError(t, e.StopSession(sess.ID, true))
	assert.Equal(t, 0, e.registry.Count())
	assert.Equal(t, types.SessionStatusTerminated, sess.Status())
}
