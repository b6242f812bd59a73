package dap

import (
	"bufio"
	"net"
	"sync"
	"testing"
	"time"

	godap "github.com/google/go-dap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAdapter is the server end of an in-memory DAP connection. Handlers are
// keyed by request command; unhandled requests get a generic success response.
type fakeAdapter struct {
	t    *testing.T
	conn net.Conn
	rd   *bufio.Reader

	mu       sync.Mutex
	seq      int
	handlers map[string]func(req godap.RequestMessage)
}

func newFakeAdapter(t *testing.T) (*fakeAdapter, *Client) {
	t.Helper()
	clientConn, serverConn := net.Pipe()

	fa := &fakeAdapter{
		t:        t,
		conn:     serverConn,
		rd:       bufio.NewReader(serverConn),
		handlers: map[string]func(req godap.RequestMessage){},
	}
	go fa.serve()

	client := NewClient(NewPipeTransport(clientConn))
	t.Cleanup(func() { _ = client.Close() })
	return fa, client
}

func (fa *fakeAdapter) serve() {
	for {
		msg, err := godap.ReadProtocolMessage(fa.rd)
		if err != nil {
			return
		}
		req, ok := msg.(godap.RequestMessage)
		if !ok {
			continue
		}
		command := req.GetRequest().Command

		fa.mu.Lock()
		handler := fa.handlers[command]
		fa.mu.Unlock()

		if handler != nil {
			handler(req)
			continue
		}
		fa.respondOK(req)
	}
}

func (fa *fakeAdapter) handle(command string, h func(req godap.RequestMessage)) {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	fa.handlers[command] = h
}

func (fa *fakeAdapter) nextSeq() int {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	fa.seq++
	return fa.seq
}

func (fa *fakeAdapter) send(msg godap.Message) {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	if err := godap.WriteProtocolMessage(fa.conn, msg); err != nil {
		fa.t.Logf("fake adapter write: %v", err)
	}
}

func (fa *fakeAdapter) response(req godap.RequestMessage, success bool) godap.Response {
	return godap.Response{
		ProtocolMessage: godap.ProtocolMessage{Seq: fa.nextSeq(), Type: "response"},
		Command:         req.GetRequest().Command,
		RequestSeq:      req.GetRequest().Seq,
		Success:         success,
	}
}

func (fa *fakeAdapter) respondOK(req godap.RequestMessage) {
	switch req.(type) {
	case *godap.ContinueRequest:
		fa.send(&godap.ContinueResponse{Response: fa.response(req, true)})
	case *godap.NextRequest:
		fa.send(&godap.NextResponse{Response: fa.response(req, true)})
	case *godap.ConfigurationDoneRequest:
		fa.send(&godap.ConfigurationDoneResponse{Response: fa.response(req, true)})
	case *godap.DisconnectRequest:
		fa.send(&godap.DisconnectResponse{Response: fa.response(req, true)})
	default:
		fa.send(&godap.Response{
			ProtocolMessage: godap.ProtocolMessage{Seq: fa.nextSeq(), Type: "response"},
			Command:         req.GetRequest().Command,
			RequestSeq:      req.GetRequest().Seq,
			Success:         true,
		})
	}
}

func (fa *fakeAdapter) event(body godap.Message) {
	fa.send(body)
}

func TestClientInitialize(t *testing.T) {
	fa, client := newFakeAdapter(t)

	fa.handle("initialize", func(req godap.RequestMessage) {
		fa.send(&godap.InitializeResponse{
			Response: fa.response(req, true),
			Body: godap.Capabilities{
				SupportsFunctionBreakpoints: true,
				SupportsTerminateRequest:    true,
			},
		})
	})

	caps, err := client.Initialize()
	require.NoError(t, err)
	assert.True(t, caps.SupportsFunctionBreakpoints)

	// Capabilities are retained for later queries
	assert.True(t, client.SupportsFunctionBreakpoints())
	assert.True(t, client.SupportsTerminate())
}

func TestClientWaitForInitialized(t *testing.T) {
	fa, client := newFakeAdapter(t)

	go func() {
		time.Sleep(20 * time.Millisecond)
		fa.event(&godap.InitializedEvent{
			Event: godap.Event{
				ProtocolMessage: godap.ProtocolMessage{Seq: fa.nextSeq(), Type: "event"},
				Event:           "initialized",
			},
		})
	}()

	require.NoError(t, client.WaitForInitialized(2*time.Second))
}

func TestClientSetBreakpoints(t *testing.T) {
	fa, client := newFakeAdapter(t)

	fa.handle("setBreakpoints", func(req godap.RequestMessage) {
		sbr := req.(*godap.SetBreakpointsRequest)
		assert.Equal(t, "/src/main.go", sbr.Arguments.Source.Path)
		assert.Equal(t, "main.go", sbr.Arguments.Source.Name)

		result := make([]godap.Breakpoint, len(sbr.Arguments.Breakpoints))
		for i, bp := range sbr.Arguments.Breakpoints {
			result[i] = godap.Breakpoint{Id: i + 1, Verified: true, Line: bp.Line}
		}
		fa.send(&godap.SetBreakpointsResponse{
			Response: fa.response(req, true),
			Body:     godap.SetBreakpointsResponseBody{Breakpoints: result},
		})
	})

	bps, err := client.SetBreakpoints("/src/main.go", []godap.SourceBreakpoint{{Line: 7}, {Line: 12}})
	require.NoError(t, err)
	require.Len(t, bps, 2)
	assert.Equal(t, 1, bps[0].Id)
	assert.True(t, bps[1].Verified)
}

func TestClientErrorResponseCarriesAdapterMessage(t *testing.T) {
	fa, client := newFakeAdapter(t)

	fa.handle("setFunctionBreakpoints", func(req godap.RequestMessage) {
		fa.send(&godap.ErrorResponse{
			Response: fa.response(req, false),
			Body: godap.ErrorResponseBody{
				Error: &godap.ErrorMessage{
					Format:    "unsupported breakpoint type: {kind}",
					Variables: map[string]string{"kind": "function"},
				},
			},
		})
	})

	_, err := client.SetFunctionBreakpoints([]godap.FunctionBreakpoint{{Name: "main.run"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported breakpoint type: function",
		"the adapter's message must survive verbatim with placeholders expanded")
}

func TestClientLaunchResponseAfterConfigurationDone(t *testing.T) {
	fa, client := newFakeAdapter(t)

	// Respond to launch only when configurationDone arrives, the way debugpy
	// and js-debug sequence their startup.
	var pendingLaunch godap.RequestMessage
	var mu sync.Mutex
	fa.handle("launch", func(req godap.RequestMessage) {
		mu.Lock()
		pendingLaunch = req
		mu.Unlock()
	})
	fa.handle("configurationDone", func(req godap.RequestMessage) {
		fa.send(&godap.ConfigurationDoneResponse{Response: fa.response(req, true)})
		mu.Lock()
		launch := pendingLaunch
		mu.Unlock()
		fa.send(&godap.LaunchResponse{Response: fa.response(launch, true)})
	})

	require.NoError(t, client.LaunchAsync(map[string]interface{}{"program": "./main"}))
	require.NoError(t, client.ConfigurationDone())
	require.NoError(t, client.WaitForLaunchResponse(2*time.Second))
}

func TestClientEventBroadcast(t *testing.T) {
	fa, client := newFakeAdapter(t)

	a := client.Subscribe(16)
	b := client.Subscribe(16)
	defer a.Close()
	defer b.Close()

	fa.event(&godap.StoppedEvent{
		Event: godap.Event{
			ProtocolMessage: godap.ProtocolMessage{Seq: fa.nextSeq(), Type: "event"},
			Event:           "stopped",
		},
		Body: godap.StoppedEventBody{Reason: "breakpoint", ThreadId: 1},
	})

	for _, sub := range []*Subscription{a, b} {
		select {
		case msg := <-sub.C:
			ev, ok := msg.(*godap.StoppedEvent)
			require.True(t, ok)
			assert.Equal(t, "breakpoint", ev.Body.Reason)
		case <-time.After(2 * time.Second):
			t.Fatal("subscriber did not receive the event")
		}
	}
}

func TestClientSubscriptionCloseIsIdempotent(t *testing.T) {
	_, client := newFakeAdapter(t)

	sub := client.Subscribe(1)
	sub.Close()
	sub.Close()
}

func TestClientCloseUnblocksPendingRequest(t *testing.T) {
	fa, client := newFakeAdapter(t)

	// Swallow the request so the response never comes
	fa.handle("threads", func(req godap.RequestMessage) {})

	done := make(chan error, 1)
	go func() {
		_, err := client.Threads()
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	_ = client.Close()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("pending request did not unblock on close")
	}
}
