package dap

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/go-dap"
	"github.com/sirupsen/logrus"
)

const (
	// defaultRequestTimeout bounds ordinary request/response round trips.
	defaultRequestTimeout = 10 * time.Second
)

// Subscription is a live feed of adapter-initiated traffic: events and
// reverse requests. Responses to our own requests are routed to the
// requester and never appear here.
//
// Delivery is non-blocking. A subscriber that falls behind loses messages,
// so size the buffer for the burstiest consumer.
type Subscription struct {
	C chan dap.Message

	client *Client
	id     int
	once   sync.Once
}

// Close detaches the subscription and closes its channel. Messages already
// queued may still be drained.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.client.unsubscribe(s.id)
		close(s.C)
	})
}

// Client is a DAP client that handles request/response correlation and
// event distribution for one adapter connection.
type Client struct {
	transport *Transport

	mu              sync.Mutex
	pendingRequests map[int]chan dap.Message

	subsMu    sync.RWMutex
	subs      map[int]*Subscription
	nextSubID int

	capsMu       sync.RWMutex
	capabilities dap.Capabilities

	initialized     chan struct{}
	initializedOnce sync.Once

	// launchCh holds the in-flight launch or attach response channel.
	// Some adapters (debugpy, js-debug) answer launch only after
	// configurationDone, so the response is awaited separately from the send.
	launchCh  chan dap.Message
	launchCmd string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewClient creates a client over the given transport and starts its read loop
func NewClient(transport *Transport) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		transport:       transport,
		pendingRequests: make(map[int]chan dap.Message),
		subs:            make(map[int]*Subscription),
		initialized:     make(chan struct{}),
		ctx:             ctx,
		cancel:          cancel,
	}

	c.wg.Add(1)
	go c.readLoop()

	return c
}

// Subscribe registers a feed of adapter events and reverse requests.
// The buffer should cover the subscriber's worst burst; output events from
// a chatty debuggee arrive faster than most consumers poll.
func (c *Client) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 64
	}
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	c.nextSubID++
	sub := &Subscription{
		C:      make(chan dap.Message, buffer),
		client: c,
		id:     c.nextSubID,
	}
	c.subs[sub.id] = sub
	return sub
}

func (c *Client) unsubscribe(id int) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	delete(c.subs, id)
}

func (c *Client) broadcast(msg dap.Message) {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	for _, sub := range c.subs {
		select {
		case sub.C <- msg:
		default:
			logrus.Warnf("dap: subscriber %d full, dropping %T", sub.id, msg)
		}
	}
}

// readLoop continuously reads messages from the transport
func (c *Client) readLoop() {
	defer c.wg.Done()

	consecutiveErrors := 0
	const maxConsecutiveErrors = 5

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		msg, err := c.transport.Receive()
		if err != nil {
			select {
			case <-c.ctx.Done():
				return
			default:
			}

			consecutiveErrors++
			logrus.Debugf("dap: transport error (attempt %d/%d): %v", consecutiveErrors, maxConsecutiveErrors, err)

			// Persistent failures mean the adapter is gone. Unblock every
			// waiter instead of spinning on a dead connection.
			if consecutiveErrors >= maxConsecutiveErrors {
				logrus.Errorf("dap: too many consecutive transport errors, stopping read loop")
				c.failPending()
				return
			}
			continue
		}
		consecutiveErrors = 0

		c.handleMessage(msg)
	}
}

// failPending closes every in-flight response channel so waiters observe
// a closed connection rather than a timeout.
func (c *Client) failPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for seq, ch := range c.pendingRequests {
		close(ch)
		delete(c.pendingRequests, seq)
	}
}

// handleMessage routes one adapter message. Responses go to the matching
// requester; events and reverse requests fan out to subscribers.
func (c *Client) handleMessage(msg dap.Message) {
	switch m := msg.(type) {
	case dap.ResponseMessage:
		if init, ok := msg.(*dap.InitializeResponse); ok {
			c.capsMu.Lock()
			c.capabilities = init.Body
			c.capsMu.Unlock()
		}

		reqSeq := m.GetResponse().RequestSeq
		c.mu.Lock()
		ch, ok := c.pendingRequests[reqSeq]
		if ok {
			delete(c.pendingRequests, reqSeq)
		}
		c.mu.Unlock()

		if ok {
			ch <- msg
		} else {
			logrus.Debugf("dap: response for unknown request seq %d (%T)", reqSeq, msg)
		}

	case dap.EventMessage:
		if _, ok := msg.(*dap.InitializedEvent); ok {
			c.initializedOnce.Do(func() { close(c.initialized) })
		}
		c.broadcast(msg)

	case dap.RequestMessage:
		// Reverse request from the adapter (startDebugging, runInTerminal).
		// Subscribers decide whether to act.
		c.broadcast(msg)

	default:
		logrus.Debugf("dap: unhandled message type %T", msg)
	}
}

// sendRequestAsync assigns a sequence number, registers a response channel,
// and sends the request without waiting.
func (c *Client) sendRequestAsync(req dap.RequestMessage) (chan dap.Message, int, error) {
	seq := c.transport.NextSeq()
	req.GetRequest().Seq = seq

	respCh := make(chan dap.Message, 1)
	c.mu.Lock()
	c.pendingRequests[seq] = respCh
	c.mu.Unlock()

	if err := c.transport.Send(req); err != nil {
		c.mu.Lock()
		delete(c.pendingRequests, seq)
		c.mu.Unlock()
		return nil, 0, err
	}

	return respCh, seq, nil
}

// sendRequest sends a request and waits for its response
func (c *Client) sendRequest(req dap.RequestMessage, timeout time.Duration) (dap.Message, error) {
	respCh, seq, err := c.sendRequestAsync(req)
	if err != nil {
		return nil, err
	}
	return c.awaitResponse(respCh, seq, req.GetRequest().Command, timeout)
}

func (c *Client) awaitResponse(respCh chan dap.Message, seq int, command string, timeout time.Duration) (dap.Message, error) {
	select {
	case resp, ok := <-respCh:
		if !ok {
			return nil, fmt.Errorf("connection to debug adapter closed while waiting for %s response", command)
		}
		if err := responseError(command, resp); err != nil {
			return nil, err
		}
		return resp, nil
	case <-time.After(timeout):
		c.mu.Lock()
		delete(c.pendingRequests, seq)
		c.mu.Unlock()
		return nil, fmt.Errorf("timeout after %s waiting for %s response", timeout, command)
	case <-c.ctx.Done():
		return nil, fmt.Errorf("client closed while waiting for %s response", command)
	}
}

// responseError converts a failed response into an error carrying the
// adapter's own message verbatim. DAP error bodies use {placeholder}
// templates that must be expanded before display.
func responseError(command string, msg dap.Message) error {
	if er, ok := msg.(*dap.ErrorResponse); ok {
		if er.Body.Error != nil && er.Body.Error.Format != "" {
			return fmt.Errorf("%s failed: %s", command, renderErrorMessage(er.Body.Error))
		}
		if er.Message != "" {
			return fmt.Errorf("%s failed: %s", command, er.Message)
		}
		return fmt.Errorf("%s failed", command)
	}
	if rm, ok := msg.(dap.ResponseMessage); ok {
		resp := rm.GetResponse()
		if !resp.Success {
			if resp.Message != "" {
				return fmt.Errorf("%s failed: %s", command, resp.Message)
			}
			return fmt.Errorf("%s failed", command)
		}
	}
	return nil
}

func renderErrorMessage(em *dap.ErrorMessage) string {
	out := em.Format
	for name, value := range em.Variables {
		out = strings.ReplaceAll(out, "{"+name+"}", value)
	}
	return out
}

// --- Protocol wrappers ---

// Initialize performs the DAP initialize handshake and returns the
// adapter's advertised capabilities.
func (c *Client) Initialize() (*dap.Capabilities, error) {
	req := &dap.InitializeRequest{
		Request: dap.Request{
			ProtocolMessage: dap.ProtocolMessage{Type: "request"},
			Command:         "initialize",
		},
		Arguments: dap.InitializeRequestArguments{
			ClientID:                      "breakpoint-mcp",
			ClientName:                    "Breakpoint MCP Server",
			AdapterID:                     "breakpoint-mcp",
			Locale:                        "en-US",
			LinesStartAt1:                 true,
			ColumnsStartAt1:               true,
			PathFormat:                    "path",
			SupportsVariableType:          true,
			SupportsVariablePaging:        true,
			SupportsRunInTerminalRequest:  false,
			SupportsStartDebuggingRequest: true,
		},
	}

	resp, err := c.sendRequest(req, defaultRequestTimeout)
	if err != nil {
		return nil, err
	}

	initResp, ok := resp.(*dap.InitializeResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected response type for initialize: %T", resp)
	}

	caps := initResp.Body
	return &caps, nil
}

// WaitForInitialized blocks until the adapter sends the initialized event
func (c *Client) WaitForInitialized(timeout time.Duration) error {
	select {
	case <-c.initialized:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timeout after %s waiting for initialized event", timeout)
	case <-c.ctx.Done():
		return fmt.Errorf("client closed while waiting for initialized event")
	}
}

// LaunchAsync sends a launch request without waiting for the response.
// debugpy and js-debug answer launch only after configurationDone, so the
// response is collected later with WaitForLaunchResponse.
func (c *Client) LaunchAsync(launchConfig map[string]interface{}) error {
	return c.startAsync("launch", launchConfig)
}

// AttachAsync sends an attach request without waiting for the response
func (c *Client) AttachAsync(attachConfig map[string]interface{}) error {
	return c.startAsync("attach", attachConfig)
}

func (c *Client) startAsync(command string, config map[string]interface{}) error {
	args, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal %s configuration: %w", command, err)
	}

	var req dap.RequestMessage
	if command == "attach" {
		req = &dap.AttachRequest{
			Request: dap.Request{
				ProtocolMessage: dap.ProtocolMessage{Type: "request"},
				Command:         "attach",
			},
			Arguments: args,
		}
	} else {
		req = &dap.LaunchRequest{
			Request: dap.Request{
				ProtocolMessage: dap.ProtocolMessage{Type: "request"},
				Command:         "launch",
			},
			Arguments: args,
		}
	}

	respCh, _, err := c.sendRequestAsync(req)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.launchCh = respCh
	c.launchCmd = command
	c.mu.Unlock()
	return nil
}

// WaitForLaunchResponse collects the response to a prior LaunchAsync or
// AttachAsync call.
func (c *Client) WaitForLaunchResponse(timeout time.Duration) error {
	c.mu.Lock()
	respCh := c.launchCh
	command := c.launchCmd
	c.launchCh = nil
	c.mu.Unlock()

	if respCh == nil {
		return fmt.Errorf("no launch or attach request in flight")
	}

	select {
	case resp, ok := <-respCh:
		if !ok {
			return fmt.Errorf("connection to debug adapter closed while waiting for %s response", command)
		}
		return responseError(command, resp)
	case <-time.After(timeout):
		return fmt.Errorf("timeout after %s waiting for %s response", timeout, command)
	case <-c.ctx.Done():
		return fmt.Errorf("client closed while waiting for %s response", command)
	}
}

// ConfigurationDone tells the adapter that breakpoint setup is finished
func (c *Client) ConfigurationDone() error {
	req := &dap.ConfigurationDoneRequest{
		Request: dap.Request{
			ProtocolMessage: dap.ProtocolMessage{Type: "request"},
			Command:         "configurationDone",
		},
	}
	_, err := c.sendRequest(req, defaultRequestTimeout)
	return err
}

// SetBreakpoints replaces the full set of breakpoints for one source file.
// DAP semantics: the request is a replacement, not an addition, so callers
// must send every breakpoint for the file in a single call.
func (c *Client) SetBreakpoints(path string, bps []dap.SourceBreakpoint) ([]dap.Breakpoint, error) {
	req := &dap.SetBreakpointsRequest{
		Request: dap.Request{
			ProtocolMessage: dap.ProtocolMessage{Type: "request"},
			Command:         "setBreakpoints",
		},
		Arguments: dap.SetBreakpointsArguments{
			Source: dap.Source{
				Name: pathBase(path),
				Path: path,
			},
			Breakpoints: bps,
		},
	}

	resp, err := c.sendRequest(req, defaultRequestTimeout)
	if err != nil {
		return nil, err
	}

	bpResp, ok := resp.(*dap.SetBreakpointsResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected response type for setBreakpoints: %T", resp)
	}
	return bpResp.Body.Breakpoints, nil
}

// SetFunctionBreakpoints replaces the full set of function breakpoints
func (c *Client) SetFunctionBreakpoints(bps []dap.FunctionBreakpoint) ([]dap.Breakpoint, error) {
	req := &dap.SetFunctionBreakpointsRequest{
		Request: dap.Request{
			ProtocolMessage: dap.ProtocolMessage{Type: "request"},
			Command:         "setFunctionBreakpoints",
		},
		Arguments: dap.SetFunctionBreakpointsArguments{
			Breakpoints: bps,
		},
	}

	resp, err := c.sendRequest(req, defaultRequestTimeout)
	if err != nil {
		return nil, err
	}

	bpResp, ok := resp.(*dap.SetFunctionBreakpointsResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected response type for setFunctionBreakpoints: %T", resp)
	}
	return bpResp.Body.Breakpoints, nil
}

// Threads lists the debuggee's threads
func (c *Client) Threads() ([]dap.Thread, error) {
	req := &dap.ThreadsRequest{
		Request: dap.Request{
			ProtocolMessage: dap.ProtocolMessage{Type: "request"},
			Command:         "threads",
		},
	}

	resp, err := c.sendRequest(req, defaultRequestTimeout)
	if err != nil {
		return nil, err
	}

	threadsResp, ok := resp.(*dap.ThreadsResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected response type for threads: %T", resp)
	}
	return threadsResp.Body.Threads, nil
}

// StackTrace returns stack frames for a stopped thread
func (c *Client) StackTrace(threadID, startFrame, levels int) ([]dap.StackFrame, error) {
	req := &dap.StackTraceRequest{
		Request: dap.Request{
			ProtocolMessage: dap.ProtocolMessage{Type: "request"},
			Command:         "stackTrace",
		},
		Arguments: dap.StackTraceArguments{
			ThreadId:   threadID,
			StartFrame: startFrame,
			Levels:     levels,
		},
	}

	resp, err := c.sendRequest(req, defaultRequestTimeout)
	if err != nil {
		return nil, err
	}

	stResp, ok := resp.(*dap.StackTraceResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected response type for stackTrace: %T", resp)
	}
	return stResp.Body.StackFrames, nil
}

// Scopes returns the variable scopes of a stack frame
func (c *Client) Scopes(frameID int) ([]dap.Scope, error) {
	req := &dap.ScopesRequest{
		Request: dap.Request{
			ProtocolMessage: dap.ProtocolMessage{Type: "request"},
			Command:         "scopes",
		},
		Arguments: dap.ScopesArguments{
			FrameId: frameID,
		},
	}

	resp, err := c.sendRequest(req, defaultRequestTimeout)
	if err != nil {
		return nil, err
	}

	scopesResp, ok := resp.(*dap.ScopesResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected response type for scopes: %T", resp)
	}
	return scopesResp.Body.Scopes, nil
}

// Variables expands a variables reference from a scope or structured value
func (c *Client) Variables(reference int) ([]dap.Variable, error) {
	req := &dap.VariablesRequest{
		Request: dap.Request{
			ProtocolMessage: dap.ProtocolMessage{Type: "request"},
			Command:         "variables",
		},
		Arguments: dap.VariablesArguments{
			VariablesReference: reference,
		},
	}

	resp, err := c.sendRequest(req, defaultRequestTimeout)
	if err != nil {
		return nil, err
	}

	varsResp, ok := resp.(*dap.VariablesResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected response type for variables: %T", resp)
	}
	return varsResp.Body.Variables, nil
}

// Evaluate evaluates an expression in the context of a stack frame
func (c *Client) Evaluate(expression string, frameID int, context string) (*dap.EvaluateResponseBody, error) {
	if context == "" {
		context = "repl"
	}
	req := &dap.EvaluateRequest{
		Request: dap.Request{
			ProtocolMessage: dap.ProtocolMessage{Type: "request"},
			Command:         "evaluate",
		},
		Arguments: dap.EvaluateArguments{
			Expression: expression,
			FrameId:    frameID,
			Context:    context,
		},
	}

	resp, err := c.sendRequest(req, defaultRequestTimeout)
	if err != nil {
		return nil, err
	}

	evalResp, ok := resp.(*dap.EvaluateResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected response type for evaluate: %T", resp)
	}
	return &evalResp.Body, nil
}

// Continue resumes execution of a thread. Returns whether all threads resumed.
func (c *Client) Continue(threadID int) (bool, error) {
	req := &dap.ContinueRequest{
		Request: dap.Request{
			ProtocolMessage: dap.ProtocolMessage{Type: "request"},
			Command:         "continue",
		},
		Arguments: dap.ContinueArguments{
			ThreadId: threadID,
		},
	}

	resp, err := c.sendRequest(req, defaultRequestTimeout)
	if err != nil {
		return false, err
	}

	contResp, ok := resp.(*dap.ContinueResponse)
	if !ok {
		return false, fmt.Errorf("unexpected response type for continue: %T", resp)
	}
	return contResp.Body.AllThreadsContinued, nil
}

// Next steps over the current line on a thread
func (c *Client) Next(threadID int) error {
	req := &dap.NextRequest{
		Request: dap.Request{
			ProtocolMessage: dap.ProtocolMessage{Type: "request"},
			Command:         "next",
		},
		Arguments: dap.NextArguments{
			ThreadId: threadID,
		},
	}
	_, err := c.sendRequest(req, defaultRequestTimeout)
	return err
}

// Terminate asks the adapter to gracefully end the debuggee. Only valid
// when the adapter advertises supportsTerminateRequest.
func (c *Client) Terminate() error {
	req := &dap.TerminateRequest{
		Request: dap.Request{
			ProtocolMessage: dap.ProtocolMessage{Type: "request"},
			Command:         "terminate",
		},
	}
	_, err := c.sendRequest(req, defaultRequestTimeout)
	return err
}

// Disconnect ends the debug session
func (c *Client) Disconnect(terminateDebuggee bool) error {
	req := &dap.DisconnectRequest{
		Request: dap.Request{
			ProtocolMessage: dap.ProtocolMessage{Type: "request"},
			Command:         "disconnect",
		},
		Arguments: &dap.DisconnectArguments{
			TerminateDebuggee: terminateDebuggee,
		},
	}
	_, err := c.sendRequest(req, defaultRequestTimeout)
	return err
}

// RespondToStartDebugging acknowledges an adapter's startDebugging reverse
// request. The adapter blocks on this response, so it must be sent even
// when the child session cannot be created.
func (c *Client) RespondToStartDebugging(reqSeq int, success bool, message string) error {
	resp := &dap.StartDebuggingResponse{
		Response: dap.Response{
			ProtocolMessage: dap.ProtocolMessage{
				Seq:  c.transport.NextSeq(),
				Type: "response",
			},
			Command:    "startDebugging",
			RequestSeq: reqSeq,
			Success:    success,
			Message:    message,
		},
	}
	return c.transport.Send(resp)
}

// Capabilities returns the adapter capabilities from the initialize handshake
func (c *Client) Capabilities() dap.Capabilities {
	c.capsMu.RLock()
	defer c.capsMu.RUnlock()
	return c.capabilities
}

// SupportsFunctionBreakpoints reports the supportsFunctionBreakpoints capability
func (c *Client) SupportsFunctionBreakpoints() bool {
	return c.Capabilities().SupportsFunctionBreakpoints
}

// SupportsTerminate reports the supportsTerminateRequest capability
func (c *Client) SupportsTerminate() bool {
	return c.Capabilities().SupportsTerminateRequest
}

// Close shuts down the client and its transport
func (c *Client) Close() error {
	c.cancel()
	err := c.transport.Close()
	c.wg.Wait()

	c.subsMu.Lock()
	subs := make([]*Subscription, 0, len(c.subs))
	for _, sub := range c.subs {
		subs = append(subs, sub)
	}
	c.subsMu.Unlock()
	for _, sub := range subs {
		sub.Close()
	}

	return err
}

func pathBase(path string) string {
	idx := strings.LastIndexAny(path, "/\\")
	if idx < 0 {
		return path
	}
	return path[idx+1:]
}
