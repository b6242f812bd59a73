package engine

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	debugerrors "github.com/dkattan/breakpoint-mcp/internal/errors"
	"github.com/dkattan/breakpoint-mcp/pkg/types"
)

// maxActionBodyBytes bounds how much of an HTTP response body is returned to
// the caller.
const maxActionBodyBytes = 64 * 1024

// runAction executes a server-ready side action. Errors are returned to the
// caller so the wait loop can record them without aborting the wait.
func (e *Engine) runAction(ctx context.Context, action *types.ServerReadyAction) error {
	switch action.Kind {
	case types.ActionShellCommand:
		return e.runShellAction(ctx, action)
	case types.ActionHTTPRequest:
		return e.runHTTPAction(ctx, action)
	case types.ActionVSCodeCommand:
		return e.runVSCodeAction(ctx, action)
	default:
		return debugerrors.InvalidParameter("action.kind", string(action.Kind),
			"one of shellCommand, httpRequest, vscodeCommand")
	}
}

func (e *Engine) runShellAction(ctx context.Context, action *types.ServerReadyAction) error {
	if action.Command == "" {
		return debugerrors.MissingParameter("action.command", "the shell command to run")
	}
	cmd := exec.CommandContext(ctx, action.Command, action.Args...)
	cmd.Dir = action.Cwd

	if action.Background {
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("failed to start command '%s': %w", action.Command, err)
		}
		goSafe("action-wait", func() {
			if err := cmd.Wait(); err != nil {
				logrus.Warnf("Background action '%s' exited: %v", action.Command, err)
			}
		})
		// Give the background process a moment to come up before the wait
		// loop resumes the debuggee toward it.
		time.Sleep(e.cfg.ServerReadyGrace())
		logrus.Infof("Started background action '%s' (pid %d)", action.Command, cmd.Process.Pid)
		return nil
	}

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("command '%s' failed: %w (output: %s)",
			action.Command, err, strings.TrimSpace(string(output)))
	}
	logrus.Debugf("Action command '%s' completed", action.Command)
	return nil
}

func (e *Engine) runHTTPAction(ctx context.Context, action *types.ServerReadyAction) error {
	_, err := e.HTTPRequest(ctx, HTTPRequestParams{
		URL:     action.URL,
		Method:  action.Method,
		Headers: action.Headers,
		Body:    action.Body,
	})
	return err
}

func (e *Engine) runVSCodeAction(ctx context.Context, action *types.ServerReadyAction) error {
	if action.CommandID == "" {
		return debugerrors.MissingParameter("action.commandId", "the IDE command identifier to invoke")
	}
	if e.invoker == nil {
		return fmt.Errorf("cannot invoke IDE command '%s': no IDE command invoker registered", action.CommandID)
	}
	return e.invoker.InvokeCommand(ctx, action.CommandID, action.CommandArgs)
}

// HTTPRequestParams describes a one-shot HTTP request issued on behalf of a
// debugging session, typically to poke a paused-at-breakpoint server route.
type HTTPRequestParams struct {
	URL            string            `json:"url"`
	Method         string            `json:"method,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	Body           string            `json:"body,omitempty"`
	TimeoutSeconds int               `json:"timeoutSeconds,omitempty"`
}

// HTTPRequestResult is the wire-visible outcome. Non-2xx statuses are
// results, not errors: a 500 from the route under debug is exactly what the
// caller wants to see.
type HTTPRequestResult struct {
	Status     string `json:"status"`
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body,omitempty"`
}

// HTTPRequest performs the request and returns the response status and a
// bounded prefix of the body. Only transport-level failures are errors.
func (e *Engine) HTTPRequest(ctx context.Context, p HTTPRequestParams) (*HTTPRequestResult, error) {
	if p.URL == "" {
		return nil, debugerrors.MissingParameter("url", "the URL to request")
	}
	method := p.Method
	if method == "" {
		method = http.MethodGet
	}
	timeout := 30 * time.Second
	if p.TimeoutSeconds > 0 {
		timeout = time.Duration(p.TimeoutSeconds) * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if p.Body != "" {
		body = strings.NewReader(p.Body)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, p.URL, body)
	if err != nil {
		return nil, debugerrors.InvalidParameter("url", p.URL, "a valid URL").WithCause(err)
	}
	for k, v := range p.Headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", p.URL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxActionBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", p.URL, err)
	}

	logrus.Debugf("HTTP %s %s -> %s", method, p.URL, resp.Status)
	return &HTTPRequestResult{
		Status:     resp.Status,
		StatusCode: resp.StatusCode,
		Body:       string(data),
	}, nil
}
