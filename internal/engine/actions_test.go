package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	debugerrors "github.com/dkattan/breakpoint-mcp/internal/errors"
	"github.com/dkattan/breakpoint-mcp/pkg/types"
)

func TestHTTPRequest(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":1}`))
	}))
	defer ts.Close()

	e := newTestEngine(t)
	res, err := e.HTTPRequest(context.Background(), HTTPRequestParams{
		URL:     ts.URL,
		Method:  "POST",
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    `{"name":"x"}`,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, res.StatusCode)
	assert.Equal(t, `{"id":1}`, res.Body)
}

func TestHTTPRequestNon2xxIsAResult(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer ts.Close()

	e := newTestEngine(t)
	res, err := e.HTTPRequest(context.Background(), HTTPRequestParams{URL: ts.URL})
	require.NoError(t, err, "a 500 from the route under debug is the observation, not a failure")
	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
	assert.Contains(t, res.Body, "boom")
}

func TestHTTPRequestMissingURL(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.HTTPRequest(context.Background(), HTTPRequestParams{})
	require.Error(t, err)
	assert.True(t, debugerrors.HasCode(err, debugerrors.CodeMissingParameter))
}

func TestRunShellAction(t *testing.T) {
	e := newTestEngine(t)

	err := e.runAction(context.Background(), &types.ServerReadyAction{
		Kind:    types.ActionShellCommand,
		Command: "true",
	})
	assert.NoError(t, err)

	err = e.runAction(context.Background(), &types.ServerReadyAction{
		Kind:    types.ActionShellCommand,
		Command: "false",
	})
	assert.Error(t, err, "a non-zero exit is reported to the wait loop")

	err = e.runAction(context.Background(), &types.ServerReadyAction{Kind: types.ActionShellCommand})
	require.Error(t, err)
	assert.True(t, debugerrors.HasCode(err, debugerrors.CodeMissingParameter))
}

type recordingInvoker struct {
	commandID string
	args      []interface{}
}

func (r *recordingInvoker) InvokeCommand(_ context.Context, commandID string, args []interface{}) error {
	r.commandID = commandID
	r.args = args
	return nil
}

func TestRunVSCodeAction(t *testing.T) {
	e := newTestEngine(t)

	err := e.runAction(context.Background(), &types.ServerReadyAction{
		Kind:      types.ActionVSCodeCommand,
		CommandID: "workbench.action.reload",
	})
	require.Error(t, err, "the standalone server has no IDE to dispatch to")

	inv := &recordingInvoker{}
	e.SetCommandInvoker(inv)
	err = e.runAction(context.Background(), &types.ServerReadyAction{
		Kind:        types.ActionVSCodeCommand,
		CommandID:   "workbench.action.reload",
		CommandArgs: []interface{}{"soft"},
	})
	require.NoError(t, err)
	assert.Equal(t, "workbench.action.reload", inv.commandID)
	assert.Equal(t, []interface{}{"soft"}, inv.args)
}
