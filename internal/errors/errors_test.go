package errors

import (
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorRendering(t *testing.T) {
	err := &DebugError{Message: "something broke", Hint: "try again"}
	assert.Equal(t, "something broke | Hint: try again", err.Error())

	err = &DebugError{Message: "something broke"}
	assert.Equal(t, "something broke", err.Error())
}

func TestUnwrap(t *testing.T) {
	cause := stderrors.New("root cause")
	err := Wrap(CodeAdapterProtocol, "adapter said no", "", cause)
	assert.True(t, stderrors.Is(err, cause))
}

func TestHasCode(t *testing.T) {
	err := AmbiguousSession(2)
	assert.True(t, HasCode(err, CodeConfiguration))
	assert.False(t, HasCode(err, CodeStopWaitTimeout))
	assert.False(t, HasCode(stderrors.New("plain"), CodeConfiguration))
}

func TestAmbiguousSessionMessage(t *testing.T) {
	err := AmbiguousSession(3)
	assert.Contains(t, err.Error(), "multiple active debug sessions found")
	assert.Equal(t, 3, err.Details["activeSessions"])
}

func TestMultiSessionNotAllowedNamesSetting(t *testing.T) {
	err := MultiSessionNotAllowed()
	assert.Contains(t, err.Error(), "supportsMultipleSessions")
	assert.Contains(t, err.Error(), "ignoreAndCreateNew")
}

func TestSnippetNotFoundCarriesSnippet(t *testing.T) {
	err := SnippetNotFound("Loop iteration", "main.go")
	assert.Contains(t, err.Error(), "Loop iteration")
	assert.Contains(t, err.Error(), "main.go")
	assert.Equal(t, CodeResolution, err.Code)
}

func TestMissingBreakpointAddress(t *testing.T) {
	err := MissingBreakpointAddress("main.go")
	assert.Contains(t, err.Error(), "missing required 'code' snippet")
}

func TestFunctionBreakpointsUnsupported(t *testing.T) {
	err := FunctionBreakpointsUnsupported("main.handleOrder")
	assert.Contains(t, err.Error(), "supportsFunctionBreakpoints=true")
	assert.Contains(t, err.Error(), "main.handleOrder")
}

func TestStopWaitTimeout(t *testing.T) {
	err := StopWaitTimeout(31500*time.Millisecond, "Launch server")
	assert.Contains(t, err.Error(), "31.5s")
	assert.Contains(t, err.Error(), "Launch server")
	assert.Equal(t, CodeStopWaitTimeout, err.Code)

	err = StopWaitTimeout(time.Second, "")
	assert.Contains(t, err.Error(), "(inline configuration)")
}

func TestTerminatedBeforeStop(t *testing.T) {
	err := TerminatedBeforeStop("sess-1", nil)
	assert.Equal(t, CodeSessionTerminated, err.Code)
	assert.NotEqual(t, CodeStopWaitTimeout, err.Code,
		"termination must stay distinguishable from timeout")

	code := 2
	err = TerminatedBeforeStop("sess-1", &code)
	assert.Contains(t, err.Error(), "exit code 2")
}

func TestAdapterProtocolCarriesAdapterMessage(t *testing.T) {
	cause := stderrors.New("setBreakpoints failed: unsupported breakpoint type")
	err := AdapterProtocol("setBreakpoints", cause)
	assert.Contains(t, err.Error(), "unsupported breakpoint type")
	assert.True(t, stderrors.Is(err, cause))
}

func TestFromError(t *testing.T) {
	de := SnippetNotFound("x", "y.go")
	require.Same(t, de, FromError(de))

	wrapped := FromError(stderrors.New("boom"))
	assert.Equal(t, ErrorCode("UNKNOWN_ERROR"), wrapped.Code)
	assert.Contains(t, wrapped.Error(), "boom")
}

func TestWithDetails(t *testing.T) {
	err := NoActiveSession().WithDetails("workspace", "/tmp/app")
	assert.Equal(t, "/tmp/app", err.Details["workspace"])
}
