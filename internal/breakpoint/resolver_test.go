package breakpoint

import (
	"errors"
	"testing"

	"github.com/google/go-dap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	debugerrors "github.com/dkattan/breakpoint-mcp/internal/errors"
	"github.com/dkattan/breakpoint-mcp/pkg/types"
)

// mapSourceReader serves source text from memory.
type mapSourceReader map[string]string

func (m mapSourceReader) ReadSource(path string) (string, error) {
	src, ok := m[path]
	if !ok {
		return "", errors.New("no such file")
	}
	return src, nil
}

const loopSource = `package main

import "fmt"

func main() {
	for i := 0; i < 10; i++ {
		fmt.Println("Loop iteration", i)
	}
	fmt.Println("done")
}
`

func TestResolve_LinePassthrough(t *testing.T) {
	r := NewResolver(mapSourceReader{})

	resolved, err := r.Resolve([]types.BreakpointSpec{
		{Path: "main.go", Line: 7},
	})
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, types.BreakpointKindLine, resolved[0].Kind)
	assert.Equal(t, "main.go", resolved[0].Path)
	assert.Equal(t, 7, resolved[0].Line)
}

func TestResolve_SnippetSingleMatch(t *testing.T) {
	r := NewResolver(mapSourceReader{"main.go": loopSource})

	resolved, err := r.Resolve([]types.BreakpointSpec{
		{Path: "main.go", Code: "Loop iteration"},
	})
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, 7, resolved[0].Line)
}

func TestResolve_SnippetEveryMatchingLine(t *testing.T) {
	src := "x := 1\nfmt.Println(x)\nx = 2\nfmt.Println(x)\nfmt.Println(x)\n"
	r := NewResolver(mapSourceReader{"multi.go": src})

	resolved, err := r.Resolve([]types.BreakpointSpec{
		{Path: "multi.go", Code: "fmt.Println"},
	})
	require.NoError(t, err)
	require.Len(t, resolved, 3, "a snippet matching 3 lines must yield 3 breakpoints")
	assert.Equal(t, []int{2, 4, 5}, []int{resolved[0].Line, resolved[1].Line, resolved[2].Line})

	// All three share the same originating spec
	assert.Same(t, resolved[0].Spec, resolved[1].Spec)
	assert.Same(t, resolved[1].Spec, resolved[2].Spec)
}

func TestResolve_SnippetNotFound(t *testing.T) {
	r := NewResolver(mapSourceReader{"main.go": loopSource})

	_, err := r.Resolve([]types.BreakpointSpec{
		{Path: "main.go", Code: "no such snippet anywhere"},
	})
	require.Error(t, err)
	assert.True(t, debugerrors.HasCode(err, debugerrors.CodeResolution))
	assert.Contains(t, err.Error(), "no such snippet anywhere",
		"the error must name the missing snippet")
	assert.Contains(t, err.Error(), "main.go")
}

func TestResolve_MissingAddress(t *testing.T) {
	r := NewResolver(mapSourceReader{})

	_, err := r.Resolve([]types.BreakpointSpec{
		{Path: "main.go", OnHit: types.OnHitBreak},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required 'code' snippet")
}

func TestResolve_SourceUnreadable(t *testing.T) {
	r := NewResolver(mapSourceReader{})

	_, err := r.Resolve([]types.BreakpointSpec{
		{Path: "gone.go", Code: "anything"},
	})
	require.Error(t, err)
	assert.True(t, debugerrors.HasCode(err, debugerrors.CodeResolution))
}

func TestResolve_NegativeLine(t *testing.T) {
	r := NewResolver(mapSourceReader{})

	_, err := r.Resolve([]types.BreakpointSpec{
		{Path: "main.go", Line: -3},
	})
	require.Error(t, err)
}

func TestResolve_InvalidOnHit(t *testing.T) {
	r := NewResolver(mapSourceReader{})

	_, err := r.Resolve([]types.BreakpointSpec{
		{Path: "main.go", Line: 1, OnHit: "explode"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "explode")
}

func TestResolve_FunctionName(t *testing.T) {
	r := NewResolver(mapSourceReader{})

	resolved, err := r.Resolve([]types.BreakpointSpec{
		{FunctionName: "main.handleOrder"},
	})
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, types.BreakpointKindFunction, resolved[0].Kind)
	assert.Equal(t, "main.handleOrder", resolved[0].FunctionName)
}

func TestRequireFunctionSupport(t *testing.T) {
	funcBP := &types.ResolvedBreakpoint{
		Kind:         types.BreakpointKindFunction,
		FunctionName: "main.handleOrder",
	}
	lineBP := &types.ResolvedBreakpoint{Kind: types.BreakpointKindLine, Path: "main.go", Line: 3}

	assert.NoError(t, RequireFunctionSupport([]*types.ResolvedBreakpoint{funcBP}, true))
	assert.NoError(t, RequireFunctionSupport([]*types.ResolvedBreakpoint{lineBP}, false))

	err := RequireFunctionSupport([]*types.ResolvedBreakpoint{lineBP, funcBP}, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "supportsFunctionBreakpoints=true")
	assert.Contains(t, err.Error(), "main.handleOrder")
}

func TestGroupByFile(t *testing.T) {
	bps := []*types.ResolvedBreakpoint{
		{Kind: types.BreakpointKindLine, Path: "a.go", Line: 1},
		{Kind: types.BreakpointKindLine, Path: "b.go", Line: 2},
		{Kind: types.BreakpointKindFunction, FunctionName: "f"},
		{Kind: types.BreakpointKindLine, Path: "a.go", Line: 9},
		{Kind: types.BreakpointKindServerReady, Path: "b.go", Line: 5, Internal: true},
	}

	groups := GroupByFile(bps)
	require.Len(t, groups, 2)
	assert.Equal(t, "a.go", groups[0].Path)
	assert.Len(t, groups[0].Breakpoints, 2)
	assert.Equal(t, "b.go", groups[1].Path)
	assert.Len(t, groups[1].Breakpoints, 2, "server-ready breakpoints travel with their file group")

	funcs := Functions(bps)
	require.Len(t, funcs, 1)
	assert.Equal(t, "f", funcs[0].FunctionName)
}

func TestSourceBreakpoints_LogMessageOnlyForLogPoints(t *testing.T) {
	logPoint := types.BreakpointSpec{Path: "a.go", Line: 1, LogMessage: "i={i}"}
	stopping := types.BreakpointSpec{Path: "a.go", Line: 2, LogMessage: "i={i}", OnHit: types.OnHitBreak, Condition: "i > 3"}

	group := []*types.ResolvedBreakpoint{
		{Kind: types.BreakpointKindLine, Path: "a.go", Line: 1, Spec: &logPoint},
		{Kind: types.BreakpointKindLine, Path: "a.go", Line: 2, Spec: &stopping},
	}

	payload := SourceBreakpoints(group)
	require.Len(t, payload, 2)
	assert.Equal(t, "i={i}", payload[0].LogMessage,
		"pure log-points carry the template so the adapter auto-resumes")
	assert.Empty(t, payload[1].LogMessage,
		"an explicit onHit must not be downgraded to a non-stopping log-point")
	assert.Equal(t, "i > 3", payload[1].Condition)
}

func TestApplyAdapterResult(t *testing.T) {
	group := []*types.ResolvedBreakpoint{
		{Kind: types.BreakpointKindLine, Path: "a.go", Line: 1},
		{Kind: types.BreakpointKindFunction, FunctionName: "f"},
	}
	result := []dap.Breakpoint{
		{Id: 11, Verified: true},
		{Id: 12, Verified: true, Line: 40, Source: &dap.Source{Path: "/src/f.go"}},
	}

	ApplyAdapterResult(group, result)

	assert.Equal(t, 11, group[0].ID)
	assert.True(t, group[0].Verified)
	assert.Equal(t, 12, group[1].ID)
	assert.Equal(t, 40, group[1].Line, "function breakpoints adopt the adapter-bound line")
	assert.Equal(t, "/src/f.go", group[1].Path)
}

func TestMatchStop(t *testing.T) {
	caller := &types.ResolvedBreakpoint{Kind: types.BreakpointKindLine, Path: "/src/main.go", Line: 7, ID: 1}
	internal := &types.ResolvedBreakpoint{Kind: types.BreakpointKindServerReady, Path: "/src/server.go", Line: 3, ID: 2, Internal: true}
	all := []*types.ResolvedBreakpoint{caller, internal}

	t.Run("by hit id", func(t *testing.T) {
		assert.Same(t, caller, MatchStop(all, "", 0, []int{1}))
	})

	t.Run("by path and line", func(t *testing.T) {
		assert.Same(t, caller, MatchStop(all, "/src/main.go", 7, nil))
	})

	t.Run("basename fallback", func(t *testing.T) {
		assert.Same(t, caller, MatchStop(all, "/other/checkout/main.go", 7, nil))
	})

	t.Run("internal matched when it is the cause", func(t *testing.T) {
		assert.Same(t, internal, MatchStop(all, "/src/server.go", 3, nil))
	})

	t.Run("caller wins at a shared location", func(t *testing.T) {
		shared := &types.ResolvedBreakpoint{Kind: types.BreakpointKindServerReady, Path: "/src/main.go", Line: 7, Internal: true}
		assert.Same(t, caller, MatchStop([]*types.ResolvedBreakpoint{shared, caller}, "/src/main.go", 7, nil))
	})

	t.Run("no match", func(t *testing.T) {
		assert.Nil(t, MatchStop(all, "/src/main.go", 99, nil))
	})
}
