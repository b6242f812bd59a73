// Package breakpoint turns declarative breakpoint specs into concrete
// adapter-addressable locations.
//
// A spec names a location one of three ways: an exact 1-based line, a
// source-text snippet, or a function name. Snippet specs are resolved by
// scanning the file for substring matches; every matching line becomes its
// own breakpoint, so a snippet that appears five times yields five
// breakpoints. A snippet with no match is an error, never a silent drop.
package breakpoint

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/go-dap"

	debugerrors "github.com/dkattan/breakpoint-mcp/internal/errors"
	"github.com/dkattan/breakpoint-mcp/pkg/types"
)

// SourceReader provides source text for snippet resolution. The default
// implementation reads from the local filesystem; tests inject literals.
type SourceReader interface {
	ReadSource(path string) (string, error)
}

type osSourceReader struct{}

func (osSourceReader) ReadSource(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// OSSourceReader returns a SourceReader backed by the local filesystem.
func OSSourceReader() SourceReader {
	return osSourceReader{}
}

// Resolver translates breakpoint specs into ResolvedBreakpoints.
type Resolver struct {
	reader SourceReader
}

// NewResolver creates a resolver. A nil reader defaults to the filesystem.
func NewResolver(reader SourceReader) *Resolver {
	if reader == nil {
		reader = osSourceReader{}
	}
	return &Resolver{reader: reader}
}

// Resolve turns specs into adapter-addressable breakpoints. Returned
// pointers share the input specs, so adapter-assigned IDs written back via
// ApplyAdapterResult are visible to everyone holding the slice.
//
// Address mode precedence when a spec sets more than one: functionName,
// then line, then code. A spec with none of the three fails.
func (r *Resolver) Resolve(specs []types.BreakpointSpec) ([]*types.ResolvedBreakpoint, error) {
	var resolved []*types.ResolvedBreakpoint

	for i := range specs {
		spec := &specs[i]

		if !spec.OnHit.Valid() {
			return nil, debugerrors.InvalidOnHit(string(spec.OnHit))
		}

		switch {
		case spec.FunctionName != "":
			resolved = append(resolved, &types.ResolvedBreakpoint{
				Kind:         types.BreakpointKindFunction,
				FunctionName: spec.FunctionName,
				Spec:         spec,
			})

		case spec.Line != 0:
			if spec.Line < 0 {
				return nil, debugerrors.InvalidParameter("line", spec.Line, "a positive 1-based line number")
			}
			if spec.Path == "" {
				return nil, debugerrors.MissingParameter("path", "the source file for the line breakpoint")
			}
			resolved = append(resolved, &types.ResolvedBreakpoint{
				Kind: types.BreakpointKindLine,
				Path: spec.Path,
				Line: spec.Line,
				Spec: spec,
			})

		case spec.Code != "":
			if spec.Path == "" {
				return nil, debugerrors.MissingParameter("path", "the source file to scan for the code snippet")
			}
			source, err := r.reader.ReadSource(spec.Path)
			if err != nil {
				return nil, debugerrors.SourceUnreadable(spec.Path, err)
			}
			lines := matchingLines(source, spec.Code)
			if len(lines) == 0 {
				return nil, debugerrors.SnippetNotFound(spec.Code, spec.Path)
			}
			for _, line := range lines {
				resolved = append(resolved, &types.ResolvedBreakpoint{
					Kind: types.BreakpointKindLine,
					Path: spec.Path,
					Line: line,
					Spec: spec,
				})
			}

		default:
			return nil, debugerrors.MissingBreakpointAddress(spec.Path)
		}
	}

	return resolved, nil
}

// matchingLines returns the 1-based line numbers whose text contains the
// snippet as a substring.
func matchingLines(source, snippet string) []int {
	var lines []int
	for i, line := range strings.Split(source, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.Contains(line, snippet) {
			lines = append(lines, i+1)
		}
	}
	return lines
}

// RequireFunctionSupport fails when the set contains a function breakpoint
// but the adapter lacks the capability. Callers check this after initialize
// and before sending any breakpoint request, so an unsupported function
// breakpoint is never silently downgraded to nothing.
func RequireFunctionSupport(resolved []*types.ResolvedBreakpoint, supported bool) error {
	if supported {
		return nil
	}
	for _, bp := range resolved {
		if bp.Kind == types.BreakpointKindFunction {
			return debugerrors.FunctionBreakpointsUnsupported(bp.FunctionName)
		}
	}
	return nil
}

// TriggerBreakpoint builds the internal breakpoint backing a server-ready
// trigger. It is excluded from caller-visible hit attribution unless it is
// itself the cause of the final stop.
func TriggerBreakpoint(path string, line int) *types.ResolvedBreakpoint {
	return &types.ResolvedBreakpoint{
		Kind:     types.BreakpointKindServerReady,
		Path:     path,
		Line:     line,
		Internal: true,
	}
}

// FileBreakpoints groups the source breakpoints of one file. DAP replaces a
// file's whole breakpoint set per setBreakpoints request, so all breakpoints
// for a file must travel in a single call.
type FileBreakpoints struct {
	Path        string
	Breakpoints []*types.ResolvedBreakpoint
}

// GroupByFile collects line and server-ready breakpoints per file,
// preserving first-seen file order.
func GroupByFile(resolved []*types.ResolvedBreakpoint) []FileBreakpoints {
	index := make(map[string]int)
	var groups []FileBreakpoints

	for _, bp := range resolved {
		if bp.Kind == types.BreakpointKindFunction {
			continue
		}
		i, ok := index[bp.Path]
		if !ok {
			i = len(groups)
			index[bp.Path] = i
			groups = append(groups, FileBreakpoints{Path: bp.Path})
		}
		groups[i].Breakpoints = append(groups[i].Breakpoints, bp)
	}

	return groups
}

// Functions returns only the function breakpoints.
func Functions(resolved []*types.ResolvedBreakpoint) []*types.ResolvedBreakpoint {
	var funcs []*types.ResolvedBreakpoint
	for _, bp := range resolved {
		if bp.Kind == types.BreakpointKindFunction {
			funcs = append(funcs, bp)
		}
	}
	return funcs
}

// SourceBreakpoints converts one file group to the DAP request payload.
// LogMessage travels to the adapter only for true log-points: an adapter
// treats any breakpoint carrying a log message as non-stopping, which would
// swallow the stop a spec with an explicit onHit directive is asking for.
// For those the wait machinery interpolates the template itself at the hit.
func SourceBreakpoints(group []*types.ResolvedBreakpoint) []dap.SourceBreakpoint {
	payload := make([]dap.SourceBreakpoint, len(group))
	for i, bp := range group {
		sb := dap.SourceBreakpoint{Line: bp.Line}
		if bp.Spec != nil {
			sb.Condition = bp.Spec.Condition
			sb.HitCondition = bp.Spec.HitCondition
			if bp.Spec.IsLogPoint() {
				sb.LogMessage = bp.Spec.LogMessage
			}
		}
		payload[i] = sb
	}
	return payload
}

// FunctionBreakpointPayload converts function breakpoints to the DAP
// request payload.
func FunctionBreakpointPayload(funcs []*types.ResolvedBreakpoint) []dap.FunctionBreakpoint {
	payload := make([]dap.FunctionBreakpoint, len(funcs))
	for i, bp := range funcs {
		fb := dap.FunctionBreakpoint{Name: bp.FunctionName}
		if bp.Spec != nil {
			fb.Condition = bp.Spec.Condition
			fb.HitCondition = bp.Spec.HitCondition
		}
		payload[i] = fb
	}
	return payload
}

// ApplyAdapterResult copies adapter-assigned IDs and verification state back
// onto the resolved breakpoints. DAP guarantees response order matches
// request order. Function breakpoints also pick up the source location the
// adapter bound them to, so stop attribution can match them by line.
func ApplyAdapterResult(group []*types.ResolvedBreakpoint, result []dap.Breakpoint) {
	for i, bp := range group {
		if i >= len(result) {
			return
		}
		bp.ID = result[i].Id
		bp.Verified = result[i].Verified
		if bp.Kind == types.BreakpointKindFunction {
			if result[i].Line > 0 {
				bp.Line = result[i].Line
			}
			if result[i].Source != nil && result[i].Source.Path != "" {
				bp.Path = result[i].Source.Path
			}
		}
	}
}

// MatchStop attributes a stop location to one of the resolved breakpoints.
// Adapter-reported hit IDs are authoritative when present; otherwise the
// stop is matched by exact path and line, then by basename and line for
// adapters that report normalized or symlinked paths. Returns nil when the
// stop belongs to none of them (stop on entry, exception, manual pause).
//
// Caller breakpoints win over internal ones at the same location, so a
// caller breakpoint sharing the server-ready trigger's line is still
// attributed to the caller.
func MatchStop(resolved []*types.ResolvedBreakpoint, path string, line int, hitIDs []int) *types.ResolvedBreakpoint {
	if bp := matchStopPass(resolved, path, line, hitIDs, false); bp != nil {
		return bp
	}
	return matchStopPass(resolved, path, line, hitIDs, true)
}

func matchStopPass(resolved []*types.ResolvedBreakpoint, path string, line int, hitIDs []int, internal bool) *types.ResolvedBreakpoint {
	candidates := make([]*types.ResolvedBreakpoint, 0, len(resolved))
	for _, bp := range resolved {
		if bp.Internal == internal {
			candidates = append(candidates, bp)
		}
	}

	if len(hitIDs) > 0 {
		byID := make(map[int]*types.ResolvedBreakpoint, len(candidates))
		for _, bp := range candidates {
			if bp.ID != 0 {
				byID[bp.ID] = bp
			}
		}
		for _, id := range hitIDs {
			if bp, ok := byID[id]; ok {
				return bp
			}
		}
	}

	for _, bp := range candidates {
		if bp.Line == line && bp.Path != "" && bp.Path == path {
			return bp
		}
	}

	if path != "" {
		base := filepath.Base(path)
		for _, bp := range candidates {
			if bp.Line == line && bp.Path != "" && filepath.Base(bp.Path) == base {
				return bp
			}
		}
	}

	return nil
}
