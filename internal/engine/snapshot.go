package engine

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/go-dap"
	"github.com/sirupsen/logrus"

	internaldap "github.com/dkattan/breakpoint-mcp/internal/dap"
	debugerrors "github.com/dkattan/breakpoint-mcp/internal/errors"
	"github.com/dkattan/breakpoint-mcp/pkg/types"
)

var errNoFrames = errors.New("debug adapter returned no stack frames")

// snapshotter captures scope chains and variables from a paused frame.
type snapshotter struct {
	client *internaldap.Client
	maxLen int
}

func newSnapshotter(client *internaldap.Client, maxLen int) *snapshotter {
	return &snapshotter{client: client, maxLen: maxLen}
}

// capture fetches the frame's scopes and variables per the filter policy:
//
//	nil           nearest enclosing scope only (bounds payload size)
//	[] or ["*"]   every scope, every variable
//	fragments     every scope, names matching the case-insensitive alternation
//
// The returned ScopeInfos always describe the full scope chain regardless of
// which scopes were captured.
func (s *snapshotter) capture(frameID int, filter []string) ([]types.ScopeInfo, []types.Variable, error) {
	scopes, err := s.client.Scopes(frameID)
	if err != nil {
		return nil, nil, debugerrors.AdapterProtocol("scopes", err)
	}

	infos := make([]types.ScopeInfo, len(scopes))
	for i, sc := range scopes {
		infos[i] = types.ScopeInfo{
			Name:               sc.Name,
			PresentationHint:   sc.PresentationHint,
			VariablesReference: sc.VariablesReference,
			Expensive:          sc.Expensive,
		}
	}

	target := scopes
	var re *regexp.Regexp
	switch {
	case filter == nil:
		if len(scopes) > 0 {
			i := nearestScopeIndex(scopes)
			target = scopes[i : i+1]
		}
	case capturesAll(filter):
		// every scope, unfiltered
	default:
		re, err = compileFilter(filter)
		if err != nil {
			return nil, nil, debugerrors.InvalidParameter("variableFilter",
				strings.Join(filter, ", "), "valid regular expression fragments").WithCause(err)
		}
	}

	var out []types.Variable
	for _, sc := range target {
		if sc.Expensive && len(target) > 1 {
			logrus.Debugf("snapshot: skipping expensive scope %q", sc.Name)
			continue
		}
		vars, err := s.client.Variables(sc.VariablesReference)
		if err != nil {
			return nil, nil, debugerrors.AdapterProtocol("variables", err)
		}
		for _, v := range vars {
			if re != nil && !re.MatchString(v.Name) {
				continue
			}
			tv := types.Variable{
				Name:               v.Name,
				Value:              v.Value,
				Type:               v.Type,
				Scope:              sc.Name,
				VariablesReference: v.VariablesReference,
			}
			truncateVariable(&tv, s.maxLen)
			out = append(out, tv)
		}
	}

	return infos, out, nil
}

// capturesAll reports whether the filter asks for everything: an explicitly
// empty list, or a lone wildcard ("*" is not a valid regexp on its own,
// "." matches every name anyway).
func capturesAll(filter []string) bool {
	if len(filter) == 0 {
		return true
	}
	return len(filter) == 1 && (filter[0] == "*" || filter[0] == ".")
}

// compileFilter joins the fragments into one case-insensitive alternation.
func compileFilter(fragments []string) (*regexp.Regexp, error) {
	return regexp.Compile("(?i)(" + strings.Join(fragments, ")|(") + ")")
}

// nearestScopeIndex ranks scopes innermost-first: the adapter's
// presentationHint wins, then a name heuristic (locals before closures
// before globals), then adapter order.
func nearestScopeIndex(scopes []dap.Scope) int {
	best, bestRank := 0, scopeRank(scopes[0])
	for i := 1; i < len(scopes); i++ {
		if r := scopeRank(scopes[i]); r < bestRank {
			best, bestRank = i, r
		}
	}
	return best
}

func scopeRank(sc dap.Scope) int {
	if sc.PresentationHint == "locals" {
		return 0
	}
	name := strings.ToLower(sc.Name)
	switch {
	case strings.Contains(name, "local"):
		return 1
	case strings.Contains(name, "closure"):
		return 2
	case strings.Contains(name, "global"):
		return 3
	}
	return 4
}

// truncateVariable bounds the display rendering of a value. The untruncated
// string moves to RawValue so programmatic assertions keep the real value.
func truncateVariable(v *types.Variable, maxLen int) {
	if maxLen <= 0 || len(v.Value) <= maxLen {
		return
	}
	v.RawValue = v.Value
	v.Value = fmt.Sprintf("%s... (truncated, %d chars)", v.Value[:maxLen], len(v.RawValue))
}
