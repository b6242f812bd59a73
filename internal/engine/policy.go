package engine

import (
	debugerrors "github.com/dkattan/breakpoint-mcp/internal/errors"
	"github.com/dkattan/breakpoint-mcp/internal/session"
)

// Existing-session behaviors accepted by start requests.
const (
	// BehaviorUseExisting reuses a running session when one exists: the wait
	// attaches to it instead of launching a new debuggee. The target must be
	// unambiguous. This is the default.
	BehaviorUseExisting = "useExisting"

	// BehaviorIgnoreAndCreateNew always launches a fresh session alongside
	// any existing ones. Requires supportsMultipleSessions in the config.
	BehaviorIgnoreAndCreateNew = "ignoreAndCreateNew"
)

// resolveExistingSession applies the multi-session policy before anything is
// started. It returns the session to reuse, or (nil, nil) when a new session
// should be created. No session is partially started before this check.
func (e *Engine) resolveExistingSession(behavior, explicitID string) (*session.Session, error) {
	switch behavior {
	case "", BehaviorUseExisting:
		if explicitID != "" {
			return e.registry.Get(explicitID)
		}
		sessions := e.registry.List()
		switch len(sessions) {
		case 0:
			return nil, nil
		case 1:
			return sessions[0], nil
		default:
			return nil, debugerrors.AmbiguousSession(len(sessions))
		}

	case BehaviorIgnoreAndCreateNew:
		if e.registry.Count() > 0 && !e.cfg.SupportsMultipleSessions {
			return nil, debugerrors.MultiSessionNotAllowed()
		}
		return nil, nil

	default:
		return nil, debugerrors.InvalidParameter("existingSessionBehavior", behavior,
			"one of useExisting, ignoreAndCreateNew")
	}
}
