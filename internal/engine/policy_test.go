package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	debugerrors "github.com/dkattan/breakpoint-mcp/internal/errors"
	"github.com/dkattan/breakpoint-mcp/pkg/types"
)

func TestResolveExistingSessionUseExisting(t *testing.T) {
	e := newTestEngine(t)

	s, err := e.resolveExistingSession("", "")
	require.NoError(t, err)
	assert.Nil(t, s, "no sessions: start a new one")

	one, err := e.registry.Create("one", types.LanguageGo, "", "")
	require.NoError(t, err)

	s, err = e.resolveExistingSession(BehaviorUseExisting, "")
	require.NoError(t, err)
	assert.Same(t, one, s, "a single session is reused")

	two, err := e.registry.Create("two", types.LanguageGo, "", "")
	require.NoError(t, err)

	_, err = e.resolveExistingSession("", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "multiple active debug sessions found")

	s, err = e.resolveExistingSession("", two.ID)
	require.NoError(t, err)
	assert.Same(t, two, s, "an explicit id disambiguates")

	_, err = e.resolveExistingSession("", "vanished")
	require.Error(t, err)
	assert.True(t, debugerrors.HasCode(err, debugerrors.CodeSessionNotFound))
}

func TestResolveExistingSessionIgnoreAndCreateNew(t *testing.T) {
	e := newTestEngine(t)

	s, err := e.resolveExistingSession(BehaviorIgnoreAndCreateNew, "")
	require.NoError(t, err)
	assert.Nil(t, s, "nothing to ignore yet")

	_, err = e.registry.Create("one", types.LanguageGo, "", "")
	require.NoError(t, err)

	_, err = e.resolveExistingSession(BehaviorIgnoreAndCreateNew, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "supportsMultipleSessions")

	e.cfg.SupportsMultipleSessions = true
	s, err = e.resolveExistingSession(BehaviorIgnoreAndCreateNew, "")
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestResolveExistingSessionInvalidBehavior(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.resolveExistingSession("reuseOrDie", "")
	require.Error(t, err)
	assert.True(t, debugerrors.HasCode(err, debugerrors.CodeInvalidParameter))
	assert.Contains(t, err.Error(), "reuseOrDie")
}
