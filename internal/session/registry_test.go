package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	debugerrors "github.com/dkattan/breakpoint-mcp/internal/errors"
	"github.com/dkattan/breakpoint-mcp/pkg/types"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry(10, 30*time.Minute)
	t.Cleanup(r.Close)
	return r
}

func TestRegistryCreate(t *testing.T) {
	r := newTestRegistry(t)

	s, err := r.Create("api server", types.LanguageGo, "./cmd/server", "")
	require.NoError(t, err)

	assert.NotEmpty(t, s.ID)
	assert.Equal(t, "api server", s.Name)
	assert.Equal(t, types.LanguageGo, s.Language)
	assert.Equal(t, types.SessionStatusRunning, s.Status(),
		"sessions are listed as running before the adapter confirms")
	assert.False(t, s.CreatedAt.IsZero())
}

func TestRegistryMaxSessions(t *testing.T) {
	r := NewRegistry(2, 30*time.Minute)
	defer r.Close()

	_, err := r.Create("one", types.LanguageGo, "a", "")
	require.NoError(t, err)
	_, err = r.Create("two", types.LanguagePython, "b", "")
	require.NoError(t, err)

	_, err = r.Create("three", types.LanguageGo, "c", "")
	require.Error(t, err)
	assert.True(t, debugerrors.HasCode(err, debugerrors.CodeSessionLimitReached))
}

func TestRegistryGet(t *testing.T) {
	r := newTestRegistry(t)

	s, err := r.Create("one", types.LanguageGo, "a", "")
	require.NoError(t, err)

	got, err := r.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)

	_, err = r.Get("vanished")
	require.Error(t, err)
	assert.True(t, debugerrors.HasCode(err, debugerrors.CodeSessionNotFound))
}

func TestRegistryResolve(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.Resolve("")
	require.Error(t, err, "no sessions at all")

	one, err := r.Create("one", types.LanguageGo, "a", "")
	require.NoError(t, err)

	got, err := r.Resolve("")
	require.NoError(t, err)
	assert.Same(t, one, got, "a single session is unambiguous")

	_, err = r.Create("two", types.LanguageGo, "b", "")
	require.NoError(t, err)

	_, err = r.Resolve("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "multiple active debug sessions found")

	got, err = r.Resolve(one.ID)
	require.NoError(t, err)
	assert.Same(t, one, got, "an explicit id always wins")
}

func TestRegistryListOrder(t *testing.T) {
	r := newTestRegistry(t)

	a, _ := r.Create("a", types.LanguageGo, "", "")
	b, _ := r.Create("b", types.LanguageGo, "", "")
	c, _ := r.Create("c", types.LanguageGo, "", "")

	list := r.List()
	require.Len(t, list, 3)
	assert.Equal(t, []string{a.ID, b.ID, c.ID}, []string{list[0].ID, list[1].ID, list[2].ID})

	r.Evict(b.ID)
	list = r.List()
	require.Len(t, list, 2)
	assert.Equal(t, []string{a.ID, c.ID}, []string{list[0].ID, list[1].ID})
}

func TestStatusTransitions(t *testing.T) {
	r := newTestRegistry(t)
	s, _ := r.Create("s", types.LanguageGo, "", "")

	s.MarkStopped(4, "breakpoint")
	assert.Equal(t, types.SessionStatusPaused, s.Status())
	assert.Equal(t, 4, s.StoppedThread())
	assert.Equal(t, "breakpoint", s.StopReason())

	s.MarkRunning()
	assert.Equal(t, types.SessionStatusRunning, s.Status())

	r.Evict(s.ID)
	assert.Equal(t, types.SessionStatusTerminated, s.Status())

	// Terminated is terminal: late events cannot revive the session
	s.MarkStopped(4, "breakpoint")
	assert.Equal(t, types.SessionStatusTerminated, s.Status())
	s.MarkRunning()
	assert.Equal(t, types.SessionStatusTerminated, s.Status())
}

func TestInfoDerivesAllowedActions(t *testing.T) {
	r := newTestRegistry(t)
	s, _ := r.Create("s", types.LanguageGo, "", "")

	info := s.Info()
	assert.Equal(t, types.SessionStatusRunning, info.Status)
	assert.Contains(t, info.Protocol.AllowedNextActions, "externalHttpRequest")

	s.MarkStopped(1, "breakpoint")
	info = s.Info()
	assert.Contains(t, info.Protocol.AllowedNextActions, "getVariables")
}

func TestListingTree(t *testing.T) {
	r := newTestRegistry(t)

	parent, _ := r.Create("parent", types.LanguageJavaScript, "", "")
	child, _ := r.Create("child", types.LanguageJavaScript, "", parent.ID)
	orphan, _ := r.Create("orphan", types.LanguageGo, "", "gone-parent")

	listing := r.Listing()

	require.Len(t, listing.Flattened, 3)

	// Tree: parent with one child, orphan promoted to root
	require.Len(t, listing.Sessions, 2)
	assert.Equal(t, parent.ID, listing.Sessions[0].SessionID)
	require.Len(t, listing.Sessions[0].Children, 1)
	assert.Equal(t, child.ID, listing.Sessions[0].Children[0].SessionID)
	assert.Equal(t, orphan.ID, listing.Sessions[1].SessionID,
		"a child whose parent is unknown is still listed")
}

func TestTerminateEvicts(t *testing.T) {
	r := newTestRegistry(t)
	s, _ := r.Create("s", types.LanguageGo, "", "")

	require.NoError(t, r.Terminate(s.ID, true))
	assert.Equal(t, 0, r.Count())
	assert.Equal(t, types.SessionStatusTerminated, s.Status())

	err := r.Terminate(s.ID, true)
	assert.True(t, debugerrors.HasCode(err, debugerrors.CodeSessionNotFound))
}

func TestEvictUnknownIsNoop(t *testing.T) {
	r := newTestRegistry(t)
	r.Evict("never-existed")
	assert.Equal(t, 0, r.Count())
}

func TestExitCode(t *testing.T) {
	r := newTestRegistry(t)
	s, _ := r.Create("s", types.LanguageGo, "", "")

	assert.Nil(t, s.ExitCode())
	s.setExitCode(3)
	require.NotNil(t, s.ExitCode())
	assert.Equal(t, 3, *s.ExitCode())
}
