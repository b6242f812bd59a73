// Package session tracks active debug sessions and their lifecycle.
//
// The Registry is the single source of truth for what is being debugged.
// Sessions are registered before the adapter confirms the launch, so a
// listing taken mid-startup already shows the session as running. A
// per-session tracker goroutine follows adapter events and moves the
// session between running, paused, and terminated; terminated sessions are
// evicted from the registry.
package session

import (
	"context"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	internaldap "github.com/dkattan/breakpoint-mcp/internal/dap"
	debugerrors "github.com/dkattan/breakpoint-mcp/internal/errors"
	"github.com/dkattan/breakpoint-mcp/pkg/types"
)

// Session represents one active debug session
type Session struct {
	ID        string
	Name      string
	Language  types.Language
	ParentID  string
	Program   string
	CreatedAt time.Time

	Client  *internaldap.Client
	Process *exec.Cmd
	PID     int

	mu            sync.RWMutex
	status        types.SessionStatus
	stoppedThread int
	stopReason    string
	exitCode      *int
}

// Status returns the current lifecycle status
func (s *Session) Status() types.SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// MarkStopped records a stopped event: the session is paused on a thread
func (s *Session) MarkStopped(threadID int, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == types.SessionStatusTerminated {
		return
	}
	s.status = types.SessionStatusPaused
	s.stoppedThread = threadID
	s.stopReason = reason
}

// MarkRunning records a continued event
func (s *Session) MarkRunning() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == types.SessionStatusTerminated {
		return
	}
	s.status = types.SessionStatusRunning
}

func (s *Session) markTerminated() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = types.SessionStatusTerminated
}

// StoppedThread returns the thread id from the most recent stopped event
func (s *Session) StoppedThread() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stoppedThread
}

// StopReason returns the reason from the most recent stopped event
func (s *Session) StopReason() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stopReason
}

func (s *Session) setExitCode(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := code
	s.exitCode = &c
}

// ExitCode returns the debuggee exit code if an exited event carried one
func (s *Session) ExitCode() *int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.exitCode
}

// Info renders the session as a listing entry with derived action hints
func (s *Session) Info() types.SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return types.SessionInfo{
		SessionID:       s.ID,
		Name:            s.Name,
		Language:        s.Language,
		Status:          s.status,
		ParentSessionID: s.ParentID,
		Protocol: types.ProtocolHints{
			AllowedNextActions: types.AllowedNextActions(s.status),
		},
	}
}

// ChildHandler is invoked when an adapter asks for a child session via a
// startDebugging reverse request. The handler owns sending the response.
type ChildHandler func(parent *Session, requestSeq int, request string, configuration map[string]interface{})

// Registry manages the set of active debug sessions
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	order    []string

	maxSessions    int
	sessionTimeout time.Duration

	childHandler ChildHandler

	ctx    context.Context
	cancel context.CancelFunc
}

// NewRegistry creates a registry with the given limits and starts its
// expiry sweep.
func NewRegistry(maxSessions int, sessionTimeout time.Duration) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		sessions:       make(map[string]*Session),
		maxSessions:    maxSessions,
		sessionTimeout: sessionTimeout,
		ctx:            ctx,
		cancel:         cancel,
	}

	go r.cleanupLoop()

	return r
}

// SetChildHandler installs the callback for adapter-initiated child sessions
func (r *Registry) SetChildHandler(h ChildHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.childHandler = h
}

func (r *Registry) child() ChildHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.childHandler
}

// Create registers a new session before any adapter interaction. The
// session starts in running status so listings taken during launch
// already include it.
func (r *Registry) Create(name string, language types.Language, program, parentID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.sessions) >= r.maxSessions {
		return nil, debugerrors.SessionLimitReached(r.maxSessions)
	}

	s := &Session{
		ID:        uuid.New().String(),
		Name:      name,
		Language:  language,
		ParentID:  parentID,
		Program:   program,
		CreatedAt: time.Now(),
		status:    types.SessionStatusRunning,
	}

	r.sessions[s.ID] = s
	r.order = append(r.order, s.ID)
	return s, nil
}

// Get retrieves a session by id
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, debugerrors.SessionNotFound(id)
	}
	return s, nil
}

// Resolve picks the target session for an operation. An explicit id wins.
// Without one there must be exactly one active session; zero or several
// are both errors the caller can act on.
func (r *Registry) Resolve(id string) (*Session, error) {
	if id != "" {
		return r.Get(id)
	}

	all := r.List()
	switch len(all) {
	case 0:
		return nil, debugerrors.NoActiveSession()
	case 1:
		return all[0], nil
	default:
		return nil, debugerrors.AmbiguousSession(len(all))
	}
}

// List returns the active sessions in registration order
func (r *Registry) List() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, id := range r.order {
		if s, ok := r.sessions[id]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Count returns the number of active sessions
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Listing builds the two-view session report: a parent/child tree and a
// flattened list in registration order. A child whose parent has already
// terminated is promoted to the root.
func (r *Registry) Listing() types.SessionListing {
	sessions := r.List()

	flattened := make([]types.SessionInfo, 0, len(sessions))
	nodes := make(map[string]*types.SessionNode, len(sessions))
	for _, s := range sessions {
		info := s.Info()
		flattened = append(flattened, info)
		nodes[info.SessionID] = &types.SessionNode{SessionInfo: info}
	}

	roots := make([]*types.SessionNode, 0, len(sessions))
	for _, info := range flattened {
		node := nodes[info.SessionID]
		if info.ParentSessionID != "" {
			if parent, ok := nodes[info.ParentSessionID]; ok {
				parent.Children = append(parent.Children, node)
				continue
			}
		}
		roots = append(roots, node)
	}

	return types.SessionListing{
		Sessions:  roots,
		Flattened: flattened,
	}
}

// Terminate ends a session on request: the adapter is asked to stop the
// debuggee, resources are released, and the session is evicted.
func (r *Registry) Terminate(id string, terminateDebuggee bool) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return debugerrors.SessionNotFound(id)
	}
	r.remove(id)
	r.mu.Unlock()

	if s.Client != nil {
		if err := s.Client.Disconnect(terminateDebuggee); err != nil {
			logrus.Warnf("session %s: disconnect failed: %v (continuing cleanup)", id, err)
		}
		if err := s.Client.Close(); err != nil {
			logrus.Warnf("session %s: client close failed: %v (continuing cleanup)", id, err)
		}
	}

	if err := killProcessGroup(s.PID, s.Process); err != nil {
		logrus.Warnf("session %s: failed to kill process group (PID %d): %v", id, s.PID, err)
	}

	s.markTerminated()
	return nil
}

// Evict removes a session whose adapter already reported termination.
// No disconnect is sent; the adapter is gone.
func (r *Registry) Evict(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		r.remove(id)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	if s.Client != nil {
		if err := s.Client.Close(); err != nil {
			logrus.Debugf("session %s: client close after termination: %v", id, err)
		}
	}

	if err := killProcessGroup(s.PID, s.Process); err != nil {
		logrus.Debugf("session %s: process group cleanup after termination: %v", id, err)
	}

	s.markTerminated()
}

// remove drops a session from the maps. Caller holds the write lock.
func (r *Registry) remove(id string) {
	delete(r.sessions, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// cleanupLoop periodically terminates sessions past the registry timeout
func (r *Registry) cleanupLoop() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.cleanupExpired()
		}
	}
}

func (r *Registry) cleanupExpired() {
	now := time.Now()
	for _, s := range r.List() {
		if now.Sub(s.CreatedAt) > r.sessionTimeout {
			logrus.Infof("session %s: expiring after %s", s.ID, r.sessionTimeout)
			if err := r.Terminate(s.ID, true); err != nil {
				logrus.Warnf("session %s: expiry termination failed: %v", s.ID, err)
			}
		}
	}
}

// Close terminates every session and stops the registry
func (r *Registry) Close() {
	r.cancel()

	for _, s := range r.List() {
		if err := r.Terminate(s.ID, true); err != nil {
			logrus.Warnf("session %s: shutdown termination failed: %v", s.ID, err)
		}
	}
}
