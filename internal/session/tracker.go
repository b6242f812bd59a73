package session

import (
	"github.com/google/go-dap"
	"github.com/sirupsen/logrus"

	internaldap "github.com/dkattan/breakpoint-mcp/internal/dap"
	"github.com/dkattan/breakpoint-mcp/pkg/types"
)

// Watch starts the lifecycle tracker for a session. The tracker holds its
// own subscription, so status updates keep flowing while other consumers
// (a stop-wait, for example) read the same events independently.
//
// Watch must be called once the session's Client is set.
func (r *Registry) Watch(s *Session) {
	sub := s.Client.Subscribe(256)
	go r.track(s, sub)
}

// track follows adapter events until the session terminates or the
// connection closes.
func (r *Registry) track(s *Session, sub *internaldap.Subscription) {
	defer sub.Close()

	for msg := range sub.C {
		switch ev := msg.(type) {
		case *dap.StoppedEvent:
			s.MarkStopped(ev.Body.ThreadId, ev.Body.Reason)
			logrus.Debugf("session %s: paused (%s, thread %d)", s.ID, ev.Body.Reason, ev.Body.ThreadId)

		case *dap.ContinuedEvent:
			s.MarkRunning()
			logrus.Debugf("session %s: running", s.ID)

		case *dap.ExitedEvent:
			s.setExitCode(ev.Body.ExitCode)
			logrus.Debugf("session %s: debuggee exited with code %d", s.ID, ev.Body.ExitCode)

		case *dap.TerminatedEvent:
			logrus.Infof("session %s: terminated", s.ID)
			r.Evict(s.ID)
			return

		case *dap.StartDebuggingRequest:
			r.handleStartDebugging(s, ev)
		}
	}

	// Channel closed without a terminated event: the adapter connection
	// died. Treat it the same way.
	if s.Status() != types.SessionStatusTerminated {
		logrus.Infof("session %s: adapter connection closed", s.ID)
		r.Evict(s.ID)
	}
}

// handleStartDebugging forwards an adapter's child-session request to the
// installed handler. Without one the request is rejected so the adapter
// does not block on a response.
func (r *Registry) handleStartDebugging(s *Session, req *dap.StartDebuggingRequest) {
	handler := r.child()
	if handler == nil {
		logrus.Warnf("session %s: rejecting startDebugging request, no child handler installed", s.ID)
		if err := s.Client.RespondToStartDebugging(req.Seq, false, "child sessions not supported"); err != nil {
			logrus.Warnf("session %s: failed to reject startDebugging: %v", s.ID, err)
		}
		return
	}

	handler(s, req.Seq, req.Arguments.Request, req.Arguments.Configuration)
}
