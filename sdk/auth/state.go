package auth

import (
	"context"
	"sync"
	"time"

	authcore "github.com/docgpt/docgpt/internal/auth"
	"github.com/docgpt/docgpt/internal/auth/handoff"
	"github.com/docgpt/docgpt/internal/logging"
	log "github.com/sirupsen/logrus"
)

// State is a step of one authorization attempt.
type State int

const (
	StateStart State = iota
	StateCacheHit
	StateCacheMiss
	StateListenerStart
	StateBrowserOpen
	StateCodeWait
	StateExchange
	StateVerify
	StateAuthenticated
	StateFailed
	StateCancelled
)

var stateNames = [...]string{
	StateStart:         "start",
	StateCacheHit:      "cache_hit",
	StateCacheMiss:     "cache_miss",
	StateListenerStart: "listener_start",
	StateBrowserOpen:   "browser_open",
	StateCodeWait:      "code_wait",
	StateExchange:      "exchange",
	StateVerify:        "verify",
	StateAuthenticated: "authenticated",
	StateFailed:        "failed",
	StateCancelled:     "cancelled",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateAuthenticated || s == StateFailed || s == StateCancelled
}

// Outcome is the single result of an authorization attempt.
type Outcome struct {
	State State
	// Token is set when Authenticated, and also when Failed after a successful
	// exchange so the caller can still use it for the current run.
	Token    string
	Username string
	// Reason explains Failed and Cancelled outcomes.
	Reason *authcore.AuthenticationError
	// Trace lists every state the attempt passed through, in order.
	Trace []State
	// AttemptID correlates the attempt's log lines.
	AttemptID string
}

// Err returns Reason as an error, or nil when authenticated.
func (o *Outcome) Err() error {
	if o == nil || o.Reason == nil {
		return nil
	}
	return o.Reason
}

// Listener is the part of a callback listener the session tears down.
type Listener interface {
	Stop(ctx context.Context) error
}

// Session is the in-memory record of one authorization attempt. It is never persisted.
type Session struct {
	ID       string
	State    State
	Port     int
	Username string

	trace    []State
	log      *log.Entry
	store    handoff.Store
	listener Listener
	// remoteStop shuts down a listener owned by another process.
	remoteStop func(ctx context.Context, port int) error

	cleanupOnce sync.Once
}

func newSession(ctx context.Context, service string) (*Session, context.Context) {
	id := logging.GenerateRequestID()
	ctx = logging.WithRequestID(ctx, id)
	return &Session{
		ID:  id,
		log: logging.Entry(ctx).WithField("service", service),
	}, ctx
}

func (s *Session) enter(state State) {
	s.State = state
	s.trace = append(s.trace, state)
	s.log.WithField("state", state.String()).Debug("authorization state transition")
}

func (s *Session) authenticated(token, username string) *Outcome {
	s.Username = username
	s.enter(StateAuthenticated)
	return &Outcome{State: StateAuthenticated, Token: token, Username: username, Trace: s.trace, AttemptID: s.ID}
}

func (s *Session) failed(base *authcore.AuthenticationError, cause error) *Outcome {
	s.enter(StateFailed)
	reason := authcore.NewAuthenticationError(base, cause)
	s.log.WithField("reason", reason.Type).Warnf("authorization failed: %v", reason)
	return &Outcome{State: StateFailed, Reason: reason, Trace: s.trace, AttemptID: s.ID}
}

func (s *Session) cancelled(cause error) *Outcome {
	s.enter(StateCancelled)
	s.log.Info("authorization cancelled")
	return &Outcome{
		State:     StateCancelled,
		Reason:    authcore.NewAuthenticationError(authcore.ErrCancelled, cause),
		Trace:     s.trace,
		AttemptID: s.ID,
	}
}

// cleanup stops the listener and erases the handoff records. Every attempt runs it
// exactly once, including those that never bound a listener, and it uses its own
// deadline so it still completes after ctx was cancelled.
func (s *Session) cleanup(ctx context.Context) {
	s.cleanupOnce.Do(func() {
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		switch {
		case s.listener != nil:
			if err := s.listener.Stop(cleanupCtx); err != nil {
				s.log.Warnf("failed to stop callback listener: %v", err)
			}
		case s.remoteStop != nil && s.Port > 0:
			if err := s.remoteStop(cleanupCtx, s.Port); err != nil {
				s.log.WithField("port", s.Port).Warnf("failed to stop external callback listener: %v", err)
			}
		}
		if s.store != nil {
			if err := s.store.Erase(cleanupCtx); err != nil {
				s.log.Errorf("failed to erase handoff records: %v", err)
			}
		}
		s.log.Debug("authorization attempt cleaned up")
	})
}
