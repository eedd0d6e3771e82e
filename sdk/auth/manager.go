package auth

import (
	"context"
	"fmt"

	authcore "github.com/docgpt/docgpt/internal/auth"
	"github.com/docgpt/docgpt/internal/auth/credstore"
	log "github.com/sirupsen/logrus"
)

// Method selects the interactive login flow.
type Method int

const (
	// MethodBrowser runs the loopback callback flow.
	MethodBrowser Method = iota
	// MethodDevice runs the device authorization grant.
	MethodDevice
)

// Manager coordinates repeated attempts and logout on top of an Authenticator.
type Manager struct {
	authenticator *Authenticator
	device        DeviceProvider
	maxAttempts   int
}

// NewManager constructs a manager. device may be nil when only the browser flow is used.
// maxAttempts <= 0 means a single attempt.
func NewManager(a *Authenticator, device DeviceProvider, maxAttempts int) *Manager {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &Manager{authenticator: a, device: device, maxAttempts: maxAttempts}
}

// Login runs attempts until one is Authenticated or Cancelled, or maxAttempts Failed
// outcomes have been seen. Setup failures end the loop at once since a retry would hit
// the same bind or port problem. Only the first attempt consults the cache.
func (m *Manager) Login(ctx context.Context, method Method, opts *LoginOptions) (*Outcome, error) {
	if m.authenticator == nil {
		return nil, fmt.Errorf("docgpt auth: authenticator is required")
	}
	if opts == nil {
		opts = &LoginOptions{}
	}

	var outcome *Outcome
	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		attemptOpts := *opts
		if attempt > 1 {
			attemptOpts.SkipCache = true
		}
		switch method {
		case MethodDevice:
			outcome = m.authenticator.DeviceLogin(ctx, m.device, &attemptOpts)
		default:
			outcome = m.authenticator.Authorize(ctx, &attemptOpts)
		}
		if !outcome.State.Terminal() {
			return outcome, fmt.Errorf("docgpt auth: attempt stopped in non-terminal state %s", outcome.State)
		}
		if outcome.State != StateFailed || !retryable(outcome) {
			break
		}
		if attempt < m.maxAttempts {
			log.WithField("attempt", attempt).Infof("authorization attempt failed, retrying: %s", authcore.GetUserFriendlyMessage(outcome.Reason))
		}
	}
	return outcome, outcome.Err()
}

// Logout removes the cached token for the account the placeholder points to, and the
// placeholder entries themselves.
func (m *Manager) Logout(ctx context.Context) error {
	a := m.authenticator
	if a == nil {
		return nil
	}
	return credstore.Forget(ctx, a.cache, a.service(), a.placeholder())
}

func retryable(o *Outcome) bool {
	if o.Reason == nil {
		return true
	}
	switch o.Reason.Type {
	case authcore.ErrSetupFailed.Type, authcore.ErrPortTimeout.Type:
		return false
	}
	return true
}
