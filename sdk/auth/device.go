package auth

import (
	"context"
	"fmt"
	"io"

	authcore "github.com/docgpt/docgpt/internal/auth"
)

// DeviceLogin runs the GitHub device authorization grant. No listener or handoff store
// is involved: the user enters a short code on github.com while the token endpoint is
// polled. The verified token is reconciled into the cache like the browser flow.
func (a *Authenticator) DeviceLogin(ctx context.Context, dp DeviceProvider, opts *LoginOptions) *Outcome {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts == nil {
		opts = &LoginOptions{}
	}
	out := opts.Output
	if out == nil {
		out = io.Discard
	}
	s, ctx := newSession(ctx, a.service())
	defer s.cleanup(ctx)
	s.enter(StateStart)
	if dp == nil {
		return s.failed(authcore.ErrSetupFailed, fmt.Errorf("device flow is not supported by this provider"))
	}

	da, err := dp.DeviceAuth(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return s.cancelled(ctx.Err())
		}
		return s.failed(authcore.ErrSetupFailed, err)
	}

	s.enter(StateBrowserOpen)
	verifyURL := da.VerificationURIComplete
	if verifyURL == "" {
		verifyURL = da.VerificationURI
	}
	_, _ = fmt.Fprintf(out, "Open %s and enter the code: %s\n", da.VerificationURI, da.UserCode)
	if a.copyText != nil {
		if errCopy := a.copyText(da.UserCode); errCopy == nil {
			_, _ = fmt.Fprintln(out, "(The code has been copied to your clipboard.)")
		}
	}
	if !opts.NoBrowser && a.openURL != nil {
		if errOpen := a.openURL(verifyURL); errOpen != nil {
			s.log.Warnf("failed to open browser automatically: %v", errOpen)
		}
	}

	s.enter(StateCodeWait)
	_, _ = fmt.Fprintln(out, "Waiting for the code to be approved...")
	token, err := dp.PollDeviceToken(ctx, da)
	if err != nil {
		if ctx.Err() != nil {
			return s.cancelled(ctx.Err())
		}
		return s.failed(authcore.ErrCodeExchangeFailed, err)
	}
	s.enter(StateExchange)
	if err = a.cache.Set(ctx, a.service(), a.placeholder(), token); err != nil {
		s.log.Warnf("failed to cache token under %s: %v", a.placeholder(), err)
	}

	s.enter(StateVerify)
	login, err := dp.FetchIdentity(ctx, token)
	if err != nil {
		if ctx.Err() != nil {
			return s.cancelled(ctx.Err())
		}
		outcome := s.failed(authcore.ErrIdentityUnresolved, err)
		outcome.Token = token
		return outcome
	}
	a.reconcile(ctx, s, a.placeholder(), login, token)
	_, _ = fmt.Fprintf(out, "Authenticated as %s\n", login)
	return s.authenticated(token, login)
}
