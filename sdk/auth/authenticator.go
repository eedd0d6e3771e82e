package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	authcore "github.com/docgpt/docgpt/internal/auth"
	"github.com/docgpt/docgpt/internal/auth/callback"
	"github.com/docgpt/docgpt/internal/auth/credstore"
	"github.com/docgpt/docgpt/internal/auth/handoff"
	"github.com/docgpt/docgpt/internal/browser"
	"github.com/docgpt/docgpt/internal/config"
	"github.com/docgpt/docgpt/internal/misc"
	"github.com/docgpt/docgpt/internal/util"
	log "github.com/sirupsen/logrus"
)

// errNoBrowser is returned by the default opener when no launcher is installed.
var errNoBrowser = errors.New("no browser available")

// StoreFactory returns the handoff store for one attempt.
type StoreFactory func(ctx context.Context) (handoff.Store, error)

// ListenerStarter binds a callback listener that publishes its port to cfg.Store.
type ListenerStarter func(ctx context.Context, cfg callback.Config) (Listener, error)

// Authenticator runs authorization attempts against one identity provider and cache.
type Authenticator struct {
	cfg   *config.Config
	idp   IdentityProvider
	cache credstore.Cache

	newStore      StoreFactory
	startListener ListenerStarter
	openURL       func(url string) error
	copyText      func(text string) error
	remoteStop    func(ctx context.Context, port int) error

	portWait handoff.WaitPolicy
	codeWait handoff.WaitPolicy
}

// Option customizes an Authenticator.
type Option func(*Authenticator)

// WithStoreFactory replaces the handoff store selection.
func WithStoreFactory(f StoreFactory) Option {
	return func(a *Authenticator) { a.newStore = f }
}

// WithListenerStarter replaces the callback listener. A nil starter means the listener
// runs in another process and only the port record is awaited.
func WithListenerStarter(f ListenerStarter) Option {
	return func(a *Authenticator) { a.startListener = f }
}

// WithBrowser replaces the browser opener.
func WithBrowser(open func(url string) error) Option {
	return func(a *Authenticator) { a.openURL = open }
}

// WithClipboard replaces the clipboard writer.
func WithClipboard(copyText func(text string) error) Option {
	return func(a *Authenticator) { a.copyText = copyText }
}

// WithWaitPolicies overrides the port and code wait ceilings.
func WithWaitPolicies(port, code handoff.WaitPolicy) Option {
	return func(a *Authenticator) {
		a.portWait = port
		a.codeWait = code
	}
}

// NewAuthenticator constructs an authenticator. The handoff store, listener, and wait
// ceilings follow cfg.Auth unless overridden by opts.
func NewAuthenticator(cfg *config.Config, idp IdentityProvider, cache credstore.Cache, opts ...Option) (*Authenticator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("docgpt auth: configuration is required")
	}
	if idp == nil {
		return nil, fmt.Errorf("docgpt auth: identity provider is required")
	}
	if cache == nil {
		cache = credstore.NoneCache{}
	}
	ac := cfg.Auth
	a := &Authenticator{
		cfg:      cfg,
		idp:      idp,
		cache:    cache,
		openURL:  defaultOpenURL,
		copyText: browser.CopyToClipboard,
		portWait: handoff.WaitPolicy{Attempts: ac.PortWaitAttempts, Interval: ac.PollInterval()}.Or(handoff.DefaultPortWait),
		codeWait: handoff.WaitPolicy{Attempts: ac.CodeWaitAttempts, Interval: ac.PollInterval()}.Or(handoff.DefaultCodeWait),
	}
	a.newStore = a.defaultStore
	if ac.ExternalListener {
		httpClient := &http.Client{Timeout: cfg.RequestTimeout()}
		a.remoteStop = func(ctx context.Context, port int) error {
			return callback.Shutdown(ctx, httpClient, ac.CallbackHost, port)
		}
	} else {
		a.startListener = startCallbackListener
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *Authenticator) service() string     { return a.cfg.Auth.Service }
func (a *Authenticator) placeholder() string { return a.cfg.Auth.PlaceholderUser }

// Authorize runs one authorization attempt and always returns a terminal outcome.
// The callback listener and handoff records never outlive the call.
func (a *Authenticator) Authorize(ctx context.Context, opts *LoginOptions) *Outcome {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts == nil {
		opts = &LoginOptions{}
	}
	s, ctx := newSession(ctx, a.service())
	defer s.cleanup(ctx)
	s.enter(StateStart)

	if !opts.SkipCache {
		if outcome := a.tryCached(ctx, s); outcome != nil {
			return outcome
		}
	}
	if ctx.Err() != nil {
		return s.cancelled(ctx.Err())
	}
	s.enter(StateCacheMiss)
	return a.interactive(ctx, s, opts)
}

// tryCached returns an Authenticated outcome when a cached token still verifies, or nil
// to continue on the interactive path.
func (a *Authenticator) tryCached(ctx context.Context, s *Session) *Outcome {
	token, username, ok, err := credstore.Lookup(ctx, a.cache, a.service(), a.placeholder())
	if err != nil {
		s.log.Warnf("credential cache lookup failed: %v", err)
		return nil
	}
	if !ok {
		return nil
	}

	s.enter(StateCacheHit)
	login, err := a.idp.FetchIdentity(ctx, token)
	if err != nil {
		s.log.WithField("user", username).Infof("cached token did not verify: %v", err)
		return nil
	}
	a.reconcile(ctx, s, username, login, token)
	s.log.WithField("user", login).Info("authenticated with cached token")
	return s.authenticated(token, login)
}

func (a *Authenticator) interactive(ctx context.Context, s *Session, opts *LoginOptions) *Outcome {
	defer s.cleanup(ctx)
	out := opts.Output
	if out == nil {
		out = io.Discard
	}

	s.enter(StateListenerStart)
	store, err := a.newStore(ctx)
	if err != nil {
		return s.failed(authcore.ErrSetupFailed, err)
	}
	s.store = store

	state, err := misc.GenerateRandomState()
	if err != nil {
		return s.failed(authcore.ErrSetupFailed, err)
	}

	host := a.cfg.Auth.CallbackHost
	if a.startListener != nil {
		port := a.cfg.Auth.CallbackPort
		if opts.CallbackPort > 0 {
			port = opts.CallbackPort
		}
		l, errStart := a.startListener(ctx, callback.Config{Host: host, Port: port, State: state, Store: store})
		if errStart != nil {
			return s.failed(authcore.ErrSetupFailed, errStart)
		}
		s.listener = l
	} else {
		s.remoteStop = a.remoteStop
		_, _ = fmt.Fprintln(out, "Waiting for the docgpt callback server (docgpt -callback-server) to publish its port...")
	}

	port, err := handoff.WaitForPort(ctx, store, a.portWait)
	if err != nil {
		if ctx.Err() != nil {
			return s.cancelled(ctx.Err())
		}
		return s.failed(authcore.ErrPortTimeout, err)
	}
	s.Port = port
	s.log.WithField("port", port).Debug("callback port published")

	s.enter(StateBrowserOpen)
	redirectURI := callback.RedirectURI(host, port)
	authURL := a.idp.AuthCodeURL(state, redirectURI)
	a.present(out, s, authURL, port, opts.NoBrowser)

	s.enter(StateCodeWait)
	_, _ = fmt.Fprintln(out, "Waiting for GitHub authorization callback...")
	code, err := handoff.WaitForCode(ctx, store, a.codeWait)
	if err != nil {
		if ctx.Err() != nil {
			return s.cancelled(ctx.Err())
		}
		s.log.Infof("authorization code not received automatically: %v", err)
		var outcome *Outcome
		if code, outcome = a.manualCode(ctx, s, opts, state); outcome != nil {
			return outcome
		}
	}

	s.enter(StateExchange)
	token, err := a.idp.ExchangeCode(ctx, code, redirectURI)
	if err != nil {
		if ctx.Err() != nil {
			return s.cancelled(ctx.Err())
		}
		return s.failed(authcore.ErrCodeExchangeFailed, err)
	}
	if err = a.cache.Set(ctx, a.service(), a.placeholder(), token); err != nil {
		s.log.Warnf("failed to cache token under %s: %v", a.placeholder(), err)
	}

	s.enter(StateVerify)
	login, err := a.idp.FetchIdentity(ctx, token)
	if err != nil {
		if ctx.Err() != nil {
			return s.cancelled(ctx.Err())
		}
		outcome := s.failed(authcore.ErrIdentityUnresolved, err)
		outcome.Token = token
		return outcome
	}
	a.reconcile(ctx, s, a.placeholder(), login, token)
	misc.LogSavingCredentials(out, a.cache.Name(), a.service(), login)
	_, _ = fmt.Fprintf(out, "Authenticated as %s\n", login)
	return s.authenticated(token, login)
}

// manualCode prompts for the code after the automatic handoff timed out. A nil outcome
// means a code was obtained.
func (a *Authenticator) manualCode(ctx context.Context, s *Session, opts *LoginOptions, state string) (string, *Outcome) {
	if opts.Prompt == nil {
		return "", s.failed(authcore.ErrCodeMissing, handoff.ErrWaitTimeout)
	}

	type promptResult struct {
		input string
		err   error
	}
	resultCh := make(chan promptResult, 1)
	go func() {
		input, err := opts.Prompt("Paste the authorization code shown in the browser (or the full callback URL): ")
		resultCh <- promptResult{input: input, err: err}
	}()

	var res promptResult
	select {
	case <-ctx.Done():
		return "", s.cancelled(ctx.Err())
	case res = <-resultCh:
	}
	if res.err != nil {
		return "", s.cancelled(res.err)
	}

	code, err := misc.ParseManualCode(res.input, state)
	switch {
	case errors.Is(err, misc.ErrEmptyInput):
		return "", s.failed(authcore.ErrCodeMissing, err)
	case err != nil:
		return "", s.failed(authcore.ErrInvalidState, err)
	}
	return code, nil
}

// present shows the authorization URL and opens it. Opening is best-effort; the URL is
// always printed.
func (a *Authenticator) present(out io.Writer, s *Session, authURL string, port int, noBrowser bool) {
	_, _ = fmt.Fprintf(out, "Visit the following URL to authorize docgpt:\n%s\n", authURL)
	if a.copyText != nil {
		if err := a.copyText(authURL); err != nil {
			s.log.Debugf("authorization URL not copied to clipboard: %v", err)
		} else {
			_, _ = fmt.Fprintln(out, "(The URL has been copied to your clipboard.)")
		}
	}
	if noBrowser || a.openURL == nil {
		util.PrintSSHTunnelInstructions(out, port)
		return
	}
	if err := a.openURL(authURL); err != nil {
		s.log.Warnf("failed to open browser automatically: %v", err)
		util.PrintSSHTunnelInstructions(out, port)
	}
}

// reconcile moves token from the from username to login. Cache errors are soft: the
// session keeps the in-memory token.
func (a *Authenticator) reconcile(ctx context.Context, s *Session, from, login, token string) {
	if err := credstore.Reconcile(ctx, a.cache, a.service(), a.placeholder(), from, login, token); err != nil {
		s.log.WithField("from", from).WithField("user", login).Warnf("credential reconciliation incomplete: %v", err)
		return
	}
	if from != login {
		s.log.WithField("from", from).WithField("user", login).Debug("credential reconciled")
	}
}

func (a *Authenticator) defaultStore(ctx context.Context) (handoff.Store, error) {
	ac := a.cfg.Auth
	if ac.HandoffStore != config.HandoffStoreFile {
		return handoff.NewMemoryStore(), nil
	}
	dir, err := util.ExpandPath(ac.HandoffDir)
	if err != nil {
		return nil, err
	}
	if ac.ExternalListener {
		return handoff.OpenFileStore(dir)
	}
	return handoff.NewFileStore(ctx, dir)
}

func startCallbackListener(ctx context.Context, cfg callback.Config) (Listener, error) {
	l, err := callback.Start(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return l, nil
}

func defaultOpenURL(url string) error {
	if !browser.IsAvailable() {
		return errNoBrowser
	}
	log.Debug("opening authorization URL in browser")
	return browser.OpenURL(url)
}
