package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	authcore "github.com/docgpt/docgpt/internal/auth"
	"github.com/docgpt/docgpt/internal/config"
	sdkAuth "github.com/docgpt/docgpt/sdk/auth"
	log "github.com/sirupsen/logrus"
)

// LoginOptions contains options for the login processes.
// It provides configuration for authentication flows including browser behavior
// and interactive prompting capabilities.
type LoginOptions struct {
	// NoBrowser indicates whether to skip opening the browser automatically.
	NoBrowser bool

	// CallbackPort overrides the local OAuth callback port when set (>0).
	CallbackPort int

	// Device selects the device authorization grant instead of the loopback callback.
	Device bool

	// Force skips the cached token and always runs the interactive flow.
	Force bool

	// Prompt allows the caller to provide interactive input when needed.
	Prompt func(prompt string) (string, error)

	// Output receives user-facing messages. Nil selects stdout.
	Output io.Writer

	// AuthOptions are passed to the authenticator; tests use them to replace the browser.
	AuthOptions []sdkAuth.Option
}

func (o *LoginOptions) output() io.Writer {
	if o == nil || o.Output == nil {
		return os.Stdout
	}
	return o.Output
}

// DoLogin authorizes docgpt against GitHub and returns the token and login. A Failed
// outcome that still carries a token (the identity lookup failed) is returned with its
// error so the caller can decide whether to continue with the session token.
func DoLogin(ctx context.Context, cfg *config.Config, options *LoginOptions) (*sdkAuth.Outcome, error) {
	if options == nil {
		options = &LoginOptions{}
	}
	out := options.output()

	promptFn := options.Prompt
	if promptFn == nil {
		promptFn = newLinePrompt(os.Stdin, out)
	}

	manager, err := newAuthManager(ctx, cfg, options.AuthOptions...)
	if err != nil {
		return nil, err
	}

	method := sdkAuth.MethodBrowser
	if options.Device {
		method = sdkAuth.MethodDevice
	}
	authOpts := &sdkAuth.LoginOptions{
		NoBrowser:    options.NoBrowser || cfg.Auth.NoBrowser,
		CallbackPort: options.CallbackPort,
		SkipCache:    options.Force,
		Prompt:       promptFn,
		Output:       out,
	}

	outcome, err := manager.Login(ctx, method, authOpts)
	if err != nil {
		log.Debugf("login ended: %v", err)
		if authcore.IsAuthenticationError(err) || authcore.IsProviderError(err) {
			_, _ = fmt.Fprintln(out, authcore.GetUserFriendlyMessage(err))
		} else {
			_, _ = fmt.Fprintf(out, "GitHub authentication failed: %v\n", err)
		}
		return outcome, err
	}

	_, _ = fmt.Fprintf(out, "GitHub authentication successful! Logged in as %s\n", outcome.Username)
	return outcome, nil
}

// DoLogout removes the cached GitHub token.
func DoLogout(ctx context.Context, cfg *config.Config, out io.Writer) error {
	if out == nil {
		out = os.Stdout
	}
	manager, err := newAuthManager(ctx, cfg)
	if err != nil {
		return err
	}
	if err = manager.Logout(ctx); err != nil {
		_, _ = fmt.Fprintf(out, "Failed to remove cached credentials: %v\n", err)
		return err
	}
	_, _ = fmt.Fprintln(out, "Cached GitHub credentials removed.")
	return nil
}

// ExitCode maps a command error onto a process exit status.
func ExitCode(err error) int {
	if authErr, ok := errors.AsType[*authcore.AuthenticationError](err); ok {
		if authErr.Type == authcore.ErrCancelled.Type {
			return 130
		}
	}
	return 1
}
