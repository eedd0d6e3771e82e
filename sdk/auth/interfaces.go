// Package auth drives the authorization state machine: it reuses a cached GitHub token
// when it still verifies, and otherwise runs the loopback OAuth handoff (or the device
// grant), verifies the new token, and reconciles it into the credential cache.
package auth

import (
	"context"
	"io"

	"golang.org/x/oauth2"
)

// LoginOptions captures knobs shared by the browser and device flows.
type LoginOptions struct {
	// NoBrowser only prints the authorization URL.
	NoBrowser bool
	// CallbackPort overrides the configured listener port when > 0.
	CallbackPort int
	// SkipCache forces the interactive path even when a cached token exists.
	SkipCache bool
	// Prompt asks the user for the authorization code after the code wait times out.
	// An error from Prompt is treated as the user interrupting the attempt.
	Prompt func(prompt string) (string, error)
	// Output receives user-facing instructions. Nil discards them.
	Output io.Writer
}

// IdentityProvider is the subset of the GitHub OAuth client used by the browser flow.
type IdentityProvider interface {
	AuthCodeURL(state, redirectURI string) string
	ExchangeCode(ctx context.Context, code, redirectURI string) (string, error)
	FetchIdentity(ctx context.Context, token string) (string, error)
}

// DeviceProvider is the subset of the GitHub OAuth client used by the device flow.
type DeviceProvider interface {
	DeviceAuth(ctx context.Context) (*oauth2.DeviceAuthResponse, error)
	PollDeviceToken(ctx context.Context, da *oauth2.DeviceAuthResponse) (string, error)
	FetchIdentity(ctx context.Context, token string) (string, error)
}
