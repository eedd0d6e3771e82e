package cmd

import (
	"context"

	"github.com/docgpt/docgpt/internal/auth/credstore"
	ghauth "github.com/docgpt/docgpt/internal/auth/github"
	"github.com/docgpt/docgpt/internal/config"
	sdkAuth "github.com/docgpt/docgpt/sdk/auth"
)

// newAuthManager wires the GitHub OAuth client, the configured credential cache, and
// the authorization orchestrator into a manager that applies the retry cap.
func newAuthManager(ctx context.Context, cfg *config.Config, opts ...sdkAuth.Option) (*sdkAuth.Manager, error) {
	client := ghauth.NewClient(cfg)
	cache := credstore.New(ctx, cfg.Auth)
	authenticator, err := sdkAuth.NewAuthenticator(cfg, client, cache, opts...)
	if err != nil {
		return nil, err
	}
	return sdkAuth.NewManager(authenticator, client, cfg.Auth.MaxAttempts), nil
}
