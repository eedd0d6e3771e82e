// Package github is the identity provider client: it builds GitHub authorization URLs,
// exchanges codes for access tokens, runs the device grant, and resolves the login
// that owns a token. Every call is bounded by the configured request timeout and
// fails with an *auth.ProviderError classed as auth.ErrNoResponse or auth.ErrRejected.
package github

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/docgpt/docgpt/internal/auth"
	"github.com/docgpt/docgpt/internal/config"
	"github.com/docgpt/docgpt/internal/util"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
	ghoauth "golang.org/x/oauth2/github"
)

const (
	// DefaultAPIBaseURL is the public GitHub REST API.
	DefaultAPIBaseURL = "https://api.github.com"
	// APIVersion pins the REST API version sent with every request.
	APIVersion = "2022-11-28"
)

// Client talks to GitHub's OAuth endpoints and the /user API.
type Client struct {
	oauth      oauth2.Config
	apiBaseURL string
	httpClient *http.Client
	timeout    time.Duration
}

// NewClient builds a client from cfg. Empty endpoint URLs use github.com.
func NewClient(cfg *config.Config) *Client {
	endpoint := ghoauth.Endpoint
	endpoint.AuthStyle = oauth2.AuthStyleInParams
	if v := strings.TrimSpace(cfg.GitHub.AuthURL); v != "" {
		endpoint.AuthURL = v
	}
	if v := strings.TrimSpace(cfg.GitHub.TokenURL); v != "" {
		endpoint.TokenURL = v
	}
	if v := strings.TrimSpace(cfg.GitHub.DeviceAuthURL); v != "" {
		endpoint.DeviceAuthURL = v
	}
	apiBase := strings.TrimRight(strings.TrimSpace(cfg.GitHub.APIBaseURL), "/")
	if apiBase == "" {
		apiBase = DefaultAPIBaseURL
	}

	httpClient := util.NewHTTPClient(&cfg.SDKConfig)
	httpClient.Transport = &acceptJSON{base: httpClient.Transport}

	return &Client{
		oauth: oauth2.Config{
			ClientID:     cfg.GitHub.ClientID,
			ClientSecret: cfg.GitHub.ClientSecret,
			Endpoint:     endpoint,
			Scopes:       append([]string(nil), cfg.GitHub.Scopes...),
		},
		apiBaseURL: apiBase,
		httpClient: httpClient,
		timeout:    cfg.RequestTimeout(),
	}
}

// AuthCodeURL returns the URL the user visits to authorize the app.
func (c *Client) AuthCodeURL(state, redirectURI string) string {
	conf := c.oauth
	conf.RedirectURL = redirectURI
	return conf.AuthCodeURL(state, oauth2.SetAuthURLParam("allow_signup", "false"))
}

// ExchangeCode trades an authorization code for an access token.
func (c *Client) ExchangeCode(ctx context.Context, code, redirectURI string) (string, error) {
	ctx, cancel := c.bounded(ctx)
	defer cancel()

	conf := c.oauth
	conf.RedirectURL = redirectURI
	token, err := conf.Exchange(ctx, code)
	if err != nil {
		return "", classifyTokenError("exchange", err)
	}
	if token.AccessToken == "" {
		return "", auth.Rejected("exchange", http.StatusOK, "", "response missing access_token")
	}
	return token.AccessToken, nil
}

// DeviceAuth starts the device authorization grant.
func (c *Client) DeviceAuth(ctx context.Context) (*oauth2.DeviceAuthResponse, error) {
	ctx, cancel := c.bounded(ctx)
	defer cancel()

	da, err := c.oauth.DeviceAuth(ctx)
	if err != nil {
		return nil, classifyTokenError("device_auth", err)
	}
	return da, nil
}

// PollDeviceToken waits for the user to approve the device code and returns the token.
// The wait is bounded by the device code's expiry, not by the request timeout.
func (c *Client) PollDeviceToken(ctx context.Context, da *oauth2.DeviceAuthResponse) (string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	token, err := c.oauth.DeviceAccessToken(ctx, da)
	if err != nil {
		return "", classifyTokenError("device_token", err)
	}
	if token.AccessToken == "" {
		return "", auth.Rejected("device_token", http.StatusOK, "", "response missing access_token")
	}
	return token.AccessToken, nil
}

// FetchIdentity returns the login of the account that owns token.
func (c *Client) FetchIdentity(ctx context.Context, token string) (string, error) {
	ctx, cancel := c.bounded(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBaseURL+"/user", nil)
	if err != nil {
		return "", auth.NoResponse("identity", err)
	}
	SetAPIHeaders(req, token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", auth.NoResponse("identity", err)
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.Debugf("github: close identity response: %v", errClose)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", auth.NoResponse("identity", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", auth.Rejected("identity", resp.StatusCode, "", gjson.GetBytes(body, "message").String())
	case resp.StatusCode >= http.StatusInternalServerError:
		return "", &auth.ProviderError{Op: "identity", Kind: auth.ErrNoResponse, StatusCode: resp.StatusCode}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return "", auth.Rejected("identity", resp.StatusCode, "", gjson.GetBytes(body, "message").String())
	}

	login := strings.TrimSpace(gjson.GetBytes(body, "login").String())
	if login == "" {
		return "", auth.Rejected("identity", resp.StatusCode, "", "response missing login")
	}
	return login, nil
}

// SetAPIHeaders sets the authorization and version headers GitHub's REST API expects.
func SetAPIHeaders(req *http.Request, token string) {
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", APIVersion)
	req.Header.Set("User-Agent", "docgpt")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func (c *Client) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// classifyTokenError maps an oauth2 error onto the provider error classes.
func classifyTokenError(op string, err error) error {
	if retrieveErr, ok := errors.AsType[*oauth2.RetrieveError](err); ok {
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		if status >= http.StatusInternalServerError && retrieveErr.ErrorCode == "" {
			pe := auth.NoResponse(op, err)
			pe.StatusCode = status
			return pe
		}
		pe := auth.Rejected(op, status, retrieveErr.ErrorCode, retrieveErr.ErrorDescription)
		pe.Cause = err
		return pe
	}
	if strings.Contains(err.Error(), "missing access_token") {
		pe := auth.Rejected(op, 0, "", "response missing access_token")
		pe.Cause = err
		return pe
	}
	return auth.NoResponse(op, err)
}

// acceptJSON asks GitHub's OAuth endpoints for JSON bodies, which carry RFC 6749 error codes.
type acceptJSON struct {
	base http.RoundTripper
}

func (t *acceptJSON) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	if req.Header.Get("Accept") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("Accept", "application/json")
	}
	return base.RoundTrip(req)
}
