package github

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/docgpt/docgpt/internal/auth"
	"github.com/docgpt/docgpt/internal/config"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := &config.Config{}
	cfg.GitHub = config.GitHubConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		AuthURL:      srv.URL + "/login/oauth/authorize",
		TokenURL:     srv.URL + "/login/oauth/access_token",
		APIBaseURL:   srv.URL + "/api/",
		Scopes:       []string{"repo"},
	}
	cfg.RequestTimeoutSeconds = 2
	return NewClient(cfg), srv
}

func TestAuthCodeURL(t *testing.T) {
	c, srv := newTestClient(t, http.NotFoundHandler())
	raw := c.AuthCodeURL("state-1", "http://127.0.0.1:4321/callback")
	if !strings.HasPrefix(raw, srv.URL+"/login/oauth/authorize?") {
		t.Fatalf("unexpected auth url %s", raw)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	q := u.Query()
	if q.Get("state") != "state-1" || q.Get("redirect_uri") != "http://127.0.0.1:4321/callback" || q.Get("client_id") != "client-id" {
		t.Fatalf("missing parameters in %s", raw)
	}
	if q.Get("scope") != "repo" {
		t.Fatalf("scope = %q", q.Get("scope"))
	}
}

func TestExchangeCodeSuccess(t *testing.T) {
	var gotForm url.Values
	var gotAccept string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotForm, _ = url.ParseQuery(string(body))
		gotAccept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"tok_1","token_type":"bearer","scope":"repo"}`)
	}))

	token, err := c.ExchangeCode(context.Background(), "abc", "http://127.0.0.1:4321/callback")
	if err != nil {
		t.Fatalf("ExchangeCode: %v", err)
	}
	if token != "tok_1" {
		t.Fatalf("token = %q", token)
	}
	if gotForm.Get("code") != "abc" || gotForm.Get("client_secret") != "client-secret" || gotForm.Get("redirect_uri") != "http://127.0.0.1:4321/callback" {
		t.Fatalf("unexpected form %v", gotForm)
	}
	if gotAccept != "application/json" {
		t.Fatalf("Accept = %q", gotAccept)
	}
}

func TestExchangeCodeRejected(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"bad_verification_code","error_description":"The code passed is incorrect or expired."}`)
	}))

	_, err := c.ExchangeCode(context.Background(), "stale", "http://127.0.0.1:1/callback")
	if !errors.Is(err, auth.ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	pe, ok := errors.AsType[*auth.ProviderError](err)
	if !ok || pe.Code != "bad_verification_code" || pe.StatusCode != http.StatusBadRequest {
		t.Fatalf("unexpected provider error %#v", pe)
	}
}

func TestExchangeCodeServerErrorIsNoResponse(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))

	_, err := c.ExchangeCode(context.Background(), "abc", "http://127.0.0.1:1/callback")
	if !errors.Is(err, auth.ErrNoResponse) {
		t.Fatalf("expected ErrNoResponse, got %v", err)
	}
}

func TestExchangeCodeUnreachable(t *testing.T) {
	c, srv := newTestClient(t, http.NotFoundHandler())
	srv.Close()

	_, err := c.ExchangeCode(context.Background(), "abc", "http://127.0.0.1:1/callback")
	if !errors.Is(err, auth.ErrNoResponse) {
		t.Fatalf("expected ErrNoResponse, got %v", err)
	}
	if errors.Is(err, auth.ErrRejected) {
		t.Fatal("an unreachable provider must not be classed as a rejection")
	}
}

func TestFetchIdentity(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantLogin string
		wantKind  error
	}{
		{name: "ok", status: http.StatusOK, body: `{"login":"alice","id":1}`, wantLogin: "alice"},
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"message":"Bad credentials"}`, wantKind: auth.ErrRejected},
		{name: "server error", status: http.StatusInternalServerError, body: `{}`, wantKind: auth.ErrNoResponse},
		{name: "missing login", status: http.StatusOK, body: `{"id":1}`, wantKind: auth.ErrRejected},
		{name: "not found", status: http.StatusNotFound, body: `{"message":"Not Found"}`, wantKind: auth.ErrRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotAuth, gotVersion string
			c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/api/user" {
					http.NotFound(w, r)
					return
				}
				gotAuth = r.Header.Get("Authorization")
				gotVersion = r.Header.Get("X-GitHub-Api-Version")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))

			login, err := c.FetchIdentity(context.Background(), "tok_1")
			if gotAuth != "Bearer tok_1" || gotVersion != APIVersion {
				t.Fatalf("headers: auth=%q version=%q", gotAuth, gotVersion)
			}
			if tt.wantKind == nil {
				if err != nil || login != tt.wantLogin {
					t.Fatalf("FetchIdentity = %q, %v", login, err)
				}
				return
			}
			if !errors.Is(err, tt.wantKind) {
				t.Fatalf("expected %v, got %v", tt.wantKind, err)
			}
		})
	}
}
