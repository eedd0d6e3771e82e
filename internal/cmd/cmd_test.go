package cmd

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/docgpt/docgpt/internal/auth/callback"
	"github.com/docgpt/docgpt/internal/auth/credstore"
	"github.com/docgpt/docgpt/internal/auth/handoff"
	"github.com/docgpt/docgpt/internal/config"
	"github.com/docgpt/docgpt/internal/github"
	"github.com/tidwall/gjson"
)

func scripted(answers ...string) func(string) (string, error) {
	return func(string) (string, error) {
		if len(answers) == 0 {
			return "", io.EOF
		}
		a := answers[0]
		answers = answers[1:]
		return a, nil
	}
}

func TestLinePrompt(t *testing.T) {
	var out bytes.Buffer
	prompt := newLinePrompt(strings.NewReader(" abc \nlast"), &out)

	if v, err := prompt("Code: "); err != nil || v != "abc" {
		t.Fatalf("first = %q %v", v, err)
	}
	if v, err := prompt("Again: "); err != nil || v != "last" {
		t.Fatalf("unterminated last line = %q %v", v, err)
	}
	if _, err := prompt("More: "); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
	if out.String() != "Code: Again: More: " {
		t.Fatalf("prompts written = %q", out.String())
	}
}

func TestChooseRepository(t *testing.T) {
	repos := []github.Repository{{Name: "a"}, {Name: "b"}, {Name: "c"}}
	var out bytes.Buffer

	idx, err := chooseRepository(&out, scripted("x", "7", "2"), repos)
	if err != nil || idx != 1 {
		t.Fatalf("idx = %d err = %v", idx, err)
	}
	if strings.Count(out.String(), "Please enter a number") != 2 {
		t.Fatalf("invalid input not re-asked: %s", out.String())
	}

	if _, err = chooseRepository(io.Discard, scripted("q"), repos); !errors.Is(err, ErrNoSelection) {
		t.Fatalf("expected ErrNoSelection, got %v", err)
	}
	if _, err = chooseRepository(io.Discard, scripted(), repos); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestFindRepository(t *testing.T) {
	repos := []github.Repository{{Name: "docs", FullName: "octo/docs"}, {Name: "site", FullName: "octo/site"}}
	if findRepository(repos, "octo/site") != 1 || findRepository(repos, "DOCS") != 0 || findRepository(repos, "nope") != -1 {
		t.Fatal("findRepository mismatch")
	}
}

type fakeGitHub struct {
	mu        sync.Mutex
	putBody   []byte
	putCalled bool
}

func (f *fakeGitHub) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok_cached" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"message":"Bad credentials"}`)
			return
		}
		switch {
		case r.URL.Path == "/user":
			_, _ = io.WriteString(w, `{"login":"alice"}`)
		case r.URL.Path == "/user/repos":
			_, _ = io.WriteString(w, `[
				{"name":"site","full_name":"alice/site","owner":{"login":"alice"},"html_url":"https://github.com/alice/site"},
				{"name":"docs","full_name":"alice/docs","owner":{"login":"alice"},"html_url":"https://github.com/alice/docs"}
			]`)
		case r.URL.Path == "/repos/alice/site/contents/README.md":
			_, _ = io.WriteString(w, `{"sha":"s1"}`)
		case r.URL.Path == "/repos/alice/docs/contents/README.md" && r.Method == http.MethodGet:
			http.NotFound(w, r)
		case r.URL.Path == "/repos/alice/docs/contents/README.md" && r.Method == http.MethodPut:
			f.mu.Lock()
			f.putCalled = true
			f.putBody, _ = io.ReadAll(r.Body)
			f.mu.Unlock()
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `{"commit":{"sha":"c1"}}`)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			http.NotFound(w, r)
		}
	}
}

func generateConfig(t *testing.T, ghURL, openaiURL string) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.GitHub.APIBaseURL = ghURL
	cfg.OpenAI.BaseURL = openaiURL
	cfg.OpenAI.APIKey = "sk-test"
	cfg.Auth.CredentialStore = config.CredentialStoreFile
	cfg.Auth.CredentialFile = filepath.Join(t.TempDir(), "credentials.json")
	cfg.Readme.OutputDir = filepath.Join(t.TempDir(), "readmes")
	cfg.SanitizeDefaults()

	cache, err := credstore.NewFileCache(cfg.Auth.CredentialFile)
	if err != nil {
		t.Fatal(err)
	}
	if err = cache.Set(context.Background(), cfg.Auth.Service, cfg.Auth.PlaceholderUser, "tok_cached"); err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestDoGenerateWithCachedToken(t *testing.T) {
	gh := &fakeGitHub{}
	ghSrv := httptest.NewServer(gh.handler(t))
	defer ghSrv.Close()
	aiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"# docs\n"}}]}`)
	}))
	defer aiSrv.Close()

	cfg := generateConfig(t, ghSrv.URL, aiSrv.URL)
	var out bytes.Buffer
	err := DoGenerate(context.Background(), cfg, &GenerateOptions{
		LoginOptions: LoginOptions{Output: &out, Prompt: scripted("1", "y")},
		Branch:       "main",
	})
	if err != nil {
		t.Fatalf("DoGenerate: %v\n%s", err, out.String())
	}

	data, err := os.ReadFile(filepath.Join(cfg.Readme.OutputDir, "docs", "README.md"))
	if err != nil || string(data) != "# docs" {
		t.Fatalf("written README = %q %v", data, err)
	}
	gh.mu.Lock()
	defer gh.mu.Unlock()
	if !gh.putCalled {
		t.Fatal("README was not committed")
	}
	decoded, _ := base64.StdEncoding.DecodeString(gjson.GetBytes(gh.putBody, "content").String())
	if string(decoded) != "# docs" || gjson.GetBytes(gh.putBody, "branch").String() != "main" {
		t.Fatalf("unexpected commit payload %s", gh.putBody)
	}
	if !strings.Contains(out.String(), "Logged in as alice") {
		t.Fatalf("output missing login line:\n%s", out.String())
	}

	cache, _ := credstore.NewFileCache(cfg.Auth.CredentialFile)
	if token, ok, _ := cache.Get(context.Background(), cfg.Auth.Service, "alice"); !ok || token != "tok_cached" {
		t.Fatalf("token not reconciled to alice: %q %v", token, ok)
	}
}

func TestDoGenerateDryRunSkipsCommit(t *testing.T) {
	gh := &fakeGitHub{}
	ghSrv := httptest.NewServer(gh.handler(t))
	defer ghSrv.Close()
	aiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"# docs"}}]}`)
	}))
	defer aiSrv.Close()

	cfg := generateConfig(t, ghSrv.URL, aiSrv.URL)
	err := DoGenerate(context.Background(), cfg, &GenerateOptions{
		LoginOptions: LoginOptions{Output: io.Discard, Prompt: scripted()},
		Repo:         "alice/docs",
		DryRun:       true,
	})
	if err != nil {
		t.Fatalf("DoGenerate: %v", err)
	}
	if gh.putCalled {
		t.Fatal("dry run must not commit")
	}
}

func TestDoLogout(t *testing.T) {
	cfg := generateConfig(t, "http://127.0.0.1:1", "http://127.0.0.1:1")
	if err := DoLogout(context.Background(), cfg, io.Discard); err != nil {
		t.Fatalf("DoLogout: %v", err)
	}
	cache, _ := credstore.NewFileCache(cfg.Auth.CredentialFile)
	if _, ok, _ := cache.Get(context.Background(), cfg.Auth.Service, cfg.Auth.PlaceholderUser); ok {
		t.Fatal("placeholder token survived logout")
	}
}

func TestRunCallbackServerPublishesAndStops(t *testing.T) {
	cfg := &config.Config{}
	cfg.Auth.HandoffDir = t.TempDir()
	cfg.SanitizeDefaults()

	done := make(chan error, 1)
	go func() { done <- RunCallbackServer(context.Background(), cfg, io.Discard) }()

	store, err := handoff.OpenFileStore(cfg.Auth.HandoffDir)
	if err != nil {
		t.Fatal(err)
	}
	port, err := handoff.WaitForPort(context.Background(), store, handoff.WaitPolicy{Attempts: 100, Interval: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("WaitForPort: %v", err)
	}

	resp, err := http.Get(callback.RedirectURI("", port) + "?code=xyz")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if code, ok, _ := store.Code(context.Background()); !ok || code != "xyz" {
		t.Fatalf("code record = %q %v", code, ok)
	}

	if err = callback.Shutdown(context.Background(), nil, "", port); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	select {
	case err = <-done:
		if err != nil {
			t.Fatalf("RunCallbackServer: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("callback server did not stop")
	}
}
