package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigOptional_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfigOptional(filepath.Join(t.TempDir(), "missing.yaml"), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Auth.Service != "docgpt" {
		t.Fatalf("service = %q, want docgpt", cfg.Auth.Service)
	}
	if cfg.Auth.PlaceholderUser != "default" {
		t.Fatalf("placeholder = %q, want default", cfg.Auth.PlaceholderUser)
	}
	if cfg.Auth.PortWaitAttempts != 10 || cfg.Auth.CodeWaitAttempts != 60 {
		t.Fatalf("wait attempts = %d/%d, want 10/60", cfg.Auth.PortWaitAttempts, cfg.Auth.CodeWaitAttempts)
	}
	if cfg.Auth.PollInterval() != time.Second {
		t.Fatalf("poll interval = %v, want 1s", cfg.Auth.PollInterval())
	}
	if cfg.Auth.CredentialStore != CredentialStoreKeyring || cfg.Auth.HandoffStore != HandoffStoreMemory {
		t.Fatalf("stores = %q/%q", cfg.Auth.CredentialStore, cfg.Auth.HandoffStore)
	}
	if cfg.RequestTimeout() != DefaultRequestTimeout {
		t.Fatalf("request timeout = %v", cfg.RequestTimeout())
	}
}

func TestLoadConfigOptional_MissingFileRequired(t *testing.T) {
	if _, err := LoadConfigOptional(filepath.Join(t.TempDir(), "missing.yaml"), false); err == nil {
		t.Fatal("expected error for missing required config")
	}
}

func TestLoadConfig_ParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
debug: true
proxy-url: socks5://127.0.0.1:1080
request-timeout-seconds: 3
github:
  client-id: abc
  scopes: [repo]
auth:
  credential-store: FILE
  handoff-store: file
  callback-port: 8000
  poll-interval-ms: 250
  max-attempts: 1
openai:
  model: gpt-4o
readme:
  branch: main
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if !cfg.Debug || cfg.ProxyURL != "socks5://127.0.0.1:1080" {
		t.Fatalf("unexpected top-level fields: %+v", cfg)
	}
	if cfg.RequestTimeout() != 3*time.Second {
		t.Fatalf("request timeout = %v", cfg.RequestTimeout())
	}
	if cfg.GitHub.ClientID != "abc" || len(cfg.GitHub.Scopes) != 1 {
		t.Fatalf("github = %+v", cfg.GitHub)
	}
	if cfg.Auth.CredentialStore != CredentialStoreFile || cfg.Auth.HandoffStore != HandoffStoreFile {
		t.Fatalf("stores = %q/%q", cfg.Auth.CredentialStore, cfg.Auth.HandoffStore)
	}
	if cfg.Auth.CallbackPort != 8000 || cfg.Auth.PollInterval() != 250*time.Millisecond || cfg.Auth.MaxAttempts != 1 {
		t.Fatalf("auth = %+v", cfg.Auth)
	}
	if cfg.OpenAI.Model != "gpt-4o" || cfg.Readme.Branch != "main" || cfg.Readme.CommitMessage != DefaultCommitMessage {
		t.Fatalf("openai/readme = %+v / %+v", cfg.OpenAI, cfg.Readme)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	env := map[string]string{
		"GITHUB_CLIENT_ID":     " id-from-env ",
		"github_client_secret": "secret",
		"OPENAI_API_KEY":       "   ",
	}
	cfg := &Config{}
	cfg.OpenAI.APIKey = "from-file"
	cfg.ApplyEnvOverrides(func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	})
	if cfg.GitHub.ClientID != "id-from-env" {
		t.Fatalf("client id = %q", cfg.GitHub.ClientID)
	}
	if cfg.GitHub.ClientSecret != "secret" {
		t.Fatalf("client secret = %q", cfg.GitHub.ClientSecret)
	}
	if cfg.OpenAI.APIKey != "from-file" {
		t.Fatalf("blank env value must not override, got %q", cfg.OpenAI.APIKey)
	}
}
