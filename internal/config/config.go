package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/docgpt/docgpt/internal/constant"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultPortWaitAttempts is the number of one-interval polls for the callback port.
	DefaultPortWaitAttempts = 10
	// DefaultCodeWaitAttempts is the number of one-interval polls for the authorization code.
	DefaultCodeWaitAttempts = 60
	// DefaultPollInterval spaces handoff polls.
	DefaultPollInterval = time.Second
	// DefaultMaxAttempts caps interactive authorization attempts within one run.
	DefaultMaxAttempts = 3
	// DefaultCallbackHost keeps the callback listener on loopback.
	DefaultCallbackHost = "127.0.0.1"
	// DefaultOpenAIModel matches the model the README generator was originally written against.
	DefaultOpenAIModel = "gpt-4-1106-preview"
	// DefaultCommitMessage is used when committing a generated README.
	DefaultCommitMessage = "Updated README.md"
)

// Credential store backends.
const (
	CredentialStoreKeyring = "keyring"
	CredentialStoreFile    = "file"
	CredentialStoreNone    = "none"
)

// Handoff store backends.
const (
	HandoffStoreMemory = "memory"
	HandoffStoreFile   = "file"
)

// Config represents the application's configuration, loaded from a YAML file.
type Config struct {
	SDKConfig `yaml:",inline"`

	// Debug enables debug-level logging.
	Debug bool `yaml:"debug" json:"debug"`

	// LoggingToFile switches log output from stdout to a rotating file.
	LoggingToFile bool `yaml:"logging-to-file" json:"logging-to-file"`

	// LogsMaxTotalSizeMB caps the total size of the log directory. <= 0 disables pruning.
	LogsMaxTotalSizeMB int `yaml:"logs-max-total-size-mb" json:"logs-max-total-size-mb"`

	// LogDir overrides the log directory used when LoggingToFile is enabled.
	LogDir string `yaml:"log-dir" json:"log-dir"`

	// GitHub configures the OAuth application and REST endpoints.
	GitHub GitHubConfig `yaml:"github" json:"github"`

	// Auth configures the authorization handoff and credential lifecycle.
	Auth AuthConfig `yaml:"auth" json:"auth"`

	// OpenAI configures the README text generation service.
	OpenAI OpenAIConfig `yaml:"openai" json:"openai"`

	// Readme configures where generated files land and how they are committed.
	Readme ReadmeConfig `yaml:"readme" json:"readme"`
}

// GitHubConfig describes the GitHub OAuth App and API base URL.
// Empty URLs fall back to the public github.com endpoints.
type GitHubConfig struct {
	ClientID      string   `yaml:"client-id" json:"client-id"`
	ClientSecret  string   `yaml:"client-secret" json:"-"`
	AuthURL       string   `yaml:"auth-url,omitempty" json:"auth-url,omitempty"`
	TokenURL      string   `yaml:"token-url,omitempty" json:"token-url,omitempty"`
	DeviceAuthURL string   `yaml:"device-auth-url,omitempty" json:"device-auth-url,omitempty"`
	APIBaseURL    string   `yaml:"api-base-url,omitempty" json:"api-base-url,omitempty"`
	Scopes        []string `yaml:"scopes,omitempty" json:"scopes,omitempty"`
}

// AuthConfig holds the knobs of the local OAuth handoff.
type AuthConfig struct {
	// Service is the secret-store service name.
	Service string `yaml:"service" json:"service"`

	// PlaceholderUser is the identity tokens are stored under until the real login is known.
	PlaceholderUser string `yaml:"placeholder-user" json:"placeholder-user"`

	// CredentialStore selects keyring, file or none.
	CredentialStore string `yaml:"credential-store" json:"credential-store"`

	// CredentialFile overrides the file backend location.
	CredentialFile string `yaml:"credential-file,omitempty" json:"credential-file,omitempty"`

	// HandoffStore selects memory (in-process) or file (cross-process).
	HandoffStore string `yaml:"handoff-store" json:"handoff-store"`

	// HandoffDir overrides the file handoff directory.
	HandoffDir string `yaml:"handoff-dir,omitempty" json:"handoff-dir,omitempty"`

	// CallbackHost is the loopback host the listener binds to.
	CallbackHost string `yaml:"callback-host" json:"callback-host"`

	// CallbackPort pins the listener port. 0 selects an ephemeral port.
	CallbackPort int `yaml:"callback-port" json:"callback-port"`

	// NoBrowser only prints the authorization URL.
	NoBrowser bool `yaml:"no-browser" json:"no-browser"`

	// ExternalListener expects the callback listener to run in a separate process
	// (docgpt -callback-server) and requires the file handoff store.
	ExternalListener bool `yaml:"external-listener" json:"external-listener"`

	PortWaitAttempts int `yaml:"port-wait-attempts" json:"port-wait-attempts"`
	CodeWaitAttempts int `yaml:"code-wait-attempts" json:"code-wait-attempts"`
	PollIntervalMS   int `yaml:"poll-interval-ms" json:"poll-interval-ms"`

	// MaxAttempts caps how many failed interactive attempts the CLI retries.
	MaxAttempts int `yaml:"max-attempts" json:"max-attempts"`
}

// PollInterval returns the configured handoff poll spacing.
func (a AuthConfig) PollInterval() time.Duration {
	if a.PollIntervalMS <= 0 {
		return DefaultPollInterval
	}
	return time.Duration(a.PollIntervalMS) * time.Millisecond
}

// OpenAIConfig configures the chat completion endpoint used for README text.
type OpenAIConfig struct {
	APIKey         string `yaml:"api-key" json:"-"`
	BaseURL        string `yaml:"base-url,omitempty" json:"base-url,omitempty"`
	Model          string `yaml:"model" json:"model"`
	TimeoutSeconds int    `yaml:"timeout-seconds,omitempty" json:"timeout-seconds,omitempty"`
}

// Timeout returns the generation request timeout; text generation is slow, so the default is generous.
func (o OpenAIConfig) Timeout() time.Duration {
	if o.TimeoutSeconds <= 0 {
		return 2 * time.Minute
	}
	return time.Duration(o.TimeoutSeconds) * time.Second
}

// ReadmeConfig configures output and commit behaviour.
type ReadmeConfig struct {
	OutputDir     string `yaml:"output-dir" json:"output-dir"`
	Branch        string `yaml:"branch,omitempty" json:"branch,omitempty"`
	CommitMessage string `yaml:"commit-message" json:"commit-message"`
}

// LoadConfig reads a YAML configuration file, failing when it does not exist.
func LoadConfig(configFile string) (*Config, error) {
	return LoadConfigOptional(configFile, false)
}

// LoadConfigOptional reads a YAML configuration file. When optional is true a missing
// or empty file yields a configuration populated with defaults.
func LoadConfigOptional(configFile string, optional bool) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(configFile)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			cfg.SanitizeDefaults()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if len(strings.TrimSpace(string(data))) > 0 {
		if err = yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	cfg.SanitizeDefaults()
	return cfg, nil
}

// SanitizeDefaults fills unset fields with their defaults and normalizes enumerations.
func (c *Config) SanitizeDefaults() {
	if c == nil {
		return
	}
	a := &c.Auth
	a.Service = strings.TrimSpace(a.Service)
	if a.Service == "" {
		a.Service = constant.KeyringService
	}
	a.PlaceholderUser = strings.TrimSpace(a.PlaceholderUser)
	if a.PlaceholderUser == "" {
		a.PlaceholderUser = constant.PlaceholderUser
	}
	switch strings.ToLower(strings.TrimSpace(a.CredentialStore)) {
	case CredentialStoreFile:
		a.CredentialStore = CredentialStoreFile
	case CredentialStoreNone:
		a.CredentialStore = CredentialStoreNone
	default:
		a.CredentialStore = CredentialStoreKeyring
	}
	switch strings.ToLower(strings.TrimSpace(a.HandoffStore)) {
	case HandoffStoreFile:
		a.HandoffStore = HandoffStoreFile
	default:
		a.HandoffStore = HandoffStoreMemory
	}
	if a.ExternalListener {
		a.HandoffStore = HandoffStoreFile
	}
	if strings.TrimSpace(a.CallbackHost) == "" {
		a.CallbackHost = DefaultCallbackHost
	}
	if a.CallbackPort < 0 || a.CallbackPort > 65535 {
		a.CallbackPort = 0
	}
	if a.PortWaitAttempts <= 0 {
		a.PortWaitAttempts = DefaultPortWaitAttempts
	}
	if a.CodeWaitAttempts <= 0 {
		a.CodeWaitAttempts = DefaultCodeWaitAttempts
	}
	if a.MaxAttempts <= 0 {
		a.MaxAttempts = DefaultMaxAttempts
	}
	if len(c.GitHub.Scopes) == 0 {
		c.GitHub.Scopes = []string{"repo", "read:user"}
	}
	if strings.TrimSpace(c.OpenAI.Model) == "" {
		c.OpenAI.Model = DefaultOpenAIModel
	}
	if strings.TrimSpace(c.Readme.OutputDir) == "" {
		c.Readme.OutputDir = "readmes"
	}
	if strings.TrimSpace(c.Readme.CommitMessage) == "" {
		c.Readme.CommitMessage = DefaultCommitMessage
	}
}

// ApplyEnvOverrides copies secrets and endpoints from the environment into the configuration.
// lookup mirrors os.LookupEnv so callers can inject a fake environment.
func (c *Config) ApplyEnvOverrides(lookup func(string) (string, bool)) {
	if c == nil || lookup == nil {
		return
	}
	get := func(keys ...string) (string, bool) {
		for _, key := range keys {
			if value, ok := lookup(key); ok {
				if trimmed := strings.TrimSpace(value); trimmed != "" {
					return trimmed, true
				}
			}
		}
		return "", false
	}
	if v, ok := get("GITHUB_CLIENT_ID", "github_client_id"); ok {
		c.GitHub.ClientID = v
	}
	if v, ok := get("GITHUB_CLIENT_SECRET", "github_client_secret"); ok {
		c.GitHub.ClientSecret = v
	}
	if v, ok := get("OPENAI_API_KEY", "openai_api_key"); ok {
		c.OpenAI.APIKey = v
	}
	if v, ok := get("DOCGPT_PROXY_URL", "docgpt_proxy_url"); ok {
		c.ProxyURL = v
	}
}
