// Package readme generates README text with an OpenAI-compatible chat completion
// endpoint and writes the result to disk.
package readme

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/docgpt/docgpt/internal/config"
	"github.com/docgpt/docgpt/internal/util"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// DefaultBaseURL is the public OpenAI API.
const DefaultBaseURL = "https://api.openai.com/v1"

const promptTemplate = "generate a detail readme file in markdown style for this repository: %s, only the related content, no other response."

// ErrMissingAPIKey is returned when no API key is configured.
var ErrMissingAPIKey = errors.New("readme: OpenAI API key is not configured (set OPENAI_API_KEY)")

// Generator produces README text for a repository URL.
type Generator struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewGenerator builds a generator from cfg.OpenAI. Outbound requests honour cfg.ProxyURL.
func NewGenerator(cfg *config.Config) *Generator {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.OpenAI.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := util.SetProxy(&cfg.SDKConfig, &http.Client{Timeout: cfg.OpenAI.Timeout()})
	return &Generator{
		baseURL:    baseURL,
		apiKey:     cfg.OpenAI.APIKey,
		model:      cfg.OpenAI.Model,
		httpClient: httpClient,
	}
}

// Generate asks the model for a README describing the repository at repoURL.
func (g *Generator) Generate(ctx context.Context, repoURL string) (string, error) {
	if strings.TrimSpace(g.apiKey) == "" {
		return "", ErrMissingAPIKey
	}

	payload := []byte(`{"messages":[{"role":"user","content":""}]}`)
	payload, _ = sjson.SetBytes(payload, "model", g.model)
	payload, _ = sjson.SetBytes(payload, "messages.0.content", fmt.Sprintf(promptTemplate, repoURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("readme: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	log.Debugf("readme: requesting completion from %s (model %s)", g.baseURL, g.model)
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("readme: completion request: %w", err)
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.Debugf("readme: close response body: %v", errClose)
		}
	}()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("readme: read completion: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := gjson.GetBytes(body, "error.message").String()
		if msg == "" {
			msg = strings.TrimSpace(string(body))
		}
		return "", fmt.Errorf("readme: completion failed with status %d: %s", resp.StatusCode, msg)
	}

	content := strings.TrimSpace(gjson.GetBytes(body, "choices.0.message.content").String())
	if content == "" {
		return "", fmt.Errorf("readme: completion returned no content")
	}
	return content, nil
}

// WriteFile stores content as <dir>/<repoName>/README.md and returns the path.
func WriteFile(dir, repoName, content string) (string, error) {
	name := filepath.Base(filepath.Clean(strings.TrimSpace(repoName)))
	if name == "" || name == "." || name == ".." || name == string(filepath.Separator) {
		return "", fmt.Errorf("readme: invalid repository name %q", repoName)
	}
	target := filepath.Join(dir, name)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return "", fmt.Errorf("readme: create output directory: %w", err)
	}
	path := filepath.Join(target, "README.md")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("readme: write %s: %w", path, err)
	}
	return path, nil
}
