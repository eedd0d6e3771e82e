// Package github is the GitHub REST client used after authorization: it lists the
// user's repositories, checks them for a README.md, and commits generated READMEs.
package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	ghauth "github.com/docgpt/docgpt/internal/auth/github"
	"github.com/docgpt/docgpt/internal/config"
	"github.com/docgpt/docgpt/internal/util"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
)

const (
	perPage          = 100
	readmePath       = "README.md"
	readmeCheckLimit = 4
	maxBodyBytes     = 8 << 20
)

// Repository is the subset of a GitHub repository the README flow needs.
type Repository struct {
	Name          string
	FullName      string
	Owner         string
	HTMLURL       string
	DefaultBranch string
	Private       bool
	Fork          bool
	Archived      bool
}

// APIError is a non-success REST response.
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("github: %s %s: status %d: %s", e.Method, e.URL, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("github: %s %s: status %d", e.Method, e.URL, e.StatusCode)
}

// Client calls the REST API on behalf of one token.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a client that authenticates every request with token. The
// underlying transport honours cfg.ProxyURL and the request timeout.
func NewClient(cfg *config.Config, token string) *Client {
	base := util.NewHTTPClient(&cfg.SDKConfig)
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}))
	httpClient.Timeout = base.Timeout

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.GitHub.APIBaseURL), "/")
	if baseURL == "" {
		baseURL = ghauth.DefaultAPIBaseURL
	}
	return &Client{baseURL: baseURL, httpClient: httpClient}
}

// ListRepositories returns every repository the token can access, following pages.
func (c *Client) ListRepositories(ctx context.Context) ([]Repository, error) {
	var repos []Repository
	for page := 1; ; page++ {
		query := url.Values{
			"per_page": {strconv.Itoa(perPage)},
			"page":     {strconv.Itoa(page)},
			"sort":     {"full_name"},
		}
		status, body, err := c.do(ctx, http.MethodGet, "/user/repos?"+query.Encode(), nil)
		if err != nil {
			return nil, err
		}
		if status != http.StatusOK {
			return nil, c.apiError(http.MethodGet, "/user/repos", status, body)
		}
		items := gjson.ParseBytes(body)
		if !items.IsArray() {
			return nil, fmt.Errorf("github: unexpected repository list response")
		}
		count := 0
		items.ForEach(func(_, item gjson.Result) bool {
			count++
			repos = append(repos, Repository{
				Name:          item.Get("name").String(),
				FullName:      item.Get("full_name").String(),
				Owner:         item.Get("owner.login").String(),
				HTMLURL:       item.Get("html_url").String(),
				DefaultBranch: item.Get("default_branch").String(),
				Private:       item.Get("private").Bool(),
				Fork:          item.Get("fork").Bool(),
				Archived:      item.Get("archived").Bool(),
			})
			return true
		})
		log.Debugf("github: listed page %d (%d repositories)", page, count)
		if count < perPage {
			return repos, nil
		}
	}
}

// HasReadme reports whether repo has a README.md at its root on the default branch.
func (c *Client) HasReadme(ctx context.Context, repo Repository) (bool, error) {
	status, body, err := c.do(ctx, http.MethodGet, contentsPath(repo), nil)
	if err != nil {
		return false, err
	}
	switch status {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, c.apiError(http.MethodGet, contentsPath(repo), status, body)
	}
}

// MissingReadme returns the repositories without a README.md, in input order.
// Archived repositories are skipped since they cannot be committed to.
func (c *Client) MissingReadme(ctx context.Context, repos []Repository) ([]Repository, error) {
	has := make([]bool, len(repos))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(readmeCheckLimit)
	for i, repo := range repos {
		if repo.Archived {
			has[i] = true
			continue
		}
		g.Go(func() error {
			ok, err := c.HasReadme(gctx, repo)
			if err != nil {
				return fmt.Errorf("check %s: %w", repo.FullName, err)
			}
			has[i] = ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var missing []Repository
	for i, repo := range repos {
		if !has[i] {
			missing = append(missing, repo)
		}
	}
	return missing, nil
}

// CommitReadme creates or replaces README.md in repo. An empty branch commits to the
// default branch.
func (c *Client) CommitReadme(ctx context.Context, repo Repository, content, branch, message string) error {
	path := contentsPath(repo)
	getPath := path
	if branch != "" {
		getPath += "?ref=" + url.QueryEscape(branch)
	}

	status, body, err := c.do(ctx, http.MethodGet, getPath, nil)
	if err != nil {
		return err
	}
	sha := ""
	switch status {
	case http.StatusOK:
		sha = gjson.GetBytes(body, "sha").String()
	case http.StatusNotFound:
	default:
		return c.apiError(http.MethodGet, path, status, body)
	}

	payload := []byte(`{}`)
	payload, _ = sjson.SetBytes(payload, "message", message)
	payload, _ = sjson.SetBytes(payload, "content", base64.StdEncoding.EncodeToString([]byte(content)))
	if branch != "" {
		payload, _ = sjson.SetBytes(payload, "branch", branch)
	}
	if sha != "" {
		payload, _ = sjson.SetBytes(payload, "sha", sha)
	}

	status, body, err = c.do(ctx, http.MethodPut, path, payload)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return c.apiError(http.MethodPut, path, status, body)
	}
	log.WithField("repo", repo.FullName).Infof("committed %s (%s)", readmePath, gjson.GetBytes(body, "commit.sha").String())
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) (int, []byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("github: build request: %w", err)
	}
	ghauth.SetAPIHeaders(req, "")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("github: %s %s: %w", method, path, err)
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.Debugf("github: close response body: %v", errClose)
		}
	}()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("github: read %s %s: %w", method, path, err)
	}
	return resp.StatusCode, body, nil
}

func (c *Client) apiError(method, path string, status int, body []byte) error {
	return &APIError{
		Method:     method,
		URL:        c.baseURL + path,
		StatusCode: status,
		Message:    gjson.GetBytes(body, "message").String(),
	}
}

func contentsPath(repo Repository) string {
	owner, name := repo.Owner, repo.Name
	if (owner == "" || name == "") && strings.Contains(repo.FullName, "/") {
		owner, name, _ = strings.Cut(repo.FullName, "/")
	}
	return "/repos/" + url.PathEscape(owner) + "/" + url.PathEscape(name) + "/contents/" + readmePath
}
