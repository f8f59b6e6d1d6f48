// Package github is a minimal read-only client for the GitHub REST API
// covering the endpoints the mirror sync needs: commit resolution, git
// tree listing, commit comparison and raw content download.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	defaultAPIBaseURL = "https://api.github.com"
	defaultRawBaseURL = "https://raw.githubusercontent.com"
	userAgent         = "texsyncd"
	acceptHeader      = "application/vnd.github.v3+json"
)

// Client accesses a single GitHub repository.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	owner      string
	repo       string
	token      string

	// Overridable for tests.
	APIBaseURL string
	RawBaseURL string
}

// NewClient creates a client for the given repository. An empty token
// means unauthenticated access.
func NewClient(owner, repo, token string, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
		owner:      owner,
		repo:       repo,
		token:      token,
		APIBaseURL: defaultAPIBaseURL,
		RawBaseURL: defaultRawBaseURL,
	}
}

// get performs an authenticated GET and returns the response body.
// Non-2xx responses become an *APIError.
func (c *Client) get(ctx context.Context, url, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, URL: url, Body: string(body)}
	}

	return body, nil
}

// getJSON performs an API GET and decodes the JSON response into out.
func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	body, err := c.get(ctx, url, acceptHeader)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response from %s: %w", url, err)
	}
	return nil
}

// Commit identifies a remote revision.
type Commit struct {
	SHA  string
	Date string
}

type commitResponse struct {
	SHA    string `json:"sha"`
	Commit struct {
		Committer struct {
			Date string `json:"date"`
		} `json:"committer"`
	} `json:"commit"`
}

// ResolveCommit resolves a ref (branch name, tag or SHA) to a commit.
func (c *Client) ResolveCommit(ctx context.Context, ref string) (*Commit, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/commits/%s", c.APIBaseURL, c.owner, c.repo, ref)

	var resp commitResponse
	if err := c.getJSON(ctx, url, &resp); err != nil {
		return nil, fmt.Errorf("failed to resolve commit %q: %w", ref, err)
	}

	return &Commit{SHA: resp.SHA, Date: resp.Commit.Committer.Date}, nil
}

// DownloadRaw fetches the raw content of a repository file at the
// given ref.
func (c *Client) DownloadRaw(ctx context.Context, ref, path string) ([]byte, error) {
	url := fmt.Sprintf("%s/%s/%s/%s/%s", c.RawBaseURL, c.owner, c.repo, ref, path)

	body, err := c.get(ctx, url, "")
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", path, err)
	}
	return body, nil
}
