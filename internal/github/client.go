// Package github is a small client for the parts of the GitHub REST API
// spark publishes through: token identity, repository lookup and the
// contents API.
package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://api.github.com"
	DefaultBranch  = "main"
	defaultTimeout = 30 * time.Second
	maxRetries     = 3
	initialBackoff = 500 * time.Millisecond
)

// APIError is a non-2xx answer from GitHub.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("github: HTTP %d", e.Status)
	}
	return fmt.Sprintf("github: HTTP %d: %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a GitHub 404.
func IsNotFound(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Status == http.StatusNotFound
}

// IsUnauthorized reports whether err is a GitHub 401 or 403.
func IsUnauthorized(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && (ae.Status == http.StatusUnauthorized || ae.Status == http.StatusForbidden)
}

// Client talks to the GitHub REST API with one bearer token.
type Client struct {
	baseURL    string
	token      string
	branch     string
	httpClient *http.Client
}

// New creates a client. An empty baseURL or branch uses the defaults.
func New(baseURL, token, branch string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if branch == "" {
		branch = DefaultBranch
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		branch:  branch,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

// User is the authenticated account.
type User struct {
	Login string `json:"login"`
	Name  string `json:"name"`
}

// Repo is the subset of repository metadata spark checks before committing.
type Repo struct {
	FullName      string `json:"full_name"`
	DefaultBranch string `json:"default_branch"`
	Permissions   struct {
		Push bool `json:"push"`
	} `json:"permissions"`
}

// VerifyToken returns the account the token belongs to.
func (c *Client) VerifyToken(ctx context.Context) (User, error) {
	var u User
	err := c.do(ctx, http.MethodGet, "/user", nil, &u)
	return u, err
}

// Repo returns metadata for owner/name.
func (c *Client) Repo(ctx context.Context, owner, name string) (Repo, error) {
	var r Repo
	err := c.do(ctx, http.MethodGet, "/repos/"+url.PathEscape(owner)+"/"+url.PathEscape(name), nil, &r)
	return r, err
}

type contentsFile struct {
	SHA string `json:"sha"`
}

// FileSHA returns the blob sha of path, or "" when the file does not exist.
func (c *Client) FileSHA(ctx context.Context, owner, repo, path string) (string, error) {
	var f contentsFile
	err := c.do(ctx, http.MethodGet, contentsPath(owner, repo, path)+"?ref="+url.QueryEscape(c.branch), nil, &f)
	if IsNotFound(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return f.SHA, nil
}

type putFileRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch"`
	SHA     string `json:"sha,omitempty"`
}

type putFileResponse struct {
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

// PutFile creates or overwrites path with content and returns the commit sha.
// The existing blob sha is looked up first so overwrites are accepted.
func (c *Client) PutFile(ctx context.Context, owner, repo, path string, content []byte, message string) (string, error) {
	sha, err := c.FileSHA(ctx, owner, repo, path)
	if err != nil {
		return "", fmt.Errorf("looking up %s: %w", path, err)
	}

	body := putFileRequest{
		Message: message,
		Content: base64.StdEncoding.EncodeToString(content),
		Branch:  c.branch,
		SHA:     sha,
	}
	var resp putFileResponse
	if err := c.do(ctx, http.MethodPut, contentsPath(owner, repo, path), body, &resp); err != nil {
		return "", fmt.Errorf("committing %s: %w", path, err)
	}
	return resp.Commit.SHA, nil
}

func contentsPath(owner, repo, path string) string {
	segs := strings.Split(strings.Trim(path, "/"), "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return "/repos/" + url.PathEscape(owner) + "/" + url.PathEscape(repo) + "/contents/" + strings.Join(segs, "/")
}

// do sends one API request, retrying on HTTP 429 with exponential backoff.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
	}

	var lastErr error
	for attempt := range maxRetries {
		err := c.doOnce(ctx, method, path, payload, out)
		var ae *APIError
		if !errors.As(err, &ae) || ae.Status != http.StatusTooManyRequests {
			return err
		}

		lastErr = err
		if attempt < maxRetries-1 {
			backoff := time.Duration(float64(initialBackoff) * math.Pow(2, float64(attempt)))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return fmt.Errorf("rate limited after %d retries: %w", maxRetries, lastErr)
}

func (c *Client) doOnce(ctx context.Context, method, path string, payload []byte, out any) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Message string `json:"message"`
		}
		json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&e)
		return &APIError{Status: resp.StatusCode, Message: e.Message}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
