package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pewpi-infinity/spark/internal/config"
)

// Generation can take a while on a local model.
const clientTimeout = 3 * time.Minute

// apiClient talks to a running spark server.
type apiClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// newAPIClient resolves the server address and bearer token from the
// --url and --token flags, falling back to config. Tests replace it.
var newAPIClient = func() (*apiClient, error) {
	c := &apiClient{
		baseURL:    strings.TrimRight(serverURL, "/"),
		token:      tokenFlag,
		httpClient: &http.Client{Timeout: clientTimeout},
	}
	if c.baseURL == "" {
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		c.baseURL = fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	}
	if c.token == "" {
		tok, err := config.GetAPIToken()
		if err != nil {
			return nil, fmt.Errorf("getting API token: %w", err)
		}
		c.token = tok
	}
	return c, nil
}

// unreachableError is a transport failure: nothing answered.
type unreachableError struct{ err error }

func (e *unreachableError) Error() string {
	return fmt.Sprintf("server not reachable, is spark running? (%v)", e.err)
}

func (e *unreachableError) Unwrap() error { return e.err }

// serverError is an answer with status >= 400.
type serverError struct {
	Status  int
	Type    string
	Message string
}

func (e *serverError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// fetch sends in as JSON (when non-nil) and decodes the reply into out
// (when non-nil).
func (c *apiClient) fetch(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &unreachableError{err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return readServerError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s: %w", method, path, err)
	}
	return nil
}

// readServerError prefers the message of the JSON error envelope and falls
// back to the raw body.
func readServerError(resp *http.Response) error {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("server returned %d (failed to read body: %w)", resp.StatusCode, err)
	}
	se := &serverError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	var env struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if json.Unmarshal(raw, &env) == nil && env.Error.Message != "" {
		se.Message, se.Type = env.Error.Message, env.Error.Type
	}
	return se
}

func isUnreachable(err error) bool {
	var u *unreachableError
	return errors.As(err, &u)
}
