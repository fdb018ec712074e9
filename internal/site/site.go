// Package site holds the publishing target configuration and the stored
// GitHub credential.
package site

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pewpi-infinity/spark/internal/storage"
)

// ErrInvalidConfig is returned by Validate for an unusable configuration.
var ErrInvalidConfig = errors.New("invalid site configuration")

// Config describes where pages are published.
type Config struct {
	SiteName   string `json:"siteName"`
	OwnerName  string `json:"ownerName"`
	GitHubUser string `json:"githubUser"`
	RepoName   string `json:"repoName"`
	BaseURL    string `json:"baseUrl"`
	PagesRoot  string `json:"pagesRoot"`
}

// Patch is a partial update; nil fields are left unchanged.
type Patch struct {
	SiteName   *string `json:"siteName,omitempty"`
	OwnerName  *string `json:"ownerName,omitempty"`
	GitHubUser *string `json:"githubUser,omitempty"`
	RepoName   *string `json:"repoName,omitempty"`
	PagesRoot  *string `json:"pagesRoot,omitempty"`
}

// Defaults returns the configuration used before the owner sets anything.
func Defaults() Config {
	c := Config{
		SiteName:   "Untitled",
		OwnerName:  "User",
		GitHubUser: "pewpi-infinity",
		RepoName:   "infinity-spark",
		PagesRoot:  "/",
	}
	c.BaseURL = BaseURL(c.GitHubUser, c.RepoName)
	return c
}

// BaseURL is the GitHub Pages root for a repository.
func BaseURL(user, repo string) string {
	return fmt.Sprintf("https://%s.github.io/%s", user, repo)
}

// PageURL is the public URL of a published page.
func (c Config) PageURL(slug string) string {
	return fmt.Sprintf("https://%s.github.io/%s/pages/%s/", c.GitHubUser, c.RepoName, slug)
}

// Validate checks the fields publishing depends on.
func (c Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.SiteName) == "" {
		missing = append(missing, "siteName")
	}
	if strings.TrimSpace(c.GitHubUser) == "" {
		missing = append(missing, "githubUser")
	}
	if strings.TrimSpace(c.RepoName) == "" {
		missing = append(missing, "repoName")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidConfig, strings.Join(missing, ", "))
	}
	if c.PagesRoot != "/" && c.PagesRoot != "/docs" {
		return fmt.Errorf("%w: pagesRoot must be / or /docs, got %q", ErrInvalidConfig, c.PagesRoot)
	}
	return nil
}

// Apply returns c with patch applied and BaseURL recomputed.
func (c Config) Apply(p Patch) Config {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
		}
	}
	set(&c.SiteName, p.SiteName)
	set(&c.OwnerName, p.OwnerName)
	set(&c.GitHubUser, p.GitHubUser)
	set(&c.RepoName, p.RepoName)
	set(&c.PagesRoot, p.PagesRoot)
	c.BaseURL = BaseURL(c.GitHubUser, c.RepoName)
	return c
}

// Store reads and writes the singleton site configuration.
type Store struct {
	kv     storage.KV
	logger *slog.Logger
}

func NewStore(kv storage.KV, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{kv: kv, logger: logger}
}

// Get returns the stored configuration. When nothing is stored the defaults
// are written and returned. A storage failure yields the defaults and is logged.
func (s *Store) Get(ctx context.Context) Config {
	var c Config
	err := storage.GetJSON(ctx, s.kv, storage.KeySiteConfig, &c)
	switch {
	case err == nil:
		c.BaseURL = BaseURL(c.GitHubUser, c.RepoName)
		return c
	case errors.Is(err, storage.ErrNotFound):
		d := Defaults()
		if err := storage.SetJSON(ctx, s.kv, storage.KeySiteConfig, d); err != nil {
			s.logger.Warn("writing default site config failed", "error", err)
		}
		return d
	default:
		s.logger.Warn("reading site config failed, using defaults", "error", err)
		return Defaults()
	}
}

// Update applies patch to the stored configuration and persists the result.
func (s *Store) Update(ctx context.Context, p Patch) (Config, error) {
	c := s.Get(ctx).Apply(p)
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	if err := storage.SetJSON(ctx, s.kv, storage.KeySiteConfig, c); err != nil {
		return Config{}, fmt.Errorf("saving site config: %w", err)
	}
	return c, nil
}

// Credential returns the stored GitHub token, or "" when none is set.
func (s *Store) Credential(ctx context.Context) (string, error) {
	v, err := s.kv.Get(ctx, storage.KeyCredential)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading credential: %w", err)
	}
	return strings.TrimSpace(string(v)), nil
}

// SetCredential stores the GitHub token. An empty token clears it.
func (s *Store) SetCredential(ctx context.Context, token string) error {
	if err := s.kv.Set(ctx, storage.KeyCredential, []byte(strings.TrimSpace(token))); err != nil {
		return fmt.Errorf("saving credential: %w", err)
	}
	return nil
}

// HasCredential reports whether a non-empty GitHub token is stored.
func (s *Store) HasCredential(ctx context.Context) bool {
	tok, err := s.Credential(ctx)
	if err != nil {
		s.logger.Warn("checking credential failed", "error", err)
		return false
	}
	return tok != ""
}
