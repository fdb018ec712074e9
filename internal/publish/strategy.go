package publish

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/pewpi-infinity/spark/internal/github"
	"github.com/pewpi-infinity/spark/internal/site"
)

var (
	// ErrCredentialMissing is returned before any rendering when the GitHub
	// strategy has no stored token.
	ErrCredentialMissing = errors.New("github credential not configured")

	// ErrCredentialRejected is returned when GitHub refuses the stored token.
	ErrCredentialRejected = errors.New("github credential rejected")
)

// Strategy delivers a rendered artifact to where it will be served from.
type Strategy interface {
	Name() string
	// Ready fails fast when delivery cannot possibly succeed.
	Ready(ctx context.Context) error
	Deliver(ctx context.Context, cfg site.Config, a Artifact) (Delivery, error)
}

// Delivery describes a completed delivery.
type Delivery struct {
	CommitRef string
}

// CredentialSource yields the stored GitHub token ("" when unset).
type CredentialSource interface {
	Credential(ctx context.Context) (string, error)
}

// GitHub commits index.html through the contents API.
type GitHub struct {
	creds   CredentialSource
	baseURL string
	branch  string
}

func NewGitHub(creds CredentialSource, baseURL, branch string) *GitHub {
	return &GitHub{creds: creds, baseURL: baseURL, branch: branch}
}

func (g *GitHub) Name() string { return "github" }

func (g *GitHub) token(ctx context.Context) (string, error) {
	tok, err := g.creds.Credential(ctx)
	if err != nil {
		return "", err
	}
	if tok == "" {
		return "", ErrCredentialMissing
	}
	return tok, nil
}

func (g *GitHub) Ready(ctx context.Context) error {
	_, err := g.token(ctx)
	return err
}

func (g *GitHub) Deliver(ctx context.Context, cfg site.Config, a Artifact) (Delivery, error) {
	tok, err := g.token(ctx)
	if err != nil {
		return Delivery{}, err
	}

	client := github.New(g.baseURL, tok, g.branch)
	path := RepoPath(cfg.PagesRoot, a.Files()[0].Path)
	msg := fmt.Sprintf("Publish page: %s (%s)", a.Title, a.PageID)

	sha, err := client.PutFile(ctx, cfg.GitHubUser, cfg.RepoName, path, []byte(a.HTML), msg)
	if github.IsUnauthorized(err) {
		return Delivery{}, fmt.Errorf("%w: %v", ErrCredentialRejected, err)
	}
	if err != nil {
		return Delivery{}, err
	}
	return Delivery{CommitRef: sha}, nil
}

// Resolver is a Strategy that stands for another one chosen at call time.
// The Publisher resolves it before every publish.
type Resolver interface {
	Strategy
	Resolve(ctx context.Context) Strategy
}

// Resolve returns the strategy s stands for at this moment.
func Resolve(ctx context.Context, s Strategy) Strategy {
	if r, ok := s.(Resolver); ok {
		return r.Resolve(ctx)
	}
	return s
}

// Auto publishes through GitHub while a credential is stored and keeps the
// files locally otherwise, so storing a credential takes effect on the next
// publish without a restart.
type Auto struct {
	creds  CredentialSource
	github *GitHub
}

func NewAuto(creds CredentialSource, gh *GitHub) *Auto {
	return &Auto{creds: creds, github: gh}
}

func (a *Auto) Name() string { return "auto" }

func (a *Auto) Resolve(ctx context.Context) Strategy {
	if tok, err := a.creds.Credential(ctx); err == nil && tok != "" {
		return a.github
	}
	return Local{}
}

func (a *Auto) Ready(ctx context.Context) error { return a.Resolve(ctx).Ready(ctx) }

func (a *Auto) Deliver(ctx context.Context, cfg site.Config, at Artifact) (Delivery, error) {
	return a.Resolve(ctx).Deliver(ctx, cfg, at)
}

// Local keeps the rendered files in storage for the owner to download and
// commit by hand. Nothing remote is touched.
type Local struct{}

func (Local) Name() string                    { return "local" }
func (Local) Ready(ctx context.Context) error { return nil }

func (Local) Deliver(ctx context.Context, cfg site.Config, a Artifact) (Delivery, error) {
	return Delivery{CommitRef: "local-" + uuid.NewString()}, nil
}

// Export writes index.html and page.json into a working copy of the site
// repository, which the owner deploys.
type Export struct {
	dir string
}

func NewExport(dir string) *Export {
	return &Export{dir: dir}
}

func (e *Export) Name() string { return "export" }

func (e *Export) Ready(ctx context.Context) error {
	if e.dir == "" {
		return errors.New("export directory not configured")
	}
	info, err := os.Stat(e.dir)
	if err != nil {
		return fmt.Errorf("export directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("export directory %s is not a directory", e.dir)
	}
	return nil
}

func (e *Export) Deliver(ctx context.Context, cfg site.Config, a Artifact) (Delivery, error) {
	for _, f := range a.Files() {
		path := filepath.Join(e.dir, filepath.FromSlash(RepoPath(cfg.PagesRoot, f.Path)))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return Delivery{}, fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
		}
		if err := os.WriteFile(path, []byte(f.Content), 0o644); err != nil {
			return Delivery{}, fmt.Errorf("writing %s: %w", path, err)
		}
	}
	return Delivery{CommitRef: "export-" + uuid.NewString()}, nil
}
