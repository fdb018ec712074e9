package publish

import (
	"context"
	"fmt"

	"github.com/pewpi-infinity/spark/internal/github"
	"github.com/pewpi-infinity/spark/internal/site"
)

// CredentialCheck is the outcome of checking the stored token against the
// configured repository.
type CredentialCheck struct {
	Login     string `json:"login"`
	Repo      string `json:"repo"`
	RepoFound bool   `json:"repoFound"`
	CanPush   bool   `json:"canPush"`
}

// Verify confirms the stored token authenticates and reports whether it can
// push to cfg's repository. A missing repository is not an error.
func (g *GitHub) Verify(ctx context.Context, cfg site.Config) (CredentialCheck, error) {
	tok, err := g.token(ctx)
	if err != nil {
		return CredentialCheck{}, err
	}
	client := github.New(g.baseURL, tok, g.branch)

	user, err := client.VerifyToken(ctx)
	if github.IsUnauthorized(err) {
		return CredentialCheck{}, fmt.Errorf("%w: %v", ErrCredentialRejected, err)
	}
	if err != nil {
		return CredentialCheck{}, fmt.Errorf("verifying credential: %w", err)
	}

	check := CredentialCheck{Login: user.Login, Repo: cfg.GitHubUser + "/" + cfg.RepoName}
	repo, err := client.Repo(ctx, cfg.GitHubUser, cfg.RepoName)
	switch {
	case github.IsNotFound(err):
		return check, nil
	case err != nil:
		return CredentialCheck{}, fmt.Errorf("checking repository %s: %w", check.Repo, err)
	}
	check.RepoFound = true
	check.CanPush = repo.Permissions.Push
	return check, nil
}
