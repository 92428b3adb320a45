// Package gitinfo reads run metadata from the local checkout.
package gitinfo

import (
	"context"
	"fmt"

	"github.com/gitsight/go-vcsurl"
	"github.com/go-git/go-git/v5"
	"github.com/huangsam/codeaudit/internal/contract"
)

// Inspector implements contract.RepoInspector with go-git.
type Inspector struct{}

var _ contract.RepoInspector = &Inspector{} // Compile-time check

// NewInspector returns an inspector.
func NewInspector() *Inspector {
	return &Inspector{}
}

func open(repoPath string) (*git.Repository, error) {
	repo, err := git.PlainOpenWithOptions(repoPath, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open repository %s: %w", repoPath, err)
	}
	return repo, nil
}

// HeadSHA returns the commit hash HEAD points to.
func (i *Inspector) HeadSHA(_ context.Context, repoPath string) (string, error) {
	repo, err := open(repoPath)
	if err != nil {
		return "", err
	}
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	return head.Hash().String(), nil
}

// Slug returns owner/name from the origin remote URL.
func (i *Inspector) Slug(_ context.Context, repoPath string) (string, error) {
	repo, err := open(repoPath)
	if err != nil {
		return "", err
	}
	remote, err := repo.Remote("origin")
	if err != nil {
		return "", fmt.Errorf("failed to read origin remote: %w", err)
	}
	cfg := remote.Config()
	if cfg == nil || len(cfg.URLs) == 0 {
		return "", fmt.Errorf("origin remote has no URL")
	}
	return ParseSlug(cfg.URLs[0])
}

// ParseSlug extracts owner/name from an https or ssh remote URL.
func ParseSlug(remoteURL string) (string, error) {
	info, err := vcsurl.Parse(remoteURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse remote %s: %w", remoteURL, err)
	}
	if info.Username == "" || info.Name == "" {
		return "", fmt.Errorf("remote %s has no owner/name", remoteURL)
	}
	return info.Username + "/" + info.Name, nil
}
