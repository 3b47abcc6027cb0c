// Package source fetches application source code for builds.
package source

import (
	"context"
	"fmt"
	"strings"

	git "github.com/go-git/go-git/v5"
)

// Fetcher clones git repositories into build workspaces.
type Fetcher struct{}

// NewFetcher returns a git source fetcher.
func NewFetcher() Fetcher {
	return Fetcher{}
}

// Fetch performs a shallow clone of repoURL into dest.
func (Fetcher) Fetch(ctx context.Context, repoURL, dest string) error {
	if strings.TrimSpace(repoURL) == "" {
		return fmt.Errorf("repository URL cannot be empty")
	}
	if strings.TrimSpace(dest) == "" {
		return fmt.Errorf("destination cannot be empty")
	}
	_, err := git.PlainCloneContext(ctx, dest, false, &git.CloneOptions{
		URL:   repoURL,
		Depth: 1,
	})
	if err != nil {
		return fmt.Errorf("clone %s: %w", repoURL, err)
	}
	return nil
}
