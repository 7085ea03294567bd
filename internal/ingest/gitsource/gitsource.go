// Package gitsource reads transcript exports tracked in a git repository.
package gitsource

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/egobogo/addvar/internal/ingest"
)

// GitSource yields supported files from the HEAD commit of a repository.
type GitSource struct {
	RepoURL  string
	RepoPath string
	Repo     *git.Repository
}

// Auth holds optional basic-auth credentials for cloning. For GitHub the
// username is usually "git" when a token is used.
type Auth struct {
	Username string
	Token    string
}

// NewGitSource opens the repository at repoPath, cloning it from repoURL
// first if the path does not exist.
func NewGitSource(ctx context.Context, repoURL, repoPath string, auth *Auth) (*GitSource, error) {
	var repo *git.Repository
	if _, err := os.Stat(repoPath); os.IsNotExist(err) {
		if repoURL == "" {
			return nil, fmt.Errorf("repository %s does not exist and no url was given", repoPath)
		}
		opts := &git.CloneOptions{URL: repoURL}
		if auth != nil {
			opts.Auth = &http.BasicAuth{Username: auth.Username, Password: auth.Token}
		}
		repo, err = git.PlainCloneContext(ctx, repoPath, false, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to clone repository: %w", err)
		}
	} else {
		repo, err = git.PlainOpen(repoPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open repository: %w", err)
		}
	}
	return &GitSource{RepoURL: repoURL, RepoPath: repoPath, Repo: repo}, nil
}

var _ ingest.Source = (*GitSource)(nil)

// Documents yields the supported, non-binary files of the HEAD tree. Files
// are read from the object store, so uncommitted edits are not seen.
func (g *GitSource) Documents(ctx context.Context) iter.Seq2[ingest.Document, error] {
	return func(yield func(ingest.Document, error) bool) {
		commit, err := g.head()
		if err != nil {
			yield(ingest.Document{}, err)
			return
		}
		files, err := commit.Files()
		if err != nil {
			yield(ingest.Document{}, fmt.Errorf("failed to list files: %w", err))
			return
		}
		defer files.Close()

		stopped := false
		err = files.ForEach(func(f *object.File) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if !ingest.Supported(f.Name) {
				return nil
			}
			if bin, err := f.IsBinary(); err != nil || bin {
				return err
			}
			content, err := f.Contents()
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", f.Name, err)
			}
			if !yield(ingest.Document{Path: f.Name, Data: []byte(content)}, nil) {
				stopped = true
				return storer.ErrStop
			}
			return nil
		})
		if err != nil && !stopped && !errors.Is(err, storer.ErrStop) {
			yield(ingest.Document{}, err)
		}
	}
}

func (g *GitSource) head() (*object.Commit, error) {
	ref, err := g.Repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	commit, err := g.Repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("failed to load HEAD commit: %w", err)
	}
	return commit, nil
}
