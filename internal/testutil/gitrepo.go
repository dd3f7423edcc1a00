// Package testutil builds throw-away git repositories for tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
)

// GitRepo is a git repository with a work tree in a temporary directory
type GitRepo struct {
	Path  string
	repo  *git.Repository
	clock time.Time
}

// TempGitRepo initializes an empty repository, removed when the test ends
func TempGitRepo(t testing.TB) *GitRepo {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	return &GitRepo{
		Path:  dir,
		repo:  repo,
		clock: time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC),
	}
}

// Commit writes files (path -> content) to the work tree and commits them.
//
// An empty content removes the file. It returns the commit hash.
func (g *GitRepo) Commit(t testing.TB, msg string, files map[string]string) string {
	t.Helper()
	wt, err := g.repo.Worktree()
	require.NoError(t, err)

	for name, content := range files {
		full := filepath.Join(g.Path, filepath.FromSlash(name))
		if content == "" {
			_, err = wt.Remove(name)
			require.NoError(t, err)
			continue
		}
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o600))
		_, err = wt.Add(name)
		require.NoError(t, err)
	}

	// distinct, increasing commit times keep histories deterministic
	g.clock = g.clock.Add(time.Minute)
	hash, err := wt.Commit(msg, &git.CommitOptions{
		Author: &object.Signature{Name: "tester", Email: "tester@example.com", When: g.clock},
	})
	require.NoError(t, err)
	return hash.String()
}

// Branch creates or moves a branch to point at some commit
func (g *GitRepo) Branch(t testing.TB, name, commit string) {
	t.Helper()
	ref := plumbing.NewHashReference(plumbing.NewBranchReferenceName(name), plumbing.NewHash(commit))
	require.NoError(t, g.repo.Storer.SetReference(ref))
}

// Tag creates a lightweight tag
func (g *GitRepo) Tag(t testing.TB, name, commit string) {
	t.Helper()
	_, err := g.repo.CreateTag(name, plumbing.NewHash(commit), nil)
	require.NoError(t, err)
}

// Checkout switches the work tree to some commit, on a new branch
func (g *GitRepo) Checkout(t testing.TB, branch, commit string) {
	t.Helper()
	wt, err := g.repo.Worktree()
	require.NoError(t, err)
	require.NoError(t, wt.Checkout(&git.CheckoutOptions{
		Hash:   plumbing.NewHash(commit),
		Branch: plumbing.NewBranchReferenceName(branch),
		Create: true,
	}))
}

// Merge records a merge commit of the current branch with another commit.
//
// The work tree is not modified: the merge keeps the current tree.
func (g *GitRepo) Merge(t testing.TB, msg, other string) string {
	t.Helper()
	wt, err := g.repo.Worktree()
	require.NoError(t, err)
	head, err := g.repo.Head()
	require.NoError(t, err)

	g.clock = g.clock.Add(time.Minute)
	hash, err := wt.Commit(msg, &git.CommitOptions{
		Author:            &object.Signature{Name: "tester", Email: "tester@example.com", When: g.clock},
		Parents:           []plumbing.Hash{head.Hash(), plumbing.NewHash(other)},
		AllowEmptyCommits: true,
	})
	require.NoError(t, err)
	return hash.String()
}
