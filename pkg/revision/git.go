// Copyright © 2018 One Concern

// Package revision resolves git references into revisions and gives access to their files.
package revision

import (
	"context"
	"io"
	"sync"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	lru "github.com/hashicorp/golang-lru"
	"github.com/oneconcern/smartes/pkg/core/status"
	"github.com/oneconcern/smartes/pkg/errors"
	"github.com/oneconcern/smartes/pkg/model"
	"go.uber.org/zap"
)

const defaultBlobCacheSize = 4096

// Resolver knows how to walk the history of a reference and access the files of its revisions
type Resolver interface {
	History(context.Context, string) ([]model.Revision, error)
	Snapshot(context.Context, model.Revision) (*Snapshot, error)
	ReadFile(context.Context, model.Revision, string) ([]byte, error)
}

var _ Resolver = &Git{}

// Git resolves revisions in a local git repository
type Git struct {
	path          string
	repo          *git.Repository
	mx            sync.Mutex // go-git object access is serialized
	blobs         *lru.Cache
	blobCacheSize int
	l             *zap.Logger
}

// Open a git repository on the local file system.
//
// The path may point to a work tree or to a bare repository.
func Open(path string, opts ...Option) (*Git, error) {
	g := &Git{
		path:          path,
		blobCacheSize: defaultBlobCacheSize,
		l:             zap.NewNop(),
	}
	for _, apply := range opts {
		apply(g)
	}

	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, errors.New("cannot open git repository").Wrap(err)
	}
	g.repo = repo

	g.blobs, err = lru.New(g.blobCacheSize)
	if err != nil {
		return nil, err
	}
	return g, nil
}

// String representation of this resolver
func (g *Git) String() string {
	return "git@" + g.path
}

// History yields all the revisions reachable from reference, parents first.
//
// The order is deterministic for a given reference: a depth-first walk from the
// resolved commit visiting parents in order, each commit being emitted after all its parents.
func (g *Git) History(ctx context.Context, reference string) ([]model.Revision, error) {
	g.mx.Lock()
	defer g.mx.Unlock()

	head, err := g.repo.ResolveRevision(plumbing.Revision(reference))
	if err != nil {
		return nil, status.ErrInvalidReference.Wrapf("%q: %v", reference, err)
	}

	commits := make(map[plumbing.Hash]*object.Commit)
	iter, err := g.repo.Log(&git.LogOptions{From: *head})
	if err != nil {
		return nil, status.ErrInvalidReference.Wrapf("%q: %v", reference, err)
	}
	err = iter.ForEach(func(c *object.Commit) error {
		if e := ctx.Err(); e != nil {
			return e
		}
		commits[c.Hash] = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	return linearize(*head, commits), nil
}

type frame struct {
	hash     plumbing.Hash
	expanded bool
}

// linearize orders commits parents first with an iterative post-order walk
func linearize(head plumbing.Hash, commits map[plumbing.Hash]*object.Commit) []model.Revision {
	ordered := make([]model.Revision, 0, len(commits))
	done := make(map[plumbing.Hash]bool, len(commits))
	stack := []frame{{hash: head}}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if done[top.hash] {
			continue
		}
		c, ok := commits[top.hash]
		if !ok {
			// outside of the walked history, e.g. a shallow clone boundary
			continue
		}
		if top.expanded {
			done[top.hash] = true
			ordered = append(ordered, toRevision(c))
			continue
		}

		stack = append(stack, frame{hash: top.hash, expanded: true})
		// pushed in reverse so that the first parent is walked first
		for i := len(c.ParentHashes) - 1; i >= 0; i-- {
			if p := c.ParentHashes[i]; !done[p] {
				stack = append(stack, frame{hash: p})
			}
		}
	}
	return ordered
}

func toRevision(c *object.Commit) model.Revision {
	parents := make([]string, 0, len(c.ParentHashes))
	for _, p := range c.ParentHashes {
		parents = append(parents, p.String())
	}
	return model.Revision{
		ID:      c.Hash.String(),
		Parents: parents,
		Time:    c.Committer.When,
	}
}

// Snapshot lists the files of a revision. File contents are loaded on demand.
func (g *Git) Snapshot(ctx context.Context, rev model.Revision) (*Snapshot, error) {
	g.mx.Lock()
	defer g.mx.Unlock()

	tree, err := g.tree(rev)
	if err != nil {
		return nil, err
	}

	walker := object.NewTreeWalker(tree, true, nil)
	defer walker.Close()

	files := make(map[string]FileAccessor)
	for {
		if e := ctx.Err(); e != nil {
			return nil, e
		}
		name, entry, err := walker.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, status.ErrInternal.Wrapf("walking tree at %s: %v", rev, err)
		}
		if entry.Mode != filemode.Regular && entry.Mode != filemode.Executable {
			continue
		}
		hash := entry.Hash
		files[name] = &lazyFile{
			hash: hash.String(),
			load: func(ctx context.Context) ([]byte, error) {
				return g.blob(ctx, hash)
			},
		}
	}

	g.l.Debug("snapshot listed", zap.String("revision", rev.ID), zap.Int("files", len(files)))
	return NewSnapshot(rev, files), nil
}

// ReadFile fetches the content of a single file at some revision
func (g *Git) ReadFile(ctx context.Context, rev model.Revision, p string) ([]byte, error) {
	g.mx.Lock()
	tree, err := g.tree(rev)
	if err != nil {
		g.mx.Unlock()
		return nil, err
	}
	entry, err := tree.FindEntry(p)
	g.mx.Unlock()
	if err != nil {
		return nil, status.ErrNotFound.Wrapf("%q at %s", p, rev)
	}
	if entry.Mode != filemode.Regular && entry.Mode != filemode.Executable {
		return nil, status.ErrNotFound.Wrapf("%q at %s is not a regular file", p, rev)
	}
	return g.blob(ctx, entry.Hash)
}

func (g *Git) tree(rev model.Revision) (*object.Tree, error) {
	commit, err := g.repo.CommitObject(plumbing.NewHash(rev.ID))
	if err != nil {
		return nil, status.ErrInternal.Wrapf("commit %s: %v", rev, err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, status.ErrInternal.Wrapf("tree of commit %s: %v", rev, err)
	}
	return tree, nil
}

// blob content, from the cache or from the object store
func (g *Git) blob(ctx context.Context, hash plumbing.Hash) ([]byte, error) {
	if cached, ok := g.blobs.Get(hash); ok {
		return cached.([]byte), nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mx.Lock()
	content, err := g.readBlob(hash)
	g.mx.Unlock()
	if err != nil {
		return nil, err
	}

	g.blobs.Add(hash, content)
	return content, nil
}

func (g *Git) readBlob(hash plumbing.Hash) ([]byte, error) {
	b, err := g.repo.BlobObject(hash)
	if err != nil {
		return nil, status.ErrInternal.Wrapf("blob %s: %v", hash, err)
	}
	r, err := b.Reader()
	if err != nil {
		return nil, status.ErrInternal.Wrapf("blob %s: %v", hash, err)
	}
	defer r.Close()

	content, err := io.ReadAll(r)
	if err != nil {
		return nil, status.ErrInternal.Wrapf("reading blob %s: %v", hash, err)
	}
	return content, nil
}
