// Copyright © 2018 One Concern

// Package graph computes the dependency schema of a revision.
//
// The schema of a revision is built incrementally from the schema of the previous
// revision: files which content did not change keep their version and their dependencies,
// without their content being read. Files which changed get their version bumped by one.
// Newly reachable files start at version 0.
package graph

import (
	"context"

	"github.com/oneconcern/smartes/pkg/imports"
	"github.com/oneconcern/smartes/pkg/model"
	"github.com/oneconcern/smartes/pkg/revision"
	"go.uber.org/zap"
)

// Snapshot gives access to the files of a revision
type Snapshot interface {
	Lookup(string) (revision.FileAccessor, bool)
}

// Builder computes schemas
type Builder struct {
	extractor imports.Extractor
	l         *zap.Logger
}

// New schema builder
func New(opts ...Option) *Builder {
	b := &Builder{
		extractor: imports.ESModules(),
		l:         zap.NewNop(),
	}
	for _, apply := range opts {
		apply(b)
	}
	return b
}

// Build the schema of all files reachable from entry in snapshot.
//
// The previous schema may be nil. It is not modified.
// Imports that resolve to a file absent from the snapshot are recorded as dependencies
// of the importing file, but the missing file does not appear in the resulting schema.
func (b *Builder) Build(ctx context.Context, entry string, previous model.Schema, snapshot Snapshot) (model.Schema, error) {
	next := make(model.Schema)
	visited := map[string]struct{}{entry: {}}
	queue := []string{entry}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		p := queue[0]
		queue = queue[1:]

		file, ok := snapshot.Lookup(p)
		if !ok {
			continue
		}

		e, err := b.visit(ctx, p, file, previous)
		if err != nil {
			return nil, err
		}
		next[p] = e

		for _, dep := range e.Dependencies {
			if _, seen := visited[dep]; seen {
				continue
			}
			visited[dep] = struct{}{}
			queue = append(queue, dep)
		}
	}
	return next, nil
}

func (b *Builder) visit(ctx context.Context, p string, file revision.FileAccessor, previous model.Schema) (model.Entry, error) {
	hash := file.Hash()
	prior, existed := previous[p]
	if existed && prior.Hash != "" && prior.Hash == hash {
		return prior.Clone(), nil
	}

	content, err := file.Content(ctx)
	if err != nil {
		return model.Entry{}, err
	}

	e := model.Entry{
		Dependencies: b.dependencies(p, content),
		Hash:         hash,
	}
	if existed {
		e.Version = prior.Version + 1
	}

	b.l.Debug("file version computed",
		zap.String("path", p),
		zap.Uint64("version", e.Version),
		zap.Strings("dependencies", e.Dependencies),
	)
	return e, nil
}

// dependencies yields the distinct repository paths imported by a file, in order of appearance
func (b *Builder) dependencies(p string, content []byte) []string {
	found := b.extractor.Imports(content)
	deps := make([]string, 0, len(found))
	seen := make(map[string]struct{}, len(found))
	for _, imp := range found {
		target, ok := imports.Resolve(p, imp.Specifier)
		if !ok {
			continue
		}
		if _, dup := seen[target]; dup {
			continue
		}
		seen[target] = struct{}{}
		deps = append(deps, target)
	}
	return deps
}
