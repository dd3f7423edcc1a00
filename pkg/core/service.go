// Copyright © 2018 One Concern

package core

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/oneconcern/smartes/pkg/core/status"
	"github.com/oneconcern/smartes/pkg/errors"
	"github.com/oneconcern/smartes/pkg/graph"
	"github.com/oneconcern/smartes/pkg/model"
	"github.com/oneconcern/smartes/pkg/revision"
	"github.com/oneconcern/smartes/pkg/transform"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const defaultContentType = "application/octet-stream"

// content types of the usual web assets, which system mime tables disagree upon
var contentTypes = map[string]string{
	".js":   "text/javascript; charset=utf-8",
	".mjs":  "text/javascript; charset=utf-8",
	".css":  "text/css; charset=utf-8",
	".json": "application/json",
	".map":  "application/json",
	".html": "text/html; charset=utf-8",
	".wasm": "application/wasm",
}

// SchemaStore keeps the schemas computed for each revision
type SchemaStore interface {
	Get(string) (model.Schema, bool)
	Set(context.Context, string, model.Schema) error
}

// Service serves the files of a git repository, with their imports pinned to versioned paths
type Service struct {
	entry       string
	resolver    revision.Resolver
	schemas     SchemaStore
	builder     *graph.Builder
	transformer *transform.Transformer
	metrics     *Metrics
	l           *zap.Logger
	flight      singleflight.Group
}

// New service for some entry module
func New(entry string, resolver revision.Resolver, schemas SchemaStore, opts ...Option) (*Service, error) {
	entry = CleanPath(entry)
	if entry == "" {
		return nil, errors.New("an entry path is required")
	}
	if resolver == nil || schemas == nil {
		return nil, errors.New("a revision resolver and a schema store are required")
	}

	s := &Service{
		entry:    entry,
		resolver: resolver,
		schemas:  schemas,
		l:        zap.NewNop(),
	}
	for _, apply := range opts {
		apply(s)
	}
	if s.builder == nil {
		s.builder = graph.New(graph.Logger(s.l))
	}
	if s.transformer == nil {
		s.transformer = transform.New()
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(nil)
	}
	return s, nil
}

// CleanPath normalizes a repository path: slash separated, relative to the root of the repository
func CleanPath(p string) string {
	if strings.TrimSpace(p) == "" {
		return ""
	}
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}

// Entry path served by this service
func (s *Service) Entry() string {
	return s.entry
}

// Replay is the outcome of replaying the history of a reference
type Replay struct {
	// Revision is the newest revision of the reference
	Revision model.Revision

	// Schema of the newest revision
	Schema model.Schema

	// Snapshot of the newest revision, only when its schema was computed during this replay
	Snapshot *revision.Snapshot

	// Revisions is the number of revisions in the history, Computed the number of schemas computed
	Revisions int
	Computed  int
}

type computed struct {
	schema   model.Schema
	snapshot *revision.Snapshot
}

// Replay walks the history of a reference, oldest first, and computes the schema of every revision not cached yet.
//
// Each schema is computed from the schema of the revision replayed just before.
func (s *Service) Replay(ctx context.Context, treeish string) (*Replay, error) {
	start := time.Now()
	revs, err := s.resolver.History(ctx, treeish)
	if err != nil {
		return nil, classify(err)
	}
	if len(revs) == 0 {
		return nil, status.ErrInvalidReference.Wrapf("%q has no history", treeish)
	}

	r := &Replay{Revisions: len(revs)}
	var previous model.Schema
	for _, rev := range revs {
		if err := ctx.Err(); err != nil {
			return nil, classify(err)
		}

		if schema, ok := s.schemas.Get(rev.ID); ok {
			s.metrics.Revisions.WithLabelValues("cached").Inc()
			previous = schema
			r.Snapshot = nil
			continue
		}

		c, err := s.compute(ctx, rev, previous)
		if err != nil {
			return nil, classify(err)
		}
		s.metrics.Revisions.WithLabelValues("computed").Inc()
		r.Computed++
		previous = c.schema
		r.Snapshot = c.snapshot
	}

	r.Revision = revs[len(revs)-1]
	r.Schema = previous
	if r.Schema == nil {
		r.Schema = model.Schema{}
	}

	s.metrics.ReplayDuration.Observe(time.Since(start).Seconds())
	if r.Computed > 0 {
		s.l.Info("history replayed",
			zap.String("reference", treeish),
			zap.String("revision", r.Revision.ID),
			zap.Int("revisions", r.Revisions),
			zap.Int("computed", r.Computed),
			zap.Duration("duration", time.Since(start)),
		)
	}
	return r, nil
}

// compute the schema of a revision, sharing the work with concurrent replays of the same revision
func (s *Service) compute(ctx context.Context, rev model.Revision, previous model.Schema) (computed, error) {
	for {
		v, err, shared := s.flight.Do(rev.ID, func() (interface{}, error) {
			if schema, ok := s.schemas.Get(rev.ID); ok {
				return computed{schema: schema}, nil
			}
			snap, err := s.resolver.Snapshot(ctx, rev)
			if err != nil {
				return computed{}, err
			}
			schema, err := s.builder.Build(ctx, s.entry, previous, snap)
			if err != nil {
				return computed{}, err
			}
			if err = s.schemas.Set(ctx, rev.ID, schema); err != nil {
				return computed{}, err
			}
			s.l.Debug("schema computed", zap.String("revision", rev.ID), zap.Int("files", len(schema)))
			return computed{schema: schema, snapshot: snap}, nil
		})
		if err != nil && shared && isContextError(err) && ctx.Err() == nil {
			// the replay which carried the computation went away, not us
			continue
		}
		if err != nil {
			return computed{}, err
		}
		return v.(computed), nil
	}
}

// Serve the file at some path of a reference.
//
// The entry is served under its own path. Any other file is served only under the versioned path
// of its current version. Imports are rewritten and the content is gzipped.
func (s *Service) Serve(ctx context.Context, treeish, requested string) (*Response, error) {
	resp, err := s.serve(ctx, treeish, requested)
	s.metrics.Requests.WithLabelValues(outcome(err)).Inc()
	return resp, err
}

func (s *Service) serve(ctx context.Context, treeish, requested string) (*Response, error) {
	r, err := s.Replay(ctx, treeish)
	if err != nil {
		return nil, err
	}

	realPath, err := s.resolvePath(requested, r.Schema)
	if err != nil {
		return nil, err
	}

	content, err := s.content(ctx, r, realPath)
	if err != nil {
		return nil, classify(err)
	}

	body, err := compress(s.transformer.Transform(realPath, content, r.Schema, s.entry))
	if err != nil {
		return nil, status.ErrInternal.Wrap(err)
	}

	return &Response{
		Path:        realPath,
		Revision:    r.Revision,
		ContentType: ContentType(realPath),
		Body:        body,
		Immutable:   realPath != s.entry,
	}, nil
}

// ContentType of a file, guessed from its extension
func ContentType(p string) string {
	ext := strings.ToLower(path.Ext(p))
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return defaultContentType
}

func (s *Service) resolvePath(requested string, schema model.Schema) (string, error) {
	missing := func() error {
		return &MissingFileError{Path: requested, Schema: schema}
	}

	if requested == s.entry {
		if _, ok := schema[s.entry]; !ok {
			return "", missing()
		}
		return s.entry, nil
	}

	realPath, version, err := model.ParseVersionedPath(requested)
	if err != nil || realPath == s.entry {
		return "", missing()
	}
	if current, ok := schema.VersionOf(realPath); !ok || current != version {
		return "", missing()
	}
	return realPath, nil
}

func (s *Service) content(ctx context.Context, r *Replay, realPath string) ([]byte, error) {
	if r.Snapshot != nil {
		f, ok := r.Snapshot.Lookup(realPath)
		if !ok {
			return nil, status.ErrInternal.Wrapf("%q is in the schema but not in the snapshot of %s", realPath, r.Revision)
		}
		return f.Content(ctx)
	}
	return s.resolver.ReadFile(ctx, r.Revision, realPath)
}

func compress(content []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(content); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// classify maps any error onto one of the status sentinels
func classify(err error) error {
	switch {
	case errors.Is(err, status.ErrInvalidReference),
		errors.Is(err, status.ErrNotFound),
		errors.Is(err, status.ErrInternal),
		errors.Is(err, status.ErrInterrupted):
		return err
	case isContextError(err):
		return status.ErrInterrupted.Wrap(err)
	default:
		return status.ErrInternal.Wrap(err)
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, status.ErrInvalidReference):
		return "invalid_reference"
	case errors.Is(err, status.ErrNotFound):
		return "not_found"
	case errors.Is(err, status.ErrInterrupted):
		return "interrupted"
	default:
		return "internal"
	}
}

// MissingFileError is returned when no file is served under the requested path.
//
// It carries the schema of the reference for diagnostics.
type MissingFileError struct {
	Path   string
	Schema model.Schema
}

func (e *MissingFileError) Error() string {
	return fmt.Sprintf("no such file: %q", e.Path)
}

// Is a status.ErrNotFound
func (e *MissingFileError) Is(target error) bool {
	return target == status.ErrNotFound
}
