// Copyright © 2018 One Concern

package revision

import (
	"context"
	"sort"
	"sync"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/oneconcern/smartes/pkg/model"
)

// FileAccessor gives lazy access to the content of a file at some revision.
//
// Hash identifies the content without loading it.
type FileAccessor interface {
	Hash() string
	Content(context.Context) ([]byte, error)
}

// Snapshot maps the file paths of a revision to their content accessor
type Snapshot struct {
	revision model.Revision
	files    map[string]FileAccessor
}

// NewSnapshot builds a snapshot from a set of accessors
func NewSnapshot(rev model.Revision, files map[string]FileAccessor) *Snapshot {
	if files == nil {
		files = make(map[string]FileAccessor)
	}
	return &Snapshot{revision: rev, files: files}
}

// Revision of this snapshot
func (s *Snapshot) Revision() model.Revision {
	return s.revision
}

// Lookup a file by its path in the repository
func (s *Snapshot) Lookup(p string) (FileAccessor, bool) {
	f, ok := s.files[p]
	return f, ok
}

// Paths of all the files in the snapshot, sorted
func (s *Snapshot) Paths() []string {
	paths := make([]string, 0, len(s.files))
	for p := range s.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// lazyFile loads its content on first use and keeps it.
//
// Failed loads are not kept: snapshots are shared by concurrent replays, and the
// context of one reader must not fail the others.
type lazyFile struct {
	hash    string
	load    func(context.Context) ([]byte, error)
	mu      sync.Mutex
	loaded  bool
	content []byte
}

func (f *lazyFile) Hash() string {
	return f.hash
}

func (f *lazyFile) Content(ctx context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loaded {
		return f.content, nil
	}
	content, err := f.load(ctx)
	if err != nil {
		return nil, err
	}
	f.content, f.loaded = content, true
	return content, nil
}

type staticFile struct {
	hash    string
	content []byte
}

// Blob returns an accessor over in-memory content, hashed the way git hashes blobs
func Blob(content []byte) FileAccessor {
	return staticFile{
		hash:    plumbing.ComputeHash(plumbing.BlobObject, content).String(),
		content: content,
	}
}

func (f staticFile) Hash() string {
	return f.hash
}

func (f staticFile) Content(context.Context) ([]byte, error) {
	return f.content, nil
}
