// Copyright © 2018 One Concern

package model

import (
	"sort"
	"time"
)

// Revision is an immutable commit of the served repository
type Revision struct {
	ID      string    `json:"id" yaml:"id"`
	Parents []string  `json:"parents,omitempty" yaml:"parents,omitempty"`
	Time    time.Time `json:"time" yaml:"time"`
	_       struct{}
}

// String representation of a revision is its commit id
func (r Revision) String() string {
	return r.ID
}

// Entry describes one reachable file of a schema.
//
// Hash is the blob id of the content the entry was computed from.
// Dependencies are repository paths, in the order the imports appear in the file.
type Entry struct {
	Version      uint64   `json:"version" yaml:"version"`
	Dependencies []string `json:"dependencies" yaml:"dependencies"`
	Hash         string   `json:"hash,omitempty" yaml:"hash,omitempty"`
}

// Clone an entry, so that the dependencies may be modified independently
func (e Entry) Clone() Entry {
	deps := make([]string, len(e.Dependencies))
	copy(deps, e.Dependencies)
	return Entry{
		Version:      e.Version,
		Dependencies: deps,
		Hash:         e.Hash,
	}
}

// Schema maps every file reachable from the entry module to its entry
type Schema map[string]Entry

// Clone a schema
func (s Schema) Clone() Schema {
	if s == nil {
		return nil
	}
	c := make(Schema, len(s))
	for k, v := range s {
		c[k] = v.Clone()
	}
	return c
}

// Paths returns the sorted list of paths in the schema
func (s Schema) Paths() []string {
	paths := make([]string, 0, len(s))
	for k := range s {
		paths = append(paths, k)
	}
	sort.Strings(paths)
	return paths
}

// VersionOf yields the recorded version for some path
func (s Schema) VersionOf(path string) (uint64, bool) {
	e, ok := s[path]
	return e.Version, ok
}
