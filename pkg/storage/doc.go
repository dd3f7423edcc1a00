// Copyright © 2018 One Concern

// Package storage defines the object store persisting the schema cache.
//
// The localfs sub-package implements it on an afero file system, with an atomic
// variant which never exposes a partially written object.
package storage
