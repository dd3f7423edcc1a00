// Copyright © 2018 One Concern

package storage

import (
	"context"
	"io"
)

// Store is a flat key/value object store.
//
// Get returns an error matching status.ErrNotExists for unknown keys.
// A Put replaces the whole object.
type Store interface {
	String() string
	Get(context.Context, string) (io.ReadCloser, error)
	Put(context.Context, string, io.Reader) error
}

// ReadAll fetches a whole object from some store
func ReadAll(ctx context.Context, store Store, key string) ([]byte, error) {
	reader, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return io.ReadAll(reader)
}
