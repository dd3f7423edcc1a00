// Copyright © 2018 One Concern

// Package localfs implements the storage.Store interface on top of an afero file system.
package localfs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/oneconcern/smartes/pkg/storage"
	"github.com/oneconcern/smartes/pkg/storage/status"
	"github.com/spf13/afero"
)

// localFS writes objects in place. It backs the atomic store.
type localFS struct {
	fs afero.Fs
}

func (l *localFS) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	f, err := l.fs.Open(key)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, status.ErrNotExists.Wrapf("%q", key)
		}
		return nil, status.ErrStorageAPI.Wrap(err)
	}
	fi, err := f.Stat()
	if err == nil && fi.IsDir() {
		_ = f.Close()
		return nil, status.ErrNotExists.Wrapf("%q is a directory", key)
	}
	return f, nil
}

// Put writes the object synchronously: the data is on disk when Put returns
func (l *localFS) Put(ctx context.Context, key string, source io.Reader) error {
	if dir := filepath.Dir(key); dir != "." && dir != "" {
		if err := l.fs.MkdirAll(dir, 0700); err != nil {
			return status.ErrStorageAPI.Wrapf("ensuring directories for %q: %v", key, err)
		}
	}
	target, err := l.fs.OpenFile(key, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return status.ErrStorageAPI.Wrapf("create record for %q: %v", key, err)
	}
	if _, err = io.Copy(target, source); err != nil {
		_ = target.Close()
		return status.ErrStorageAPI.Wrapf("write record for %q: %v", key, err)
	}
	if err = target.Sync(); err != nil {
		_ = target.Close()
		return status.ErrStorageAPI.Wrapf("sync record for %q: %v", key, err)
	}
	if err = target.Close(); err != nil {
		return status.ErrStorageAPI.Wrapf("close record for %q: %v", key, err)
	}
	return nil
}

func (l *localFS) String() string {
	return describe("localfs", l.fs)
}

func describe(kind string, fs afero.Fs) string {
	switch bfs := fs.(type) {
	case *afero.BasePathFs:
		pp, err := bfs.RealPath("")
		if err != nil {
			return kind
		}
		return kind + "@" + pp
	default:
		return kind
	}
}

/* thread-safe local storage implementation.
 * use a decorator pattern to implement atomic Put()s via atomicity of afero.Fs.Rename()
 * for those filesystems where Rename() is atomic:  files are written to a staging area,
 * then Rename()d into place. Readers either see the previous or the new version of an object.
 */

const (
	nestedPutStageName = ".put-stage"
)

func maybeInvalidKey(key string) error {
	first := strings.SplitN(strings.TrimLeft(filepath.ToSlash(key), "/"), "/", 2)[0]
	if first == nestedPutStageName {
		return status.ErrInvalidResource.Wrapf("key %q conflicts with put staging area name %q", key, nestedPutStageName)
	}
	return nil
}

// NewAtomic creates a local file system store which replaces objects atomically.
//
// The staging area is created inside fs, so that renames do not cross file systems.
func NewAtomic(fs afero.Fs) (storage.Store, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if err := fs.MkdirAll(nestedPutStageName, 0700); err != nil {
		return nil, status.ErrStorageAPI.Wrapf("ensuring put staging directory %q: %v", nestedPutStageName, err)
	}
	return &localFSAtomic{
		storeImpl: localFS{fs: fs},
	}, nil
}

type localFSAtomic struct {
	storeImpl localFS
}

func (l *localFSAtomic) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := maybeInvalidKey(key); err != nil {
		return nil, err
	}
	return l.storeImpl.Get(ctx, key)
}

/* Put is the only part of the Store interface which does not simply wrap the decorated localFS */
func (l *localFSAtomic) Put(ctx context.Context, key string, source io.Reader) error {
	if err := maybeInvalidKey(key); err != nil {
		return err
	}
	putStageKey := filepath.Join(nestedPutStageName, key)
	if err := l.storeImpl.Put(ctx, putStageKey, source); err != nil {
		_ = l.storeImpl.fs.Remove(putStageKey)
		return err
	}
	/* Rename() doesn't create directories automatically */
	if dir := filepath.Dir(key); dir != "." && dir != "" {
		if err := l.storeImpl.fs.MkdirAll(dir, 0700); err != nil {
			return status.ErrStorageAPI.Wrapf("ensuring directories for %q: %v", key, err)
		}
	}
	if err := l.storeImpl.fs.Rename(putStageKey, key); err != nil {
		_ = l.storeImpl.fs.Remove(putStageKey)
		return status.ErrStorageAPI.Wrapf("moving %q into place: %v", key, err)
	}
	return nil
}

func (l *localFSAtomic) String() string {
	return describe("localfs-atomic", l.storeImpl.fs)
}
