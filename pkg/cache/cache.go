// Copyright © 2018 One Concern

// Package cache persists the schemas computed for each revision.
//
// The whole table of schemas is kept in memory and written as a single JSON document.
// Every update rewrites the document atomically, so that a crash never leaves a torn file
// behind. Updates are serialized within the process.
package cache

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	units "github.com/docker/go-units"
	jsoniter "github.com/json-iterator/go"
	"github.com/oneconcern/smartes/pkg/core/status"
	"github.com/oneconcern/smartes/pkg/errors"
	"github.com/oneconcern/smartes/pkg/model"
	"github.com/oneconcern/smartes/pkg/storage"
	storagestatus "github.com/oneconcern/smartes/pkg/storage/status"
	"go.uber.org/zap"
)

const (
	// DefaultFile is the default name of the cache file
	DefaultFile = ".smartes.cache"

	defaultRetries       = 2
	defaultRetryInterval = 20 * time.Millisecond
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// SchemaCache maps revision ids to their schema
type SchemaCache struct {
	store storage.Store
	key   string
	l     *zap.Logger

	retries       uint64
	retryInterval time.Duration

	writer sync.Mutex // serializes updates of the persisted table

	mu     sync.RWMutex
	table  map[string]model.Schema
	bypass map[string]struct{}
}

// New loads the schema cache persisted in store.
//
// A missing or unreadable cache is not an error: the cache then starts empty,
// and the first update replaces the persisted document.
func New(ctx context.Context, store storage.Store, opts ...Option) *SchemaCache {
	c := &SchemaCache{
		store:         store,
		key:           DefaultFile,
		l:             zap.NewNop(),
		retries:       defaultRetries,
		retryInterval: defaultRetryInterval,
		table:         make(map[string]model.Schema),
		bypass:        make(map[string]struct{}),
	}
	for _, apply := range opts {
		apply(c)
	}
	c.load(ctx)
	return c
}

func (c *SchemaCache) load(ctx context.Context) {
	data, err := storage.ReadAll(ctx, c.store, c.key)
	if err != nil {
		if errors.Is(err, storagestatus.ErrNotExists) {
			c.l.Info("no schema cache found, starting empty", zap.String("store", c.store.String()), zap.String("key", c.key))
			return
		}
		c.l.Warn("could not read schema cache, starting empty", zap.String("key", c.key), zap.Error(err))
		return
	}

	var table map[string]model.Schema
	if err = json.Unmarshal(data, &table); err != nil {
		c.l.Warn("could not parse schema cache, starting empty", zap.String("key", c.key), zap.Error(err))
		return
	}
	for rev, schema := range table {
		if schema == nil {
			delete(table, rev)
		}
	}
	if table != nil {
		c.table = table
	}
	c.l.Info("schema cache loaded",
		zap.String("key", c.key),
		zap.Int("revisions", len(c.table)),
		zap.String("size", units.HumanSize(float64(len(data)))),
	)
}

// Get the schema of a revision.
//
// A revision configured to be bypassed is reported absent until it has been set again.
// The returned schema is shared and must not be modified.
func (c *SchemaCache) Get(rev string) (model.Schema, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, bypassed := c.bypass[rev]; bypassed {
		return nil, false
	}
	schema, ok := c.table[rev]
	return schema, ok
}

// Set the schema of a revision and persist the whole table.
//
// When persisting fails, the in-memory table is left unchanged and an ErrInternal error is returned.
func (c *SchemaCache) Set(ctx context.Context, rev string, schema model.Schema) error {
	if schema == nil {
		schema = model.Schema{}
	}
	return c.update(ctx, func(table map[string]model.Schema) bool {
		table[rev] = schema
		return true
	}, rev)
}

// Delete some revisions from the cache, and yields the number of revisions actually removed
func (c *SchemaCache) Delete(ctx context.Context, revs ...string) (int, error) {
	var removed int
	err := c.update(ctx, func(table map[string]model.Schema) bool {
		for _, rev := range revs {
			if _, ok := table[rev]; ok {
				delete(table, rev)
				removed++
			}
		}
		return removed > 0
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// update applies a change to a copy of the table, persists it, then publishes it
func (c *SchemaCache) update(ctx context.Context, change func(map[string]model.Schema) bool, refreshed ...string) error {
	c.writer.Lock()
	defer c.writer.Unlock()

	c.mu.RLock()
	next := make(map[string]model.Schema, len(c.table)+1)
	for k, v := range c.table {
		next[k] = v
	}
	c.mu.RUnlock()

	if !change(next) {
		return nil
	}

	data, err := json.Marshal(next)
	if err != nil {
		return status.ErrInternal.Wrapf("encoding schema cache: %v", err)
	}
	if err = c.put(ctx, data); err != nil {
		return status.ErrInternal.Wrapf("writing schema cache: %v", err)
	}

	c.mu.Lock()
	c.table = next
	for _, rev := range refreshed {
		delete(c.bypass, rev)
	}
	c.mu.Unlock()

	c.l.Debug("schema cache written",
		zap.Int("revisions", len(next)),
		zap.String("size", units.HumanSize(float64(len(data)))),
	)
	return nil
}

// put the encoded table, retrying transient storage errors
func (c *SchemaCache) put(ctx context.Context, data []byte) error {
	return backoff.Retry(func() error {
		err := c.store.Put(ctx, c.key, bytes.NewReader(data))
		if err == nil {
			return nil
		}
		if errors.Is(err, storagestatus.ErrInvalidResource) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		c.l.Warn("schema cache write failed", zap.String("key", c.key), zap.Error(err))
		return err // retry
	},
		backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(c.retryInterval), c.retries), ctx),
	)
}

// Revisions held by the cache, sorted
func (c *SchemaCache) Revisions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	revs := make([]string, 0, len(c.table))
	for rev := range c.table {
		revs = append(revs, rev)
	}
	sort.Strings(revs)
	return revs
}

// Len is the number of revisions held by the cache
func (c *SchemaCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.table)
}

// String representation of the cache
func (c *SchemaCache) String() string {
	return c.store.String() + "/" + c.key
}
