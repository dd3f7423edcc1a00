// Copyright © 2018 One Concern

package cache

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/oneconcern/smartes/pkg/core/status"
	"github.com/oneconcern/smartes/pkg/errors"
	"github.com/oneconcern/smartes/pkg/model"
	"github.com/oneconcern/smartes/pkg/storage"
	"github.com/oneconcern/smartes/pkg/storage/localfs"
	storagestatus "github.com/oneconcern/smartes/pkg/storage/status"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func testStore(t testing.TB, fs afero.Fs) storage.Store {
	store, err := localfs.NewAtomic(fs)
	require.NoError(t, err)
	return store
}

func sampleSchema(version uint64) model.Schema {
	return model.Schema{
		"entry.js": {Version: version, Dependencies: []string{"lib.js"}, Hash: "e"},
		"lib.js":   {Version: 0, Dependencies: []string{}, Hash: "l"},
	}
}

func TestEmptyCache(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	c := New(ctx, testStore(t, fs))

	_, ok := c.Get("abc")
	assert.False(t, ok)
	assert.Zero(t, c.Len())

	exists, err := afero.Exists(fs, DefaultFile)
	require.NoError(t, err)
	assert.False(t, exists, "nothing is written until a schema is set")
}

func TestSetAndReload(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	c := New(ctx, testStore(t, fs))

	require.NoError(t, c.Set(ctx, "rev1", sampleSchema(0)))
	require.NoError(t, c.Set(ctx, "rev2", sampleSchema(1)))
	require.NoError(t, c.Set(ctx, "rev3", nil))

	s, ok := c.Get("rev2")
	require.True(t, ok)
	assert.Equal(t, sampleSchema(1), s)

	reloaded := New(ctx, testStore(t, fs))
	assert.Equal(t, []string{"rev1", "rev2", "rev3"}, reloaded.Revisions())
	s, ok = reloaded.Get("rev1")
	require.True(t, ok)
	assert.Equal(t, sampleSchema(0), s)
	s, ok = reloaded.Get("rev3")
	require.True(t, ok)
	assert.Empty(t, s)
}

func TestPersistedFormat(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	c := New(ctx, testStore(t, fs), Key("custom.cache"))
	require.NoError(t, c.Set(ctx, "rev1", model.Schema{"entry.js": {Version: 2, Dependencies: []string{}, Hash: "h"}}))

	data, err := afero.ReadFile(fs, "custom.cache")
	require.NoError(t, err)
	assert.JSONEq(t, `{"rev1":{"entry.js":{"version":2,"dependencies":[],"hash":"h"}}}`, string(data))
}

func TestLegacyFormat(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, DefaultFile,
		[]byte(`{"rev1":{"entry.js":{"version":3,"dependencies":["lib.js"]},"lib.js":{"version":1,"dependencies":[]}},"rev2":null}`),
		0600))

	c := New(ctx, testStore(t, fs))
	assert.Equal(t, []string{"rev1"}, c.Revisions())
	v, ok := func() (uint64, bool) {
		s, _ := c.Get("rev1")
		return s.VersionOf("entry.js")
	}()
	assert.True(t, ok)
	assert.EqualValues(t, 3, v)
}

func TestCorruptCache(t *testing.T) {
	ctx := context.Background()

	for _, content := range []string{"{not json", `["a", "b"]`, ""} {
		content := content
		t.Run(fmt.Sprintf("%q", content), func(t *testing.T) {
			fs := afero.NewMemMapFs()
			require.NoError(t, afero.WriteFile(fs, DefaultFile, []byte(content), 0600))

			c := New(ctx, testStore(t, fs))
			assert.Zero(t, c.Len())

			require.NoError(t, c.Set(ctx, "rev1", sampleSchema(0)))
			reloaded := New(ctx, testStore(t, fs))
			assert.Equal(t, []string{"rev1"}, reloaded.Revisions())
		})
	}
}

func TestBypass(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	c := New(ctx, testStore(t, fs))
	require.NoError(t, c.Set(ctx, "rev1", sampleSchema(0)))
	require.NoError(t, c.Set(ctx, "rev2", sampleSchema(0)))

	bypassing := New(ctx, testStore(t, fs), Bypass("rev1", ""))
	_, ok := bypassing.Get("rev1")
	assert.False(t, ok, "bypassed revision is reported absent")
	_, ok = bypassing.Get("rev2")
	assert.True(t, ok)

	require.NoError(t, bypassing.Set(ctx, "rev1", sampleSchema(7)))
	s, ok := bypassing.Get("rev1")
	require.True(t, ok, "a recomputed revision is served from the cache again")
	assert.EqualValues(t, 7, s["entry.js"].Version)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	c := New(ctx, testStore(t, fs))
	for _, rev := range []string{"rev1", "rev2", "rev3"} {
		require.NoError(t, c.Set(ctx, rev, sampleSchema(0)))
	}

	removed, err := c.Delete(ctx, "rev1", "rev3", "unknown")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	removed, err = c.Delete(ctx, "unknown")
	require.NoError(t, err)
	assert.Zero(t, removed)

	reloaded := New(ctx, testStore(t, fs))
	assert.Equal(t, []string{"rev2"}, reloaded.Revisions())
}

// failingStore fails the first failures puts
type failingStore struct {
	storage.Store
	failures int
	puts     int
}

func (f *failingStore) Put(ctx context.Context, key string, r io.Reader) error {
	f.puts++
	if f.puts <= f.failures {
		return storagestatus.ErrStorageAPI.Wrapf("disk full")
	}
	return f.Store.Put(ctx, key, r)
}

func TestWriteFailure(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	store := &failingStore{Store: testStore(t, fs), failures: 100}
	c := New(ctx, store, Bypass("rev1"), Retries(2, time.Millisecond))

	err := c.Set(ctx, "rev1", sampleSchema(0))
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrInternal))
	assert.Equal(t, 3, store.puts, "a failed write is attempted again")

	_, ok := c.Get("rev1")
	assert.False(t, ok, "a failed write leaves the cache unchanged")
	assert.Zero(t, c.Len())
}

func TestWriteRetry(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	store := &failingStore{Store: testStore(t, fs), failures: 1}
	c := New(ctx, store, Retries(2, time.Millisecond))

	require.NoError(t, c.Set(ctx, "rev1", sampleSchema(0)))
	assert.Equal(t, 2, store.puts)

	reloaded := New(ctx, testStore(t, fs))
	assert.Equal(t, []string{"rev1"}, reloaded.Revisions())
}

func TestWriteInvalidKey(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	store := &failingStore{Store: testStore(t, fs)}
	c := New(ctx, store, Key(".put-stage/cache"))

	err := c.Set(ctx, "rev1", sampleSchema(0))
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrInternal))
	assert.Equal(t, 1, store.puts, "an invalid key is not attempted again")
}

func TestConcurrentSet(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	fs := afero.NewMemMapFs()
	c := New(ctx, testStore(t, fs))

	const writers = 32
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rev := fmt.Sprintf("rev%02d", i)
			assert.NoError(t, c.Set(ctx, rev, sampleSchema(uint64(i))))
			_, _ = c.Get(rev)
			_ = c.Revisions()
		}(i)
	}
	wg.Wait()

	reloaded := New(ctx, testStore(t, fs))
	require.Equal(t, writers, reloaded.Len(), "the persisted table holds the union of all writes")
	for i := 0; i < writers; i++ {
		s, ok := reloaded.Get(fmt.Sprintf("rev%02d", i))
		require.True(t, ok)
		assert.EqualValues(t, i, s["entry.js"].Version)
	}
}
