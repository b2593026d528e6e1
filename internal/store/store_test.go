package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/activesave/internal/store"
	"github.com/zjrosen/activesave/internal/store/storetest"
)

func TestMemory_Contract(t *testing.T) {
	storetest.RunBackendContract(t, func(t *testing.T) store.Backend {
		return store.NewMemory()
	})
}

func TestCached_Contract(t *testing.T) {
	storetest.RunBackendContract(t, func(t *testing.T) store.Backend {
		return store.NewCached(store.NewMemory(), time.Minute)
	})
}

func TestStore_GetMissingIsNil(t *testing.T) {
	s := store.New(store.NewMemory())
	require.Nil(t, s.Get(context.Background(), "global"))
	require.Nil(t, s.GetField(context.Background(), "global", "bio"))
}

func TestStore_GetCorruptIsNil(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	require.NoError(t, mem.Save(ctx, "global", []byte("{not json")))

	s := store.New(mem)
	require.Nil(t, s.Get(ctx, "global"))
}

func TestStore_GetField(t *testing.T) {
	ctx := context.Background()
	s := store.New(store.NewMemory())
	require.NoError(t, s.Set(ctx, "user42::profile", store.Values{"bio": "hello"}))

	require.Equal(t, "hello", s.GetField(ctx, "user42::profile", "bio"))
	require.Nil(t, s.GetField(ctx, "user42::profile", "missing"))
}

func TestStore_SetField(t *testing.T) {
	ctx := context.Background()
	s := store.New(store.NewMemory())

	require.NoError(t, s.SetField(ctx, "global", "a", "1"))
	require.NoError(t, s.SetField(ctx, "global", "b", true))
	require.Equal(t, store.Values{"a": "1", "b": true}, s.Get(ctx, "global"))
}

func TestStore_RemoveFieldDeletesByKey(t *testing.T) {
	ctx := context.Background()
	s := store.New(store.NewMemory())
	require.NoError(t, s.Set(ctx, "global", store.Values{"keep": "1", "drop": "2"}))

	require.NoError(t, s.RemoveField(ctx, "global", "drop"))
	require.Equal(t, store.Values{"keep": "1"}, s.Get(ctx, "global"))

	require.NoError(t, s.RemoveField(ctx, "global", "absent"))
	require.NoError(t, s.RemoveField(ctx, "missing-namespace", "drop"))
	require.Nil(t, s.Get(ctx, "missing-namespace"))
}

func TestStore_Remove(t *testing.T) {
	ctx := context.Background()
	s := store.New(store.NewMemory())
	require.NoError(t, s.Set(ctx, "global", store.Values{"a": "1"}))

	require.NoError(t, s.Remove(ctx, "global"))
	require.Nil(t, s.Get(ctx, "global"))
}

func TestStore_KeysSorted(t *testing.T) {
	ctx := context.Background()
	s := store.New(store.NewMemory())
	require.NoError(t, s.Set(ctx, "user42::profile", nil))
	require.NoError(t, s.Set(ctx, "global", nil))

	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"global", "user42::profile"}, keys)
	require.Equal(t, store.Values{}, s.Get(ctx, "global"))
}

func TestValues_Names(t *testing.T) {
	require.Equal(t, []string{"a", "b", "c"}, store.Values{"c": 1, "a": 2, "b": 3}.Names())
}

type countingBackend struct {
	*store.Memory
	loads   int
	failing bool
}

func (c *countingBackend) Load(ctx context.Context, key string) ([]byte, bool, error) {
	c.loads++
	return c.Memory.Load(ctx, key)
}

func (c *countingBackend) Save(ctx context.Context, key string, data []byte) error {
	if c.failing {
		return errors.New("disk full")
	}
	return c.Memory.Save(ctx, key, data)
}

func TestCached_ServesReadsFromMemory(t *testing.T) {
	ctx := context.Background()
	backend := &countingBackend{Memory: store.NewMemory()}
	cached := store.NewCached(backend, time.Minute)
	s := store.New(cached)

	require.Nil(t, s.Get(ctx, "global"))
	require.Nil(t, s.Get(ctx, "global"))
	require.Equal(t, 1, backend.loads, "misses are cached too")

	require.NoError(t, s.Set(ctx, "global", store.Values{"a": "1"}))
	require.Equal(t, store.Values{"a": "1"}, s.Get(ctx, "global"))
	require.Equal(t, 1, backend.loads, "writes refresh the cache")

	require.NoError(t, s.Remove(ctx, "global"))
	require.Nil(t, s.Get(ctx, "global"))
	require.Equal(t, 1, backend.loads)
}

func TestCached_FailedSaveInvalidates(t *testing.T) {
	ctx := context.Background()
	backend := &countingBackend{Memory: store.NewMemory()}
	s := store.New(store.NewCached(backend, time.Minute))

	require.NoError(t, s.Set(ctx, "global", store.Values{"a": "1"}))
	backend.failing = true
	require.Error(t, s.Set(ctx, "global", store.Values{"a": "2"}))

	require.Equal(t, store.Values{"a": "1"}, s.Get(ctx, "global"))
	require.Equal(t, 1, backend.loads, "the failed write dropped the cached entry")
}
