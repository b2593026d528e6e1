// Package storetest holds the behavior every store.Backend must share.
package storetest

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/activesave/internal/store"
)

// RunBackendContract exercises a backend created fresh for each subtest.
func RunBackendContract(t *testing.T, newBackend func(t *testing.T) store.Backend) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		b := newBackend(t)
		data, ok, err := b.Load(ctx, "global")
		require.NoError(t, err)
		require.False(t, ok)
		require.Nil(t, data)
	})

	t.Run("save then load", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.Save(ctx, "user42::profile", []byte(`{"bio":"hello"}`)))

		data, ok, err := b.Load(ctx, "user42::profile")
		require.NoError(t, err)
		require.True(t, ok)
		require.JSONEq(t, `{"bio":"hello"}`, string(data))
	})

	t.Run("last writer wins", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.Save(ctx, "global", []byte(`{"a":"1"}`)))
		require.NoError(t, b.Save(ctx, "global", []byte(`{"a":"2"}`)))

		data, ok, err := b.Load(ctx, "global")
		require.NoError(t, err)
		require.True(t, ok)
		require.JSONEq(t, `{"a":"2"}`, string(data))
	})

	t.Run("delete", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.Save(ctx, "global", []byte(`{}`)))
		require.NoError(t, b.Delete(ctx, "global"))
		require.NoError(t, b.Delete(ctx, "global"), "deleting a missing key is not an error")

		_, ok, err := b.Load(ctx, "global")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("keys", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.Save(ctx, "global", []byte(`{}`)))
		require.NoError(t, b.Save(ctx, "user42::profile", []byte(`{}`)))

		keys, err := b.Keys(ctx)
		require.NoError(t, err)
		sort.Strings(keys)
		require.Equal(t, []string{"global", "user42::profile"}, keys)
	})

	t.Run("store round trip", func(t *testing.T) {
		s := store.New(newBackend(t))
		require.NoError(t, s.Set(ctx, "user42::profile", store.Values{"bio": "hello", "public": true, "country": nil}))

		got := s.Get(ctx, "user42::profile")
		require.Equal(t, store.Values{"bio": "hello", "public": true, "country": nil}, got)
	})
}
