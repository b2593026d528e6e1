package leveldb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/activesave/internal/store"
	"github.com/zjrosen/activesave/internal/store/storetest"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "cache.ldb"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestDB_Contract(t *testing.T) {
	storetest.RunBackendContract(t, func(t *testing.T) store.Backend {
		return openTestDB(t)
	})
}

func TestDB_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cache.ldb")
	ctx := context.Background()

	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Save(ctx, "user42::profile", []byte(`{"bio":"hi"}`)))
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()

	data, ok, err := db.Load(ctx, "user42::profile")
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"bio":"hi"}`, string(data))
}

func TestDB_KeysIgnoresOtherPrefixes(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.database.Put([]byte("Xother"), []byte("1"), nil))
	require.NoError(t, db.Save(context.Background(), "global", []byte(`{}`)))

	keys, err := db.Keys(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"global"}, keys)
}
