// Package leveldb stores autosave namespaces in a goleveldb database.
package leveldb

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/syndtr/goleveldb/leveldb"
	ldb_opt "github.com/syndtr/goleveldb/leveldb/opt"
	ldb_util "github.com/syndtr/goleveldb/leveldb/util"

	"github.com/zjrosen/activesave/internal/log"
	"github.com/zjrosen/activesave/internal/store"
)

// namespacePrefix is prepended to every key so the database can hold other
// record types later without a migration.
const namespacePrefix byte = 'N'

// DB is a store.Backend over a leveldb directory.
type DB struct {
	database *leveldb.DB
}

var _ store.Backend = (*DB)(nil)

// Open opens (or creates) the database directory at path.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	opt := &ldb_opt.Options{
		ErrorIfMissing: false,
	}
	database, err := leveldb.OpenFile(path, opt)
	if err != nil {
		return nil, fmt.Errorf("failed to open leveldb: %w", err)
	}
	log.Debug(log.CatDB, "opened leveldb", "path", path)
	return &DB{database: database}, nil
}

// Close releases the database lock.
func (d *DB) Close() error {
	return d.database.Close()
}

// prepend the prefix onto the key
func prefixKey(key string) []byte {
	prefixed := make([]byte, 1, len(key)+1)
	prefixed[0] = namespacePrefix
	return append(prefixed, key...)
}

func (d *DB) Load(_ context.Context, key string) ([]byte, bool, error) {
	value, err := d.database.Get(prefixKey(key), nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load namespace: %w", err)
	}
	return value, true, nil
}

func (d *DB) Save(_ context.Context, key string, data []byte) error {
	if err := d.database.Put(prefixKey(key), data, nil); err != nil {
		return fmt.Errorf("failed to save namespace: %w", err)
	}
	return nil
}

func (d *DB) Delete(_ context.Context, key string) error {
	if err := d.database.Delete(prefixKey(key), nil); err != nil {
		return fmt.Errorf("failed to delete namespace: %w", err)
	}
	return nil
}

func (d *DB) Keys(_ context.Context) ([]string, error) {
	iter := d.database.NewIterator(ldb_util.BytesPrefix([]byte{namespacePrefix}), nil)
	defer iter.Release()

	var keys []string
	for iter.Next() {
		// the iterator's key slice is reused, string() copies it
		keys = append(keys, string(iter.Key()[1:]))
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("failed to list namespaces: %w", err)
	}
	return keys, nil
}
