package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/zjrosen/activesave/internal/store"
)

// NamespaceRepository implements store.Backend over the namespaces table.
type NamespaceRepository struct {
	db  *sql.DB
	now func() time.Time
}

func newNamespaceRepository(db *sql.DB) *NamespaceRepository {
	return &NamespaceRepository{db: db, now: time.Now}
}

// Ensure NamespaceRepository implements store.Backend.
var _ store.Backend = (*NamespaceRepository)(nil)

func (r *NamespaceRepository) Load(ctx context.Context, key string) ([]byte, bool, error) {
	var payload string
	err := r.db.QueryRowContext(ctx, `SELECT payload FROM namespaces WHERE key = ?`, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load namespace: %w", err)
	}
	return []byte(payload), true, nil
}

func (r *NamespaceRepository) Save(ctx context.Context, key string, data []byte) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO namespaces (key, payload, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		key, string(data), r.now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save namespace: %w", err)
	}
	return nil
}

func (r *NamespaceRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM namespaces WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete namespace: %w", err)
	}
	return nil
}

func (r *NamespaceRepository) Keys(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key FROM namespaces ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list namespaces: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan namespace key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// UpdatedAt returns when a namespace was last written.
func (r *NamespaceRepository) UpdatedAt(ctx context.Context, key string) (time.Time, bool, error) {
	var ts int64
	err := r.db.QueryRowContext(ctx, `SELECT updated_at FROM namespaces WHERE key = ?`, key).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read namespace timestamp: %w", err)
	}
	return time.Unix(ts, 0), true, nil
}
