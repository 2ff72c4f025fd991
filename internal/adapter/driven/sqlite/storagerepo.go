package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/keyquota/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.KVStore = (*StorageRepo)(nil)

// StorageRepo is the SQLite implementation of the KVStore port. Values are
// stored as given; the encrypted key blob is already opaque by the time it
// arrives here.
type StorageRepo struct {
	db *DB
}

// NewStorageRepo creates a new StorageRepo.
func NewStorageRepo(db *DB) *StorageRepo {
	return &StorageRepo{db: db}
}

// Get returns the value stored under key. ok is false when the key is absent.
func (r *StorageRepo) Get(ctx context.Context, key string) (string, bool, error) {
	const query = `SELECT value FROM storage WHERE key = ?`

	var value string
	err := r.db.Reader.QueryRowContext(ctx, query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %q: %w", key, err)
	}
	return value, true, nil
}

// Set stores or replaces the value under key.
func (r *StorageRepo) Set(ctx context.Context, key, value string) error {
	const query = `
		INSERT INTO storage (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`

	if _, err := r.db.Writer.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (r *StorageRepo) Delete(ctx context.Context, key string) error {
	const query = `DELETE FROM storage WHERE key = ?`

	if _, err := r.db.Writer.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// UpdatedAt returns when key was last written, in UTC.
func (r *StorageRepo) UpdatedAt(ctx context.Context, key string) (time.Time, bool, error) {
	const query = `SELECT updated_at FROM storage WHERE key = ?`

	var raw string
	err := r.db.Reader.QueryRowContext(ctx, query, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("get updated_at for %q: %w", key, err)
	}

	t, err := parseTime(raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse updated_at for %q: %w", key, err)
	}
	return t, true, nil
}

// parseTime parses the timestamp layouts SQLite and the driver produce.
func parseTime(s string) (time.Time, error) {
	formats := []string{
		"2006-01-02T15:04:05Z",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05.000",
		time.RFC3339,
		time.RFC3339Nano,
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time format: %q", s)
}
