package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/starford/jeebs/internal/apperr"
)

// KV is the opaque key-value contract the record collections are built on.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Scan(ctx context.Context, prefix string) ([]Entry, error)
}

// Verify *DB satisfies KV at compile time.
var _ KV = (*DB)(nil)

// Entry is one key-value pair returned by Scan.
type Entry struct {
	Key   string
	Value []byte
}

const (
	setMaxRetries = 3
	setBaseDelay  = 50 * time.Millisecond
)

// Get returns the raw value stored under key, or apperr.ErrNotFound.
func (db *DB) Get(ctx context.Context, key string) ([]byte, error) {
	var val []byte
	err := db.conn.QueryRowContext(ctx, `SELECT value FROM jeebs_store WHERE key = ?`, key).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %s: %w", key, err)
	}
	return val, nil
}

// Set inserts or replaces the value under key. Writes that hit a busy or
// locked database are retried with exponential backoff.
func (db *DB) Set(ctx context.Context, key string, value []byte) error {
	var err error
	for i := 0; i < setMaxRetries; i++ {
		_, err = db.conn.ExecContext(ctx,
			`INSERT INTO jeebs_store (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
		if err == nil {
			return nil
		}
		if !isBusy(err) || i == setMaxRetries-1 {
			break
		}
		delay := setBaseDelay * time.Duration(1<<i)
		slog.Debug("store: database busy, retrying", slog.String("key", key), slog.Int("attempt", i+1), slog.Duration("delay", delay))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("store: set %s: %w", key, err)
}

// Delete removes key. Deleting a missing key is not an error.
func (db *DB) Delete(ctx context.Context, key string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM jeebs_store WHERE key = ?`, key); err != nil {
		return fmt.Errorf("store: delete %s: %w", key, err)
	}
	return nil
}

// Scan returns every entry whose key starts with prefix, ordered by key.
func (db *DB) Scan(ctx context.Context, prefix string) ([]Entry, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT key, value FROM jeebs_store WHERE key LIKE ? ESCAPE '\' ORDER BY key`, likePrefix(prefix))
	if err != nil {
		return nil, fmt.Errorf("store: scan %s: %w", prefix, err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Key, &e.Value); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Count returns how many keys start with prefix.
func (db *DB) Count(ctx context.Context, prefix string) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT count(*) FROM jeebs_store WHERE key LIKE ? ESCAPE '\'`, likePrefix(prefix)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count %s: %w", prefix, err)
	}
	return n, nil
}

func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}

func isBusy(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}
