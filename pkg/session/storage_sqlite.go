package session

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// SQLiteStorage is a Storage backed by a single sqlite file. It plays the
// role of browser-local storage: one table of string items scoped to the
// local user profile.
type SQLiteStorage struct {
	db *sql.DB
}

var _ Storage = &SQLiteStorage{}

func NewSQLiteStorage(dsn string) (*SQLiteStorage, error) {
	if dsn == "" {
		return nil, errors.New("sqlite storage: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStorage{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// OpenSQLiteStorageFile creates the parent directory if needed and opens
// the storage at path.
func OpenSQLiteStorageFile(path string) (*SQLiteStorage, error) {
	path = strings.TrimSpace(path)
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, errors.Wrap(err, "create storage dir")
		}
	}
	dsn, err := SQLiteDSNForFile(path)
	if err != nil {
		return nil, err
	}
	return NewSQLiteStorage(dsn)
}

func (s *SQLiteStorage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStorage) GetItems(ctx context.Context, keys ...string) (map[string]string, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("sqlite storage: db is nil")
	}
	ret := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return ret, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]any, 0, len(keys))
	for _, k := range keys {
		args = append(args, k)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM local_storage WHERE key IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite storage: get items")
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, errors.Wrap(err, "sqlite storage: scan item")
		}
		ret[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "sqlite storage: iterate items")
	}
	return ret, nil
}

func (s *SQLiteStorage) SetItems(ctx context.Context, items map[string]string) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite storage: db is nil")
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UnixMilli()
		for k, v := range items {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO local_storage (key, value, updated_at_ms) VALUES (?, ?, ?)
				ON CONFLICT(key) DO UPDATE SET
					value = excluded.value,
					updated_at_ms = excluded.updated_at_ms
			`, k, v, now)
			if err != nil {
				return errors.Wrapf(err, "sqlite storage: set %q", k)
			}
		}
		return nil
	})
}

func (s *SQLiteStorage) RemoveItems(ctx context.Context, keys ...string) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite storage: db is nil")
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, k := range keys {
			if _, err := tx.ExecContext(ctx, `DELETE FROM local_storage WHERE key = ?`, k); err != nil {
				return errors.Wrapf(err, "sqlite storage: remove %q", k)
			}
		}
		return nil
	})
}

func (s *SQLiteStorage) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "sqlite storage: begin tx")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "sqlite storage: commit")
}

func (s *SQLiteStorage) migrate() error {
	if s == nil || s.db == nil {
		return errors.New("sqlite storage: db is nil")
	}
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS local_storage (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at_ms INTEGER NOT NULL
	);`)
	if err != nil {
		return errors.Wrap(err, "sqlite storage: migrate")
	}
	return nil
}

func SQLiteDSNForFile(path string) (string, error) {
	if path == "" {
		return "", errors.New("sqlite storage: empty path")
	}
	// busy_timeout so two ravent processes sharing a profile don't fail on SQLITE_BUSY.
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path), nil
}
