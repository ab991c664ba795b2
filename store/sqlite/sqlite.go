// Package sqlite is the default durable engine, built on modernc.org/sqlite
// (pure Go, no cgo).
//
// All trees share one table keyed by (ns, key); a tree is just a handle bound
// to its ns value, so opening a tree costs nothing and an empty tree is
// indistinguishable from an absent one.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"

	_ "modernc.org/sqlite"

	"github.com/unkn0wn-root/tierstore/store"
)

const pageSize = 256

const schema = `
CREATE TABLE IF NOT EXISTS records (
	ns    TEXT NOT NULL,
	key   TEXT NOT NULL,
	value BLOB NOT NULL,
	PRIMARY KEY (ns, key)
) WITHOUT ROWID;
`

// Store provides SQLite-backed trees.
type Store struct {
	sqlDB  *sql.DB
	closed atomic.Bool
}

var _ store.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path. ":memory:" gives a
// private in-memory database on a single connection.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := ":memory:"
	if path != ":memory:" {
		dsn = "file:" + filepath.Clean(path) +
			"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if path == ":memory:" {
		sqlDB.SetMaxOpenConns(1)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

func (s *Store) check() error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if s.closed.Load() {
		return store.ErrClosed
	}
	return nil
}

func (s *Store) Tree(_ context.Context, name string) (store.Tree, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return &tree{s: s, ns: name}, nil
}

// Flush checkpoints the WAL into the main database file.
func (s *Store) Flush(ctx context.Context) error {
	if err := s.check(); err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx, "PRAGMA wal_checkpoint(PASSIVE)"); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	return nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil || !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.sqlDB.Close()
}

type tree struct {
	s  *Store
	ns string
}

func (t *tree) Name() string { return t.ns }

func (t *tree) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := t.s.check(); err != nil {
		return nil, false, err
	}
	var v []byte
	err := t.s.sqlDB.QueryRowContext(ctx,
		`SELECT value FROM records WHERE ns = ? AND key = ?`, t.ns, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s/%s: %w", t.ns, key, err)
	}
	if v == nil {
		v = []byte{}
	}
	return v, true, nil
}

func (t *tree) Insert(ctx context.Context, key string, value []byte) error {
	if err := t.s.check(); err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}
	_, err := t.s.sqlDB.ExecContext(ctx, `
INSERT INTO records (ns, key, value) VALUES (?, ?, ?)
ON CONFLICT (ns, key) DO UPDATE SET value = excluded.value
`, t.ns, key, value)
	if err != nil {
		return fmt.Errorf("insert %s/%s: %w", t.ns, key, err)
	}
	return nil
}

func (t *tree) Remove(ctx context.Context, key string) error {
	if err := t.s.check(); err != nil {
		return err
	}
	if _, err := t.s.sqlDB.ExecContext(ctx,
		`DELETE FROM records WHERE ns = ? AND key = ?`, t.ns, key); err != nil {
		return fmt.Errorf("remove %s/%s: %w", t.ns, key, err)
	}
	return nil
}

func (t *tree) Contains(ctx context.Context, key string) (bool, error) {
	if err := t.s.check(); err != nil {
		return false, err
	}
	var one int
	err := t.s.sqlDB.QueryRowContext(ctx,
		`SELECT 1 FROM records WHERE ns = ? AND key = ?`, t.ns, key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("contains %s/%s: %w", t.ns, key, err)
	}
	return true, nil
}

// CompareAndSwap is a single statement, so SQLite's write lock makes it atomic
// across connections and processes.
func (t *tree) CompareAndSwap(ctx context.Context, key string, old, next []byte) (bool, error) {
	if err := t.s.check(); err != nil {
		return false, err
	}
	if next == nil {
		next = []byte{}
	}
	var (
		res sql.Result
		err error
	)
	if old == nil {
		res, err = t.s.sqlDB.ExecContext(ctx, `
INSERT INTO records (ns, key, value) VALUES (?, ?, ?)
ON CONFLICT (ns, key) DO NOTHING
`, t.ns, key, next)
	} else {
		res, err = t.s.sqlDB.ExecContext(ctx,
			`UPDATE records SET value = ? WHERE ns = ? AND key = ? AND value = ?`,
			next, t.ns, key, old)
	}
	if err != nil {
		return false, fmt.Errorf("compare-and-swap %s/%s: %w", t.ns, key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("compare-and-swap %s/%s: %w", t.ns, key, err)
	}
	return n == 1, nil
}

// Iterate pages by key so no statement stays open while fn runs.
func (t *tree) Iterate(ctx context.Context, fn func(key string, value []byte) error) error {
	after := ""
	first := true
	for {
		if err := t.s.check(); err != nil {
			return err
		}
		keys, vals, err := t.page(ctx, after, first)
		if err != nil {
			return err
		}
		for i, k := range keys {
			if err := fn(k, vals[i]); err != nil {
				if errors.Is(err, store.ErrStop) {
					return nil
				}
				return err
			}
		}
		if len(keys) < pageSize {
			return nil
		}
		after, first = keys[len(keys)-1], false
	}
}

func (t *tree) page(ctx context.Context, after string, first bool) ([]string, [][]byte, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if first {
		rows, err = t.s.sqlDB.QueryContext(ctx,
			`SELECT key, value FROM records WHERE ns = ? ORDER BY key LIMIT ?`, t.ns, pageSize)
	} else {
		rows, err = t.s.sqlDB.QueryContext(ctx,
			`SELECT key, value FROM records WHERE ns = ? AND key > ? ORDER BY key LIMIT ?`,
			t.ns, after, pageSize)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("iterate %s: %w", t.ns, err)
	}
	defer rows.Close()

	keys := make([]string, 0, pageSize)
	vals := make([][]byte, 0, pageSize)
	for rows.Next() {
		var (
			k string
			v []byte
		)
		if err := rows.Scan(&k, &v); err != nil {
			return nil, nil, fmt.Errorf("iterate %s: %w", t.ns, err)
		}
		keys = append(keys, k)
		vals = append(vals, v)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate %s: %w", t.ns, err)
	}
	return keys, vals, nil
}
