// Package db provides the embedded SQLite database used by playground:
// connection setup, the single-process lock, and the schema registry that
// converges a database file to the latest schema version.
package db

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/rogpeppe/go-internal/lockedfile"
	_ "modernc.org/sqlite"
)

// ErrLocked is returned by Lock when another process holds the database.
var ErrLocked = errors.New("database is in use by another playground process")

// Open opens or creates a SQLite database at the given path with optimal configuration.
func Open(ctx context.Context, dbPath string) (*sqlx.DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create database directory")
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	if err := Configure(ctx, db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to configure database")
	}

	return db, nil
}

// Configure sets up SQLite pragmas. A single connection is kept open: the
// store is driven by one conversation at a time and pragmas are per connection.
func Configure(ctx context.Context, db *sqlx.DB) error {
	db.SetMaxIdleConns(1)
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=memory",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return errors.Wrapf(err, "failed to execute pragma: %s", pragma)
		}
	}

	var journalMode string
	if err := db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&journalMode); err != nil {
		return errors.Wrap(err, "failed to query journal mode")
	}

	if strings.ToLower(journalMode) != "wal" {
		return errors.Errorf("WAL mode not enabled. Current mode: %s", journalMode)
	}

	return nil
}

// VerifyConfiguration checks if the database is properly configured with WAL mode and foreign keys.
func VerifyConfiguration(db *sqlx.DB) error {
	var journalMode string
	if err := db.Get(&journalMode, "PRAGMA journal_mode"); err != nil {
		return errors.Wrap(err, "failed to query journal mode")
	}
	if strings.ToLower(journalMode) != "wal" {
		return errors.Errorf("expected WAL mode, got %s", journalMode)
	}

	var foreignKeys string
	if err := db.Get(&foreignKeys, "PRAGMA foreign_keys"); err != nil {
		return errors.Wrap(err, "failed to query foreign keys")
	}
	if foreignKeys != "1" {
		return errors.Errorf("expected foreign keys ON, got %s", foreignKeys)
	}

	return nil
}

// Lock takes the advisory lock guarding dbPath against a second playground
// process. It gives up with ErrLocked when ctx is done before the lock is
// acquired. The returned function releases the lock.
func Lock(ctx context.Context, dbPath string) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create database directory")
	}

	type acquired struct {
		unlock func()
		err    error
	}

	mu := lockedfile.MutexAt(dbPath + ".lock")
	ch := make(chan acquired, 1)
	go func() {
		unlock, err := mu.Lock()
		ch <- acquired{unlock: unlock, err: err}
	}()

	select {
	case a := <-ch:
		if a.err != nil {
			return nil, errors.Wrap(a.err, "failed to lock database")
		}
		return a.unlock, nil
	case <-ctx.Done():
		// release the lock if it is granted after we stopped waiting
		go func() {
			if a := <-ch; a.err == nil {
				a.unlock()
			}
		}()
		return nil, errors.Wrapf(ErrLocked, "%s", dbPath)
	}
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TableExists reports whether a table with the given name exists.
func TableExists(ctx context.Context, q queryer, table string) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&count)
	if err != nil {
		return false, errors.Wrapf(err, "failed to look up table %s", table)
	}
	return count > 0, nil
}

// ColumnExists reports whether table has a column with the given name.
func ColumnExists(ctx context.Context, q queryer, table, column string) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?", table, column).Scan(&count)
	if err != nil {
		return false, errors.Wrapf(err, "failed to look up column %s.%s", table, column)
	}
	return count > 0, nil
}
