// Package store provides the embedded relational persistence layer shared
// by every Brain component: jobs, conversations, messages, memory state,
// observations, skills, schedules, handoff notes and door policy rows.
package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// DefaultDBPath returns the path to the primary Brain database, honouring
// DATA_DIR (§6).
func DefaultDBPath() string {
	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = "."
	}
	return filepath.Join(dataDir, "bakerst.db")
}

// openSQLite opens or creates a SQLite database at the given path with the
// pragmas required by §4.1: synchronous journalling (WAL + synchronous
// NORMAL), a 5s busy timeout, and foreign-key enforcement on.
func openSQLite(ctx context.Context, dbPath string) (*sqlx.DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create database directory")
	}

	conn, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	if err := Configure(ctx, conn); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "failed to configure database")
	}

	return conn, nil
}

// Configure applies the required pragmas to an already-open connection.
func Configure(ctx context.Context, db *sqlx.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return errors.Wrapf(err, "failed to execute pragma: %s", pragma)
		}
	}

	db.SetMaxIdleConns(1)
	db.SetMaxOpenConns(1)

	var journalMode string
	if err := db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&journalMode); err != nil {
		return errors.Wrap(err, "failed to query journal mode")
	}
	if strings.ToLower(journalMode) != "wal" {
		return errors.Errorf("WAL mode not enabled, current mode: %s", journalMode)
	}

	return nil
}

// AddColumnIfMissing runs an additive ALTER TABLE and silently tolerates
// the "duplicate column" failure so idempotent startup migrations can be
// re-applied across versions without a migration-state table (§4.1).
func AddColumnIfMissing(ctx context.Context, db *sqlx.DB, alterStatement string) error {
	_, err := db.ExecContext(ctx, alterStatement)
	if err == nil {
		return nil
	}
	if strings.Contains(strings.ToLower(err.Error()), "duplicate column") {
		return nil
	}
	return errors.Wrapf(err, "failed to run additive migration: %s", alterStatement)
}
