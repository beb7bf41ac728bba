package store

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/baker-street/brain/pkg/store/migrations"
)

// Store is the single embedded relational handle shared by every Brain
// component. It is constructed once at startup and passed into
// constructors as a dependency rather than kept as a package global
// (§9 design notes: no hidden globals).
type Store struct {
	db *sqlx.DB
}

// Open opens the database at dbPath, applies pragmas and runs every
// pending migration idempotently (§4.1).
func Open(ctx context.Context, dbPath string) (*Store, error) {
	db, err := openSQLite(ctx, dbPath)
	if err != nil {
		return nil, err
	}

	runner := NewMigrationRunner(db)
	if err := runner.Run(ctx, migrations.All()); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to run schema migrations")
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for components that need raw access.
func (s *Store) DB() *sqlx.DB {
	return s.db
}
