// Package db is the cross-repository index: which dump defines which
// package, which dumps import it, and enough of each repository's commit
// graph to find the dump closest to an arbitrary commit.
package db

import (
	"context"
	"database/sql"

	"github.com/keegancsmith/sqlf"
	"github.com/lib/pq"
	"github.com/pkg/errors"
)

// DB is a handle to the shared Postgres database.
type DB struct {
	db *sql.DB
}

// New connects to Postgres with the given DSN and synchronizes the schema.
// An empty DSN falls back to the PG* environment variables understood by
// lib/pq.
func New(postgresDSN string) (*DB, error) {
	db, err := sql.Open("postgres", postgresDSN)
	if err != nil {
		return nil, errors.Wrap(err, "opening postgres")
	}

	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "pinging postgres")
	}

	if err := createSchema(db); err != nil {
		return nil, errors.Wrap(err, "creating schema")
	}

	return &DB{db: db}, nil
}

// NewWithHandle wraps an existing connection. Used by tests.
func NewWithHandle(db *sql.DB) (*DB, error) {
	if err := createSchema(db); err != nil {
		return nil, err
	}

	return &DB{db: db}, nil
}

func (db *DB) query(ctx context.Context, query *sqlf.Query) (*sql.Rows, error) {
	return db.db.QueryContext(ctx, query.Query(sqlf.PostgresBindVar), query.Args()...)
}

func (db *DB) queryRow(ctx context.Context, query *sqlf.Query) *sql.Row {
	return db.db.QueryRowContext(ctx, query.Query(sqlf.PostgresBindVar), query.Args()...)
}

func (db *DB) exec(ctx context.Context, query *sqlf.Query) error {
	_, err := db.db.ExecContext(ctx, query.Query(sqlf.PostgresBindVar), query.Args()...)
	return err
}

// ignoreErrNoRows maps sql.ErrNoRows onto a boolean so that missing rows
// read as absence rather than failure.
func ignoreErrNoRows(err error) (bool, error) {
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// isRetryableTxError reports whether a transaction failed due to a
// serialization conflict or deadlock and may be retried.
func isRetryableTxError(err error) bool {
	if pqErr, ok := errors.Cause(err).(*pq.Error); ok {
		// serialization_failure, deadlock_detected
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return false
}
