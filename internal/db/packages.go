package db

import (
	"context"
	"database/sql"

	"github.com/keegancsmith/sqlf"
	"github.com/pkg/errors"

	"github.com/sourcegraph/lsif-server/internal/bloomfilter"
	"github.com/sourcegraph/lsif-server/internal/bundles"
)

// maxTxRetries bounds retries of the registration transaction on
// serialization conflicts.
const maxTxRetries = 3

// AddPackagesAndReferences registers a converted dump: it upserts the dump
// row for (repository, commit, root), replaces the dump's package and
// reference rows, and invokes the rename callback with the dump id before
// committing. The callback moves the dump file into place, so a committed
// dump row never exists without its file. A retried conversion for the same
// triple replaces the previous registration rather than duplicating it.
func (db *DB) AddPackagesAndReferences(
	ctx context.Context,
	repository, commit, root string,
	packages []bundles.Package,
	references []bundles.PackageReference,
	rename func(dumpID int) error,
) (int, error) {
	for attempt := 0; ; attempt++ {
		id, err := db.addPackagesAndReferences(ctx, repository, commit, root, packages, references, rename)
		if err != nil && isRetryableTxError(err) && attempt+1 < maxTxRetries {
			continue
		}

		return id, err
	}
}

func (db *DB) addPackagesAndReferences(
	ctx context.Context,
	repository, commit, root string,
	packages []bundles.Package,
	references []bundles.PackageReference,
	rename func(dumpID int) error,
) (int, error) {
	tx, err := db.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return 0, errors.Wrap(err, "beginning transaction")
	}

	id, err := db.addPackagesAndReferencesInTx(ctx, tx, repository, commit, root, packages, references, rename)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "committing transaction")
	}

	return id, nil
}

func (db *DB) addPackagesAndReferencesInTx(
	ctx context.Context,
	tx *sql.Tx,
	repository, commit, root string,
	packages []bundles.Package,
	references []bundles.PackageReference,
	rename func(dumpID int) error,
) (int, error) {
	upsert := sqlf.Sprintf(`
		INSERT INTO lsif_dumps (repository, "commit", root)
		VALUES (%s, %s, %s)
		ON CONFLICT (repository, "commit", root) DO UPDATE
		SET uploaded_at = now(), visible_at_tip = false
		RETURNING id
	`, repository, commit, root)

	var dumpID int
	if err := tx.QueryRowContext(ctx, upsert.Query(sqlf.PostgresBindVar), upsert.Args()...).Scan(&dumpID); err != nil {
		return 0, errors.Wrap(err, "upserting dump")
	}

	// An upsert reuses the previous registration's row; its package and
	// reference rows describe the replaced file and must go.
	for _, q := range []*sqlf.Query{
		sqlf.Sprintf(`DELETE FROM lsif_packages WHERE dump_id = %d`, dumpID),
		sqlf.Sprintf(`DELETE FROM lsif_references WHERE dump_id = %d`, dumpID),
	} {
		if _, err := tx.ExecContext(ctx, q.Query(sqlf.PostgresBindVar), q.Args()...); err != nil {
			return 0, errors.Wrap(err, "clearing previous rows")
		}
	}

	for _, pkg := range packages {
		q := sqlf.Sprintf(`
			INSERT INTO lsif_packages (scheme, name, version, dump_id)
			VALUES (%s, %s, %s, %d)
			ON CONFLICT (scheme, name, version) DO UPDATE SET dump_id = excluded.dump_id
		`, pkg.Scheme, pkg.Name, pkg.Version, dumpID)

		if _, err := tx.ExecContext(ctx, q.Query(sqlf.PostgresBindVar), q.Args()...); err != nil {
			return 0, errors.Wrap(err, "inserting package")
		}
	}

	for _, reference := range references {
		filter, err := bloomfilter.CreateFilter(reference.Identifiers)
		if err != nil {
			return 0, errors.Wrap(err, "encoding filter")
		}

		q := sqlf.Sprintf(`
			INSERT INTO lsif_references (scheme, name, version, filter, dump_id)
			VALUES (%s, %s, %s, %s, %d)
		`, reference.Scheme, reference.Name, reference.Version, filter, dumpID)

		if _, err := tx.ExecContext(ctx, q.Query(sqlf.PostgresBindVar), q.Args()...); err != nil {
			return 0, errors.Wrap(err, "inserting reference")
		}
	}

	if rename != nil {
		if err := rename(dumpID); err != nil {
			return 0, errors.Wrap(err, "moving dump file into place")
		}
	}

	return dumpID, nil
}

// GetPackage returns the dump that defines the given package.
func (db *DB) GetPackage(ctx context.Context, scheme, name, version string) (Dump, bool, error) {
	dump, err := scanDump(db.queryRow(ctx, sqlf.Sprintf(`
		SELECT %s FROM lsif_packages p
		JOIN lsif_dumps d ON p.dump_id = d.id
		WHERE p.scheme = %s AND p.name = %s AND p.version = %s
		LIMIT 1
	`, dumpColumns, scheme, name, version)))
	exists, err := ignoreErrNoRows(err)
	return dump, exists, err
}
