package db

import (
	"context"
	"time"

	"github.com/keegancsmith/sqlf"
)

// Dump is one converted LSIF upload.
type Dump struct {
	ID           int       `json:"id"`
	Repository   string    `json:"repository"`
	Commit       string    `json:"commit"`
	Root         string    `json:"root"`
	VisibleAtTip bool      `json:"visibleAtTip"`
	UploadedAt   time.Time `json:"uploadedAt"`
}

var dumpColumns = sqlf.Sprintf(`d.id, d.repository, d."commit", d.root, d.visible_at_tip, d.uploaded_at`)

func scanDump(s interface {
	Scan(dest ...interface{}) error
}) (Dump, error) {
	var dump Dump
	err := s.Scan(&dump.ID, &dump.Repository, &dump.Commit, &dump.Root, &dump.VisibleAtTip, &dump.UploadedAt)
	return dump, err
}

// GetDumpByID returns the dump with the given identifier.
func (db *DB) GetDumpByID(ctx context.Context, id int) (Dump, bool, error) {
	dump, err := scanDump(db.queryRow(ctx, sqlf.Sprintf(`SELECT %s FROM lsif_dumps d WHERE d.id = %d`, dumpColumns, id)))
	exists, err := ignoreErrNoRows(err)
	return dump, exists, err
}

// GetDumps returns the dumps with the given identifiers, keyed by id.
func (db *DB) GetDumps(ctx context.Context, ids []int) (map[int]Dump, error) {
	if len(ids) == 0 {
		return map[int]Dump{}, nil
	}

	var qs []*sqlf.Query
	for _, id := range ids {
		qs = append(qs, sqlf.Sprintf("%d", id))
	}

	rows, err := db.query(ctx, sqlf.Sprintf(`SELECT %s FROM lsif_dumps d WHERE d.id IN (%s)`, dumpColumns, sqlf.Join(qs, ", ")))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	dumpsByID := map[int]Dump{}
	for rows.Next() {
		dump, err := scanDump(rows)
		if err != nil {
			return nil, err
		}

		dumpsByID[dump.ID] = dump
	}

	return dumpsByID, rows.Err()
}

// GetDumpID returns the identifier of a dump for the repository and commit,
// ignoring the root. Used by the filename migration, whose legacy naming
// scheme predates roots.
func (db *DB) GetDumpID(ctx context.Context, repository, commit string) (int, bool, error) {
	var id int
	err := db.queryRow(ctx, sqlf.Sprintf(
		`SELECT d.id FROM lsif_dumps d WHERE d.repository = %s AND d."commit" = %s ORDER BY d.id LIMIT 1`,
		repository, commit,
	)).Scan(&id)
	exists, err := ignoreErrNoRows(err)
	return id, exists, err
}

// GetDumpIDs returns the identifiers of every dump. Used by the janitor to
// detect dump files with no backing row.
func (db *DB) GetDumpIDs(ctx context.Context) ([]int, error) {
	rows, err := db.query(ctx, sqlf.Sprintf(`SELECT d.id FROM lsif_dumps d ORDER BY d.id`))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}

		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// FindClosestDumps returns the dumps that can answer queries for the given
// file at the given commit: the nearest commits in either direction with
// data whose root contains the file, with shadowed dumps removed. On equal
// distance an ancestor's dump precedes a descendant's.
func (db *DB) FindClosestDumps(ctx context.Context, repository, commit, file string) ([]Dump, error) {
	query := "WITH " + bidirectionalLineage + ", " + visibleDumps + `
		SELECT d.dump_id FROM lineage_with_dumps d
		WHERE $3 LIKE (d.root || '%') AND d.dump_id IN (SELECT * FROM visible_ids)
		ORDER BY d.n
	`

	rows, err := db.db.QueryContext(ctx, query, repository, commit, file)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int
	seen := map[int]struct{}{}
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}

		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	dumpsByID, err := db.GetDumps(ctx, ids)
	if err != nil {
		return nil, err
	}

	var dumps []Dump
	for _, id := range ids {
		if dump, ok := dumpsByID[id]; ok {
			dumps = append(dumps, dump)
		}
	}

	return dumps, nil
}

// DeleteOldestDump removes the dump with the oldest upload time that is not
// currently visible at the tip of its repository, and returns its
// identifier. Used by the janitor when reclaiming disk space.
func (db *DB) DeleteOldestDump(ctx context.Context) (int, bool, error) {
	var id int
	err := db.queryRow(ctx, sqlf.Sprintf(`
		DELETE FROM lsif_dumps WHERE id IN (
			SELECT d.id FROM lsif_dumps d
			WHERE d.visible_at_tip = false
			ORDER BY d.uploaded_at
			LIMIT 1
		) RETURNING id
	`)).Scan(&id)
	exists, err := ignoreErrNoRows(err)
	return id, exists, err
}
