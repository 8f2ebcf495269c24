package db

import (
	"context"
	"sort"

	"github.com/keegancsmith/sqlf"
	"github.com/pkg/errors"
)

// UpdateCommits inserts the given commit parentage edges. A commit with no
// parents is recorded with an empty parent commit. Existing edges are left
// untouched.
func (db *DB) UpdateCommits(ctx context.Context, repository string, commits map[string][]string) error {
	hashes := make([]string, 0, len(commits))
	for commit := range commits {
		hashes = append(hashes, commit)
	}
	sort.Strings(hashes)

	for _, commit := range hashes {
		parents := commits[commit]
		if len(parents) == 0 {
			parents = []string{""}
		}

		for _, parent := range parents {
			q := sqlf.Sprintf(`
				INSERT INTO lsif_commits (repository, "commit", parent_commit)
				VALUES (%s, %s, %s)
				ON CONFLICT DO NOTHING
			`, repository, commit, parent)

			if err := db.exec(ctx, q); err != nil {
				return errors.Wrap(err, "inserting commit")
			}
		}
	}

	return nil
}

// UpdateDumpsVisibleFromTip recalculates which of the repository's dumps
// are visible from the tip of its default branch.
func (db *DB) UpdateDumpsVisibleFromTip(ctx context.Context, repository, tipCommit string) error {
	query := "WITH " + ancestorLineage + ", " + visibleDumps + `
		UPDATE lsif_dumps d
		SET visible_at_tip = (d.id IN (SELECT * FROM visible_ids))
		WHERE d.repository = $1
	`

	_, err := db.db.ExecContext(ctx, query, repository, tipCommit)
	return errors.Wrap(err, "updating tip visibility")
}

// HasCommit reports whether parentage data exists for the given commit.
// Conversion skips commit discovery when a previous upload already
// populated the graph around the commit.
func (db *DB) HasCommit(ctx context.Context, repository, commit string) (bool, error) {
	var id int
	err := db.queryRow(ctx, sqlf.Sprintf(
		`SELECT c.id FROM lsif_commits c WHERE c.repository = %s AND c."commit" = %s LIMIT 1`,
		repository, commit,
	)).Scan(&id)
	return ignoreErrNoRows(err)
}

// RepositoriesWithDumps returns the names of every repository with at least
// one dump. The update-tips job refreshes visibility for each of them.
func (db *DB) RepositoriesWithDumps(ctx context.Context) ([]string, error) {
	rows, err := db.query(ctx, sqlf.Sprintf(`SELECT DISTINCT d.repository FROM lsif_dumps d ORDER BY d.repository`))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var repositories []string
	for rows.Next() {
		var repository string
		if err := rows.Scan(&repository); err != nil {
			return nil, err
		}

		repositories = append(repositories, repository)
	}

	return repositories, rows.Err()
}
