package db

import (
	"context"

	lru "github.com/hashicorp/golang-lru"
	"github.com/inconshreveable/log15"
	"github.com/keegancsmith/sqlf"

	"github.com/sourcegraph/lsif-server/internal/bloomfilter"
)

// filterCacheSize bounds the number of decoded bloom filters held in
// memory. Filters are content-addressed, so re-uploads naturally age the
// stale entries out.
const filterCacheSize = 1000

var filterCache *lru.Cache

func init() {
	cache, err := lru.New(filterCacheSize)
	if err != nil {
		panic(err.Error())
	}

	filterCache = cache
}

// testFilter decodes the stored filter (through the cache) and tests the
// identifier against it. Undecodable filters count as matches so that a
// corrupt row degrades to a wasted dump open rather than missing results.
func testFilter(rawFilter []byte, identifier string) bool {
	key := string(rawFilter)

	var filter *bloomfilter.Filter
	if value, ok := filterCache.Get(key); ok {
		filter = value.(*bloomfilter.Filter)
	} else {
		decoded, err := bloomfilter.Decode(rawFilter)
		if err != nil {
			log15.Warn("Failed to decode reference filter", "error", err)
			return true
		}

		filterCache.Add(key, decoded)
		filter = decoded
	}

	return filter.Test(identifier)
}

type packageReferenceRow struct {
	dumpID int
	filter []byte
}

// SameRepoPackageRefs returns the dumps in the given repository, visible
// from the given commit, that import the package and may mention the
// identifier.
func (db *DB) SameRepoPackageRefs(ctx context.Context, repository, commit, scheme, name, version, identifier string) ([]int, error) {
	visibleIDs, err := db.getVisibleIDs(ctx, repository, commit)
	if err != nil {
		return nil, err
	}
	if len(visibleIDs) == 0 {
		return nil, nil
	}

	var qs []*sqlf.Query
	for _, id := range visibleIDs {
		qs = append(qs, sqlf.Sprintf("%d", id))
	}

	rows, err := db.query(ctx, sqlf.Sprintf(`
		SELECT r.dump_id, r.filter FROM lsif_references r
		WHERE r.scheme = %s AND r.name = %s AND r.version = %s AND r.dump_id IN (%s)
		ORDER BY r.dump_id
	`, scheme, name, version, sqlf.Join(qs, ", ")))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return filterReferenceRows(rows, identifier)
}

// PackageRefs returns the dumps of other repositories, visible at their
// repository's tip, that import the package and may mention the identifier.
func (db *DB) PackageRefs(ctx context.Context, repository, scheme, name, version, identifier string) ([]int, error) {
	rows, err := db.query(ctx, sqlf.Sprintf(`
		SELECT r.dump_id, r.filter FROM lsif_references r
		JOIN lsif_dumps d ON r.dump_id = d.id
		WHERE r.scheme = %s AND r.name = %s AND r.version = %s AND d.repository != %s AND d.visible_at_tip = true
		ORDER BY d.repository, d.root
	`, scheme, name, version, repository))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return filterReferenceRows(rows, identifier)
}

func filterReferenceRows(rows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}, identifier string) ([]int, error) {
	var dumpIDs []int
	for rows.Next() {
		var row packageReferenceRow
		if err := rows.Scan(&row.dumpID, &row.filter); err != nil {
			return nil, err
		}

		if testFilter(row.filter, identifier) {
			dumpIDs = append(dumpIDs, row.dumpID)
		}
	}

	return dumpIDs, rows.Err()
}

// getVisibleIDs returns the ids of the dumps visible from the given commit.
func (db *DB) getVisibleIDs(ctx context.Context, repository, commit string) ([]int, error) {
	query := "WITH " + bidirectionalLineage + ", " + visibleDumps + "SELECT id FROM visible_ids"

	rows, err := db.db.QueryContext(ctx, query, repository, commit)
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
