package db

import "fmt"

// MaxTraversalLimit is the maximum number of commits the closest dump
// queries will walk away from the requested commit.
const MaxTraversalLimit = 100

// bidirectionalLineage seeds a recursive walk at the requested commit in
// both the ancestor and descendant directions. Ancestor rows are seeded
// first so that on equal traversal depth an ancestor dump wins.
var bidirectionalLineage = `
	RECURSIVE lineage(id, repository, "commit", parent_commit, direction) AS (
		SELECT l.* FROM (
			-- seed with the requested commit in the ancestor direction
			SELECT c.id, c.repository, c."commit", c.parent_commit, 'A' FROM lsif_commits c WHERE c.repository = $1 AND c."commit" = $2
			UNION
			-- seed with the requested commit in the descendant direction
			SELECT c.id, c.repository, c."commit", c.parent_commit, 'D' FROM lsif_commits c WHERE c.repository = $1 AND c."commit" = $2
		) l

		UNION

		SELECT * FROM (
			WITH l_inner AS (SELECT * FROM lineage)
			-- next ancestors (multiple parents for merge commits)
			SELECT c.id, c.repository, c."commit", c.parent_commit, 'A' FROM l_inner l JOIN lsif_commits c ON l.direction = 'A' AND c.repository = l.repository AND c."commit" = l.parent_commit
			UNION
			-- next descendants
			SELECT c.id, c.repository, c."commit", c.parent_commit, 'D' FROM l_inner l JOIN lsif_commits c ON l.direction = 'D' AND c.repository = l.repository AND c.parent_commit = l."commit"
		) subquery
	)
`

// ancestorLineage walks only toward ancestors. Used when refreshing tip
// visibility, where data from descendants of the tip cannot exist.
var ancestorLineage = `
	RECURSIVE lineage(id, repository, "commit", parent_commit) AS (
		SELECT c.id, c.repository, c."commit", c.parent_commit FROM lsif_commits c WHERE c.repository = $1 AND c."commit" = $2
		UNION
		SELECT c.id, c.repository, c."commit", c.parent_commit FROM lineage a JOIN lsif_commits c ON c.repository = a.repository AND c."commit" = a.parent_commit
	)
`

// lineageWithDumps bounds the lineage to the traversal limit, approximates
// each commit's distance by its row number, and correlates commits to the
// dumps uploaded for them.
var lineageWithDumps = fmt.Sprintf(`
	limited_lineage AS (
		SELECT a.*, row_number() OVER() as n FROM lineage a LIMIT %d
	),
	lineage_with_dumps AS (
		SELECT a.*, d.root, d.id as dump_id FROM limited_lineage a
		JOIN lsif_dumps d ON d.repository = a.repository AND d."commit" = a."commit"
	)
`, MaxTraversalLimit)

// visibleDumps removes dumps shadowed by a nearer dump with an overlapping
// root. Such dumps would never be chosen by a closest-commit query, so
// cross-repo reference queries skip them as well.
var visibleDumps = lineageWithDumps + `,
	visible_ids AS (
		SELECT DISTINCT t1.dump_id as id FROM lineage_with_dumps t1 WHERE NOT EXISTS (
			SELECT 1 FROM lineage_with_dumps t2
			WHERE t2.n < t1.n AND (
				t2.root LIKE (t1.root || '%') OR
				t1.root LIKE (t2.root || '%')
			)
		)
	)
`
