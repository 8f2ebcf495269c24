package bundles

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"
)

// Database answers position queries against a single converted dump.
// Decoded documents and result chunks are shared with other databases
// through the caches supplied at open time.
type Database struct {
	db               *sqlx.DB
	dumpID           int
	numResultChunks  int
	documentCache    *DocumentDataCache
	resultChunkCache *ResultChunkDataCache
}

// OpenDatabase opens the dump file at the given path. The dump must have
// been written with the current encoding version; older dumps are refused
// so that a stale file is re-converted rather than misread.
func OpenDatabase(filename string, dumpID int, documentCache *DocumentDataCache, resultChunkCache *ResultChunkDataCache) (*Database, error) {
	// Opening a missing file would create an empty database.
	if _, err := os.Stat(filename); err != nil {
		return nil, err
	}

	db, err := sqlx.Open("sqlite3", filename)
	if err != nil {
		return nil, err
	}

	var meta struct {
		NumResultChunks int `db:"numResultChunks"`
		EncodingVersion int `db:"encodingVersion"`
	}
	if err := db.Get(&meta, "SELECT numResultChunks, encodingVersion FROM meta WHERE id = 1"); err != nil {
		_ = db.Close()
		return nil, err
	}

	if meta.EncodingVersion != currentEncodingVersion {
		_ = db.Close()
		return nil, fmt.Errorf("unexpected encoding version %d in %s", meta.EncodingVersion, filename)
	}

	return &Database{
		db:               db,
		dumpID:           dumpID,
		numResultChunks:  meta.NumResultChunks,
		documentCache:    documentCache,
		resultChunkCache: resultChunkCache,
	}, nil
}

// Close closes the underlying connection.
func (db *Database) Close() error {
	return db.db.Close()
}

// Exists determines if the given path was indexed in this dump.
func (db *Database) Exists(ctx context.Context, path string) (bool, error) {
	_, exists, err := db.getDocumentData(ctx, path)
	return exists, err
}

// Definitions returns the set of locations defining the symbol at the
// given position. Ranges containing the position are consulted innermost
// first and the first definition result found wins.
func (db *Database) Definitions(ctx context.Context, path string, line, character int) ([]Location, error) {
	_, ranges, exists, err := db.getRangeByPosition(ctx, path, line, character)
	if err != nil || !exists {
		return nil, err
	}

	for _, r := range ranges {
		if r.DefinitionResultID == "" {
			continue
		}

		definitionResults, err := db.getResultByID(ctx, r.DefinitionResultID)
		if err != nil {
			return nil, err
		}

		return db.convertRangesToLocations(ctx, definitionResults)
	}

	return nil, nil
}

// References returns the set of locations referencing the symbol at the
// given position, gathered over every range containing it.
func (db *Database) References(ctx context.Context, path string, line, character int) ([]Location, error) {
	_, ranges, exists, err := db.getRangeByPosition(ctx, path, line, character)
	if err != nil || !exists {
		return nil, err
	}

	var allLocations []Location
	seen := map[ID]struct{}{}
	for _, r := range ranges {
		if r.ReferenceResultID == "" {
			continue
		}

		// Nested ranges frequently share a reference result.
		if _, ok := seen[r.ReferenceResultID]; ok {
			continue
		}
		seen[r.ReferenceResultID] = struct{}{}

		referenceResults, err := db.getResultByID(ctx, r.ReferenceResultID)
		if err != nil {
			return nil, err
		}

		locations, err := db.convertRangesToLocations(ctx, referenceResults)
		if err != nil {
			return nil, err
		}

		allLocations = append(allLocations, locations...)
	}

	return allLocations, nil
}

// Hover returns the hover text of the symbol at the given position along
// with the extent of the innermost range supplying it.
func (db *Database) Hover(ctx context.Context, path string, line, character int) (string, Range, bool, error) {
	documentData, ranges, exists, err := db.getRangeByPosition(ctx, path, line, character)
	if err != nil || !exists {
		return "", Range{}, false, err
	}

	for _, r := range ranges {
		if r.HoverResultID == "" {
			continue
		}

		text, exists := documentData.HoverResults[r.HoverResultID]
		if !exists {
			return "", Range{}, false, fmt.Errorf("unknown hover result %s", r.HoverResultID)
		}

		return text, newRange(r.StartLine, r.StartCharacter, r.EndLine, r.EndCharacter), true, nil
	}

	return "", Range{}, false, nil
}

// MonikersByPosition returns the monikers attached to each range containing
// the given position, innermost range first.
func (db *Database) MonikersByPosition(ctx context.Context, path string, line, character int) ([][]MonikerData, error) {
	documentData, ranges, exists, err := db.getRangeByPosition(ctx, path, line, character)
	if err != nil || !exists {
		return nil, err
	}

	var monikerData [][]MonikerData
	for _, r := range ranges {
		var batch []MonikerData
		for _, monikerID := range r.MonikerIDs {
			moniker, exists := documentData.Monikers[monikerID]
			if !exists {
				return nil, fmt.Errorf("unknown moniker %s", monikerID)
			}

			batch = append(batch, moniker)
		}

		monikerData = append(monikerData, batch)
	}

	return monikerData, nil
}

// MonikerResults returns the locations that define or reference the given
// moniker, along with the total count of such locations before pagination.
// The table name must be one of definitions or references. A non-positive
// take returns the whole result set.
func (db *Database) MonikerResults(ctx context.Context, tableName, scheme, identifier string, skip, take int) ([]Location, int, error) {
	if tableName != "definitions" && tableName != "references" {
		return nil, 0, fmt.Errorf("unknown moniker results table %q", tableName)
	}

	if take <= 0 {
		// A negative limit disables the clause in sqlite.
		take = -1
	}

	var rows []struct {
		DocumentPath   string `db:"documentPath"`
		StartLine      int    `db:"startLine"`
		StartCharacter int    `db:"startCharacter"`
		EndLine        int    `db:"endLine"`
		EndCharacter   int    `db:"endCharacter"`
	}

	query := fmt.Sprintf(`
		SELECT documentPath, startLine, startCharacter, endLine, endCharacter
		FROM %q WHERE scheme = $1 AND identifier = $2
		ORDER BY id LIMIT $3 OFFSET $4
	`, tableName)

	if err := db.db.SelectContext(ctx, &rows, query, scheme, identifier, take, skip); err != nil {
		return nil, 0, err
	}

	var locations []Location
	for _, row := range rows {
		locations = append(locations, Location{
			DumpID: db.dumpID,
			Path:   row.DocumentPath,
			Range:  newRange(row.StartLine, row.StartCharacter, row.EndLine, row.EndCharacter),
		})
	}

	countQuery := fmt.Sprintf(`SELECT COUNT(1) FROM %q WHERE scheme = $1 AND identifier = $2`, tableName)

	var totalCount int
	if err := db.db.GetContext(ctx, &totalCount, countQuery, scheme, identifier); err != nil {
		return nil, 0, err
	}

	return locations, totalCount, nil
}

// PackageInformation looks up the package information object attached to a
// moniker in the given document.
func (db *Database) PackageInformation(ctx context.Context, path string, packageInformationID ID) (PackageInformationData, bool, error) {
	documentData, exists, err := db.getDocumentData(ctx, path)
	if err != nil {
		return PackageInformationData{}, false, err
	}

	if !exists {
		return PackageInformationData{}, false, nil
	}

	packageInformationData, exists := documentData.PackageInformation[packageInformationID]
	return packageInformationData, exists, nil
}

func (db *Database) getDocumentData(ctx context.Context, path string) (DocumentData, bool, error) {
	documentData, err := db.documentCache.GetOrCreate(fmt.Sprintf("%d:%s", db.dumpID, path), func() (DocumentData, error) {
		var data []byte
		if err := db.db.GetContext(ctx, &data, "SELECT data FROM documents WHERE path = $1", path); err != nil {
			return DocumentData{}, err
		}

		return unmarshalDocumentData(data)
	})
	if err != nil {
		if err == sql.ErrNoRows {
			return DocumentData{}, false, nil
		}

		return DocumentData{}, false, err
	}

	return documentData, true, nil
}

func (db *Database) getRangeByPosition(ctx context.Context, path string, line, character int) (DocumentData, []RangeData, bool, error) {
	documentData, exists, err := db.getDocumentData(ctx, path)
	if err != nil {
		return DocumentData{}, nil, false, err
	}

	if !exists {
		return DocumentData{}, nil, false, nil
	}

	return documentData, findRanges(documentData.Ranges, line, character), true, nil
}

// getResultByID returns the definition or reference locations stored under
// the given result id, resolving document ids to paths.
func (db *Database) getResultByID(ctx context.Context, id ID) ([]DocumentPathRangeID, error) {
	resultChunkData, exists, err := db.getResultChunkByResultID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !exists {
		return nil, fmt.Errorf("unknown result chunk for result %s", id)
	}

	documentIDRangeIDs, exists := resultChunkData.DocumentIDRangeIDs[id]
	if !exists {
		return nil, fmt.Errorf("unknown result %s", id)
	}

	var resultData []DocumentPathRangeID
	for _, documentIDRangeID := range documentIDRangeIDs {
		path, ok := resultChunkData.DocumentPaths[documentIDRangeID.DocumentID]
		if !ok {
			return nil, fmt.Errorf("unknown document path %s", documentIDRangeID.DocumentID)
		}

		resultData = append(resultData, DocumentPathRangeID{
			Path:    path,
			RangeID: documentIDRangeID.RangeID,
		})
	}

	return resultData, nil
}

// getResultChunkByResultID loads the result chunk whose bucket the given
// result id hashes into. The hash must match the one used at import time.
func (db *Database) getResultChunkByResultID(ctx context.Context, id ID) (ResultChunkData, bool, error) {
	index := HashKey(id, db.numResultChunks)

	resultChunkData, err := db.resultChunkCache.GetOrCreate(fmt.Sprintf("%d:%d", db.dumpID, index), func() (ResultChunkData, error) {
		var data []byte
		if err := db.db.GetContext(ctx, &data, "SELECT data FROM resultChunks WHERE id = $1", index); err != nil {
			return ResultChunkData{}, err
		}

		return unmarshalResultChunkData(data)
	})
	if err != nil {
		if err == sql.ErrNoRows {
			return ResultChunkData{}, false, nil
		}

		return ResultChunkData{}, false, err
	}

	return resultChunkData, true, nil
}

func (db *Database) convertRangesToLocations(ctx context.Context, resultData []DocumentPathRangeID) ([]Location, error) {
	var locations []Location
	for _, documentPathRangeID := range resultData {
		documentData, exists, err := db.getDocumentData(ctx, documentPathRangeID.Path)
		if err != nil {
			return nil, err
		}

		if !exists {
			return nil, fmt.Errorf("unknown document %s", documentPathRangeID.Path)
		}

		r, exists := documentData.Ranges[documentPathRangeID.RangeID]
		if !exists {
			return nil, fmt.Errorf("unknown range %s", documentPathRangeID.RangeID)
		}

		locations = append(locations, Location{
			DumpID: db.dumpID,
			Path:   documentPathRangeID.Path,
			Range:  newRange(r.StartLine, r.StartCharacter, r.EndLine, r.EndCharacter),
		})
	}

	return locations, nil
}
