package bundles

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/sourcegraph/lsif-server/internal/sqliteutil"
)

var createTableStatements = []string{
	`CREATE TABLE meta (id INTEGER PRIMARY KEY, lsifVersion TEXT, sourcegraphVersion TEXT, numResultChunks INTEGER, encodingVersion INTEGER)`,
	`CREATE TABLE documents (path TEXT PRIMARY KEY, data BLOB)`,
	`CREATE TABLE resultChunks (id INTEGER PRIMARY KEY, data BLOB)`,
	`CREATE TABLE definitions (id INTEGER PRIMARY KEY, scheme TEXT, identifier TEXT, documentPath TEXT, startLine INTEGER, startCharacter INTEGER, endLine INTEGER, endCharacter INTEGER)`,
	`CREATE TABLE "references" (id INTEGER PRIMARY KEY, scheme TEXT, identifier TEXT, documentPath TEXT, startLine INTEGER, startCharacter INTEGER, endLine INTEGER, endCharacter INTEGER)`,
}

var createIndexStatements = []string{
	`CREATE INDEX idx_definitions ON definitions (scheme, identifier)`,
	`CREATE INDEX idx_references ON "references" (scheme, identifier)`,
}

// WriteDump writes the grouped bundle data into a new dump file. The write
// happens in a single transaction with durability pragmas disabled; a
// partial file left by a crash is discarded and the conversion retried.
func WriteDump(ctx context.Context, filename string, data *GroupedBundleData) error {
	db, err := sqlx.Open("sqlite3", filename)
	if err != nil {
		return err
	}
	defer db.Close()

	for _, pragma := range []string{"PRAGMA synchronous = OFF", "PRAGMA journal_mode = OFF"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return err
		}
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	if err := writeDump(ctx, tx, data); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

func writeDump(ctx context.Context, tx *sqlx.Tx, data *GroupedBundleData) error {
	for _, statement := range createTableStatements {
		if _, err := tx.ExecContext(ctx, statement); err != nil {
			return errors.Wrap(err, "creating tables")
		}
	}

	if err := writeMeta(ctx, tx, data.Meta); err != nil {
		return errors.Wrap(err, "writing meta")
	}
	if err := writeDocuments(ctx, tx, data.Documents); err != nil {
		return errors.Wrap(err, "writing documents")
	}
	if err := writeResultChunks(ctx, tx, data.ResultChunks); err != nil {
		return errors.Wrap(err, "writing result chunks")
	}
	if err := writeMonikerLocations(ctx, tx, "definitions", data.Definitions); err != nil {
		return errors.Wrap(err, "writing definitions")
	}
	if err := writeMonikerLocations(ctx, tx, "references", data.References); err != nil {
		return errors.Wrap(err, "writing references")
	}

	// Populating first and indexing after makes the bulk load faster.
	for _, statement := range createIndexStatements {
		if _, err := tx.ExecContext(ctx, statement); err != nil {
			return errors.Wrap(err, "creating indexes")
		}
	}

	return nil
}

func writeMeta(ctx context.Context, tx *sqlx.Tx, meta MetaData) error {
	_, err := tx.ExecContext(
		ctx,
		`INSERT INTO meta (id, lsifVersion, sourcegraphVersion, numResultChunks, encodingVersion) VALUES (1, ?, ?, ?, ?)`,
		meta.LSIFVersion, meta.SourcegraphVersion, meta.NumResultChunks, currentEncodingVersion,
	)
	return err
}

func writeDocuments(ctx context.Context, tx *sqlx.Tx, documents map[string]DocumentData) error {
	inserter := sqliteutil.NewBatchInserter(tx, "documents", "path", "data")

	for path, document := range documents {
		data, err := marshalDocumentData(document)
		if err != nil {
			return err
		}

		if err := inserter.Insert(ctx, path, data); err != nil {
			return err
		}
	}

	return inserter.Flush(ctx)
}

func writeResultChunks(ctx context.Context, tx *sqlx.Tx, resultChunks map[int]ResultChunkData) error {
	inserter := sqliteutil.NewBatchInserter(tx, "resultChunks", "id", "data")

	for id, resultChunk := range resultChunks {
		data, err := marshalResultChunkData(resultChunk)
		if err != nil {
			return err
		}

		if err := inserter.Insert(ctx, id, data); err != nil {
			return err
		}
	}

	return inserter.Flush(ctx)
}

func writeMonikerLocations(ctx context.Context, tx *sqlx.Tx, tableName string, locations []MonikerLocation) error {
	inserter := sqliteutil.NewBatchInserter(tx, tableName, "scheme", "identifier", "documentPath", "startLine", "startCharacter", "endLine", "endCharacter")

	for _, location := range locations {
		err := inserter.Insert(
			ctx,
			location.Scheme, location.Identifier, location.Path,
			location.StartLine, location.StartCharacter, location.EndLine, location.EndCharacter,
		)
		if err != nil {
			return err
		}
	}

	return inserter.Flush(ctx)
}
