package db

import "database/sql"

// The schema is synchronized at startup rather than migrated; every
// statement must stay idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS lsif_dumps (
		id SERIAL PRIMARY KEY,
		repository TEXT NOT NULL,
		"commit" TEXT NOT NULL,
		root TEXT NOT NULL DEFAULT '',
		visible_at_tip BOOLEAN NOT NULL DEFAULT false,
		uploaded_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS lsif_dumps_repository_commit_root ON lsif_dumps(repository, "commit", root)`,
	`CREATE INDEX IF NOT EXISTS lsif_dumps_uploaded_at ON lsif_dumps(uploaded_at)`,

	`CREATE TABLE IF NOT EXISTS lsif_packages (
		id SERIAL PRIMARY KEY,
		scheme TEXT NOT NULL,
		name TEXT NOT NULL,
		version TEXT NOT NULL,
		dump_id INTEGER NOT NULL REFERENCES lsif_dumps(id) ON DELETE CASCADE
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS lsif_packages_package ON lsif_packages(scheme, name, version)`,

	`CREATE TABLE IF NOT EXISTS lsif_references (
		id SERIAL PRIMARY KEY,
		scheme TEXT NOT NULL,
		name TEXT NOT NULL,
		version TEXT NOT NULL,
		filter BYTEA NOT NULL,
		dump_id INTEGER NOT NULL REFERENCES lsif_dumps(id) ON DELETE CASCADE
	)`,
	`CREATE INDEX IF NOT EXISTS lsif_references_package ON lsif_references(scheme, name, version)`,
	`CREATE INDEX IF NOT EXISTS lsif_references_dump_id ON lsif_references(dump_id)`,

	`CREATE TABLE IF NOT EXISTS lsif_commits (
		id SERIAL PRIMARY KEY,
		repository TEXT NOT NULL,
		"commit" TEXT NOT NULL,
		parent_commit TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS lsif_commits_repository_commit_parent ON lsif_commits(repository, "commit", parent_commit)`,
	`CREATE INDEX IF NOT EXISTS lsif_commits_repository_parent ON lsif_commits(repository, parent_commit)`,
}

func createSchema(db *sql.DB) error {
	for _, statement := range schema {
		if _, err := db.Exec(statement); err != nil {
			return err
		}
	}

	return nil
}
