// Package api composes the cross-repo index and the dump store into the
// code intelligence operations served over HTTP: exists, definitions,
// references, and hover for a (repository, commit, path).
package api

import (
	"context"
	"strings"

	"github.com/sourcegraph/lsif-server/internal/bundles"
	"github.com/sourcegraph/lsif-server/internal/db"
)

// DB is the slice of the cross-repo index the API needs.
type DB interface {
	FindClosestDumps(ctx context.Context, repository, commit, file string) ([]db.Dump, error)
	GetDumps(ctx context.Context, ids []int) (map[int]db.Dump, error)
	GetPackage(ctx context.Context, scheme, name, version string) (db.Dump, bool, error)
	SameRepoPackageRefs(ctx context.Context, repository, commit, scheme, name, version, identifier string) ([]int, error)
	PackageRefs(ctx context.Context, repository, scheme, name, version, identifier string) ([]int, error)
}

var _ DB = &db.DB{}

// CodeIntelAPI answers code intelligence queries.
type CodeIntelAPI struct {
	db    DB
	store *bundles.Store
}

// New creates a CodeIntelAPI over the given index and dump store.
func New(db DB, store *bundles.Store) *CodeIntelAPI {
	return &CodeIntelAPI{
		db:    db,
		store: store,
	}
}

// ResolvedLocation is a location whose dump-relative path has been joined
// back onto the dump root.
type ResolvedLocation struct {
	Dump  db.Dump       `json:"dump"`
	Path  string        `json:"path"`
	Range bundles.Range `json:"range"`
}

// FindClosestDatabase returns the dumps able to answer queries for the
// given file at the given commit: the index's closest dumps filtered to
// the ones that actually contain the file.
func (api *CodeIntelAPI) FindClosestDatabase(ctx context.Context, repository, commit, file string) ([]db.Dump, error) {
	candidates, err := api.db.FindClosestDumps(ctx, repository, commit, file)
	if err != nil {
		return nil, err
	}

	var dumps []db.Dump
	for _, dump := range candidates {
		var exists bool
		err := api.store.WithDatabase(ctx, dump.ID, func(database *bundles.Database) error {
			var err error
			exists, err = database.Exists(ctx, pathRelativeToRoot(dump.Root, file))
			return err
		})
		if err != nil {
			return nil, err
		}

		if exists {
			dumps = append(dumps, dump)
		}
	}

	return dumps, nil
}

// Exists determines if the file is indexed at (or near) the given commit.
func (api *CodeIntelAPI) Exists(ctx context.Context, repository, commit, file string) (bool, error) {
	dumps, err := api.FindClosestDatabase(ctx, repository, commit, file)
	if err != nil {
		return false, err
	}

	return len(dumps) > 0, nil
}

func resolveLocations(dump db.Dump, locations []bundles.Location) []ResolvedLocation {
	var resolved []ResolvedLocation
	for _, location := range locations {
		resolved = append(resolved, ResolvedLocation{
			Dump:  dump,
			Path:  dump.Root + location.Path,
			Range: location.Range,
		})
	}

	return resolved
}

func pathRelativeToRoot(root, path string) string {
	return strings.TrimPrefix(path, root)
}
