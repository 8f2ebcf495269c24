package api

import (
	"context"

	"github.com/sourcegraph/lsif-server/internal/bundles"
	"github.com/sourcegraph/lsif-server/internal/db"
)

// Definitions returns the definition locations of the symbol at the given
// position. The first closest dump with an answer wins; a local answer is
// preferred, then an import moniker resolved through the defining dump,
// then the dump's own moniker-indexed definition rows.
func (api *CodeIntelAPI) Definitions(ctx context.Context, repository, commit, file string, line, character int) ([]ResolvedLocation, error) {
	dumps, err := api.FindClosestDatabase(ctx, repository, commit, file)
	if err != nil {
		return nil, err
	}

	for _, dump := range dumps {
		resolved, err := api.definitionsInDump(ctx, dump, pathRelativeToRoot(dump.Root, file), line, character)
		if err != nil {
			return nil, err
		}

		if len(resolved) > 0 {
			return resolved, nil
		}
	}

	return nil, nil
}

func (api *CodeIntelAPI) definitionsInDump(ctx context.Context, dump db.Dump, pathInDump string, line, character int) ([]ResolvedLocation, error) {
	var locations []bundles.Location
	var rangeMonikers [][]bundles.MonikerData

	err := api.store.WithDatabase(ctx, dump.ID, func(database *bundles.Database) error {
		var err error
		if locations, err = database.Definitions(ctx, pathInDump, line, character); err != nil {
			return err
		}
		if len(locations) > 0 {
			return nil
		}

		rangeMonikers, err = database.MonikersByPosition(ctx, pathInDump, line, character)
		return err
	})
	if err != nil {
		return nil, err
	}

	if len(locations) > 0 {
		return resolveLocations(dump, locations), nil
	}

	for _, monikers := range rangeMonikers {
		for _, moniker := range monikers {
			if moniker.Kind == "import" {
				resolved, err := api.definitionsFromDefiningDump(ctx, dump, pathInDump, moniker)
				if err != nil {
					return nil, err
				}
				if len(resolved) > 0 {
					return resolved, nil
				}

				continue
			}

			// The symbol was not imported. Search our own definition rows
			// in case the definition carries the moniker but was not
			// linked to this range through a result set.
			var results []bundles.Location
			err := api.store.WithDatabase(ctx, dump.ID, func(database *bundles.Database) error {
				var err error
				results, _, err = database.MonikerResults(ctx, "definitions", moniker.Scheme, moniker.Identifier, 0, 0)
				return err
			})
			if err != nil {
				return nil, err
			}

			if len(results) > 0 {
				return resolveLocations(dump, results), nil
			}
		}
	}

	return nil, nil
}

// definitionsFromDefiningDump resolves an import moniker: it looks up the
// package information attached to the moniker, finds the dump defining
// that package, and returns that dump's definition rows for the moniker.
func (api *CodeIntelAPI) definitionsFromDefiningDump(ctx context.Context, dump db.Dump, pathInDump string, moniker bundles.MonikerData) ([]ResolvedLocation, error) {
	if moniker.PackageInformationID == "" {
		return nil, nil
	}

	var packageInformation bundles.PackageInformationData
	var exists bool
	err := api.store.WithDatabase(ctx, dump.ID, func(database *bundles.Database) error {
		var err error
		packageInformation, exists, err = database.PackageInformation(ctx, pathInDump, moniker.PackageInformationID)
		return err
	})
	if err != nil || !exists {
		return nil, err
	}

	definingDump, exists, err := api.db.GetPackage(ctx, moniker.Scheme, packageInformation.Name, packageInformation.Version)
	if err != nil || !exists {
		return nil, err
	}

	var locations []bundles.Location
	err = api.store.WithDatabase(ctx, definingDump.ID, func(database *bundles.Database) error {
		var err error
		locations, _, err = database.MonikerResults(ctx, "definitions", moniker.Scheme, moniker.Identifier, 0, 0)
		return err
	})
	if err != nil {
		return nil, err
	}

	return resolveLocations(definingDump, locations), nil
}
