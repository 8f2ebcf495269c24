package api

import (
	"context"

	"github.com/sourcegraph/lsif-server/internal/bundles"
	"github.com/sourcegraph/lsif-server/internal/db"
)

// References returns every known reference to the symbol at the given
// position: the local reference result, the dump's own moniker-indexed
// reference rows, the defining dump's rows for import monikers, and the
// rows of every other dump whose reference filter admits the identifier —
// first within the same repository, then across repositories. Duplicates
// are collapsed in arrival order.
func (api *CodeIntelAPI) References(ctx context.Context, repository, commit, file string, line, character int) ([]ResolvedLocation, error) {
	dumps, err := api.FindClosestDatabase(ctx, repository, commit, file)
	if err != nil {
		return nil, err
	}

	for _, dump := range dumps {
		resolved, err := api.referencesInDump(ctx, repository, commit, dump, pathRelativeToRoot(dump.Root, file), line, character)
		if err != nil {
			return nil, err
		}

		if len(resolved) > 0 {
			return deduplicateLocations(resolved), nil
		}
	}

	return nil, nil
}

func (api *CodeIntelAPI) referencesInDump(ctx context.Context, repository, commit string, dump db.Dump, pathInDump string, line, character int) ([]ResolvedLocation, error) {
	var locations []bundles.Location
	var rangeMonikers [][]bundles.MonikerData

	err := api.store.WithDatabase(ctx, dump.ID, func(database *bundles.Database) error {
		var err error
		if locations, err = database.References(ctx, pathInDump, line, character); err != nil {
			return err
		}

		rangeMonikers, err = database.MonikersByPosition(ctx, pathInDump, line, character)
		return err
	})
	if err != nil {
		return nil, err
	}

	resolved := resolveLocations(dump, locations)

	monikers := flattenMonikers(rangeMonikers)

	// A reference on a reference must also return the rows indexed under
	// the governing moniker, which may not be linked in the LSIF data.
	for _, moniker := range monikers {
		var results []bundles.Location
		err := api.store.WithDatabase(ctx, dump.ID, func(database *bundles.Database) error {
			var err error
			results, _, err = database.MonikerResults(ctx, "references", moniker.Scheme, moniker.Identifier, 0, 0)
			return err
		})
		if err != nil {
			return nil, err
		}

		resolved = append(resolved, resolveLocations(dump, results)...)
	}

	for _, moniker := range monikers {
		if moniker.PackageInformationID == "" {
			continue
		}

		remote, err := api.remoteReferences(ctx, repository, commit, dump, pathInDump, moniker)
		if err != nil {
			return nil, err
		}

		resolved = append(resolved, remote...)
	}

	return resolved, nil
}

// remoteReferences gathers reference rows from every other dump touching
// the moniker's package: the defining dump (for import monikers), the
// visible dumps of the same repository, and the tip-visible dumps of other
// repositories. Bloom filters prune dumps that never mention the
// identifier before any of them is opened.
func (api *CodeIntelAPI) remoteReferences(ctx context.Context, repository, commit string, dump db.Dump, pathInDump string, moniker bundles.MonikerData) ([]ResolvedLocation, error) {
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

	scheme := moniker.Scheme
	name := packageInformation.Name
	version := packageInformation.Version

	seen := map[int]struct{}{dump.ID: {}}
	var candidateIDs []int

	if moniker.Kind == "import" {
		definingDump, exists, err := api.db.GetPackage(ctx, scheme, name, version)
		if err != nil {
			return nil, err
		}
		if exists && definingDump.ID != dump.ID {
			seen[definingDump.ID] = struct{}{}
			candidateIDs = append(candidateIDs, definingDump.ID)
		}
	}

	sameRepoIDs, err := api.db.SameRepoPackageRefs(ctx, repository, commit, scheme, name, version, moniker.Identifier)
	if err != nil {
		return nil, err
	}

	remoteIDs, err := api.db.PackageRefs(ctx, repository, scheme, name, version, moniker.Identifier)
	if err != nil {
		return nil, err
	}

	for _, id := range append(sameRepoIDs, remoteIDs...) {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		candidateIDs = append(candidateIDs, id)
	}

	dumpsByID, err := api.db.GetDumps(ctx, candidateIDs)
	if err != nil {
		return nil, err
	}

	var resolved []ResolvedLocation
	for _, id := range candidateIDs {
		candidate, ok := dumpsByID[id]
		if !ok {
			continue
		}

		var results []bundles.Location
		err := api.store.WithDatabase(ctx, candidate.ID, func(database *bundles.Database) error {
			var err error
			results, _, err = database.MonikerResults(ctx, "references", scheme, moniker.Identifier, 0, 0)
			return err
		})
		if err != nil {
			return nil, err
		}

		resolved = append(resolved, resolveLocations(candidate, results)...)
	}

	return resolved, nil
}

func flattenMonikers(rangeMonikers [][]bundles.MonikerData) []bundles.MonikerData {
	seen := map[bundles.MonikerData]struct{}{}

	var monikers []bundles.MonikerData
	for _, batch := range rangeMonikers {
		for _, moniker := range batch {
			if _, ok := seen[moniker]; ok {
				continue
			}

			seen[moniker] = struct{}{}
			monikers = append(monikers, moniker)
		}
	}

	return monikers
}

type locationKey struct {
	dumpID         int
	path           string
	startLine      int
	startCharacter int
	endLine        int
	endCharacter   int
}

func deduplicateLocations(locations []ResolvedLocation) []ResolvedLocation {
	seen := map[locationKey]struct{}{}

	var unique []ResolvedLocation
	for _, location := range locations {
		key := locationKey{
			dumpID:         location.Dump.ID,
			path:           location.Path,
			startLine:      location.Range.Start.Line,
			startCharacter: location.Range.Start.Character,
			endLine:        location.Range.End.Line,
			endCharacter:   location.Range.End.Character,
		}

		if _, ok := seen[key]; ok {
			continue
		}

		seen[key] = struct{}{}
		unique = append(unique, location)
	}

	return unique
}
