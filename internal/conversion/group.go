package conversion

import (
	"sort"
	"strconv"

	"github.com/sourcegraph/lsif-server/internal/bundles"
)

const (
	// MaxNumResultChunks caps the number of result chunk rows per dump.
	MaxNumResultChunks = 1000

	// ResultsPerResultChunk is the target number of definition and
	// reference results per chunk.
	ResultsPerResultChunk = 500
)

func numResultChunksFor(numResults int) int {
	numResultChunks := (numResults + ResultsPerResultChunk - 1) / ResultsPerResultChunk
	if numResultChunks < 1 {
		numResultChunks = 1
	}
	if numResultChunks > MaxNumResultChunks {
		numResultChunks = MaxNumResultChunks
	}
	return numResultChunks
}

// groupBundleData flattens the canonicalized state into the shape written
// to the dump store and the cross-repo index. The source ids the input
// carried are replaced with small dense integers on the way out.
func groupBundleData(state *State) *bundles.GroupedBundleData {
	numResultChunks := numResultChunksFor(len(state.DefinitionData) + len(state.ReferenceData))
	dense := assignDenseIDs(state)

	return &bundles.GroupedBundleData{
		Meta: bundles.MetaData{
			LSIFVersion:        state.LSIFVersion,
			SourcegraphVersion: internalVersion,
			NumResultChunks:    numResultChunks,
		},
		Documents:         serializeDocuments(state, dense),
		ResultChunks:      serializeResultChunks(state, dense, numResultChunks),
		Definitions:       gatherMonikerLocations(state, state.DefinitionData),
		References:        gatherMonikerLocations(state, state.ReferenceData),
		Packages:          gatherPackages(state),
		PackageReferences: gatherPackageReferences(state),
	}
}

// denseIDs maps the source ids surviving canonicalization onto integers
// numbered from one, with a separate counter per id class. Input ids can be
// arbitrary strings or sparse numbers; renumbering keeps the emitted dump
// compact and independent of the indexer's id scheme.
type denseIDs struct {
	documents           map[ID]bundles.ID
	ranges              map[ID]bundles.ID
	results             map[ID]bundles.ID
	hovers              map[ID]bundles.ID
	monikers            map[ID]bundles.ID
	packageInformations map[ID]bundles.ID
}

func assignDenseIDs(state *State) *denseIDs {
	documentIDs := make([]ID, 0, len(state.DocumentData))
	for id := range state.DocumentData {
		documentIDs = append(documentIDs, id)
	}

	rangeIDs := make([]ID, 0, len(state.RangeData))
	for id := range state.RangeData {
		rangeIDs = append(rangeIDs, id)
	}

	resultIDs := make([]ID, 0, len(state.DefinitionData)+len(state.ReferenceData))
	for id := range state.DefinitionData {
		resultIDs = append(resultIDs, id)
	}
	for id := range state.ReferenceData {
		resultIDs = append(resultIDs, id)
	}

	hoverIDs := make([]ID, 0, len(state.HoverData))
	for id := range state.HoverData {
		hoverIDs = append(hoverIDs, id)
	}

	monikerIDs := make([]ID, 0, len(state.MonikerData))
	for id := range state.MonikerData {
		monikerIDs = append(monikerIDs, id)
	}

	packageInformationIDs := make([]ID, 0, len(state.PackageInformationData))
	for id := range state.PackageInformationData {
		packageInformationIDs = append(packageInformationIDs, id)
	}

	return &denseIDs{
		documents:           numberIDs(documentIDs),
		ranges:              numberIDs(rangeIDs),
		results:             numberIDs(resultIDs),
		hovers:              numberIDs(hoverIDs),
		monikers:            numberIDs(monikerIDs),
		packageInformations: numberIDs(packageInformationIDs),
	}
}

// numberIDs assigns 1..n to the given ids in ascending source order. An
// absent id (the empty result references on a bare range) maps to the empty
// id.
func numberIDs(ids []ID) map[ID]bundles.ID {
	numbered := make(map[ID]bundles.ID, len(ids))
	for i, id := range sortIDs(ids) {
		numbered[id] = bundles.ID(strconv.Itoa(i + 1))
	}

	return numbered
}

func serializeDocuments(state *State, dense *denseIDs) map[string]bundles.DocumentData {
	documents := make(map[string]bundles.DocumentData, len(state.DocumentData))
	for documentID, path := range state.DocumentData {
		document := bundles.DocumentData{
			Ranges:             map[bundles.ID]bundles.RangeData{},
			HoverResults:       map[bundles.ID]string{},
			Monikers:           map[bundles.ID]bundles.MonikerData{},
			PackageInformation: map[bundles.ID]bundles.PackageInformationData{},
		}

		containedRanges := state.Contains.Get(documentID)
		if containedRanges == nil {
			documents[path] = document
			continue
		}

		for _, rangeID := range containedRanges.Keys() {
			r := state.RangeData[rangeID]

			var monikerIDs []bundles.ID
			if monikers := state.Monikers.Get(rangeID); monikers != nil {
				for _, monikerID := range monikers.Keys() {
					moniker := state.MonikerData[monikerID]
					monikerIDs = append(monikerIDs, dense.monikers[monikerID])

					document.Monikers[dense.monikers[monikerID]] = bundles.MonikerData{
						Kind:                 moniker.Kind,
						Scheme:               moniker.Scheme,
						Identifier:           moniker.Identifier,
						PackageInformationID: dense.packageInformations[moniker.PackageInformationID],
					}

					if moniker.PackageInformationID != "" {
						info := state.PackageInformationData[moniker.PackageInformationID]
						document.PackageInformation[dense.packageInformations[moniker.PackageInformationID]] = bundles.PackageInformationData{
							Name:    info.Name,
							Version: info.Version,
						}
					}
				}
			}

			if r.HoverResultID != "" {
				document.HoverResults[dense.hovers[r.HoverResultID]] = state.HoverData[r.HoverResultID]
			}

			document.Ranges[dense.ranges[rangeID]] = bundles.RangeData{
				StartLine:          r.StartLine,
				StartCharacter:     r.StartCharacter,
				EndLine:            r.EndLine,
				EndCharacter:       r.EndCharacter,
				DefinitionResultID: dense.results[r.DefinitionResultID],
				ReferenceResultID:  dense.results[r.ReferenceResultID],
				HoverResultID:      dense.hovers[r.HoverResultID],
				MonikerIDs:         monikerIDs,
			}
		}

		documents[path] = document
	}

	return documents
}

func serializeResultChunks(state *State, dense *denseIDs, numResultChunks int) map[int]bundles.ResultChunkData {
	resultChunks := map[int]bundles.ResultChunkData{}

	addResults := func(data map[ID]*DefaultIDSetMap) {
		ids := make([]ID, 0, len(data))
		for id := range data {
			ids = append(ids, id)
		}

		for _, resultID := range sortIDs(ids) {
			// Chunk placement hashes the emitted id; lookups recompute the
			// hash from the id stored on a range.
			denseResultID := dense.results[resultID]
			index := bundles.HashKey(denseResultID, numResultChunks)

			chunk, ok := resultChunks[index]
			if !ok {
				chunk = bundles.ResultChunkData{
					DocumentPaths:      map[bundles.ID]string{},
					DocumentIDRangeIDs: map[bundles.ID][]bundles.DocumentIDRangeID{},
				}
			}

			documentMap := data[resultID]
			pairs := make([]bundles.DocumentIDRangeID, 0, documentMap.Len())
			for _, documentID := range documentMap.SortedKeys() {
				rangeIDs := documentMap.Get(documentID)
				if rangeIDs.Len() == 0 {
					continue
				}

				chunk.DocumentPaths[dense.documents[documentID]] = state.DocumentData[documentID]
				for _, rangeID := range rangeIDs.Keys() {
					pairs = append(pairs, bundles.DocumentIDRangeID{DocumentID: dense.documents[documentID], RangeID: dense.ranges[rangeID]})
				}
			}

			chunk.DocumentIDRangeIDs[denseResultID] = pairs
			resultChunks[index] = chunk
		}
	}

	addResults(state.DefinitionData)
	addResults(state.ReferenceData)

	return resultChunks
}

// gatherMonikerLocations emits one row per (moniker, member range) pair of
// each result, giving moniker searches their definition and reference
// tables.
func gatherMonikerLocations(state *State, data map[ID]*DefaultIDSetMap) []bundles.MonikerLocation {
	ids := make([]ID, 0, len(data))
	for id := range data {
		ids = append(ids, id)
	}

	var locations []bundles.MonikerLocation
	for _, resultID := range sortIDs(ids) {
		documentMap := data[resultID]
		for _, documentID := range documentMap.SortedKeys() {
			path := state.DocumentData[documentID]

			for _, rangeID := range documentMap.Get(documentID).Keys() {
				monikers := state.Monikers.Get(rangeID)
				if monikers == nil {
					continue
				}

				r := state.RangeData[rangeID]
				for _, monikerID := range monikers.Keys() {
					moniker := state.MonikerData[monikerID]
					locations = append(locations, bundles.MonikerLocation{
						Scheme:         moniker.Scheme,
						Identifier:     moniker.Identifier,
						Path:           path,
						StartLine:      r.StartLine,
						StartCharacter: r.StartCharacter,
						EndLine:        r.EndLine,
						EndCharacter:   r.EndCharacter,
					})
				}
			}
		}
	}

	return locations
}

func gatherPackages(state *State) []bundles.Package {
	seen := map[bundles.Package]struct{}{}

	var packages []bundles.Package
	for _, monikerID := range state.ExportedMonikers.Keys() {
		moniker := state.MonikerData[monikerID]
		info := state.PackageInformationData[moniker.PackageInformationID]

		pkg := bundles.Package{Scheme: moniker.Scheme, Name: info.Name, Version: info.Version}
		if _, ok := seen[pkg]; ok {
			continue
		}

		seen[pkg] = struct{}{}
		packages = append(packages, pkg)
	}

	return packages
}

func gatherPackageReferences(state *State) []bundles.PackageReference {
	var order []bundles.Package
	identifiers := map[bundles.Package]map[string]struct{}{}

	for _, monikerID := range state.ImportedMonikers.Keys() {
		moniker := state.MonikerData[monikerID]
		info := state.PackageInformationData[moniker.PackageInformationID]

		pkg := bundles.Package{Scheme: moniker.Scheme, Name: info.Name, Version: info.Version}
		if _, ok := identifiers[pkg]; !ok {
			order = append(order, pkg)
			identifiers[pkg] = map[string]struct{}{}
		}
		identifiers[pkg][moniker.Identifier] = struct{}{}
	}

	references := make([]bundles.PackageReference, 0, len(order))
	for _, pkg := range order {
		ids := make([]string, 0, len(identifiers[pkg]))
		for identifier := range identifiers[pkg] {
			ids = append(ids, identifier)
		}
		sort.Strings(ids)

		references = append(references, bundles.PackageReference{Package: pkg, Identifiers: ids})
	}

	return references
}
