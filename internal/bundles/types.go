package bundles

// MetaData is the per-dump constants row.
type MetaData struct {
	LSIFVersion        string
	SourcegraphVersion string
	NumResultChunks    int
}

// Package is a (scheme, name, version) tuple defined by a dump, recorded in
// the cross-repo index so other dumps can resolve imported monikers to it.
type Package struct {
	Scheme  string
	Name    string
	Version string
}

// PackageReference is a package imported by a dump along with the set of
// identifiers the dump actually uses, folded into a bloom filter.
type PackageReference struct {
	Package
	Identifiers []string
}

// MonikerLocation is one definition or reference row: a moniker paired with
// the document extent it names.
type MonikerLocation struct {
	Scheme         string
	Identifier     string
	Path           string
	StartLine      int
	StartCharacter int
	EndLine        int
	EndCharacter   int
}

// GroupedBundleData is everything the importer emits for one dump: the
// contents of the dump store plus the cross-repo summaries.
type GroupedBundleData struct {
	Meta              MetaData
	Documents         map[string]DocumentData
	ResultChunks      map[int]ResultChunkData
	Definitions       []MonikerLocation
	References        []MonikerLocation
	Packages          []Package
	PackageReferences []PackageReference
}
