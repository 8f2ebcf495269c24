package conversion

// State is the in-memory index of the LSIF input built up during
// correlation and rewritten in place by canonicalization.
type State struct {
	LSIFVersion            string
	ProjectRoot            string
	DocumentData           map[ID]string
	RangeData              map[ID]Range
	ResultSetData          map[ID]ResultSet
	DefinitionData         map[ID]*DefaultIDSetMap
	ReferenceData          map[ID]*DefaultIDSetMap
	HoverData              map[ID]string
	MonikerData            map[ID]Moniker
	PackageInformationData map[ID]PackageInformation
	NextData               map[ID]ID
	ImportedMonikers       *IDSet
	ExportedMonikers       *IDSet
	LinkedMonikers         *DisjointIDSet
	LinkedReferenceResults *DisjointIDSet
	Monikers               *DefaultIDSetMap
	Contains               *DefaultIDSetMap
}

// Range is a range vertex plus the result ids resolved for it. Before
// canonicalization the result ids may live on a result set down the next
// chain instead.
type Range struct {
	StartLine          int
	StartCharacter     int
	EndLine            int
	EndCharacter       int
	DefinitionResultID ID
	ReferenceResultID  ID
	HoverResultID      ID
}

type ResultSet struct {
	DefinitionResultID ID
	ReferenceResultID  ID
	HoverResultID      ID
}

type Moniker struct {
	Kind                 string
	Scheme               string
	Identifier           string
	PackageInformationID ID
}

type PackageInformation struct {
	Name    string
	Version string
}

func newState() *State {
	return &State{
		DocumentData:           map[ID]string{},
		RangeData:              map[ID]Range{},
		ResultSetData:          map[ID]ResultSet{},
		DefinitionData:         map[ID]*DefaultIDSetMap{},
		ReferenceData:          map[ID]*DefaultIDSetMap{},
		HoverData:              map[ID]string{},
		MonikerData:            map[ID]Moniker{},
		PackageInformationData: map[ID]PackageInformation{},
		NextData:               map[ID]ID{},
		ImportedMonikers:       NewIDSet(),
		ExportedMonikers:       NewIDSet(),
		LinkedMonikers:         NewDisjointIDSet(),
		LinkedReferenceResults: NewDisjointIDSet(),
		Monikers:               NewDefaultIDSetMap(),
		Contains:               NewDefaultIDSetMap(),
	}
}
