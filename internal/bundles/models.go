package bundles

import (
	"encoding/json"
	"strconv"
)

// ID is an opaque identifier inside a dump. The importer assigns dense
// integer ids, but LSIF input may carry either JSON strings or numbers, so
// ids stay strings end to end.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	if b[0] == '"' {
		return json.Unmarshal(b, (*string)(id))
	}

	var value int64
	if err := json.Unmarshal(b, &value); err != nil {
		return err
	}

	*id = ID(strconv.FormatInt(value, 10))
	return nil
}

// DocumentData is the decoded form of a row in the documents table: every
// range in one file along with the hover, moniker, and package information
// records those ranges point to.
type DocumentData struct {
	Ranges             map[ID]RangeData
	HoverResults       map[ID]string
	Monikers           map[ID]MonikerData
	PackageInformation map[ID]PackageInformationData
}

// RangeData is a single source extent and the result ids attached to it.
// Positions are zero-based; the end character is half-open.
type RangeData struct {
	StartLine          int
	StartCharacter     int
	EndLine            int
	EndCharacter       int
	DefinitionResultID ID
	ReferenceResultID  ID
	HoverResultID      ID
	MonikerIDs         []ID
}

type MonikerData struct {
	Kind                 string
	Scheme               string
	Identifier           string
	PackageInformationID ID
}

type PackageInformationData struct {
	Name    string
	Version string
}

// ResultChunkData is the decoded form of a row in the resultChunks table:
// one shard of the map from result id to its member ranges.
type ResultChunkData struct {
	DocumentPaths      map[ID]string
	DocumentIDRangeIDs map[ID][]DocumentIDRangeID
}

type DocumentIDRangeID struct {
	DocumentID ID
	RangeID    ID
}

type DocumentPathRangeID struct {
	Path    string
	RangeID ID
}

// Location is a dump-relative source location resolved by a query.
type Location struct {
	DumpID int    `json:"dumpId"`
	Path   string `json:"path"`
	Range  Range  `json:"range"`
}

type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

func newRange(startLine, startCharacter, endLine, endCharacter int) Range {
	return Range{
		Start: Position{
			Line:      startLine,
			Character: startCharacter,
		},
		End: Position{
			Line:      endLine,
			Character: endCharacter,
		},
	}
}
