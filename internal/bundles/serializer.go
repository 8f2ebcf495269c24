package bundles

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io/ioutil"
	"sort"
	"strconv"
)

// Blobs in the documents and resultChunks tables are gzipped JSON. Maps and
// sets are wrapped as {"value": [[k, v], ...]} pair lists so that non-string
// keys survive the encoding. The layout is pinned by the encodingVersion
// column of the meta table; bump currentEncodingVersion on any change.
const currentEncodingVersion = 1

type wrappedMapValue struct {
	Value []json.RawMessage `json:"value"`
}

type wrappedSetValue struct {
	Value []json.RawMessage `json:"value"`
}

type serializedRange struct {
	StartLine          int             `json:"startLine"`
	StartCharacter     int             `json:"startCharacter"`
	EndLine            int             `json:"endLine"`
	EndCharacter       int             `json:"endCharacter"`
	DefinitionResultID ID              `json:"definitionResultID"`
	ReferenceResultID  ID              `json:"referenceResultID"`
	HoverResultID      ID              `json:"hoverResultID"`
	MonikerIDs         wrappedSetValue `json:"monikerIDs"`
}

type serializedMoniker struct {
	Kind                 string `json:"kind"`
	Scheme               string `json:"scheme"`
	Identifier           string `json:"identifier"`
	PackageInformationID ID     `json:"packageInformationID"`
}

type serializedPackageInformation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type serializedDocumentIDRangeID struct {
	DocumentID ID `json:"documentId"`
	RangeID    ID `json:"rangeId"`
}

func marshalDocumentData(document DocumentData) ([]byte, error) {
	rangePairs := make([]json.RawMessage, 0, len(document.Ranges))
	for _, id := range sortedRangeIDs(document.Ranges) {
		r := document.Ranges[id]

		monikerIDs := make([]json.RawMessage, 0, len(r.MonikerIDs))
		for _, monikerID := range r.MonikerIDs {
			raw, err := json.Marshal(monikerID)
			if err != nil {
				return nil, err
			}
			monikerIDs = append(monikerIDs, raw)
		}

		pair, err := marshalPair(id, serializedRange{
			StartLine:          r.StartLine,
			StartCharacter:     r.StartCharacter,
			EndLine:            r.EndLine,
			EndCharacter:       r.EndCharacter,
			DefinitionResultID: r.DefinitionResultID,
			ReferenceResultID:  r.ReferenceResultID,
			HoverResultID:      r.HoverResultID,
			MonikerIDs:         wrappedSetValue{Value: monikerIDs},
		})
		if err != nil {
			return nil, err
		}
		rangePairs = append(rangePairs, pair)
	}

	hoverResultPairs := make([]json.RawMessage, 0, len(document.HoverResults))
	for _, id := range sortedIDs(idKeysOfStringMap(document.HoverResults)) {
		pair, err := marshalPair(id, document.HoverResults[id])
		if err != nil {
			return nil, err
		}
		hoverResultPairs = append(hoverResultPairs, pair)
	}

	monikerPairs := make([]json.RawMessage, 0, len(document.Monikers))
	for _, id := range sortedMonikerIDs(document.Monikers) {
		moniker := document.Monikers[id]
		pair, err := marshalPair(id, serializedMoniker{
			Kind:                 moniker.Kind,
			Scheme:               moniker.Scheme,
			Identifier:           moniker.Identifier,
			PackageInformationID: moniker.PackageInformationID,
		})
		if err != nil {
			return nil, err
		}
		monikerPairs = append(monikerPairs, pair)
	}

	packageInformationPairs := make([]json.RawMessage, 0, len(document.PackageInformation))
	for _, id := range sortedPackageInformationIDs(document.PackageInformation) {
		info := document.PackageInformation[id]
		pair, err := marshalPair(id, serializedPackageInformation{Name: info.Name, Version: info.Version})
		if err != nil {
			return nil, err
		}
		packageInformationPairs = append(packageInformationPairs, pair)
	}

	payload := struct {
		Ranges             wrappedMapValue `json:"ranges"`
		HoverResults       wrappedMapValue `json:"hoverResults"`
		Monikers           wrappedMapValue `json:"monikers"`
		PackageInformation wrappedMapValue `json:"packageInformation"`
	}{
		Ranges:             wrappedMapValue{Value: rangePairs},
		HoverResults:       wrappedMapValue{Value: hoverResultPairs},
		Monikers:           wrappedMapValue{Value: monikerPairs},
		PackageInformation: wrappedMapValue{Value: packageInformationPairs},
	}

	return marshalGzippedJSON(payload)
}

func marshalResultChunkData(resultChunk ResultChunkData) ([]byte, error) {
	documentPathPairs := make([]json.RawMessage, 0, len(resultChunk.DocumentPaths))
	for _, id := range sortedIDs(idKeysOfStringMap(resultChunk.DocumentPaths)) {
		pair, err := marshalPair(id, resultChunk.DocumentPaths[id])
		if err != nil {
			return nil, err
		}
		documentPathPairs = append(documentPathPairs, pair)
	}

	resultIDs := make([]ID, 0, len(resultChunk.DocumentIDRangeIDs))
	for id := range resultChunk.DocumentIDRangeIDs {
		resultIDs = append(resultIDs, id)
	}

	documentIDRangeIDPairs := make([]json.RawMessage, 0, len(resultChunk.DocumentIDRangeIDs))
	for _, id := range sortedIDs(resultIDs) {
		members := make([]serializedDocumentIDRangeID, 0, len(resultChunk.DocumentIDRangeIDs[id]))
		for _, member := range resultChunk.DocumentIDRangeIDs[id] {
			members = append(members, serializedDocumentIDRangeID{
				DocumentID: member.DocumentID,
				RangeID:    member.RangeID,
			})
		}

		pair, err := marshalPair(id, members)
		if err != nil {
			return nil, err
		}
		documentIDRangeIDPairs = append(documentIDRangeIDPairs, pair)
	}

	payload := struct {
		DocumentPaths      wrappedMapValue `json:"documentPaths"`
		DocumentIDRangeIDs wrappedMapValue `json:"documentIdRangeIds"`
	}{
		DocumentPaths:      wrappedMapValue{Value: documentPathPairs},
		DocumentIDRangeIDs: wrappedMapValue{Value: documentIDRangeIDPairs},
	}

	return marshalGzippedJSON(payload)
}

func unmarshalDocumentData(data []byte) (DocumentData, error) {
	payload := struct {
		Ranges             wrappedMapValue `json:"ranges"`
		HoverResults       wrappedMapValue `json:"hoverResults"`
		Monikers           wrappedMapValue `json:"monikers"`
		PackageInformation wrappedMapValue `json:"packageInformation"`
	}{}

	if err := unmarshalGzippedJSON(data, &payload); err != nil {
		return DocumentData{}, err
	}

	ranges, err := unmarshalWrappedRanges(payload.Ranges.Value)
	if err != nil {
		return DocumentData{}, err
	}

	hoverResults, err := unmarshalWrappedStrings(payload.HoverResults.Value)
	if err != nil {
		return DocumentData{}, err
	}

	monikers, err := unmarshalWrappedMonikers(payload.Monikers.Value)
	if err != nil {
		return DocumentData{}, err
	}

	packageInformation, err := unmarshalWrappedPackageInformation(payload.PackageInformation.Value)
	if err != nil {
		return DocumentData{}, err
	}

	return DocumentData{
		Ranges:             ranges,
		HoverResults:       hoverResults,
		Monikers:           monikers,
		PackageInformation: packageInformation,
	}, nil
}

func unmarshalResultChunkData(data []byte) (ResultChunkData, error) {
	payload := struct {
		DocumentPaths      wrappedMapValue `json:"documentPaths"`
		DocumentIDRangeIDs wrappedMapValue `json:"documentIdRangeIds"`
	}{}

	if err := unmarshalGzippedJSON(data, &payload); err != nil {
		return ResultChunkData{}, err
	}

	documentPaths, err := unmarshalWrappedStrings(payload.DocumentPaths.Value)
	if err != nil {
		return ResultChunkData{}, err
	}

	documentIDRangeIDs, err := unmarshalWrappedDocumentIDRangeIDs(payload.DocumentIDRangeIDs.Value)
	if err != nil {
		return ResultChunkData{}, err
	}

	return ResultChunkData{
		DocumentPaths:      documentPaths,
		DocumentIDRangeIDs: documentIDRangeIDs,
	}, nil
}

func unmarshalWrappedRanges(pairs []json.RawMessage) (map[ID]RangeData, error) {
	m := map[ID]RangeData{}
	for _, pair := range pairs {
		var id ID
		var value serializedRange

		if err := unmarshalPair(pair, &id, &value); err != nil {
			return nil, err
		}

		var monikerIDs []ID
		for _, raw := range value.MonikerIDs.Value {
			var monikerID ID
			if err := json.Unmarshal([]byte(raw), &monikerID); err != nil {
				return nil, err
			}

			monikerIDs = append(monikerIDs, monikerID)
		}

		m[id] = RangeData{
			StartLine:          value.StartLine,
			StartCharacter:     value.StartCharacter,
			EndLine:            value.EndLine,
			EndCharacter:       value.EndCharacter,
			DefinitionResultID: value.DefinitionResultID,
			ReferenceResultID:  value.ReferenceResultID,
			HoverResultID:      value.HoverResultID,
			MonikerIDs:         monikerIDs,
		}
	}

	return m, nil
}

func unmarshalWrappedStrings(pairs []json.RawMessage) (map[ID]string, error) {
	m := map[ID]string{}
	for _, pair := range pairs {
		var id ID
		var value string

		if err := unmarshalPair(pair, &id, &value); err != nil {
			return nil, err
		}

		m[id] = value
	}

	return m, nil
}

func unmarshalWrappedMonikers(pairs []json.RawMessage) (map[ID]MonikerData, error) {
	m := map[ID]MonikerData{}
	for _, pair := range pairs {
		var id ID
		var value serializedMoniker

		if err := unmarshalPair(pair, &id, &value); err != nil {
			return nil, err
		}

		m[id] = MonikerData{
			Kind:                 value.Kind,
			Scheme:               value.Scheme,
			Identifier:           value.Identifier,
			PackageInformationID: value.PackageInformationID,
		}
	}

	return m, nil
}

func unmarshalWrappedPackageInformation(pairs []json.RawMessage) (map[ID]PackageInformationData, error) {
	m := map[ID]PackageInformationData{}
	for _, pair := range pairs {
		var id ID
		var value serializedPackageInformation

		if err := unmarshalPair(pair, &id, &value); err != nil {
			return nil, err
		}

		m[id] = PackageInformationData{
			Name:    value.Name,
			Version: value.Version,
		}
	}

	return m, nil
}

func unmarshalWrappedDocumentIDRangeIDs(pairs []json.RawMessage) (map[ID][]DocumentIDRangeID, error) {
	m := map[ID][]DocumentIDRangeID{}
	for _, pair := range pairs {
		var id ID
		var value []serializedDocumentIDRangeID

		if err := unmarshalPair(pair, &id, &value); err != nil {
			return nil, err
		}

		var documentIDRangeIDs []DocumentIDRangeID
		for _, v := range value {
			documentIDRangeIDs = append(documentIDRangeIDs, DocumentIDRangeID{
				DocumentID: v.DocumentID,
				RangeID:    v.RangeID,
			})
		}

		m[id] = documentIDRangeIDs
	}

	return m, nil
}

// marshalPair encodes one wrapped-map entry as the two-element array
// [key, value].
func marshalPair(id ID, value interface{}) (json.RawMessage, error) {
	return json.Marshal([]interface{}{id, value})
}

func unmarshalPair(pair json.RawMessage, id *ID, value interface{}) error {
	target := []interface{}{id, value}
	return json.Unmarshal([]byte(pair), &target)
}

func marshalGzippedJSON(payload interface{}) ([]byte, error) {
	content, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	gzipWriter := gzip.NewWriter(&buf)
	if _, err := gzipWriter.Write(content); err != nil {
		return nil, err
	}
	if err := gzipWriter.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func unmarshalGzippedJSON(data []byte, payload interface{}) error {
	gzipReader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return err
	}

	decompressed, err := ioutil.ReadAll(gzipReader)
	if err != nil {
		return err
	}

	return json.Unmarshal(decompressed, &payload)
}

// Blob contents are written in ascending numeric id order so that the same
// input yields byte-identical dump files.

func sortedRangeIDs(m map[ID]RangeData) []ID {
	ids := make([]ID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	return sortedIDs(ids)
}

func sortedMonikerIDs(m map[ID]MonikerData) []ID {
	ids := make([]ID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	return sortedIDs(ids)
}

func sortedPackageInformationIDs(m map[ID]PackageInformationData) []ID {
	ids := make([]ID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	return sortedIDs(ids)
}

func idKeysOfStringMap(m map[ID]string) []ID {
	ids := make([]ID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	return ids
}

func sortedIDs(ids []ID) []ID {
	sort.Slice(ids, func(i, j int) bool { return compareIDs(ids[i], ids[j]) })
	return ids
}

// compareIDs orders ids numerically when both parse as integers, and
// lexicographically otherwise.
func compareIDs(a, b ID) bool {
	x, xErr := strconv.Atoi(string(a))
	y, yErr := strconv.Atoi(string(b))
	if xErr == nil && yErr == nil {
		return x < y
	}

	return a < b
}
