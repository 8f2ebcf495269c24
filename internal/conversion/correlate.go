package conversion

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/Masterminds/semver"
)

const (
	// initialLineBufferSize is the starting scanner allocation.
	initialLineBufferSize = 128 * 1024

	// maxLineSize bounds a single vertex or edge line. Contains and item
	// edges grow with their target lists but stay far below this.
	maxLineSize = 1 << 28
)

// supportedVersions gates the LSIF format versions the importer understands.
var supportedVersions = mustConstraint(">= 0.4.0, < 0.5.0")

func mustConstraint(s string) *semver.Constraints {
	c, err := semver.NewConstraint(s)
	if err != nil {
		panic(err)
	}
	return c
}

// correlate reads the decompressed LSIF stream line by line and indexes its
// vertices and edges by id. Every edge endpoint is checked against the
// elements seen so far, so the input must be topologically ordered, which
// the LSIF format requires of producers.
func correlate(ctx context.Context, r io.Reader) (*State, error) {
	state := newState()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, initialLineBufferSize), maxLineSize)

	lineNumber := 0
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		lineNumber++
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		element, err := unmarshalElement(line)
		if err != nil {
			return nil, invalidPayloadf("failed to process line %d: %s", lineNumber, err)
		}

		if err := correlateElement(state, element, line); err != nil {
			return nil, invalidPayloadf("failed to process line %d: %s", lineNumber, err)
		}
	}
	if err := scanner.Err(); err != nil {
		if err == bufio.ErrTooLong {
			return nil, invalidPayloadf("line %d exceeds the maximum line size", lineNumber+1)
		}
		return nil, err
	}

	if state.LSIFVersion == "" {
		return nil, invalidPayloadf("no metadata defined")
	}

	return state, nil
}

func correlateElement(state *State, element Element, line []byte) error {
	switch element.Type {
	case "vertex":
		return correlateVertex(state, element, line)
	case "edge":
		return correlateEdge(state, element, line)
	}

	return fmt.Errorf("unknown element type %s", element.Type)
}

func correlateVertex(state *State, element Element, line []byte) error {
	switch element.Label {
	case "metaData":
		return correlateMetaData(state, line)
	case "document":
		return correlateDocument(state, element, line)
	case "range":
		return correlateRange(state, element, line)
	case "resultSet":
		state.ResultSetData[element.ID] = ResultSet{}
	case "definitionResult":
		state.DefinitionData[element.ID] = NewDefaultIDSetMap()
	case "referenceResult":
		state.ReferenceData[element.ID] = NewDefaultIDSetMap()
	case "hoverResult":
		return correlateHoverResult(state, element, line)
	case "moniker":
		return correlateMoniker(state, element, line)
	case "packageInformation":
		return correlatePackageInformation(state, element, line)
	}

	// Remaining vertex types ($event, project, ...) carry nothing we store.
	return nil
}

func correlateMetaData(state *State, line []byte) error {
	payload := struct {
		Version     string `json:"version"`
		ProjectRoot string `json:"projectRoot"`
	}{}
	if err := json.Unmarshal(line, &payload); err != nil {
		return err
	}

	if state.LSIFVersion != "" {
		return fmt.Errorf("duplicate metadata")
	}

	version, err := semver.NewVersion(payload.Version)
	if err != nil {
		return fmt.Errorf("unparseable LSIF version %q", payload.Version)
	}
	if !supportedVersions.Check(version) {
		return fmt.Errorf("unsupported LSIF version %s", payload.Version)
	}

	state.LSIFVersion = payload.Version
	state.ProjectRoot = strings.TrimSuffix(payload.ProjectRoot, "/")
	return nil
}

func correlateDocument(state *State, element Element, line []byte) error {
	payload := struct {
		URI string `json:"uri"`
	}{}
	if err := json.Unmarshal(line, &payload); err != nil {
		return err
	}

	if state.ProjectRoot == "" {
		return fmt.Errorf("metadata must precede document vertices")
	}

	path := strings.TrimPrefix(strings.TrimPrefix(payload.URI, state.ProjectRoot), "/")
	state.DocumentData[element.ID] = path
	state.Contains.GetOrCreate(element.ID)
	return nil
}

func correlateRange(state *State, element Element, line []byte) error {
	payload := struct {
		Start position `json:"start"`
		End   position `json:"end"`
	}{}
	if err := json.Unmarshal(line, &payload); err != nil {
		return err
	}

	state.RangeData[element.ID] = Range{
		StartLine:      payload.Start.Line,
		StartCharacter: payload.Start.Character,
		EndLine:        payload.End.Line,
		EndCharacter:   payload.End.Character,
	}
	return nil
}

func correlateHoverResult(state *State, element Element, line []byte) error {
	payload := struct {
		Result struct {
			Contents json.RawMessage `json:"contents"`
		} `json:"result"`
	}{}
	if err := json.Unmarshal(line, &payload); err != nil {
		return err
	}

	text, err := unmarshalHover(payload.Result.Contents)
	if err != nil {
		return err
	}

	state.HoverData[element.ID] = text
	return nil
}

func correlateMoniker(state *State, element Element, line []byte) error {
	payload := struct {
		Kind       string `json:"kind"`
		Scheme     string `json:"scheme"`
		Identifier string `json:"identifier"`
	}{}
	if err := json.Unmarshal(line, &payload); err != nil {
		return err
	}

	state.MonikerData[element.ID] = Moniker{
		Kind:       payload.Kind,
		Scheme:     payload.Scheme,
		Identifier: payload.Identifier,
	}
	return nil
}

func correlatePackageInformation(state *State, element Element, line []byte) error {
	payload := struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	}{}
	if err := json.Unmarshal(line, &payload); err != nil {
		return err
	}

	state.PackageInformationData[element.ID] = PackageInformation{
		Name:    payload.Name,
		Version: payload.Version,
	}
	return nil
}

func correlateEdge(state *State, element Element, line []byte) error {
	edge, err := unmarshalEdge(line)
	if err != nil {
		return err
	}

	switch element.Label {
	case "contains":
		return correlateContainsEdge(state, edge)
	case "next":
		return correlateNextEdge(state, edge)
	case "item":
		return correlateItemEdge(state, edge)
	case "textDocument/definition":
		if _, ok := state.DefinitionData[edge.InV]; !ok {
			return fmt.Errorf("no such definition result %s", edge.InV)
		}
		return setDefinitionResultID(state, edge.OutV, edge.InV)
	case "textDocument/references":
		if _, ok := state.ReferenceData[edge.InV]; !ok {
			return fmt.Errorf("no such reference result %s", edge.InV)
		}
		return setReferenceResultID(state, edge.OutV, edge.InV)
	case "textDocument/hover":
		if _, ok := state.HoverData[edge.InV]; !ok {
			return fmt.Errorf("no such hover result %s", edge.InV)
		}
		return setHoverResultID(state, edge.OutV, edge.InV)
	case "moniker":
		return correlateMonikerEdge(state, edge)
	case "nextMoniker":
		return correlateNextMonikerEdge(state, edge)
	case "packageInformation":
		return correlatePackageInformationEdge(state, edge)
	}

	// Remaining edge types attach data we do not store.
	return nil
}

func correlateContainsEdge(state *State, edge Edge) error {
	// Contains edges from the project vertex carry no range data.
	if _, ok := state.DocumentData[edge.OutV]; !ok {
		return nil
	}

	set := state.Contains.GetOrCreate(edge.OutV)
	for _, inV := range edge.InVs {
		if _, ok := state.RangeData[inV]; !ok {
			return fmt.Errorf("no such range %s", inV)
		}
		set.Add(inV)
	}
	return nil
}

func correlateNextEdge(state *State, edge Edge) error {
	if _, ok := state.ResultSetData[edge.InV]; !ok {
		return fmt.Errorf("no such result set %s", edge.InV)
	}

	_, isRange := state.RangeData[edge.OutV]
	_, isResultSet := state.ResultSetData[edge.OutV]
	if !isRange && !isResultSet {
		return fmt.Errorf("no such range or result set %s", edge.OutV)
	}

	state.NextData[edge.OutV] = edge.InV
	return nil
}

// correlateItemEdge attaches member ranges to a definition or reference
// result. An item edge between two reference results instead links them
// into one logical result.
func correlateItemEdge(state *State, edge Edge) error {
	if edge.Document == "" {
		return fmt.Errorf("item edge is missing document")
	}
	if _, ok := state.DocumentData[edge.Document]; !ok {
		return fmt.Errorf("no such document %s", edge.Document)
	}

	if documentMap, ok := state.DefinitionData[edge.OutV]; ok {
		for _, inV := range edge.InVs {
			if _, ok := state.RangeData[inV]; !ok {
				return fmt.Errorf("no such range %s", inV)
			}
			documentMap.GetOrCreate(edge.Document).Add(inV)
		}
		return nil
	}

	if documentMap, ok := state.ReferenceData[edge.OutV]; ok {
		for _, inV := range edge.InVs {
			if _, ok := state.ReferenceData[inV]; ok {
				state.LinkedReferenceResults.Union(edge.OutV, inV)
				continue
			}
			if _, ok := state.RangeData[inV]; !ok {
				return fmt.Errorf("no such range %s", inV)
			}
			documentMap.GetOrCreate(edge.Document).Add(inV)
		}
		return nil
	}

	return fmt.Errorf("no such definition or reference result %s", edge.OutV)
}

func correlateMonikerEdge(state *State, edge Edge) error {
	if _, ok := state.MonikerData[edge.InV]; !ok {
		return fmt.Errorf("no such moniker %s", edge.InV)
	}

	_, isRange := state.RangeData[edge.OutV]
	_, isResultSet := state.ResultSetData[edge.OutV]
	if !isRange && !isResultSet {
		return fmt.Errorf("no such range or result set %s", edge.OutV)
	}

	state.Monikers.GetOrCreate(edge.OutV).Add(edge.InV)
	return nil
}

func correlateNextMonikerEdge(state *State, edge Edge) error {
	if _, ok := state.MonikerData[edge.InV]; !ok {
		return fmt.Errorf("no such moniker %s", edge.InV)
	}
	if _, ok := state.MonikerData[edge.OutV]; !ok {
		return fmt.Errorf("no such moniker %s", edge.OutV)
	}

	state.LinkedMonikers.Union(edge.OutV, edge.InV)
	return nil
}

func correlatePackageInformationEdge(state *State, edge Edge) error {
	moniker, ok := state.MonikerData[edge.OutV]
	if !ok {
		return fmt.Errorf("no such moniker %s", edge.OutV)
	}
	if _, ok := state.PackageInformationData[edge.InV]; !ok {
		return fmt.Errorf("no such package information %s", edge.InV)
	}

	moniker.PackageInformationID = edge.InV
	state.MonikerData[edge.OutV] = moniker

	switch moniker.Kind {
	case "import":
		state.ImportedMonikers.Add(edge.OutV)
	case "export":
		state.ExportedMonikers.Add(edge.OutV)
	}
	return nil
}

func setDefinitionResultID(state *State, id, resultID ID) error {
	if r, ok := state.RangeData[id]; ok {
		r.DefinitionResultID = resultID
		state.RangeData[id] = r
		return nil
	}
	if resultSet, ok := state.ResultSetData[id]; ok {
		resultSet.DefinitionResultID = resultID
		state.ResultSetData[id] = resultSet
		return nil
	}

	return fmt.Errorf("no such range or result set %s", id)
}

func setReferenceResultID(state *State, id, resultID ID) error {
	if r, ok := state.RangeData[id]; ok {
		r.ReferenceResultID = resultID
		state.RangeData[id] = r
		return nil
	}
	if resultSet, ok := state.ResultSetData[id]; ok {
		resultSet.ReferenceResultID = resultID
		state.ResultSetData[id] = resultSet
		return nil
	}

	return fmt.Errorf("no such range or result set %s", id)
}

func setHoverResultID(state *State, id, resultID ID) error {
	if r, ok := state.RangeData[id]; ok {
		r.HoverResultID = resultID
		state.RangeData[id] = r
		return nil
	}
	if resultSet, ok := state.ResultSetData[id]; ok {
		resultSet.HoverResultID = resultID
		state.ResultSetData[id] = resultSet
		return nil
	}

	return fmt.Errorf("no such range or result set %s", id)
}
