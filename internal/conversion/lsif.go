// Package conversion turns a raw LSIF upload into the data written to the
// dump store and the cross-repo index.
package conversion

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sourcegraph/lsif-server/internal/bundles"
)

// ID aliases the dump store's identifier type. LSIF ids enter as JSON
// strings or numbers and flow through conversion unchanged.
type ID = bundles.ID

// Element is the envelope common to every line of the input stream. The
// label-specific payload is re-parsed from the raw line by its handler.
type Element struct {
	ID    ID     `json:"id"`
	Type  string `json:"type"`
	Label string `json:"label"`
}

func unmarshalElement(line []byte) (Element, error) {
	var element Element
	if err := json.Unmarshal(line, &element); err != nil {
		return Element{}, err
	}

	if element.ID == "" {
		return Element{}, fmt.Errorf("missing element id")
	}

	return element, nil
}

// Edge is the payload of an edge line. Single-target edges carry inV,
// multi-target edges carry inVs; both fields are normalized to agree.
type Edge struct {
	OutV     ID   `json:"outV"`
	InV      ID   `json:"inV"`
	InVs     []ID `json:"inVs"`
	Document ID   `json:"document"`
}

func unmarshalEdge(line []byte) (Edge, error) {
	var edge Edge
	if err := json.Unmarshal(line, &edge); err != nil {
		return Edge{}, err
	}

	if edge.OutV == "" {
		return Edge{}, fmt.Errorf("edge is missing outV")
	}

	if edge.InV == "" && len(edge.InVs) > 0 {
		edge.InV = edge.InVs[0]
	}
	if edge.InV != "" && len(edge.InVs) == 0 {
		edge.InVs = []ID{edge.InV}
	}
	if edge.InV == "" {
		return Edge{}, fmt.Errorf("edge is missing inV")
	}

	return edge, nil
}

type position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// unmarshalHover normalizes the three shapes LSIF allows for hover contents
// (a bare string, a marked string object, or a list of either) into a single
// markdown string.
func unmarshalHover(contents json.RawMessage) (string, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(contents, &parts); err != nil {
		return unmarshalHoverPart(contents)
	}

	var texts []string
	for _, part := range parts {
		text, err := unmarshalHoverPart(part)
		if err != nil {
			return "", err
		}
		texts = append(texts, text)
	}

	return strings.Join(texts, "\n\n---\n\n"), nil
}

func unmarshalHoverPart(content json.RawMessage) (string, error) {
	var text string
	if err := json.Unmarshal(content, &text); err == nil {
		return strings.TrimSpace(text), nil
	}

	var marked struct {
		Kind     string `json:"kind"`
		Language string `json:"language"`
		Value    string `json:"value"`
	}
	if err := json.Unmarshal(content, &marked); err != nil {
		return "", fmt.Errorf("unrecognized hover content")
	}

	if marked.Language != "" {
		return fmt.Sprintf("```%s\n%s\n```", marked.Language, marked.Value), nil
	}

	return strings.TrimSpace(marked.Value), nil
}
