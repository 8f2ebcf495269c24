package conversion

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestUnmarshalElement(t *testing.T) {
	element, err := unmarshalElement([]byte(`{"id": 42, "type": "vertex", "label": "range"}`))
	if err != nil {
		t.Fatalf("unexpected error unmarshalling element: %s", err)
	}

	expected := Element{ID: "42", Type: "vertex", Label: "range"}
	if diff := cmp.Diff(expected, element); diff != "" {
		t.Errorf("unexpected element (-want +got):\n%s", diff)
	}

	if _, err := unmarshalElement([]byte(`{"type": "vertex", "label": "range"}`)); err == nil {
		t.Errorf("expected an error for a missing id")
	}
}

func TestUnmarshalEdge(t *testing.T) {
	edge, err := unmarshalEdge([]byte(`{"id": 4, "type": "edge", "label": "next", "outV": 1, "inV": "2"}`))
	if err != nil {
		t.Fatalf("unexpected error unmarshalling edge: %s", err)
	}

	expected := Edge{OutV: "1", InV: "2", InVs: []ID{"2"}}
	if diff := cmp.Diff(expected, edge); diff != "" {
		t.Errorf("unexpected edge (-want +got):\n%s", diff)
	}

	edge, err = unmarshalEdge([]byte(`{"id": 4, "type": "edge", "label": "item", "outV": 1, "inVs": [2, 3], "document": 7}`))
	if err != nil {
		t.Fatalf("unexpected error unmarshalling edge: %s", err)
	}

	expected = Edge{OutV: "1", InV: "2", InVs: []ID{"2", "3"}, Document: "7"}
	if diff := cmp.Diff(expected, edge); diff != "" {
		t.Errorf("unexpected edge (-want +got):\n%s", diff)
	}

	if _, err := unmarshalEdge([]byte(`{"id": 4, "type": "edge", "label": "next", "outV": 1}`)); err == nil {
		t.Errorf("expected an error for a missing inV")
	}
}

func TestUnmarshalHover(t *testing.T) {
	testCases := []struct {
		contents string
		expected string
	}{
		{`"plain text"`, "plain text"},
		{`"  padded  "`, "padded"},
		{`{"language": "go", "value": "func main()"}`, "```go\nfunc main()\n```"},
		{`{"kind": "markdown", "value": "**bold**"}`, "**bold**"},
		{`["first", {"language": "go", "value": "func f()"}]`, "first\n\n---\n\n```go\nfunc f()\n```"},
	}

	for _, testCase := range testCases {
		text, err := unmarshalHover([]byte(testCase.contents))
		if err != nil {
			t.Fatalf("unexpected error unmarshalling hover %s: %s", testCase.contents, err)
		}
		if text != testCase.expected {
			t.Errorf("unexpected hover text. want=%q have=%q", testCase.expected, text)
		}
	}

	if _, err := unmarshalHover([]byte(`17`)); err == nil {
		t.Errorf("expected an error for numeric hover contents")
	}
}
