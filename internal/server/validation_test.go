package server

import (
	"bytes"
	"testing"
)

func TestValidateUpload(t *testing.T) {
	testCases := []struct {
		name  string
		lines []string
		valid bool
	}{
		{
			name: "well-formed lines",
			lines: []string{
				`{"id":1,"type":"vertex","label":"metaData","version":"0.4.3","projectRoot":"file:///test"}`,
				`{"id":2,"type":"vertex","label":"document","uri":"file:///test/main.go"}`,
				`{"id":3,"type":"edge","label":"contains","outV":2,"inVs":[4]}`,
			},
			valid: true,
		},
		{
			name:  "not json",
			lines: []string{`lorem ipsum`},
			valid: false,
		},
		{
			name:  "missing label",
			lines: []string{`{"id":1,"type":"vertex"}`},
			valid: false,
		},
		{
			name:  "unknown element type",
			lines: []string{`{"id":1,"type":"face","label":"metaData"}`},
			valid: false,
		},
		{
			name:  "edge without outV",
			lines: []string{`{"id":3,"type":"edge","label":"contains","inVs":[4]}`},
			valid: false,
		},
		{
			name:  "empty payload",
			lines: nil,
			valid: false,
		},
		{
			name: "missing metaData vertex",
			lines: []string{
				`{"id":2,"type":"vertex","label":"document","uri":"file:///test/main.go"}`,
			},
			valid: false,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			err := validateUpload(bytes.NewReader(gzipPayload(t, testCase.lines...)))

			if testCase.valid && err != nil {
				t.Errorf("unexpected validation error: %s", err)
			}
			if !testCase.valid {
				if err == nil {
					t.Errorf("expected a validation error")
				} else if !IsValidationError(err) {
					t.Errorf("expected a validation error, got %q", err)
				}
			}
		})
	}
}

func TestValidateUploadRejectsNonGzip(t *testing.T) {
	err := validateUpload(bytes.NewReader([]byte("plain text")))
	if err == nil || !IsValidationError(err) {
		t.Errorf("expected a validation error, got %v", err)
	}
}

func TestSanitizeRoot(t *testing.T) {
	testCases := map[string]string{
		"":       "",
		"/":      "",
		"cmd":    "cmd/",
		"cmd/":   "cmd/",
		"a/b/c":  "a/b/c/",
		"a/b/c/": "a/b/c/",
	}

	for input, expected := range testCases {
		if got := sanitizeRoot(input); got != expected {
			t.Errorf("sanitizeRoot(%q): want %q have %q", input, expected, got)
		}
	}
}
