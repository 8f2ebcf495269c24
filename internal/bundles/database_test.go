package bundles

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jmoiron/sqlx"

	"github.com/sourcegraph/lsif-server/internal/paths"
)

const testDumpID = 42

// testBundleData is a two-document dump: main.go calls Parse, which is
// defined and exported by parser/parser.go.
func testBundleData() *GroupedBundleData {
	return &GroupedBundleData{
		Meta: MetaData{
			LSIFVersion:        "0.4.3",
			SourcegraphVersion: "0.0.1",
			NumResultChunks:    1,
		},
		Documents: map[string]DocumentData{
			"main.go": {
				Ranges: map[ID]RangeData{
					"2": {
						StartLine:          1,
						StartCharacter:     5,
						EndLine:            1,
						EndCharacter:       9,
						DefinitionResultID: "21",
						ReferenceResultID:  "20",
						MonikerIDs:         []ID{"31"},
					},
					"3": {
						StartLine:      0,
						StartCharacter: 0,
						EndLine:        3,
						EndCharacter:   1,
						HoverResultID:  "40",
					},
				},
				HoverResults: map[ID]string{
					"40": "```go\nfunc main()\n```",
				},
				Monikers: map[ID]MonikerData{
					"31": {Kind: "import", Scheme: "gomod", Identifier: "github.com/test/parser:Parse", PackageInformationID: "50"},
				},
				PackageInformation: map[ID]PackageInformationData{
					"50": {Name: "github.com/test/parser", Version: "v1.2.3"},
				},
			},
			"parser/parser.go": {
				Ranges: map[ID]RangeData{
					"10": {
						StartLine:          5,
						StartCharacter:     6,
						EndLine:            5,
						EndCharacter:       11,
						DefinitionResultID: "21",
						ReferenceResultID:  "20",
						HoverResultID:      "41",
						MonikerIDs:         []ID{"30"},
					},
				},
				HoverResults: map[ID]string{
					"41": "```go\nfunc Parse(text string) (*Node, error)\n```",
				},
				Monikers: map[ID]MonikerData{
					"30": {Kind: "export", Scheme: "gomod", Identifier: "github.com/test/parser:Parse", PackageInformationID: "51"},
				},
				PackageInformation: map[ID]PackageInformationData{
					"51": {Name: "github.com/test/parser", Version: "v1.2.3"},
				},
			},
		},
		ResultChunks: map[int]ResultChunkData{
			0: {
				DocumentPaths: map[ID]string{
					"100": "main.go",
					"101": "parser/parser.go",
				},
				DocumentIDRangeIDs: map[ID][]DocumentIDRangeID{
					"20": {
						{DocumentID: "100", RangeID: "2"},
						{DocumentID: "101", RangeID: "10"},
					},
					"21": {
						{DocumentID: "101", RangeID: "10"},
					},
				},
			},
		},
		Definitions: []MonikerLocation{
			{Scheme: "gomod", Identifier: "github.com/test/parser:Parse", Path: "parser/parser.go", StartLine: 5, StartCharacter: 6, EndLine: 5, EndCharacter: 11},
		},
		References: []MonikerLocation{
			{Scheme: "gomod", Identifier: "github.com/test/parser:Parse", Path: "main.go", StartLine: 1, StartCharacter: 5, EndLine: 1, EndCharacter: 9},
			{Scheme: "gomod", Identifier: "github.com/test/parser:Parse", Path: "parser/parser.go", StartLine: 5, StartCharacter: 6, EndLine: 5, EndCharacter: 11},
		},
		Packages: []Package{
			{Scheme: "gomod", Name: "github.com/test/parser", Version: "v1.2.3"},
		},
		PackageReferences: []PackageReference{
			{Package: Package{Scheme: "gomod", Name: "github.com/test/parser", Version: "v1.2.3"}, Identifiers: []string{"github.com/test/parser:Parse"}},
		},
	}
}

func openTestDatabase(t *testing.T) (*Database, func()) {
	tempDir, err := ioutil.TempDir("", "bundles-")
	if err != nil {
		t.Fatalf("unexpected error creating temp dir: %s", err)
	}

	filename := filepath.Join(tempDir, "test.lsif.db")
	if err := WriteDump(context.Background(), filename, testBundleData()); err != nil {
		os.RemoveAll(tempDir)
		t.Fatalf("unexpected error writing dump: %s", err)
	}

	db, err := OpenDatabase(filename, testDumpID, NewDocumentDataCache(10), NewResultChunkDataCache(10))
	if err != nil {
		os.RemoveAll(tempDir)
		t.Fatalf("unexpected error opening dump: %s", err)
	}

	return db, func() {
		db.Close()
		os.RemoveAll(tempDir)
	}
}

func TestDatabaseExists(t *testing.T) {
	db, cleanup := openTestDatabase(t)
	defer cleanup()

	testCases := []struct {
		path     string
		expected bool
	}{
		{"main.go", true},
		{"parser/parser.go", true},
		{"missing.go", false},
	}

	for _, testCase := range testCases {
		exists, err := db.Exists(context.Background(), testCase.path)
		if err != nil {
			t.Fatalf("unexpected error checking path %s: %s", testCase.path, err)
		}
		if exists != testCase.expected {
			t.Errorf("unexpected exists for %s. want=%v have=%v", testCase.path, testCase.expected, exists)
		}
	}
}

func TestDatabaseDefinitions(t *testing.T) {
	db, cleanup := openTestDatabase(t)
	defer cleanup()

	expected := []Location{
		{DumpID: testDumpID, Path: "parser/parser.go", Range: newRange(5, 6, 5, 11)},
	}

	// The start position of a range is inclusive.
	locations, err := db.Definitions(context.Background(), "main.go", 1, 5)
	if err != nil {
		t.Fatalf("unexpected error querying definitions: %s", err)
	}
	if diff := cmp.Diff(expected, locations); diff != "" {
		t.Errorf("unexpected definitions (-want +got):\n%s", diff)
	}

	// The end position is not.
	locations, err = db.Definitions(context.Background(), "main.go", 1, 9)
	if err != nil {
		t.Fatalf("unexpected error querying definitions: %s", err)
	}
	if len(locations) != 0 {
		t.Errorf("unexpected definitions at exclusive end. want=%d have=%d", 0, len(locations))
	}
}

func TestDatabaseReferences(t *testing.T) {
	db, cleanup := openTestDatabase(t)
	defer cleanup()

	expected := []Location{
		{DumpID: testDumpID, Path: "main.go", Range: newRange(1, 5, 1, 9)},
		{DumpID: testDumpID, Path: "parser/parser.go", Range: newRange(5, 6, 5, 11)},
	}

	for _, position := range []struct {
		path      string
		line      int
		character int
	}{
		{"main.go", 1, 7},
		{"parser/parser.go", 5, 8},
	} {
		locations, err := db.References(context.Background(), position.path, position.line, position.character)
		if err != nil {
			t.Fatalf("unexpected error querying references: %s", err)
		}
		if diff := cmp.Diff(expected, locations); diff != "" {
			t.Errorf("unexpected references at %s %d:%d (-want +got):\n%s", position.path, position.line, position.character, diff)
		}
	}
}

func TestDatabaseHover(t *testing.T) {
	db, cleanup := openTestDatabase(t)
	defer cleanup()

	// The innermost range has no hover text, so the enclosing range's
	// hover is returned along with its extent.
	text, r, exists, err := db.Hover(context.Background(), "main.go", 1, 7)
	if err != nil {
		t.Fatalf("unexpected error querying hover: %s", err)
	}
	if !exists {
		t.Fatalf("expected hover text")
	}
	if text != "```go\nfunc main()\n```" {
		t.Errorf("unexpected hover text. want=%q have=%q", "```go\nfunc main()\n```", text)
	}
	if diff := cmp.Diff(newRange(0, 0, 3, 1), r); diff != "" {
		t.Errorf("unexpected hover range (-want +got):\n%s", diff)
	}

	text, r, exists, err = db.Hover(context.Background(), "parser/parser.go", 5, 8)
	if err != nil {
		t.Fatalf("unexpected error querying hover: %s", err)
	}
	if !exists {
		t.Fatalf("expected hover text")
	}
	if text != "```go\nfunc Parse(text string) (*Node, error)\n```" {
		t.Errorf("unexpected hover text. want=%q have=%q", "```go\nfunc Parse(text string) (*Node, error)\n```", text)
	}
	if diff := cmp.Diff(newRange(5, 6, 5, 11), r); diff != "" {
		t.Errorf("unexpected hover range (-want +got):\n%s", diff)
	}

	_, _, exists, err = db.Hover(context.Background(), "main.go", 20, 0)
	if err != nil {
		t.Fatalf("unexpected error querying hover: %s", err)
	}
	if exists {
		t.Errorf("unexpected hover outside any range")
	}
}

func TestDatabaseMonikersByPosition(t *testing.T) {
	db, cleanup := openTestDatabase(t)
	defer cleanup()

	monikers, err := db.MonikersByPosition(context.Background(), "main.go", 1, 7)
	if err != nil {
		t.Fatalf("unexpected error querying monikers: %s", err)
	}

	expected := [][]MonikerData{
		{{Kind: "import", Scheme: "gomod", Identifier: "github.com/test/parser:Parse", PackageInformationID: "50"}},
		nil,
	}
	if diff := cmp.Diff(expected, monikers); diff != "" {
		t.Errorf("unexpected monikers (-want +got):\n%s", diff)
	}
}

func TestDatabaseMonikerResults(t *testing.T) {
	db, cleanup := openTestDatabase(t)
	defer cleanup()

	allReferences := []Location{
		{DumpID: testDumpID, Path: "main.go", Range: newRange(1, 5, 1, 9)},
		{DumpID: testDumpID, Path: "parser/parser.go", Range: newRange(5, 6, 5, 11)},
	}

	locations, totalCount, err := db.MonikerResults(context.Background(), "references", "gomod", "github.com/test/parser:Parse", 0, 100)
	if err != nil {
		t.Fatalf("unexpected error querying moniker results: %s", err)
	}
	if totalCount != 2 {
		t.Errorf("unexpected total count. want=%d have=%d", 2, totalCount)
	}
	if diff := cmp.Diff(allReferences, locations); diff != "" {
		t.Errorf("unexpected moniker results (-want +got):\n%s", diff)
	}

	locations, totalCount, err = db.MonikerResults(context.Background(), "references", "gomod", "github.com/test/parser:Parse", 1, 1)
	if err != nil {
		t.Fatalf("unexpected error querying moniker results: %s", err)
	}
	if totalCount != 2 {
		t.Errorf("unexpected total count. want=%d have=%d", 2, totalCount)
	}
	if diff := cmp.Diff(allReferences[1:], locations); diff != "" {
		t.Errorf("unexpected page (-want +got):\n%s", diff)
	}

	locations, totalCount, err = db.MonikerResults(context.Background(), "definitions", "gomod", "github.com/test/parser:Parse", 0, 100)
	if err != nil {
		t.Fatalf("unexpected error querying moniker results: %s", err)
	}
	if totalCount != 1 {
		t.Errorf("unexpected total count. want=%d have=%d", 1, totalCount)
	}
	if diff := cmp.Diff(allReferences[1:], locations); diff != "" {
		t.Errorf("unexpected definitions (-want +got):\n%s", diff)
	}

	if _, _, err := db.MonikerResults(context.Background(), "ük; DROP TABLE meta", "gomod", "x", 0, 1); err == nil {
		t.Errorf("expected an error for an unknown table name")
	}
}

func TestDatabasePackageInformation(t *testing.T) {
	db, cleanup := openTestDatabase(t)
	defer cleanup()

	info, exists, err := db.PackageInformation(context.Background(), "main.go", "50")
	if err != nil {
		t.Fatalf("unexpected error querying package information: %s", err)
	}
	if !exists {
		t.Fatalf("expected package information")
	}

	expected := PackageInformationData{Name: "github.com/test/parser", Version: "v1.2.3"}
	if diff := cmp.Diff(expected, info); diff != "" {
		t.Errorf("unexpected package information (-want +got):\n%s", diff)
	}

	_, exists, err = db.PackageInformation(context.Background(), "main.go", "99")
	if err != nil {
		t.Fatalf("unexpected error querying package information: %s", err)
	}
	if exists {
		t.Errorf("unexpected package information for unknown id")
	}
}

func TestOpenDatabaseMissingFile(t *testing.T) {
	tempDir, err := ioutil.TempDir("", "bundles-")
	if err != nil {
		t.Fatalf("unexpected error creating temp dir: %s", err)
	}
	defer os.RemoveAll(tempDir)

	if _, err := OpenDatabase(filepath.Join(tempDir, "missing.lsif.db"), testDumpID, NewDocumentDataCache(1), NewResultChunkDataCache(1)); err == nil {
		t.Fatalf("expected an error opening a missing dump")
	}

	// The failed open must not have created the file.
	if _, err := os.Stat(filepath.Join(tempDir, "missing.lsif.db")); !os.IsNotExist(err) {
		t.Errorf("expected missing dump to stay missing: %v", err)
	}
}

func TestOpenDatabaseEncodingVersionMismatch(t *testing.T) {
	tempDir, err := ioutil.TempDir("", "bundles-")
	if err != nil {
		t.Fatalf("unexpected error creating temp dir: %s", err)
	}
	defer os.RemoveAll(tempDir)

	filename := filepath.Join(tempDir, "test.lsif.db")
	if err := WriteDump(context.Background(), filename, testBundleData()); err != nil {
		t.Fatalf("unexpected error writing dump: %s", err)
	}

	raw, err := sqlx.Open("sqlite3", filename)
	if err != nil {
		t.Fatalf("unexpected error opening dump: %s", err)
	}
	if _, err := raw.Exec("UPDATE meta SET encodingVersion = 999"); err != nil {
		t.Fatalf("unexpected error updating meta: %s", err)
	}
	raw.Close()

	if _, err := OpenDatabase(filename, testDumpID, NewDocumentDataCache(1), NewResultChunkDataCache(1)); err == nil {
		t.Fatalf("expected an error opening a dump with a foreign encoding version")
	}
}

func TestStoreWithDatabase(t *testing.T) {
	storageRoot, err := ioutil.TempDir("", "bundles-")
	if err != nil {
		t.Fatalf("unexpected error creating temp dir: %s", err)
	}
	defer os.RemoveAll(storageRoot)

	if err := WriteDump(context.Background(), paths.DBFilename(storageRoot, testDumpID), testBundleData()); err != nil {
		t.Fatalf("unexpected error writing dump: %s", err)
	}

	store := NewStore(storageRoot, 2, 10, 10)

	for i := 0; i < 3; i++ {
		err := store.WithDatabase(context.Background(), testDumpID, func(db *Database) error {
			exists, err := db.Exists(context.Background(), "main.go")
			if err != nil {
				return err
			}
			if !exists {
				t.Errorf("expected main.go to exist")
			}
			return nil
		})
		if err != nil {
			t.Fatalf("unexpected error using database: %s", err)
		}
	}

	if err := store.WithDatabase(context.Background(), testDumpID+1, func(db *Database) error { return nil }); err == nil {
		t.Fatalf("expected an error for an unknown dump")
	}
}

func TestStoreDatabaseEviction(t *testing.T) {
	storageRoot, err := ioutil.TempDir("", "bundles-")
	if err != nil {
		t.Fatalf("unexpected error creating temp dir: %s", err)
	}
	defer os.RemoveAll(storageRoot)

	dumpIDs := []int{1, 2}
	for _, dumpID := range dumpIDs {
		if err := WriteDump(context.Background(), paths.DBFilename(storageRoot, dumpID), testBundleData()); err != nil {
			t.Fatalf("unexpected error writing dump: %s", err)
		}
	}

	// A single connection slot forces an evict-close-reopen cycle on each
	// alternation between the two dumps.
	store := NewStore(storageRoot, 1, 10, 10)

	for i := 0; i < 4; i++ {
		dumpID := dumpIDs[i%len(dumpIDs)]

		err := store.WithDatabase(context.Background(), dumpID, func(db *Database) error {
			exists, err := db.Exists(context.Background(), "main.go")
			if err != nil {
				return err
			}
			if !exists {
				t.Errorf("expected main.go to exist in dump %d", dumpID)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("unexpected error using database %d: %s", dumpID, err)
		}
	}
}
