package paths

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

type fakeResolver struct {
	ids map[string]int
}

func (r *fakeResolver) GetDumpID(ctx context.Context, repository, commit string) (int, bool, error) {
	id, ok := r.ids[repository+"@"+commit]
	return id, ok, nil
}

func TestMigrateFilenamesToIDs(t *testing.T) {
	storageRoot, err := ioutil.TempDir("", "paths-")
	if err != nil {
		t.Fatalf("unexpected error creating temp dir: %s", err)
	}
	defer os.RemoveAll(storageRoot)

	names := []string{
		"github.com%2Ffoo%2Fbar@deadbeef01.lsif.db",
		"github.com%2Fbaz%2Fbonk@deadbeef02.lsif.db",
		"github.com%2Forphaned%2Frepo@deadbeef03.lsif.db",
		"42.lsif.db",
	}
	for _, name := range names {
		if err := ioutil.WriteFile(filepath.Join(storageRoot, name), []byte(name), os.ModePerm); err != nil {
			t.Fatalf("unexpected error writing file: %s", err)
		}
	}

	resolver := &fakeResolver{ids: map[string]int{
		"github.com/foo/bar@deadbeef01":  1,
		"github.com/baz/bonk@deadbeef02": 2,
	}}

	if err := MigrateFilenamesToIDs(context.Background(), storageRoot, resolver); err != nil {
		t.Fatalf("unexpected error migrating filenames: %s", err)
	}

	infos, err := ioutil.ReadDir(storageRoot)
	if err != nil {
		t.Fatalf("unexpected error listing storage root: %s", err)
	}

	var found []string
	for _, info := range infos {
		found = append(found, info.Name())
	}
	sort.Strings(found)

	expected := []string{
		"1.lsif.db",
		"2.lsif.db",
		"42.lsif.db",
		"github.com%2Forphaned%2Frepo@deadbeef03.lsif.db",
		migrationMarkerFilename,
	}
	sort.Strings(expected)

	if len(found) != len(expected) {
		t.Fatalf("unexpected filenames. want=%v have=%v", expected, found)
	}
	for i, name := range expected {
		if found[i] != name {
			t.Errorf("unexpected filename. want=%s have=%s", name, found[i])
		}
	}
}

func TestMigrateFilenamesToIDsIdempotent(t *testing.T) {
	storageRoot, err := ioutil.TempDir("", "paths-")
	if err != nil {
		t.Fatalf("unexpected error creating temp dir: %s", err)
	}
	defer os.RemoveAll(storageRoot)

	if err := MigrateFilenamesToIDs(context.Background(), storageRoot, &fakeResolver{}); err != nil {
		t.Fatalf("unexpected error migrating filenames: %s", err)
	}

	// A legacy-named file appearing after the marker exists is not touched.
	name := "github.com%2Ffoo%2Fbar@deadbeef01.lsif.db"
	if err := ioutil.WriteFile(filepath.Join(storageRoot, name), []byte(name), os.ModePerm); err != nil {
		t.Fatalf("unexpected error writing file: %s", err)
	}

	if err := MigrateFilenamesToIDs(context.Background(), storageRoot, &fakeResolver{ids: map[string]int{"github.com/foo/bar@deadbeef01": 1}}); err != nil {
		t.Fatalf("unexpected error migrating filenames: %s", err)
	}

	if _, err := os.Stat(filepath.Join(storageRoot, name)); err != nil {
		t.Errorf("expected legacy file to remain untouched: %s", err)
	}
}
