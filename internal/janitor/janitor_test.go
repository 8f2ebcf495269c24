package janitor

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/sourcegraph/lsif-server/internal/paths"
)

type fakeDBStore struct {
	ids      []int
	evicted  []int
	oldestAt int
}

func (f *fakeDBStore) GetDumpIDs(ctx context.Context) ([]int, error) {
	return f.ids, nil
}

func (f *fakeDBStore) DeleteOldestDump(ctx context.Context) (int, bool, error) {
	if f.oldestAt >= len(f.ids) {
		return 0, false, nil
	}

	id := f.ids[f.oldestAt]
	f.oldestAt++
	f.evicted = append(f.evicted, id)
	return id, true, nil
}

type fakeDiskSizer struct {
	diskSize uint64
	free     uint64
}

func (f *fakeDiskSizer) BytesFreeOnDisk(mountPoint string) (uint64, error) {
	return f.free, nil
}

func (f *fakeDiskSizer) DiskSizeBytes(mountPoint string) (uint64, error) {
	return f.diskSize, nil
}

func testJanitor(t *testing.T, store *fakeDBStore, sizer *fakeDiskSizer) *Janitor {
	t.Helper()

	storageRoot := t.TempDir()
	if err := paths.PrepareStorageRoot(storageRoot); err != nil {
		t.Fatalf("unexpected error preparing storage root: %s", err)
	}

	j := New(store, storageRoot, Options{
		Interval:           time.Minute,
		MaxUploadAge:       time.Hour,
		DesiredPercentFree: 10,
	})
	j.diskSizer = sizer
	j.mountPoint = storageRoot
	return j
}

func writeFile(t *testing.T, path string, size int, age time.Duration) {
	t.Helper()

	if err := ioutil.WriteFile(path, make([]byte, size), 0644); err != nil {
		t.Fatalf("unexpected error writing file: %s", err)
	}

	mtime := time.Now().Add(-age)
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("unexpected error setting mtime: %s", err)
	}
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()

	fileInfos, err := ioutil.ReadDir(dir)
	if err != nil {
		t.Fatalf("unexpected error listing %s: %s", dir, err)
	}

	var names []string
	for _, fileInfo := range fileInfos {
		if !fileInfo.IsDir() {
			names = append(names, fileInfo.Name())
		}
	}
	sort.Strings(names)
	return names
}

func TestRemovesOnlyStaleUploadsAndTempFiles(t *testing.T) {
	j := testJanitor(t, &fakeDBStore{}, &fakeDiskSizer{diskSize: 100, free: 100})

	writeFile(t, paths.UploadFilename(j.storageRoot, "old"), 10, 2*time.Hour)
	writeFile(t, paths.UploadFilename(j.storageRoot, "fresh"), 10, time.Minute)
	writeFile(t, paths.TempFilename(j.storageRoot, "orphan"), 10, 2*time.Hour)
	writeFile(t, paths.TempFilename(j.storageRoot, "in-flight"), 10, time.Minute)

	if err := j.Step(context.Background()); err != nil {
		t.Fatalf("unexpected error running janitor: %s", err)
	}

	if diff := cmp.Diff([]string{"fresh"}, listDir(t, paths.UploadsDir(j.storageRoot))); diff != "" {
		t.Errorf("unexpected uploads (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"in-flight"}, listDir(t, paths.TempDir(j.storageRoot))); diff != "" {
		t.Errorf("unexpected temp files (-want +got):\n%s", diff)
	}
}

func TestRemovesDumpsWithoutIndexRows(t *testing.T) {
	store := &fakeDBStore{ids: []int{1}}
	j := testJanitor(t, store, &fakeDiskSizer{diskSize: 100, free: 100})

	writeFile(t, paths.DBFilename(j.storageRoot, 1), 10, time.Minute)
	writeFile(t, paths.DBFilename(j.storageRoot, 2), 10, time.Minute)

	if err := j.Step(context.Background()); err != nil {
		t.Fatalf("unexpected error running janitor: %s", err)
	}

	if diff := cmp.Diff([]string{"1.lsif.db"}, listDir(t, j.storageRoot)); diff != "" {
		t.Errorf("unexpected dump files (-want +got):\n%s", diff)
	}
}

func TestFreeSpaceEvictsOldestDumps(t *testing.T) {
	store := &fakeDBStore{ids: []int{1, 2, 3}}

	// 1000 byte disk with 10% desired free: 40 free means 60 bytes short.
	j := testJanitor(t, store, &fakeDiskSizer{diskSize: 1000, free: 40})

	for _, id := range store.ids {
		writeFile(t, paths.DBFilename(j.storageRoot, id), 30, time.Minute)
	}

	if err := j.Step(context.Background()); err != nil {
		t.Fatalf("unexpected error running janitor: %s", err)
	}

	if diff := cmp.Diff([]int{1, 2}, store.evicted); diff != "" {
		t.Errorf("unexpected evictions (-want +got):\n%s", diff)
	}

	if _, err := os.Stat(paths.DBFilename(j.storageRoot, 3)); err != nil {
		t.Errorf("expected dump 3 to survive: %s", err)
	}
}

func TestFreeSpaceNoopWhenDiskHasRoom(t *testing.T) {
	store := &fakeDBStore{ids: []int{1}}
	j := testJanitor(t, store, &fakeDiskSizer{diskSize: 1000, free: 500})

	writeFile(t, paths.DBFilename(j.storageRoot, 1), 30, time.Minute)

	if err := j.Step(context.Background()); err != nil {
		t.Fatalf("unexpected error running janitor: %s", err)
	}

	if len(store.evicted) != 0 {
		t.Errorf("unexpected evictions: %v", store.evicted)
	}

	if _, err := os.Stat(filepath.Join(j.storageRoot, "1.lsif.db")); err != nil {
		t.Errorf("expected dump 1 to survive: %s", err)
	}
}
