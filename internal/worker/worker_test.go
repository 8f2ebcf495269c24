package worker

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"io/ioutil"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/sourcegraph/lsif-server/internal/bundles"
	"github.com/sourcegraph/lsif-server/internal/conversion"
	"github.com/sourcegraph/lsif-server/internal/paths"
	"github.com/sourcegraph/lsif-server/internal/queue"
)

type fakeDBStore struct {
	nextDumpID     int
	packages       []bundles.Package
	references     []bundles.PackageReference
	updatedTips    map[string]string
	repositories   []string
	registerErrors []error

	// serializationRetries models transactions that invoke the rename
	// callback and then roll back on a serialization conflict. Each retry
	// burns a dump id, as a rolled-back sequence increment would.
	serializationRetries int
}

func (s *fakeDBStore) AddPackagesAndReferences(ctx context.Context, repository, commit, root string, packages []bundles.Package, references []bundles.PackageReference, rename func(int) error) (int, error) {
	if len(s.registerErrors) > 0 {
		err := s.registerErrors[0]
		s.registerErrors = s.registerErrors[1:]
		if err != nil {
			return 0, err
		}
	}

	for ; s.serializationRetries > 0; s.serializationRetries-- {
		s.nextDumpID++
		if rename != nil {
			if err := rename(s.nextDumpID); err != nil {
				return 0, err
			}
		}
	}

	s.nextDumpID++
	s.packages = append(s.packages, packages...)
	s.references = append(s.references, references...)

	if rename != nil {
		if err := rename(s.nextDumpID); err != nil {
			return 0, err
		}
	}

	return s.nextDumpID, nil
}

func (s *fakeDBStore) UpdateCommits(ctx context.Context, repository string, commits map[string][]string) error {
	return nil
}

func (s *fakeDBStore) UpdateDumpsVisibleFromTip(ctx context.Context, repository, tipCommit string) error {
	if s.updatedTips == nil {
		s.updatedTips = map[string]string{}
	}
	s.updatedTips[repository] = tipCommit
	return nil
}

func (s *fakeDBStore) HasCommit(ctx context.Context, repository, commit string) (bool, error) {
	return true, nil
}

func (s *fakeDBStore) RepositoriesWithDumps(ctx context.Context) ([]string, error) {
	return s.repositories, nil
}

type fakeGitserver struct {
	tips map[string]string
}

func (g *fakeGitserver) Head(ctx context.Context, repository string) (string, error) {
	return g.tips[repository], nil
}

func (g *fakeGitserver) CommitsNear(ctx context.Context, repository, commit string) (map[string][]string, error) {
	return map[string][]string{commit: nil}, nil
}

type fakeJobQueue struct {
	jobs      []queue.Job
	completed []string
	failed    []string
	retryable []bool
}

func (q *fakeJobQueue) Dequeue(ctx context.Context) (queue.Job, bool, error) {
	if len(q.jobs) == 0 {
		return queue.Job{}, false, nil
	}

	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	return job, true, nil
}

func (q *fakeJobQueue) MarkComplete(ctx context.Context, job queue.Job) error {
	q.completed = append(q.completed, job.ID)
	return nil
}

func (q *fakeJobQueue) MarkFailed(ctx context.Context, job queue.Job, failure error, retryable bool) (bool, error) {
	q.failed = append(q.failed, job.ID)
	q.retryable = append(q.retryable, retryable)
	return retryable && job.Attempts < job.MaxAttempts, nil
}

func gzipLines(t *testing.T, lines ...string) []byte {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := io.WriteString(w, strings.Join(lines, "\n")); err != nil {
		t.Fatalf("unexpected error writing payload: %s", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("unexpected error closing gzip writer: %s", err)
	}

	return buf.Bytes()
}

func validUpload(t *testing.T) []byte {
	return gzipLines(t,
		`{"id":1,"type":"vertex","label":"metaData","version":"0.4.3","projectRoot":"file:///test"}`,
		`{"id":2,"type":"vertex","label":"document","uri":"file:///test/main.go"}`,
		`{"id":3,"type":"vertex","label":"range","start":{"line":1,"character":2},"end":{"line":1,"character":7}}`,
		`{"id":4,"type":"edge","label":"contains","outV":2,"inVs":[3]}`,
	)
}

func spoolUpload(t *testing.T, storageRoot, name string, content []byte) {
	t.Helper()

	if err := paths.PrepareStorageRoot(storageRoot); err != nil {
		t.Fatalf("unexpected error preparing storage root: %s", err)
	}
	if err := ioutil.WriteFile(paths.UploadFilename(storageRoot, name), content, 0644); err != nil {
		t.Fatalf("unexpected error writing upload: %s", err)
	}
}

func convertJob(t *testing.T, args ConvertArgs) queue.Job {
	payload, err := json.Marshal(args)
	if err != nil {
		t.Fatalf("unexpected error marshalling args: %s", err)
	}

	return queue.Job{ID: "job-1", Name: JobConvert, Payload: payload, Attempts: 1, MaxAttempts: 3}
}

func TestHandleConvert(t *testing.T) {
	storageRoot := t.TempDir()
	spoolUpload(t, storageRoot, "upload-1", validUpload(t))

	dbStore := &fakeDBStore{}
	gitserverClient := &fakeGitserver{tips: map[string]string{"r1": "f00dbeef"}}
	w := New(&fakeJobQueue{}, dbStore, gitserverClient, storageRoot, Options{PollInterval: time.Millisecond})

	job := convertJob(t, ConvertArgs{
		Repository: "r1",
		Commit:     "deadbeef01deadbeef01deadbeef01deadbeef01",
		Root:       "",
		Filename:   "upload-1",
	})

	if err := w.handleConvert(context.Background(), job); err != nil {
		t.Fatalf("unexpected error converting: %s", err)
	}

	if _, err := os.Stat(paths.DBFilename(storageRoot, 1)); err != nil {
		t.Errorf("expected dump file to exist: %s", err)
	}
	if _, err := os.Stat(paths.UploadFilename(storageRoot, "upload-1")); !os.IsNotExist(err) {
		t.Errorf("expected upload to be removed")
	}
	if diff := cmp.Diff(map[string]string{"r1": "f00dbeef"}, dbStore.updatedTips); diff != "" {
		t.Errorf("unexpected tip updates (-want +got):\n%s", diff)
	}
}

func TestHandleConvertMalformedUpload(t *testing.T) {
	storageRoot := t.TempDir()
	spoolUpload(t, storageRoot, "upload-1", gzipLines(t, `{"id":1,"type":"vertex","label":"unknown"`))

	w := New(&fakeJobQueue{}, &fakeDBStore{}, &fakeGitserver{}, storageRoot, Options{})

	job := convertJob(t, ConvertArgs{Repository: "r1", Commit: "deadbeef01deadbeef01deadbeef01deadbeef01", Filename: "upload-1"})

	err := w.handleConvert(context.Background(), job)
	if err == nil {
		t.Fatalf("expected a conversion error")
	}
	if !conversion.IsInvalidPayload(err) {
		t.Errorf("expected an invalid payload classification, have %q", err)
	}

	// Terminal failures keep the upload for inspection.
	if _, err := os.Stat(paths.UploadFilename(storageRoot, "upload-1")); err != nil {
		t.Errorf("expected upload to remain: %s", err)
	}

	infos, err := ioutil.ReadDir(paths.TempDir(storageRoot))
	if err != nil {
		t.Fatalf("unexpected error listing temp dir: %s", err)
	}
	if len(infos) != 0 {
		t.Errorf("expected no temp artifacts, have %d", len(infos))
	}
}

func TestHandleConvertRetryProducesSingleDump(t *testing.T) {
	storageRoot := t.TempDir()
	spoolUpload(t, storageRoot, "upload-1", validUpload(t))

	dbStore := &fakeDBStore{registerErrors: []error{context.DeadlineExceeded}}
	w := New(&fakeJobQueue{}, dbStore, &fakeGitserver{}, storageRoot, Options{})

	job := convertJob(t, ConvertArgs{Repository: "r1", Commit: "deadbeef01deadbeef01deadbeef01deadbeef01", Filename: "upload-1"})

	if err := w.handleConvert(context.Background(), job); err == nil {
		t.Fatalf("expected a transient registration error")
	}
	if err := w.handleConvert(context.Background(), job); err != nil {
		t.Fatalf("unexpected error on retry: %s", err)
	}

	if dbStore.nextDumpID != 1 {
		t.Errorf("expected exactly one registered dump, have %d", dbStore.nextDumpID)
	}
}

func TestHandleConvertRenameSurvivesRegistrationRetry(t *testing.T) {
	storageRoot := t.TempDir()
	spoolUpload(t, storageRoot, "upload-1", validUpload(t))

	dbStore := &fakeDBStore{serializationRetries: 1}
	w := New(&fakeJobQueue{}, dbStore, &fakeGitserver{}, storageRoot, Options{})

	job := convertJob(t, ConvertArgs{Repository: "r1", Commit: "deadbeef01deadbeef01deadbeef01deadbeef01", Filename: "upload-1"})

	if err := w.handleConvert(context.Background(), job); err != nil {
		t.Fatalf("unexpected error converting: %s", err)
	}

	if _, err := os.Stat(paths.DBFilename(storageRoot, 2)); err != nil {
		t.Errorf("expected dump file at the committed id: %s", err)
	}
	if _, err := os.Stat(paths.DBFilename(storageRoot, 1)); !os.IsNotExist(err) {
		t.Errorf("expected no dump file at the rolled-back id")
	}
}

func TestProcessClassifiesFailures(t *testing.T) {
	storageRoot := t.TempDir()
	spoolUpload(t, storageRoot, "bad-upload", []byte("not gzip at all"))

	jobQueue := &fakeJobQueue{}
	w := New(jobQueue, &fakeDBStore{}, &fakeGitserver{}, storageRoot, Options{})

	job := convertJob(t, ConvertArgs{Repository: "r1", Commit: "deadbeef01deadbeef01deadbeef01deadbeef01", Filename: "bad-upload"})
	w.process(context.Background(), job)

	if diff := cmp.Diff([]string{"job-1"}, jobQueue.failed); diff != "" {
		t.Errorf("unexpected failed jobs (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]bool{false}, jobQueue.retryable); diff != "" {
		t.Errorf("unexpected retry classification (-want +got):\n%s", diff)
	}
}

func TestHandleUpdateTips(t *testing.T) {
	dbStore := &fakeDBStore{repositories: []string{"r1", "r2"}}
	gitserverClient := &fakeGitserver{tips: map[string]string{"r1": "aaaa", "r2": "bbbb"}}
	w := New(&fakeJobQueue{}, dbStore, gitserverClient, t.TempDir(), Options{})

	if err := w.handleUpdateTips(context.Background(), queue.Job{ID: "job-2", Name: JobUpdateTips}); err != nil {
		t.Fatalf("unexpected error updating tips: %s", err)
	}

	expected := map[string]string{"r1": "aaaa", "r2": "bbbb"}
	if diff := cmp.Diff(expected, dbStore.updatedTips); diff != "" {
		t.Errorf("unexpected tip updates (-want +got):\n%s", diff)
	}
}
