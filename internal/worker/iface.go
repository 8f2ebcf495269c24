package worker

import (
	"context"

	"github.com/sourcegraph/lsif-server/internal/bundles"
	"github.com/sourcegraph/lsif-server/internal/db"
	"github.com/sourcegraph/lsif-server/internal/queue"
)

// DBStore is the slice of the cross-repo index the handlers need.
type DBStore interface {
	AddPackagesAndReferences(ctx context.Context, repository, commit, root string, packages []bundles.Package, references []bundles.PackageReference, rename func(dumpID int) error) (int, error)
	UpdateCommits(ctx context.Context, repository string, commits map[string][]string) error
	UpdateDumpsVisibleFromTip(ctx context.Context, repository, tipCommit string) error
	HasCommit(ctx context.Context, repository, commit string) (bool, error)
	RepositoriesWithDumps(ctx context.Context) ([]string, error)
}

var _ DBStore = &db.DB{}

// JobQueue is the slice of the queue the worker loop needs.
type JobQueue interface {
	Dequeue(ctx context.Context) (queue.Job, bool, error)
	MarkComplete(ctx context.Context, job queue.Job) error
	MarkFailed(ctx context.Context, job queue.Job, failure error, retryable bool) (bool, error)
}
