package worker

import (
	"context"

	"github.com/inconshreveable/log15"
	"github.com/pkg/errors"

	"github.com/sourcegraph/lsif-server/internal/queue"
)

// JobUpdateTips refreshes tip visibility for every repository with dumps.
// Scheduled periodically by the server; at most one instance is ever
// queued.
const JobUpdateTips = "update-tips"

func (w *Worker) handleUpdateTips(ctx context.Context, job queue.Job) error {
	repositories, err := w.dbStore.RepositoriesWithDumps(ctx)
	if err != nil {
		return errors.Wrap(err, "listing repositories")
	}

	for _, repository := range repositories {
		tip, err := w.gitserver.Head(ctx, repository)
		if err != nil {
			// A single unreachable repository should not block the rest.
			log15.Warn("Failed to resolve tip", "repository", repository, "error", err)
			continue
		}

		if err := w.dbStore.UpdateDumpsVisibleFromTip(ctx, repository, tip); err != nil {
			return errors.Wrapf(err, "updating visibility for %s", repository)
		}
	}

	return nil
}
