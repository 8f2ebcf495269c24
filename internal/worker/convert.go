package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/inconshreveable/log15"
	"github.com/pkg/errors"

	"github.com/sourcegraph/lsif-server/internal/bundles"
	"github.com/sourcegraph/lsif-server/internal/conversion"
	"github.com/sourcegraph/lsif-server/internal/paths"
	"github.com/sourcegraph/lsif-server/internal/queue"
)

// JobConvert converts one spooled upload into a dump file and registers it
// in the cross-repo index.
const JobConvert = "convert"

// ConvertArgs is the payload of a convert job.
type ConvertArgs struct {
	Repository string `json:"repository"`
	Commit     string `json:"commit"`
	Root       string `json:"root"`
	Filename   string `json:"filename"`
}

func (w *Worker) handleConvert(ctx context.Context, job queue.Job) error {
	var args ConvertArgs
	if err := json.Unmarshal(job.Payload, &args); err != nil {
		return &conversion.InvalidPayloadError{Message: fmt.Sprintf("malformed job payload: %s", err)}
	}

	uploadFilename := paths.UploadFilename(w.storage, args.Filename)

	file, err := os.Open(uploadFilename)
	if err != nil {
		return errors.Wrap(err, "opening upload")
	}
	defer file.Close()

	bundle, err := conversion.Convert(ctx, file)
	if err != nil {
		return err
	}

	tempFilename := paths.TempFilename(w.storage, uuid.New().String())
	defer func() {
		// Best effort; gone already if the rename happened.
		_ = os.Remove(tempFilename)
	}()

	if err := bundles.WriteDump(ctx, tempFilename, bundle); err != nil {
		return errors.Wrap(err, "writing dump")
	}

	// A serialization retry of the registration reinvokes the callback, and
	// a rolled-back attempt may have gotten a different id, so track where
	// the file currently lives instead of renaming from the temp path.
	currentFilename := tempFilename
	dumpID, err := w.dbStore.AddPackagesAndReferences(
		ctx,
		args.Repository, args.Commit, args.Root,
		bundle.Packages, bundle.PackageReferences,
		func(dumpID int) error {
			targetFilename := paths.DBFilename(w.storage, dumpID)
			if currentFilename == targetFilename {
				return nil
			}

			if err := os.Rename(currentFilename, targetFilename); err != nil {
				return err
			}

			currentFilename = targetFilename
			return nil
		},
	)
	if err != nil {
		return errors.Wrap(err, "registering dump")
	}

	if err := w.updateCommitsAndVisibility(ctx, args.Repository, args.Commit); err != nil {
		// The dump itself landed; a stale commit graph only degrades
		// closest-dump selection until the next update-tips run.
		log15.Warn("Failed to update commit graph", "repository", args.Repository, "commit", args.Commit, "error", err)
	}

	log15.Info("Converted dump", "id", dumpID, "repository", args.Repository, "commit", args.Commit, "root", args.Root)

	// The spooled upload is removed only on success so that a terminally
	// failed job leaves it behind for inspection.
	if err := os.Remove(uploadFilename); err != nil {
		log15.Warn("Failed to remove upload", "filename", uploadFilename, "error", err)
	}

	return nil
}

// updateCommitsAndVisibility fills in the commit graph around the uploaded
// commit and recalculates which dumps are visible from the tip.
func (w *Worker) updateCommitsAndVisibility(ctx context.Context, repository, commit string) error {
	known, err := w.dbStore.HasCommit(ctx, repository, commit)
	if err != nil {
		return err
	}

	if !known {
		commits, err := w.gitserver.CommitsNear(ctx, repository, commit)
		if err != nil {
			return err
		}

		if err := w.dbStore.UpdateCommits(ctx, repository, commits); err != nil {
			return err
		}
	}

	tip, err := w.gitserver.Head(ctx, repository)
	if err != nil {
		return err
	}

	return w.dbStore.UpdateDumpsVisibleFromTip(ctx, repository, tip)
}
