// Package janitor reclaims storage: stale uploads, orphaned temp files,
// dump files without an index row, and enough old dumps to keep a slice
// of the disk free.
package janitor

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/inconshreveable/log15"

	"github.com/sourcegraph/lsif-server/internal/db"
	"github.com/sourcegraph/lsif-server/internal/diskutil"
	"github.com/sourcegraph/lsif-server/internal/paths"
)

// DBStore is the slice of the cross-repo index the janitor needs.
type DBStore interface {
	GetDumpIDs(ctx context.Context) ([]int, error)
	DeleteOldestDump(ctx context.Context) (int, bool, error)
}

var _ DBStore = &db.DB{}

type Janitor struct {
	db                 DBStore
	storageRoot        string
	interval           time.Duration
	maxUploadAge       time.Duration
	desiredPercentFree int
	diskSizer          diskutil.DiskSizer
	mountPoint         string
}

type Options struct {
	Interval           time.Duration
	MaxUploadAge       time.Duration
	DesiredPercentFree int
}

func New(db DBStore, storageRoot string, options Options) *Janitor {
	return &Janitor{
		db:                 db,
		storageRoot:        storageRoot,
		interval:           options.Interval,
		maxUploadAge:       options.MaxUploadAge,
		desiredPercentFree: options.DesiredPercentFree,
		diskSizer:          &diskutil.StatDiskSizer{},
	}
}

// Run invokes the janitor on its interval until the context is canceled.
func (j *Janitor) Run(ctx context.Context) {
	for {
		if err := j.Step(ctx); err != nil {
			log15.Error("janitor pass failed", "error", err)
		}

		select {
		case <-time.After(j.interval):
		case <-ctx.Done():
			return
		}
	}
}

// Step performs one janitor pass.
func (j *Janitor) Step(ctx context.Context) error {
	for _, fn := range []func(ctx context.Context) error{
		j.removeOldUploads,
		j.removeOrphanedTempFiles,
		j.removeDeadDumps,
		j.freeSpace,
	} {
		if err := fn(ctx); err != nil {
			return err
		}
	}

	return nil
}

// removeOldUploads deletes uploads that have sat unconverted for longer
// than the maximum upload age. These belong to jobs that exhausted their
// attempts or were lost before being enqueued.
func (j *Janitor) removeOldUploads(ctx context.Context) error {
	return j.removeOldFiles(paths.UploadsDir(j.storageRoot))
}

// removeOrphanedTempFiles deletes partial dump files abandoned by
// conversions that died mid-write.
func (j *Janitor) removeOrphanedTempFiles(ctx context.Context) error {
	return j.removeOldFiles(paths.TempDir(j.storageRoot))
}

func (j *Janitor) removeOldFiles(dir string) error {
	fileInfos, err := ioutil.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, fileInfo := range fileInfos {
		if time.Since(fileInfo.ModTime()) < j.maxUploadAge {
			continue
		}

		path := filepath.Join(dir, fileInfo.Name())
		if err := os.Remove(path); err != nil {
			return err
		}

		log15.Debug("removed stale file", "path", path)
	}

	return nil
}

// removeDeadDumps deletes dump files whose id no longer has a row in the
// cross-repo index. These are left behind when a newer upload for the same
// (repository, commit, root) replaces the row, or when a dump is deleted
// while its file is held open.
func (j *Janitor) removeDeadDumps(ctx context.Context) error {
	pathsByID, err := j.dumpPathsByID()
	if err != nil {
		return err
	}

	ids, err := j.db.GetDumpIDs(ctx)
	if err != nil {
		return err
	}

	live := map[int]struct{}{}
	for _, id := range ids {
		live[id] = struct{}{}
	}

	for id, path := range pathsByID {
		if _, ok := live[id]; ok {
			continue
		}

		if err := os.Remove(path); err != nil {
			return err
		}

		log15.Debug("removed dump without index row", "id", id, "path", path)
	}

	return nil
}

func (j *Janitor) dumpPathsByID() (map[int]string, error) {
	fileInfos, err := ioutil.ReadDir(j.storageRoot)
	if err != nil {
		return nil, err
	}

	pathsByID := map[int]string{}
	for _, fileInfo := range fileInfos {
		if fileInfo.IsDir() {
			continue
		}

		if id, err := strconv.Atoi(strings.Split(fileInfo.Name(), ".")[0]); err == nil {
			pathsByID[id] = filepath.Join(j.storageRoot, fileInfo.Name())
		}
	}

	return pathsByID, nil
}

// freeSpace evicts the oldest dumps not visible at any repository tip
// until the disk holding the storage root has the desired percentage free.
func (j *Janitor) freeSpace(ctx context.Context) error {
	bytesToFree, err := j.bytesToFree()
	if err != nil || bytesToFree == 0 {
		return err
	}

	return j.evictDumps(ctx, bytesToFree)
}

func (j *Janitor) bytesToFree() (uint64, error) {
	if j.mountPoint == "" {
		mountPoint, err := diskutil.FindMountPoint(j.storageRoot)
		if err != nil {
			return 0, err
		}
		j.mountPoint = mountPoint
	}

	diskSizeBytes, err := j.diskSizer.DiskSizeBytes(j.mountPoint)
	if err != nil {
		return 0, err
	}

	freeBytes, err := j.diskSizer.BytesFreeOnDisk(j.mountPoint)
	if err != nil {
		return 0, err
	}

	desiredFreeBytes := uint64(float64(diskSizeBytes) * float64(j.desiredPercentFree) / 100.0)
	if freeBytes >= desiredFreeBytes {
		return 0, nil
	}

	return desiredFreeBytes - freeBytes, nil
}

func (j *Janitor) evictDumps(ctx context.Context, bytesToFree uint64) error {
	for bytesToFree > 0 {
		bytesRemoved, evicted, err := j.evictDump(ctx)
		if err != nil {
			return err
		}
		if !evicted {
			break
		}

		if bytesRemoved >= bytesToFree {
			break
		}

		bytesToFree -= bytesRemoved
	}

	return nil
}

// evictDump removes the oldest evictable dump row and its file, returning
// the number of bytes reclaimed.
func (j *Janitor) evictDump(ctx context.Context) (uint64, bool, error) {
	id, evicted, err := j.db.DeleteOldestDump(ctx)
	if err != nil || !evicted {
		return 0, false, err
	}

	filename := paths.DBFilename(j.storageRoot, id)
	fileInfo, err := os.Stat(filename)
	if err != nil {
		if os.IsNotExist(err) {
			// The row existed without a file; nothing to reclaim but the
			// eviction still made progress.
			return 0, true, nil
		}
		return 0, false, err
	}

	if err := os.Remove(filename); err != nil {
		return 0, false, err
	}

	log15.Info("evicted dump to reclaim space", "id", id, "bytes", fileInfo.Size())
	return uint64(fileInfo.Size()), true, nil
}
