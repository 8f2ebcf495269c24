// Package paths owns the layout of the storage root shared by the server
// and the worker.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

// UploadsDir holds raw gzipped uploads awaiting conversion.
func UploadsDir(storageRoot string) string {
	return filepath.Join(storageRoot, "uploads")
}

// TempDir holds dump files being written by in-flight conversions.
func TempDir(storageRoot string) string {
	return filepath.Join(storageRoot, "tmp")
}

// UploadFilename is the spool location of one upload.
func UploadFilename(storageRoot, name string) string {
	return filepath.Join(UploadsDir(storageRoot), name)
}

// TempFilename is the in-progress location of one conversion's output.
func TempFilename(storageRoot, name string) string {
	return filepath.Join(TempDir(storageRoot), name)
}

// DBFilename is the final location of a converted dump.
func DBFilename(storageRoot string, dumpID int) string {
	return filepath.Join(storageRoot, fmt.Sprintf("%d.lsif.db", dumpID))
}

// PrepareStorageRoot creates the storage root and its subdirectories.
func PrepareStorageRoot(storageRoot string) error {
	for _, dir := range []string{storageRoot, UploadsDir(storageRoot), TempDir(storageRoot)} {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return err
		}
	}

	return nil
}
