package paths

import (
	"context"
	"io/ioutil"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/inconshreveable/log15"
)

// migrationMarkerFilename is created in the storage root once dump files
// have been renamed to the id-based scheme.
const migrationMarkerFilename = "id-based-filenames"

// DumpResolver resolves the dump id stored for a repository and commit.
type DumpResolver interface {
	GetDumpID(ctx context.Context, repository, commit string) (int, bool, error)
}

// MigrateFilenamesToIDs renames dump files using the legacy
// <repository>@<commit>.lsif.db scheme, where the repository segment is
// url-encoded, to <dump-id>.lsif.db. Files whose dump record cannot be
// resolved are left in place for the janitor. A marker file in the storage
// root records completion so the scan runs only once.
func MigrateFilenamesToIDs(ctx context.Context, storageRoot string, resolver DumpResolver) error {
	marker := filepath.Join(storageRoot, migrationMarkerFilename)
	if _, err := os.Stat(marker); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}

	infos, err := ioutil.ReadDir(storageRoot)
	if err != nil {
		return err
	}

	for _, info := range infos {
		name := info.Name()
		if info.IsDir() || !strings.HasSuffix(name, ".lsif.db") {
			continue
		}

		trimmed := strings.TrimSuffix(name, ".lsif.db")
		sep := strings.LastIndex(trimmed, "@")
		if sep < 0 {
			// Already id-based.
			continue
		}

		repository, err := url.QueryUnescape(trimmed[:sep])
		if err != nil {
			log15.Warn("Failed to decode repository from dump filename", "filename", name, "error", err)
			continue
		}
		commit := trimmed[sep+1:]

		id, ok, err := resolver.GetDumpID(ctx, repository, commit)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		if err := os.Rename(filepath.Join(storageRoot, name), DBFilename(storageRoot, id)); err != nil {
			return err
		}
	}

	file, err := os.Create(marker)
	if err != nil {
		return err
	}

	return file.Close()
}
