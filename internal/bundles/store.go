package bundles

import (
	"context"

	// Registers the sqlite3 driver with database/sql.
	_ "github.com/mattn/go-sqlite3"

	"github.com/sourcegraph/lsif-server/internal/paths"
)

// Store provides access to the converted dumps beneath a single storage
// root. Open connections and decoded document and result chunk payloads
// are shared between requests through a set of bounded caches.
type Store struct {
	storageRoot      string
	databaseCache    *DatabaseCache
	documentCache    *DocumentDataCache
	resultChunkCache *ResultChunkDataCache
}

// NewStore creates a store reading dumps from the given storage root.
func NewStore(storageRoot string, databaseCacheCapacity, documentCacheCapacity, resultChunkCacheCapacity int) *Store {
	return &Store{
		storageRoot:      storageRoot,
		databaseCache:    NewDatabaseCache(databaseCacheCapacity),
		documentCache:    NewDocumentDataCache(documentCacheCapacity),
		resultChunkCache: NewResultChunkDataCache(resultChunkCacheCapacity),
	}
}

// WithDatabase invokes the handler with the query database backed by the
// given dump. The database's connection may be shared with concurrent
// handlers and will not be closed while any of them is active.
func (s *Store) WithDatabase(ctx context.Context, dumpID int, handler func(db *Database) error) error {
	filename := paths.DBFilename(s.storageRoot, dumpID)

	return s.databaseCache.WithDatabase(filename, func() (*Database, error) {
		return OpenDatabase(filename, dumpID, s.documentCache, s.resultChunkCache)
	}, handler)
}
