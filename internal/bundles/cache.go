package bundles

import (
	"github.com/inconshreveable/log15"

	"github.com/sourcegraph/lsif-server/internal/memcache"
)

// DatabaseCache is the LRU cache of open dump databases, keyed by filename.
// An entry pinned by WithDatabase survives eviction scans until its handler
// returns, and the underlying handle is closed only after the entry leaves
// the cache. Capacity is measured in open handles: every entry costs one
// unit regardless of the dump's size.
type DatabaseCache struct {
	cache *memcache.Cache
}

// NewDatabaseCache creates a database cache holding the given number of
// open handles.
func NewDatabaseCache(capacity int) *DatabaseCache {
	return &DatabaseCache{
		cache: memcache.NewWithEvict(capacity, func(key string, value interface{}) {
			if err := value.(*Database).Close(); err != nil {
				log15.Error("Failed to close evicted database", "cacheKey", key, "error", err)
			}
		}),
	}
}

// WithDatabase invokes the handler with the database cached at the given
// key, opening it with openDatabase on a miss. The database remains open
// for the duration of the handler.
func (c *DatabaseCache) WithDatabase(key string, openDatabase func() (*Database, error), handler func(db *Database) error) error {
	return c.cache.WithEntry(key, func() (interface{}, int, error) {
		db, err := openDatabase()
		if err != nil {
			return nil, 0, err
		}

		return db, 1, nil
	}, func(value interface{}) error {
		return handler(value.(*Database))
	})
}

// DocumentDataCache is the LRU cache of decoded document blobs. Capacity is
// measured in decoded elements, not entries: an entry costs one unit per
// range, hover, moniker, and package information record it holds, so one
// enormous document cannot monopolize the cache unnoticed.
type DocumentDataCache struct {
	cache *memcache.Cache
}

func NewDocumentDataCache(capacity int) *DocumentDataCache {
	return &DocumentDataCache{cache: memcache.New(capacity)}
}

// GetOrCreate returns the document data cached at the given key, decoding
// it with the factory on a miss.
func (c *DocumentDataCache) GetOrCreate(key string, factory func() (DocumentData, error)) (DocumentData, error) {
	var document DocumentData
	err := c.cache.WithEntry(key, func() (interface{}, int, error) {
		data, err := factory()
		if err != nil {
			return nil, 0, err
		}

		return data, 1 + len(data.Ranges) + len(data.HoverResults) + len(data.Monikers) + len(data.PackageInformation), nil
	}, func(value interface{}) error {
		document = value.(DocumentData)
		return nil
	})

	return document, err
}

// ResultChunkDataCache is the LRU cache of decoded result chunk blobs.
// Capacity is measured in decoded elements, not entries: an entry costs one
// unit per document path and result it holds.
type ResultChunkDataCache struct {
	cache *memcache.Cache
}

func NewResultChunkDataCache(capacity int) *ResultChunkDataCache {
	return &ResultChunkDataCache{cache: memcache.New(capacity)}
}

// GetOrCreate returns the result chunk cached at the given key, decoding it
// with the factory on a miss.
func (c *ResultChunkDataCache) GetOrCreate(key string, factory func() (ResultChunkData, error)) (ResultChunkData, error) {
	var resultChunk ResultChunkData
	err := c.cache.WithEntry(key, func() (interface{}, int, error) {
		data, err := factory()
		if err != nil {
			return nil, 0, err
		}

		return data, 1 + len(data.DocumentPaths) + len(data.DocumentIDRangeIDs), nil
	}, func(value interface{}) error {
		resultChunk = value.(ResultChunkData)
		return nil
	})

	return resultChunk, err
}
