package blobcache

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/cuemby/katalog/pkg/log"
	"github.com/cuemby/katalog/pkg/metrics"
	bolt "go.etcd.io/bbolt"
	"github.com/rs/zerolog"
)

var bucketRanges = []byte("ranges")

// Cache is a local byte-range cache backing DataReader.Read(offset,
// length, noCache). It reuses bbolt the way the teacher's storage
// layer does (bucket-per-concern, Update/View), repurposed from
// cluster state to a disposable read cache: entries older than TTL
// are evicted by a background loop rather than synced anywhere.
type Cache struct {
	db     *bolt.DB
	logger zerolog.Logger
	ttl    time.Duration
	mu     sync.Mutex
	stopCh chan struct{}
}

// Open creates (or reuses) a bbolt-backed cache file under dataDir.
func Open(dataDir string, ttl time.Duration) (*Cache, error) {
	path := filepath.Join(dataDir, "blobcache.db")
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open blobcache: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRanges)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open blobcache: create bucket: %w", err)
	}

	return &Cache{
		db:     db,
		logger: log.WithComponent("blobcache"),
		ttl:    ttl,
		stopCh: make(chan struct{}),
	}, nil
}

// Close closes the underlying bbolt handle.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Start begins the background eviction loop.
func (c *Cache) Start() {
	go c.run()
}

// Stop stops the eviction loop.
func (c *Cache) Stop() {
	close(c.stopCh)
}

func (c *Cache) run() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n, err := c.evictExpired(); err != nil {
				c.logger.Error().Err(err).Msg("blobcache eviction cycle failed")
			} else if n > 0 {
				c.logger.Debug().Int("evicted", n).Msg("blobcache eviction cycle")
			}
		case <-c.stopCh:
			return
		}
	}
}

// rangeKey identifies a cached byte range of one asset's data under
// one metadata key (a source may expose several readable streams per
// asset, e.g. "content" vs "thumbnail").
func rangeKey(actorID, assetID int64, key string, offset, length int64) []byte {
	return []byte(fmt.Sprintf("%d/%d/%s/%d/%d", actorID, assetID, key, offset, length))
}

// Get returns a cached range, if present and not expired.
func (c *Cache) Get(actorID, assetID int64, key string, offset, length int64) ([]byte, bool) {
	var data []byte
	var cachedAt time.Time
	var found bool

	_ = c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRanges)
		raw := b.Get(rangeKey(actorID, assetID, key, offset, length))
		if raw == nil || len(raw) < 8 {
			return nil
		}
		ts := int64(0)
		for i := 0; i < 8; i++ {
			ts = ts<<8 | int64(raw[i])
		}
		cachedAt = time.Unix(0, ts)
		data = make([]byte, len(raw)-8)
		copy(data, raw[8:])
		found = true
		return nil
	})

	if !found || (c.ttl > 0 && time.Since(cachedAt) > c.ttl) {
		metrics.BlobCacheHits.WithLabelValues("miss").Inc()
		return nil, false
	}
	metrics.BlobCacheHits.WithLabelValues("hit").Inc()
	return data, true
}

// Put stores a byte range, stamped with the current time for TTL
// eviction.
func (c *Cache) Put(actorID, assetID int64, key string, offset, length int64, data []byte) error {
	ts := time.Now().UnixNano()
	buf := make([]byte, 8+len(data))
	for i := 7; i >= 0; i-- {
		buf[i] = byte(ts)
		ts >>= 8
	}
	copy(buf[8:], data)

	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRanges)
		return b.Put(rangeKey(actorID, assetID, key, offset, length), buf)
	})
}

// evictExpired removes every entry older than the configured TTL.
func (c *Cache) evictExpired() (int, error) {
	if c.ttl <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-c.ttl).UnixNano()

	var evicted int
	err := c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRanges)
		cur := b.Cursor()
		var stale [][]byte
		for k, v := cur.First(); k != nil; k, v = cur.Next() {
			if len(v) < 8 {
				continue
			}
			ts := int64(0)
			for i := 0; i < 8; i++ {
				ts = ts<<8 | int64(v[i])
			}
			if ts < cutoff {
				key := make([]byte, len(k))
				copy(key, k)
				stale = append(stale, key)
			}
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		evicted = len(stale)
		return nil
	})
	return evicted, err
}
