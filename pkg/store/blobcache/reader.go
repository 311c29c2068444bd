package blobcache

import (
	"context"

	"github.com/cuemby/katalog/pkg/types"
)

// CachedReader wraps a source-provided types.DataReader with a
// byte-range cache, so repeated processor reads of the same asset
// range (hash, then MIME sniff, then excerpt) hit disk once.
type CachedReader struct {
	cache           *Cache
	upstream        types.DataReader
	actorID, assetID int64
	key             string
}

// NewCachedReader wraps upstream with cache-backed reads keyed by
// (actorID, assetID, key).
func NewCachedReader(cache *Cache, upstream types.DataReader, actorID, assetID int64, key string) *CachedReader {
	return &CachedReader{cache: cache, upstream: upstream, actorID: actorID, assetID: assetID, key: key}
}

// Read satisfies types.DataReader. When noCache is true, the cache is
// bypassed entirely (both read and write), matching the source
// contract's no_cache escape hatch for callers that need fresh bytes.
func (r *CachedReader) Read(ctx context.Context, offset, length int64, noCache bool) ([]byte, error) {
	if !noCache {
		if data, ok := r.cache.Get(r.actorID, r.assetID, r.key, offset, length); ok {
			return data, nil
		}
	}

	data, err := r.upstream.Read(ctx, offset, length, noCache)
	if err != nil {
		return nil, err
	}

	if !noCache {
		_ = r.cache.Put(r.actorID, r.assetID, r.key, offset, length, data)
	}
	return data, nil
}
