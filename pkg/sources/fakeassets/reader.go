package fakeassets

import (
	"context"
	"hash/fnv"
	"math/rand"

	"github.com/cuemby/katalog/pkg/store/blobcache"
)

const readerBlockSize = 4096

// FakeAssetReader serves deterministic synthetic bytes for one asset,
// keyed by seed and token so the same asset always reads back the same
// content regardless of which byte range is requested or how many
// times it's re-read.
type FakeAssetReader struct {
	seed  int64
	token string
	size  int64
}

// NewFakeAssetReader builds a reader for an asset of the given total
// size. token is usually the asset's external id; it and seed together
// determine every byte this reader can produce.
func NewFakeAssetReader(seed int64, token string, size int64) *FakeAssetReader {
	return &FakeAssetReader{seed: seed, token: token, size: size}
}

// Read returns length bytes starting at offset, clamped to the
// reader's declared size. noCache is accepted for interface
// compatibility; every byte here is already a pure function of
// (seed, token, block index), so there is nothing to cache around.
func (r *FakeAssetReader) Read(ctx context.Context, offset, length int64, noCache bool) ([]byte, error) {
	if offset >= r.size {
		return nil, nil
	}
	if offset+length > r.size {
		length = r.size - offset
	}
	out := make([]byte, 0, length)
	for remaining := length; remaining > 0; {
		block := offset / readerBlockSize
		blockStart := block * readerBlockSize
		within := offset - blockStart

		data := blockBytes(r.seed, r.token, block)
		take := int64(len(data)) - within
		if take > remaining {
			take = remaining
		}
		if take <= 0 {
			break
		}
		out = append(out, data[within:within+take]...)
		offset += take
		remaining -= take
	}
	return out, nil
}

// cachedReader fronts a types.DataReader with a blobcache.Cache,
// giving the fake source an exercised stand-in for the round trip a
// real network or filesystem-backed source would pay on every read.
type cachedReader struct {
	inner           *FakeAssetReader
	cache           *blobcache.Cache
	actorID, assetID int64
	key             string
}

func (r *cachedReader) Read(ctx context.Context, offset, length int64, noCache bool) ([]byte, error) {
	if !noCache {
		if data, ok := r.cache.Get(r.actorID, r.assetID, r.key, offset, length); ok {
			return data, nil
		}
	}
	data, err := r.inner.Read(ctx, offset, length, noCache)
	if err != nil {
		return nil, err
	}
	if !noCache {
		_ = r.cache.Put(r.actorID, r.assetID, r.key, offset, length, data)
	}
	return data, nil
}

// blockBytes deterministically derives one block's worth of bytes from
// seed, token and block index via an FNV-seeded PRNG: math/rand takes
// an int64 seed, not a string, so the string key is first folded into
// one with FNV-1a.
func blockBytes(seed int64, token string, block int64) []byte {
	h := fnv.New64a()
	_, _ = h.Write([]byte(token))
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(block >> (8 * i))
	}
	_, _ = h.Write(buf[:])
	blockSeed := seed ^ int64(h.Sum64())

	rng := rand.New(rand.NewSource(blockSeed))
	data := make([]byte, readerBlockSize)
	_, _ = rng.Read(data)
	return data
}
