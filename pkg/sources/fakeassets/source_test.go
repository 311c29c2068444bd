package fakeassets

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/katalog/pkg/registry"
	"github.com/cuemby/katalog/pkg/store"
	"github.com/cuemby/katalog/pkg/store/blobcache"
	"github.com/cuemby/katalog/pkg/types"
	"github.com/stretchr/testify/require"
)

func newTestSource(t *testing.T, actorID int64, cfg map[string]any) (*Source, store.Store) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "katalog.db")
	s, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	reg := registry.New()
	reg.DefineCore()
	DefineKeys(reg)
	require.NoError(t, reg.Sync(s))

	actor := &types.Actor{
		ID: actorID, Name: "fake", PluginID: PluginID,
		Type: types.ActorTypeSource, IdentityKey: "fake", Config: cfg,
	}
	src, err := New(reg, s, nil, actor)
	require.NoError(t, err)
	return src, s
}

func drain(t *testing.T, src *Source) []*types.AssetScanResult {
	t.Helper()
	result, err := src.Scan(context.Background())
	require.NoError(t, err)
	var out []*types.AssetScanResult
	for item := range result.Results {
		out = append(out, item)
	}
	require.NoError(t, result.Err())
	require.Equal(t, types.OpCompleted, result.Status())
	return out
}

func TestSource_Scan_GeneratesConfiguredCount(t *testing.T) {
	src, _ := newTestSource(t, 1, map[string]any{
		"total_assets": float64(5), "seed": float64(7), "include_collection": false,
	})
	items := drain(t, src)
	require.Len(t, items, 5)
	for _, item := range items {
		require.Equal(t, "fake", item.Namespace)
		require.NotEmpty(t, item.ExternalID)
		require.NotEmpty(t, item.Metadata)
	}
}

func TestSource_Scan_IsDeterministicForSameSeedAndActor(t *testing.T) {
	cfg := map[string]any{"total_assets": float64(10), "seed": float64(42), "include_collection": false}
	src1, _ := newTestSource(t, 3, cfg)
	src2, _ := newTestSource(t, 3, cfg)

	items1 := drain(t, src1)
	items2 := drain(t, src2)
	require.Len(t, items1, 10)
	require.Len(t, items2, 10)
	for i := range items1 {
		require.Equal(t, items1[i].ExternalID, items2[i].ExternalID)
		require.Equal(t, items1[i].CanonicalURI, items2[i].CanonicalURI)
	}
}

func TestSource_Scan_RespectsCancellation(t *testing.T) {
	src, _ := newTestSource(t, 4, map[string]any{
		"total_assets": float64(100000), "include_collection": false,
	})
	ctx, cancel := context.WithCancel(context.Background())
	result, err := src.Scan(ctx)
	require.NoError(t, err)

	cancel()
	count := 0
	for range result.Results {
		count++
		if count > 200000 {
			t.Fatal("scan did not stop after context cancellation")
		}
	}
	require.Equal(t, types.OpCanceled, result.Status())
}

func TestSource_GetDataReader_SizedFromCanonicalURI(t *testing.T) {
	src, _ := newTestSource(t, 5, map[string]any{"total_assets": float64(1), "include_collection": false})
	items := drain(t, src)
	require.Len(t, items, 1)

	asset := &types.Asset{ExternalID: items[0].ExternalID, CanonicalURI: items[0].CanonicalURI}
	reader, err := src.GetDataReader(context.Background(), asset, nil)
	require.NoError(t, err)

	data, err := reader.Read(context.Background(), 0, 32, false)
	require.NoError(t, err)
	require.Len(t, data, 32)

	again, err := reader.Read(context.Background(), 0, 32, false)
	require.NoError(t, err)
	require.Equal(t, data, again)
}

func TestFakeAssetReader_DeterministicAcrossOffsets(t *testing.T) {
	r := NewFakeAssetReader(1, "token-a", 10000)
	whole, err := r.Read(context.Background(), 0, 9000, false)
	require.NoError(t, err)

	head, err := r.Read(context.Background(), 0, 4000, false)
	require.NoError(t, err)
	tail, err := r.Read(context.Background(), 4000, 5000, false)
	require.NoError(t, err)

	require.Equal(t, whole, append(head, tail...))
}

func TestSource_GetDataReader_ServesFromBlobCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "katalog.db")
	s, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	cache, err := blobcache.Open(t.TempDir(), time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })

	reg := registry.New()
	reg.DefineCore()
	DefineKeys(reg)
	require.NoError(t, reg.Sync(s))

	actor := &types.Actor{ID: 9, Name: "fake", PluginID: PluginID, Type: types.ActorTypeSource, Config: map[string]any{"total_assets": float64(1)}}
	src, err := New(reg, s, cache, actor)
	require.NoError(t, err)

	items := drain(t, src)
	require.Len(t, items, 1)

	asset := &types.Asset{ID: 1, ExternalID: items[0].ExternalID, CanonicalURI: items[0].CanonicalURI}
	reader, err := src.GetDataReader(context.Background(), asset, nil)
	require.NoError(t, err)

	data, err := reader.Read(context.Background(), 0, 64, false)
	require.NoError(t, err)

	cached, ok := cache.Get(actor.ID, asset.EffectiveID(), "content", 0, 64)
	require.True(t, ok)
	require.Equal(t, data, cached)
}

func TestFakeAssetReader_DiffersByToken(t *testing.T) {
	a := NewFakeAssetReader(1, "token-a", 4096)
	b := NewFakeAssetReader(1, "token-b", 4096)

	da, err := a.Read(context.Background(), 0, 4096, false)
	require.NoError(t, err)
	db, err := b.Read(context.Background(), 0, 4096, false)
	require.NoError(t, err)
	require.NotEqual(t, da, db)
}
