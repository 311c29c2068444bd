package collections

import (
	"path/filepath"
	"testing"

	"github.com/cuemby/katalog/pkg/registry"
	"github.com/cuemby/katalog/pkg/store"
	"github.com/cuemby/katalog/pkg/types"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*store.SQLiteStore, *registry.Registry) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "katalog.db")
	s, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	reg := registry.New()
	reg.DefineCore()
	reg.Define("file/tags", types.ValueString)
	require.NoError(t, reg.Sync(s))
	return s, reg
}

func createActor(t *testing.T, s *store.SQLiteStore) int64 {
	t.Helper()
	actor := &types.Actor{Name: "fs-source", PluginID: "katalog.sources.fs", Type: types.ActorTypeSource, IdentityKey: "fp"}
	require.NoError(t, s.CreateActor(actor))
	return actor.ID
}

func seedAsset(t *testing.T, s *store.SQLiteStore, reg *registry.Registry, actorID, changesetID int64, externalID, tag string) *types.Asset {
	t.Helper()
	asset := &types.Asset{Namespace: "fs", ExternalID: externalID, ActorID: actorID}
	_, err := s.SaveRecord(asset)
	require.NoError(t, err)

	tagsID, err := reg.GetID("file/tags")
	require.NoError(t, err)
	cs := &types.Changeset{ID: changesetID, Status: types.ChangesetInProgress}
	value := tag
	_, err = s.PersistChanges(reg, cs, asset, []*types.Metadata{
		{ActorID: actorID, MetadataKeyID: tagsID, ValueType: types.ValueString, ValueText: &value},
	})
	require.NoError(t, err)
	return asset
}

func TestRefresh_WritesMembershipAndUpdatesCount(t *testing.T) {
	s, reg := newTestStore(t)
	actorID := createActor(t, s)

	_, err := s.Begin(9000, types.ChangesetInProgress, []int64{actorID}, "seed")
	require.NoError(t, err)
	match := seedAsset(t, s, reg, actorID, 9000, "/tmp/match.txt", "keep")
	seedAsset(t, s, reg, actorID, 9000, "/tmp/skip.txt", "drop")
	require.NoError(t, s.Save(&types.Changeset{ID: 9000, Status: types.ChangesetCompleted, Data: map[string]any{}}))

	memberKeyID, err := reg.GetID(registry.KeyCollectionMember)
	require.NoError(t, err)

	collection := &types.AssetCollection{
		Name:            "kept-files",
		MembershipKeyID: memberKeyID,
		RefreshMode:     types.RefreshOnDemand,
		Source: map[string]any{
			"metadata_filters": []any{
				map[string]any{"key": "file/tags", "op": "=", "value": "keep"},
			},
		},
	}
	require.NoError(t, s.CreateCollection(collection))

	_, err = s.Begin(9001, types.ChangesetInProgress, []int64{actorID}, "refresh")
	require.NoError(t, err)

	count, err := Refresh(s, reg, collection, actorID, 9001)
	require.NoError(t, err)
	require.Equal(t, 1, count)
	require.Equal(t, 1, collection.AssetCount)

	reloaded, err := s.GetCollection(collection.ID)
	require.NoError(t, err)
	require.Equal(t, 1, reloaded.AssetCount)

	rows, err := s.ForAsset(match.ID, false)
	require.NoError(t, err)
	var sawMembership bool
	for _, m := range rows {
		if m.MetadataKeyID == memberKeyID && m.ValueCollectionID != nil && *m.ValueCollectionID == collection.ID {
			sawMembership = true
		}
	}
	require.True(t, sawMembership)
}

func TestRefresh_NilSourceIsNoop(t *testing.T) {
	s, reg := newTestStore(t)
	memberKeyID, err := reg.GetID(registry.KeyCollectionMember)
	require.NoError(t, err)

	collection := &types.AssetCollection{Name: "manual", MembershipKeyID: memberKeyID, RefreshMode: types.RefreshOnDemand}
	require.NoError(t, s.CreateCollection(collection))

	count, err := Refresh(s, reg, collection, 0, 0)
	require.NoError(t, err)
	require.Equal(t, 0, count)
}

func TestRefreshLive_SkipsOnDemandCollections(t *testing.T) {
	s, reg := newTestStore(t)
	memberKeyID, err := reg.GetID(registry.KeyCollectionMember)
	require.NoError(t, err)

	onDemand := &types.AssetCollection{
		Name: "on-demand", MembershipKeyID: memberKeyID, RefreshMode: types.RefreshOnDemand,
		Source: map[string]any{"metadata_filters": []any{}},
	}
	require.NoError(t, s.CreateCollection(onDemand))

	require.NoError(t, RefreshLive(s, reg, 1, 1))

	reloaded, err := s.GetCollection(onDemand.ID)
	require.NoError(t, err)
	require.Equal(t, 0, reloaded.AssetCount)
}
