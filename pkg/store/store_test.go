package store

import (
	"path/filepath"
	"testing"

	"github.com/cuemby/katalog/pkg/registry"
	"github.com/cuemby/katalog/pkg/types"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*SQLiteStore, *registry.Registry) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "katalog.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	reg := registry.New()
	reg.DefineCore()
	reg.Define("file/name", types.ValueString)
	reg.Define("file/size", types.ValueInt)
	require.NoError(t, reg.Sync(s))
	return s, reg
}

func createTestActor(t *testing.T, s *SQLiteStore) int64 {
	t.Helper()
	res, err := s.db.Exec(
		`INSERT INTO actors (name, plugin_id, type, config, identity_key, created_at, updated_at) VALUES (?, ?, ?, '{}', 'fp', ?, ?)`,
		"fs-source", "katalog.sources.fs", string(types.ActorTypeSource), nowISO(), nowISO(),
	)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func strPtr(s string) *string { return &s }
func intPtr(i int64) *int64   { return &i }

func TestSaveRecord_Idempotent(t *testing.T) {
	s, _ := newTestStore(t)
	actorID := createTestActor(t, s)

	a1 := &types.Asset{Namespace: "fs", ExternalID: "/tmp/foo.txt", ActorID: actorID}
	created, err := s.SaveRecord(a1)
	require.NoError(t, err)
	require.True(t, created)

	a2 := &types.Asset{Namespace: "fs", ExternalID: "/tmp/foo.txt", ActorID: actorID}
	created, err = s.SaveRecord(a2)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, a1.ID, a2.ID)
}

func TestPersistChanges_FirstObservationThenIdempotent(t *testing.T) {
	s, reg := newTestStore(t)
	actorID := createTestActor(t, s)
	_, err := s.Begin(1000, types.ChangesetInProgress, []int64{actorID}, "scan")
	require.NoError(t, err)

	asset := &types.Asset{Namespace: "fs", ExternalID: "/tmp/foo.txt", ActorID: actorID}
	_, err = s.SaveRecord(asset)
	require.NoError(t, err)

	nameID, err := reg.GetID("file/name")
	require.NoError(t, err)
	sizeID, err := reg.GetID("file/size")
	require.NoError(t, err)

	staged := []*types.Metadata{
		{ActorID: actorID, MetadataKeyID: nameID, ValueType: types.ValueString, ValueText: strPtr("foo.txt")},
		{ActorID: actorID, MetadataKeyID: sizeID, ValueType: types.ValueInt, ValueInt: intPtr(42)},
	}
	cs := &types.Changeset{ID: 1000, Status: types.ChangesetInProgress}
	result, err := s.PersistChanges(reg, cs, asset, staged)
	require.NoError(t, err)
	require.Len(t, result.ToAppend, 2)

	// Re-run against the same history: zero new rows.
	cs2 := &types.Changeset{ID: 1001, Status: types.ChangesetInProgress}
	staged2 := []*types.Metadata{
		{ActorID: actorID, MetadataKeyID: nameID, ValueType: types.ValueString, ValueText: strPtr("foo.txt")},
		{ActorID: actorID, MetadataKeyID: sizeID, ValueType: types.ValueInt, ValueInt: intPtr(42)},
	}
	result2, err := s.PersistChanges(reg, cs2, asset, staged2)
	require.NoError(t, err)
	require.Empty(t, result2.ToAppend)
}

func TestMarkUnseenAsLost(t *testing.T) {
	s, reg := newTestStore(t)
	actorID := createTestActor(t, s)
	_, err := s.Begin(2000, types.ChangesetInProgress, []int64{actorID}, "scan")
	require.NoError(t, err)

	nameID, err := reg.GetID("file/name")
	require.NoError(t, err)

	ax := &types.Asset{Namespace: "fs", ExternalID: "x", ActorID: actorID}
	ay := &types.Asset{Namespace: "fs", ExternalID: "y", ActorID: actorID}
	require.NoError(t, must2(s.SaveRecord(ax)))
	require.NoError(t, must2(s.SaveRecord(ay)))

	cs := &types.Changeset{ID: 2000, Status: types.ChangesetInProgress}
	for _, a := range []*types.Asset{ax, ay} {
		_, err := s.PersistChanges(reg, cs, a, []*types.Metadata{
			{ActorID: actorID, MetadataKeyID: nameID, ValueType: types.ValueString, ValueText: strPtr("n")},
		})
		require.NoError(t, err)
	}

	require.NoError(t, s.Save(&types.Changeset{ID: 2000, Status: types.ChangesetCompleted, Data: map[string]any{}}))
	_, err = s.Begin(2001, types.ChangesetInProgress, []int64{actorID}, "scan")
	require.NoError(t, err)

	lostKeyID, err := reg.GetID(registry.KeyAssetLost)
	require.NoError(t, err)

	n, err := s.MarkUnseenAsLost(&types.Changeset{ID: 2001}, lostKeyID, []int64{actorID}, map[int64]bool{ax.ID: true})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	rows, err := s.ForAsset(ay.ID, true)
	require.NoError(t, err)
	var sawLost bool
	for _, m := range rows {
		if m.MetadataKeyID == lostKeyID {
			sawLost = true
		}
	}
	require.True(t, sawLost)
}

func must2(_ bool, err error) error { return err }
