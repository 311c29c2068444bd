package changes

import (
	"testing"

	"github.com/cuemby/katalog/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePolicy is a minimal KeyPolicy for tests.
type fakePolicy struct {
	defs map[int64]*types.MetadataKeyDef
}

func newFakePolicy(defs ...*types.MetadataKeyDef) *fakePolicy {
	p := &fakePolicy{defs: make(map[int64]*types.MetadataKeyDef)}
	for _, d := range defs {
		p.defs[d.ID] = d
	}
	return p
}

func (p *fakePolicy) GetByID(id int64) (*types.MetadataKeyDef, error) {
	d, ok := p.defs[id]
	if !ok {
		return nil, assert.AnError
	}
	return d, nil
}

func strPtr(s string) *string { return &s }
func intPtr(i int64) *int64   { return &i }

const (
	keyFileName = 1
	keyFileSize = 2
	keyFavorite = 3
)

func baseAsset() *types.Asset {
	return &types.Asset{ID: 1, Namespace: "fs", ExternalID: "/tmp/foo.txt"}
}

func baseChangeset(id int64) *types.Changeset {
	return &types.Changeset{ID: id, Status: types.ChangesetInProgress}
}

func TestFingerprint_MapKeyOrderInsensitive(t *testing.T) {
	a := &types.Metadata{ValueType: types.ValueJSON, ValueJSON: map[string]any{"a": 1, "b": 2}}
	b := &types.Metadata{ValueType: types.ValueJSON, ValueJSON: map[string]any{"b": 2, "a": 1}}

	fa, err := Fingerprint(a)
	require.NoError(t, err)
	fb, err := Fingerprint(b)
	require.NoError(t, err)
	assert.Equal(t, fa, fb)
}

func TestFingerprint_ListIdentity(t *testing.T) {
	a := &types.Metadata{ValueType: types.ValueJSON, ValueJSON: []any{"a", "b"}}
	b := &types.Metadata{ValueType: types.ValueJSON, ValueJSON: []any{"a", "b"}}

	fa, _ := Fingerprint(a)
	fb, _ := Fingerprint(b)
	assert.Equal(t, fa, fb)
}

func TestFingerprint_NonSerializable(t *testing.T) {
	m := &types.Metadata{ValueType: types.ValueJSON, ValueJSON: make(chan int)}
	_, err := Fingerprint(m)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNonSerializable)
}

func TestPreparePersist_FirstObservation(t *testing.T) {
	policy := newFakePolicy(
		&types.MetadataKeyDef{ID: keyFileName, ValueType: types.ValueString},
		&types.MetadataKeyDef{ID: keyFileSize, ValueType: types.ValueInt},
	)
	asset := baseAsset()
	cs := baseChangeset(1000)
	staged := []*types.Metadata{
		{MetadataKeyID: keyFileName, ValueType: types.ValueString, ValueText: strPtr("foo.txt")},
		{MetadataKeyID: keyFileSize, ValueType: types.ValueInt, ValueInt: intPtr(42)},
	}

	result, err := PreparePersist(policy, cs, asset, staged, nil)
	require.NoError(t, err)
	assert.Len(t, result.ToAppend, 2)
	assert.True(t, result.ChangedKeys[keyFileName])
	assert.True(t, result.ChangedKeys[keyFileSize])
	for _, m := range result.ToAppend {
		assert.Equal(t, int64(1), m.AssetID)
		assert.Equal(t, int64(1000), m.ChangesetID)
	}
}

func TestPreparePersist_IdempotentRescan(t *testing.T) {
	policy := newFakePolicy(
		&types.MetadataKeyDef{ID: keyFileName, ValueType: types.ValueString},
		&types.MetadataKeyDef{ID: keyFileSize, ValueType: types.ValueInt},
	)
	asset := baseAsset()
	cs1 := baseChangeset(1000)
	staged := []*types.Metadata{
		{MetadataKeyID: keyFileName, ValueType: types.ValueString, ValueText: strPtr("foo.txt")},
		{MetadataKeyID: keyFileSize, ValueType: types.ValueInt, ValueInt: intPtr(42)},
	}

	first, err := PreparePersist(policy, cs1, asset, staged, nil)
	require.NoError(t, err)
	require.Len(t, first.ToAppend, 2)

	// Assign ids as the store would.
	for i, m := range first.ToAppend {
		m.ID = int64(i + 1)
	}

	cs2 := baseChangeset(1001)
	second, err := PreparePersist(policy, cs2, asset, staged, first.ToAppend)
	require.NoError(t, err)
	assert.Empty(t, second.ToAppend)
	assert.Empty(t, second.ChangedKeys)
}

func TestPreparePersist_ValueChange(t *testing.T) {
	policy := newFakePolicy(&types.MetadataKeyDef{ID: keyFileSize, ValueType: types.ValueInt})
	asset := baseAsset()
	existing := []*types.Metadata{
		{ID: 1, MetadataKeyID: keyFileSize, ValueType: types.ValueInt, ValueInt: intPtr(42), ChangesetID: 1000, AssetID: 1},
	}
	cs := baseChangeset(1002)
	staged := []*types.Metadata{
		{MetadataKeyID: keyFileSize, ValueType: types.ValueInt, ValueInt: intPtr(100)},
	}

	result, err := PreparePersist(policy, cs, asset, staged, existing)
	require.NoError(t, err)
	require.Len(t, result.ToAppend, 1)
	assert.Equal(t, int64(100), *result.ToAppend[0].ValueInt)
	assert.True(t, result.ChangedKeys[keyFileSize])
}

func TestPreparePersist_ClearOnFalse(t *testing.T) {
	policy := newFakePolicy(&types.MetadataKeyDef{ID: keyFavorite, ValueType: types.ValueInt, ClearOnFalse: true})
	asset := baseAsset()

	cs1000 := baseChangeset(1000)
	existing := []*types.Metadata{
		{ID: 1, MetadataKeyID: keyFavorite, ActorID: 1, ValueType: types.ValueInt, ValueInt: intPtr(1), ChangesetID: 1000, AssetID: 1},
	}

	cs1001 := baseChangeset(1001)
	staged := []*types.Metadata{
		{MetadataKeyID: keyFavorite, ActorID: 1, ValueType: types.ValueInt, ValueInt: intPtr(0)},
	}

	result, err := PreparePersist(policy, cs1001, asset, staged, existing)
	require.NoError(t, err)
	require.Len(t, result.ToAppend, 1)
	assert.True(t, result.ToAppend[0].Removed)
	assert.Equal(t, int64(1), *result.ToAppend[0].ValueInt)

	// current() should now be empty for that key/actor.
	all := append(existing, result.ToAppend...)
	actorID := int64(1)
	current := FoldCurrent(all, &actorID)
	assert.Empty(t, current[keyFavorite])
	_ = cs1000
}

func TestPreparePersist_SkipFalseNoHistory(t *testing.T) {
	policy := newFakePolicy(&types.MetadataKeyDef{ID: keyFavorite, ValueType: types.ValueInt, SkipFalse: true})
	asset := baseAsset()
	cs := baseChangeset(1000)
	staged := []*types.Metadata{
		{MetadataKeyID: keyFavorite, ValueType: types.ValueInt, ValueInt: intPtr(0)},
	}

	result, err := PreparePersist(policy, cs, asset, staged, nil)
	require.NoError(t, err)
	assert.Empty(t, result.ToAppend)
}

func TestFoldCurrent_NewestWins(t *testing.T) {
	entries := []*types.Metadata{
		{ID: 1, MetadataKeyID: keyFileSize, ValueType: types.ValueInt, ValueInt: intPtr(42), ChangesetID: 1000},
		{ID: 2, MetadataKeyID: keyFileSize, ValueType: types.ValueInt, ValueInt: intPtr(100), ChangesetID: 1002},
	}
	current := FoldCurrent(entries, nil)
	require.Len(t, current[keyFileSize], 1)
	assert.Equal(t, int64(100), *current[keyFileSize][0].ValueInt)
}
