package md5hash

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"path/filepath"
	"testing"

	"github.com/cuemby/katalog/pkg/changes"
	"github.com/cuemby/katalog/pkg/plugin"
	"github.com/cuemby/katalog/pkg/registry"
	"github.com/cuemby/katalog/pkg/store"
	"github.com/cuemby/katalog/pkg/types"
	"github.com/stretchr/testify/require"
)

const stubPluginID = "katalog.sources.stub"

// stubReader serves fixed bytes, matching types.DataReader.
type stubReader struct{ data []byte }

func (r *stubReader) Read(ctx context.Context, offset, length int64, noCache bool) ([]byte, error) {
	if offset >= int64(len(r.data)) {
		return nil, nil
	}
	end := offset + length
	if end > int64(len(r.data)) {
		end = int64(len(r.data))
	}
	return r.data[offset:end], nil
}

// stubSource is a minimal plugin implementing scan.DataReaderSource so
// tests can exercise md5hash.Run without a real source plugin.
type stubSource struct{ data []byte }

func (s *stubSource) PluginID() string { return stubPluginID }

func (s *stubSource) GetDataReader(ctx context.Context, asset *types.Asset, mc *changes.MetadataChanges) (types.DataReader, error) {
	return &stubReader{data: s.data}, nil
}

// nonReaderSource implements plugin.Plugin but not scan.DataReaderSource.
type nonReaderSource struct{}

func (s *nonReaderSource) PluginID() string { return "katalog.sources.nonreader" }

func newSyncedRegistry(t *testing.T) (*registry.Registry, *store.SQLiteStore) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "katalog.db")
	s, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	reg := registry.New()
	reg.DefineCore()
	DefineKeys(reg)
	require.NoError(t, reg.Sync(s))
	return reg, s
}

func newOriginActor(t *testing.T, s *store.SQLiteStore, pluginID string) *types.Actor {
	t.Helper()
	actor := &types.Actor{Name: "origin", PluginID: pluginID, Type: types.ActorTypeSource, IdentityKey: "origin:1"}
	require.NoError(t, s.CreateActor(actor))
	return actor
}

func TestProcessor_Run_HashesContentViaDataReader(t *testing.T) {
	reg, s := newSyncedRegistry(t)
	origin := newOriginActor(t, s, stubPluginID)

	plugins := plugin.NewRegistry()
	content := []byte("hello katalog")
	plugins.Register(stubPluginID, func(actor *types.Actor) (plugin.Plugin, error) {
		return &stubSource{data: content}, nil
	})

	p, err := New(reg, 7, s, plugins)
	require.NoError(t, err)

	want := md5.Sum(content)
	asset := &types.Asset{ID: 1, ActorID: origin.ID, CanonicalURI: "fake://1/1"}
	mc := changes.New(asset, nil)

	result, err := p.Run(context.Background(), mc)
	require.NoError(t, err)
	require.Equal(t, types.OpCompleted, result.Status)
	require.Len(t, result.Metadata, 1)
	require.Equal(t, hex.EncodeToString(want[:]), *result.Metadata[0].ValueText)
	require.Equal(t, int64(7), result.Metadata[0].ActorID)
}

func TestProcessor_Run_SkipsOriginWithoutDataReader(t *testing.T) {
	reg, s := newSyncedRegistry(t)
	origin := newOriginActor(t, s, "katalog.sources.nonreader")

	plugins := plugin.NewRegistry()
	plugins.Register("katalog.sources.nonreader", func(actor *types.Actor) (plugin.Plugin, error) {
		return &nonReaderSource{}, nil
	})

	p, err := New(reg, 7, s, plugins)
	require.NoError(t, err)

	asset := &types.Asset{ID: 1, ActorID: origin.ID}
	mc := changes.New(asset, nil)

	result, err := p.Run(context.Background(), mc)
	require.NoError(t, err)
	require.Equal(t, types.OpSkipped, result.Status)
}

func TestProcessor_ShouldRun_FalseOnceHashed(t *testing.T) {
	reg, s := newSyncedRegistry(t)
	p, err := New(reg, 7, s, plugin.NewRegistry())
	require.NoError(t, err)

	asset := &types.Asset{ID: 1}
	mc := changes.New(asset, nil)
	require.True(t, p.ShouldRun(mc))

	existing := "deadbeef"
	mc.Add(&types.Metadata{AssetID: 1, MetadataKeyID: p.md5KeyID, ValueType: types.ValueString, ValueText: &existing})
	require.False(t, p.ShouldRun(mc))
}

func TestProcessor_Outputs_DeclaresMD5Key(t *testing.T) {
	reg, s := newSyncedRegistry(t)
	p, err := New(reg, 7, s, plugin.NewRegistry())
	require.NoError(t, err)

	md5ID, err := reg.GetID(KeyFileMD5)
	require.NoError(t, err)
	require.True(t, p.Outputs()[md5ID])
	require.Empty(t, p.Dependencies())
}
