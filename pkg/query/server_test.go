package query

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/cuemby/katalog/pkg/registry"
	"github.com/cuemby/katalog/pkg/store"
	"github.com/cuemby/katalog/pkg/types"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *store.SQLiteStore, *registry.Registry, int64) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "katalog.db")
	st, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	reg := registry.New()
	reg.DefineCore()
	reg.Define("file/name", types.ValueString)
	reg.Define("file/size", types.ValueInt)
	require.NoError(t, reg.Sync(st))

	actor := &types.Actor{Name: "q-actor", PluginID: "katalog.sources.fake", Type: types.ActorTypeSource}
	require.NoError(t, st.CreateActor(actor))

	_, err = st.Begin(5000, types.ChangesetInProgress, []int64{actor.ID}, "scan")
	require.NoError(t, err)

	asset := &types.Asset{Namespace: "fake", ExternalID: "asset-1", ActorID: actor.ID}
	_, err = st.SaveRecord(asset)
	require.NoError(t, err)

	nameID, err := reg.GetID("file/name")
	require.NoError(t, err)
	sizeID, err := reg.GetID("file/size")
	require.NoError(t, err)

	name := "report.pdf"
	size := int64(4096)
	cs := &types.Changeset{ID: 5000, Status: types.ChangesetInProgress}
	_, err = st.PersistChanges(reg, cs, asset, []*types.Metadata{
		{ActorID: actor.ID, MetadataKeyID: nameID, ValueType: types.ValueString, ValueText: &name},
		{ActorID: actor.ID, MetadataKeyID: sizeID, ValueType: types.ValueInt, ValueInt: &size},
	})
	require.NoError(t, err)

	return NewServer(st, reg), st, reg, asset.ID
}

func TestHandleListAssets_FiltersByColumn(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/query/assets?external_id=asset-1", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp listAssetsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Assets, 1)
	require.Equal(t, "asset-1", resp.Assets[0].ExternalID)
}

func TestHandleListAssets_MetadataFilterAndTotal(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/query/assets?metadata=file/size:>:1000&include_total=true", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp listAssetsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Assets, 1)
	require.NotNil(t, resp.Total)
	require.Equal(t, 1, *resp.Total)
}

func TestHandleListAssets_RejectsMalformedMetadataFilter(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/query/assets?metadata=bad-filter", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleCurrentValues_ReturnsRequestedKeys(t *testing.T) {
	srv, _, _, assetID := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet,
		"/query/assets/metadata?asset_id="+strconv.FormatInt(assetID, 10)+"&key=file/name&key=file/size", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]map[string]metadataValueResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	byKey := resp[strconv.FormatInt(assetID, 10)]
	require.Equal(t, "report.pdf", byKey["file/name"].Value)
	require.EqualValues(t, 4096, byKey["file/size"].Value)
}

func TestHandleCurrentValues_RequiresAssetID(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/query/assets/metadata", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}
