package scan

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/cuemby/katalog/pkg/changes"
	"github.com/cuemby/katalog/pkg/changeset"
	"github.com/cuemby/katalog/pkg/plugin"
	"github.com/cuemby/katalog/pkg/processors"
	"github.com/cuemby/katalog/pkg/registry"
	"github.com/cuemby/katalog/pkg/store"
	"github.com/cuemby/katalog/pkg/types"
	"github.com/stretchr/testify/require"
)

type fakeAssetSpec struct {
	externalID   string
	canonicalURI string
	metadata     []*types.Metadata
}

type fakeSource struct {
	id      string
	specs   []fakeAssetSpec
	actorID int64
}

func (f *fakeSource) PluginID() string { return f.id }
func (f *fakeSource) Authorize(ctx context.Context, args map[string]any) (string, error) {
	return "", nil
}
func (f *fakeSource) GetNamespace() string         { return "fake" }
func (f *fakeSource) CanScanURI(uri string) bool   { return true }
func (f *fakeSource) IsReady(ctx context.Context) (bool, string, error) {
	return true, "", nil
}

func (f *fakeSource) Scan(ctx context.Context) (*types.ScanResult, error) {
	ch := make(chan *types.AssetScanResult, len(f.specs))
	for _, spec := range f.specs {
		ch <- &types.AssetScanResult{
			Namespace:    "fake",
			ExternalID:   spec.externalID,
			CanonicalURI: spec.canonicalURI,
			ActorID:      f.actorID,
			Metadata:     spec.metadata,
		}
	}
	close(ch)
	return &types.ScanResult{
		Results: ch,
		Status:  func() types.OpStatus { return types.OpCompleted },
		Ignored: func() int { return 0 },
		Err:     func() error { return nil },
	}, nil
}

func newTestDeps(t *testing.T, extra func(reg *registry.Registry)) (Deps, *registry.Registry) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "katalog.db")
	s, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	reg := registry.New()
	reg.DefineCore()
	if extra != nil {
		extra(reg)
	}
	require.NoError(t, reg.Sync(s))

	plugins := plugin.NewRegistry()
	return Deps{Store: s, Registry: reg, Plugins: plugins}, reg
}

func registerFakeSource(t *testing.T, deps Deps, src *fakeSource) *types.Actor {
	t.Helper()
	deps.Plugins.Register(src.id, func(actor *types.Actor) (plugin.Plugin, error) {
		return src, nil
	})
	actor := &types.Actor{
		ID: src.actorID, Name: src.id, PluginID: src.id,
		Type: types.ActorTypeSource, IdentityKey: src.id,
	}
	require.NoError(t, deps.Store.CreateActor(actor))
	src.actorID = actor.ID
	return actor
}

func TestRunSources_WithoutProcessors_PersistsAndMarksLost(t *testing.T) {
	deps, reg := newTestDeps(t, func(reg *registry.Registry) {
		reg.Define("file/name", types.ValueString)
	})
	ctx := context.Background()

	title, err := reg.GetID("file/name")
	require.NoError(t, err)

	src := &fakeSource{id: "fake.source", actorID: 1}
	actor := registerFakeSource(t, deps, src)

	mgr := changeset.NewManager(deps.Store, nil)

	name := func(v string) *string { return &v }

	src.specs = []fakeAssetSpec{
		{externalID: "a1", canonicalURI: "fake://a1", metadata: []*types.Metadata{
			{ActorID: actor.ID, MetadataKeyID: title, ValueType: types.ValueString, ValueText: name("a1.txt")},
		}},
		{externalID: "a2", canonicalURI: "fake://a2", metadata: []*types.Metadata{
			{ActorID: actor.ID, MetadataKeyID: title, ValueType: types.ValueString, ValueText: name("a2.txt")},
		}},
	}

	run, err := mgr.Begin(ctx, []int64{actor.ID}, "first scan")
	require.NoError(t, err)
	status, err := RunSources(ctx, deps, run, []*types.Actor{actor}, Options{})
	require.NoError(t, err)
	require.Equal(t, types.OpCompleted, status)
	require.NoError(t, mgr.Finalize(run, types.ChangesetCompleted, nil))

	require.Equal(t, int64(2), run.Stats.AssetsSeen)

	// Second scan drops a2; it should be marked lost.
	src.specs = []fakeAssetSpec{
		{externalID: "a1", canonicalURI: "fake://a1", metadata: []*types.Metadata{
			{ActorID: actor.ID, MetadataKeyID: title, ValueType: types.ValueString, ValueText: name("a1.txt")},
		}},
	}

	run2, err := mgr.Begin(ctx, []int64{actor.ID}, "second scan")
	require.NoError(t, err)
	status, err = RunSources(ctx, deps, run2, []*types.Actor{actor}, Options{})
	require.NoError(t, err)
	require.Equal(t, types.OpCompleted, status)
	require.Equal(t, int64(1), run2.Stats.AssetsLost)
}

type passthroughProcessor struct {
	outKeyID int64
}

func (p *passthroughProcessor) PluginID() string                 { return "fake.enrich" }
func (p *passthroughProcessor) Dependencies() map[int64]bool     { return nil }
func (p *passthroughProcessor) Outputs() map[int64]bool          { return map[int64]bool{p.outKeyID: true} }
func (p *passthroughProcessor) ExecutionMode() types.ExecutionMode { return types.ExecAsync }
func (p *passthroughProcessor) Order() int                       { return 0 }
func (p *passthroughProcessor) IsReady(ctx context.Context) (bool, string, error) {
	return true, "", nil
}
func (p *passthroughProcessor) ShouldRun(c *changes.MetadataChanges) bool { return true }
func (p *passthroughProcessor) Run(ctx context.Context, c *changes.MetadataChanges) (*types.ProcessorResult, error) {
	one := int64(1)
	return &types.ProcessorResult{
		Status: types.OpCompleted,
		Metadata: []*types.Metadata{
			{MetadataKeyID: p.outKeyID, ValueType: types.ValueInt, ValueInt: &one},
		},
	}, nil
}

func TestRunSources_WithProcessors_EnqueuesPerAssetAndPersists(t *testing.T) {
	deps, reg := newTestDeps(t, func(reg *registry.Registry) {
		reg.Define("test/enriched", types.ValueInt)
	})
	ctx := context.Background()

	outKeyID, err := reg.GetID("test/enriched")
	require.NoError(t, err)

	src := &fakeSource{id: "fake.source2", actorID: 2, specs: []fakeAssetSpec{
		{externalID: "b1", canonicalURI: "fake://b1"},
	}}
	actor := registerFakeSource(t, deps, src)

	mgr := changeset.NewManager(deps.Store, nil)
	run, err := mgr.Begin(ctx, []int64{actor.ID}, "scan with processors")
	require.NoError(t, err)

	proc := &passthroughProcessor{outKeyID: outKeyID}
	stages := [][]processors.Processor{{proc}}
	rt := processors.NewRuntime(4, 2, "")

	status, err := RunSources(ctx, deps, run, []*types.Actor{actor}, Options{
		RunProcessors: true, Stages: stages, Runtime: rt,
	})
	require.NoError(t, err)
	require.Equal(t, types.OpCompleted, status)
	require.NoError(t, mgr.Finalize(run, types.ChangesetCompleted, nil))

	require.Equal(t, int64(1), run.Stats.AssetsProcessed)
}
