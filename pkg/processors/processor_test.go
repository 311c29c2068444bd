package processors

import (
	"context"
	"testing"

	"github.com/cuemby/katalog/pkg/changes"
	"github.com/cuemby/katalog/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProcessor is a minimal Processor double for ordering and
// dispatch tests.
type fakeProcessor struct {
	id    string
	deps  map[int64]bool
	outs  map[int64]bool
	mode  types.ExecutionMode
	order int
	ran   bool

	result *types.ProcessorResult
	err    error
}

func (f *fakeProcessor) PluginID() string                  { return f.id }
func (f *fakeProcessor) Dependencies() map[int64]bool       { return f.deps }
func (f *fakeProcessor) Outputs() map[int64]bool            { return f.outs }
func (f *fakeProcessor) ExecutionMode() types.ExecutionMode {
	if f.mode == "" {
		return types.ExecAsync
	}
	return f.mode
}
func (f *fakeProcessor) Order() int                         { return f.order }

func (f *fakeProcessor) IsReady(ctx context.Context) (bool, string, error) { return true, "", nil }
func (f *fakeProcessor) ShouldRun(c *changes.MetadataChanges) bool         { return true }

func (f *fakeProcessor) Run(ctx context.Context, c *changes.MetadataChanges) (*types.ProcessorResult, error) {
	f.ran = true
	if f.result != nil || f.err != nil {
		return f.result, f.err
	}
	return &types.ProcessorResult{Status: types.OpCompleted}, nil
}

func keySet(ids ...int64) map[int64]bool {
	m := make(map[int64]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}

func TestSortProcessors_LinearChain(t *testing.T) {
	a := &fakeProcessor{id: "hash", outs: keySet(1)}
	b := &fakeProcessor{id: "mime", deps: keySet(1), outs: keySet(2)}
	c := &fakeProcessor{id: "thumbnail", deps: keySet(2)}

	stages, err := SortProcessors([]Processor{c, a, b})
	require.NoError(t, err)
	require.Len(t, stages, 3)
	assert.Equal(t, "hash", stages[0][0].PluginID())
	assert.Equal(t, "mime", stages[1][0].PluginID())
	assert.Equal(t, "thumbnail", stages[2][0].PluginID())
}

func TestSortProcessors_IndependentProcessorsShareAStage(t *testing.T) {
	a := &fakeProcessor{id: "hash", outs: keySet(1)}
	b := &fakeProcessor{id: "size", outs: keySet(2)}

	stages, err := SortProcessors([]Processor{a, b})
	require.NoError(t, err)
	require.Len(t, stages, 1)
	assert.Len(t, stages[0], 2)
}

func TestSortProcessors_TieBrokenByOrderThenSequence(t *testing.T) {
	a := &fakeProcessor{id: "b-default", order: 0}
	b := &fakeProcessor{id: "a-priority", order: -1}

	stages, err := SortProcessors([]Processor{a, b})
	require.NoError(t, err)
	require.Len(t, stages, 1)
	require.Len(t, stages[0], 2)
	assert.Equal(t, "a-priority", stages[0][0].PluginID())
}

func TestSortProcessors_CycleDetected(t *testing.T) {
	a := &fakeProcessor{id: "a", deps: keySet(2), outs: keySet(1)}
	b := &fakeProcessor{id: "b", deps: keySet(1), outs: keySet(2)}

	_, err := SortProcessors([]Processor{a, b})
	assert.ErrorIs(t, err, ErrCyclicDependency)
}

func TestSortProcessors_Empty(t *testing.T) {
	stages, err := SortProcessors(nil)
	require.NoError(t, err)
	assert.Nil(t, stages)
}

func TestRunPipeline_StagedOutputVisibleToNextStage(t *testing.T) {
	nameKey := int64(10)
	upper := int64(11)

	hasher := &fakeProcessor{
		id:   "hasher",
		outs: keySet(nameKey),
		result: &types.ProcessorResult{
			Status: types.OpCompleted,
			Metadata: []*types.Metadata{
				{MetadataKeyID: nameKey, ValueType: types.ValueString, ValueText: strPtr("abc")},
			},
		},
	}
	upperProc := &fakeProcessor{id: "upper", deps: keySet(nameKey), outs: keySet(upper)}

	stages := [][]Processor{{hasher}, {upperProc}}
	mc := changes.New(&types.Asset{ID: 1}, nil)
	stats := &types.ChangesetStats{}

	err := RunPipeline(context.Background(), NewRuntime(4, 4, ""), stages, mc, false, stats)
	require.NoError(t, err)

	assert.True(t, hasher.ran)
	assert.True(t, upperProc.ran)
	assert.Equal(t, int64(2), stats.ProcessorsStarted)
	assert.Equal(t, int64(2), stats.ProcessorsCompleted)

	current := mc.Current(nil)
	require.Contains(t, current, nameKey)
	assert.Equal(t, "abc", *current[nameKey][0].ValueText)
}

func TestRunPipeline_ErroringProcessorDoesNotBlockSiblingsOrStage(t *testing.T) {
	ok := &fakeProcessor{id: "ok", result: &types.ProcessorResult{Status: types.OpCompleted}}
	bad := &fakeProcessor{id: "bad", err: assert.AnError}

	stages := [][]Processor{{ok, bad}}
	mc := changes.New(&types.Asset{ID: 1}, nil)
	stats := &types.ChangesetStats{}

	err := RunPipeline(context.Background(), NewRuntime(4, 4, ""), stages, mc, false, stats)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.ProcessorsStarted)
	assert.Equal(t, int64(1), stats.ProcessorsCompleted)
	assert.Equal(t, int64(1), stats.ProcessorsError)
}

func TestRunPipeline_ShouldRunFalseSkipsUnlessForced(t *testing.T) {
	never := &fakeProcessor{id: "never"}
	stages := [][]Processor{{never}}

	mc := changes.New(&types.Asset{ID: 1}, nil)
	stats := &types.ChangesetStats{}

	noRun := &skipAlwaysProcessor{fakeProcessor: never}
	err := RunPipeline(context.Background(), NewRuntime(4, 4, ""), [][]Processor{{noRun}}, mc, false, stats)
	require.NoError(t, err)
	assert.False(t, noRun.ran)

	err = RunPipeline(context.Background(), NewRuntime(4, 4, ""), stages, mc, true, stats)
	require.NoError(t, err)
	assert.True(t, never.ran)
}

// skipAlwaysProcessor overrides ShouldRun to always return false.
type skipAlwaysProcessor struct {
	*fakeProcessor
}

func (s *skipAlwaysProcessor) ShouldRun(c *changes.MetadataChanges) bool { return false }

func strPtr(s string) *string { return &s }
