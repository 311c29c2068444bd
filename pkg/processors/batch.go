package processors

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync/atomic"

	"github.com/cuemby/katalog/pkg/changes"
	"github.com/cuemby/katalog/pkg/log"
	"github.com/cuemby/katalog/pkg/store"
	"github.com/cuemby/katalog/pkg/types"
)

const defaultBatchSize = 1000

func batchSize() int {
	if v := os.Getenv("KATALOG_PROCESSOR_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return defaultBatchSize
}

// RunOptions configures a batch run of do_run_processors.
type RunOptions struct {
	// AssetIDs restricts the run to a known set; if empty the whole
	// catalog (as listed by AssetIDsFn) is processed.
	AssetIDs []int64
	// AssetIDsFn lists every asset id in the catalog, used when
	// AssetIDs is empty. Kept as a function so callers needn't load
	// the whole id set up front when a restricted set was supplied.
	AssetIDsFn func() ([]int64, error)
}

// DoRunProcessors reprocesses existing assets against st in fixed-size
// batches, force-running every stage regardless of ShouldRun, and
// persisting each batch's results inside one transaction.
func DoRunProcessors(ctx context.Context, rt *Runtime, st store.Store, policy changes.KeyPolicy, cs *types.Changeset, stages [][]Processor, opts RunOptions) (*types.ChangesetStats, error) {
	logger := log.WithComponent("processors")
	stats := &types.ChangesetStats{}

	ids := opts.AssetIDs
	if len(ids) == 0 {
		if opts.AssetIDsFn == nil {
			return stats, fmt.Errorf("do_run_processors: no asset ids and no AssetIDsFn supplied")
		}
		all, err := opts.AssetIDsFn()
		if err != nil {
			return stats, fmt.Errorf("list asset ids: %w", err)
		}
		ids = all
	}

	size := batchSize()
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]

		existingByAsset, err := st.ForAssets(chunk, false)
		if err != nil {
			return stats, fmt.Errorf("bulk-load existing metadata: %w", err)
		}

		items := make([]store.AssetStagedPair, 0, len(chunk))
		mcByAsset := make(map[int64]*changes.MetadataChanges, len(chunk))

		for _, id := range chunk {
			asset, err := st.GetAsset(id)
			if err != nil {
				logger.Warn().Err(err).Int64("asset_id", id).Msg("skipping asset: could not load")
				continue
			}
			mc := changes.New(asset, existingByAsset[id])
			if err := RunPipeline(ctx, rt, stages, mc, true, stats); err != nil {
				return stats, fmt.Errorf("run pipeline for asset %d: %w", id, err)
			}
			mcByAsset[id] = mc
			items = append(items, store.AssetStagedPair{Asset: asset, Staged: mc.Staged()})
		}

		if len(items) == 0 {
			continue
		}

		results, err := st.PersistChangesBatch(policy, cs, items, existingByAsset)
		if err != nil {
			return stats, fmt.Errorf("persist changes batch: %w", err)
		}
		for _, r := range results {
			atomic.AddInt64(&stats.AssetsProcessed, 1)
			atomic.AddInt64(&stats.MetadataValuesChanged, int64(len(r.ToAppend)))
		}

		logger.Debug().Int("batch_start", start).Int("batch_size", len(items)).Msg("processed reprocessing batch")
	}

	return stats, nil
}
