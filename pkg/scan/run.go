package scan

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/katalog/pkg/changes"
	"github.com/cuemby/katalog/pkg/changeset"
	"github.com/cuemby/katalog/pkg/log"
	"github.com/cuemby/katalog/pkg/metrics"
	"github.com/cuemby/katalog/pkg/plugin"
	"github.com/cuemby/katalog/pkg/processors"
	"github.com/cuemby/katalog/pkg/registry"
	"github.com/cuemby/katalog/pkg/store"
	"github.com/cuemby/katalog/pkg/types"
)

const defaultTxChunkSize = 500

// Options configures one RunSources invocation.
type Options struct {
	RunProcessors bool
	Stages        [][]processors.Processor
	Runtime       *processors.Runtime
	TxChunkSize   int
}

// Deps are the collaborators RunSources needs from the rest of the
// system.
type Deps struct {
	Store    store.Store
	Registry *registry.Registry
	Plugins  *plugin.Registry
}

// RunSources drives every source actor's scan to completion against
// run, saving assets and metadata as they're observed, and finalizes
// with mark_unseen_as_lost for any actor that has scanned before.
func RunSources(ctx context.Context, deps Deps, run *changeset.Run, sources []*types.Actor, opts Options) (types.OpStatus, error) {
	logger := log.WithComponent("scan")

	if opts.TxChunkSize <= 0 {
		opts.TxChunkSize = defaultTxChunkSize
	}

	lostKeyID, err := deps.Registry.GetID(registry.KeyAssetLost)
	if err != nil {
		return types.OpError, fmt.Errorf("run sources: %w", err)
	}
	fileReaderKeyID, err := deps.Registry.GetID(registry.KeyDataFileReader)
	if err != nil {
		return types.OpError, fmt.Errorf("run sources: %w", err)
	}

	var statuses []types.OpStatus
	var anyErr error

	for _, actor := range sources {
		if actor.Disabled || actor.Type != types.ActorTypeSource {
			continue
		}

		start := time.Now()
		status, err := runOneSource(ctx, deps, run, actor, opts, lostKeyID, fileReaderKeyID)
		metrics.ScanDuration.WithLabelValues(actor.Name).Observe(time.Since(start).Seconds())

		if err != nil {
			logger.Error().Err(err).Str("actor", actor.Name).Msg("source scan failed")
			anyErr = err
			statuses = append(statuses, types.OpError)
			continue
		}
		statuses = append(statuses, status)
	}

	if anyErr != nil {
		return types.OpError, anyErr
	}
	return aggregateStatus(statuses), nil
}

// aggregateStatus implements the mixed-status rule: any error wins,
// else any canceled, else any partial, else completed.
func aggregateStatus(statuses []types.OpStatus) types.OpStatus {
	if len(statuses) == 0 {
		return types.OpCompleted
	}
	has := func(want types.OpStatus) bool {
		for _, s := range statuses {
			if s == want {
				return true
			}
		}
		return false
	}
	switch {
	case has(types.OpError):
		return types.OpError
	case has(types.OpCanceled):
		return types.OpCanceled
	case has(types.OpPartial):
		return types.OpPartial
	default:
		return types.OpCompleted
	}
}

func runOneSource(ctx context.Context, deps Deps, run *changeset.Run, actor *types.Actor, opts Options, lostKeyID, fileReaderKeyID int64) (types.OpStatus, error) {
	logger := log.WithComponent("scan")

	inst, err := deps.Plugins.GetActorInstance(actor)
	if err != nil {
		return types.OpError, fmt.Errorf("resolve source actor %s: %w", actor.Name, err)
	}
	src, ok := inst.(SourcePlugin)
	if !ok {
		return types.OpError, fmt.Errorf("actor %s's plugin does not implement SourcePlugin", actor.Name)
	}

	ready, reason, err := src.IsReady(ctx)
	if err != nil {
		return types.OpError, fmt.Errorf("source %s readiness: %w", actor.Name, err)
	}
	if !ready {
		return types.OpError, fmt.Errorf("source %s not ready: %s", actor.Name, reason)
	}

	existingActorMetadata, err := deps.Store.HasMetadataForActor(actor.ID)
	if err != nil {
		return types.OpError, fmt.Errorf("check existing metadata for actor %s: %w", actor.Name, err)
	}

	scanResult, err := src.Scan(ctx)
	if err != nil {
		return types.OpError, fmt.Errorf("source %s scan: %w", actor.Name, err)
	}

	seenAssetIDs := make(map[int64]bool)
	var batch []*types.AssetScanResult
	var tasks sync.WaitGroup

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		ids, err := flushScanOnlyBatch(deps, run.Changeset, batch, lostKeyID)
		if err != nil {
			return err
		}
		for _, id := range ids {
			seenAssetIDs[id] = true
		}
		run.Stats.AssetsSeen += int64(len(batch))
		batch = batch[:0]
		return nil
	}

	for item := range scanResult.Results {
		if opts.RunProcessors {
			asset := &types.Asset{
				Namespace:    item.Namespace,
				ExternalID:   item.ExternalID,
				CanonicalURI: item.CanonicalURI,
				ActorID:      item.ActorID,
			}
			if _, err := deps.Store.SaveRecord(asset); err != nil {
				return types.OpError, fmt.Errorf("save asset record: %w", err)
			}
			seenAssetIDs[asset.EffectiveID()] = true
			run.Stats.AssetsSeen++

			existing, err := deps.Store.ForAsset(asset.EffectiveID(), true)
			if err != nil {
				return types.OpError, fmt.Errorf("load existing metadata: %w", err)
			}

			mc := changes.New(asset, existing)
			mc.Add(item.Metadata...)
			mc.Add(&types.Metadata{ActorID: actor.ID, MetadataKeyID: lostKeyID, ValueType: types.ValueInt})
			mc.Add(&types.Metadata{
				ActorID: actor.ID, MetadataKeyID: fileReaderKeyID, ValueType: types.ValueJSON,
				ValueJSON: map[string]any{"asset_id": asset.ID, "actor_id": actor.ID},
			})

			localAsset, localMC := asset, mc
			tasks.Add(1)
			go func() {
				defer tasks.Done()
				_ = run.Enqueue(ctx, func(ctx context.Context) error {
					return processAsset(ctx, deps, run, localAsset, localMC, opts)
				})
			}()
		} else {
			batch = append(batch, item)
			if len(batch) >= opts.TxChunkSize {
				if err := flush(); err != nil {
					return types.OpError, err
				}
			}
		}
	}

	if !opts.RunProcessors {
		if err := flush(); err != nil {
			return types.OpError, err
		}
	}

	tasks.Wait()

	if err := scanResult.Err(); err != nil {
		return types.OpError, fmt.Errorf("source %s: %w", actor.Name, err)
	}

	if existingActorMetadata {
		n, err := deps.Store.MarkUnseenAsLost(run.Changeset, lostKeyID, []int64{actor.ID}, seenAssetIDs)
		if err != nil {
			return types.OpError, fmt.Errorf("mark unseen as lost: %w", err)
		}
		run.Stats.AssetsLost += int64(n)
	}

	run.Stats.AssetsIgnored += int64(scanResult.Ignored())
	logger.Info().Str("actor", actor.Name).Int("seen", len(seenAssetIDs)).Msg("source scan complete")

	return scanResult.Status(), nil
}

// processAsset runs the processor pipeline for one asset (if any
// stages were configured) and persists the resulting staged set.
func processAsset(ctx context.Context, deps Deps, run *changeset.Run, asset *types.Asset, mc *changes.MetadataChanges, opts Options) error {
	if len(opts.Stages) > 0 {
		if err := processors.RunPipeline(ctx, opts.Runtime, opts.Stages, mc, false, run.Stats); err != nil {
			return fmt.Errorf("process asset %d: %w", asset.ID, err)
		}
	}

	result, err := deps.Store.PersistChanges(deps.Registry, run.Changeset, asset, mc.Staged())
	if err != nil {
		return fmt.Errorf("persist asset %d: %w", asset.ID, err)
	}
	// Several assets are in flight at once here (bounded by the
	// changeset's semaphore), so stats updates must be atomic.
	atomic.AddInt64(&run.Stats.MetadataValuesChanged, int64(len(result.ToAppend)))
	atomic.AddInt64(&run.Stats.AssetsProcessed, 1)
	return nil
}

// flushScanOnlyBatch persists a batch of AssetScanResults collected
// without processor involvement, inside one transaction. It returns
// the effective asset id of every item in the batch.
func flushScanOnlyBatch(deps Deps, cs *types.Changeset, batch []*types.AssetScanResult, lostKeyID int64) ([]int64, error) {
	items := make([]store.AssetStagedPair, 0, len(batch))
	existingByAsset := make(map[int64][]*types.Metadata, len(batch))
	ids := make([]int64, 0, len(batch))

	for _, item := range batch {
		asset := &types.Asset{
			Namespace: item.Namespace, ExternalID: item.ExternalID,
			CanonicalURI: item.CanonicalURI, ActorID: item.ActorID,
		}
		if _, err := deps.Store.SaveRecord(asset); err != nil {
			return nil, fmt.Errorf("save record: %w", err)
		}
		existing, err := deps.Store.ForAsset(asset.EffectiveID(), true)
		if err != nil {
			return nil, fmt.Errorf("load existing metadata: %w", err)
		}
		existingByAsset[asset.EffectiveID()] = existing
		ids = append(ids, asset.EffectiveID())

		staged := append([]*types.Metadata{}, item.Metadata...)
		staged = append(staged, &types.Metadata{ActorID: item.ActorID, MetadataKeyID: lostKeyID, ValueType: types.ValueInt})

		items = append(items, store.AssetStagedPair{Asset: asset, Staged: staged})
	}

	if _, err := deps.Store.PersistChangesBatch(deps.Registry, cs, items, existingByAsset); err != nil {
		return nil, err
	}
	return ids, nil
}
