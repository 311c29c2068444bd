package processors

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/katalog/pkg/changes"
	"github.com/cuemby/katalog/pkg/log"
	"github.com/cuemby/katalog/pkg/metrics"
	"github.com/cuemby/katalog/pkg/types"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Runtime dispatches processors to their declared execution mode and
// drives the per-asset, stage-by-stage pipeline described in the
// processor runtime's ordering contract.
type Runtime struct {
	threadSem  *semaphore.Weighted
	processSem *semaphore.Weighted
	workerBin  string
	killGrace  time.Duration
}

// NewRuntime creates a Runtime with the given shared pool sizes.
// workerBin is the path to the katalogd-worker binary used for
// execution_mode="cpu" processors.
func NewRuntime(threadPoolSize, processPoolSize int64, workerBin string) *Runtime {
	return &Runtime{
		threadSem:  semaphore.NewWeighted(threadPoolSize),
		processSem: semaphore.NewWeighted(processPoolSize),
		workerBin:  workerBin,
		killGrace:  10 * time.Second,
	}
}

// Dispatch runs one processor according to its execution mode and
// returns its result. A panicking or erroring Run is converted into
// an error-status ProcessorResult rather than propagated, matching
// the "downstream stages still run" error policy.
func (rt *Runtime) Dispatch(ctx context.Context, p Processor, mc *changes.MetadataChanges) *types.ProcessorResult {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ProcessorStageDuration)

	var result *types.ProcessorResult
	var err error

	switch p.ExecutionMode() {
	case types.ExecAsync:
		result, err = rt.runAsync(ctx, p, mc)
	case types.ExecThreads:
		result, err = rt.runThreaded(ctx, p, mc)
	case types.ExecCPU:
		result, err = rt.runCPU(ctx, p, mc)
	default:
		err = fmt.Errorf("unknown execution mode %q", p.ExecutionMode())
	}

	if err != nil {
		return &types.ProcessorResult{Status: types.OpError, Message: err.Error()}
	}
	return result
}

func (rt *Runtime) runAsync(ctx context.Context, p Processor, mc *changes.MetadataChanges) (res *types.ProcessorResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processor %s panicked: %v", p.PluginID(), r)
		}
	}()
	return p.Run(ctx, mc)
}

func (rt *Runtime) runThreaded(ctx context.Context, p Processor, mc *changes.MetadataChanges) (*types.ProcessorResult, error) {
	if err := rt.threadSem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire thread slot: %w", err)
	}
	defer rt.threadSem.Release(1)
	return rt.runAsync(ctx, p, mc)
}

// runCPU hands the processor off to a worker subprocess over JSON on
// stdio, since no protoc/grpc codegen can run in this environment.
// See pkg/processors/ipc.go for the wire payloads.
func (rt *Runtime) runCPU(ctx context.Context, p Processor, mc *changes.MetadataChanges) (*types.ProcessorResult, error) {
	if err := rt.processSem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire process slot: %w", err)
	}
	defer rt.processSem.Release(1)

	cctx, cancel := context.WithCancel(ctx)
	defer cancel()

	result, err := runWorkerSubprocess(cctx, rt.workerBin, rt.killGrace, p.PluginID(), mc)
	if err != nil {
		return nil, fmt.Errorf("cpu dispatch %s: %w", p.PluginID(), err)
	}
	return result, nil
}

// RunPipeline runs every stage of procs against mc in order. Within a
// stage, processors run concurrently via gather_all semantics: a
// failing or skipped processor does not abort its siblings. Stage N
// only begins once stage N-1's outputs are visible via mc.Add.
func RunPipeline(ctx context.Context, rt *Runtime, stages [][]Processor, mc *changes.MetadataChanges, forceRun bool, stats *types.ChangesetStats) error {
	logger := log.WithComponent("processors")

	for stageIdx, stage := range stages {
		type slot struct {
			proc   Processor
			result *types.ProcessorResult
		}
		var mu sync.Mutex
		var slots []*slot

		eg, egCtx := errgroup.WithContext(ctx)
		for _, p := range stage {
			if !forceRun && !p.ShouldRun(mc) {
				continue
			}
			p := p
			s := &slot{proc: p}
			mu.Lock()
			slots = append(slots, s)
			mu.Unlock()

			eg.Go(func() error {
				s.result = rt.Dispatch(egCtx, p, mc)
				return nil // never fail the group; gather_all collects every outcome
			})
		}
		if err := eg.Wait(); err != nil {
			return fmt.Errorf("pipeline stage %d: %w", stageIdx, err)
		}

		for _, s := range slots {
			updateStats(stats, s.result.Status)
			if s.result.Status == types.OpCanceled || s.result.Status == types.OpError || s.result.Status == types.OpSkipped {
				logger.Debug().Str("plugin_id", s.proc.PluginID()).Str("status", string(s.result.Status)).Msg("processor did not contribute metadata")
				continue
			}
			mc.Add(s.result.Metadata...)
		}
	}
	return nil
}

// updateStats uses atomic increments because the scan runtime runs
// process_asset for several assets concurrently (bounded by the
// changeset's semaphore), all sharing one *types.ChangesetStats.
func updateStats(stats *types.ChangesetStats, status types.OpStatus) {
	if stats == nil {
		return
	}
	atomic.AddInt64(&stats.ProcessorsStarted, 1)
	switch status {
	case types.OpCompleted:
		atomic.AddInt64(&stats.ProcessorsCompleted, 1)
		metrics.ProcessorOutcomesTotal.WithLabelValues("completed").Inc()
	case types.OpPartial:
		atomic.AddInt64(&stats.ProcessorsPartial, 1)
		metrics.ProcessorOutcomesTotal.WithLabelValues("partial").Inc()
	case types.OpCanceled:
		atomic.AddInt64(&stats.ProcessorsCancelled, 1)
		metrics.ProcessorOutcomesTotal.WithLabelValues("canceled").Inc()
	case types.OpSkipped:
		atomic.AddInt64(&stats.ProcessorsSkipped, 1)
		metrics.ProcessorOutcomesTotal.WithLabelValues("skipped").Inc()
	case types.OpError:
		atomic.AddInt64(&stats.ProcessorsError, 1)
		metrics.ProcessorOutcomesTotal.WithLabelValues("error").Inc()
	}
}

// IsReadyAll checks IsReady on every processor, aborting pipeline
// construction with an error naming the first one that is not ready.
func IsReadyAll(ctx context.Context, procs []Processor) error {
	for _, p := range procs {
		ready, reason, err := p.IsReady(ctx)
		if err != nil {
			return fmt.Errorf("processor %s readiness check: %w", p.PluginID(), err)
		}
		if !ready {
			return fmt.Errorf("processor %s not ready: %s", p.PluginID(), reason)
		}
	}
	return nil
}
