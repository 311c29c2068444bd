package changeset

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/cuemby/katalog/pkg/events"
	"github.com/cuemby/katalog/pkg/log"
	"github.com/cuemby/katalog/pkg/metrics"
	"github.com/cuemby/katalog/pkg/store"
	"github.com/cuemby/katalog/pkg/types"
	"golang.org/x/sync/semaphore"
)

const defaultConcurrency = 10

// ErrAlreadyInProgress is returned by Begin when another changeset is
// already in_progress; at most one is ever live at a time.
var ErrAlreadyInProgress = errors.New("changeset: another changeset is already in progress")

// Run is the live runtime state for one changeset: its row, its
// accumulating stats, the semaphore gating enqueued tasks, and the
// cancellation/completion signals that start_operation and cancel
// observe.
type Run struct {
	Changeset *types.Changeset
	Stats     *types.ChangesetStats

	mgr  *Manager
	sem  *semaphore.Weighted
	wg   sync.WaitGroup

	mu          sync.Mutex
	errs        []error
	cancelled   bool
	cancelFn    context.CancelFunc

	doneCh chan struct{}
}

// Manager owns changeset lifecycle transitions against a Store and
// broadcasts progress over a Broker.
type Manager struct {
	st     store.Store
	broker *events.Broker

	mu      sync.Mutex
	current *Run
}

// NewManager constructs a Manager. broker may be nil to disable
// lifecycle event publication.
func NewManager(st store.Store, broker *events.Broker) *Manager {
	return &Manager{st: st, broker: broker}
}

func (m *Manager) publish(ev *events.Event) {
	if m.broker != nil {
		m.broker.Publish(ev)
	}
}

// Begin enforces the single-in-progress invariant, allocates
// id = now_ms, creates the row, binds actors, and returns a Run ready
// for StartOperation.
func (m *Manager) Begin(ctx context.Context, actorIDs []int64, message string) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		return nil, ErrAlreadyInProgress
	}

	inProgress, err := m.st.AnyInProgress()
	if err != nil {
		return nil, fmt.Errorf("check in-progress changesets: %w", err)
	}
	if inProgress {
		return nil, ErrAlreadyInProgress
	}

	id := time.Now().UnixMilli()
	cs, err := m.st.Begin(id, types.ChangesetInProgress, actorIDs, message)
	if err != nil {
		if errors.Is(err, store.ErrChangesetInProgress) {
			return nil, ErrAlreadyInProgress
		}
		return nil, fmt.Errorf("begin changeset: %w", err)
	}

	run := &Run{
		Changeset: cs,
		Stats:     &types.ChangesetStats{},
		mgr:       m,
		sem:       semaphore.NewWeighted(defaultConcurrency),
		doneCh:    make(chan struct{}),
	}
	m.current = run

	metrics.ChangesetsInProgress.Set(1)
	m.publish(&events.Event{Type: events.EventChangesetBegan, ChangesetID: id, Message: message})
	log.WithComponent("changeset").Info().Int64("changeset_id", id).Msg("changeset began")

	return run, nil
}

// StartOperation runs fn to completion, translating its outcome into
// the matching finalize status: nil error finalizes completed,
// context.Canceled finalizes canceled, any other error finalizes
// error with the message captured into Data. A panic inside fn is
// recovered and treated the same as an error, with a stack trace
// captured into Data["traceback"].
func (m *Manager) StartOperation(ctx context.Context, run *Run, fn func(ctx context.Context) error) {
	defer close(run.doneCh)

	opCtx, cancel := context.WithCancel(ctx)
	run.mu.Lock()
	run.cancelFn = cancel
	run.mu.Unlock()
	defer cancel()

	status, finalizeErr := m.runCaptured(opCtx, run, fn)
	if err := m.Finalize(run, status, finalizeErr); err != nil {
		log.WithComponent("changeset").Error().Err(err).Int64("changeset_id", run.Changeset.ID).Msg("finalize failed")
	}
}

func (m *Manager) runCaptured(ctx context.Context, run *Run, fn func(ctx context.Context) error) (status types.ChangesetStatus, runErr error) {
	defer func() {
		if r := recover(); r != nil {
			status = types.ChangesetError
			runErr = fmt.Errorf("panic: %v", r)
			run.Changeset.Data["traceback"] = string(debug.Stack())
		}
	}()

	err := fn(ctx)

	run.mu.Lock()
	cancelled := run.cancelled
	run.mu.Unlock()

	switch {
	case cancelled || errors.Is(err, context.Canceled):
		return types.ChangesetCanceled, err
	case err != nil:
		return types.ChangesetError, err
	default:
		return types.ChangesetCompleted, nil
	}
}

// Enqueue acquires a semaphore slot, runs fn, releases the slot, and
// records the outcome. It blocks until a slot is free or ctx is done.
func (r *Run) Enqueue(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire changeset concurrency slot: %w", err)
	}
	r.wg.Add(1)
	defer r.wg.Done()
	defer r.sem.Release(1)

	err := fn(ctx)

	r.mu.Lock()
	if err != nil {
		r.errs = append(r.errs, err)
	}
	r.mu.Unlock()

	r.mgr.publish(&events.Event{
		Type: events.EventChangesetProgress, ChangesetID: r.Changeset.ID,
		Message: "task completed",
	})
	return err
}

// Cancel sets the cancellation flag and cancels the run's context;
// enqueued tasks already executing run to completion, but new ones
// should check Cancelled() at their own batch boundaries.
func (r *Run) Cancel() {
	r.mu.Lock()
	r.cancelled = true
	cancel := r.cancelFn
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Cancelled reports whether Cancel has been called on this run.
func (r *Run) Cancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled
}

// Done returns a channel closed once the run has finalized.
func (r *Run) Done() <-chan struct{} {
	return r.doneCh
}

// Errors returns the errors collected from enqueued tasks.
func (r *Run) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]error, len(r.errs))
	copy(out, r.errs)
	return out
}

// Finalize awaits remaining enqueued tasks, merges stats into
// Data["stats"], computes running_time_ms, persists the final row and
// clears the manager's in-progress slot.
func (m *Manager) Finalize(run *Run, status types.ChangesetStatus, cause error) error {
	run.wg.Wait()

	if run.Changeset.Data == nil {
		run.Changeset.Data = map[string]any{}
	}
	if cause != nil {
		run.Changeset.Message = cause.Error()
		run.Changeset.Data["error_message"] = cause.Error()
	}
	run.Changeset.Status = status
	run.Changeset.Data["stats"] = run.Stats.ToMap()
	run.Changeset.RunningTimeMS = time.Now().UnixMilli() - run.Changeset.ID

	if err := m.st.Save(run.Changeset); err != nil {
		return fmt.Errorf("persist finalized changeset: %w", err)
	}

	m.mu.Lock()
	if m.current == run {
		m.current = nil
	}
	m.mu.Unlock()

	metrics.ChangesetsInProgress.Set(0)
	metrics.ChangesetsTotal.WithLabelValues(string(status)).Inc()
	metrics.ChangesetDuration.Observe(float64(run.Changeset.RunningTimeMS) / 1000.0)

	evType := events.EventChangesetFinalized
	if status == types.ChangesetCanceled {
		evType = events.EventChangesetCancelled
	}
	m.publish(&events.Event{Type: evType, ChangesetID: run.Changeset.ID, Message: string(status)})

	log.WithComponent("changeset").Info().
		Int64("changeset_id", run.Changeset.ID).
		Str("status", string(status)).
		Int64("running_time_ms", run.Changeset.RunningTimeMS).
		Msg("changeset finalized")

	return nil
}

// Current returns the in-progress run, if any.
func (m *Manager) Current() *Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}
