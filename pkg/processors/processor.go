package processors

import (
	"context"

	"github.com/cuemby/katalog/pkg/changes"
	"github.com/cuemby/katalog/pkg/plugin"
	"github.com/cuemby/katalog/pkg/types"
)

// Processor is a plugin that consumes and produces metadata keys,
// running inside a stage of the dependency DAG computed by
// SortProcessors.
type Processor interface {
	plugin.Plugin

	// Dependencies are the metadata key ids this processor reads.
	Dependencies() map[int64]bool
	// Outputs are the metadata key ids this processor may write.
	Outputs() map[int64]bool
	// ExecutionMode selects how Run is dispatched.
	ExecutionMode() types.ExecutionMode
	// Order breaks stage-internal ties; lower runs first.
	Order() int

	// IsReady must be checked before this processor can be scheduled;
	// a false result aborts pipeline construction.
	IsReady(ctx context.Context) (bool, string, error)
	// ShouldRun decides whether Run is worth dispatching for changes.
	// Ignored when the caller forces a run (batch reprocessing).
	ShouldRun(changes *changes.MetadataChanges) bool
	// Run performs the work and returns the metadata it observed.
	Run(ctx context.Context, changes *changes.MetadataChanges) (*types.ProcessorResult, error)
}

// overlaps reports whether two key-id sets share any member.
func overlaps(a, b map[int64]bool) bool {
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	for k := range small {
		if large[k] {
			return true
		}
	}
	return false
}
