package types

import (
	"context"
	"time"
)

// ActorType identifies the role a plugin instance plays in the catalog.
type ActorType string

const (
	ActorTypeSource    ActorType = "source"
	ActorTypeProcessor ActorType = "processor"
	ActorTypeAnalyzer  ActorType = "analyzer"
	ActorTypeEditor    ActorType = "editor"
	ActorTypeExporter  ActorType = "exporter"
)

// Actor is a registered, configured instance of a plugin (source,
// processor, analyzer, editor or exporter). Two actors of the same
// type with the same plugin id and canonicalized config collapse into
// one logical actor via IdentityKey, regardless of Name.
type Actor struct {
	ID           int64
	Name         string
	PluginID     string
	Type         ActorType
	Config       map[string]any
	IdentityKey  string
	Disabled     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ChangesetStatus is the lifecycle state of a Changeset.
type ChangesetStatus string

const (
	ChangesetInProgress ChangesetStatus = "in_progress"
	ChangesetPartial    ChangesetStatus = "partial"
	ChangesetCompleted  ChangesetStatus = "completed"
	ChangesetCanceled   ChangesetStatus = "canceled"
	ChangesetSkipped    ChangesetStatus = "skipped"
	ChangesetError      ChangesetStatus = "error"
)

// Changeset is the transactional boundary for a batch of observations.
// ID is assigned as creation wall-clock milliseconds, so ordering by ID
// is chronological ordering; RunningTimeMS is computed as now-ID at
// finalize time.
type Changeset struct {
	ID            int64
	Status        ChangesetStatus
	Message       string
	RunningTimeMS int64
	Data          map[string]any
	ActorIDs      []int64
}

// Asset is a canonical thing being cataloged. If CanonicalAssetID is
// set the asset is a shadow: current-value queries redirect the fold
// to COALESCE(canonical_asset_id, id).
type Asset struct {
	ID               int64
	Namespace        string
	ExternalID       string
	CanonicalURI     string
	ActorID          int64
	CanonicalAssetID *int64
}

// EffectiveID returns the asset id that metadata folds should key on:
// the canonical target if this asset is a shadow, else its own id.
func (a *Asset) EffectiveID() int64 {
	if a.CanonicalAssetID != nil {
		return *a.CanonicalAssetID
	}
	return a.ID
}

// ValueType is the discriminant of Metadata's tagged-union value.
type ValueType string

const (
	ValueString     ValueType = "string"
	ValueInt        ValueType = "int"
	ValueFloat      ValueType = "float"
	ValueDatetime   ValueType = "datetime"
	ValueJSON       ValueType = "json"
	ValueRelation   ValueType = "relation"
	ValueCollection ValueType = "collection"
)

// Metadata is one observation of one key for one asset by one actor in
// one changeset. Exactly one of the typed Value* fields is populated,
// matching ValueType, unless Removed is true (a tombstone), in which
// case the value fields still carry the value being tombstoned so the
// fingerprint of the erased value can be recovered.
type Metadata struct {
	ID               int64
	AssetID          int64
	ActorID          int64
	ChangesetID      int64
	MetadataKeyID    int64
	ValueType        ValueType
	ValueText        *string
	ValueInt         *int64
	ValueReal        *float64
	ValueDatetime    *time.Time
	ValueJSON        any // must be canonically JSON-serializable
	ValueRelationID  *int64
	ValueCollectionID *int64
	Removed          bool
	Confidence       *float64
}

// RefreshMode controls whether an AssetCollection's membership is
// recomputed live from its Source query or only on demand.
type RefreshMode string

const (
	RefreshLive     RefreshMode = "live"
	RefreshOnDemand RefreshMode = "on_demand"
)

// AssetCollection is a named, possibly query-backed, set of assets.
// Membership is encoded as Metadata rows under MembershipKeyID
// (conventionally the "collection/member" key).
type AssetCollection struct {
	ID              int64
	Name            string
	Description     string
	Source          map[string]any // stored query, optional
	MembershipKeyID int64
	AssetCount      int
	RefreshMode     RefreshMode
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// MetadataKeyDef declares a metadata key's value type and write-path
// policy. Ids are assigned once by the registry and never reassigned.
type MetadataKeyDef struct {
	ID            int64
	Name          string
	ValueType     ValueType
	Title         string
	Description   string
	Width         int
	SkipFalse     bool
	ClearOnFalse  bool
	Searchable    bool
}

// OpStatus is the outcome of a scan or processor operation.
type OpStatus string

const (
	OpCompleted OpStatus = "completed"
	OpPartial   OpStatus = "partial"
	OpCanceled  OpStatus = "canceled"
	OpSkipped   OpStatus = "skipped"
	OpError     OpStatus = "error"
)

// AssetScanResult conveys a bare asset identity plus any staged
// Metadata observations a source emitted for it.
type AssetScanResult struct {
	Namespace    string
	ExternalID   string
	CanonicalURI string
	ActorID      int64
	Metadata     []*Metadata
}

// ScanResult is what a SourcePlugin.Scan call returns: a channel of
// AssetScanResult plus the terminal status and ignored-item count,
// both only meaningful after Results is drained.
type ScanResult struct {
	Results  <-chan *AssetScanResult
	Status   func() OpStatus
	Ignored  func() int
	Err      func() error
}

// DataReader exposes byte-range access to an asset's underlying bytes,
// obtained from the asset's origin actor. Processors needing file
// content (hash, MIME sniffing, extraction) go through this rather
// than re-deriving a path or URL themselves.
type DataReader interface {
	Read(ctx context.Context, offset, length int64, noCache bool) ([]byte, error)
}

// ExecutionMode selects how a Processor's Run is dispatched.
type ExecutionMode string

const (
	ExecAsync   ExecutionMode = "async"
	ExecThreads ExecutionMode = "threads"
	ExecCPU     ExecutionMode = "cpu"
)

// ProcessorResult is what a Processor.Run call returns.
type ProcessorResult struct {
	Status   OpStatus
	Metadata []*Metadata
	Message  string
}

// ChangesetStats accumulates counters over the lifetime of a changeset.
type ChangesetStats struct {
	AssetsSeen    int64
	AssetsSaved   int64
	AssetsIgnored int64
	AssetsAdded   int64
	AssetsChanged int64
	AssetsLost    int64
	AssetsProcessed int64

	MetadataValuesChanged int64
	MetadataValuesAdded   int64
	MetadataValuesRemoved int64

	ProcessorsStarted   int64
	ProcessorsCompleted int64
	ProcessorsPartial   int64
	ProcessorsCancelled int64
	ProcessorsSkipped   int64
	ProcessorsError     int64
}

// ToMap renders the stats for embedding into Changeset.Data["stats"].
func (s *ChangesetStats) ToMap() map[string]any {
	return map[string]any{
		"assets_seen":      s.AssetsSeen,
		"assets_saved":     s.AssetsSaved,
		"assets_ignored":   s.AssetsIgnored,
		"assets_added":     s.AssetsAdded,
		"assets_changed":   s.AssetsChanged,
		"assets_lost":      s.AssetsLost,
		"assets_processed": s.AssetsProcessed,

		"metadata_values_changed": s.MetadataValuesChanged,
		"metadata_values_added":   s.MetadataValuesAdded,
		"metadata_values_removed": s.MetadataValuesRemoved,

		"processings_started":   s.ProcessorsStarted,
		"processings_completed": s.ProcessorsCompleted,
		"processings_partial":   s.ProcessorsPartial,
		"processings_cancelled": s.ProcessorsCancelled,
		"processings_skipped":   s.ProcessorsSkipped,
		"processings_error":     s.ProcessorsError,
	}
}
