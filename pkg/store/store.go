package store

import (
	"github.com/cuemby/katalog/pkg/changes"
	"github.com/cuemby/katalog/pkg/types"
)

// Store is the persistent store's public contract: typed row CRUD,
// append-only metadata inserts, batched transactions and current-value
// SQL, grouped the way the source system groups them into
// repository-style sub-interfaces.
type Store interface {
	AssetRepo
	MetadataRepo
	ChangesetRepo
	CollectionRepo
	ActorRepo
	QueryRepo

	// UpsertMetadataKey inserts or updates a registry.MetadataKeyDef by
	// name and returns its stable id.
	UpsertMetadataKey(def *types.MetadataKeyDef) (int64, error)

	Close() error
}

// QueryRepo is the read-side contract backing the query layer:
// current-row reconstruction and asset listing with filter/sort/
// pagination, evaluated in SQL rather than by fetching full history.
type QueryRepo interface {
	// CurrentValues returns, for each asset id, the latest live
	// (non-removed) metadata row per requested key id — the
	// current-row reconstruction every query and export ultimately
	// reads from. Asset ids are queried exactly as given: rows stored
	// under a shadow asset are not folded onto its canonical asset.
	CurrentValues(assetIDs []int64, keyIDs []int64) (map[int64]map[int64]*types.Metadata, error)

	// ListAssets evaluates opts against the assets table (direct
	// column filters) and the metadata table (EXISTS sub-queries per
	// metadata filter), returning a page of matching assets and,
	// if requested, the total match count ignoring pagination.
	ListAssets(opts ListOptions) (*ListResult, error)
}

// ActorRepo is the actor persistence contract: registered instances of
// sources, processors, analyzers, editors and exporters.
type ActorRepo interface {
	// CreateActor inserts actor, or reuses the existing row for its
	// (type, identity_key) if one is already registered.
	CreateActor(actor *types.Actor) error
	GetActor(id int64) (*types.Actor, error)
	// ListActors returns every actor of actorType, or every actor if
	// actorType is "".
	ListActors(actorType types.ActorType) ([]*types.Actor, error)
	SetActorDisabled(id int64, disabled bool) error
}

// AssetRepo is the asset persistence contract.
type AssetRepo interface {
	// SaveRecord looks up an asset by (namespace, external_id) if it
	// has no id; inserts it if not found. Idempotent: a second call
	// with the same identity reuses the existing row.
	SaveRecord(asset *types.Asset) (wasCreated bool, err error)
	GetAsset(id int64) (*types.Asset, error)
}

// MetadataRepo is the append-only metadata persistence contract.
type MetadataRepo interface {
	ForAsset(assetID int64, includeRemoved bool) ([]*types.Metadata, error)
	ForAssets(assetIDs []int64, includeRemoved bool) (map[int64][]*types.Metadata, error)
	BulkCreate(rows []*types.Metadata) error

	// HasMetadataForActor reports whether actorID has ever written a
	// metadata row, used by the scan runtime to decide whether a
	// mark_unseen_as_lost pass is meaningful for this run.
	HasMetadataForActor(actorID int64) (bool, error)

	// PersistChanges runs prepare_persist for one asset's staged
	// observations against its authoritative existing rows and appends
	// the result within a single transaction.
	PersistChanges(policy changes.KeyPolicy, changeset *types.Changeset, asset *types.Asset, staged []*types.Metadata) (*changes.PreparePersistResult, error)

	// PersistChangesBatch runs prepare_persist for every (asset,staged)
	// pair in one BEGIN/COMMIT/ROLLBACK transaction.
	PersistChangesBatch(policy changes.KeyPolicy, changeset *types.Changeset, items []AssetStagedPair, existingByAsset map[int64][]*types.Metadata) ([]*changes.PreparePersistResult, error)

	// MarkUnseenAsLost inserts an asset/lost=1 row for every asset that
	// previously carried metadata from one of actorIDs but is absent
	// from seenAssetIDs in this changeset.
	MarkUnseenAsLost(changeset *types.Changeset, lostKeyID int64, actorIDs []int64, seenAssetIDs map[int64]bool) (int, error)
}

// AssetStagedPair pairs an asset with its staged observations for a
// batched persist call.
type AssetStagedPair struct {
	Asset  *types.Asset
	Staged []*types.Metadata
}

// ChangesetRepo is the changeset persistence contract.
type ChangesetRepo interface {
	Begin(id int64, status types.ChangesetStatus, actorIDs []int64, message string) (*types.Changeset, error)
	Save(cs *types.Changeset) error
	Delete(id int64) error
	LoadActorIDs(changesetID int64) ([]int64, error)
	AnyInProgress() (bool, error)
	ListChangesetMetadataChanges(changesetID int64, offset, limit int) ([]*types.Metadata, error)
	GetChangeset(id int64) (*types.Changeset, error)
	ListChangesets(limit int) ([]*types.Changeset, error)
}

// CollectionRepo is the asset-collection persistence contract.
type CollectionRepo interface {
	CreateCollection(c *types.AssetCollection) error
	SaveCollection(c *types.AssetCollection) error
	DeleteCollection(id int64) error
	GetCollection(id int64) (*types.AssetCollection, error)
	ListCollections() ([]*types.AssetCollection, error)

	// AddCollectionMembersForQuery inserts one membership Metadata row
	// per asset id supplied (the query itself is evaluated by the
	// caller via the query layer; the core write path just appends).
	AddCollectionMembersForQuery(collectionID int64, assetIDs []int64, membershipKeyID, actorID int64, changesetID int64) error
}
