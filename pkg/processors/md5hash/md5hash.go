// Package md5hash is a katalogd-worker processor plugin: it reads an
// asset's content through its origin source's DataReader and records
// its MD5 digest, grounded on the source system's MD5HashProcessor.
package md5hash

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/cuemby/katalog/pkg/changes"
	"github.com/cuemby/katalog/pkg/plugin"
	"github.com/cuemby/katalog/pkg/registry"
	"github.com/cuemby/katalog/pkg/scan"
	"github.com/cuemby/katalog/pkg/store"
	"github.com/cuemby/katalog/pkg/types"
)

// readChunkSize bounds how much of an asset's content is pulled per
// DataReader.Read call while hashing.
const readChunkSize = 1 << 20

// PluginID identifies this processor to the plugin and worker
// registries.
const PluginID = "katalog.processors.md5_hash"

// KeyFileMD5 is the metadata key this processor writes.
const KeyFileMD5 = "file/md5"

// DefineKeys declares this processor's output key so it can be synced
// at bootstrap, independent of whether the processor actor is
// configured yet.
func DefineKeys(reg *registry.Registry) {
	reg.Define(KeyFileMD5, types.ValueString)
}

// Processor computes an MD5 digest of an asset's content, read through
// its origin source's DataReader rather than any local path. It has no
// hard dependencies, matching the source system's MD5HashProcessor,
// and re-runs whenever no digest is recorded yet.
type Processor struct {
	actorID  int64
	md5KeyID int64
	store    store.Store
	plugins  *plugin.Registry
}

// New resolves KeyFileMD5 against reg and binds the processor to
// actorID, the registered actor row this instance writes metadata as.
// st and plugins are used to resolve each asset's origin source and
// obtain its DataReader, per the data-reader indirection every
// content-reading processor goes through.
func New(reg *registry.Registry, actorID int64, st store.Store, plugins *plugin.Registry) (*Processor, error) {
	md5ID, err := reg.GetID(KeyFileMD5)
	if err != nil {
		return nil, err
	}
	return &Processor{actorID: actorID, md5KeyID: md5ID, store: st, plugins: plugins}, nil
}

// NewFactory adapts New to plugin.Factory so the md5_hash processor
// can be registered and looked up the same way sources are.
func NewFactory(reg *registry.Registry, st store.Store, plugins *plugin.Registry) plugin.Factory {
	return func(actor *types.Actor) (plugin.Plugin, error) {
		return New(reg, actor.ID, st, plugins)
	}
}

func (p *Processor) PluginID() string { return PluginID }

// Dependencies is empty: this processor runs on any asset regardless
// of what other metadata it already carries.
func (p *Processor) Dependencies() map[int64]bool { return map[int64]bool{} }

func (p *Processor) Outputs() map[int64]bool { return map[int64]bool{p.md5KeyID: true} }

func (p *Processor) ExecutionMode() types.ExecutionMode { return types.ExecCPU }

func (p *Processor) Order() int { return 0 }

func (p *Processor) IsReady(ctx context.Context) (bool, string, error) { return true, "", nil }

// ShouldRun skips assets that already carry a digest; the hash of a
// file at a fixed canonical URI never changes out from under us
// without also changing that URI, so "present" is "current".
func (p *Processor) ShouldRun(mc *changes.MetadataChanges) bool {
	return len(mc.Current(nil)[p.md5KeyID]) == 0
}

// Run hashes the asset's content obtained via its origin actor's
// DataReader (spec's get_data_reader indirection), not a local path:
// not every source fronts addressable local content, so processors
// needing bytes always go through the origin actor rather than
// re-deriving a path themselves.
func (p *Processor) Run(ctx context.Context, mc *changes.MetadataChanges) (*types.ProcessorResult, error) {
	reader, err := p.dataReader(ctx, mc)
	if err != nil {
		return &types.ProcessorResult{Status: types.OpError, Message: err.Error()}, nil
	}
	if reader == nil {
		return &types.ProcessorResult{Status: types.OpSkipped, Message: "origin source has no data reader"}, nil
	}

	h := md5.New()
	var offset int64
	for {
		b, err := reader.Read(ctx, offset, readChunkSize, false)
		if err != nil {
			return &types.ProcessorResult{Status: types.OpError, Message: err.Error()}, nil
		}
		if len(b) == 0 {
			break
		}
		h.Write(b)
		offset += int64(len(b))
		if int64(len(b)) < readChunkSize {
			break
		}
	}
	sum := hex.EncodeToString(h.Sum(nil))

	return &types.ProcessorResult{
		Status: types.OpCompleted,
		Metadata: []*types.Metadata{
			{
				AssetID:       mc.Asset.EffectiveID(),
				ActorID:       p.actorID,
				MetadataKeyID: p.md5KeyID,
				ValueType:     types.ValueString,
				ValueText:     &sum,
			},
		},
	}, nil
}

// dataReader resolves the asset's origin actor's plugin instance and,
// if it implements scan.DataReaderSource, returns a reader bound to
// this asset. A nil, nil result means the origin source can't hand
// back bytes at all (Run treats that as a skip, not an error).
func (p *Processor) dataReader(ctx context.Context, mc *changes.MetadataChanges) (types.DataReader, error) {
	originActor, err := p.store.GetActor(mc.Asset.ActorID)
	if err != nil {
		return nil, fmt.Errorf("load origin actor %d: %w", mc.Asset.ActorID, err)
	}
	inst, err := p.plugins.GetActorInstance(originActor)
	if err != nil {
		return nil, fmt.Errorf("resolve origin actor %s: %w", originActor.Name, err)
	}
	drs, ok := inst.(scan.DataReaderSource)
	if !ok {
		return nil, nil
	}
	return drs.GetDataReader(ctx, mc.Asset, mc)
}
