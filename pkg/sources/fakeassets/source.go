package fakeassets

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/katalog/pkg/changes"
	"github.com/cuemby/katalog/pkg/log"
	"github.com/cuemby/katalog/pkg/plugin"
	"github.com/cuemby/katalog/pkg/registry"
	"github.com/cuemby/katalog/pkg/store"
	"github.com/cuemby/katalog/pkg/store/blobcache"
	"github.com/cuemby/katalog/pkg/types"
)

// PluginID is this source's registered plugin id.
const PluginID = "fake.assets"

// Source generates a deterministic synthetic asset population without
// touching any real filesystem or API. It exists to exercise the scan
// runtime, processor pipeline and query layer end to end in tests and
// demos without external dependencies.
type Source struct {
	actor *types.Actor
	cfg   Config
	reg   *registry.Registry
	keys  keyIDs
	st    store.Store
	cache *blobcache.Cache

	mu           sync.Mutex
	collectionID *int64
}

type keyIDs struct {
	fileName, filePath, fileURI, fileExtension, fileType, fileSize, fileVersion, fileTitle int64
	fileDescription, fileComment, fileDownloadURI, fileIDPath, fileTags                    int64
	flagShared, flagFavorite, flagHidden, flagTrashed                                      int64
	timeCreated, timeModified, timeAccessed, timeDownloaded, timeBirthtime, timeTrashed    int64
	docLang, docAuthor, docSummary, docWords, docPages                                     int64
	imageGPSLat, imageGPSLon, imageAperture, imageISO                                      int64
	hashMD5, hashSHA1, hashSimhash, hashMinhash                                            int64
	accessOwner, accessLastModifyingUser, accessSharingUser, accessSharedWith              int64
	collectionMember                                                                       int64
}

// New constructs a Source bound to one actor row. actor.Config is
// decoded against this plugin's own Config model. cache may be nil to
// disable read caching for this instance.
func New(reg *registry.Registry, st store.Store, cache *blobcache.Cache, actor *types.Actor) (*Source, error) {
	cfg, err := decodeConfig(actor.Config)
	if err != nil {
		return nil, err
	}

	keys, err := resolveKeys(reg)
	if err != nil {
		return nil, fmt.Errorf("fakeassets: resolve keys: %w", err)
	}

	return &Source{actor: actor, cfg: cfg, reg: reg, keys: keys, st: st, cache: cache}, nil
}

func resolveKeys(reg *registry.Registry) (keyIDs, error) {
	var k keyIDs
	var err error
	get := func(name string) int64 {
		if err != nil {
			return 0
		}
		var id int64
		id, err = reg.GetID(name)
		return id
	}

	k.fileName = get(KeyFileName)
	k.filePath = get(KeyFilePath)
	k.fileURI = get(KeyFileURI)
	k.fileExtension = get(KeyFileExtension)
	k.fileType = get(KeyFileType)
	k.fileSize = get(KeyFileSize)
	k.fileVersion = get(KeyFileVersion)
	k.fileTitle = get(KeyFileTitle)
	k.fileDescription = get(KeyFileDescription)
	k.fileComment = get(KeyFileComment)
	k.fileDownloadURI = get(KeyFileDownloadURI)
	k.fileIDPath = get(KeyFileIDPath)
	k.fileTags = get(KeyFileTags)
	k.flagShared = get(KeyFlagShared)
	k.flagFavorite = get(KeyFlagFavorite)
	k.flagHidden = get(KeyFlagHidden)
	k.flagTrashed = get(KeyFlagTrashed)
	k.timeCreated = get(KeyTimeCreated)
	k.timeModified = get(KeyTimeModified)
	k.timeAccessed = get(KeyTimeAccessed)
	k.timeDownloaded = get(KeyTimeDownloaded)
	k.timeBirthtime = get(KeyTimeBirthtime)
	k.timeTrashed = get(KeyTimeTrashed)
	k.docLang = get(KeyDocLang)
	k.docAuthor = get(KeyDocAuthor)
	k.docSummary = get(KeyDocSummary)
	k.docWords = get(KeyDocWords)
	k.docPages = get(KeyDocPages)
	k.imageGPSLat = get(KeyImageGPSLatitude)
	k.imageGPSLon = get(KeyImageGPSLongitude)
	k.imageAperture = get(KeyImageAperture)
	k.imageISO = get(KeyImageISO)
	k.hashMD5 = get(KeyHashMD5)
	k.hashSHA1 = get(KeyHashSHA1)
	k.hashSimhash = get(KeyHashSimhash)
	k.hashMinhash = get(KeyHashMinhash)
	k.accessOwner = get(KeyAccessOwner)
	k.accessLastModifyingUser = get(KeyAccessLastModifyingUser)
	k.accessSharingUser = get(KeyAccessSharingUser)
	k.accessSharedWith = get(KeyAccessSharedWith)
	k.collectionMember = get(registry.KeyCollectionMember)

	return k, err
}

// NewFactory returns a plugin.Factory that constructs Source instances
// bound to reg and st, suitable for plugin.Registry.Register. cache may
// be nil to disable read caching for every instance it constructs.
func NewFactory(reg *registry.Registry, st store.Store, cache *blobcache.Cache) plugin.Factory {
	return func(actor *types.Actor) (plugin.Plugin, error) {
		return New(reg, st, cache, actor)
	}
}

func (s *Source) PluginID() string { return PluginID }

func (s *Source) Authorize(ctx context.Context, args map[string]any) (string, error) {
	return "", nil
}

func (s *Source) GetNamespace() string { return s.cfg.Namespace }

func (s *Source) CanScanURI(uri string) bool {
	return strings.HasPrefix(uri, "fake://")
}

func (s *Source) IsReady(ctx context.Context) (bool, string, error) {
	return true, "", nil
}

// ensureCollection lazily creates (once, in memory and in the store)
// the collection every generated asset is a member of, when configured
// to do so. Safe for concurrent callers; only the first wins the
// create.
func (s *Source) ensureCollection() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.collectionID != nil {
		return *s.collectionID, nil
	}
	c := &types.AssetCollection{
		Name:            fmt.Sprintf("%s generated assets", s.cfg.Namespace),
		Description:     "Synthetic assets generated for testing and demos.",
		MembershipKeyID: s.keys.collectionMember,
		RefreshMode:     types.RefreshOnDemand,
	}
	if err := s.st.CreateCollection(c); err != nil {
		return 0, err
	}
	s.collectionID = &c.ID
	return c.ID, nil
}

// Scan streams cfg.TotalAssets synthetic assets, seeded deterministically
// from cfg.Seed and the actor's own id so repeated scans of the same
// actor reproduce the same population.
func (s *Source) Scan(ctx context.Context) (*types.ScanResult, error) {
	logger := log.WithComponent("fakeassets").With().Str("actor", s.actor.Name).Logger()

	ch := make(chan *types.AssetScanResult, 32)

	var mu sync.Mutex
	status := types.OpCompleted
	ignored := 0
	var scanErr error

	var collectionID int64
	if s.cfg.IncludeCollection {
		id, err := s.ensureCollection()
		if err != nil {
			return nil, fmt.Errorf("fakeassets: ensure collection: %w", err)
		}
		collectionID = id
	}

	go func() {
		defer close(ch)
		rng := rand.New(rand.NewSource(s.cfg.Seed + s.actor.ID))

		for i := 0; i < s.cfg.TotalAssets; i++ {
			select {
			case <-ctx.Done():
				mu.Lock()
				status = types.OpCanceled
				mu.Unlock()
				logger.Warn().Int("generated", i).Msg("scan canceled")
				return
			default:
			}

			spec := generateAssetSpec(rng, s.actor.ID, i, s.cfg.HiddenPathRatio)
			md := s.buildMetadata(rng, spec, i, collectionID)

			select {
			case ch <- &types.AssetScanResult{
				Namespace:    s.cfg.Namespace,
				ExternalID:   spec.externalID,
				CanonicalURI: spec.canonicalURI,
				ActorID:      s.actor.ID,
				Metadata:     md,
			}:
			case <-ctx.Done():
				mu.Lock()
				status = types.OpCanceled
				mu.Unlock()
				return
			}

			if s.cfg.BatchSize > 0 && (i+1)%s.cfg.BatchSize == 0 {
				sleepBatch(rng, ctx, s.cfg.BatchDelayMS, s.cfg.BatchJitterMS)
			}
		}

		logger.Info().Int("count", s.cfg.TotalAssets).Msg("scan generated assets")
	}()

	return &types.ScanResult{
		Results: ch,
		Status: func() types.OpStatus {
			mu.Lock()
			defer mu.Unlock()
			return status
		},
		Ignored: func() int {
			mu.Lock()
			defer mu.Unlock()
			return ignored
		},
		Err: func() error {
			mu.Lock()
			defer mu.Unlock()
			return scanErr
		},
	}, nil
}

func (s *Source) buildMetadata(rng *rand.Rand, spec assetSpec, index int, collectionID int64) []*types.Metadata {
	k := s.keys
	actorID := s.actor.ID

	str := func(keyID int64, v string) *types.Metadata {
		return &types.Metadata{ActorID: actorID, MetadataKeyID: keyID, ValueType: types.ValueString, ValueText: &v}
	}
	ival := func(keyID int64, v int64) *types.Metadata {
		return &types.Metadata{ActorID: actorID, MetadataKeyID: keyID, ValueType: types.ValueInt, ValueInt: &v}
	}
	fval := func(keyID int64, v float64) *types.Metadata {
		return &types.Metadata{ActorID: actorID, MetadataKeyID: keyID, ValueType: types.ValueFloat, ValueReal: &v}
	}
	dval := func(keyID int64, v time.Time) *types.Metadata {
		return &types.Metadata{ActorID: actorID, MetadataKeyID: keyID, ValueType: types.ValueDatetime, ValueDatetime: &v}
	}
	jval := func(keyID int64, v any) *types.Metadata {
		return &types.Metadata{ActorID: actorID, MetadataKeyID: keyID, ValueType: types.ValueJSON, ValueJSON: v}
	}

	created := randomDatetime(rng, 900)
	modified := created.Add(time.Duration(rng.Intn(1000)) * time.Hour)
	accessed := modified.Add(time.Duration(rng.Intn(200)) * time.Hour)

	out := []*types.Metadata{
		str(k.fileName, spec.fileName),
		str(k.filePath, spec.filePath),
		str(k.fileURI, spec.canonicalURI),
		str(k.fileExtension, spec.extension),
		str(k.fileType, spec.fileType),
		ival(k.fileSize, spec.fileSize),
		ival(k.fileVersion, 1),
		str(k.fileTitle, titleFromName(spec.fileName)),
		str(k.fileDescription, makeDescription(rng, spec)),
		str(k.fileComment, makeComment(rng)),
		str(k.fileDownloadURI, downloadURI(spec)),
		jval(k.fileIDPath, fakeIDPath(rng, index)),
		jval(k.fileTags, tagsForType(rng, spec.fileType)),
		dval(k.timeCreated, created),
		dval(k.timeModified, modified),
		dval(k.timeAccessed, accessed),
		str(k.accessOwner, ownerPool[rng.Intn(len(ownerPool))]),
		str(k.accessLastModifyingUser, ownerPool[rng.Intn(len(ownerPool))]),
		str(k.hashMD5, fakeHash(rng, "md5")),
		str(k.hashSHA1, fakeHash(rng, "sha1")),
		str(k.hashSimhash, fakeHash(rng, "sim")),
		jval(k.hashMinhash, fakeMinhash(rng)),
	}

	if shared := sharedWith(rng); len(shared) > 0 {
		out = append(out, ival(k.flagShared, 1), jval(k.accessSharedWith, shared),
			str(k.accessSharingUser, ownerPool[rng.Intn(len(ownerPool))]))
	}
	if rng.Float64() < 0.15 {
		out = append(out, ival(k.flagFavorite, 1))
	}
	if strings.HasPrefix(spec.fileName, ".") || strings.HasPrefix(spec.fileName, "~$") || strings.Contains(spec.filePath, "/.hidden/") {
		out = append(out, ival(k.flagHidden, 1))
	}
	if rng.Float64() < 0.03 {
		trashed := modified.Add(time.Duration(rng.Intn(200)) * time.Hour)
		out = append(out, ival(k.flagTrashed, 1), dval(k.timeTrashed, trashed))
	}
	if rng.Float64() < 0.2 {
		out = append(out, dval(k.timeDownloaded, accessed))
	}
	out = append(out, dval(k.timeBirthtime, created))

	if strings.HasPrefix(spec.fileType, "application/pdf") || strings.HasPrefix(spec.fileType, "text/") {
		out = append(out,
			str(k.docLang, docLangPool[rng.Intn(len(docLangPool))]),
			str(k.docAuthor, authorPool[rng.Intn(len(authorPool))]),
			str(k.docSummary, makeSummary(rng)),
			ival(k.docWords, int64(50+rng.Intn(5000))),
			ival(k.docPages, int64(1+rng.Intn(40))),
		)
	}

	if strings.HasPrefix(spec.fileType, "image/") {
		out = append(out,
			fval(k.imageGPSLat, -60+rng.Float64()*120),
			fval(k.imageGPSLon, -180+rng.Float64()*360),
			fval(k.imageAperture, 1.4+rng.Float64()*10),
			ival(k.imageISO, isoPool[rng.Intn(len(isoPool))]),
		)
	}

	if collectionID != 0 {
		cid := collectionID
		out = append(out, &types.Metadata{
			ActorID: actorID, MetadataKeyID: k.collectionMember,
			ValueType: types.ValueCollection, ValueCollectionID: &cid,
		})
	}

	return out
}

// GetDataReader returns a deterministic synthetic byte stream for
// asset, sized from the "size" query parameter this source encoded
// into the asset's canonical URI at scan time.
func (s *Source) GetDataReader(ctx context.Context, asset *types.Asset, mc *changes.MetadataChanges) (types.DataReader, error) {
	size, ok := parseFakeSize(asset.CanonicalURI)
	if !ok {
		size = 65536
	}
	reader := NewFakeAssetReader(s.cfg.Seed+s.actor.ID, asset.ExternalID, size)
	if s.cache == nil {
		return reader, nil
	}
	return &cachedReader{
		inner: reader, cache: s.cache,
		actorID: s.actor.ID, assetID: asset.EffectiveID(), key: "content",
	}, nil
}

func sleepBatch(rng *rand.Rand, ctx context.Context, delayMS, jitterMS float64) {
	if delayMS <= 0 && jitterMS <= 0 {
		return
	}
	d := delayMS
	if jitterMS > 0 {
		d += rng.Float64() * jitterMS
	}
	if d <= 0 {
		return
	}
	timer := time.NewTimer(time.Duration(d) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
