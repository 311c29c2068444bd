package registry

import "github.com/cuemby/katalog/pkg/types"

// Well-known metadata key names referenced by the core runtime itself
// rather than by a specific plugin.
const (
	KeyAssetLost       = "asset/lost"
	KeyAssetSearchDoc  = "asset/search_doc"
	KeyCollectionMember = "collection/member"
	KeyDataFileReader  = "data/file_reader"
)

// DefineCore declares the metadata keys the core runtime itself reads
// or writes, independent of any scan/processor plugin. Plugins declare
// their own keys alongside these before Sync is called.
func (r *Registry) DefineCore() {
	r.Define(KeyAssetLost, types.ValueInt)
	r.Define(KeyCollectionMember, types.ValueCollection)
	r.Define(KeyAssetSearchDoc, types.ValueString)
	r.Define(KeyDataFileReader, types.ValueJSON)
}
