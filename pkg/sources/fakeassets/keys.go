package fakeassets

import (
	"github.com/cuemby/katalog/pkg/registry"
	"github.com/cuemby/katalog/pkg/types"
)

// Well-known metadata key names this source writes. Declared here so
// DefineKeys can be called once at bootstrap, independent of whether
// any actor instance of this plugin is ever constructed.
const (
	KeyFileName        = "file/name"
	KeyFilePath        = "file/path"
	KeyFileURI         = "file/uri"
	KeyFileExtension   = "file/extension"
	KeyFileType        = "file/type"
	KeyFileSize        = "file/size"
	KeyFileVersion     = "file/version"
	KeyFileTitle       = "file/title"
	KeyFileDescription = "file/description"
	KeyFileComment     = "file/comment"
	KeyFileDownloadURI = "file/download_uri"
	KeyFileIDPath      = "file/id_path"
	KeyFileTags        = "file/tags"

	KeyFlagShared  = "flag/shared"
	KeyFlagFavorite = "flag/favorite"
	KeyFlagHidden  = "flag/hidden"
	KeyFlagTrashed = "flag/trashed"

	KeyTimeCreated    = "time/created"
	KeyTimeModified   = "time/modified"
	KeyTimeAccessed   = "time/accessed"
	KeyTimeDownloaded = "time/downloaded"
	KeyTimeBirthtime  = "time/birthtime"
	KeyTimeTrashed    = "time/trashed"

	KeyDocLang    = "doc/lang"
	KeyDocAuthor  = "doc/author"
	KeyDocSummary = "doc/summary"
	KeyDocWords   = "doc/words"
	KeyDocPages   = "doc/pages"

	KeyImageGPSLatitude  = "image/gps_latitude"
	KeyImageGPSLongitude = "image/gps_longitude"
	KeyImageAperture     = "image/aperture"
	KeyImageISO          = "image/iso"

	KeyHashMD5     = "hash/md5"
	KeyHashSHA1    = "hash/sha1"
	KeyHashSimhash = "hash/simhash"
	KeyHashMinhash = "hash/minhash"

	KeyAccessOwner             = "access/owner"
	KeyAccessLastModifyingUser = "access/last_modifying_user"
	KeyAccessSharingUser       = "access/sharing_user"
	KeyAccessSharedWith        = "access/shared_with"
)

// DefineKeys declares every metadata key this source writes. Call
// before reg.Sync at daemon bootstrap, alongside registry.DefineCore
// and every other enabled plugin's own DefineKeys.
func DefineKeys(reg *registry.Registry) {
	reg.Define(KeyFileName, types.ValueString, registry.WithSearchable())
	reg.Define(KeyFilePath, types.ValueString, registry.WithSearchable())
	reg.Define(KeyFileURI, types.ValueString)
	reg.Define(KeyFileExtension, types.ValueString)
	reg.Define(KeyFileType, types.ValueString)
	reg.Define(KeyFileSize, types.ValueInt)
	reg.Define(KeyFileVersion, types.ValueInt)
	reg.Define(KeyFileTitle, types.ValueString, registry.WithSearchable())
	reg.Define(KeyFileDescription, types.ValueString, registry.WithSearchable())
	reg.Define(KeyFileComment, types.ValueString)
	reg.Define(KeyFileDownloadURI, types.ValueString)
	reg.Define(KeyFileIDPath, types.ValueJSON)
	reg.Define(KeyFileTags, types.ValueJSON, registry.WithSearchable())

	reg.Define(KeyFlagShared, types.ValueInt, registry.WithClearOnFalse())
	reg.Define(KeyFlagFavorite, types.ValueInt, registry.WithClearOnFalse())
	reg.Define(KeyFlagHidden, types.ValueInt, registry.WithClearOnFalse())
	reg.Define(KeyFlagTrashed, types.ValueInt, registry.WithClearOnFalse())

	reg.Define(KeyTimeCreated, types.ValueDatetime)
	reg.Define(KeyTimeModified, types.ValueDatetime)
	reg.Define(KeyTimeAccessed, types.ValueDatetime)
	reg.Define(KeyTimeDownloaded, types.ValueDatetime)
	reg.Define(KeyTimeBirthtime, types.ValueDatetime)
	reg.Define(KeyTimeTrashed, types.ValueDatetime)

	reg.Define(KeyDocLang, types.ValueString)
	reg.Define(KeyDocAuthor, types.ValueString, registry.WithSearchable())
	reg.Define(KeyDocSummary, types.ValueString, registry.WithSearchable())
	reg.Define(KeyDocWords, types.ValueInt)
	reg.Define(KeyDocPages, types.ValueInt)

	reg.Define(KeyImageGPSLatitude, types.ValueFloat)
	reg.Define(KeyImageGPSLongitude, types.ValueFloat)
	reg.Define(KeyImageAperture, types.ValueFloat)
	reg.Define(KeyImageISO, types.ValueInt)

	reg.Define(KeyHashMD5, types.ValueString)
	reg.Define(KeyHashSHA1, types.ValueString)
	reg.Define(KeyHashSimhash, types.ValueString)
	reg.Define(KeyHashMinhash, types.ValueJSON)

	reg.Define(KeyAccessOwner, types.ValueString, registry.WithSearchable())
	reg.Define(KeyAccessLastModifyingUser, types.ValueString)
	reg.Define(KeyAccessSharingUser, types.ValueString)
	reg.Define(KeyAccessSharedWith, types.ValueJSON)
}
