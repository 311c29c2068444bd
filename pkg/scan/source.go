package scan

import (
	"context"

	"github.com/cuemby/katalog/pkg/changes"
	"github.com/cuemby/katalog/pkg/plugin"
	"github.com/cuemby/katalog/pkg/types"
)

// SourcePlugin is the contract every scan-time source implements.
type SourcePlugin interface {
	plugin.Plugin

	// Authorize obtains and returns opaque credentials; the value is
	// never persisted, only used to configure subsequent calls.
	Authorize(ctx context.Context, args map[string]any) (string, error)
	// GetNamespace is the namespace every asset from this source is
	// assigned.
	GetNamespace() string
	// CanScanURI reports whether uri falls under this source's scheme.
	CanScanURI(uri string) bool
	// IsReady must be checked before Scan is invoked.
	IsReady(ctx context.Context) (bool, string, error)
	// Scan streams every currently-visible asset from this source.
	Scan(ctx context.Context) (*types.ScanResult, error)
}

// DataReaderSource is implemented by sources that can hand back
// byte-range access to an asset's bytes.
type DataReaderSource interface {
	GetDataReader(ctx context.Context, asset *types.Asset, mc *changes.MetadataChanges) (types.DataReader, error)
}

// RecursiveSource is implemented by sources that can expand an asset
// produced by a different source (e.g. a URL asset picked up by an
// HTTP fetcher).
type RecursiveSource interface {
	// CanScanAsset reports whether this source can expand mc's asset,
	// and at what priority (higher wins among competing recursive
	// sources).
	CanScanAsset(mc *changes.MetadataChanges) (priority int, ok bool)
	ScanFromAsset(ctx context.Context, mc *changes.MetadataChanges) (*types.AssetScanResult, error)
}
