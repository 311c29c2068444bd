package registry

import "errors"

// ErrNotSynced is returned by GetID when Sync has not run yet.
var ErrNotSynced = errors.New("registry not synced")
