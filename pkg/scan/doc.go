// Package scan drives source actors to completion against an
// in-progress changeset: per-asset processor dispatch when a pipeline
// is configured, batched scan-only persistence when it isn't, and
// mark-unseen-as-lost bookkeeping for sources that have scanned
// before.
package scan
