// Package processors implements the processor runtime: ordering
// processors into dependency-respecting stages, dispatching each one
// according to its declared execution mode, and driving both the
// per-asset scan-time pipeline and the batch reprocessing path over
// existing assets.
package processors
