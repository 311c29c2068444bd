// Package changeset implements changeset lifecycle management: begin,
// enqueue, cancel and finalize, enforcing that at most one changeset
// is in_progress at a time and accumulating ChangesetStats over the
// run for persistence into the final row's Data payload.
package changeset
