// Package changes implements Katalog's change-set kernel: the
// in-memory fold of an asset's append-only metadata history that
// answers "what is true now" and computes the minimal set of new rows
// a scan or processor run needs to append.
//
// MetadataChanges holds the loaded history and the staged
// observations for one asset during one run. PreparePersist is the
// pure function the store calls at write time against its
// authoritative existing-rows snapshot; it is idempotent and
// tombstone-aware, honoring each key's skip_false / clear_on_false
// policy from the registry.
package changes
