// Package registry declares Katalog's typed metadata keys and maps
// them to the stable integer ids the store assigns on Sync.
//
// Keys are declared once at process start via Define, then Sync
// upserts them into the store. Ids, once assigned, never change
// across restarts; new keys may be declared and synced later without
// disturbing existing ones.
package registry
