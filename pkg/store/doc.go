// Package store implements Katalog's persistent store: a SQLite
// backend (github.com/mattn/go-sqlite3) exposing repository-style
// CRUD for actors, changesets, assets, metadata and collections.
//
// Metadata inserts are strictly append-only: BulkCreate, PersistChanges,
// PersistChangesBatch, MarkUnseenAsLost and AddCollectionMembersForQuery
// all add rows and none updates or deletes one. PersistChanges runs
// prepare_persist (pkg/changes) against the asset's rows loaded inside
// the same call; PersistChangesBatch runs it against the existing rows
// its caller passes in. WAL journaling, foreign_keys=ON and a busy
// timeout are set via connection-string pragmas at Open.
package store
