// Package blobcache is a local byte-range cache for types.DataReader,
// backed by go.etcd.io/bbolt. It exists so processors that read the
// same asset range more than once (a hasher followed by a MIME
// sniffer, say) do not re-fetch from the origin source each time.
//
// Entries are stamped with the time they were cached and evicted by a
// background loop once they exceed the configured TTL; callers that
// pass no_cache=true bypass the cache entirely for both reads and
// writes.
package blobcache
