// Package pool coordinates find-or-create, store, validate and bulk reads
// across the shards of a datastore.
//
// Every request returns a Future and runs on its own goroutine, bounded by
// the configured in-flight limit. Within a shard, write transactions are
// serialized by the shard's single writer connection, so two
// tolerance-equivalent requests never both insert.
//
// # Replicated types
//
// A replicated request settles on the leader (shard 0) first. The leader's
// serial and stored key values are then sent to every follower as an
// explicit identifier. A follower that matches a different serial, or
// holds a different payload under that serial, fails the request with a
// consistency error. A request that failed part way is repaired by
// retrying it: the leader already holds the row and returns the same
// serial, and followers that already have it match it.
//
// Bulk reads of a replicated type come from the leader unless the filter
// names a shard key, in which case the read stays on that key's shard.
//
// # Lifecycle
//
// Open prunes unvalidated placeholders of earlier processes (when
// configured) before any request runs. Close waits for in-flight requests.
// With ties both to a function call.
package pool
