// Package shard provides one SQLite-backed shard of the datastore.
//
// A shard hosts a table for every registered object type, plus
// datastore_meta recording the shard count and the shard's own index.
// Every shard of a datastore hosts every table: replicated tables hold the
// same serials everywhere, partitioned tables hold only the rows routed to
// this shard.
//
// # Database Configuration
//
//   - WAL mode: lazy reads proceed while a write transaction is open
//   - synchronous=NORMAL
//   - busy_timeout from configuration (default 5s)
//   - foreign_keys=ON
//   - BEGIN IMMEDIATE for every write transaction, on a single writer
//     connection
//
// # Retries
//
// Run retries SQLITE_BUSY, SQLITE_LOCKED and bad connections with
// exponential backoff (cenkalti/backoff). Any other failure rolls back and
// returns immediately.
package shard
