// Package factory implements per-type find-or-create and bulk reads against a
// single shard connection.
//
// Every known schema.Tag is bound to a Factory in a static table resolved once
// at startup (see For and NewSet). The built-in factories share one
// descriptor-driven SQL implementation and differ in their payload
// preparation: label checks, positivity of tolerances and wavenumbers,
// redshift flag defaults, serial references.
//
// # Matching
//
// Key columns are compared with their schema.MatchRule:
//   - Exact: stored = requested
//   - Relative(ε): |stored − requested| / |requested| < ε, falling back to
//     |stored| < ε when requested is exactly zero
//
// A payload matching more than one row is an ambiguous-match error and is
// never resolved by picking one.
//
// # Transactions
//
// Factories run inside the caller's transaction and never commit. The shard
// package owns transaction scope, retries and connection lifetime.
package factory
