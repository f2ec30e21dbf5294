// Package schema holds the object-type descriptors and the registry that maps
// type names to them.
//
// The set of types is closed: every name is a Tag with a built-in descriptor.
// Configuration only decides placement (replicated on every shard, or
// partitioned by a shard key). Descriptors are immutable after registration
// and shared read-only by every shard.
package schema
