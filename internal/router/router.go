// Package router decides which shards serve a request.
//
// Replicated types go to every shard, leader first. Partitioned types go to
// exactly one shard, chosen by hashing the request's shard key:
//
//	shard = xxhash64(little-endian int64 key) mod shardCount
//
// The hash depends only on the key and the shard count, both of which are
// fixed for the lifetime of a datastore, so a key always lands on the same
// shard across processes and restarts.
package router

import (
	"encoding/binary"
	"slices"

	"github.com/cespare/xxhash/v2"

	"github.com/roach88/shardstore/internal/payload"
	"github.com/roach88/shardstore/internal/schema"
	"github.com/roach88/shardstore/internal/storeerr"
)

// Leader is the shard that settles identifiers of replicated types.
const Leader = 0

// Rules maps a partitioned type name to the payload field holding its
// shard key.
type Rules map[string]string

// Router routes requests to shard indices. Immutable after New.
type Router struct {
	shardCount int
	rules      Rules
	all        []int
}

// New validates rules against reg and returns a router over shardCount
// shards.
//
// Every partitioned type must have a rule, every rule must name a
// partitioned type, and the named field must be an int key column of that
// type. Replicated types must not have a rule.
func New(reg *schema.Registry, shardCount int, rules Rules) (*Router, error) {
	if shardCount <= 0 {
		return nil, storeerr.Config("shard count must be positive, got %d", shardCount)
	}

	for _, t := range reg.Types() {
		field, ok := rules[t.Name]
		if t.Replicated {
			if ok {
				return nil, storeerr.Config("replicated type %q must not have a shard-key rule", t.Name)
			}
			continue
		}
		if !ok {
			return nil, storeerr.MissingShardKey(t.Name)
		}
		col, found := t.Column(field)
		if !found || !col.Key || col.Type != schema.Int {
			return nil, storeerr.Config("shard-key field %q of %q must be an int key column", field, t.Name)
		}
	}
	for name := range rules {
		if _, err := reg.Lookup(name); err != nil {
			return nil, storeerr.Config("shard-key rule names unregistered type %q", name)
		}
	}

	all := make([]int, shardCount)
	for i := range all {
		all[i] = i
	}

	cp := make(Rules, len(rules))
	for k, v := range rules {
		cp[k] = v
	}
	return &Router{shardCount: shardCount, rules: cp, all: all}, nil
}

// ShardCount returns the number of shards.
func (r *Router) ShardCount() int {
	return r.shardCount
}

// All returns every shard index, leader first.
func (r *Router) All() []int {
	return slices.Clone(r.all)
}

// Rule returns the shard-key field for typ.
func (r *Router) Rule(typ string) (string, bool) {
	field, ok := r.rules[typ]
	return field, ok
}

// Route returns the shards serving a request for t with payload p.
// Replicated types yield every shard with the leader first; partitioned
// types yield exactly one.
func (r *Router) Route(t schema.ObjectType, p payload.Object) ([]int, error) {
	if t.Replicated {
		return r.All(), nil
	}
	key, err := r.ShardKey(t, p)
	if err != nil {
		return nil, err
	}
	return []int{r.Partition(key)}, nil
}

// ShardKey extracts the shard key of a partitioned request. A type with no
// rule is a configuration error, never a silent default.
func (r *Router) ShardKey(t schema.ObjectType, p payload.Object) (int64, error) {
	field, ok := r.rules[t.Name]
	if !ok {
		return 0, storeerr.MissingShardKey(t.Name)
	}
	key, ok := p.Int(field)
	if !ok {
		return 0, storeerr.InvalidPayload(t.Name, "shard-key field %q missing or not an integer", field)
	}
	return key, nil
}

// Partition maps a shard key to a shard index.
func (r *Router) Partition(key int64) int {
	return Partition(key, r.shardCount)
}

// Partition maps key onto one of n shards.
func Partition(key int64, n int) int {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(key))
	return int(xxhash.Sum64(buf[:]) % uint64(n))
}
