package pool

import (
	"cmp"
	"context"
	"iter"

	"github.com/roach88/shardstore/internal/factory"
	"github.com/roach88/shardstore/internal/object"
	"github.com/roach88/shardstore/internal/payload"
	"github.com/roach88/shardstore/internal/router"
	"github.com/roach88/shardstore/internal/schema"
)

// ReadMany lazily yields objects of type typ in natural sort order.
//
// With filter.ShardKey set, the read runs on the one shard the key routes
// to, for replicated types too, so reference filters see that shard's
// partitioned rows. Otherwise replicated types are read from the leader and
// partitioned types from every shard merged by sort key. Each range re-runs
// the underlying queries, so the sequence is restartable.
func (p *Pool) ReadMany(ctx context.Context, typ string, filter factory.Filter) iter.Seq2[*object.Object, error] {
	desc, err := p.reg.Lookup(typ)
	if err != nil {
		return func(yield func(*object.Object, error) bool) { yield(nil, err) }
	}

	if filter.ShardKey != nil {
		return p.shards[p.router.Partition(*filter.ShardKey)].Read(ctx, typ, filter)
	}
	if desc.Replicated {
		return p.shards[router.Leader].Read(ctx, typ, filter)
	}

	sources := make([]iter.Seq2[*object.Object, error], len(p.shards))
	for i, s := range p.shards {
		sources[i] = s.Read(ctx, typ, filter)
	}
	return merge(desc, sources)
}

// Redshifts yields the redshifts that carry values for the given model,
// ordered by ascending z.
func (p *Pool) Redshifts(ctx context.Context, modelSerial, kSerial int64) iter.Seq2[*object.Object, error] {
	return p.ReadMany(ctx, string(schema.TagRedshift), factory.RedshiftsForModel(modelSerial, kSerial))
}

// merge interleaves already-sorted per-shard sequences into one sorted
// sequence. Ties on the sort key break by serial, then shard.
func merge(desc schema.ObjectType, sources []iter.Seq2[*object.Object, error]) iter.Seq2[*object.Object, error] {
	order := desc.OrderBy()
	return func(yield func(*object.Object, error) bool) {
		type head struct {
			obj  *object.Object
			next func() (*object.Object, error, bool)
			stop func()
		}

		heads := make([]*head, 0, len(sources))
		defer func() {
			for _, h := range heads {
				h.stop()
			}
		}()

		for _, src := range sources {
			next, stop := iter.Pull2(src)
			h := &head{next: next, stop: stop}
			heads = append(heads, h)

			obj, err, ok := next()
			if err != nil {
				yield(nil, err)
				return
			}
			if ok {
				h.obj = obj
			}
		}

		for {
			var best *head
			for _, h := range heads {
				if h.obj == nil {
					continue
				}
				if best == nil || less(order, h.obj, best.obj) {
					best = h
				}
			}
			if best == nil {
				return
			}

			if !yield(best.obj, nil) {
				return
			}

			obj, err, ok := best.next()
			if err != nil {
				yield(nil, err)
				return
			}
			best.obj = nil
			if ok {
				best.obj = obj
			}
		}
	}
}

func less(order string, a, b *object.Object) bool {
	if order != "serial" {
		if c := compareValues(a.Payload[order], b.Payload[order]); c != 0 {
			return c < 0
		}
	}
	if c := cmp.Compare(a.StoreID, b.StoreID); c != 0 {
		return c < 0
	}
	return a.Shard < b.Shard
}

// compareValues orders values of one column. NULL sorts first, matching
// SQLite's ORDER BY ... ASC.
func compareValues(a, b payload.Value) int {
	switch x := a.(type) {
	case payload.Float:
		if y, ok := b.(payload.Float); ok {
			return cmp.Compare(float64(x), float64(y))
		}
	case payload.Int:
		if y, ok := b.(payload.Int); ok {
			return cmp.Compare(int64(x), int64(y))
		}
	case payload.String:
		if y, ok := b.(payload.String); ok {
			return cmp.Compare(string(x), string(y))
		}
	case payload.Bool:
		if y, ok := b.(payload.Bool); ok {
			return cmp.Compare(boolRank(bool(x)), boolRank(bool(y)))
		}
	}
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return 0
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}
