package pool

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/shardstore/internal/factory"
	"github.com/roach88/shardstore/internal/object"
	"github.com/roach88/shardstore/internal/payload"
	"github.com/roach88/shardstore/internal/router"
	"github.com/roach88/shardstore/internal/schema"
	"github.com/roach88/shardstore/internal/storeerr"
)

// Get finds or creates the object of type typ whose key fields match p.
//
// Replicated types settle on the leader first; the leader's serial and
// stored payload are then propagated to every follower concurrently. The
// future reports the leader's provenance. Partitioned types run on the one
// shard their shard key routes to.
func (p *Pool) Get(ctx context.Context, typ string, pl payload.Object) *Future[*object.Object] {
	desc, err := p.reg.Lookup(typ)
	if err != nil {
		return failed[*object.Object](err)
	}
	return start(p, ctx, func(ctx context.Context) (*object.Object, error) {
		if desc.Replicated {
			return p.getReplicated(ctx, desc, pl)
		}
		return p.getPartitioned(ctx, desc, pl)
	})
}

// GetMany issues one Get per payload. The futures are returned in payload
// order and resolve independently.
func (p *Pool) GetMany(ctx context.Context, typ string, payloads []payload.Object) []*Future[*object.Object] {
	futures := make([]*Future[*object.Object], len(payloads))
	for i, pl := range payloads {
		futures[i] = p.Get(ctx, typ, pl)
	}
	return futures
}

func (p *Pool) request(desc schema.ObjectType, pl payload.Object) factory.Request {
	req := factory.Request{
		Payload:    pl,
		Generation: p.generation,
		Now:        p.now(),
	}
	if desc.Versioned && p.versionSerial != 0 {
		v := p.versionSerial
		req.VersionSerial = &v
	}
	return req
}

func (p *Pool) getReplicated(ctx context.Context, desc schema.ObjectType, pl payload.Object) (*object.Object, error) {
	req := p.request(desc, pl)

	leader := p.shards[router.Leader]
	obj, err := timed(p, "find_or_create", desc.Name, router.Leader, func() (*object.Object, error) {
		return leader.FindOrCreate(ctx, desc.Name, req)
	})
	if err != nil {
		return nil, err
	}

	// Followers receive the leader's stored key values and serial, so every
	// shard holds byte-identical keys under the same identifier.
	follow := req
	follow.Payload = obj.Payload
	follow.ExplicitID = obj.StoreID
	if obj.CreatedAt != nil {
		follow.Now = *obj.CreatedAt
	}

	err = p.followers(ctx, func(ctx context.Context, i int) error {
		got, err := timed(p, "find_or_create", desc.Name, i, func() (*object.Object, error) {
			return p.shards[i].FindOrCreate(ctx, desc.Name, follow)
		})
		if err != nil {
			return fmt.Errorf("replicate %s#%d to shard %d: %w", desc.Name, obj.StoreID, i, err)
		}
		if got.StoreID != obj.StoreID {
			return storeerr.Consistency(desc.Name, i, "shard holds serial %d, leader holds %d", got.StoreID, obj.StoreID)
		}
		if !sameKeys(desc, got.Payload, obj.Payload) {
			return storeerr.Consistency(desc.Name, i, "serial %d holds different key values than the leader", obj.StoreID)
		}
		return nil
	})
	if err != nil {
		p.logger.Error("replicated find-or-create failed",
			"type", desc.Name,
			"serial", obj.StoreID,
			"error", err,
		)
		return nil, err
	}

	p.logger.Debug("replicated object settled",
		"type", desc.Name,
		"serial", obj.StoreID,
		"provenance", obj.Provenance.String(),
	)
	return obj, nil
}

// sameKeys reports whether a and b hold identical key values for desc.
func sameKeys(desc schema.ObjectType, a, b payload.Object) bool {
	for _, c := range desc.KeyColumns() {
		if !payload.Equal(a[c.Name], b[c.Name]) {
			return false
		}
	}
	return true
}

// followers runs fn for every non-leader shard concurrently and returns
// the first failure.
func (p *Pool) followers(ctx context.Context, fn func(ctx context.Context, i int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := range p.shards {
		if i == router.Leader {
			continue
		}
		g.Go(func() error { return fn(gctx, i) })
	}
	return g.Wait()
}

func (p *Pool) getPartitioned(ctx context.Context, desc schema.ObjectType, pl payload.Object) (*object.Object, error) {
	idx, err := p.route(desc, pl)
	if err != nil {
		return nil, err
	}
	return timed(p, "find_or_create", desc.Name, idx, func() (*object.Object, error) {
		return p.shards[idx].FindOrCreate(ctx, desc.Name, p.request(desc, pl))
	})
}

// route returns the single shard of a partitioned request.
func (p *Pool) route(desc schema.ObjectType, pl payload.Object) (int, error) {
	shards, err := p.router.Route(desc, pl)
	if err != nil {
		return 0, err
	}
	return shards[0], nil
}

// Store writes obj's computed data columns into its existing row, on
// every shard for replicated types.
func (p *Pool) Store(ctx context.Context, obj *object.Object) *Future[*object.Object] {
	return p.update(ctx, "store", obj)
}

// Validate sets obj's ValidationMark, on every shard for replicated types.
// Validated rows survive the prune pass.
func (p *Pool) Validate(ctx context.Context, obj *object.Object) *Future[*object.Object] {
	return p.update(ctx, "validate", obj)
}

func (p *Pool) update(ctx context.Context, op string, obj *object.Object) *Future[*object.Object] {
	if obj == nil {
		return failed[*object.Object](storeerr.InvalidPayload("", "%s: nil object", op))
	}
	desc, err := p.reg.Lookup(obj.Type)
	if err != nil {
		return failed[*object.Object](err)
	}
	target := obj.Clone()

	return start(p, ctx, func(ctx context.Context) (*object.Object, error) {
		if !desc.Replicated {
			idx, err := p.route(desc, target.Payload)
			if err != nil {
				return nil, err
			}
			return timed(p, op, desc.Name, idx, func() (*object.Object, error) {
				return p.apply(ctx, op, idx, target)
			})
		}

		out, err := timed(p, op, desc.Name, router.Leader, func() (*object.Object, error) {
			return p.apply(ctx, op, router.Leader, target)
		})
		if err != nil {
			return nil, err
		}
		err = p.followers(ctx, func(ctx context.Context, i int) error {
			_, err := timed(p, op, desc.Name, i, func() (*object.Object, error) {
				return p.apply(ctx, op, i, target)
			})
			if storeerr.IsNotFound(err) {
				return storeerr.Consistency(desc.Name, i, "%s: serial %d exists on the leader only", op, target.StoreID)
			}
			return err
		})
		if err != nil {
			return nil, err
		}
		return out, nil
	})
}

func (p *Pool) apply(ctx context.Context, op string, i int, obj *object.Object) (*object.Object, error) {
	if op == "validate" {
		return p.shards[i].Validate(ctx, obj)
	}
	return p.shards[i].Store(ctx, obj)
}
