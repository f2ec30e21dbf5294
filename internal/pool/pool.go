package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/roach88/shardstore/internal/config"
	"github.com/roach88/shardstore/internal/factory"
	"github.com/roach88/shardstore/internal/payload"
	"github.com/roach88/shardstore/internal/profile"
	"github.com/roach88/shardstore/internal/router"
	"github.com/roach88/shardstore/internal/schema"
	"github.com/roach88/shardstore/internal/shard"
	"github.com/roach88/shardstore/internal/storeerr"
)

// ErrClosed is returned by requests issued after Close.
var ErrClosed = errors.New("pool closed")

type options struct {
	logger    *slog.Logger
	generator GenerationSource
	now       func() time.Time
	agent     *profile.Agent
	sink      profile.Sink
}

// Option configures Open.
type Option func(*options)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithGenerator sets the generation source. Defaults to UUIDv7Generator.
func WithGenerator(g GenerationSource) Option {
	return func(o *options) { o.generator = g }
}

// WithClock sets the wall clock used for timestamps. Defaults to time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithProfileAgent records into an agent the caller owns. The pool does not
// close it. Without this option the pool opens its own agent when the
// configuration names a profile target.
func WithProfileAgent(a *profile.Agent) Option {
	return func(o *options) { o.agent = a }
}

// WithProfileSink records into sink through an agent the pool owns and
// closes. It takes precedence over the configured profile target.
func WithProfileSink(sink profile.Sink) Option {
	return func(o *options) { o.sink = sink }
}

// Pool coordinates requests across every shard of a datastore.
type Pool struct {
	cfg        config.Config
	reg        *schema.Registry
	router     *router.Router
	shards     []*shard.Shard
	generation string

	// versionSerial is the serial of this process's version row, recorded
	// on every versioned insert. Zero when no registered type is versioned.
	versionSerial int64

	sem       *semaphore.Weighted
	agent     *profile.Agent
	ownsAgent bool
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.RWMutex // guards closed against inflight.Add
	closed   bool
	inflight sync.WaitGroup
}

// Open opens (creating if needed) every shard of the datastore described
// by cfg, prunes unvalidated rows left by earlier processes when
// configured, and settles the version row.
//
// A new datastore gets cfg.Shards shards. An existing one keeps the shard
// count recorded in its leader, whatever cfg.Shards says.
func Open(ctx context.Context, cfg config.Config, opts ...Option) (*Pool, error) {
	o := options{
		logger:    slog.Default(),
		generator: UUIDv7Generator{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if err := cfg.Check(); err != nil {
		return nil, err
	}
	reg, err := cfg.Registry()
	if err != nil {
		return nil, err
	}
	set, err := factory.NewSet(reg)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Datastore, 0o755); err != nil {
		return nil, fmt.Errorf("create datastore dir: %w", err)
	}

	p := &Pool{
		cfg:        cfg,
		reg:        reg,
		generation: o.generator.Generate(),
		sem:        semaphore.NewWeighted(int64(cfg.MaxInFlight)),
		agent:      o.agent,
		logger:     o.logger,
		now:        o.now,
	}

	if err := p.openShards(ctx, set); err != nil {
		return nil, err
	}

	if p.agent == nil && (o.sink != nil || cfg.Profile.Target != "") {
		sink := o.sink
		if sink == nil {
			sink, err = profile.OpenSink(ctx, cfg.Profile.Target, time.Duration(cfg.Timeout))
			if err != nil {
				p.closeShards()
				return nil, fmt.Errorf("open profile sink: %w", err)
			}
		}
		p.agent = profile.NewAgent(sink, profile.Options{
			Label:     cfg.ProfileLabel(p.now()),
			QueueSize: cfg.Profile.QueueSize,
			BatchSize: cfg.Profile.BatchSize,
			Now:       p.now,
			Logger:    p.logger,
		})
		p.ownsAgent = true
	}

	if cfg.PruneUnvalidated {
		if _, err := p.PruneUnvalidated(ctx); err != nil {
			p.Close()
			return nil, err
		}
	}

	if err := p.settleVersion(ctx); err != nil {
		p.Close()
		return nil, err
	}

	p.logger.Info("pool opened",
		"datastore", cfg.Datastore,
		"shards", len(p.shards),
		"generation", p.generation,
	)
	return p, nil
}

// openShards opens the leader first to learn the recorded shard count,
// then every follower concurrently.
func (p *Pool) openShards(ctx context.Context, set factory.Set) error {
	shardOpts := func(i, count int) shard.Options {
		return shard.Options{
			Index:       i,
			ShardCount:  count,
			BusyTimeout: time.Duration(p.cfg.Timeout),
			Retry:       p.cfg.RetryPolicy(),
			Now:         p.now,
			Logger:      p.logger,
		}
	}

	leader, err := shard.Open(ctx, p.cfg.ShardPath(router.Leader), set, shardOpts(router.Leader, p.cfg.Shards))
	if err != nil {
		return err
	}
	count := leader.ShardCount()
	if count != p.cfg.Shards {
		p.logger.Info("existing datastore keeps its shard count",
			"recorded", count,
			"requested", p.cfg.Shards,
		)
	}

	rt, err := router.New(p.reg, count, p.cfg.Rules())
	if err != nil {
		leader.Close()
		return err
	}
	p.router = rt

	p.shards = make([]*shard.Shard, count)
	p.shards[router.Leader] = leader

	g, gctx := errgroup.WithContext(ctx)
	for i := 1; i < count; i++ {
		g.Go(func() error {
			s, err := shard.Open(gctx, p.cfg.ShardPath(i), set, shardOpts(i, count))
			if err != nil {
				return err
			}
			p.shards[i] = s
			if s.ShardCount() != count {
				return storeerr.Config("shard %d records %d shards, leader records %d", i, s.ShardCount(), count)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		p.closeShards()
		return err
	}
	return nil
}

// settleVersion finds or creates the version row for this build when any
// registered type is versioned.
func (p *Pool) settleVersion(ctx context.Context) error {
	versioned := false
	for _, t := range p.reg.Types() {
		versioned = versioned || t.Versioned
	}
	if !versioned {
		return nil
	}

	desc, err := p.reg.Lookup(string(schema.TagVersion))
	if err != nil {
		return err
	}
	obj, err := p.getReplicated(ctx, desc, payload.New(
		payload.P("label", payload.String(p.cfg.VersionLabel)),
	))
	if err != nil {
		return fmt.Errorf("settle version %q: %w", p.cfg.VersionLabel, err)
	}
	p.versionSerial = obj.StoreID
	return nil
}

// With opens a pool, runs fn and closes the pool on every exit path,
// including a panic in fn. A Close error is returned when fn succeeded.
func With(ctx context.Context, cfg config.Config, fn func(*Pool) error, opts ...Option) (err error) {
	p, err := Open(ctx, cfg, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := p.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(p)
}

// Close waits for in-flight requests, flushes the profile agent when the
// pool owns it and closes every shard. Profile agent failures are logged,
// not returned. Safe to call more than once.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.inflight.Wait()

	if p.ownsAgent {
		if err := p.agent.Close(); err != nil {
			p.logger.Warn("close profile agent", "error", err)
		}
	}
	err := p.closeShards()
	p.logger.Debug("pool closed", "generation", p.generation)
	return err
}

func (p *Pool) closeShards() error {
	var errs []error
	for _, s := range p.shards {
		if s == nil {
			continue
		}
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Config returns the configuration the pool was opened with.
func (p *Pool) Config() config.Config {
	return p.cfg
}

// Generation returns this process's generation identifier.
func (p *Pool) Generation() string {
	return p.generation
}

// VersionSerial returns the serial of the version row, or zero.
func (p *Pool) VersionSerial() int64 {
	return p.versionSerial
}

// ShardCount returns the number of shards.
func (p *Pool) ShardCount() int {
	return len(p.shards)
}

// Registry returns the read-only schema registry.
func (p *Pool) Registry() *schema.Registry {
	return p.reg
}

// Router returns the request router.
func (p *Pool) Router() *router.Router {
	return p.router
}

// Shard returns shard i.
func (p *Pool) Shard(i int) *shard.Shard {
	return p.shards[i]
}

// ProfileStats returns the profile agent's counters.
func (p *Pool) ProfileStats() profile.Stats {
	return p.agent.Stats()
}

// start runs fn on its own goroutine under the in-flight bound and returns
// its future.
func start[T any](p *Pool, ctx context.Context, fn func(ctx context.Context) (T, error)) *Future[T] {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return failed[T](ErrClosed)
	}
	p.inflight.Add(1)
	p.mu.RUnlock()

	f := newFuture[T]()
	go func() {
		defer p.inflight.Done()

		if err := p.sem.Acquire(ctx, 1); err != nil {
			f.resolve(*new(T), err)
			return
		}
		defer p.sem.Release(1)

		val, err := fn(ctx)
		f.resolve(val, err)
	}()
	return f
}

// timed runs op on shard i and emits a profile record.
func timed[T any](p *Pool, op, typ string, i int, fn func() (T, error)) (T, error) {
	begin := p.now()
	val, err := fn()
	p.agent.Time(op, typ, i, begin)
	return val, err
}
