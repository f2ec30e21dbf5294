package shard

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/shardstore/internal/factory"
	"github.com/roach88/shardstore/internal/object"
	"github.com/roach88/shardstore/internal/storeerr"
)

// Options configures a shard.
type Options struct {
	// Index is the shard's position in the pool. Shard 0 is the leader.
	Index int

	// ShardCount is the number of shards to record when the datastore is
	// created. An existing datastore keeps the count it was created with.
	ShardCount int

	// BusyTimeout is how long SQLite waits on a locked database before
	// returning SQLITE_BUSY.
	BusyTimeout time.Duration

	// ReaderConns bounds the read-only connection pool.
	ReaderConns int

	// Retry controls how transient failures are retried.
	Retry RetryPolicy

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

func (o *Options) setDefaults() {
	if o.BusyTimeout <= 0 {
		o.BusyTimeout = 5 * time.Second
	}
	if o.ReaderConns <= 0 {
		o.ReaderConns = 4
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	o.Retry.setDefaults()
}

// Shard is one backing SQLite database hosting a table for every
// registered object type.
//
// Writes go through a single connection opened with BEGIN IMMEDIATE
// transactions, so find-or-create on a shard is serialized. Lazy reads use a
// separate read-only pool and never hold the writer.
type Shard struct {
	index      int
	path       string
	shardCount int
	writer     *sql.DB
	reader     *sql.DB
	factories  factory.Set
	opts       Options
	logger     *slog.Logger
}

// Open creates or opens the shard database at path, applies migrations and
// creates the tables of every factory in set.
//
// Open is idempotent: reopening an existing shard leaves its rows and its
// recorded shard count untouched.
func Open(ctx context.Context, path string, set factory.Set, opts Options) (*Shard, error) {
	opts.setDefaults()

	writer, err := sql.Open("sqlite3", writerDSN(path, opts.BusyTimeout))
	if err != nil {
		return nil, fmt.Errorf("open shard %d: %w", opts.Index, err)
	}
	// SQLite allows one writer; a single connection turns lock contention
	// into queueing inside database/sql.
	writer.SetMaxOpenConns(1)
	writer.SetMaxIdleConns(1)

	if err := writer.PingContext(ctx); err != nil {
		writer.Close()
		return nil, fmt.Errorf("connect shard %d: %w", opts.Index, err)
	}

	s := &Shard{
		index:     opts.Index,
		path:      path,
		writer:    writer,
		factories: set,
		opts:      opts,
		logger:    opts.Logger.With("shard", opts.Index),
	}

	if err := s.migrate(ctx); err != nil {
		writer.Close()
		return nil, fmt.Errorf("migrate shard %d: %w", opts.Index, err)
	}

	// The reader is opened after migration so the file and WAL exist.
	reader, err := sql.Open("sqlite3", readerDSN(path, opts.BusyTimeout))
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("open shard %d reader: %w", opts.Index, err)
	}
	reader.SetMaxOpenConns(opts.ReaderConns)
	s.reader = reader

	s.logger.Debug("shard opened", "path", path, "shard_count", s.shardCount)
	return s, nil
}

func writerDSN(path string, busy time.Duration) string {
	q := url.Values{}
	q.Set("_journal_mode", "WAL")
	q.Set("_synchronous", "NORMAL")
	q.Set("_busy_timeout", strconv.FormatInt(busy.Milliseconds(), 10))
	q.Set("_foreign_keys", "on")
	q.Set("_txlock", "immediate")
	return "file:" + path + "?" + q.Encode()
}

func readerDSN(path string, busy time.Duration) string {
	q := url.Values{}
	q.Set("mode", "ro")
	q.Set("_busy_timeout", strconv.FormatInt(busy.Milliseconds(), 10))
	q.Set("_query_only", "true")
	return "file:" + path + "?" + q.Encode()
}

// Index returns the shard's position in the pool.
func (s *Shard) Index() int {
	return s.index
}

// Path returns the database file path.
func (s *Shard) Path() string {
	return s.path
}

// ShardCount returns the shard count recorded when the datastore was created.
func (s *Shard) ShardCount() int {
	return s.shardCount
}

// Close closes both connection pools. Safe to call more than once.
func (s *Shard) Close() error {
	var firstErr error
	if s.reader != nil {
		if err := s.reader.Close(); err != nil {
			firstErr = err
		}
		s.reader = nil
	}
	if s.writer != nil {
		if err := s.writer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.writer = nil
	}
	if firstErr != nil {
		return fmt.Errorf("close shard %d: %w", s.index, firstErr)
	}
	return nil
}

// Run executes fn inside a fresh write transaction. The transaction commits
// when fn returns nil and rolls back otherwise; the connection is released
// on every path.
//
// Transient failures (SQLITE_BUSY, SQLITE_LOCKED, a bad connection) roll back
// and re-run fn with exponential backoff. fn must therefore not have side
// effects outside the transaction. When attempts run out the last failure
// is returned as a store-unavailable error.
func (s *Shard) Run(ctx context.Context, op string, fn func(ctx context.Context, q factory.Querier) error) error {
	return s.retry(ctx, op, func() error {
		tx, err := s.writer.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback() // no-op after commit

		if err := fn(ctx, tx); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		return nil
	})
}

// FindOrCreate runs the type's find-or-create in its own transaction.
func (s *Shard) FindOrCreate(ctx context.Context, typ string, req factory.Request) (*object.Object, error) {
	f, err := s.factories.Get(typ)
	if err != nil {
		return nil, err
	}
	req.Shard = s.index

	var obj *object.Object
	err = s.Run(ctx, "find_or_create", func(ctx context.Context, q factory.Querier) error {
		var err error
		obj, err = f.FindOrCreate(ctx, q, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return obj, nil
}

// Store writes obj's data columns in its own transaction.
func (s *Shard) Store(ctx context.Context, obj *object.Object) (*object.Object, error) {
	return s.update(ctx, "store", obj, factory.Factory.Store)
}

// Validate sets obj's ValidationMark in its own transaction.
func (s *Shard) Validate(ctx context.Context, obj *object.Object) (*object.Object, error) {
	return s.update(ctx, "validate", obj, factory.Factory.Validate)
}

type updateFunc func(factory.Factory, context.Context, factory.Querier, *object.Object) (*object.Object, error)

func (s *Shard) update(ctx context.Context, op string, obj *object.Object, fn updateFunc) (*object.Object, error) {
	f, err := s.factories.Get(obj.Type)
	if err != nil {
		return nil, err
	}
	target := obj.Clone()
	target.Shard = s.index

	var out *object.Object
	err = s.Run(ctx, op, func(ctx context.Context, q factory.Querier) error {
		var err error
		out, err = fn(f, ctx, q, target)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get reads one row by serial from the read-only pool.
func (s *Shard) Get(ctx context.Context, typ string, serial int64) (*object.Object, error) {
	f, err := s.factories.Get(typ)
	if err != nil {
		return nil, err
	}
	obj, err := f.Get(ctx, s.reader, serial)
	if err != nil {
		if storeerr.IsNotFound(err) {
			return nil, storeerr.NotFound(typ, s.index, serial)
		}
		return nil, err
	}
	obj.Shard = s.index
	return obj, nil
}

// Read lazily yields rows of typ from the read-only pool in natural sort
// order. Ranging over the sequence again re-runs the query.
func (s *Shard) Read(ctx context.Context, typ string, filter factory.Filter) iter.Seq2[*object.Object, error] {
	f, err := s.factories.Get(typ)
	if err != nil {
		return func(yield func(*object.Object, error) bool) {
			yield(nil, err)
		}
	}
	return func(yield func(*object.Object, error) bool) {
		for obj, err := range f.ReadMany(ctx, s.reader, filter) {
			if obj != nil {
				obj.Shard = s.index
			}
			if !yield(obj, err) {
				return
			}
		}
	}
}

// PruneUnvalidated deletes, in one transaction, every unvalidated row left
// by a generation other than the given one. It returns the number of rows
// removed per type; types with nothing to prune are omitted.
func (s *Shard) PruneUnvalidated(ctx context.Context, generation string) (map[string]int64, error) {
	var removed map[string]int64
	err := s.Run(ctx, "prune", func(ctx context.Context, q factory.Querier) error {
		// Reset on retry so counts never double up.
		removed = make(map[string]int64)
		for name, f := range s.factories {
			n, err := f.Prune(ctx, q, generation)
			if err != nil {
				return err
			}
			if n > 0 {
				removed[name] = n
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for typ, n := range removed {
		s.logger.Info("pruned unvalidated rows", "type", typ, "rows", n)
	}
	return removed, nil
}
