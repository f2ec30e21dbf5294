// Package profile records timing of store operations, best effort.
//
// Producers call Agent.Record from any goroutine; a single consumer drains
// the queue in batches into a Sink. A full queue drops the record and bumps
// a counter. Nothing in this package returns an error to the caller of a
// store operation.
package profile

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Record is one timed shard operation.
type Record struct {
	Operation string        `json:"operation"`
	Type      string        `json:"type,omitempty"`
	Shard     int           `json:"shard"`
	Elapsed   time.Duration `json:"elapsed"`
	Label     string        `json:"label"`
	Timestamp time.Time     `json:"timestamp"`
}

// Sink persists batches of records.
type Sink interface {
	Write(ctx context.Context, batch []Record) error
	Close() error
}

// Options configures an Agent.
type Options struct {
	// Label tags every record, typically job name, datastore and shard count.
	Label string

	// QueueSize is the ingestion buffer. Records beyond it are dropped.
	QueueSize int

	// BatchSize is the most records written to the sink at once.
	BatchSize int

	// FlushInterval bounds how long a partial batch waits.
	FlushInterval time.Duration

	// WriteTimeout bounds a single sink write.
	WriteTimeout time.Duration

	Now    func() time.Time
	Logger *slog.Logger
}

func (o *Options) setDefaults() {
	if o.QueueSize <= 0 {
		o.QueueSize = 4096
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 256
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Agent is a many-producer, single-consumer profiling queue.
// A nil *Agent is valid and discards everything.
type Agent struct {
	sink   Sink
	opts   Options
	logger *slog.Logger

	mu     sync.RWMutex // guards closed against send-on-closed
	closed bool
	queue  chan Record
	done   chan struct{}

	dropped atomic.Int64
	written atomic.Int64
	failed  atomic.Int64
}

// NewAgent starts an agent draining into sink.
func NewAgent(sink Sink, opts Options) *Agent {
	opts.setDefaults()
	a := &Agent{
		sink:   sink,
		opts:   opts,
		logger: opts.Logger.With("component", "profile"),
		queue:  make(chan Record, opts.QueueSize),
		done:   make(chan struct{}),
	}
	go a.run()
	return a
}

// Record enqueues r without blocking. Label and Timestamp are filled in
// when empty. Records arriving after Close, or while the queue is full,
// are dropped.
func (a *Agent) Record(r Record) {
	if a == nil {
		return
	}
	if r.Label == "" {
		r.Label = a.opts.Label
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = a.opts.Now()
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.dropped.Add(1)
		return
	}
	select {
	case a.queue <- r:
	default:
		a.dropped.Add(1)
	}
}

// Time records the elapsed time since start for op on shard.
func (a *Agent) Time(op, typ string, shard int, start time.Time) {
	if a == nil {
		return
	}
	a.Record(Record{Operation: op, Type: typ, Shard: shard, Elapsed: a.opts.Now().Sub(start)})
}

// Stats is a snapshot of the agent's counters.
type Stats struct {
	Written int64 `json:"written"`
	Dropped int64 `json:"dropped"`
	Failed  int64 `json:"failed"`
}

// Stats returns the current counters.
func (a *Agent) Stats() Stats {
	if a == nil {
		return Stats{}
	}
	return Stats{
		Written: a.written.Load(),
		Dropped: a.dropped.Load(),
		Failed:  a.failed.Load(),
	}
}

// Close stops accepting records, flushes what is queued and closes the
// sink. Safe to call more than once.
func (a *Agent) Close() error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		<-a.done
		return nil
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	<-a.done
	stats := a.Stats()
	a.logger.Debug("profile agent closed",
		"written", stats.Written,
		"dropped", stats.Dropped,
		"failed", stats.Failed,
	)
	return a.sink.Close()
}

func (a *Agent) run() {
	defer close(a.done)

	ticker := time.NewTicker(a.opts.FlushInterval)
	defer ticker.Stop()

	batch := make([]Record, 0, a.opts.BatchSize)
	for {
		select {
		case r, ok := <-a.queue:
			if !ok {
				a.flush(batch)
				return
			}
			batch = append(batch, r)
			if len(batch) >= a.opts.BatchSize {
				a.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				a.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

// flush writes batch to the sink. Failures are logged and counted only.
func (a *Agent) flush(batch []Record) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.opts.WriteTimeout)
	defer cancel()

	if err := a.sink.Write(ctx, batch); err != nil {
		a.failed.Add(int64(len(batch)))
		a.logger.Warn("profile sink write failed", "records", len(batch), "error", err)
		return
	}
	a.written.Add(int64(len(batch)))
}
