package profile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// memorySink keeps every written record.
type memorySink struct {
	mu      sync.Mutex
	records []Record
	closed  bool
	gate    chan struct{} // when non-nil, Write waits on it
	fail    error
}

func (s *memorySink) Write(ctx context.Context, batch []Record) error {
	if s.gate != nil {
		<-s.gate
	}
	if s.fail != nil {
		return s.fail
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, batch...)
	return nil
}

func (s *memorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memorySink) snapshot() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.records...)
}

var fixedNow = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func TestAgent_RecordsReachSink(t *testing.T) {
	sink := &memorySink{}
	agent := NewAgent(sink, Options{
		Label:     "job-1",
		BatchSize: 2,
		Now:       func() time.Time { return fixedNow },
	})

	agent.Record(Record{Operation: "find_or_create", Type: "redshift", Shard: 3, Elapsed: time.Millisecond})
	agent.Record(Record{Operation: "store", Shard: 1, Label: "override"})
	agent.Record(Record{Operation: "validate", Shard: 0})
	require.NoError(t, agent.Close())

	got := sink.snapshot()
	require.Len(t, got, 3)
	assert.Equal(t, "find_or_create", got[0].Operation)
	assert.Equal(t, "redshift", got[0].Type)
	assert.Equal(t, 3, got[0].Shard)
	assert.Equal(t, "job-1", got[0].Label)
	assert.Equal(t, fixedNow, got[0].Timestamp)
	assert.Equal(t, "override", got[1].Label)
	assert.True(t, sink.closed)
	assert.Equal(t, Stats{Written: 3}, agent.Stats())
}

func TestAgent_FullQueueDrops(t *testing.T) {
	sink := &memorySink{gate: make(chan struct{})}
	agent := NewAgent(sink, Options{QueueSize: 2, BatchSize: 1})

	// The consumer takes one record and blocks in Write; two more fill the
	// queue and everything after is dropped.
	for i := 0; i < 50; i++ {
		agent.Record(Record{Operation: "find_or_create"})
	}
	assert.GreaterOrEqual(t, agent.Stats().Dropped, int64(47))

	close(sink.gate)
	require.NoError(t, agent.Close())

	stats := agent.Stats()
	assert.Equal(t, int64(50), stats.Written+stats.Dropped)
}

func TestAgent_SinkFailureIsCountedNotReturned(t *testing.T) {
	sink := &memorySink{fail: errors.New("disk full")}
	agent := NewAgent(sink, Options{BatchSize: 10})

	agent.Record(Record{Operation: "store"})
	agent.Record(Record{Operation: "store"})
	require.NoError(t, agent.Close())

	assert.Equal(t, Stats{Failed: 2}, agent.Stats())
}

func TestAgent_FlushInterval(t *testing.T) {
	sink := &memorySink{}
	agent := NewAgent(sink, Options{BatchSize: 100, FlushInterval: 5 * time.Millisecond})
	defer agent.Close()

	agent.Record(Record{Operation: "prune"})
	assert.Eventually(t, func() bool {
		return len(sink.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestAgent_RecordAfterCloseDrops(t *testing.T) {
	sink := &memorySink{}
	agent := NewAgent(sink, Options{})
	require.NoError(t, agent.Close())
	require.NoError(t, agent.Close())

	assert.NotPanics(t, func() { agent.Record(Record{Operation: "late"}) })
	assert.Equal(t, int64(1), agent.Stats().Dropped)
}

func TestAgent_ConcurrentProducers(t *testing.T) {
	sink := &memorySink{}
	agent := NewAgent(sink, Options{QueueSize: 10000, BatchSize: 64})

	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func(shard int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				agent.Record(Record{Operation: "find_or_create", Shard: shard})
			}
		}(p)
	}
	wg.Wait()
	require.NoError(t, agent.Close())

	assert.Len(t, sink.snapshot(), 800)
}

func TestAgent_NilIsNoop(t *testing.T) {
	var agent *Agent
	assert.NotPanics(t, func() {
		agent.Record(Record{Operation: "x"})
		agent.Time("x", "y", 0, time.Now())
	})
	assert.Equal(t, Stats{}, agent.Stats())
	assert.NoError(t, agent.Close())
}

func TestAgent_Time(t *testing.T) {
	sink := &memorySink{}
	now := fixedNow
	agent := NewAgent(sink, Options{Now: func() time.Time { return now }})

	start := now.Add(-250 * time.Millisecond)
	agent.Time("store", "ScalarModel", 4, start)
	require.NoError(t, agent.Close())

	got := sink.snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, 250*time.Millisecond, got[0].Elapsed)
	assert.Equal(t, "ScalarModel", got[0].Type)
	assert.Equal(t, 4, got[0].Shard)
}
