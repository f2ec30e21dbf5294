package profile

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecords() []Record {
	return []Record{
		{Operation: "find_or_create", Type: "redshift", Shard: 0, Elapsed: 1500 * time.Microsecond, Label: "job", Timestamp: fixedNow},
		{Operation: "store", Type: "ScalarModel", Shard: 7, Elapsed: 2 * time.Second, Label: "job", Timestamp: fixedNow.Add(time.Second)},
	}
}

func TestSQLiteSink_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "profile.db")

	sink, err := OpenSQLite(ctx, path, time.Second)
	require.NoError(t, err)
	require.NoError(t, sink.Write(ctx, sampleRecords()))
	require.NoError(t, sink.Close())

	// Reopening keeps earlier records
	sink, err = OpenSQLite(ctx, path, time.Second)
	require.NoError(t, err)
	defer sink.Close()

	got, err := sink.Records(ctx)
	require.NoError(t, err)
	assert.Equal(t, sampleRecords(), got)
}

func TestRedisSink_RoundTrip(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	sink := NewRedisSink(redis.NewClient(&redis.Options{Addr: mr.Addr()}), RedisOptions{})
	defer sink.Close()

	require.NoError(t, sink.Write(ctx, sampleRecords()))

	got, err := sink.Records(ctx)
	require.NoError(t, err)
	assert.Equal(t, sampleRecords(), got)

	entries, err := mr.Stream(DefaultStream)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestOpenSink_SelectsByTarget(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	sink, err := OpenSink(ctx, "redis://"+mr.Addr()+"/0", time.Second)
	require.NoError(t, err)
	_, ok := sink.(*RedisSink)
	assert.True(t, ok)
	require.NoError(t, sink.Close())

	sink, err = OpenSink(ctx, filepath.Join(t.TempDir(), "p.db"), time.Second)
	require.NoError(t, err)
	_, ok = sink.(*SQLiteSink)
	assert.True(t, ok)
	require.NoError(t, sink.Close())
}

func TestOpenRedis_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := OpenRedis(context.Background(), "redis://"+addr, RedisOptions{})
	assert.Error(t, err)
}

func TestAgent_WithRedisSink(t *testing.T) {
	mr := miniredis.RunT(t)
	sink := NewRedisSink(redis.NewClient(&redis.Options{Addr: mr.Addr()}), RedisOptions{Stream: "custom"})
	agent := NewAgent(sink, Options{Label: "redis-job"})

	agent.Record(Record{Operation: "validate", Shard: 2})
	require.NoError(t, agent.Close())

	entries, err := mr.Stream("custom")
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
