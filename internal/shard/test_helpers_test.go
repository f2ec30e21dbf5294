package shard

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/shardstore/internal/factory"
	"github.com/roach88/shardstore/internal/payload"
	"github.com/roach88/shardstore/internal/schema"
)

var testNow = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

// testFactories builds the factory set for the pipeline's default layout.
func testFactories(t *testing.T) factory.Set {
	t.Helper()
	reg, err := schema.Build(
		[]string{"version", "tolerance", "redshift", "wavenumber"},
		[]string{"ScalarModel", "ScalarModelValue"},
	)
	require.NoError(t, err)
	set, err := factory.NewSet(reg)
	require.NoError(t, err)
	return set
}

func testOptions(index, count int) Options {
	return Options{
		Index:       index,
		ShardCount:  count,
		BusyTimeout: 50 * time.Millisecond,
		Retry: RetryPolicy{
			MaxAttempts:     3,
			InitialInterval: time.Millisecond,
			MaxInterval:     5 * time.Millisecond,
		},
		Now: func() time.Time { return testNow },
	}
}

// createTestShard opens a fresh shard in a temp dir.
func createTestShard(t *testing.T) *Shard {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shard-00.db")
	s, err := Open(context.Background(), path, testFactories(t), testOptions(0, 4))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func request(p payload.Object) factory.Request {
	return factory.Request{Payload: p, Generation: "gen-a", Now: testNow}
}

func tol(v float64) payload.Object {
	return payload.New(payload.P("tol", payload.Float(v)))
}
