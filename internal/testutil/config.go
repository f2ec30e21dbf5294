package testutil

import (
	"testing"
	"time"

	"github.com/roach88/shardstore/internal/config"
)

// Config returns the default pipeline configuration pointed at a fresh
// temp dir, with short timeouts and the given shard count.
func Config(t *testing.T, shards int) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Datastore = t.TempDir()
	cfg.Shards = shards
	cfg.Timeout = config.Duration(200 * time.Millisecond)
	cfg.Retry = config.Retry{
		MaxAttempts:     5,
		InitialInterval: config.Duration(time.Millisecond),
		MaxInterval:     config.Duration(10 * time.Millisecond),
	}
	cfg.JobName = t.Name()
	return cfg
}
