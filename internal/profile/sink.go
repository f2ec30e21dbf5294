package profile

import (
	"context"
	"strings"
	"time"
)

// OpenSink opens the sink named by target: a redis:// or rediss:// URL
// selects the Redis stream sink, anything else is a SQLite file path.
func OpenSink(ctx context.Context, target string, timeout time.Duration) (Sink, error) {
	if strings.HasPrefix(target, "redis://") || strings.HasPrefix(target, "rediss://") {
		return OpenRedis(ctx, target, RedisOptions{})
	}
	return OpenSQLite(ctx, target, timeout)
}
