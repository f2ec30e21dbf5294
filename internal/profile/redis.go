package profile

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultStream is the Redis stream records are appended to.
const DefaultStream = "shardstore:profile"

// RedisSink appends records to a Redis stream, one entry per record.
type RedisSink struct {
	client *redis.Client
	stream string
	maxLen int64
}

// RedisOptions configures a RedisSink.
type RedisOptions struct {
	// Stream is the stream key. Defaults to DefaultStream.
	Stream string

	// MaxLen caps the stream length (approximate trimming). Zero keeps
	// everything.
	MaxLen int64
}

// OpenRedis connects to the Redis server at url (redis://host:port/db) and
// checks it is reachable.
func OpenRedis(ctx context.Context, url string, opts RedisOptions) (*RedisSink, error) {
	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(redisOpts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisSink(client, opts), nil
}

// NewRedisSink wraps an existing client. The sink owns the client and
// closes it on Close.
func NewRedisSink(client *redis.Client, opts RedisOptions) *RedisSink {
	if opts.Stream == "" {
		opts.Stream = DefaultStream
	}
	return &RedisSink{client: client, stream: opts.Stream, maxLen: opts.MaxLen}
}

// Write implements Sink. The batch goes out in one pipeline.
func (s *RedisSink) Write(ctx context.Context, batch []Record) error {
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, r := range batch {
			args := &redis.XAddArgs{
				Stream: s.stream,
				Values: map[string]any{
					"operation":  r.Operation,
					"type":       r.Type,
					"shard":      strconv.Itoa(r.Shard),
					"elapsed_ns": strconv.FormatInt(r.Elapsed.Nanoseconds(), 10),
					"label":      r.Label,
					"timestamp":  r.Timestamp.UTC().Format(time.RFC3339Nano),
				},
			}
			if s.maxLen > 0 {
				args.MaxLen = s.maxLen
				args.Approx = true
			}
			pipe.XAdd(ctx, args)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("profile xadd: %w", err)
	}
	return nil
}

// Close implements Sink.
func (s *RedisSink) Close() error {
	return s.client.Close()
}

// recordFromStream decodes one stream entry.
func recordFromStream(msg redis.XMessage) (Record, error) {
	str := func(key string) string {
		v, _ := msg.Values[key].(string)
		return v
	}

	shard, err := strconv.Atoi(str("shard"))
	if err != nil {
		return Record{}, fmt.Errorf("entry %s: shard: %w", msg.ID, err)
	}
	elapsed, err := strconv.ParseInt(str("elapsed_ns"), 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("entry %s: elapsed: %w", msg.ID, err)
	}
	ts, err := time.Parse(time.RFC3339Nano, str("timestamp"))
	if err != nil {
		return Record{}, fmt.Errorf("entry %s: timestamp: %w", msg.ID, err)
	}
	return Record{
		Operation: str("operation"),
		Type:      str("type"),
		Shard:     shard,
		Elapsed:   time.Duration(elapsed),
		Label:     str("label"),
		Timestamp: ts,
	}, nil
}

// Records reads back every entry of the stream in order.
func (s *RedisSink) Records(ctx context.Context) ([]Record, error) {
	msgs, err := s.client.XRange(ctx, s.stream, "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("profile xrange: %w", err)
	}
	out := make([]Record, 0, len(msgs))
	for _, msg := range msgs {
		r, err := recordFromStream(msg)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
