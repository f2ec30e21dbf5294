package shard

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/roach88/shardstore/internal/factory"
	"github.com/roach88/shardstore/internal/storeerr"
)

// Schema version tracking:
// 0 - empty database
// 1 - datastore_meta table
const currentSchemaVersion = 1

// Meta keys recorded in datastore_meta.
const (
	MetaShardCount = "shard_count"
	MetaShardIndex = "shard_index"
	MetaCreatedAt  = "created_at"
)

// migrate brings the shard to the current schema version, records shard
// metadata and creates every object table. All of it runs in one
// transaction.
func (s *Shard) migrate(ctx context.Context) error {
	return s.Run(ctx, "migrate", func(ctx context.Context, q factory.Querier) error {
		var version int
		if err := q.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
			return fmt.Errorf("get user_version: %w", err)
		}

		if version < 1 {
			if err := migrateToV1(ctx, q); err != nil {
				return err
			}
		}

		if _, err := q.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}

		count, err := s.ensureMeta(ctx, q)
		if err != nil {
			return err
		}
		s.shardCount = count

		for _, f := range s.factories {
			if err := f.Migrate(ctx, q); err != nil {
				return err
			}
		}
		return nil
	})
}

func migrateToV1(ctx context.Context, q factory.Querier) error {
	_, err := q.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS datastore_meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// ensureMeta records the shard metadata on first open and returns the
// recorded shard count. A shard that was created under a different index
// is a configuration error: the files have been shuffled.
func (s *Shard) ensureMeta(ctx context.Context, q factory.Querier) (int, error) {
	initial := map[string]string{
		MetaShardCount: strconv.Itoa(s.opts.ShardCount),
		MetaShardIndex: strconv.Itoa(s.index),
		MetaCreatedAt:  s.opts.Now().UTC().Format(time.RFC3339Nano),
	}
	for _, key := range []string{MetaShardCount, MetaShardIndex, MetaCreatedAt} {
		_, err := q.ExecContext(ctx,
			"INSERT OR IGNORE INTO datastore_meta (key, value) VALUES (?, ?)",
			key, initial[key],
		)
		if err != nil {
			return 0, fmt.Errorf("record %s: %w", key, err)
		}
	}

	index, err := readMetaInt(ctx, q, MetaShardIndex)
	if err != nil {
		return 0, err
	}
	if index != s.index {
		return 0, storeerr.Config("shard file %s was created as shard %d, opened as shard %d", s.path, index, s.index)
	}

	count, err := readMetaInt(ctx, q, MetaShardCount)
	if err != nil {
		return 0, err
	}
	if count <= 0 {
		return 0, storeerr.Config("shard %d records invalid shard count %d", s.index, count)
	}
	return count, nil
}

func readMetaInt(ctx context.Context, q factory.Querier, key string) (int, error) {
	var raw string
	err := q.QueryRowContext(ctx, "SELECT value FROM datastore_meta WHERE key = ?", key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("meta %s missing", key)
	}
	if err != nil {
		return 0, fmt.Errorf("read meta %s: %w", key, err)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("meta %s: %w", key, err)
	}
	return n, nil
}

// Meta returns every recorded metadata entry.
func (s *Shard) Meta(ctx context.Context) (map[string]string, error) {
	rows, err := s.reader.QueryContext(ctx, "SELECT key, value FROM datastore_meta ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("read meta: %w", err)
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("read meta: scan: %w", err)
		}
		meta[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read meta: %w", err)
	}
	return meta, nil
}

// verifyPragma checks that a pragma on the writer is set to the expected
// value. Used by tests.
func (s *Shard) verifyPragma(name, expected string) error {
	var value string
	if err := s.writer.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
