package profile

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteSink appends records to a profile_records table in its own
// SQLite database, separate from every shard.
type SQLiteSink struct {
	db *sql.DB
}

// OpenSQLite creates or opens the profile database at path.
func OpenSQLite(ctx context.Context, path string, busyTimeout time.Duration) (*SQLiteSink, error) {
	q := url.Values{}
	q.Set("_journal_mode", "WAL")
	q.Set("_synchronous", "NORMAL")
	q.Set("_busy_timeout", strconv.FormatInt(busyTimeout.Milliseconds(), 10))

	db, err := sql.Open("sqlite3", "file:"+path+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("open profile db: %w", err)
	}
	db.SetMaxOpenConns(1)

	_, err = db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS profile_records (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			operation   TEXT NOT NULL,
			type        TEXT NOT NULL DEFAULT '',
			shard       INTEGER NOT NULL,
			elapsed_ns  INTEGER NOT NULL,
			label       TEXT NOT NULL,
			recorded_at TEXT NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create profile table: %w", err)
	}
	return &SQLiteSink{db: db}, nil
}

// Write implements Sink. The batch is written in one transaction.
func (s *SQLiteSink) Write(ctx context.Context, batch []Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("profile write: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO profile_records (operation, type, shard, elapsed_ns, label, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("profile write: prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range batch {
		_, err := stmt.ExecContext(ctx,
			r.Operation, r.Type, r.Shard, r.Elapsed.Nanoseconds(), r.Label,
			r.Timestamp.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("profile write: insert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("profile write: commit: %w", err)
	}
	return nil
}

// Records reads back every stored record in insertion order.
func (s *SQLiteSink) Records(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT operation, type, shard, elapsed_ns, label, recorded_at
		FROM profile_records
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("profile read: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r       Record
			elapsed int64
			at      string
		)
		if err := rows.Scan(&r.Operation, &r.Type, &r.Shard, &elapsed, &r.Label, &at); err != nil {
			return nil, fmt.Errorf("profile read: scan: %w", err)
		}
		r.Elapsed = time.Duration(elapsed)
		if r.Timestamp, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("profile read: timestamp %q: %w", at, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close implements Sink.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
