package factory

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shardstore/internal/object"
	"github.com/roach88/shardstore/internal/payload"
	"github.com/roach88/shardstore/internal/schema"
)

const testGeneration = "gen-test"

var testNow = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

// openTestDB opens a fresh SQLite database in a temp dir.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "factory.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

// migratedFactory builds and migrates the factory for tag on db.
func migratedFactory(t *testing.T, db *sql.DB, tag schema.Tag) Factory {
	t.Helper()
	desc, ok := schema.Builtin(tag)
	require.True(t, ok)
	f, err := For(desc)
	require.NoError(t, err)
	require.NoError(t, f.Migrate(context.Background(), db))
	return f
}

// request builds a find-or-create request with test defaults.
func request(p payload.Object) Request {
	return Request{Payload: p, Generation: testGeneration, Now: testNow}
}

// mustGet runs FindOrCreate and fails the test on error.
func mustGet(t *testing.T, f Factory, db *sql.DB, p payload.Object) *object.Object {
	t.Helper()
	obj, err := f.FindOrCreate(context.Background(), db, request(p))
	require.NoError(t, err)
	return obj
}

func tol(v float64) payload.Object {
	return payload.New(payload.P("tol", payload.Float(v)))
}

func redshift(z float64) payload.Object {
	return payload.New(payload.P("z", payload.Float(z)))
}
