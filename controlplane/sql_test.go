package controlplane

import (
	"context"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/aponysus/regone/policy"
)

func newSQLiteSource(t *testing.T) *SQLSource {
	t.Helper()
	db, err := sqlx.Open("sqlite", filepath.Join(t.TempDir(), "policies.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, Migrate(context.Background(), db, "sqlite3"))
	return NewSQLSource(db)
}

func TestSQLSource_RoundTrip(t *testing.T) {
	src := newSQLiteSource(t)
	ctx := context.Background()
	key := policy.ParseKey("docs.read")

	_, err := src.GetPolicy(ctx, key)
	assert.ErrorIs(t, err, ErrPolicyNotFound)

	require.NoError(t, src.PutPolicy(ctx, key, policy.RetryPolicy{
		TotalBudget:                5 * time.Second,
		InitialBackoff:             250 * time.Millisecond,
		MaxInvalidPartitionRetries: 3,
	}))
	pol, err := src.GetPolicy(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, pol.TotalBudget)
	assert.Equal(t, 250*time.Millisecond, pol.InitialBackoff)
	assert.Equal(t, 3, pol.MaxInvalidPartitionRetries)
	assert.Zero(t, pol.MaxBackoff)

	require.NoError(t, src.PutPolicy(ctx, key, policy.RetryPolicy{TotalBudget: 9 * time.Second}))
	pol, err = src.GetPolicy(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 9*time.Second, pol.TotalBudget)
}

func TestSQLSource_BehindRemoteProvider(t *testing.T) {
	src := newSQLiteSource(t)
	ctx := context.Background()
	key := policy.ParseKey("docs.write")
	require.NoError(t, src.PutPolicy(ctx, key, policy.RetryPolicy{TotalBudget: 12 * time.Second}))

	p := NewRemoteProvider(src)
	pol, err := p.GetPolicy(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 12*time.Second, pol.TotalBudget)
	assert.Equal(t, policy.DefaultMaxBackoff, pol.MaxBackoff)
	assert.Equal(t, policy.PolicySourceRemote, pol.Meta.Source)
}

func TestMigrate_Idempotent(t *testing.T) {
	src := newSQLiteSource(t)
	assert.NoError(t, Migrate(context.Background(), src.db, "sqlite3"))
	assert.Error(t, Migrate(context.Background(), src.db, "no-such-dialect"))
}

func TestMigrate_LeavesGooseGlobalsAlone(t *testing.T) {
	appFS := fstest.MapFS{
		"migrations/00002_app_notes.sql": &fstest.MapFile{Data: []byte(
			"-- +goose Up\nCREATE TABLE app_notes (id INTEGER PRIMARY KEY);\n\n-- +goose Down\nDROP TABLE app_notes;\n",
		)},
	}
	goose.SetBaseFS(appFS)
	goose.SetLogger(goose.NopLogger())
	require.NoError(t, goose.SetDialect("sqlite3"))
	t.Cleanup(func() { goose.SetBaseFS(nil) })

	src := newSQLiteSource(t)

	// The application's own migrations still come from its base FS.
	require.NoError(t, goose.Up(src.db.DB, "migrations"))
	var n int
	require.NoError(t, src.db.Get(&n, "SELECT COUNT(*) FROM app_notes"))
	assert.Zero(t, n)
}
