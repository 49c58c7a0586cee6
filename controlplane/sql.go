package controlplane

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	"github.com/aponysus/regone/policy"
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLSource is a Source backed by the retry_policies table. Zero columns inherit defaults.
type SQLSource struct {
	db *sqlx.DB
}

type policyRow struct {
	InitialBackoffMS           int64   `db:"initial_backoff_ms"`
	BackoffMultiplier          float64 `db:"backoff_multiplier"`
	MaxBackoffMS               int64   `db:"max_backoff_ms"`
	TotalBudgetMS              int64   `db:"total_budget_ms"`
	MaxInvalidPartitionRetries int     `db:"max_invalid_partition_retries"`
}

func (r policyRow) policy() policy.RetryPolicy {
	return policy.RetryPolicy{
		InitialBackoff:             time.Duration(r.InitialBackoffMS) * time.Millisecond,
		BackoffMultiplier:          r.BackoffMultiplier,
		MaxBackoff:                 time.Duration(r.MaxBackoffMS) * time.Millisecond,
		TotalBudget:                time.Duration(r.TotalBudgetMS) * time.Millisecond,
		MaxInvalidPartitionRetries: r.MaxInvalidPartitionRetries,
	}
}

func NewSQLSource(db *sqlx.DB) *SQLSource {
	return &SQLSource{db: db}
}

// OpenPostgresSource connects to Postgres through the pgx driver and applies migrations.
func OpenPostgresSource(ctx context.Context, dsn string) (*SQLSource, error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to policy db: %w", err)
	}
	if err := Migrate(ctx, db, "postgres"); err != nil {
		db.Close()
		return nil, err
	}
	return NewSQLSource(db), nil
}

// Migrate brings the policy schema up to date. dialect is a goose dialect such as
// "postgres" or "sqlite3". It leaves goose's package-level state untouched.
func Migrate(ctx context.Context, db *sqlx.DB, dialect string) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.Dialect(dialect), db.DB, fsys)
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("failed to migrate policy db: %w", err)
	}
	return nil
}

func (s *SQLSource) GetPolicy(ctx context.Context, key policy.PolicyKey) (policy.RetryPolicy, error) {
	var row policyRow
	q := s.db.Rebind(`SELECT initial_backoff_ms, backoff_multiplier, max_backoff_ms, total_budget_ms,
		max_invalid_partition_retries FROM retry_policies WHERE namespace = ? AND name = ?`)
	err := s.db.GetContext(ctx, &row, q, key.Namespace, key.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return policy.RetryPolicy{}, ErrPolicyNotFound
	}
	if err != nil {
		return policy.RetryPolicy{}, fmt.Errorf("query policy %s: %w", key, err)
	}
	return row.policy(), nil
}

// PutPolicy inserts or replaces the policy for key.
func (s *SQLSource) PutPolicy(ctx context.Context, key policy.PolicyKey, pol policy.RetryPolicy) error {
	q := s.db.Rebind(`INSERT INTO retry_policies (namespace, name, initial_backoff_ms, backoff_multiplier,
		max_backoff_ms, total_budget_ms, max_invalid_partition_retries)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (namespace, name) DO UPDATE SET
		initial_backoff_ms = excluded.initial_backoff_ms,
		backoff_multiplier = excluded.backoff_multiplier,
		max_backoff_ms = excluded.max_backoff_ms,
		total_budget_ms = excluded.total_budget_ms,
		max_invalid_partition_retries = excluded.max_invalid_partition_retries`)
	_, err := s.db.ExecContext(ctx, q,
		key.Namespace, key.Name,
		pol.InitialBackoff.Milliseconds(),
		pol.BackoffMultiplier,
		pol.MaxBackoff.Milliseconds(),
		pol.TotalBudget.Milliseconds(),
		pol.MaxInvalidPartitionRetries,
	)
	if err != nil {
		return fmt.Errorf("store policy %s: %w", key, err)
	}
	return nil
}

func (s *SQLSource) Close() error {
	return s.db.Close()
}
