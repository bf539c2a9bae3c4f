package repository

import (
	"context"
	"database/sql"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	auth "github.com/txnjournal/go-txn-auth"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

// PoolConfig tunes the Postgres connection pool.
type PoolConfig struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultPoolConfig is sized for a single service instance.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxConns:        20,
		MinConns:        2,
		MaxConnLifetime: 30 * time.Minute,
		MaxConnIdleTime: 5 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// Open connects to Postgres at dsn and returns a bun database backed by a
// pgx pool.
func Open(ctx context.Context, dsn string, pc PoolConfig) (*bun.DB, error) {
	if dsn == "" {
		return nil, goerrors.New("database url is required", goerrors.CategoryBadInput).
			WithTextCode(auth.TextCodeConfigMissing)
	}

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid database url")
	}
	if pc.MaxConns > 0 {
		poolConfig.MaxConns = pc.MaxConns
	}
	if pc.MinConns > 0 {
		poolConfig.MinConns = pc.MinConns
	}
	if pc.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = pc.MaxConnLifetime
	}
	if pc.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = pc.MaxConnIdleTime
	}
	if pc.ConnectTimeout > 0 {
		poolConfig.ConnConfig.ConnectTimeout = pc.ConnectTimeout
	}
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheStatement

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to create connection pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "database ping failed")
	}

	return bun.NewDB(stdlib.OpenDBFromPool(pool), pgdialect.New()), nil
}

// Manager groups the stores sharing one database handle.
type Manager struct {
	db       *bun.DB
	profiles *ProfileStore
}

// NewManager wires the stores over db.
func NewManager(db *bun.DB) *Manager {
	return &Manager{
		db:       db,
		profiles: NewProfileStore(db),
	}
}

// Validate checks every store was initialized.
func (m *Manager) Validate() error {
	if m == nil || m.db == nil {
		return goerrors.New("repository database should be initialized", goerrors.CategoryInternal)
	}
	if m.profiles == nil {
		return goerrors.New("repository profiles should be initialized", goerrors.CategoryInternal)
	}
	return nil
}

// MustValidate panics when Validate fails.
func (m *Manager) MustValidate() {
	if err := m.Validate(); err != nil {
		panic(err)
	}
}

// RunInTx runs f in a transaction unless ctx is already done.
func (m *Manager) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

// Profiles returns the profile store.
func (m *Manager) Profiles() *ProfileStore {
	return m.profiles
}

// Close releases the database handle.
func (m *Manager) Close() error {
	return m.db.Close()
}
