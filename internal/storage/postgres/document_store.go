// Package postgres persists harvested documents in Postgres.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/clinicaltrials-harvester/internal/datacite"
	"github.com/JakeFAU/clinicaltrials-harvester/internal/hash/sha256"
)

const defaultTable = "documents"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool shared by the stores.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execer interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
}

// DocumentStore upserts documents keyed by identifier. The body is stored as
// JSONB next to its SHA-256 digest; unchanged documents are not rewritten.
type DocumentStore struct {
	pool   execer
	table  string
	hasher *sha256.Hasher
	now    func() time.Time
}

// Connect opens a pool from cfg. The pool may be shared by several stores.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

// NewWithPool constructs a store over a pool opened by Connect. The caller
// owns the pool.
func NewWithPool(pool execer, table string) (*DocumentStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table, defaultTable)
	if err != nil {
		return nil, err
	}
	return newStore(pool, name), nil
}

func newStore(pool execer, table string) *DocumentStore {
	return &DocumentStore{
		pool:   pool,
		table:  table,
		hasher: sha256.New(),
		now:    time.Now,
	}
}

func tableName(table, fallback string) (string, error) {
	if table == "" {
		table = fallback
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// EnsureSchema creates the documents table when it does not exist.
func (s *DocumentStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	identifier       TEXT PRIMARY KEY,
	content_hash     TEXT NOT NULL,
	body             JSONB NOT NULL,
	publication_year INTEGER,
	harvested_at     TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s table: %w", s.table, err)
	}
	return nil
}

// Save upserts doc.
func (s *DocumentStore) Save(ctx context.Context, doc datacite.Document) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("document store is not configured")
	}
	if doc.Identifier == "" {
		return fmt.Errorf("document identifier is required")
	}
	body, digest, err := s.hasher.HashDocument(doc)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
INSERT INTO %[1]s (
	identifier,
	content_hash,
	body,
	publication_year,
	harvested_at
) VALUES (
	$1,$2,$3,$4,$5
)
ON CONFLICT (identifier) DO UPDATE SET
	content_hash = EXCLUDED.content_hash,
	body = EXCLUDED.body,
	publication_year = EXCLUDED.publication_year,
	harvested_at = EXCLUDED.harvested_at
WHERE %[1]s.content_hash <> EXCLUDED.content_hash`, s.table)

	args := []any{
		doc.Identifier,
		digest,
		body,
		doc.PublicationYear,
		s.now().UTC(),
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert document %s: %w", doc.Identifier, err)
	}
	return nil
}
