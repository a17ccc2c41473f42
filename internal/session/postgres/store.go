// Package postgres provides the Postgres-backed session store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brandforge/siteharvest/internal/extract"
	"github.com/brandforge/siteharvest/internal/session"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// querier is the subset of pgxpool.Pool the store needs; pgxmock satisfies
// it in tests.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store implements session.Store on a sessions table with JSONB columns for
// the URL list and dataset.
type Store struct {
	pool querier
}

// New creates a Store using a fresh connection pool.
func New(ctx context.Context, cfg Config) (*Store, error) {
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
	return &Store{pool: pool}, nil
}

// NewWithPool constructs a Store from an existing pool (primarily for tests).
func NewWithPool(pool querier) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// Create inserts a new session row.
func (s *Store) Create(ctx context.Context, sess session.Session) error {
	optionsJSON, err := json.Marshal(sess.Options)
	if err != nil {
		return fmt.Errorf("marshal options: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO sessions (id, domain, status, options, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $5)`,
		sess.ID, sess.Domain, string(sess.Status), optionsJSON, sess.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// UpsertURLs replaces the checkpointed URL list for a session.
func (s *Store) UpsertURLs(ctx context.Context, id uuid.UUID, urls []extract.DiscoveredURL) error {
	urlsJSON, err := json.Marshal(urls)
	if err != nil {
		return fmt.Errorf("marshal urls: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
UPDATE sessions SET urls = $2, updated_at = now() WHERE id = $1`,
		id, urlsJSON,
	)
	if err != nil {
		return fmt.Errorf("upsert urls: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return session.ErrNotFound
	}
	return nil
}

// UpsertDataset replaces the checkpointed dataset for a session.
func (s *Store) UpsertDataset(ctx context.Context, id uuid.UUID, dataset extract.AggregatedDataset) error {
	datasetJSON, err := json.Marshal(dataset)
	if err != nil {
		return fmt.Errorf("marshal dataset: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
UPDATE sessions SET dataset = $2, updated_at = now() WHERE id = $1`,
		id, datasetJSON,
	)
	if err != nil {
		return fmt.Errorf("upsert dataset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return session.ErrNotFound
	}
	return nil
}

// SetStatus updates the lifecycle state and error text.
func (s *Store) SetStatus(ctx context.Context, id uuid.UUID, status session.Status, errText string) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE sessions SET status = $2, error_text = $3, updated_at = now() WHERE id = $1`,
		id, string(status), errText,
	)
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return session.ErrNotFound
	}
	return nil
}

// Get loads a session row.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (session.Session, error) {
	var (
		sess        session.Session
		status      string
		optionsJSON []byte
		urlsJSON    []byte
		datasetJSON []byte
	)
	row := s.pool.QueryRow(ctx, `
SELECT id, domain, status, options, urls, dataset, COALESCE(error_text, ''), created_at, updated_at
FROM sessions WHERE id = $1`, id)
	err := row.Scan(
		&sess.ID, &sess.Domain, &status, &optionsJSON, &urlsJSON, &datasetJSON,
		&sess.ErrorText, &sess.CreatedAt, &sess.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return session.Session{}, session.ErrNotFound
	}
	if err != nil {
		return session.Session{}, fmt.Errorf("select session: %w", err)
	}
	sess.Status = session.Status(status)
	if len(optionsJSON) > 0 {
		if err := json.Unmarshal(optionsJSON, &sess.Options); err != nil {
			return session.Session{}, fmt.Errorf("unmarshal options: %w", err)
		}
	}
	if len(urlsJSON) > 0 {
		if err := json.Unmarshal(urlsJSON, &sess.URLs); err != nil {
			return session.Session{}, fmt.Errorf("unmarshal urls: %w", err)
		}
	}
	if len(datasetJSON) > 0 {
		var dataset extract.AggregatedDataset
		if err := json.Unmarshal(datasetJSON, &dataset); err != nil {
			return session.Session{}, fmt.Errorf("unmarshal dataset: %w", err)
		}
		sess.Dataset = &dataset
	}
	return sess, nil
}
