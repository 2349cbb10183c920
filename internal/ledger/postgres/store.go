// Package postgres implements a ledger.Store backed by Postgres, one row per product.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/price-error-watch/internal/ledger"
	"github.com/JakeFAU/price-error-watch/internal/monitor"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for ledger rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Close()
}

// Store keeps each ledger record in its own row and upserts only the changed
// record on Save.
type Store struct {
	pool  pool
	table string
}

// New creates a Postgres-backed Store using the provided config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("ledger.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
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
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: p, table: table}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool, table string) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &Store{pool: p, table: name}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the ledger table when it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	product_id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	history JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create ledger table: %w", err)
	}
	return nil
}

// Load reads every row into a snapshot. An empty table yields ledger.ErrNotFound.
func (s *Store) Load(ctx context.Context) (ledger.Snapshot, error) {
	query := fmt.Sprintf(`SELECT product_id, name, history FROM %s`, s.table)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	snap := ledger.Snapshot{}
	for rows.Next() {
		var (
			id      string
			name    string
			rawHist []byte
		)
		if err := rows.Scan(&id, &name, &rawHist); err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		var history []monitor.PriceHistoryEntry
		if err := json.Unmarshal(rawHist, &history); err != nil {
			return nil, fmt.Errorf("decode history for %s: %w", id, err)
		}
		snap[id] = monitor.LedgerRecord{Name: name, History: history}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger rows: %w", err)
	}
	if len(snap) == 0 {
		return nil, ledger.ErrNotFound
	}
	return snap, nil
}

// Save upserts the record named by changedID.
func (s *Store) Save(ctx context.Context, snap ledger.Snapshot, changedID string) error {
	rec, ok := snap[changedID]
	if !ok {
		return fmt.Errorf("record %q not in snapshot", changedID)
	}
	historyJSON, err := json.Marshal(rec.History)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	var updatedAt time.Time
	if n := len(rec.History); n > 0 {
		updatedAt = rec.History[n-1].Timestamp
	}
	query := fmt.Sprintf(`
INSERT INTO %s (product_id, name, history, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (product_id) DO UPDATE SET
	name = EXCLUDED.name,
	history = EXCLUDED.history,
	updated_at = EXCLUDED.updated_at`, s.table)
	if _, err := s.pool.Exec(ctx, query, changedID, rec.Name, historyJSON, updatedAt); err != nil {
		return fmt.Errorf("upsert ledger record: %w", err)
	}
	return nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = "price_history"
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}
