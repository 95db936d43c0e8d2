// Package postgres provides a Postgres-backed state store.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/monitor"
	"github.com/JakeFAU/pagewatch/internal/state"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "watch_records"

// Config controls the Postgres connection pool used for watch records.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// Store keeps one row per URL holding the JSON-encoded record.
type Store struct {
	pool   pool
	table  string
	logger *zap.Logger
}

// New connects to Postgres and makes sure the records table exists.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("state.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s, err := NewWithPool(p, cfg.Table, logger)
	if err != nil {
		p.Close()
		return nil, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return s, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool, table string, logger *zap.Logger) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{pool: p, table: table, logger: logger}, nil
}

// EnsureSchema creates the records table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	url TEXT PRIMARY KEY,
	record JSONB NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Load reads every row and migrates legacy values.
func (s *Store) Load(ctx context.Context) (monitor.State, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf("SELECT url, record::text FROM %s", s.table))
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	out := monitor.State{}
	for rows.Next() {
		var (
			url string
			raw string
		)
		if err := rows.Scan(&url, &raw); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec, err := state.DecodeRecord([]byte(raw))
		if err != nil {
			s.logger.Warn("dropping state record with unrecognized shape", zap.String("url", url), zap.Error(err))
			continue
		}
		out[url] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

// Save replaces every row with the given mapping in a single transaction.
func (s *Store) Save(ctx context.Context, st monitor.State) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := s.replaceAll(ctx, tx, st); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit records: %w", err)
	}
	return nil
}

func (s *Store) replaceAll(ctx context.Context, tx pgx.Tx, st monitor.State) error {
	if _, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s", s.table)); err != nil {
		return fmt.Errorf("clear records: %w", err)
	}
	insert := fmt.Sprintf("INSERT INTO %s (url, record) VALUES ($1, $2::jsonb)", s.table)
	for _, url := range sortedURLs(st) {
		raw, err := state.EncodeRecord(st[url])
		if err != nil {
			return fmt.Errorf("encode %s: %w", url, err)
		}
		if _, err := tx.Exec(ctx, insert, url, string(raw)); err != nil {
			return fmt.Errorf("insert record %s: %w", url, err)
		}
	}
	return nil
}

func sortedURLs(st monitor.State) []string {
	urls := make([]string, 0, len(st))
	for url := range st {
		urls = append(urls, url)
	}
	sort.Strings(urls)
	return urls
}
