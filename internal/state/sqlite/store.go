// Package sqlite provides an embedded SQLite-backed state store.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/pagewatch/internal/monitor"
	"github.com/JakeFAU/pagewatch/internal/state"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "watch_records"

// Config selects the database file and table.
type Config struct {
	Path  string
	Table string
}

// Store keeps one row per URL holding the JSON-encoded record.
type Store struct {
	db     *sql.DB
	table  string
	logger *zap.Logger
}

// New opens (creating if needed) the database file and the records table.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("state.path is required")
	}
	table := cfg.Table
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", cfg.Path, err)
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, table: table, logger: logger}
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	url TEXT PRIMARY KEY,
	record TEXT NOT NULL
)`, table)
	if _, err := db.ExecContext(ctx, query); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create table %s: %w", table, err)
	}
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}

// Load reads every row and migrates legacy values.
func (s *Store) Load(ctx context.Context) (monitor.State, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT url, record FROM %s", s.table))
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	out := monitor.State{}
	for rows.Next() {
		var url, raw string
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
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := s.replaceAll(ctx, tx, st); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit records: %w", err)
	}
	return nil
}

func (s *Store) replaceAll(ctx context.Context, tx *sql.Tx, st monitor.State) error {
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", s.table)); err != nil {
		return fmt.Errorf("clear records: %w", err)
	}
	insert := fmt.Sprintf("INSERT INTO %s (url, record) VALUES (?, ?)", s.table)
	urls := make([]string, 0, len(st))
	for url := range st {
		urls = append(urls, url)
	}
	sort.Strings(urls)
	for _, url := range urls {
		raw, err := state.EncodeRecord(st[url])
		if err != nil {
			return fmt.Errorf("encode %s: %w", url, err)
		}
		if _, err := tx.ExecContext(ctx, insert, url, string(raw)); err != nil {
			return fmt.Errorf("insert record %s: %w", url, err)
		}
	}
	return nil
}
