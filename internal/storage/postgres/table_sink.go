// Package postgres implements the relational sink on a pgx connection pool.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var validIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for record rows.
type Config struct {
	DSN      string
	Table    string
	MaxConns int32
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Ping(context.Context) error
	Close()
}

// TableSink inserts one row per record into a table.
type TableSink struct {
	pool  pool
	table string

	closeOnce sync.Once
}

// NewTableSink connects, verifies the connection and returns a sink.
func NewTableSink(ctx context.Context, cfg Config) (*TableSink, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database url is required")
	}
	if !validIdentifier.MatchString(cfg.Table) {
		return nil, fmt.Errorf("invalid table name %q", cfg.Table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	sink, err := NewTableSinkWithPool(ctx, p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	return sink, nil
}

// NewTableSinkWithPool constructs a sink from an existing pool (primarily for testing).
func NewTableSinkWithPool(ctx context.Context, p pool, table string) (*TableSink, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if !validIdentifier.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if err := p.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &TableSink{pool: p, table: table}, nil
}

// Write inserts values into the named columns.
func (s *TableSink) Write(ctx context.Context, fields []string, values []string) error {
	query, err := insertStatement(s.table, fields)
	if err != nil {
		return err
	}
	if len(values) != len(fields) {
		return fmt.Errorf("got %d values for %d columns", len(values), len(fields))
	}
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert into %s: %w", s.table, err)
	}
	return nil
}

// Close releases the underlying pool resources. Later calls are no-ops.
func (s *TableSink) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.closeOnce.Do(s.pool.Close)
	return nil
}

func insertStatement(table string, fields []string) (string, error) {
	if len(fields) == 0 {
		return "", fmt.Errorf("no columns to insert")
	}
	placeholders := make([]string, len(fields))
	for i, f := range fields {
		if !validIdentifier.MatchString(f) {
			return "", fmt.Errorf("invalid column name %q", f)
		}
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(fields, ","), strings.Join(placeholders, ",")), nil
}
