// Package storage opens the relational sink named by a database URL.
package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/JakeFAU/crawlkit/internal/crawler"
	"github.com/JakeFAU/crawlkit/internal/storage/mysql"
	"github.com/JakeFAU/crawlkit/internal/storage/postgres"
)

// Scheme families accepted in database URLs.
const (
	SchemePostgres = "postgres"
	SchemeMySQL    = "mysql"
)

// DatabaseConfig identifies the database and table records are inserted into.
type DatabaseConfig struct {
	URL      string
	Table    string
	MaxConns int
}

// Scheme returns the normalized driver family for rawURL.
func Scheme(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("%w: parse database url: %v", crawler.ErrConfiguration, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "postgres", "postgresql":
		return SchemePostgres, nil
	case "mysql":
		return SchemeMySQL, nil
	case "":
		return "", fmt.Errorf("%w: database url has no scheme", crawler.ErrConfiguration)
	default:
		return "", fmt.Errorf("%w: unsupported database scheme %q", crawler.ErrConfiguration, u.Scheme)
	}
}

// OpenTable opens a table sink for cfg.URL. The connection is tested before returning.
func OpenTable(ctx context.Context, cfg DatabaseConfig) (crawler.Sink, error) {
	if strings.TrimSpace(cfg.Table) == "" {
		return nil, fmt.Errorf("%w: table name is required", crawler.ErrConfiguration)
	}
	scheme, err := Scheme(cfg.URL)
	if err != nil {
		return nil, err
	}
	switch scheme {
	case SchemeMySQL:
		return mysql.NewTableSink(ctx, mysql.Config{URL: cfg.URL, Table: cfg.Table, MaxConns: cfg.MaxConns})
	default:
		return postgres.NewTableSink(ctx, postgres.Config{DSN: cfg.URL, Table: cfg.Table, MaxConns: int32(cfg.MaxConns)})
	}
}
