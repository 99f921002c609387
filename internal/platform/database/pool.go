// Package database opens the postgres pool and applies the embedded schema.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"

	"certifier/internal/platform/config"
	"certifier/migrations"
)

// Pool wraps a *sql.DB with health checking and schema bootstrap.
type Pool struct {
	db *sql.DB
}

// New opens and pings the pool. It returns nil when no URL is configured so
// callers fall back to in-memory stores.
func New(ctx context.Context, cfg config.DatabaseConfig) (*Pool, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close() //nolint:errcheck // best-effort cleanup on init failure
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Pool{db: db}, nil
}

// DB returns the underlying *sql.DB.
func (p *Pool) DB() *sql.DB {
	return p.db
}

// Migrate runs every embedded *.up.sql file in name order. Each file is
// written to be idempotent, so running it on every boot is safe.
func (p *Pool) Migrate(ctx context.Context) error {
	entries, err := fs.ReadDir(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, file := range files {
		content, err := fs.ReadFile(migrations.FS, file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		if _, err := p.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", file, err)
		}
	}
	return nil
}

// Health checks if the database is reachable.
func (p *Pool) Health(ctx context.Context) error {
	if p == nil || p.db == nil {
		return fmt.Errorf("database not configured")
	}
	return p.db.PingContext(ctx)
}

// Close closes the pool. Safe on a nil pool.
func (p *Pool) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

// RegisterMetrics exposes pool statistics as gauges read at scrape time.
func (p *Pool) RegisterMetrics(reg prometheus.Registerer) error {
	gauges := map[string]func(sql.DBStats) float64{
		"open_connections": func(s sql.DBStats) float64 { return float64(s.OpenConnections) },
		"in_use":           func(s sql.DBStats) float64 { return float64(s.InUse) },
		"idle":             func(s sql.DBStats) float64 { return float64(s.Idle) },
		"wait_count":       func(s sql.DBStats) float64 { return float64(s.WaitCount) },
	}
	for name, read := range gauges {
		g := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "certifier_db_pool_" + name,
			Help: "Postgres pool statistic: " + strings.ReplaceAll(name, "_", " ") + ".",
		}, func() float64 { return read(p.db.Stats()) })
		if err := reg.Register(g); err != nil {
			return fmt.Errorf("register pool metric %s: %w", name, err)
		}
	}
	return nil
}
