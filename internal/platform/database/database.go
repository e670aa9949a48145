// Package database opens the registry's two PostgreSQL connection pools:
// the write store and the read store.
package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	_ "github.com/lib/pq"
)

// PoolConfig bounds a connection pool's size and lifetime.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open establishes a PostgreSQL connection using dsn and verifies
// connectivity with a ping. The returned *sqlx.DB must be closed by the caller.
func Open(ctx context.Context, dsn string, pool PoolConfig) (*sqlx.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Pools bundles the write and read store connections the CQRS coordinator
// drives: one process-wide connection pool per store.
type Pools struct {
	Write *sqlx.DB
	Read  *sqlx.DB
}

// Close closes both pools, tolerating either being nil.
func (p Pools) Close() error {
	var firstErr error
	if p.Write != nil {
		if err := p.Write.Close(); err != nil {
			firstErr = err
		}
	}
	if p.Read != nil {
		if err := p.Read.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
