// Package postgres builds the pgx pool behind the Postgres dataset.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Config struct {
	URL             string `split_words:"true"`
	MaxConns        int32  `split_words:"true" default:"8"`
	MaxConnLifetime string `split_words:"true" default:"30m"`
}

// poolConfig parses the URL and applies the pool limits.
func (c *Config) poolConfig() (*pgxpool.Config, error) {
	if c.URL == "" {
		return nil, fmt.Errorf("postgres url is required")
	}
	pc, err := pgxpool.ParseConfig(c.URL)
	if err != nil {
		return nil, fmt.Errorf("parse postgres url: %w", err)
	}
	if c.MaxConns > 0 {
		pc.MaxConns = c.MaxConns
	}
	if c.MaxConnLifetime != "" {
		d, err := time.ParseDuration(c.MaxConnLifetime)
		if err != nil {
			return nil, fmt.Errorf("invalid POSTGRES_MAX_CONN_LIFETIME %q: %w", c.MaxConnLifetime, err)
		}
		pc.MaxConnLifetime = d
	}
	return pc, nil
}

// New opens the pool and pings it.
func (c *Config) New(ctx context.Context) (*pgxpool.Pool, error) {
	pc, err := c.poolConfig()
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}
