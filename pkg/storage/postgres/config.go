package postgres

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config selects the database holding users and chat history.
type Config struct {
	// DSN is a libpq connection string or URL, for example
	// "postgresql://datagem:secret@db:5432/datagem?sslmode=require".
	DSN string

	// Pool sizing. Zero values mean 10 connections at most, 1 kept open,
	// each recycled after 5 minutes.
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration

	// MigrateOnStart applies the embedded schema migrations in New.
	MigrateOnStart bool
}

func (c Config) poolConfig() (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(c.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}
	pc.MaxConns = orDefault(c.MaxConns, 10)
	pc.MinConns = min(orDefault(c.MinConns, 1), pc.MaxConns)
	pc.MaxConnLifetime = orDefault(c.MaxConnLifetime, 5*time.Minute)
	return pc, nil
}

func orDefault[T int32 | time.Duration](v, def T) T {
	if v <= 0 {
		return def
	}
	return v
}
