// Package db provides PostgreSQL storage for the knowledge base: sources,
// text chunks, and image chunks with pgvector embeddings. Upserts follow
// the unique-constraint-as-insert-guard pattern; no transaction wraps a
// whole batch, so a crash mid-batch leaves partial but consistent state
// that the next run re-converges.
package db

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
)

//go:embed schema.sql
var schemaSQL string

// DB wraps a PostgreSQL connection pool.
type DB struct {
	pool *pgxpool.Pool
}

// Open connects to the database, applies the embedded schema idempotently,
// and returns a pool with pgvector codecs registered. The schema runs on a
// throwaway connection first: vector types can only be registered once the
// extension exists.
func Open(ctx context.Context, databaseURL string) (*DB, error) {
	boot, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := boot.Exec(ctx, schemaSQL); err != nil {
		_ = boot.Close(ctx)
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	if err := boot.Close(ctx); err != nil {
		return nil, fmt.Errorf("failed to close bootstrap connection: %w", err)
	}

	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid database URL: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Close closes the connection pool.
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// Totals returns knowledge-base row counts for status reporting.
func (db *DB) Totals(ctx context.Context) (Totals, error) {
	var t Totals
	err := db.pool.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM sources),
			(SELECT count(*) FROM text_chunks),
			(SELECT count(*) FROM image_chunks)`,
	).Scan(&t.Sources, &t.TextChunks, &t.ImageChunks)
	if err != nil {
		return Totals{}, fmt.Errorf("failed to count rows: %w", err)
	}
	return t, nil
}

// isUniqueViolation reports whether err is a duplicate-key insert error
// (SQLSTATE 23505), the expected outcome of a lost insert race.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
