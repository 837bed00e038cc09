package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Gateway executes parameterised statements against the ledger store.
type Gateway interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) error
	// ExecBatch runs sql once per argument row in a single round trip.
	ExecBatch(ctx context.Context, sql string, argRows [][]any) error
	Close()
}

// PoolGateway implements Gateway on top of a pgx connection pool.
type PoolGateway struct {
	pool *pgxpool.Pool
}

// NewGateway wraps an established pool.
func NewGateway(pool *pgxpool.Pool) *PoolGateway {
	return &PoolGateway{pool: pool}
}

// Query returns the result rows for sql. Callers must close the rows.
func (g *PoolGateway) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	rows, err := g.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("platform/db: query: %w", err)
	}
	return rows, nil
}

// Exec runs a statement that returns no rows.
func (g *PoolGateway) Exec(ctx context.Context, sql string, args ...any) error {
	if _, err := g.pool.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("platform/db: exec: %w", err)
	}
	return nil
}

func (g *PoolGateway) ExecBatch(ctx context.Context, sql string, argRows [][]any) error {
	if len(argRows) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, args := range argRows {
		batch.Queue(sql, args...)
	}
	results := g.pool.SendBatch(ctx, batch)
	for i := range argRows {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("platform/db: batch row %d: %w", i, err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("platform/db: close batch: %w", err)
	}
	return nil
}

// Close releases every pooled connection.
func (g *PoolGateway) Close() {
	g.pool.Close()
}

// Pool exposes the underlying pool for health checks.
func (g *PoolGateway) Pool() *pgxpool.Pool {
	return g.pool
}
