package store

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound indicates the entity exists neither in the cache nor in the store.
	ErrNotFound = errors.New("not found")
	// ErrPersistence indicates the store rejected or failed a statement.
	ErrPersistence = errors.New("persistence failure")
	// ErrDuplicate indicates a unique constraint violation on insert.
	ErrDuplicate = errors.New("duplicate entry")
)

const uniqueViolation = "23505"

// readFailure reports a failed read as an absent entity that still carries
// the persistence cause.
func readFailure(entity, op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("store: %s %s: %w", entity, op, ErrNotFound)
	}
	return fmt.Errorf("store: %s %s: %w: %w: %w", entity, op, ErrNotFound, ErrPersistence, err)
}

func writeFailure(entity, op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("store: %s %s: %w: %w: %w", entity, op, ErrDuplicate, ErrPersistence, err)
	}
	return fmt.Errorf("store: %s %s: %w: %w", entity, op, ErrPersistence, err)
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
