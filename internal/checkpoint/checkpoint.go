// Package checkpoint persists the watermark of the last incremental export.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/moneta-ledger/moneta/internal/platform/db"
)

// Checkpoint statements.
const (
	SelectCheckpoint = "SELECT id, export_date FROM last_export ORDER BY id LIMIT 1"
	InsertCheckpoint = "INSERT INTO last_export (export_date) VALUES ($1) RETURNING id"
	UpdateCheckpoint = "UPDATE last_export SET export_date = $1 WHERE id = $2"
)

// Columns lists the columns SelectCheckpoint returns.
var Columns = []string{"id", "export_date"}

// Beginning is the watermark of a ledger that was never exported. It is the
// zero time, which repositories treat as "no lower bound".
var Beginning = time.Time{}

// ErrNotLoaded is returned when the checkpoint row could not be established.
var ErrNotLoaded = errors.New("checkpoint: not loaded")

// Checkpoint is the single last-export row.
type Checkpoint struct {
	ID         int64     `db:"id"`
	ExportedAt time.Time `db:"export_date"`
}

// Store loads the checkpoint lazily and keeps it in memory afterwards.
type Store struct {
	gw     db.Gateway
	logger *slog.Logger

	mu      sync.Mutex
	current *Checkpoint
}

// NewStore builds a checkpoint store.
func NewStore(gw db.Gateway, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{gw: gw, logger: logger}
}

// Load returns the checkpoint, creating the row at Beginning when the table
// is empty.
func (s *Store) Load(ctx context.Context) (Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return Checkpoint{}, err
	}
	return *s.current, nil
}

// Update moves the watermark to ts. The in-memory value changes even when
// persisting it fails.
func (s *Store) Update(ctx context.Context, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return err
	}
	s.current.ExportedAt = ts
	if err := s.gw.Exec(ctx, UpdateCheckpoint, ts, s.current.ID); err != nil {
		s.logger.Warn("persist checkpoint", slog.Time("exported_at", ts), slog.Any("error", err))
		return fmt.Errorf("checkpoint: update: %w", err)
	}
	return nil
}

func (s *Store) ensureLoaded(ctx context.Context) error {
	if s.current != nil {
		return nil
	}
	rows, err := s.gw.Query(ctx, SelectCheckpoint)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotLoaded, err)
	}
	cp, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[Checkpoint])
	switch {
	case err == nil:
		s.current = &cp
		return nil
	case !errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("%w: %w", ErrNotLoaded, err)
	}

	rows, err = s.gw.Query(ctx, InsertCheckpoint, Beginning)
	if err != nil {
		return fmt.Errorf("%w: create: %w", ErrNotLoaded, err)
	}
	id, err := pgx.CollectOneRow(rows, pgx.RowTo[int64])
	if err != nil {
		return fmt.Errorf("%w: create: %w", ErrNotLoaded, err)
	}
	s.logger.Info("created export checkpoint", slog.Int64("id", id))
	s.current = &Checkpoint{ID: id, ExportedAt: Beginning}
	return nil
}
