// Package store keeps cached entities coherent with the ledger database
// through read-through loads and write-back on eviction.
package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/moneta-ledger/moneta/internal/observability"
	"github.com/moneta-ledger/moneta/internal/platform/async"
	"github.com/moneta-ledger/moneta/internal/platform/db"
)

// Statements lists the SQL an Adapter runs. SelectSince takes the lower
// time bound as $1 and may be empty for entities without a timestamp.
type Statements struct {
	SelectByID  string
	SelectAll   string
	SelectSince string
	// Insert must RETURN every store-generated column.
	Insert string
	Update string
}

// Adapter maps one entity type onto its table.
type Adapter[K comparable, E any] interface {
	Name() string
	Statements() Statements
	Key(e *E) K
	Scan(row pgx.CollectableRow) (*E, error)
	InsertArgs(e *E) []any
	// UpdateArgs must end with the key bound to the WHERE clause.
	UpdateArgs(e *E) []any
	// Finalize copies the columns returned by Insert onto e.
	Finalize(e *E, row pgx.CollectableRow) error
}

// DataRepository is the uniform contract every entity repository offers.
type DataRepository[K comparable, E any] interface {
	Get(ctx context.Context, id K) (*E, error)
	GetAll(ctx context.Context, addToCache bool, since time.Time) ([]*E, error)
	Insert(ctx context.Context, e *E) error
	Save(ctx context.Context, e *E) error
	FlushAll(ctx context.Context) error
	Close()
}

// Options configures a Repository.
type Options struct {
	Cache   CacheConfig
	Pool    *async.Pool
	Logger  *slog.Logger
	Metrics *observability.CacheMetrics
}

// Repository is the generic cache-fronted repository engine.
type Repository[K comparable, E any] struct {
	gw      db.Gateway
	adapter Adapter[K, E]
	stmts   Statements
	cache   *Cache[K, *E]
	pool    *async.Pool
	logger  *slog.Logger
	metrics *observability.CacheMetrics

	// pending counts write-backs per key that have not finished yet.
	pendingMu sync.Mutex
	settled   *sync.Cond
	pending   map[K]int
}

var _ DataRepository[int64, struct{}] = (*Repository[int64, struct{}])(nil)

// New builds a Repository and starts its cache janitor.
func New[K comparable, E any](gw db.Gateway, adapter Adapter[K, E], opts Options) *Repository[K, E] {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Repository[K, E]{
		gw:      gw,
		adapter: adapter,
		stmts:   adapter.Statements(),
		pool:    opts.Pool,
		logger:  logger.With(slog.String("repository", adapter.Name())),
		metrics: opts.Metrics,
		pending: make(map[K]int),
	}
	r.settled = sync.NewCond(&r.pendingMu)
	r.cache = NewCache[K, *E](opts.Cache, r.onEvict)
	r.cache.Start()
	return r
}

// onEvict hands the save to a detached pool task. Loads block on pending
// write-backs, so the save must not need a pool slot.
func (r *Repository[K, E]) onEvict(key K, entity *E, cause EvictionCause) {
	r.metrics.Evicted(r.adapter.Name(), cause.String())
	if !cause.WritesBack() || entity == nil {
		return
	}
	r.pendingMu.Lock()
	r.pending[key]++
	r.pendingMu.Unlock()
	r.pool.Detach(func(ctx context.Context) {
		defer r.writeBackDone(key)
		err := r.Save(ctx, entity)
		r.metrics.WroteBack(r.adapter.Name(), err)
		if err != nil {
			r.logger.Warn("write-back after eviction failed",
				slog.Any("key", key),
				slog.String("cause", cause.String()),
				slog.Any("error", err))
		}
	})
}

func (r *Repository[K, E]) writeBackDone(key K) {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()
	r.pending[key]--
	if r.pending[key] <= 0 {
		delete(r.pending, key)
	}
	r.settled.Broadcast()
}

// awaitWriteBack blocks while an evicted copy of key is still being saved.
func (r *Repository[K, E]) awaitWriteBack(key K) {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()
	for r.pending[key] > 0 {
		r.settled.Wait()
	}
}

// Settle reaps expired entries and blocks until every write-back dispatched
// so far has finished. Loads by something other than the key call it first.
func (r *Repository[K, E]) Settle() {
	r.cache.ReapExpired()
	r.awaitWriteBacks()
}

func (r *Repository[K, E]) awaitWriteBacks() {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()
	for len(r.pending) > 0 {
		r.settled.Wait()
	}
}

// Get returns the cached entity or loads it by id. Concurrent misses on the
// same id all return the instance that was cached first.
func (r *Repository[K, E]) Get(ctx context.Context, id K) (*E, error) {
	if entity, ok := r.cache.Get(id); ok {
		r.metrics.Hit(r.adapter.Name())
		return entity, nil
	}
	r.metrics.Miss(r.adapter.Name())
	r.awaitWriteBack(id)
	entity, err := r.FindOne(ctx, r.stmts.SelectByID, id)
	if err != nil {
		return nil, err
	}
	return r.cache.SetIfAbsent(id, entity), nil
}

// FindOne runs a single-row query without touching the cache.
func (r *Repository[K, E]) FindOne(ctx context.Context, sql string, args ...any) (*E, error) {
	rows, err := r.gw.Query(ctx, sql, args...)
	if err != nil {
		return nil, r.readFailed("get", err)
	}
	entity, err := pgx.CollectOneRow(rows, r.adapter.Scan)
	if err != nil {
		return nil, r.readFailed("get", err)
	}
	return entity, nil
}

// GetAll returns rows stamped strictly after since, or every row when since
// is zero. With addToCache the rows are cached, and rows already cached are
// returned as the cached instance.
func (r *Repository[K, E]) GetAll(ctx context.Context, addToCache bool, since time.Time) ([]*E, error) {
	r.Settle()
	sql, args := r.stmts.SelectAll, []any(nil)
	if !since.IsZero() && r.stmts.SelectSince != "" {
		sql, args = r.stmts.SelectSince, []any{since}
	}
	rows, err := r.gw.Query(ctx, sql, args...)
	if err != nil {
		return nil, r.readFailed("get all", err)
	}
	entities, err := pgx.CollectRows(rows, r.adapter.Scan)
	if err != nil {
		return nil, r.readFailed("get all", err)
	}
	if addToCache {
		for i, entity := range entities {
			entities[i] = r.cache.SetIfAbsent(r.adapter.Key(entity), entity)
		}
	}
	return entities, nil
}

// Insert persists e, copies the generated columns back and caches it.
func (r *Repository[K, E]) Insert(ctx context.Context, e *E) error {
	if e == nil {
		return nil
	}
	rows, err := r.gw.Query(ctx, r.stmts.Insert, r.adapter.InsertArgs(e)...)
	if err != nil {
		return writeFailure(r.adapter.Name(), "insert", err)
	}
	_, err = pgx.CollectOneRow(rows, func(row pgx.CollectableRow) (struct{}, error) {
		return struct{}{}, r.adapter.Finalize(e, row)
	})
	if err != nil {
		return writeFailure(r.adapter.Name(), "insert", err)
	}
	r.cache.Set(r.adapter.Key(e), e)
	return nil
}

// Save overwrites the stored row of e with its full current state.
func (r *Repository[K, E]) Save(ctx context.Context, e *E) error {
	if e == nil {
		return nil
	}
	if err := r.gw.Exec(ctx, r.stmts.Update, r.adapter.UpdateArgs(e)...); err != nil {
		return writeFailure(r.adapter.Name(), "save", err)
	}
	return nil
}

// FlushAll writes every cached entity back in one batch. Expired entries are
// reaped first and take the regular write-back path.
func (r *Repository[K, E]) FlushAll(ctx context.Context) error {
	r.Settle()
	values := r.cache.Values()
	if len(values) == 0 {
		return nil
	}
	argRows := make([][]any, 0, len(values))
	for _, entity := range values {
		argRows = append(argRows, r.adapter.UpdateArgs(entity))
	}
	if err := r.gw.ExecBatch(ctx, r.stmts.Update, argRows); err != nil {
		r.logger.Error("flush cache", slog.Int("entries", len(argRows)), slog.Any("error", err))
		return writeFailure(r.adapter.Name(), "flush", err)
	}
	r.logger.Debug("flushed cache", slog.Int("entries", len(argRows)))
	return nil
}

// Cached returns the cached entity for id without loading it.
func (r *Repository[K, E]) Cached(id K) (*E, bool) {
	return r.cache.Get(id)
}

// Adopt caches e unless an entity with the same key is already cached, and
// returns whichever instance is cached afterwards.
func (r *Repository[K, E]) Adopt(e *E) *E {
	return r.cache.SetIfAbsent(r.adapter.Key(e), e)
}

// Evict drops id from the cache without writing it back.
func (r *Repository[K, E]) Evict(id K) {
	r.cache.Delete(id)
}

// CacheLen reports the number of cached entries.
func (r *Repository[K, E]) CacheLen() int {
	return r.cache.Len()
}

// Close stops the cache janitor and returns once no sweep is in flight.
// Cached state is not flushed and stays readable.
func (r *Repository[K, E]) Close() {
	r.cache.Stop()
}

func (r *Repository[K, E]) readFailed(op string, err error) error {
	wrapped := readFailure(r.adapter.Name(), op, err)
	if !isNoRows(err) {
		r.logger.Warn("store read failed", slog.String("op", op), slog.Any("error", err))
	}
	return wrapped
}
