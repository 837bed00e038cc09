package stats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/moneta-ledger/moneta/internal/ledger"
	"github.com/moneta-ledger/moneta/internal/platform/async"
)

// ErrIncompleteYear is returned when a per-month series does not hold
// exactly twelve rows.
var ErrIncompleteYear = errors.New("stats: monthly series must have 12 rows")

// SaleSource answers the sale aggregates.
type SaleSource interface {
	TotalsBetween(ctx context.Context, from, to time.Time) (ledger.SaleTotals, error)
	MonthlyTotals(ctx context.Context, year int, loc *time.Location) ([]ledger.MonthlySaleTotals, error)
}

// ExpenseSource answers the expense aggregates.
type ExpenseSource interface {
	TotalsBetween(ctx context.Context, from, to time.Time) (ledger.ExpenseTotals, error)
	MonthlyTotals(ctx context.Context, year int, loc *time.Location) ([]ledger.MonthlyExpenseTotals, error)
}

// AggregatorConfig collects the aggregator's dependencies. Cache, Logger,
// Location and Clock are optional.
type AggregatorConfig struct {
	Sales    SaleSource
	Expenses ExpenseSource
	Pool     *async.Pool
	Cache    *Cache
	Logger   *slog.Logger
	Location *time.Location
	Clock    func() time.Time
}

// Aggregator computes Stats from the ledger aggregates.
type Aggregator struct {
	sales    SaleSource
	expenses ExpenseSource
	pool     *async.Pool
	cache    *Cache
	logger   *slog.Logger
	location *time.Location
	clock    func() time.Time
}

// NewAggregator wires an Aggregator.
func NewAggregator(cfg AggregatorConfig) *Aggregator {
	a := &Aggregator{
		sales:    cfg.Sales,
		expenses: cfg.Expenses,
		pool:     cfg.Pool,
		cache:    cfg.Cache,
		logger:   cfg.Logger,
		location: cfg.Location,
		clock:    cfg.Clock,
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	if a.location == nil {
		a.location = time.Local
	}
	if a.clock == nil {
		a.clock = time.Now
	}
	return a
}

// ResolveWindow resolves month and year against the aggregator's clock.
func (a *Aggregator) ResolveWindow(month Month, year int) (Window, error) {
	return ResolveWindow(month, year, a.clock(), a.location)
}

// Monthly summarises one month, or the whole year for WholeYear. The sale and
// expense aggregates run concurrently; either one failing counts as zero, and
// such a partial summary is not cached.
func (a *Aggregator) Monthly(ctx context.Context, month Month, year int) *async.Future[Stats] {
	window, err := a.ResolveWindow(month, year)
	if err != nil {
		return async.Completed(Stats{}, err)
	}
	return cached(ctx, a, fmt.Sprintf("monthly:%d:%d", window.Year, window.Month), func(ctx context.Context) *async.Future[outcome[Stats]] {
		return a.monthly(ctx, window)
	})
}

// YearSummary summarises the whole year.
func (a *Aggregator) YearSummary(ctx context.Context, year int) *async.Future[Stats] {
	return a.Monthly(ctx, WholeYear, year)
}

// Yearly returns twelve monthly summaries, January first.
func (a *Aggregator) Yearly(ctx context.Context, year int) *async.Future[[]Stats] {
	if year <= 0 {
		year = a.clock().In(a.location).Year()
	}
	return cached(ctx, a, fmt.Sprintf("yearly:%d", year), func(ctx context.Context) *async.Future[outcome[[]Stats]] {
		return a.yearly(ctx, year)
	})
}

// Invalidate drops every cached summary.
func (a *Aggregator) Invalidate(ctx context.Context) {
	if err := a.cache.Invalidate(ctx); err != nil {
		a.logger.Warn("invalidate stats cache", slog.Any("error", err))
	}
}

// outcome is a computed summary and whether it is partial.
type outcome[T any] struct {
	value   T
	partial bool
}

func (a *Aggregator) monthly(ctx context.Context, w Window) *async.Future[outcome[Stats]] {
	sales := async.Submit(ctx, a.pool, func(ctx context.Context) (ledger.SaleTotals, error) {
		return a.sales.TotalsBetween(ctx, w.From, w.To)
	})
	expenses := async.Submit(ctx, a.pool, func(ctx context.Context) (ledger.ExpenseTotals, error) {
		return a.expenses.TotalsBetween(ctx, w.From, w.To)
	})
	return async.Combine(sales, expenses, func(s ledger.SaleTotals, errS error, e ledger.ExpenseTotals, errE error) (outcome[Stats], error) {
		if errS != nil {
			a.logger.Warn("sale totals unavailable, counting as zero", slog.Time("from", w.From), slog.Any("error", errS))
			s = ledger.SaleTotals{}
		}
		if errE != nil {
			a.logger.Warn("expense totals unavailable, counting as zero", slog.Time("from", w.From), slog.Any("error", errE))
			e = ledger.ExpenseTotals{}
		}
		return outcome[Stats]{
			value:   Compute(w.Month, w.Year, s, e.Amount),
			partial: errS != nil || errE != nil,
		}, nil
	})
}

func (a *Aggregator) yearly(ctx context.Context, year int) *async.Future[outcome[[]Stats]] {
	sales := async.Submit(ctx, a.pool, func(ctx context.Context) ([]ledger.MonthlySaleTotals, error) {
		return a.sales.MonthlyTotals(ctx, year, a.location)
	})
	expenses := async.Submit(ctx, a.pool, func(ctx context.Context) ([]ledger.MonthlyExpenseTotals, error) {
		return a.expenses.MonthlyTotals(ctx, year, a.location)
	})
	return async.Combine(sales, expenses, func(s []ledger.MonthlySaleTotals, errS error, e []ledger.MonthlyExpenseTotals, errE error) (outcome[[]Stats], error) {
		if err := errors.Join(errS, errE); err != nil {
			return outcome[[]Stats]{}, fmt.Errorf("stats: yearly %d: %w", year, err)
		}
		if len(s) != 12 || len(e) != 12 {
			return outcome[[]Stats]{}, fmt.Errorf("%w: year %d has %d sale and %d expense rows", ErrIncompleteYear, year, len(s), len(e))
		}
		out := make([]Stats, 12)
		for i := range out {
			out[i] = Compute(Month(i+1), year, s[i].SaleTotals, e[i].Amount)
		}
		return outcome[[]Stats]{value: out}, nil
	})
}

// cached serves compute through the summary cache. Partial outcomes are
// returned but not stored.
func cached[T any](ctx context.Context, a *Aggregator, name string, compute func(context.Context) *async.Future[outcome[T]]) *async.Future[T] {
	ctx = context.WithoutCancel(ctx)
	return async.Spawn(a.pool, func() (T, error) {
		return Fetch(ctx, a.cache, name, func(ctx context.Context) (T, bool, error) {
			out, err := compute(ctx).Join()
			return out.value, !out.partial, err
		})
	})
}
