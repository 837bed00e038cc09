package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/moneta-ledger/moneta/internal/store"
)

// Aggregate statements. Windows are half-open: [$1, $2). The monthly series
// bucket timestamps by calendar month in the zone named by $2.
const (
	SaleWindowTotals = `SELECT COUNT(*) AS sales_count,
       COALESCE(SUM(total_price), 0) AS turnover,
       COALESCE(SUM(margin), 0) AS revenue,
       COALESCE(AVG(margin), 0) AS avg_margin
FROM sales
WHERE sale_date >= $1 AND sale_date < $2`
	SaleMonthlyTotals = `SELECT m.month AS month,
       COUNT(s.id) AS sales_count,
       COALESCE(SUM(s.total_price), 0) AS turnover,
       COALESCE(SUM(s.margin), 0) AS revenue,
       COALESCE(AVG(s.margin), 0) AS avg_margin
FROM generate_series(1, 12) AS m(month)
LEFT JOIN sales s
       ON EXTRACT(MONTH FROM s.sale_date AT TIME ZONE $2) = m.month
      AND EXTRACT(YEAR FROM s.sale_date AT TIME ZONE $2) = $1
GROUP BY m.month
ORDER BY m.month`
	ExpenseWindowTotals = `SELECT COALESCE(SUM(amount), 0) AS total_amount
FROM expenses
WHERE expense_date >= $1 AND expense_date < $2`
	ExpenseMonthlyTotals = `SELECT m.month AS month,
       COALESCE(SUM(e.amount), 0) AS total_amount
FROM generate_series(1, 12) AS m(month)
LEFT JOIN expenses e
       ON EXTRACT(MONTH FROM e.expense_date AT TIME ZONE $2) = m.month
      AND EXTRACT(YEAR FROM e.expense_date AT TIME ZONE $2) = $1
GROUP BY m.month
ORDER BY m.month`
)

// SaleTotals aggregates the sales of one window.
type SaleTotals struct {
	SalesCount int     `db:"sales_count"`
	Turnover   float64 `db:"turnover"`
	Revenue    float64 `db:"revenue"`
	AvgMargin  float64 `db:"avg_margin"`
}

// MonthlySaleTotals is one row of the per-month sale series.
type MonthlySaleTotals struct {
	Month int `db:"month"`
	SaleTotals
}

// ExpenseTotals aggregates the expenses of one window.
type ExpenseTotals struct {
	Amount float64 `db:"total_amount"`
}

// MonthlyExpenseTotals is one row of the per-month expense series.
type MonthlyExpenseTotals struct {
	Month int `db:"month"`
	ExpenseTotals
}

// TotalsBetween aggregates the sales dated in [from, to).
func (r *SaleRepository) TotalsBetween(ctx context.Context, from, to time.Time) (SaleTotals, error) {
	rows, err := r.gw.Query(ctx, SaleWindowTotals, from, to)
	if err != nil {
		return SaleTotals{}, aggregateFailure("sale totals", err)
	}
	totals, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[SaleTotals])
	if err != nil {
		return SaleTotals{}, aggregateFailure("sale totals", err)
	}
	return totals, nil
}

// MonthlyTotals returns the per-month sale series of year in loc, January
// first.
func (r *SaleRepository) MonthlyTotals(ctx context.Context, year int, loc *time.Location) ([]MonthlySaleTotals, error) {
	rows, err := r.gw.Query(ctx, SaleMonthlyTotals, year, ZoneName(loc))
	if err != nil {
		return nil, aggregateFailure("monthly sale totals", err)
	}
	series, err := pgx.CollectRows(rows, pgx.RowToStructByName[MonthlySaleTotals])
	if err != nil {
		return nil, aggregateFailure("monthly sale totals", err)
	}
	return series, nil
}

// TotalsBetween aggregates the expenses dated in [from, to).
func (r *ExpenseRepository) TotalsBetween(ctx context.Context, from, to time.Time) (ExpenseTotals, error) {
	rows, err := r.gw.Query(ctx, ExpenseWindowTotals, from, to)
	if err != nil {
		return ExpenseTotals{}, aggregateFailure("expense totals", err)
	}
	totals, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[ExpenseTotals])
	if err != nil {
		return ExpenseTotals{}, aggregateFailure("expense totals", err)
	}
	return totals, nil
}

// MonthlyTotals returns the per-month expense series of year in loc, January
// first.
func (r *ExpenseRepository) MonthlyTotals(ctx context.Context, year int, loc *time.Location) ([]MonthlyExpenseTotals, error) {
	rows, err := r.gw.Query(ctx, ExpenseMonthlyTotals, year, ZoneName(loc))
	if err != nil {
		return nil, aggregateFailure("monthly expense totals", err)
	}
	series, err := pgx.CollectRows(rows, pgx.RowToStructByName[MonthlyExpenseTotals])
	if err != nil {
		return nil, aggregateFailure("monthly expense totals", err)
	}
	return series, nil
}

// ZoneName returns the IANA name Postgres should bucket by. time.Local has
// no portable name, so it and nil map to UTC.
func ZoneName(loc *time.Location) string {
	if loc == nil || loc == time.Local || loc.String() == "Local" {
		return "UTC"
	}
	return loc.String()
}

func aggregateFailure(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("ledger: %s: %w", op, store.ErrNotFound)
	}
	return fmt.Errorf("ledger: %s: %w: %w", op, store.ErrPersistence, err)
}
