package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/moneta-ledger/moneta/internal/platform/async"
	"github.com/moneta-ledger/moneta/internal/store"
	"github.com/moneta-ledger/moneta/internal/testing/pgfake"
)

var stamp = time.Date(2024, 5, 14, 12, 30, 0, 0, time.UTC)

func testOptions() store.Options {
	return store.Options{Pool: async.NewPool(2, nil)}
}

func TestSaleInsertCopiesGeneratedColumns(t *testing.T) {
	gw := pgfake.NewGateway()
	gw.OnQuery(InsertSale, func(args []any) (*pgfake.Rows, error) {
		quantity := args[2].(int)
		unit, cost := args[3].(float64), args[4].(float64)
		return pgfake.NewRows(SaleInsertColumns,
			[]any{int64(11), stamp, unit * float64(quantity), (unit - cost) * float64(quantity)}), nil
	})
	repo := NewSaleRepository(gw, testOptions())
	t.Cleanup(repo.Close)

	sale := &Sale{ProductID: 1, ProductName: "Sticker A", Quantity: 2, UnitPrice: 20, CostPrice: 10, Marketplace: MarketplaceOzon}
	require.NoError(t, repo.Insert(context.Background(), sale))
	require.Equal(t, int64(11), sale.ID)
	require.Equal(t, stamp, sale.Date)
	require.InDelta(t, 40.0, sale.TotalPrice, 1e-9)
	require.InDelta(t, 20.0, sale.Margin, 1e-9)

	args := gw.Calls(InsertSale)[0].Args
	require.Equal(t, "Ozon", args[5])
}

func TestSaleScanAndUpdateArgs(t *testing.T) {
	gw := pgfake.NewGateway()
	gw.OnQuery(SelectSaleByID, func([]any) (*pgfake.Rows, error) {
		return pgfake.NewRows(SaleColumns,
			[]any{int64(3), stamp, int64(1), "Sticker A", 2, 20.0, 40.0, 10.0, 20.0, "Avito", "gift"}), nil
	})
	repo := NewSaleRepository(gw, testOptions())
	t.Cleanup(repo.Close)
	ctx := context.Background()

	sale, err := repo.Get(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, MarketplaceAvito, sale.Marketplace)
	require.Equal(t, "gift", sale.Comment)

	require.NoError(t, repo.Save(ctx, sale))
	args := gw.Calls(UpdateSale)[0].Args
	require.Len(t, args, 9)
	require.Equal(t, int64(3), args[8])
	require.Equal(t, stamp, args[0])
}

func TestExpenseAndPurchaseInsert(t *testing.T) {
	gw := pgfake.NewGateway()
	gw.OnQuery(InsertExpense, func([]any) (*pgfake.Rows, error) {
		return pgfake.NewRows(ExpenseInsertColumns, []any{int64(5), stamp}), nil
	})
	gw.OnQuery(InsertPurchase, func(args []any) (*pgfake.Rows, error) {
		total := args[2].(float64) * float64(args[3].(int))
		return pgfake.NewRows(PurchaseInsertColumns, []any{int64(6), stamp, total}), nil
	})
	expenses := NewExpenseRepository(gw, testOptions())
	purchases := NewPurchaseRepository(gw, testOptions())
	t.Cleanup(expenses.Close)
	t.Cleanup(purchases.Close)
	ctx := context.Background()

	expense := &Expense{Category: ExpenseAdvertising, Description: "banner", Amount: 15}
	require.NoError(t, expenses.Insert(ctx, expense))
	require.Equal(t, int64(5), expense.ID)
	require.Equal(t, "Реклама", gw.Calls(InsertExpense)[0].Args[0])

	purchase := &Purchase{ProductID: 1, ProductName: "Sticker A", CostPrice: 10, Quantity: 5}
	require.NoError(t, purchases.Insert(ctx, purchase))
	require.Equal(t, int64(6), purchase.ID)
	require.InDelta(t, 50.0, purchase.TotalPrice, 1e-9)
}

func TestGetAllSinceUsesTimestampFilter(t *testing.T) {
	gw := pgfake.NewGateway()
	gw.OnQuery(SelectExpensesSince, func([]any) (*pgfake.Rows, error) {
		return pgfake.NewRows(ExpenseColumns, []any{int64(1), stamp, "Налоги", "q2", 100.0, ""}), nil
	})
	repo := NewExpenseRepository(gw, testOptions())
	t.Cleanup(repo.Close)

	since := stamp.Add(-time.Hour)
	got, err := repo.GetAll(context.Background(), false, since)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, ExpenseTaxes, got[0].Category)
	require.Equal(t, since, gw.Calls(SelectExpensesSince)[0].Args[0])
}

func TestAggregates(t *testing.T) {
	gw := pgfake.NewGateway()
	gw.OnQuery(SaleWindowTotals, func([]any) (*pgfake.Rows, error) {
		return pgfake.NewRows([]string{"sales_count", "turnover", "revenue", "avg_margin"}, []any{int64(1), 40.0, 20.0, 20.0}), nil
	})
	gw.OnQuery(ExpenseMonthlyTotals, func(args []any) (*pgfake.Rows, error) {
		require.Equal(t, 2024, args[0])
		require.Equal(t, "Europe/Moscow", args[1])
		rows := make([][]any, 0, 12)
		for m := 1; m <= 12; m++ {
			rows = append(rows, []any{m, float64(m)})
		}
		return pgfake.NewRows([]string{"month", "total_amount"}, rows...), nil
	})
	gw.OnQuery(ExpenseWindowTotals, func([]any) (*pgfake.Rows, error) {
		return nil, errors.New("timeout")
	})
	sales := NewSaleRepository(gw, testOptions())
	expenses := NewExpenseRepository(gw, testOptions())
	t.Cleanup(sales.Close)
	t.Cleanup(expenses.Close)
	ctx := context.Background()

	from := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	totals, err := sales.TotalsBetween(ctx, from, from.AddDate(0, 1, 0))
	require.NoError(t, err)
	require.Equal(t, SaleTotals{SalesCount: 1, Turnover: 40, Revenue: 20, AvgMargin: 20}, totals)
	require.Equal(t, from.AddDate(0, 1, 0), gw.Calls(SaleWindowTotals)[0].Args[1])

	moscow := time.FixedZone("Europe/Moscow", 3*3600)
	series, err := expenses.MonthlyTotals(ctx, 2024, moscow)
	require.NoError(t, err)
	require.Len(t, series, 12)
	require.Equal(t, 12, series[11].Month)
	require.InDelta(t, 12.0, series[11].Amount, 1e-9)

	_, err = expenses.TotalsBetween(ctx, from, from)
	require.ErrorIs(t, err, store.ErrPersistence)
}

func TestParseLedgerEnums(t *testing.T) {
	m, ok := ParseMarketplace("wildberries")
	require.True(t, ok)
	require.Equal(t, MarketplaceWildberries, m)
	_, ok = ParseMarketplace("Amazon")
	require.False(t, ok)

	c, ok := ParseExpenseCategory("Закупка")
	require.True(t, ok)
	require.Equal(t, ExpensePurchase, c)
}

func TestZoneName(t *testing.T) {
	require.Equal(t, "UTC", ZoneName(nil))
	require.Equal(t, "UTC", ZoneName(time.Local))
	require.Equal(t, "UTC", ZoneName(time.UTC))
	require.Equal(t, "Asia/Yekaterinburg", ZoneName(time.FixedZone("Asia/Yekaterinburg", 5*3600)))
}
