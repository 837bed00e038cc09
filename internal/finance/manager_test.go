package finance

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/moneta-ledger/moneta/internal/catalog"
	"github.com/moneta-ledger/moneta/internal/checkpoint"
	"github.com/moneta-ledger/moneta/internal/ledger"
	"github.com/moneta-ledger/moneta/internal/platform/async"
	"github.com/moneta-ledger/moneta/internal/stats"
	"github.com/moneta-ledger/moneta/internal/store"
	"github.com/moneta-ledger/moneta/internal/testing/pgfake"
)

var stamp = time.Date(2024, 5, 14, 12, 30, 0, 0, time.UTC)

type stubStats struct {
	invalidations atomic.Int32
}

func (s *stubStats) Monthly(_ context.Context, month stats.Month, year int) *async.Future[stats.Stats] {
	return async.Completed(stats.Stats{Month: month, Year: year}, nil)
}

func (s *stubStats) Yearly(_ context.Context, year int) *async.Future[[]stats.Stats] {
	return async.Completed(make([]stats.Stats, 12), nil)
}

func (s *stubStats) YearSummary(_ context.Context, year int) *async.Future[stats.Stats] {
	return async.Completed(stats.Stats{Month: stats.WholeYear, Year: year}, nil)
}

func (s *stubStats) Invalidate(context.Context) {
	s.invalidations.Add(1)
}

type fixture struct {
	gw      *pgfake.Gateway
	manager *Manager
	stats   *stubStats
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newCachedFixture(t, store.CacheConfig{})
}

func newCachedFixture(t *testing.T, cache store.CacheConfig) *fixture {
	t.Helper()
	gw := pgfake.NewGateway()
	pool := async.NewPool(4, nil)
	opts := store.Options{Pool: pool, Cache: cache}
	st := &stubStats{}
	m := NewManager(Config{
		Products:   catalog.NewProductRepository(gw, opts),
		Sales:      ledger.NewSaleRepository(gw, opts),
		Expenses:   ledger.NewExpenseRepository(gw, opts),
		Purchases:  ledger.NewPurchaseRepository(gw, opts),
		Checkpoint: checkpoint.NewStore(gw, nil),
		Stats:      st,
		Store:      gw,
		Pool:       pool,
	})
	t.Cleanup(func() { _ = m.Close(context.Background()) })

	gw.OnQuery(catalog.SelectProductByName, func(args []any) (*pgfake.Rows, error) {
		if args[0].(string) != "Sticker A" {
			return pgfake.NewRows(catalog.ProductColumns), nil
		}
		return pgfake.NewRows(catalog.ProductColumns,
			[]any{int64(1), "Sticker A", string(catalog.CategoryDesign), 10.0, 20.0, string(catalog.UnitPiece), "Print Co", 5, 1, string(catalog.StatusActive)}), nil
	})
	gw.OnQuery(ledger.InsertSale, func(args []any) (*pgfake.Rows, error) {
		quantity := args[2].(int)
		unit, cost := args[3].(float64), args[4].(float64)
		return pgfake.NewRows(ledger.SaleInsertColumns,
			[]any{int64(100), stamp, unit * float64(quantity), (unit - cost) * float64(quantity)}), nil
	})
	gw.OnQuery(ledger.InsertPurchase, func(args []any) (*pgfake.Rows, error) {
		total := args[2].(float64) * float64(args[3].(int))
		return pgfake.NewRows(ledger.PurchaseInsertColumns, []any{int64(200), stamp, total}), nil
	})
	gw.OnQuery(ledger.InsertExpense, func([]any) (*pgfake.Rows, error) {
		return pgfake.NewRows(ledger.ExpenseInsertColumns, []any{int64(300), stamp}), nil
	})
	return &fixture{gw: gw, manager: m, stats: st}
}

func await[T any](t *testing.T, f *async.Future[T]) T {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	v, err := f.Await(ctx)
	require.NoError(t, err)
	return v
}

func TestRecordSaleFreezesPricesAndDecrementsStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp := await(t, f.manager.RecordSale(ctx, "Sticker A", 2, ledger.MarketplaceAvito, "first order"))
	require.Equal(t, OK(MsgSaleAdded), resp)

	product := await(t, f.manager.ProductByName(ctx, "Sticker A"))
	require.Equal(t, 3, product.Stock())

	calls := f.gw.Calls(ledger.InsertSale)
	require.Len(t, calls, 1)
	args := calls[0].Args
	require.Equal(t, int64(1), args[0])
	require.Equal(t, 2, args[2])
	require.Equal(t, 20.0, args[3])
	require.Equal(t, 10.0, args[4])
	require.Equal(t, "Avito", args[5])
	require.Equal(t, "first order", args[6])

	require.EqualValues(t, 1, f.stats.invalidations.Load())

	// Stock is persisted lazily.
	require.Empty(t, f.gw.Calls(catalog.UpdateProduct))
	require.NoError(t, f.manager.FlushAll(ctx))
	updates := f.gw.Calls(catalog.UpdateProduct)
	require.Len(t, updates, 1)
	require.Equal(t, 3, updates[0].Args[6])
}

func TestRecordSaleUsesDefaultComment(t *testing.T) {
	f := newFixture(t)

	resp := await(t, f.manager.RecordSale(context.Background(), "Sticker A", 1, ledger.MarketplaceOzon, ""))
	require.True(t, resp.Success)
	require.Equal(t, DefaultComment, f.gw.Calls(ledger.InsertSale)[0].Args[6])
}

func TestRecordSaleInsertFailureKeepsStockChange(t *testing.T) {
	f := newFixture(t)
	f.gw.OnQuery(ledger.InsertSale, func([]any) (*pgfake.Rows, error) {
		return nil, errors.New("connection reset")
	})
	ctx := context.Background()

	resp := await(t, f.manager.RecordSale(ctx, "Sticker A", 2, ledger.MarketplaceAvito, ""))
	require.False(t, resp.Success)
	require.Contains(t, resp.Message, MsgSaleFailed+": ")
	require.Contains(t, resp.Message, "connection reset")

	product := await(t, f.manager.ProductByName(ctx, "Sticker A"))
	require.Equal(t, 3, product.Stock())
	require.Zero(t, f.stats.invalidations.Load())
}

func TestRecordPurchaseCascadesIntoExpense(t *testing.T) {
	f := newFixture(t)
	f.gw.OnQuery(catalog.SelectProductByName, func(args []any) (*pgfake.Rows, error) {
		return pgfake.NewRows(catalog.ProductColumns,
			[]any{int64(2), args[0].(string), string(catalog.CategoryAccessories), 5.0, 9.0, string(catalog.UnitPiece), "Bead House", 0, 1, string(catalog.StatusActive)}), nil
	})
	ctx := context.Background()

	resp := await(t, f.manager.RecordPurchase(ctx, "Beads", 10, true, "restock"))
	require.Equal(t, OK(MsgPurchaseExpenseAdded), resp)

	purchases := f.gw.Calls(ledger.InsertPurchase)
	require.Len(t, purchases, 1)
	require.Equal(t, 5.0, purchases[0].Args[2])
	require.Equal(t, 10, purchases[0].Args[3])
	require.Equal(t, "Bead House", purchases[0].Args[4])

	expenses := f.gw.Calls(ledger.InsertExpense)
	require.Len(t, expenses, 1)
	require.Equal(t, string(ledger.ExpensePurchase), expenses[0].Args[0])
	require.Equal(t, "Закупка товара Beads", expenses[0].Args[1])
	require.Equal(t, 50.0, expenses[0].Args[2])
	require.Equal(t, "restock", expenses[0].Args[3])

	product := await(t, f.manager.ProductByName(ctx, "Beads"))
	require.Equal(t, 10, product.Stock())
}

func TestRecordPurchaseCompletesAfterCallerCancels(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.gw.OnQuery(ledger.InsertPurchase, func(args []any) (*pgfake.Rows, error) {
		cancel()
		total := args[2].(float64) * float64(args[3].(int))
		return pgfake.NewRows(ledger.PurchaseInsertColumns, []any{int64(200), stamp, total}), nil
	})

	resp := await(t, f.manager.RecordPurchase(ctx, "Sticker A", 10, true, ""))
	require.Equal(t, OK(MsgPurchaseExpenseAdded), resp)
	require.ErrorIs(t, ctx.Err(), context.Canceled)
	require.Len(t, f.gw.Calls(ledger.InsertPurchase), 1)
	require.Len(t, f.gw.Calls(ledger.InsertExpense), 1)
	require.EqualValues(t, 1, f.stats.invalidations.Load())
}

func TestRecordSaleIgnoresCancelledContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp := await(t, f.manager.RecordSale(ctx, "Sticker A", 1, ledger.MarketplaceOzon, ""))
	require.Equal(t, OK(MsgSaleAdded), resp)
	require.Len(t, f.gw.Calls(ledger.InsertSale), 1)
}

func TestRecordPurchaseWithoutCascade(t *testing.T) {
	f := newFixture(t)

	resp := await(t, f.manager.RecordPurchase(context.Background(), "Sticker A", 10, false, ""))
	require.Equal(t, OK(MsgPurchaseAdded), resp)
	require.Len(t, f.gw.Calls(ledger.InsertPurchase), 1)
	require.Empty(t, f.gw.Calls(ledger.InsertExpense))
	require.Zero(t, f.stats.invalidations.Load())
}

func TestRecordPurchaseMasksCascadeFailure(t *testing.T) {
	f := newFixture(t)
	f.gw.OnQuery(ledger.InsertExpense, func([]any) (*pgfake.Rows, error) {
		return nil, errors.New("expenses table locked")
	})

	resp := await(t, f.manager.RecordPurchase(context.Background(), "Sticker A", 3, true, ""))
	require.Equal(t, OK(MsgPurchaseExpenseAdded), resp)
	require.Len(t, f.gw.Calls(ledger.InsertPurchase), 1)
	require.Len(t, f.gw.Calls(ledger.InsertExpense), 1)
}

func TestMissingProductFailsWithoutWrites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sale := await(t, f.manager.RecordSale(ctx, "Ghost", 1, ledger.MarketplaceAvito, ""))
	require.Equal(t, Fail(MsgProductNotFound), sale)

	purchase := await(t, f.manager.RecordPurchase(ctx, "Ghost", 1, true, ""))
	require.Equal(t, Fail(MsgProductNotFound), purchase)

	require.Empty(t, f.gw.Calls(ledger.InsertSale))
	require.Empty(t, f.gw.Calls(ledger.InsertPurchase))
	require.Empty(t, f.gw.Calls(ledger.InsertExpense))
	require.NoError(t, f.manager.FlushAll(ctx))
	require.Empty(t, f.gw.Calls(catalog.UpdateProduct))
}

func TestRecordExpense(t *testing.T) {
	f := newFixture(t)

	resp := await(t, f.manager.RecordExpense(context.Background(), ledger.ExpenseAdvertising, "Avito promo", 150, ""))
	require.Equal(t, OK(MsgExpenseAdded), resp)
	args := f.gw.Calls(ledger.InsertExpense)[0].Args
	require.Equal(t, "Реклама", args[0])
	require.Equal(t, DefaultComment, args[3])
	require.EqualValues(t, 1, f.stats.invalidations.Load())
}

func TestAddProduct(t *testing.T) {
	f := newFixture(t)
	f.gw.OnQuery(catalog.InsertProduct, func(args []any) (*pgfake.Rows, error) {
		if args[0].(string) == "Sticker A" {
			return nil, &pgconn.PgError{Code: "23505"}
		}
		return pgfake.NewRows([]string{"id"}, []any{int64(7)}), nil
	})
	ctx := context.Background()

	resp := await(t, f.manager.AddProduct(ctx, NewProduct{
		Name: "Cap", Category: catalog.CategoryHeadwear, CostPrice: 4, RetailPrice: 12,
		Unit: catalog.UnitPiece, Supplier: "Hat Co", Minimum: 2, Status: catalog.StatusActive,
	}))
	require.Equal(t, OK(MsgProductAdded), resp)
	args := f.gw.Calls(catalog.InsertProduct)[0].Args
	require.Equal(t, 0, args[6])

	added := await(t, f.manager.Product(ctx, 7))
	require.Equal(t, "Cap", added.Name())

	dup := await(t, f.manager.AddProduct(ctx, NewProduct{Name: "Sticker A", Category: catalog.CategoryDesign}))
	require.Equal(t, Fail(MsgProductDuplicate), dup)
}

func TestCloseFlushesAndClosesStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	await(t, f.manager.RecordSale(ctx, "Sticker A", 1, ledger.MarketplaceWildberries, ""))
	require.NoError(t, f.manager.Close(ctx))
	require.NoError(t, f.manager.Close(ctx))

	require.Len(t, f.gw.Calls(catalog.UpdateProduct), 1)
	require.Len(t, f.gw.Calls(ledger.UpdateSale), 1)
	require.True(t, f.gw.Closed())
}

func TestCloseWritesExpiredEntriesBackOnce(t *testing.T) {
	f := newCachedFixture(t, store.CacheConfig{TTL: 20 * time.Millisecond})
	ctx := context.Background()

	resp := await(t, f.manager.RecordSale(ctx, "Sticker A", 1, ledger.MarketplaceAvito, ""))
	require.True(t, resp.Success)
	time.Sleep(40 * time.Millisecond)
	require.NoError(t, f.manager.Close(ctx))

	require.Len(t, f.gw.Calls(ledger.UpdateSale), 1)
	updates := f.gw.Calls(catalog.UpdateProduct)
	require.Len(t, updates, 1)
	require.Equal(t, 4, updates[0].Args[6])
	require.True(t, f.gw.Closed())
}

func TestCheckpointRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.gw.OnQuery(checkpoint.SelectCheckpoint, func([]any) (*pgfake.Rows, error) {
		return pgfake.NewRows(checkpoint.Columns, []any{int64(1), stamp}), nil
	})
	ctx := context.Background()

	cp, err := f.manager.Checkpoint(ctx)
	require.NoError(t, err)
	require.Equal(t, stamp, cp.ExportedAt)

	next := stamp.Add(time.Hour)
	require.NoError(t, f.manager.UpdateCheckpoint(ctx, next))
	cp, err = f.manager.Checkpoint(ctx)
	require.NoError(t, err)
	require.Equal(t, next, cp.ExportedAt)
}

func TestAllSalesSinceUsesWatermark(t *testing.T) {
	f := newFixture(t)
	f.gw.OnQuery(ledger.SelectSalesSince, func(args []any) (*pgfake.Rows, error) {
		require.Equal(t, stamp, args[0])
		return pgfake.NewRows(ledger.SaleColumns,
			[]any{int64(9), stamp.Add(time.Minute), int64(1), "Sticker A", 1, 20.0, 20.0, 10.0, 10.0, "Ozon", DefaultComment}), nil
	})

	sales := await(t, f.manager.AllSales(context.Background(), false, stamp))
	require.Len(t, sales, 1)
	require.Equal(t, ledger.MarketplaceOzon, sales[0].Marketplace)
}
