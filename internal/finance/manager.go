// Package finance orchestrates the compound ledger operations: recording
// sales, purchases and expenses, catalog additions, and statistics.
package finance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/moneta-ledger/moneta/internal/catalog"
	"github.com/moneta-ledger/moneta/internal/checkpoint"
	"github.com/moneta-ledger/moneta/internal/ledger"
	"github.com/moneta-ledger/moneta/internal/platform/async"
	"github.com/moneta-ledger/moneta/internal/stats"
	"github.com/moneta-ledger/moneta/internal/store"
)

// DefaultComment replaces an empty comment.
const DefaultComment = "———"

const purchaseExpensePrefix = "Закупка товара "

// Config collects the Manager's dependencies.
type Config struct {
	Products   ProductStore
	Sales      SaleStore
	Expenses   ExpenseStore
	Purchases  PurchaseStore
	Checkpoint CheckpointStore
	Stats      StatsSource
	// Store is closed last by Close.
	Store  Closer
	Pool   *async.Pool
	Logger *slog.Logger
}

// Manager runs the compound ledger operations on the shared pool.
type Manager struct {
	products   ProductStore
	sales      SaleStore
	expenses   ExpenseStore
	purchases  PurchaseStore
	checkpoint CheckpointStore
	stats      StatsSource
	store      Closer
	pool       *async.Pool
	logger     *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// NewManager wires a Manager.
func NewManager(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		products:   cfg.Products,
		sales:      cfg.Sales,
		expenses:   cfg.Expenses,
		purchases:  cfg.Purchases,
		checkpoint: cfg.Checkpoint,
		stats:      cfg.Stats,
		store:      cfg.Store,
		pool:       cfg.Pool,
		logger:     logger,
	}
}

type saleState struct {
	product *catalog.Product
	sale    *ledger.Sale
}

// RecordSale looks the product up by name, copies its prices onto a new sale,
// decrements the in-memory stock and inserts the sale. The stock change is not
// rolled back when the insert fails.
//
// Recording operations run to completion once started. Cancelling ctx only
// stops the caller from waiting on the returned future.
func (m *Manager) RecordSale(ctx context.Context, productName string, quantity int, marketplace ledger.Marketplace, comment string) *async.Future[Response] {
	ctx = context.WithoutCancel(ctx)
	comment = withDefault(comment)
	result := async.Pipeline(ctx, m.pool, &saleState{},
		async.Step[*saleState]{Name: "lookup product", Run: func(ctx context.Context, st *saleState) (*saleState, error) {
			product, err := m.products.GetByName(ctx, productName)
			st.product = product
			return st, err
		}},
		async.Step[*saleState]{Name: "reserve stock", Run: func(_ context.Context, st *saleState) (*saleState, error) {
			snap := st.product.Snapshot()
			st.sale = &ledger.Sale{
				ProductID:   snap.ID,
				ProductName: productName,
				Quantity:    quantity,
				UnitPrice:   snap.RetailPrice,
				CostPrice:   snap.CostPrice,
				Marketplace: marketplace,
				Comment:     comment,
			}
			st.product.ReduceStock(quantity)
			return st, nil
		}},
		async.Step[*saleState]{Name: "insert sale", Run: func(ctx context.Context, st *saleState) (*saleState, error) {
			return st, m.sales.Insert(ctx, st.sale)
		}},
	)
	return respondWith(m, result, MsgSaleFailed, func(st *saleState) Response {
		m.logger.Info("sale recorded",
			slog.Int64("sale_id", st.sale.ID),
			slog.String("product", productName),
			slog.Int("quantity", quantity))
		m.stats.Invalidate(ctx)
		return OK(MsgSaleAdded)
	})
}

type purchaseState struct {
	product         *catalog.Product
	purchase        *ledger.Purchase
	expenseRecorded bool
}

// RecordPurchase looks the product up by name, increases its in-memory stock
// and inserts a purchase at the product's cost price. With includeInExpenses
// it also records a purchase expense; a failure of that expense is logged and
// does not fail the purchase.
func (m *Manager) RecordPurchase(ctx context.Context, productName string, quantity int, includeInExpenses bool, comment string) *async.Future[Response] {
	ctx = context.WithoutCancel(ctx)
	comment = withDefault(comment)
	steps := []async.Step[*purchaseState]{
		{Name: "lookup product", Run: func(ctx context.Context, st *purchaseState) (*purchaseState, error) {
			product, err := m.products.GetByName(ctx, productName)
			st.product = product
			return st, err
		}},
		{Name: "receive stock", Run: func(_ context.Context, st *purchaseState) (*purchaseState, error) {
			snap := st.product.Snapshot()
			st.purchase = &ledger.Purchase{
				ProductID:   snap.ID,
				ProductName: productName,
				CostPrice:   snap.CostPrice,
				Quantity:    quantity,
				Supplier:    snap.Supplier,
				Comment:     comment,
			}
			st.product.IncreaseStock(quantity)
			return st, nil
		}},
		{Name: "insert purchase", Run: func(ctx context.Context, st *purchaseState) (*purchaseState, error) {
			return st, m.purchases.Insert(ctx, st.purchase)
		}},
	}
	if includeInExpenses {
		steps = append(steps, async.Step[*purchaseState]{Name: "record purchase expense", Run: func(ctx context.Context, st *purchaseState) (*purchaseState, error) {
			amount := st.purchase.CostPrice * float64(st.purchase.Quantity)
			if _, err := m.insertExpense(ctx, ledger.ExpensePurchase, purchaseExpensePrefix+productName, amount, comment); err != nil {
				m.logger.Warn("purchase expense not recorded",
					slog.Int64("purchase_id", st.purchase.ID),
					slog.String("product", productName),
					slog.Any("error", err))
				return st, nil
			}
			st.expenseRecorded = true
			return st, nil
		}})
	}
	result := async.Pipeline(ctx, m.pool, &purchaseState{}, steps...)
	return respondWith(m, result, MsgPurchaseFailed, func(st *purchaseState) Response {
		m.logger.Info("purchase recorded",
			slog.Int64("purchase_id", st.purchase.ID),
			slog.String("product", productName),
			slog.Int("quantity", quantity))
		if !includeInExpenses {
			return OK(MsgPurchaseAdded)
		}
		if st.expenseRecorded {
			m.stats.Invalidate(ctx)
		}
		return OK(MsgPurchaseExpenseAdded)
	})
}

// RecordExpense inserts an expense.
func (m *Manager) RecordExpense(ctx context.Context, category ledger.ExpenseCategory, description string, amount float64, comment string) *async.Future[Response] {
	ctx = context.WithoutCancel(ctx)
	comment = withDefault(comment)
	result := async.Submit(ctx, m.pool, func(ctx context.Context) (*ledger.Expense, error) {
		return m.insertExpense(ctx, category, description, amount, comment)
	})
	return respondWith(m, result, MsgExpenseFailed, func(e *ledger.Expense) Response {
		m.logger.Info("expense recorded", slog.Int64("expense_id", e.ID), slog.String("category", string(category)))
		m.stats.Invalidate(ctx)
		return OK(MsgExpenseAdded)
	})
}

func (m *Manager) insertExpense(ctx context.Context, category ledger.ExpenseCategory, description string, amount float64, comment string) (*ledger.Expense, error) {
	expense := &ledger.Expense{
		Category:    category,
		Description: description,
		Amount:      amount,
		Comment:     comment,
	}
	if err := m.expenses.Insert(ctx, expense); err != nil {
		return nil, err
	}
	return expense, nil
}

// NewProduct describes a product to add to the catalog.
type NewProduct struct {
	Name        string
	Category    catalog.Category
	CostPrice   float64
	RetailPrice float64
	Unit        catalog.Unit
	Supplier    string
	Minimum     int
	Status      catalog.Status
}

// AddProduct inserts a product with zero stock.
func (m *Manager) AddProduct(ctx context.Context, in NewProduct) *async.Future[Response] {
	ctx = context.WithoutCancel(ctx)
	result := async.Submit(ctx, m.pool, func(ctx context.Context) (*catalog.Product, error) {
		product := catalog.NewProduct(catalog.ProductData{
			Name:        in.Name,
			Category:    in.Category,
			CostPrice:   in.CostPrice,
			RetailPrice: in.RetailPrice,
			Unit:        in.Unit,
			Supplier:    in.Supplier,
			Stock:       0,
			Minimum:     in.Minimum,
			Status:      in.Status,
		})
		if err := m.products.Insert(ctx, product); err != nil {
			return nil, err
		}
		return product, nil
	})
	return respondWith(m, result, MsgProductFailed, func(p *catalog.Product) Response {
		m.logger.Info("product added", slog.Int64("product_id", p.ID()), slog.String("name", in.Name))
		return OK(MsgProductAdded)
	})
}

// respondWith maps a finished operation onto a Response. A missing product is
// reported as such; any other failure is prefixed with failMsg.
func respondWith[T any](m *Manager, result *async.Future[T], failMsg string, onSuccess func(T) Response) *async.Future[Response] {
	mapped := async.Map(result, onSuccess)
	return async.Recover(mapped, func(err error) Response {
		if errors.Is(err, store.ErrNotFound) && isLookupFailure(err) {
			return Fail(MsgProductNotFound)
		}
		if errors.Is(err, store.ErrDuplicate) {
			m.logger.Warn("operation rejected", slog.String("operation", failMsg), slog.Any("error", err))
			return Fail(MsgProductDuplicate)
		}
		m.logger.Error("operation failed", slog.String("operation", failMsg), slog.Any("error", err))
		return Fail(fmt.Sprintf("%s: %v", failMsg, err))
	})
}

func isLookupFailure(err error) bool {
	var stepErr *async.StepError
	return errors.As(err, &stepErr) && stepErr.Step == "lookup product"
}

func withDefault(comment string) string {
	if strings.TrimSpace(comment) == "" {
		return DefaultComment
	}
	return comment
}

// Product returns the product with id.
func (m *Manager) Product(ctx context.Context, id int64) *async.Future[*catalog.Product] {
	return async.Submit(ctx, m.pool, func(ctx context.Context) (*catalog.Product, error) {
		return m.products.Get(ctx, id)
	})
}

// ProductByName returns the product called name.
func (m *Manager) ProductByName(ctx context.Context, name string) *async.Future[*catalog.Product] {
	return async.Submit(ctx, m.pool, func(ctx context.Context) (*catalog.Product, error) {
		return m.products.GetByName(ctx, name)
	})
}

// AllProducts returns the whole catalog.
func (m *Manager) AllProducts(ctx context.Context, addToCache bool) *async.Future[[]*catalog.Product] {
	return async.Submit(ctx, m.pool, func(ctx context.Context) ([]*catalog.Product, error) {
		return m.products.GetAll(ctx, addToCache, time.Time{})
	})
}

// AllSales returns the sales recorded after since; zero since means all.
func (m *Manager) AllSales(ctx context.Context, addToCache bool, since time.Time) *async.Future[[]*ledger.Sale] {
	return async.Submit(ctx, m.pool, func(ctx context.Context) ([]*ledger.Sale, error) {
		return m.sales.GetAll(ctx, addToCache, since)
	})
}

// AllExpenses returns the expenses recorded after since; zero since means all.
func (m *Manager) AllExpenses(ctx context.Context, addToCache bool, since time.Time) *async.Future[[]*ledger.Expense] {
	return async.Submit(ctx, m.pool, func(ctx context.Context) ([]*ledger.Expense, error) {
		return m.expenses.GetAll(ctx, addToCache, since)
	})
}

// AllPurchases returns the purchases recorded after since; zero since means all.
func (m *Manager) AllPurchases(ctx context.Context, addToCache bool, since time.Time) *async.Future[[]*ledger.Purchase] {
	return async.Submit(ctx, m.pool, func(ctx context.Context) ([]*ledger.Purchase, error) {
		return m.purchases.GetAll(ctx, addToCache, since)
	})
}

func (m *Manager) MonthlyStats(ctx context.Context, month stats.Month, year int) *async.Future[stats.Stats] {
	return m.stats.Monthly(ctx, month, year)
}

func (m *Manager) YearlyStats(ctx context.Context, year int) *async.Future[[]stats.Stats] {
	return m.stats.Yearly(ctx, year)
}

func (m *Manager) YearSummary(ctx context.Context, year int) *async.Future[stats.Stats] {
	return m.stats.YearSummary(ctx, year)
}

// Checkpoint returns the last-export watermark.
func (m *Manager) Checkpoint(ctx context.Context) (checkpoint.Checkpoint, error) {
	return m.checkpoint.Load(ctx)
}

// UpdateCheckpoint moves the last-export watermark to ts.
func (m *Manager) UpdateCheckpoint(ctx context.Context, ts time.Time) error {
	return m.checkpoint.Update(ctx, ts)
}

// FlushAll writes every cached entity back to the store.
func (m *Manager) FlushAll(ctx context.Context) error {
	var errs []error
	for _, flush := range []func(context.Context) error{
		m.expenses.FlushAll,
		m.products.FlushAll,
		m.purchases.FlushAll,
		m.sales.FlushAll,
	} {
		if err := flush(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close stops the cache janitors, drains the pool, flushes every repository
// and closes the store. Later calls return the first result.
func (m *Manager) Close(ctx context.Context) error {
	m.closeOnce.Do(func() {
		m.expenses.Close()
		m.products.Close()
		m.purchases.Close()
		m.sales.Close()
		m.pool.Wait()
		m.closeErr = m.FlushAll(ctx)
		m.pool.Wait()
		if m.store != nil {
			m.store.Close()
		}
		if m.closeErr != nil {
			m.logger.Error("flush on close", slog.Any("error", m.closeErr))
			return
		}
		m.logger.Info("ledger closed")
	})
	return m.closeErr
}
