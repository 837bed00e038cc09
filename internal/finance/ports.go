package finance

import (
	"context"
	"time"

	"github.com/moneta-ledger/moneta/internal/catalog"
	"github.com/moneta-ledger/moneta/internal/checkpoint"
	"github.com/moneta-ledger/moneta/internal/ledger"
	"github.com/moneta-ledger/moneta/internal/platform/async"
	"github.com/moneta-ledger/moneta/internal/stats"
	"github.com/moneta-ledger/moneta/internal/store"
)

// ProductStore is the product repository contract.
type ProductStore interface {
	store.DataRepository[int64, catalog.Product]
	GetByName(ctx context.Context, name string) (*catalog.Product, error)
}

// SaleStore is the sale repository contract.
type SaleStore = store.DataRepository[int64, ledger.Sale]

// ExpenseStore is the expense repository contract.
type ExpenseStore = store.DataRepository[int64, ledger.Expense]

// PurchaseStore is the purchase repository contract.
type PurchaseStore = store.DataRepository[int64, ledger.Purchase]

// CheckpointStore keeps the last-export watermark.
type CheckpointStore interface {
	Load(ctx context.Context) (checkpoint.Checkpoint, error)
	Update(ctx context.Context, ts time.Time) error
}

// StatsSource computes financial summaries.
type StatsSource interface {
	Monthly(ctx context.Context, month stats.Month, year int) *async.Future[stats.Stats]
	Yearly(ctx context.Context, year int) *async.Future[[]stats.Stats]
	YearSummary(ctx context.Context, year int) *async.Future[stats.Stats]
	Invalidate(ctx context.Context)
}

// Closer releases the store connection.
type Closer interface {
	Close()
}
