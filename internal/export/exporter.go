// Package export writes the ledger to CSV files incrementally, scoped by the
// last-export checkpoint.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/moneta-ledger/moneta/internal/catalog"
	"github.com/moneta-ledger/moneta/internal/checkpoint"
	"github.com/moneta-ledger/moneta/internal/finance"
	"github.com/moneta-ledger/moneta/internal/ledger"
	"github.com/moneta-ledger/moneta/internal/platform/async"
	"github.com/moneta-ledger/moneta/internal/stats"
)

// ErrNoDirectory is returned when the exporter has no target directory.
var ErrNoDirectory = errors.New("export: directory required")

// Source supplies the ledger data and the checkpoint.
type Source interface {
	Checkpoint(ctx context.Context) (checkpoint.Checkpoint, error)
	UpdateCheckpoint(ctx context.Context, ts time.Time) error
	AllProducts(ctx context.Context, addToCache bool) *async.Future[[]*catalog.Product]
	AllSales(ctx context.Context, addToCache bool, since time.Time) *async.Future[[]*ledger.Sale]
	AllExpenses(ctx context.Context, addToCache bool, since time.Time) *async.Future[[]*ledger.Expense]
	AllPurchases(ctx context.Context, addToCache bool, since time.Time) *async.Future[[]*ledger.Purchase]
	YearlyStats(ctx context.Context, year int) *async.Future[[]stats.Stats]
	YearSummary(ctx context.Context, year int) *async.Future[stats.Stats]
}

// Config configures an Exporter.
type Config struct {
	Dir        string
	AddToCache bool
	Logger     *slog.Logger
	Clock      func() time.Time
}

// Report describes one finished export.
type Report struct {
	RunID     uuid.UUID `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
	Since     time.Time `json:"since"`
	Watermark time.Time `json:"watermark"`
	Products  int       `json:"products"`
	Sales     int       `json:"sales"`
	Expenses  int       `json:"expenses"`
	Purchases int       `json:"purchases"`
}

// Exporter writes the ledger files. Runs are serialized.
type Exporter struct {
	source     Source
	dir        string
	addToCache bool
	logger     *slog.Logger
	clock      func() time.Time
	mu         sync.Mutex
}

// New constructs an Exporter and creates its directory.
func New(source Source, cfg Config) (*Exporter, error) {
	if cfg.Dir == "" {
		return nil, ErrNoDirectory
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("export: create dir: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Exporter{
		source:     source,
		dir:        cfg.Dir,
		addToCache: cfg.AddToCache,
		logger:     logger,
		clock:      clock,
	}, nil
}

type snapshot struct {
	products  []*catalog.Product
	sales     []*ledger.Sale
	expenses  []*ledger.Expense
	purchases []*ledger.Purchase
	yearly    []stats.Stats
	summary   stats.Stats
}

// Export writes every file and moves the checkpoint to the newest timestamp
// it exported. Rows stamped while the run is in flight are left for the next
// run. The checkpoint is left untouched when any file fails.
func (e *Exporter) Export(ctx context.Context) (Report, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	report := Report{RunID: uuid.New(), StartedAt: e.clock()}
	logger := e.logger.With(slog.String("run_id", report.RunID.String()))

	cp, err := e.source.Checkpoint(ctx)
	if err != nil {
		return report, fmt.Errorf("export: load checkpoint: %w", err)
	}
	report.Since = cp.ExportedAt

	snap, err := e.collect(ctx, cp.ExportedAt, report.StartedAt.Year())
	if err != nil {
		return report, err
	}
	report.Products = len(snap.products)
	report.Sales = len(snap.sales)
	report.Expenses = len(snap.expenses)
	report.Purchases = len(snap.purchases)

	if err := e.write(snap, report.StartedAt.Year()); err != nil {
		return report, err
	}
	report.Watermark = snap.watermark(report.Since)
	if report.Watermark.After(report.Since) {
		if err := e.source.UpdateCheckpoint(ctx, report.Watermark); err != nil {
			return report, fmt.Errorf("export: update checkpoint: %w", err)
		}
	}
	logger.Info("ledger exported",
		slog.Time("since", report.Since),
		slog.Time("watermark", report.Watermark),
		slog.Int("sales", report.Sales),
		slog.Int("expenses", report.Expenses),
		slog.Int("purchases", report.Purchases),
		slog.Int("products", report.Products))
	return report, nil
}

// watermark is the newest exported sale, expense or purchase date, or since
// when nothing newer was exported.
func (s snapshot) watermark(since time.Time) time.Time {
	latest := since
	advance := func(t time.Time) {
		if t.After(latest) {
			latest = t
		}
	}
	for _, sale := range s.sales {
		advance(sale.Date)
	}
	for _, expense := range s.expenses {
		advance(expense.Date)
	}
	for _, purchase := range s.purchases {
		advance(purchase.Date)
	}
	return latest
}

// Run exports and reports the outcome as a Response.
func (e *Exporter) Run(ctx context.Context) finance.Response {
	report, err := e.Export(ctx)
	if err != nil {
		e.logger.Error("export failed", slog.String("run_id", report.RunID.String()), slog.Any("error", err))
		return finance.Fail("Failed to export: " + err.Error())
	}
	return finance.OK(fmt.Sprintf("Export %s written to %s", report.RunID, e.dir))
}

func (e *Exporter) collect(ctx context.Context, since time.Time, year int) (snapshot, error) {
	var snap snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		snap.products, err = e.source.AllProducts(gctx, e.addToCache).Await(gctx)
		return wrapLoad("products", err)
	})
	g.Go(func() (err error) {
		snap.sales, err = e.source.AllSales(gctx, e.addToCache, since).Await(gctx)
		return wrapLoad("sales", err)
	})
	g.Go(func() (err error) {
		snap.expenses, err = e.source.AllExpenses(gctx, e.addToCache, since).Await(gctx)
		return wrapLoad("expenses", err)
	})
	g.Go(func() (err error) {
		snap.purchases, err = e.source.AllPurchases(gctx, e.addToCache, since).Await(gctx)
		return wrapLoad("purchases", err)
	})
	g.Go(func() (err error) {
		snap.yearly, err = e.source.YearlyStats(gctx, year).Await(gctx)
		return wrapLoad("yearly stats", err)
	})
	g.Go(func() (err error) {
		snap.summary, err = e.source.YearSummary(gctx, year).Await(gctx)
		return wrapLoad("year summary", err)
	})
	return snap, g.Wait()
}

func (e *Exporter) write(snap snapshot, year int) error {
	path := func(name string) string { return filepath.Join(e.dir, name) }
	var g errgroup.Group
	g.Go(func() error {
		return rewrite(path(ProductsFile), productHeader, snap.products, productRecord)
	})
	g.Go(func() error {
		rows := make([][]string, 0, len(snap.yearly)+1)
		for _, s := range snap.yearly {
			rows = append(rows, statsRecord(fmt.Sprintf("%s %d", s.Month, year), s))
		}
		rows = append(rows, statsRecord(yearTotalLabel, snap.summary))
		return rewrite(path(FinanceFile), financeHeader, rows, func(r []string) []string { return r })
	})
	g.Go(func() error {
		return appendTo(path(SalesFile), saleHeader, snap.sales, saleRecord)
	})
	g.Go(func() error {
		return appendTo(path(ExpensesFile), expenseHeader, snap.expenses, expenseRecord)
	})
	g.Go(func() error {
		return appendTo(path(PurchasesFile), purchaseHeader, snap.purchases, purchaseRecord)
	})
	return g.Wait()
}

func wrapLoad(what string, err error) error {
	if err != nil {
		return fmt.Errorf("export: load %s: %w", what, err)
	}
	return nil
}
