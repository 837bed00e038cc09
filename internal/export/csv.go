package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/moneta-ledger/moneta/internal/catalog"
	"github.com/moneta-ledger/moneta/internal/ledger"
	"github.com/moneta-ledger/moneta/internal/stats"
)

// DateLayout formats ledger timestamps in exported rows.
const DateLayout = "02.01.2006 15:04:05"

// Export file names.
const (
	ProductsFile  = "products.csv"
	FinanceFile   = "finance.csv"
	SalesFile     = "sales.csv"
	ExpensesFile  = "expenses.csv"
	PurchasesFile = "purchases.csv"
)

const yearTotalLabel = "Итого за год:"

var (
	productHeader  = []string{"ID", "Name", "Category", "Cost Price", "Retail Price", "Unit", "Supplier", "Stock", "Minimum", "Status"}
	financeHeader  = []string{"Period", "Turnover", "Revenue", "Expenses", "Profit", "ROI", "Avg Margin", "Sales"}
	saleHeader     = []string{"Date", "Product", "Quantity", "Unit Price", "Total Price", "Cost Price", "Margin", "Marketplace", "Comment"}
	expenseHeader  = []string{"Date", "Category", "Description", "Amount", "Comment"}
	purchaseHeader = []string{"Date", "Product", "Cost Price", "Quantity", "Total Price", "Supplier", "Comment"}
)

func money(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

func ratio(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(4)
}

func date(t time.Time) string {
	return t.Format(DateLayout)
}

func productRecord(p *catalog.Product) []string {
	d := p.Snapshot()
	return []string{
		strconv.FormatInt(d.ID, 10),
		d.Name,
		string(d.Category),
		money(d.CostPrice),
		money(d.RetailPrice),
		string(d.Unit),
		d.Supplier,
		strconv.Itoa(d.Stock),
		strconv.Itoa(d.Minimum),
		string(d.Status),
	}
}

func saleRecord(s *ledger.Sale) []string {
	return []string{
		date(s.Date),
		s.ProductName,
		strconv.Itoa(s.Quantity),
		money(s.UnitPrice),
		money(s.TotalPrice),
		money(s.CostPrice),
		money(s.Margin),
		string(s.Marketplace),
		s.Comment,
	}
}

func expenseRecord(e *ledger.Expense) []string {
	return []string{date(e.Date), string(e.Category), e.Description, money(e.Amount), e.Comment}
}

func purchaseRecord(p *ledger.Purchase) []string {
	return []string{
		date(p.Date),
		p.ProductName,
		money(p.CostPrice),
		strconv.Itoa(p.Quantity),
		money(p.TotalPrice),
		p.Supplier,
		p.Comment,
	}
}

func statsRecord(label string, s stats.Stats) []string {
	return []string{
		label,
		money(s.Turnover),
		money(s.Revenue),
		money(s.Expenses),
		money(s.Profit),
		ratio(s.ROI),
		ratio(s.AvgMargin),
		strconv.Itoa(s.SalesCount),
	}
}

func writeRecords[T any](w io.Writer, header []string, items []T, record func(T) []string) error {
	writer := csv.NewWriter(w)
	if header != nil {
		if err := writer.Write(header); err != nil {
			return err
		}
	}
	for _, item := range items {
		if err := writer.Write(record(item)); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// rewrite replaces path with the header and items through a temp file.
func rewrite[T any](path string, header []string, items []T, record func(T) []string) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("export: create temp for %s: %w", filepath.Base(path), err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()
	if err = writeRecords(tmp, header, items, record); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("export: write %s: %w", filepath.Base(path), err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("export: close %s: %w", filepath.Base(path), err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("export: replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

// appendTo adds items to path, writing the header first when the file is new.
func appendTo[T any](path string, header []string, items []T, record func(T) []string) error {
	if len(items) == 0 {
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("export: open %s: %w", filepath.Base(path), err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("export: stat %s: %w", filepath.Base(path), err)
	}
	if info.Size() > 0 {
		header = nil
	}
	if err := writeRecords(f, header, items, record); err != nil {
		_ = f.Close()
		return fmt.Errorf("export: append %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}
