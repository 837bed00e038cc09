// Package stats folds ledger aggregates into monthly and yearly financial
// summaries.
package stats

import (
	"github.com/shopspring/decimal"

	"github.com/moneta-ledger/moneta/internal/ledger"
)

// Stats summarises one month, or a whole year when Month is WholeYear.
type Stats struct {
	Month      Month   `json:"month"`
	Year       int     `json:"year"`
	Turnover   float64 `json:"turnover"`
	Revenue    float64 `json:"revenue"`
	Expenses   float64 `json:"expenses"`
	Profit     float64 `json:"profit"`
	ROI        float64 `json:"roi"`
	AvgMargin  float64 `json:"avg_margin"`
	SalesCount int     `json:"sales_count"`
}

const roiPlaces = 4

var hundred = decimal.NewFromInt(100)

// Compute derives profit and ROI. ROI is zero when there are no expenses.
func Compute(month Month, year int, sales ledger.SaleTotals, expenses float64) Stats {
	revenue := decimal.NewFromFloat(sales.Revenue)
	spent := decimal.NewFromFloat(expenses)
	profit := revenue.Sub(spent)
	roi := decimal.Zero
	if !spent.IsZero() {
		roi = profit.Div(spent).Mul(hundred).Round(roiPlaces)
	}
	return Stats{
		Month:      month,
		Year:       year,
		Turnover:   sales.Turnover,
		Revenue:    sales.Revenue,
		Expenses:   expenses,
		Profit:     profit.Round(roiPlaces).InexactFloat64(),
		ROI:        roi.InexactFloat64(),
		AvgMargin:  sales.AvgMargin,
		SalesCount: sales.SalesCount,
	}
}
