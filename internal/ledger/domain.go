// Package ledger records sales, purchases and expenses and answers the
// aggregate queries the statistics are built from.
package ledger

import (
	"strings"
	"time"
)

// Marketplace is the channel a sale went through.
type Marketplace string

const (
	MarketplaceAvito       Marketplace = "Avito"
	MarketplaceOzon        Marketplace = "Ozon"
	MarketplaceWildberries Marketplace = "Wildberries"
	MarketplacePlayerok    Marketplace = "Playerok"
)

var marketplaces = []Marketplace{MarketplaceAvito, MarketplaceOzon, MarketplaceWildberries, MarketplacePlayerok}

// ParseMarketplace matches s case-insensitively against the known marketplaces.
func ParseMarketplace(s string) (Marketplace, bool) {
	return parseEnum(marketplaces, s)
}

// ExpenseCategory classifies an expense.
type ExpenseCategory string

const (
	ExpenseAdvertising ExpenseCategory = "Реклама"
	ExpensePurchase    ExpenseCategory = "Закупка"
	ExpenseTaxes       ExpenseCategory = "Налоги"
	ExpenseOther       ExpenseCategory = "Прочее"
)

var expenseCategories = []ExpenseCategory{ExpenseAdvertising, ExpensePurchase, ExpenseTaxes, ExpenseOther}

// ParseExpenseCategory matches s case-insensitively against the known categories.
func ParseExpenseCategory(s string) (ExpenseCategory, bool) {
	return parseEnum(expenseCategories, s)
}

func parseEnum[T ~string](known []T, s string) (T, bool) {
	s = strings.TrimSpace(s)
	for _, v := range known {
		if strings.EqualFold(string(v), s) {
			return v, true
		}
	}
	var zero T
	return zero, false
}

// Sale is one sold line. Prices are copied from the product when the sale is
// recorded; TotalPrice and Margin are computed by the store.
type Sale struct {
	ID          int64       `json:"id"`
	Date        time.Time   `json:"date"`
	ProductID   int64       `json:"product_id"`
	ProductName string      `json:"product_name"`
	Quantity    int         `json:"quantity"`
	UnitPrice   float64     `json:"unit_price"`
	TotalPrice  float64     `json:"total_price"`
	CostPrice   float64     `json:"cost_price"`
	Margin      float64     `json:"margin"`
	Marketplace Marketplace `json:"marketplace"`
	Comment     string      `json:"comment"`
}

// Expense is money spent outside of goods sold.
type Expense struct {
	ID          int64           `json:"id"`
	Date        time.Time       `json:"date"`
	Category    ExpenseCategory `json:"category"`
	Description string          `json:"description"`
	Amount      float64         `json:"amount"`
	Comment     string          `json:"comment"`
}

// Purchase is stock bought from a supplier. TotalPrice is computed by the store.
type Purchase struct {
	ID          int64     `json:"id"`
	Date        time.Time `json:"date"`
	ProductID   int64     `json:"product_id"`
	ProductName string    `json:"product_name"`
	CostPrice   float64   `json:"cost_price"`
	Quantity    int       `json:"quantity"`
	TotalPrice  float64   `json:"total_price"`
	Supplier    string    `json:"supplier"`
	Comment     string    `json:"comment"`
}
