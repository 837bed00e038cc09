package ledger

import (
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/moneta-ledger/moneta/internal/platform/db"
	"github.com/moneta-ledger/moneta/internal/store"
)

const purchaseColumns = "id, purchase_date, product_id, product_name, cost_price, quantity, total_price, supplier, comment"

// Purchase statements.
const (
	SelectPurchaseByID   = "SELECT " + purchaseColumns + " FROM purchases WHERE id = $1"
	SelectPurchases      = "SELECT " + purchaseColumns + " FROM purchases ORDER BY id"
	SelectPurchasesSince = "SELECT " + purchaseColumns + " FROM purchases WHERE purchase_date > $1 ORDER BY id"
	InsertPurchase       = `INSERT INTO purchases (product_id, product_name, cost_price, quantity, supplier, comment)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, purchase_date, total_price`
	UpdatePurchase = `UPDATE purchases
SET purchase_date = $1, product_id = $2, product_name = $3, cost_price = $4,
    quantity = $5, supplier = $6, comment = $7
WHERE id = $8`
)

// PurchaseColumns lists the columns every purchase select returns.
var PurchaseColumns = []string{"id", "purchase_date", "product_id", "product_name", "cost_price", "quantity", "total_price", "supplier", "comment"}

// PurchaseInsertColumns lists the columns InsertPurchase returns.
var PurchaseInsertColumns = []string{"id", "purchase_date", "total_price"}

type purchaseRow struct {
	ID           int64     `db:"id"`
	PurchaseDate time.Time `db:"purchase_date"`
	ProductID    int64     `db:"product_id"`
	ProductName  string    `db:"product_name"`
	CostPrice    float64   `db:"cost_price"`
	Quantity     int       `db:"quantity"`
	TotalPrice   float64   `db:"total_price"`
	Supplier     string    `db:"supplier"`
	Comment      string    `db:"comment"`
}

type purchaseGenerated struct {
	ID           int64     `db:"id"`
	PurchaseDate time.Time `db:"purchase_date"`
	TotalPrice   float64   `db:"total_price"`
}

type purchaseAdapter struct{}

func (purchaseAdapter) Name() string { return "purchases" }

func (purchaseAdapter) Statements() store.Statements {
	return store.Statements{
		SelectByID:  SelectPurchaseByID,
		SelectAll:   SelectPurchases,
		SelectSince: SelectPurchasesSince,
		Insert:      InsertPurchase,
		Update:      UpdatePurchase,
	}
}

func (purchaseAdapter) Key(p *Purchase) int64 { return p.ID }

func (purchaseAdapter) Scan(row pgx.CollectableRow) (*Purchase, error) {
	r, err := pgx.RowToAddrOfStructByName[purchaseRow](row)
	if err != nil {
		return nil, err
	}
	return &Purchase{
		ID:          r.ID,
		Date:        r.PurchaseDate,
		ProductID:   r.ProductID,
		ProductName: r.ProductName,
		CostPrice:   r.CostPrice,
		Quantity:    r.Quantity,
		TotalPrice:  r.TotalPrice,
		Supplier:    r.Supplier,
		Comment:     r.Comment,
	}, nil
}

func (purchaseAdapter) InsertArgs(p *Purchase) []any {
	return []any{p.ProductID, p.ProductName, p.CostPrice, p.Quantity, p.Supplier, p.Comment}
}

func (purchaseAdapter) UpdateArgs(p *Purchase) []any {
	return []any{p.Date, p.ProductID, p.ProductName, p.CostPrice, p.Quantity, p.Supplier, p.Comment, p.ID}
}

func (purchaseAdapter) Finalize(p *Purchase, row pgx.CollectableRow) error {
	g, err := pgx.RowToStructByName[purchaseGenerated](row)
	if err != nil {
		return err
	}
	p.ID, p.Date, p.TotalPrice = g.ID, g.PurchaseDate, g.TotalPrice
	return nil
}

// PurchaseRepository stores purchases.
type PurchaseRepository struct {
	*store.Repository[int64, Purchase]
}

// NewPurchaseRepository builds the purchase repository.
func NewPurchaseRepository(gw db.Gateway, opts store.Options) *PurchaseRepository {
	return &PurchaseRepository{Repository: store.New[int64, Purchase](gw, purchaseAdapter{}, opts)}
}
