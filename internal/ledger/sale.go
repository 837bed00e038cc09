package ledger

import (
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/moneta-ledger/moneta/internal/platform/db"
	"github.com/moneta-ledger/moneta/internal/store"
)

const saleColumns = "id, sale_date, product_id, product_name, quantity, unit_price, total_price, cost_price, margin, marketplace, comment"

// Sale statements.
const (
	SelectSaleByID   = "SELECT " + saleColumns + " FROM sales WHERE id = $1"
	SelectSales      = "SELECT " + saleColumns + " FROM sales ORDER BY id"
	SelectSalesSince = "SELECT " + saleColumns + " FROM sales WHERE sale_date > $1 ORDER BY id"
	InsertSale       = `INSERT INTO sales (product_id, product_name, quantity, unit_price, cost_price, marketplace, comment)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, sale_date, total_price, margin`
	UpdateSale = `UPDATE sales
SET sale_date = $1, product_id = $2, product_name = $3, quantity = $4,
    unit_price = $5, cost_price = $6, marketplace = $7, comment = $8
WHERE id = $9`
)

// SaleColumns lists the columns every sale select returns.
var SaleColumns = []string{"id", "sale_date", "product_id", "product_name", "quantity", "unit_price", "total_price", "cost_price", "margin", "marketplace", "comment"}

// SaleInsertColumns lists the columns InsertSale returns.
var SaleInsertColumns = []string{"id", "sale_date", "total_price", "margin"}

type saleRow struct {
	ID          int64     `db:"id"`
	SaleDate    time.Time `db:"sale_date"`
	ProductID   int64     `db:"product_id"`
	ProductName string    `db:"product_name"`
	Quantity    int       `db:"quantity"`
	UnitPrice   float64   `db:"unit_price"`
	TotalPrice  float64   `db:"total_price"`
	CostPrice   float64   `db:"cost_price"`
	Margin      float64   `db:"margin"`
	Marketplace string    `db:"marketplace"`
	Comment     string    `db:"comment"`
}

type saleGenerated struct {
	ID         int64     `db:"id"`
	SaleDate   time.Time `db:"sale_date"`
	TotalPrice float64   `db:"total_price"`
	Margin     float64   `db:"margin"`
}

type saleAdapter struct{}

func (saleAdapter) Name() string { return "sales" }

func (saleAdapter) Statements() store.Statements {
	return store.Statements{
		SelectByID:  SelectSaleByID,
		SelectAll:   SelectSales,
		SelectSince: SelectSalesSince,
		Insert:      InsertSale,
		Update:      UpdateSale,
	}
}

func (saleAdapter) Key(s *Sale) int64 { return s.ID }

func (saleAdapter) Scan(row pgx.CollectableRow) (*Sale, error) {
	r, err := pgx.RowToAddrOfStructByName[saleRow](row)
	if err != nil {
		return nil, err
	}
	return &Sale{
		ID:          r.ID,
		Date:        r.SaleDate,
		ProductID:   r.ProductID,
		ProductName: r.ProductName,
		Quantity:    r.Quantity,
		UnitPrice:   r.UnitPrice,
		TotalPrice:  r.TotalPrice,
		CostPrice:   r.CostPrice,
		Margin:      r.Margin,
		Marketplace: Marketplace(r.Marketplace),
		Comment:     r.Comment,
	}, nil
}

func (saleAdapter) InsertArgs(s *Sale) []any {
	return []any{s.ProductID, s.ProductName, s.Quantity, s.UnitPrice, s.CostPrice, string(s.Marketplace), s.Comment}
}

func (saleAdapter) UpdateArgs(s *Sale) []any {
	return []any{s.Date, s.ProductID, s.ProductName, s.Quantity, s.UnitPrice, s.CostPrice, string(s.Marketplace), s.Comment, s.ID}
}

func (saleAdapter) Finalize(s *Sale, row pgx.CollectableRow) error {
	g, err := pgx.RowToStructByName[saleGenerated](row)
	if err != nil {
		return err
	}
	s.ID, s.Date, s.TotalPrice, s.Margin = g.ID, g.SaleDate, g.TotalPrice, g.Margin
	return nil
}

// SaleRepository stores sales and answers the sale aggregates.
type SaleRepository struct {
	*store.Repository[int64, Sale]
	gw db.Gateway
}

// NewSaleRepository builds the sale repository.
func NewSaleRepository(gw db.Gateway, opts store.Options) *SaleRepository {
	return &SaleRepository{Repository: store.New[int64, Sale](gw, saleAdapter{}, opts), gw: gw}
}
