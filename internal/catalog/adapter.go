package catalog

import (
	"github.com/jackc/pgx/v5"

	"github.com/moneta-ledger/moneta/internal/store"
)

const productColumns = "id, name, category, cost_price, retail_price, unit, supplier, stock, minimum, status"

// Product statements. Products carry no timestamp, so there is no since variant.
const (
	SelectProductByID   = "SELECT " + productColumns + " FROM products WHERE id = $1"
	SelectProductByName = "SELECT " + productColumns + " FROM products WHERE name = $1"
	SelectProducts      = "SELECT " + productColumns + " FROM products ORDER BY id"
	InsertProduct       = `INSERT INTO products (name, category, cost_price, retail_price, unit, supplier, stock, minimum, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id`
	UpdateProduct = `UPDATE products
SET name = $1, category = $2, cost_price = $3, retail_price = $4, unit = $5,
    supplier = $6, stock = $7, minimum = $8, status = $9
WHERE id = $10`
)

// ProductColumns lists the columns every product select returns.
var ProductColumns = []string{"id", "name", "category", "cost_price", "retail_price", "unit", "supplier", "stock", "minimum", "status"}

type productRow struct {
	ID          int64   `db:"id"`
	Name        string  `db:"name"`
	Category    string  `db:"category"`
	CostPrice   float64 `db:"cost_price"`
	RetailPrice float64 `db:"retail_price"`
	Unit        string  `db:"unit"`
	Supplier    string  `db:"supplier"`
	Stock       int     `db:"stock"`
	Minimum     int     `db:"minimum"`
	Status      string  `db:"status"`
}

type productAdapter struct{}

var _ store.Adapter[int64, Product] = productAdapter{}

func (productAdapter) Name() string { return "products" }

func (productAdapter) Statements() store.Statements {
	return store.Statements{
		SelectByID: SelectProductByID,
		SelectAll:  SelectProducts,
		Insert:     InsertProduct,
		Update:     UpdateProduct,
	}
}

func (productAdapter) Key(p *Product) int64 { return p.ID() }

func (productAdapter) Scan(row pgx.CollectableRow) (*Product, error) {
	r, err := pgx.RowToAddrOfStructByName[productRow](row)
	if err != nil {
		return nil, err
	}
	return NewProduct(ProductData{
		ID:          r.ID,
		Name:        r.Name,
		Category:    Category(r.Category),
		CostPrice:   r.CostPrice,
		RetailPrice: r.RetailPrice,
		Unit:        Unit(r.Unit),
		Supplier:    r.Supplier,
		Stock:       r.Stock,
		Minimum:     r.Minimum,
		Status:      Status(r.Status),
	}), nil
}

func (productAdapter) InsertArgs(p *Product) []any {
	d := p.Snapshot()
	return []any{d.Name, string(d.Category), d.CostPrice, d.RetailPrice, string(d.Unit), d.Supplier, d.Stock, d.Minimum, string(d.Status)}
}

func (productAdapter) UpdateArgs(p *Product) []any {
	d := p.Snapshot()
	return []any{d.Name, string(d.Category), d.CostPrice, d.RetailPrice, string(d.Unit), d.Supplier, d.Stock, d.Minimum, string(d.Status), d.ID}
}

func (productAdapter) Finalize(p *Product, row pgx.CollectableRow) error {
	var id int64
	if err := row.Scan(&id); err != nil {
		return err
	}
	p.Update(func(d *ProductData) { d.ID = id })
	return nil
}
