// Package catalog holds the product catalog and its name-indexed repository.
package catalog

import (
	"strings"
	"sync"
)

// Category groups products for reporting.
type Category string

const (
	CategoryDesign      Category = "Дизайн"
	CategoryAccessories Category = "Аксессуары"
	CategoryFootwear    Category = "Обувь"
	CategoryHeadwear    Category = "Головные уборы"
	CategoryJewelry     Category = "Украшения"
	CategoryClothing    Category = "Одежда"
)

var categories = []Category{
	CategoryDesign, CategoryAccessories, CategoryFootwear,
	CategoryHeadwear, CategoryJewelry, CategoryClothing,
}

// Categories lists every known category in display order.
func Categories() []Category {
	return append([]Category(nil), categories...)
}

// ParseCategory matches s against the known display names.
func ParseCategory(s string) (Category, bool) {
	return parseEnum(categories, s)
}

// Unit is the unit a product is counted in.
type Unit string

const UnitPiece Unit = "По штучно"

// ParseUnit matches s against the known units.
func ParseUnit(s string) (Unit, bool) {
	return parseEnum([]Unit{UnitPiece}, s)
}

// Status is the lifecycle state of a product.
type Status string

const (
	StatusActive   Status = "Активен"
	StatusArchived Status = "В архиве"
	StatusSoldOut  Status = "Распродан"
)

// ParseStatus matches s against the known statuses.
func ParseStatus(s string) (Status, bool) {
	return parseEnum([]Status{StatusActive, StatusArchived, StatusSoldOut}, s)
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

// ProductData is a plain copy of a product's fields.
type ProductData struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Category    Category `json:"category"`
	CostPrice   float64  `json:"cost_price"`
	RetailPrice float64  `json:"retail_price"`
	Unit        Unit     `json:"unit"`
	Supplier    string   `json:"supplier"`
	Stock       int      `json:"stock"`
	Minimum     int      `json:"minimum"`
	Status      Status   `json:"status"`
}

// Product is a catalog entry. The cached instance is shared between request
// handlers and the write-back path, so every access goes through the mutex.
type Product struct {
	mu   sync.RWMutex
	data ProductData
}

// NewProduct wraps data in a Product.
func NewProduct(data ProductData) *Product {
	return &Product{data: data}
}

// Snapshot returns a consistent copy of the product's fields.
func (p *Product) Snapshot() ProductData {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.data
}

func (p *Product) ID() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.data.ID
}

func (p *Product) Name() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.data.Name
}

func (p *Product) Stock() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.data.Stock
}

// ReduceStock subtracts quantity and returns the new stock. Stock may go negative.
func (p *Product) ReduceStock(quantity int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data.Stock -= quantity
	return p.data.Stock
}

// IncreaseStock adds quantity and returns the new stock.
func (p *Product) IncreaseStock(quantity int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data.Stock += quantity
	return p.data.Stock
}

// Update applies fn to the product's fields under the write lock.
func (p *Product) Update(fn func(*ProductData)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&p.data)
}
