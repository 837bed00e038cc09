package catalog

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/moneta-ledger/moneta/internal/platform/db"
	"github.com/moneta-ledger/moneta/internal/store"
)

// ProductRepository adds lookup by name on top of the generic repository.
// The name index is filled lazily and is not invalidated when a product is
// renamed through Save; use Rename for that.
type ProductRepository struct {
	*store.Repository[int64, Product]

	mu     sync.RWMutex
	byName map[string]int64
	group  singleflight.Group
}

// NewProductRepository builds the product repository.
func NewProductRepository(gw db.Gateway, opts store.Options) *ProductRepository {
	return &ProductRepository{
		Repository: store.New[int64, Product](gw, productAdapter{}, opts),
		byName:     make(map[string]int64),
	}
}

// GetByName resolves name through the index, then the cache, then the store.
// Concurrent misses for one name share a single store lookup.
func (r *ProductRepository) GetByName(ctx context.Context, name string) (*Product, error) {
	if id, ok := r.indexed(name); ok {
		return r.Get(ctx, id)
	}
	v, err, _ := r.group.Do(name, func() (any, error) {
		return r.loadByName(ctx, name)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Product), nil
}

func (r *ProductRepository) loadByName(ctx context.Context, name string) (*Product, error) {
	r.Settle()
	loaded, err := r.FindOne(ctx, SelectProductByName, name)
	if err != nil {
		return nil, err
	}
	// A cached instance may hold stock changes the store has not seen yet.
	product := r.Adopt(loaded)
	r.index(name, product.ID())
	return product, nil
}

// Rename changes the product's name, persists it and moves the index entry.
func (r *ProductRepository) Rename(ctx context.Context, p *Product, newName string) error {
	oldName := p.Name()
	p.Update(func(d *ProductData) { d.Name = newName })
	r.unindex(oldName)
	if err := r.Save(ctx, p); err != nil {
		return err
	}
	r.index(newName, p.ID())
	return nil
}

func (r *ProductRepository) indexed(name string) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[name]
	return id, ok
}

func (r *ProductRepository) index(name string, id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[name] = id
}

func (r *ProductRepository) unindex(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byName, name)
}
