package catalog

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"
)

var ErrProductNotFound = errors.New("product not found in catalog")

// Item is one catalog row: the price and stock of record for a variant.
type Item struct {
	ProductID int64
	VariantID int64
	Price     decimal.Decimal
	Stock     int32
}

// Provider is the read-only catalog the pricing engine and the inventory
// ledger mirror. Prices are always read at checkout time, never from the cart.
type Provider interface {
	CurrentPrice(ctx context.Context, productID, variantID int64) (decimal.Decimal, error)
	CurrentStock(ctx context.Context, productID, variantID int64) (int32, error)
}

type itemKey struct {
	productID int64
	variantID int64
}

// StaticProvider is a mutex-guarded in-memory catalog, used in tests and for
// seeding the ledger at boot.
type StaticProvider struct {
	mu     sync.RWMutex
	prices map[itemKey]decimal.Decimal
	stocks map[itemKey]int32
}

func NewStaticProvider() *StaticProvider {
	return &StaticProvider{
		prices: make(map[itemKey]decimal.Decimal),
		stocks: make(map[itemKey]int32),
	}
}

func (p *StaticProvider) SetPrice(productID, variantID int64, price decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[itemKey{productID, variantID}] = price
}

func (p *StaticProvider) SetStock(productID, variantID int64, stock int32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stocks[itemKey{productID, variantID}] = stock
}

// Items lists every variant the provider knows about.
func (p *StaticProvider) Items(_ context.Context) ([]Item, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	keys := make(map[itemKey]struct{}, len(p.prices))
	for k := range p.prices {
		keys[k] = struct{}{}
	}
	for k := range p.stocks {
		keys[k] = struct{}{}
	}

	items := make([]Item, 0, len(keys))
	for k := range keys {
		items = append(items, Item{
			ProductID: k.productID,
			VariantID: k.variantID,
			Price:     p.prices[k],
			Stock:     p.stocks[k],
		})
	}
	return items, nil
}

func (p *StaticProvider) CurrentPrice(_ context.Context, productID, variantID int64) (decimal.Decimal, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	price, ok := p.prices[itemKey{productID, variantID}]
	if !ok {
		return decimal.Zero, ErrProductNotFound
	}
	return price, nil
}

func (p *StaticProvider) CurrentStock(_ context.Context, productID, variantID int64) (int32, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	stock, ok := p.stocks[itemKey{productID, variantID}]
	if !ok {
		return 0, ErrProductNotFound
	}
	return stock, nil
}
