package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"marketplace/pkg/errors"
)

// ProductStatus is the availability status of a product
type ProductStatus string

const (
	ProductStatusActive     ProductStatus = "active"
	ProductStatusOutOfStock ProductStatus = "out_of_stock"
	ProductStatusInactive   ProductStatus = "inactive"
)

// Product is the slice of the catalog entity the order engine relies on
type Product struct {
	ID        uint
	Name      string
	Price     decimal.Decimal
	Count     int
	Status    ProductStatus
	SoldCount int
	Version   int
	DeletedAt *time.Time
}

// IsAvailable reports whether the product can be sold at all
func (p *Product) IsAvailable() bool {
	return p.Status == ProductStatusActive && p.Count > 0
}

// CanOrder reports whether quantity units can be taken from stock
func (p *Product) CanOrder(quantity int) bool {
	return quantity > 0 && p.IsAvailable() && p.Count >= quantity
}

// UpdateStock applies a signed delta. The count is floored at zero and the
// status follows it between active and out_of_stock.
func (p *Product) UpdateStock(delta int, reason string, now time.Time) []Event {
	oldCount := p.Count
	p.Count += delta
	if p.Count < 0 {
		p.Count = 0
	}

	if p.Count == 0 && p.Status == ProductStatusActive {
		p.Status = ProductStatusOutOfStock
	} else if p.Count > 0 && p.Status == ProductStatusOutOfStock {
		p.Status = ProductStatusActive
	}

	events := []Event{ProductStockUpdated{
		ProductID: p.ID,
		OldCount:  oldCount,
		NewCount:  p.Count,
		Reason:    reason,
		At:        now,
	}}
	if delta < 0 && oldCount > 0 && p.Count == 0 {
		events = append(events, ProductOutOfStock{ProductID: p.ID, Name: p.Name, At: now})
	}
	return events
}

// Take removes quantity units from stock or rejects with INSUFFICIENT_STOCK
// without touching the product.
func (p *Product) Take(quantity int, reason string, now time.Time) ([]Event, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if !p.CanOrder(quantity) {
		return nil, p.insufficientStock(quantity)
	}
	return p.UpdateStock(-quantity, reason, now), nil
}

func (p *Product) insufficientStock(requested int) error {
	return ErrInsufficientStock.WithDetails(map[string]interface{}{
		"product_id": p.ID,
		"product":    p.Name,
		"requested":  requested,
		"available":  p.Count,
		"status":     string(p.Status),
	})
}

// Catalog gives operations explicit access to the products an order references
type Catalog map[uint]*Product

// NewCatalog indexes products by ID
func NewCatalog(products ...*Product) Catalog {
	c := make(Catalog, len(products))
	for _, p := range products {
		c[p.ID] = p
	}
	return c
}

// require returns the products for every line of the order, failing before
// any of them is used if one is missing.
func (c Catalog) require(items []OrderItem) ([]*Product, error) {
	out := make([]*Product, len(items))
	for i, item := range items {
		p, ok := c[item.ProductID]
		if !ok || p == nil {
			return nil, errors.Wrap(NewProductNotFound(item.ProductID), "catalog lookup")
		}
		out[i] = p
	}
	return out, nil
}

// Clone returns a copy of the product
func (p *Product) Clone() *Product {
	cp := *p
	cp.DeletedAt = clonePtr(p.DeletedAt)
	return &cp
}
