package memory

import (
	"context"

	"vitrine_back_end/internal/apperr"
	"vitrine_back_end/internal/models"
)

// Catalog implémente catalog.Repository.
type Catalog struct{ s *Store }

func (c *Catalog) GetProduct(_ context.Context, id string) (*models.Product, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	p, ok := c.s.products[id]
	if !ok || !p.IsVisible {
		return nil, apperr.New(apperr.NotFound, "catalog.GetProduct", "Product not found")
	}
	cp := *p
	return &cp, nil
}

func (c *Catalog) GetProducts(_ context.Context, ids []string) (map[string]*models.Product, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	out := make(map[string]*models.Product, len(ids))
	for _, id := range ids {
		if p, ok := c.s.products[id]; ok && p.IsVisible {
			cp := *p
			out[id] = &cp
		}
	}
	return out, nil
}

func (c *Catalog) UpdatePrice(_ context.Context, id string, priceCents, shippingCents int64) (*models.Product, error) {
	if priceCents < 0 || shippingCents < 0 {
		return nil, apperr.New(apperr.Invalid, "catalog.UpdatePrice", "Prices must not be negative")
	}
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	p, ok := c.s.products[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "catalog.UpdatePrice", "Product not found")
	}
	p.PriceCents, p.ShippingCents = priceCents, shippingCents
	p.UpdatedAt = c.s.now().UTC()
	cp := *p
	return &cp, nil
}

func (c *Catalog) AdjustStock(_ context.Context, id string, delta int) (*models.Product, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	p, ok := c.s.products[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "catalog.AdjustStock", "Product not found")
	}
	if p.Stock+delta < 0 {
		return nil, apperr.Newf(apperr.InvalidState, "catalog.AdjustStock", "Stock cannot go below zero (current %d)", p.Stock)
	}
	p.Stock += delta
	p.UpdatedAt = c.s.now().UTC()
	cp := *p
	return &cp, nil
}
