package memory

import (
	"context"

	"github.com/google/uuid"

	"vitrine_back_end/internal/apperr"
	"vitrine_back_end/internal/models"
)

// Carts implémente cart.Repository.
type Carts struct{ s *Store }

func (c *Carts) ResolveID(_ context.Context, token string) (string, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if token == "" {
		return "", apperr.New(apperr.NotFound, "cart.ResolveID", "Cart not found")
	}
	if _, ok := c.s.carts[token]; ok {
		return token, nil
	}
	for id, cart := range c.s.carts {
		if cart.SessionID == token {
			return id, nil
		}
	}
	return "", apperr.New(apperr.NotFound, "cart.ResolveID", "Cart not found")
}

func (c *Carts) Get(_ context.Context, id string) (*models.Cart, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	cart, ok := c.s.carts[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "cart.Get", "Cart not found")
	}
	return c.s.hydrate(cart), nil
}

func (c *Carts) Mutate(_ context.Context, id string, create bool, fn func(*models.Cart) error) (*models.Cart, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	current, ok := c.s.carts[id]
	if !ok {
		if !create {
			return nil, apperr.New(apperr.NotFound, "cart.Get", "Cart not found")
		}
		now := c.s.now().UTC()
		current = &models.Cart{ID: id, Items: []models.CartItem{}, CreatedAt: now, UpdatedAt: now}
	}

	next := c.s.hydrate(current)
	if err := fn(next); err != nil {
		return nil, err
	}
	for i := range next.Items {
		if next.Items[i].ID == "" {
			next.Items[i].ID = uuid.NewString()
		}
	}
	if next.UpdatedAt.IsZero() || next.UpdatedAt.Equal(current.UpdatedAt) {
		next.UpdatedAt = c.s.now().UTC()
	}
	next.Version = current.Version + 1
	c.s.carts[id] = next.Clone()
	return c.s.hydrate(next), nil
}
