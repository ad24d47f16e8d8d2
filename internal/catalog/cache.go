package catalog

import (
	"context"
	"errors"
	"log"
	"time"

	"golang.org/x/sync/singleflight"

	"vitrine_back_end/internal/cache"
	"vitrine_back_end/internal/models"
)

// CachedReader ajoute un cache Redis en lecture devant le repository.
// Les écritures passent au repository puis invalident l'entrée.
type CachedReader struct {
	repo  Repository
	store *cache.Store
	ttl   time.Duration
	group singleflight.Group
}

func NewCachedReader(repo Repository, store *cache.Store) *CachedReader {
	return &CachedReader{repo: repo, store: store, ttl: cache.ProductCacheTTL}
}

func (c *CachedReader) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	key := cache.Key(cache.KeyProduct, id)

	var p models.Product
	err := c.store.GetJSON(ctx, key, &p)
	if err == nil {
		return &p, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		log.Printf("⚠️ Cache produit illisible (%s): %v", id, err)
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		prod, err := c.repo.GetProduct(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := c.store.SetJSON(ctx, key, prod, c.ttl); err != nil {
			log.Printf("⚠️ Mise en cache produit %s impossible: %v", id, err)
		}
		return prod, nil
	})
	if err != nil {
		return nil, err
	}
	prod := *v.(*models.Product)
	return &prod, nil
}

func (c *CachedReader) GetProducts(ctx context.Context, ids []string) (map[string]*models.Product, error) {
	out := make(map[string]*models.Product, len(ids))
	var missing []string
	for _, id := range ids {
		var p models.Product
		if err := c.store.GetJSON(ctx, cache.Key(cache.KeyProduct, id), &p); err == nil {
			out[id] = &p
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out, nil
	}

	found, err := c.repo.GetProducts(ctx, missing)
	if err != nil {
		return nil, err
	}
	for id, p := range found {
		out[id] = p
		if err := c.store.SetJSON(ctx, cache.Key(cache.KeyProduct, id), p, c.ttl); err != nil {
			log.Printf("⚠️ Mise en cache produit %s impossible: %v", id, err)
		}
	}
	return out, nil
}

func (c *CachedReader) UpdatePrice(ctx context.Context, id string, priceCents, shippingCents int64) (*models.Product, error) {
	p, err := c.repo.UpdatePrice(ctx, id, priceCents, shippingCents)
	c.invalidate(ctx, id)
	return p, err
}

func (c *CachedReader) AdjustStock(ctx context.Context, id string, delta int) (*models.Product, error) {
	p, err := c.repo.AdjustStock(ctx, id, delta)
	c.invalidate(ctx, id)
	return p, err
}

// Invalidate retire un produit du cache après une écriture hors de ce reader (réservations, commandes).
func (c *CachedReader) Invalidate(ctx context.Context, ids ...string) {
	c.invalidate(ctx, ids...)
}

func (c *CachedReader) invalidate(ctx context.Context, ids ...string) {
	if len(ids) == 0 {
		return
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = cache.Key(cache.KeyProduct, id)
	}
	if err := c.store.DeleteCache(ctx, keys...); err != nil {
		log.Printf("⚠️ Invalidation cache produits %v impossible: %v", ids, err)
	}
}
