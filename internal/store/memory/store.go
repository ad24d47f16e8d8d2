// Package memory fournit une implémentation en mémoire des repositories
// catalogue, panier, stock et commande (STORE_DRIVER=memory et tests).
package memory

import (
	"sort"
	"sync"
	"time"

	"vitrine_back_end/internal/models"
)

// Store partage un seul verrou entre toutes les vues : chaque opération
// est atomique comme une transaction Postgres.
type Store struct {
	mu           sync.Mutex
	products     map[string]*models.Product
	carts        map[string]*models.Cart
	orders       map[string]*models.Order
	reservations map[string]*models.StockReservation

	now func() time.Time
}

func New() *Store {
	s := &Store{
		products:     make(map[string]*models.Product),
		carts:        make(map[string]*models.Cart),
		orders:       make(map[string]*models.Order),
		reservations: make(map[string]*models.StockReservation),
		now:          time.Now,
	}
	return s
}

func (s *Store) Catalog() *Catalog { return &Catalog{s: s} }

func (s *Store) Carts() *Carts { return &Carts{s: s} }

func (s *Store) Orders() *Orders { return &Orders{s: s} }

func (s *Store) Reservations() *Reservations { return &Reservations{s: s} }

// SetClock remplace l'horloge (tests d'expiration).
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// PutProduct insère ou remplace un produit.
func (s *Store) PutProduct(p models.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	s.products[p.ID] = &p
}

// PutCart insère un panier tel quel, y compris une ancienne clé de session.
func (s *Store) PutCart(c models.Cart) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := c.Clone()
	s.carts[c.ID] = cp
}

// Stock retourne le stock courant d'un produit, -1 s'il est absent.
func (s *Store) Stock(productID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.products[productID]; ok {
		return p.Stock
	}
	return -1
}

// ReservationsFor liste les réservations d'un panier, tous statuts confondus.
func (s *Store) ReservationsFor(cartID string) []models.StockReservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.StockReservation
	for _, r := range s.reservations {
		if r.CartID == cartID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

// hydrate copie le panier et recalcule ses lignes depuis les produits courants.
func (s *Store) hydrate(c *models.Cart) *models.Cart {
	out := c.Clone()
	for i := range out.Items {
		it := &out.Items[i]
		if p, ok := s.products[it.ProductID]; ok {
			it.ProductName = p.Name
			it.ImageKey = p.ImageKey
			it.PriceCents = p.PriceCents
			it.ShippingCents = p.ShippingCents
			it.Stock = p.Stock
		}
	}
	return out
}

func cloneOrder(o *models.Order) *models.Order {
	cp := *o
	cp.Items = append([]models.OrderItem(nil), o.Items...)
	return &cp
}
