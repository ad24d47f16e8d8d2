package memory

import (
	"context"
	"log"
	"sort"
	"time"

	"vitrine_back_end/internal/apperr"
	"vitrine_back_end/internal/inventory"
	"vitrine_back_end/internal/models"
	"vitrine_back_end/internal/order"
)

// Orders implémente order.Repository.
type Orders struct{ s *Store }

func (o *Orders) CreateFromCart(_ context.Context, req order.BuildRequest, build order.BuildFunc) (*models.Order, error) {
	const op = "order.CreateFromCart"
	s := o.s
	s.mu.Lock()
	defer s.mu.Unlock()

	cart, ok := s.carts[req.CartID]
	if !ok {
		return nil, apperr.New(apperr.InvalidState, op, "Cart not found")
	}
	created, err := build(s.hydrate(cart))
	if err != nil {
		return nil, err
	}
	if created.PaymentSessionID != "" {
		for _, existing := range s.orders {
			if existing.PaymentSessionID == created.PaymentSessionID {
				return nil, apperr.New(apperr.Conflict, op, "Order already exists for this payment")
			}
		}
	}

	// Plan de décrément calculé avant toute écriture pour rester atomique.
	held := s.activeFor(cart.ID)
	delta := make(map[string]int)
	var shortages []models.StockShortage
	for _, l := range merge(models.LinesFromCart(cart)) {
		need := l.Quantity - held[l.ProductID]
		delete(held, l.ProductID)
		if need < 0 {
			delta[l.ProductID] -= need
			continue
		}
		stock := 0
		if p, ok := s.products[l.ProductID]; ok {
			stock = p.Stock
		}
		take := need
		if stock < need {
			shortages = append(shortages, models.StockShortage{ProductID: l.ProductID, Requested: need, Available: stock})
			take = stock
		}
		delta[l.ProductID] -= take
	}
	for pid, q := range held {
		delta[pid] += q
	}
	if len(shortages) > 0 && !req.AllowOversell {
		return nil, inventory.NewShortage("inventory.Consume", shortages)
	}

	for pid, d := range delta {
		if p, ok := s.products[pid]; ok {
			p.Stock += d
		}
	}
	now := s.now().UTC()
	for _, res := range s.reservations {
		if res.CartID == cart.ID && res.Status == models.ReservationReserved {
			res.Status = models.ReservationConsumed
			res.OrderID = created.ID
			res.UpdatedAt = now
		}
	}
	for _, sh := range shortages {
		log.Printf("⚠️ Survente sur %s pour la commande %s: demandé %d, disponible %d", sh.ProductID, created.ID, sh.Requested, sh.Available)
	}

	s.orders[created.ID] = cloneOrder(created)
	delete(s.carts, cart.ID)
	return cloneOrder(created), nil
}

func (o *Orders) Get(_ context.Context, id string) (*models.Order, error) {
	return o.findOne(func(x *models.Order) bool { return x.ID == id })
}

func (o *Orders) FindByPaymentRef(_ context.Context, ref string) (*models.Order, error) {
	if ref == "" {
		return nil, apperr.New(apperr.NotFound, "order.FindByPaymentRef", "Order not found")
	}
	return o.findOne(func(x *models.Order) bool { return x.PaymentSessionID == ref || x.PaymentIntentID == ref })
}

func (o *Orders) FindByCart(_ context.Context, cartID string) (*models.Order, error) {
	if cartID == "" {
		return nil, apperr.New(apperr.NotFound, "order.FindByCart", "Order not found")
	}
	return o.findOne(func(x *models.Order) bool { return x.CartID == cartID })
}

func (o *Orders) ListByUser(_ context.Context, userID string) ([]*models.Order, error) {
	return o.list(func(x *models.Order) bool { return x.UserID == userID }), nil
}

func (o *Orders) ListAll(_ context.Context) ([]*models.Order, error) {
	return o.list(func(*models.Order) bool { return true }), nil
}

func (o *Orders) UpdateStatus(_ context.Context, id string, from, to models.OrderStatus, at time.Time) (*models.Order, error) {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	x, ok := o.s.orders[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "order.Get", "Order not found")
	}
	if x.Status != from {
		return nil, apperr.Newf(apperr.Conflict, "order.UpdateStatus", "Order status changed concurrently (expected %s)", from)
	}
	x.Status = to
	x.UpdatedAt = at.UTC()
	return cloneOrder(x), nil
}

func (o *Orders) findOne(match func(*models.Order) bool) (*models.Order, error) {
	list := o.list(match)
	if len(list) == 0 {
		return nil, apperr.New(apperr.NotFound, "order.Get", "Order not found")
	}
	return list[len(list)-1], nil
}

// list retourne les commandes correspondantes, les plus récentes d'abord.
func (o *Orders) list(match func(*models.Order) bool) []*models.Order {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	var out []*models.Order
	for _, x := range o.s.orders {
		if match(x) {
			out = append(out, cloneOrder(x))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
