package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"vitrine_back_end/internal/inventory"
	"vitrine_back_end/internal/models"
)

// Reservations implémente inventory.Reservations.
type Reservations struct{ s *Store }

func (r *Reservations) Reserve(_ context.Context, cartID string, lines []models.StockLine, expiresAt time.Time) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	lines = merge(lines)
	held := s.activeFor(cartID)

	var shortages []models.StockShortage
	for _, l := range lines {
		available := held[l.ProductID]
		if p, ok := s.products[l.ProductID]; ok {
			available += p.Stock
		}
		if available < l.Quantity {
			shortages = append(shortages, models.StockShortage{ProductID: l.ProductID, Requested: l.Quantity, Available: available})
		}
	}
	if len(shortages) > 0 {
		return inventory.NewShortage("inventory.Reserve", shortages)
	}

	now := s.now().UTC()
	s.releaseWhere(func(res *models.StockReservation) bool { return res.CartID == cartID })
	for _, l := range lines {
		if p, ok := s.products[l.ProductID]; ok {
			p.Stock -= l.Quantity
		}
		id := uuid.NewString()
		s.reservations[id] = &models.StockReservation{
			ID: id, CartID: cartID, ProductID: l.ProductID, Quantity: l.Quantity,
			Status: models.ReservationReserved, ExpiresAt: expiresAt.UTC(), CreatedAt: now, UpdatedAt: now,
		}
	}
	return nil
}

func (r *Reservations) AttachSession(_ context.Context, cartID, sessionID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.now().UTC()
	for _, res := range r.s.reservations {
		if res.CartID == cartID && res.Status == models.ReservationReserved && res.PaymentSessionID == "" {
			res.PaymentSessionID = sessionID
			res.UpdatedAt = now
		}
	}
	return nil
}

func (r *Reservations) Release(_ context.Context, cartID, sessionID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.releaseWhere(func(res *models.StockReservation) bool {
		return res.CartID == cartID && (sessionID == "" || res.PaymentSessionID == sessionID)
	}), nil
}

func (r *Reservations) ReleaseExpired(_ context.Context, now time.Time) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.releaseWhere(func(res *models.StockReservation) bool { return !res.ExpiresAt.After(now) }), nil
}

// activeFor retourne les quantités réservées et non consommées du panier.
func (s *Store) activeFor(cartID string) map[string]int {
	out := make(map[string]int)
	for _, res := range s.reservations {
		if res.CartID == cartID && res.Status == models.ReservationReserved {
			out[res.ProductID] += res.Quantity
		}
	}
	return out
}

func (s *Store) releaseWhere(match func(*models.StockReservation) bool) int {
	n := 0
	now := s.now().UTC()
	for _, res := range s.reservations {
		if res.Status != models.ReservationReserved || !match(res) {
			continue
		}
		if p, ok := s.products[res.ProductID]; ok {
			p.Stock += res.Quantity
		}
		res.Status = models.ReservationReleased
		res.UpdatedAt = now
		n++
	}
	return n
}

func merge(lines []models.StockLine) []models.StockLine {
	qty := make(map[string]int, len(lines))
	for _, l := range lines {
		if l.Quantity > 0 {
			qty[l.ProductID] += l.Quantity
		}
	}
	out := make([]models.StockLine, 0, len(qty))
	for pid, q := range qty {
		out = append(out, models.StockLine{ProductID: pid, Quantity: q})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}
