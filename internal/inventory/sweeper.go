package inventory

import (
	"context"
	"log"
	"time"
)

// Sweeper rend périodiquement au stock les réservations échues.
type Sweeper struct {
	res      Reservations
	interval time.Duration
	now      func() time.Time
}

func NewSweeper(res Reservations, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{res: res, interval: interval, now: time.Now}
}

// Run bloque jusqu'à l'annulation de ctx.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Printf("🧹 Balayage des réservations toutes les %s", s.interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep effectue un passage et retourne le nombre de lignes libérées.
func (s *Sweeper) Sweep(ctx context.Context) int {
	n, err := s.res.ReleaseExpired(ctx, s.now())
	if err != nil {
		log.Printf("❌ Libération des réservations échues impossible: %v", err)
		return 0
	}
	if n > 0 {
		log.Printf("🧹 %d réservation(s) échue(s) rendue(s) au stock", n)
	}
	return n
}
