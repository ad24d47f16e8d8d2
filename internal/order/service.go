package order

import (
	"context"
	"log"
	"time"

	"vitrine_back_end/internal/apperr"
	"vitrine_back_end/internal/cart"
	"vitrine_back_end/internal/models"
)

// CartResolver traduit un identifiant de panier éventuellement historique en id canonique.
type CartResolver interface {
	ResolveID(ctx context.Context, token string) (string, error)
}

type Service struct {
	repo     Repository
	carts    CartResolver
	notifier cart.Notifier
	builder  *Builder
	now      func() time.Time
}

// NewService prend notifier pour signaler la disparition du panier converti. nil désactive l'envoi.
func NewService(repo Repository, carts CartResolver, notifier cart.Notifier) *Service {
	if notifier == nil {
		notifier = cart.NopNotifier{}
	}
	return &Service{repo: repo, carts: carts, notifier: notifier, builder: NewBuilder(), now: time.Now}
}

// CreateFromCart convertit le panier en commande Pending et supprime le panier.
// Échoue en InvalidState si le panier est absent ou vide.
func (s *Service) CreateFromCart(ctx context.Context, req BuildRequest) (*models.Order, error) {
	const op = "order.CreateFromCart"

	req.ShippingAddress = req.ShippingAddress.Normalize()
	if err := req.ShippingAddress.Validate(); err != nil {
		return nil, err
	}

	id, err := s.carts.ResolveID(ctx, req.CartID)
	if err != nil {
		if apperr.Is(err, apperr.NotFound) {
			return nil, apperr.New(apperr.InvalidState, op, "Cart not found")
		}
		return nil, err
	}
	req.CartID = id

	o, err := s.repo.CreateFromCart(ctx, req, func(c *models.Cart) (*models.Order, error) {
		return s.builder.Build(c, req)
	})
	if err != nil {
		return nil, err
	}
	log.Printf("✅ Commande %s créée depuis le panier %s (total %s)", o.ID, id, models.FormatCents(o.TotalCents))
	s.notifier.CartChanged(ctx, cart.Change{Type: cart.ChangeCleared, CartID: id})
	return o, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Order, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) ListForUser(ctx context.Context, userID string) ([]*models.Order, error) {
	if userID == "" {
		return nil, apperr.New(apperr.Unauthenticated, "order.ListForUser", "Authentication required")
	}
	return s.repo.ListByUser(ctx, userID)
}

func (s *Service) ListAll(ctx context.Context) ([]*models.Order, error) {
	return s.repo.ListAll(ctx)
}

func (s *Service) FindByPaymentRef(ctx context.Context, ref string) (*models.Order, error) {
	return s.repo.FindByPaymentRef(ctx, ref)
}

func (s *Service) FindByCart(ctx context.Context, cartID string) (*models.Order, error) {
	return s.repo.FindByCart(ctx, cartID)
}

// UpdateStatus applique une transition autorisée par le cycle de vie.
func (s *Service) UpdateStatus(ctx context.Context, id string, to models.OrderStatus) (*models.Order, error) {
	const op = "order.UpdateStatus"
	if !to.Valid() {
		return nil, apperr.Newf(apperr.Invalid, op, "Unknown order status %q", to)
	}

	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(current.Status, to) {
		return nil, apperr.Newf(apperr.InvalidState, op, "Cannot move order from %s to %s", current.Status, to)
	}

	updated, err := s.repo.UpdateStatus(ctx, id, current.Status, to, s.now())
	if err != nil {
		return nil, err
	}
	log.Printf("🔁 Commande %s: %s → %s", id, current.Status, to)
	return updated, nil
}
