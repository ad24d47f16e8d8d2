package order

import (
	"time"

	"github.com/google/uuid"

	"vitrine_back_end/internal/apperr"
	"vitrine_back_end/internal/models"
)

// BuildRequest décrit la conversion d'un panier en commande.
type BuildRequest struct {
	CartID           string
	UserID           string
	ShippingAddress  models.ShippingAddress
	PaymentSessionID string
	PaymentIntentID  string
	// AllowOversell accepte un stock insuffisant (commande déjà payée).
	AllowOversell bool
}

// Builder fige les prix du panier au moment de l'achat.
type Builder struct {
	now   func() time.Time
	newID func() string
}

func NewBuilder() *Builder {
	return &Builder{now: time.Now, newID: uuid.NewString}
}

// Build produit une commande Pending à partir du panier. Les prix viennent du produit courant.
func (b *Builder) Build(c *models.Cart, req BuildRequest) (*models.Order, error) {
	if c == nil {
		return nil, apperr.New(apperr.InvalidState, "order.Build", "Cart not found")
	}
	if c.IsEmpty() {
		return nil, apperr.New(apperr.InvalidState, "order.Build", "Cart is empty")
	}

	// Sans référence explicite, la commande reprend celle du panier pour que le webhook la retrouve.
	if req.PaymentSessionID == "" {
		req.PaymentSessionID = c.PaymentSessionID
	}
	if req.PaymentIntentID == "" {
		req.PaymentIntentID = c.PaymentIntentID
	}

	now := b.now().UTC()
	o := &models.Order{
		ID:               b.newID(),
		UserID:           req.UserID,
		CartID:           c.ID,
		Status:           models.StatusPending,
		ShippingAddress:  req.ShippingAddress,
		PaymentSessionID: req.PaymentSessionID,
		PaymentIntentID:  req.PaymentIntentID,
		Items:            make([]models.OrderItem, 0, len(c.Items)),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	for _, it := range c.Items {
		oi := models.OrderItem{
			ID:                   b.newID(),
			ProductID:            it.ProductID,
			ProductName:          it.ProductName,
			Quantity:             it.Quantity,
			PriceAtPurchaseCents: it.PriceCents,
			ShippingAtPurchase:   it.ShippingCents,
		}
		o.Items = append(o.Items, oi)
		o.SubtotalCents += oi.SubtotalCents()
		o.ShippingCents += oi.ShippingTotalCents()
	}
	o.TotalCents = o.SubtotalCents + o.ShippingCents
	return o, nil
}
