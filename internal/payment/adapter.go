package payment

import (
	"context"
	"fmt"
	"log"
	"time"

	"vitrine_back_end/internal/apperr"
	"vitrine_back_end/internal/cart"
	"vitrine_back_end/internal/inventory"
	"vitrine_back_end/internal/models"
)

// minSessionLifetime est la durée minimale d'une session Stripe (30 minutes) plus une marge.
const minSessionLifetime = 31 * time.Minute

// Carts est la partie du gestionnaire de panier utilisée par le paiement.
type Carts interface {
	GetCart(ctx context.Context, token string) (*models.Cart, error)
	UpdatePaymentReference(ctx context.Context, ref cart.PaymentReference) (*models.Cart, error)
}

// ImageResolver transforme une clé d'image en URL publique. "" si indisponible.
type ImageResolver interface {
	ImageURL(ctx context.Context, key string) string
}

type CheckoutRequest struct {
	CartID          string
	UserID          string
	ShippingAddress models.ShippingAddress
}

type CheckoutResult struct {
	SessionID string
	URL       string
}

type AdapterOptions struct {
	ReservationTTL   time.Duration
	ReservationGrace time.Duration
	Images           ImageResolver
}

// Adapter orchestre panier, réservation de stock et passerelle pour le checkout.
type Adapter struct {
	gateway Gateway
	carts   Carts
	stock   inventory.Reservations
	images  ImageResolver
	ttl     time.Duration
	grace   time.Duration
	now     func() time.Time
}

func NewAdapter(gateway Gateway, carts Carts, stock inventory.Reservations, opts AdapterOptions) *Adapter {
	if opts.ReservationTTL < minSessionLifetime {
		opts.ReservationTTL = minSessionLifetime
	}
	return &Adapter{
		gateway: gateway,
		carts:   carts,
		stock:   stock,
		images:  opts.Images,
		ttl:     opts.ReservationTTL,
		grace:   opts.ReservationGrace,
		now:     time.Now,
	}
}

// CreateCheckoutSession réserve le stock du panier puis ouvre une session hébergée.
// Le panier, l'utilisateur et l'adresse voyagent dans les métadonnées jusqu'au webhook.
func (a *Adapter) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	const op = "payment.CreateCheckoutSession"

	addr := req.ShippingAddress.Normalize()
	if err := addr.Validate(); err != nil {
		return nil, err
	}

	c, err := a.carts.GetCart(ctx, req.CartID)
	if err != nil {
		return nil, err
	}
	if c.IsEmpty() {
		return nil, apperr.New(apperr.InvalidState, op, "Cart is empty")
	}

	// Une seule session payable par panier : la précédente est fermée avant de réserver.
	if c.PaymentSessionID != "" {
		if err := a.gateway.ExpireCheckoutSession(ctx, c.PaymentSessionID); err != nil {
			log.Printf("⚠️ Session précédente %s du panier %s non expirée: %v", c.PaymentSessionID, c.ID, err)
		}
	}

	now := a.now()
	if err := a.stock.Reserve(ctx, c.ID, models.LinesFromCart(c), now.Add(a.ttl+a.grace)); err != nil {
		return nil, err
	}

	totals := c.Totals()
	sess, err := a.gateway.CreateCheckoutSession(ctx, CheckoutSessionParams{
		CartID:    c.ID,
		LineItems: a.lineItems(ctx, c),
		Metadata:  CheckoutMetadata(c.ID, req.UserID, addr, totals.Total),
		ExpiresAt: now.Add(a.ttl),
	})
	if err != nil {
		a.release(ctx, c.ID)
		log.Printf("❌ Session de paiement non créée pour le panier %s: %v", c.ID, err)
		if apperr.KindOf(err) == apperr.Internal {
			return nil, apperr.Wrap(apperr.UpstreamFailure, op, err, "Payment provider unavailable")
		}
		return nil, err
	}

	if _, err := a.carts.UpdatePaymentReference(ctx, cart.PaymentReference{
		CartID:           c.ID,
		PaymentSessionID: sess.ID,
		PaymentIntentID:  sess.PaymentIntentID,
	}); err != nil {
		// Session orpheline : elle ne doit plus être payable ni bloquer le stock.
		if expErr := a.gateway.ExpireCheckoutSession(ctx, sess.ID); expErr != nil {
			log.Printf("❌ Expiration de la session %s impossible: %v", sess.ID, expErr)
		}
		a.release(ctx, c.ID)
		return nil, fmt.Errorf("enregistrement de la session %s sur le panier %s: %w", sess.ID, c.ID, err)
	}

	if err := a.stock.AttachSession(ctx, c.ID, sess.ID); err != nil {
		// Sans rattachement, seul le balayage des réservations échues rendra ce stock.
		log.Printf("⚠️ Réservation du panier %s non rattachée à %s: %v", c.ID, sess.ID, err)
	}

	log.Printf("💳 Session %s créée pour le panier %s (%s)", sess.ID, c.ID, models.FormatCents(totals.Total))
	return &CheckoutResult{SessionID: sess.ID, URL: sess.URL}, nil
}

func (a *Adapter) release(ctx context.Context, cartID string) {
	if _, err := a.stock.Release(ctx, cartID, ""); err != nil {
		log.Printf("❌ Libération du stock du panier %s impossible: %v", cartID, err)
	}
}

// lineItems produit une ligne par article et une ligne de livraison par article qui en a.
func (a *Adapter) lineItems(ctx context.Context, c *models.Cart) []LineItem {
	items := make([]LineItem, 0, len(c.Items)*2)
	for _, it := range c.Items {
		li := LineItem{Name: it.ProductName, UnitAmountCents: it.PriceCents, Quantity: int64(it.Quantity)}
		if a.images != nil && it.ImageKey != "" {
			li.ImageURL = a.images.ImageURL(ctx, it.ImageKey)
		}
		items = append(items, li)
		if it.ShippingCents > 0 {
			items = append(items, LineItem{
				Name:            "Shipping - " + it.ProductName,
				UnitAmountCents: it.ShippingCents,
				Quantity:        int64(it.Quantity),
			})
		}
	}
	return items
}

// CreateOrUpdatePaymentIntent garde un PaymentIntent unique par panier, aligné sur son total courant.
func (a *Adapter) CreateOrUpdatePaymentIntent(ctx context.Context, cartID string) (*PaymentIntent, error) {
	const op = "payment.CreateOrUpdatePaymentIntent"

	c, err := a.carts.GetCart(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if c.IsEmpty() {
		return nil, apperr.New(apperr.InvalidState, op, "Cart is empty")
	}
	total := c.Totals().Total

	if c.PaymentIntentID != "" {
		pi, err := a.gateway.UpdatePaymentIntent(ctx, c.PaymentIntentID, total)
		if err != nil {
			return nil, err
		}
		if pi.ClientSecret == "" {
			pi.ClientSecret = c.ClientSecret
		}
		log.Printf("💳 PaymentIntent %s mis à jour (%s) pour le panier %s", pi.ID, models.FormatCents(total), c.ID)
		return pi, nil
	}

	pi, err := a.gateway.CreatePaymentIntent(ctx, total, map[string]string{
		MetaCartID:     c.ID,
		MetaOrderTotal: models.FormatCents(total),
	})
	if err != nil {
		return nil, err
	}
	if _, err := a.carts.UpdatePaymentReference(ctx, cart.PaymentReference{
		CartID:          c.ID,
		PaymentIntentID: pi.ID,
		ClientSecret:    pi.ClientSecret,
	}); err != nil {
		return nil, fmt.Errorf("enregistrement de l'intent %s sur le panier %s: %w", pi.ID, c.ID, err)
	}
	log.Printf("💳 PaymentIntent %s créé (%s) pour le panier %s", pi.ID, models.FormatCents(total), c.ID)
	return pi, nil
}

// VerifyAndParseWebhook rejette tout événement dont la signature ne correspond pas
// aux octets bruts reçus.
func (a *Adapter) VerifyAndParseWebhook(payload []byte, signature string) (*Event, error) {
	const op = "payment.VerifyAndParseWebhook"
	if int64(len(payload)) > MaxWebhookBytes {
		return nil, apperr.New(apperr.Invalid, op, "Payload too large")
	}
	if signature == "" {
		return nil, apperr.New(apperr.SignatureInvalid, op, "Missing signature")
	}
	ev, err := a.gateway.ParseWebhook(payload, signature)
	if err != nil {
		switch apperr.KindOf(err) {
		case apperr.SignatureInvalid, apperr.Invalid:
			return nil, err
		default:
			return nil, apperr.Wrap(apperr.SignatureInvalid, op, err, "Invalid signature")
		}
	}
	return ev, nil
}

// Refund rembourse un paiement encaissé.
func (a *Adapter) Refund(ctx context.Context, paymentIntentID string, amountCents int64) (string, error) {
	if paymentIntentID == "" {
		return "", apperr.New(apperr.InvalidState, "payment.Refund", "Order has no payment to refund")
	}
	return a.gateway.Refund(ctx, paymentIntentID, amountCents)
}
