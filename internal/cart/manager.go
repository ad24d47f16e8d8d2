package cart

import (
	"context"
	"log"
	"time"

	"vitrine_back_end/internal/apperr"
	"vitrine_back_end/internal/catalog"
	"vitrine_back_end/internal/models"
)

// PaymentReference est stockée sur le panier quand une session ou un intent de paiement est créé.
type PaymentReference struct {
	CartID           string
	PaymentSessionID string
	PaymentIntentID  string
	ClientSecret     string
}

// Manager porte les règles métier du panier. Les montants sont toujours
// recalculés depuis le produit courant.
type Manager struct {
	repo     Repository
	products catalog.Reader
	notifier Notifier
	now      func() time.Time
}

func NewManager(repo Repository, products catalog.Reader, notifier Notifier) *Manager {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Manager{repo: repo, products: products, notifier: notifier, now: time.Now}
}

// GetCart accepte l'identifiant canonique ou l'ancienne clé de session.
func (m *Manager) GetCart(ctx context.Context, token string) (*models.Cart, error) {
	id, err := m.repo.ResolveID(ctx, token)
	if err != nil {
		return nil, err
	}
	return m.repo.Get(ctx, id)
}

// AddItem crée le panier au besoin et fusionne la quantité avec une ligne existante.
func (m *Manager) AddItem(ctx context.Context, token, productID string, quantity int) (*models.Cart, error) {
	const op = "cart.AddItem"
	if token == "" {
		return nil, apperr.New(apperr.Invalid, op, "Cart id is required")
	}
	if quantity <= 0 {
		return nil, apperr.New(apperr.Invalid, op, "Quantity must be positive")
	}

	product, err := m.products.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	id, create, err := m.resolveOrNew(ctx, token)
	if err != nil {
		return nil, err
	}

	c, err := m.repo.Mutate(ctx, id, create, func(c *models.Cart) error {
		existing := 0
		idx := c.FindItem(productID)
		if idx >= 0 {
			existing = c.Items[idx].Quantity
		}
		if product.Stock < existing+quantity {
			return apperr.Newf(apperr.InvalidState, op, "Not enough stock for %s (available %d)", product.Name, product.Stock)
		}
		if idx >= 0 {
			c.Items[idx].Quantity += quantity
		} else {
			c.Items = append(c.Items, models.CartItem{ProductID: productID, Quantity: quantity})
			idx = len(c.Items) - 1
		}
		refreshLine(&c.Items[idx], product)
		c.UpdatedAt = m.now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("🛒 Panier %s: +%d %s", id, quantity, productID)
	m.notify(ctx, c, ChangeUpdated)
	return c, nil
}

// UpdateItemQuantity remplace la quantité. Une quantité <= 0 retire la ligne.
func (m *Manager) UpdateItemQuantity(ctx context.Context, token, productID string, quantity int) (*models.Cart, error) {
	const op = "cart.UpdateItemQuantity"

	id, err := m.repo.ResolveID(ctx, token)
	if err != nil {
		return nil, err
	}

	var product *models.Product
	if quantity > 0 {
		if product, err = m.products.GetProduct(ctx, productID); err != nil {
			return nil, err
		}
	}

	c, err := m.repo.Mutate(ctx, id, false, func(c *models.Cart) error {
		idx := c.FindItem(productID)
		switch {
		case quantity <= 0:
			if !c.RemoveItem(productID) {
				return nil
			}
		case idx < 0:
			return apperr.New(apperr.NotFound, op, "Item not found in cart")
		default:
			if product.Stock < quantity {
				return apperr.Newf(apperr.InvalidState, op, "Not enough stock for %s (available %d)", product.Name, product.Stock)
			}
			c.Items[idx].Quantity = quantity
			refreshLine(&c.Items[idx], product)
		}
		c.UpdatedAt = m.now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.notify(ctx, c, ChangeUpdated)
	return c, nil
}

// RemoveItem ne renvoie pas d'erreur si la ligne est déjà absente.
func (m *Manager) RemoveItem(ctx context.Context, token, productID string) (*models.Cart, error) {
	id, err := m.repo.ResolveID(ctx, token)
	if err != nil {
		return nil, err
	}

	removed := false
	c, err := m.repo.Mutate(ctx, id, false, func(c *models.Cart) error {
		if removed = c.RemoveItem(productID); removed {
			c.UpdatedAt = m.now().UTC()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if removed {
		m.notify(ctx, c, ChangeUpdated)
	}
	return c, nil
}

// Clear vide le panier en conservant son identité. Un panier absent est ignoré.
func (m *Manager) Clear(ctx context.Context, token string) error {
	id, err := m.repo.ResolveID(ctx, token)
	if err != nil {
		if apperr.Is(err, apperr.NotFound) {
			return nil
		}
		return err
	}

	c, err := m.repo.Mutate(ctx, id, false, func(c *models.Cart) error {
		c.Items = nil
		c.UpdatedAt = m.now().UTC()
		return nil
	})
	if err != nil {
		if apperr.Is(err, apperr.NotFound) {
			return nil
		}
		return err
	}
	m.notify(ctx, c, ChangeCleared)
	return nil
}

// UpdatePaymentReference enregistre la session ou l'intent de paiement du panier.
// Les champs vides de ref laissent la valeur actuelle intacte.
func (m *Manager) UpdatePaymentReference(ctx context.Context, ref PaymentReference) (*models.Cart, error) {
	id, err := m.repo.ResolveID(ctx, ref.CartID)
	if err != nil {
		return nil, err
	}
	return m.repo.Mutate(ctx, id, false, func(c *models.Cart) error {
		if ref.PaymentSessionID != "" {
			c.PaymentSessionID = ref.PaymentSessionID
		}
		if ref.PaymentIntentID != "" {
			c.PaymentIntentID = ref.PaymentIntentID
		}
		if ref.ClientSecret != "" {
			c.ClientSecret = ref.ClientSecret
		}
		c.UpdatedAt = m.now().UTC()
		return nil
	})
}

// ResolveID retourne l'identifiant canonique du panier. Un jeton encore inconnu est
// retourné tel quel : c'est l'id sous lequel le panier sera créé.
func (m *Manager) ResolveID(ctx context.Context, token string) (string, error) {
	id, _, err := m.resolveOrNew(ctx, token)
	return id, err
}

func (m *Manager) resolveOrNew(ctx context.Context, token string) (string, bool, error) {
	id, err := m.repo.ResolveID(ctx, token)
	if err == nil {
		return id, false, nil
	}
	if apperr.Is(err, apperr.NotFound) {
		return token, true, nil
	}
	return "", false, err
}

func (m *Manager) notify(ctx context.Context, c *models.Cart, kind ChangeKind) {
	m.notifier.CartChanged(ctx, Change{Type: kind, CartID: c.ID, Version: c.Version})
}

func refreshLine(it *models.CartItem, p *models.Product) {
	it.ProductName = p.Name
	it.ImageKey = p.ImageKey
	it.PriceCents = p.PriceCents
	it.ShippingCents = p.ShippingCents
	it.Stock = p.Stock
}
