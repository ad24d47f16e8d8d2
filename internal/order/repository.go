package order

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"

	"vitrine_back_end/internal/apperr"
	"vitrine_back_end/internal/cart"
	"vitrine_back_end/internal/catalog"
	"vitrine_back_end/internal/database"
	"vitrine_back_end/internal/inventory"
	"vitrine_back_end/internal/models"
)

// BuildFunc fige le panier verrouillé en commande. Elle ne fait aucune E/S.
type BuildFunc func(c *models.Cart) (*models.Order, error)

type Repository interface {
	// CreateFromCart verrouille le panier, construit la commande, la persiste, consomme
	// le stock et supprime le panier dans une seule transaction.
	CreateFromCart(ctx context.Context, req BuildRequest, build BuildFunc) (*models.Order, error)
	Get(ctx context.Context, id string) (*models.Order, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Order, error)
	ListAll(ctx context.Context) ([]*models.Order, error)
	// FindByPaymentRef cherche par id de session de paiement ou d'intent.
	FindByPaymentRef(ctx context.Context, ref string) (*models.Order, error)
	FindByCart(ctx context.Context, cartID string) (*models.Order, error)
	// UpdateStatus n'écrit que si le statut courant vaut encore from.
	UpdateStatus(ctx context.Context, id string, from, to models.OrderStatus, at time.Time) (*models.Order, error)
}

const orderColumns = `id, COALESCE(user_id, ''), COALESCE(cart_id, ''), status, subtotal_cents, shipping_cents, total_cents,
	COALESCE(payment_session_id, ''), COALESCE(payment_intent_id, ''),
	shipping_full_name, shipping_line1, shipping_line2, shipping_city, shipping_state, shipping_postal_code, shipping_country,
	created_at, updated_at`

type PostgresRepository struct {
	db    database.DB
	cache catalog.Invalidator
}

func NewPostgresRepository(db database.DB, inv catalog.Invalidator) *PostgresRepository {
	if inv == nil {
		inv = catalog.NopInvalidator{}
	}
	return &PostgresRepository{db: db, cache: inv}
}

func (r *PostgresRepository) CreateFromCart(ctx context.Context, req BuildRequest, build BuildFunc) (*models.Order, error) {
	const op = "order.CreateFromCart"
	var created *models.Order

	err := database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		c, err := cart.LoadForUpdate(ctx, tx, req.CartID)
		if err != nil {
			if apperr.Is(err, apperr.NotFound) {
				return apperr.New(apperr.InvalidState, op, "Cart not found")
			}
			return err
		}

		o, err := build(c)
		if err != nil {
			return err
		}
		if err := insertOrder(ctx, tx, o); err != nil {
			return err
		}

		oversold, err := inventory.ConsumeWithTx(ctx, tx, c.ID, o.ID, models.LinesFromCart(c), req.AllowOversell)
		if err != nil {
			return err
		}
		for _, s := range oversold {
			log.Printf("⚠️ Survente sur %s pour la commande %s: demandé %d, disponible %d", s.ProductID, o.ID, s.Requested, s.Available)
		}

		if err := cart.DeleteWithTx(ctx, tx, c.ID); err != nil {
			return err
		}
		created = o
		return nil
	})
	if err != nil {
		if database.IsUniqueViolation(err, "orders_payment_session_id_key") {
			return nil, apperr.Wrap(apperr.Conflict, op, err, "Order already exists for this payment")
		}
		return nil, err
	}

	ids := make([]string, len(created.Items))
	for i, it := range created.Items {
		ids[i] = it.ProductID
	}
	r.cache.Invalidate(ctx, ids...)
	return created, nil
}

func insertOrder(ctx context.Context, tx pgx.Tx, o *models.Order) error {
	a := o.ShippingAddress
	_, err := tx.Exec(ctx, `
		INSERT INTO orders (id, user_id, cart_id, status, subtotal_cents, shipping_cents, total_cents,
			payment_session_id, payment_intent_id,
			shipping_full_name, shipping_line1, shipping_line2, shipping_city, shipping_state, shipping_postal_code, shipping_country,
			created_at, updated_at)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''),
			$10, $11, $12, $13, $14, $15, $16, $17, $17)`,
		o.ID, o.UserID, o.CartID, string(o.Status), o.SubtotalCents, o.ShippingCents, o.TotalCents,
		o.PaymentSessionID, o.PaymentIntentID,
		a.FullName, a.AddressLine1, a.AddressLine2, a.City, a.State, a.PostalCode, a.Country,
		o.CreatedAt)
	if err != nil {
		return fmt.Errorf("insertion commande: %w", err)
	}

	for _, it := range o.Items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items (id, order_id, product_id, product_name, quantity, price_at_purchase_cents, shipping_price_at_purchase_cents)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			it.ID, o.ID, it.ProductID, it.ProductName, it.Quantity, it.PriceAtPurchaseCents, it.ShippingAtPurchase); err != nil {
			return fmt.Errorf("insertion ligne commande %s: %w", it.ProductID, err)
		}
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Order, error) {
	return r.findOne(ctx, `id = $1`, id)
}

func (r *PostgresRepository) FindByPaymentRef(ctx context.Context, ref string) (*models.Order, error) {
	if ref == "" {
		return nil, apperr.New(apperr.NotFound, "order.FindByPaymentRef", "Order not found")
	}
	return r.findOne(ctx, `payment_session_id = $1 OR payment_intent_id = $1`, ref)
}

func (r *PostgresRepository) FindByCart(ctx context.Context, cartID string) (*models.Order, error) {
	if cartID == "" {
		return nil, apperr.New(apperr.NotFound, "order.FindByCart", "Order not found")
	}
	return r.findOne(ctx, `cart_id = $1`, cartID)
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*models.Order, error) {
	return r.list(ctx, `WHERE user_id = $1`, userID)
}

func (r *PostgresRepository) ListAll(ctx context.Context) ([]*models.Order, error) {
	return r.list(ctx, ``)
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, from, to models.OrderStatus, at time.Time) (*models.Order, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE orders SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2`, id, string(from), string(to), at.UTC())
	if err != nil {
		return nil, fmt.Errorf("mise à jour statut %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, apperr.Newf(apperr.Conflict, "order.UpdateStatus", "Order status changed concurrently (expected %s)", from)
	}
	return r.Get(ctx, id)
}

func (r *PostgresRepository) findOne(ctx context.Context, where string, arg any) (*models.Order, error) {
	o, err := scanOrder(r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE `+where+` ORDER BY created_at LIMIT 1`, arg))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, apperr.New(apperr.NotFound, "order.Get", "Order not found")
		}
		return nil, fmt.Errorf("lecture commande: %w", err)
	}
	if err := r.loadItems(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *PostgresRepository) list(ctx context.Context, where string, args ...any) ([]*models.Order, error) {
	rows, err := r.db.Query(ctx, `SELECT `+orderColumns+` FROM orders `+where+` ORDER BY created_at DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("liste commandes: %w", err)
	}
	var out []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, o := range out {
		if err := r.loadItems(ctx, o); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *PostgresRepository) loadItems(ctx context.Context, o *models.Order) error {
	rows, err := r.db.Query(ctx, `
		SELECT id, product_id, product_name, quantity, price_at_purchase_cents, shipping_price_at_purchase_cents
		FROM order_items WHERE order_id = $1 ORDER BY product_name, id`, o.ID)
	if err != nil {
		return fmt.Errorf("lecture lignes commande %s: %w", o.ID, err)
	}
	defer rows.Close()

	o.Items = []models.OrderItem{}
	for rows.Next() {
		var it models.OrderItem
		if err := rows.Scan(&it.ID, &it.ProductID, &it.ProductName, &it.Quantity, &it.PriceAtPurchaseCents, &it.ShippingAtPurchase); err != nil {
			return err
		}
		o.Items = append(o.Items, it)
	}
	return rows.Err()
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	var o models.Order
	var status string
	a := &o.ShippingAddress
	err := row.Scan(&o.ID, &o.UserID, &o.CartID, &status, &o.SubtotalCents, &o.ShippingCents, &o.TotalCents,
		&o.PaymentSessionID, &o.PaymentIntentID,
		&a.FullName, &a.AddressLine1, &a.AddressLine2, &a.City, &a.State, &a.PostalCode, &a.Country,
		&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.Status = models.OrderStatus(status)
	return &o, nil
}
